package deploy

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/dealersites/internal/hosting"
	"github.com/edvin/dealersites/internal/model"
)

// fakeProvider is an in-memory hosting platform.
type fakeProvider struct {
	mu          sync.Mutex
	projects    map[string]*hosting.Project
	env         map[string]map[string]hosting.EnvVar
	domains     map[string]string
	deployments map[string]*hosting.Deployment
	creates     int
	createErr   error
	nextID      int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		projects:    map[string]*hosting.Project{},
		env:         map[string]map[string]hosting.EnvVar{},
		domains:     map[string]string{},
		deployments: map[string]*hosting.Deployment{},
	}
}

func (f *fakeProvider) id(prefix string) string {
	f.nextID++
	return prefix + string(rune('0'+f.nextID))
}

func (f *fakeProvider) FindProject(_ context.Context, name string) (*hosting.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.projects[name]; ok {
		return p, nil
	}
	return nil, &hosting.APIError{Status: http.StatusNotFound, Message: "Project not found"}
}

func (f *fakeProvider) CreateProject(_ context.Context, name, _ string) (*hosting.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	if _, ok := f.projects[name]; ok {
		return nil, &hosting.APIError{Status: http.StatusConflict, Message: "exists"}
	}
	f.creates++
	p := &hosting.Project{ID: f.id("prj_"), Name: name}
	f.projects[name] = p
	return p, nil
}

func (f *fakeProvider) SetEnvVars(_ context.Context, projectID string, vars []hosting.EnvVar) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.env[projectID] == nil {
		f.env[projectID] = map[string]hosting.EnvVar{}
	}
	for _, v := range vars {
		f.env[projectID][v.Key] = v
	}
	return nil
}

func (f *fakeProvider) TriggerDeployment(_ context.Context, _, _, _, ref string) (*hosting.Deployment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := &hosting.Deployment{ID: f.id("dpl_"), ReadyState: "QUEUED", URL: ref + ".hosting.test"}
	f.deployments[d.ID] = d
	return d, nil
}

func (f *fakeProvider) GetDeployment(_ context.Context, id string) (*hosting.Deployment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.deployments[id]
	if !ok {
		return nil, &hosting.APIError{Status: http.StatusNotFound}
	}
	return d, nil
}

func (f *fakeProvider) AddDomain(_ context.Context, projectID, domain string) (*hosting.ProjectDomain, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.domains[domain]; ok {
		return nil, &hosting.APIError{Status: http.StatusConflict, Code: "domain_already_in_use", Message: "in use"}
	}
	f.domains[domain] = projectID
	return &hosting.ProjectDomain{Name: domain, ProjectID: projectID}, nil
}

func (f *fakeProvider) GetDomainVerification(_ context.Context, _, domain string) (*hosting.DomainVerification, error) {
	return &hosting.DomainVerification{
		CNAMETarget: "abc.cname.hosting.test",
		VerificationRecords: []hosting.VerificationRecord{
			{Type: "TXT", Domain: "_vercel." + domain, Value: "vc-domain-verify=1"},
		},
	}, nil
}

func newTestOrchestrator(p hosting.Provider) *Orchestrator {
	return NewOrchestrator(p, Settings{
		Repository:  "dealersites/site",
		DatabaseURL: "postgres://site",
		PublicKey:   "pk_live",
	}, zerolog.Nop())
}

func TestDeploy_TwiceReusesProject(t *testing.T) {
	p := newFakeProvider()
	o := newTestOrchestrator(p)

	first, _, err := o.Deploy(context.Background(), "dealer-1", "abc-motors", "main")
	require.NoError(t, err)
	second, _, err := o.Deploy(context.Background(), "dealer-1", "abc-motors", "main")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, p.creates)
	assert.Len(t, p.projects, 1)
	assert.Equal(t, "dealer-abc-motors", first.Name)
}

func TestEnsureProject_CreateRaceFallsBackToFind(t *testing.T) {
	p := newFakeProvider()
	p.projects["dealer-abc"] = &hosting.Project{ID: "prj_existing", Name: "dealer-abc"}
	racing := &raceProvider{fakeProvider: p}

	got, err := newTestOrchestrator(racing).EnsureProject(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "prj_existing", got.ID)
}

// raceProvider hides the project on the first lookup, as if another worker
// created it between our find and create.
type raceProvider struct {
	*fakeProvider
	lookups int
}

func (r *raceProvider) FindProject(ctx context.Context, name string) (*hosting.Project, error) {
	r.lookups++
	if r.lookups == 1 {
		return nil, &hosting.APIError{Status: http.StatusNotFound}
	}
	return r.fakeProvider.FindProject(ctx, name)
}

func TestEnsureProject_FindErrorIsReturned(t *testing.T) {
	o := newTestOrchestrator(&failingFind{newFakeProvider()})
	_, err := o.EnsureProject(context.Background(), "abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gateway down")
}

type failingFind struct{ *fakeProvider }

func (f *failingFind) FindProject(context.Context, string) (*hosting.Project, error) {
	return nil, &hosting.APIError{Status: http.StatusBadGateway, Message: "gateway down"}
}

func TestConfigureEnv_IdempotentUpsert(t *testing.T) {
	p := newFakeProvider()
	o := newTestOrchestrator(p)

	require.NoError(t, o.ConfigureEnv(context.Background(), "prj_1", "dealer-1", "abc"))
	require.NoError(t, o.ConfigureEnv(context.Background(), "prj_1", "dealer-1", "abc"))

	env := p.env["prj_1"]
	assert.Len(t, env, 4)
	assert.Equal(t, "postgres://site", env["DATABASE_URL"].Value)
	assert.Equal(t, "pk_live", env["PUBLIC_API_KEY"].Value)
	assert.Equal(t, "encrypted", env["DATABASE_URL"].Type)
	assert.Equal(t, hosting.AllTargets, env["DEALER_SLUG"].Target)
}

func TestEnvVars_SortedAndSkipsEmpty(t *testing.T) {
	o := NewOrchestrator(newFakeProvider(), Settings{DatabaseURL: "postgres://site"}, zerolog.Nop())
	vars := o.EnvVars("dealer-1", "abc")

	var keys []string
	for _, v := range vars {
		keys = append(keys, v.Key)
	}
	assert.Equal(t, []string{"DATABASE_URL", "DEALER_ID", "DEALER_SLUG"}, keys)
}

func TestAttachDomain_Twice(t *testing.T) {
	p := newFakeProvider()
	o := newTestOrchestrator(p)

	v1, err := o.AttachDomain(context.Background(), "prj_1", "abc.in")
	require.NoError(t, err)
	v2, err := o.AttachDomain(context.Background(), "prj_1", "abc.in")
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.Equal(t, "abc.cname.hosting.test", v1.CNAMETarget)
}

func TestTrigger_DefaultBranchAndStatus(t *testing.T) {
	p := newFakeProvider()
	o := newTestOrchestrator(p)

	d, err := o.Trigger(context.Background(), &hosting.Project{ID: "prj_1", Name: "dealer-abc"}, "")
	require.NoError(t, err)
	assert.Equal(t, "main.hosting.test", d.URL)

	p.deployments[d.ID].ReadyState = "BUILDING"
	state, _, err := o.Status(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DeploymentBuilding, state)

	_, _, err = o.Status(context.Background(), "dpl_missing")
	assert.True(t, errors.Is(err, hosting.ErrNotFound))
}

func TestProviderRecords(t *testing.T) {
	recs := ProviderRecords("abc.in", &hosting.DomainVerification{
		CNAMETarget:         "x.cname.test",
		VerificationRecords: []hosting.VerificationRecord{{Type: "TXT", Domain: "_vercel.abc.in", Value: "v=1"}},
	})
	assert.Equal(t, []model.DNSRecord{
		{Type: "CNAME", Name: "abc.in", Value: "x.cname.test"},
		{Type: "TXT", Name: "_vercel.abc.in", Value: "v=1"},
	}, recs)
	assert.Empty(t, ProviderRecords("abc.in", nil))
}
