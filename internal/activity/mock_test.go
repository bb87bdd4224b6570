package activity

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/edvin/dealersites/internal/certcheck"
	"github.com/edvin/dealersites/internal/core"
	"github.com/edvin/dealersites/internal/hosting"
	"github.com/edvin/dealersites/internal/model"
	"github.com/edvin/dealersites/internal/notify"
)

// ---------- Pipeline mock ----------

type mockPipeline struct {
	mock.Mock
}

func (m *mockPipeline) Get(ctx context.Context, id string) (*model.DomainOnboarding, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DomainOnboarding), args.Error(1)
}

func (m *mockPipeline) CheckPropagation(ctx context.Context, id string) (model.PropagationStatus, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(model.PropagationStatus), args.Error(1)
}

func (m *mockPipeline) FinishAutoCheck(ctx context.Context, id string, status model.AutoCheckStatus, attempts int) error {
	return m.Called(ctx, id, status, attempts).Error(0)
}

func (m *mockPipeline) BeginDeployment(ctx context.Context, id, workflowID string) (*core.DeployTarget, error) {
	args := m.Called(ctx, id, workflowID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*core.DeployTarget), args.Error(1)
}

func (m *mockPipeline) RecordDeployment(ctx context.Context, id string, info model.DeploymentInfo) error {
	return m.Called(ctx, id, info).Error(0)
}

func (m *mockPipeline) MarkSSLProvisioning(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockPipeline) MarkLive(ctx context.Context, id string, ssl model.SSLCertificate) (*model.DomainOnboarding, error) {
	args := m.Called(ctx, id, ssl)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DomainOnboarding), args.Error(1)
}

func (m *mockPipeline) Fail(ctx context.Context, id, stage, reason string) (*model.DomainOnboarding, error) {
	args := m.Called(ctx, id, stage, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DomainOnboarding), args.Error(1)
}

// ---------- Fakes ----------

type recordingArchiver struct {
	archived []string
	err      error
}

func (a *recordingArchiver) Archive(_ context.Context, o *model.DomainOnboarding) error {
	if a.err != nil {
		return a.err
	}
	a.archived = append(a.archived, o.ID)
	return nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Params
	to   []string
}

func (n *recordingNotifier) Notify(_ context.Context, recipient string, p notify.Params) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.to = append(n.to, recipient)
	n.sent = append(n.sent, p)
}

type fakeChecker struct {
	cert *certcheck.Certificate
	err  error
}

func (f *fakeChecker) Check(context.Context, string) (*certcheck.Certificate, error) {
	return f.cert, f.err
}

type fakeActivator struct {
	domain    *model.Domain
	err       error
	registrar string
}

func (f *fakeActivator) Activate(_ context.Context, dealerID, slug, host, registrar string, ssl model.SSLStatus, expiresAt *time.Time) (*model.Domain, error) {
	f.registrar = registrar
	if f.err != nil {
		return nil, f.err
	}
	if f.domain != nil {
		return f.domain, nil
	}
	return &model.Domain{ID: "domain-1", DealerID: dealerID, Slug: slug, Domain: host, SSLStatus: ssl, SSLExpiresAt: expiresAt, IsPrimary: true}, nil
}

type failingInvalidator struct{}

func (failingInvalidator) Invalidate(context.Context, ...string) error {
	return errors.New("redis: connection refused")
}

// stubProvider answers every hosting call from its fields.
type stubProvider struct {
	project    *hosting.Project
	findErr    error
	createErr  error
	envErr     error
	deployment *hosting.Deployment
	getErr     error
	addErr     error
	verify     *hosting.DomainVerification
}

func (p *stubProvider) FindProject(context.Context, string) (*hosting.Project, error) {
	if p.findErr != nil {
		return nil, p.findErr
	}
	return p.project, nil
}

func (p *stubProvider) CreateProject(_ context.Context, name, _ string) (*hosting.Project, error) {
	if p.createErr != nil {
		return nil, p.createErr
	}
	p.project = &hosting.Project{ID: "prj_1", Name: name}
	return p.project, nil
}

func (p *stubProvider) SetEnvVars(context.Context, string, []hosting.EnvVar) error {
	return p.envErr
}

func (p *stubProvider) TriggerDeployment(context.Context, string, string, string, string) (*hosting.Deployment, error) {
	return p.deployment, nil
}

func (p *stubProvider) GetDeployment(context.Context, string) (*hosting.Deployment, error) {
	if p.getErr != nil {
		return nil, p.getErr
	}
	return p.deployment, nil
}

func (p *stubProvider) AddDomain(_ context.Context, projectID, domain string) (*hosting.ProjectDomain, error) {
	if p.addErr != nil {
		return nil, p.addErr
	}
	return &hosting.ProjectDomain{Name: domain, ProjectID: projectID}, nil
}

func (p *stubProvider) GetDomainVerification(context.Context, string, string) (*hosting.DomainVerification, error) {
	return p.verify, nil
}

func notFound() error {
	return &hosting.APIError{Status: http.StatusNotFound, Code: "not_found", Message: "project not found"}
}
