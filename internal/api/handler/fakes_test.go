package handler

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/edvin/dealersites/internal/core"
	"github.com/edvin/dealersites/internal/dnsconfig"
	"github.com/edvin/dealersites/internal/model"
	"github.com/edvin/dealersites/internal/registrar"
	"github.com/edvin/dealersites/internal/route"
	"github.com/edvin/dealersites/internal/routecache"
)

// fakeOnboarding answers every call from in-memory onboardings.
type fakeOnboarding struct {
	mu          sync.Mutex
	onboardings map[string]*model.DomainOnboarding
	statuses    []model.PropagationStatus
	statusCalls int
	err         error

	gotSelection route.Selection
	gotRef       string
}

func newFakeOnboarding(o ...*model.DomainOnboarding) *fakeOnboarding {
	f := &fakeOnboarding{onboardings: map[string]*model.DomainOnboarding{}}
	for _, ob := range o {
		f.onboardings[ob.ID] = ob
	}
	return f
}

func (f *fakeOnboarding) lookup(id string) (*model.DomainOnboarding, error) {
	if f.err != nil {
		return nil, f.err
	}
	o, ok := f.onboardings[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return o, nil
}

func (f *fakeOnboarding) Create(_ context.Context, dealerID, domain string) (*model.DomainOnboarding, error) {
	if f.err != nil {
		return nil, f.err
	}
	o := &model.DomainOnboarding{ID: "ob-new", DealerID: dealerID, Domain: domain, State: model.StateDNSAnalyzed}
	f.onboardings[o.ID] = o
	return o, nil
}

func (f *fakeOnboarding) Get(_ context.Context, id string) (*model.DomainOnboarding, error) {
	return f.lookup(id)
}

func (f *fakeOnboarding) Analyze(_ context.Context, id string) (*model.DomainOnboarding, error) {
	return f.lookup(id)
}

func (f *fakeOnboarding) SelectRoute(_ context.Context, id string, sel route.Selection) (*model.DomainOnboarding, error) {
	f.gotSelection = sel
	o, err := f.lookup(id)
	if err != nil {
		return nil, err
	}
	o.State = model.StateRouteSelected
	return o, nil
}

func (f *fakeOnboarding) Configure(_ context.Context, id string) (*dnsconfig.Instructions, *model.DomainOnboarding, error) {
	o, err := f.lookup(id)
	if err != nil {
		return nil, nil, err
	}
	return &dnsconfig.Instructions{Route: model.RouteFullDomain, Host: o.Domain}, o, nil
}

func (f *fakeOnboarding) PropagationStatus(_ context.Context, id string) (model.PropagationStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.lookup(id); err != nil {
		return model.PropagationStatus{}, err
	}
	if len(f.statuses) == 0 {
		return model.PropagationStatus{}, nil
	}
	i := min(f.statusCalls, len(f.statuses)-1)
	f.statusCalls++
	return f.statuses[i], nil
}

func (f *fakeOnboarding) CheckPropagation(ctx context.Context, id string) (model.PropagationStatus, error) {
	return f.PropagationStatus(ctx, id)
}

func (f *fakeOnboarding) StartAutoCheck(_ context.Context, id string) (*model.DomainOnboarding, error) {
	o, err := f.lookup(id)
	if err != nil {
		return nil, err
	}
	o.AutoCheck = model.AutoCheck{Status: model.AutoCheckRunning, WorkflowID: "propagation-" + id}
	return o, nil
}

func (f *fakeOnboarding) StopAutoCheck(_ context.Context, id string) (*model.DomainOnboarding, error) {
	o, err := f.lookup(id)
	if err != nil {
		return nil, err
	}
	o.AutoCheck.Status = model.AutoCheckStopped
	return o, nil
}

func (f *fakeOnboarding) StartDeploy(_ context.Context, id, ref string) (string, error) {
	f.gotRef = ref
	if _, err := f.lookup(id); err != nil {
		return "", err
	}
	return "deploy-site-" + id, nil
}

type fakeDealers struct {
	got *model.Dealer
	err error
}

func (f *fakeDealers) Create(_ context.Context, d *model.Dealer) error {
	f.got = d
	if f.err != nil {
		return f.err
	}
	d.ID, d.Slug = "dealer-1", "abc-motors"
	return nil
}

type fakeDomains struct {
	domains    []model.Domain
	created    bool
	err        error
	gotPrimary [2]string
}

func (f *fakeDomains) EnsurePlatformSubdomain(_ context.Context, dealerID string) (*model.Domain, bool, error) {
	if f.err != nil {
		return nil, false, f.err
	}
	return &model.Domain{ID: "d-1", DealerID: dealerID, Domain: "abc-motors.dealersites.in", Type: model.DomainTypeSubdomain}, f.created, nil
}

func (f *fakeDomains) ListByDealer(_ context.Context, _ string) ([]model.Domain, error) {
	return f.domains, f.err
}

func (f *fakeDomains) SetPrimary(_ context.Context, dealerID, domainID string) error {
	f.gotPrimary = [2]string{dealerID, domainID}
	return f.err
}

type fakeSearcher struct {
	results []registrar.SearchResult
	err     error
}

func (f *fakeSearcher) Search(_ context.Context, _ string) ([]registrar.SearchResult, error) {
	return f.results, f.err
}

type fakeRegistrar struct {
	got core.RegistrationRequest
	err error
}

func (f *fakeRegistrar) Register(_ context.Context, req core.RegistrationRequest) (*model.Domain, *registrar.Order, error) {
	f.got = req
	if f.err != nil {
		return nil, nil, f.err
	}
	return &model.Domain{ID: "d-2", DealerID: req.DealerID, Domain: req.Domain, Type: model.DomainTypeManaged},
		&registrar.Order{OrderID: "ord-1", Domain: req.Domain}, nil
}

type fakeRoutes map[string]string

func (f fakeRoutes) Lookup(_ context.Context, host string) (string, error) {
	slug, ok := f[host]
	if !ok {
		return "", routecache.ErrUnknownHost
	}
	return slug, nil
}

// serve runs one request through a router that only knows pattern.
func serve(method, pattern, target, body string, h http.HandlerFunc) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.MethodFunc(method, pattern, h)

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}
