package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/api/serviceerror"
	temporalclient "go.temporal.io/sdk/client"
	temporalmocks "go.temporal.io/sdk/mocks"

	"github.com/edvin/dealersites/internal/dnsanalysis"
	"github.com/edvin/dealersites/internal/dnsconfig"
	"github.com/edvin/dealersites/internal/hosting"
	"github.com/edvin/dealersites/internal/model"
	"github.com/edvin/dealersites/internal/notify"
	"github.com/edvin/dealersites/internal/platform"
	"github.com/edvin/dealersites/internal/propagation"
	"github.com/edvin/dealersites/internal/route"
)

var testDealer = model.Dealer{
	ID:    "dealer-1",
	Name:  "ABC Motors",
	Slug:  "abc-motors",
	City:  "Pune",
	Email: "owner@abcmotors.in",
}

type onboardingFixture struct {
	svc      *OnboardingService
	repo     *memRepo
	db       *mockDB
	tc       *temporalmocks.Client
	resolver *fakeResolver
	notifier *recordingNotifier
	analyzer *fakeAnalyzer
}

func newOnboardingFixture(t *testing.T, recommended model.Route) *onboardingFixture {
	t.Helper()
	db := &mockDB{}
	db.On("QueryRow", mock.Anything, sqlContaining("FROM dealers"), mock.Anything).Return(dealerRow(testDealer)).Maybe()

	gen, err := dnsconfig.NewGenerator(dnsconfig.Targets{ApexIP: "76.76.21.21", CNAMETarget: "cname.dealersites-dns.com"})
	require.NoError(t, err)

	f := &onboardingFixture{
		repo:     newMemRepo(),
		db:       db,
		tc:       &temporalmocks.Client{},
		resolver: newFakeResolver(),
		notifier: &recordingNotifier{},
		analyzer: &fakeAnalyzer{result: dnsanalysis.Result{
			Analysis: model.DNSAnalysis{
				Nameservers: []string{"ns01.domaincontrol.com", "ns02.domaincontrol.com"},
				ARecords:    []string{"192.0.2.10"},
				Registrar:   "godaddy",
				Lookups: map[string]model.LookupStatus{
					"a":  {Outcome: model.LookupResolved},
					"mx": {Outcome: model.LookupErrored, Reason: "i/o timeout"},
				},
			},
			Recommendation: model.RouteRecommendation{Route: recommended, Reason: "test"},
		}},
	}
	f.svc = NewOnboardingService(OnboardingConfig{
		Store:              f.repo,
		Dealers:            NewDealerService(db),
		Analyzer:           f.analyzer,
		Generator:          gen,
		Tracker:            propagation.NewTracker(f.resolver, time.Second, zerolog.Nop()),
		Notifier:           f.notifier,
		Temporal:           f.tc,
		VerificationSecret: []byte("test-secret"),
		Backoff:            propagation.DefaultBackoff(),
	})
	return f
}

// configured runs an onboarding through to configuration_generated.
func (f *onboardingFixture) configured(t *testing.T, sel route.Selection) *model.DomainOnboarding {
	t.Helper()
	ctx := context.Background()
	o, err := f.svc.Create(ctx, testDealer.ID, "abcmotors.in")
	require.NoError(t, err)
	_, err = f.svc.SelectRoute(ctx, o.ID, sel)
	require.NoError(t, err)
	_, o, err = f.svc.Configure(ctx, o.ID)
	require.NoError(t, err)
	return o
}

// ---------- Create / Analyze ----------

func TestOnboardingService_Create_AnalyzesDomain(t *testing.T) {
	f := newOnboardingFixture(t, model.RouteFullDomain)

	o, err := f.svc.Create(context.Background(), testDealer.ID, "https://www.ABCMotors.in/contact")
	require.NoError(t, err)

	assert.Equal(t, "abcmotors.in", o.Domain)
	assert.Equal(t, model.StateDNSAnalyzed, o.State)
	assert.Equal(t, "godaddy", o.Registrar)
	assert.Equal(t, model.AccessDNS, o.AccessLevel)
	assert.Equal(t, "txt", o.Verification.Method)
	assert.NotEmpty(t, o.Verification.Token)
	assert.Equal(t, model.VerificationPending, o.Verification.Status)
	assert.Equal(t, model.AutoCheckIdle, o.AutoCheck.Status)
	require.NotNil(t, o.Recommendation)
	assert.Equal(t, model.RouteFullDomain, o.Recommendation.Route)

	require.Len(t, o.TestResults, 1)
	assert.Equal(t, "dns_analysis", o.TestResults[0].Name)
	assert.Contains(t, o.TestResults[0].Detail, "lookups failed: mx")

	stored, err := f.repo.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateDNSAnalyzed, stored.State)
}

func TestOnboardingService_Create_InvalidDomain(t *testing.T) {
	f := newOnboardingFixture(t, model.RouteFullDomain)

	_, err := f.svc.Create(context.Background(), testDealer.ID, "not a domain")
	require.Error(t, err)
	assert.ErrorIs(t, err, platform.ErrInvalidDomain)
	assert.Zero(t, f.analyzer.calls)
}

func TestOnboardingService_Create_UnknownDealer(t *testing.T) {
	f := newOnboardingFixture(t, model.RouteFullDomain)
	db := &mockDB{}
	db.On("QueryRow", mock.Anything, sqlContaining("FROM dealers"), mock.Anything).Return(errRow(pgx.ErrNoRows))
	f.svc.Dealers = NewDealerService(db)

	_, err := f.svc.Create(context.Background(), "missing", "abcmotors.in")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOnboardingService_Analyze_DiscardsRouteChoice(t *testing.T) {
	f := newOnboardingFixture(t, model.RouteFullDomain)
	ctx := context.Background()

	o, err := f.svc.Create(ctx, testDealer.ID, "abcmotors.in")
	require.NoError(t, err)
	_, err = f.svc.SelectRoute(ctx, o.ID, route.Selection{})
	require.NoError(t, err)

	o, err = f.svc.Analyze(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateDNSAnalyzed, o.State)
	assert.Nil(t, o.Configuration)
	assert.Equal(t, 2, f.analyzer.calls)
}

// ---------- SelectRoute ----------

func TestOnboardingService_SelectRoute_UsesRecommendation(t *testing.T) {
	f := newOnboardingFixture(t, model.RouteSubdomain)
	ctx := context.Background()
	o, err := f.svc.Create(ctx, testDealer.ID, "abcmotors.in")
	require.NoError(t, err)

	o, err = f.svc.SelectRoute(ctx, o.ID, route.Selection{})
	require.NoError(t, err)
	assert.Equal(t, model.StateRouteSelected, o.State)
	assert.Equal(t, model.RouteSubdomain, o.Configuration.Route)
	assert.Equal(t, route.DefaultSubdomain, o.Configuration.SubdomainName)
	assert.Equal(t, "cars.abcmotors.in", o.TargetHost())
}

func TestOnboardingService_SelectRoute_InvalidLabel(t *testing.T) {
	f := newOnboardingFixture(t, model.RouteFullDomain)
	ctx := context.Background()
	o, err := f.svc.Create(ctx, testDealer.ID, "abcmotors.in")
	require.NoError(t, err)

	_, err = f.svc.SelectRoute(ctx, o.ID, route.Selection{Route: model.RouteSubdomain, SubdomainName: "-cars"})
	require.Error(t, err)
	assert.ErrorIs(t, err, platform.ErrInvalidLabel)

	stored, err := f.repo.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateDNSAnalyzed, stored.State)
}

func TestOnboardingService_SelectRoute_IllegalFromPending(t *testing.T) {
	f := newOnboardingFixture(t, model.RouteFullDomain)
	ctx := context.Background()
	o, err := f.svc.Create(ctx, testDealer.ID, "abcmotors.in")
	require.NoError(t, err)
	f.repo.setState(o.ID, model.StatePending)

	_, err = f.svc.SelectRoute(ctx, o.ID, route.Selection{})
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrIllegalTransition)
}

// ---------- Configure ----------

func TestOnboardingService_Configure_FullDomain(t *testing.T) {
	f := newOnboardingFixture(t, model.RouteFullDomain)
	ctx := context.Background()
	o, err := f.svc.Create(ctx, testDealer.ID, "abcmotors.in")
	require.NoError(t, err)
	_, err = f.svc.SelectRoute(ctx, o.ID, route.Selection{})
	require.NoError(t, err)

	ins, o, err := f.svc.Configure(ctx, o.ID)
	require.NoError(t, err)

	assert.Equal(t, model.StateConfigurationGenerated, o.State)
	require.Len(t, ins.Records, 3)
	assert.Equal(t, model.DNSRecord{Type: "A", Name: "@", Value: "76.76.21.21", TTL: dnsconfig.DefaultTTL}, ins.Records[0])
	assert.Equal(t, "cname.dealersites-dns.com", ins.Records[1].Value)
	assert.Equal(t, o.Verification.TXTValue(), ins.Records[2].Value)
	assert.Equal(t, ins.Records, o.Configuration.Records)
	assert.NotNil(t, o.Configuration.GeneratedAt)
	assert.Equal(t, 1, f.repo.resets)

	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, testDealer.Email, f.notifier.sent[0].recipient)
	params, ok := f.notifier.sent[0].params.(notify.DNSInstructions)
	require.True(t, ok)
	assert.Equal(t, "abcmotors.in", params.Domain)
	assert.Equal(t, "godaddy", params.Registrar)

	// Regenerating the same records keeps the propagation evidence.
	_, _, err = f.svc.Configure(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, f.repo.resets)
}

func TestOnboardingService_Configure_UsesProviderCNAME(t *testing.T) {
	f := newOnboardingFixture(t, model.RouteFullDomain)
	binder := &fakeBinder{
		project:      hosting.Project{ID: "prj_1", Name: "dealer-abc-motors"},
		verification: hosting.DomainVerification{CNAMETarget: "abc123.hosting-dns.net"},
	}
	f.svc.Binder = binder

	o := f.configured(t, route.Selection{})
	assert.Equal(t, []string{"abcmotors.in"}, binder.attached)
	assert.Equal(t, "abc123.hosting-dns.net", o.Configuration.Records[1].Value)
	require.NotEmpty(t, o.Configuration.ProviderRecords)
}

func TestOnboardingService_Configure_ProviderVerificationRecordTracked(t *testing.T) {
	f := newOnboardingFixture(t, model.RouteFullDomain)
	f.svc.Binder = &fakeBinder{
		project: hosting.Project{ID: "prj_1", Name: "dealer-abc-motors"},
		verification: hosting.DomainVerification{
			CNAMETarget: "cname.dealersites-dns.com",
			VerificationRecords: []hosting.VerificationRecord{
				{Type: "TXT", Domain: "_vercel.abcmotors.in", Value: "vc-domain-verify=abcmotors.in,61eb769f"},
			},
		},
	}
	ctx := context.Background()

	o := f.configured(t, route.Selection{})
	require.Len(t, o.Configuration.Records, 4)
	assert.Equal(t, model.DNSRecord{Type: "TXT", Name: "_vercel", Value: "vc-domain-verify=abcmotors.in,61eb769f", TTL: dnsconfig.DefaultTTL}, o.Configuration.Records[3])

	f.resolver.a["abcmotors.in"] = []string{"76.76.21.21"}
	f.resolver.cname["www.abcmotors.in"] = "cname.dealersites-dns.com."
	f.resolver.txt["_dealersites-verify.abcmotors.in"] = []string{o.Verification.TXTValue()}

	st, err := f.svc.CheckPropagation(ctx, o.ID)
	require.NoError(t, err)
	assert.False(t, st.Overall.FullyPropagated)
	assert.Equal(t, 4, st.Overall.TotalChecks)
	assert.False(t, st.Records["provider_record_1"].Propagated)

	f.resolver.txt["_vercel.abcmotors.in"] = []string{"vc-domain-verify=abcmotors.in,61eb769f"}

	st, err = f.svc.CheckPropagation(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, st.Overall.FullyPropagated)
	stored, err := f.repo.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateVerificationComplete, stored.State)
}

func TestOnboardingService_Configure_BinderError(t *testing.T) {
	f := newOnboardingFixture(t, model.RouteFullDomain)
	f.svc.Binder = &fakeBinder{err: &hosting.APIError{Status: 403, Code: "forbidden", Message: "token lacks scope"}}
	ctx := context.Background()
	o, err := f.svc.Create(ctx, testDealer.ID, "abcmotors.in")
	require.NoError(t, err)
	_, err = f.svc.SelectRoute(ctx, o.ID, route.Selection{})
	require.NoError(t, err)

	_, _, err = f.svc.Configure(ctx, o.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token lacks scope")
	assert.Empty(t, f.notifier.sent)
}

// ---------- Propagation ----------

func TestOnboardingService_CheckPropagation_FullDomain(t *testing.T) {
	f := newOnboardingFixture(t, model.RouteFullDomain)
	ctx := context.Background()
	o := f.configured(t, route.Selection{})

	f.resolver.a["abcmotors.in"] = []string{"76.76.21.21"}

	st, err := f.svc.CheckPropagation(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Overall.ChecksPassed)
	assert.Equal(t, 3, st.Overall.TotalChecks)
	assert.Equal(t, 33, st.Overall.Percentage)
	assert.False(t, st.Overall.FullyPropagated)
	assert.Equal(t, 1, st.Attempts)
	assert.True(t, st.Records[propagation.KeyARecord].Propagated)
	assert.False(t, st.Records[propagation.KeyWWWRecord].Propagated)

	stored, err := f.repo.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateAwaitingPropagation, stored.State)

	// The apex answer disappears but the evidence is sticky.
	delete(f.resolver.a, "abcmotors.in")
	f.resolver.cname["www.abcmotors.in"] = "cname.dealersites-dns.com."
	f.resolver.txt["_dealersites-verify.abcmotors.in"] = []string{o.Verification.TXTValue()}

	st, err = f.svc.CheckPropagation(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, st.Overall.FullyPropagated)
	assert.Equal(t, 100, st.Overall.Percentage)
	assert.Equal(t, "complete", st.EstimatedTimeRemaining)
	assert.True(t, st.Records[propagation.KeyARecord].Propagated)

	stored, err = f.repo.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateVerificationComplete, stored.State)
	assert.Equal(t, model.VerificationVerified, stored.Verification.Status)
	assert.NotNil(t, stored.Verification.VerifiedAt)
	assert.Equal(t, 2, stored.Verification.Attempts)

	// Further checks are read-only.
	st, err = f.svc.CheckPropagation(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, st.Overall.FullyPropagated)
	stored, err = f.repo.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Verification.Attempts)
}

func TestOnboardingService_CheckPropagation_SubdomainRoute(t *testing.T) {
	f := newOnboardingFixture(t, model.RouteSubdomain)
	ctx := context.Background()
	o := f.configured(t, route.Selection{SubdomainName: "showroom"})

	f.resolver.cname["showroom.abcmotors.in"] = "cname.dealersites-dns.com"
	f.resolver.txt["_dealersites-verify.showroom.abcmotors.in"] = []string{o.Verification.TXTValue()}

	st, err := f.svc.CheckPropagation(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Overall.TotalChecks)
	assert.True(t, st.Overall.FullyPropagated)

	stored, err := f.repo.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateConfigurationComplete, stored.State)
}

func TestOnboardingService_CheckPropagation_BeforeConfiguration(t *testing.T) {
	f := newOnboardingFixture(t, model.RouteFullDomain)
	o, err := f.svc.Create(context.Background(), testDealer.ID, "abcmotors.in")
	require.NoError(t, err)

	_, err = f.svc.CheckPropagation(context.Background(), o.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrIllegalTransition)
}

func TestOnboardingService_PropagationStatus_BeforeFirstCheck(t *testing.T) {
	f := newOnboardingFixture(t, model.RouteFullDomain)
	o := f.configured(t, route.Selection{})

	st, err := f.svc.PropagationStatus(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, st.Overall.TotalChecks)
	assert.Zero(t, st.Overall.ChecksPassed)
	assert.Zero(t, st.Attempts)
	assert.Nil(t, st.CheckedAt)
	assert.Equal(t, "15-60 minutes", st.EstimatedTimeRemaining)
	for key, r := range st.Records {
		assert.Empty(t, r.Observed, key)
		assert.NotEmpty(t, r.Expected, key)
	}
}

// ---------- Auto-check ----------

func TestOnboardingService_StartAutoCheck_Idempotent(t *testing.T) {
	f := newOnboardingFixture(t, model.RouteFullDomain)
	ctx := context.Background()
	o := f.configured(t, route.Selection{})

	opts := mock.MatchedBy(func(opts temporalclient.StartWorkflowOptions) bool {
		return opts.ID == "propagation-"+o.ID && opts.TaskQueue == TaskQueue
	})
	f.tc.On("ExecuteWorkflow", mock.Anything, opts, "AutoCheckPropagationWorkflow", o.ID, propagation.DefaultBackoff()).
		Return(&temporalmocks.WorkflowRun{}, nil).Once()

	o, err := f.svc.StartAutoCheck(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AutoCheckRunning, o.AutoCheck.Status)
	assert.Equal(t, "propagation-"+o.ID, o.AutoCheck.WorkflowID)

	_, err = f.svc.StartAutoCheck(ctx, o.ID)
	require.NoError(t, err)
	f.tc.AssertExpectations(t)
}

func TestOnboardingService_StartAutoCheck_WorkflowError(t *testing.T) {
	f := newOnboardingFixture(t, model.RouteFullDomain)
	o := f.configured(t, route.Selection{})
	f.tc.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("temporal down"))

	_, err := f.svc.StartAutoCheck(context.Background(), o.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start AutoCheckPropagationWorkflow")

	stored, err := f.repo.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AutoCheckIdle, stored.AutoCheck.Status)
}

func TestOnboardingService_StopAutoCheck_WorkflowAlreadyGone(t *testing.T) {
	f := newOnboardingFixture(t, model.RouteFullDomain)
	ctx := context.Background()
	o := f.configured(t, route.Selection{})

	f.tc.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&temporalmocks.WorkflowRun{}, nil)
	f.tc.On("CancelWorkflow", mock.Anything, "propagation-"+o.ID, "").Return(serviceerror.NewNotFound("workflow not found"))

	_, err := f.svc.StartAutoCheck(ctx, o.ID)
	require.NoError(t, err)

	o, err = f.svc.StopAutoCheck(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AutoCheckStopped, o.AutoCheck.Status)
	assert.NotNil(t, o.AutoCheck.EndedAt)

	// Finishing after a stop keeps the stopped status.
	require.NoError(t, f.svc.FinishAutoCheck(ctx, o.ID, model.AutoCheckGaveUp, 120))
	stored, err := f.repo.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AutoCheckStopped, stored.AutoCheck.Status)
}

func TestOnboardingService_StopAutoCheck_DuringInFlightCheck(t *testing.T) {
	f := newOnboardingFixture(t, model.RouteFullDomain)
	ctx := context.Background()
	o := f.configured(t, route.Selection{})

	f.tc.On("ExecuteWorkflow", mock.Anything, mock.Anything, "AutoCheckPropagationWorkflow", o.ID, mock.Anything).
		Return(&temporalmocks.WorkflowRun{}, nil).Twice()
	f.tc.On("CancelWorkflow", mock.Anything, "propagation-"+o.ID, "").Return(nil).Once()
	_, err := f.svc.StartAutoCheck(ctx, o.ID)
	require.NoError(t, err)

	// The dealer stops the checks after the tick loaded the onboarding but
	// before it saved.
	f.svc.Tracker = &interleavingTracker{PropagationChecker: f.svc.Tracker, during: func() {
		stopped, err := f.svc.StopAutoCheck(ctx, o.ID)
		require.NoError(t, err)
		require.Equal(t, model.AutoCheckStopped, stopped.AutoCheck.Status)
	}}
	f.resolver.a["abcmotors.in"] = []string{"76.76.21.21"}

	st, err := f.svc.CheckPropagation(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AutoCheckStopped, st.AutoCheck)
	assert.Equal(t, 1, st.Attempts)

	stored, err := f.repo.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AutoCheckStopped, stored.AutoCheck.Status)
	assert.Equal(t, model.StateAwaitingPropagation, stored.State)
	assert.Equal(t, 1, stored.Verification.Attempts)

	// The checks can be restarted.
	o, err = f.svc.StartAutoCheck(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AutoCheckRunning, o.AutoCheck.Status)
	f.tc.AssertNumberOfCalls(t, "ExecuteWorkflow", 2)
	f.tc.AssertExpectations(t)
}

func TestOnboardingService_CheckPropagation_ConcurrentVerification(t *testing.T) {
	f := newOnboardingFixture(t, model.RouteFullDomain)
	ctx := context.Background()
	o := f.configured(t, route.Selection{})
	f.resolver.a["abcmotors.in"] = []string{"76.76.21.21"}
	f.resolver.cname["www.abcmotors.in"] = "cname.dealersites-dns.com"
	f.resolver.txt["_dealersites-verify.abcmotors.in"] = []string{o.Verification.TXTValue()}

	// A second check completes verification while the first is resolving.
	f.svc.Tracker = &interleavingTracker{PropagationChecker: f.svc.Tracker, during: func() {
		st, err := f.svc.CheckPropagation(ctx, o.ID)
		require.NoError(t, err)
		require.True(t, st.Overall.FullyPropagated)
	}}

	st, err := f.svc.CheckPropagation(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, st.Overall.FullyPropagated)

	stored, err := f.repo.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateVerificationComplete, stored.State)
	assert.Equal(t, 1, stored.Verification.Attempts)
}

func TestOnboardingService_FinishAutoCheck_GaveUp(t *testing.T) {
	f := newOnboardingFixture(t, model.RouteFullDomain)
	ctx := context.Background()
	o := f.configured(t, route.Selection{})
	f.tc.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&temporalmocks.WorkflowRun{}, nil)
	_, err := f.svc.StartAutoCheck(ctx, o.ID)
	require.NoError(t, err)

	require.NoError(t, f.svc.FinishAutoCheck(ctx, o.ID, model.AutoCheckGaveUp, 120))

	stored, err := f.repo.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AutoCheckGaveUp, stored.AutoCheck.Status)
	last := stored.TestResults[len(stored.TestResults)-1]
	assert.False(t, last.Passed)
	assert.Contains(t, last.Detail, "120 attempts")
}

// ---------- Deployment ----------

func verifiedOnboarding(t *testing.T, f *onboardingFixture) *model.DomainOnboarding {
	t.Helper()
	o := f.configured(t, route.Selection{})
	f.resolver.a["abcmotors.in"] = []string{"76.76.21.21"}
	f.resolver.cname["www.abcmotors.in"] = "cname.dealersites-dns.com"
	f.resolver.txt["_dealersites-verify.abcmotors.in"] = []string{o.Verification.TXTValue()}
	st, err := f.svc.CheckPropagation(context.Background(), o.ID)
	require.NoError(t, err)
	require.True(t, st.Overall.FullyPropagated)
	return o
}

func TestOnboardingService_StartDeploy_RequiresVerification(t *testing.T) {
	f := newOnboardingFixture(t, model.RouteFullDomain)
	o := f.configured(t, route.Selection{})

	_, err := f.svc.StartDeploy(context.Background(), o.ID, "main")
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrIllegalTransition)
	assert.Empty(t, f.tc.Calls)
}

func TestOnboardingService_DeploymentLifecycle(t *testing.T) {
	f := newOnboardingFixture(t, model.RouteFullDomain)
	ctx := context.Background()
	o := verifiedOnboarding(t, f)

	f.tc.On("ExecuteWorkflow", mock.Anything, mock.MatchedBy(func(opts temporalclient.StartWorkflowOptions) bool {
		return opts.ID == "deploy-"+o.ID
	}), "DeploySiteWorkflow", o.ID, "main").Return(&temporalmocks.WorkflowRun{}, nil)

	wfID, err := f.svc.StartDeploy(ctx, o.ID, "main")
	require.NoError(t, err)
	assert.Equal(t, "deploy-"+o.ID, wfID)

	target, err := f.svc.BeginDeployment(ctx, o.ID, wfID)
	require.NoError(t, err)
	assert.Equal(t, "abcmotors.in", target.Host)
	assert.Equal(t, testDealer.Slug, target.Slug)
	assert.Equal(t, testDealer.Email, target.Email)

	// A retried activity finds the onboarding already deploying.
	_, err = f.svc.BeginDeployment(ctx, o.ID, wfID)
	require.NoError(t, err)

	require.NoError(t, f.svc.RecordDeployment(ctx, o.ID, model.DeploymentInfo{
		ProjectID:    "prj_1",
		ProjectName:  "dealer-abc-motors",
		DeploymentID: "dpl_1",
		State:        model.DeploymentReady,
		URL:          "https://dealer-abc-motors.example.app",
	}))
	require.NoError(t, f.svc.MarkSSLProvisioning(ctx, o.ID))

	expires := time.Now().Add(89 * 24 * time.Hour)
	o, err = f.svc.MarkLive(ctx, o.ID, model.SSLCertificate{Status: model.SSLActive, Issuer: "R11", ExpiresAt: &expires})
	require.NoError(t, err)
	assert.Equal(t, model.StateLive, o.State)
	assert.Equal(t, wfID, o.Deployment.WorkflowID)
	assert.Equal(t, "dpl_1", o.Deployment.DeploymentID)
	assert.NotNil(t, o.Deployment.FinishedAt)
	assert.Equal(t, model.SSLActive, o.SSL.Status)

	// Failing a live onboarding is a no-op.
	o, err = f.svc.Fail(ctx, o.ID, "deployment", "late failure")
	require.NoError(t, err)
	assert.Equal(t, model.StateLive, o.State)
	assert.Nil(t, o.FailureReason)
}

func TestOnboardingService_Fail_RecordsReason(t *testing.T) {
	f := newOnboardingFixture(t, model.RouteFullDomain)
	ctx := context.Background()
	o := verifiedOnboarding(t, f)
	_, err := f.svc.BeginDeployment(ctx, o.ID, "deploy-"+o.ID)
	require.NoError(t, err)

	o, err = f.svc.Fail(ctx, o.ID, "deployment", "Build failed: missing env var")
	require.NoError(t, err)
	assert.Equal(t, model.StateFailed, o.State)
	require.NotNil(t, o.FailureReason)
	assert.Equal(t, "Build failed: missing env var", *o.FailureReason)
	last := o.TestResults[len(o.TestResults)-1]
	assert.Equal(t, "deployment", last.Name)
	assert.False(t, last.Passed)
}
