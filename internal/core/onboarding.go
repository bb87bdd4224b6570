package core

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"go.temporal.io/api/serviceerror"
	temporalclient "go.temporal.io/sdk/client"

	"github.com/edvin/dealersites/internal/cdn"
	"github.com/edvin/dealersites/internal/deploy"
	"github.com/edvin/dealersites/internal/dnsanalysis"
	"github.com/edvin/dealersites/internal/dnsconfig"
	"github.com/edvin/dealersites/internal/hosting"
	"github.com/edvin/dealersites/internal/model"
	"github.com/edvin/dealersites/internal/notify"
	"github.com/edvin/dealersites/internal/platform"
	"github.com/edvin/dealersites/internal/propagation"
	"github.com/edvin/dealersites/internal/route"
)

type Analyzer interface {
	Analyze(ctx context.Context, domain string) dnsanalysis.Result
}

type PropagationChecker interface {
	Check(ctx context.Context, expected []propagation.Expectation, prior map[string]model.RecordStatus, now time.Time) map[string]model.RecordStatus
}

// DomainBinder attaches a domain to the dealer's hosting project ahead of
// DNS setup so the provider's own CNAME target can be published.
type DomainBinder interface {
	EnsureProject(ctx context.Context, slug string) (*hosting.Project, error)
	AttachDomain(ctx context.Context, projectID, domain string) (*hosting.DomainVerification, error)
}

// OnboardingRepository persists onboardings and their propagation evidence.
// *OnboardingStore is the Postgres implementation.
type OnboardingRepository interface {
	Create(ctx context.Context, o *model.DomainOnboarding) error
	Get(ctx context.Context, id string) (*model.DomainOnboarding, error)
	Save(ctx context.Context, o *model.DomainOnboarding, from model.OnboardingState) error
	PropagationRecords(ctx context.Context, onboardingID string) (map[string]model.RecordStatus, time.Time, error)
	SavePropagation(ctx context.Context, onboardingID string, records map[string]model.RecordStatus, at time.Time) error
	ResetPropagation(ctx context.Context, onboardingID string) error
}

type OnboardingConfig struct {
	Store              OnboardingRepository
	Dealers            *DealerService
	Analyzer           Analyzer
	Generator          *dnsconfig.Generator
	Tracker            PropagationChecker
	Zones              cdn.ZoneManager
	Binder             DomainBinder
	Notifier           Notifier
	Temporal           temporalclient.Client
	CNAMETarget        string
	VerificationSecret []byte
	Backoff            propagation.Backoff
}

// OnboardingService drives a DomainOnboarding through its states. Each
// method loads the aggregate, applies one transition and saves it
// conditionally on the state it was loaded in.
type OnboardingService struct {
	OnboardingConfig
	now func() time.Time
}

func NewOnboardingService(cfg OnboardingConfig) *OnboardingService {
	return &OnboardingService{OnboardingConfig: cfg, now: utcNow}
}

// maxSaveAttempts bounds how often update reloads after losing a save race.
const maxSaveAttempts = 5

// errUnchanged tells update that fn found nothing to write.
var errUnchanged = errors.New("onboarding unchanged")

// update loads the onboarding, applies fn and saves the result. When a
// concurrent writer saved first it reloads and applies fn again, so fn must
// only mutate o.
func (s *OnboardingService) update(ctx context.Context, id string, fn func(o *model.DomainOnboarding) error) (*model.DomainOnboarding, error) {
	for attempt := 1; ; attempt++ {
		o, err := s.Store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		from := o.State
		if err := fn(o); err != nil {
			if errors.Is(err, errUnchanged) {
				return o, nil
			}
			return nil, err
		}
		err = s.Store.Save(ctx, o, from)
		if err == nil {
			return o, nil
		}
		if !errors.Is(err, ErrConflict) || attempt == maxSaveAttempts {
			return nil, err
		}
	}
}

func AutoCheckWorkflowID(onboardingID string) string { return "propagation-" + onboardingID }
func DeployWorkflowID(onboardingID string) string    { return "deploy-" + onboardingID }

func (s *OnboardingService) Get(ctx context.Context, id string) (*model.DomainOnboarding, error) {
	return s.Store.Get(ctx, id)
}

// Create starts an onboarding for domain and runs the first DNS analysis.
func (s *OnboardingService) Create(ctx context.Context, dealerID, domain string) (*model.DomainOnboarding, error) {
	d, err := platform.NormalizeDomain(domain)
	if err != nil {
		return nil, err
	}
	if _, err := s.Dealers.GetByID(ctx, dealerID); err != nil {
		return nil, err
	}

	id := platform.NewID()
	token, err := platform.VerificationToken(s.VerificationSecret, id)
	if err != nil {
		return nil, fmt.Errorf("derive verification token: %w", err)
	}
	now := s.now()
	o := &model.DomainOnboarding{
		ID:          id,
		DealerID:    dealerID,
		Domain:      d,
		AccessLevel: model.AccessUnknown,
		Verification: model.DomainVerification{
			Method: "txt",
			Token:  token,
			Status: model.VerificationPending,
		},
		AutoCheck:   model.AutoCheck{Status: model.AutoCheckIdle},
		State:       model.StatePending,
		TestResults: []model.TestResult{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.Store.Create(ctx, o); err != nil {
		return nil, err
	}
	return s.analyze(ctx, o)
}

// Analyze captures a fresh DNS snapshot and recommendation. Any previous
// route choice is discarded.
func (s *OnboardingService) Analyze(ctx context.Context, id string) (*model.DomainOnboarding, error) {
	o, err := s.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.analyze(ctx, o)
}

func (s *OnboardingService) analyze(ctx context.Context, o *model.DomainOnboarding) (*model.DomainOnboarding, error) {
	from := o.State
	if err := model.ValidateTransition(from, model.StateDNSAnalyzed); err != nil {
		return nil, err
	}

	res := s.Analyzer.Analyze(ctx, o.Domain)
	o.Analysis = &res.Analysis
	o.Recommendation = &res.Recommendation
	o.Registrar = res.Analysis.Registrar
	o.Configuration = nil
	if o.AccessLevel == model.AccessUnknown {
		o.AccessLevel = model.AccessDNS
	}
	if err := o.Transition(model.StateDNSAnalyzed); err != nil {
		return nil, err
	}
	o.Record("dns_analysis", true, analysisDetail(res), s.now())

	if err := s.Store.Save(ctx, o, from); err != nil {
		return nil, err
	}
	return o, nil
}

func analysisDetail(res dnsanalysis.Result) string {
	var errored []string
	for kind, st := range res.Analysis.Lookups {
		if st.Outcome == model.LookupErrored {
			errored = append(errored, kind)
		}
	}
	detail := "recommended " + string(res.Recommendation.Route)
	if len(errored) > 0 {
		sort.Strings(errored)
		detail += "; lookups failed: " + strings.Join(errored, ", ")
	}
	return detail
}

// SelectRoute applies the dealer's route choice, or the recommendation when
// sel is empty.
func (s *OnboardingService) SelectRoute(ctx context.Context, id string, sel route.Selection) (*model.DomainOnboarding, error) {
	o, err := s.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	from := o.State
	if err := model.ValidateTransition(from, model.StateRouteSelected); err != nil {
		return nil, err
	}
	if o.Recommendation == nil {
		return nil, fmt.Errorf("onboarding %s has no recommendation: %w", id, ErrConflict)
	}

	cfg, err := route.Select(*o.Recommendation, sel)
	if err != nil {
		return nil, err
	}
	if o.AutoCheck.Status == model.AutoCheckRunning {
		if err := s.cancelAutoCheck(ctx, o); err != nil {
			return nil, err
		}
	}
	o.Configuration = &cfg
	if err := o.Transition(model.StateRouteSelected); err != nil {
		return nil, err
	}
	detail := "route " + string(cfg.Route)
	if cfg.SubdomainName != "" {
		detail += " (" + cfg.SubdomainName + ")"
	}
	o.Record("route_selection", true, detail, s.now())

	if err := s.Store.Save(ctx, o, from); err != nil {
		return nil, err
	}
	return o, nil
}

// Configure generates the DNS instructions for the selected route, binding
// the domain at the hosting provider and the CDN first when configured.
func (s *OnboardingService) Configure(ctx context.Context, id string) (*dnsconfig.Instructions, *model.DomainOnboarding, error) {
	o, err := s.Store.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	from := o.State
	if err := model.ValidateTransition(from, model.StateConfigurationGenerated); err != nil {
		return nil, nil, err
	}
	dealer, err := s.Dealers.GetByID(ctx, o.DealerID)
	if err != nil {
		return nil, nil, err
	}

	prevRecords := o.Configuration.Records
	cfg := *o.Configuration
	host := o.TargetHost()

	if s.Binder != nil {
		project, err := s.Binder.EnsureProject(ctx, dealer.Slug)
		if err != nil {
			return nil, nil, err
		}
		v, err := s.Binder.AttachDomain(ctx, project.ID, host)
		if err != nil {
			return nil, nil, err
		}
		cfg.ProviderRecords = deploy.ProviderRecords(host, v)
	}

	if cfg.Route == model.RouteSubdomain && s.Zones != nil {
		zone, err := s.Zones.EnsureZone(ctx, o.Domain)
		if err != nil {
			return nil, nil, fmt.Errorf("ensure cdn zone for %s: %w", o.Domain, err)
		}
		_, err = s.Zones.EnsureRecord(ctx, zone.ID, cdn.Record{
			Type:    "CNAME",
			Name:    host,
			Content: s.cnameTarget(cfg.ProviderRecords),
			TTL:     1,
			Proxied: true,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("ensure cdn record for %s: %w", host, err)
		}
		cfg.CDNZoneID = zone.ID
		cfg.AssignedNameservers = zone.NameServers
	}

	o.Configuration = &cfg
	ins, err := s.Generator.Generate(o)
	if err != nil {
		return nil, nil, err
	}
	now := s.now()
	cfg.Records = ins.Records
	cfg.GeneratedAt = &now

	if !slices.Equal(prevRecords, cfg.Records) {
		if err := s.Store.ResetPropagation(ctx, id); err != nil {
			return nil, nil, err
		}
	}
	if err := o.Transition(model.StateConfigurationGenerated); err != nil {
		return nil, nil, err
	}
	o.Record("configuration", true, fmt.Sprintf("%d records for %s", len(ins.Records), host), now)
	if err := s.Store.Save(ctx, o, from); err != nil {
		return nil, nil, err
	}

	s.Notifier.Notify(ctx, dealer.Email, notify.DNSInstructions{
		Domain:        host,
		Registrar:     ins.Registrar,
		Records:       ins.Records,
		Nameservers:   ins.Nameservers,
		Steps:         ins.Steps,
		RegistrarHelp: ins.RegistrarHelp,
	})
	return &ins, o, nil
}

func (s *OnboardingService) cnameTarget(provider []model.DNSRecord) string {
	for _, r := range provider {
		if r.Type == "CNAME" && r.Value != "" {
			return r.Value
		}
	}
	return s.CNAMETarget
}

// CheckPropagation resolves every expected record once and records the
// evidence. Full propagation completes verification for the route. Only the
// verification fields and state are written back, so a concurrent stop of
// the automatic checks is preserved.
func (s *OnboardingService) CheckPropagation(ctx context.Context, id string) (model.PropagationStatus, error) {
	o, err := s.Store.Get(ctx, id)
	if err != nil {
		return model.PropagationStatus{}, err
	}
	switch o.State {
	case model.StateConfigurationGenerated, model.StateAwaitingPropagation:
	case model.StateVerificationComplete, model.StateConfigurationComplete, model.StateDeploying,
		model.StateSSLProvisioning, model.StateLive:
		return s.status(ctx, o)
	default:
		return model.PropagationStatus{}, &model.TransitionError{From: o.State, To: model.StateAwaitingPropagation}
	}

	prior, first, err := s.Store.PropagationRecords(ctx, id)
	if err != nil {
		return model.PropagationStatus{}, err
	}
	now := s.now()
	records := s.Tracker.Check(ctx, propagation.Expectations(o.Domain, o.Configuration.Records), prior, now)
	if err := s.Store.SavePropagation(ctx, id, records, now); err != nil {
		return model.PropagationStatus{}, err
	}
	if first.IsZero() {
		first = now
	}

	var st model.PropagationStatus
	applied := false
	o, err = s.update(ctx, id, func(o *model.DomainOnboarding) error {
		applied = false
		if o.State != model.StateConfigurationGenerated && o.State != model.StateAwaitingPropagation {
			// Another check verified it, or the route changed meanwhile.
			return errUnchanged
		}
		if o.State == model.StateConfigurationGenerated {
			if err := o.Transition(model.StateAwaitingPropagation); err != nil {
				return err
			}
		}
		o.Verification.Attempts++
		st = propagation.Summarize(records, o.Verification.Attempts, first, now)
		if st.Overall.FullyPropagated {
			o.Verification.Status = model.VerificationVerified
			o.Verification.VerifiedAt = &now
			if err := o.Transition(model.PropagatedState(o.Configuration.Route)); err != nil {
				return err
			}
			o.Record("propagation", true,
				fmt.Sprintf("%d of %d records propagated after %d checks", st.Overall.ChecksPassed, st.Overall.TotalChecks, o.Verification.Attempts), now)
		}
		applied = true
		return nil
	})
	if err != nil {
		return model.PropagationStatus{}, err
	}
	if !applied {
		if o.Configuration == nil || len(o.Configuration.Records) == 0 {
			return model.PropagationStatus{}, &model.TransitionError{From: o.State, To: model.StateAwaitingPropagation}
		}
		return s.status(ctx, o)
	}
	st.AutoCheck = o.AutoCheck.Status
	return st, nil
}

// PropagationStatus reports the stored evidence without resolving anything.
func (s *OnboardingService) PropagationStatus(ctx context.Context, id string) (model.PropagationStatus, error) {
	o, err := s.Store.Get(ctx, id)
	if err != nil {
		return model.PropagationStatus{}, err
	}
	return s.status(ctx, o)
}

func (s *OnboardingService) status(ctx context.Context, o *model.DomainOnboarding) (model.PropagationStatus, error) {
	if o.Configuration == nil || len(o.Configuration.Records) == 0 {
		return model.PropagationStatus{}, fmt.Errorf("onboarding %s has no DNS configuration: %w", o.ID, ErrConflict)
	}
	stored, first, err := s.Store.PropagationRecords(ctx, o.ID)
	if err != nil {
		return model.PropagationStatus{}, err
	}

	records := make(map[string]model.RecordStatus)
	for _, e := range propagation.Expectations(o.Domain, o.Configuration.Records) {
		if r, ok := stored[e.Key]; ok && r.Expected == e.Value && r.Name == e.Name {
			records[e.Key] = r
			continue
		}
		records[e.Key] = model.RecordStatus{Type: e.Type, Name: e.Name, Expected: e.Value, Observed: []string{}}
	}

	st := propagation.Summarize(records, o.Verification.Attempts, first, s.now())
	if first.IsZero() {
		st.CheckedAt = nil
	}
	st.AutoCheck = o.AutoCheck.Status
	return st, nil
}

// StartAutoCheck schedules recurring propagation checks with backoff. It is
// a no-op while a run is already active.
func (s *OnboardingService) StartAutoCheck(ctx context.Context, id string) (*model.DomainOnboarding, error) {
	o, err := s.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.State != model.StateConfigurationGenerated && o.State != model.StateAwaitingPropagation {
		return nil, &model.TransitionError{From: o.State, To: model.StateAwaitingPropagation}
	}
	if o.AutoCheck.Status == model.AutoCheckRunning {
		return o, nil
	}

	workflowID := AutoCheckWorkflowID(id)
	_, err = s.Temporal.ExecuteWorkflow(ctx, temporalclient.StartWorkflowOptions{
		ID:        workflowID,
		TaskQueue: TaskQueue,
	}, "AutoCheckPropagationWorkflow", id, s.Backoff)
	if err != nil {
		return nil, fmt.Errorf("start AutoCheckPropagationWorkflow: %w", err)
	}

	now := s.now()
	return s.update(ctx, id, func(o *model.DomainOnboarding) error {
		if o.AutoCheck.Status == model.AutoCheckRunning {
			return errUnchanged
		}
		o.AutoCheck = model.AutoCheck{Status: model.AutoCheckRunning, WorkflowID: workflowID, StartedAt: &now}
		return nil
	})
}

// StopAutoCheck cancels the scheduled checks. A check already in flight
// still completes and records its result.
func (s *OnboardingService) StopAutoCheck(ctx context.Context, id string) (*model.DomainOnboarding, error) {
	o, err := s.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.AutoCheck.Status != model.AutoCheckRunning {
		return o, nil
	}
	if err := s.cancelAutoCheck(ctx, o); err != nil {
		return nil, err
	}
	stopped := o.AutoCheck
	return s.update(ctx, id, func(o *model.DomainOnboarding) error {
		if o.AutoCheck.Status != model.AutoCheckRunning || o.AutoCheck.WorkflowID != stopped.WorkflowID {
			return errUnchanged
		}
		o.AutoCheck = stopped
		return nil
	})
}

func (s *OnboardingService) cancelAutoCheck(ctx context.Context, o *model.DomainOnboarding) error {
	err := s.Temporal.CancelWorkflow(ctx, o.AutoCheck.WorkflowID, "")
	var notFound *serviceerror.NotFound
	if err != nil && !errors.As(err, &notFound) {
		return fmt.Errorf("cancel %s: %w", o.AutoCheck.WorkflowID, err)
	}
	now := s.now()
	o.AutoCheck.Status = model.AutoCheckStopped
	o.AutoCheck.EndedAt = &now
	return nil
}

// FinishAutoCheck records how a scheduled run ended: completed or gave_up.
func (s *OnboardingService) FinishAutoCheck(ctx context.Context, id string, status model.AutoCheckStatus, attempts int) error {
	now := s.now()
	_, err := s.update(ctx, id, func(o *model.DomainOnboarding) error {
		if o.AutoCheck.Status != model.AutoCheckRunning {
			return errUnchanged
		}
		o.AutoCheck.Status = status
		o.AutoCheck.EndedAt = &now
		if status == model.AutoCheckGaveUp {
			o.Record("propagation", false, fmt.Sprintf("automatic checks stopped after %d attempts", attempts), now)
		}
		return nil
	})
	return err
}

// StartDeploy launches the site deployment once DNS is verified. Starting
// twice returns the same workflow.
func (s *OnboardingService) StartDeploy(ctx context.Context, id, ref string) (string, error) {
	o, err := s.Store.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if !o.State.ReadyToDeploy() && o.State != model.StateDeploying {
		return "", &model.TransitionError{From: o.State, To: model.StateDeploying}
	}

	workflowID := DeployWorkflowID(id)
	_, err = s.Temporal.ExecuteWorkflow(ctx, temporalclient.StartWorkflowOptions{
		ID:        workflowID,
		TaskQueue: TaskQueue,
	}, "DeploySiteWorkflow", id, ref)
	if err != nil {
		return "", fmt.Errorf("start DeploySiteWorkflow: %w", err)
	}
	return workflowID, nil
}

// DeployTarget is what the deployment workflow needs about an onboarding.
type DeployTarget struct {
	OnboardingID string
	DealerID     string
	DealerName   string
	Slug         string
	Email        string
	Host         string
	// Registrar is the registrar detected from nameservers, or "".
	Registrar string
}

// BeginDeployment moves a verified onboarding to deploying and returns the
// deployment target. Calling it again while deploying is harmless.
func (s *OnboardingService) BeginDeployment(ctx context.Context, id, workflowID string) (*DeployTarget, error) {
	now := s.now()
	o, err := s.update(ctx, id, func(o *model.DomainOnboarding) error {
		if o.State == model.StateDeploying {
			return errUnchanged
		}
		if err := o.Transition(model.StateDeploying); err != nil {
			return err
		}
		o.Deployment = &model.DeploymentInfo{WorkflowID: workflowID, StartedAt: &now}
		o.Record("deployment", true, "deployment started", now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	dealer, err := s.Dealers.GetByID(ctx, o.DealerID)
	if err != nil {
		return nil, err
	}
	return &DeployTarget{
		OnboardingID: o.ID,
		DealerID:     o.DealerID,
		DealerName:   dealer.Name,
		Slug:         dealer.Slug,
		Email:        dealer.Email,
		Host:         o.TargetHost(),
		Registrar:    knownRegistrar(o.Registrar),
	}, nil
}

func knownRegistrar(name string) string {
	if name == dnsanalysis.RegistrarOther {
		return ""
	}
	return name
}

// RecordDeployment merges provider-side progress into the onboarding.
func (s *OnboardingService) RecordDeployment(ctx context.Context, id string, info model.DeploymentInfo) error {
	now := s.now()
	_, err := s.update(ctx, id, func(o *model.DomainOnboarding) error {
		d := o.Deployment
		if d == nil {
			d = &model.DeploymentInfo{}
		}
		if info.ProjectID != "" {
			d.ProjectID, d.ProjectName = info.ProjectID, info.ProjectName
		}
		if info.DeploymentID != "" {
			d.DeploymentID = info.DeploymentID
		}
		if info.State != "" {
			d.State = info.State
		}
		if info.URL != "" {
			d.URL = info.URL
		}
		if info.Error != "" {
			d.Error = info.Error
		}
		if info.State.Done() {
			d.FinishedAt = &now
		}
		o.Deployment = d
		return nil
	})
	return err
}

// MarkSSLProvisioning records that the site is deployed and waiting for its
// certificate.
func (s *OnboardingService) MarkSSLProvisioning(ctx context.Context, id string) error {
	now := s.now()
	_, err := s.update(ctx, id, func(o *model.DomainOnboarding) error {
		if o.State == model.StateSSLProvisioning {
			return errUnchanged
		}
		if err := o.Transition(model.StateSSLProvisioning); err != nil {
			return err
		}
		o.SSL = &model.SSLCertificate{Status: model.SSLProvisioning, CheckedAt: &now}
		o.Record("deployment", true, "site deployed, waiting for certificate", now)
		return nil
	})
	return err
}

// MarkLive completes the onboarding.
func (s *OnboardingService) MarkLive(ctx context.Context, id string, ssl model.SSLCertificate) (*model.DomainOnboarding, error) {
	now := s.now()
	return s.update(ctx, id, func(o *model.DomainOnboarding) error {
		if o.State == model.StateLive {
			return errUnchanged
		}
		if err := o.Transition(model.StateLive); err != nil {
			return err
		}
		cert := ssl
		cert.CheckedAt = &now
		o.SSL = &cert
		o.Record("ssl", cert.Status == model.SSLActive, "certificate "+string(cert.Status), now)
		return nil
	})
}

// Fail moves the onboarding to failed with the upstream reason. A terminal
// onboarding is returned unchanged.
func (s *OnboardingService) Fail(ctx context.Context, id, stage, reason string) (*model.DomainOnboarding, error) {
	now := s.now()
	return s.update(ctx, id, func(o *model.DomainOnboarding) error {
		if o.State.Terminal() {
			return errUnchanged
		}
		if err := o.Transition(model.StateFailed); err != nil {
			return err
		}
		r := reason
		o.FailureReason = &r
		o.Record(stage, false, reason, now)
		return nil
	})
}

// MarkManaged records that the platform registered the onboarding's domain.
func (s *OnboardingService) MarkManaged(ctx context.Context, id, registrarName string) error {
	now := s.now()
	_, err := s.update(ctx, id, func(o *model.DomainOnboarding) error {
		o.AccessLevel = model.AccessManaged
		if registrarName != "" {
			o.Registrar = registrarName
		}
		o.Record("registration", true, "domain registered by the platform", now)
		return nil
	})
	return err
}
