package core

import (
	"context"
	"time"

	temporalclient "go.temporal.io/sdk/client"

	"github.com/rs/zerolog"

	"github.com/edvin/dealersites/internal/cdn"
	"github.com/edvin/dealersites/internal/certcheck"
	"github.com/edvin/dealersites/internal/dnsconfig"
	"github.com/edvin/dealersites/internal/notify"
	"github.com/edvin/dealersites/internal/propagation"
	"github.com/edvin/dealersites/internal/rdap"
	"github.com/edvin/dealersites/internal/registrar"
)

// TaskQueue is the Temporal task queue the worker polls.
const TaskQueue = "dealersites-tasks"

// Notifier sends a notification without failing the caller.
type Notifier interface {
	Notify(ctx context.Context, recipient string, p notify.Params)
}

// Deps are the collaborators the services are built from. Zones, Binder,
// Registrar and RDAP are optional.
type Deps struct {
	DB                 DB
	Temporal           temporalclient.Client
	Analyzer           Analyzer
	Generator          *dnsconfig.Generator
	Tracker            PropagationChecker
	Zones              cdn.ZoneManager
	Binder             DomainBinder
	Registrar          *registrar.Service
	RDAP               *rdap.Client
	Certs              certcheck.Checker
	Notifier           Notifier
	Logger             zerolog.Logger
	PlatformDomain     string
	CNAMETarget        string
	VerificationSecret []byte
	Backoff            propagation.Backoff
}

type Services struct {
	Dealer       *DealerService
	Domain       *DomainService
	Onboarding   *OnboardingService
	Registration *RegistrationService
	Monitor      *MonitorService
}

func NewServices(d Deps) *Services {
	dealers := NewDealerService(d.DB)
	domains := NewDomainService(d.DB, dealers, d.Notifier, d.PlatformDomain)
	onboarding := NewOnboardingService(OnboardingConfig{
		Store:              NewOnboardingStore(d.DB),
		Dealers:            dealers,
		Analyzer:           d.Analyzer,
		Generator:          d.Generator,
		Tracker:            d.Tracker,
		Zones:              d.Zones,
		Binder:             d.Binder,
		Notifier:           d.Notifier,
		Temporal:           d.Temporal,
		CNAMETarget:        d.CNAMETarget,
		VerificationSecret: d.VerificationSecret,
		Backoff:            d.Backoff,
	})
	// A nil *registrar.Service must not become a non-nil Renewer.
	var renewer Renewer
	if d.Registrar != nil {
		renewer = d.Registrar
	}
	var lookup RegistrationLookup
	if d.RDAP != nil {
		lookup = d.RDAP
	}
	return &Services{
		Dealer:       dealers,
		Domain:       domains,
		Onboarding:   onboarding,
		Registration: NewRegistrationService(d.Registrar, dealers, domains, onboarding, d.Logger),
		Monitor:      NewMonitorService(domains, dealers, d.Certs, renewer, lookup, d.Notifier, d.Logger),
	}
}

func utcNow() time.Time { return time.Now().UTC() }
