// Package app builds the service graph shared by the API server and the
// worker from configuration.
package app

import (
	"fmt"
	"net"

	"github.com/rs/zerolog"
	temporalclient "go.temporal.io/sdk/client"

	"github.com/edvin/dealersites/internal/archive"
	"github.com/edvin/dealersites/internal/cdn"
	"github.com/edvin/dealersites/internal/certcheck"
	"github.com/edvin/dealersites/internal/config"
	"github.com/edvin/dealersites/internal/core"
	"github.com/edvin/dealersites/internal/deploy"
	"github.com/edvin/dealersites/internal/dnsanalysis"
	"github.com/edvin/dealersites/internal/dnsconfig"
	"github.com/edvin/dealersites/internal/hosting"
	"github.com/edvin/dealersites/internal/logging"
	"github.com/edvin/dealersites/internal/notify"
	"github.com/edvin/dealersites/internal/propagation"
	"github.com/edvin/dealersites/internal/rdap"
	"github.com/edvin/dealersites/internal/registrar"
)

// App holds the services and the external clients they were built from.
// Orchestrator, Registrar and RDAP are nil when their APIs are not configured.
type App struct {
	Services     *core.Services
	Orchestrator *deploy.Orchestrator
	Registrar    *registrar.Service
	RDAP         *rdap.Client
	Certs        certcheck.Checker
	Notifier     *notify.Notifier
	Archiver     archive.Archiver
}

// New wires the services. db and tc are owned by the caller.
func New(cfg *config.Config, db core.DB, tc temporalclient.Client, logger zerolog.Logger) (*App, error) {
	generator, err := dnsconfig.NewGenerator(dnsconfig.Targets{
		ApexIP:      cfg.HostingApexIP,
		CNAMETarget: cfg.HostingCNAMETarget,
	})
	if err != nil {
		return nil, fmt.Errorf("dns config generator: %w", err)
	}

	m, err := mailer(cfg, logger)
	if err != nil {
		return nil, err
	}
	notifier, err := notify.NewNotifier(m, cfg.MailFrom, logging.Component(logger, "notify"))
	if err != nil {
		return nil, fmt.Errorf("notifier: %w", err)
	}

	a := &App{
		Certs:    certcheck.NewTLSChecker(cfg.SiteCheckTimeout),
		Notifier: notifier,
		Archiver: archive.Nop{},
	}

	deps := core.Deps{
		DB:       db,
		Temporal: tc,
		Analyzer: dnsanalysis.NewAnalyzer(
			net.DefaultResolver,
			dnsanalysis.NewHTTPSiteChecker(cfg.SiteCheckTimeout),
			dnsanalysis.DefaultProviders(),
			cfg.ExternalCallTimeout,
			cfg.SiteCheckTimeout,
			logging.Component(logger, "dnsanalysis"),
		),
		Generator:          generator,
		Tracker:            propagation.NewTracker(net.DefaultResolver, cfg.ExternalCallTimeout, logging.Component(logger, "propagation")),
		Certs:              a.Certs,
		Notifier:           notifier,
		Logger:             logger,
		PlatformDomain:     cfg.PlatformDomain,
		CNAMETarget:        cfg.HostingCNAMETarget,
		VerificationSecret: []byte(cfg.VerificationSecret),
		Backoff: propagation.Backoff{
			Initial:     cfg.PropagationInterval,
			Max:         cfg.PropagationMaxInterval,
			Multiplier:  propagation.DefaultBackoff().Multiplier,
			MaxAttempts: cfg.PropagationMaxAttempts,
		},
	}

	// Interface fields stay nil rather than holding typed nil pointers.
	if cfg.HostingAPIURL != "" {
		client := hosting.NewClient(cfg.HostingAPIURL, cfg.HostingAPIToken, cfg.HostingTeamID, cfg.ExternalCallTimeout)
		a.Orchestrator = deploy.NewOrchestrator(client, deploy.Settings{
			Repository:    cfg.SiteRepository,
			DefaultBranch: cfg.SiteDefaultBranch,
			DatabaseURL:   cfg.SiteDatabaseURL,
			PublicKey:     cfg.SitePublicKey,
		}, logging.Component(logger, "deploy"))
		deps.Binder = a.Orchestrator
	}
	if cfg.CDNEnabled() {
		deps.Zones = cdn.NewClient(cfg.CDNAPIURL, cfg.CDNAPIToken, cfg.CDNAccountID, cfg.ExternalCallTimeout)
	}
	if cfg.RegistrarAPIURL != "" {
		client := registrar.NewHTTPClient(cfg.RegistrarAPIURL, cfg.RegistrarAPIKey, cfg.RegistrarRatePerSec, cfg.ExternalCallTimeout)
		a.Registrar = registrar.NewService(client, cfg.CandidateTLDs, logging.Component(logger, "registrar"))
		deps.Registrar = a.Registrar
	}
	if cfg.RDAPBaseURL != "" {
		a.RDAP = rdap.NewClient(cfg.RDAPBaseURL, float64(cfg.RDAPRatePerSec), cfg.ExternalCallTimeout)
		deps.RDAP = a.RDAP
	}
	if cfg.ArchiveEnabled() {
		a.Archiver = archive.NewS3Archiver(cfg.ArchiveS3Endpoint, cfg.ArchiveS3Region,
			cfg.ArchiveS3AccessKey, cfg.ArchiveS3SecretKey, cfg.ArchiveS3Bucket, logging.Component(logger, "archive"))
	}

	a.Services = core.NewServices(deps)
	return a, nil
}

func mailer(cfg *config.Config, logger zerolog.Logger) (notify.Mailer, error) {
	if cfg.SMTPAddr == "" {
		return notify.LogMailer{Logger: logging.Component(logger, "mail")}, nil
	}
	mode, err := notify.ParseTLSMode(cfg.SMTPTLS)
	if err != nil {
		return nil, fmt.Errorf("SMTP_TLS: %w", err)
	}
	m := notify.NewSMTPMailer(cfg.SMTPAddr, cfg.SMTPUsername, cfg.SMTPPassword, cfg.ExternalCallTimeout)
	m.TLS = mode
	return m, nil
}
