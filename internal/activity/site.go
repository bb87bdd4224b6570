package activity

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"go.temporal.io/sdk/temporal"

	"github.com/edvin/dealersites/internal/certcheck"
	"github.com/edvin/dealersites/internal/core"
	"github.com/edvin/dealersites/internal/model"
	"github.com/edvin/dealersites/internal/notify"
)

// DomainActivator writes the live Domain row for a deployed site.
type DomainActivator interface {
	Activate(ctx context.Context, dealerID, slug, host, registrar string, ssl model.SSLStatus, sslExpiresAt *time.Time) (*model.Domain, error)
}

// RouteInvalidator drops cached host to slug mappings.
type RouteInvalidator interface {
	Invalidate(ctx context.Context, hosts ...string) error
}

// Site contains the activities that make a deployed site reachable:
// certificate checks, the Domain row, the dealer notification and routing.
type Site struct {
	certs    certcheck.Checker
	domains  DomainActivator
	notifier core.Notifier
	routes   RouteInvalidator
	logger   zerolog.Logger
}

// NewSite creates a new Site activity struct. routes may be nil when no
// shared route cache is configured.
func NewSite(certs certcheck.Checker, domains DomainActivator, notifier core.Notifier, routes RouteInvalidator, logger zerolog.Logger) *Site {
	return &Site{
		certs:    certs,
		domains:  domains,
		notifier: notifier,
		routes:   routes,
		logger:   logger.With().Str("component", "site-activity").Logger(),
	}
}

// CheckCertificate reports the certificate currently served for host.
func (a *Site) CheckCertificate(ctx context.Context, host string) (*certcheck.Certificate, error) {
	return a.certs.Check(ctx, host)
}

// ActivateDomain records host as the dealer's live primary domain.
func (a *Site) ActivateDomain(ctx context.Context, params ActivateDomainParams) (*model.Domain, error) {
	d, err := a.domains.Activate(ctx, params.DealerID, params.Slug, params.Host, params.Registrar, params.SSLStatus, params.SSLExpiresAt)
	if errors.Is(err, core.ErrConflict) {
		return nil, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeDomainTaken, err)
	}
	if err != nil {
		return nil, classify(err)
	}
	return d, nil
}

// SendDomainVerified tells the dealer their domain now serves the site.
func (a *Site) SendDomainVerified(ctx context.Context, params SendDomainVerifiedParams) error {
	a.notifier.Notify(ctx, params.Email, notify.DomainVerified{Domain: params.Domain})
	return nil
}

// InvalidateRoutes removes hosts from the shared route cache. Failures are
// logged; entries expire on their own.
func (a *Site) InvalidateRoutes(ctx context.Context, hosts []string) error {
	if a.routes == nil || len(hosts) == 0 {
		return nil
	}
	if err := a.routes.Invalidate(ctx, hosts...); err != nil {
		a.logger.Warn().Err(err).Strs("hosts", hosts).Msg("route cache invalidation failed")
	}
	return nil
}
