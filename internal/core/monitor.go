package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/dealersites/internal/certcheck"
	"github.com/edvin/dealersites/internal/metrics"
	"github.com/edvin/dealersites/internal/model"
	"github.com/edvin/dealersites/internal/notify"
	"github.com/edvin/dealersites/internal/rdap"
	"github.com/edvin/dealersites/internal/registrar"
)

// Monitor outcomes, also used as metric labels.
const (
	OutcomeUnchanged = "unchanged"
	OutcomeUpdated   = "updated"
	OutcomeRenewed   = "renewed"
	OutcomeWarned    = "warned"
	OutcomeExpired   = "expired"
	OutcomeSkipped   = "skipped"
	OutcomeError     = "error"
)

const (
	renewalWindowDays = 30
	registrationTerm  = 365 * 24 * time.Hour
)

// expiryCheckpoints are the days-left thresholds that trigger a warning
// email, smallest first. Each is sent once per registration expiry.
var expiryCheckpoints = []int{7, 30}

type Renewer interface {
	Renew(ctx context.Context, domain string, years int) (*registrar.Order, error)
}

// RegistrationLookup finds the current registration of a domain the
// platform did not register. *rdap.Client is the implementation.
type RegistrationLookup interface {
	Lookup(ctx context.Context, host string) (*rdap.Registration, error)
}

// MonitorService runs the per-domain checks behind the daily SSL and
// registration-expiry jobs. Every Domain write is conditional on the status
// the check started from; losing that race skips the domain.
type MonitorService struct {
	domains  *DomainService
	dealers  *DealerService
	certs    certcheck.Checker
	renewer  Renewer
	lookup   RegistrationLookup
	notifier Notifier
	logger   zerolog.Logger
	now      func() time.Time
}

// NewMonitorService creates a MonitorService. renewer may be nil when no
// registrar is configured; managed domains are then only warned about.
// lookup may be nil, leaving custom domains without expiry tracking.
func NewMonitorService(domains *DomainService, dealers *DealerService, certs certcheck.Checker, renewer Renewer, lookup RegistrationLookup, notifier Notifier, logger zerolog.Logger) *MonitorService {
	return &MonitorService{
		domains:  domains,
		dealers:  dealers,
		certs:    certs,
		renewer:  renewer,
		lookup:   lookup,
		notifier: notifier,
		logger:   logger.With().Str("component", "monitor").Logger(),
		now:      time.Now,
	}
}

func (s *MonitorService) SSLCandidates(ctx context.Context) ([]model.Domain, error) {
	return s.domains.ListSSLMonitorCandidates(ctx)
}

func (s *MonitorService) ExpiryCandidates(ctx context.Context) ([]model.Domain, error) {
	return s.domains.ListExpiryMonitorCandidates(ctx)
}

// CheckSSL inspects the certificate served for d and records its status:
// failed when invalid, renewing with under 30 days left, active otherwise.
// A connection failure leaves the domain untouched.
func (s *MonitorService) CheckSSL(ctx context.Context, d model.Domain) (string, error) {
	outcome, err := s.checkSSL(ctx, d)
	metrics.MonitorDomainsProcessed.WithLabelValues("ssl", outcome).Inc()
	return outcome, err
}

func (s *MonitorService) checkSSL(ctx context.Context, d model.Domain) (string, error) {
	cert, err := s.certs.Check(ctx, d.Domain)
	if err != nil {
		return OutcomeError, err
	}

	now := s.now()
	to := model.SSLActive
	switch {
	case !cert.Valid:
		to = model.SSLFailed
	case cert.DaysUntilExpiry(now) < renewalWindowDays:
		to = model.SSLRenewing
	}
	expiresAt := cert.NotAfter.UTC()

	if to == d.SSLStatus && d.SSLExpiresAt != nil && d.SSLExpiresAt.Equal(expiresAt) {
		return OutcomeUnchanged, nil
	}
	if err := s.domains.UpdateSSL(ctx, d.ID, d.SSLStatus, to, &expiresAt); err != nil {
		if errors.Is(err, ErrConflict) {
			return OutcomeSkipped, nil
		}
		return OutcomeError, err
	}
	s.logger.Info().Str("domain", d.Domain).Str("from", string(d.SSLStatus)).Str("to", string(to)).
		Time("expires_at", expiresAt).Msg("ssl status recorded")

	switch {
	case d.SSLStatus == model.SSLRenewing && to == model.SSLActive:
		s.notifyDealer(ctx, d.DealerID, notify.SSLRenewalResult{Domain: d.Domain, Renewed: true, ExpiresAt: expiresAt})
	case d.SSLStatus != model.SSLFailed && to == model.SSLFailed:
		s.notifyDealer(ctx, d.DealerID, notify.SSLRenewalResult{Domain: d.Domain, Reason: cert.Reason})
	}
	if to == d.SSLStatus {
		return OutcomeUnchanged, nil
	}
	return OutcomeUpdated, nil
}

// CheckExpiry handles one registration. A custom domain's expiry is first
// refreshed from RDAP. Managed domains with auto-renew are renewed inside
// the 30-day window and advanced by exactly one year. Otherwise one warning
// goes out on crossing 30 and one on crossing 7 days left, and an active
// domain whose registration has lapsed is marked expired.
func (s *MonitorService) CheckExpiry(ctx context.Context, d model.Domain) (string, error) {
	outcome, err := s.checkExpiry(ctx, d)
	metrics.MonitorDomainsProcessed.WithLabelValues("expiry", outcome).Inc()
	return outcome, err
}

func (s *MonitorService) checkExpiry(ctx context.Context, d model.Domain) (string, error) {
	d = s.RefreshRegistration(ctx, d)
	if d.RegistrationExpiresAt == nil {
		return OutcomeSkipped, nil
	}
	expiresAt := *d.RegistrationExpiresAt
	days := daysUntil(expiresAt, s.now())

	var renewErr error
	if d.Type == model.DomainTypeManaged && d.AutoRenew && days <= renewalWindowDays && s.renewer != nil {
		outcome, err := s.renew(ctx, d, expiresAt)
		if err == nil {
			return outcome, nil
		}
		renewErr = err
		s.logger.Warn().Err(err).Str("domain", d.Domain).Msg("registration renewal failed")
	}

	outcome := OutcomeUnchanged
	switch {
	case days < 0 && d.Status == model.DomainActive:
		if err := s.domains.UpdateStatus(ctx, d.ID, model.DomainActive, model.DomainExpired); err != nil {
			if errors.Is(err, ErrConflict) {
				return OutcomeSkipped, renewErr
			}
			return OutcomeError, errors.Join(renewErr, err)
		}
		outcome = OutcomeExpired
	case days >= 0:
		checkpoint, due := dueCheckpoint(days, d.ExpiryWarnedDays)
		if !due {
			break
		}
		if err := s.domains.MarkExpiryWarned(ctx, d.ID, expiresAt, d.ExpiryWarnedDays, checkpoint); err != nil {
			if errors.Is(err, ErrConflict) {
				return OutcomeSkipped, renewErr
			}
			return OutcomeError, errors.Join(renewErr, err)
		}
		s.notifyDealer(ctx, d.DealerID, notify.ExpiryWarning{
			Domain:    d.Domain,
			DaysLeft:  days,
			ExpiresAt: expiresAt,
			AutoRenew: d.AutoRenew,
		})
		outcome = OutcomeWarned
	}
	if renewErr != nil {
		return OutcomeError, renewErr
	}
	return outcome, nil
}

func (s *MonitorService) renew(ctx context.Context, d model.Domain, current time.Time) (string, error) {
	if _, err := s.renewer.Renew(ctx, d.Domain, 1); err != nil {
		return OutcomeError, err
	}
	next := current.Add(registrationTerm)
	if err := s.domains.ExtendRegistration(ctx, d.ID, current, next); err != nil {
		if errors.Is(err, ErrConflict) {
			return OutcomeSkipped, nil
		}
		return OutcomeError, fmt.Errorf("renewed %s but could not record it: %w", d.Domain, err)
	}
	s.logger.Info().Str("domain", d.Domain).Time("expires_at", next).Msg("registration renewed")
	return OutcomeRenewed, nil
}

// RefreshRegistration looks up a custom domain's registration and stores a
// changed expiry. Lookup failures keep what is stored.
func (s *MonitorService) RefreshRegistration(ctx context.Context, d model.Domain) model.Domain {
	if s.lookup == nil || d.Type != model.DomainTypeCustom {
		return d
	}
	reg, err := s.lookup.Lookup(ctx, d.Domain)
	if err != nil {
		s.logger.Warn().Err(err).Str("domain", d.Domain).Msg("registration lookup failed")
		return d
	}
	if d.RegistrationExpiresAt != nil && d.RegistrationExpiresAt.Equal(reg.ExpiresAt) {
		return d
	}
	if err := s.domains.RecordRegistration(ctx, d.ID, d.RegistrationExpiresAt, reg.Registrar, reg.ExpiresAt); err != nil {
		s.logger.Warn().Err(err).Str("domain", d.Domain).Msg("could not record registration expiry")
		return d
	}
	expiresAt := reg.ExpiresAt
	d.RegistrationExpiresAt = &expiresAt
	d.ExpiryWarnedDays = nil
	if d.Registrar == nil && reg.Registrar != "" {
		name := reg.Registrar
		d.Registrar = &name
	}
	s.logger.Info().Str("domain", d.Domain).Time("expires_at", expiresAt).Msg("registration expiry recorded")
	return d
}

// dueCheckpoint returns the smallest checkpoint at or above days, and
// whether it is still to be warned about given the last one sent.
func dueCheckpoint(days int, warned *int) (int, bool) {
	for _, c := range expiryCheckpoints {
		if days <= c {
			return c, warned == nil || c < *warned
		}
	}
	return 0, false
}

func (s *MonitorService) notifyDealer(ctx context.Context, dealerID string, p notify.Params) {
	dealer, err := s.dealers.GetByID(ctx, dealerID)
	if err != nil {
		s.logger.Warn().Err(err).Str("dealer_id", dealerID).Str("kind", string(p.Kind())).
			Msg("cannot notify dealer")
		return
	}
	s.notifier.Notify(ctx, dealer.Email, p)
}

// daysUntil counts whole days left, truncating toward zero.
func daysUntil(t, now time.Time) int {
	return int(t.Sub(now).Hours() / 24)
}
