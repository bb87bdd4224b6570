package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/dealersites/internal/model"
	"github.com/edvin/dealersites/internal/platform"
	"github.com/edvin/dealersites/internal/registrar"
)

// ErrRegistrationDisabled is returned when no registrar API is configured.
var ErrRegistrationDisabled = errors.New("domain registration is not configured")

// ManagedRegistrar is recorded as the registrar of domains the platform buys.
const ManagedRegistrar = "dealersites"

type RegistrationRequest struct {
	DealerID     string
	Domain       string
	Contact      registrar.Contact
	OnboardingID string
}

// RegistrationService purchases domains on a dealer's behalf.
type RegistrationService struct {
	registrar  *registrar.Service
	dealers    *DealerService
	domains    *DomainService
	onboarding *OnboardingService
	logger     zerolog.Logger
	now        func() time.Time
}

func NewRegistrationService(reg *registrar.Service, dealers *DealerService, domains *DomainService, onboarding *OnboardingService, logger zerolog.Logger) *RegistrationService {
	return &RegistrationService{
		registrar:  reg,
		dealers:    dealers,
		domains:    domains,
		onboarding: onboarding,
		logger:     logger,
		now:        utcNow,
	}
}

// Register buys req.Domain for one year and records it as a managed Domain
// with auto-renew on. A definitive rejection fails the linked onboarding.
func (s *RegistrationService) Register(ctx context.Context, req RegistrationRequest) (*model.Domain, *registrar.Order, error) {
	if s.registrar == nil {
		return nil, nil, ErrRegistrationDisabled
	}
	host, err := platform.NormalizeDomain(req.Domain)
	if err != nil {
		return nil, nil, err
	}
	dealer, err := s.dealers.GetByID(ctx, req.DealerID)
	if err != nil {
		return nil, nil, err
	}

	order, err := s.registrar.Register(ctx, host, req.Contact)
	if err != nil {
		if req.OnboardingID != "" && registrar.Rejected(err) {
			if _, ferr := s.onboarding.Fail(ctx, req.OnboardingID, "registration", err.Error()); ferr != nil {
				s.logger.Warn().Err(ferr).Str("onboarding_id", req.OnboardingID).Msg("failed to record registration failure")
			}
		}
		return nil, nil, err
	}

	expiresAt := order.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = s.now().AddDate(1, 0, 0)
	}
	name := ManagedRegistrar
	d := &model.Domain{
		DealerID:              dealer.ID,
		Domain:                host,
		Slug:                  dealer.Slug,
		Type:                  model.DomainTypeManaged,
		Status:                model.DomainPending,
		SSLStatus:             model.SSLPending,
		Registrar:             &name,
		RegistrationExpiresAt: &expiresAt,
		AutoRenew:             true,
	}
	if err := s.domains.Create(ctx, d); err != nil {
		return nil, order, fmt.Errorf("record registered domain %s (order %s): %w", host, order.OrderID, err)
	}

	if req.OnboardingID != "" {
		if err := s.onboarding.MarkManaged(ctx, req.OnboardingID, ManagedRegistrar); err != nil {
			s.logger.Warn().Err(err).Str("onboarding_id", req.OnboardingID).Msg("failed to mark onboarding managed")
		}
	}
	return d, order, nil
}
