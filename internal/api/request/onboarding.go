package request

import (
	"github.com/edvin/dealersites/internal/model"
	"github.com/edvin/dealersites/internal/registrar"
)

type CreateDealer struct {
	Name  string `json:"name" validate:"required,max=200"`
	City  string `json:"city" validate:"max=100"`
	Email string `json:"email" validate:"required,email"`
}

type CreateOnboarding struct {
	Domain string `json:"domain" validate:"required,max=253,domain_name"`
}

// SelectRoute overrides the recommended route. Both fields are optional.
type SelectRoute struct {
	Route         model.Route `json:"route" validate:"omitempty,oneof=full_domain subdomain"`
	SubdomainName string      `json:"subdomain_name" validate:"omitempty,subdomain_label"`
}

type StartDeploy struct {
	Ref string `json:"ref" validate:"omitempty,max=255"`
}

type RegisterDomain struct {
	DealerID     string            `json:"dealer_id" validate:"required"`
	Domain       string            `json:"domain" validate:"required,max=253,domain_name"`
	Contact      registrar.Contact `json:"contact" validate:"required"`
	OnboardingID string            `json:"onboarding_id"`
}
