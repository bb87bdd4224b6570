// Package route turns a route recommendation and an optional dealer override
// into a validated route choice.
package route

import (
	"errors"
	"fmt"

	"github.com/edvin/dealersites/internal/model"
	"github.com/edvin/dealersites/internal/platform"
)

var ErrInvalidRoute = errors.New("invalid route")

// Selection is the dealer's input to the route step. Both fields are optional.
type Selection struct {
	Route         model.Route `json:"route,omitempty"`
	SubdomainName string      `json:"subdomain_name,omitempty"`
}

// DefaultSubdomain is suggested when the dealer picks the subdomain route
// without naming a label.
const DefaultSubdomain = "cars"

// Select resolves the effective route. An override wins over the
// recommendation; a subdomain route must carry a valid label.
func Select(rec model.RouteRecommendation, sel Selection) (model.DomainConfiguration, error) {
	route := rec.Route
	if sel.Route != "" {
		if !sel.Route.Valid() {
			return model.DomainConfiguration{}, &platform.ValidationError{
				Field:  "route",
				Value:  string(sel.Route),
				Reason: fmt.Sprintf("must be %q or %q", model.RouteFullDomain, model.RouteSubdomain),
				Err:    ErrInvalidRoute,
			}
		}
		route = sel.Route
	}
	if route == "" {
		route = model.RouteFullDomain
	}

	cfg := model.DomainConfiguration{Route: route}
	if route == model.RouteSubdomain {
		label := sel.SubdomainName
		if label == "" {
			label = DefaultSubdomain
		}
		if err := platform.ValidateSubdomainLabel(label); err != nil {
			return model.DomainConfiguration{}, err
		}
		cfg.SubdomainName = label
	}
	return cfg, nil
}
