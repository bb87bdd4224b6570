// Package registrar searches for and registers domains through a reseller API.
package registrar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Client is the registrar API surface used by the search and registration service.
type Client interface {
	CheckAvailability(ctx context.Context, domain string) (*Availability, error)
	GetTLDPricing(ctx context.Context, tld string) (*Price, error)
	Purchase(ctx context.Context, domain string, years int, contact Contact) (*Order, error)
	Renew(ctx context.Context, domain string, years int) (*Order, error)
}

// Price is in the smallest currency unit (paise for INR).
type Price struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type Availability struct {
	Domain     string `json:"domain"`
	Available  bool   `json:"available"`
	Definitive bool   `json:"definitive"`
	Price      *Price `json:"price,omitempty"`
}

type Order struct {
	OrderID   string    `json:"order_id"`
	Domain    string    `json:"domain"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Contact is the registrant record required for a purchase.
type Contact struct {
	Name       string `json:"name" validate:"required,max=255"`
	Email      string `json:"email" validate:"required,email"`
	Phone      string `json:"phone" validate:"required,e164"`
	Company    string `json:"company,omitempty" validate:"max=255"`
	Address    string `json:"address" validate:"required,max=255"`
	City       string `json:"city" validate:"required,max=100"`
	State      string `json:"state" validate:"required,max=100"`
	PostalCode string `json:"postal_code" validate:"required,max=16"`
	Country    string `json:"country" validate:"required,iso3166_1_alpha2"`
}

// ErrDomainUnavailable is a definitive rejection: the domain cannot be bought.
var ErrDomainUnavailable = errors.New("domain is not available for registration")

// APIError passes the registrar's response through unchanged.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("registrar API error %d (%s): %s", e.Status, e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	if e.Code == "domain_unavailable" || e.Code == "domain_taken" {
		return ErrDomainUnavailable
	}
	return nil
}

// Rejected reports whether err is the registrar refusing this purchase: a
// taken domain, a declined payment, an invalid contact. Credential and
// permission errors are the platform's own and do not count.
func Rejected(err error) bool {
	if errors.Is(err, ErrDomainUnavailable) {
		return true
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Definitive() && apiErr.Status != http.StatusUnauthorized && apiErr.Status != http.StatusForbidden
}

// Definitive reports whether the registrar refused the request outright, as
// opposed to failing in a way that a retry could fix.
func (e *APIError) Definitive() bool {
	return e.Status >= 400 && e.Status < 500 && e.Status != http.StatusTooManyRequests
}
