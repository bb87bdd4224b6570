package registrar

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/edvin/dealersites/internal/platform"
)

// SearchResult is one candidate domain. A lookup failure for the TLD is
// reported as unavailable with Error set.
type SearchResult struct {
	Domain     string `json:"domain"`
	TLD        string `json:"tld"`
	Available  bool   `json:"available"`
	Definitive bool   `json:"definitive"`
	Price      int64  `json:"price"`
	Currency   string `json:"currency,omitempty"`
	Error      string `json:"error,omitempty"`
}

type Service struct {
	client Client
	tlds   []string
	logger zerolog.Logger
}

func NewService(client Client, tlds []string, logger zerolog.Logger) *Service {
	return &Service{
		client: client,
		tlds:   tlds,
		logger: logger.With().Str("component", "registrar").Logger(),
	}
}

// BaseName reduces "ABC Motors" or "abcmotors.com" to a registrable label.
func BaseName(input string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(input))
	if i := strings.Index(s, "."); i >= 0 {
		s = s[:i]
	}
	name := platform.Slugify(s)
	if name == "" {
		return "", &platform.ValidationError{Field: "name", Value: input, Reason: "contains no letters or digits", Err: platform.ErrInvalidDomain}
	}
	return name, nil
}

// Search checks every candidate TLD concurrently. Results keep TLD order.
func (s *Service) Search(ctx context.Context, input string) ([]SearchResult, error) {
	name, err := BaseName(input)
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, len(s.tlds))
	var g errgroup.Group
	for i, tld := range s.tlds {
		g.Go(func() error {
			results[i] = s.check(ctx, name+"."+tld, tld)
			return nil
		})
	}
	_ = g.Wait()
	return results, nil
}

func (s *Service) check(ctx context.Context, domain, tld string) SearchResult {
	r := SearchResult{Domain: domain, TLD: tld}
	a, err := s.client.CheckAvailability(ctx, domain)
	if err != nil {
		s.logger.Warn().Err(err).Str("domain", domain).Msg("availability check failed")
		r.Error = err.Error()
		return r
	}
	r.Available = a.Available
	r.Definitive = a.Definitive
	if !a.Available {
		return r
	}

	price := a.Price
	if price == nil {
		price, err = s.client.GetTLDPricing(ctx, tld)
		if err != nil {
			s.logger.Warn().Err(err).Str("tld", tld).Msg("tld pricing failed")
			r.Available = false
			r.Error = fmt.Sprintf("pricing unavailable: %v", err)
			return r
		}
	}
	r.Price = price.Amount
	r.Currency = price.Currency
	return r
}

// Register purchases a domain for one year. Deduplication is left to the
// registrar; the response is passed through as-is.
func (s *Service) Register(ctx context.Context, domain string, contact Contact) (*Order, error) {
	d, err := platform.NormalizeDomain(domain)
	if err != nil {
		return nil, err
	}
	order, err := s.client.Purchase(ctx, d, 1, contact)
	if err != nil {
		return nil, fmt.Errorf("purchase %s: %w", d, err)
	}
	s.logger.Info().Str("domain", d).Str("order_id", order.OrderID).Msg("domain registered")
	return order, nil
}

// Renew extends a registration by the given number of years.
func (s *Service) Renew(ctx context.Context, domain string, years int) (*Order, error) {
	order, err := s.client.Renew(ctx, domain, years)
	if err != nil {
		return nil, fmt.Errorf("renew %s: %w", domain, err)
	}
	return order, nil
}
