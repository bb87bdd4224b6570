package registrar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/edvin/dealersites/internal/metrics"
)

// HTTPClient is a rate-limited client for the registrar's REST API.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
}

func NewHTTPClient(baseURL, apiKey string, ratePerSec int, timeout time.Duration) *HTTPClient {
	if ratePerSec <= 0 {
		ratePerSec = 5
	}
	return &HTTPClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "registrar-api",
			MaxRequests: 1,
			Timeout:     time.Minute,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 5
			},
			IsSuccessful: func(err error) bool {
				var apiErr *APIError
				if errors.As(err, &apiErr) {
					return apiErr.Definitive()
				}
				return err == nil
			},
		}),
	}
}

var _ Client = (*HTTPClient)(nil)

func (c *HTTPClient) CheckAvailability(ctx context.Context, domain string) (*Availability, error) {
	var a Availability
	if err := c.do(ctx, "check_availability", http.MethodGet, "/v1/domains/availability?domain="+url.QueryEscape(domain), nil, &a); err != nil {
		return nil, err
	}
	if a.Domain == "" {
		a.Domain = domain
	}
	return &a, nil
}

func (c *HTTPClient) GetTLDPricing(ctx context.Context, tld string) (*Price, error) {
	var resp struct {
		TLD      string `json:"tld"`
		Register Price  `json:"register"`
	}
	if err := c.do(ctx, "tld_pricing", http.MethodGet, "/v1/tlds/"+url.PathEscape(tld)+"/pricing", nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Register, nil
}

func (c *HTTPClient) Purchase(ctx context.Context, domain string, years int, contact Contact) (*Order, error) {
	body := map[string]any{
		"domain":  domain,
		"years":   years,
		"contact": contact,
	}
	var o Order
	if err := c.do(ctx, "purchase", http.MethodPost, "/v1/domains/register", body, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

func (c *HTTPClient) Renew(ctx context.Context, domain string, years int) (*Order, error) {
	var o Order
	path := "/v1/domains/" + url.PathEscape(domain) + "/renew"
	if err := c.do(ctx, "renew", http.MethodPost, path, map[string]int{"years": years}, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

func (c *HTTPClient) do(ctx context.Context, op, method, path string, body, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("registrar rate limit: %w", err)
	}

	start := time.Now()
	defer func() {
		metrics.ExternalCallDuration.WithLabelValues("registrar", op).Observe(time.Since(start).Seconds())
	}()

	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.roundTrip(ctx, method, path, body, result)
	})
	return err
}

func (c *HTTPClient) roundTrip(ctx context.Context, method, path string, body, result any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("registrar API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		var eb struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(raw, &eb) == nil && eb.Error.Message != "" {
			apiErr.Code = eb.Error.Code
			apiErr.Message = eb.Error.Message
		} else {
			apiErr.Message = string(bytes.TrimSpace(raw))
		}
		return apiErr
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
