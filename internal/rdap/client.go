// Package rdap looks up a domain's registration record over RDAP, the JSON
// successor to WHOIS.
package rdap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"

	"github.com/edvin/dealersites/internal/metrics"
)

// DefaultBaseURL bootstraps to the registry responsible for each TLD.
const DefaultBaseURL = "https://rdap.org"

// ErrNotFound means the registry has no record for the domain.
var ErrNotFound = errors.New("no registration record")

// Registration is the part of an RDAP domain record the expiry monitor uses.
type Registration struct {
	Domain    string
	Registrar string
	ExpiresAt time.Time
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a client limited to ratePerSec lookups. Public RDAP
// servers throttle aggressively.
func NewClient(baseURL string, ratePerSec float64, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if ratePerSec <= 0 {
		ratePerSec = 1
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(ratePerSec), 1),
	}
}

// Lookup fetches the registration of the registrable domain that host
// belongs to, so "cars.abcmotors.co.in" is looked up as "abcmotors.co.in".
func (c *Client) Lookup(ctx context.Context, host string) (*Registration, error) {
	domain, err := publicsuffix.EffectiveTLDPlusOne(strings.TrimSuffix(strings.ToLower(host), "."))
	if err != nil {
		return nil, fmt.Errorf("registrable domain of %s: %w", host, err)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rdap rate limit: %w", err)
	}

	start := time.Now()
	defer func() {
		metrics.ExternalCallDuration.WithLabelValues("rdap", "domain").Observe(time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/domain/"+url.PathEscape(domain), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/rdap+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rdap request for %s: %w", domain, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("rdap %s: %w", domain, ErrNotFound)
	case resp.StatusCode >= 400:
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("rdap %s: status %d: %s", domain, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var rec domainRecord
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return nil, fmt.Errorf("decode rdap record for %s: %w", domain, err)
	}
	return rec.registration(domain)
}

type domainRecord struct {
	LDHName  string   `json:"ldhName"`
	Events   []event  `json:"events"`
	Entities []entity `json:"entities"`
}

type event struct {
	Action string `json:"eventAction"`
	Date   string `json:"eventDate"`
}

type entity struct {
	Roles []string `json:"roles"`
	// ["vcard", [["fn", {}, "text", "Example Registrar, Inc."], ...]]
	VCard []json.RawMessage `json:"vcardArray"`
}

func (r domainRecord) registration(domain string) (*Registration, error) {
	reg := &Registration{Domain: domain}
	for _, e := range r.Events {
		if e.Action != "expiration" {
			continue
		}
		t, err := time.Parse(time.RFC3339, e.Date)
		if err != nil {
			return nil, fmt.Errorf("parse expiration date %q for %s: %w", e.Date, domain, err)
		}
		reg.ExpiresAt = t.UTC()
	}
	if reg.ExpiresAt.IsZero() {
		return nil, fmt.Errorf("rdap record for %s has no expiration event", domain)
	}
	for _, ent := range r.Entities {
		for _, role := range ent.Roles {
			if role == "registrar" {
				reg.Registrar = ent.formattedName()
			}
		}
	}
	return reg, nil
}

// formattedName returns the vCard "fn" property, or "" when absent.
func (e entity) formattedName() string {
	if len(e.VCard) < 2 {
		return ""
	}
	var props [][]json.RawMessage
	if err := json.Unmarshal(e.VCard[1], &props); err != nil {
		return ""
	}
	for _, p := range props {
		if len(p) < 4 {
			continue
		}
		var name, value string
		if json.Unmarshal(p[0], &name) != nil || name != "fn" {
			continue
		}
		if json.Unmarshal(p[3], &value) == nil {
			return value
		}
	}
	return ""
}
