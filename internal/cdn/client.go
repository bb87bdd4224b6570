// Package cdn manages reverse-proxy zones for the CDN-assisted subdomain
// route. The API is Cloudflare's v4 zone and DNS record surface.
package cdn

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/edvin/dealersites/internal/metrics"
)

// ZoneManager is what the onboarding pipeline needs from the CDN.
type ZoneManager interface {
	EnsureZone(ctx context.Context, domain string) (*Zone, error)
	EnsureRecord(ctx context.Context, zoneID string, rec Record) (*Record, error)
}

type Zone struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Status      string   `json:"status"`
	NameServers []string `json:"name_servers"`
}

type Record struct {
	ID      string `json:"id,omitempty"`
	Type    string `json:"type"`
	Name    string `json:"name"`
	Content string `json:"content"`
	TTL     int    `json:"ttl"`
	Proxied bool   `json:"proxied"`
}

type apiResponse struct {
	Success bool            `json:"success"`
	Errors  []apiError      `json:"errors"`
	Result  json.RawMessage `json:"result"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error is returned when the API reports success=false.
type Error struct {
	Status  int
	Code    int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("cdn error [%d]: %s", e.Code, e.Message)
}

type Client struct {
	baseURL   string
	token     string
	accountID string
	client    *http.Client
}

func NewClient(baseURL, token, accountID string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = "https://api.cloudflare.com/client/v4"
	}
	return &Client{
		baseURL:   baseURL,
		token:     token,
		accountID: accountID,
		client:    &http.Client{Timeout: timeout},
	}
}

var _ ZoneManager = (*Client)(nil)

// EnsureZone returns the existing zone for domain or creates it.
func (c *Client) EnsureZone(ctx context.Context, domain string) (*Zone, error) {
	var zones []Zone
	if err := c.doRequest(ctx, "list_zones", http.MethodGet, "/zones?name="+url.QueryEscape(domain), nil, &zones); err != nil {
		return nil, err
	}
	if len(zones) > 0 {
		return &zones[0], nil
	}

	body := map[string]any{
		"name": domain,
		"type": "full",
	}
	if c.accountID != "" {
		body["account"] = map[string]string{"id": c.accountID}
	}
	var zone Zone
	if err := c.doRequest(ctx, "create_zone", http.MethodPost, "/zones", body, &zone); err != nil {
		return nil, err
	}
	return &zone, nil
}

// EnsureRecord creates rec unless a record with the same type and name exists.
func (c *Client) EnsureRecord(ctx context.Context, zoneID string, rec Record) (*Record, error) {
	q := url.Values{}
	q.Set("type", rec.Type)
	q.Set("name", rec.Name)
	var existing []Record
	path := fmt.Sprintf("/zones/%s/dns_records?%s", url.PathEscape(zoneID), q.Encode())
	if err := c.doRequest(ctx, "list_records", http.MethodGet, path, nil, &existing); err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return &existing[0], nil
	}

	var created Record
	if err := c.doRequest(ctx, "create_record", http.MethodPost, fmt.Sprintf("/zones/%s/dns_records", url.PathEscape(zoneID)), rec, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (c *Client) doRequest(ctx context.Context, op, method, path string, body, result any) error {
	start := time.Now()
	defer func() {
		metrics.ExternalCallDuration.WithLabelValues("cdn", op).Observe(time.Since(start).Seconds())
	}()

	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("cdn API request: %w", err)
	}
	defer resp.Body.Close()

	var parsed apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if !parsed.Success {
		e := &Error{Status: resp.StatusCode, Message: "request failed"}
		if len(parsed.Errors) > 0 {
			e.Code = parsed.Errors[0].Code
			e.Message = parsed.Errors[0].Message
		}
		return e
	}
	if result != nil {
		if err := json.Unmarshal(parsed.Result, result); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
	}
	return nil
}
