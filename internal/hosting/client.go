package hosting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/sony/gobreaker"

	"github.com/edvin/dealersites/internal/metrics"
)

// Client talks to the hosting platform's REST API. Calls go through a
// circuit breaker that opens after consecutive transport or 5xx failures.
type Client struct {
	baseURL    string
	token      string
	teamID     string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
}

func NewClient(baseURL, token, teamID string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		teamID:  teamID,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "hosting-api",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 5
			},
			IsSuccessful: func(err error) bool {
				var apiErr *APIError
				if errors.As(err, &apiErr) {
					return !apiErr.Temporary()
				}
				return err == nil
			},
		}),
	}
}

var _ Provider = (*Client)(nil)

func (c *Client) FindProject(ctx context.Context, name string) (*Project, error) {
	var p Project
	if err := c.do(ctx, "find_project", http.MethodGet, "/v9/projects/"+url.PathEscape(name), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) CreateProject(ctx context.Context, name, repo string) (*Project, error) {
	body := map[string]any{
		"name": name,
		"gitRepository": map[string]string{
			"type": "github",
			"repo": repo,
		},
	}
	var p Project
	if err := c.do(ctx, "create_project", http.MethodPost, "/v10/projects", body, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// SetEnvVars upserts, so repeating the call with the same input is harmless.
func (c *Client) SetEnvVars(ctx context.Context, projectID string, vars []EnvVar) error {
	path := fmt.Sprintf("/v10/projects/%s/env?upsert=true", url.PathEscape(projectID))
	return c.do(ctx, "set_env_vars", http.MethodPost, path, vars, nil)
}

func (c *Client) TriggerDeployment(ctx context.Context, projectID, projectName, repo, ref string) (*Deployment, error) {
	body := map[string]any{
		"name":    projectName,
		"project": projectID,
		"target":  "production",
		"gitSource": map[string]string{
			"type": "github",
			"repo": repo,
			"ref":  ref,
		},
	}
	var d Deployment
	if err := c.do(ctx, "trigger_deployment", http.MethodPost, "/v13/deployments", body, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *Client) GetDeployment(ctx context.Context, deploymentID string) (*Deployment, error) {
	var d Deployment
	if err := c.do(ctx, "get_deployment", http.MethodGet, "/v13/deployments/"+url.PathEscape(deploymentID), nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *Client) AddDomain(ctx context.Context, projectID, domain string) (*ProjectDomain, error) {
	path := fmt.Sprintf("/v10/projects/%s/domains", url.PathEscape(projectID))
	var d ProjectDomain
	if err := c.do(ctx, "add_domain", http.MethodPost, path, map[string]string{"name": domain}, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *Client) GetDomainVerification(ctx context.Context, projectID, domain string) (*DomainVerification, error) {
	var pd ProjectDomain
	path := fmt.Sprintf("/v9/projects/%s/domains/%s", url.PathEscape(projectID), url.PathEscape(domain))
	if err := c.do(ctx, "get_project_domain", http.MethodGet, path, nil, &pd); err != nil {
		return nil, err
	}
	var cfg DomainConfig
	if err := c.do(ctx, "get_domain_config", http.MethodGet, "/v6/domains/"+url.PathEscape(domain)+"/config", nil, &cfg); err != nil {
		return nil, err
	}

	v := &DomainVerification{
		Verified:            pd.Verified,
		Configured:          !cfg.Misconfigured,
		VerificationRecords: pd.Verification,
	}
	if len(cfg.RecommendedCNAME) > 0 {
		sort.Slice(cfg.RecommendedCNAME, func(i, j int) bool {
			return cfg.RecommendedCNAME[i].Rank < cfg.RecommendedCNAME[j].Rank
		})
		v.CNAMETarget = cfg.RecommendedCNAME[0].Value
	}
	return v, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body, result any) error {
	start := time.Now()
	defer func() {
		metrics.ExternalCallDuration.WithLabelValues("hosting", op).Observe(time.Since(start).Seconds())
	}()

	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.roundTrip(ctx, method, path, body, result)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("hosting API %s %s: %w", method, path, err)
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, method, path string, body, result any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path), reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("hosting API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		var eb errorBody
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

func (c *Client) url(path string) string {
	if c.teamID == "" {
		return c.baseURL + path
	}
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return c.baseURL + path
	}
	q := u.Query()
	q.Set("teamId", c.teamID)
	u.RawQuery = q.Encode()
	return u.String()
}
