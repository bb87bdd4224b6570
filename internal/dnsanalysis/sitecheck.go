package dnsanalysis

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// SiteChecker checks whether a URL answers with a successful response.
type SiteChecker interface {
	Check(ctx context.Context, url string) (int, error)
}

// HTTPSiteChecker issues HEAD requests. Redirects are followed, so the status is
// that of the final response.
type HTTPSiteChecker struct {
	client *http.Client
}

func NewHTTPSiteChecker(timeout time.Duration) *HTTPSiteChecker {
	return &HTTPSiteChecker{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
	}
}

func (p *HTTPSiteChecker) Check(ctx context.Context, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0, fmt.Errorf("create site check request: %w", err)
	}
	req.Header.Set("User-Agent", "dealersites-domain-check/1.0")
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

// siteURLs lists the variants checked for an existing website, in preference order.
func siteURLs(domain string) []string {
	return []string{
		"https://" + domain,
		"http://" + domain,
		"https://www." + domain,
		"http://www." + domain,
	}
}
