package propagation

import (
	"context"
	"errors"
	"net"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/dealersites/internal/metrics"
	"github.com/edvin/dealersites/internal/model"
)

// Resolver is the part of *net.Resolver the tracker uses.
type Resolver interface {
	LookupIP(ctx context.Context, network, host string) ([]net.IP, error)
	LookupCNAME(ctx context.Context, host string) (string, error)
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

// Tracker re-resolves expected records and folds the answers into the
// evidence gathered by earlier checks.
type Tracker struct {
	resolver Resolver
	timeout  time.Duration
	logger   zerolog.Logger
}

func NewTracker(resolver Resolver, timeout time.Duration, logger zerolog.Logger) *Tracker {
	return &Tracker{
		resolver: resolver,
		timeout:  timeout,
		logger:   logger.With().Str("component", "propagation").Logger(),
	}
}

// Check resolves every expectation once. Evidence in prior is sticky: a
// record seen propagated stays propagated as long as its expected value is
// unchanged, so the reported percentage never goes down.
func (t *Tracker) Check(ctx context.Context, expected []Expectation, prior map[string]model.RecordStatus, now time.Time) map[string]model.RecordStatus {
	out := make(map[string]model.RecordStatus, len(expected))
	for _, e := range expected {
		observed, err := t.observe(ctx, e)
		if err != nil {
			t.logger.Debug().Err(err).Str("name", e.Name).Str("type", e.Type).Msg("propagation lookup failed")
		}
		rs := model.RecordStatus{
			Type:     e.Type,
			Name:     e.Name,
			Expected: e.Value,
			Observed: observed,
		}
		if matches(e, observed) {
			rs.Propagated = true
			seen := now
			rs.FirstSeen = &seen
		}
		if p, ok := prior[e.Key]; ok && p.Propagated && p.Type == e.Type && p.Name == e.Name && p.Expected == e.Value {
			rs.Propagated = true
			rs.FirstSeen = p.FirstSeen
		}
		out[e.Key] = rs
	}
	metrics.PropagationChecks.WithLabelValues(checkResult(out)).Inc()
	return out
}

func checkResult(records map[string]model.RecordStatus) string {
	passed := 0
	for _, r := range records {
		if r.Propagated {
			passed++
		}
	}
	switch {
	case len(records) > 0 && passed == len(records):
		return "propagated"
	case passed > 0:
		return "partial"
	}
	return "none"
}

func (t *Tracker) observe(ctx context.Context, e Expectation) ([]string, error) {
	lctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	switch e.Type {
	case "A":
		ips, err := t.resolver.LookupIP(lctx, "ip4", e.Name)
		if err != nil {
			return []string{}, ignoreNotFound(err)
		}
		out := make([]string, 0, len(ips))
		for _, ip := range ips {
			out = append(out, ip.String())
		}
		return out, nil
	case "CNAME":
		target, err := t.resolver.LookupCNAME(lctx, e.Name)
		if err != nil {
			return []string{}, ignoreNotFound(err)
		}
		target = normalizeHost(target)
		if target == "" || target == normalizeHost(e.Name) {
			return []string{}, nil
		}
		return []string{target}, nil
	case "TXT":
		txt, err := t.resolver.LookupTXT(lctx, e.Name)
		if err != nil {
			return []string{}, ignoreNotFound(err)
		}
		return txt, nil
	}
	return []string{}, nil
}

func matches(e Expectation, observed []string) bool {
	if e.Type == "CNAME" {
		return slices.Contains(observed, normalizeHost(e.Value))
	}
	return slices.Contains(observed, e.Value)
}

func ignoreNotFound(err error) error {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		return nil
	}
	return err
}

// Summarize builds the poller payload from per-record evidence.
func Summarize(records map[string]model.RecordStatus, attempts int, firstCheck, now time.Time) model.PropagationStatus {
	passed := 0
	for _, r := range records {
		if r.Propagated {
			passed++
		}
	}
	total := len(records)
	pct := 0
	if total > 0 {
		pct = passed * 100 / total
	}
	full := total > 0 && passed == total

	checked := now
	status := model.PropagationStatus{
		Overall: model.PropagationOverall{
			ChecksPassed:    passed,
			TotalChecks:     total,
			Percentage:      pct,
			FullyPropagated: full,
		},
		Records:                records,
		EstimatedTimeRemaining: EstimateRemaining(pct, full, firstCheck, now),
		Attempts:               attempts,
		CheckedAt:              &checked,
	}
	return status
}

// EstimateRemaining gives the dealer a rough expectation for the wait.
func EstimateRemaining(percentage int, full bool, firstCheck, now time.Time) string {
	switch {
	case full:
		return "complete"
	case !firstCheck.IsZero() && now.Sub(firstCheck) > 2*time.Hour:
		return "up to 48 hours"
	case percentage >= 50:
		return "5-15 minutes"
	default:
		return "15-60 minutes"
	}
}
