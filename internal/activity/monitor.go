package activity

import (
	"context"

	"github.com/edvin/dealersites/internal/core"
	"github.com/edvin/dealersites/internal/model"
)

// Monitor contains the per-domain activities of the daily SSL and
// registration expiry jobs.
type Monitor struct {
	monitor *core.MonitorService
}

// NewMonitor creates a new Monitor activity struct.
func NewMonitor(m *core.MonitorService) *Monitor {
	return &Monitor{monitor: m}
}

// ListSSLMonitorCandidates returns active domains whose certificate is
// active or still provisioning.
func (a *Monitor) ListSSLMonitorCandidates(ctx context.Context) ([]model.Domain, error) {
	return a.monitor.SSLCandidates(ctx)
}

// ListExpiryMonitorCandidates returns domains with a registration that can lapse.
func (a *Monitor) ListExpiryMonitorCandidates(ctx context.Context) ([]model.Domain, error) {
	return a.monitor.ExpiryCandidates(ctx)
}

// CheckDomainSSL records the certificate status of one domain. A failed
// check is reported in the result, not as an error, so one domain never
// fails the run and notifications are not repeated by retries.
func (a *Monitor) CheckDomainSSL(ctx context.Context, d model.Domain) (*MonitorCheckResult, error) {
	outcome, err := a.monitor.CheckSSL(ctx, d)
	return checkResult(d, outcome, err), nil
}

// CheckDomainExpiry renews or warns about one registration.
func (a *Monitor) CheckDomainExpiry(ctx context.Context, d model.Domain) (*MonitorCheckResult, error) {
	outcome, err := a.monitor.CheckExpiry(ctx, d)
	return checkResult(d, outcome, err), nil
}

func checkResult(d model.Domain, outcome string, err error) *MonitorCheckResult {
	r := &MonitorCheckResult{DomainID: d.ID, Domain: d.Domain, Outcome: outcome}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}
