package workflow

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/edvin/dealersites/internal/activity"
	"github.com/edvin/dealersites/internal/core"
	"github.com/edvin/dealersites/internal/model"
)

// monitorBatchSize bounds how many domains are checked concurrently.
const monitorBatchSize = 10

// MonitorSummary reports one monitor run.
type MonitorSummary struct {
	Checked  int            `json:"checked"`
	Outcomes map[string]int `json:"outcomes"`
	Failed   []string       `json:"failed,omitempty"`
}

// SSLMonitorWorkflow runs daily and records certificate status for every
// active domain. One domain failing never stops the others.
func SSLMonitorWorkflow(ctx workflow.Context) (*MonitorSummary, error) {
	return runMonitor(ctx, "ssl", "ListSSLMonitorCandidates", "CheckDomainSSL")
}

// ExpiryMonitorWorkflow runs daily, renewing managed registrations and
// warning dealers about custom ones close to expiry.
func ExpiryMonitorWorkflow(ctx workflow.Context) (*MonitorSummary, error) {
	return runMonitor(ctx, "expiry", "ListExpiryMonitorCandidates", "CheckDomainExpiry")
}

func runMonitor(ctx workflow.Context, job, listActivity, checkActivity string) (*MonitorSummary, error) {
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 2,
		},
	})
	logger := workflow.GetLogger(ctx)

	var domains []model.Domain
	if err := workflow.ExecuteActivity(ctx, listActivity).Get(ctx, &domains); err != nil {
		return nil, fmt.Errorf("list %s monitor candidates: %w", job, err)
	}

	summary := &MonitorSummary{Outcomes: make(map[string]int)}
	for start := 0; start < len(domains); start += monitorBatchSize {
		batch := domains[start:min(start+monitorBatchSize, len(domains))]
		futures := make([]workflow.Future, len(batch))
		for i, d := range batch {
			futures[i] = workflow.ExecuteActivity(ctx, checkActivity, d)
		}
		for i, f := range futures {
			summary.Checked++
			var res activity.MonitorCheckResult
			if err := f.Get(ctx, &res); err != nil {
				res = activity.MonitorCheckResult{DomainID: batch[i].ID, Domain: batch[i].Domain, Outcome: core.OutcomeError, Error: err.Error()}
			}
			summary.Outcomes[res.Outcome]++
			if res.Error != "" {
				summary.Failed = append(summary.Failed, batch[i].Domain)
				logger.Warn("monitor check failed", "job", job, "domain", batch[i].Domain, "error", res.Error)
			}
		}
	}

	logger.Info("monitor run finished", "job", job, "checked", summary.Checked, "failed", len(summary.Failed))
	return summary, nil
}
