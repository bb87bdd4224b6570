package workflow

import (
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/edvin/dealersites/internal/activity"
	"github.com/edvin/dealersites/internal/model"
	"github.com/edvin/dealersites/internal/propagation"
)

// AutoCheckPropagationWorkflow checks an onboarding's DNS records on a
// capped exponential backoff until every record is observed or the maximum
// attempt count is reached. Cancelling the workflow stops the checks; the canceller
// records the stopped status.
func AutoCheckPropagationWorkflow(ctx workflow.Context, onboardingID string, backoff propagation.Backoff) error {
	ctx = defaultActivityCtx(ctx)
	logger := workflow.GetLogger(ctx)

	for attempt := 1; ; attempt++ {
		if err := workflow.Sleep(ctx, backoff.Delay(attempt)); err != nil {
			return err
		}

		var status model.PropagationStatus
		err := workflow.ExecuteActivity(ctx, "CheckPropagation", onboardingID).Get(ctx, &status)
		switch {
		case temporal.IsCanceledError(err):
			return err
		case isNonRetryable(err):
			// The onboarding moved on (route changed, failed); nothing left to check.
			logger.Info("propagation auto-check ended", "onboarding_id", onboardingID, "reason", failureReason(err))
			return nil
		case err != nil:
			// A failed check is not fatal; evidence accumulates across attempts.
			logger.Warn("propagation check failed", "onboarding_id", onboardingID, "attempt", attempt, "error", err)
		case status.Overall.FullyPropagated:
			return finishAutoCheck(ctx, onboardingID, model.AutoCheckCompleted, attempt)
		}

		if backoff.Exhausted(attempt) {
			logger.Info("propagation auto-check gave up", "onboarding_id", onboardingID, "attempts", attempt)
			return finishAutoCheck(ctx, onboardingID, model.AutoCheckGaveUp, attempt)
		}
	}
}

func finishAutoCheck(ctx workflow.Context, onboardingID string, status model.AutoCheckStatus, attempts int) error {
	return workflow.ExecuteActivity(ctx, "FinishAutoCheck", activity.FinishAutoCheckParams{
		OnboardingID: onboardingID,
		Status:       status,
		Attempts:     attempts,
	}).Get(ctx, nil)
}
