package workflow

import (
	"errors"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/edvin/dealersites/internal/activity"
)

// defaultActivityCtx applies the retry policy shared by store and provider
// calls. Non-retryable errors from activities stop it early.
func defaultActivityCtx(ctx workflow.Context) workflow.Context {
	return workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts:    5,
			InitialInterval:    2 * time.Second,
			MaximumInterval:    30 * time.Second,
			BackoffCoefficient: 2.0,
		},
	})
}

// singleAttemptCtx is for checks whose failure is itself an answer.
func singleAttemptCtx(ctx workflow.Context, timeout time.Duration) workflow.Context {
	return workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: timeout,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})
}

// failureReason extracts the message an activity failed with, dropping the
// Temporal wrapping so the upstream detail reaches the dealer.
func failureReason(err error) string {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		return appErr.Error()
	}
	return err.Error()
}

func isNonRetryable(err error) bool {
	var appErr *temporal.ApplicationError
	return errors.As(err, &appErr) && appErr.NonRetryable()
}

// failOnboarding marks the onboarding failed and archives it. It runs on a
// disconnected context so a cancelled workflow still records the failure.
func failOnboarding(ctx workflow.Context, onboardingID, stage string, cause error) error {
	dctx, _ := workflow.NewDisconnectedContext(ctx)
	err := workflow.ExecuteActivity(dctx, "FailOnboarding", activity.FailOnboardingParams{
		OnboardingID: onboardingID,
		Stage:        stage,
		Reason:       failureReason(cause),
	}).Get(dctx, nil)
	if err != nil {
		workflow.GetLogger(ctx).Error("failed to record onboarding failure", "onboarding_id", onboardingID, "error", err)
	}
	_ = workflow.ExecuteActivity(dctx, "ArchiveOnboarding", onboardingID).Get(dctx, nil)
	return cause
}
