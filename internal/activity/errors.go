package activity

import (
	"errors"

	"go.temporal.io/sdk/temporal"

	"github.com/edvin/dealersites/internal/core"
	"github.com/edvin/dealersites/internal/hosting"
	"github.com/edvin/dealersites/internal/model"
)

// Error types reported to workflows for failures that retrying cannot fix.
const (
	ErrTypeIllegalTransition = "ILLEGAL_TRANSITION"
	ErrTypeNotFound          = "NOT_FOUND"
	ErrTypeHostingRejected   = "HOSTING_REJECTED"
	ErrTypeDomainTaken       = "DOMAIN_TAKEN"
)

// classify marks definitive failures non-retryable and passes everything
// else through for the retry policy.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, model.ErrIllegalTransition) {
		return temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeIllegalTransition, err)
	}
	if errors.Is(err, core.ErrNotFound) {
		return temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeNotFound, err)
	}
	var apiErr *hosting.APIError
	if errors.As(err, &apiErr) && !apiErr.Temporary() {
		// The provider's message reaches the dealer unchanged.
		return temporal.NewNonRetryableApplicationError(apiErr.Error(), ErrTypeHostingRejected, err)
	}
	return err
}
