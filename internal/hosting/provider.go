package hosting

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Provider is the hosting platform surface the deployment orchestrator needs.
type Provider interface {
	FindProject(ctx context.Context, name string) (*Project, error)
	CreateProject(ctx context.Context, name, repo string) (*Project, error)
	SetEnvVars(ctx context.Context, projectID string, vars []EnvVar) error
	TriggerDeployment(ctx context.Context, projectID, projectName, repo, ref string) (*Deployment, error)
	GetDeployment(ctx context.Context, deploymentID string) (*Deployment, error)
	AddDomain(ctx context.Context, projectID, domain string) (*ProjectDomain, error)
	GetDomainVerification(ctx context.Context, projectID, domain string) (*DomainVerification, error)
}

var ErrNotFound = errors.New("hosting: not found")

// APIError carries the provider's own error code and message.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("hosting API error %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("hosting API error %d: %s", e.Status, e.Message)
}

// Unwrap lets errors.Is(err, ErrNotFound) match 404 responses.
func (e *APIError) Unwrap() error {
	if e.Status == http.StatusNotFound {
		return ErrNotFound
	}
	return nil
}

// Temporary reports whether retrying the same request may succeed.
func (e *APIError) Temporary() bool {
	return e.Status >= 500 || e.Status == http.StatusTooManyRequests
}

// IsConflict reports a 409, returned when a resource already exists.
func IsConflict(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict
}
