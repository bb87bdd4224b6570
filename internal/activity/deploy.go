package activity

import (
	"context"

	"github.com/edvin/dealersites/internal/deploy"
	"github.com/edvin/dealersites/internal/hosting"
)

// Deploy contains activities that provision and release a dealer site on
// the hosting provider. Each one is safe to retry with the same input.
type Deploy struct {
	orchestrator *deploy.Orchestrator
}

// NewDeploy creates a new Deploy activity struct.
func NewDeploy(o *deploy.Orchestrator) *Deploy {
	return &Deploy{orchestrator: o}
}

// EnsureProject returns the dealer's hosting project, creating it on first use.
func (a *Deploy) EnsureProject(ctx context.Context, slug string) (*hosting.Project, error) {
	p, err := a.orchestrator.EnsureProject(ctx, slug)
	if err != nil {
		return nil, classify(err)
	}
	return p, nil
}

// ConfigureProjectEnv upserts the site's runtime configuration.
func (a *Deploy) ConfigureProjectEnv(ctx context.Context, params ConfigureProjectEnvParams) error {
	return classify(a.orchestrator.ConfigureEnv(ctx, params.ProjectID, params.DealerID, params.Slug))
}

// AttachProjectDomain binds the verified domain to the project.
func (a *Deploy) AttachProjectDomain(ctx context.Context, params AttachProjectDomainParams) (*hosting.DomainVerification, error) {
	v, err := a.orchestrator.AttachDomain(ctx, params.ProjectID, params.Domain)
	if err != nil {
		return nil, classify(err)
	}
	return v, nil
}

// TriggerDeployment starts a production release of params.Ref.
func (a *Deploy) TriggerDeployment(ctx context.Context, params TriggerDeploymentParams) (*hosting.Deployment, error) {
	d, err := a.orchestrator.Trigger(ctx, &params.Project, params.Ref)
	if err != nil {
		return nil, classify(err)
	}
	return d, nil
}

// GetDeploymentStatus polls a deployment once.
func (a *Deploy) GetDeploymentStatus(ctx context.Context, deploymentID string) (*DeploymentStatus, error) {
	state, url, err := a.orchestrator.Status(ctx, deploymentID)
	if err != nil {
		return nil, classify(err)
	}
	return &DeploymentStatus{State: state, URL: url}, nil
}
