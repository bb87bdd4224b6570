package activity

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/edvin/dealersites/internal/archive"
	"github.com/edvin/dealersites/internal/core"
	"github.com/edvin/dealersites/internal/model"
)

// Pipeline is the part of the onboarding service driven from workflows.
type Pipeline interface {
	Get(ctx context.Context, id string) (*model.DomainOnboarding, error)
	CheckPropagation(ctx context.Context, id string) (model.PropagationStatus, error)
	FinishAutoCheck(ctx context.Context, id string, status model.AutoCheckStatus, attempts int) error
	BeginDeployment(ctx context.Context, id, workflowID string) (*core.DeployTarget, error)
	RecordDeployment(ctx context.Context, id string, info model.DeploymentInfo) error
	MarkSSLProvisioning(ctx context.Context, id string) error
	MarkLive(ctx context.Context, id string, ssl model.SSLCertificate) (*model.DomainOnboarding, error)
	Fail(ctx context.Context, id, stage, reason string) (*model.DomainOnboarding, error)
}

var _ Pipeline = (*core.OnboardingService)(nil)

// Onboarding contains activities that advance a DomainOnboarding.
type Onboarding struct {
	pipeline Pipeline
	archiver archive.Archiver
	logger   zerolog.Logger
}

// NewOnboarding creates a new Onboarding activity struct. A nil archiver
// disables the audit archive.
func NewOnboarding(pipeline Pipeline, archiver archive.Archiver, logger zerolog.Logger) *Onboarding {
	if archiver == nil {
		archiver = archive.Nop{}
	}
	return &Onboarding{
		pipeline: pipeline,
		archiver: archiver,
		logger:   logger.With().Str("component", "onboarding-activity").Logger(),
	}
}

// CheckPropagation resolves the onboarding's expected records once.
func (a *Onboarding) CheckPropagation(ctx context.Context, onboardingID string) (*model.PropagationStatus, error) {
	st, err := a.pipeline.CheckPropagation(ctx, onboardingID)
	if err != nil {
		return nil, classify(err)
	}
	return &st, nil
}

// FinishAutoCheck records how an automatic propagation run ended.
func (a *Onboarding) FinishAutoCheck(ctx context.Context, params FinishAutoCheckParams) error {
	return classify(a.pipeline.FinishAutoCheck(ctx, params.OnboardingID, params.Status, params.Attempts))
}

// BeginDeployment moves the onboarding to deploying and returns the target.
func (a *Onboarding) BeginDeployment(ctx context.Context, params BeginDeploymentParams) (*core.DeployTarget, error) {
	target, err := a.pipeline.BeginDeployment(ctx, params.OnboardingID, params.WorkflowID)
	if err != nil {
		return nil, classify(err)
	}
	return target, nil
}

// RecordDeployment stores hosting project and deployment progress.
func (a *Onboarding) RecordDeployment(ctx context.Context, params RecordDeploymentParams) error {
	return classify(a.pipeline.RecordDeployment(ctx, params.OnboardingID, params.Deployment))
}

func (a *Onboarding) MarkSSLProvisioning(ctx context.Context, onboardingID string) error {
	return classify(a.pipeline.MarkSSLProvisioning(ctx, onboardingID))
}

func (a *Onboarding) MarkLive(ctx context.Context, params MarkLiveParams) error {
	_, err := a.pipeline.MarkLive(ctx, params.OnboardingID, params.SSL)
	return classify(err)
}

// FailOnboarding moves the onboarding to failed with the upstream reason.
func (a *Onboarding) FailOnboarding(ctx context.Context, params FailOnboardingParams) error {
	_, err := a.pipeline.Fail(ctx, params.OnboardingID, params.Stage, params.Reason)
	return classify(err)
}

// ArchiveOnboarding writes a terminal onboarding to the audit archive.
// Archive failures are logged and never fail the workflow.
func (a *Onboarding) ArchiveOnboarding(ctx context.Context, onboardingID string) error {
	o, err := a.pipeline.Get(ctx, onboardingID)
	if err != nil {
		return classify(err)
	}
	if !o.State.Terminal() {
		return nil
	}
	if err := a.archiver.Archive(ctx, o); err != nil {
		a.logger.Warn().Err(err).Str("onboarding_id", onboardingID).Msg("archive onboarding failed")
	}
	return nil
}
