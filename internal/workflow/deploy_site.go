package workflow

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/edvin/dealersites/internal/activity"
	"github.com/edvin/dealersites/internal/certcheck"
	"github.com/edvin/dealersites/internal/core"
	"github.com/edvin/dealersites/internal/hosting"
	"github.com/edvin/dealersites/internal/model"
)

const (
	deployPollInterval = 10 * time.Second
	maxDeployPolls     = 90
	certPollInterval   = 30 * time.Second
	maxCertPolls       = 20
)

// DeploySiteWorkflow provisions the dealer's hosting project, binds the
// verified domain, releases the site and waits for it and its certificate.
// On success the domain becomes the dealer's live primary domain.
func DeploySiteWorkflow(ctx workflow.Context, onboardingID, ref string) error {
	ctx = defaultActivityCtx(ctx)
	logger := workflow.GetLogger(ctx)

	var target core.DeployTarget
	err := workflow.ExecuteActivity(ctx, "BeginDeployment", activity.BeginDeploymentParams{
		OnboardingID: onboardingID,
		WorkflowID:   workflow.GetInfo(ctx).WorkflowExecution.ID,
	}).Get(ctx, &target)
	if err != nil {
		return err
	}

	// Step 1: project and runtime configuration.
	var project hosting.Project
	if err := workflow.ExecuteActivity(ctx, "EnsureProject", target.Slug).Get(ctx, &project); err != nil {
		return failOnboarding(ctx, onboardingID, "deployment", err)
	}
	if err := recordDeployment(ctx, onboardingID, model.DeploymentInfo{ProjectID: project.ID, ProjectName: project.Name}); err != nil {
		return failOnboarding(ctx, onboardingID, "deployment", err)
	}
	err = workflow.ExecuteActivity(ctx, "ConfigureProjectEnv", activity.ConfigureProjectEnvParams{
		ProjectID: project.ID,
		DealerID:  target.DealerID,
		Slug:      target.Slug,
	}).Get(ctx, nil)
	if err != nil {
		return failOnboarding(ctx, onboardingID, "deployment", err)
	}

	// Step 2: bind the domain.
	var verification hosting.DomainVerification
	err = workflow.ExecuteActivity(ctx, "AttachProjectDomain", activity.AttachProjectDomainParams{
		ProjectID: project.ID,
		Domain:    target.Host,
	}).Get(ctx, &verification)
	if err != nil {
		return failOnboarding(ctx, onboardingID, "domain_binding", err)
	}
	if !verification.Verified {
		logger.Warn("hosting provider has not verified the domain yet", "domain", target.Host)
	}

	// Step 3: release and wait for it to finish.
	var deployment hosting.Deployment
	err = workflow.ExecuteActivity(ctx, "TriggerDeployment", activity.TriggerDeploymentParams{
		Project: project,
		Ref:     ref,
	}).Get(ctx, &deployment)
	if err != nil {
		return failOnboarding(ctx, onboardingID, "deployment", err)
	}
	status := activity.DeploymentStatus{State: deployment.State(), URL: deployment.URL}
	if err := recordDeployment(ctx, onboardingID, model.DeploymentInfo{DeploymentID: deployment.ID, State: status.State, URL: status.URL}); err != nil {
		return failOnboarding(ctx, onboardingID, "deployment", err)
	}
	if !status.State.Done() {
		if status, err = pollDeployment(ctx, deployment.ID); err != nil {
			return failOnboarding(ctx, onboardingID, "deployment", err)
		}
		if err := recordDeployment(ctx, onboardingID, model.DeploymentInfo{State: status.State, URL: status.URL}); err != nil {
			return failOnboarding(ctx, onboardingID, "deployment", err)
		}
	}
	if status.State != model.DeploymentReady {
		cause := fmt.Errorf("deployment %s ended in state %s", deployment.ID, status.State)
		_ = recordDeployment(ctx, onboardingID, model.DeploymentInfo{Error: cause.Error()})
		return failOnboarding(ctx, onboardingID, "deployment", cause)
	}

	// Step 4: certificate.
	if err := workflow.ExecuteActivity(ctx, "MarkSSLProvisioning", onboardingID).Get(ctx, nil); err != nil {
		return failOnboarding(ctx, onboardingID, "ssl", err)
	}
	ssl, err := waitForCertificate(ctx, target.Host)
	if err != nil {
		return failOnboarding(ctx, onboardingID, "ssl", err)
	}

	// Step 5: go live.
	err = workflow.ExecuteActivity(ctx, "ActivateDomain", activity.ActivateDomainParams{
		DealerID:     target.DealerID,
		Slug:         target.Slug,
		Host:         target.Host,
		Registrar:    target.Registrar,
		SSLStatus:    ssl.Status,
		SSLExpiresAt: ssl.ExpiresAt,
	}).Get(ctx, nil)
	if err != nil {
		return failOnboarding(ctx, onboardingID, "domain", err)
	}
	err = workflow.ExecuteActivity(ctx, "MarkLive", activity.MarkLiveParams{
		OnboardingID: onboardingID,
		SSL:          ssl,
	}).Get(ctx, nil)
	if err != nil {
		return err
	}

	// Best-effort side effects.
	err = workflow.ExecuteActivity(ctx, "SendDomainVerified", activity.SendDomainVerifiedParams{
		Email:  target.Email,
		Domain: target.Host,
	}).Get(ctx, nil)
	if err != nil {
		logger.Warn("domain verified notification failed", "domain", target.Host, "error", err)
	}
	if err := workflow.ExecuteActivity(ctx, "ArchiveOnboarding", onboardingID).Get(ctx, nil); err != nil {
		logger.Warn("archive onboarding failed", "onboarding_id", onboardingID, "error", err)
	}
	if err := workflow.ExecuteActivity(ctx, "InvalidateRoutes", []string{target.Host}).Get(ctx, nil); err != nil {
		logger.Warn("route invalidation failed", "domain", target.Host, "error", err)
	}

	logger.Info("dealer site live", "onboarding_id", onboardingID, "domain", target.Host, "ssl", string(ssl.Status))
	return nil
}

func recordDeployment(ctx workflow.Context, onboardingID string, info model.DeploymentInfo) error {
	return workflow.ExecuteActivity(ctx, "RecordDeployment", activity.RecordDeploymentParams{
		OnboardingID: onboardingID,
		Deployment:   info,
	}).Get(ctx, nil)
}

// pollDeployment waits until the deployment reaches a final state.
func pollDeployment(ctx workflow.Context, deploymentID string) (activity.DeploymentStatus, error) {
	var status activity.DeploymentStatus
	for i := 0; i < maxDeployPolls; i++ {
		if err := workflow.Sleep(ctx, deployPollInterval); err != nil {
			return status, err
		}
		if err := workflow.ExecuteActivity(ctx, "GetDeploymentStatus", deploymentID).Get(ctx, &status); err != nil {
			return status, err
		}
		if status.State.Done() {
			return status, nil
		}
	}
	return status, fmt.Errorf("deployment %s did not finish within %s", deploymentID, maxDeployPolls*deployPollInterval)
}

// waitForCertificate polls the served certificate until it is valid. If
// the certificate service has not issued one in time the site goes live
// with SSL still provisioning; the SSL monitor records it once valid.
func waitForCertificate(ctx workflow.Context, host string) (model.SSLCertificate, error) {
	checkCtx := singleAttemptCtx(ctx, 30*time.Second)
	for i := 0; i < maxCertPolls; i++ {
		var cert certcheck.Certificate
		err := workflow.ExecuteActivity(checkCtx, "CheckCertificate", host).Get(ctx, &cert)
		if temporal.IsCanceledError(err) {
			return model.SSLCertificate{}, err
		}
		if err == nil && cert.Valid {
			expiresAt := cert.NotAfter.UTC()
			return model.SSLCertificate{Status: model.SSLActive, Issuer: cert.Issuer, ExpiresAt: &expiresAt}, nil
		}
		if err := workflow.Sleep(ctx, certPollInterval); err != nil {
			return model.SSLCertificate{}, err
		}
	}
	workflow.GetLogger(ctx).Warn("certificate not issued yet, going live while provisioning", "domain", host)
	return model.SSLCertificate{Status: model.SSLProvisioning}, nil
}
