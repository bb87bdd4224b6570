package activity

import (
	"time"

	"github.com/edvin/dealersites/internal/hosting"
	"github.com/edvin/dealersites/internal/model"
)

// FinishAutoCheckParams holds parameters for FinishAutoCheck.
type FinishAutoCheckParams struct {
	OnboardingID string                `json:"onboarding_id"`
	Status       model.AutoCheckStatus `json:"status"`
	Attempts     int                   `json:"attempts"`
}

// BeginDeploymentParams holds parameters for BeginDeployment.
type BeginDeploymentParams struct {
	OnboardingID string `json:"onboarding_id"`
	WorkflowID   string `json:"workflow_id"`
}

// RecordDeploymentParams holds parameters for RecordDeployment.
type RecordDeploymentParams struct {
	OnboardingID string               `json:"onboarding_id"`
	Deployment   model.DeploymentInfo `json:"deployment"`
}

// MarkLiveParams holds parameters for MarkLive.
type MarkLiveParams struct {
	OnboardingID string               `json:"onboarding_id"`
	SSL          model.SSLCertificate `json:"ssl"`
}

// FailOnboardingParams holds parameters for FailOnboarding.
type FailOnboardingParams struct {
	OnboardingID string `json:"onboarding_id"`
	Stage        string `json:"stage"`
	Reason       string `json:"reason"`
}

// ConfigureProjectEnvParams holds parameters for ConfigureProjectEnv.
type ConfigureProjectEnvParams struct {
	ProjectID string `json:"project_id"`
	DealerID  string `json:"dealer_id"`
	Slug      string `json:"slug"`
}

// AttachProjectDomainParams holds parameters for AttachProjectDomain.
type AttachProjectDomainParams struct {
	ProjectID string `json:"project_id"`
	Domain    string `json:"domain"`
}

// TriggerDeploymentParams holds parameters for TriggerDeployment.
type TriggerDeploymentParams struct {
	Project hosting.Project `json:"project"`
	Ref     string          `json:"ref"`
}

// DeploymentStatus is one poll of a hosting deployment.
type DeploymentStatus struct {
	State model.DeploymentState `json:"state"`
	URL   string                `json:"url"`
}

// ActivateDomainParams holds parameters for ActivateDomain.
type ActivateDomainParams struct {
	DealerID     string          `json:"dealer_id"`
	Slug         string          `json:"slug"`
	Host         string          `json:"host"`
	Registrar    string          `json:"registrar,omitempty"`
	SSLStatus    model.SSLStatus `json:"ssl_status"`
	SSLExpiresAt *time.Time      `json:"ssl_expires_at,omitempty"`
}

// SendDomainVerifiedParams holds parameters for SendDomainVerified.
type SendDomainVerifiedParams struct {
	Email  string `json:"email"`
	Domain string `json:"domain"`
}

// MonitorCheckResult is the outcome of checking one domain.
type MonitorCheckResult struct {
	DomainID string `json:"domain_id"`
	Domain   string `json:"domain"`
	Outcome  string `json:"outcome"`
	Error    string `json:"error,omitempty"`
}
