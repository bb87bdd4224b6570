package model

// DomainType distinguishes how a Domain reached the platform.
type DomainType string

const (
	DomainTypeSubdomain DomainType = "subdomain"
	DomainTypeCustom    DomainType = "custom"
	DomainTypeManaged   DomainType = "managed"
)

// DomainStatus is the lifecycle status of a Domain row.
type DomainStatus string

const (
	DomainPending   DomainStatus = "pending"
	DomainVerifying DomainStatus = "verifying"
	DomainActive    DomainStatus = "active"
	DomainFailed    DomainStatus = "failed"
	DomainExpired   DomainStatus = "expired"
)

// SSLStatus tracks certificate health for a Domain or onboarding.
type SSLStatus string

const (
	SSLPending      SSLStatus = "pending"
	SSLProvisioning SSLStatus = "provisioning"
	SSLActive       SSLStatus = "active"
	SSLRenewing     SSLStatus = "renewing"
	SSLExpired      SSLStatus = "expired"
	SSLFailed       SSLStatus = "failed"
)

// Route is the deployment strategy chosen for a dealer domain.
type Route string

const (
	RouteFullDomain Route = "full_domain"
	RouteSubdomain  Route = "subdomain"
)

func (r Route) Valid() bool {
	return r == RouteFullDomain || r == RouteSubdomain
}

// AccessLevel describes how much of the domain the platform controls.
type AccessLevel string

const (
	AccessUnknown AccessLevel = "unknown"
	AccessDNS     AccessLevel = "dns"
	AccessManaged AccessLevel = "managed"
)

// VerificationStatus of the TXT ownership check.
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationVerified VerificationStatus = "verified"
	VerificationFailed   VerificationStatus = "failed"
)

// AutoCheckStatus is the state of the background propagation checker.
type AutoCheckStatus string

const (
	AutoCheckIdle      AutoCheckStatus = "idle"
	AutoCheckRunning   AutoCheckStatus = "running"
	AutoCheckStopped   AutoCheckStatus = "stopped"
	AutoCheckCompleted AutoCheckStatus = "completed"
	AutoCheckGaveUp    AutoCheckStatus = "gave_up"
)

// DeploymentState as reported by the hosting provider.
type DeploymentState string

const (
	DeploymentQueued       DeploymentState = "queued"
	DeploymentBuilding     DeploymentState = "building"
	DeploymentInitializing DeploymentState = "initializing"
	DeploymentReady        DeploymentState = "ready"
	DeploymentError        DeploymentState = "error"
	DeploymentCanceled     DeploymentState = "canceled"
)

// Done reports whether the deployment reached a final state.
func (s DeploymentState) Done() bool {
	return s == DeploymentReady || s == DeploymentError || s == DeploymentCanceled
}
