package model

import "time"

type DomainOnboarding struct {
	ID             string               `json:"id" db:"id"`
	DealerID       string               `json:"dealer_id" db:"dealer_id"`
	Domain         string               `json:"domain" db:"domain"`
	Registrar      string               `json:"registrar" db:"registrar"`
	AccessLevel    AccessLevel          `json:"access_level" db:"access_level"`
	Verification   DomainVerification   `json:"verification" db:"verification"`
	Analysis       *DNSAnalysis         `json:"dns_analysis,omitempty" db:"dns_analysis"`
	Recommendation *RouteRecommendation `json:"recommendation,omitempty" db:"recommendation"`
	Configuration  *DomainConfiguration `json:"configuration,omitempty" db:"configuration"`
	SSL            *SSLCertificate      `json:"ssl_certificate,omitempty" db:"ssl_certificate"`
	Deployment     *DeploymentInfo      `json:"deployment,omitempty" db:"deployment"`
	AutoCheck      AutoCheck            `json:"auto_check" db:"auto_check"`
	State          OnboardingState      `json:"current_state" db:"current_state"`
	TestResults    []TestResult         `json:"test_results" db:"test_results"`
	FailureReason  *string              `json:"failure_reason,omitempty" db:"failure_reason"`
	CreatedAt      time.Time            `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at" db:"updated_at"`
	// Version counts saves; a save from a stale copy is rejected.
	Version int64 `json:"-" db:"version"`
}

// Transition moves the onboarding to the given state, or fails with a *TransitionError.
func (o *DomainOnboarding) Transition(to OnboardingState) error {
	if err := ValidateTransition(o.State, to); err != nil {
		return err
	}
	o.State = to
	return nil
}

// Record appends a stage result to the audit trail.
func (o *DomainOnboarding) Record(name string, passed bool, detail string, at time.Time) {
	o.TestResults = append(o.TestResults, TestResult{Name: name, Passed: passed, Detail: detail, At: at})
}

// TargetHost is the hostname that will serve the dealer site.
func (o *DomainOnboarding) TargetHost() string {
	if o.Configuration != nil && o.Configuration.Route == RouteSubdomain && o.Configuration.SubdomainName != "" {
		return o.Configuration.SubdomainName + "." + o.Domain
	}
	return o.Domain
}

type DomainVerification struct {
	Method   string             `json:"method"`
	Token    string             `json:"token"`
	Status   VerificationStatus `json:"status"`
	Attempts int                `json:"attempts"`
	// VerifiedAt is set once every expected record has been observed.
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
}

// TXTValue is the record value the dealer publishes to prove ownership.
func (v DomainVerification) TXTValue() string {
	return "dealersites-verify=" + v.Token
}

type RouteRecommendation struct {
	Route    Route    `json:"route"`
	Reason   string   `json:"reason"`
	Warnings []string `json:"warnings,omitempty"`
}

type DomainConfiguration struct {
	Route               Route       `json:"route"`
	SubdomainName       string      `json:"subdomain_name,omitempty"`
	CDNZoneID           string      `json:"cdn_zone_id,omitempty"`
	AssignedNameservers []string    `json:"assigned_nameservers,omitempty"`
	Records             []DNSRecord `json:"records,omitempty"`
	// ProviderRecords are the verification values returned by the hosting provider.
	ProviderRecords []DNSRecord `json:"provider_records,omitempty"`
	GeneratedAt     *time.Time  `json:"generated_at,omitempty"`
}

// DNSRecord is one record the dealer must publish at their DNS provider.
type DNSRecord struct {
	Type  string `json:"type"`
	Name  string `json:"name"`
	Value string `json:"value"`
	TTL   int    `json:"ttl"`
}

type SSLCertificate struct {
	Status    SSLStatus  `json:"status"`
	Issuer    string     `json:"issuer,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CheckedAt *time.Time `json:"checked_at,omitempty"`
}

type DeploymentInfo struct {
	ProjectID    string          `json:"project_id"`
	ProjectName  string          `json:"project_name"`
	DeploymentID string          `json:"deployment_id,omitempty"`
	State        DeploymentState `json:"state,omitempty"`
	URL          string          `json:"url,omitempty"`
	WorkflowID   string          `json:"workflow_id,omitempty"`
	Error        string          `json:"error,omitempty"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	FinishedAt   *time.Time      `json:"finished_at,omitempty"`
}

type AutoCheck struct {
	Status     AutoCheckStatus `json:"status"`
	WorkflowID string          `json:"workflow_id,omitempty"`
	StartedAt  *time.Time      `json:"started_at,omitempty"`
	EndedAt    *time.Time      `json:"ended_at,omitempty"`
}

type TestResult struct {
	Name   string    `json:"name"`
	Passed bool      `json:"passed"`
	Detail string    `json:"detail,omitempty"`
	At     time.Time `json:"at"`
}
