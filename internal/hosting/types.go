package hosting

import "github.com/edvin/dealersites/internal/model"

type Project struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Framework string `json:"framework,omitempty"`
	Link      *struct {
		Type string `json:"type"`
		Repo string `json:"repo"`
	} `json:"link,omitempty"`
}

// EnvVar targets one or more deployment environments (production, preview, development).
type EnvVar struct {
	Key    string   `json:"key"`
	Value  string   `json:"value"`
	Type   string   `json:"type"`
	Target []string `json:"target"`
}

// AllTargets scopes an env var to every deployment environment.
var AllTargets = []string{"production", "preview", "development"}

type Deployment struct {
	ID         string `json:"id"`
	URL        string `json:"url"`
	ReadyState string `json:"readyState"`
}

// State maps the provider's readyState onto model.DeploymentState.
func (d *Deployment) State() model.DeploymentState {
	switch d.ReadyState {
	case "QUEUED":
		return model.DeploymentQueued
	case "BUILDING":
		return model.DeploymentBuilding
	case "INITIALIZING":
		return model.DeploymentInitializing
	case "READY":
		return model.DeploymentReady
	case "ERROR":
		return model.DeploymentError
	case "CANCELED":
		return model.DeploymentCanceled
	}
	return model.DeploymentQueued
}

// VerificationRecord is a DNS record the provider needs before it serves a domain.
type VerificationRecord struct {
	Type   string `json:"type"`
	Domain string `json:"domain"`
	Value  string `json:"value"`
	Reason string `json:"reason"`
}

type ProjectDomain struct {
	Name         string               `json:"name"`
	ProjectID    string               `json:"projectId"`
	Verified     bool                 `json:"verified"`
	Verification []VerificationRecord `json:"verification,omitempty"`
}

// DomainConfig is the provider's view of how a domain's DNS is set up.
type DomainConfig struct {
	Misconfigured    bool `json:"misconfigured"`
	RecommendedCNAME []struct {
		Rank  int    `json:"rank"`
		Value string `json:"value"`
	} `json:"recommendedCNAME"`
}

// DomainVerification combines project-domain and DNS config answers.
type DomainVerification struct {
	Verified            bool
	Configured          bool
	CNAMETarget         string
	VerificationRecords []VerificationRecord
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
