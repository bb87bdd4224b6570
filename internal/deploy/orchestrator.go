// Package deploy provisions a dealer's hosting project and drives releases.
// Every write is safe to repeat with the same input.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/edvin/dealersites/internal/hosting"
	"github.com/edvin/dealersites/internal/model"
)

// Settings are the per-platform values every dealer project receives.
type Settings struct {
	Repository    string
	DefaultBranch string
	DatabaseURL   string
	PublicKey     string
}

type Orchestrator struct {
	provider hosting.Provider
	settings Settings
	logger   zerolog.Logger
}

func NewOrchestrator(provider hosting.Provider, settings Settings, logger zerolog.Logger) *Orchestrator {
	if settings.DefaultBranch == "" {
		settings.DefaultBranch = "main"
	}
	return &Orchestrator{
		provider: provider,
		settings: settings,
		logger:   logger.With().Str("component", "deploy").Logger(),
	}
}

// ProjectName is the deterministic hosting project name for a dealer slug.
func ProjectName(slug string) string {
	return "dealer-" + slug
}

// EnsureProject returns the dealer's project, creating it on first use.
func (o *Orchestrator) EnsureProject(ctx context.Context, slug string) (*hosting.Project, error) {
	name := ProjectName(slug)
	p, err := o.provider.FindProject(ctx, name)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, hosting.ErrNotFound) {
		return nil, fmt.Errorf("find project %s: %w", name, err)
	}

	p, err = o.provider.CreateProject(ctx, name, o.settings.Repository)
	if hosting.IsConflict(err) {
		// Lost a race with a concurrent create; the project exists now.
		p, err = o.provider.FindProject(ctx, name)
	}
	if err != nil {
		return nil, fmt.Errorf("create project %s: %w", name, err)
	}
	o.logger.Info().Str("project", name).Str("project_id", p.ID).Msg("created hosting project")
	return p, nil
}

// EnvVars returns the encrypted runtime configuration for a dealer site,
// sorted by key.
func (o *Orchestrator) EnvVars(dealerID, slug string) []hosting.EnvVar {
	values := map[string]string{
		"DATABASE_URL":   o.settings.DatabaseURL,
		"PUBLIC_API_KEY": o.settings.PublicKey,
		"DEALER_ID":      dealerID,
		"DEALER_SLUG":    slug,
	}
	vars := make([]hosting.EnvVar, 0, len(values))
	for k, v := range values {
		if v == "" {
			continue
		}
		vars = append(vars, hosting.EnvVar{Key: k, Value: v, Type: "encrypted", Target: hosting.AllTargets})
	}
	sort.Slice(vars, func(i, j int) bool { return vars[i].Key < vars[j].Key })
	return vars
}

func (o *Orchestrator) ConfigureEnv(ctx context.Context, projectID, dealerID, slug string) error {
	if err := o.provider.SetEnvVars(ctx, projectID, o.EnvVars(dealerID, slug)); err != nil {
		return fmt.Errorf("set env vars on %s: %w", projectID, err)
	}
	return nil
}

// AttachDomain binds domain to the project and returns what the provider
// needs to see in DNS. An already-attached domain is not an error.
func (o *Orchestrator) AttachDomain(ctx context.Context, projectID, domain string) (*hosting.DomainVerification, error) {
	if _, err := o.provider.AddDomain(ctx, projectID, domain); err != nil && !hosting.IsConflict(err) {
		return nil, fmt.Errorf("add domain %s: %w", domain, err)
	}
	v, err := o.provider.GetDomainVerification(ctx, projectID, domain)
	if err != nil {
		return nil, fmt.Errorf("get domain verification %s: %w", domain, err)
	}
	return v, nil
}

// Trigger starts a production deployment of ref, or the default branch when empty.
func (o *Orchestrator) Trigger(ctx context.Context, project *hosting.Project, ref string) (*hosting.Deployment, error) {
	if ref == "" {
		ref = o.settings.DefaultBranch
	}
	d, err := o.provider.TriggerDeployment(ctx, project.ID, project.Name, o.settings.Repository, ref)
	if err != nil {
		return nil, fmt.Errorf("trigger deployment for %s: %w", project.Name, err)
	}
	return d, nil
}

// Status polls a deployment once.
func (o *Orchestrator) Status(ctx context.Context, deploymentID string) (model.DeploymentState, string, error) {
	d, err := o.provider.GetDeployment(ctx, deploymentID)
	if err != nil {
		return "", "", fmt.Errorf("get deployment %s: %w", deploymentID, err)
	}
	return d.State(), d.URL, nil
}

// Deploy ensures the project and its configuration, then triggers a release.
func (o *Orchestrator) Deploy(ctx context.Context, dealerID, slug, ref string) (*hosting.Project, *hosting.Deployment, error) {
	p, err := o.EnsureProject(ctx, slug)
	if err != nil {
		return nil, nil, err
	}
	if err := o.ConfigureEnv(ctx, p.ID, dealerID, slug); err != nil {
		return nil, nil, err
	}
	d, err := o.Trigger(ctx, p, ref)
	if err != nil {
		return nil, nil, err
	}
	return p, d, nil
}

// ProviderRecords converts a provider verification answer into DNS records
// the propagation tracker can wait for.
func ProviderRecords(host string, v *hosting.DomainVerification) []model.DNSRecord {
	var out []model.DNSRecord
	if v == nil {
		return out
	}
	if v.CNAMETarget != "" {
		out = append(out, model.DNSRecord{Type: "CNAME", Name: host, Value: v.CNAMETarget})
	}
	for _, r := range v.VerificationRecords {
		out = append(out, model.DNSRecord{Type: r.Type, Name: r.Domain, Value: r.Value})
	}
	return out
}
