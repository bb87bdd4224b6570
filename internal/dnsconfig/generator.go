// Package dnsconfig produces the DNS records and setup instructions a dealer
// follows to point their domain at the platform. It performs no network I/O.
package dnsconfig

import (
	_ "embed"
	"fmt"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/edvin/dealersites/internal/model"
)

// VerificationHost is the record name that carries the ownership token.
const VerificationHost = "_dealersites-verify"

const DefaultTTL = 3600

const saveStep = "Save your changes and return here. DNS changes usually appear within an hour but can take up to 48 hours."

//go:embed registrar_help.yaml
var registrarHelpYAML []byte

// Targets are the platform endpoints the records point at.
type Targets struct {
	ApexIP      string
	CNAMETarget string
	TTL         int
}

type Instructions struct {
	Route         model.Route       `json:"route"`
	Host          string            `json:"host"`
	Records       []model.DNSRecord `json:"records"`
	Nameservers   []string          `json:"nameservers,omitempty"`
	Steps         []string          `json:"steps"`
	Registrar     string            `json:"registrar"`
	RegistrarHelp string            `json:"registrar_help"`
}

type Generator struct {
	targets Targets
	help    map[string]string
}

func NewGenerator(targets Targets) (*Generator, error) {
	help := make(map[string]string)
	if err := yaml.Unmarshal(registrarHelpYAML, &help); err != nil {
		return nil, fmt.Errorf("parse registrar help: %w", err)
	}
	if _, ok := help["other"]; !ok {
		return nil, fmt.Errorf("registrar help has no \"other\" entry")
	}
	if targets.TTL == 0 {
		targets.TTL = DefaultTTL
	}
	return &Generator{targets: targets, help: help}, nil
}

// Generate is deterministic: the same onboarding always yields the same instructions.
func (g *Generator) Generate(o *model.DomainOnboarding) (Instructions, error) {
	if o.Configuration == nil || !o.Configuration.Route.Valid() {
		return Instructions{}, fmt.Errorf("onboarding %s has no route selected", o.ID)
	}
	cfg := o.Configuration
	cnameTarget := g.cnameTarget(cfg.ProviderRecords)

	ins := Instructions{
		Route:         cfg.Route,
		Host:          o.TargetHost(),
		Registrar:     o.Registrar,
		RegistrarHelp: g.RegistrarHelp(o.Registrar),
	}

	switch cfg.Route {
	case model.RouteFullDomain:
		ins.Records = []model.DNSRecord{
			{Type: "A", Name: "@", Value: g.targets.ApexIP, TTL: g.targets.TTL},
			{Type: "CNAME", Name: "www", Value: cnameTarget, TTL: g.targets.TTL},
			{Type: "TXT", Name: VerificationHost, Value: o.Verification.TXTValue(), TTL: g.targets.TTL},
		}
		ins.Steps = []string{
			"Sign in to your domain registrar or DNS provider.",
			"Remove any existing A record for the root domain (@) and any CNAME for www.",
			"Add the A record for @ shown below.",
			"Add the CNAME record for www shown below.",
			"Add the TXT record shown below to verify ownership.",
			saveStep,
		}
	case model.RouteSubdomain:
		ins.Records = []model.DNSRecord{
			{Type: "CNAME", Name: cfg.SubdomainName, Value: cnameTarget, TTL: g.targets.TTL},
			{Type: "TXT", Name: VerificationHost + "." + cfg.SubdomainName, Value: o.Verification.TXTValue(), TTL: g.targets.TTL},
		}
		ins.Nameservers = append([]string(nil), cfg.AssignedNameservers...)
		ins.Steps = []string{
			"Sign in to your domain registrar or DNS provider.",
			fmt.Sprintf("Add the CNAME record for %s shown below. Leave your existing website and email records unchanged.", cfg.SubdomainName),
			"Add the TXT record shown below to verify ownership.",
			saveStep,
		}
		if len(ins.Nameservers) > 0 {
			ins.Steps = append(ins.Steps, "Optional: to use our CDN for this domain, replace your nameservers with the ones listed below.")
		}
	}

	if extra := g.providerRecords(o.Domain, cfg.ProviderRecords); len(extra) > 0 {
		ins.Records = append(ins.Records, extra...)
		ins.Steps = slices.Insert(ins.Steps, slices.Index(ins.Steps, saveStep),
			"Add the hosting verification records shown below exactly as listed.")
	}
	return ins, nil
}

// providerRecords returns the provider's verification records with names
// relative to domain. Its CNAME is already used as the record target.
func (g *Generator) providerRecords(domain string, provider []model.DNSRecord) []model.DNSRecord {
	var out []model.DNSRecord
	for _, r := range provider {
		if r.Value == "" || r.Type == "CNAME" {
			continue
		}
		out = append(out, model.DNSRecord{Type: r.Type, Name: relativeName(r.Name, domain), Value: r.Value, TTL: g.targets.TTL})
	}
	return out
}

// relativeName turns a fully-qualified name into one relative to domain.
// Names outside domain keep a trailing dot.
func relativeName(name, domain string) string {
	name = strings.TrimSuffix(strings.ToLower(name), ".")
	switch {
	case name == domain:
		return "@"
	case strings.HasSuffix(name, "."+domain):
		return strings.TrimSuffix(name, "."+domain)
	default:
		return name + "."
	}
}

// RegistrarHelp returns registrar-specific guidance, falling back to "other".
func (g *Generator) RegistrarHelp(registrar string) string {
	if h, ok := g.help[registrar]; ok {
		return h
	}
	return g.help["other"]
}

// cnameTarget prefers the CNAME value the hosting provider asked for.
func (g *Generator) cnameTarget(provider []model.DNSRecord) string {
	for _, r := range provider {
		if r.Type == "CNAME" && r.Value != "" {
			return r.Value
		}
	}
	return g.targets.CNAMETarget
}
