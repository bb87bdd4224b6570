package dnsanalysis

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// RegistrarOther is reported when no nameserver matches the table.
const RegistrarOther = "other"

//go:embed providers.yaml
var providersYAML []byte

type providerEntry struct {
	Name     string   `yaml:"name"`
	Patterns []string `yaml:"patterns"`
}

// ProviderTable maps nameserver hostnames to registrars and CDNs.
type ProviderTable struct {
	Registrars []providerEntry `yaml:"registrars"`
	CDNs       []providerEntry `yaml:"cdns"`
}

// DefaultProviders returns the embedded provider table.
func DefaultProviders() *ProviderTable {
	t, err := ParseProviders(providersYAML)
	if err != nil {
		panic(err)
	}
	return t
}

func ParseProviders(data []byte) (*ProviderTable, error) {
	var t ProviderTable
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse provider table: %w", err)
	}
	return &t, nil
}

// Registrar returns the first registrar whose pattern matches any nameserver.
func (t *ProviderTable) Registrar(nameservers []string) string {
	if name := match(t.Registrars, nameservers); name != "" {
		return name
	}
	return RegistrarOther
}

// CDN returns the reverse-proxy provider in front of the domain, or "".
func (t *ProviderTable) CDN(nameservers []string) string {
	return match(t.CDNs, nameservers)
}

func match(entries []providerEntry, nameservers []string) string {
	for _, ns := range nameservers {
		host := strings.ToLower(ns)
		for _, e := range entries {
			for _, p := range e.Patterns {
				if strings.Contains(host, strings.ToLower(p)) {
					return e.Name
				}
			}
		}
	}
	return ""
}
