package propagation

import (
	"fmt"
	"strings"

	"github.com/edvin/dealersites/internal/dnsconfig"
	"github.com/edvin/dealersites/internal/model"
)

// Record keys reported in the propagation status.
const (
	KeyARecord   = "a_record"
	KeyWWWRecord = "www_record"
	KeyTXTRecord = "txt_record"

	// KeyProviderRecord prefixes records the hosting provider asked for,
	// numbered in instruction order: provider_record_1, provider_record_2.
	KeyProviderRecord = "provider_record"
)

// Expectation is one record the tracker waits for, with a fully-qualified name.
type Expectation struct {
	Key   string
	Type  string
	Name  string
	Value string
}

// Expectations maps generated DNS records to status keys. The record serving
// the site (apex A or subdomain CNAME) is reported as a_record; anything
// beyond the platform's own records gets a provider_record key.
func Expectations(domain string, records []model.DNSRecord) []Expectation {
	var out []Expectation
	used := make(map[string]bool)
	provider := 0
	for _, r := range records {
		e := Expectation{Type: r.Type, Name: qualify(r.Name, domain), Value: r.Value}
		switch {
		case r.Type == "TXT" && strings.HasPrefix(r.Name, dnsconfig.VerificationHost):
			e.Key = KeyTXTRecord
		case r.Type == "CNAME" && r.Name == "www":
			e.Key = KeyWWWRecord
		case r.Type == "A" || r.Type == "CNAME":
			e.Key = KeyARecord
		case r.Type != "TXT":
			continue
		}
		if e.Key == "" || used[e.Key] {
			provider++
			e.Key = fmt.Sprintf("%s_%d", KeyProviderRecord, provider)
		}
		used[e.Key] = true
		out = append(out, e)
	}
	return out
}

func qualify(name, domain string) string {
	if name == "@" || name == "" {
		return domain
	}
	if strings.HasSuffix(name, ".") {
		return strings.TrimSuffix(name, ".")
	}
	return name + "." + domain
}

func normalizeHost(h string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(h)), ".")
}
