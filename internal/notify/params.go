package notify

import (
	"fmt"
	"time"

	"github.com/edvin/dealersites/internal/model"
)

type Kind string

const (
	KindSubdomainLive    Kind = "subdomain-live"
	KindDNSInstructions  Kind = "dns-instructions"
	KindDomainVerified   Kind = "domain-verified"
	KindExpiryWarning    Kind = "expiry-warning"
	KindSSLRenewalResult Kind = "ssl-renewal-result"
)

// Kinds lists every template the notifier must be able to render.
var Kinds = []Kind{
	KindSubdomainLive,
	KindDNSInstructions,
	KindDomainVerified,
	KindExpiryWarning,
	KindSSLRenewalResult,
}

// Params is the template data for one notification kind.
type Params interface {
	Kind() Kind
	Subject() string
}

type SubdomainLive struct {
	DealerName string
	Hostname   string
}

func (SubdomainLive) Kind() Kind         { return KindSubdomainLive }
func (p SubdomainLive) Subject() string { return "Your website is live at " + p.Hostname }

type DNSInstructions struct {
	Domain        string
	Registrar     string
	Records       []model.DNSRecord
	Nameservers   []string
	Steps         []string
	RegistrarHelp string
}

func (DNSInstructions) Kind() Kind         { return KindDNSInstructions }
func (p DNSInstructions) Subject() string { return "DNS setup instructions for " + p.Domain }

// RegistrarName is used in prose; unknown registrars read as "your registrar".
func (p DNSInstructions) RegistrarName() string {
	if p.Registrar == "" || p.Registrar == "other" {
		return "your registrar"
	}
	return p.Registrar
}

type DomainVerified struct {
	Domain string
}

func (DomainVerified) Kind() Kind         { return KindDomainVerified }
func (p DomainVerified) Subject() string { return p.Domain + " is connected to your website" }

type ExpiryWarning struct {
	Domain    string
	DaysLeft  int
	ExpiresAt time.Time
	AutoRenew bool
}

func (ExpiryWarning) Kind() Kind { return KindExpiryWarning }
func (p ExpiryWarning) Subject() string {
	return fmt.Sprintf("%s expires in %d days", p.Domain, p.DaysLeft)
}

type SSLRenewalResult struct {
	Domain    string
	Renewed   bool
	ExpiresAt time.Time
	Reason    string
}

func (SSLRenewalResult) Kind() Kind { return KindSSLRenewalResult }
func (p SSLRenewalResult) Subject() string {
	if p.Renewed {
		return "SSL certificate renewed for " + p.Domain
	}
	return "SSL certificate problem on " + p.Domain
}
