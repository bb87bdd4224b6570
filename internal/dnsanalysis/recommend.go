package dnsanalysis

import (
	"fmt"
	"strings"

	"github.com/edvin/dealersites/internal/model"
)

// Recommend picks the subdomain route whenever pointing the apex at the
// platform would disrupt an existing website or mailbox.
func Recommend(a model.DNSAnalysis) model.RouteRecommendation {
	var disrupted []string
	if a.HasActiveWebsite {
		disrupted = append(disrupted, "your existing website")
	}
	if a.HasEmail {
		disrupted = append(disrupted, "your email (MX records)")
	}

	if len(disrupted) == 0 {
		rec := model.RouteRecommendation{
			Route:  model.RouteFullDomain,
			Reason: "No existing website or email was found, so the whole domain can point to your dealer site.",
		}
		if a.UsingCDN {
			rec.Warnings = append(rec.Warnings, fmt.Sprintf("DNS for this domain is served by %s; make sure proxying is disabled for the records you add.", a.CDNProvider))
		}
		return rec
	}

	services := strings.Join(disrupted, " and ")
	rec := model.RouteRecommendation{
		Route:  model.RouteSubdomain,
		Reason: fmt.Sprintf("We found %s. Using a subdomain keeps them working.", services),
		Warnings: []string{
			fmt.Sprintf("Pointing the full domain at your dealer site would disrupt %s.", services),
		},
	}
	if a.HasEmail {
		rec.Warnings = append(rec.Warnings, "Keep your MX records unchanged to preserve email delivery.")
	}
	return rec
}
