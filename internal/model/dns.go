package model

import "time"

// LookupOutcome distinguishes an empty answer from a failed query.
type LookupOutcome string

const (
	LookupResolved   LookupOutcome = "resolved"
	LookupUnresolved LookupOutcome = "unresolved"
	LookupErrored    LookupOutcome = "errored"
)

type LookupStatus struct {
	Outcome LookupOutcome `json:"outcome"`
	Reason  string        `json:"reason,omitempty"`
}

// DNSAnalysis is a point-in-time snapshot of a domain's DNS. Re-analysis
// produces a new value.
type DNSAnalysis struct {
	Nameservers      []string                `json:"nameservers"`
	ARecords         []string                `json:"a_records"`
	MXRecords        []string                `json:"mx_records"`
	TXTRecords       []string                `json:"txt_records"`
	CNAMEs           map[string]string       `json:"cnames"`
	HasActiveWebsite bool                    `json:"has_active_website"`
	HasEmail         bool                    `json:"has_email"`
	UsingCDN         bool                    `json:"using_cdn"`
	CDNProvider      string                  `json:"cdn_provider,omitempty"`
	Registrar        string                  `json:"registrar"`
	WebsiteURL       string                  `json:"website_url,omitempty"`
	Lookups          map[string]LookupStatus `json:"lookups"`
	CapturedAt       time.Time               `json:"captured_at"`
}

// PropagationStatus is the payload served to the propagation poller.
type PropagationStatus struct {
	Overall                PropagationOverall      `json:"overall"`
	Records                map[string]RecordStatus `json:"records"`
	EstimatedTimeRemaining string                  `json:"estimated_time_remaining"`
	Attempts               int                     `json:"attempts"`
	AutoCheck              AutoCheckStatus         `json:"auto_check"`
	CheckedAt              *time.Time              `json:"checked_at,omitempty"`
}

type PropagationOverall struct {
	ChecksPassed    int  `json:"checks_passed"`
	TotalChecks     int  `json:"total_checks"`
	Percentage      int  `json:"percentage"`
	FullyPropagated bool `json:"fully_propagated"`
}

type RecordStatus struct {
	Type       string     `json:"type"`
	Name       string     `json:"name"`
	Expected   string     `json:"expected"`
	Observed   []string   `json:"observed"`
	Propagated bool       `json:"propagated"`
	FirstSeen  *time.Time `json:"first_seen_at,omitempty"`
}
