package model

import "time"

type Domain struct {
	ID                    string       `json:"id" db:"id"`
	DealerID              string       `json:"dealer_id" db:"dealer_id"`
	Domain                string       `json:"domain" db:"domain"`
	Slug                  string       `json:"slug" db:"slug"`
	Type                  DomainType   `json:"type" db:"type"`
	Status                DomainStatus `json:"status" db:"status"`
	SSLStatus             SSLStatus    `json:"ssl_status" db:"ssl_status"`
	SSLExpiresAt          *time.Time   `json:"ssl_expires_at,omitempty" db:"ssl_expires_at"`
	IsPrimary             bool         `json:"is_primary" db:"is_primary"`
	Registrar             *string      `json:"registrar,omitempty" db:"registrar"`
	RegistrationExpiresAt *time.Time   `json:"registration_expires_at,omitempty" db:"registration_expires_at"`
	AutoRenew             bool         `json:"auto_renew" db:"auto_renew"`
	CreatedAt             time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time    `json:"updated_at" db:"updated_at"`
	// ExpiryWarnedDays is the last expiry checkpoint warned about for the
	// current registration_expires_at, nil when none has been sent.
	ExpiryWarnedDays *int `json:"-" db:"expiry_warned_days"`
}

// TracksRegistration reports whether the domain has a registration that can lapse.
func (d *Domain) TracksRegistration() bool {
	return d.Type == DomainTypeCustom || d.Type == DomainTypeManaged
}

type Dealer struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Slug      string    `json:"slug" db:"slug"`
	City      string    `json:"city" db:"city"`
	Email     string    `json:"email" db:"email"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
