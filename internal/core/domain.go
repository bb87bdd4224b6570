package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/edvin/dealersites/internal/model"
	"github.com/edvin/dealersites/internal/notify"
	"github.com/edvin/dealersites/internal/platform"
)

const domainColumns = `id, dealer_id, domain, slug, type, status, ssl_status, ssl_expires_at, is_primary,
	registrar, registration_expires_at, auto_renew, created_at, updated_at, expiry_warned_days`

func scanDomain(row pgx.Row, d *model.Domain) error {
	return row.Scan(&d.ID, &d.DealerID, &d.Domain, &d.Slug, &d.Type, &d.Status, &d.SSLStatus,
		&d.SSLExpiresAt, &d.IsPrimary, &d.Registrar, &d.RegistrationExpiresAt, &d.AutoRenew,
		&d.CreatedAt, &d.UpdatedAt, &d.ExpiryWarnedDays)
}

// DomainService owns the dealer's hosting bindings. Every dealer with at
// least one domain has exactly one primary.
type DomainService struct {
	db             DB
	dealers        *DealerService
	notifier       Notifier
	platformDomain string
}

func NewDomainService(db DB, dealers *DealerService, notifier Notifier, platformDomain string) *DomainService {
	return &DomainService{db: db, dealers: dealers, notifier: notifier, platformDomain: platformDomain}
}

// Create inserts d. It becomes primary when requested or when the dealer has
// no primary yet.
func (s *DomainService) Create(ctx context.Context, d *model.Domain) error {
	if d.ID == "" {
		d.ID = platform.NewID()
	}
	now := time.Now()
	d.CreatedAt, d.UpdatedAt = now, now

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create domain: %w", err)
	}
	defer rollback(ctx, tx)

	if err := claimPrimary(ctx, tx, d.DealerID, &d.IsPrimary); err != nil {
		return err
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO domains (`+domainColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		d.ID, d.DealerID, d.Domain, d.Slug, d.Type, d.Status, d.SSLStatus, d.SSLExpiresAt, d.IsPrimary,
		d.Registrar, d.RegistrationExpiresAt, d.AutoRenew, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert domain %s: %w", d.Domain, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit create domain: %w", err)
	}
	return nil
}

// claimPrimary clears the dealer's current primary when primary is set, and
// sets primary when the dealer has none.
func claimPrimary(ctx context.Context, tx pgx.Tx, dealerID string, primary *bool) error {
	if !*primary {
		var has bool
		if err := tx.QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM domains WHERE dealer_id = $1 AND is_primary)", dealerID,
		).Scan(&has); err != nil {
			return fmt.Errorf("check primary domain for dealer %s: %w", dealerID, err)
		}
		*primary = !has
		return nil
	}
	if _, err := tx.Exec(ctx,
		"UPDATE domains SET is_primary = false, updated_at = now() WHERE dealer_id = $1 AND is_primary", dealerID,
	); err != nil {
		return fmt.Errorf("clear primary domain for dealer %s: %w", dealerID, err)
	}
	return nil
}

func (s *DomainService) GetByID(ctx context.Context, id string) (*model.Domain, error) {
	var d model.Domain
	if err := scanDomain(s.db.QueryRow(ctx, `SELECT `+domainColumns+` FROM domains WHERE id = $1`, id), &d); err != nil {
		return nil, fmt.Errorf("get domain %s: %w", id, notFound(err))
	}
	return &d, nil
}

func (s *DomainService) GetByDomain(ctx context.Context, host string) (*model.Domain, error) {
	var d model.Domain
	if err := scanDomain(s.db.QueryRow(ctx, `SELECT `+domainColumns+` FROM domains WHERE domain = $1`, host), &d); err != nil {
		return nil, fmt.Errorf("get domain %s: %w", host, notFound(err))
	}
	return &d, nil
}

func (s *DomainService) ListByDealer(ctx context.Context, dealerID string) ([]model.Domain, error) {
	return s.list(ctx,
		`SELECT `+domainColumns+` FROM domains WHERE dealer_id = $1 ORDER BY is_primary DESC, domain`, dealerID)
}

func (s *DomainService) list(ctx context.Context, query string, args ...any) ([]model.Domain, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list domains: %w", err)
	}
	defer rows.Close()

	var domains []model.Domain
	for rows.Next() {
		var d model.Domain
		if err := scanDomain(rows, &d); err != nil {
			return nil, fmt.Errorf("scan domain: %w", err)
		}
		domains = append(domains, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate domains: %w", err)
	}
	return domains, nil
}

// EnsurePlatformSubdomain gives the dealer its free <slug>.<platform domain>
// binding. It reports whether the domain was created by this call.
func (s *DomainService) EnsurePlatformSubdomain(ctx context.Context, dealerID string) (*model.Domain, bool, error) {
	dealer, err := s.dealers.GetByID(ctx, dealerID)
	if err != nil {
		return nil, false, err
	}
	host := platform.PlatformHostname(dealer.Slug, s.platformDomain)

	existing, err := s.GetByDomain(ctx, host)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	d := &model.Domain{
		DealerID:  dealerID,
		Domain:    host,
		Slug:      dealer.Slug,
		Type:      model.DomainTypeSubdomain,
		Status:    model.DomainActive,
		SSLStatus: model.SSLActive,
	}
	if err := s.Create(ctx, d); err != nil {
		return nil, false, err
	}
	s.notifier.Notify(ctx, dealer.Email, notify.SubdomainLive{DealerName: dealer.Name, Hostname: host})
	return d, true, nil
}

// SetPrimary makes domainID the dealer's only primary. The domain must be active.
func (s *DomainService) SetPrimary(ctx context.Context, dealerID, domainID string) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin set primary: %w", err)
	}
	defer rollback(ctx, tx)

	var status model.DomainStatus
	err = tx.QueryRow(ctx,
		"SELECT status FROM domains WHERE id = $1 AND dealer_id = $2 FOR UPDATE", domainID, dealerID,
	).Scan(&status)
	if err != nil {
		return fmt.Errorf("get domain %s: %w", domainID, notFound(err))
	}
	if status != model.DomainActive {
		return fmt.Errorf("domain %s is %s, only active domains can be primary: %w", domainID, status, ErrConflict)
	}

	primary := true
	if err := claimPrimary(ctx, tx, dealerID, &primary); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		"UPDATE domains SET is_primary = true, updated_at = now() WHERE id = $1", domainID,
	); err != nil {
		return fmt.Errorf("set primary domain %s: %w", domainID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit set primary: %w", err)
	}
	return nil
}

// Activate binds host to the dealer after a successful deployment and makes
// it primary. registrarName is the registrar detected during onboarding. A
// managed domain registered earlier keeps its type and registration details.
func (s *DomainService) Activate(ctx context.Context, dealerID, slug, host, registrarName string, ssl model.SSLStatus, sslExpiresAt *time.Time) (*model.Domain, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin activate domain: %w", err)
	}
	defer rollback(ctx, tx)

	primary := true
	if err := claimPrimary(ctx, tx, dealerID, &primary); err != nil {
		return nil, err
	}

	var d model.Domain
	err = scanDomain(tx.QueryRow(ctx,
		`INSERT INTO domains (id, dealer_id, domain, slug, type, status, ssl_status, ssl_expires_at, is_primary, registrar, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, true, NULLIF($9, ''), now(), now())
		 ON CONFLICT (domain) DO UPDATE SET
		   status = EXCLUDED.status,
		   ssl_status = EXCLUDED.ssl_status,
		   ssl_expires_at = EXCLUDED.ssl_expires_at,
		   slug = EXCLUDED.slug,
		   registrar = COALESCE(domains.registrar, EXCLUDED.registrar),
		   is_primary = true,
		   updated_at = now()
		 WHERE domains.dealer_id = EXCLUDED.dealer_id
		 RETURNING `+domainColumns,
		platform.NewID(), dealerID, host, slug, model.DomainTypeCustom, model.DomainActive, ssl, sslExpiresAt, registrarName,
	), &d)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("domain %s belongs to another dealer: %w", host, ErrConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("upsert domain %s: %w", host, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit activate domain: %w", err)
	}
	return &d, nil
}

// UpdateStatus moves a domain from one status to another. A primary domain
// that fails or expires hands primary back to the dealer's free subdomain.
func (s *DomainService) UpdateStatus(ctx context.Context, id string, from, to model.DomainStatus) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin update domain status: %w", err)
	}
	defer rollback(ctx, tx)

	var dealerID string
	var wasPrimary bool
	err = tx.QueryRow(ctx,
		"SELECT dealer_id, is_primary FROM domains WHERE id = $1 AND status = $2 FOR UPDATE", id, from,
	).Scan(&dealerID, &wasPrimary)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("domain %s is no longer %s: %w", id, from, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("get domain %s: %w", id, err)
	}

	demote := wasPrimary && (to == model.DomainFailed || to == model.DomainExpired)
	if demote {
		var fallback string
		err := tx.QueryRow(ctx,
			"SELECT id FROM domains WHERE dealer_id = $1 AND type = $2 AND id <> $3", dealerID, model.DomainTypeSubdomain, id,
		).Scan(&fallback)
		if errors.Is(err, pgx.ErrNoRows) {
			// Nothing to fall back to; the domain stays primary.
			demote = false
		} else if err != nil {
			return fmt.Errorf("find fallback domain for dealer %s: %w", dealerID, err)
		} else {
			if _, err := tx.Exec(ctx,
				"UPDATE domains SET is_primary = false, status = $2, updated_at = now() WHERE id = $1", id, to,
			); err != nil {
				return fmt.Errorf("demote domain %s: %w", id, err)
			}
			if _, err := tx.Exec(ctx,
				"UPDATE domains SET is_primary = true, updated_at = now() WHERE id = $1", fallback,
			); err != nil {
				return fmt.Errorf("promote domain %s: %w", fallback, err)
			}
		}
	}
	if !demote {
		if _, err := tx.Exec(ctx,
			"UPDATE domains SET status = $2, updated_at = now() WHERE id = $1", id, to,
		); err != nil {
			return fmt.Errorf("update domain %s status: %w", id, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit update domain status: %w", err)
	}
	return nil
}

// ListSSLMonitorCandidates returns active domains whose certificate the SSL
// monitor watches.
func (s *DomainService) ListSSLMonitorCandidates(ctx context.Context) ([]model.Domain, error) {
	return s.list(ctx,
		`SELECT `+domainColumns+` FROM domains
		 WHERE status = $1 AND ssl_status = ANY($2) ORDER BY domain`,
		model.DomainActive,
		[]string{string(model.SSLActive), string(model.SSLProvisioning), string(model.SSLRenewing)},
	)
}

// ListExpiryMonitorCandidates returns managed domains with a known
// registration expiry and every custom domain, whose expiry the monitor
// looks up and refreshes.
func (s *DomainService) ListExpiryMonitorCandidates(ctx context.Context) ([]model.Domain, error) {
	return s.list(ctx,
		`SELECT `+domainColumns+` FROM domains
		 WHERE status <> $1 AND (type = $2 OR (type = $3 AND registration_expires_at IS NOT NULL))
		 ORDER BY registration_expires_at NULLS FIRST, domain`,
		model.DomainFailed, model.DomainTypeCustom, model.DomainTypeManaged,
	)
}

// RecordRegistration stores a looked-up registration expiry, only if the
// stored one is still current. A new expiry clears the warning marker; the
// registrar is filled in when unknown.
func (s *DomainService) RecordRegistration(ctx context.Context, id string, current *time.Time, registrarName string, expiresAt time.Time) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE domains SET registration_expires_at = $3, registrar = COALESCE(registrar, NULLIF($4, '')),
		   expiry_warned_days = NULL, updated_at = now()
		 WHERE id = $1 AND registration_expires_at IS NOT DISTINCT FROM $2`,
		id, current, expiresAt, registrarName,
	)
	if err != nil {
		return fmt.Errorf("record domain %s registration: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("domain %s registration expiry changed concurrently: %w", id, ErrConflict)
	}
	return nil
}

// MarkExpiryWarned claims the expiry warning for checkpoint days. It fails
// with ErrConflict when another run already moved the marker from previous.
func (s *DomainService) MarkExpiryWarned(ctx context.Context, id string, expiresAt time.Time, previous *int, days int) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE domains SET expiry_warned_days = $4, updated_at = now()
		 WHERE id = $1 AND registration_expires_at = $2 AND expiry_warned_days IS NOT DISTINCT FROM $3`,
		id, expiresAt, previous, days,
	)
	if err != nil {
		return fmt.Errorf("mark domain %s expiry warning: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("domain %s expiry warning already recorded: %w", id, ErrConflict)
	}
	return nil
}

// UpdateSSL records a certificate check, only if ssl_status is still from.
func (s *DomainService) UpdateSSL(ctx context.Context, id string, from, to model.SSLStatus, expiresAt *time.Time) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE domains SET ssl_status = $3, ssl_expires_at = $4, updated_at = now()
		 WHERE id = $1 AND ssl_status = $2`,
		id, from, to, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("update domain %s ssl status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("domain %s ssl status is no longer %s: %w", id, from, ErrConflict)
	}
	return nil
}

// ExtendRegistration moves the registration expiry from current to next,
// only if nobody else has changed it.
func (s *DomainService) ExtendRegistration(ctx context.Context, id string, current, next time.Time) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE domains SET registration_expires_at = $3, expiry_warned_days = NULL, updated_at = now()
		 WHERE id = $1 AND registration_expires_at = $2`,
		id, current, next,
	)
	if err != nil {
		return fmt.Errorf("extend domain %s registration: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("domain %s registration expiry changed concurrently: %w", id, ErrConflict)
	}
	return nil
}

// ResolveSlug maps an active hostname to the dealer slug serving it.
func (s *DomainService) ResolveSlug(ctx context.Context, host string) (string, error) {
	var slug string
	err := s.db.QueryRow(ctx,
		"SELECT slug FROM domains WHERE domain = $1 AND status = $2", host, model.DomainActive,
	).Scan(&slug)
	if err != nil {
		return "", fmt.Errorf("resolve host %s: %w", host, notFound(err))
	}
	return slug, nil
}
