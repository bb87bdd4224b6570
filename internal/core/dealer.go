package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/edvin/dealersites/internal/model"
	"github.com/edvin/dealersites/internal/platform"
)

type DealerService struct {
	db DB
}

func NewDealerService(db DB) *DealerService {
	return &DealerService{db: db}
}

// maxSlugAttempts bounds retries when a generated slug is taken between
// the availability check and the insert.
const maxSlugAttempts = 3

// Create inserts a dealer, assigning a unique slug from its name and city
// when none is set. A slug is never changed after creation: domains, the
// platform subdomain and the hosting project are all keyed by it.
func (s *DealerService) Create(ctx context.Context, d *model.Dealer) error {
	if d.ID == "" {
		d.ID = platform.NewID()
	}
	generated := d.Slug == ""
	now := time.Now()
	d.CreatedAt, d.UpdatedAt = now, now

	for attempt := 1; ; attempt++ {
		if generated {
			slug, err := platform.UniqueSlug(ctx, d.Name, d.City, s.slugTaken(d.ID))
			if err != nil {
				return fmt.Errorf("generate slug for %q: %w", d.Name, err)
			}
			d.Slug = slug
		}
		_, err := s.db.Exec(ctx,
			`INSERT INTO dealers (id, name, slug, city, email, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			d.ID, d.Name, d.Slug, d.City, d.Email, d.CreatedAt, d.UpdatedAt,
		)
		if err == nil {
			return nil
		}
		if !isUniqueViolation(err, "dealers_slug_key") {
			return fmt.Errorf("insert dealer: %w", err)
		}
		if !generated || attempt == maxSlugAttempts {
			return fmt.Errorf("dealer slug %q is taken: %w", d.Slug, ErrConflict)
		}
	}
}

func (s *DealerService) GetByID(ctx context.Context, id string) (*model.Dealer, error) {
	var d model.Dealer
	err := s.db.QueryRow(ctx,
		`SELECT id, name, slug, city, email, created_at, updated_at FROM dealers WHERE id = $1`, id,
	).Scan(&d.ID, &d.Name, &d.Slug, &d.City, &d.Email, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("get dealer %s: %w", id, notFound(err))
	}
	return &d, nil
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation && pgErr.ConstraintName == constraint
}

func (s *DealerService) slugTaken(dealerID string) platform.SlugTaken {
	return func(ctx context.Context, slug string) (bool, error) {
		var taken bool
		err := s.db.QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM dealers WHERE slug = $1 AND id <> $2)", slug, dealerID,
		).Scan(&taken)
		return taken, err
	}
}
