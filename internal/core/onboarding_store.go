package core

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/edvin/dealersites/internal/model"
)

const onboardingColumns = `id, dealer_id, domain, registrar, access_level, verification, dns_analysis,
	recommendation, configuration, ssl_certificate, deployment, auto_check, current_state,
	test_results, failure_reason, created_at, updated_at, version`

// OnboardingStore persists the onboarding aggregate. Sub-records are stored
// as JSONB.
type OnboardingStore struct {
	db DB
}

func NewOnboardingStore(db DB) *OnboardingStore {
	return &OnboardingStore{db: db}
}

type onboardingJSON struct {
	verification, analysis, recommendation, configuration []byte
	ssl, deployment, autoCheck, testResults               []byte
}

func encodeOnboarding(o *model.DomainOnboarding) (onboardingJSON, error) {
	var enc onboardingJSON
	var err error
	marshal := func(v any) []byte {
		if err != nil {
			return nil
		}
		var b []byte
		b, err = json.Marshal(v)
		return b
	}
	nullable := func(isNil bool, v any) []byte {
		if isNil {
			return nil
		}
		return marshal(v)
	}

	results := o.TestResults
	if results == nil {
		results = []model.TestResult{}
	}
	enc.verification = marshal(o.Verification)
	enc.analysis = nullable(o.Analysis == nil, o.Analysis)
	enc.recommendation = nullable(o.Recommendation == nil, o.Recommendation)
	enc.configuration = nullable(o.Configuration == nil, o.Configuration)
	enc.ssl = nullable(o.SSL == nil, o.SSL)
	enc.deployment = nullable(o.Deployment == nil, o.Deployment)
	enc.autoCheck = marshal(o.AutoCheck)
	enc.testResults = marshal(results)
	if err != nil {
		return onboardingJSON{}, fmt.Errorf("encode onboarding %s: %w", o.ID, err)
	}
	return enc, nil
}

func (s *OnboardingStore) Create(ctx context.Context, o *model.DomainOnboarding) error {
	enc, err := encodeOnboarding(o)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO domain_onboardings (`+onboardingColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		o.ID, o.DealerID, o.Domain, o.Registrar, o.AccessLevel, enc.verification, enc.analysis,
		enc.recommendation, enc.configuration, enc.ssl, enc.deployment, enc.autoCheck, o.State,
		enc.testResults, o.FailureReason, o.CreatedAt, o.UpdatedAt, o.Version,
	)
	if err != nil {
		return fmt.Errorf("insert onboarding: %w", err)
	}
	return nil
}

func (s *OnboardingStore) Get(ctx context.Context, id string) (*model.DomainOnboarding, error) {
	var o model.DomainOnboarding
	var enc onboardingJSON
	err := s.db.QueryRow(ctx,
		`SELECT `+onboardingColumns+` FROM domain_onboardings WHERE id = $1`, id,
	).Scan(&o.ID, &o.DealerID, &o.Domain, &o.Registrar, &o.AccessLevel, &enc.verification, &enc.analysis,
		&enc.recommendation, &enc.configuration, &enc.ssl, &enc.deployment, &enc.autoCheck, &o.State,
		&enc.testResults, &o.FailureReason, &o.CreatedAt, &o.UpdatedAt, &o.Version)
	if err != nil {
		return nil, fmt.Errorf("get onboarding %s: %w", id, notFound(err))
	}
	if err := decodeOnboarding(&o, enc); err != nil {
		return nil, err
	}
	return &o, nil
}

func decodeOnboarding(o *model.DomainOnboarding, enc onboardingJSON) error {
	fields := []struct {
		raw []byte
		dst any
	}{
		{enc.verification, &o.Verification},
		{enc.analysis, &o.Analysis},
		{enc.recommendation, &o.Recommendation},
		{enc.configuration, &o.Configuration},
		{enc.ssl, &o.SSL},
		{enc.deployment, &o.Deployment},
		{enc.autoCheck, &o.AutoCheck},
		{enc.testResults, &o.TestResults},
	}
	for _, f := range fields {
		if len(f.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(f.raw, f.dst); err != nil {
			return fmt.Errorf("decode onboarding %s: %w", o.ID, err)
		}
	}
	return nil
}

// Save writes the aggregate only if the stored row is still the one o was
// loaded from: same state and same version. A concurrent writer that saved
// first yields ErrConflict and the caller reloads.
func (s *OnboardingStore) Save(ctx context.Context, o *model.DomainOnboarding, from model.OnboardingState) error {
	enc, err := encodeOnboarding(o)
	if err != nil {
		return err
	}
	updatedAt := time.Now()
	tag, err := s.db.Exec(ctx,
		`UPDATE domain_onboardings SET registrar = $3, access_level = $4, verification = $5,
		 dns_analysis = $6, recommendation = $7, configuration = $8, ssl_certificate = $9,
		 deployment = $10, auto_check = $11, current_state = $12, test_results = $13,
		 failure_reason = $14, updated_at = $15, version = version + 1
		 WHERE id = $1 AND current_state = $2 AND version = $16`,
		o.ID, from, o.Registrar, o.AccessLevel, enc.verification, enc.analysis,
		enc.recommendation, enc.configuration, enc.ssl, enc.deployment, enc.autoCheck, o.State,
		enc.testResults, o.FailureReason, updatedAt, o.Version,
	)
	if err != nil {
		return fmt.Errorf("update onboarding %s: %w", o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update onboarding %s from %s (version %d): %w", o.ID, from, o.Version, ErrConflict)
	}
	o.UpdatedAt = updatedAt
	o.Version++
	return nil
}

// PropagationRecords returns the stored evidence keyed by record key and the
// time of the first check, zero when none has run.
func (s *OnboardingStore) PropagationRecords(ctx context.Context, onboardingID string) (map[string]model.RecordStatus, time.Time, error) {
	rows, err := s.db.Query(ctx,
		`SELECT record_key, type, name, expected, observed, propagated, first_seen_at, created_at
		 FROM propagation_checks WHERE onboarding_id = $1`, onboardingID,
	)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("list propagation checks for %s: %w", onboardingID, err)
	}
	defer rows.Close()

	records := make(map[string]model.RecordStatus)
	var first time.Time
	for rows.Next() {
		var key string
		var observed []byte
		var created time.Time
		var r model.RecordStatus
		if err := rows.Scan(&key, &r.Type, &r.Name, &r.Expected, &observed, &r.Propagated, &r.FirstSeen, &created); err != nil {
			return nil, time.Time{}, fmt.Errorf("scan propagation check: %w", err)
		}
		if len(observed) > 0 {
			if err := json.Unmarshal(observed, &r.Observed); err != nil {
				return nil, time.Time{}, fmt.Errorf("decode observed values for %s: %w", key, err)
			}
		}
		if r.Observed == nil {
			r.Observed = []string{}
		}
		if first.IsZero() || created.Before(first) {
			first = created
		}
		records[key] = r
	}
	if err := rows.Err(); err != nil {
		return nil, time.Time{}, fmt.Errorf("iterate propagation checks: %w", err)
	}
	return records, first, nil
}

// SavePropagation upserts one row per record. A record that has propagated
// stays propagated while its type, name and expected value are unchanged.
func (s *OnboardingStore) SavePropagation(ctx context.Context, onboardingID string, records map[string]model.RecordStatus, at time.Time) error {
	for key, r := range records {
		observed, err := json.Marshal(r.Observed)
		if err != nil {
			return fmt.Errorf("encode observed values for %s: %w", key, err)
		}
		_, err = s.db.Exec(ctx,
			`INSERT INTO propagation_checks (onboarding_id, record_key, type, name, expected, observed, propagated, first_seen_at, created_at, checked_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
			 ON CONFLICT (onboarding_id, record_key) DO UPDATE SET
			   observed = EXCLUDED.observed,
			   propagated = CASE
			     WHEN propagation_checks.type = EXCLUDED.type AND propagation_checks.name = EXCLUDED.name
			          AND propagation_checks.expected = EXCLUDED.expected
			     THEN propagation_checks.propagated OR EXCLUDED.propagated
			     ELSE EXCLUDED.propagated END,
			   first_seen_at = CASE
			     WHEN propagation_checks.type = EXCLUDED.type AND propagation_checks.name = EXCLUDED.name
			          AND propagation_checks.expected = EXCLUDED.expected
			     THEN COALESCE(propagation_checks.first_seen_at, EXCLUDED.first_seen_at)
			     ELSE EXCLUDED.first_seen_at END,
			   type = EXCLUDED.type,
			   name = EXCLUDED.name,
			   expected = EXCLUDED.expected,
			   checked_at = EXCLUDED.checked_at`,
			onboardingID, key, r.Type, r.Name, r.Expected, observed, r.Propagated, r.FirstSeen, at,
		)
		if err != nil {
			return fmt.Errorf("upsert propagation check %s/%s: %w", onboardingID, key, err)
		}
	}
	return nil
}

// ResetPropagation discards evidence gathered for a previous configuration.
func (s *OnboardingStore) ResetPropagation(ctx context.Context, onboardingID string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM propagation_checks WHERE onboarding_id = $1`, onboardingID); err != nil {
		return fmt.Errorf("reset propagation checks for %s: %w", onboardingID, err)
	}
	return nil
}
