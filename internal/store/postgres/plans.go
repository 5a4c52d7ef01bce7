package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/linkshelf/linkshelf/pkg/billing"
	"github.com/linkshelf/linkshelf/pkg/pg"
)

// PlanStore implements billing.PlanStore.
type PlanStore struct {
	db *sql.DB
}

func NewPlanStore(db *sql.DB) *PlanStore {
	return &PlanStore{db: db}
}

const planColumns = `id, name, slug, description, active, featured, features, limits, trial_days, created_at, updated_at`

const versionColumns = `id, plan_id, version, monthly_price, yearly_price, currency, features, active,
	valid_from, valid_until, provider_monthly_price_id, provider_yearly_price_id, created_at`

func scanPlan(row scanner) (*billing.Plan, error) {
	var (
		p        billing.Plan
		features []byte
		limits   []byte
	)
	err := row.Scan(&p.ID, &p.Name, &p.Slug, &p.Description, &p.Active, &p.Featured,
		&features, &limits, &p.TrialDays, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := unmarshalJSON(features, &p.Features); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(limits, &p.Limits); err != nil {
		return nil, err
	}
	return &p, nil
}

func scanVersion(row scanner) (*billing.PlanVersion, error) {
	var (
		v        billing.PlanVersion
		features []byte
	)
	err := row.Scan(&v.ID, &v.PlanID, &v.Version, &v.MonthlyPrice, &v.YearlyPrice, &v.Currency,
		&features, &v.Active, &v.ValidFrom, &v.ValidUntil,
		&v.ProviderMonthlyPriceID, &v.ProviderYearlyPriceID, &v.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := unmarshalJSON(features, &v.Features); err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *PlanStore) ListPlans(ctx context.Context) ([]billing.Plan, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+planColumns+` FROM plans ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	defer rows.Close()

	var out []billing.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *PlanStore) GetPlan(ctx context.Context, id uuid.UUID) (*billing.Plan, error) {
	p, err := scanPlan(s.db.QueryRowContext(ctx, `SELECT `+planColumns+` FROM plans WHERE id = $1`, id))
	return p, planErr(err)
}

func (s *PlanStore) GetPlanBySlug(ctx context.Context, slug string) (*billing.Plan, error) {
	p, err := scanPlan(s.db.QueryRowContext(ctx, `SELECT `+planColumns+` FROM plans WHERE slug = $1`, slug))
	return p, planErr(err)
}

func (s *PlanStore) SavePlan(ctx context.Context, p *billing.Plan) error {
	features, err := marshalJSON(p.Features)
	if err != nil {
		return err
	}
	limits, err := marshalJSON(p.Limits)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO plans (`+planColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			slug = EXCLUDED.slug,
			description = EXCLUDED.description,
			active = EXCLUDED.active,
			featured = EXCLUDED.featured,
			features = EXCLUDED.features,
			limits = EXCLUDED.limits,
			trial_days = EXCLUDED.trial_days,
			updated_at = EXCLUDED.updated_at`,
		p.ID, p.Name, p.Slug, p.Description, p.Active, p.Featured,
		features, limits, p.TrialDays, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			return errors.Join(billing.ErrInvalidPlan, fmt.Errorf("slug %q is taken", p.Slug))
		}
		return fmt.Errorf("failed to save plan: %w", err)
	}
	return nil
}

func (s *PlanStore) ListVersions(ctx context.Context, planID uuid.UUID) ([]billing.PlanVersion, error) {
	return listVersions(ctx, s.db, planID)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func listVersions(ctx context.Context, q querier, planID uuid.UUID) ([]billing.PlanVersion, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+versionColumns+` FROM plan_versions WHERE plan_id = $1 ORDER BY created_at`, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to list plan versions: %w", err)
	}
	defer rows.Close()

	var out []billing.PlanVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plan version: %w", err)
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

func (s *PlanStore) GetVersion(ctx context.Context, id uuid.UUID) (*billing.PlanVersion, error) {
	v, err := scanVersion(s.db.QueryRowContext(ctx, `SELECT `+versionColumns+` FROM plan_versions WHERE id = $1`, id))
	return v, versionErr(err)
}

// FindVersionByPriceID prefers the newest version carrying the price id.
func (s *PlanStore) FindVersionByPriceID(ctx context.Context, priceID string) (*billing.PlanVersion, error) {
	v, err := scanVersion(s.db.QueryRowContext(ctx, `
		SELECT `+versionColumns+` FROM plan_versions
		WHERE provider_monthly_price_id = $1 OR provider_yearly_price_id = $1
		ORDER BY created_at DESC LIMIT 1`, priceID))
	return v, versionErr(err)
}

// CreateVersion holds the plan row lock for the whole transaction so two
// concurrent creations see each other's labels.
func (s *PlanStore) CreateVersion(ctx context.Context, planID uuid.UUID, build func([]billing.PlanVersion) (*billing.PlanVersion, error)) (*billing.PlanVersion, error) {
	var created *billing.PlanVersion
	err := pg.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var locked uuid.UUID
		if err := tx.QueryRowContext(ctx, `SELECT id FROM plans WHERE id = $1 FOR UPDATE`, planID).Scan(&locked); err != nil {
			return planErr(err)
		}

		existing, err := listVersions(ctx, tx, planID)
		if err != nil {
			return err
		}
		v, err := build(existing)
		if err != nil {
			return err
		}

		if v.Active {
			if _, err := tx.ExecContext(ctx,
				`UPDATE plan_versions SET active = false WHERE plan_id = $1 AND active`, planID); err != nil {
				return fmt.Errorf("failed to deactivate plan versions: %w", err)
			}
		}

		features, err := marshalJSON(v.Features)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO plan_versions (`+versionColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			v.ID, v.PlanID, v.Version, v.MonthlyPrice, v.YearlyPrice, v.Currency,
			features, v.Active, v.ValidFrom, v.ValidUntil,
			v.ProviderMonthlyPriceID, v.ProviderYearlyPriceID, v.CreatedAt)
		if err != nil {
			if pg.IsDuplicateKeyError(err) {
				return errors.Join(billing.ErrDuplicateVersionLabel, err)
			}
			return fmt.Errorf("failed to insert plan version: %w", err)
		}
		created = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func planErr(err error) error {
	if pg.IsNotFoundError(err) {
		return billing.ErrPlanNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load plan: %w", err)
	}
	return nil
}

func versionErr(err error) error {
	if pg.IsNotFoundError(err) {
		return billing.ErrPlanVersionNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load plan version: %w", err)
	}
	return nil
}
