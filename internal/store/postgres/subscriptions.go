package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/linkshelf/linkshelf/pkg/billing"
	"github.com/linkshelf/linkshelf/pkg/pg"
)

// SubscriptionStore implements billing.SubscriptionStore and
// billing.PaymentStore.
type SubscriptionStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSubscriptionStore(db *sql.DB) *SubscriptionStore {
	return &SubscriptionStore{db: db, now: time.Now}
}

const subscriptionColumns = `id, user_id, plan_id, plan_version_id, status, billing_interval,
	trial_ends_at, current_period_starts_at, current_period_ends_at, cancelled_at, ends_at,
	provider_subscription_id, provider_customer_id, detached_provider_subscription_id,
	created_at, updated_at, deleted_at`

func scanSubscription(row scanner) (*billing.Subscription, error) {
	var (
		s          billing.Subscription
		providerID sql.NullString
	)
	err := row.Scan(&s.ID, &s.UserID, &s.PlanID, &s.PlanVersionID, &s.Status, &s.Interval,
		&s.TrialEndsAt, &s.CurrentPeriodStartsAt, &s.CurrentPeriodEndsAt, &s.CancelledAt, &s.EndsAt,
		&providerID, &s.ProviderCustomerID, &s.DetachedProviderSubID, &s.CreatedAt, &s.UpdatedAt, &s.DeletedAt)
	if err != nil {
		return nil, err
	}
	s.ProviderSubID = providerID.String
	return &s, nil
}

func subscriptionErr(err error) error {
	if pg.IsNotFoundError(err) {
		return billing.ErrSubscriptionNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load subscription: %w", err)
	}
	return nil
}

func (s *SubscriptionStore) Get(ctx context.Context, id uuid.UUID) (*billing.Subscription, error) {
	sub, err := scanSubscription(s.db.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1 AND deleted_at IS NULL`, id))
	return sub, subscriptionErr(err)
}

func (s *SubscriptionStore) GetByUser(ctx context.Context, userID uuid.UUID) (*billing.Subscription, error) {
	sub, err := scanSubscription(s.db.QueryRowContext(ctx, `
		SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE user_id = $1 AND deleted_at IS NULL AND status NOT IN ($2, $3)
		ORDER BY created_at DESC LIMIT 1`,
		userID, billing.StatusCancelled, billing.StatusExpired))
	return sub, subscriptionErr(err)
}

func (s *SubscriptionStore) GetByProviderID(ctx context.Context, providerSubID string) (*billing.Subscription, error) {
	sub, err := scanSubscription(s.db.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE provider_subscription_id = $1 AND deleted_at IS NULL`,
		providerSubID))
	return sub, subscriptionErr(err)
}

func (s *SubscriptionStore) Create(ctx context.Context, sub *billing.Subscription) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subscriptions (`+subscriptionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		sub.ID, sub.UserID, sub.PlanID, sub.PlanVersionID, sub.Status, sub.Interval,
		sub.TrialEndsAt, sub.CurrentPeriodStartsAt, sub.CurrentPeriodEndsAt, sub.CancelledAt, sub.EndsAt,
		nullString(sub.ProviderSubID), sub.ProviderCustomerID, sub.DetachedProviderSubID,
		sub.CreatedAt, sub.UpdatedAt, sub.DeletedAt)
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			return errors.Join(billing.ErrSubscriptionAlreadyExists, err)
		}
		return fmt.Errorf("failed to create subscription: %w", err)
	}
	return nil
}

// Update locks the row with SELECT ... FOR UPDATE for the duration of fn.
func (s *SubscriptionStore) Update(ctx context.Context, id uuid.UUID, fn func(*billing.Subscription) error) (*billing.Subscription, error) {
	var updated *billing.Subscription
	err := pg.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		sub, err := scanSubscription(tx.QueryRowContext(ctx,
			`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`, id))
		if err != nil {
			return subscriptionErr(err)
		}
		if err := fn(sub); err != nil {
			return err
		}
		sub.ID = id
		sub.UpdatedAt = s.now().UTC()

		_, err = tx.ExecContext(ctx, `
			UPDATE subscriptions SET
				plan_id = $2, plan_version_id = $3, status = $4, billing_interval = $5,
				trial_ends_at = $6, current_period_starts_at = $7, current_period_ends_at = $8,
				cancelled_at = $9, ends_at = $10, provider_subscription_id = $11,
				provider_customer_id = $12, detached_provider_subscription_id = $13,
				updated_at = $14, deleted_at = $15
			WHERE id = $1`,
			id, sub.PlanID, sub.PlanVersionID, sub.Status, sub.Interval,
			sub.TrialEndsAt, sub.CurrentPeriodStartsAt, sub.CurrentPeriodEndsAt,
			sub.CancelledAt, sub.EndsAt, nullString(sub.ProviderSubID),
			sub.ProviderCustomerID, sub.DetachedProviderSubID, sub.UpdatedAt, sub.DeletedAt)
		if err != nil {
			return fmt.Errorf("failed to update subscription: %w", err)
		}
		updated = sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *SubscriptionStore) List(ctx context.Context, statuses ...billing.SubscriptionStatus) ([]billing.Subscription, error) {
	var (
		query strings.Builder
		args  []any
	)
	query.WriteString(`SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE deleted_at IS NULL`)
	if len(statuses) > 0 {
		query.WriteString(` AND status IN (` + placeholders(1, len(statuses)) + `)`)
		for _, st := range statuses {
			args = append(args, st)
		}
	}
	query.WriteString(` ORDER BY created_at`)

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	defer rows.Close()

	var out []billing.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		out = append(out, *sub)
	}
	return out, rows.Err()
}

// RecordPayment relies on the (provider_payment_id, kind) unique key.
func (s *SubscriptionStore) RecordPayment(ctx context.Context, p *billing.Payment) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO payments (id, subscription_id, user_id, provider_payment_id, kind, amount, tax, currency, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (provider_payment_id, kind) DO NOTHING`,
		p.ID, p.SubscriptionID, p.UserID, p.ProviderPaymentID, p.Kind, p.Amount, p.Tax, p.Currency, p.OccurredAt)
	if err != nil {
		return false, fmt.Errorf("failed to record payment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to record payment: %w", err)
	}
	return n == 1, nil
}

func (s *SubscriptionStore) ListPayments(ctx context.Context, from, to time.Time) ([]billing.Payment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, subscription_id, user_id, provider_payment_id, kind, amount, tax, currency, occurred_at
		FROM payments WHERE occurred_at >= $1 AND occurred_at < $2 ORDER BY occurred_at`, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var out []billing.Payment
	for rows.Next() {
		var p billing.Payment
		if err := rows.Scan(&p.ID, &p.SubscriptionID, &p.UserID, &p.ProviderPaymentID, &p.Kind,
			&p.Amount, &p.Tax, &p.Currency, &p.OccurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
