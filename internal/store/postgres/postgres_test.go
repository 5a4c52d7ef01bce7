package postgres_test

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkshelf/linkshelf/internal/store/postgres"
	"github.com/linkshelf/linkshelf/pkg/audit"
	"github.com/linkshelf/linkshelf/pkg/billing"
	"github.com/linkshelf/linkshelf/pkg/notifications"
	"github.com/linkshelf/linkshelf/pkg/reports"
)

var now = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return db, mock
}

func q(s string) string { return regexp.QuoteMeta(s) }

var (
	planCols = []string{"id", "name", "slug", "description", "active", "featured", "features", "limits",
		"trial_days", "created_at", "updated_at"}
	versionCols = []string{"id", "plan_id", "version", "monthly_price", "yearly_price", "currency", "features",
		"active", "valid_from", "valid_until", "provider_monthly_price_id", "provider_yearly_price_id", "created_at"}
	subscriptionCols = []string{"id", "user_id", "plan_id", "plan_version_id", "status", "billing_interval",
		"trial_ends_at", "current_period_starts_at", "current_period_ends_at", "cancelled_at", "ends_at",
		"provider_subscription_id", "provider_customer_id", "detached_provider_subscription_id",
		"created_at", "updated_at", "deleted_at"}
)

func TestPlanStore_GetPlan(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db, mock := newMock(t)
	store := postgres.NewPlanStore(db)

	id := uuid.New()
	mock.ExpectQuery(q("FROM plans WHERE id = $1")).WithArgs(id.String()).
		WillReturnRows(sqlmock.NewRows(planCols).AddRow(
			id.String(), "Pro", "pro", "", true, false,
			[]byte(`["export"]`), []byte(`{"max_lists":50,"max_urls_per_list":-1,"max_collaborators":5}`),
			14, now, now))

	p, err := store.GetPlan(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, p.ID)
	assert.Equal(t, "pro", p.Slug)
	assert.Equal(t, []string{"export"}, p.Features)
	assert.Equal(t, billing.Limits{MaxLists: 50, MaxURLsPerList: billing.Unlimited, MaxCollaborators: 5}, p.Limits)
	assert.Equal(t, 14, p.TrialDays)

	mock.ExpectQuery(q("FROM plans WHERE slug = $1")).WithArgs("gone").WillReturnError(sql.ErrNoRows)
	_, err = store.GetPlanBySlug(ctx, "gone")
	assert.ErrorIs(t, err, billing.ErrPlanNotFound)
}

func TestPlanStore_CreateVersion(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	planID := uuid.New()
	existingID := uuid.New()
	build := func(existing []billing.PlanVersion) (*billing.PlanVersion, error) {
		require.Len(t, existing, 1)
		assert.Equal(t, "1.0.0", existing[0].Version)
		return &billing.PlanVersion{
			ID: uuid.New(), PlanID: planID, Version: "1.1.0",
			MonthlyPrice: decimal.RequireFromString("12"), YearlyPrice: decimal.RequireFromString("120"),
			Currency: "USD", Active: true, CreatedAt: now,
		}, nil
	}
	existingRows := func() *sqlmock.Rows {
		return sqlmock.NewRows(versionCols).AddRow(existingID.String(), planID.String(), "1.0.0", "10.00", "100.00",
			"USD", []byte(`[]`), true, nil, nil, "pri_m", "pri_y", now.Add(-time.Hour))
	}

	t.Run("locks the plan and deactivates siblings", func(t *testing.T) {
		t.Parallel()
		db, mock := newMock(t)
		store := postgres.NewPlanStore(db)

		mock.ExpectBegin()
		mock.ExpectQuery(q("SELECT id FROM plans WHERE id = $1 FOR UPDATE")).WithArgs(planID.String()).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(planID.String()))
		mock.ExpectQuery(q("FROM plan_versions WHERE plan_id = $1")).WithArgs(planID.String()).
			WillReturnRows(existingRows())
		mock.ExpectExec(q("UPDATE plan_versions SET active = false WHERE plan_id = $1 AND active")).
			WithArgs(planID.String()).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(q("INSERT INTO plan_versions")).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		v, err := store.CreateVersion(ctx, planID, build)
		require.NoError(t, err)
		assert.Equal(t, "1.1.0", v.Version)
	})

	t.Run("missing plan", func(t *testing.T) {
		t.Parallel()
		db, mock := newMock(t)
		store := postgres.NewPlanStore(db)

		mock.ExpectBegin()
		mock.ExpectQuery(q("FOR UPDATE")).WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		_, err := store.CreateVersion(ctx, planID, build)
		assert.ErrorIs(t, err, billing.ErrPlanNotFound)
	})

	t.Run("duplicate label", func(t *testing.T) {
		t.Parallel()
		db, mock := newMock(t)
		store := postgres.NewPlanStore(db)

		mock.ExpectBegin()
		mock.ExpectQuery(q("FOR UPDATE")).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(planID.String()))
		mock.ExpectQuery(q("FROM plan_versions")).WillReturnRows(existingRows())
		mock.ExpectExec(q("UPDATE plan_versions")).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(q("INSERT INTO plan_versions")).WillReturnError(&pgconn.PgError{Code: "23505"})
		mock.ExpectRollback()

		_, err := store.CreateVersion(ctx, planID, build)
		assert.ErrorIs(t, err, billing.ErrDuplicateVersionLabel)
	})

	t.Run("build error rolls back", func(t *testing.T) {
		t.Parallel()
		db, mock := newMock(t)
		store := postgres.NewPlanStore(db)
		boom := errors.New("invalid")

		mock.ExpectBegin()
		mock.ExpectQuery(q("FOR UPDATE")).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(planID.String()))
		mock.ExpectQuery(q("FROM plan_versions")).WillReturnRows(existingRows())
		mock.ExpectRollback()

		_, err := store.CreateVersion(ctx, planID, func([]billing.PlanVersion) (*billing.PlanVersion, error) {
			return nil, boom
		})
		assert.ErrorIs(t, err, boom)
	})
}

func TestPlanStore_FindVersionByPriceID(t *testing.T) {
	t.Parallel()
	db, mock := newMock(t)
	store := postgres.NewPlanStore(db)

	id, planID := uuid.New(), uuid.New()
	mock.ExpectQuery(q("WHERE provider_monthly_price_id = $1 OR provider_yearly_price_id = $1")).
		WithArgs("pri_y").
		WillReturnRows(sqlmock.NewRows(versionCols).AddRow(id.String(), planID.String(), "1.0.0", "10.00", "100.00",
			"USD", nil, true, now, nil, "pri_m", "pri_y", now))

	v, err := store.FindVersionByPriceID(context.Background(), "pri_y")
	require.NoError(t, err)
	assert.Equal(t, id, v.ID)
	assert.True(t, v.YearlyPrice.Equal(decimal.RequireFromString("100")))
	require.NotNil(t, v.ValidFrom)
	assert.Nil(t, v.ValidUntil)

	mock.ExpectQuery(q("FROM plan_versions")).WillReturnError(sql.ErrNoRows)
	_, err = store.FindVersionByPriceID(context.Background(), "pri_none")
	assert.ErrorIs(t, err, billing.ErrPlanVersionNotFound)
}

func subscriptionRow(id, userID uuid.UUID, status billing.SubscriptionStatus, providerID any) *sqlmock.Rows {
	end := now.AddDate(0, 0, 20)
	return sqlmock.NewRows(subscriptionCols).AddRow(
		id.String(), userID.String(), uuid.NewString(), uuid.NewString(), string(status), "monthly",
		nil, now.AddDate(0, 0, -10), end, nil, nil,
		providerID, "cus_1", "", now, now, nil)
}

func TestSubscriptionStore_Get(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db, mock := newMock(t)
	store := postgres.NewSubscriptionStore(db)

	id, userID := uuid.New(), uuid.New()
	mock.ExpectQuery(q("FROM subscriptions WHERE id = $1 AND deleted_at IS NULL")).WithArgs(id.String()).
		WillReturnRows(subscriptionRow(id, userID, billing.StatusActive, nil))

	sub, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, billing.StatusActive, sub.Status)
	assert.Equal(t, billing.IntervalMonthly, sub.Interval)
	assert.Empty(t, sub.ProviderSubID)
	assert.Nil(t, sub.TrialEndsAt)
	require.NotNil(t, sub.CurrentPeriodEndsAt)

	mock.ExpectQuery(q("WHERE provider_subscription_id = $1")).WithArgs("sub_x").WillReturnError(sql.ErrNoRows)
	_, err = store.GetByProviderID(ctx, "sub_x")
	assert.ErrorIs(t, err, billing.ErrSubscriptionNotFound)

	mock.ExpectQuery(q("WHERE user_id = $1 AND deleted_at IS NULL AND status NOT IN ($2, $3)")).
		WithArgs(userID.String(), "cancelled", "expired").
		WillReturnRows(subscriptionRow(id, userID, billing.StatusTrialing, "sub_1"))
	sub, err = store.GetByUser(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, "sub_1", sub.ProviderSubID)
}

func TestSubscriptionStore_Update(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	id, userID := uuid.New(), uuid.New()

	t.Run("locks, applies and saves", func(t *testing.T) {
		t.Parallel()
		db, mock := newMock(t)
		store := postgres.NewSubscriptionStore(db)

		mock.ExpectBegin()
		mock.ExpectQuery(q("WHERE id = $1 AND deleted_at IS NULL FOR UPDATE")).WithArgs(id.String()).
			WillReturnRows(subscriptionRow(id, userID, billing.StatusActive, "sub_1"))
		mock.ExpectExec(q("UPDATE subscriptions SET")).
			WithArgs(id.String(), sqlmock.AnyArg(), sqlmock.AnyArg(), "cancelled_pending", "monthly",
				nil, sqlmock.AnyArg(), sqlmock.AnyArg(), now, sqlmock.AnyArg(), "sub_1",
				"cus_1", "sub_0", sqlmock.AnyArg(), nil).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		sub, err := store.Update(ctx, id, func(s *billing.Subscription) error {
			s.Status = billing.StatusCancelledPending
			s.CancelledAt = &now
			s.EndsAt = s.CurrentPeriodEndsAt
			s.DetachedProviderSubID = "sub_0"
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, billing.StatusCancelledPending, sub.Status)
	})

	t.Run("callback error writes nothing", func(t *testing.T) {
		t.Parallel()
		db, mock := newMock(t)
		store := postgres.NewSubscriptionStore(db)

		mock.ExpectBegin()
		mock.ExpectQuery(q("FOR UPDATE")).WillReturnRows(subscriptionRow(id, userID, billing.StatusActive, nil))
		mock.ExpectRollback()

		_, err := store.Update(ctx, id, func(*billing.Subscription) error { return billing.ErrForbidden })
		assert.ErrorIs(t, err, billing.ErrForbidden)
	})

	t.Run("missing row", func(t *testing.T) {
		t.Parallel()
		db, mock := newMock(t)
		store := postgres.NewSubscriptionStore(db)

		mock.ExpectBegin()
		mock.ExpectQuery(q("FOR UPDATE")).WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		_, err := store.Update(ctx, id, func(*billing.Subscription) error { return nil })
		assert.ErrorIs(t, err, billing.ErrSubscriptionNotFound)
	})
}

func TestSubscriptionStore_List(t *testing.T) {
	t.Parallel()
	db, mock := newMock(t)
	store := postgres.NewSubscriptionStore(db)

	mock.ExpectQuery(q("WHERE deleted_at IS NULL AND status IN ($1, $2) ORDER BY created_at")).
		WithArgs("active", "trialing").
		WillReturnRows(subscriptionRow(uuid.New(), uuid.New(), billing.StatusActive, nil))

	subs, err := store.List(context.Background(), billing.StatusActive, billing.StatusTrialing)
	require.NoError(t, err)
	assert.Len(t, subs, 1)
}

func TestSubscriptionStore_Payments(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db, mock := newMock(t)
	store := postgres.NewSubscriptionStore(db)

	p := &billing.Payment{
		ID: uuid.New(), SubscriptionID: uuid.New(), UserID: uuid.New(),
		ProviderPaymentID: "txn_1", Kind: billing.PaymentCharge,
		Amount: decimal.RequireFromString("10.99"), Tax: decimal.Zero, Currency: "USD", OccurredAt: now,
	}

	mock.ExpectExec(q("ON CONFLICT (provider_payment_id, kind) DO NOTHING")).
		WithArgs(p.ID.String(), p.SubscriptionID.String(), p.UserID.String(), "txn_1", "charge", "10.99", "0", "USD", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("INSERT INTO payments")).WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := store.RecordPayment(ctx, p)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.RecordPayment(ctx, p)
	require.NoError(t, err)
	assert.False(t, ok)

	mock.ExpectQuery(q("FROM payments WHERE occurred_at >= $1 AND occurred_at < $2")).
		WithArgs(now.AddDate(0, 0, -7), now).
		WillReturnRows(sqlmock.NewRows([]string{"id", "subscription_id", "user_id", "provider_payment_id", "kind",
			"amount", "tax", "currency", "occurred_at"}).
			AddRow(p.ID.String(), p.SubscriptionID.String(), p.UserID.String(), "txn_1", "charge", "10.99", "0", "USD", now))

	payments, err := store.ListPayments(ctx, now.AddDate(0, 0, -7), now)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, billing.PaymentCharge, payments[0].Kind)
	assert.True(t, payments[0].Amount.Equal(p.Amount))
}

func TestNotificationStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db, mock := newMock(t)
	store := postgres.NewNotificationStore(db)

	n := notifications.Notification{
		ID: uuid.NewString(), UserID: "u1", Kind: notifications.KindTrialEnding,
		Severity: notifications.SeverityWarning, Title: "Trial ending", DedupKey: "trial:1", CreatedAt: now,
	}
	mock.ExpectExec(q("INSERT INTO notifications")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("INSERT INTO notifications")).WillReturnError(&pgconn.PgError{Code: "23505"})

	require.NoError(t, store.Create(ctx, n))
	assert.ErrorIs(t, store.Create(ctx, n), notifications.ErrDuplicateNotification)

	mock.ExpectQuery(q("WHERE user_id = $1 AND read_at IS NULL AND kind IN ($2, $3) ORDER BY created_at DESC LIMIT $4")).
		WithArgs("u1", "trial_ending", "payment_failed", 10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "email", "kind", "severity", "title", "message",
			"data", "dedup_key", "read_at", "created_at"}).
			AddRow(n.ID, "u1", "", "trial_ending", "warning", "Trial ending", "", []byte(`{"days":3}`), "trial:1", nil, now))

	list, err := store.List(ctx, "u1", notifications.ListOptions{
		Limit: 10, OnlyUnread: true,
		Kinds: []notifications.Kind{notifications.KindTrialEnding, notifications.KindPaymentFailed},
	})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "trial:1", list[0].DedupKey)
	assert.InDelta(t, 3, list[0].Data["days"], 0)

	mock.ExpectExec(q("id IN ($3, $4)")).WithArgs(now, "u1", "a", "b").WillReturnResult(sqlmock.NewResult(0, 2))
	require.NoError(t, store.MarkRead(ctx, "u1", now, "a", "b"))
	require.NoError(t, store.MarkRead(ctx, "u1", now))

	mock.ExpectQuery(q("SELECT count(*) FROM notifications")).WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))
	count, err := store.CountUnread(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}

func TestAuditStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db, mock := newMock(t)
	store := postgres.NewAuditStore(db)

	target := audit.Target{Type: audit.TargetSubscription, ID: uuid.NewString()}
	events := []audit.Event{
		{ID: uuid.NewString(), ActorID: "system", Action: "subscription.cancelled", Target: target, Result: audit.ResultSuccess, CreatedAt: now},
		{ID: uuid.NewString(), ActorID: "system", Action: "subscription.resumed", Target: target, Result: audit.ResultSuccess,
			Metadata: map[string]any{"source": "webhook"}, CreatedAt: now},
	}

	mock.ExpectBegin()
	mock.ExpectExec(q("INSERT INTO audit_events")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("INSERT INTO audit_events")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	require.NoError(t, store.Store(ctx, events...))

	mock.ExpectQuery(q("WHERE target_type = $1 AND target_id = $2")).
		WithArgs("subscription", target.ID, 100).
		WillReturnRows(sqlmock.NewRows([]string{"id", "actor_id", "action", "target_type", "target_id", "result",
			"error", "request_id", "metadata", "created_at"}).
			AddRow(events[1].ID, "system", "subscription.resumed", "subscription", target.ID, "success", "", "req-1",
				[]byte(`{"source":"webhook"}`), now))

	got, err := store.List(ctx, target, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "webhook", got[0].Metadata["source"])
	assert.Equal(t, "req-1", got[0].RequestID)
}

func TestReportStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db, mock := newMock(t)
	store := postgres.NewReportStore(db)

	id := uuid.New()
	next := now.Add(time.Hour)

	mock.ExpectExec(q("UPDATE report_schedules SET next_run_at = $3, last_run_at = $4")).
		WithArgs(id.String(), now, next, now).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("WHERE id = $1 AND next_run_at = $2")).
		WithArgs(id.String(), now, next, now).WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := store.ClaimRun(ctx, id, now, next, now)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = store.ClaimRun(ctx, id, now, next, now)
	require.NoError(t, err)
	assert.False(t, ok)

	mock.ExpectQuery(q("WHERE active AND next_run_at <= $1")).WithArgs(now).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "type", "frequency", "config", "active",
			"created_by", "last_run_at", "next_run_at", "created_at"}).
			AddRow(id.String(), "Weekly", "revenue", "weekly",
				[]byte(`{"day_of_week":1,"hour":8,"recipients":["a@example.com"],"metrics":{"revenue":true}}`),
				true, uuid.NewString(), nil, now, now))

	due, err := store.Due(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, reports.Weekly, due[0].Frequency)
	assert.Equal(t, []string{"a@example.com"}, due[0].Config.Recipients)
	assert.True(t, due[0].Config.Metrics.Revenue)

	mock.ExpectExec(q("UPDATE report_schedules SET active = $2")).WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, store.SetActive(ctx, id, false, now), reports.ErrScheduleNotFound)

	mock.ExpectQuery(q("FROM report_schedules WHERE id = $1")).WillReturnError(sql.ErrNoRows)
	_, err = store.Get(ctx, id)
	assert.ErrorIs(t, err, reports.ErrScheduleNotFound)
}
