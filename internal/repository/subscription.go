package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/eletrogest/eletrogest/internal/domain"
)

const subscriptionColumns = `id, user_id, email, plan_type, status,
	stripe_customer_id, stripe_subscription_id,
	current_period_start, current_period_end, cancel_at_period_end,
	created_at, updated_at`

func scanSubscription(row pgx.Row) (*domain.Subscription, error) {
	var s domain.Subscription
	var periodStart, periodEnd *time.Time
	err := row.Scan(
		&s.ID, &s.UserID, &s.Email, &s.PlanType, &s.Status,
		&s.StripeCustomerID, &s.StripeSubscriptionID,
		&periodStart, &periodEnd, &s.CancelAtPeriodEnd,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if periodStart != nil {
		s.CurrentPeriodStart = *periodStart
	}
	if periodEnd != nil {
		s.CurrentPeriodEnd = *periodEnd
	}
	return &s, nil
}

// GetSubscriptionByUserID returns the subscription row for a user.
func (r *Repository) GetSubscriptionByUserID(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error) {
	const op = "repository.subscription_get"

	row := r.pool.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE user_id = $1`, userID)
	sub, err := scanSubscription(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NotFound(op, "subscription", userID.String())
	}
	if err != nil {
		return nil, domain.Transient(err, op, "failed to load subscription")
	}
	return sub, nil
}

// GetSubscriptionByCustomerID maps an external billing customer id to the
// subscription row. Used by webhook processing.
func (r *Repository) GetSubscriptionByCustomerID(ctx context.Context, customerID string) (*domain.Subscription, error) {
	const op = "repository.subscription_get_by_customer"

	row := r.pool.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE stripe_customer_id = $1`, customerID)
	sub, err := scanSubscription(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NotFound(op, "subscription for customer", customerID)
	}
	if err != nil {
		return nil, domain.Transient(err, op, "failed to load subscription")
	}
	return sub, nil
}

// CreateSubscription inserts the initial free/active row for a user.
// Safe under concurrent first calls: the existing row wins and is returned.
func (r *Repository) CreateSubscription(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error) {
	const op = "repository.subscription_create"

	row := r.pool.QueryRow(ctx, `
		INSERT INTO subscriptions (id, user_id, plan_type, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET updated_at = subscriptions.updated_at
		RETURNING `+subscriptionColumns,
		uuid.New(), userID, domain.PlanFree, domain.SubscriptionStatusActive)
	sub, err := scanSubscription(row)
	if err != nil {
		return nil, domain.Transient(err, op, "failed to create subscription")
	}
	return sub, nil
}

// SetCheckoutCompleted records a completed checkout: plan, active status, and
// the external billing identifiers. The email is kept only when provided.
func (r *Repository) SetCheckoutCompleted(ctx context.Context, userID uuid.UUID, plan domain.PlanType, customerID, subscriptionID, email string) error {
	const op = "repository.subscription_checkout"

	tag, err := r.pool.Exec(ctx, `
		UPDATE subscriptions
		SET plan_type = $2,
		    status = $3,
		    stripe_customer_id = $4,
		    stripe_subscription_id = $5,
		    email = CASE WHEN $6 <> '' THEN $6 ELSE email END,
		    cancel_at_period_end = FALSE,
		    updated_at = now()
		WHERE user_id = $1`,
		userID, plan, domain.SubscriptionStatusActive, customerID, subscriptionID, email)
	if err != nil {
		return domain.Transient(err, op, "failed to record checkout")
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound(op, "subscription", userID.String())
	}
	return nil
}

// SyncSubscriptionStatus applies a status/period update keyed by the external
// customer id.
func (r *Repository) SyncSubscriptionStatus(ctx context.Context, customerID string, plan domain.PlanType, status domain.SubscriptionStatus, periodStart, periodEnd time.Time, cancelAtPeriodEnd bool) error {
	const op = "repository.subscription_sync"

	tag, err := r.pool.Exec(ctx, `
		UPDATE subscriptions
		SET plan_type = CASE WHEN $2 <> '' THEN $2 ELSE plan_type END,
		    status = $3,
		    current_period_start = $4,
		    current_period_end = $5,
		    cancel_at_period_end = $6,
		    updated_at = now()
		WHERE stripe_customer_id = $1`,
		customerID, string(plan), status, periodStart, periodEnd, cancelAtPeriodEnd)
	if err != nil {
		return domain.Transient(err, op, "failed to sync subscription status")
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound(op, "subscription for customer", customerID)
	}
	return nil
}

// CancelSubscriptionByCustomerID reverts the subscription to the free plan
// and clears the external subscription id.
func (r *Repository) CancelSubscriptionByCustomerID(ctx context.Context, customerID string) error {
	const op = "repository.subscription_cancel"

	tag, err := r.pool.Exec(ctx, `
		UPDATE subscriptions
		SET plan_type = $2,
		    status = $3,
		    stripe_subscription_id = '',
		    cancel_at_period_end = FALSE,
		    updated_at = now()
		WHERE stripe_customer_id = $1`,
		customerID, domain.PlanFree, domain.SubscriptionStatusCanceled)
	if err != nil {
		return domain.Transient(err, op, "failed to cancel subscription")
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound(op, "subscription for customer", customerID)
	}
	return nil
}

// ExtendPlanPeriod applies a plan grant (admin adjustment, promo or referral
// redemption) as a single guarded update, so concurrent grants for the same
// user stack instead of overwriting each other. A period that is already over
// restarts from now; a live one keeps its start and gains the extra days.
func (r *Repository) ExtendPlanPeriod(ctx context.Context, userID uuid.UUID, plan domain.PlanType, now time.Time, days int) error {
	const op = "repository.subscription_extend_plan"

	tag, err := r.pool.Exec(ctx, `
		UPDATE subscriptions
		SET plan_type = $2,
		    status = 'active',
		    current_period_start = CASE
		        WHEN current_period_end > $3 THEN current_period_start
		        ELSE $3
		    END,
		    current_period_end = GREATEST(current_period_end, $3) + make_interval(days => $4),
		    updated_at = now()
		WHERE user_id = $1`,
		userID, plan, now, days)
	if err != nil {
		return domain.Transient(err, op, "failed to extend plan period")
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound(op, "subscription", userID.String())
	}
	return nil
}

// InsertAdjustment appends an administrative audit row.
func (r *Repository) InsertAdjustment(ctx context.Context, adj *domain.SubscriptionAdjustment) error {
	const op = "repository.adjustment_insert"

	_, err := r.pool.Exec(ctx, `
		INSERT INTO subscription_adjustments
			(id, user_id, actor, previous_plan, new_plan, duration_days, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		adj.ID, adj.UserID, adj.Actor, adj.PreviousPlan, adj.NewPlan, adj.DurationDays, adj.Reason)
	if err != nil {
		return domain.Transient(err, op, "failed to write adjustment audit row")
	}
	return nil
}

// ListAdjustments returns the audit trail for a user, newest first.
func (r *Repository) ListAdjustments(ctx context.Context, userID uuid.UUID) ([]domain.SubscriptionAdjustment, error) {
	const op = "repository.adjustment_list"

	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, actor, previous_plan, new_plan, duration_days, reason, created_at
		FROM subscription_adjustments
		WHERE user_id = $1
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, domain.Transient(err, op, "failed to list adjustments")
	}
	defer rows.Close()

	var out []domain.SubscriptionAdjustment
	for rows.Next() {
		var a domain.SubscriptionAdjustment
		if err := rows.Scan(&a.ID, &a.UserID, &a.Actor, &a.PreviousPlan, &a.NewPlan,
			&a.DurationDays, &a.Reason, &a.CreatedAt); err != nil {
			return nil, domain.Transient(err, op, "failed to scan adjustment")
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Transient(err, op, "failed to read adjustments")
	}
	return out, nil
}
