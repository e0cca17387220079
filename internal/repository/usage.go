package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/eletrogest/eletrogest/internal/domain"
)

// GetUsage returns the counter value for a user/resource/period, or 0 when no
// row exists yet.
func (r *Repository) GetUsage(ctx context.Context, userID uuid.UUID, rt domain.ResourceType, periodStart time.Time) (int, error) {
	const op = "repository.usage_get"

	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT count FROM usage_counters
		WHERE user_id = $1 AND resource_type = $2 AND period_start = $3`,
		userID, rt, periodStart).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, domain.Transient(err, op, "failed to read usage counter")
	}
	return count, nil
}

// IncrementUsage atomically creates-or-increments the counter row for the
// period and returns the new count. Safe under concurrent callers: the upsert
// is a single statement, so two racing requests can neither double-count nor
// lose an update.
func (r *Repository) IncrementUsage(ctx context.Context, userID uuid.UUID, rt domain.ResourceType, period domain.Period) (int, error) {
	const op = "repository.usage_increment"

	var count int
	err := r.pool.QueryRow(ctx, upsertIncrementSQL,
		uuid.New(), userID, rt, period.Start, period.End).Scan(&count)
	if err != nil {
		return 0, domain.Transient(err, op, "failed to increment usage counter")
	}
	return count, nil
}

const upsertIncrementSQL = `
	INSERT INTO usage_counters (id, user_id, resource_type, period_start, period_end, count)
	VALUES ($1, $2, $3, $4, $5, 1)
	ON CONFLICT (user_id, resource_type, period_start)
	DO UPDATE SET count = usage_counters.count + 1, updated_at = now()
	RETURNING count`

const guardedIncrementSQL = `
	INSERT INTO usage_counters (id, user_id, resource_type, period_start, period_end, count)
	VALUES ($1, $2, $3, $4, $5, 1)
	ON CONFLICT (user_id, resource_type, period_start)
	DO UPDATE SET count = usage_counters.count + 1, updated_at = now()
	WHERE usage_counters.count < $6
	RETURNING count`

// ConsumeUsage performs the strict creation path in one transaction: a
// conditional increment that only succeeds while count < limit, followed by
// the caller's resource write. If fn fails the increment is rolled back, so
// the counter never runs ahead of committed resources.
//
// A negative limit (the unlimited sentinel) skips the guard. Returns ELIMIT
// when the guard rejects the increment.
func (r *Repository) ConsumeUsage(ctx context.Context, userID uuid.UUID, rt domain.ResourceType, period domain.Period, limit int, fn func(ctx context.Context) error) (int, error) {
	const op = "repository.usage_consume"

	var count int
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		var err error
		if limit < 0 {
			err = tx.QueryRow(ctx, upsertIncrementSQL,
				uuid.New(), userID, rt, period.Start, period.End).Scan(&count)
		} else {
			err = tx.QueryRow(ctx, guardedIncrementSQL,
				uuid.New(), userID, rt, period.Start, period.End, limit).Scan(&count)
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.LimitReached(op, rt, limit, limit)
		}
		if err != nil {
			return domain.Transient(err, op, "failed to increment usage counter")
		}
		if fn != nil {
			return fn(ctx)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}
