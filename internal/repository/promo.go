package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/eletrogest/eletrogest/internal/domain"
)

const promoColumns = `id, code, plan_type, duration_days, max_uses, current_uses,
	expires_at, active, created_at`

func scanPromoCode(row pgx.Row) (*domain.PromoCode, error) {
	var p domain.PromoCode
	err := row.Scan(&p.ID, &p.Code, &p.PlanType, &p.DurationDays, &p.MaxUses,
		&p.CurrentUses, &p.ExpiresAt, &p.Active, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetPromoCode looks up a promo code by its normalized code string.
func (r *Repository) GetPromoCode(ctx context.Context, code string) (*domain.PromoCode, error) {
	const op = "repository.promo_get"

	row := r.pool.QueryRow(ctx,
		`SELECT `+promoColumns+` FROM promo_codes WHERE code = $1`, code)
	p, err := scanPromoCode(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NotFound(op, "promo code", code)
	}
	if err != nil {
		return nil, domain.Transient(err, op, "failed to load promo code")
	}
	return p, nil
}

// CreatePromoCode issues a new code. Duplicate code strings are a conflict.
func (r *Repository) CreatePromoCode(ctx context.Context, params domain.CreatePromoCodeParams) (*domain.PromoCode, error) {
	const op = "repository.promo_create"

	row := r.pool.QueryRow(ctx, `
		INSERT INTO promo_codes (id, code, plan_type, duration_days, max_uses, expires_at, active)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE)
		RETURNING `+promoColumns,
		uuid.New(), params.Code, params.PlanType, params.DurationDays, params.MaxUses, params.ExpiresAt)
	p, err := scanPromoCode(row)
	if isUniqueViolation(err) {
		return nil, domain.Conflict(op, "a promo code with this code already exists")
	}
	if err != nil {
		return nil, domain.Transient(err, op, "failed to create promo code")
	}
	return p, nil
}

// DeactivatePromoCode turns a code off without deleting its redemption history.
func (r *Repository) DeactivatePromoCode(ctx context.Context, code string) error {
	const op = "repository.promo_deactivate"

	tag, err := r.pool.Exec(ctx,
		`UPDATE promo_codes SET active = FALSE WHERE code = $1`, code)
	if err != nil {
		return domain.Transient(err, op, "failed to deactivate promo code")
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound(op, "promo code", code)
	}
	return nil
}

// RedeemPromoCode records one redemption atomically: the per-user ledger row
// and the bounded use-counter increment commit together or not at all.
//
// Failure modes:
//   - ECONFLICT when the user already redeemed this code (ledger unique constraint)
//   - EEXHAUSTED / EINACTIVE / EEXPIRED when the compare-and-increment finds
//     the code no longer redeemable (two concurrent redeemers of a
//     max_uses=1 code resolve here: exactly one wins)
func (r *Repository) RedeemPromoCode(ctx context.Context, userID uuid.UUID, promo *domain.PromoCode) error {
	const op = "repository.promo_redeem"

	return r.withTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO promo_redemptions (id, user_id, promo_code_id)
			VALUES ($1, $2, $3)`,
			uuid.New(), userID, promo.ID)
		if isUniqueViolation(err) {
			return domain.Conflict(op, "you have already redeemed this code")
		}
		if err != nil {
			return domain.Transient(err, op, "failed to record redemption")
		}

		tag, err := tx.Exec(ctx, `
			UPDATE promo_codes
			SET current_uses = current_uses + 1
			WHERE id = $1
			  AND active
			  AND (expires_at IS NULL OR expires_at > now())
			  AND (max_uses = 0 OR current_uses < max_uses)`,
			promo.ID)
		if err != nil {
			return domain.Transient(err, op, "failed to consume promo use")
		}
		if tag.RowsAffected() == 0 {
			// Classify why the guarded increment refused, re-reading inside
			// the transaction for a consistent answer.
			row := tx.QueryRow(ctx,
				`SELECT `+promoColumns+` FROM promo_codes WHERE id = $1`, promo.ID)
			current, scanErr := scanPromoCode(row)
			if scanErr != nil {
				return domain.Transient(scanErr, op, "failed to reload promo code")
			}
			if err := current.Validate(time.Now().UTC()); err != nil {
				return err
			}
			return domain.Exhausted(op, "this code has reached its redemption limit")
		}
		return nil
	})
}
