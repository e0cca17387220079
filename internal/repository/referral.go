package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/eletrogest/eletrogest/internal/domain"
)

// GetReferralCodeByValue looks up a referral code by its code string.
func (r *Repository) GetReferralCodeByValue(ctx context.Context, code string) (*domain.ReferralCode, error) {
	const op = "repository.referral_code_get"

	var rc domain.ReferralCode
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, code, created_at FROM referral_codes WHERE code = $1`,
		code).Scan(&rc.ID, &rc.UserID, &rc.Code, &rc.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NotFound(op, "referral code", code)
	}
	if err != nil {
		return nil, domain.Transient(err, op, "failed to load referral code")
	}
	return &rc, nil
}

// GetOrCreateReferralCode returns the user's referral code, generating one on
// first use. Concurrent first calls resolve through the unique user_id
// constraint; code-string collisions are retried with a fresh value.
func (r *Repository) GetOrCreateReferralCode(ctx context.Context, userID uuid.UUID) (*domain.ReferralCode, error) {
	const op = "repository.referral_code_get_or_create"

	load := func() (*domain.ReferralCode, error) {
		var rc domain.ReferralCode
		err := r.pool.QueryRow(ctx, `
			SELECT id, user_id, code, created_at FROM referral_codes WHERE user_id = $1`,
			userID).Scan(&rc.ID, &rc.UserID, &rc.Code, &rc.CreatedAt)
		if err != nil {
			return nil, err
		}
		return &rc, nil
	}

	rc, err := load()
	if err == nil {
		return rc, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.Transient(err, op, "failed to load referral code")
	}

	for attempt := 0; attempt < 3; attempt++ {
		value, err := domain.NewReferralCodeValue()
		if err != nil {
			return nil, err
		}
		_, err = r.pool.Exec(ctx, `
			INSERT INTO referral_codes (id, user_id, code) VALUES ($1, $2, $3)`,
			uuid.New(), userID, value)
		if err == nil || isUniqueViolation(err) {
			// Either we inserted, another request won the user_id race, or the
			// code string collided; the follow-up read settles all three.
			rc, err := load()
			if errors.Is(err, pgx.ErrNoRows) {
				continue // code collision, try a new value
			}
			if err != nil {
				return nil, domain.Transient(err, op, "failed to load referral code")
			}
			return rc, nil
		}
		return nil, domain.Transient(err, op, "failed to create referral code")
	}
	return nil, domain.Internal(nil, op, "could not generate a unique referral code")
}

// HasCompletedReferral reports whether the user has already been referred.
func (r *Repository) HasCompletedReferral(ctx context.Context, referredUserID uuid.UUID) (bool, error) {
	const op = "repository.referral_exists"

	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM referrals WHERE referred_user_id = $1)`,
		referredUserID).Scan(&exists)
	if err != nil {
		return false, domain.Transient(err, op, "failed to check referral")
	}
	return exists, nil
}

// CompleteReferral writes the referral link and both parties' rewards in one
// transaction. The unique referred_user_id constraint enforces
// at-most-one-referral-per-user even under concurrent redemption.
func (r *Repository) CompleteReferral(ctx context.Context, ref *domain.Referral, rewards []*domain.ReferralReward) error {
	const op = "repository.referral_complete"

	return r.withTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO referrals
				(id, referrer_id, referred_user_id, referral_code_id, status, reward_granted)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			ref.ID, ref.ReferrerID, ref.ReferredUserID, ref.ReferralCodeID,
			ref.Status, ref.RewardGranted)
		if isUniqueViolation(err) {
			return domain.Conflict(op, "this account has already been referred")
		}
		if err != nil {
			return domain.Transient(err, op, "failed to create referral")
		}

		for _, rw := range rewards {
			_, err := tx.Exec(ctx, `
				INSERT INTO referral_rewards (id, user_id, referral_id, days, status)
				VALUES ($1, $2, $3, $4, $5)`,
				rw.ID, rw.UserID, rw.ReferralID, rw.Days, rw.Status)
			if err != nil {
				return domain.Transient(err, op, "failed to grant referral reward")
			}
		}
		return nil
	})
}

// ListReferralRewards returns a user's rewards, pending first, newest first.
func (r *Repository) ListReferralRewards(ctx context.Context, userID uuid.UUID) ([]domain.ReferralReward, error) {
	const op = "repository.reward_list"

	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, referral_id, days, status, created_at, applied_at
		FROM referral_rewards
		WHERE user_id = $1
		ORDER BY status DESC, created_at DESC`, userID)
	if err != nil {
		return nil, domain.Transient(err, op, "failed to list rewards")
	}
	defer rows.Close()

	var out []domain.ReferralReward
	for rows.Next() {
		var rw domain.ReferralReward
		if err := rows.Scan(&rw.ID, &rw.UserID, &rw.ReferralID, &rw.Days,
			&rw.Status, &rw.CreatedAt, &rw.AppliedAt); err != nil {
			return nil, domain.Transient(err, op, "failed to scan reward")
		}
		out = append(out, rw)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Transient(err, op, "failed to read rewards")
	}
	return out, nil
}

// ApplyReferralReward consumes a pending reward (pending -> applied) and
// returns the granted days. The status guard makes the consume atomic: a
// retried request finds the reward already applied and gets a conflict.
func (r *Repository) ApplyReferralReward(ctx context.Context, userID, rewardID uuid.UUID) (int, error) {
	const op = "repository.reward_apply"

	var days int
	err := r.pool.QueryRow(ctx, `
		UPDATE referral_rewards
		SET status = $3, applied_at = now()
		WHERE id = $1 AND user_id = $2 AND status = $4
		RETURNING days`,
		rewardID, userID, domain.RewardApplied, domain.RewardPending).Scan(&days)
	if errors.Is(err, pgx.ErrNoRows) {
		// Distinguish "no such reward" from "already applied".
		var status domain.RewardStatus
		lookupErr := r.pool.QueryRow(ctx, `
			SELECT status FROM referral_rewards WHERE id = $1 AND user_id = $2`,
			rewardID, userID).Scan(&status)
		if errors.Is(lookupErr, pgx.ErrNoRows) {
			return 0, domain.NotFound(op, "referral reward", rewardID.String())
		}
		if lookupErr != nil {
			return 0, domain.Transient(lookupErr, op, "failed to load reward")
		}
		return 0, domain.Conflict(op, "this reward has already been applied")
	}
	if err != nil {
		return 0, domain.Transient(err, op, "failed to apply reward")
	}
	return days, nil
}
