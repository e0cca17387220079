// Package service contains the business logic layer.
//
// This file implements the referral program: code issuance, redemption by a
// referred user, and consuming the granted rewards.
package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/eletrogest/eletrogest/internal/domain"
	"github.com/eletrogest/eletrogest/internal/metrics"
)

// =============================================================================
// Store Interface
// =============================================================================

// ReferralStore defines the storage operations for the referral program.
type ReferralStore interface {
	GetReferralCodeByValue(ctx context.Context, code string) (*domain.ReferralCode, error)
	GetOrCreateReferralCode(ctx context.Context, userID uuid.UUID) (*domain.ReferralCode, error)
	HasCompletedReferral(ctx context.Context, referredUserID uuid.UUID) (bool, error)

	// CompleteReferral writes the referral link and both rewards in one
	// transaction; ECONFLICT when the referred user already has a referral.
	CompleteReferral(ctx context.Context, ref *domain.Referral, rewards []*domain.ReferralReward) error

	ListReferralRewards(ctx context.Context, userID uuid.UUID) ([]domain.ReferralReward, error)

	// ApplyReferralReward consumes a pending reward and returns its days;
	// ECONFLICT when already applied, ENOTFOUND when absent.
	ApplyReferralReward(ctx context.Context, userID, rewardID uuid.UUID) (int, error)
}

// =============================================================================
// Interface Definition
// =============================================================================

// ReferralService manages referral codes, redemption, and rewards.
//
// Redemption completes the referral and grants rewards to both parties
// immediately; nothing gates on the referred user later purchasing a plan.
type ReferralService interface {
	// GetOrCreateCode returns the user's shareable referral code.
	GetOrCreateCode(ctx context.Context, userID uuid.UUID) (*domain.ReferralCode, error)

	// Redeem links the referred user to the code's owner and grants both a
	// pending reward. Fails with ENOTFOUND, ESELFREFERRAL, or ECONFLICT
	// (already referred).
	Redeem(ctx context.Context, referredUserID uuid.UUID, code string) error

	// ListRewards returns the user's rewards, pending first.
	ListRewards(ctx context.Context, userID uuid.UUID) ([]domain.ReferralReward, error)

	// ApplyReward consumes a pending reward against the subscription.
	ApplyReward(ctx context.Context, userID, rewardID uuid.UUID) (*domain.Subscription, error)
}

// =============================================================================
// Implementation
// =============================================================================

type referralService struct {
	store         ReferralStore
	subscriptions SubscriptionService
	logger        *slog.Logger
}

// NewReferralService creates a new ReferralService.
func NewReferralService(store ReferralStore, subscriptions SubscriptionService, logger *slog.Logger) ReferralService {
	return &referralService{
		store:         store,
		subscriptions: subscriptions,
		logger:        logger,
	}
}

// GetOrCreateCode returns the user's shareable referral code.
func (s *referralService) GetOrCreateCode(ctx context.Context, userID uuid.UUID) (*domain.ReferralCode, error) {
	return s.store.GetOrCreateReferralCode(ctx, userID)
}

// Redeem links the referred user to the code's owner and grants rewards.
func (s *referralService) Redeem(ctx context.Context, referredUserID uuid.UUID, code string) error {
	const op = "referral.redeem"

	normalized := strings.ToUpper(strings.TrimSpace(code))
	if normalized == "" {
		return domain.Invalid(op, "code is required")
	}

	rc, err := s.store.GetReferralCodeByValue(ctx, normalized)
	if err != nil {
		metrics.ReferralRedemptions.WithLabelValues(domain.ErrorCode(err)).Inc()
		return err
	}

	if rc.UserID == referredUserID {
		metrics.ReferralRedemptions.WithLabelValues(domain.ESELFREFERRAL).Inc()
		return domain.SelfReferral(op)
	}

	// Fail fast; the unique constraint inside CompleteReferral remains the
	// authority under concurrent redemption.
	referred, err := s.store.HasCompletedReferral(ctx, referredUserID)
	if err != nil {
		return err
	}
	if referred {
		metrics.ReferralRedemptions.WithLabelValues(domain.ECONFLICT).Inc()
		return domain.Conflict(op, "this account has already been referred")
	}

	ref := &domain.Referral{
		ID:             uuid.New(),
		ReferrerID:     rc.UserID,
		ReferredUserID: referredUserID,
		ReferralCodeID: rc.ID,
		Status:         domain.ReferralCompleted,
		RewardGranted:  true,
	}
	rewards := []*domain.ReferralReward{
		{ID: uuid.New(), UserID: rc.UserID, ReferralID: ref.ID, Days: domain.RewardDays, Status: domain.RewardPending},
		{ID: uuid.New(), UserID: referredUserID, ReferralID: ref.ID, Days: domain.RewardDays, Status: domain.RewardPending},
	}
	if err := s.store.CompleteReferral(ctx, ref, rewards); err != nil {
		metrics.ReferralRedemptions.WithLabelValues(domain.ErrorCode(err)).Inc()
		return err
	}

	metrics.ReferralRedemptions.WithLabelValues("success").Inc()
	s.logger.Info("referral completed",
		"referrer_id", rc.UserID,
		"referred_user_id", referredUserID,
		"code", rc.Code,
	)
	return nil
}

// ListRewards returns the user's rewards, pending first.
func (s *referralService) ListRewards(ctx context.Context, userID uuid.UUID) ([]domain.ReferralReward, error) {
	return s.store.ListReferralRewards(ctx, userID)
}

// ApplyReward consumes a pending reward against the subscription.
func (s *referralService) ApplyReward(ctx context.Context, userID, rewardID uuid.UUID) (*domain.Subscription, error) {
	const op = "referral.apply_reward"

	days, err := s.store.ApplyReferralReward(ctx, userID, rewardID)
	if err != nil {
		return nil, err
	}

	sub, err := s.subscriptions.GrantPlan(ctx, userID, domain.RewardPlan, days)
	if err != nil {
		s.logger.Error("reward consumed but plan grant failed",
			"user_id", userID,
			"reward_id", rewardID,
			"error", err,
		)
		return nil, err
	}

	s.logger.Info("referral reward applied",
		"user_id", userID,
		"reward_id", rewardID,
		"days", days,
	)
	return sub, nil
}
