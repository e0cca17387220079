// Package service contains the business logic layer.
//
// This file implements promotional code redemption and administration.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/eletrogest/eletrogest/internal/domain"
	"github.com/eletrogest/eletrogest/internal/metrics"
)

// =============================================================================
// Store Interface
// =============================================================================

// PromoStore defines the storage operations for promo codes.
type PromoStore interface {
	GetPromoCode(ctx context.Context, code string) (*domain.PromoCode, error)
	CreatePromoCode(ctx context.Context, params domain.CreatePromoCodeParams) (*domain.PromoCode, error)
	DeactivatePromoCode(ctx context.Context, code string) error

	// RedeemPromoCode atomically writes the per-user ledger row and the
	// bounded use increment. Returns ECONFLICT for a repeat redemption by
	// the same user and EEXHAUSTED/EINACTIVE/EEXPIRED when the
	// compare-and-increment refuses.
	RedeemPromoCode(ctx context.Context, userID uuid.UUID, promo *domain.PromoCode) error
}

// =============================================================================
// Interface Definition
// =============================================================================

// PromoService validates and applies promotional codes.
type PromoService interface {
	// Redeem applies a code to the user's subscription. Validation failures
	// (ENOTFOUND, EEXPIRED, EINACTIVE, EEXHAUSTED, ECONFLICT) are terminal
	// and must not be retried by callers.
	Redeem(ctx context.Context, userID uuid.UUID, code string) (*domain.Subscription, error)

	// Create issues a new code (admin).
	Create(ctx context.Context, params domain.CreatePromoCodeParams) (*domain.PromoCode, error)

	// Deactivate turns off a code without deleting its history (admin).
	Deactivate(ctx context.Context, code string) error
}

// =============================================================================
// Implementation
// =============================================================================

type promoService struct {
	store         PromoStore
	subscriptions SubscriptionService
	logger        *slog.Logger
	now           func() time.Time
}

// NewPromoService creates a new PromoService.
func NewPromoService(store PromoStore, subscriptions SubscriptionService, logger *slog.Logger) PromoService {
	return &promoService{
		store:         store,
		subscriptions: subscriptions,
		logger:        logger,
		now:           time.Now,
	}
}

// Redeem applies a code to the user's subscription.
func (s *promoService) Redeem(ctx context.Context, userID uuid.UUID, code string) (*domain.Subscription, error) {
	const op = "promo.redeem"

	normalized := domain.NormalizePromoCode(code)
	if normalized == "" {
		return nil, domain.Invalid(op, "code is required")
	}

	promo, err := s.store.GetPromoCode(ctx, normalized)
	if err != nil {
		metrics.PromoRedemptions.WithLabelValues(domain.ErrorCode(err)).Inc()
		return nil, err
	}

	// Fail fast with deterministic precedence; the atomic redemption below
	// remains the authority under concurrency.
	if err := promo.Validate(s.now().UTC()); err != nil {
		metrics.PromoRedemptions.WithLabelValues(domain.ErrorCode(err)).Inc()
		return nil, err
	}

	if err := s.store.RedeemPromoCode(ctx, userID, promo); err != nil {
		metrics.PromoRedemptions.WithLabelValues(domain.ErrorCode(err)).Inc()
		return nil, err
	}

	sub, err := s.subscriptions.GrantPlan(ctx, userID, promo.PlanType, promo.DurationDays)
	if err != nil {
		// The redemption committed but the grant did not. Never silently
		// retry a mutation; report and leave recovery to support tooling.
		s.logger.Error("promo redeemed but plan grant failed",
			"user_id", userID,
			"code", promo.Code,
			"error", err,
		)
		metrics.PromoRedemptions.WithLabelValues("grant_failed").Inc()
		return nil, err
	}

	metrics.PromoRedemptions.WithLabelValues("success").Inc()
	s.logger.Info("promo code redeemed",
		"user_id", userID,
		"code", promo.Code,
		"plan", promo.PlanType,
		"days", promo.DurationDays,
	)
	return sub, nil
}

// Create issues a new code.
func (s *promoService) Create(ctx context.Context, params domain.CreatePromoCodeParams) (*domain.PromoCode, error) {
	const op = "promo.create"

	params.Code = domain.NormalizePromoCode(params.Code)
	if params.Code == "" {
		return nil, domain.Invalid(op, "code is required")
	}
	if _, err := domain.GetPlan(params.PlanType); err != nil {
		return nil, err
	}
	if params.DurationDays <= 0 {
		return nil, domain.Invalid(op, "duration must be at least one day")
	}
	if params.MaxUses < 0 {
		return nil, domain.Invalid(op, "max uses cannot be negative")
	}
	if params.ExpiresAt != nil && params.ExpiresAt.Before(s.now()) {
		return nil, domain.Invalid(op, "expiry must be in the future")
	}

	promo, err := s.store.CreatePromoCode(ctx, params)
	if err != nil {
		return nil, err
	}

	s.logger.Info("promo code created",
		"code", promo.Code,
		"plan", promo.PlanType,
		"days", promo.DurationDays,
		"max_uses", promo.MaxUses,
	)
	return promo, nil
}

// Deactivate turns off a code without deleting its history.
func (s *promoService) Deactivate(ctx context.Context, code string) error {
	normalized := domain.NormalizePromoCode(code)
	if normalized == "" {
		return domain.Invalid("promo.deactivate", "code is required")
	}
	if err := s.store.DeactivatePromoCode(ctx, normalized); err != nil {
		return err
	}
	s.logger.Info("promo code deactivated", "code", normalized)
	return nil
}
