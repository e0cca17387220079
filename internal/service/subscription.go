// Package service contains the business logic layer.
//
// This file implements the subscription record service: the authoritative
// plan/status state per user and its mutation paths (checkout completion,
// billing webhook sync, cancellation, administrative adjustment, and the
// shared plan-grant used by promo and referral redemption).
package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/eletrogest/eletrogest/internal/domain"
	"github.com/eletrogest/eletrogest/internal/email"
	"github.com/eletrogest/eletrogest/internal/metrics"
)

// =============================================================================
// Store Interface
// =============================================================================

// SubscriptionStore defines the storage operations for subscription state.
type SubscriptionStore interface {
	GetSubscriptionByUserID(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error)
	GetSubscriptionByCustomerID(ctx context.Context, customerID string) (*domain.Subscription, error)
	CreateSubscription(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error)
	SetCheckoutCompleted(ctx context.Context, userID uuid.UUID, plan domain.PlanType, customerID, subscriptionID, email string) error
	SyncSubscriptionStatus(ctx context.Context, customerID string, plan domain.PlanType, status domain.SubscriptionStatus, periodStart, periodEnd time.Time, cancelAtPeriodEnd bool) error
	CancelSubscriptionByCustomerID(ctx context.Context, customerID string) error
	// ExtendPlanPeriod must apply the grant atomically: a live period keeps
	// its start and gains days, an expired one restarts from now, and
	// concurrent grants for the same user all land.
	ExtendPlanPeriod(ctx context.Context, userID uuid.UUID, plan domain.PlanType, now time.Time, days int) error
	InsertAdjustment(ctx context.Context, adj *domain.SubscriptionAdjustment) error
	ListAdjustments(ctx context.Context, userID uuid.UUID) ([]domain.SubscriptionAdjustment, error)
}

// =============================================================================
// Interface Definition
// =============================================================================

// SubscriptionService manages the per-user subscription record.
type SubscriptionService interface {
	// GetOrCreate returns the user's subscription, creating the initial
	// free/active row on first contact.
	GetOrCreate(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error)

	// GetByCustomerID looks a subscription up by its external customer id.
	// Used by webhook processing, which has no user identity.
	GetByCustomerID(ctx context.Context, customerID string) (*domain.Subscription, error)

	// ApplyCheckoutCompleted records a completed checkout session.
	ApplyCheckoutCompleted(ctx context.Context, userID uuid.UUID, plan domain.PlanType, customerID, subscriptionID, email string) error

	// ApplyStatusUpdate syncs status and period from a billing provider
	// event, keyed by the external customer id. An empty plan keeps the
	// current one.
	ApplyStatusUpdate(ctx context.Context, customerID string, plan domain.PlanType, status domain.SubscriptionStatus, periodStart, periodEnd time.Time, cancelAtPeriodEnd bool) error

	// ApplyCancellation reverts the subscription to free/canceled and clears
	// the external subscription id.
	ApplyCancellation(ctx context.Context, customerID string) error

	// AdminAdjust applies a manual plan grant with an audit row.
	// Requires the caller to have verified administrative privilege.
	AdminAdjust(ctx context.Context, params domain.AdminAdjustParams) (*domain.Subscription, error)

	// GrantPlan extends or upgrades the subscription by the shared
	// period-extension rule. Used by admin adjustment and by promo and
	// referral redemption so all three paths stack identically.
	GrantPlan(ctx context.Context, userID uuid.UUID, plan domain.PlanType, days int) (*domain.Subscription, error)

	// ListAdjustments returns the administrative audit trail for a user.
	ListAdjustments(ctx context.Context, userID uuid.UUID) ([]domain.SubscriptionAdjustment, error)
}

// =============================================================================
// Implementation
// =============================================================================

type subscriptionService struct {
	store  SubscriptionStore
	email  email.Service // may be nil
	logger *slog.Logger
	now    func() time.Time
}

// NewSubscriptionService creates a new SubscriptionService.
// emailService may be nil to disable plan-change notifications.
func NewSubscriptionService(store SubscriptionStore, emailService email.Service, logger *slog.Logger) SubscriptionService {
	return &subscriptionService{
		store:  store,
		email:  emailService,
		logger: logger,
		now:    time.Now,
	}
}

// GetOrCreate returns the user's subscription, creating it on first contact.
func (s *subscriptionService) GetOrCreate(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error) {
	sub, err := s.store.GetSubscriptionByUserID(ctx, userID)
	if err == nil {
		return sub, nil
	}
	if domain.ErrorCode(err) != domain.ENOTFOUND {
		return nil, err
	}

	sub, err = s.store.CreateSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("subscription created", "user_id", userID, "plan", sub.PlanType)
	return sub, nil
}

// GetByCustomerID looks a subscription up by its external customer id.
func (s *subscriptionService) GetByCustomerID(ctx context.Context, customerID string) (*domain.Subscription, error) {
	return s.store.GetSubscriptionByCustomerID(ctx, customerID)
}

// ApplyCheckoutCompleted records a completed checkout session.
func (s *subscriptionService) ApplyCheckoutCompleted(ctx context.Context, userID uuid.UUID, plan domain.PlanType, customerID, subscriptionID, emailAddr string) error {
	const op = "subscription.checkout_completed"

	if _, err := domain.GetPlan(plan); err != nil {
		return err
	}

	// Make sure the row exists: checkout can complete before the user ever
	// touched an entitlement endpoint.
	if _, err := s.GetOrCreate(ctx, userID); err != nil {
		return err
	}

	if err := s.store.SetCheckoutCompleted(ctx, userID, plan, customerID, subscriptionID, emailAddr); err != nil {
		return err
	}

	s.logger.Info("checkout completed",
		"user_id", userID,
		"plan", plan,
		"customer_id", customerID,
	)
	s.notifyPlanChanged(userID, emailAddr, plan, time.Time{})
	return nil
}

// ApplyStatusUpdate syncs status and period from a billing provider event.
func (s *subscriptionService) ApplyStatusUpdate(ctx context.Context, customerID string, plan domain.PlanType, status domain.SubscriptionStatus, periodStart, periodEnd time.Time, cancelAtPeriodEnd bool) error {
	const op = "subscription.status_update"

	if plan != "" {
		if _, err := domain.GetPlan(plan); err != nil {
			return err
		}
	}

	if err := s.store.SyncSubscriptionStatus(ctx, customerID, plan, status, periodStart, periodEnd, cancelAtPeriodEnd); err != nil {
		return err
	}

	s.logger.Info("subscription status synced",
		"customer_id", customerID,
		"status", status,
		"plan", plan,
		"cancel_at_period_end", cancelAtPeriodEnd,
	)
	return nil
}

// ApplyCancellation reverts the subscription to free/canceled.
func (s *subscriptionService) ApplyCancellation(ctx context.Context, customerID string) error {
	if err := s.store.CancelSubscriptionByCustomerID(ctx, customerID); err != nil {
		return err
	}
	s.logger.Info("subscription canceled", "customer_id", customerID)
	return nil
}

// GrantPlan extends or upgrades the subscription by the shared rule.
func (s *subscriptionService) GrantPlan(ctx context.Context, userID uuid.UUID, plan domain.PlanType, days int) (*domain.Subscription, error) {
	const op = "subscription.grant"

	if _, err := domain.GetPlan(plan); err != nil {
		return nil, err
	}
	if days <= 0 {
		return nil, domain.Invalid(op, "duration must be at least one day")
	}

	if _, err := s.GetOrCreate(ctx, userID); err != nil {
		return nil, err
	}

	// The extension is a single storage-level update so that concurrent
	// grants for the same user stack rather than losing one another.
	if err := s.store.ExtendPlanPeriod(ctx, userID, plan, s.now().UTC(), days); err != nil {
		return nil, err
	}

	updated, err := s.store.GetSubscriptionByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("plan granted",
		"user_id", userID,
		"plan", plan,
		"days", days,
		"period_end", updated.CurrentPeriodEnd,
	)
	s.notifyPlanChanged(userID, updated.Email, plan, updated.CurrentPeriodEnd)
	return updated, nil
}

// AdminAdjust applies a manual plan grant with an audit row.
func (s *subscriptionService) AdminAdjust(ctx context.Context, params domain.AdminAdjustParams) (*domain.Subscription, error) {
	const op = "subscription.admin_adjust"

	if strings.TrimSpace(params.Actor) == "" {
		return nil, domain.Invalid(op, "actor is required")
	}
	if strings.TrimSpace(params.Reason) == "" {
		return nil, domain.Invalid(op, "reason is required")
	}

	before, err := s.GetOrCreate(ctx, params.UserID)
	if err != nil {
		return nil, err
	}

	updated, err := s.GrantPlan(ctx, params.UserID, params.NewPlan, params.DurationDays)
	if err != nil {
		return nil, err
	}

	adj := &domain.SubscriptionAdjustment{
		ID:           uuid.New(),
		UserID:       params.UserID,
		Actor:        params.Actor,
		PreviousPlan: before.PlanType,
		NewPlan:      params.NewPlan,
		DurationDays: params.DurationDays,
		Reason:       params.Reason,
	}
	if err := s.store.InsertAdjustment(ctx, adj); err != nil {
		// The grant already committed; surface the audit failure loudly
		// rather than silently losing the trail.
		s.logger.Error("plan adjusted but audit row failed",
			"user_id", params.UserID,
			"actor", params.Actor,
			"error", err,
		)
		return nil, err
	}

	metrics.AdminAdjustments.Inc()
	s.logger.Info("admin adjustment applied",
		"user_id", params.UserID,
		"actor", params.Actor,
		"previous_plan", before.PlanType,
		"new_plan", params.NewPlan,
		"days", params.DurationDays,
	)
	return updated, nil
}

// ListAdjustments returns the administrative audit trail for a user.
func (s *subscriptionService) ListAdjustments(ctx context.Context, userID uuid.UUID) ([]domain.SubscriptionAdjustment, error) {
	return s.store.ListAdjustments(ctx, userID)
}

// notifyPlanChanged sends the plan-change confirmation. Best effort.
func (s *subscriptionService) notifyPlanChanged(userID uuid.UUID, to string, plan domain.PlanType, periodEnd time.Time) {
	if s.email == nil || to == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.email.SendPlanChanged(ctx, to, plan, periodEnd); err != nil {
			s.logger.Warn("failed to send plan-change email",
				"user_id", userID,
				"plan", plan,
				"error", err,
			)
		}
	}()
}
