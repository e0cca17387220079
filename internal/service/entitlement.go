// Package service contains the business logic layer.
//
// This file implements the entitlement evaluator: given a user's subscription
// and current usage, decide whether creating one more resource of a given
// type is allowed, and compute percentage-to-limit for the UI.
package service

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/eletrogest/eletrogest/internal/domain"
	"github.com/eletrogest/eletrogest/internal/email"
	"github.com/eletrogest/eletrogest/internal/metrics"
)

// =============================================================================
// Interface Definition
// =============================================================================

// EntitlementService decides whether resource creation is allowed under the
// user's plan limits.
//
// The evaluator is advisory: CheckLimit/CanCreate read without locking, and a
// narrow overshoot-by-one race is accepted on that path. Consume is the strict
// path that closes the race with a guarded increment in one transaction.
type EntitlementService interface {
	// CheckLimit resolves subscription -> plan -> limit and compares against
	// current usage. A missing limit key means the resource type is not
	// permitted on the plan (limit 0); the unlimited sentinel always allows.
	CheckLimit(ctx context.Context, userID uuid.UUID, rt domain.ResourceType) (*domain.LimitCheck, error)

	// CanCreate is a convenience wrapper returning only the decision.
	CanCreate(ctx context.Context, userID uuid.UUID, rt domain.ResourceType) (bool, error)

	// UsagePercentage returns round(100*current/limit), 0 for limit 0 and for
	// unlimited plans.
	UsagePercentage(ctx context.Context, userID uuid.UUID, rt domain.ResourceType) (int, error)

	// Overview reports usage against limits for every resource type.
	Overview(ctx context.Context, userID uuid.UUID) (*domain.UsageOverview, error)

	// Consume gates and records one resource creation atomically: the guarded
	// counter increment and fn (the resource write) commit together. Returns
	// ELIMIT without calling fn when the user is at their limit.
	Consume(ctx context.Context, userID uuid.UUID, rt domain.ResourceType, fn func(ctx context.Context) error) (*domain.LimitCheck, error)
}

// =============================================================================
// Implementation
// =============================================================================

type entitlementService struct {
	subscriptions SubscriptionService
	store         UsageStore
	email         email.Service // may be nil
	logger        *slog.Logger
	now           func() time.Time
}

// NewEntitlementService creates a new EntitlementService.
// emailService may be nil to disable near-limit notifications.
func NewEntitlementService(
	subscriptions SubscriptionService,
	store UsageStore,
	emailService email.Service,
	logger *slog.Logger,
) EntitlementService {
	return &entitlementService{
		subscriptions: subscriptions,
		store:         store,
		email:         emailService,
		logger:        logger,
		now:           time.Now,
	}
}

// resolveLimit loads the user's subscription and plan and returns the limit
// for the resource type alongside the subscription.
func (s *entitlementService) resolveLimit(ctx context.Context, userID uuid.UUID, rt domain.ResourceType) (*domain.Subscription, int, error) {
	sub, err := s.subscriptions.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	plan, err := domain.GetPlan(sub.PlanType)
	if err != nil {
		return nil, 0, err
	}
	return sub, plan.LimitFor(rt), nil
}

// CheckLimit resolves the entitlement decision for one more resource.
func (s *entitlementService) CheckLimit(ctx context.Context, userID uuid.UUID, rt domain.ResourceType) (*domain.LimitCheck, error) {
	_, limit, err := s.resolveLimit(ctx, userID, rt)
	if err != nil {
		return nil, err
	}

	period := domain.CurrentPeriod(s.now())
	current, err := s.store.GetUsage(ctx, userID, rt, period.Start)
	if err != nil {
		return nil, err
	}

	check := &domain.LimitCheck{
		Current:   current,
		Limit:     limit,
		Unlimited: limit == domain.LimitUnlimited,
	}
	if check.Unlimited {
		check.Allowed = true
	} else {
		check.Allowed = current < limit
	}

	metrics.EntitlementChecks.WithLabelValues(string(rt), strconv.FormatBool(check.Allowed)).Inc()
	return check, nil
}

// CanCreate is a convenience wrapper returning only the decision.
func (s *entitlementService) CanCreate(ctx context.Context, userID uuid.UUID, rt domain.ResourceType) (bool, error) {
	check, err := s.CheckLimit(ctx, userID, rt)
	if err != nil {
		return false, err
	}
	return check.Allowed, nil
}

// UsagePercentage returns the usage percentage against the limit.
func (s *entitlementService) UsagePercentage(ctx context.Context, userID uuid.UUID, rt domain.ResourceType) (int, error) {
	check, err := s.CheckLimit(ctx, userID, rt)
	if err != nil {
		return 0, err
	}
	if check.Unlimited {
		return 0, nil
	}
	return domain.UsagePercentage(check.Current, check.Limit), nil
}

// Overview reports usage against limits for every resource type.
func (s *entitlementService) Overview(ctx context.Context, userID uuid.UUID) (*domain.UsageOverview, error) {
	sub, err := s.subscriptions.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	plan, err := domain.GetPlan(sub.PlanType)
	if err != nil {
		return nil, err
	}

	period := domain.CurrentPeriod(s.now())
	overview := &domain.UsageOverview{
		Plan:        plan.Type,
		PeriodStart: period.Start,
		PeriodEnd:   period.End,
	}

	for _, rt := range domain.ResourceTypes {
		limit := plan.LimitFor(rt)
		current, err := s.store.GetUsage(ctx, userID, rt, period.Start)
		if err != nil {
			return nil, err
		}

		entry := domain.UsageEntry{
			ResourceType: rt,
			Current:      current,
			Limit:        limit,
			Unlimited:    limit == domain.LimitUnlimited,
		}
		if !entry.Unlimited {
			entry.Percent = domain.UsagePercentage(current, limit)
			entry.NearLimit = entry.Percent >= domain.NearLimitThreshold && entry.Percent < domain.AtLimitThreshold
			entry.AtLimit = limit == 0 || entry.Percent >= domain.AtLimitThreshold
		}
		overview.Entries = append(overview.Entries, entry)
	}
	return overview, nil
}

// Consume gates and records one resource creation atomically.
func (s *entitlementService) Consume(ctx context.Context, userID uuid.UUID, rt domain.ResourceType, fn func(ctx context.Context) error) (*domain.LimitCheck, error) {
	const op = "entitlement.consume"

	sub, limit, err := s.resolveLimit(ctx, userID, rt)
	if err != nil {
		return nil, err
	}

	period := domain.CurrentPeriod(s.now())

	// Limit 0 means the resource type is not offered on this plan; there is
	// nothing for the storage guard to do.
	if limit == 0 {
		metrics.LimitBlocks.WithLabelValues(string(rt), string(sub.PlanType)).Inc()
		return nil, domain.LimitReached(op, rt, 0, 0)
	}

	count, err := s.store.ConsumeUsage(ctx, userID, rt, period, limit, fn)
	if domain.ErrorCode(err) == domain.ELIMIT {
		metrics.LimitBlocks.WithLabelValues(string(rt), string(sub.PlanType)).Inc()
		s.logger.Info("resource creation blocked at plan limit",
			"user_id", userID,
			"resource_type", rt,
			"plan", sub.PlanType,
			"limit", limit,
		)
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	metrics.UsageIncrements.WithLabelValues(string(rt)).Inc()

	check := &domain.LimitCheck{
		Allowed:   true,
		Current:   count,
		Limit:     limit,
		Unlimited: limit == domain.LimitUnlimited,
	}
	s.maybeWarnNearLimit(sub, rt, count, limit)
	return check, nil
}

// maybeWarnNearLimit sends the 80% warning email when this increment crossed
// the threshold. Best effort: failures are logged, never surfaced.
func (s *entitlementService) maybeWarnNearLimit(sub *domain.Subscription, rt domain.ResourceType, count, limit int) {
	if s.email == nil || sub.Email == "" || limit <= 0 {
		return
	}

	percent := domain.UsagePercentage(count, limit)
	previous := domain.UsagePercentage(count-1, limit)
	if previous >= domain.NearLimitThreshold || percent < domain.NearLimitThreshold {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.email.SendNearLimitWarning(ctx, sub.Email, rt, percent); err != nil {
			s.logger.Warn("failed to send near-limit warning",
				"user_id", sub.UserID,
				"resource_type", rt,
				"error", err,
			)
		}
	}()
}
