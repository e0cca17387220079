// Package service contains the business logic layer.
//
// This file implements the usage counter service: per-user, per-resource
// counts of created resources within the current calendar month.
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

// UsageStore defines the storage operations the usage services depend on.
// Implemented by *repository.Repository; reimplemented in-memory for tests.
type UsageStore interface {
	// GetUsage returns the counter value for a period, 0 when no row exists.
	GetUsage(ctx context.Context, userID uuid.UUID, rt domain.ResourceType, periodStart time.Time) (int, error)

	// IncrementUsage atomically creates-or-increments the counter row and
	// returns the new count.
	IncrementUsage(ctx context.Context, userID uuid.UUID, rt domain.ResourceType, period domain.Period) (int, error)

	// ConsumeUsage runs the guarded increment (count < limit, or
	// unconditionally for a negative limit) and the caller's fn in one
	// transaction. Returns ELIMIT when the guard rejects.
	ConsumeUsage(ctx context.Context, userID uuid.UUID, rt domain.ResourceType, period domain.Period, limit int, fn func(ctx context.Context) error) (int, error)
}

// =============================================================================
// Interface Definition
// =============================================================================

// UsageService defines operations on usage counters.
type UsageService interface {
	// GetCurrentUsage returns the count for the period containing now.
	GetCurrentUsage(ctx context.Context, userID uuid.UUID, rt domain.ResourceType) (int, error)

	// Increment records one successful resource creation in the current
	// period and returns the new count. The counter is a ratchet: deletions
	// never decrement it within a period.
	Increment(ctx context.Context, userID uuid.UUID, rt domain.ResourceType) (int, error)
}

// =============================================================================
// Implementation
// =============================================================================

type usageService struct {
	store  UsageStore
	logger *slog.Logger
	now    func() time.Time
}

// NewUsageService creates a new UsageService.
func NewUsageService(store UsageStore, logger *slog.Logger) UsageService {
	return &usageService{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// GetCurrentUsage returns the count for the period containing now.
func (s *usageService) GetCurrentUsage(ctx context.Context, userID uuid.UUID, rt domain.ResourceType) (int, error) {
	period := domain.CurrentPeriod(s.now())
	return s.store.GetUsage(ctx, userID, rt, period.Start)
}

// Increment records one successful resource creation in the current period.
func (s *usageService) Increment(ctx context.Context, userID uuid.UUID, rt domain.ResourceType) (int, error) {
	const op = "usage.increment"

	period := domain.CurrentPeriod(s.now())
	count, err := s.store.IncrementUsage(ctx, userID, rt, period)
	if err != nil {
		return 0, err
	}

	metrics.UsageIncrements.WithLabelValues(string(rt)).Inc()
	s.logger.Debug("usage incremented",
		"user_id", userID,
		"resource_type", rt,
		"count", count,
		"period_start", period.Start,
	)
	return count, nil
}
