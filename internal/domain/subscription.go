// Package domain contains core business types and interfaces.
//
// This file defines the Subscription record: the authoritative state of a
// user's plan, billing status, and current period.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// SubscriptionStatus represents the possible states of a user's subscription.
//
// Transitions: trialing -> active; active -> past_due (billing failure);
// past_due -> active (payment recovered) or past_due -> canceled;
// active -> canceled (user/admin cancels). canceled is terminal until a new
// checkout restarts at trialing/active.
type SubscriptionStatus string

const (
	SubscriptionStatusInactive SubscriptionStatus = "inactive"
	SubscriptionStatusTrialing SubscriptionStatus = "trialing"
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusPastDue  SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
)

// ParseSubscriptionStatus validates a status string from an external source.
func ParseSubscriptionStatus(s string) (SubscriptionStatus, error) {
	switch st := SubscriptionStatus(s); st {
	case SubscriptionStatusInactive, SubscriptionStatusTrialing,
		SubscriptionStatusActive, SubscriptionStatusPastDue,
		SubscriptionStatusCanceled:
		return st, nil
	}
	return "", Invalid("subscription.parse_status", "unknown subscription status: "+s)
}

// Subscription is the per-user (1:1) plan assignment and billing state.
//
// Created at first contact with plan=free/status=active; mutated by billing
// webhook events, administrative override, or promo/referral redemption.
type Subscription struct {
	ID     uuid.UUID
	UserID uuid.UUID
	// Email is synced from checkout so notifications can reach the user;
	// the engine stores no other user profile data.
	Email                string
	PlanType             PlanType
	Status               SubscriptionStatus
	StripeCustomerID     string
	StripeSubscriptionID string
	CurrentPeriodStart   time.Time
	CurrentPeriodEnd     time.Time
	CancelAtPeriodEnd    bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// IsActive returns true if the subscription is active or trialing.
func (s *Subscription) IsActive() bool {
	return s.Status == SubscriptionStatusActive || s.Status == SubscriptionStatusTrialing
}

// ExtendPeriod computes the new period end when granting duration days.
//
// If the current end is in the future the grant stacks on top of it;
// an expired (or unset) period restarts from now. All three adjustment
// paths (admin, promo, referral) must use this same rule.
func ExtendPeriod(currentEnd, now time.Time, days int) time.Time {
	if currentEnd.After(now) {
		return currentEnd.AddDate(0, 0, days)
	}
	return now.AddDate(0, 0, days)
}

// SubscriptionAdjustment is an append-only audit row recording a manual
// administrative plan change. It exists purely for auditability and never
// feeds engine decisions.
type SubscriptionAdjustment struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	Actor        string
	PreviousPlan PlanType
	NewPlan      PlanType
	DurationDays int
	Reason       string
	CreatedAt    time.Time
}

// AdminAdjustParams carries a validated administrative plan adjustment.
type AdminAdjustParams struct {
	Actor        string
	UserID       uuid.UUID
	NewPlan      PlanType
	DurationDays int
	Reason       string
}
