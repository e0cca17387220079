// Package domain contains core business types and interfaces.
//
// This file defines promotional codes: admin-issued codes granting a plan for
// a fixed duration, with optional use and expiry caps.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// PromoCode is an admin-issued redeemable code.
//
// Invariant: CurrentUses <= MaxUses when MaxUses > 0. CurrentUses is only
// mutated by an atomic compare-and-increment at the storage layer.
type PromoCode struct {
	ID           uuid.UUID
	Code         string
	PlanType     PlanType
	DurationDays int
	// MaxUses caps total redemptions; 0 means uncapped.
	MaxUses     int
	CurrentUses int
	// ExpiresAt is the optional expiry instant; nil means the code never expires.
	ExpiresAt *time.Time
	Active    bool
	CreatedAt time.Time
}

// Validate checks redeemability at the given instant, in the fixed order
// expired -> inactive -> exhausted. The storage-layer compare-and-increment
// remains the authority for exhaustion under concurrency; this check exists
// to fail fast and to give deterministic error precedence.
func (p *PromoCode) Validate(now time.Time) error {
	const op = "promo.validate"
	if p.ExpiresAt != nil && now.After(*p.ExpiresAt) {
		return Expired(op, "this code has expired")
	}
	if !p.Active {
		return Inactive(op, "this code is no longer active")
	}
	if p.MaxUses > 0 && p.CurrentUses >= p.MaxUses {
		return Exhausted(op, "this code has reached its redemption limit")
	}
	return nil
}

// NormalizePromoCode canonicalizes user input before lookup.
func NormalizePromoCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// PromoRedemption is the per-user-per-code ledger row guarding against
// double redemption. The (UserID, PromoCodeID) pair is unique in storage.
type PromoRedemption struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	PromoCodeID uuid.UUID
	RedeemedAt  time.Time
}

// CreatePromoCodeParams carries validated parameters for issuing a new code.
type CreatePromoCodeParams struct {
	Code         string
	PlanType     PlanType
	DurationDays int
	MaxUses      int
	ExpiresAt    *time.Time
}
