// Package domain contains core business types and interfaces.
//
// This file defines the referral program: per-user referral codes, the link
// between referrer and referred user, and the free-day rewards granted to
// both parties.
package domain

import (
	"crypto/rand"
	"encoding/base32"
	"time"

	"github.com/google/uuid"
)

// RewardDays is the fixed number of free days granted to each party when a
// referral completes.
const RewardDays = 30

// RewardPlan is the plan granted for the reward period.
var RewardPlan = PlanProfessional

// ReferralCode belongs to exactly one referrer and is created on demand.
type ReferralCode struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Code      string
	CreatedAt time.Time
}

// ReferralStatus tracks the lifecycle of a referral link.
type ReferralStatus string

const (
	ReferralPending   ReferralStatus = "pending"
	ReferralCompleted ReferralStatus = "completed"
)

// Referral links a referrer to a referred user via a code.
// A user can be referred at most once (ReferredUserID is unique in storage).
type Referral struct {
	ID             uuid.UUID
	ReferrerID     uuid.UUID
	ReferredUserID uuid.UUID
	ReferralCodeID uuid.UUID
	Status         ReferralStatus
	RewardGranted  bool
	CreatedAt      time.Time
}

// RewardStatus tracks whether a reward has been consumed.
type RewardStatus string

const (
	RewardPending RewardStatus = "pending"
	RewardApplied RewardStatus = "applied"
)

// ReferralReward is a grant of free days belonging to one user. It is
// consumed (pending -> applied) when redeemed against the subscription.
type ReferralReward struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	ReferralID uuid.UUID
	Days       int
	Status     RewardStatus
	CreatedAt  time.Time
	AppliedAt  *time.Time
}

// referralCodeLength is the length of generated codes. 8 base32 characters
// keep codes typeable; collisions are left to the unique constraint.
const referralCodeLength = 8

var referralEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewReferralCodeValue generates a random referral code string.
func NewReferralCodeValue() (string, error) {
	buf := make([]byte, 5)
	if _, err := rand.Read(buf); err != nil {
		return "", Internal(err, "referral.generate", "failed to generate referral code")
	}
	return referralEncoding.EncodeToString(buf)[:referralCodeLength], nil
}
