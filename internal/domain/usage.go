// Package domain contains core business types and interfaces.
//
// This file defines usage counters and the entitlement decision types used to
// gate resource creation against plan limits.
package domain

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// ResourceType identifies a countable resource gated by plan limits.
// The set is closed; values match the platform's storage names.
type ResourceType string

const (
	ResourceClients    ResourceType = "clientes"
	ResourceQuotes     ResourceType = "orcamentos"
	ResourceInvoices   ResourceType = "faturas"
	ResourceProducts   ResourceType = "produtos"
	ResourceTimesheets ResourceType = "apontamentos"
)

// ResourceTypes is the closed set of resource types, in display order.
var ResourceTypes = []ResourceType{
	ResourceClients,
	ResourceQuotes,
	ResourceInvoices,
	ResourceProducts,
	ResourceTimesheets,
}

// ParseResourceType validates a resource type string.
func ParseResourceType(s string) (ResourceType, error) {
	rt := ResourceType(s)
	for _, known := range ResourceTypes {
		if rt == known {
			return rt, nil
		}
	}
	return "", Invalid("resource.parse", "unknown resource type: "+s)
}

// Period is a half-open [Start, End) usage window.
type Period struct {
	Start time.Time
	End   time.Time
}

// CurrentPeriod returns the calendar-month window containing now, in UTC.
// This is the single period rule for the whole engine; every counter key and
// every entitlement read derives its window from here.
func CurrentPeriod(now time.Time) Period {
	now = now.UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return Period{Start: start, End: start.AddDate(0, 1, 0)}
}

// UsageCounter is a per-user, per-resource-type count of resources created
// within a period. Usage is a ratchet: deleting a resource does not free
// quota back until the next period.
type UsageCounter struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	ResourceType ResourceType
	PeriodStart  time.Time
	PeriodEnd    time.Time
	Count        int
	UpdatedAt    time.Time
}

// Near-limit thresholds, in percent. At or above NearLimitThreshold the UI
// surfaces a warning; at or above AtLimitThreshold creation is blocked.
const (
	NearLimitThreshold = 80
	AtLimitThreshold   = 100
)

// LimitCheck is the entitlement decision for creating one more resource.
type LimitCheck struct {
	Allowed   bool `json:"allowed"`
	Current   int  `json:"current"`
	Limit     int  `json:"limit"`
	Unlimited bool `json:"unlimited"`
}

// UsagePercentage returns round(100*current/limit), or 0 when limit <= 0
// (both the "not offered" 0 and the unlimited sentinel report 0).
func UsagePercentage(current, limit int) int {
	if limit <= 0 {
		return 0
	}
	return int(math.Round(float64(current) / float64(limit) * 100))
}

// UsageEntry is one row of the per-user usage overview.
type UsageEntry struct {
	ResourceType ResourceType `json:"resource_type"`
	Current      int          `json:"current"`
	Limit        int          `json:"limit"`
	Unlimited    bool         `json:"unlimited"`
	Percent      int          `json:"percent"`
	NearLimit    bool         `json:"near_limit"`
	AtLimit      bool         `json:"at_limit"`
}

// UsageOverview summarizes a user's usage against their plan across all
// resource types.
type UsageOverview struct {
	Plan        PlanType     `json:"plan"`
	PeriodStart time.Time    `json:"period_start"`
	PeriodEnd   time.Time    `json:"period_end"`
	Entries     []UsageEntry `json:"entries"`
}
