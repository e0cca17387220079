// Package domain contains core business types and interfaces.
//
// This file defines the plan catalog: the static tiers offered to
// electrical contractors and their per-resource limits.
package domain

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// PlanType identifies a pricing tier.
type PlanType string

const (
	PlanFree         PlanType = "free"
	PlanBasic        PlanType = "basic"
	PlanProfessional PlanType = "professional"
)

// LimitUnlimited is the sentinel limit meaning a resource type has no cap on
// the plan. It is distinct from 0, which means the resource type is not
// offered at all.
const LimitUnlimited = -1

// Plan is immutable reference data describing a tier.
type Plan struct {
	Type        PlanType
	DisplayName string
	// PriceCents is the monthly price in centavos (BRL).
	PriceCents int64
	// Limits maps resource types to their monthly creation limits.
	// A missing key means the resource type is not offered on this plan.
	Limits map[ResourceType]int
}

// LimitFor returns the monthly limit for a resource type.
// A missing key yields 0 (not offered on this plan).
func (p Plan) LimitFor(rt ResourceType) int {
	return p.Limits[rt]
}

// IsUnlimited reports whether the plan places no cap on the resource type.
func (p Plan) IsUnlimited(rt ResourceType) bool {
	return p.Limits[rt] == LimitUnlimited
}

// FormattedPrice renders the monthly price as Brazilian currency, e.g. "R$ 59,90".
func (p Plan) FormattedPrice() string {
	pr := message.NewPrinter(language.BrazilianPortuguese)
	return pr.Sprintf("R$ %.2f", float64(p.PriceCents)/100)
}

// PlanCatalog maps plan types to their definitions. Loaded, never mutated.
var PlanCatalog = map[PlanType]Plan{
	PlanFree: {
		Type:        PlanFree,
		DisplayName: "Gratuito",
		PriceCents:  0,
		Limits: map[ResourceType]int{
			ResourceClients:  5,
			ResourceQuotes:   10,
			ResourceInvoices: 5,
			ResourceProducts: 10,
		},
	},
	PlanBasic: {
		Type:        PlanBasic,
		DisplayName: "Básico",
		PriceCents:  2990,
		Limits: map[ResourceType]int{
			ResourceClients:    50,
			ResourceQuotes:     100,
			ResourceInvoices:   50,
			ResourceProducts:   200,
			ResourceTimesheets: 100,
		},
	},
	PlanProfessional: {
		Type:        PlanProfessional,
		DisplayName: "Profissional",
		PriceCents:  5990,
		Limits: map[ResourceType]int{
			ResourceClients:    LimitUnlimited,
			ResourceQuotes:     LimitUnlimited,
			ResourceInvoices:   LimitUnlimited,
			ResourceProducts:   LimitUnlimited,
			ResourceTimesheets: LimitUnlimited,
		},
	},
}

// GetPlan looks up a plan by type.
// Returns ENOTFOUND for unknown plan types; with the closed enum this should
// be unreachable except for corrupted subscription rows.
func GetPlan(pt PlanType) (Plan, error) {
	plan, ok := PlanCatalog[pt]
	if !ok {
		return Plan{}, NotFound("plan.get", "plan", string(pt))
	}
	return plan, nil
}

// ParsePlanType validates a plan type string.
func ParsePlanType(s string) (PlanType, error) {
	pt := PlanType(s)
	if _, ok := PlanCatalog[pt]; !ok {
		return "", Invalid("plan.parse", "unknown plan type: "+s)
	}
	return pt, nil
}
