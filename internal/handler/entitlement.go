// Package handler contains the HTTP handlers for the EletroGest engine.
//
// This file implements the entitlement surface: plan catalog, subscription
// state, usage overview, per-resource checks, and usage recording.
//
// Routes:
//   - GET  /api/plans                        -> HandleListPlans
//   - GET  /api/subscription                 -> HandleGetSubscription
//   - GET  /api/entitlements                 -> HandleOverview
//   - GET  /api/entitlements/{resourceType}  -> HandleCheck
//   - POST /api/usage/{resourceType}         -> HandleRecordUsage
//
// All routes except /api/plans require an authenticated user.
package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/eletrogest/eletrogest/internal/auth"
	"github.com/eletrogest/eletrogest/internal/domain"
	"github.com/eletrogest/eletrogest/internal/service"
)

// EntitlementHandler serves the plan catalog and entitlement decisions.
type EntitlementHandler struct {
	entitlements  service.EntitlementService
	subscriptions service.SubscriptionService
	logger        *slog.Logger
}

// NewEntitlementHandler creates a new EntitlementHandler.
func NewEntitlementHandler(entitlements service.EntitlementService, subscriptions service.SubscriptionService, logger *slog.Logger) *EntitlementHandler {
	return &EntitlementHandler{
		entitlements:  entitlements,
		subscriptions: subscriptions,
		logger:        logger,
	}
}

// RegisterRoutes registers entitlement routes on the provided mux.
// requireUser wraps the per-user routes.
func (h *EntitlementHandler) RegisterRoutes(mux *http.ServeMux, requireUser func(http.Handler) http.Handler) {
	mux.HandleFunc("GET /api/plans", h.HandleListPlans)
	mux.Handle("GET /api/subscription", requireUser(http.HandlerFunc(h.HandleGetSubscription)))
	mux.Handle("GET /api/entitlements", requireUser(http.HandlerFunc(h.HandleOverview)))
	mux.Handle("GET /api/entitlements/{resourceType}", requireUser(http.HandlerFunc(h.HandleCheck)))
	mux.Handle("POST /api/usage/{resourceType}", requireUser(http.HandlerFunc(h.HandleRecordUsage)))
}

type planResponse struct {
	Type           domain.PlanType             `json:"type"`
	DisplayName    string                      `json:"display_name"`
	PriceCents     int64                       `json:"price_cents"`
	FormattedPrice string                      `json:"formatted_price"`
	Limits         map[domain.ResourceType]int `json:"limits"`
}

// HandleListPlans returns the plan catalog. Public.
func (h *EntitlementHandler) HandleListPlans(w http.ResponseWriter, r *http.Request) {
	plans := make([]planResponse, 0, len(domain.PlanCatalog))
	for _, pt := range []domain.PlanType{domain.PlanFree, domain.PlanBasic, domain.PlanProfessional} {
		plan := domain.PlanCatalog[pt]
		plans = append(plans, planResponse{
			Type:           plan.Type,
			DisplayName:    plan.DisplayName,
			PriceCents:     plan.PriceCents,
			FormattedPrice: plan.FormattedPrice(),
			Limits:         plan.Limits,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"plans": plans})
}

type subscriptionResponse struct {
	Plan               domain.PlanType           `json:"plan"`
	Status             domain.SubscriptionStatus `json:"status"`
	Active             bool                      `json:"active"`
	CurrentPeriodStart *time.Time                `json:"current_period_start,omitempty"`
	CurrentPeriodEnd   *time.Time                `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd  bool                      `json:"cancel_at_period_end"`
}

// HandleGetSubscription returns the caller's subscription state.
func (h *EntitlementHandler) HandleGetSubscription(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	sub, err := h.subscriptions.GetOrCreate(r.Context(), userID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	resp := subscriptionResponse{
		Plan:              sub.PlanType,
		Status:            sub.Status,
		Active:            sub.IsActive(),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}
	if !sub.CurrentPeriodStart.IsZero() {
		resp.CurrentPeriodStart = &sub.CurrentPeriodStart
	}
	if !sub.CurrentPeriodEnd.IsZero() {
		resp.CurrentPeriodEnd = &sub.CurrentPeriodEnd
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleOverview returns usage against limits for every resource type.
func (h *EntitlementHandler) HandleOverview(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	overview, err := h.entitlements.Overview(r.Context(), userID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

// HandleCheck returns the entitlement decision for one resource type.
func (h *EntitlementHandler) HandleCheck(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	rt, err := domain.ParseResourceType(r.PathValue("resourceType"))
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	check, err := h.entitlements.CheckLimit(r.Context(), userID, rt)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, check)
}

// HandleRecordUsage gates and records one resource creation. This is the
// strict path: the guarded increment refuses at the limit, so concurrent
// callers can never push a counter past it.
func (h *EntitlementHandler) HandleRecordUsage(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	rt, err := domain.ParseResourceType(r.PathValue("resourceType"))
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	check, err := h.entitlements.Consume(r.Context(), userID, rt, nil)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, check)
}
