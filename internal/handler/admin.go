// This file implements the administrative surface: manual subscription
// adjustments and promo code management.
//
// Routes:
//   - POST /api/admin/subscriptions/{userID}/adjust   -> HandleAdjustSubscription
//   - GET  /api/admin/subscriptions/{userID}/adjustments -> HandleListAdjustments
//   - POST /api/admin/promo-codes                     -> HandleCreatePromoCode
//   - POST /api/admin/promo-codes/{code}/deactivate   -> HandleDeactivatePromoCode
//
// All routes require an admin API key; the middleware also puts the actor
// identity on the request context for the audit trail.
package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/eletrogest/eletrogest/internal/auth"
	"github.com/eletrogest/eletrogest/internal/domain"
	"github.com/eletrogest/eletrogest/internal/service"
)

// AdminHandler serves administrative operations.
type AdminHandler struct {
	subscriptions service.SubscriptionService
	promos        service.PromoService
	logger        *slog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(subscriptions service.SubscriptionService, promos service.PromoService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		subscriptions: subscriptions,
		promos:        promos,
		logger:        logger,
	}
}

// RegisterRoutes registers admin routes on the provided mux.
func (h *AdminHandler) RegisterRoutes(mux *http.ServeMux, requireAdmin func(http.Handler) http.Handler) {
	mux.Handle("POST /api/admin/subscriptions/{userID}/adjust", requireAdmin(http.HandlerFunc(h.HandleAdjustSubscription)))
	mux.Handle("GET /api/admin/subscriptions/{userID}/adjustments", requireAdmin(http.HandlerFunc(h.HandleListAdjustments)))
	mux.Handle("POST /api/admin/promo-codes", requireAdmin(http.HandlerFunc(h.HandleCreatePromoCode)))
	mux.Handle("POST /api/admin/promo-codes/{code}/deactivate", requireAdmin(http.HandlerFunc(h.HandleDeactivatePromoCode)))
}

type adjustRequest struct {
	// Operator is an optional human name recorded alongside the
	// authenticated actor in the audit row.
	Operator     string `json:"operator"`
	Plan         string `json:"plan"`
	DurationDays int    `json:"duration_days"`
	Reason       string `json:"reason"`
}

// HandleAdjustSubscription applies a manual plan grant with an audit row.
func (h *AdminHandler) HandleAdjustSubscription(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(r.PathValue("userID"))
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid("admin.adjust", "invalid user id"))
		return
	}

	var req adjustRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	plan, err := domain.ParsePlanType(req.Plan)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	actor := auth.Actor(r.Context())
	if req.Operator != "" {
		actor += ":" + req.Operator
	}

	sub, err := h.subscriptions.AdminAdjust(r.Context(), domain.AdminAdjustParams{
		Actor:        actor,
		UserID:       userID,
		NewPlan:      plan,
		DurationDays: req.DurationDays,
		Reason:       req.Reason,
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"plan":               sub.PlanType,
		"status":             sub.Status,
		"current_period_end": sub.CurrentPeriodEnd,
	})
}

type adjustmentResponse struct {
	ID           uuid.UUID       `json:"id"`
	Actor        string          `json:"actor"`
	PreviousPlan domain.PlanType `json:"previous_plan"`
	NewPlan      domain.PlanType `json:"new_plan"`
	DurationDays int             `json:"duration_days"`
	Reason       string          `json:"reason"`
	CreatedAt    time.Time       `json:"created_at"`
}

// HandleListAdjustments returns a user's adjustment audit trail.
func (h *AdminHandler) HandleListAdjustments(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(r.PathValue("userID"))
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid("admin.list_adjustments", "invalid user id"))
		return
	}

	adjustments, err := h.subscriptions.ListAdjustments(r.Context(), userID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	out := make([]adjustmentResponse, 0, len(adjustments))
	for _, adj := range adjustments {
		out = append(out, adjustmentResponse{
			ID:           adj.ID,
			Actor:        adj.Actor,
			PreviousPlan: adj.PreviousPlan,
			NewPlan:      adj.NewPlan,
			DurationDays: adj.DurationDays,
			Reason:       adj.Reason,
			CreatedAt:    adj.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"adjustments": out})
}

type createPromoRequest struct {
	Code         string     `json:"code"`
	Plan         string     `json:"plan"`
	DurationDays int        `json:"duration_days"`
	MaxUses      int        `json:"max_uses"`
	ExpiresAt    *time.Time `json:"expires_at"`
}

// HandleCreatePromoCode issues a new promo code.
func (h *AdminHandler) HandleCreatePromoCode(w http.ResponseWriter, r *http.Request) {
	var req createPromoRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	plan, err := domain.ParsePlanType(req.Plan)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	promo, err := h.promos.Create(r.Context(), domain.CreatePromoCodeParams{
		Code:         req.Code,
		PlanType:     plan,
		DurationDays: req.DurationDays,
		MaxUses:      req.MaxUses,
		ExpiresAt:    req.ExpiresAt,
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	h.logger.Info("admin created promo code", "code", promo.Code, "actor", auth.Actor(r.Context()))
	writeJSON(w, http.StatusCreated, map[string]any{
		"code":          promo.Code,
		"plan":          promo.PlanType,
		"duration_days": promo.DurationDays,
		"max_uses":      promo.MaxUses,
		"expires_at":    promo.ExpiresAt,
	})
}

// HandleDeactivatePromoCode turns off a promo code.
func (h *AdminHandler) HandleDeactivatePromoCode(w http.ResponseWriter, r *http.Request) {
	if err := h.promos.Deactivate(r.Context(), r.PathValue("code")); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
