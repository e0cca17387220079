// This file implements billing session handlers backed by Stripe.
//
// Routes:
//   - GET  /api/billing/prices     -> ListPrices
//   - POST /api/billing/checkout   -> CreateCheckout
//   - POST /api/billing/portal     -> OpenPortal
//   - POST /api/billing/cancel     -> CancelSubscription
//   - POST /api/billing/reactivate -> ReactivateSubscription
//
// All routes except the price catalog require an authenticated user. The handlers return session URLs
// for the front door to redirect to; the engine itself never renders pages.
package handler

import (
	"log/slog"
	"net/http"

	"github.com/eletrogest/eletrogest/internal/auth"
	"github.com/eletrogest/eletrogest/internal/billing"
	"github.com/eletrogest/eletrogest/internal/domain"
	"github.com/eletrogest/eletrogest/internal/service"
)

// BillingHandler handles billing session HTTP requests.
type BillingHandler struct {
	billing       billing.Service
	subscriptions service.SubscriptionService
	baseURL       string
	prices        billing.PriceConfig
	logger        *slog.Logger
}

// NewBillingHandler creates a new BillingHandler.
// billingService may be nil when Stripe is not configured (development mode).
func NewBillingHandler(billingService billing.Service, subscriptions service.SubscriptionService, baseURL string, prices billing.PriceConfig, logger *slog.Logger) *BillingHandler {
	return &BillingHandler{
		billing:       billingService,
		subscriptions: subscriptions,
		baseURL:       baseURL,
		prices:        prices,
		logger:        logger,
	}
}

// RegisterRoutes registers billing routes on the provided mux.
func (h *BillingHandler) RegisterRoutes(mux *http.ServeMux, requireUser func(http.Handler) http.Handler) {
	mux.HandleFunc("GET /api/billing/prices", h.ListPrices)
	mux.Handle("POST /api/billing/checkout", requireUser(http.HandlerFunc(h.CreateCheckout)))
	mux.Handle("POST /api/billing/portal", requireUser(http.HandlerFunc(h.OpenPortal)))
	mux.Handle("POST /api/billing/cancel", requireUser(http.HandlerFunc(h.CancelSubscription)))
	mux.Handle("POST /api/billing/reactivate", requireUser(http.HandlerFunc(h.ReactivateSubscription)))
}

// notConfigured is returned when Stripe is not wired up in this environment.
func (h *BillingHandler) notConfigured(w http.ResponseWriter, r *http.Request) bool {
	if h.billing != nil {
		return false
	}
	err := domain.Errorf(domain.EPAYMENT, "billing", "Billing is not available in this environment")
	ErrorResponse(w, r, h.logger, err)
	return true
}

type priceResponse struct {
	Plan     domain.PlanType `json:"plan"`
	Interval string          `json:"interval"`
	PriceID  string          `json:"price_id"`
}

// ListPrices returns the purchasable Stripe price ids. Public; the front door
// uses it to build the upgrade page without hardcoding price ids.
func (h *BillingHandler) ListPrices(w http.ResponseWriter, r *http.Request) {
	prices := make([]priceResponse, 0, 4)
	add := func(plan domain.PlanType, interval, id string) {
		if id != "" {
			prices = append(prices, priceResponse{Plan: plan, Interval: interval, PriceID: id})
		}
	}
	add(domain.PlanBasic, "month", h.prices.BasicMonthlyPriceID)
	add(domain.PlanBasic, "year", h.prices.BasicYearlyPriceID)
	add(domain.PlanProfessional, "month", h.prices.ProfessionalMonthlyPriceID)
	add(domain.PlanProfessional, "year", h.prices.ProfessionalYearlyPriceID)
	writeJSON(w, http.StatusOK, map[string]any{"prices": prices})
}

type checkoutRequest struct {
	PriceID string `json:"price_id"`
	Email   string `json:"email"`
}

// CreateCheckout creates a Stripe Checkout session and returns its URL.
func (h *BillingHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	if h.notConfigured(w, r) {
		return
	}
	userID, ok := auth.UserID(r.Context())
	if !ok {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	var req checkoutRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	// Only prices we know about map to a plan; anything else would leave the
	// webhook unable to classify the subscription.
	if h.billing.PlanForPriceID(req.PriceID) == "" {
		ErrorResponse(w, r, h.logger, domain.Invalid("billing.checkout", "unknown price id"))
		return
	}

	successURL := h.baseURL + "/assinatura/sucesso?session_id={CHECKOUT_SESSION_ID}"
	cancelURL := h.baseURL + "/assinatura/cancelado"

	url, err := h.billing.CreateCheckoutSession(userID.String(), req.Email, req.PriceID, successURL, cancelURL)
	if err != nil {
		h.logger.Error("failed to create checkout session", "error", err, "user_id", userID)
		ErrorResponse(w, r, h.logger, domain.Errorf(domain.EPAYMENT, "billing.checkout", "Failed to start checkout"))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

// OpenPortal creates a Stripe Customer Portal session and returns its URL.
func (h *BillingHandler) OpenPortal(w http.ResponseWriter, r *http.Request) {
	if h.notConfigured(w, r) {
		return
	}
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
	if sub.StripeCustomerID == "" {
		ErrorResponse(w, r, h.logger, domain.Invalid("billing.portal", "no billing account yet"))
		return
	}

	url, err := h.billing.CreatePortalSession(sub.StripeCustomerID, h.baseURL+"/assinatura")
	if err != nil {
		h.logger.Error("failed to create portal session", "error", err, "user_id", userID)
		ErrorResponse(w, r, h.logger, domain.Errorf(domain.EPAYMENT, "billing.portal", "Failed to open billing portal"))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

// CancelSubscription flags the subscription to cancel at period end.
func (h *BillingHandler) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	if h.notConfigured(w, r) {
		return
	}
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
	if sub.StripeSubscriptionID == "" {
		ErrorResponse(w, r, h.logger, domain.Invalid("billing.cancel", "no active paid subscription"))
		return
	}

	if err := h.billing.CancelSubscription(sub.StripeSubscriptionID); err != nil {
		h.logger.Error("failed to cancel subscription", "error", err, "user_id", userID)
		ErrorResponse(w, r, h.logger, domain.Errorf(domain.EPAYMENT, "billing.cancel", "Failed to cancel subscription"))
		return
	}

	h.logger.Info("subscription flagged for cancellation", "user_id", userID)
	writeJSON(w, http.StatusOK, map[string]bool{"cancel_at_period_end": true})
}

// ReactivateSubscription removes a pending cancellation.
func (h *BillingHandler) ReactivateSubscription(w http.ResponseWriter, r *http.Request) {
	if h.notConfigured(w, r) {
		return
	}
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
	if sub.StripeSubscriptionID == "" {
		ErrorResponse(w, r, h.logger, domain.Invalid("billing.reactivate", "no active paid subscription"))
		return
	}

	if err := h.billing.ReactivateSubscription(sub.StripeSubscriptionID); err != nil {
		h.logger.Error("failed to reactivate subscription", "error", err, "user_id", userID)
		ErrorResponse(w, r, h.logger, domain.Errorf(domain.EPAYMENT, "billing.reactivate", "Failed to reactivate subscription"))
		return
	}

	h.logger.Info("subscription reactivated", "user_id", userID)
	writeJSON(w, http.StatusOK, map[string]bool{"cancel_at_period_end": false})
}
