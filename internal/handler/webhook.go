// This file implements the Stripe webhook handler for processing billing events.
//
// Route:
//   - POST /webhooks/stripe -> HandleStripeWebhook
//
// This route is PUBLIC (no auth middleware) because Stripe calls it directly.
// Authentication is via the Stripe webhook signature verification.
package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79"

	"github.com/eletrogest/eletrogest/internal/billing"
	"github.com/eletrogest/eletrogest/internal/domain"
	"github.com/eletrogest/eletrogest/internal/metrics"
	"github.com/eletrogest/eletrogest/internal/service"
)

// WebhookHandler handles incoming webhook events from Stripe.
type WebhookHandler struct {
	billing       billing.Service
	subscriptions service.SubscriptionService
	logger        *slog.Logger
}

// NewWebhookHandler creates a new WebhookHandler.
// billingService may be nil when Stripe is not configured.
func NewWebhookHandler(billingService billing.Service, subscriptions service.SubscriptionService, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		billing:       billingService,
		subscriptions: subscriptions,
		logger:        logger,
	}
}

// RegisterRoutes registers webhook routes on the provided mux.
// These routes are PUBLIC, no auth middleware.
func (h *WebhookHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /webhooks/stripe", h.HandleStripeWebhook)
}

// HandleStripeWebhook processes incoming Stripe webhook events.
func (h *WebhookHandler) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	if h.billing == nil {
		h.logger.Warn("stripe webhook received but billing is not configured")
		w.WriteHeader(http.StatusOK)
		return
	}

	// Limit the body to 64KB; Stripe events are small.
	body, err := io.ReadAll(io.LimitReader(r.Body, 65536))
	if err != nil {
		h.logger.Error("failed to read webhook body", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	signature := r.Header.Get("Stripe-Signature")
	event, err := h.billing.VerifyWebhookSignature(body, signature)
	if err != nil {
		h.logger.Warn("webhook signature verification failed", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	h.logger.Info("stripe webhook received", "type", event.Type, "id", event.ID)
	metrics.WebhookEvents.WithLabelValues(string(event.Type)).Inc()

	switch event.Type {
	case "checkout.session.completed":
		h.handleCheckoutCompleted(event)
	case "customer.subscription.updated":
		h.handleSubscriptionUpdated(event)
	case "customer.subscription.deleted":
		h.handleSubscriptionDeleted(event)
	case "invoice.payment_succeeded":
		h.handlePaymentSucceeded(event)
	case "invoice.payment_failed":
		h.handlePaymentFailed(event)
	default:
		h.logger.Debug("unhandled webhook event type", "type", event.Type)
	}

	// Always 200: Stripe retries on anything else, and our processing
	// failures are logged, not recoverable by a replay of the same payload.
	w.WriteHeader(http.StatusOK)
}

func (h *WebhookHandler) handleCheckoutCompleted(event stripe.Event) {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		h.logger.Error("failed to parse checkout session", "error", err)
		return
	}

	if session.Customer == nil || session.Subscription == nil {
		h.logger.Warn("checkout session missing customer or subscription", "session_id", session.ID)
		return
	}

	// The user id travels in the client reference set at session creation.
	userID, err := uuid.Parse(session.ClientReferenceID)
	if err != nil {
		h.logger.Error("checkout session carries no valid user id",
			"session_id", session.ID, "client_reference_id", session.ClientReferenceID)
		return
	}

	plan := h.billing.PlanForPriceID(session.Metadata["price_id"])
	if plan == "" {
		h.logger.Warn("checkout session price does not map to a plan",
			"session_id", session.ID, "price_id", session.Metadata["price_id"])
		return
	}

	email := ""
	if session.CustomerDetails != nil {
		email = session.CustomerDetails.Email
	}

	if err := h.subscriptions.ApplyCheckoutCompleted(webhookCtx(), userID, plan,
		session.Customer.ID, session.Subscription.ID, email); err != nil {
		h.logger.Error("failed to apply checkout", "error", err, "user_id", userID)
	}
}

func (h *WebhookHandler) handleSubscriptionUpdated(event stripe.Event) {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		h.logger.Error("failed to parse subscription event", "error", err)
		return
	}

	if sub.Customer == nil {
		h.logger.Warn("subscription event missing customer", "subscription_id", sub.ID)
		return
	}

	// An unknown price keeps the current plan; status still syncs.
	var plan domain.PlanType
	if len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		plan = h.billing.PlanForPriceID(sub.Items.Data[0].Price.ID)
	}

	status := mapStripeStatus(sub.Status)
	periodStart := time.Unix(sub.CurrentPeriodStart, 0).UTC()
	periodEnd := time.Unix(sub.CurrentPeriodEnd, 0).UTC()

	if err := h.subscriptions.ApplyStatusUpdate(webhookCtx(), sub.Customer.ID,
		plan, status, periodStart, periodEnd, sub.CancelAtPeriodEnd); err != nil {
		h.logger.Error("failed to sync subscription", "error", err, "customer_id", sub.Customer.ID)
		return
	}

	h.logger.Info("subscription event processed",
		"customer_id", sub.Customer.ID, "status", status, "plan", plan)
}

func (h *WebhookHandler) handleSubscriptionDeleted(event stripe.Event) {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		h.logger.Error("failed to parse subscription deleted event", "error", err)
		return
	}

	if sub.Customer == nil {
		h.logger.Warn("subscription deleted event missing customer", "subscription_id", sub.ID)
		return
	}

	if err := h.subscriptions.ApplyCancellation(webhookCtx(), sub.Customer.ID); err != nil {
		h.logger.Error("failed to apply cancellation", "error", err, "customer_id", sub.Customer.ID)
		return
	}

	h.logger.Info("subscription deleted", "customer_id", sub.Customer.ID, "subscription_id", sub.ID)
}

func (h *WebhookHandler) handlePaymentSucceeded(event stripe.Event) {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		h.logger.Error("failed to parse invoice payment succeeded event", "error", err)
		return
	}

	if invoice.Customer == nil {
		return
	}

	// Recovery from past_due: the payment landed, so the plan is good again.
	sub, err := h.subscriptions.GetByCustomerID(webhookCtx(), invoice.Customer.ID)
	if err != nil {
		h.logger.Debug("no subscription for payment succeeded", "customer_id", invoice.Customer.ID)
		return
	}
	if sub.Status == domain.SubscriptionStatusActive {
		return
	}

	if err := h.subscriptions.ApplyStatusUpdate(webhookCtx(), invoice.Customer.ID, "",
		domain.SubscriptionStatusActive, sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.CancelAtPeriodEnd); err != nil {
		h.logger.Error("failed to reactivate on payment success", "error", err, "customer_id", invoice.Customer.ID)
	}
}

func (h *WebhookHandler) handlePaymentFailed(event stripe.Event) {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		h.logger.Error("failed to parse invoice payment failed event", "error", err)
		return
	}

	if invoice.Customer == nil {
		return
	}

	sub, err := h.subscriptions.GetByCustomerID(webhookCtx(), invoice.Customer.ID)
	if err != nil {
		h.logger.Debug("no subscription for payment failed", "customer_id", invoice.Customer.ID)
		return
	}

	if err := h.subscriptions.ApplyStatusUpdate(webhookCtx(), invoice.Customer.ID, "",
		domain.SubscriptionStatusPastDue, sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.CancelAtPeriodEnd); err != nil {
		h.logger.Error("failed to set past_due on payment failure", "error", err, "customer_id", invoice.Customer.ID)
	}

	h.logger.Warn("payment failed", "customer_id", invoice.Customer.ID)
}

// mapStripeStatus folds Stripe's status vocabulary into ours. Statuses with
// no entitlement meaning of their own collapse onto the nearest state.
func mapStripeStatus(s stripe.SubscriptionStatus) domain.SubscriptionStatus {
	switch s {
	case stripe.SubscriptionStatusTrialing:
		return domain.SubscriptionStatusTrialing
	case stripe.SubscriptionStatusActive:
		return domain.SubscriptionStatusActive
	case stripe.SubscriptionStatusPastDue, stripe.SubscriptionStatusUnpaid:
		return domain.SubscriptionStatusPastDue
	case stripe.SubscriptionStatusCanceled:
		return domain.SubscriptionStatusCanceled
	default:
		return domain.SubscriptionStatusInactive
	}
}

// webhookCtx returns a background context for webhook processing.
// Webhooks are async events and don't have a user request context.
func webhookCtx() context.Context {
	return context.Background()
}
