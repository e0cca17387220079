// This file implements promo-code and referral redemption.
//
// Routes:
//   - POST /api/promo/redeem               -> HandleRedeemPromo
//   - GET  /api/referral/code              -> HandleGetReferralCode
//   - POST /api/referral/redeem            -> HandleRedeemReferral
//   - GET  /api/referral/rewards           -> HandleListRewards
//   - POST /api/referral/rewards/{id}/apply -> HandleApplyReward
//
// All routes require an authenticated user.
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

// RedeemHandler serves promo-code and referral redemption.
type RedeemHandler struct {
	promos    service.PromoService
	referrals service.ReferralService
	logger    *slog.Logger
}

// NewRedeemHandler creates a new RedeemHandler.
func NewRedeemHandler(promos service.PromoService, referrals service.ReferralService, logger *slog.Logger) *RedeemHandler {
	return &RedeemHandler{
		promos:    promos,
		referrals: referrals,
		logger:    logger,
	}
}

// RegisterRoutes registers redemption routes on the provided mux.
func (h *RedeemHandler) RegisterRoutes(mux *http.ServeMux, requireUser func(http.Handler) http.Handler) {
	mux.Handle("POST /api/promo/redeem", requireUser(http.HandlerFunc(h.HandleRedeemPromo)))
	mux.Handle("GET /api/referral/code", requireUser(http.HandlerFunc(h.HandleGetReferralCode)))
	mux.Handle("POST /api/referral/redeem", requireUser(http.HandlerFunc(h.HandleRedeemReferral)))
	mux.Handle("GET /api/referral/rewards", requireUser(http.HandlerFunc(h.HandleListRewards)))
	mux.Handle("POST /api/referral/rewards/{id}/apply", requireUser(http.HandlerFunc(h.HandleApplyReward)))
}

type redeemRequest struct {
	Code string `json:"code"`
}

type redeemResponse struct {
	Plan             domain.PlanType `json:"plan"`
	CurrentPeriodEnd time.Time       `json:"current_period_end"`
}

// HandleRedeemPromo applies a promo code to the caller's subscription.
func (h *RedeemHandler) HandleRedeemPromo(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	var req redeemRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	sub, err := h.promos.Redeem(r.Context(), userID, req.Code)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, redeemResponse{
		Plan:             sub.PlanType,
		CurrentPeriodEnd: sub.CurrentPeriodEnd,
	})
}

// HandleGetReferralCode returns the caller's shareable referral code,
// creating it on first request.
func (h *RedeemHandler) HandleGetReferralCode(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	rc, err := h.referrals.GetOrCreateCode(r.Context(), userID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"code": rc.Code})
}

// HandleRedeemReferral links the caller to the referrer behind the code and
// grants both parties their reward.
func (h *RedeemHandler) HandleRedeemReferral(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	var req redeemRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	if err := h.referrals.Redeem(r.Context(), userID, req.Code); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"reward_days": domain.RewardDays,
	})
}

type rewardResponse struct {
	ID        uuid.UUID  `json:"id"`
	Days      int        `json:"days"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	AppliedAt *time.Time `json:"applied_at,omitempty"`
}

// HandleListRewards returns the caller's referral rewards.
func (h *RedeemHandler) HandleListRewards(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	rewards, err := h.referrals.ListRewards(r.Context(), userID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	out := make([]rewardResponse, 0, len(rewards))
	for _, rw := range rewards {
		out = append(out, rewardResponse{
			ID:        rw.ID,
			Days:      rw.Days,
			Status:    string(rw.Status),
			CreatedAt: rw.CreatedAt,
			AppliedAt: rw.AppliedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"rewards": out})
}

// HandleApplyReward consumes one pending reward against the subscription.
func (h *RedeemHandler) HandleApplyReward(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	rewardID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid("referral.apply_reward", "invalid reward id"))
		return
	}

	sub, err := h.referrals.ApplyReward(r.Context(), userID, rewardID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, redeemResponse{
		Plan:             sub.PlanType,
		CurrentPeriodEnd: sub.CurrentPeriodEnd,
	})
}
