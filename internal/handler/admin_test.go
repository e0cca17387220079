package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/eletrogest/eletrogest/internal/auth"
	"github.com/eletrogest/eletrogest/internal/domain"
)

// asAdmin stamps the actor identity onto every request, standing in for the
// admin auth middleware.
func asAdmin(actor string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(auth.WithActor(r.Context(), actor)))
	})
}

func newAdminMux(subs *stubSubscriptions, actor string) *http.ServeMux {
	h := NewAdminHandler(subs, nil, testLogger())
	mux := http.NewServeMux()
	h.RegisterRoutes(mux, func(next http.Handler) http.Handler {
		return asAdmin(actor, next)
	})
	return mux
}

func TestHandleAdjustSubscriptionUsesAuthenticatedActor(t *testing.T) {
	subs := &stubSubscriptions{
		sub: &domain.Subscription{
			PlanType: domain.PlanBasic,
			Status:   domain.SubscriptionStatusActive,
		},
	}
	mux := newAdminMux(subs, "admin-key")

	body := `{"plan": "basic", "duration_days": 30, "reason": "suporte"}`
	req := httptest.NewRequest("POST", "/api/admin/subscriptions/"+uuid.NewString()+"/adjust", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body: %s", rec.Code, rec.Body.String())
	}
	if subs.lastAdjust.Actor != "admin-key" {
		t.Errorf("audit actor = %q, want the authenticated actor", subs.lastAdjust.Actor)
	}
}

func TestHandleAdjustSubscriptionAppendsOperator(t *testing.T) {
	subs := &stubSubscriptions{
		sub: &domain.Subscription{
			PlanType: domain.PlanProfessional,
			Status:   domain.SubscriptionStatusActive,
		},
	}
	mux := newAdminMux(subs, "admin-key")

	body := `{"operator": "maria", "plan": "professional", "duration_days": 15, "reason": "cortesia"}`
	req := httptest.NewRequest("POST", "/api/admin/subscriptions/"+uuid.NewString()+"/adjust", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body: %s", rec.Code, rec.Body.String())
	}
	if subs.lastAdjust.Actor != "admin-key:maria" {
		t.Errorf("audit actor = %q, want %q", subs.lastAdjust.Actor, "admin-key:maria")
	}

	var resp struct {
		Plan string `json:"plan"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if resp.Plan != "professional" {
		t.Errorf("plan = %q, want professional", resp.Plan)
	}
}

func TestHandleAdjustSubscriptionInvalidUserID(t *testing.T) {
	mux := newAdminMux(&stubSubscriptions{}, "admin-key")

	req := httptest.NewRequest("POST", "/api/admin/subscriptions/not-a-uuid/adjust", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}
