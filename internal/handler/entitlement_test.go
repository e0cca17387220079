package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/eletrogest/eletrogest/internal/auth"
	"github.com/eletrogest/eletrogest/internal/domain"
)

// stubEntitlements returns canned answers; the handler tests only exercise
// routing, identity extraction, and response shaping.
type stubEntitlements struct {
	check    *domain.LimitCheck
	checkErr error
	consume  *domain.LimitCheck
	overview *domain.UsageOverview
}

func (s *stubEntitlements) CheckLimit(context.Context, uuid.UUID, domain.ResourceType) (*domain.LimitCheck, error) {
	return s.check, s.checkErr
}

func (s *stubEntitlements) CanCreate(ctx context.Context, userID uuid.UUID, rt domain.ResourceType) (bool, error) {
	check, err := s.CheckLimit(ctx, userID, rt)
	if err != nil {
		return false, err
	}
	return check.Allowed, nil
}

func (s *stubEntitlements) UsagePercentage(context.Context, uuid.UUID, domain.ResourceType) (int, error) {
	return 0, nil
}

func (s *stubEntitlements) Overview(context.Context, uuid.UUID) (*domain.UsageOverview, error) {
	return s.overview, nil
}

func (s *stubEntitlements) Consume(_ context.Context, _ uuid.UUID, _ domain.ResourceType, fn func(ctx context.Context) error) (*domain.LimitCheck, error) {
	if s.checkErr != nil {
		return nil, s.checkErr
	}
	return s.consume, nil
}

type stubSubscriptions struct {
	sub        *domain.Subscription
	lastAdjust domain.AdminAdjustParams
}

func (s *stubSubscriptions) GetOrCreate(context.Context, uuid.UUID) (*domain.Subscription, error) {
	return s.sub, nil
}

func (s *stubSubscriptions) GetByCustomerID(context.Context, string) (*domain.Subscription, error) {
	return s.sub, nil
}

func (s *stubSubscriptions) ApplyCheckoutCompleted(context.Context, uuid.UUID, domain.PlanType, string, string, string) error {
	return nil
}

func (s *stubSubscriptions) ApplyStatusUpdate(context.Context, string, domain.PlanType, domain.SubscriptionStatus, time.Time, time.Time, bool) error {
	return nil
}

func (s *stubSubscriptions) ApplyCancellation(context.Context, string) error { return nil }

func (s *stubSubscriptions) AdminAdjust(_ context.Context, params domain.AdminAdjustParams) (*domain.Subscription, error) {
	s.lastAdjust = params
	return s.sub, nil
}

func (s *stubSubscriptions) GrantPlan(context.Context, uuid.UUID, domain.PlanType, int) (*domain.Subscription, error) {
	return s.sub, nil
}

func (s *stubSubscriptions) ListAdjustments(context.Context, uuid.UUID) ([]domain.SubscriptionAdjustment, error) {
	return nil, nil
}

// authed stamps a user id onto every request, standing in for the auth
// middleware.
func authed(userID uuid.UUID, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(auth.WithUserID(r.Context(), userID)))
	})
}

func newEntitlementMux(ents *stubEntitlements, subs *stubSubscriptions, userID uuid.UUID) *http.ServeMux {
	h := NewEntitlementHandler(ents, subs, testLogger())
	mux := http.NewServeMux()
	h.RegisterRoutes(mux, func(next http.Handler) http.Handler {
		return authed(userID, next)
	})
	return mux
}

func TestHandleListPlans(t *testing.T) {
	mux := newEntitlementMux(&stubEntitlements{}, &stubSubscriptions{}, uuid.New())

	req := httptest.NewRequest("GET", "/api/plans", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp struct {
		Plans []struct {
			Type           string `json:"type"`
			PriceCents     int64  `json:"price_cents"`
			FormattedPrice string `json:"formatted_price"`
		} `json:"plans"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(resp.Plans) != 3 {
		t.Fatalf("got %d plans, want 3", len(resp.Plans))
	}
	if resp.Plans[0].Type != "free" {
		t.Errorf("first plan = %q, want free", resp.Plans[0].Type)
	}
	for _, p := range resp.Plans {
		want := domain.PlanCatalog[domain.PlanType(p.Type)].PriceCents
		if p.PriceCents != want {
			t.Errorf("plan %s price_cents = %d, want %d", p.Type, p.PriceCents, want)
		}
	}
}

func TestHandleCheck(t *testing.T) {
	ents := &stubEntitlements{
		check: &domain.LimitCheck{Allowed: true, Current: 3, Limit: 5},
	}
	mux := newEntitlementMux(ents, &stubSubscriptions{}, uuid.New())

	req := httptest.NewRequest("GET", "/api/entitlements/clientes", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body: %s", rec.Code, rec.Body.String())
	}

	var check domain.LimitCheck
	if err := json.Unmarshal(rec.Body.Bytes(), &check); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if !check.Allowed || check.Current != 3 || check.Limit != 5 {
		t.Errorf("unexpected check: %+v", check)
	}
}

func TestHandleCheckUnknownResourceType(t *testing.T) {
	mux := newEntitlementMux(&stubEntitlements{}, &stubSubscriptions{}, uuid.New())

	req := httptest.NewRequest("GET", "/api/entitlements/widgets", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleRecordUsageBlockedAtLimit(t *testing.T) {
	ents := &stubEntitlements{
		checkErr: domain.LimitReached("entitlement.consume", domain.ResourceClients, 5, 5),
	}
	mux := newEntitlementMux(ents, &stubSubscriptions{}, uuid.New())

	req := httptest.NewRequest("POST", "/api/usage/clientes", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusPaymentRequired {
		t.Errorf("status = %d, want 402", rec.Code)
	}

	var resp JSONError
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if resp.Error.Code != domain.ELIMIT {
		t.Errorf("code = %q, want %q", resp.Error.Code, domain.ELIMIT)
	}
}

func TestHandleGetSubscription(t *testing.T) {
	periodEnd := time.Date(2026, 4, 15, 0, 0, 0, 0, time.UTC)
	subs := &stubSubscriptions{
		sub: &domain.Subscription{
			PlanType:         domain.PlanBasic,
			Status:           domain.SubscriptionStatusActive,
			CurrentPeriodEnd: periodEnd,
		},
	}
	mux := newEntitlementMux(&stubEntitlements{}, subs, uuid.New())

	req := httptest.NewRequest("GET", "/api/subscription", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp subscriptionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if resp.Plan != domain.PlanBasic || !resp.Active {
		t.Errorf("unexpected response: %+v", resp)
	}
	if resp.CurrentPeriodStart != nil {
		t.Errorf("zero period start should be omitted, got %v", resp.CurrentPeriodStart)
	}
	if resp.CurrentPeriodEnd == nil || !resp.CurrentPeriodEnd.Equal(periodEnd) {
		t.Errorf("period end = %v, want %v", resp.CurrentPeriodEnd, periodEnd)
	}
}
