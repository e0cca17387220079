package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/eletrogest/eletrogest/internal/billing"
)

func TestHandleListPrices(t *testing.T) {
	prices := billing.PriceConfig{
		BasicMonthlyPriceID:        "price_basic_m",
		BasicYearlyPriceID:         "price_basic_y",
		ProfessionalMonthlyPriceID: "price_pro_m",
	}
	h := NewBillingHandler(nil, &stubSubscriptions{}, "https://app.example.com", prices, testLogger())
	mux := http.NewServeMux()
	h.RegisterRoutes(mux, func(next http.Handler) http.Handler {
		return authed(uuid.New(), next)
	})

	req := httptest.NewRequest("GET", "/api/billing/prices", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp struct {
		Prices []struct {
			Plan     string `json:"plan"`
			Interval string `json:"interval"`
			PriceID  string `json:"price_id"`
		} `json:"prices"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	// The unconfigured professional yearly price must not be listed.
	if len(resp.Prices) != 3 {
		t.Fatalf("got %d prices, want 3", len(resp.Prices))
	}
	if resp.Prices[0].Plan != "basic" || resp.Prices[0].Interval != "month" || resp.Prices[0].PriceID != "price_basic_m" {
		t.Errorf("unexpected first price: %+v", resp.Prices[0])
	}
}

func TestBillingNotConfigured(t *testing.T) {
	h := NewBillingHandler(nil, &stubSubscriptions{}, "https://app.example.com", billing.PriceConfig{}, testLogger())
	mux := http.NewServeMux()
	h.RegisterRoutes(mux, func(next http.Handler) http.Handler {
		return authed(uuid.New(), next)
	})

	req := httptest.NewRequest("POST", "/api/billing/checkout", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusPaymentRequired {
		t.Errorf("status = %d, want 402", rec.Code)
	}
}
