package metrics

import "testing"

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/api/plans", "/api/plans"},
		{"/api/admin/subscriptions/4f8b2c1a-0d3e-4b5f-8a6c-7d9e0f1a2b3c/adjust", "/api/admin/subscriptions/{id}/adjust"},
		{"/api/referral/rewards/4f8b2c1a-0d3e-4b5f-8a6c-7d9e0f1a2b3c/apply", "/api/referral/rewards/{id}/apply"},
		{"/api/admin/promo-codes/BEMVINDO30/deactivate", "/api/admin/promo-codes/{code}/deactivate"},
		{"/api/entitlements/clientes", "/api/entitlements/clientes"},
	}
	for _, tt := range tests {
		if got := normalizePath(tt.path); got != tt.want {
			t.Errorf("normalizePath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
