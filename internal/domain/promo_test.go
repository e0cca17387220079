package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromoCodeValidate(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(24 * time.Hour)

	tests := []struct {
		name     string
		code     PromoCode
		wantCode string // empty means valid
	}{
		{
			name: "valid with no caps",
			code: PromoCode{Active: true},
		},
		{
			name: "valid under caps",
			code: PromoCode{Active: true, MaxUses: 10, CurrentUses: 9, ExpiresAt: &future},
		},
		{
			name:     "expired",
			code:     PromoCode{Active: true, ExpiresAt: &past},
			wantCode: EEXPIRED,
		},
		{
			name:     "inactive",
			code:     PromoCode{Active: false},
			wantCode: EINACTIVE,
		},
		{
			name:     "exhausted",
			code:     PromoCode{Active: true, MaxUses: 5, CurrentUses: 5},
			wantCode: EEXHAUSTED,
		},
		{
			name: "expiry takes precedence over inactive",
			code: PromoCode{Active: false, ExpiresAt: &past},
			// Expired is reported first so a retried request gets a stable answer.
			wantCode: EEXPIRED,
		},
		{
			name:     "inactive takes precedence over exhausted",
			code:     PromoCode{Active: false, MaxUses: 1, CurrentUses: 1},
			wantCode: EINACTIVE,
		},
		{
			name: "zero max uses means uncapped",
			code: PromoCode{Active: true, MaxUses: 0, CurrentUses: 100000},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.code.Validate(now)
			if tt.wantCode == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, ErrorCode(err))
		})
	}
}

func TestNormalizePromoCode(t *testing.T) {
	assert.Equal(t, "VERAO25", NormalizePromoCode("  verao25 "))
	assert.Equal(t, "ELETRO10", NormalizePromoCode("Eletro10"))
	assert.Equal(t, "", NormalizePromoCode("   "))
}
