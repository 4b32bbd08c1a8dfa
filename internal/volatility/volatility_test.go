package volatility

import (
	"errors"
	"testing"

	"github.com/atmx/options-engine/internal/fixedpoint"
)

func prices(ss ...string) []fixedpoint.FixedPoint {
	out := make([]fixedpoint.FixedPoint, len(ss))
	for i, s := range ss {
		out[i] = fixedpoint.MustParse(s)
	}
	return out
}

func TestHistorical_Errors(t *testing.T) {
	tests := []struct {
		name   string
		prices []fixedpoint.FixedPoint
		want   error
	}{
		{"empty", nil, ErrInsufficientPrices},
		{"single", prices("100"), ErrInsufficientPrices},
		{"zero first", prices("0", "100", "101"), ErrNonPositivePrice},
		{"zero last", prices("100", "101", "0"), ErrNonPositivePrice},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Historical(tt.prices, 365)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestHistorical_GeometricSeriesIsFlat(t *testing.T) {
	vol, err := Historical(prices("100", "105", "110.25", "115.7625"), 365)
	if err != nil {
		t.Fatal(err)
	}
	if vol.Gte(fixedpoint.MustParse("0.001")) {
		t.Errorf("constant-return series vol = %s, want ≈ 0", vol)
	}
}

func TestHistorical_ConstantPrices(t *testing.T) {
	vol, err := Historical(prices("50", "50", "50"), 365)
	if err != nil {
		t.Fatal(err)
	}
	if !vol.IsZero() {
		t.Errorf("flat series vol = %s, want 0", vol)
	}
}

func TestHistorical_Alternating(t *testing.T) {
	// Returns alternate ±ln(1.1) ≈ ±0.0953; sample stdev over 4 returns is
	// 0.0953·sqrt(4/3) ≈ 0.1101, annualized by sqrt(365) ≈ 2.10.
	vol, err := Historical(prices("100", "110", "100", "110", "100"), 365)
	if err != nil {
		t.Fatal(err)
	}
	if vol.Lt(fixedpoint.MustParse("2.0")) || vol.Gt(fixedpoint.MustParse("2.2")) {
		t.Errorf("alternating series vol = %s, want ≈ 2.10", vol)
	}
}

func TestHistorical_TwoPrices(t *testing.T) {
	// A single return has zero population variance and no n/(n-1) correction.
	vol, err := Historical(prices("100", "120"), 365)
	if err != nil {
		t.Fatal(err)
	}
	if !vol.IsZero() {
		t.Errorf("two-price vol = %s, want 0", vol)
	}
}
