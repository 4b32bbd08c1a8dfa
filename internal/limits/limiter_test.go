package limits

import (
	"errors"
	"testing"
	"time"

	"github.com/atmx/options-engine/internal/fixedpoint"
	"github.com/atmx/options-engine/internal/model"
)

func fp(s string) fixedpoint.FixedPoint {
	return fixedpoint.MustParse(s)
}

var (
	aug15 = time.Date(2025, 8, 15, 8, 0, 0, 0, time.UTC)
	sep19 = time.Date(2025, 9, 19, 8, 0, 0, 0, time.UTC)
)

func leg(t *testing.T, side model.Side, amount string, expiry time.Time) model.PositionLeg {
	t.Helper()
	l, err := model.NewPositionLeg(model.Call, side, fp(amount), fp("2500"), expiry)
	if err != nil {
		t.Fatal(err)
	}
	return l
}

func position(t *testing.T, legs ...model.PositionLeg) model.Position {
	t.Helper()
	p, err := model.NewPosition("ETH", legs...)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestCheck_WithinLimits(t *testing.T) {
	limiter := NewPositionLimiter(4, fp("1000"), fp("5000"))

	err := limiter.Check(position(t, leg(t, model.Long, "100", aug15)))
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestCheck_TooManyLegs(t *testing.T) {
	limiter := NewPositionLimiter(2, fp("1000"), fp("5000"))

	pos := position(t,
		leg(t, model.Long, "1", aug15),
		leg(t, model.Short, "1", aug15),
		leg(t, model.Long, "1", sep19),
	)
	if err := limiter.Check(pos); !errors.Is(err, ErrTooManyLegs) {
		t.Errorf("expected ErrTooManyLegs, got %v", err)
	}
}

func TestCheck_PerLegExceeded(t *testing.T) {
	limiter := NewPositionLimiter(4, fp("1000"), fp("5000"))

	err := limiter.Check(position(t, leg(t, model.Short, "1000.5", aug15)))
	if !errors.Is(err, ErrPerLegLimitExceeded) {
		t.Errorf("expected ErrPerLegLimitExceeded, got %v", err)
	}
}

func TestCheck_PerLegAtLimit(t *testing.T) {
	limiter := NewPositionLimiter(4, fp("1000"), fp("5000"))

	if err := limiter.Check(position(t, leg(t, model.Short, "1000", aug15))); err != nil {
		t.Errorf("amount equal to the limit should pass, got %v", err)
	}
}

func TestCheck_ExpiryExceeded(t *testing.T) {
	limiter := NewPositionLimiter(8, fp("1000"), fp("2000"))

	// 800 + 800 + 500 = 2100 > 2000, all on Aug 15, long and short alike.
	pos := position(t,
		leg(t, model.Long, "800", aug15),
		leg(t, model.Short, "800", aug15),
		leg(t, model.Long, "500", aug15.Add(3*time.Hour)),
	)
	if err := limiter.Check(pos); !errors.Is(err, ErrExpiryLimitExceeded) {
		t.Errorf("expected ErrExpiryLimitExceeded, got %v", err)
	}
}

func TestCheck_OtherExpiriesIgnored(t *testing.T) {
	limiter := NewPositionLimiter(8, fp("1000"), fp("2000"))

	// Aug total = 1600, Sep total = 900; neither exceeds 2000.
	pos := position(t,
		leg(t, model.Long, "800", aug15),
		leg(t, model.Short, "800", aug15),
		leg(t, model.Long, "900", sep19),
	)
	if err := limiter.Check(pos); err != nil {
		t.Errorf("separate expiries should be checked independently, got %v", err)
	}
}

func TestNewPositionLimiter_MinimumOneLeg(t *testing.T) {
	limiter := NewPositionLimiter(0, fp("10"), fp("10"))
	if limiter.MaxLegs != 1 {
		t.Errorf("expected MaxLegs clamped to 1, got %d", limiter.MaxLegs)
	}
}
