// Package limits enforces position size limits on option quotes.
//
// Legs that share an expiration settle against the same fixing, so a user
// quoting many strikes on one date carries correlated exposure. The limiter
// caps contracts per leg and the aggregate across every leg in an expiry
// group.
package limits

import (
	"errors"
	"fmt"

	"github.com/atmx/options-engine/internal/fixedpoint"
	"github.com/atmx/options-engine/internal/model"
)

var (
	// ErrTooManyLegs is returned when a position has more legs than allowed.
	ErrTooManyLegs = errors.New("limits: too many legs")

	// ErrPerLegLimitExceeded is returned when a single leg's amount exceeds
	// the per-leg maximum.
	ErrPerLegLimitExceeded = errors.New("limits: per-leg contract limit exceeded")

	// ErrExpiryLimitExceeded is returned when the contracts across legs
	// sharing an expiration exceed the correlated maximum.
	ErrExpiryLimitExceeded = errors.New("limits: per-expiry contract limit exceeded")
)

// PositionLimiter enforces position limits with expiry awareness.
//
// Long and short legs both count toward the expiry total: a short strangle
// and a long straddle on the same date are equally concentrated.
type PositionLimiter struct {
	// MaxLegs is the maximum number of legs in one position.
	MaxLegs int

	// MaxPerLeg is the maximum contract amount of any single leg.
	MaxPerLeg fixedpoint.FixedPoint

	// MaxPerExpiry is the maximum aggregate contract amount across all legs
	// expiring on the same UTC date.
	MaxPerExpiry fixedpoint.FixedPoint
}

// NewPositionLimiter creates a limiter with the given leg count, per-leg and
// per-expiry limits.
func NewPositionLimiter(maxLegs int, maxPerLeg, maxPerExpiry fixedpoint.FixedPoint) *PositionLimiter {
	if maxLegs < 1 {
		maxLegs = 1
	}
	return &PositionLimiter{
		MaxLegs:      maxLegs,
		MaxPerLeg:    maxPerLeg,
		MaxPerExpiry: maxPerExpiry,
	}
}

// Check validates a position against every limit.
//
// Returns nil if the position is within limits, or an error describing the
// first violation found.
func (l *PositionLimiter) Check(position model.Position) error {
	// 1. Leg count.
	if position.Len() > l.MaxLegs {
		return fmt.Errorf("%w: %d > %d", ErrTooManyLegs, position.Len(), l.MaxLegs)
	}

	// 2. Per-leg size.
	totals := make(map[string]fixedpoint.FixedPoint)
	var order []string
	for i, leg := range position.Legs() {
		if leg.Amount().Gt(l.MaxPerLeg) {
			return fmt.Errorf("%w: leg %d amount %s > %s", ErrPerLegLimitExceeded, i, leg.Amount(), l.MaxPerLeg)
		}
		key := expiryKey(leg)
		if _, ok := totals[key]; !ok {
			order = append(order, key)
		}
		totals[key] = totals[key].Add(leg.Amount())
	}

	// 3. Correlated exposure: sum amounts across legs sharing an expiry.
	for _, key := range order {
		if totals[key].Gt(l.MaxPerExpiry) {
			return fmt.Errorf("%w: %s total %s > %s", ErrExpiryLimitExceeded, key, totals[key], l.MaxPerExpiry)
		}
	}
	return nil
}

// expiryKey groups legs by the UTC calendar date of their expiration.
func expiryKey(leg model.PositionLeg) string {
	return leg.Expiration().UTC().Format("2006-01-02")
}
