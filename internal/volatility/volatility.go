// Package volatility estimates annualized historical volatility from a series
// of observed prices.
package volatility

import (
	"errors"
	"fmt"

	"github.com/atmx/options-engine/internal/fixedpoint"
)

var (
	// ErrInsufficientPrices is returned when fewer than two prices are given.
	ErrInsufficientPrices = errors.New("volatility: at least two prices are required")

	// ErrNonPositivePrice is returned when any price is zero.
	ErrNonPositivePrice = errors.New("volatility: prices must be positive")
)

// Historical returns sqrt(sample variance of log returns × periodsPerYear).
//
// prices are ordered oldest to newest, one per period. The sample variance is
// the population variance of the returns scaled by n/(n-1).
func Historical(prices []fixedpoint.FixedPoint, periodsPerYear uint64) (fixedpoint.FixedPoint, error) {
	if len(prices) < 2 {
		return fixedpoint.Zero, ErrInsufficientPrices
	}
	logs := make([]fixedpoint.Signed, len(prices))
	for i, p := range prices {
		if p.IsZero() {
			return fixedpoint.Zero, fmt.Errorf("%w: index %d", ErrNonPositivePrice, i)
		}
		l, err := fixedpoint.Ln(p)
		if err != nil {
			return fixedpoint.Zero, err
		}
		logs[i] = l
	}

	n := uint64(len(prices) - 1)
	var sum fixedpoint.Signed
	var sumSq fixedpoint.FixedPoint
	for i := 1; i < len(logs); i++ {
		r := logs[i].Sub(logs[i-1])
		sum = sum.Add(r)
		sumSq = sumSq.Add(r.Magnitude.Mul(r.Magnitude))
	}

	mean := sum.Magnitude.DivInt(n)
	variance := sumSq.DivInt(n).SubFloor(mean.Mul(mean))
	if n > 1 {
		variance = variance.MulInt(n).DivInt(n - 1)
	}
	return fixedpoint.Sqrt(variance.MulInt(periodsPerYear)), nil
}
