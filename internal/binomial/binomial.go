// Package binomial prices a single European call or put on a
// Cox-Ross-Rubinstein recombining tree.
//
// Everything is computed in fixedpoint; the tree is deterministic for a given
// set of inputs and never returns an error. Degenerate markets (zero
// volatility, a collapsed up factor, zero days) take closed-form branches: a
// collapsed tree pays intrinsic value discounted over every step.
package binomial

import (
	"github.com/atmx/options-engine/internal/fixedpoint"
	"github.com/atmx/options-engine/internal/model"
)

const (
	// ShortSteps is the tree depth for expiries of 30 days or fewer.
	ShortSteps = 30

	// LongSteps is the tree depth for longer expiries.
	LongSteps = 50

	// DaysPerYear annualizes day counts.
	DaysPerYear = 365
)

// Inputs describes one option to price. Rate and Volatility are annualized
// (0.05 == 5%).
type Inputs struct {
	Spot       fixedpoint.FixedPoint
	Strike     fixedpoint.FixedPoint
	Rate       fixedpoint.FixedPoint
	Volatility fixedpoint.FixedPoint
	Days       uint32
	Type       model.OptionType
}

// Steps returns the tree depth used for an option with the given days to expiry.
func Steps(days uint32) uint64 {
	if days <= 30 {
		return ShortSteps
	}
	return LongSteps
}

// Intrinsic returns max(S-K, 0) for a call or max(K-S, 0) for a put.
func Intrinsic(t model.OptionType, spot, strike fixedpoint.FixedPoint) fixedpoint.FixedPoint {
	if t == model.Call {
		return spot.SubFloor(strike)
	}
	return strike.SubFloor(spot)
}

// Price returns the fair value of one unit of the option.
func Price(in Inputs) fixedpoint.FixedPoint {
	return PriceWithSteps(in, Steps(in.Days))
}

// PriceWithSteps prices the option on a tree of the given depth. Greeks use it
// to keep every bumped evaluation on the same tree as the base price. A depth
// of zero selects Steps(in.Days).
func PriceWithSteps(in Inputs, steps uint64) fixedpoint.FixedPoint {
	if in.Days == 0 {
		return Intrinsic(in.Type, in.Spot, in.Strike)
	}
	if steps == 0 {
		steps = Steps(in.Days)
	}

	dt := fixedpoint.FromUint64(uint64(in.Days)).DivInt(DaysPerYear).DivInt(steps)
	up := fixedpoint.Exp(in.Volatility.Mul(fixedpoint.Sqrt(dt)))
	growth := fixedpoint.Exp(in.Rate.Mul(dt))
	discount := fixedpoint.One.Div(growth)

	if in.Volatility.IsZero() || up.Eq(fixedpoint.One) {
		return Intrinsic(in.Type, in.Spot, in.Strike).Mul(fixedpoint.Pow(discount, steps))
	}

	down := fixedpoint.One.Div(up)
	p := riskNeutral(growth, up, down)
	q := fixedpoint.One.Sub(p)

	values := leaves(in, steps, up, down)
	for n := steps; n > 0; n-- {
		for j := uint64(0); j < n; j++ {
			values[j] = discount.Mul(p.Mul(values[j+1]).Add(q.Mul(values[j])))
		}
	}
	return values[0]
}

// riskNeutral returns (growth-d)/(u-d) clamped to [0, 1].
func riskNeutral(growth, up, down fixedpoint.FixedPoint) fixedpoint.FixedPoint {
	if growth.Lte(down) {
		return fixedpoint.Zero
	}
	p := growth.Sub(down).Div(up.Sub(down))
	return fixedpoint.Min(p, fixedpoint.One)
}

// leaves returns the payoff at each terminal node, lowest price first.
func leaves(in Inputs, steps uint64, up, down fixedpoint.FixedPoint) []fixedpoint.FixedPoint {
	ratio := up.Div(down)
	price := in.Spot.Mul(fixedpoint.Pow(down, steps))

	values := make([]fixedpoint.FixedPoint, steps+1)
	for j := range values {
		values[j] = Intrinsic(in.Type, price, in.Strike)
		price = price.Mul(ratio)
	}
	return values
}
