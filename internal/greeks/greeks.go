// Package greeks estimates option sensitivities by central finite differences
// around the binomial pricer.
//
// Every bumped evaluation runs on the tree depth chosen for the base days to
// expiry, so a theta bump across the 30-day boundary does not jump between
// tree sizes.
package greeks

import (
	"github.com/atmx/options-engine/internal/binomial"
	"github.com/atmx/options-engine/internal/fixedpoint"
	"github.com/atmx/options-engine/internal/model"
)

const (
	// spotBumpRaw is the relative spot bump, 0.1%.
	spotBumpRaw uint64 = 1_000_000_000_000_000

	// volBumpRaw is the absolute volatility bump, 0.001.
	volBumpRaw uint64 = 1_000_000_000_000_000

	// rateBumpRaw is the absolute rate bump, 0.0001.
	rateBumpRaw uint64 = 100_000_000_000_000
)

// Compute returns Delta, Gamma, Vega, Theta and Rho for one unit of the option.
func Compute(in binomial.Inputs) model.Greeks {
	steps := binomial.Steps(in.Days)
	price := func(in binomial.Inputs) fixedpoint.FixedPoint {
		return binomial.PriceWithSteps(in, steps)
	}

	base := price(in)
	delta, gamma := spotGreeks(in, base, price)
	return model.Greeks{
		Delta: delta,
		Gamma: gamma,
		Vega:  bumpGreek(in, fixedpoint.FromRaw(volBumpRaw), price, setVolatility),
		Theta: theta(in, base, price),
		Rho:   bumpGreek(in, fixedpoint.FromRaw(rateBumpRaw), price, setRate),
	}
}

type pricer func(binomial.Inputs) fixedpoint.FixedPoint

func spotGreeks(in binomial.Inputs, base fixedpoint.FixedPoint, price pricer) (delta, gamma fixedpoint.Signed) {
	h := in.Spot.Mul(fixedpoint.FromRaw(spotBumpRaw))
	if h.IsZero() {
		return fixedpoint.Signed{}, fixedpoint.Signed{}
	}

	upIn, downIn := in, in
	upIn.Spot = in.Spot.Add(h)
	downIn.Spot = in.Spot.Sub(h)
	up, down := price(upIn), price(downIn)

	delta = fixedpoint.Diff(up, down).DivFixed(h.MulInt(2))

	// (up + down) - 2·base, signed. Divided by h twice: h·h underflows to
	// zero for sub-micro spots.
	curvature := fixedpoint.Diff(up.Add(down), base.MulInt(2))
	gamma = curvature.DivFixed(h).DivFixed(h)
	return delta, gamma
}

// bumpGreek returns (P(x+eps) - P(x-eps)) / 2eps with the downside bump
// clamped at zero. The denominator stays 2eps even when clamped.
func bumpGreek(in binomial.Inputs, eps fixedpoint.FixedPoint, price pricer, set func(*binomial.Inputs, bool, fixedpoint.FixedPoint)) fixedpoint.Signed {
	upIn, downIn := in, in
	set(&upIn, true, eps)
	set(&downIn, false, eps)
	return fixedpoint.Diff(price(upIn), price(downIn)).DivFixed(eps.MulInt(2))
}

func setVolatility(in *binomial.Inputs, up bool, eps fixedpoint.FixedPoint) {
	if up {
		in.Volatility = in.Volatility.Add(eps)
		return
	}
	in.Volatility = in.Volatility.SubFloor(eps)
}

func setRate(in *binomial.Inputs, up bool, eps fixedpoint.FixedPoint) {
	if up {
		in.Rate = in.Rate.Add(eps)
		return
	}
	in.Rate = in.Rate.SubFloor(eps)
}

// theta is the annualized change in value as one day passes.
func theta(in binomial.Inputs, base fixedpoint.FixedPoint, price pricer) fixedpoint.Signed {
	later := in
	later.Days = in.Days + 1
	if in.Days >= 2 {
		sooner := in
		sooner.Days = in.Days - 1
		return fixedpoint.Diff(price(sooner), price(later)).MulInt(binomial.DaysPerYear).DivInt(2)
	}
	return fixedpoint.Diff(base, price(later)).MulInt(binomial.DaysPerYear)
}
