// Package margin computes collateral requirements for option positions using
// the standard broker methodology for short options.
//
// Long premium is paid up front, so long legs never require margin. Short
// legs are margined against a premium estimate of intrinsic value plus 5% of
// spot rather than the tree price.
package margin

import (
	"github.com/atmx/options-engine/internal/binomial"
	"github.com/atmx/options-engine/internal/fixedpoint"
	"github.com/atmx/options-engine/internal/model"
)

var (
	// premiumLoading is the 5% of spot added to intrinsic value.
	premiumLoading = fixedpoint.FromRaw(50_000_000_000_000_000)

	// basePct is the 20% of contract value in the primary requirement.
	basePct = fixedpoint.FromRaw(200_000_000_000_000_000)

	// minimumPct is the 10% floor applied to contract (call) or strike (put) value.
	minimumPct = fixedpoint.FromRaw(100_000_000_000_000_000)
)

// EstimatePremium returns (intrinsic + 5%·spot) · amount · 100.
func EstimatePremium(leg model.PositionLeg, spot fixedpoint.FixedPoint) fixedpoint.FixedPoint {
	perUnit := binomial.Intrinsic(leg.OptionType(), spot, leg.Strike()).Add(spot.Mul(premiumLoading))
	return contracts(perUnit, leg)
}

// Initial returns the initial margin for the position at the given spot.
//
// A single long leg needs none. A single short leg uses the larger of the
// 20% and 10% requirements. Multi-leg positions margin the short calls and
// short puts separately and take the larger side plus the other side's
// premium.
func Initial(position model.Position, spot fixedpoint.FixedPoint) fixedpoint.FixedPoint {
	legs := position.Legs()
	if len(legs) == 1 {
		if !legs[0].IsShort() {
			return fixedpoint.Zero
		}
		return shortLeg(legs[0], spot)
	}

	var callMargin, callPremium, putMargin, putPremium fixedpoint.FixedPoint
	for _, leg := range legs {
		if !leg.IsShort() {
			continue
		}
		switch leg.OptionType() {
		case model.Call:
			callMargin = callMargin.Add(shortLeg(leg, spot))
			callPremium = callPremium.Add(EstimatePremium(leg, spot))
		case model.Put:
			putMargin = putMargin.Add(shortLeg(leg, spot))
			putPremium = putPremium.Add(EstimatePremium(leg, spot))
		}
	}
	return fixedpoint.Max(callMargin.Add(putPremium), putMargin.Add(callPremium))
}

// Maintenance returns 75% of the initial margin.
func Maintenance(initial fixedpoint.FixedPoint) fixedpoint.FixedPoint {
	return initial.MulInt(3).DivInt(4)
}

// shortLeg is the requirement for one naked short option.
func shortLeg(leg model.PositionLeg, spot fixedpoint.FixedPoint) fixedpoint.FixedPoint {
	premium := EstimatePremium(leg, spot)
	contractValue := contracts(spot, leg)

	var otm, minimumBase fixedpoint.FixedPoint
	switch leg.OptionType() {
	case model.Call:
		otm = contracts(leg.Strike().SubFloor(spot), leg)
		minimumBase = contractValue
	case model.Put:
		otm = contracts(spot.SubFloor(leg.Strike()), leg)
		minimumBase = contracts(leg.Strike(), leg)
	}

	primary := fixedpoint.Max(contractValue.Mul(basePct).Add(premium).SubFloor(otm), premium)
	minimum := minimumBase.Mul(minimumPct).Add(premium)
	return fixedpoint.Max(primary, minimum)
}

// contracts scales a per-unit value to the leg's size.
func contracts(perUnit fixedpoint.FixedPoint, leg model.PositionLeg) fixedpoint.FixedPoint {
	return perUnit.MulInt(model.ContractMultiplier).Mul(leg.Amount())
}
