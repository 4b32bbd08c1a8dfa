// Package quote prices whole option positions: net premium, margin
// requirements and aggregate Greeks.
package quote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/atmx/options-engine/internal/binomial"
	"github.com/atmx/options-engine/internal/fixedpoint"
	"github.com/atmx/options-engine/internal/greeks"
	"github.com/atmx/options-engine/internal/margin"
	"github.com/atmx/options-engine/internal/model"
)

// ErrPricingFailed is returned when fixed-point arithmetic overflows or
// divides by zero while pricing a position.
var ErrPricingFailed = errors.New("quote: pricing failed")

// Market is the snapshot a position is priced against.
type Market struct {
	Spot       fixedpoint.FixedPoint
	Rate       fixedpoint.FixedPoint
	Volatility fixedpoint.FixedPoint
}

// PriceQuote prices every leg on the binomial tree and attaches the standard
// margin requirements. Long premiums sum into NetDebit and short premiums into
// NetCredit.
func PriceQuote(position model.Position, spot, rate, vol fixedpoint.FixedPoint, now time.Time) (q model.Quote, err error) {
	defer recoverPricing(&err)

	legs := position.Legs()
	if len(legs) == 0 {
		return model.Quote{}, model.ErrEmptyPosition
	}

	mkt := Market{Spot: spot, Rate: rate, Volatility: vol}
	for _, leg := range legs {
		premium := LegPremium(leg, mkt, now)
		if leg.IsShort() {
			q.NetCredit = q.NetCredit.Add(premium)
		} else {
			q.NetDebit = q.NetDebit.Add(premium)
		}
	}

	q.InitialMargin = margin.Initial(position, spot)
	q.MaintenanceMargin = margin.Maintenance(q.InitialMargin)
	q.Timestamp = now
	return q, nil
}

// LegPremium returns the binomial price of the leg times 100 times amount.
func LegPremium(leg model.PositionLeg, mkt Market, now time.Time) fixedpoint.FixedPoint {
	price := binomial.Price(legInputs(leg, mkt, now))
	return price.MulInt(model.ContractMultiplier).Mul(leg.Amount())
}

// PositionGreeks sums per-leg Greeks scaled by amount·100. Short legs
// contribute with the opposite sign. Legs are evaluated concurrently.
func PositionGreeks(ctx context.Context, position model.Position, spot, rate, vol fixedpoint.FixedPoint, now time.Time) (model.Greeks, error) {
	legs := position.Legs()
	if len(legs) == 0 {
		return model.Greeks{}, model.ErrEmptyPosition
	}

	mkt := Market{Spot: spot, Rate: rate, Volatility: vol}
	perLeg := make([]model.Greeks, len(legs))

	g, ctx := errgroup.WithContext(ctx)
	for i, leg := range legs {
		i, leg := i, leg
		g.Go(func() (err error) {
			defer recoverPricing(&err)
			if err := ctx.Err(); err != nil {
				return err
			}
			lg := greeks.Compute(legInputs(leg, mkt, now)).
				Scale(leg.Amount().MulInt(model.ContractMultiplier))
			if leg.IsShort() {
				lg = lg.Neg()
			}
			perLeg[i] = lg
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return model.Greeks{}, err
	}

	var total model.Greeks
	for _, lg := range perLeg {
		total = total.Add(lg)
	}
	return total, nil
}

// recoverPricing turns a fixed-point panic into ErrPricingFailed. Panics in
// errgroup goroutines would otherwise escape any HTTP recoverer.
func recoverPricing(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%w: %v", ErrPricingFailed, r)
	}
}

func legInputs(leg model.PositionLeg, mkt Market, now time.Time) binomial.Inputs {
	return binomial.Inputs{
		Spot:       mkt.Spot,
		Strike:     leg.Strike(),
		Rate:       mkt.Rate,
		Volatility: mkt.Volatility,
		Days:       leg.DaysToExpiry(now),
		Type:       leg.OptionType(),
	}
}
