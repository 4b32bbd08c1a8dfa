// Package model defines the value types shared across the options engine.
// All prices, rates, volatilities and amounts are fixedpoint values, never
// float64.
package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/atmx/options-engine/internal/fixedpoint"
)

var (
	// ErrEmptyPosition is returned when a position has no legs.
	ErrEmptyPosition = errors.New("model: position must have at least one leg")

	// ErrZeroAmount is returned when a leg's contract amount is zero.
	ErrZeroAmount = errors.New("model: leg amount must be non-zero")

	// ErrInvalidOptionType is returned for an unknown option type label.
	ErrInvalidOptionType = errors.New("model: option type must be CALL or PUT")

	// ErrInvalidSide is returned for an unknown side label.
	ErrInvalidSide = errors.New("model: side must be LONG or SHORT")
)

// ContractMultiplier is the number of underlying units per option contract.
const ContractMultiplier = 100

// SecondsPerDay converts expiration deltas into whole days.
const SecondsPerDay = 86400

// OptionType is Call or Put.
type OptionType int

const (
	Call OptionType = iota
	Put
)

func (t OptionType) String() string {
	switch t {
	case Call:
		return "CALL"
	case Put:
		return "PUT"
	default:
		return fmt.Sprintf("OptionType(%d)", int(t))
	}
}

// ParseOptionType accepts CALL/PUT (and the single-letter C/P forms).
func ParseOptionType(s string) (OptionType, error) {
	switch s {
	case "CALL", "call", "C":
		return Call, nil
	case "PUT", "put", "P":
		return Put, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidOptionType, s)
	}
}

func (t OptionType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *OptionType) UnmarshalText(b []byte) error {
	v, err := ParseOptionType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Side is Long or Short.
type Side int

const (
	Long Side = iota
	Short
)

func (s Side) String() string {
	switch s {
	case Long:
		return "LONG"
	case Short:
		return "SHORT"
	default:
		return fmt.Sprintf("Side(%d)", int(s))
	}
}

// ParseSide accepts LONG/SHORT (and BUY/SELL).
func ParseSide(s string) (Side, error) {
	switch s {
	case "LONG", "long", "BUY", "buy":
		return Long, nil
	case "SHORT", "short", "SELL", "sell":
		return Short, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidSide, s)
	}
}

func (s Side) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Side) UnmarshalText(b []byte) error {
	v, err := ParseSide(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// PositionLeg is one call/put, long/short component of a position.
// It is immutable once constructed; use NewPositionLeg.
type PositionLeg struct {
	optionType OptionType
	side       Side
	amount     fixedpoint.FixedPoint
	strike     fixedpoint.FixedPoint
	expiration time.Time
}

// NewPositionLeg validates and builds a leg. amount is in contracts.
func NewPositionLeg(optionType OptionType, side Side, amount, strike fixedpoint.FixedPoint, expiration time.Time) (PositionLeg, error) {
	if optionType != Call && optionType != Put {
		return PositionLeg{}, ErrInvalidOptionType
	}
	if side != Long && side != Short {
		return PositionLeg{}, ErrInvalidSide
	}
	if amount.IsZero() {
		return PositionLeg{}, ErrZeroAmount
	}
	return PositionLeg{
		optionType: optionType,
		side:       side,
		amount:     amount,
		strike:     strike,
		expiration: expiration.UTC(),
	}, nil
}

func (l PositionLeg) OptionType() OptionType        { return l.optionType }
func (l PositionLeg) Side() Side                    { return l.side }
func (l PositionLeg) Amount() fixedpoint.FixedPoint { return l.amount }
func (l PositionLeg) Strike() fixedpoint.FixedPoint { return l.strike }
func (l PositionLeg) Expiration() time.Time         { return l.expiration }
func (l PositionLeg) IsCall() bool                  { return l.optionType == Call }
func (l PositionLeg) IsShort() bool                 { return l.side == Short }

// DaysToExpiry returns the whole days between now and the leg's expiration,
// or 0 once it has expired.
func (l PositionLeg) DaysToExpiry(now time.Time) uint32 {
	return DaysToExpiry(l.expiration, now)
}

// DaysToExpiry returns floor((expiration - now) / 86400s), or 0 if expiration
// is not in the future.
func DaysToExpiry(expiration, now time.Time) uint32 {
	secs := expiration.Unix() - now.Unix()
	if secs <= 0 {
		return 0
	}
	return uint32(secs / SecondsPerDay)
}

// Position is an ordered set of legs on one underlying asset.
type Position struct {
	asset string
	legs  []PositionLeg
}

// NewPosition builds a position. A position with zero legs is invalid.
func NewPosition(asset string, legs ...PositionLeg) (Position, error) {
	if len(legs) == 0 {
		return Position{}, ErrEmptyPosition
	}
	cp := make([]PositionLeg, len(legs))
	copy(cp, legs)
	return Position{asset: asset, legs: cp}, nil
}

func (p Position) Asset() string { return p.asset }
func (p Position) Len() int      { return len(p.legs) }

// Legs returns a copy of the legs in order.
func (p Position) Legs() []PositionLeg {
	cp := make([]PositionLeg, len(p.legs))
	copy(cp, p.legs)
	return cp
}

// Quote is the result of pricing a position at one market snapshot.
// NetDebit sums long premiums, NetCredit sums short premiums; mixed
// positions may carry both.
type Quote struct {
	NetDebit          fixedpoint.FixedPoint `json:"net_debit"`
	NetCredit         fixedpoint.FixedPoint `json:"net_credit"`
	InitialMargin     fixedpoint.FixedPoint `json:"initial_margin"`
	MaintenanceMargin fixedpoint.FixedPoint `json:"maintenance_margin"`
	Timestamp         time.Time             `json:"timestamp"`
}

// Greeks holds signed finite-difference sensitivities. Vega and Rho are per
// 1.0 of volatility/rate; Theta is annualized.
type Greeks struct {
	Delta fixedpoint.Signed `json:"delta"`
	Gamma fixedpoint.Signed `json:"gamma"`
	Vega  fixedpoint.Signed `json:"vega"`
	Theta fixedpoint.Signed `json:"theta"`
	Rho   fixedpoint.Signed `json:"rho"`
}

// Add returns the component-wise sum.
func (g Greeks) Add(o Greeks) Greeks {
	return Greeks{
		Delta: g.Delta.Add(o.Delta),
		Gamma: g.Gamma.Add(o.Gamma),
		Vega:  g.Vega.Add(o.Vega),
		Theta: g.Theta.Add(o.Theta),
		Rho:   g.Rho.Add(o.Rho),
	}
}

// Scale multiplies every component by a non-negative factor.
func (g Greeks) Scale(f fixedpoint.FixedPoint) Greeks {
	return Greeks{
		Delta: g.Delta.MulFixed(f),
		Gamma: g.Gamma.MulFixed(f),
		Vega:  g.Vega.MulFixed(f),
		Theta: g.Theta.MulFixed(f),
		Rho:   g.Rho.MulFixed(f),
	}
}

// Neg flips the sign of every component.
func (g Greeks) Neg() Greeks {
	return Greeks{
		Delta: g.Delta.Neg(),
		Gamma: g.Gamma.Neg(),
		Vega:  g.Vega.Neg(),
		Theta: g.Theta.Neg(),
		Rho:   g.Rho.Neg(),
	}
}

// --- Service-side records ---

// LegRecord is the serializable form of a PositionLeg.
type LegRecord struct {
	Ticker     string                `json:"ticker,omitempty"`
	OptionType OptionType            `json:"option_type"`
	Side       Side                  `json:"side"`
	Amount     fixedpoint.FixedPoint `json:"amount"`
	Strike     fixedpoint.FixedPoint `json:"strike"`
	Expiration time.Time             `json:"expiration"`
}

// Record returns the serializable form of the leg.
func (l PositionLeg) Record() LegRecord {
	return LegRecord{
		OptionType: l.optionType,
		Side:       l.side,
		Amount:     l.amount,
		Strike:     l.strike,
		Expiration: l.expiration,
	}
}

// Leg validates the record and rebuilds the immutable leg.
func (r LegRecord) Leg() (PositionLeg, error) {
	return NewPositionLeg(r.OptionType, r.Side, r.Amount, r.Strike, r.Expiration)
}

// QuoteRecord is a priced quote kept by the service for later retrieval.
// Once created, these are never modified.
type QuoteRecord struct {
	ID           string                `json:"id" db:"id"`
	Asset        string                `json:"asset" db:"asset"`
	Legs         []LegRecord           `json:"legs" db:"legs"`
	Spot         fixedpoint.FixedPoint `json:"spot" db:"spot"`
	RiskFreeRate fixedpoint.FixedPoint `json:"risk_free_rate" db:"risk_free_rate"`
	Volatility   fixedpoint.FixedPoint `json:"volatility" db:"volatility"`
	Quote        Quote                 `json:"quote"`
	Greeks       Greeks                `json:"greeks"`
}

// PricePoint is one observation of an asset's price from the market-data feed.
type PricePoint struct {
	Asset     string                `json:"asset" db:"asset"`
	Price     fixedpoint.FixedPoint `json:"price" db:"price"`
	Timestamp time.Time             `json:"timestamp" db:"timestamp"`
}
