// Package fixedpoint implements exact decimal arithmetic on unsigned 256-bit
// integers scaled by 10^18.
//
// Every operation floors toward zero. There is no floating point anywhere in
// this package: identical inputs produce bit-identical outputs on every
// platform. Wide products are rescaled through a 512-bit intermediate, so
// a*b/SCALE never silently wraps.
//
// Overflow past 256 bits, unsigned underflow and division by zero are
// programming errors and panic. Callers guard the denominators they divide by.
package fixedpoint

import (
	"errors"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// Decimals is the number of decimal places carried by a FixedPoint.
const Decimals = 18

// ScaleRaw is 10^18, the raw representation of 1.0.
const ScaleRaw uint64 = 1_000_000_000_000_000_000

var (
	// ErrNegative is returned when converting a negative decimal.
	ErrNegative = errors.New("fixedpoint: value must not be negative")

	// ErrOverflow is returned (or panicked) when a value needs more than 256 bits.
	ErrOverflow = errors.New("fixedpoint: value exceeds 256 bits")

	// ErrLnZero is returned by Ln for a zero argument.
	ErrLnZero = errors.New("fixedpoint: ln of zero is undefined")

	errUnderflow = errors.New("fixedpoint: subtraction underflow")
	errDivByZero = errors.New("fixedpoint: division by zero")
)

var scale = uint256.NewInt(ScaleRaw)

// FixedPoint is a non-negative real value stored as value × 10^18.
// The zero value is 0. FixedPoint is a value type; operations never mutate
// their receiver.
type FixedPoint struct {
	v uint256.Int
}

var (
	// Zero is 0.0.
	Zero = FixedPoint{}

	// One is 1.0.
	One = FromRaw(ScaleRaw)
)

// FromUint64 returns the whole number n.
func FromUint64(n uint64) FixedPoint {
	var z FixedPoint
	z.v.Mul(uint256.NewInt(n), scale)
	return z
}

// FromRaw wraps an already-scaled raw value (1.0 == 10^18).
func FromRaw(raw uint64) FixedPoint {
	var z FixedPoint
	z.v.SetUint64(raw)
	return z
}

// FromRawString parses a base-10 raw (already scaled) integer.
func FromRawString(s string) (FixedPoint, error) {
	u, err := uint256.FromDecimal(s)
	if err != nil {
		return Zero, err
	}
	return FixedPoint{v: *u}, nil
}

// Parse parses a human-readable decimal such as "100.25". Digits beyond the
// 18th decimal place are floored away.
func Parse(s string) (FixedPoint, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Zero, err
	}
	return FromDecimal(d)
}

// MustParse is like Parse but panics on error. Intended for constants and tests.
func MustParse(s string) FixedPoint {
	f, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return f
}

// FromDecimal converts a shopspring decimal into a FixedPoint.
func FromDecimal(d decimal.Decimal) (FixedPoint, error) {
	if d.IsNegative() {
		return Zero, ErrNegative
	}
	u, overflow := uint256.FromBig(d.Shift(Decimals).BigInt())
	if overflow {
		return Zero, ErrOverflow
	}
	return FixedPoint{v: *u}, nil
}

// Decimal returns the exact decimal value.
func (a FixedPoint) Decimal() decimal.Decimal {
	return decimal.NewFromBigInt(a.v.ToBig(), -Decimals)
}

// String returns the human-readable decimal value, e.g. "2.5".
func (a FixedPoint) String() string {
	return a.Decimal().String()
}

// RawString returns the scaled integer in base 10.
func (a FixedPoint) RawString() string {
	return a.v.Dec()
}

// Raw returns a copy of the underlying scaled integer.
func (a FixedPoint) Raw() *uint256.Int {
	return new(uint256.Int).Set(&a.v)
}

// MarshalJSON encodes the value as a quoted decimal string.
func (a FixedPoint) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

// UnmarshalJSON accepts a quoted or bare decimal.
func (a *FixedPoint) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*a = Zero
		return nil
	}
	f, err := Parse(s)
	if err != nil {
		return err
	}
	*a = f
	return nil
}

// --- Arithmetic ---

// Add returns a + b.
func (a FixedPoint) Add(b FixedPoint) FixedPoint {
	var z FixedPoint
	if _, overflow := z.v.AddOverflow(&a.v, &b.v); overflow {
		panic(ErrOverflow)
	}
	return z
}

// Sub returns a - b. It panics if b > a.
func (a FixedPoint) Sub(b FixedPoint) FixedPoint {
	var z FixedPoint
	if _, underflow := z.v.SubOverflow(&a.v, &b.v); underflow {
		panic(errUnderflow)
	}
	return z
}

// SubFloor returns max(a - b, 0).
func (a FixedPoint) SubFloor(b FixedPoint) FixedPoint {
	if a.Lte(b) {
		return Zero
	}
	return a.Sub(b)
}

// Mul returns floor(a*b / SCALE).
func (a FixedPoint) Mul(b FixedPoint) FixedPoint {
	var z FixedPoint
	if _, overflow := z.v.MulDivOverflow(&a.v, &b.v, scale); overflow {
		panic(ErrOverflow)
	}
	return z
}

// Div returns floor(a*SCALE / b). It panics if b is zero.
func (a FixedPoint) Div(b FixedPoint) FixedPoint {
	if b.IsZero() {
		panic(errDivByZero)
	}
	var z FixedPoint
	if _, overflow := z.v.MulDivOverflow(&a.v, scale, &b.v); overflow {
		panic(ErrOverflow)
	}
	return z
}

// MulInt returns a * n without rescaling.
func (a FixedPoint) MulInt(n uint64) FixedPoint {
	var z FixedPoint
	if _, overflow := z.v.MulOverflow(&a.v, uint256.NewInt(n)); overflow {
		panic(ErrOverflow)
	}
	return z
}

// DivInt returns floor(a / n) without rescaling.
func (a FixedPoint) DivInt(n uint64) FixedPoint {
	if n == 0 {
		panic(errDivByZero)
	}
	var z FixedPoint
	z.v.Div(&a.v, uint256.NewInt(n))
	return z
}

// --- Comparison ---

// Cmp returns -1, 0 or +1.
func (a FixedPoint) Cmp(b FixedPoint) int { return a.v.Cmp(&b.v) }

func (a FixedPoint) Eq(b FixedPoint) bool  { return a.v.Eq(&b.v) }
func (a FixedPoint) Lt(b FixedPoint) bool  { return a.v.Lt(&b.v) }
func (a FixedPoint) Gt(b FixedPoint) bool  { return a.v.Gt(&b.v) }
func (a FixedPoint) Lte(b FixedPoint) bool { return !a.v.Gt(&b.v) }
func (a FixedPoint) Gte(b FixedPoint) bool { return !a.v.Lt(&b.v) }
func (a FixedPoint) IsZero() bool          { return a.v.IsZero() }

// Max returns the larger of a and b.
func Max(a, b FixedPoint) FixedPoint {
	if a.Gt(b) {
		return a
	}
	return b
}

// Min returns the smaller of a and b.
func Min(a, b FixedPoint) FixedPoint {
	if a.Lt(b) {
		return a
	}
	return b
}
