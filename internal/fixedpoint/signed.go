package fixedpoint

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Signed is a FixedPoint magnitude with a sign. A zero magnitude is always
// non-negative; construct values with NewSigned to keep that invariant.
type Signed struct {
	Negative  bool
	Magnitude FixedPoint
}

// NewSigned builds a normalized Signed value.
func NewSigned(negative bool, magnitude FixedPoint) Signed {
	return Signed{Negative: negative && !magnitude.IsZero(), Magnitude: magnitude}
}

// Positive lifts a FixedPoint into Signed.
func Positive(magnitude FixedPoint) Signed {
	return Signed{Magnitude: magnitude}
}

// Diff returns a - b as a Signed value.
func Diff(a, b FixedPoint) Signed {
	if a.Gte(b) {
		return Positive(a.Sub(b))
	}
	return NewSigned(true, b.Sub(a))
}

// ParseSigned parses a human-readable decimal such as "-0.25".
func ParseSigned(s string) (Signed, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Signed{}, err
	}
	m, err := FromDecimal(d.Abs())
	if err != nil {
		return Signed{}, err
	}
	return NewSigned(d.IsNegative(), m), nil
}

// Neg returns -s.
func (s Signed) Neg() Signed {
	return NewSigned(!s.Negative, s.Magnitude)
}

// Add returns s + o. When signs differ the smaller magnitude is subtracted
// from the larger and the result takes the larger's sign.
func (s Signed) Add(o Signed) Signed {
	if s.Negative == o.Negative {
		return NewSigned(s.Negative, s.Magnitude.Add(o.Magnitude))
	}
	if s.Magnitude.Gte(o.Magnitude) {
		return NewSigned(s.Negative, s.Magnitude.Sub(o.Magnitude))
	}
	return NewSigned(o.Negative, o.Magnitude.Sub(s.Magnitude))
}

// Sub returns s - o.
func (s Signed) Sub(o Signed) Signed {
	return s.Add(o.Neg())
}

// Mul returns floor(|s*o| / SCALE) with the XOR of the operand signs.
func (s Signed) Mul(o Signed) Signed {
	return NewSigned(s.Negative != o.Negative, s.Magnitude.Mul(o.Magnitude))
}

// Div returns floor(|s|*SCALE / |o|) with the XOR of the operand signs.
func (s Signed) Div(o Signed) Signed {
	return NewSigned(s.Negative != o.Negative, s.Magnitude.Div(o.Magnitude))
}

// MulFixed scales s by a non-negative FixedPoint.
func (s Signed) MulFixed(f FixedPoint) Signed {
	return NewSigned(s.Negative, s.Magnitude.Mul(f))
}

// DivFixed divides s by a non-negative FixedPoint.
func (s Signed) DivFixed(f FixedPoint) Signed {
	return NewSigned(s.Negative, s.Magnitude.Div(f))
}

// MulInt multiplies the magnitude by n without rescaling.
func (s Signed) MulInt(n uint64) Signed {
	return NewSigned(s.Negative, s.Magnitude.MulInt(n))
}

// DivInt divides the magnitude by n without rescaling.
func (s Signed) DivInt(n uint64) Signed {
	return NewSigned(s.Negative, s.Magnitude.DivInt(n))
}

func (s Signed) IsZero() bool { return s.Magnitude.IsZero() }

// Cmp compares two signed values, returning -1, 0 or +1.
func (s Signed) Cmp(o Signed) int {
	switch {
	case s.Negative && !o.Negative:
		return -1
	case !s.Negative && o.Negative:
		return 1
	case s.Negative:
		return o.Magnitude.Cmp(s.Magnitude)
	default:
		return s.Magnitude.Cmp(o.Magnitude)
	}
}

// Decimal returns the exact signed decimal value.
func (s Signed) Decimal() decimal.Decimal {
	d := s.Magnitude.Decimal()
	if s.Negative {
		return d.Neg()
	}
	return d
}

func (s Signed) String() string {
	return s.Decimal().String()
}

// MarshalJSON encodes the value as a quoted signed decimal string.
func (s Signed) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON accepts a quoted or bare signed decimal.
func (s *Signed) UnmarshalJSON(data []byte) error {
	str := strings.Trim(string(data), `"`)
	if str == "" || str == "null" {
		*s = Signed{}
		return nil
	}
	v, err := ParseSigned(str)
	if err != nil {
		return err
	}
	*s = v
	return nil
}
