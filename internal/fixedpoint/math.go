package fixedpoint

import "github.com/holiman/uint256"

const (
	// ln2Raw is ln(2) × 10^18, floored.
	ln2Raw uint64 = 693_147_180_559_945_309

	expTerms = 10
	lnTerms  = 18
)

// Ln2 is ln(2).
var Ln2 = FromRaw(ln2Raw)

// Sqrt returns floor(sqrt(x)) in fixed-point terms. Newton's method runs on
// x*SCALE so the root comes out already rescaled; iteration stops as soon as
// the next estimate is no smaller than the current one.
func Sqrt(x FixedPoint) FixedPoint {
	if x.IsZero() {
		return Zero
	}
	var n uint256.Int
	if _, overflow := n.MulOverflow(&x.v, scale); overflow {
		panic(ErrOverflow)
	}

	// y = ceil(n/2) without risking n+1 overflow.
	var r, y, q uint256.Int
	r.Set(&n)
	y.Rsh(&n, 1)
	if n.Uint64()&1 == 1 {
		y.AddUint64(&y, 1)
	}
	for y.Lt(&r) {
		r.Set(&y)
		q.Div(&n, &r)
		y.Add(&q, &r)
		y.Rsh(&y, 1)
	}
	return FixedPoint{v: r}
}

// Exp returns e^x from the first ten Taylor terms. There is no range
// reduction, so x must stay small (per-step compounding factors).
func Exp(x FixedPoint) FixedPoint {
	sum := One
	term := One
	for i := uint64(1); i < expTerms; i++ {
		term = term.Mul(x).DivInt(i)
		sum = sum.Add(term)
	}
	return sum
}

// Ln returns the natural logarithm of x.
//
// x is first brought into [0.5, 1.5] by halving or doubling, counting the net
// number of doublings k. ln(1+z) is then summed over 18 alternating terms and
// k·ln2 added back.
func Ln(x FixedPoint) (Signed, error) {
	if x.IsZero() {
		return Signed{}, ErrLnZero
	}

	lower := FromRaw(ScaleRaw / 2)
	upper := FromRaw(ScaleRaw + ScaleRaw/2)

	y := x
	var k int64
	for y.Gt(upper) {
		y = y.DivInt(2)
		k++
	}
	for y.Lt(lower) {
		y = y.MulInt(2)
		k--
	}

	z := Diff(y, One)
	var series Signed
	power := z
	for n := uint64(1); n <= lnTerms; n++ {
		term := power.DivInt(n)
		if n%2 == 1 {
			series = series.Add(term)
		} else {
			series = series.Sub(term)
		}
		power = power.Mul(z)
	}

	if k < 0 {
		return series.Add(NewSigned(true, Ln2.MulInt(uint64(-k)))), nil
	}
	return series.Add(Positive(Ln2.MulInt(uint64(k)))), nil
}

// Pow returns x^n by repeated squaring, rescaling after every product.
func Pow(x FixedPoint, n uint64) FixedPoint {
	result := One
	base := x
	for n > 0 {
		if n&1 == 1 {
			result = result.Mul(base)
		}
		n >>= 1
		if n > 0 {
			base = base.Mul(base)
		}
	}
	return result
}
