package fixedpoint

import (
	"fmt"

	"github.com/holiman/uint256"
)

// MaxTerms is the highest Taylor term index evaluated by Exp.
const MaxTerms = 20

// MaxExponent is the largest argument Exp accepts. Beyond it the remainder of
// the 20-term series exceeds ~2e-10 relative error (x^21/21! / e^x at x=3.5),
// so a pool's steepness * max_supply must stay at or below this bound.
var MaxExponent = MustParse("3.5")

// Exp returns e^x as sum_{i=0..20} x^i/i!, evaluated in scaled-integer
// arithmetic only. The series stops early once a term truncates to zero.
func Exp(x Value) (Value, error) {
	if x.GreaterThan(MaxExponent) {
		return Value{}, fmt.Errorf("%w: exp argument %s exceeds %s", ErrDomain, x, MaxExponent)
	}
	return expSeries(x)
}

// expSeries evaluates the series without the domain guard. Each term is
// derived from the previous one as term*x / (i * 10^18) with a single
// truncation, which keeps the sum non-decreasing in x.
func expSeries(x Value) (Value, error) {
	sum := One()
	term := One()

	var prod, denom uint256.Int
	for i := uint64(1); i <= MaxTerms; i++ {
		if _, overflow := prod.MulOverflow(&term.raw, &x.raw); overflow {
			return Value{}, fmt.Errorf("%w: exp term %d for argument %s", ErrOverflow, i, x)
		}
		denom.Mul(unitInt, uint256.NewInt(i))
		term.raw.Div(&prod, &denom)
		if term.IsZero() {
			break
		}
		if _, overflow := sum.raw.AddOverflow(&sum.raw, &term.raw); overflow {
			return Value{}, fmt.Errorf("%w: exp sum for argument %s", ErrOverflow, x)
		}
	}

	return sum, nil
}
