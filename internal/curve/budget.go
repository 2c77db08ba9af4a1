package curve

import (
	"github.com/holiman/uint256"

	"bondingCurve/internal/fixedpoint"
)

// TokensForBudget returns the largest token amount d <= maxDelta whose
// CostToBuy(p, s, d) does not exceed budget. Cost is non-decreasing in d, so a
// bisection over raw units converges in at most 256 steps.
func TokensForBudget(p Params, s, budget, maxDelta fixedpoint.Value) (fixedpoint.Value, error) {
	fits := func(d *uint256.Int) (bool, error) {
		cost, err := CostToBuy(p, s, fixedpoint.FromRaw(d))
		if err != nil {
			return false, err
		}
		return !cost.GreaterThan(budget), nil
	}

	hi := maxDelta.Raw()
	ok, err := fits(hi)
	if err != nil {
		return fixedpoint.Value{}, err
	}
	if ok {
		return maxDelta, nil
	}

	lo := new(uint256.Int)
	one := uint256.NewInt(1)
	mid := new(uint256.Int)
	for lo.Lt(hi) {
		// mid = lo + (hi-lo+1)/2 rounds up so the loop always shrinks.
		mid.Sub(hi, lo)
		mid.Add(mid, one)
		mid.Rsh(mid, 1)
		mid.Add(mid, lo)

		ok, err := fits(mid)
		if err != nil {
			return fixedpoint.Value{}, err
		}
		if ok {
			lo.Set(mid)
		} else {
			hi.Sub(mid, one)
		}
	}

	return fixedpoint.FromRaw(lo), nil
}
