// Package curve prices trades on the exponential bonding curve
// price(s) = base * e^(k*s).
//
// The cost of moving supply from s to s+d is the integral of the price,
// (base/k) * (e^(k(s+d)) - e^(ks)). It is evaluated as Integral(s+d) -
// Integral(s), where Integral is a deterministic function of supply alone, so
// consecutive purchases add up exactly and a sell of d refunds exactly what the
// matching buy cost.
package curve

import (
	"errors"
	"fmt"

	"bondingCurve/internal/fixedpoint"
)

var (
	// ErrInvalidAmount is returned for sells larger than the current supply.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidParams is returned when curve parameters cannot price a pool.
	ErrInvalidParams = errors.New("invalid curve parameters")
)

// Params are the immutable curve coefficients of a pool.
type Params struct {
	BasePrice fixedpoint.Value `json:"base_price"`
	Steepness fixedpoint.Value `json:"steepness"`
}

// Validate checks that the curve can price every supply up to maxSupply
// without leaving the domain of fixedpoint.Exp.
func (p Params) Validate(maxSupply fixedpoint.Value) error {
	if p.BasePrice.IsZero() {
		return fmt.Errorf("%w: base price must be positive", ErrInvalidParams)
	}
	if p.Steepness.IsZero() {
		return fmt.Errorf("%w: steepness must be positive", ErrInvalidParams)
	}
	if maxSupply.IsZero() {
		return fmt.Errorf("%w: max supply must be positive", ErrInvalidParams)
	}
	x, err := fixedpoint.Mul(p.Steepness, maxSupply)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	if x.GreaterThan(fixedpoint.MaxExponent) {
		return fmt.Errorf("%w: steepness * max supply = %s exceeds %s", ErrInvalidParams, x, fixedpoint.MaxExponent)
	}
	return nil
}

// Integral returns the reserve backing supply s: base * (e^(k*s) - 1) / k.
// The division by k is done last.
func Integral(p Params, s fixedpoint.Value) (fixedpoint.Value, error) {
	if p.Steepness.IsZero() {
		return fixedpoint.Value{}, fmt.Errorf("%w: steepness must be positive", ErrInvalidParams)
	}
	x, err := fixedpoint.Mul(p.Steepness, s)
	if err != nil {
		return fixedpoint.Value{}, err
	}
	e, err := fixedpoint.Exp(x)
	if err != nil {
		return fixedpoint.Value{}, err
	}
	growth, err := fixedpoint.Sub(e, fixedpoint.One())
	if err != nil {
		return fixedpoint.Value{}, err
	}
	scaled, err := fixedpoint.Mul(p.BasePrice, growth)
	if err != nil {
		return fixedpoint.Value{}, err
	}
	return fixedpoint.Div(scaled, p.Steepness)
}

// CostToBuy returns the base currency needed to move supply from s to s+d.
func CostToBuy(p Params, s, d fixedpoint.Value) (fixedpoint.Value, error) {
	if d.IsZero() {
		return fixedpoint.Zero(), nil
	}
	end, err := fixedpoint.Add(s, d)
	if err != nil {
		return fixedpoint.Value{}, err
	}
	after, err := Integral(p, end)
	if err != nil {
		return fixedpoint.Value{}, err
	}
	before, err := Integral(p, s)
	if err != nil {
		return fixedpoint.Value{}, err
	}
	return fixedpoint.Sub(after, before)
}

// RefundForSell returns the base currency released by selling d tokens at
// supply s. It equals CostToBuy(s-d, d).
func RefundForSell(p Params, s, d fixedpoint.Value) (fixedpoint.Value, error) {
	if d.GreaterThan(s) {
		return fixedpoint.Value{}, fmt.Errorf("%w: sell %s exceeds supply %s", ErrInvalidAmount, d, s)
	}
	start, err := fixedpoint.Sub(s, d)
	if err != nil {
		return fixedpoint.Value{}, err
	}
	return CostToBuy(p, start, d)
}

// SpotPrice returns the instantaneous price base * e^(k*s).
func SpotPrice(p Params, s fixedpoint.Value) (fixedpoint.Value, error) {
	x, err := fixedpoint.Mul(p.Steepness, s)
	if err != nil {
		return fixedpoint.Value{}, err
	}
	e, err := fixedpoint.Exp(x)
	if err != nil {
		return fixedpoint.Value{}, err
	}
	return fixedpoint.Mul(p.BasePrice, e)
}
