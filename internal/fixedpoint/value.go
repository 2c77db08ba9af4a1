// Package fixedpoint implements unsigned 18-decimal fixed-point arithmetic on
// 256-bit integers. Every operation reports overflow instead of wrapping.
package fixedpoint

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// Decimals is the number of fractional decimal digits carried by a Value.
const Decimals = 18

var (
	// ErrOverflow is returned when a result or intermediate product does not fit in 256 bits,
	// or when a subtraction would go below zero.
	ErrOverflow = errors.New("fixed-point overflow")

	// ErrDomain is returned when an argument is outside the supported input range.
	ErrDomain = errors.New("fixed-point domain error")

	// ErrDivisionByZero is returned by Div when the divisor is zero.
	ErrDivisionByZero = errors.New("fixed-point division by zero")
)

var unitInt = uint256.NewInt(1_000_000_000_000_000_000)

// Value is a non-negative number scaled by 10^18. The zero value is 0.
type Value struct {
	raw uint256.Int
}

// Zero returns 0.
func Zero() Value {
	return Value{}
}

// One returns 1.0.
func One() Value {
	return Value{raw: *unitInt}
}

// FromUint64 returns the whole number n.
func FromUint64(n uint64) Value {
	var v Value
	v.raw.Mul(uint256.NewInt(n), unitInt)
	return v
}

// FromRaw wraps an already scaled integer.
func FromRaw(raw *uint256.Int) Value {
	var v Value
	if raw != nil {
		v.raw.Set(raw)
	}
	return v
}

// FromRawUint64 wraps an already scaled integer given as uint64.
func FromRawUint64(raw uint64) Value {
	var v Value
	v.raw.SetUint64(raw)
	return v
}

// FromBig wraps an already scaled big integer.
func FromBig(raw *big.Int) (Value, error) {
	if raw == nil {
		return Value{}, nil
	}
	if raw.Sign() < 0 {
		return Value{}, fmt.Errorf("%w: negative value %s", ErrDomain, raw)
	}
	u, overflow := uint256.FromBig(raw)
	if overflow {
		return Value{}, fmt.Errorf("%w: %s does not fit in 256 bits", ErrOverflow, raw)
	}
	return FromRaw(u), nil
}

// Parse reads a non-negative decimal string such as "30000" or "0.000001".
func Parse(s string) (Value, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Value{}, fmt.Errorf("parse %q: %w", s, err)
	}
	return FromDecimal(d)
}

// MustParse is Parse for constants; it panics on malformed input.
func MustParse(s string) Value {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// FromDecimal converts a decimal with at most 18 fractional digits.
func FromDecimal(d decimal.Decimal) (Value, error) {
	if d.IsNegative() {
		return Value{}, fmt.Errorf("%w: negative value %s", ErrDomain, d)
	}
	scaled := d.Shift(Decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return Value{}, fmt.Errorf("%w: %s has more than %d decimal places", ErrDomain, d, Decimals)
	}
	return FromBig(scaled.BigInt())
}

// Raw returns a copy of the scaled integer.
func (v Value) Raw() *uint256.Int {
	return v.raw.Clone()
}

// Big returns the scaled integer as a big.Int.
func (v Value) Big() *big.Int {
	return v.raw.ToBig()
}

// Decimal returns the value as an exact decimal.
func (v Value) Decimal() decimal.Decimal {
	return decimal.NewFromBigInt(v.raw.ToBig(), -Decimals)
}

// String formats the value as a decimal without trailing zeros.
func (v Value) String() string {
	return v.Decimal().String()
}

// MarshalText encodes the value as a decimal string, so JSON carries it exactly.
func (v Value) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText decodes a decimal string.
func (v *Value) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// IsZero reports whether v == 0.
func (v Value) IsZero() bool {
	return v.raw.IsZero()
}

// Cmp returns -1, 0 or +1 comparing v with o.
func (v Value) Cmp(o Value) int {
	return v.raw.Cmp(&o.raw)
}

// LessThan reports whether v < o.
func (v Value) LessThan(o Value) bool {
	return v.raw.Lt(&o.raw)
}

// GreaterThan reports whether v > o.
func (v Value) GreaterThan(o Value) bool {
	return v.raw.Gt(&o.raw)
}

// Add returns a + b.
func Add(a, b Value) (Value, error) {
	var out Value
	if _, overflow := out.raw.AddOverflow(&a.raw, &b.raw); overflow {
		return Value{}, fmt.Errorf("%w: %s + %s", ErrOverflow, a, b)
	}
	return out, nil
}

// Sub returns a - b. A negative result is reported as ErrOverflow.
func Sub(a, b Value) (Value, error) {
	var out Value
	if _, underflow := out.raw.SubOverflow(&a.raw, &b.raw); underflow {
		return Value{}, fmt.Errorf("%w: %s - %s is negative", ErrOverflow, a, b)
	}
	return out, nil
}

// Mul returns a * b truncated to 18 decimals. The raw product must fit in
// 256 bits before it is rescaled.
func Mul(a, b Value) (Value, error) {
	var prod uint256.Int
	if _, overflow := prod.MulOverflow(&a.raw, &b.raw); overflow {
		return Value{}, fmt.Errorf("%w: %s * %s", ErrOverflow, a, b)
	}
	var out Value
	out.raw.Div(&prod, unitInt)
	return out, nil
}

// Div returns a / b truncated to 18 decimals.
func Div(a, b Value) (Value, error) {
	if b.IsZero() {
		return Value{}, ErrDivisionByZero
	}
	var scaled uint256.Int
	if _, overflow := scaled.MulOverflow(&a.raw, unitInt); overflow {
		return Value{}, fmt.Errorf("%w: %s / %s", ErrOverflow, a, b)
	}
	var out Value
	out.raw.Div(&scaled, &b.raw)
	return out, nil
}
