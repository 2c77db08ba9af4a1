package postgres

import (
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5/pgtype"

	"bondingCurve/internal/fixedpoint"
)

// Fixed-point values are stored as their raw scaled integer in NUMERIC(78,0).

func toNumeric(v fixedpoint.Value) pgtype.Numeric {
	return pgtype.Numeric{Int: v.Big(), Exp: 0, Valid: true}
}

func fromNumeric(n pgtype.Numeric) (fixedpoint.Value, error) {
	if !n.Valid || n.NaN || n.InfinityModifier != pgtype.Finite {
		return fixedpoint.Value{}, fmt.Errorf("numeric is not a finite value")
	}
	raw := new(big.Int)
	if n.Int != nil {
		raw.Set(n.Int)
	}
	if n.Exp != 0 {
		exp := int64(n.Exp)
		if exp < 0 {
			exp = -exp
		}
		scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(exp), nil)
		if n.Exp > 0 {
			raw.Mul(raw, scale)
		} else {
			raw.Quo(raw, scale)
		}
	}
	return fixedpoint.FromBig(raw)
}
