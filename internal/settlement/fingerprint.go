package settlement

import (
	"github.com/ethereum/go-ethereum/crypto"

	"bondingCurve/internal/model"
)

// Fingerprint identifies the content of a trade request so a reused
// idempotency key can be told apart from a genuine retry.
func Fingerprint(req model.TradeRequest) string {
	limit := "-"
	if req.Limit != nil {
		limit = req.Limit.Big().String()
	}
	return crypto.Keccak256Hash(
		[]byte(req.PoolID), []byte{0},
		[]byte(req.Direction), []byte{0},
		[]byte(req.Amount.Big().String()), []byte{0},
		[]byte(limit), []byte{0},
		[]byte(req.Trader), []byte{0},
		crypto.Keccak256(req.Payload),
	).Hex()
}
