package model

import (
	"fmt"
	"time"

	"bondingCurve/internal/fixedpoint"
)

// Direction is the side of a trade.
type Direction string

const (
	Buy  Direction = "buy"
	Sell Direction = "sell"
)

// ParseDirection accepts "buy" or "sell".
func ParseDirection(raw string) (Direction, error) {
	switch d := Direction(raw); d {
	case Buy, Sell:
		return d, nil
	}
	return "", fmt.Errorf("unknown trade direction %q", raw)
}

// TradeRequest asks to buy or sell Amount tokens from a pool.
//
// Limit is an optional slippage bound: the maximum base currency a buy may cost,
// or the minimum a sell must refund. HolderBalance is the seller's token balance
// as reported by the holdings collaborator; nil means unknown.
type TradeRequest struct {
	PoolID        string            `json:"pool_id"`
	Direction     Direction         `json:"direction"`
	Amount        fixedpoint.Value  `json:"amount"`
	Limit         *fixedpoint.Value `json:"limit,omitempty"`
	Trader        string            `json:"trader,omitempty"`
	Payload       []byte            `json:"payload,omitempty"`
	HolderBalance *fixedpoint.Value `json:"-"`
}

// TradeResult is the outcome of a trade. Deltas are magnitudes; Direction gives
// their sign. A rejected result carries the rejection code and the unchanged pool.
type TradeResult struct {
	Accepted          bool             `json:"accepted"`
	Direction         Direction        `json:"direction"`
	TokensDelta       fixedpoint.Value `json:"tokens_delta"`
	BaseCurrencyDelta fixedpoint.Value `json:"base_currency_delta"`
	NewSupply         fixedpoint.Value `json:"new_supply"`
	NewReserve        fixedpoint.Value `json:"new_reserve"`
	NewState          LifecycleState   `json:"new_state"`
	Rejection         string           `json:"rejection,omitempty"`
	Sequence          uint64           `json:"sequence,omitempty"`
	TxReference       string           `json:"tx_reference,omitempty"`
}

// TradeRecord is the immutable audit entry of a committed trade, keyed by
// (PoolID, Sequence).
type TradeRecord struct {
	PoolID           string           `json:"pool_id"`
	Sequence         uint64           `json:"sequence"`
	IdempotencyKey   string           `json:"idempotency_key"`
	Fingerprint      string           `json:"fingerprint"`
	Direction        Direction        `json:"direction"`
	Amount           fixedpoint.Value `json:"amount"`
	CounterAmount    fixedpoint.Value `json:"counter_amount"`
	ResultingSupply  fixedpoint.Value `json:"resulting_supply"`
	ResultingReserve fixedpoint.Value `json:"resulting_reserve"`
	ResultingState   LifecycleState   `json:"resulting_state"`
	Trader           string           `json:"trader,omitempty"`
	TxReference      string           `json:"tx_reference,omitempty"`
	Timestamp        time.Time        `json:"timestamp"`
}

// Result rebuilds the trade result the record was committed with.
func (r TradeRecord) Result() TradeResult {
	return TradeResult{
		Accepted:          true,
		Direction:         r.Direction,
		TokensDelta:       r.Amount,
		BaseCurrencyDelta: r.CounterAmount,
		NewSupply:         r.ResultingSupply,
		NewReserve:        r.ResultingReserve,
		NewState:          r.ResultingState,
		Sequence:          r.Sequence,
		TxReference:       r.TxReference,
	}
}

// Quote is a read-only price estimate against the latest pool snapshot.
type Quote struct {
	PoolID        string           `json:"pool_id"`
	Direction     Direction        `json:"direction"`
	Amount        fixedpoint.Value `json:"amount"`
	CounterAmount fixedpoint.Value `json:"expected_counter_amount"`
	SpotPrice     fixedpoint.Value `json:"spot_price"`
	Supply        fixedpoint.Value `json:"supply"`
	State         LifecycleState   `json:"state"`
}
