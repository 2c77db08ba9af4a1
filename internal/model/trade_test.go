package model

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"bondingCurve/internal/fixedpoint"
)

func TestTradeRecordJSONRoundTrip(t *testing.T) {
	original := TradeRecord{
		PoolID:           "pool-1",
		Sequence:         3,
		IdempotencyKey:   "key-3",
		Fingerprint:      "0xabc",
		Direction:        Buy,
		Amount:           fixedpoint.MustParse("1000"),
		CounterAmount:    fixedpoint.MustParse("30015005.00125025"),
		ResultingSupply:  fixedpoint.MustParse("1000"),
		ResultingReserve: fixedpoint.MustParse("30015005.00125025"),
		ResultingState:   StateFunding,
		TxReference:      "0xdef",
		Timestamp:        time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	b, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded TradeRecord
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if !reflect.DeepEqual(original, decoded) {
		t.Fatalf("round-trip mismatch: %+v != %+v", original, decoded)
	}
}

func TestTradeRecordResult(t *testing.T) {
	rec := TradeRecord{
		Sequence:         7,
		Direction:        Sell,
		Amount:           fixedpoint.FromUint64(5),
		CounterAmount:    fixedpoint.FromUint64(9),
		ResultingSupply:  fixedpoint.FromUint64(10),
		ResultingReserve: fixedpoint.FromUint64(11),
		ResultingState:   StateFunding,
		TxReference:      "0x01",
	}
	res := rec.Result()
	if !res.Accepted || res.Sequence != 7 || res.Direction != Sell {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.TokensDelta != rec.Amount || res.BaseCurrencyDelta != rec.CounterAmount {
		t.Fatalf("deltas not carried over: %+v", res)
	}
}

func TestParseDirection(t *testing.T) {
	if d, err := ParseDirection("sell"); err != nil || d != Sell {
		t.Fatalf("parse sell: %v %v", d, err)
	}
	if _, err := ParseDirection("hold"); err == nil {
		t.Fatalf("expected error for unknown direction")
	}
	if _, err := ParseLifecycleState("paused"); err == nil {
		t.Fatalf("expected error for unknown state")
	}
}
