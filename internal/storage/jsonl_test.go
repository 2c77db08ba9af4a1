package storage

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"bondingCurve/internal/fixedpoint"
	"bondingCurve/internal/model"
)

func TestJSONLAuditLogAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit", "trades.jsonl")
	log, err := OpenJSONLAuditLog(path)
	if err != nil {
		t.Fatalf("open audit log: %v", err)
	}

	first := model.TradeRecord{PoolID: "p1", Sequence: 1, Direction: model.Buy, Amount: fixedpoint.FromUint64(3)}
	second := model.TradeRecord{PoolID: "p1", Sequence: 2, Direction: model.Sell, Amount: fixedpoint.FromUint64(1)}

	if err := log.PutTradeRecords([]model.TradeRecord{first}); err != nil {
		t.Fatalf("first append: %v", err)
	}
	if err := log.PutTradeRecords([]model.TradeRecord{second}); err != nil {
		t.Fatalf("second append: %v", err)
	}
	if err := log.PutTradeRecords(nil); err != nil {
		t.Fatalf("empty append: %v", err)
	}
	if err := log.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := log.PutTradeRecords([]model.TradeRecord{first}); err == nil {
		t.Fatal("expected error after close")
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer file.Close()

	var got []model.TradeRecord
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var rec model.TradeRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("decode line: %v", err)
		}
		got = append(got, rec)
	}
	if len(got) != 2 || got[0].Sequence != 1 || got[1].Direction != model.Sell {
		t.Fatalf("unexpected records %+v", got)
	}
}

func TestOpenJSONLAuditLogRejectsEmptyPath(t *testing.T) {
	if _, err := OpenJSONLAuditLog(""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
