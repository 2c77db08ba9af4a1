package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"bondingCurve/internal/model"
)

// JSONLAuditLog mirrors committed trade records into an append-only JSONL
// file. It is a secondary copy; the pool store stays authoritative.
type JSONLAuditLog struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

var _ TradeSink = (*JSONLAuditLog)(nil)

// OpenJSONLAuditLog opens path for appending, creating parent directories.
func OpenJSONLAuditLog(path string) (*JSONLAuditLog, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: audit log path is empty", ErrInvalidInput)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create audit dir: %w", err)
		}
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	return &JSONLAuditLog{file: file, enc: json.NewEncoder(file)}, nil
}

// PutTradeRecords writes one line per record and syncs the file.
func (s *JSONLAuditLog) PutTradeRecords(records []model.TradeRecord) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return errors.New("audit log is closed")
	}

	for _, record := range records {
		if err := s.enc.Encode(record); err != nil {
			return fmt.Errorf("write trade %s/%d: %w", record.PoolID, record.Sequence, err)
		}
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("sync audit log: %w", err)
	}
	return nil
}

func (s *JSONLAuditLog) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
