// Package memory is an in-process storage.PoolStore for tests and single-node runs.
package memory

import (
	"context"
	"sync"

	"bondingCurve/internal/model"
	"bondingCurve/internal/storage"
)

type poolEntry struct {
	pool    model.Pool
	version uint64
}

// Store keeps pools and trade records in maps guarded by one mutex.
type Store struct {
	mu     sync.RWMutex
	pools  map[string]*poolEntry
	trades map[string][]model.TradeRecord
	keys   map[string]map[string]int // pool id -> idempotency key -> index into trades
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		pools:  make(map[string]*poolEntry),
		trades: make(map[string][]model.TradeRecord),
		keys:   make(map[string]map[string]int),
	}
}

// Compile-time interface check.
var _ storage.PoolStore = (*Store)(nil)

func (s *Store) CreatePool(_ context.Context, pool model.Pool) error {
	if pool.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.pools[pool.ID]; exists {
		return storage.ErrDuplicateKey
	}
	s.pools[pool.ID] = &poolEntry{pool: pool, version: 1}
	s.keys[pool.ID] = make(map[string]int)
	return nil
}

func (s *Store) ReadPool(_ context.Context, poolID string) (model.Pool, uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.pools[poolID]
	if !ok {
		return model.Pool{}, 0, storage.ErrNotFound
	}
	return entry.pool, entry.version, nil
}

func (s *Store) WritePoolIfVersionMatches(_ context.Context, pool model.Pool, version uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.pools[pool.ID]
	if !ok {
		return false, storage.ErrNotFound
	}
	if entry.version != version {
		return false, nil
	}
	entry.pool = pool
	entry.version++
	return true, nil
}

func (s *Store) CommitTrade(_ context.Context, pool model.Pool, version uint64, rec model.TradeRecord) (model.TradeRecord, error) {
	if rec.PoolID != pool.ID || rec.IdempotencyKey == "" {
		return model.TradeRecord{}, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.pools[pool.ID]
	if !ok {
		return model.TradeRecord{}, storage.ErrNotFound
	}
	if _, dup := s.keys[pool.ID][rec.IdempotencyKey]; dup {
		return model.TradeRecord{}, storage.ErrDuplicateKey
	}
	if entry.version != version {
		return model.TradeRecord{}, storage.ErrVersionConflict
	}

	trades := s.trades[pool.ID]
	rec.Sequence = uint64(len(trades)) + 1
	s.trades[pool.ID] = append(trades, rec)
	s.keys[pool.ID][rec.IdempotencyKey] = len(trades)
	entry.pool = pool
	entry.version++
	return rec, nil
}

func (s *Store) TradeByIdempotencyKey(_ context.Context, poolID, key string) (model.TradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.keys[poolID][key]
	if !ok {
		return model.TradeRecord{}, storage.ErrNotFound
	}
	return s.trades[poolID][idx], nil
}

func (s *Store) ListTrades(_ context.Context, poolID string, afterSeq uint64, limit int) ([]model.TradeRecord, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.pools[poolID]; !ok {
		return nil, storage.ErrNotFound
	}
	trades := s.trades[poolID]
	// Sequences are 1-based and dense.
	if afterSeq >= uint64(len(trades)) {
		return []model.TradeRecord{}, nil
	}
	page := trades[afterSeq:]
	if len(page) > limit {
		page = page[:limit]
	}
	out := make([]model.TradeRecord, len(page))
	copy(out, page)
	return out, nil
}
