package storage

import (
	"context"
	"errors"

	"bondingCurve/internal/model"
)

var (
	// ErrNotFound is returned when a pool or trade record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when a pool id or a (pool, idempotency key)
	// pair already exists.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrVersionConflict is returned when the pool changed since it was read.
	ErrVersionConflict = errors.New("version conflict")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)

// PoolStore persists pool snapshots and their append-only trade history.
//
// Every write carries the version returned by ReadPool and succeeds only if the
// stored version still matches; a successful write increments the version.
// New pools start at version 1.
type PoolStore interface {
	// CreatePool inserts a new pool. Returns ErrDuplicateKey if the id exists.
	CreatePool(ctx context.Context, pool model.Pool) error

	// ReadPool returns the pool snapshot and its version. Returns ErrNotFound.
	ReadPool(ctx context.Context, poolID string) (model.Pool, uint64, error)

	// WritePoolIfVersionMatches replaces the pool when version is current.
	// It reports false without error when the version is stale.
	WritePoolIfVersionMatches(ctx context.Context, pool model.Pool, version uint64) (bool, error)

	// CommitTrade writes the pool and appends rec in one atomic unit. The
	// record is returned with its sequence assigned. Returns ErrVersionConflict
	// for a stale version and ErrDuplicateKey if rec's idempotency key is
	// already recorded for the pool.
	CommitTrade(ctx context.Context, pool model.Pool, version uint64, rec model.TradeRecord) (model.TradeRecord, error)

	// TradeByIdempotencyKey returns the committed record for key. Returns ErrNotFound.
	TradeByIdempotencyKey(ctx context.Context, poolID, key string) (model.TradeRecord, error)

	// ListTrades returns up to limit records with sequence > afterSeq, oldest first.
	ListTrades(ctx context.Context, poolID string, afterSeq uint64, limit int) ([]model.TradeRecord, error)
}

// TradeSink receives committed trade records, e.g. an audit log.
type TradeSink interface {
	PutTradeRecords(records []model.TradeRecord) error
}
