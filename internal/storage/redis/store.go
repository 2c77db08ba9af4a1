// Package redis implements storage.PoolStore on go-redis/v9. Pool writes use
// WATCH/MULTI so a concurrent change to the pool key aborts the transaction.
package redis

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"bondingCurve/internal/model"
	"bondingCurve/internal/storage"
)

// ClientConfig holds connection parameters for the Redis client.
type ClientConfig struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	TLSEnabled bool
	KeyPrefix  string
}

// Store keeps each pool in a hash ({data, version}), its trades in a list and
// its idempotency keys in a hash mapping key to sequence.
type Store struct {
	rdb    *redis.Client
	prefix string
}

// Compile-time interface check.
var _ storage.PoolStore = (*Store)(nil)

// NewStore connects to Redis and pings it.
func NewStore(ctx context.Context, cfg ClientConfig) (*Store, error) {
	opts := &redis.Options{
		Addr:       cfg.Addr,
		Password:   cfg.Password,
		DB:         cfg.DB,
		PoolSize:   cfg.PoolSize,
		MaxRetries: cfg.MaxRetries,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return NewStoreFromClient(rdb, cfg.KeyPrefix), nil
}

// NewStoreFromClient wraps an existing client.
func NewStoreFromClient(rdb *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = "curve"
	}
	return &Store{rdb: rdb, prefix: prefix}
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.rdb.Close()
}

func (s *Store) poolKey(id string) string   { return s.prefix + ":pool:" + id }
func (s *Store) tradesKey(id string) string { return s.prefix + ":trades:" + id }
func (s *Store) idemKey(id string) string   { return s.prefix + ":idem:" + id }

func (s *Store) CreatePool(ctx context.Context, p model.Pool) error {
	if p.ID == "" {
		return storage.ErrInvalidInput
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("redis: marshal pool: %w", err)
	}

	key := s.poolKey(p.ID)
	err = s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return storage.ErrDuplicateKey
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, "data", data, "version", 1)
			return nil
		})
		return err
	}, key)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrDuplicateKey), errors.Is(err, redis.TxFailedErr):
		return storage.ErrDuplicateKey
	}
	return fmt.Errorf("redis: create pool %s: %w", p.ID, err)
}

func (s *Store) ReadPool(ctx context.Context, poolID string) (model.Pool, uint64, error) {
	return readPool(ctx, s.rdb, s.poolKey(poolID))
}

type hashReader interface {
	HMGet(ctx context.Context, key string, fields ...string) *redis.SliceCmd
}

func readPool(ctx context.Context, c hashReader, key string) (model.Pool, uint64, error) {
	vals, err := c.HMGet(ctx, key, "data", "version").Result()
	if err != nil {
		return model.Pool{}, 0, fmt.Errorf("redis: read pool: %w", err)
	}
	data, ok := vals[0].(string)
	if !ok {
		return model.Pool{}, 0, storage.ErrNotFound
	}
	rawVersion, _ := vals[1].(string)
	version, err := strconv.ParseUint(rawVersion, 10, 64)
	if err != nil {
		return model.Pool{}, 0, fmt.Errorf("redis: parse version of %s: %w", key, err)
	}
	var p model.Pool
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return model.Pool{}, 0, fmt.Errorf("redis: decode pool: %w", err)
	}
	return p, version, nil
}

func (s *Store) WritePoolIfVersionMatches(ctx context.Context, p model.Pool, version uint64) (bool, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return false, fmt.Errorf("redis: marshal pool: %w", err)
	}

	key := s.poolKey(p.ID)
	err = s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		_, current, err := readPool(ctx, tx, key)
		if err != nil {
			return err
		}
		if current != version {
			return storage.ErrVersionConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, "data", data, "version", version+1)
			return nil
		})
		return err
	}, key)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, storage.ErrVersionConflict), errors.Is(err, redis.TxFailedErr):
		return false, nil
	case errors.Is(err, storage.ErrNotFound):
		return false, err
	}
	return false, fmt.Errorf("redis: write pool %s: %w", p.ID, err)
}

func (s *Store) CommitTrade(ctx context.Context, p model.Pool, version uint64, rec model.TradeRecord) (model.TradeRecord, error) {
	if rec.PoolID != p.ID || rec.IdempotencyKey == "" {
		return model.TradeRecord{}, storage.ErrInvalidInput
	}
	poolData, err := json.Marshal(p)
	if err != nil {
		return model.TradeRecord{}, fmt.Errorf("redis: marshal pool: %w", err)
	}

	poolKey, tradesKey, idemKey := s.poolKey(p.ID), s.tradesKey(p.ID), s.idemKey(p.ID)
	err = s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		_, current, err := readPool(ctx, tx, poolKey)
		if err != nil {
			return err
		}
		dup, err := tx.HExists(ctx, idemKey, rec.IdempotencyKey).Result()
		if err != nil {
			return err
		}
		if dup {
			return storage.ErrDuplicateKey
		}
		if current != version {
			return storage.ErrVersionConflict
		}
		n, err := tx.LLen(ctx, tradesKey).Result()
		if err != nil {
			return err
		}
		rec.Sequence = uint64(n) + 1
		recData, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal trade: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, poolKey, "data", poolData, "version", version+1)
			pipe.RPush(ctx, tradesKey, recData)
			pipe.HSet(ctx, idemKey, rec.IdempotencyKey, rec.Sequence)
			return nil
		})
		return err
	}, poolKey, idemKey)
	switch {
	case err == nil:
		return rec, nil
	case errors.Is(err, redis.TxFailedErr):
		return model.TradeRecord{}, storage.ErrVersionConflict
	case errors.Is(err, storage.ErrVersionConflict), errors.Is(err, storage.ErrDuplicateKey), errors.Is(err, storage.ErrNotFound):
		return model.TradeRecord{}, err
	}
	return model.TradeRecord{}, fmt.Errorf("redis: commit trade on %s: %w", p.ID, err)
}

func (s *Store) TradeByIdempotencyKey(ctx context.Context, poolID, key string) (model.TradeRecord, error) {
	seq, err := s.rdb.HGet(ctx, s.idemKey(poolID), key).Uint64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.TradeRecord{}, storage.ErrNotFound
		}
		return model.TradeRecord{}, fmt.Errorf("redis: lookup idempotency key: %w", err)
	}
	data, err := s.rdb.LIndex(ctx, s.tradesKey(poolID), int64(seq)-1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.TradeRecord{}, storage.ErrNotFound
		}
		return model.TradeRecord{}, fmt.Errorf("redis: read trade %d: %w", seq, err)
	}
	var rec model.TradeRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return model.TradeRecord{}, fmt.Errorf("redis: decode trade: %w", err)
	}
	return rec, nil
}

func (s *Store) ListTrades(ctx context.Context, poolID string, afterSeq uint64, limit int) ([]model.TradeRecord, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidInput
	}
	if _, _, err := s.ReadPool(ctx, poolID); err != nil {
		return nil, err
	}
	// Sequence n lives at list index n-1.
	start := int64(afterSeq)
	items, err := s.rdb.LRange(ctx, s.tradesKey(poolID), start, start+int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list trades: %w", err)
	}
	records := make([]model.TradeRecord, 0, len(items))
	for _, item := range items {
		var rec model.TradeRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			return nil, fmt.Errorf("redis: decode trade: %w", err)
		}
		records = append(records, rec)
	}
	return records, nil
}
