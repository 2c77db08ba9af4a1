// Package postgres persists pools and trade records in PostgreSQL.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"bondingCurve/internal/fixedpoint"
	"bondingCurve/internal/model"
	"bondingCurve/internal/storage"
)

//go:embed schema.sql
var schema string

const pgErrUniqueViolation = "23505"

// Store implements storage.PoolStore on a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// Compile-time interface check.
var _ storage.PoolStore = (*Store)(nil)

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Migrate creates the pools and trades tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) CreatePool(ctx context.Context, p model.Pool) error {
	if p.ID == "" {
		return storage.ErrInvalidInput
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pools (
			id, asset, supply, reserve, max_supply, funding_goal, base_price, steepness,
			state, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 1, $10, $11)
	`,
		p.ID,
		p.Asset,
		toNumeric(p.Supply),
		toNumeric(p.Reserve),
		toNumeric(p.MaxSupply),
		toNumeric(p.FundingGoal),
		toNumeric(p.BasePrice),
		toNumeric(p.Steepness),
		string(p.State),
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert pool: %w", err)
	}
	return nil
}

func (s *Store) ReadPool(ctx context.Context, poolID string) (model.Pool, uint64, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, asset, supply, reserve, max_supply, funding_goal, base_price, steepness,
			state, version, created_at, updated_at
		FROM pools WHERE id = $1
	`, poolID)

	var (
		p       model.Pool
		state   string
		version int64
		nums    [6]pgtype.Numeric
	)
	err := row.Scan(&p.ID, &p.Asset, &nums[0], &nums[1], &nums[2], &nums[3], &nums[4], &nums[5],
		&state, &version, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Pool{}, 0, storage.ErrNotFound
		}
		return model.Pool{}, 0, fmt.Errorf("read pool: %w", err)
	}
	targets := []*fixedpoint.Value{&p.Supply, &p.Reserve, &p.MaxSupply, &p.FundingGoal, &p.BasePrice, &p.Steepness}
	for i, target := range targets {
		if *target, err = fromNumeric(nums[i]); err != nil {
			return model.Pool{}, 0, fmt.Errorf("read pool %s: %w", poolID, err)
		}
	}
	if p.State, err = model.ParseLifecycleState(state); err != nil {
		return model.Pool{}, 0, fmt.Errorf("read pool %s: %w", poolID, err)
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, uint64(version), nil
}

func (s *Store) WritePoolIfVersionMatches(ctx context.Context, p model.Pool, version uint64) (bool, error) {
	tag, err := updatePool(ctx, s.pool, p, version)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	if _, _, err := s.ReadPool(ctx, p.ID); err != nil {
		return false, err
	}
	return false, nil
}

func (s *Store) CommitTrade(ctx context.Context, p model.Pool, version uint64, rec model.TradeRecord) (model.TradeRecord, error) {
	if rec.PoolID != p.ID || rec.IdempotencyKey == "" {
		return model.TradeRecord{}, storage.ErrInvalidInput
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return model.TradeRecord{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := updatePool(ctx, tx, p, version)
	if err != nil {
		return model.TradeRecord{}, err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM pools WHERE id = $1)`, p.ID).Scan(&exists); err != nil {
			return model.TradeRecord{}, fmt.Errorf("check pool: %w", err)
		}
		if !exists {
			return model.TradeRecord{}, storage.ErrNotFound
		}
		return model.TradeRecord{}, storage.ErrVersionConflict
	}

	// The row lock taken by the update serializes sequence allocation per pool.
	var seq int64
	err = tx.QueryRow(ctx, `
		INSERT INTO trades (
			pool_id, sequence, idempotency_key, fingerprint, direction, amount, counter_amount,
			resulting_supply, resulting_reserve, resulting_state, trader, tx_reference, created_at
		)
		SELECT $1, COALESCE(MAX(sequence), 0) + 1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
		FROM trades WHERE pool_id = $1
		RETURNING sequence
	`,
		rec.PoolID,
		rec.IdempotencyKey,
		rec.Fingerprint,
		string(rec.Direction),
		toNumeric(rec.Amount),
		toNumeric(rec.CounterAmount),
		toNumeric(rec.ResultingSupply),
		toNumeric(rec.ResultingReserve),
		string(rec.ResultingState),
		rec.Trader,
		rec.TxReference,
		rec.Timestamp,
	).Scan(&seq)
	if err != nil {
		if isDuplicateKeyError(err) {
			return model.TradeRecord{}, storage.ErrDuplicateKey
		}
		return model.TradeRecord{}, fmt.Errorf("insert trade: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return model.TradeRecord{}, fmt.Errorf("commit trade: %w", err)
	}
	rec.Sequence = uint64(seq)
	return rec, nil
}

func (s *Store) TradeByIdempotencyKey(ctx context.Context, poolID, key string) (model.TradeRecord, error) {
	rows, err := s.pool.Query(ctx, tradeColumns+` WHERE pool_id = $1 AND idempotency_key = $2`, poolID, key)
	if err != nil {
		return model.TradeRecord{}, fmt.Errorf("query trade: %w", err)
	}
	records, err := collectTrades(rows)
	if err != nil {
		return model.TradeRecord{}, err
	}
	if len(records) == 0 {
		return model.TradeRecord{}, storage.ErrNotFound
	}
	return records[0], nil
}

func (s *Store) ListTrades(ctx context.Context, poolID string, afterSeq uint64, limit int) ([]model.TradeRecord, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidInput
	}
	if _, _, err := s.ReadPool(ctx, poolID); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, tradeColumns+`
		WHERE pool_id = $1 AND sequence > $2
		ORDER BY sequence
		LIMIT $3
	`, poolID, int64(afterSeq), limit)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	return collectTrades(rows)
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func updatePool(ctx context.Context, db execer, p model.Pool, version uint64) (pgconn.CommandTag, error) {
	tag, err := db.Exec(ctx, `
		UPDATE pools SET
			supply = $3,
			reserve = $4,
			state = $5,
			updated_at = $6,
			version = version + 1
		WHERE id = $1 AND version = $2
	`,
		p.ID,
		int64(version),
		toNumeric(p.Supply),
		toNumeric(p.Reserve),
		string(p.State),
		p.UpdatedAt,
	)
	if err != nil {
		return tag, fmt.Errorf("update pool: %w", err)
	}
	return tag, nil
}

const tradeColumns = `
	SELECT pool_id, sequence, idempotency_key, fingerprint, direction, amount, counter_amount,
		resulting_supply, resulting_reserve, resulting_state, trader, tx_reference, created_at
	FROM trades`

func collectTrades(rows pgx.Rows) ([]model.TradeRecord, error) {
	defer rows.Close()

	records := []model.TradeRecord{}
	for rows.Next() {
		var (
			rec       model.TradeRecord
			seq       int64
			direction string
			state     string
			ts        time.Time
			nums      [4]pgtype.Numeric
		)
		if err := rows.Scan(&rec.PoolID, &seq, &rec.IdempotencyKey, &rec.Fingerprint, &direction,
			&nums[0], &nums[1], &nums[2], &nums[3], &state, &rec.Trader, &rec.TxReference, &ts); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		var err error
		targets := []*fixedpoint.Value{&rec.Amount, &rec.CounterAmount, &rec.ResultingSupply, &rec.ResultingReserve}
		for i, target := range targets {
			if *target, err = fromNumeric(nums[i]); err != nil {
				return nil, fmt.Errorf("scan trade: %w", err)
			}
		}
		if rec.Direction, err = model.ParseDirection(direction); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		if rec.ResultingState, err = model.ParseLifecycleState(state); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		rec.Sequence = uint64(seq)
		rec.Timestamp = ts.UTC()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trades: %w", err)
	}
	return records, nil
}

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgErrUniqueViolation
	}
	return false
}
