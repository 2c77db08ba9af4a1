// Package settlement serializes trades against persisted pools. Each trade
// reads a pool snapshot, applies the state machine and commits the result with
// a version compare-and-swap, retrying with backoff when another writer won.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"bondingCurve/internal/fixedpoint"
	"bondingCurve/internal/metrics"
	"bondingCurve/internal/model"
	"bondingCurve/internal/pool"
	"bondingCurve/internal/storage"
)

// Ledger broadcasts a signed trade payload and returns an opaque reference.
type Ledger interface {
	Submit(ctx context.Context, payload []byte) (string, error)
}

// Holdings reports how many pool tokens a trader holds.
type Holdings interface {
	HolderBalance(ctx context.Context, asset, holder string) (fixedpoint.Value, error)
}

// PoolDefaults fills curve parameters missing from a create request.
type PoolDefaults struct {
	MaxSupply   fixedpoint.Value
	FundingGoal fixedpoint.Value
	BasePrice   fixedpoint.Value
	Steepness   fixedpoint.Value
}

// Config controls settlement behavior.
type Config struct {
	MaxAttempts  int
	RetryBackoff time.Duration
	MaxBackoff   time.Duration
	Defaults     PoolDefaults

	Ledger   Ledger
	Holdings Holdings
	Audit    storage.TradeSink
	Metrics  *metrics.Metrics

	Clock func() time.Time
	NewID func() string
}

// Coordinator settles trades for any number of pools. Pools share nothing but
// the store, so trades on different pools never wait for each other.
type Coordinator struct {
	cfg    Config
	store  storage.PoolStore
	logger *zap.Logger
}

func NewCoordinator(cfg Config, store storage.PoolStore, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 10 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	return &Coordinator{cfg: cfg, store: store, logger: logger}
}

func isConflict(err error) bool {
	return errors.Is(err, storage.ErrVersionConflict)
}

// SubmitTrade settles a trade built from its parts.
func (c *Coordinator) SubmitTrade(ctx context.Context, poolID string, dir model.Direction, amount fixedpoint.Value, key string) (model.TradeResult, error) {
	return c.Settle(ctx, model.TradeRequest{PoolID: poolID, Direction: dir, Amount: amount}, key)
}

// Settle applies req to its pool exactly once per idempotency key. A repeated
// key returns the committed result without touching the pool again. Rejections
// are returned as *pool.TradeError together with a result carrying the code;
// nothing is persisted for them.
func (c *Coordinator) Settle(ctx context.Context, req model.TradeRequest, key string) (model.TradeResult, error) {
	start := time.Now()
	result, err := c.settle(ctx, req, key)

	outcome := "ok"
	if err != nil {
		outcome = string(pool.CodeOf(err))
		if outcome == "" {
			outcome = "error"
		}
		if !result.Accepted && result.Rejection == "" {
			result.Direction = req.Direction
			result.Rejection = outcome
		}
	}
	c.cfg.Metrics.ObserveSettlement(directionLabel(req.Direction), outcome, time.Since(start))
	return result, err
}

func (c *Coordinator) settle(ctx context.Context, req model.TradeRequest, key string) (model.TradeResult, error) {
	if key == "" {
		return model.TradeResult{}, pool.Reject(pool.CodeInvalidRequest, "idempotency key is required")
	}
	if req.PoolID == "" {
		return model.TradeResult{}, pool.Reject(pool.CodeInvalidRequest, "pool id is required")
	}
	if _, err := model.ParseDirection(string(req.Direction)); err != nil {
		return model.TradeResult{}, pool.Wrap(pool.CodeInvalidRequest, err)
	}
	if len(req.Payload) > 0 && c.cfg.Ledger == nil {
		return model.TradeResult{}, pool.Reject(pool.CodeInvalidRequest, "signed payload given but no ledger is configured")
	}

	logger := c.logger.With(
		zap.String("pool_id", req.PoolID),
		zap.String("direction", string(req.Direction)),
		zap.String("amount", req.Amount.String()),
		zap.String("idempotency_key", key),
	)
	fingerprint := Fingerprint(req)

	var (
		result model.TradeResult
		txRef  string
	)
	attempt := func(ctx context.Context, n int) error {
		prior, err := c.store.TradeByIdempotencyKey(ctx, req.PoolID, key)
		switch {
		case err == nil:
			result, err = c.replay(prior, fingerprint)
			if err == nil {
				logger.Info("replayed committed trade", zap.Uint64("sequence", prior.Sequence))
			}
			return err
		case !errors.Is(err, storage.ErrNotFound):
			return pool.Wrap(pool.CodePersistenceUnavailable, err)
		}

		current, version, err := c.store.ReadPool(ctx, req.PoolID)
		if err != nil {
			return storeError(err)
		}

		apply := req
		if apply.Direction == model.Sell && c.cfg.Holdings != nil && apply.Trader != "" {
			bal, err := c.cfg.Holdings.HolderBalance(ctx, current.Asset, apply.Trader)
			if err != nil {
				return pool.Wrap(pool.CodePersistenceUnavailable, fmt.Errorf("holder balance: %w", err))
			}
			apply.HolderBalance = &bal
		}

		next, res, err := pool.Apply(current, apply)
		if err != nil {
			result = res
			logger.Debug("trade rejected", zap.String("code", res.Rejection), zap.Error(err))
			return err
		}

		if len(req.Payload) > 0 && txRef == "" {
			ref, err := c.cfg.Ledger.Submit(ctx, req.Payload)
			c.cfg.Metrics.ObserveSubmit(err == nil)
			if err != nil {
				return pool.Wrap(pool.CodeSubmissionFailed, err)
			}
			txRef = ref
			logger.Info("submitted trade to ledger", zap.String("tx_reference", txRef))
		}

		now := c.cfg.Clock().UTC()
		next.UpdatedAt = now
		rec := model.TradeRecord{
			PoolID:           req.PoolID,
			IdempotencyKey:   key,
			Fingerprint:      fingerprint,
			Direction:        req.Direction,
			Amount:           res.TokensDelta,
			CounterAmount:    res.BaseCurrencyDelta,
			ResultingSupply:  next.Supply,
			ResultingReserve: next.Reserve,
			ResultingState:   next.State,
			Trader:           req.Trader,
			TxReference:      txRef,
			Timestamp:        now,
		}

		committed, err := c.store.CommitTrade(ctx, next, version, rec)
		switch {
		case err == nil:
		case isConflict(err):
			c.cfg.Metrics.IncConflict()
			logger.Warn("pool changed during settlement, retrying",
				zap.Int("attempt", n),
				zap.Uint64("version", version),
			)
			return err
		case errors.Is(err, storage.ErrDuplicateKey):
			// A concurrent request with the same key committed first.
			prior, err := c.store.TradeByIdempotencyKey(ctx, req.PoolID, key)
			if err != nil {
				return pool.Wrap(pool.CodePersistenceUnavailable, err)
			}
			result, err = c.replay(prior, fingerprint)
			return err
		default:
			return storeError(err)
		}

		result = committed.Result()
		logger.Info("trade committed",
			zap.Uint64("sequence", committed.Sequence),
			zap.String("counter_amount", committed.CounterAmount.String()),
			zap.String("state", string(committed.ResultingState)),
		)
		if next.State != current.State {
			logger.Info("pool state changed", zap.String("from", string(current.State)), zap.String("to", string(next.State)))
		}
		c.audit(committed)
		return nil
	}

	err := withRetry(ctx, c.cfg.MaxAttempts, c.cfg.RetryBackoff, c.cfg.MaxBackoff, isConflict, attempt)
	if err != nil {
		if txRef != "" {
			logger.Error("ledger transaction submitted but trade not committed",
				zap.String("tx_reference", txRef),
				zap.Error(err),
			)
		}
		if isConflict(err) {
			logger.Warn("settlement exhausted retries", zap.Int("attempts", c.cfg.MaxAttempts))
			return model.TradeResult{}, pool.Wrap(pool.CodeContention, err)
		}
		return result, err
	}
	return result, nil
}

// directionLabel keeps caller-supplied directions out of metric label values.
func directionLabel(d model.Direction) string {
	switch d {
	case model.Buy, model.Sell:
		return string(d)
	}
	return "invalid"
}

func (c *Coordinator) replay(prior model.TradeRecord, fingerprint string) (model.TradeResult, error) {
	if prior.Fingerprint != fingerprint {
		return model.TradeResult{}, pool.Reject(pool.CodeIdempotencyMismatch,
			"key already used for a different request (sequence %d)", prior.Sequence)
	}
	c.cfg.Metrics.IncReplay()
	return prior.Result(), nil
}

func (c *Coordinator) audit(rec model.TradeRecord) {
	if c.cfg.Audit == nil {
		return
	}
	if err := c.cfg.Audit.PutTradeRecords([]model.TradeRecord{rec}); err != nil {
		c.logger.Error("write audit log", zap.String("pool_id", rec.PoolID), zap.Uint64("sequence", rec.Sequence), zap.Error(err))
	}
}

func storeError(err error) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return pool.Wrap(pool.CodePoolNotFound, err)
	case isConflict(err):
		return err
	}
	return pool.Wrap(pool.CodePersistenceUnavailable, err)
}
