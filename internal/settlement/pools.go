package settlement

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"bondingCurve/internal/fixedpoint"
	"bondingCurve/internal/model"
	"bondingCurve/internal/pool"
	"bondingCurve/internal/storage"
)

// CreatePoolRequest describes a new pool. Zero curve fields take the
// configured defaults.
type CreatePoolRequest struct {
	Asset       string           `json:"asset"`
	MaxSupply   fixedpoint.Value `json:"max_supply"`
	FundingGoal fixedpoint.Value `json:"funding_goal"`
	BasePrice   fixedpoint.Value `json:"base_price"`
	Steepness   fixedpoint.Value `json:"steepness"`
}

func orDefault(v, def fixedpoint.Value) fixedpoint.Value {
	if v.IsZero() {
		return def
	}
	return v
}

// CreatePool validates the curve and stores a new Funding pool under a fresh id.
func (c *Coordinator) CreatePool(ctx context.Context, req CreatePoolRequest) (model.Pool, error) {
	d := c.cfg.Defaults
	created, err := pool.Create(pool.CreateParams{
		ID:          c.cfg.NewID(),
		Asset:       req.Asset,
		MaxSupply:   orDefault(req.MaxSupply, d.MaxSupply),
		FundingGoal: orDefault(req.FundingGoal, d.FundingGoal),
		BasePrice:   orDefault(req.BasePrice, d.BasePrice),
		Steepness:   orDefault(req.Steepness, d.Steepness),
		Now:         c.cfg.Clock(),
	})
	if err != nil {
		return model.Pool{}, err
	}
	if err := c.store.CreatePool(ctx, created); err != nil {
		return model.Pool{}, pool.Wrap(pool.CodePersistenceUnavailable, err)
	}
	c.cfg.Metrics.IncPoolCreated()
	c.logger.Info("pool created",
		zap.String("pool_id", created.ID),
		zap.String("asset", created.Asset),
		zap.String("funding_goal", created.FundingGoal.String()),
	)
	return created, nil
}

// Pool returns the latest snapshot of a pool.
func (c *Coordinator) Pool(ctx context.Context, poolID string) (model.Pool, error) {
	p, _, err := c.store.ReadPool(ctx, poolID)
	if err != nil {
		return model.Pool{}, storeError(err)
	}
	return p, nil
}

// Trades lists committed trades with sequence greater than afterSeq.
func (c *Coordinator) Trades(ctx context.Context, poolID string, afterSeq uint64, limit int) ([]model.TradeRecord, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	records, err := c.store.ListTrades(ctx, poolID, afterSeq, limit)
	if err != nil {
		return nil, storeError(err)
	}
	return records, nil
}

// Quote estimates the counter amount of a trade against the latest snapshot.
// It never writes.
func (c *Coordinator) Quote(ctx context.Context, poolID string, dir model.Direction, amount fixedpoint.Value) (model.Quote, error) {
	p, _, err := c.store.ReadPool(ctx, poolID)
	if err != nil {
		return model.Quote{}, storeError(err)
	}
	return pool.Quote(p, model.TradeRequest{PoolID: poolID, Direction: dir, Amount: amount})
}

// QuoteBuyWithBudget estimates how many tokens budget buys right now.
func (c *Coordinator) QuoteBuyWithBudget(ctx context.Context, poolID string, budget fixedpoint.Value) (model.Quote, error) {
	p, _, err := c.store.ReadPool(ctx, poolID)
	if err != nil {
		return model.Quote{}, storeError(err)
	}
	return pool.QuoteBudget(p, budget)
}

// Launch moves a ReadyForLaunch pool to Live. It succeeds once per pool.
func (c *Coordinator) Launch(ctx context.Context, poolID string) (model.Pool, error) {
	var launched model.Pool
	err := withRetry(ctx, c.cfg.MaxAttempts, c.cfg.RetryBackoff, c.cfg.MaxBackoff, isConflict, func(ctx context.Context, _ int) error {
		current, version, err := c.store.ReadPool(ctx, poolID)
		if err != nil {
			return storeError(err)
		}
		next, err := pool.Launch(current)
		if err != nil {
			return err
		}
		next.UpdatedAt = c.cfg.Clock().UTC()
		ok, err := c.store.WritePoolIfVersionMatches(ctx, next, version)
		if err != nil {
			return storeError(err)
		}
		if !ok {
			c.cfg.Metrics.IncConflict()
			return storage.ErrVersionConflict
		}
		launched = next
		return nil
	})
	if err != nil {
		if errors.Is(err, storage.ErrVersionConflict) {
			return model.Pool{}, pool.Wrap(pool.CodeContention, err)
		}
		return model.Pool{}, err
	}
	c.cfg.Metrics.IncLaunch()
	c.logger.Info("pool launched", zap.String("pool_id", poolID))
	return launched, nil
}
