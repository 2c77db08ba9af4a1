// Package pool is the state machine of a single bonding-curve pool. Every
// function here is pure: a rejection returns the input pool untouched together
// with a *TradeError.
package pool

import (
	"fmt"
	"strings"
	"time"

	"bondingCurve/internal/curve"
	"bondingCurve/internal/fixedpoint"
	"bondingCurve/internal/model"
)

// CreateParams describes a new pool.
type CreateParams struct {
	ID          string
	Asset       string
	MaxSupply   fixedpoint.Value
	FundingGoal fixedpoint.Value
	BasePrice   fixedpoint.Value
	Steepness   fixedpoint.Value
	Now         time.Time
}

// Create validates the curve parameters and returns a pool in the Funding
// state with zero supply and reserve.
func Create(p CreateParams) (model.Pool, error) {
	if strings.TrimSpace(p.ID) == "" {
		return model.Pool{}, Reject(CodeInvalidRequest, "pool id is required")
	}
	if strings.TrimSpace(p.Asset) == "" {
		return model.Pool{}, Reject(CodeInvalidRequest, "asset is required")
	}
	params := curve.Params{BasePrice: p.BasePrice, Steepness: p.Steepness}
	if err := params.Validate(p.MaxSupply); err != nil {
		return model.Pool{}, Wrap(CodeInvalidCurve, err)
	}
	if p.FundingGoal.IsZero() {
		return model.Pool{}, Reject(CodeInvalidCurve, "funding goal must be positive")
	}
	ceiling, err := curve.Integral(params, p.MaxSupply)
	if err != nil {
		return model.Pool{}, Wrap(CodeInvalidCurve, err)
	}
	if p.FundingGoal.GreaterThan(ceiling) {
		return model.Pool{}, Reject(CodeInvalidCurve, "funding goal %s exceeds the reserve at max supply %s", p.FundingGoal, ceiling)
	}

	now := p.Now.UTC()
	return model.Pool{
		ID:          p.ID,
		Asset:       p.Asset,
		MaxSupply:   p.MaxSupply,
		FundingGoal: p.FundingGoal,
		BasePrice:   p.BasePrice,
		Steepness:   p.Steepness,
		State:       model.StateFunding,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Params returns the curve coefficients of p.
func Params(p model.Pool) curve.Params {
	return curve.Params{BasePrice: p.BasePrice, Steepness: p.Steepness}
}

// Apply validates req against p and returns the updated pool and the result.
// No partial fills are produced.
func Apply(p model.Pool, req model.TradeRequest) (model.Pool, model.TradeResult, error) {
	var (
		next    model.Pool
		counter fixedpoint.Value
		err     *TradeError
	)
	switch req.Direction {
	case model.Buy:
		next, counter, err = buy(p, req)
	case model.Sell:
		next, counter, err = sell(p, req)
	default:
		err = Reject(CodeInvalidRequest, "unknown direction %q", req.Direction)
	}
	if err != nil {
		return p, rejected(p, req.Direction, err), err
	}

	return next, model.TradeResult{
		Accepted:          true,
		Direction:         req.Direction,
		TokensDelta:       req.Amount,
		BaseCurrencyDelta: counter,
		NewSupply:         next.Supply,
		NewReserve:        next.Reserve,
		NewState:          next.State,
	}, nil
}

func buy(p model.Pool, req model.TradeRequest) (model.Pool, fixedpoint.Value, *TradeError) {
	if p.State != model.StateFunding {
		return p, fixedpoint.Value{}, Reject(CodeCurveCompleted, "pool %s is %s", p.ID, p.State)
	}
	if req.Amount.IsZero() {
		return p, fixedpoint.Value{}, Reject(CodeInvalidAmount, "amount must be positive")
	}
	supply, err := fixedpoint.Add(p.Supply, req.Amount)
	if err != nil {
		return p, fixedpoint.Value{}, classify(err)
	}
	if supply.GreaterThan(p.MaxSupply) {
		return p, fixedpoint.Value{}, Reject(CodeExceedsMaxSupply, "supply %s + %s exceeds %s", p.Supply, req.Amount, p.MaxSupply)
	}
	cost, err := curve.CostToBuy(Params(p), p.Supply, req.Amount)
	if err != nil {
		return p, fixedpoint.Value{}, classify(err)
	}
	if cost.IsZero() {
		return p, fixedpoint.Value{}, Reject(CodeInvalidAmount, "amount %s is below the curve's price resolution", req.Amount)
	}
	if req.Limit != nil && cost.GreaterThan(*req.Limit) {
		return p, fixedpoint.Value{}, Reject(CodeSlippageExceeded, "cost %s exceeds limit %s", cost, *req.Limit)
	}
	reserve, err := fixedpoint.Add(p.Reserve, cost)
	if err != nil {
		return p, fixedpoint.Value{}, classify(err)
	}

	next := p
	next.Supply = supply
	next.Reserve = reserve
	if !reserve.LessThan(p.FundingGoal) {
		next.State = model.StateReadyForLaunch
	}
	return next, cost, nil
}

func sell(p model.Pool, req model.TradeRequest) (model.Pool, fixedpoint.Value, *TradeError) {
	if p.State != model.StateFunding {
		return p, fixedpoint.Value{}, Reject(CodeCurveCompleted, "pool %s is %s", p.ID, p.State)
	}
	if req.Amount.IsZero() {
		return p, fixedpoint.Value{}, Reject(CodeInvalidAmount, "amount must be positive")
	}
	if req.Amount.GreaterThan(p.Supply) {
		return p, fixedpoint.Value{}, Reject(CodeInvalidAmount, "sell %s exceeds supply %s", req.Amount, p.Supply)
	}
	if req.HolderBalance != nil && req.HolderBalance.LessThan(req.Amount) {
		return p, fixedpoint.Value{}, Reject(CodeInsufficientBalance, "balance %s below %s", *req.HolderBalance, req.Amount)
	}
	refund, err := curve.RefundForSell(Params(p), p.Supply, req.Amount)
	if err != nil {
		return p, fixedpoint.Value{}, classify(err)
	}
	if refund.IsZero() {
		return p, fixedpoint.Value{}, Reject(CodeInvalidAmount, "amount %s is below the curve's price resolution", req.Amount)
	}
	if req.Limit != nil && refund.LessThan(*req.Limit) {
		return p, fixedpoint.Value{}, Reject(CodeSlippageExceeded, "refund %s below limit %s", refund, *req.Limit)
	}
	supply, err := fixedpoint.Sub(p.Supply, req.Amount)
	if err != nil {
		return p, fixedpoint.Value{}, classify(err)
	}
	reserve, err := fixedpoint.Sub(p.Reserve, refund)
	if err != nil {
		return p, fixedpoint.Value{}, classify(err)
	}

	next := p
	next.Supply = supply
	next.Reserve = reserve
	return next, refund, nil
}

func rejected(p model.Pool, dir model.Direction, err *TradeError) model.TradeResult {
	return model.TradeResult{
		Direction:  dir,
		NewSupply:  p.Supply,
		NewReserve: p.Reserve,
		NewState:   p.State,
		Rejection:  string(err.Code),
	}
}

// Launch moves a pool from ReadyForLaunch to Live. It succeeds once.
func Launch(p model.Pool) (model.Pool, error) {
	if p.State != model.StateReadyForLaunch {
		return p, Reject(CodeNotReadyForLaunch, "pool %s is %s", p.ID, p.State)
	}
	next := p
	next.State = model.StateLive
	return next, nil
}

// Quote prices req against p without changing anything. It follows the same
// path as Apply, so an estimate and its settlement cannot drift apart.
func Quote(p model.Pool, req model.TradeRequest) (model.Quote, error) {
	_, res, err := Apply(p, req)
	if err != nil {
		return model.Quote{}, err
	}
	spot, err := curve.SpotPrice(Params(p), p.Supply)
	if err != nil {
		return model.Quote{}, classify(err)
	}
	return model.Quote{
		PoolID:        p.ID,
		Direction:     req.Direction,
		Amount:        req.Amount,
		CounterAmount: res.BaseCurrencyDelta,
		SpotPrice:     spot,
		Supply:        p.Supply,
		State:         p.State,
	}, nil
}

// QuoteBudget estimates the tokens a buy of at most budget base currency
// would receive. The answer never exceeds the remaining supply.
func QuoteBudget(p model.Pool, budget fixedpoint.Value) (model.Quote, error) {
	if p.State != model.StateFunding {
		return model.Quote{}, Reject(CodeCurveCompleted, "pool %s is %s", p.ID, p.State)
	}
	if budget.IsZero() {
		return model.Quote{}, Reject(CodeInvalidAmount, "budget must be positive")
	}
	remaining, err := fixedpoint.Sub(p.MaxSupply, p.Supply)
	if err != nil {
		return model.Quote{}, classify(err)
	}
	tokens, err := curve.TokensForBudget(Params(p), p.Supply, budget, remaining)
	if err != nil {
		return model.Quote{}, classify(err)
	}
	cost, err := curve.CostToBuy(Params(p), p.Supply, tokens)
	if err != nil {
		return model.Quote{}, classify(err)
	}
	spot, err := curve.SpotPrice(Params(p), p.Supply)
	if err != nil {
		return model.Quote{}, classify(err)
	}
	return model.Quote{
		PoolID:        p.ID,
		Direction:     model.Buy,
		Amount:        tokens,
		CounterAmount: cost,
		SpotPrice:     spot,
		Supply:        p.Supply,
		State:         p.State,
	}, nil
}

// CheckInvariants reports the first broken pool invariant, if any. The reserve
// is compared with the fixed-point integral F(supply), not the exact real
// integral; curve tests bound the gap between the two.
func CheckInvariants(p model.Pool) error {
	if !p.State.Valid() {
		return fmt.Errorf("pool %s: unknown state %q", p.ID, p.State)
	}
	if p.Supply.GreaterThan(p.MaxSupply) {
		return fmt.Errorf("pool %s: supply %s exceeds max %s", p.ID, p.Supply, p.MaxSupply)
	}
	if p.State == model.StateFunding && !p.Reserve.LessThan(p.FundingGoal) {
		return fmt.Errorf("pool %s: funding with reserve %s at or above goal %s", p.ID, p.Reserve, p.FundingGoal)
	}
	want, err := curve.Integral(Params(p), p.Supply)
	if err != nil {
		return fmt.Errorf("pool %s: integral: %w", p.ID, err)
	}
	lo, hi := p.Reserve, want
	if lo.GreaterThan(hi) {
		lo, hi = hi, lo
	}
	gap, _ := fixedpoint.Sub(hi, lo)
	if gap.GreaterThan(fixedpoint.FromRawUint64(1)) {
		return fmt.Errorf("pool %s: reserve %s differs from curve integral %s", p.ID, p.Reserve, want)
	}
	return nil
}
