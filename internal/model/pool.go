package model

import (
	"fmt"
	"time"

	"bondingCurve/internal/fixedpoint"
)

// LifecycleState is the trading phase of a pool.
type LifecycleState string

const (
	// StateFunding accepts buys and sells until the reserve reaches the funding goal.
	StateFunding LifecycleState = "funding"
	// StateReadyForLaunch rejects trades and waits for a single launch action.
	StateReadyForLaunch LifecycleState = "ready_for_launch"
	// StateLive is terminal.
	StateLive LifecycleState = "live"
)

// Valid reports whether s is a known lifecycle state.
func (s LifecycleState) Valid() bool {
	switch s {
	case StateFunding, StateReadyForLaunch, StateLive:
		return true
	}
	return false
}

// ParseLifecycleState converts a stored state name.
func ParseLifecycleState(raw string) (LifecycleState, error) {
	s := LifecycleState(raw)
	if !s.Valid() {
		return "", fmt.Errorf("unknown lifecycle state %q", raw)
	}
	return s, nil
}

// Pool is the authoritative snapshot of one bonding-curve pool.
type Pool struct {
	ID          string           `json:"id"`
	Asset       string           `json:"asset"`
	Supply      fixedpoint.Value `json:"supply"`
	Reserve     fixedpoint.Value `json:"reserve"`
	MaxSupply   fixedpoint.Value `json:"max_supply"`
	FundingGoal fixedpoint.Value `json:"funding_goal"`
	BasePrice   fixedpoint.Value `json:"base_price"`
	Steepness   fixedpoint.Value `json:"steepness"`
	State       LifecycleState   `json:"state"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}
