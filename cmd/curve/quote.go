package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"bondingCurve/internal/config"
	"bondingCurve/internal/curve"
	"bondingCurve/internal/fixedpoint"
	"bondingCurve/internal/model"
	"bondingCurve/internal/pool"
)

func runQuote(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	defaults, err := cfg.CurveDefaults()
	if err != nil {
		return err
	}

	rawSupply, _ := cmd.Flags().GetString("supply")
	supply, err := fixedpoint.Parse(rawSupply)
	if err != nil {
		return fmt.Errorf("parse supply: %w", err)
	}

	p, err := pool.Create(pool.CreateParams{
		ID:          "offline",
		Asset:       "offline",
		MaxSupply:   defaults.MaxSupply,
		FundingGoal: defaults.FundingGoal,
		BasePrice:   defaults.BasePrice,
		Steepness:   defaults.Steepness,
	})
	if err != nil {
		return err
	}
	if supply.GreaterThan(p.MaxSupply) {
		return fmt.Errorf("supply %s exceeds max supply %s", supply, p.MaxSupply)
	}
	reserve, err := curve.Integral(pool.Params(p), supply)
	if err != nil {
		return err
	}
	p.Supply = supply
	p.Reserve = reserve

	var quote model.Quote
	if rawBudget, _ := cmd.Flags().GetString("budget"); rawBudget != "" {
		budget, err := fixedpoint.Parse(rawBudget)
		if err != nil {
			return fmt.Errorf("parse budget: %w", err)
		}
		quote, err = pool.QuoteBudget(p, budget)
		if err != nil {
			return err
		}
	} else {
		rawDir, _ := cmd.Flags().GetString("direction")
		dir, err := model.ParseDirection(strings.ToLower(rawDir))
		if err != nil {
			return err
		}
		rawAmount, _ := cmd.Flags().GetString("amount")
		amount, err := fixedpoint.Parse(rawAmount)
		if err != nil {
			return fmt.Errorf("parse amount: %w", err)
		}
		quote, err = pool.Quote(p, model.TradeRequest{PoolID: p.ID, Direction: dir, Amount: amount})
		if err != nil {
			return err
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(quote)
}
