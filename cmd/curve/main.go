package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "curve",
		Short:        "Bonding-curve issuance and trade settlement",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the settlement HTTP API",
		RunE:  runServe,
	}

	serveCmd.Flags().String("listen", ":8080", "HTTP listen address")
	serveCmd.Flags().String("store", "memory", "pool store (memory, postgres, redis)")
	serveCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	serveCmd.Flags().String("redis-addr", "", "Redis address")
	serveCmd.Flags().String("redis-password", "", "Redis password")
	serveCmd.Flags().Int("redis-db", 0, "Redis database")
	serveCmd.Flags().String("redis-prefix", "curve", "Redis key prefix")
	serveCmd.Flags().String("rpc", "", "EVM RPC URL for trade submission and holder balances")
	serveCmd.Flags().String("audit-log", "", "optional JSONL file receiving committed trades")
	serveCmd.Flags().Int("max-attempts", 5, "settlement attempts per trade under contention")
	serveCmd.Flags().Duration("retry-backoff", 10*time.Millisecond, "initial retry backoff")
	serveCmd.Flags().Duration("max-backoff", time.Second, "maximum retry backoff")
	serveCmd.Flags().String("metrics-namespace", "curve", "Prometheus metric namespace")
	addCurveFlags(serveCmd)
	serveCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(serveCmd)

	quoteCmd := &cobra.Command{
		Use:   "quote",
		Short: "Price a trade against curve parameters without a store",
		RunE:  runQuote,
	}

	quoteCmd.Flags().String("direction", "buy", "trade direction (buy, sell)")
	quoteCmd.Flags().String("amount", "", "token amount")
	quoteCmd.Flags().String("budget", "", "base currency budget (buy only, replaces amount)")
	quoteCmd.Flags().String("supply", "0", "current circulating supply")
	addCurveFlags(quoteCmd)
	quoteCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(quoteCmd)

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the Postgres schema",
		RunE:  runMigrate,
	}

	migrateCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	migrateCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(migrateCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addCurveFlags(cmd *cobra.Command) {
	cmd.Flags().String("base-price", "30000", "default base price")
	cmd.Flags().String("steepness", "0.000001", "default steepness k")
	cmd.Flags().String("max-supply", "1000000", "default max supply")
	cmd.Flags().String("funding-goal", "100000000", "default funding goal")
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}
