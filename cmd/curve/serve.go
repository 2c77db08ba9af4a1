package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"bondingCurve/internal/chain"
	"bondingCurve/internal/config"
	"bondingCurve/internal/metrics"
	"bondingCurve/internal/server"
	"bondingCurve/internal/settlement"
	"bondingCurve/internal/storage"
	"bondingCurve/internal/storage/memory"
	"bondingCurve/internal/storage/postgres"
	"bondingCurve/internal/storage/redis"
)

func runServe(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		return err
	}
	defaults, err := cfg.CurveDefaults()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(cfg.MetricsNamespace, reg)

	settleCfg := settlement.Config{
		MaxAttempts:  cfg.MaxAttempts,
		RetryBackoff: cfg.RetryBackoff,
		MaxBackoff:   cfg.MaxBackoff,
		Defaults:     defaults,
		Metrics:      m,
	}

	if cfg.RPCURL != "" {
		chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
		if err != nil {
			return fmt.Errorf("connect rpc: %w", err)
		}
		defer chainClient.Close()
		chainID, err := chainClient.GetChainID(ctx)
		if err != nil {
			return fmt.Errorf("get chain id: %w", err)
		}
		logger.Info("ledger connected", zap.String("chain_id", chainID.String()))
		settleCfg.Ledger = chainClient
		settleCfg.Holdings = chainClient
	}
	if cfg.AuditLog != "" {
		audit, err := storage.OpenJSONLAuditLog(cfg.AuditLog)
		if err != nil {
			return err
		}
		defer closer(audit)()
		settleCfg.Audit = audit
	}

	coordinator := settlement.NewCoordinator(settleCfg, store, logger)
	srv := server.New(server.Config{Addr: cfg.Listen}, coordinator, m, logger)

	logger.Info("curve serve start",
		zap.String("listen", cfg.Listen),
		zap.String("store", cfg.Store),
		zap.String("pg_dsn", redactDSN(cfg.PostgresDSN)),
		zap.String("redis_addr", cfg.RedisAddr),
		zap.Bool("ledger", cfg.RPCURL != ""),
		zap.String("audit_log", cfg.AuditLog),
		zap.Int("max_attempts", cfg.MaxAttempts),
		zap.Stringer("base_price", defaults.BasePrice),
		zap.Stringer("steepness", defaults.Steepness),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("curve serve stopped")
	return nil
}

// openStore connects the configured backend and returns its close function.
func openStore(ctx context.Context, cfg config.Config) (storage.PoolStore, func(), error) {
	switch cfg.Store {
	case config.StorePostgres:
		store, err := postgres.NewStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, nil, err
		}
		return store, store.Close, nil
	case config.StoreRedis:
		store, err := redis.NewStore(ctx, redis.ClientConfig{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			KeyPrefix: cfg.RedisKeyPrefix,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		return store, closer(store), nil
	default:
		return memory.NewStore(), func() {}, nil
	}
}

func closer(c io.Closer) func() {
	return func() { _ = c.Close() }
}
