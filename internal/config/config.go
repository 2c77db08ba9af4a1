package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"bondingCurve/internal/fixedpoint"
	"bondingCurve/internal/settlement"
)

// Store backends accepted by the "store" key.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	Listen           string
	Store            string
	PostgresDSN      string
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	RedisKeyPrefix   string
	RPCURL           string
	AuditLog         string
	MaxAttempts      int
	RetryBackoff     time.Duration
	MaxBackoff       time.Duration
	LogLevel         string
	MetricsNamespace string

	BasePrice   string
	Steepness   string
	MaxSupply   string
	FundingGoal string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CURVE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("listen", ":8080")
	v.SetDefault("store", StoreMemory)
	v.SetDefault("redis-db", 0)
	v.SetDefault("redis-prefix", "curve")
	v.SetDefault("max-attempts", 5)
	v.SetDefault("retry-backoff", 10*time.Millisecond)
	v.SetDefault("max-backoff", time.Second)
	v.SetDefault("log-level", "info")
	v.SetDefault("metrics-namespace", "curve")
	v.SetDefault("base-price", "30000")
	v.SetDefault("steepness", "0.000001")
	v.SetDefault("max-supply", "1000000")
	v.SetDefault("funding-goal", "100000000")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		Listen:           v.GetString("listen"),
		Store:            strings.ToLower(strings.TrimSpace(v.GetString("store"))),
		PostgresDSN:      v.GetString("pg-dsn"),
		RedisAddr:        v.GetString("redis-addr"),
		RedisPassword:    v.GetString("redis-password"),
		RedisDB:          v.GetInt("redis-db"),
		RedisKeyPrefix:   v.GetString("redis-prefix"),
		RPCURL:           v.GetString("rpc"),
		AuditLog:         v.GetString("audit-log"),
		MaxAttempts:      v.GetInt("max-attempts"),
		RetryBackoff:     v.GetDuration("retry-backoff"),
		MaxBackoff:       v.GetDuration("max-backoff"),
		LogLevel:         v.GetString("log-level"),
		MetricsNamespace: v.GetString("metrics-namespace"),
		BasePrice:        v.GetString("base-price"),
		Steepness:        v.GetString("steepness"),
		MaxSupply:        v.GetString("max-supply"),
		FundingGoal:      v.GetString("funding-goal"),
	}

	return cfg, nil
}

// Validate checks that the selected store has what it needs to connect.
func (c Config) Validate() error {
	switch c.Store {
	case StoreMemory:
	case StorePostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("store %q requires pg-dsn", c.Store)
		}
	case StoreRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("store %q requires redis-addr", c.Store)
		}
	default:
		return fmt.Errorf("unknown store %q (want memory, postgres or redis)", c.Store)
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("max-attempts must be positive")
	}
	_, err := c.CurveDefaults()
	return err
}

// CurveDefaults parses the configured curve parameters.
func (c Config) CurveDefaults() (settlement.PoolDefaults, error) {
	var d settlement.PoolDefaults
	fields := []struct {
		key string
		raw string
		dst *fixedpoint.Value
	}{
		{"base-price", c.BasePrice, &d.BasePrice},
		{"steepness", c.Steepness, &d.Steepness},
		{"max-supply", c.MaxSupply, &d.MaxSupply},
		{"funding-goal", c.FundingGoal, &d.FundingGoal},
	}
	for _, f := range fields {
		v, err := fixedpoint.Parse(strings.TrimSpace(f.raw))
		if err != nil {
			return settlement.PoolDefaults{}, fmt.Errorf("parse %s: %w", f.key, err)
		}
		*f.dst = v
	}
	return d, nil
}
