// Package config loads memepool's configuration from the process
// environment. There is no config file layer: every setting in §6 of
// the spec is an environment variable, so Load is a thin env-var reader
// with defaults and validation, rather than the YAML-plus-env override
// pattern used elsewhere in the teaching corpus.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is memepool's runtime configuration.
type Config struct {
	// EthWSURL is the execution node's websocket RPC endpoint. Required.
	EthWSURL string

	// DBPath is the sqlite database file backing the Store.
	DBPath string

	// APIPort is the port the out-of-core HTTP surface listens on.
	APIPort int

	// EtherscanAPIKey optionally enables the Etherscan-style registry resolver.
	EtherscanAPIKey string

	// RateLimitMaxInFlight bounds concurrent in-flight RPC calls (§4.2).
	RateLimitMaxInFlight int

	// MempoolTTL is T_mempool, the maximum age of a pending tx (§4.5).
	MempoolTTL time.Duration

	// AnnotationTTL is the TxAnnotation cache TTL (§3, ≥ 1h).
	AnnotationTTL time.Duration

	// ContractCacheTTL is the optional ContractCacheEntry TTL (§9 Open Question).
	ContractCacheTTL time.Duration

	// ForecastTick is the Forecaster's periodic cadence (§4.9, 3s).
	ForecastTick time.Duration

	// BaseFeeWindow is the rolling window size W for the Base-Fee Oracle (§4.6).
	BaseFeeWindow int

	// StaleBlockThreshold is how many blocks behind head a prediction is
	// dropped as stale (§4.10 step 7).
	StaleBlockThreshold uint64
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		EthWSURL:             os.Getenv("ETH_WS_URL"),
		DBPath:               getEnvOr("DB_PATH", "memepool.db"),
		EtherscanAPIKey:      os.Getenv("ETHERSCAN_API_KEY"),
		RateLimitMaxInFlight: 50,
		MempoolTTL:           time.Hour,
		AnnotationTTL:        time.Hour,
		ContractCacheTTL:     24 * time.Hour,
		ForecastTick:         3 * time.Second,
		BaseFeeWindow:        10,
		StaleBlockThreshold:  5,
	}

	var err error
	if cfg.APIPort, err = getEnvIntOr("API_PORT", 3001); err != nil {
		return nil, fmt.Errorf("config error: API_PORT: %w", err)
	}
	if cfg.RateLimitMaxInFlight, err = getEnvIntOr("RATE_LIMIT_MAX_INFLIGHT", cfg.RateLimitMaxInFlight); err != nil {
		return nil, fmt.Errorf("config error: RATE_LIMIT_MAX_INFLIGHT: %w", err)
	}
	if cfg.MempoolTTL, err = getEnvDurationOr("MEMPOOL_TTL", cfg.MempoolTTL); err != nil {
		return nil, fmt.Errorf("config error: MEMPOOL_TTL: %w", err)
	}
	if cfg.AnnotationTTL, err = getEnvDurationOr("ANNOTATION_TTL", cfg.AnnotationTTL); err != nil {
		return nil, fmt.Errorf("config error: ANNOTATION_TTL: %w", err)
	}
	if cfg.ContractCacheTTL, err = getEnvDurationOr("CONTRACT_CACHE_TTL", cfg.ContractCacheTTL); err != nil {
		return nil, fmt.Errorf("config error: CONTRACT_CACHE_TTL: %w", err)
	}
	if cfg.ForecastTick, err = getEnvDurationOr("FORECAST_TICK", cfg.ForecastTick); err != nil {
		return nil, fmt.Errorf("config error: FORECAST_TICK: %w", err)
	}
	if cfg.BaseFeeWindow, err = getEnvIntOr("BASEFEE_WINDOW", cfg.BaseFeeWindow); err != nil {
		return nil, fmt.Errorf("config error: BASEFEE_WINDOW: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate enforces the invariants Load cannot express via defaults alone.
// Configuration errors are fatal at startup (§7 taxonomy item 6).
func (c *Config) Validate() error {
	if c.EthWSURL == "" {
		return fmt.Errorf("config error: ETH_WS_URL is required")
	}
	if c.AnnotationTTL < time.Hour {
		return fmt.Errorf("config error: ANNOTATION_TTL must be >= 1h, got %s", c.AnnotationTTL)
	}
	if c.ContractCacheTTL < 24*time.Hour {
		return fmt.Errorf("config error: CONTRACT_CACHE_TTL must be >= 24h, got %s", c.ContractCacheTTL)
	}
	if c.RateLimitMaxInFlight <= 0 {
		return fmt.Errorf("config error: RATE_LIMIT_MAX_INFLIGHT must be positive")
	}
	return nil
}

func getEnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvIntOr(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvDurationOr(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return time.ParseDuration(v)
}
