// Package config resolves the aggregator's runtime configuration. Values are
// layered: compiled defaults first, then an optional YAML file, then
// environment variables. A .env file in the working directory is folded into
// the environment before parsing.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/Faisal-imtiyaz123/meme-coin-aggregrator/internal/errs"
	"github.com/Faisal-imtiyaz123/meme-coin-aggregrator/internal/ratelimit"
	"github.com/Faisal-imtiyaz123/meme-coin-aggregrator/internal/upstream"
)

// Cache backends accepted by CacheConfig.Backend.
const (
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config is the full runtime configuration for the aggregator process.
type Config struct {
	ListenAddr string `env:"LISTEN_ADDR" yaml:"listen_addr"`
	LogLevel   string `env:"LOG_LEVEL" yaml:"log_level"`

	// NATSURL enables the NATS event sink when non-empty.
	NATSURL string `env:"NATS_URL" yaml:"nats_url"`

	FetchTimeout Duration `env:"FETCH_TIMEOUT" yaml:"fetch_timeout"`
	BatchSize    int      `env:"BATCH_SIZE" yaml:"batch_size"`
	MaxTokens    int      `env:"MAX_TOKENS" yaml:"max_tokens"`

	Cache     CacheConfig     `yaml:"cache"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Retry     RetryConfig     `yaml:"retry"`

	DexScreener UpstreamConfig `envPrefix:"DEXSCREENER_" yaml:"dexscreener"`
	CoinGecko   UpstreamConfig `envPrefix:"COINGECKO_" yaml:"coingecko"`
}

// CacheConfig selects and tunes the snapshot store backend.
type CacheConfig struct {
	Backend      string   `env:"CACHE_BACKEND" yaml:"backend"`
	RedisURL     string   `env:"REDIS_URL" yaml:"redis_url"`
	TTL          Duration `env:"CACHE_TTL" yaml:"ttl"`
	PerTokenKeys int      `env:"PER_TOKEN_KEYS" yaml:"per_token_keys"`
}

// SchedulerConfig tunes the refresh loop.
type SchedulerConfig struct {
	Interval     Duration `env:"UPDATE_INTERVAL" yaml:"interval"`
	InitialDelay Duration `env:"INITIAL_DELAY" yaml:"initial_delay"`
}

// RetryConfig tunes upstream fetch retries.
type RetryConfig struct {
	MaxAttempts int      `env:"RETRY_MAX_ATTEMPTS" yaml:"max_attempts"`
	BaseDelay   Duration `env:"RETRY_BASE_DELAY" yaml:"base_delay"`
}

// UpstreamConfig describes one provider endpoint and its request budget.
type UpstreamConfig struct {
	BaseURL    string   `env:"BASE_URL" yaml:"base_url"`
	RateLimit  int      `env:"RATE_LIMIT" yaml:"rate_limit"`
	RateWindow Duration `env:"RATE_WINDOW" yaml:"rate_window"`
}

// Defaults returns the configuration the process runs with when nothing is
// overridden.
func Defaults() Config {
	return Config{
		ListenAddr:   ":8080",
		LogLevel:     "info",
		FetchTimeout: Duration(10 * time.Second),
		BatchSize:    50,
		MaxTokens:    1000,
		Cache: CacheConfig{
			Backend:      BackendRedis,
			RedisURL:     "redis://localhost:6379/0",
			TTL:          Duration(30 * time.Second),
			PerTokenKeys: 100,
		},
		Scheduler: SchedulerConfig{
			Interval:     Duration(10 * time.Second),
			InitialDelay: Duration(time.Second),
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   Duration(time.Second),
		},
		DexScreener: UpstreamConfig{
			BaseURL:    "https://api.dexscreener.com/latest/dex",
			RateLimit:  300,
			RateWindow: Duration(time.Minute),
		},
		CoinGecko: UpstreamConfig{
			BaseURL:    "https://api.coingecko.com/api/v3",
			RateLimit:  50,
			RateWindow: Duration(time.Minute),
		},
	}
}

// Load resolves the process configuration. The YAML file is optional: an
// explicit path wins, otherwise CONFIG_FILE names one, otherwise only
// defaults and environment variables apply.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Defaults()

	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, &errs.ConfigError{Field: "config_file", Reason: err.Error()}
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, &errs.ConfigError{Field: "config_file", Reason: fmt.Sprintf("parse %s: %v", path, err)}
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, &errs.ConfigError{Field: "environment", Reason: err.Error()}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every field the process cannot run without.
func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return &errs.ConfigError{Field: "listen_addr", Reason: "must not be empty"}
	}
	if c.LogLevel == "" {
		return &errs.ConfigError{Field: "log_level", Reason: "must not be empty"}
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return &errs.ConfigError{Field: "log_level", Reason: fmt.Sprintf("unknown level %q", c.LogLevel)}
	}
	if c.FetchTimeout <= 0 {
		return &errs.ConfigError{Field: "fetch_timeout", Reason: "must be positive"}
	}
	if c.BatchSize <= 0 {
		return &errs.ConfigError{Field: "batch_size", Reason: "must be positive"}
	}
	if c.MaxTokens <= 0 {
		return &errs.ConfigError{Field: "max_tokens", Reason: "must be positive"}
	}
	switch c.Cache.Backend {
	case BackendRedis:
		if c.Cache.RedisURL == "" {
			return &errs.ConfigError{Field: "redis_url", Reason: "required when cache backend is redis"}
		}
	case BackendMemory:
	default:
		return &errs.ConfigError{Field: "cache_backend", Reason: fmt.Sprintf("must be %q or %q, got %q", BackendRedis, BackendMemory, c.Cache.Backend)}
	}
	if c.Cache.TTL <= 0 {
		return &errs.ConfigError{Field: "cache_ttl", Reason: "must be positive"}
	}
	if c.Cache.PerTokenKeys <= 0 {
		return &errs.ConfigError{Field: "per_token_keys", Reason: "must be positive"}
	}
	if c.Scheduler.Interval <= 0 {
		return &errs.ConfigError{Field: "update_interval", Reason: "must be positive"}
	}
	if c.Scheduler.InitialDelay < 0 {
		return &errs.ConfigError{Field: "initial_delay", Reason: "must not be negative"}
	}
	if c.Retry.MaxAttempts < 1 {
		return &errs.ConfigError{Field: "retry_max_attempts", Reason: "must be at least 1"}
	}
	if c.Retry.BaseDelay <= 0 {
		return &errs.ConfigError{Field: "retry_base_delay", Reason: "must be positive"}
	}
	if err := c.DexScreener.validate("dexscreener"); err != nil {
		return err
	}
	if err := c.CoinGecko.validate("coingecko"); err != nil {
		return err
	}
	return nil
}

func (u UpstreamConfig) validate(name string) error {
	if u.BaseURL == "" {
		return &errs.ConfigError{Field: name + "_base_url", Reason: "must not be empty"}
	}
	if u.RateLimit <= 0 {
		return &errs.ConfigError{Field: name + "_rate_limit", Reason: "must be positive"}
	}
	if u.RateWindow <= 0 {
		return &errs.ConfigError{Field: name + "_rate_window", Reason: "must be positive"}
	}
	return nil
}

// Level returns the parsed log level. Call after Validate.
func (c Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}

// RateBudgets maps upstream tags to their request budgets for the limiter.
func (c Config) RateBudgets() map[string]ratelimit.Budget {
	return map[string]ratelimit.Budget{
		upstream.TagDexScreener: {Points: c.DexScreener.RateLimit, Duration: c.DexScreener.RateWindow.Std()},
		upstream.TagCoinGecko:   {Points: c.CoinGecko.RateLimit, Duration: c.CoinGecko.RateWindow.Std()},
	}
}

// DexScreenerAdapter builds the upstream client settings for DexScreener.
func (c Config) DexScreenerAdapter() upstream.AdapterConfig {
	return c.adapterConfig(c.DexScreener)
}

// CoinGeckoAdapter builds the upstream client settings for CoinGecko.
func (c Config) CoinGeckoAdapter() upstream.AdapterConfig {
	return c.adapterConfig(c.CoinGecko)
}

func (c Config) adapterConfig(u UpstreamConfig) upstream.AdapterConfig {
	return upstream.AdapterConfig{
		BaseURL:   u.BaseURL,
		Timeout:   c.FetchTimeout.Std(),
		BatchSize: c.BatchSize,
	}
}
