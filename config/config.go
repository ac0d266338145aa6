package config

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration. It is loaded once in main and
// passed explicitly into each pipeline.
type Config struct {
	Exchange ExchangeConfig `yaml:"exchange"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Backtest BacktestConfig `yaml:"backtest"`
	Storage  StorageConfig  `yaml:"storage"`
	Redis    RedisConfig    `yaml:"redis"`

	MetricsAddr string         `yaml:"metrics_addr"` // empty disables the /metrics server
	WebhookURL  string         `yaml:"webhook_url"`  // empty logs run reports instead
	Telegram    TelegramConfig `yaml:"telegram"`
	LogLevel    string         `yaml:"log_level"`
}

// TelegramConfig enables run notifications to a Telegram chat when both
// fields are set.
type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
}

// Enabled reports whether both fields are set.
func (t TelegramConfig) Enabled() bool { return t.BotToken != "" && t.ChatID != "" }

// ExchangeConfig describes the market-data endpoint and paging.
type ExchangeConfig struct {
	BaseURL   string        `yaml:"base_url"`
	InstID    string        `yaml:"inst_id"` // e.g. BTC-USDT, also the stored symbol
	Bar       string        `yaml:"bar"`     // e.g. 1H
	PageLimit int           `yaml:"page_limit"`
	PageDelay time.Duration `yaml:"page_delay"`
	Timeout   time.Duration `yaml:"timeout"`
}

// IngestConfig controls the ingestion pipeline.
type IngestConfig struct {
	StartDate string      `yaml:"start_date"` // RFC3339, used when the store is empty
	Schedule  string      `yaml:"schedule"`   // cron spec with seconds; empty runs once
	MaxPages  int         `yaml:"max_pages"`  // 0 = until end of data
	Retry     RetryConfig `yaml:"retry"`
}

// RetryConfig selects how transient fetch failures are handled.
type RetryConfig struct {
	Policy          string        `yaml:"policy"` // "none" or "exponential"
	MaxAttempts     int           `yaml:"max_attempts"`
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
}

// BacktestConfig holds strategy and simulation parameters.
type BacktestConfig struct {
	FeeRate      float64 `yaml:"fee_rate"`
	SlippageRate float64 `yaml:"slippage_rate"`
	InitialCash  float64 `yaml:"initial_cash"`
	FastSpan     int     `yaml:"fast_span"`
	SlowSpan     int     `yaml:"slow_span"`
	SignalSpan   int     `yaml:"signal_span"`
}

// StorageConfig locates the candle store.
type StorageConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

// RedisConfig is optional; an empty Addr disables locking and report publishing.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	LockTTL  time.Duration `yaml:"lock_ttl"`
	// StreamMaxLen caps each runs:{symbol} report stream.
	StreamMaxLen int64 `yaml:"stream_max_len"`
}

const (
	RetryNone        = "none"
	RetryExponential = "exponential"
)

// Load starts from Defaults, overlays the YAML file (a missing file is fine)
// and then the environment. Keys absent from both keep their default, so an
// explicit zero such as fee_rate: 0 is kept.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Exchange.BaseURL = getEnv("OKX_BASE_URL", c.Exchange.BaseURL)
	c.Exchange.InstID = getEnv("INST_ID", c.Exchange.InstID)
	c.Exchange.Bar = getEnv("BAR", c.Exchange.Bar)
	c.Exchange.PageLimit = getEnvInt("PAGE_LIMIT", c.Exchange.PageLimit)
	c.Exchange.PageDelay = getEnvDuration("PAGE_DELAY", c.Exchange.PageDelay)

	c.Ingest.StartDate = getEnv("START_DATE", c.Ingest.StartDate)
	c.Ingest.Schedule = getEnv("INGEST_SCHEDULE", c.Ingest.Schedule)
	c.Ingest.Retry.Policy = getEnv("RETRY_POLICY", c.Ingest.Retry.Policy)
	c.Ingest.Retry.MaxAttempts = getEnvInt("RETRY_MAX_ATTEMPTS", c.Ingest.Retry.MaxAttempts)

	c.Backtest.FeeRate = getEnvFloat("FEE_RATE", c.Backtest.FeeRate)
	c.Backtest.SlippageRate = getEnvFloat("SLIPPAGE_RATE", c.Backtest.SlippageRate)
	c.Backtest.InitialCash = getEnvFloat("INITIAL_CASH", c.Backtest.InitialCash)
	c.Backtest.FastSpan = getEnvInt("FAST_SPAN", c.Backtest.FastSpan)
	c.Backtest.SlowSpan = getEnvInt("SLOW_SPAN", c.Backtest.SlowSpan)
	c.Backtest.SignalSpan = getEnvInt("SIGNAL_SPAN", c.Backtest.SignalSpan)

	c.Storage.SQLitePath = getEnv("SQLITE_PATH", c.Storage.SQLitePath)

	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)

	c.MetricsAddr = getEnv("METRICS_ADDR", c.MetricsAddr)
	c.WebhookURL = getEnv("WEBHOOK_URL", c.WebhookURL)
	c.Telegram.BotToken = getEnv("TELEGRAM_BOT_TOKEN", c.Telegram.BotToken)
	c.Telegram.ChatID = getEnv("TELEGRAM_CHAT_ID", c.Telegram.ChatID)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
}

// Defaults returns the built-in configuration: OKX BTC-USDT hourly bars,
// MACD(12, 26, 9), 0.1% fee, 0.05% slippage and 10,000 initial cash.
func Defaults() *Config {
	return &Config{
		Exchange: ExchangeConfig{
			BaseURL:   "https://www.okx.com",
			InstID:    "BTC-USDT",
			Bar:       "1H",
			PageLimit: 100,
			PageDelay: 500 * time.Millisecond,
			Timeout:   10 * time.Second,
		},
		Ingest: IngestConfig{
			StartDate: "2020-01-01T00:00:00Z",
			Retry: RetryConfig{
				Policy:          RetryNone,
				MaxAttempts:     5,
				InitialInterval: time.Second,
				MaxInterval:     30 * time.Second,
			},
		},
		Backtest: BacktestConfig{
			FeeRate:      0.001,
			SlippageRate: 0.0005,
			InitialCash:  10000,
			FastSpan:     12,
			SlowSpan:     26,
			SignalSpan:   9,
		},
		Storage: StorageConfig{SQLitePath: "data/candles.db"},
		Redis: RedisConfig{
			LockTTL:      10 * time.Minute,
			StreamMaxLen: 1000,
		},
		LogLevel: "info",
	}
}

// Validate checks that the loaded values are usable.
func (c *Config) Validate() error {
	if c.Exchange.PageDelay < 0 {
		return fmt.Errorf("exchange.page_delay must not be negative")
	}
	if c.Exchange.PageLimit <= 0 || c.Exchange.PageLimit > 300 {
		return fmt.Errorf("exchange.page_limit must be in 1..300, got %d", c.Exchange.PageLimit)
	}
	if _, err := c.StartTime(); err != nil {
		return err
	}
	switch c.Ingest.Retry.Policy {
	case RetryNone, RetryExponential:
	default:
		return fmt.Errorf("ingest.retry.policy must be %q or %q, got %q", RetryNone, RetryExponential, c.Ingest.Retry.Policy)
	}
	if c.Ingest.Retry.MaxAttempts < 1 {
		return fmt.Errorf("ingest.retry.max_attempts must be positive")
	}
	if c.Redis.Addr != "" && c.Redis.LockTTL <= 0 {
		return fmt.Errorf("redis.lock_ttl must be positive")
	}
	b := c.Backtest
	if b.FeeRate < 0 || b.FeeRate >= 1 {
		return fmt.Errorf("backtest.fee_rate must be in [0,1)")
	}
	if b.SlippageRate < 0 || b.SlippageRate >= 1 {
		return fmt.Errorf("backtest.slippage_rate must be in [0,1)")
	}
	if b.InitialCash <= 0 {
		return fmt.Errorf("backtest.initial_cash must be positive")
	}
	if b.FastSpan < 1 || b.SlowSpan < 1 || b.SignalSpan < 1 {
		return fmt.Errorf("backtest spans must be >= 1")
	}
	return nil
}

// StartTime parses Ingest.StartDate.
func (c *Config) StartTime() (time.Time, error) {
	t, err := time.Parse(time.RFC3339, c.Ingest.StartDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("ingest.start_date: %w", err)
	}
	return t.UTC(), nil
}

// SlogLevel maps LogLevel onto slog levels; unknown values fall back to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] ignoring invalid %s=%q", key, v)
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[config] ignoring invalid %s=%q", key, v)
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("[config] ignoring invalid %s=%q", key, v)
		return fallback
	}
	return d
}
