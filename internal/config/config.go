// Package config assembles runtime settings from an optional .env file, the
// environment and command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// MaxRetries bounds the retries per provider request.
const MaxRetries = 10

type Config struct {
	Addr       string
	DBPath     string
	BackendURL string
	ProxyURL   string

	YahooBaseURL   string
	DIABaseURL     string
	BinanceBaseURL string
	QuoteCurrency  string

	// FinnhubAPIKey enables the quote and recommendation insights when set.
	FinnhubAPIKey  string
	FinnhubBaseURL string

	PollInterval      time.Duration
	CurrentPriceTTL   time.Duration
	ReferencePriceTTL time.Duration
	InsightsTTL       time.Duration

	RetryMax    int
	RetryDelay  time.Duration
	HTTPTimeout time.Duration

	LogLevel string
}

// LoadEnvFile loads path into the process environment without overriding
// variables that are already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	err := godotenv.Load(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

// Defaults returns the configuration read from the environment only.
func Defaults() (Config, error) {
	c := Config{
		Addr:           envOr("ADDR", ":8080"),
		DBPath:         envOr("DB_PATH", "./stockfolio.db"),
		BackendURL:     os.Getenv("BACKEND_URL"),
		ProxyURL:       os.Getenv("PROXY_URL"),
		YahooBaseURL:   envOr("YAHOO_BASE_URL", "https://query1.finance.yahoo.com"),
		DIABaseURL:     envOr("DIA_BASE_URL", "https://api.diadata.org"),
		BinanceBaseURL: envOr("BINANCE_BASE_URL", "https://api.binance.com"),
		QuoteCurrency:  envOr("QUOTE_CURRENCY", "USDT"),
		FinnhubAPIKey:  os.Getenv("FINNHUB_API_KEY"),
		FinnhubBaseURL: envOr("FINNHUB_BASE_URL", "https://finnhub.io/api/v1"),
		LogLevel:       envOr("LOG_LEVEL", "info"),
	}

	var errs []error
	var err error
	if c.PollInterval, err = envDuration("POLL_INTERVAL", 5*time.Minute); err != nil {
		errs = append(errs, err)
	}
	if c.CurrentPriceTTL, err = envDuration("CURRENT_PRICE_TTL", 5*time.Minute); err != nil {
		errs = append(errs, err)
	}
	if c.ReferencePriceTTL, err = envDuration("REFERENCE_PRICE_TTL", 23*time.Hour); err != nil {
		errs = append(errs, err)
	}
	if c.InsightsTTL, err = envDuration("INSIGHTS_TTL", 5*time.Minute); err != nil {
		errs = append(errs, err)
	}
	if c.RetryDelay, err = envDuration("RETRY_DELAY", time.Second); err != nil {
		errs = append(errs, err)
	}
	if c.HTTPTimeout, err = envDuration("HTTP_TIMEOUT", 15*time.Second); err != nil {
		errs = append(errs, err)
	}
	if c.RetryMax, err = envInt("RETRY_MAX", 3); err != nil {
		errs = append(errs, err)
	}
	if err := multierr.Combine(errs...); err != nil {
		return Config{}, fmt.Errorf("invalid environment: %w", err)
	}
	return c, nil
}

// RegisterFlags binds flags on f whose defaults are the values already in c.
func (c *Config) RegisterFlags(f *flag.FlagSet) {
	f.StringVar(&c.Addr, "addr", c.Addr, "server listen address")
	f.StringVar(&c.DBPath, "db", c.DBPath, "sqlite database file")
	f.StringVar(&c.BackendURL, "backend", c.BackendURL, "base URL of the remote /stocks service; empty uses the local database")
	f.StringVar(&c.ProxyURL, "proxy", c.ProxyURL, "URL prefix prepended to equity provider requests")
	f.StringVar(&c.QuoteCurrency, "quote", c.QuoteCurrency, "quote asset for crypto pairs")
	f.DurationVar(&c.PollInterval, "poll", c.PollInterval, "dashboard refresh interval")
	f.IntVar(&c.RetryMax, "retries", c.RetryMax, "retries per provider request")
	f.StringVar(&c.LogLevel, "log-level", c.LogLevel, "debug, info, warn or error")
}

func (c Config) Validate() error {
	switch {
	case c.RetryMax < 0:
		return errors.New("retries cannot be negative")
	case c.RetryMax > MaxRetries:
		return fmt.Errorf("retries cannot exceed %d", MaxRetries)
	case c.PollInterval <= 0:
		return errors.New("poll interval must be positive")
	case c.QuoteCurrency == "":
		return errors.New("quote currency is required")
	}
	return nil
}

// Logger builds a production zap logger at the configured level, or a
// development logger at debug level.
func (c Config) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	if level == zapcore.DebugLevel {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	return cfg.Build()
}
