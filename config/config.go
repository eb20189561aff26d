// Package config loads process configuration from the environment and the
// YAML universe file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"signal-engine/internal/logger"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	LogLevel slog.Level

	// Market data
	ExchangeURL     string
	ExchangeRate    float64 // requests per second
	ExchangeBurst   int
	ExchangeTimeout time.Duration
	HistoryLimit    int

	// Infrastructure
	RedisAddr     string // empty disables publication
	RedisPassword string
	RedisDB       int
	SQLitePath    string
	MetricsAddr   string
	APIAddr       string

	// Notifications
	TelegramToken string
	TelegramChats []int64
	WebhookURL    string
	NotifyPeriod  time.Duration
	ClosedBars    bool

	// UniverseFile is the YAML file with symbols, extra strategies and the
	// notification watch list.
	UniverseFile string

	// Simulation defaults
	SimBalance  float64
	SimFeeRate  float64
	SimLimit    int
	SimParallel int
}

// Load reads configuration from environment variables with defaults.
// Malformed values are reported together.
func Load() (*Config, error) {
	var errs []error
	e := env{errs: &errs}

	cfg := &Config{
		LogLevel: logger.ParseLevel(getEnv("LOG_LEVEL", "info")),

		ExchangeURL:     getEnv("EXCHANGE_URL", "https://api.binance.com"),
		ExchangeRate:    e.float("EXCHANGE_RATE", 10),
		ExchangeBurst:   e.int("EXCHANGE_BURST", 10),
		ExchangeTimeout: e.duration("EXCHANGE_TIMEOUT", 10*time.Second),
		HistoryLimit:    e.int("HISTORY_LIMIT", 200),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       e.int("REDIS_DB", 0),
		SQLitePath:    getEnv("SQLITE_PATH", "data/results.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
		APIAddr:       getEnv("API_ADDR", ":8080"),

		TelegramToken: getEnv("TELEGRAM_TOKEN", ""),
		TelegramChats: e.int64s("TELEGRAM_CHAT_IDS"),
		WebhookURL:    getEnv("WEBHOOK_URL", ""),
		NotifyPeriod:  e.duration("NOTIFY_PERIOD", time.Minute),
		ClosedBars:    e.bool("CLOSED_BARS", true),

		UniverseFile: getEnv("UNIVERSE_FILE", "config/universe.yaml"),

		SimBalance:  e.float("SIM_BALANCE", 1000),
		SimFeeRate:  e.float("SIM_FEE_RATE", 0.001),
		SimLimit:    e.int("SIM_LIMIT", 500),
		SimParallel: e.int("SIM_PARALLEL", 4),
	}

	if cfg.HistoryLimit <= 0 {
		errs = append(errs, fmt.Errorf("HISTORY_LIMIT must be positive, got %d", cfg.HistoryLimit))
	}
	if cfg.NotifyPeriod <= 0 {
		errs = append(errs, fmt.Errorf("NOTIFY_PERIOD must be positive, got %s", cfg.NotifyPeriod))
	}
	if cfg.SimParallel <= 0 {
		errs = append(errs, fmt.Errorf("SIM_PARALLEL must be positive, got %d", cfg.SimParallel))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

type env struct {
	errs *[]error
}

func (e env) fail(key, v string, err error) {
	*e.errs = append(*e.errs, fmt.Errorf("%s=%q: %w", key, v, err))
}

func (e env) int(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, v, err)
		return fallback
	}
	return n
}

func (e env) float(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.fail(key, v, err)
		return fallback
	}
	return f
}

func (e env) bool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(key, v, err)
		return fallback
	}
	return b
}

func (e env) duration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(key, v, err)
		return fallback
	}
	return d
}

// int64s parses a comma-separated list, skipping blanks.
func (e env) int64s(key string) []int64 {
	v := os.Getenv(key)
	var out []int64
	for _, p := range strings.Split(v, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			e.fail(key, p, err)
			continue
		}
		out = append(out, n)
	}
	return out
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}
