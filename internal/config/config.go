// Package config loads contractbot settings from the environment.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/szaher/contractbot/internal/auth"
	"github.com/szaher/contractbot/internal/session"
	"github.com/szaher/contractbot/internal/store"
	"github.com/szaher/contractbot/internal/telemetry"
	"github.com/szaher/contractbot/internal/validation"
)

// Config holds all application configuration.
type Config struct {
	Addr          string
	APIKey        string
	RateLimit     auth.RateLimitConfig
	Store         string
	SQLitePath    string
	DatabaseURL   string
	SeedDemo      bool
	Dictionary    string
	FlowTimeout   time.Duration
	IdleTimeout   time.Duration
	SweepSchedule string
	MaxAttempts   int
	HistoryLimit  int
	LogLevel      slog.Level
	// IdentifierCacheTTL of zero disables the lookup cache.
	IdentifierCacheTTL time.Duration
}

// Load reads configuration from environment variables. Files named in
// envFiles are loaded first without overriding variables already set; a
// missing file is not an error.
func Load(envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	level, err := telemetry.ParseLevel(getEnv("CONTRACTBOT_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	rate, err := auth.ParseRateLimit(getEnv("CONTRACTBOT_RATE_LIMIT", ""))
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: CONTRACTBOT_RATE_LIMIT: %w", err)
	}

	cfg := &Config{
		Addr:               getEnv("CONTRACTBOT_ADDR", ":8080"),
		APIKey:             getEnv("CONTRACTBOT_API_KEY", ""),
		RateLimit:          rate,
		Store:              strings.ToLower(getEnv("CONTRACTBOT_STORE", store.DriverMemory)),
		SQLitePath:         getEnv("CONTRACTBOT_SQLITE_PATH", "contractbot.db"),
		DatabaseURL:        getEnv("CONTRACTBOT_DATABASE_URL", ""),
		SeedDemo:           getEnvBool("CONTRACTBOT_SEED_DEMO", true),
		Dictionary:         getEnv("CONTRACTBOT_DICTIONARY", ""),
		FlowTimeout:        getEnvDuration("CONTRACTBOT_FLOW_TIMEOUT", session.DefaultFlowTimeout),
		IdleTimeout:        getEnvDuration("CONTRACTBOT_IDLE_TIMEOUT", session.DefaultIdleTimeout),
		SweepSchedule:      getEnv("CONTRACTBOT_SWEEP_SCHEDULE", session.DefaultSweepSchedule),
		MaxAttempts:        getEnvInt("CONTRACTBOT_MAX_ATTEMPTS", validation.DefaultMaxAttempts),
		HistoryLimit:       getEnvInt("CONTRACTBOT_HISTORY_LIMIT", session.DefaultHistoryLimit),
		LogLevel:           level,
		IdentifierCacheTTL: getEnvDuration("CONTRACTBOT_IDENTIFIER_CACHE_TTL", store.DefaultIdentifierCacheTTL),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("CONTRACTBOT_ADDR cannot be empty")
	}
	switch c.Store {
	case store.DriverMemory:
	case store.DriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("CONTRACTBOT_SQLITE_PATH is required for the sqlite store")
		}
	case store.DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("CONTRACTBOT_DATABASE_URL is required for the postgres store")
		}
	default:
		return fmt.Errorf("CONTRACTBOT_STORE must be memory, sqlite or postgres, got %q", c.Store)
	}
	if c.FlowTimeout <= 0 {
		return fmt.Errorf("CONTRACTBOT_FLOW_TIMEOUT must be > 0")
	}
	if c.IdleTimeout <= 0 {
		return fmt.Errorf("CONTRACTBOT_IDLE_TIMEOUT must be > 0")
	}
	if _, err := cron.ParseStandard(c.SweepSchedule); err != nil {
		return fmt.Errorf("CONTRACTBOT_SWEEP_SCHEDULE: %w", err)
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("CONTRACTBOT_MAX_ATTEMPTS must be > 0")
	}
	if c.HistoryLimit <= 0 {
		return fmt.Errorf("CONTRACTBOT_HISTORY_LIMIT must be > 0")
	}
	if c.IdentifierCacheTTL < 0 {
		return fmt.Errorf("CONTRACTBOT_IDENTIFIER_CACHE_TTL cannot be negative")
	}
	return nil
}

// StoreOptions returns the store settings.
func (c *Config) StoreOptions(logger *slog.Logger) store.Options {
	return store.Options{
		Driver:      c.Store,
		SQLitePath:  c.SQLitePath,
		DatabaseURL: c.DatabaseURL,
		SeedDemo:    c.SeedDemo,
		Logger:      logger,
	}
}

// RegistryOptions returns the session registry settings.
func (c *Config) RegistryOptions() []session.Option {
	return []session.Option{
		session.WithFlowTimeout(c.FlowTimeout),
		session.WithIdleTimeout(c.IdleTimeout),
		session.WithSweepSchedule(c.SweepSchedule),
		session.WithHistoryLimit(c.HistoryLimit),
	}
}

// Secrets returns the configured credentials that must never reach a log:
// the API key and the password in the database URL.
func (c *Config) Secrets() []string {
	var out []string
	if c.APIKey != "" {
		out = append(out, c.APIKey)
	}
	if u, err := url.Parse(c.DatabaseURL); err == nil && u.User != nil {
		if pw, ok := u.User.Password(); ok && pw != "" {
			out = append(out, pw)
		}
	}
	return out
}

// Retry returns the attempt ceiling.
func (c *Config) Retry() validation.RetryConfig {
	return validation.RetryConfig{MaxAttempts: c.MaxAttempts}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
