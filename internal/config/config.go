// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - New builds a Config with defaults; Load layers a YAML file and env vars on top.
// - Validate reports every problem wrapped in ErrInvalidConfig.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"
)

// Supported store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log handler: text, json or pretty.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// StoreDriver selects the rating store: memory, sqlite or postgres.
	StoreDriver string `koanf:"store_driver"`

	// SQLitePath is the database file used by the sqlite driver.
	SQLitePath string `koanf:"sqlite_path"`

	// PostgresDSN is the connection string used by the postgres driver.
	PostgresDSN string `koanf:"postgres_dsn"`

	// Glicko2 system constants.
	GlickoTau           float64 `koanf:"glicko_tau"`
	GlickoEpsilon       float64 `koanf:"glicko_epsilon"`
	GlickoMaxIterations int     `koanf:"glicko_max_iterations"`

	// WorkerCount bounds per-player parallelism inside one period.
	WorkerCount int `koanf:"worker_count"`

	// MaxLeaderboardLimit caps GET /leaderboard?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`

	// LeaderboardCacheTTLMS caches leaderboard pages. Zero disables the cache.
	LeaderboardCacheTTLMS int `koanf:"leaderboard_cache_ttl_ms"`

	// SchedulerEnabled turns the monthly automatic run on or off.
	SchedulerEnabled bool `koanf:"scheduler_enabled"`

	// ScheduleHour is the UTC hour of the monthly run on the 1st.
	ScheduleHour int `koanf:"schedule_hour"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:              "info",
		LogFormat:             "text",
		Addr:                  ":9080",
		StoreDriver:           DriverSQLite,
		SQLitePath:            "data/skillrank.db",
		GlickoTau:             0.5,
		GlickoEpsilon:         1e-6,
		GlickoMaxIterations:   100,
		WorkerCount:           runtime.NumCPU(),
		MaxLeaderboardLimit:   1000,
		LeaderboardCacheTTLMS: 5000,
		SchedulerEnabled:      true,
		ScheduleHour:          2,
	}
}

// LeaderboardCacheTTL returns the cache TTL as a duration.
func (c *Config) LeaderboardCacheTTL() time.Duration {
	return time.Duration(c.LeaderboardCacheTTLMS) * time.Millisecond
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if strings.TrimSpace(c.Addr) == "" {
		add("addr must not be empty")
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		add("unknown log_level %q", c.LogLevel)
	}
	switch c.LogFormat {
	case "text", "json", "pretty":
	default:
		add("unknown log_format %q", c.LogFormat)
	}
	switch c.StoreDriver {
	case DriverMemory:
	case DriverSQLite:
		if c.SQLitePath == "" {
			add("sqlite_path is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.PostgresDSN == "" {
			add("postgres_dsn is required for the postgres driver")
		}
	default:
		add("unknown store_driver %q", c.StoreDriver)
	}
	if c.GlickoTau <= 0 {
		add("glicko_tau must be positive")
	}
	if c.GlickoEpsilon <= 0 {
		add("glicko_epsilon must be positive")
	}
	if c.GlickoMaxIterations <= 0 {
		add("glicko_max_iterations must be positive")
	}
	if c.WorkerCount <= 0 {
		add("worker_count must be positive")
	}
	if c.MaxLeaderboardLimit <= 0 {
		add("max_leaderboard_limit must be positive")
	}
	if c.LeaderboardCacheTTLMS < 0 {
		add("leaderboard_cache_ttl_ms must not be negative")
	}
	if c.ScheduleHour < 0 || c.ScheduleHour > 23 {
		add("schedule_hour must be within 0..23")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}
