// Package config provides centralized configuration loaded from environment
// variables. Shared by every cmd/watcher subcommand.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Table names (must match internal/db/migrations)
// --------------------------------------------------------------------------

const (
	LedgerTable = "ledger_records"
	EventsTable = "achievement_events"
)

// MinRecordBytes is the smallest accepted MAX_RECORD_BYTES. Below it even a
// record stripped to identity and counts may not fit, and every save would
// fail after its notifications were sent.
const MinRecordBytes = 1024

// --------------------------------------------------------------------------
// Errors
// --------------------------------------------------------------------------

// Error is a missing or invalid setting. It is returned before any unit
// runs, so callers can tell it apart from per-unit runtime failures.
type Error struct {
	Key    string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config %s: %s", e.Key, e.Reason)
}

// --------------------------------------------------------------------------
// Config struct, populated from environment variables
// --------------------------------------------------------------------------

type Config struct {
	// Provider
	SteamAPIKey            string
	SteamBaseURL           string
	SteamRequestsPerMinute int
	UserIDs                []string

	// Notification sink
	DiscordWebhookURL        string
	DiscordRequestsPerMinute int

	// Reconciliation core
	RecentWindow      time.Duration
	WorkerConcurrency int
	MaxRecordBytes    int

	// Event log
	EventLogEnabled     bool
	EventRetentionWeeks int

	// Database
	DatabaseURL    string
	DBPoolMinConns int
	DBPoolMaxConns int
	DBPoolMaxLife  time.Duration
	DBAutoMigrate  bool

	// Serve mode
	PollInterval      time.Duration
	APIHost           string
	APIPort           int
	CORSAllowOrigins  []string
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration

	LogLevel slog.Level
}

// Load reads configuration from environment variables with sensible defaults.
// requireDB=false allows ephemeral runs without DATABASE_URL.
func Load(requireDB bool) (*Config, error) {
	return LoadWithUsers(requireDB, nil)
}

// LoadWithUsers is Load with userIDs, when non-empty, replacing
// STEAM_USER_IDS before validation.
func LoadWithUsers(requireDB bool, userIDs []string) (*Config, error) {
	cfg := fromEnv()
	if len(userIDs) > 0 {
		cfg.UserIDs = dedupe(userIDs)
	}
	if err := cfg.validate(requireDB); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDatabase reads the same environment but only requires DATABASE_URL.
// Used by commands that never reach the provider or the sink.
func LoadDatabase() (*Config, error) {
	cfg := fromEnv()
	if cfg.DatabaseURL == "" {
		return nil, &Error{Key: "DATABASE_URL", Reason: "must be set"}
	}
	return cfg, nil
}

func fromEnv() *Config {
	return &Config{
		SteamAPIKey:            envOr("STEAM_API_KEY", ""),
		SteamBaseURL:           envOr("STEAM_API_BASE_URL", "https://api.steampowered.com"),
		SteamRequestsPerMinute: envInt("STEAM_REQUESTS_PER_MINUTE", 200),
		UserIDs:                dedupe(envList("STEAM_USER_IDS", nil)),

		DiscordWebhookURL:        envOr("DISCORD_WEBHOOK_URL", ""),
		DiscordRequestsPerMinute: envInt("DISCORD_REQUESTS_PER_MINUTE", 30),

		RecentWindow:      time.Duration(envInt("RECENT_WINDOW_SECONDS", 3600)) * time.Second,
		WorkerConcurrency: envInt("WORKER_CONCURRENCY", 4),
		MaxRecordBytes:    envInt("MAX_RECORD_BYTES", 400_000),

		EventLogEnabled:     envBool("EVENT_LOG_ENABLED", true),
		EventRetentionWeeks: envInt("EVENT_RETENTION_WEEKS", 12),

		DatabaseURL:    envOr("DATABASE_URL", ""),
		DBPoolMinConns: envInt("DB_POOL_MIN_CONNS", 1),
		DBPoolMaxConns: envInt("DB_POOL_MAX_CONNS", 5),
		DBPoolMaxLife:  time.Duration(envInt("DB_POOL_MAX_LIFE_MINUTES", 30)) * time.Minute,
		DBAutoMigrate:  envBool("DB_AUTO_MIGRATE", true),

		PollInterval: time.Duration(envInt("POLL_INTERVAL_SECONDS", 300)) * time.Second,
		APIHost:      envOr("API_HOST", "0.0.0.0"),
		APIPort:      envInt("API_PORT", envInt("PORT", 8080)),

		CORSAllowOrigins: envList("CORS_ALLOW_ORIGINS", []string{
			"http://localhost:3000",
			"http://localhost:5173",
		}),

		RateLimitEnabled:  envBool("RATE_LIMIT_ENABLED", true),
		RateLimitRequests: envInt("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   time.Duration(envInt("RATE_LIMIT_WINDOW", 60)) * time.Second,

		LogLevel: envLevel("LOG_LEVEL", slog.LevelInfo),
	}
}

func (c *Config) validate(requireDB bool) error {
	switch {
	case c.SteamAPIKey == "":
		return &Error{Key: "STEAM_API_KEY", Reason: "must be set"}
	case len(c.UserIDs) == 0:
		return &Error{Key: "STEAM_USER_IDS", Reason: "must list at least one user id"}
	case c.DiscordWebhookURL == "":
		return &Error{Key: "DISCORD_WEBHOOK_URL", Reason: "must be set"}
	case requireDB && c.DatabaseURL == "":
		return &Error{Key: "DATABASE_URL", Reason: "must be set"}
	case c.RecentWindow <= 0:
		return &Error{Key: "RECENT_WINDOW_SECONDS", Reason: "must be positive"}
	case c.WorkerConcurrency < 1:
		return &Error{Key: "WORKER_CONCURRENCY", Reason: "must be at least 1"}
	case c.MaxRecordBytes < 0:
		return &Error{Key: "MAX_RECORD_BYTES", Reason: "must not be negative"}
	case c.MaxRecordBytes > 0 && c.MaxRecordBytes < MinRecordBytes:
		return &Error{Key: "MAX_RECORD_BYTES", Reason: fmt.Sprintf("must be 0 (unlimited) or at least %d", MinRecordBytes)}
	}
	return nil
}

// RecentWindowSeconds returns the recency window in whole seconds.
func (c *Config) RecentWindowSeconds() int64 {
	return int64(c.RecentWindow / time.Second)
}

// --------------------------------------------------------------------------
// Env helpers
// --------------------------------------------------------------------------

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}

func envLevel(key string, fallback slog.Level) slog.Level {
	if v := os.Getenv(key); v != "" {
		var l slog.Level
		if err := l.UnmarshalText([]byte(v)); err == nil {
			return l
		}
	}
	return fallback
}

// dedupe keeps the first occurrence of each id, so a user is never processed
// by two workers in the same batch.
func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
