// Package config provides centralized configuration loaded from environment
// variables. Shared by every ctfbot subcommand.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Config struct — populated from environment variables
// --------------------------------------------------------------------------

type Config struct {
	// Discord
	DiscordToken string
	GuildIDs     []string // optional allowlist; empty means every joined guild

	// Database. Empty URL selects the in-memory store (no persistence).
	DatabaseURL    string
	DBPoolMinConns int
	DBPoolMaxConns int
	DBPoolMaxLife  time.Duration

	// CTFtime directory. Empty base URL keeps the public endpoint.
	CTFtimeBaseURL string

	// Scheduler
	ReminderInterval time.Duration
	ImportInterval   time.Duration
	PurgeInterval    time.Duration
	SweepWorkers     int

	// Status API server
	APIHost          string
	APIPort          int
	APIEnabled       bool
	CORSAllowOrigins []string

	// Rate limiting
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration

	Environment string // development, staging, production
	Debug       bool
}

// Load reads configuration from environment variables with sensible defaults.
// Only the Discord token is mandatory, and only for commands that connect.
func Load() (*Config, error) {
	return &Config{
		DiscordToken: envOr("DISCORD_TOKEN", ""),
		GuildIDs:     envList("GUILD_IDS", nil),

		DatabaseURL:    envOr("DATABASE_URL", ""),
		DBPoolMinConns: envInt("DB_POOL_MIN_CONNS", 2),
		DBPoolMaxConns: envInt("DB_POOL_MAX_CONNS", 10),
		DBPoolMaxLife:  time.Duration(envInt("DB_POOL_MAX_LIFE_MINUTES", 30)) * time.Minute,

		CTFtimeBaseURL: envOr("CTFTIME_BASE_URL", ""),

		ReminderInterval: time.Duration(envInt("REMINDER_INTERVAL_SECONDS", 660)) * time.Second,
		ImportInterval:   time.Duration(envInt("IMPORT_INTERVAL_MINUTES", 60)) * time.Minute,
		PurgeInterval:    time.Duration(envInt("PURGE_INTERVAL_MINUTES", 60)) * time.Minute,
		SweepWorkers:     envInt("SWEEP_WORKERS", 4),

		APIHost:    envOr("API_HOST", "0.0.0.0"),
		APIPort:    envInt("API_PORT", envInt("PORT", 8090)),
		APIEnabled: envBool("API_ENABLED", true),
		CORSAllowOrigins: envList("CORS_ALLOW_ORIGINS", []string{
			"http://localhost:3000",
		}),

		RateLimitEnabled:  envBool("RATE_LIMIT_ENABLED", true),
		RateLimitRequests: envInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow:   time.Duration(envInt("RATE_LIMIT_WINDOW", 60)) * time.Second,

		Environment: envOr("ENVIRONMENT", "development"),
		Debug:       envBool("DEBUG", false),
	}, nil
}

// RequireToken fails when no Discord token is configured. Headless
// subcommands (one-shot import, event listing) never call it.
func (c *Config) RequireToken() error {
	if c.DiscordToken == "" {
		return fmt.Errorf("DISCORD_TOKEN must be set")
	}
	return nil
}

// IsProduction returns true if running in production environment.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
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
