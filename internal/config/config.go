// Package config provides centralized configuration loaded from environment
// variables. Shared by both cmd/api and cmd/jobs.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Table names, matching sql/schema.sql
// --------------------------------------------------------------------------

const (
	FacilitySnapshotsTable = "facility_snapshots"
	WaitlistSnapshotsTable = "waitlist_snapshots"
	SubscriptionsTable     = "to_subscriptions"
	AlertsTable            = "to_alerts"
)

// --------------------------------------------------------------------------
// Config struct, populated from environment variables
// --------------------------------------------------------------------------

type Config struct {
	// Database
	DatabaseURL    string
	DBPoolMinConns int
	DBPoolMaxConns int
	DBPoolMaxLife  time.Duration

	// API server
	APIHost     string
	APIPort     int
	Environment string // development, staging, production
	Debug       bool

	// CORS
	CORSAllowOrigins []string

	// Rate limiting
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Turnover detection
	DetectionLookback time.Duration // how far back a sweep scans change records
	DedupWindow       time.Duration // window suppressing duplicate triple alerts
	SweepInterval     time.Duration // background DetectAll cadence; 0 disables

	// Retention
	CleanupInterval time.Duration
	AlertRetention  time.Duration
	ChangeRetention time.Duration

	// Email dispatch
	SMTPHost       string
	SMTPPort       int
	SMTPFrom       string
	SMTPUsername   string
	SMTPPassword   string
	DispatchBuffer int

	// Cache
	CacheEnabled bool
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	dbURL := envOr("DATABASE_URL", "")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL must be set")
	}

	return &Config{
		DatabaseURL:    dbURL,
		DBPoolMinConns: envInt("DB_POOL_MIN_CONNS", 2),
		DBPoolMaxConns: envInt("DB_POOL_MAX_CONNS", 10),
		DBPoolMaxLife:  time.Duration(envInt("DB_POOL_MAX_LIFE_MINUTES", 30)) * time.Minute,

		APIHost:     envOr("API_HOST", "0.0.0.0"),
		APIPort:     envInt("API_PORT", envInt("PORT", 8000)),
		Environment: envOr("ENVIRONMENT", "development"),
		Debug:       envBool("DEBUG", false),

		CORSAllowOrigins: envList("CORS_ALLOW_ORIGINS", []string{
			"http://localhost:3000",
			"http://localhost:5173",
		}),

		RateLimitEnabled:  envBool("RATE_LIMIT_ENABLED", true),
		RateLimitRequests: envInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow:   time.Duration(envInt("RATE_LIMIT_WINDOW", 60)) * time.Second,

		DetectionLookback: time.Duration(envInt("TO_DETECTION_LOOKBACK_HOURS", 6)) * time.Hour,
		DedupWindow:       time.Duration(envInt("TO_DETECTION_DEDUP_HOURS", 24)) * time.Hour,
		SweepInterval:     time.Duration(envInt("DETECTION_SWEEP_MINUTES", 60)) * time.Minute,

		CleanupInterval: time.Duration(envInt("CLEANUP_INTERVAL_MINUTES", 360)) * time.Minute,
		AlertRetention:  time.Duration(envInt("ALERT_RETENTION_DAYS", 30)) * 24 * time.Hour,
		ChangeRetention: time.Duration(envInt("CHANGE_RETENTION_DAYS", 90)) * 24 * time.Hour,

		SMTPHost:       envOr("SMTP_HOST", ""),
		SMTPPort:       envInt("SMTP_PORT", 587),
		SMTPFrom:       envOr("SMTP_FROM", "alerts@jariyo.kr"),
		SMTPUsername:   envOr("SMTP_USERNAME", ""),
		SMTPPassword:   envOr("SMTP_PASSWORD", ""),
		DispatchBuffer: envInt("DISPATCH_BUFFER", 256),

		CacheEnabled: envBool("CACHE_ENABLED", true),
	}, nil
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
