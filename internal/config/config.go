// Package config loads service configuration from the environment, with an
// optional .env file for development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Defaults applied when the environment leaves a knob unset.
const (
	DefaultListenAddr      = ":8080"
	DefaultTokenIssuer     = "careportal"
	DefaultAccessTTL       = 1 * time.Hour
	DefaultRefreshTTL      = 30 * 24 * time.Hour
	DefaultSweepInterval   = 1 * time.Hour
	DefaultShutdownTimeout = 10 * time.Second
)

// Config is everything cmd/api needs to wire the service.
type Config struct {
	ListenAddr string

	// AuthSecret signs access tokens. Mandatory: there is no safe default.
	AuthSecret  string
	TokenIssuer string
	AccessTTL   time.Duration
	RefreshTTL  time.Duration
	BcryptCost  int

	// PGDSN selects the PostgreSQL store; empty falls back to the in-memory
	// store (development only).
	PGDSN string
	// RedisAddr moves refresh-token storage to Redis when set.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	SweepInterval time.Duration
}

// Load reads CAREPORTAL_* variables, after loading .env if one is present.
// A missing .env is not an error; a missing signing secret is.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		ListenAddr:    envOr("CAREPORTAL_LISTEN_ADDR", DefaultListenAddr),
		AuthSecret:    os.Getenv("CAREPORTAL_AUTH_SECRET"),
		TokenIssuer:   envOr("CAREPORTAL_TOKEN_ISSUER", DefaultTokenIssuer),
		PGDSN:         os.Getenv("CAREPORTAL_PG_DSN"),
		RedisAddr:     os.Getenv("CAREPORTAL_REDIS_ADDR"),
		RedisPassword: os.Getenv("CAREPORTAL_REDIS_PASSWORD"),
	}
	if cfg.AuthSecret == "" {
		return Config{}, fmt.Errorf("CAREPORTAL_AUTH_SECRET is required")
	}

	var err error
	if cfg.AccessTTL, err = envDuration("CAREPORTAL_ACCESS_TTL_MINUTES", time.Minute, DefaultAccessTTL); err != nil {
		return Config{}, err
	}
	if cfg.RefreshTTL, err = envDuration("CAREPORTAL_REFRESH_TTL_DAYS", 24*time.Hour, DefaultRefreshTTL); err != nil {
		return Config{}, err
	}
	if cfg.SweepInterval, err = envDuration("CAREPORTAL_SWEEP_INTERVAL_MINUTES", time.Minute, DefaultSweepInterval); err != nil {
		return Config{}, err
	}
	if cfg.BcryptCost, err = envInt("CAREPORTAL_BCRYPT_COST", 0); err != nil {
		return Config{}, err
	}
	if cfg.RedisDB, err = envInt("CAREPORTAL_REDIS_DB", 0); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
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

func envDuration(key string, unit, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return time.Duration(n) * unit, nil
}
