// Package config provides application configuration through environment variables.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/allisson/go-env"
	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	// ServerAddr is the address the HTTP server binds to.
	ServerAddr string

	// PostgresDSN enables the Postgres principal store when set. Empty means
	// the in-memory store (single binary, tests).
	PostgresDSN string
	// DBMaxOpenConnections is the maximum number of open connections to the database.
	DBMaxOpenConnections int
	// DBMaxIdleConnections is the maximum number of idle connections in the pool.
	DBMaxIdleConnections int
	// DBConnMaxLifetime is the maximum amount of time a connection may be reused.
	DBConnMaxLifetime time.Duration

	// RedisAddr enables the Redis-backed security guard store when set.
	RedisAddr string

	// TokenSecret signs access and refresh tokens (HS256).
	TokenSecret string
	// TokenIssuer is the iss claim on issued tokens.
	TokenIssuer string
	// AccessTokenTTL is the access token lifetime.
	AccessTokenTTL time.Duration
	// RefreshTokenTTL is the refresh token lifetime. Must be well above AccessTokenTTL.
	RefreshTokenTTL time.Duration

	// EdgeRateLimitPerSec throttles raw requests per client IP before any
	// auth-aware limiting happens.
	EdgeRateLimitPerSec int
	// EdgeRateLimitBurst is the token-bucket burst for the edge limiter.
	EdgeRateLimitBurst int

	// MaxBodyBytes caps request body size.
	MaxBodyBytes int64
}

// Load loads configuration from environment variables and an optional .env file.
func Load() *Config {
	loadDotEnv()

	return &Config{
		ServerAddr: env.GetString("SPTM_SERVER_ADDR", ":8080"),

		PostgresDSN:          env.GetString("SPTM_PG_DSN", ""),
		DBMaxOpenConnections: env.GetInt("SPTM_DB_MAX_OPEN_CONNECTIONS", 10),
		DBMaxIdleConnections: env.GetInt("SPTM_DB_MAX_IDLE_CONNECTIONS", 10),
		DBConnMaxLifetime:    env.GetDuration("SPTM_DB_CONN_MAX_LIFETIME_MINUTES", 30, time.Minute),

		RedisAddr: env.GetString("SPTM_REDIS_ADDR", ""),

		TokenSecret:     env.GetString("SPTM_AUTH_SECRET", ""),
		TokenIssuer:     env.GetString("SPTM_AUTH_ISSUER", "sptm"),
		AccessTokenTTL:  env.GetDuration("SPTM_ACCESS_TOKEN_TTL_MINUTES", 15, time.Minute),
		RefreshTokenTTL: env.GetDuration("SPTM_REFRESH_TOKEN_TTL_HOURS", 24*7, time.Hour),

		EdgeRateLimitPerSec: env.GetInt("SPTM_EDGE_RATE_LIMIT_PER_SEC", 20),
		EdgeRateLimitBurst:  env.GetInt("SPTM_EDGE_RATE_LIMIT_BURST", 40),

		MaxBodyBytes: int64(env.GetInt("SPTM_MAX_BODY_BYTES", 1<<20)),
	}
}

// loadDotEnv searches for a .env file from the working directory up to the
// filesystem root and loads the first one found.
func loadDotEnv() {
	cwd, err := os.Getwd()
	if err != nil {
		return
	}
	dir := cwd
	for {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			_ = godotenv.Load(envPath)
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}
