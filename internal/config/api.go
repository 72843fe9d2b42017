package config

import (
	"errors"
	"time"
)

// defaultJWTSecret is only acceptable outside production.
const defaultJWTSecret = "your-secret-key-change-in-production"

// APIConfig holds runtime configuration for the API service.
type APIConfig struct {
	Environment        string
	Addr               string
	DatabaseURL        string
	MigrationsDir      string
	JWTSecret          string
	TokenTTL           time.Duration
	SessionTTL         time.Duration
	SessionSweepEvery  time.Duration
	HashConcurrency    int
	RateLimitRedisAddr string
	RateLimitRedisPass string
	RateLimitRedisDB   int
}

// LoadAPIConfig constructs an APIConfig from environment variables.
func LoadAPIConfig() APIConfig {
	return APIConfig{
		Environment:        GetString("APP_ENV", "development"),
		Addr:               GetString("API_ADDR", ":3000"),
		DatabaseURL:        GetString("DATABASE_URL", "postgres://loco:loco@db:5432/loco?sslmode=disable"),
		MigrationsDir:      GetString("DB_MIGRATIONS_DIR", "./db/migrations"),
		JWTSecret:          GetString("JWT_SECRET", defaultJWTSecret),
		TokenTTL:           time.Duration(GetInt("TOKEN_TTL_HOURS", 24)) * time.Hour,
		SessionTTL:         time.Duration(GetInt("SESSION_TTL_DAYS", 30)) * 24 * time.Hour,
		SessionSweepEvery:  time.Duration(GetInt("SESSION_SWEEP_MINUTES", 15)) * time.Minute,
		HashConcurrency:    GetInt("HASH_CONCURRENCY", 4),
		RateLimitRedisAddr: GetString("RATE_LIMIT_REDIS_ADDR", ""),
		RateLimitRedisPass: GetString("RATE_LIMIT_REDIS_PASSWORD", ""),
		RateLimitRedisDB:   GetInt("RATE_LIMIT_REDIS_DB", 0),
	}
}

// IsProduction reports whether the service runs in production mode.
func (c APIConfig) IsProduction() bool {
	return c.Environment == "production"
}

// Validate rejects configurations that must not reach production, notably
// the default signing secret.
func (c APIConfig) Validate() error {
	if c.IsProduction() && c.JWTSecret == defaultJWTSecret {
		return errors.New("config: JWT_SECRET must be set in production")
	}
	if c.JWTSecret == "" {
		return errors.New("config: JWT_SECRET must not be empty")
	}
	return nil
}
