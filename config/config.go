package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every runtime setting for the service. Values come from the
// environment, with a .env file loaded first when present.
type Config struct {
	Port     string
	Database DatabaseConfig
	Redis    RedisConfig
	Session  SessionConfig
	Static   string
}

// DatabaseConfig selects the SQL driver and DSN.
type DatabaseConfig struct {
	Driver string
	DSN    string
}

// RedisConfig points at the cache backing the session store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// SessionConfig controls cookie-backed sessions.
type SessionConfig struct {
	CookieName string
	TTL        time.Duration
	BcryptCost int
}

// Load reads configuration from the environment. A missing .env file is fine
// in production where the environment is set externally.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Port: envOr("TASKHUB_PORT", "8080"),
		Database: DatabaseConfig{
			Driver: envOr("TASKHUB_DB_DRIVER", "sqlite3"),
			DSN:    envOr("TASKHUB_DB_DSN", "file:taskhub.db?_busy_timeout=5000&_foreign_keys=ON"),
		},
		Redis: RedisConfig{
			Addr:     envOr("TASKHUB_REDIS_ADDR", "localhost:6379"),
			Password: os.Getenv("TASKHUB_REDIS_PASSWORD"),
			DB:       envOrInt("TASKHUB_REDIS_DB", 0),
		},
		Session: SessionConfig{
			CookieName: envOr("TASKHUB_COOKIE_NAME", "taskhub.session_token"),
			TTL:        envOrDuration("TASKHUB_SESSION_TTL", 7*24*time.Hour),
			BcryptCost: envOrInt("TASKHUB_BCRYPT_COST", 12),
		},
		Static: envOr("TASKHUB_STATIC_DIR", "./static"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
