package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers
const (
	StoreDriverPostgres = "postgres"
	StoreDriverRedis    = "redis"
	StoreDriverMemory   = "memory"
)

// Config is the full runtime configuration, sourced from the environment
type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Booking  BookingConfig
	CORS     CORSConfig
	Security SecurityConfig
}

type ServerConfig struct {
	Port        string
	Environment string // development, staging, production
	LogLevel    string // any logrus level name
}

// StoreConfig selects the persistence backend
type StoreConfig struct {
	Driver string // postgres, redis, memory
}

// DatabaseConfig is used only by the postgres store
type DatabaseConfig struct {
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
	AutoMigrate        bool
}

// RedisConfig is used only by the redis store
type RedisConfig struct {
	URL       string
	KeyPrefix string
}

type JWTConfig struct {
	Secret            string
	AccessTokenExpiry time.Duration
}

// BookingConfig tunes the booking engine
type BookingConfig struct {
	RequiresConfirmation bool          // pending + OTP lifecycle instead of direct confirm
	MaxRetries           int           // retries after a write conflict
	RetryBackoff         time.Duration // base delay between retries
	MaxSeatsPerBooking   int
}

type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

type SecurityConfig struct {
	EnableRequestLog bool
	EnableAuditLog   bool

	// Confirmation code attempts allowed per booking and per client IP
	// within ConfirmWindow
	ConfirmMaxAttempts int
	ConfirmWindow      time.Duration
}

// Load reads an optional .env file, then builds and validates the Config
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file loaded, reading the process environment only")
	}

	cfg := FromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv builds a Config from the current environment without validating it
func FromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        envString("PORT", "8080"),
			Environment: envString("ENVIRONMENT", "development"),
			LogLevel:    envString("LOG_LEVEL", "info"),
		},
		Store: StoreConfig{
			Driver: strings.ToLower(envString("STORE_DRIVER", StoreDriverPostgres)),
		},
		Database: DatabaseConfig{
			URL:                envString("DATABASE_URL", ""),
			MaxConnections:     envInt("DATABASE_MAX_CONNECTIONS", 10),
			MaxIdleConnections: envInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    envDuration("DATABASE_CONN_MAX_LIFETIME", 300, time.Second),
			AutoMigrate:        envBool("DATABASE_AUTO_MIGRATE", true),
		},
		Redis: RedisConfig{
			URL:       envString("REDIS_URL", ""),
			KeyPrefix: envString("REDIS_KEY_PREFIX", "ridefusion"),
		},
		JWT: JWTConfig{
			Secret:            envString("JWT_SECRET", ""),
			AccessTokenExpiry: envDuration("JWT_ACCESS_TOKEN_EXPIRY", 3600, time.Second),
		},
		Booking: BookingConfig{
			RequiresConfirmation: envBool("BOOKING_REQUIRES_CONFIRMATION", false),
			MaxRetries:           envInt("BOOKING_MAX_RETRIES", 3),
			RetryBackoff:         envDuration("BOOKING_RETRY_BACKOFF_MS", 10, time.Millisecond),
			MaxSeatsPerBooking:   envInt("BOOKING_MAX_SEATS", 10),
		},
		CORS: CORSConfig{
			AllowedOrigins: envList("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: envList("CORS_ALLOWED_METHODS", []string{"GET", "POST", "DELETE", "OPTIONS"}),
			AllowedHeaders: envList("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization"}),
		},
		Security: SecurityConfig{
			EnableRequestLog: envBool("ENABLE_REQUEST_LOGGING", true),
			EnableAuditLog:   envBool("ENABLE_AUDIT_LOGGING", true),

			ConfirmMaxAttempts: envInt("CONFIRM_MAX_ATTEMPTS", 5),
			ConfirmWindow:      envDuration("CONFIRM_WINDOW_MINUTES", 10, time.Minute),
		},
	}
}

// Validate reports the first missing or out-of-range setting
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	switch c.Store.Driver {
	case StoreDriverPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	case StoreDriverRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("REDIS_URL is required for the redis store")
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("invalid STORE_DRIVER: %s (must be 'postgres', 'redis' or 'memory')", c.Store.Driver)
	}

	if c.Booking.MaxRetries < 1 {
		return fmt.Errorf("BOOKING_MAX_RETRIES must be at least 1")
	}

	if c.Booking.MaxSeatsPerBooking < 1 || c.Booking.MaxSeatsPerBooking > 10 {
		return fmt.Errorf("BOOKING_MAX_SEATS must be between 1 and 10")
	}

	if c.Security.ConfirmMaxAttempts < 1 || c.Security.ConfirmWindow <= 0 {
		return fmt.Errorf("CONFIRM_MAX_ATTEMPTS and CONFIRM_WINDOW_MINUTES must be positive")
	}

	return nil
}

func envString(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

// envParse falls back when the variable is unset or does not parse
func envParse[T any](key string, fallback T, parse func(string) (T, error)) T {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := parse(raw)
	if err != nil {
		log.Printf("Ignoring %s=%q: %v (using %v)", key, raw, err, fallback)
		return fallback
	}
	return v
}

func envInt(key string, fallback int) int {
	return envParse(key, fallback, strconv.Atoi)
}

func envBool(key string, fallback bool) bool {
	return envParse(key, fallback, strconv.ParseBool)
}

// envDuration reads an integer count of unit
func envDuration(key string, fallback int, unit time.Duration) time.Duration {
	return time.Duration(envInt(key, fallback)) * unit
}

// envList splits a comma separated value, dropping blank entries
func envList(key string, fallback []string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
