package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Identity API configuration
	Server ServerConfig

	// Gating web host configuration
	Web WebConfig

	// Database Configuration
	Database DatabaseConfig

	// Redis Configuration
	Redis RedisConfig

	// Mongo Configuration (auth audit log)
	Mongo MongoConfig

	// Token and session configuration
	Auth AuthConfig

	// Per-IP request limits
	RateLimit RateLimitConfig

	// Admin data cache configuration
	AdminCache AdminCacheConfig

	// Background worker configuration
	Worker WorkerConfig

	// Logging Configuration
	Logging LoggingConfig
}

// ServerConfig holds identity API configuration
type ServerConfig struct {
	Port        string
	Env         string   // development, production
	CORSOrigins []string // allowed browser origins
}

// Production reports whether cookies should be issued with the Secure flag
func (s ServerConfig) Production() bool {
	return s.Env == "production"
}

// WebConfig holds gating web host configuration
type WebConfig struct {
	Port         string
	BackendURL   string // base URL of the identity API
	RoutesFile   string // optional override of the embedded route table
	CookieSecure bool
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	URL string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Address string // Redis address (host:port), empty disables Redis-backed features
}

// Enabled reports whether a Redis address was configured
func (r RedisConfig) Enabled() bool {
	return r.Address != ""
}

// MongoConfig holds MongoDB configuration
type MongoConfig struct {
	URL      string // empty disables the audit log
	Database string
}

// AuthConfig holds token configuration
type AuthConfig struct {
	JWTSecret  string // empty means load or generate the persisted secret
	TokenTTL   time.Duration
	SessionTTL time.Duration
}

// RateLimitConfig holds per-IP limits applied to the public auth endpoints
type RateLimitConfig struct {
	Window      time.Duration
	MaxLogin    int
	MaxRegister int
}

// AdminCacheConfig holds the admin data cache TTL
type AdminCacheConfig struct {
	TTL time.Duration
}

// WorkerConfig holds background worker configuration
type WorkerConfig struct {
	Concurrency     int
	CleanupSchedule string // cron expression for the expired session purge
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	Level  string
	Format string // json, console
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env files (fails silently if files don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	tokenTTL, err := durationEnv("JWT_EXPIRATION", 7*24*time.Hour)
	if err != nil {
		return nil, err
	}
	sessionTTL, err := durationEnv("SESSION_TTL", 7*24*time.Hour)
	if err != nil {
		return nil, err
	}
	window, err := durationEnv("RATE_LIMIT_WINDOW", time.Minute)
	if err != nil {
		return nil, err
	}
	cacheTTL, err := durationEnv("ADMIN_CACHE_TTL", 30*time.Second)
	if err != nil {
		return nil, err
	}
	maxLogin, err := intEnv("RATE_LIMIT_MAX_LOGIN", 10)
	if err != nil {
		return nil, err
	}
	maxRegister, err := intEnv("RATE_LIMIT_MAX_REQUESTS", 100)
	if err != nil {
		return nil, err
	}
	concurrency, err := intEnv("WORKER_CONCURRENCY", 5)
	if err != nil {
		return nil, err
	}

	env := getEnv("ENV", "development")

	return &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8000"),
			Env:         env,
			CORSOrigins: listEnv("CORS_ORIGINS", []string{"http://localhost:3000", "http://127.0.0.1:3000"}),
		},
		Web: WebConfig{
			Port:         getEnv("WEB_PORT", "3000"),
			BackendURL:   strings.TrimRight(getEnv("BACKEND_URL", "http://localhost:8000"), "/"),
			RoutesFile:   os.Getenv("ROUTES_FILE"),
			CookieSecure: env == "production",
		},
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", "ingreso.sqlite"),
		},
		Redis: RedisConfig{
			Address: os.Getenv("REDIS_ADDRESS"),
		},
		Mongo: MongoConfig{
			URL:      os.Getenv("MONGO_URL"),
			Database: getEnv("DB_NAME", "ingreso"),
		},
		Auth: AuthConfig{
			JWTSecret:  os.Getenv("JWT_SECRET"),
			TokenTTL:   tokenTTL,
			SessionTTL: sessionTTL,
		},
		RateLimit: RateLimitConfig{
			Window:      window,
			MaxLogin:    maxLogin,
			MaxRegister: maxRegister,
		},
		AdminCache: AdminCacheConfig{
			TTL: cacheTTL,
		},
		Worker: WorkerConfig{
			Concurrency:     concurrency,
			CleanupSchedule: getEnv("SESSION_CLEANUP_SCHEDULE", "0 3 * * *"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func listEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func intEnv(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be a positive integer", key, value)
	}
	return n, nil
}

// durationEnv accepts Go durations ("168h") or plain seconds ("604800")
func durationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be a positive duration", key, value)
	}
	return d, nil
}
