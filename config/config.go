// Package config loads application settings from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultJWTSecret is used when JWT_SECRET_KEY is unset. It is only fit for
// local development.
const DefaultJWTSecret = "dev-secret-change-in-production"

// Config holds all application settings.
type Config struct {
	Port               int
	TaskDBPath         string
	ChatDBPath         string
	DBDebug            bool
	RedisAddr          string
	UnreadCacheTTL     time.Duration
	JWTSecretKey       string
	JWTIssuer          string
	DefaultChannel     string
	CORSAllowedOrigins string
	ConnQueueSize      int
	RateLimitPerMinute int
	ShutdownTimeout    time.Duration
}

// RateLimitEnabled reports whether REST requests are throttled. The limiter
// keeps its windows in Redis, so it needs the cache.
func (c *Config) RateLimitEnabled() bool {
	return c.CacheEnabled() && c.RateLimitPerMinute > 0
}

// CacheEnabled reports whether a Redis server is configured.
func (c *Config) CacheEnabled() bool {
	return c.RedisAddr != ""
}

// UsingDefaultSecret reports whether tokens are checked with DefaultJWTSecret.
func (c *Config) UsingDefaultSecret() bool {
	return c.JWTSecretKey == DefaultJWTSecret
}

// Load reads .env when present, then the environment. Malformed values
// are reported together.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() (*Config, error) {
	p := &parser{}
	cfg := &Config{
		Port:               p.int("PORT", 3000),
		TaskDBPath:         getEnv("TASK_DB_PATH", "tasks.db"),
		ChatDBPath:         getEnv("CHAT_DB_PATH", "chat.db"),
		DBDebug:            p.bool("DB_DEBUG", false),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		UnreadCacheTTL:     p.duration("UNREAD_CACHE_TTL", 2*time.Minute),
		JWTSecretKey:       getEnv("JWT_SECRET_KEY", DefaultJWTSecret),
		JWTIssuer:          getEnv("JWT_ISSUER", "collab-tracker"),
		DefaultChannel:     getEnv("DEFAULT_CHANNEL", "general"),
		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
		ConnQueueSize:      p.int("CONN_QUEUE_SIZE", 64),
		RateLimitPerMinute: p.int("RATE_LIMIT_PER_MINUTE", 300),
		ShutdownTimeout:    p.duration("SHUTDOWN_TIMEOUT", 30*time.Second),
	}

	if cfg.Port <= 0 || cfg.Port > 65535 {
		p.fail("PORT", strconv.Itoa(cfg.Port), errors.New("out of range"))
	}
	if cfg.UnreadCacheTTL <= 0 {
		p.fail("UNREAD_CACHE_TTL", cfg.UnreadCacheTTL.String(), errors.New("must be positive"))
	}

	if cfg.RateLimitPerMinute < 0 {
		p.fail("RATE_LIMIT_PER_MINUTE", strconv.Itoa(cfg.RateLimitPerMinute), errors.New("must not be negative"))
	}

	if err := errors.Join(p.errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// getEnv returns environment variable value or default.
func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// parser collects conversion errors so every bad variable is reported.
type parser struct {
	errs []error
}

func (p *parser) fail(key, value string, err error) {
	p.errs = append(p.errs, fmt.Errorf("invalid %s %q: %w", key, value, err))
}

func (p *parser) int(key string, defaultValue int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		p.fail(key, value, err)
		return defaultValue
	}
	return n
}

func (p *parser) bool(key string, defaultValue bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		p.fail(key, value, err)
		return defaultValue
	}
	return b
}

func (p *parser) duration(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		p.fail(key, value, err)
		return defaultValue
	}
	return d
}
