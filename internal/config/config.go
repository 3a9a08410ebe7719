// Package config loads runtime configuration from defaults, an optional
// YAML file, and environment variable overrides, in that precedence order.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ServerConfig controls the operator HTTP surface (cmd/actorsys-admin).
type ServerConfig struct {
	Host string `yaml:"host" env:"SERVER_HOST"`
	Port int    `yaml:"port" env:"SERVER_PORT"`
}

// DatabaseConfig controls the catalog's Postgres store.
type DatabaseConfig struct {
	DSN             string `yaml:"dsn" env:"DATABASE_DSN"`
	MaxOpenConns    int    `yaml:"max_open_conns" env:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns    int    `yaml:"max_idle_conns" env:"DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime" env:"DATABASE_CONN_MAX_LIFETIME"`
	MigrateOnStart  bool   `yaml:"migrate_on_start" env:"DATABASE_MIGRATE_ON_START"`
}

// CacheConfig controls the catalog's read-through cache.
type CacheConfig struct {
	Addr    string `yaml:"addr" env:"CACHE_ADDR"`
	TTL     int    `yaml:"ttl_seconds" env:"CACHE_TTL_SECONDS"`
	Enabled bool   `yaml:"enabled" env:"CACHE_ENABLED"`
}

// BusConfig controls event bus delivery semantics.
type BusConfig struct {
	AskTimeoutMs       int    `yaml:"ask_timeout_ms" env:"BUS_ASK_TIMEOUT_MS"`
	TellTTLSeconds     int    `yaml:"tell_ttl_seconds" env:"BUS_TELL_TTL_SECONDS"`
	TellMaxRedeliver   int    `yaml:"tell_max_redeliver" env:"BUS_TELL_MAX_REDELIVER"`
	DeliveryMode       string `yaml:"delivery_mode" env:"BUS_DELIVERY_MODE"` // "at-most-once" | "at-least-once"
}

// RateLimitConfig holds the default token-bucket parameters new actors inherit.
type RateLimitConfig struct {
	MaxTokens      int `yaml:"max_tokens" env:"RATE_LIMIT_MAX_TOKENS"`
	RefillRate     int `yaml:"refill_rate" env:"RATE_LIMIT_REFILL_RATE"`
	RefillInterval int `yaml:"refill_interval_ms" env:"RATE_LIMIT_REFILL_INTERVAL_MS"`
}

// LoggingConfig controls the logrus-backed logger.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"`
}

// Config is the top-level runtime configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Cache     CacheConfig     `yaml:"cache"`
	Bus       BusConfig       `yaml:"bus"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 300,
			MigrateOnStart:  true,
		},
		Cache: CacheConfig{TTL: 300},
		Bus: BusConfig{
			AskTimeoutMs:     5000,
			TellTTLSeconds:   30,
			TellMaxRedeliver: 3,
			DeliveryMode:     "at-least-once",
		},
		RateLimit: RateLimitConfig{
			MaxTokens:      100,
			RefillRate:     10,
			RefillInterval: 1000,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

// Load loads configuration from an optional `.env` file, an optional YAML
// file (path from $CONFIG_FILE, defaulting to configs/config.yaml), and
// environment variable overrides, in that order.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := New()

	path := strings.TrimSpace(os.Getenv("CONFIG_FILE"))
	if path == "" {
		path = "configs/config.yaml"
	}
	if err := loadFromFile(path, cfg); err != nil {
		return nil, err
	}

	if err := envdecode.Decode(cfg); err != nil {
		if !strings.Contains(err.Error(), "none of the target fields were set") {
			return nil, fmt.Errorf("decode env: %w", err)
		}
	}

	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// AskTimeout returns Bus.AskTimeoutMs as a time.Duration.
func (c BusConfig) AskTimeout() time.Duration {
	return time.Duration(c.AskTimeoutMs) * time.Millisecond
}

// TellTTL returns Bus.TellTTLSeconds as a time.Duration.
func (c BusConfig) TellTTL() time.Duration {
	return time.Duration(c.TellTTLSeconds) * time.Second
}

// Refill returns RateLimit.RefillInterval as a time.Duration.
func (c RateLimitConfig) Refill() time.Duration {
	return time.Duration(c.RefillInterval) * time.Millisecond
}
