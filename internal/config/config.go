// Package config loads the marketplace daemon configuration. Values resolve
// in three layers: compiled defaults, then an optional YAML file, then
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"

	"github.com/Ayush4178/NFT-Marketplace/internal/app/domain/market"
)

// Config is the full daemon configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
	Market   MarketConfig   `yaml:"market"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host         string        `yaml:"host" env:"MARKETD_HOST"`
	Port         int           `yaml:"port" env:"MARKETD_PORT"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"MARKETD_READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"MARKETD_WRITE_TIMEOUT"`

	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig throttles API callers per remote address.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled" env:"MARKETD_RATE_LIMIT_ENABLED"`
	RequestsPerSecond int  `yaml:"requests_per_second" env:"MARKETD_RATE_LIMIT_RPS"`
	Burst             int  `yaml:"burst" env:"MARKETD_RATE_LIMIT_BURST"`
}

// DatabaseConfig controls persistence. An empty URL selects the in-memory
// backend; anything else is treated as a PostgreSQL DSN.
type DatabaseConfig struct {
	URL             string        `yaml:"url" env:"DATABASE_URL"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"MARKETD_DB_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"MARKETD_DB_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"MARKETD_DB_CONN_MAX_LIFETIME"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"MARKETD_LOG_LEVEL"`
	Format string `yaml:"format" env:"MARKETD_LOG_FORMAT"`
}

// MarketConfig carries the deployment accounts and the starting fee rate.
type MarketConfig struct {
	Admin                 string `yaml:"admin" env:"MARKETD_ADMIN_ACCOUNT"`
	Escrow                string `yaml:"escrow" env:"MARKETD_ESCROW_ACCOUNT"`
	DefaultFeeBasisPoints uint64 `yaml:"default_fee_basis_points" env:"MARKETD_DEFAULT_FEE_BPS"`
}

// Default returns the compiled-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerSecond: 50,
				Burst:             100,
			},
		},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Market: MarketConfig{
			Admin:  "admin",
			Escrow: "escrow",
		},
	}
}

// Load resolves the configuration. The YAML file at path is optional when
// path is empty; environment variables override whatever the file set.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := envdecode.Decode(cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the daemon cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.Server.RateLimit.Enabled {
		if c.Server.RateLimit.RequestsPerSecond <= 0 {
			return errors.New("rate limit requests_per_second must be positive")
		}
		if c.Server.RateLimit.Burst <= 0 {
			return errors.New("rate limit burst must be positive")
		}
	}
	if c.Market.DefaultFeeBasisPoints > market.MaxFeeBasisPoints {
		return fmt.Errorf("default fee %d basis points exceeds the %d cap",
			c.Market.DefaultFeeBasisPoints, market.MaxFeeBasisPoints)
	}
	if c.Market.Admin == "" {
		return errors.New("market admin account must be set")
	}
	return nil
}

// ListenAddress returns the host:port pair for the HTTP listener.
func (c *Config) ListenAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
