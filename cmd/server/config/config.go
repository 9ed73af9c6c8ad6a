// Package config provides configuration structures for the gatehouse server.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/TFMV/gatehouse/pkg/infrastructure/conncache"
)

// Environments.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Database drivers.
const (
	DriverMongoDB = "mongodb"
	DriverDuckDB  = "duckdb"
)

// Config represents the server configuration.
type Config struct {
	// Server settings
	Address         string        `yaml:"address" json:"address"`
	Environment     string        `yaml:"environment" json:"environment"`
	LogLevel        string        `yaml:"log_level" json:"log_level"`
	LogFormat       string        `yaml:"log_format" json:"log_format"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`

	// Database connection configuration
	Database DatabaseConfig `yaml:"database" json:"database"`

	// Session configuration
	Session SessionConfig `yaml:"session" json:"session"`

	// Metrics configuration
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`

	// Health check configuration
	Health HealthConfig `yaml:"health" json:"health"`

	// Profile read cache configuration
	ProfileCache ProfileCacheConfig `yaml:"profile_cache" json:"profile_cache"`
}

// DatabaseConfig represents database connection configuration. The URI is
// not part of it: it is read when the first connection is needed.
type DatabaseConfig struct {
	Driver         string        `yaml:"driver" json:"driver"`
	Name           string        `yaml:"name" json:"name"`
	AppName        string        `yaml:"app_name" json:"app_name"`
	MaxPoolSize    uint64        `yaml:"max_pool_size" json:"max_pool_size"`
	BufferCommands bool          `yaml:"buffer_commands" json:"buffer_commands"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" json:"connect_timeout"`
	Liveness       string        `yaml:"liveness" json:"liveness"`
	PingTimeout    time.Duration `yaml:"ping_timeout" json:"ping_timeout"`
}

// SessionConfig represents session token configuration.
type SessionConfig struct {
	Secret     string        `yaml:"secret" json:"-"`
	Issuer     string        `yaml:"issuer" json:"issuer"`
	Audience   string        `yaml:"audience" json:"audience"`
	TTL        time.Duration `yaml:"ttl" json:"ttl"`
	BcryptCost int           `yaml:"bcrypt_cost" json:"bcrypt_cost"`

	// GeneratedSecret is set when Validate generated an ephemeral secret.
	GeneratedSecret bool `yaml:"-" json:"-"`
}

// MetricsConfig represents metrics configuration.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Address string `yaml:"address" json:"address"`
}

// HealthConfig represents the background health watcher configuration.
type HealthConfig struct {
	Enabled  bool          `yaml:"enabled" json:"enabled"`
	Address  string        `yaml:"address" json:"address"`
	Interval time.Duration `yaml:"interval" json:"interval"`
}

// ProfileCacheConfig represents profile cache configuration.
type ProfileCacheConfig struct {
	Size int           `yaml:"size" json:"size"`
	TTL  time.Duration `yaml:"ttl" json:"ttl"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() *Config {
	return &Config{
		Address:         "0.0.0.0:8080",
		Environment:     EnvDevelopment,
		LogLevel:        "info",
		LogFormat:       "json",
		ShutdownTimeout: 30 * time.Second,
		Database: DatabaseConfig{
			Driver:         DriverMongoDB,
			AppName:        "gatehouse",
			MaxPoolSize:    10,
			ConnectTimeout: 10 * time.Second,
			Liveness:       string(conncache.LivenessPassive),
			PingTimeout:    2 * time.Second,
		},
		Session: SessionConfig{
			Issuer:   "gatehouse",
			Audience: "gatehouse-web",
			TTL:      24 * time.Hour,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Address: ":9090",
		},
		Health: HealthConfig{
			Enabled:  false,
			Address:  ":8081",
			Interval: 15 * time.Second,
		},
		ProfileCache: ProfileCacheConfig{
			Size: 1024,
			TTL:  time.Minute,
		},
	}
}

// IsProduction reports whether the server runs in production.
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// Validate validates the configuration and fills defaults.
func (c *Config) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("address is required")
	}

	c.Environment = strings.ToLower(strings.TrimSpace(c.Environment))
	switch c.Environment {
	case "":
		c.Environment = EnvDevelopment
	case EnvDevelopment, EnvProduction:
	default:
		return fmt.Errorf("unsupported environment: %s", c.Environment)
	}

	switch c.LogFormat {
	case "":
		c.LogFormat = "json"
	case "json", "console":
	default:
		return fmt.Errorf("unsupported log format: %s", c.LogFormat)
	}

	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 30 * time.Second
	}

	if err := c.Database.validate(); err != nil {
		return err
	}
	if err := c.Session.validate(c.IsProduction()); err != nil {
		return err
	}

	if c.Metrics.Enabled && c.Metrics.Address == "" {
		return fmt.Errorf("metrics address is required when metrics are enabled")
	}

	if c.Health.Enabled {
		if c.Health.Address == "" {
			return fmt.Errorf("health address is required when the health watcher is enabled")
		}
		if c.Health.Interval <= 0 {
			c.Health.Interval = 15 * time.Second
		}
	}

	if c.ProfileCache.Size < 0 {
		return fmt.Errorf("profile cache size must not be negative")
	}
	if c.ProfileCache.TTL < 0 {
		return fmt.Errorf("profile cache ttl must not be negative")
	}

	return nil
}

func (d *DatabaseConfig) validate() error {
	switch d.Driver {
	case "":
		d.Driver = DriverMongoDB
	case DriverMongoDB, DriverDuckDB:
	default:
		return fmt.Errorf("unsupported database driver: %s", d.Driver)
	}

	if d.Liveness == "" {
		d.Liveness = string(conncache.LivenessPassive)
	}
	if _, err := conncache.ParseLivenessMode(d.Liveness); err != nil {
		return fmt.Errorf("database liveness: %w", err)
	}

	if d.MaxPoolSize == 0 {
		d.MaxPoolSize = 10
	}
	if d.ConnectTimeout <= 0 {
		d.ConnectTimeout = 10 * time.Second
	}
	if d.PingTimeout <= 0 {
		d.PingTimeout = 2 * time.Second
	}
	return nil
}

func (s *SessionConfig) validate(production bool) error {
	if s.Secret == "" {
		if production {
			return fmt.Errorf("session secret is required in production")
		}
		secret, err := randomSecret()
		if err != nil {
			return fmt.Errorf("failed to generate session secret: %w", err)
		}
		s.Secret = secret
		s.GeneratedSecret = true
	}
	if len(s.Secret) < 32 {
		return fmt.Errorf("session secret must be at least 32 bytes")
	}

	if s.TTL <= 0 {
		s.TTL = 24 * time.Hour
	}
	return nil
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
