package cache

import (
	"time"
)

// Config holds the configuration for the cache
type Config struct {
	// MaxEntries bounds the number of cached entries. Zero disables caching.
	MaxEntries int
	// TTL is the time-to-live for cache entries. Zero keeps entries until
	// they are evicted or deleted.
	TTL time.Duration
	// EnableStats enables cache statistics collection
	EnableStats bool
}

// DefaultConfig returns a default cache configuration
func DefaultConfig() *Config {
	return &Config{
		MaxEntries:  1024,
		TTL:         5 * time.Minute,
		EnableStats: true,
	}
}

// Enabled reports whether the configuration enables caching.
func (c *Config) Enabled() bool {
	return c.MaxEntries > 0
}

// WithMaxEntries sets the maximum number of entries
func (c *Config) WithMaxEntries(n int) *Config {
	c.MaxEntries = n
	return c
}

// WithTTL sets the time-to-live for cache entries
func (c *Config) WithTTL(ttl time.Duration) *Config {
	c.TTL = ttl
	return c
}

// WithStats enables or disables cache statistics
func (c *Config) WithStats(enable bool) *Config {
	c.EnableStats = enable
	return c
}
