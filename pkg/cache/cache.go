// Package cache provides a bounded in-memory read cache with optional
// per-entry expiry.
package cache

import (
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/TFMV/gatehouse/pkg/errors"
)

// entry is a cached value with its expiry. A zero expires never expires.
type entry[V any] struct {
	value   V
	expires time.Time
}

// LRU is a least-recently-used cache of values keyed by string. Values are
// stored and returned by value, so callers cannot mutate cached state
// through a returned copy unless V itself holds references.
type LRU[V any] struct {
	lru   *lru.Cache
	ttl   time.Duration
	stats *StatsCollector // nil when stats are disabled
	now   func() time.Time
}

// New creates a new LRU cache.
func New[V any](cfg Config) (*LRU[V], error) {
	if !cfg.Enabled() {
		return nil, errors.New(errors.CodeConfiguration, "cache size must be positive")
	}
	if cfg.TTL < 0 {
		return nil, errors.New(errors.CodeConfiguration, "cache ttl must not be negative")
	}

	l, err := lru.New(cfg.MaxEntries)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeConfiguration, "failed to create cache")
	}

	c := &LRU[V]{
		lru: l,
		ttl: cfg.TTL,
		now: time.Now,
	}
	if cfg.EnableStats {
		c.stats = NewStatsCollector()
	}
	return c, nil
}

// Get returns the value stored under key.
func (c *LRU[V]) Get(key string) (V, bool) {
	var zero V

	v, ok := c.lru.Get(key)
	if !ok {
		c.record((*StatsCollector).RecordMiss)
		return zero, false
	}

	e := v.(entry[V])
	if !e.expires.IsZero() && !c.now().Before(e.expires) {
		c.lru.Remove(key)
		c.record((*StatsCollector).RecordExpiration)
		c.record((*StatsCollector).RecordMiss)
		c.updateSize()
		return zero, false
	}

	c.record((*StatsCollector).RecordHit)
	return e.value, true
}

// Put stores value under key, evicting the least recently used entry when
// the cache is full.
func (c *LRU[V]) Put(key string, value V) {
	e := entry[V]{value: value}
	if c.ttl > 0 {
		e.expires = c.now().Add(c.ttl)
	}

	if evicted := c.lru.Add(key, e); evicted {
		c.record((*StatsCollector).RecordEviction)
	}
	c.updateSize()
}

// Delete removes key from the cache.
func (c *LRU[V]) Delete(key string) {
	c.lru.Remove(key)
	c.updateSize()
}

// Clear removes all entries from the cache.
func (c *LRU[V]) Clear() {
	c.lru.Purge()
	c.updateSize()
}

// Len returns the number of cached entries, including expired ones not yet
// looked up.
func (c *LRU[V]) Len() int {
	return c.lru.Len()
}

// Stats returns the cache statistics. It is zero when stats are disabled.
func (c *LRU[V]) Stats() Stats {
	if c.stats == nil {
		return Stats{}
	}
	return c.stats.GetStats()
}

func (c *LRU[V]) record(fn func(*StatsCollector)) {
	if c.stats != nil {
		fn(c.stats)
	}
}

func (c *LRU[V]) updateSize() {
	if c.stats != nil {
		c.stats.UpdateSize(int64(c.lru.Len()))
	}
}
