// Package conncache keeps the process-wide database connection.
//
// A Cache holds at most one established connection and at most one in-flight
// establishment attempt. Every request handler calls Acquire before touching
// persisted data; concurrent callers that arrive while no connection exists
// share a single attempt and observe the same outcome. A failed attempt is
// never remembered: the next Acquire starts a fresh one.
package conncache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	pkgerrors "github.com/TFMV/gatehouse/pkg/errors"
)

const (
	tracerName = "github.com/TFMV/gatehouse/pkg/infrastructure/conncache"

	// attemptKey is the single singleflight key; there is only one target per cache.
	attemptKey = "establish"

	defaultConnectTimeout = 10 * time.Second
	defaultPingTimeout    = 2 * time.Second
	staleCloseTimeout     = 5 * time.Second
)

// Conn is an established database connection handle.
type Conn interface {
	// Alive reports the handle's own view of its connection state without
	// a round trip to the server.
	Alive() bool
	// Ping issues an active round trip to the server.
	Ping(ctx context.Context) error
	// Close releases the handle.
	Close(ctx context.Context) error
}

// DialOptions are handed to the dialer unchanged. The cache does not
// interpret them.
type DialOptions struct {
	// BufferCommands=false means operations must not be queued while the
	// handle is still connecting.
	BufferCommands bool `json:"buffer_commands"`
	// MaxPoolSize bounds the driver's own connection pool.
	MaxPoolSize uint64 `json:"max_pool_size"`
}

// DialFunc establishes a new connection to target.
type DialFunc[C Conn] func(ctx context.Context, target string, opts DialOptions) (C, error)

// TargetFunc returns the connection target from process configuration.
// An empty result means the target is not configured.
type TargetFunc func() string

// LivenessMode selects how a cached handle is checked on each acquisition.
type LivenessMode string

const (
	// LivenessPassive trusts the state the driver reports for the handle.
	LivenessPassive LivenessMode = "passive"
	// LivenessPing probes the server on every acquisition.
	LivenessPing LivenessMode = "ping"
)

// ParseLivenessMode parses a liveness mode name.
func ParseLivenessMode(s string) (LivenessMode, error) {
	switch LivenessMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", LivenessPassive:
		return LivenessPassive, nil
	case LivenessPing:
		return LivenessPing, nil
	default:
		return "", pkgerrors.New(pkgerrors.CodeInvalidRequest, fmt.Sprintf("unknown liveness mode %q", s))
	}
}

// State is the lifecycle state of a Cache.
type State int

const (
	StateEmpty State = iota
	StateConnecting
	StateReady
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "EMPTY"
	case StateConnecting:
		return "CONNECTING"
	case StateReady:
		return "READY"
	default:
		return "UNKNOWN"
	}
}

// MetricsCollector receives cache metrics.
type MetricsCollector interface {
	IncrementCounter(name string, labels ...string)
	RecordHistogram(name string, value float64, labels ...string)
}

// Config configures a Cache.
type Config struct {
	Target         TargetFunc
	Options        DialOptions
	ConnectTimeout time.Duration
	Liveness       LivenessMode
	PingTimeout    time.Duration
	Metrics        MetricsCollector
}

// Stats is a snapshot of cache counters.
type Stats struct {
	State      string `json:"state"`
	Attempts   int64  `json:"attempts"`
	Failures   int64  `json:"failures"`
	StaleDrops int64  `json:"stale_drops"`
}

// Cache hands out a single shared connection. It is safe for concurrent use.
type Cache[C Conn] struct {
	cfg    Config
	dial   DialFunc[C]
	logger zerolog.Logger
	tracer trace.Tracer

	// mu guards conn, ready, gen and target.
	mu     sync.Mutex
	conn   C
	ready  bool
	gen    uint64
	target string

	group      singleflight.Group
	connecting atomic.Bool
	closed     atomic.Bool

	// ctx bounds every attempt and is cancelled by Close.
	ctx    context.Context
	cancel context.CancelFunc

	attempts   atomic.Int64
	failures   atomic.Int64
	staleDrops atomic.Int64
}

// New creates a Cache. No connection is made until the first Acquire.
func New[C Conn](cfg Config, dial DialFunc[C], logger zerolog.Logger) (*Cache[C], error) {
	if dial == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidRequest, "dial function is required")
	}
	if cfg.Target == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidRequest, "target function is required")
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = defaultPingTimeout
	}
	if cfg.Liveness == "" {
		cfg.Liveness = LivenessPassive
	}
	if cfg.Metrics == nil {
		cfg.Metrics = noopMetrics{}
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Cache[C]{
		cfg:    cfg,
		dial:   dial,
		logger: logger,
		tracer: otel.Tracer(tracerName),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Acquire returns a live connection, establishing one if necessary.
//
// Failures are never retried inside Acquire. A ConnectionError is returned
// to every caller that waited on the failed attempt, and the next call
// starts a new one. If ctx ends while waiting, Acquire returns early but
// the attempt keeps running for the other callers.
func (c *Cache[C]) Acquire(ctx context.Context) (C, error) {
	var zero C
	if c.closed.Load() {
		return zero, pkgerrors.ErrCacheClosed
	}

	start := time.Now()
	ctx, span := c.tracer.Start(ctx, "conncache.Acquire")
	defer span.End()

	if conn, ok := c.cached(ctx); ok {
		span.SetAttributes(attribute.String("conncache.path", "fast"))
		c.observe("fast", "ok", start)
		return conn, nil
	}

	ch := c.group.DoChan(attemptKey, c.establish)

	select {
	case res := <-ch:
		path := "dialed"
		if res.Shared {
			path = "shared"
		}
		span.SetAttributes(attribute.String("conncache.path", path))
		if res.Err != nil {
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, "acquire failed")
			c.observe(path, "error", start)
			return zero, res.Err
		}
		c.observe(path, "ok", start)
		return res.Val.(C), nil
	case <-ctx.Done():
		c.observe("abandoned", "error", start)
		if ctx.Err() == context.DeadlineExceeded {
			return zero, pkgerrors.Wrap(ctx.Err(), pkgerrors.CodeDeadlineExceeded, "timed out waiting for database connection")
		}
		return zero, pkgerrors.Wrap(ctx.Err(), pkgerrors.CodeCanceled, "stopped waiting for database connection")
	}
}

// cached returns the cached handle if it passes the liveness check.
// A handle that fails the check is dropped.
func (c *Cache[C]) cached(ctx context.Context) (C, bool) {
	var zero C

	c.mu.Lock()
	conn, ready, gen := c.conn, c.ready, c.gen
	c.mu.Unlock()

	if !ready {
		return zero, false
	}
	if c.alive(ctx, conn) {
		return conn, true
	}

	c.dropStale(gen)
	return zero, false
}

func (c *Cache[C]) alive(ctx context.Context, conn C) bool {
	if c.cfg.Liveness != LivenessPing {
		return conn.Alive()
	}
	// The probe must not fail just because the caller gave up.
	pingCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.PingTimeout)
	defer cancel()
	return conn.Ping(pingCtx) == nil
}

// dropStale forgets the cached handle if it is still generation gen and
// closes it in the background.
func (c *Cache[C]) dropStale(gen uint64) {
	var zero C

	c.mu.Lock()
	if !c.ready || c.gen != gen {
		c.mu.Unlock()
		return
	}
	stale := c.conn
	c.conn = zero
	c.ready = false
	c.mu.Unlock()

	c.staleDrops.Add(1)
	c.cfg.Metrics.IncrementCounter("conncache_stale_total")
	c.logger.Warn().Uint64("generation", gen).Msg("Cached database connection is stale, reconnecting")

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), staleCloseTimeout)
		defer cancel()
		if err := stale.Close(ctx); err != nil {
			c.logger.Debug().Err(err).Msg("Failed to close stale database connection")
		}
	}()
}

// establish runs at most once at a time under the singleflight key.
func (c *Cache[C]) establish() (interface{}, error) {
	c.mu.Lock()
	if c.ready {
		// Another attempt finished between the caller's check and this one.
		conn := c.conn
		c.mu.Unlock()
		return conn, nil
	}
	c.mu.Unlock()

	if c.closed.Load() {
		return nil, pkgerrors.ErrCacheClosed
	}

	target, err := c.resolveTarget()
	if err != nil {
		return nil, err
	}

	c.connecting.Store(true)
	defer c.connecting.Store(false)

	attempt := c.attempts.Add(1)
	ctx, cancel := context.WithTimeout(c.ctx, c.cfg.ConnectTimeout)
	defer cancel()
	ctx, span := c.tracer.Start(ctx, "conncache.establish",
		trace.WithAttributes(attribute.Int64("conncache.attempt", attempt)))
	defer span.End()

	start := time.Now()
	c.logger.Info().
		Int64("attempt", attempt).
		Str("target", MaskTarget(target)).
		Uint64("max_pool_size", c.cfg.Options.MaxPoolSize).
		Bool("buffer_commands", c.cfg.Options.BufferCommands).
		Msg("Establishing database connection")

	conn, err := c.dial(ctx, target, c.cfg.Options)
	if err != nil {
		c.failures.Add(1)
		c.cfg.Metrics.IncrementCounter("conncache_dial_total", "result", "error")
		span.RecordError(err)
		span.SetStatus(codes.Error, "dial failed")
		c.logger.Error().
			Err(err).
			Int64("attempt", attempt).
			Dur("duration", time.Since(start)).
			Msg("Database connection attempt failed")
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeConnectionFailed, "failed to establish database connection")
	}

	c.mu.Lock()
	if c.closed.Load() {
		c.mu.Unlock()
		if cerr := conn.Close(context.Background()); cerr != nil {
			c.logger.Debug().Err(cerr).Msg("Failed to close connection established after shutdown")
		}
		return nil, pkgerrors.ErrCacheClosed
	}
	c.conn = conn
	c.ready = true
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	c.cfg.Metrics.IncrementCounter("conncache_dial_total", "result", "ok")
	c.logger.Info().
		Int64("attempt", attempt).
		Uint64("generation", gen).
		Dur("duration", time.Since(start)).
		Msg("Database connection established")

	return conn, nil
}

// resolveTarget reads the target once. A missing target is reported on
// every call until one is configured.
func (c *Cache[C]) resolveTarget() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.target != "" {
		return c.target, nil
	}

	target := strings.TrimSpace(c.cfg.Target())
	if target == "" {
		c.logger.Error().Msg("Database connection target is not configured")
		return "", pkgerrors.New(pkgerrors.CodeConfiguration, pkgerrors.ErrMissingTarget.Message)
	}

	c.target = target
	return target, nil
}

func (c *Cache[C]) observe(path, result string, start time.Time) {
	c.cfg.Metrics.IncrementCounter("conncache_acquire_total", "path", path, "result", result)
	c.cfg.Metrics.RecordHistogram("conncache_acquire_duration_seconds", time.Since(start).Seconds(), "path", path)
}

// State returns the current lifecycle state.
func (c *Cache[C]) State() State {
	if c.connecting.Load() {
		return StateConnecting
	}
	c.mu.Lock()
	ready := c.ready
	c.mu.Unlock()
	if ready {
		return StateReady
	}
	return StateEmpty
}

// Stats returns a snapshot of the cache counters.
func (c *Cache[C]) Stats() Stats {
	return Stats{
		State:      c.State().String(),
		Attempts:   c.attempts.Load(),
		Failures:   c.failures.Load(),
		StaleDrops: c.staleDrops.Load(),
	}
}

// Close closes the cached connection and rejects later acquisitions.
// It is safe to call more than once.
func (c *Cache[C]) Close(ctx context.Context) error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	c.cancel()

	var zero C
	c.mu.Lock()
	conn, ready := c.conn, c.ready
	c.conn = zero
	c.ready = false
	c.mu.Unlock()

	c.logger.Info().Bool("had_connection", ready).Msg("Closing connection cache")

	if !ready {
		return nil
	}
	if err := conn.Close(ctx); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.CodeInternal, "failed to close database connection")
	}
	return nil
}

type noopMetrics struct{}

func (noopMetrics) IncrementCounter(string, ...string)         {}
func (noopMetrics) RecordHistogram(string, float64, ...string) {}
