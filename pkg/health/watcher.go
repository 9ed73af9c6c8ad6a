// Package health publishes database reachability through the standard gRPC
// health service so orchestrators can probe the server without HTTP.
package health

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the service whose status tracks the database.
const ServiceName = "gatehouse.database"

// Check reports whether the database can be reached.
type Check func(ctx context.Context) error

// Config configures a Watcher.
type Config struct {
	Interval time.Duration
	// Timeout bounds a single check. It defaults to Interval.
	Timeout time.Duration
}

// Watcher periodically runs a check and publishes the result. It only
// reports; request handling still checks the connection on every acquire.
type Watcher struct {
	cfg    Config
	check  Check
	logger zerolog.Logger

	health *health.Server
	grpc   *grpc.Server

	mu      sync.Mutex
	serving bool
	checked bool
}

// NewWatcher creates a new watcher. Until the first check completes every
// service reports NOT_SERVING.
func NewWatcher(cfg Config, check Check, logger zerolog.Logger) *Watcher {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = cfg.Interval
	}

	hs := health.NewServer()
	hs.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	gs := grpc.NewServer(
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    30 * time.Second,
			Timeout: 10 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
	)
	grpc_health_v1.RegisterHealthServer(gs, hs)
	reflection.Register(gs)

	return &Watcher{
		cfg:    cfg,
		check:  check,
		logger: logger,
		health: hs,
		grpc:   gs,
	}
}

// Run checks once immediately and then on every interval until ctx ends.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	w.probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.probe(ctx)
		}
	}
}

func (w *Watcher) probe(ctx context.Context) {
	checkCtx, cancel := context.WithTimeout(ctx, w.cfg.Timeout)
	defer cancel()

	err := w.check(checkCtx)
	if ctx.Err() != nil {
		return
	}
	w.publish(err == nil, err)
}

func (w *Watcher) publish(serving bool, err error) {
	w.mu.Lock()
	changed := !w.checked || w.serving != serving
	w.serving = serving
	w.checked = true
	w.mu.Unlock()

	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	w.health.SetServingStatus("", status)
	w.health.SetServingStatus(ServiceName, status)

	if !changed {
		return
	}
	if serving {
		w.logger.Info().Msg("Database reachable")
	} else {
		w.logger.Warn().Err(err).Msg("Database unreachable")
	}
}

// Serving reports the last published status.
func (w *Watcher) Serving() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.serving
}

// Serve serves the gRPC health service on lis. It blocks until Stop.
func (w *Watcher) Serve(lis net.Listener) error {
	return w.grpc.Serve(lis)
}

// Stop marks every service NOT_SERVING and stops the gRPC server.
func (w *Watcher) Stop() {
	w.health.Shutdown()
	w.grpc.GracefulStop()
}
