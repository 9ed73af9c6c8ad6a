// Package server assembles the gatehouse HTTP server.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/TFMV/gatehouse/cmd/server/config"
	"github.com/TFMV/gatehouse/cmd/server/middleware"
	"github.com/TFMV/gatehouse/pkg/cache"
	"github.com/TFMV/gatehouse/pkg/handlers"
	"github.com/TFMV/gatehouse/pkg/infrastructure/conncache"
	"github.com/TFMV/gatehouse/pkg/infrastructure/metrics"
	"github.com/TFMV/gatehouse/pkg/repositories"
	"github.com/TFMV/gatehouse/pkg/services"
	"github.com/TFMV/gatehouse/pkg/session"
)

const (
	readHeaderTimeout = 10 * time.Second
	httpSpanName      = "gatehouse.http"
)

// Dependencies are the components the server is built from.
type Dependencies struct {
	Users    repositories.UserRepository
	Sessions *session.Manager
	Health   handlers.HealthCheck
	Stats    func() conncache.Stats
	Metrics  metrics.Collector
}

// Server is the gatehouse HTTP server.
type Server struct {
	config *config.Config
	logger zerolog.Logger

	router     chi.Router
	httpServer *http.Server

	mu      sync.Mutex
	closing bool
}

// New creates a new server.
func New(cfg *config.Config, deps Dependencies, logger zerolog.Logger) (*Server, error) {
	if deps.Users == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	if deps.Sessions == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	if deps.Health == nil {
		return nil, fmt.Errorf("health check is required")
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewNoOpCollector()
	}

	// Create adapters
	logAdapter := &loggerAdapter{logger: logger}
	handlerMetrics := &handlerMetricsAdapter{collector: deps.Metrics}
	serviceMetrics := &serviceMetricsAdapter{collector: deps.Metrics}

	// Create services
	authService, err := services.NewAuthService(deps.Users, deps.Sessions, cfg.Session.BcryptCost,
		logAdapter.with("component", "auth"), serviceMetrics)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth service: %w", err)
	}
	profileCache := cache.Config{
		MaxEntries:  cfg.ProfileCache.Size,
		TTL:         cfg.ProfileCache.TTL,
		EnableStats: true,
	}
	profileService, err := services.NewProfileService(deps.Users, profileCache,
		logAdapter.with("component", "profiles"), serviceMetrics)
	if err != nil {
		return nil, fmt.Errorf("failed to create profile service: %w", err)
	}

	// Create handlers
	authHandler := handlers.NewAuthHandler(authService, deps.Sessions, logAdapter, handlerMetrics)
	profileHandler := handlers.NewProfileHandler(profileService, logAdapter, handlerMetrics)
	pageHandler := handlers.NewPageHandler(profileService, deps.Sessions, logAdapter)
	healthHandler := handlers.NewHealthHandler(deps.Health, deps.Stats, logAdapter)

	auth := middleware.NewAuthMiddleware(deps.Sessions, handlers.LoginPath, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.NewLoggingMiddleware(logger).Handler)
	r.Use(middleware.NewRecoveryMiddleware(logger).Handler)
	r.Use(middleware.NewMetricsMiddleware(deps.Metrics).Handler)

	r.Get("/healthz", healthHandler.Healthz)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/logout", authHandler.Logout)
		r.Get("/users/{id}", profileHandler.GetUser)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireSession)
			r.Get("/profile", profileHandler.GetOwn)
			r.Put("/profile", profileHandler.UpdateOwn)
		})
	})

	r.Get(handlers.LoginPath, pageHandler.Login)
	r.With(auth.RequirePage).Get("/dashboard", pageHandler.Dashboard)
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/dashboard", http.StatusFound)
	})

	return &Server{
		config: cfg,
		logger: logger,
		router: r,
		httpServer: &http.Server{
			Addr:              cfg.Address,
			Handler:           otelhttp.NewHandler(r, httpSpanName),
			ReadHeaderTimeout: readHeaderTimeout,
		},
	}, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves HTTP until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.config.Address).Msg("Starting HTTP server")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return nil
	}
	s.closing = true
	s.mu.Unlock()

	s.logger.Info().Msg("Shutting down HTTP server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down HTTP server: %w", err)
	}
	s.logger.Info().Msg("HTTP server stopped")
	return nil
}
