// Package main provides the entry point for the gatehouse server.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/TFMV/gatehouse/cmd/server/config"
	"github.com/TFMV/gatehouse/cmd/server/server"
	"github.com/TFMV/gatehouse/pkg/health"
	"github.com/TFMV/gatehouse/pkg/infrastructure/conncache"
	"github.com/TFMV/gatehouse/pkg/infrastructure/metrics"
	"github.com/TFMV/gatehouse/pkg/session"
)

var (
	// Version information (set by build flags)
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "gatehouse",
	Short: "Gatehouse profile server",
	Long: `A small profile web application with cookie sessions.

Gatehouse keeps a single shared database connection per process and
re-establishes it on demand when it is lost.`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gatehouse HTTP server",
	Long: `Start the gatehouse HTTP server with the specified configuration.

Example:
  gatehouse serve --config ./config.yaml
  MONGODB_URI=mongodb://localhost:27017/gatehouse gatehouse serve
  gatehouse serve --database-driver duckdb --database-uri duckdb::memory:`,
	RunE: runServer,
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Connect to the database once and report the result",
	RunE:  runCheck,
}

func init() {
	defaults := config.DefaultConfig()

	// Shared flags
	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "config file path")
	flags.String("address", defaults.Address, "HTTP listen address")
	flags.String("environment", defaults.Environment, "environment (development, production)")
	flags.String("log-level", defaults.LogLevel, "log level (debug, info, warn, error)")
	flags.String("log-format", defaults.LogFormat, "log format (json, console)")
	flags.Duration("shutdown-timeout", defaults.ShutdownTimeout, "graceful shutdown timeout")

	flags.String("database-driver", defaults.Database.Driver, "database driver (mongodb, duckdb)")
	flags.String("database-uri", "", "database connection URI (read on first use)")
	flags.String("database-name", defaults.Database.Name, "database name, overrides the URI path")
	flags.String("database-app-name", defaults.Database.AppName, "application name reported to the database")
	flags.Uint64("database-max-pool-size", defaults.Database.MaxPoolSize, "maximum driver pool size")
	flags.Bool("database-buffer-commands", defaults.Database.BufferCommands, "allow operations to queue while connecting")
	flags.Duration("database-connect-timeout", defaults.Database.ConnectTimeout, "connection attempt timeout")
	flags.String("database-liveness", defaults.Database.Liveness, "liveness check on each acquire (passive, ping)")
	flags.Duration("database-ping-timeout", defaults.Database.PingTimeout, "ping liveness timeout")

	flags.String("session-secret", "", "HMAC secret for session tokens (at least 32 bytes)")
	flags.String("session-issuer", defaults.Session.Issuer, "session token issuer")
	flags.String("session-audience", defaults.Session.Audience, "session token audience")
	flags.Duration("session-ttl", defaults.Session.TTL, "session lifetime")
	flags.Int("bcrypt-cost", defaults.Session.BcryptCost, "bcrypt cost, 0 for the library default")

	flags.Bool("metrics", defaults.Metrics.Enabled, "enable Prometheus metrics")
	flags.String("metrics-address", defaults.Metrics.Address, "metrics server address")
	flags.Bool("health", defaults.Health.Enabled, "enable the gRPC health watcher")
	flags.String("health-address", defaults.Health.Address, "gRPC health server address")
	flags.Duration("health-interval", defaults.Health.Interval, "database check interval")
	flags.Int("profile-cache-size", defaults.ProfileCache.Size, "profile read cache entries, 0 disables")
	flags.Duration("profile-cache-ttl", defaults.ProfileCache.TTL, "profile read cache entry lifetime, 0 never expires")

	// Bind flags to viper
	if err := viper.BindPFlags(flags); err != nil {
		panic(fmt.Errorf("failed to bind flags: %w", err))
	}
	viper.SetEnvPrefix("GATEHOUSE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()
	if err := viper.BindEnv("database-uri", "GATEHOUSE_DATABASE_URI", "MONGODB_URI"); err != nil {
		panic(fmt.Errorf("failed to bind database uri: %w", err))
	}

	rootCmd.AddCommand(serveCmd, checkCmd)

	// Add version command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Gatehouse\n")
			fmt.Printf("Version:    %s\n", version)
			fmt.Printf("Commit:     %s\n", commit)
			fmt.Printf("Build Date: %s\n", buildDate)
		},
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// databaseTarget reads the connection URI from process configuration. It is
// called when a connection is first needed, not at startup.
func databaseTarget() string {
	return strings.TrimSpace(viper.GetString("database-uri"))
}

func runServer(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Setup logging
	logger := setupLogging(cfg.LogLevel, cfg.LogFormat)
	logger.Info().
		Str("version", version).
		Str("commit", commit).
		Str("build_date", buildDate).
		Str("environment", cfg.Environment).
		Str("driver", cfg.Database.Driver).
		Msg("Starting gatehouse")

	if cfg.Session.GeneratedSecret {
		logger.Warn().Msg("No session secret configured; generated an ephemeral one. Sessions will not survive a restart")
	}

	// Create metrics collector
	var metricsCollector metrics.Collector
	var metricsServer *metrics.MetricsServer
	if cfg.Metrics.Enabled {
		prom := metrics.NewPrometheusCollector()
		metricsCollector = prom
		metricsServer = metrics.NewMetricsServer(cfg.Metrics.Address, prom.Handler())
		go func() {
			logger.Info().Str("address", cfg.Metrics.Address).Msg("Starting metrics server")
			if err := metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("Metrics server failed")
			}
		}()
	} else {
		metricsCollector = metrics.NewNoOpCollector()
	}

	// Create the connection cache and repository. Nothing connects yet.
	st, err := openStore(cfg.Database, databaseTarget, metricsCollector, logger)
	if err != nil {
		return fmt.Errorf("failed to create database store: %w", err)
	}

	sessions, err := session.NewManager(session.Config{
		Secret:   cfg.Session.Secret,
		Issuer:   cfg.Session.Issuer,
		Audience: cfg.Session.Audience,
		TTL:      cfg.Session.TTL,
		Secure:   cfg.IsProduction(),
	})
	if err != nil {
		return fmt.Errorf("failed to create session manager: %w", err)
	}

	srv, err := server.New(cfg, server.Dependencies{
		Users:    st.users,
		Sessions: sessions,
		Health:   st.check,
		Stats:    st.stats,
		Metrics:  metricsCollector,
	}, logger.With().Str("component", "http").Logger())
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start the health watcher
	var watcher *health.Watcher
	if cfg.Health.Enabled {
		watcher, err = startWatcher(ctx, cfg.Health, st.check, logger)
		if err != nil {
			return err
		}
	}

	// Setup graceful shutdown
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, os.Interrupt, syscall.SIGTERM)

	// Start server
	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			serverErrCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	// Wait for shutdown signal or server error
	var runErr error
	select {
	case <-shutdownCh:
		logger.Info().Msg("Received shutdown signal")
	case runErr = <-serverErrCh:
		logger.Error().Err(runErr).Msg("HTTP server failed")
	}

	// Graceful shutdown
	logger.Info().Dur("timeout", cfg.ShutdownTimeout).Msg("Starting graceful shutdown")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Error shutting down HTTP server")
	}

	cancel()
	if watcher != nil {
		watcher.Stop()
	}

	if metricsServer != nil {
		if err := metricsServer.Stop(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Error stopping metrics server")
		}
	}

	if err := st.close(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Error closing database connection")
	}

	logger.Info().Msg("Server shutdown complete")
	return runErr
}

func startWatcher(ctx context.Context, cfg config.HealthConfig, check health.Check, logger zerolog.Logger) (*health.Watcher, error) {
	lis, err := net.Listen("tcp", cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to create health listener: %w", err)
	}

	watcherLogger := logger.With().Str("component", "health").Logger()
	watcher := health.NewWatcher(health.Config{Interval: cfg.Interval}, check, watcherLogger)

	go func() {
		watcherLogger.Info().Str("address", cfg.Address).Msg("Starting gRPC health server")
		if err := watcher.Serve(lis); err != nil {
			watcherLogger.Error().Err(err).Msg("gRPC health server failed")
		}
	}()
	go watcher.Run(ctx)

	return watcher, nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := setupLogging(cfg.LogLevel, cfg.LogFormat)

	st, err := openStore(cfg.Database, databaseTarget, metrics.NewNoOpCollector(), logger)
	if err != nil {
		return fmt.Errorf("failed to create database store: %w", err)
	}
	defer st.close(context.Background())

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Database.ConnectTimeout+time.Second)
	defer cancel()

	target := conncache.MaskTarget(databaseTarget())
	if err := st.check(ctx); err != nil {
		return fmt.Errorf("database %s (%s) unreachable: %w", cfg.Database.Driver, target, err)
	}

	stats := st.stats()
	fmt.Fprintf(cmd.OutOrStdout(), "database %s (%s) reachable, state %s\n", cfg.Database.Driver, target, stats.State)
	return nil
}

func loadConfig() (*config.Config, error) {
	// Load config file if specified
	if configFile := viper.GetString("config"); configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Build configuration
	cfg := &config.Config{
		Address:         viper.GetString("address"),
		Environment:     viper.GetString("environment"),
		LogLevel:        viper.GetString("log-level"),
		LogFormat:       viper.GetString("log-format"),
		ShutdownTimeout: viper.GetDuration("shutdown-timeout"),
		Database: config.DatabaseConfig{
			Driver:         viper.GetString("database-driver"),
			Name:           viper.GetString("database-name"),
			AppName:        viper.GetString("database-app-name"),
			MaxPoolSize:    viper.GetUint64("database-max-pool-size"),
			BufferCommands: viper.GetBool("database-buffer-commands"),
			ConnectTimeout: viper.GetDuration("database-connect-timeout"),
			Liveness:       viper.GetString("database-liveness"),
			PingTimeout:    viper.GetDuration("database-ping-timeout"),
		},
		Session: config.SessionConfig{
			Secret:     viper.GetString("session-secret"),
			Issuer:     viper.GetString("session-issuer"),
			Audience:   viper.GetString("session-audience"),
			TTL:        viper.GetDuration("session-ttl"),
			BcryptCost: viper.GetInt("bcrypt-cost"),
		},
		Metrics: config.MetricsConfig{
			Enabled: viper.GetBool("metrics"),
			Address: viper.GetString("metrics-address"),
		},
		Health: config.HealthConfig{
			Enabled:  viper.GetBool("health"),
			Address:  viper.GetString("health-address"),
			Interval: viper.GetDuration("health-interval"),
		},
		ProfileCache: config.ProfileCacheConfig{
			Size: viper.GetInt("profile-cache-size"),
			TTL:  viper.GetDuration("profile-cache-ttl"),
		},
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func setupLogging(level, format string) zerolog.Logger {
	// Configure zerolog
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.DurationFieldUnit = time.Millisecond

	// Set log level
	var logLevel zerolog.Level
	switch level {
	case "debug":
		logLevel = zerolog.DebugLevel
		// Enable caller info for debug level
		zerolog.CallerMarshalFunc = func(pc uintptr, file string, line int) string {
			short := file
			for i := len(file) - 1; i > 0; i-- {
				if file[i] == '/' {
					short = file[i+1:]
					break
				}
			}
			return fmt.Sprintf("%s:%d", short, line)
		}
	case "info":
		logLevel = zerolog.InfoLevel
	case "warn":
		logLevel = zerolog.WarnLevel
	case "error":
		logLevel = zerolog.ErrorLevel
	default:
		logLevel = zerolog.InfoLevel
	}

	var out io.Writer = os.Stdout
	if format == "console" {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}

	// Create logger with caller info for debug level
	logger := zerolog.New(out).
		Level(logLevel).
		With().
		Timestamp().
		Str("service", "gatehouse")

	if logLevel == zerolog.DebugLevel {
		logger = logger.Caller()
	}

	return logger.Logger()
}
