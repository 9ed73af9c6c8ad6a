package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/TFMV/gatehouse/cmd/server/config"
	"github.com/TFMV/gatehouse/pkg/infrastructure/conncache"
	duckconn "github.com/TFMV/gatehouse/pkg/infrastructure/duckdb"
	"github.com/TFMV/gatehouse/pkg/infrastructure/metrics"
	mongoconn "github.com/TFMV/gatehouse/pkg/infrastructure/mongodb"
	"github.com/TFMV/gatehouse/pkg/repositories"
	duckrepo "github.com/TFMV/gatehouse/pkg/repositories/duckdb"
	mongorepo "github.com/TFMV/gatehouse/pkg/repositories/mongodb"
)

// store bundles the user repository with the connection cache behind it.
type store struct {
	users repositories.UserRepository
	check func(ctx context.Context) error
	stats func() conncache.Stats
	close func(ctx context.Context) error
}

func newStore[C conncache.Conn](cache *conncache.Cache[C], users repositories.UserRepository) *store {
	return &store{
		users: users,
		check: func(ctx context.Context) error {
			_, err := cache.Acquire(ctx)
			return err
		},
		stats: cache.Stats,
		close: cache.Close,
	}
}

// openStore builds the connection cache for the configured driver. No
// connection is made until the first request needs one.
func openStore(cfg config.DatabaseConfig, target conncache.TargetFunc, collector metrics.Collector, logger zerolog.Logger) (*store, error) {
	liveness, err := conncache.ParseLivenessMode(cfg.Liveness)
	if err != nil {
		return nil, err
	}

	cacheCfg := conncache.Config{
		Target: target,
		Options: conncache.DialOptions{
			BufferCommands: cfg.BufferCommands,
			MaxPoolSize:    cfg.MaxPoolSize,
		},
		ConnectTimeout: cfg.ConnectTimeout,
		Liveness:       liveness,
		PingTimeout:    cfg.PingTimeout,
		Metrics:        collector,
	}
	cacheLogger := logger.With().Str("component", "conncache").Str("driver", cfg.Driver).Logger()
	repoLogger := logger.With().Str("component", "user_repository").Logger()

	switch cfg.Driver {
	case config.DriverMongoDB:
		dial := mongoconn.NewDialer(mongoconn.DialerConfig{
			Database: cfg.Name,
			AppName:  cfg.AppName,
			Init:     mongorepo.EnsureIndexes,
		}, cacheLogger)
		cache, err := conncache.New[*mongoconn.Conn](cacheCfg, dial, cacheLogger)
		if err != nil {
			return nil, err
		}
		return newStore(cache, mongorepo.NewUserRepository(cache, repoLogger)), nil

	case config.DriverDuckDB:
		dial := duckconn.NewDialer(duckconn.DialerConfig{
			Init: duckrepo.EnsureSchema,
		}, cacheLogger)
		cache, err := conncache.New[*duckconn.Conn](cacheCfg, dial, cacheLogger)
		if err != nil {
			return nil, err
		}
		return newStore(cache, duckrepo.NewUserRepository(cache, repoLogger)), nil

	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}
