package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/TFMV/gatehouse/pkg/errors"
	"github.com/TFMV/gatehouse/pkg/infrastructure/conncache"
)

func TestPath(t *testing.T) {
	tests := []struct {
		target string
		want   string
	}{
		{"duckdb::memory:", ":memory:"},
		{"duckdb:", ":memory:"},
		{"", ":memory:"},
		{":memory:", ":memory:"},
		{"duckdb:/var/lib/gatehouse.db", "/var/lib/gatehouse.db"},
		{"data/app.db", "data/app.db"},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			assert.Equal(t, tt.want, Path(tt.target))
		})
	}
}

func TestNewDialer(t *testing.T) {
	logger := zerolog.New(zerolog.NewTestWriter(t))
	ctx := context.Background()

	t.Run("open in memory", func(t *testing.T) {
		var inits int
		dial := NewDialer(DialerConfig{Init: func(ctx context.Context, db *sql.DB) error {
			inits++
			_, err := db.ExecContext(ctx, "CREATE TABLE probe (id INTEGER)")
			return err
		}}, logger)

		conn, err := dial(ctx, "duckdb::memory:", conncache.DialOptions{MaxPoolSize: 4})
		require.NoError(t, err)
		defer conn.Close(ctx)

		assert.Equal(t, 1, inits)
		assert.True(t, conn.Alive())
		require.NoError(t, conn.Ping(ctx))

		var result int
		require.NoError(t, conn.DB().QueryRowContext(ctx, "SELECT count(*) FROM probe").Scan(&result))
		assert.Equal(t, 0, result)
		assert.Equal(t, 4, conn.DB().Stats().MaxOpenConnections)
	})

	t.Run("init failure closes the database", func(t *testing.T) {
		dial := NewDialer(DialerConfig{Init: func(ctx context.Context, db *sql.DB) error {
			return fmt.Errorf("migration failed")
		}}, logger)

		_, err := dial(ctx, "duckdb::memory:", conncache.DialOptions{})
		require.Error(t, err)
		assert.True(t, pkgerrors.IsConnection(err))
		assert.Contains(t, err.Error(), "migration failed")
	})

	t.Run("close is idempotent", func(t *testing.T) {
		dial := NewDialer(DialerConfig{}, logger)
		conn, err := dial(ctx, "duckdb::memory:", conncache.DialOptions{})
		require.NoError(t, err)

		require.NoError(t, conn.Close(ctx))
		assert.False(t, conn.Alive())
		require.NoError(t, conn.Close(ctx))
		assert.Error(t, conn.Ping(ctx))
	})
}

func TestCacheWithDuckDB(t *testing.T) {
	logger := zerolog.New(zerolog.NewTestWriter(t))
	ctx := context.Background()

	cache, err := conncache.New[*Conn](conncache.Config{
		Target:   func() string { return "duckdb::memory:" },
		Liveness: conncache.LivenessPing,
	}, NewDialer(DialerConfig{}, logger), logger)
	require.NoError(t, err)
	defer cache.Close(ctx)

	first, err := cache.Acquire(ctx)
	require.NoError(t, err)

	second, err := cache.Acquire(ctx)
	require.NoError(t, err)
	assert.Same(t, first, second)

	// A handle closed underneath the cache fails the ping and is replaced.
	require.NoError(t, first.DB().Close())

	third, err := cache.Acquire(ctx)
	require.NoError(t, err)
	assert.NotSame(t, first, third)
	require.NoError(t, third.Ping(ctx))
	assert.Equal(t, int64(2), cache.Stats().Attempts)
}
