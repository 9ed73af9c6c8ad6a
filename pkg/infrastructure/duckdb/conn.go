// Package duckdb dials an embedded DuckDB database. It backs local
// development and tests when no MongoDB deployment is available.
package duckdb

import (
	"context"
	"database/sql"
	"strings"
	"sync/atomic"

	_ "github.com/marcboeker/go-duckdb/v2"
	"github.com/rs/zerolog"

	pkgerrors "github.com/TFMV/gatehouse/pkg/errors"
	"github.com/TFMV/gatehouse/pkg/infrastructure/conncache"
)

// Scheme prefixes DuckDB connection targets, e.g. "duckdb::memory:" or
// "duckdb:/var/lib/gatehouse.db".
const Scheme = "duckdb:"

// Conn wraps an open *sql.DB.
type Conn struct {
	db     *sql.DB
	closed atomic.Bool
}

// Alive reports whether the handle has not been closed. database/sql keeps
// no connected state of its own, so this is the only passive signal.
func (c *Conn) Alive() bool {
	return !c.closed.Load()
}

// Ping verifies a connection to the database is still alive.
func (c *Conn) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Close closes the database. It is safe to call more than once.
func (c *Conn) Close(ctx context.Context) error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.db.Close()
}

// DB returns the underlying database handle.
func (c *Conn) DB() *sql.DB {
	return c.db
}

// DialerConfig configures NewDialer.
type DialerConfig struct {
	// Init runs once on every new connection, e.g. to create the schema.
	Init func(ctx context.Context, db *sql.DB) error
}

// NewDialer returns a dial function for conncache.
func NewDialer(cfg DialerConfig, logger zerolog.Logger) conncache.DialFunc[*Conn] {
	return func(ctx context.Context, target string, opts conncache.DialOptions) (*Conn, error) {
		path := Path(target)

		db, err := sql.Open("duckdb", path)
		if err != nil {
			return nil, pkgerrors.Wrap(err, pkgerrors.CodeConnectionFailed, "failed to open database")
		}

		if opts.MaxPoolSize > 0 {
			db.SetMaxOpenConns(int(opts.MaxPoolSize))
		}

		// sql.Open is lazy; verify before the handle is handed out.
		if !opts.BufferCommands {
			if err := db.PingContext(ctx); err != nil {
				db.Close()
				return nil, pkgerrors.Wrap(err, pkgerrors.CodeConnectionFailed, "failed to ping database")
			}
		}

		if cfg.Init != nil {
			if err := cfg.Init(ctx, db); err != nil {
				db.Close()
				return nil, pkgerrors.Wrap(err, pkgerrors.CodeConnectionFailed, "failed to initialize database")
			}
		}

		logger.Debug().Str("path", conncache.MaskTarget(path)).Msg("DuckDB database opened")
		return &Conn{db: db}, nil
	}
}

// Path strips the scheme from a DuckDB target.
func Path(target string) string {
	path := strings.TrimPrefix(strings.TrimSpace(target), Scheme)
	if path == "" {
		return ":memory:"
	}
	return path
}
