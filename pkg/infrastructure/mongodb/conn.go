// Package mongodb dials the document database used in production.
package mongodb

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/event"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	pkgerrors "github.com/TFMV/gatehouse/pkg/errors"
	"github.com/TFMV/gatehouse/pkg/infrastructure/conncache"
)

const defaultDatabase = "gatehouse"

// Conn wraps a connected *mongo.Client. Its passive liveness follows the
// driver's connection pool events.
type Conn struct {
	client   *mongo.Client
	database *mongo.Database
	logger   zerolog.Logger

	mu    sync.Mutex
	pools map[string]bool // server address -> pool ready

	verified atomic.Bool
	closed   atomic.Bool
}

func newConn(logger zerolog.Logger) *Conn {
	return &Conn{
		logger: logger,
		pools:  make(map[string]bool),
	}
}

// FromClient wraps an already connected client. Pool events of that client
// are not observed, so Alive only reflects Close.
func FromClient(client *mongo.Client, database string, logger zerolog.Logger) *Conn {
	conn := newConn(logger)
	conn.client = client
	conn.database = client.Database(database)
	conn.verified.Store(true)
	return conn
}

// Alive reports whether at least one server pool is ready. Before any pool
// event arrives it reports whether the dial was verified.
func (c *Conn) Alive() bool {
	if c.closed.Load() {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.pools) == 0 {
		return c.verified.Load()
	}
	for _, ready := range c.pools {
		if ready {
			return true
		}
	}
	return false
}

// Ping round-trips to the primary.
func (c *Conn) Ping(ctx context.Context) error {
	return c.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client. It is safe to call more than once.
func (c *Conn) Close(ctx context.Context) error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	if c.client == nil {
		return nil
	}
	return c.client.Disconnect(ctx)
}

// Database returns the application database.
func (c *Conn) Database() *mongo.Database {
	return c.database
}

// Collection returns a collection of the application database.
func (c *Conn) Collection(name string) *mongo.Collection {
	return c.database.Collection(name)
}

func (c *Conn) handlePoolEvent(evt *event.PoolEvent) {
	if evt == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch evt.Type {
	case event.PoolReady:
		c.pools[evt.Address] = true
	case event.PoolCleared:
		c.pools[evt.Address] = false
		c.logger.Warn().Str("address", evt.Address).Msg("MongoDB connection pool cleared")
	case event.PoolClosedEvent:
		c.pools[evt.Address] = false
	}
}

// DialerConfig configures NewDialer.
type DialerConfig struct {
	// Database overrides the database named in the connection URI.
	Database string
	AppName  string
	// Init runs once on every new connection, e.g. to create indexes.
	Init func(ctx context.Context, conn *Conn) error
}

// NewDialer returns a dial function for conncache.
func NewDialer(cfg DialerConfig, logger zerolog.Logger) conncache.DialFunc[*Conn] {
	return func(ctx context.Context, target string, opts conncache.DialOptions) (*Conn, error) {
		conn := newConn(logger)

		clientOpts := options.Client().
			ApplyURI(target).
			SetPoolMonitor(&event.PoolMonitor{Event: conn.handlePoolEvent})
		if opts.MaxPoolSize > 0 {
			clientOpts.SetMaxPoolSize(opts.MaxPoolSize)
		}
		if cfg.AppName != "" {
			clientOpts.SetAppName(cfg.AppName)
		}
		if err := clientOpts.Validate(); err != nil {
			return nil, pkgerrors.Wrap(err, pkgerrors.CodeConfiguration, "invalid MongoDB connection URI")
		}

		client, err := mongo.Connect(ctx, clientOpts)
		if err != nil {
			return nil, pkgerrors.Wrap(err, pkgerrors.CodeConnectionFailed, "failed to connect to MongoDB")
		}
		conn.client = client

		// The Go driver connects lazily. Without buffering the handle must
		// not be handed out before a server has answered.
		if !opts.BufferCommands {
			if err := client.Ping(ctx, readpref.Primary()); err != nil {
				_ = client.Disconnect(context.Background())
				return nil, pkgerrors.Wrap(err, pkgerrors.CodeConnectionFailed, "failed to ping MongoDB")
			}
		}
		conn.verified.Store(true)

		name := cfg.Database
		if name == "" {
			name = databaseFromURI(target)
		}
		conn.database = client.Database(name)

		if cfg.Init != nil {
			if err := cfg.Init(ctx, conn); err != nil {
				_ = client.Disconnect(context.Background())
				return nil, pkgerrors.Wrap(err, pkgerrors.CodeConnectionFailed, "failed to initialize MongoDB database")
			}
		}

		logger.Debug().Str("database", name).Msg("MongoDB client connected")
		return conn, nil
	}
}

// databaseFromURI returns the database named in the URI path, or the default.
func databaseFromURI(target string) string {
	u, err := url.Parse(target)
	if err != nil {
		return defaultDatabase
	}
	name := strings.Trim(u.Path, "/")
	if name == "" {
		return defaultDatabase
	}
	return name
}
