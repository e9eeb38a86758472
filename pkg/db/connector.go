package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"time"

	mysql "github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	log "github.com/sirupsen/logrus"

	"github.com/credrotate/credrotate/pkg/creds"
)

type Config struct {
	Driver   string
	Database string
	Params   map[string]string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Connector dials connections with whatever credentials the store currently
// holds, so a pool built once keeps working across password rotations. Each
// connection remembers the epoch it was dialed at and reports itself invalid
// once the store moves on, letting the pool retire stale connections without
// interrupting statements already in flight.
type Connector struct {
	store *creds.Store
	drv   driver.Driver
	cfg   Config
}

func NewConnector(store *creds.Store, cfg Config) (*Connector, error) {
	var drv driver.Driver
	switch cfg.Driver {
	case DriverMySQL:
		drv = mysql.MySQLDriver{}
	case DriverPostgres:
		drv = &pq.Driver{}
	default:
		return nil, fmt.Errorf("unsupported driver %q", cfg.Driver)
	}

	return &Connector{store: store, drv: drv, cfg: cfg}, nil
}

func (c *Connector) Connect(ctx context.Context) (driver.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	snap, epoch := c.store.Snapshot()
	dsn, err := buildDSN(c.cfg.Driver, snap, c.cfg)
	if err != nil {
		return nil, err
	}

	raw, err := c.drv.Open(dsn)
	if err != nil {
		if IsAuthError(err) {
			log.WithField("epoch", epoch).Errorf("authentication failed dialing %s: %s", snap.Endpoint, err)
		}
		return nil, err
	}

	return &conn{Conn: raw, store: c.store, epoch: epoch}, nil
}

func (c *Connector) Driver() driver.Driver {
	return c.drv
}

// Open builds a pool on top of a rotating Connector and applies the pool
// sizing knobs from cfg.
func Open(store *creds.Store, cfg Config) (*sql.DB, error) {
	connector, err := NewConnector(store, cfg)
	if err != nil {
		return nil, err
	}

	pool := sql.OpenDB(connector)
	if cfg.MaxOpenConns > 0 {
		pool.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		pool.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		pool.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return pool, nil
}

type conn struct {
	driver.Conn
	store *creds.Store
	epoch uint64
}

// IsValid implements driver.Validator: a connection dialed before the last
// rotation is handed back to the pool for retirement instead of reuse.
func (c *conn) IsValid() bool {
	return c.epoch == c.store.Epoch()
}

// ResetSession refuses to recycle a stale connection between uses.
func (c *conn) ResetSession(ctx context.Context) error {
	if c.epoch != c.store.Epoch() {
		return driver.ErrBadConn
	}
	if sr, ok := c.Conn.(driver.SessionResetter); ok {
		return sr.ResetSession(ctx)
	}
	return nil
}

func (c *conn) Ping(ctx context.Context) error {
	if p, ok := c.Conn.(driver.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (c *conn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	if e, ok := c.Conn.(driver.ExecerContext); ok {
		return e.ExecContext(ctx, query, args)
	}
	return nil, driver.ErrSkip
}

func (c *conn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	if q, ok := c.Conn.(driver.QueryerContext); ok {
		return q.QueryContext(ctx, query, args)
	}
	return nil, driver.ErrSkip
}

func (c *conn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	if p, ok := c.Conn.(driver.ConnPrepareContext); ok {
		return p.PrepareContext(ctx, query)
	}
	return c.Conn.Prepare(query)
}

func (c *conn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	if b, ok := c.Conn.(driver.ConnBeginTx); ok {
		return b.BeginTx(ctx, opts)
	}
	return c.Conn.Begin()
}
