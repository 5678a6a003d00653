// Package pgxconn adapts a single pgx/v5 session to the pool.Conn
// interface. It is deliberately built on pgx.Conn rather than
// pgxpool.Pool: the pooling semantics (fair queueing, idle reaping,
// failover-aware retry) live one layer up in internal/pool, and this
// package's only job is to speak the wire protocol for one physical
// connection at a time.
package pgxconn

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kevin07696/pgpool/internal/pool"
)

// Conn wraps a *pgx.Conn. The zero value is not usable; construct with New.
type Conn struct {
	dsn              string
	statementTimeout time.Duration

	mu       sync.Mutex
	conn     *pgx.Conn
	listener func(error)
}

// New returns a pool.Factory that dials dsn. Pass it as the first argument
// of pool.NewOptions so the pool creates one of these per physical connection.
// statementTimeout, if positive, is forwarded verbatim to the server as the
// session's statement_timeout runtime parameter (spec §4.1) — matching
// whatever value the caller also passed to pool.WithStatementTimeout.
func New(dsn string, statementTimeout time.Duration) pool.Factory {
	return func() pool.Conn {
		return &Conn{dsn: dsn, statementTimeout: statementTimeout}
	}
}

// Connect implements pool.Conn.
func (c *Conn) Connect(ctx context.Context) error {
	cfg, err := pgx.ParseConfig(c.dsn)
	if err != nil {
		return err
	}
	if c.statementTimeout > 0 {
		cfg.RuntimeParams["statement_timeout"] = strconv.FormatInt(c.statementTimeout.Milliseconds(), 10)
	}

	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return nil
}

// Query implements pool.Conn, translating pgx's row iterator into the
// pool's buffered Result so callers never hold a live cursor past the
// call that produced it.
func (c *Conn) Query(ctx context.Context, text string, args []any) (*pool.Result, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil, pgx.ErrTxClosed
	}

	rows, err := conn.Query(ctx, text, args...)
	if err != nil {
		c.notifyIfConnectionError(err)
		return nil, err
	}
	defer rows.Close()

	result := &pool.Result{}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			c.notifyIfConnectionError(err)
			return nil, err
		}
		result.Rows = append(result.Rows, pool.Row(values))
	}
	if err := rows.Err(); err != nil {
		c.notifyIfConnectionError(err)
		return nil, err
	}
	result.RowCount = int64(len(result.Rows))
	if tag := rows.CommandTag(); tag.RowsAffected() > result.RowCount {
		result.RowCount = tag.RowsAffected()
	}
	return result, nil
}

// Close implements pool.Conn. Safe to call more than once.
func (c *Conn) Close(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close(ctx)
}

// SetErrorListener implements pool.Conn. The listener is called only from
// Query, for a failed query whose error is not a server-reported PgError;
// a connection that drops while idle is not detected.
func (c *Conn) SetErrorListener(f func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listener = f
}

// RawConn implements pool.Conn by reaching into pgx's internal pgconn
// connection for its net.Conn. The session is stored only after a
// successful Connect, so after a failed Connect RawConn reports
// (nil, false) and teardown is left to pgx itself.
func (c *Conn) RawConn() (net.Conn, bool) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil, false
	}
	pgConn := conn.PgConn()
	if pgConn == nil {
		return nil, false
	}
	return pgConn.Conn(), true
}

func (c *Conn) notifyIfConnectionError(err error) {
	if !isConnectionBroken(err) {
		return
	}
	c.mu.Lock()
	listener := c.listener
	c.mu.Unlock()
	if listener != nil {
		listener(err)
	}
}

func isConnectionBroken(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if asPgError(err, &pgErr) {
		return false
	}
	return true
}

func asPgError(err error, target **pgconn.PgError) bool {
	for err != nil {
		if pe, ok := err.(*pgconn.PgError); ok {
			*target = pe
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
