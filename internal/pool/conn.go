package pool

import (
	"context"
	"net"
)

// Result is the outcome of a driver query, mirroring the shape a
// PostgreSQL wire-protocol client returns: the row data plus a count.
type Result struct {
	Rows     []Row
	RowCount int64
}

// Row is a single result row, one value per selected column in order.
type Row []any

// Conn is the minimal driver interface the pool requires from an
// underlying single-session PostgreSQL client. It is intentionally
// narrow: statement execution, parameter binding at the $N level, and
// wire-protocol details belong entirely to the implementation (see
// internal/pgxconn for the production adapter over pgx/v5).
type Conn interface {
	// Connect establishes the underlying session. Called exactly once
	// per Conn instance, before any Query.
	Connect(ctx context.Context) error

	// Query executes text with the given positional arguments ($1, $2, ...).
	Query(ctx context.Context, text string, args []any) (*Result, error)

	// Close releases the session. Must be safe to call more than once.
	Close(ctx context.Context) error

	// SetErrorListener registers the single callback invoked when the
	// driver detects an asynchronous connection error (e.g. the server
	// closed the socket). Passing nil must silence further callbacks.
	SetErrorListener(func(error))

	// RawConn exposes the underlying transport for forced teardown after
	// a failed connect (§5's socket-destroy requirement). Implementations
	// that cannot expose it return (nil, false); the pool then falls back
	// to Close alone.
	RawConn() (net.Conn, bool)
}

// Factory constructs a fresh, not-yet-connected Conn. The pool calls it
// once per physical connection it creates.
type Factory func() Conn
