package pool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevin07696/pgpool/internal/fakeconn"
)

func TestQuerySucceedsAndReleasesConnection(t *testing.T) {
	p, factory := newTestPool(t, 1, okScript)

	res, err := p.Query(context.Background(), "SELECT 1", nil)
	require.NoError(t, err)
	assert.NotNil(t, res)
	assert.Equal(t, Stats{Total: 1, Idle: 1, Waiting: 0}, p.Stats())
	assert.Equal(t, 1, factory.DialCount())
}

func TestQueryRetriesOnReadOnlyTransactionError(t *testing.T) {
	var queries int64
	factory := fakeconn.NewFactory(func(attempt int) fakeconn.Script {
		return fakeconn.Script{}
	})
	// Override query behavior: the pool's first query fails, every later one succeeds.
	p := New(NewOptions(
		func() Conn {
			c := factory.Dial()
			return &flakyReadOnlyConn{Conn: c, counter: &queries}
		},
		WithPoolSize(2),
		WithReadOnlyTransactionRetry(true, 1, 5000),
		WithWaitForAvailableConnectionTimeoutMillis(2000),
	))

	res, err := p.Query(context.Background(), "SELECT 1", nil)
	require.NoError(t, err)
	assert.NotNil(t, res)
	assert.GreaterOrEqual(t, factory.DialCount(), 2, "the stale connection must be removed and a new one connected")
}

// flakyReadOnlyConn fails its first Query with a read-only-transaction
// error, then behaves normally on any connection dialed afterward.
type flakyReadOnlyConn struct {
	Conn
	counter *int64
	failed  bool
}

func (c *flakyReadOnlyConn) Query(ctx context.Context, text string, args []any) (*Result, error) {
	if !c.failed && atomic.AddInt64(c.counter, 1) == 1 {
		c.failed = true
		return nil, errors.New("cannot execute INSERT in a read-only transaction")
	}
	return c.Conn.Query(ctx, text, args)
}

// TestQueryRetryDrainsIdleConnections proves spec §4.6 step 5: on a
// failover retry, every idle connection is removed, not just the one that
// hit the read-only-transaction error, so a subsequent Acquire can't hand
// back a connection still pointed at the old primary.
func TestQueryRetryDrainsIdleConnections(t *testing.T) {
	var queries int64
	factory := fakeconn.NewFactory(okScript)
	p := New(NewOptions(
		func() Conn {
			c := factory.Dial()
			return &flakyReadOnlyConn{Conn: c, counter: &queries}
		},
		WithPoolSize(3),
		WithReadOnlyTransactionRetry(true, 1, 5000),
		WithWaitForAvailableConnectionTimeoutMillis(2000),
	))

	c1, err := p.Acquire(context.Background())
	require.NoError(t, err)
	c2, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, c1.Release(false))
	require.NoError(t, c2.Release(false))
	require.Equal(t, Stats{Total: 2, Idle: 2, Waiting: 0}, p.Stats())

	res, err := p.Query(context.Background(), "SELECT 1", nil)
	require.NoError(t, err)
	assert.NotNil(t, res)

	// Both pre-existing idle connections must be gone: the one that took
	// the query (removed by the retry branch itself) and the other one
	// (removed only by drainIdleConnections). The surviving connection is
	// the fresh one dialed on retry.
	assert.Equal(t, Stats{Total: 1, Idle: 1, Waiting: 0}, p.Stats())
	assert.Equal(t, 3, factory.DialCount())
}

func TestQueryGivesUpAfterRetryBudgetExpires(t *testing.T) {
	factory := fakeconn.NewFactory(okScript)
	p := New(NewOptions(
		func() Conn {
			return &alwaysReadOnlyConn{Conn: factory.Dial()}
		},
		WithPoolSize(1),
		WithReadOnlyTransactionRetry(true, 1, 20),
	))

	_, err := p.Query(context.Background(), "SELECT 1", nil)
	require.Error(t, err)
}

type alwaysReadOnlyConn struct{ Conn }

func (c *alwaysReadOnlyConn) Query(ctx context.Context, text string, args []any) (*Result, error) {
	return nil, errors.New("cannot execute UPDATE in a read-only transaction")
}

func TestQueryNamedRewritesBeforeExecuting(t *testing.T) {
	p, _ := newTestPool(t, 1, func(int) fakeconn.Script {
		return fakeconn.Script{Result: &Result{RowCount: 1}}
	})

	res, err := p.QueryNamed(context.Background(), "SELECT * FROM t WHERE id = @id", map[string]any{"id": 42})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.RowCount)
}

func TestQueryTimesOutWithContextDeadline(t *testing.T) {
	p, _ := newTestPool(t, 1, okScript)
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)

	_, err := p.Query(ctx, "SELECT 1", nil)
	require.Error(t, err)
}
