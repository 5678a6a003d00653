package pool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevin07696/pgpool/internal/fakeconn"
)

func newTestPool(t *testing.T, size int, scriptFn func(attempt int) fakeconn.Script) (*Pool, *fakeconn.Factory) {
	t.Helper()
	factory := fakeconn.NewFactory(scriptFn)
	p := New(NewOptions(
		factory.Dial,
		WithPoolSize(size),
		WithIdleTimeoutMillis(50),
		WithWaitForAvailableConnectionTimeoutMillis(200),
		WithConnectionTimeoutMillis(1000),
	))
	return p, factory
}

func okScript(int) fakeconn.Script { return fakeconn.Script{} }

func TestAcquireCreatesUpToPoolSize(t *testing.T) {
	p, factory := newTestPool(t, 2, okScript)

	c1, err := p.Acquire(context.Background())
	require.NoError(t, err)
	c2, err := p.Acquire(context.Background())
	require.NoError(t, err)

	assert.NotEqual(t, c1.ID(), c2.ID())
	assert.Equal(t, 2, factory.DialCount())
	assert.Equal(t, Stats{Total: 2, Idle: 0, Waiting: 0}, p.Stats())
}

func TestAcquireReusesReleasedIdleConnection(t *testing.T) {
	p, factory := newTestPool(t, 1, okScript)

	c1, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, c1.Release(false))

	c2, err := p.Acquire(context.Background())
	require.NoError(t, err)

	assert.Equal(t, c1.ID(), c2.ID())
	assert.Equal(t, 1, factory.DialCount())
}

func TestAcquireQueuesAndTimesOutWhenPoolExhausted(t *testing.T) {
	p, _ := newTestPool(t, 1, okScript)

	c1, err := p.Acquire(context.Background())
	require.NoError(t, err)
	_ = c1

	start := time.Now()
	_, err = p.Acquire(context.Background())
	elapsed := time.Since(start)

	require.Error(t, err)
	code, ok := CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, ErrCodeConnectionTimeout, code)
	assert.GreaterOrEqual(t, elapsed, 200*time.Millisecond)
	assert.Equal(t, 0, p.Stats().Waiting, "timed-out waiter must be spliced out of the queue")
}

func TestReleaseHandsOffToQueuedWaiterFIFO(t *testing.T) {
	p, _ := newTestPool(t, 1, okScript)

	c1, err := p.Acquire(context.Background())
	require.NoError(t, err)

	type result struct {
		conn *PooledConnection
		err  error
	}
	resCh := make(chan result, 1)
	go func() {
		conn, err := p.Acquire(context.Background())
		resCh <- result{conn, err}
	}()

	// Give the waiter time to enqueue before releasing.
	require.Eventually(t, func() bool { return p.Stats().Waiting == 1 }, time.Second, time.Millisecond)

	require.NoError(t, c1.Release(false))

	select {
	case res := <-resCh:
		require.NoError(t, res.err)
		assert.Equal(t, c1.ID(), res.conn.ID())
	case <-time.After(time.Second):
		t.Fatal("waiter was never handed off a connection")
	}
}

func TestAcquireFailsAfterEnd(t *testing.T) {
	p, _ := newTestPool(t, 1, okScript)

	require.NoError(t, p.End(context.Background()))

	_, err := p.Acquire(context.Background())
	require.Error(t, err)
	code, ok := CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, ErrCodePoolEnded, code)
}

func TestEndRemovesIdleConnections(t *testing.T) {
	p, factory := newTestPool(t, 2, okScript)

	c1, err := p.Acquire(context.Background())
	require.NoError(t, err)
	c2, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, c1.Release(false))
	require.NoError(t, c2.Release(false))

	require.Equal(t, 2, factory.DialCount())
	require.NoError(t, p.End(context.Background()))

	assert.Equal(t, Stats{Total: 0, Idle: 0, Waiting: 0}, p.Stats())
}

func TestReleaseIsIdempotent(t *testing.T) {
	p, _ := newTestPool(t, 1, okScript)

	c1, err := p.Acquire(context.Background())
	require.NoError(t, err)

	assert.NoError(t, c1.Release(false))
	assert.NoError(t, c1.Release(false), "a second Release must be a safe no-op")
}

func TestIdleConnectionIsReapedAfterTimeout(t *testing.T) {
	p, factory := newTestPool(t, 1, okScript)

	c1, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, c1.Release(false))

	require.Eventually(t, func() bool {
		return p.Stats().Total == 0
	}, time.Second, 5*time.Millisecond)

	c2, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, c1.ID(), c2.ID())
	assert.Equal(t, 2, factory.DialCount())
}

// TestAsyncErrorOnIdleConnectionRemovesIt exercises the errorHook wiring
// (spec §4.4 step 1): a driver-reported error with no caller mid-Query to
// see it must still cause the pool to drop the affected idle connection.
func TestAsyncErrorOnIdleConnectionRemovesIt(t *testing.T) {
	factory := fakeconn.NewFactory(okScript)

	var mu sync.Mutex
	var dialed []*fakeconn.Conn
	p := New(NewOptions(
		func() Conn {
			c := factory.Dial()
			mu.Lock()
			dialed = append(dialed, c.(*fakeconn.Conn))
			mu.Unlock()
			return c
		},
		WithPoolSize(1),
		WithIdleTimeoutMillis(5000),
	))

	c1, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, c1.Release(false))
	require.Equal(t, Stats{Total: 1, Idle: 1, Waiting: 0}, p.Stats())

	var reportedErr error
	p.opts.Events.Error = func(err error, connectionID string) { reportedErr = err }

	mu.Lock()
	conn := dialed[0]
	mu.Unlock()
	conn.Fail(errors.New("server closed the connection unexpectedly"))

	require.Eventually(t, func() bool {
		return p.Stats().Total == 0
	}, time.Second, 5*time.Millisecond)
	assert.Error(t, reportedErr)
}
