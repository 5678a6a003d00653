package pool

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// connState is a PooledConnection's position in its lifecycle (spec §3).
type connState int

const (
	stateConnecting connState = iota
	stateInUse
	stateIdle
	stateRemoving
	stateGone
)

func (s connState) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateInUse:
		return "in_use"
	case stateIdle:
		return "idle"
	case stateRemoving:
		return "removing"
	case stateGone:
		return "gone"
	default:
		return "unknown"
	}
}

// PooledConnection wraps a driver Conn with pool-managed identity and
// lifecycle. Callers obtain one from Pool.Acquire and must return it via
// Release exactly once.
type PooledConnection struct {
	id   string
	pool *Pool
	conn Conn

	mu         sync.Mutex
	state      connState
	idleTimer  *time.Timer
	released   bool
}

// ID returns the connection's stable identifier.
func (pc *PooledConnection) ID() string { return pc.id }

// Query executes text on this connection's underlying driver session. It
// does not retry — retry policy lives in Pool.Query, which acquires,
// executes, and releases a PooledConnection for the caller. Direct use of
// Query is for callers that manage their own acquire/release span (spec
// §1's scope: "beyond the caller's explicit acquire/release span" is a
// non-goal, not a prohibition on using that span directly).
func (pc *PooledConnection) Query(ctx context.Context, text string, args []any) (*Result, error) {
	return pc.conn.Query(ctx, text, args)
}

// Release returns the connection to the pool (remove=false) or marks it
// for removal (remove=true). A second call on an already-released
// connection is a safe no-op — see DESIGN.md's record of the Open
// Question decision: a caller bug here must not corrupt pool state or
// take down unrelated callers sharing the pool.
func (pc *PooledConnection) Release(remove bool) error {
	pc.mu.Lock()
	if pc.released {
		pc.mu.Unlock()
		pc.pool.opts.Logger.Warn("connection released more than once; ignoring",
			zap.String("connection_id", pc.id),
		)
		return nil
	}
	pc.released = true
	pc.mu.Unlock()

	return pc.pool.release(pc, remove)
}

// errorHook is registered with the driver as its async error listener
// (spec §4.4 step 1): a server-initiated disconnect on a connection with
// no caller mid-Query surfaces here instead of through a Query return
// value, so the pool has to react to it out of band.
func (pc *PooledConnection) errorHook(err error) {
	pc.pool.handleAsyncConnectionError(pc, err)
}

// activate clears the released latch when the pool hands this connection
// out again (idle reuse or waiter handoff), so a caller's later Release
// is not mistaken for a second release of the previous holder's span.
func (pc *PooledConnection) activate() {
	pc.mu.Lock()
	pc.released = false
	pc.mu.Unlock()
}

func (pc *PooledConnection) cancelIdleTimer() {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.idleTimer != nil {
		pc.idleTimer.Stop()
		pc.idleTimer = nil
	}
}

func (pc *PooledConnection) setIdleTimer(t *time.Timer) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.idleTimer = t
}

func (pc *PooledConnection) setState(s connState) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.state = s
}

func (pc *PooledConnection) getState() connState {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.state
}
