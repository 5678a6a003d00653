package pool

import (
	"context"
	"sync"
)

// remove tears a connection down for good: it is dropped from totalIDs and
// the idle set (if present), its driver session is closed, and its state is
// latched to stateGone. Safe to call on a connection that was already
// spliced out of the idle set by a caller holding p.mu (spec §4.5).
func (p *Pool) remove(pc *PooledConnection) error {
	pc.cancelIdleTimer()
	pc.setState(stateRemoving)

	p.mu.Lock()
	delete(p.totalIDs, pc.id)
	wasIdle := false
	for i, c := range p.idle {
		if c == pc {
			p.idle = append(p.idle[:i], p.idle[i+1:]...)
			wasIdle = true
			break
		}
	}
	p.updateGaugesLocked()
	p.mu.Unlock()

	if wasIdle {
		p.opts.Events.connectionRemovedFromIdlePool(pc.id)
	}

	err := pc.conn.Close(context.Background())
	pc.setState(stateGone)
	p.metrics.IncRemoval()
	p.opts.Events.connectionRemovedFromPool(pc.id)
	if err != nil {
		return wrapError(ErrCodeConnectTimeout, "error closing removed connection", err)
	}
	return nil
}

// reapIdle fires from a connection's idle timer. If the connection is
// still sitting idle (it was not concurrently reactivated by Acquire), it
// is removed; otherwise this is a no-op.
func (p *Pool) reapIdle(pc *PooledConnection) {
	p.mu.Lock()
	found := false
	for _, c := range p.idle {
		if c == pc {
			found = true
			break
		}
	}
	p.mu.Unlock()
	if !found {
		return
	}
	if err := p.remove(pc); err != nil {
		p.opts.Events.error(err, pc.id)
	}
}

// drainIdleConnections removes every connection currently sitting in the
// idle set, in parallel, so the next Acquire is forced to dial a fresh
// socket rather than hand back one that may still be pointed at a stale
// primary. Used both by End (shutdown) and by Query's read-only/connection-
// error retry paths (spec §4.6 step 5).
func (p *Pool) drainIdleConnections() error {
	p.mu.Lock()
	idle := make([]*PooledConnection, len(p.idle))
	copy(idle, p.idle)
	p.mu.Unlock()

	var firstErr error
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, pc := range idle {
		wg.Add(1)
		go func(pc *PooledConnection) {
			defer wg.Done()
			if err := p.remove(pc); err != nil {
				p.opts.Events.error(err, pc.id)
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(pc)
	}
	wg.Wait()
	return firstErr
}

// handleAsyncConnectionError is the pool-side half of errorHook: the driver
// reported err with no caller mid-Query to observe it synchronously, so this
// is the pool's only chance to react. Only idle connections are removed —
// one currently checked out is the acquiring caller's to release.
func (p *Pool) handleAsyncConnectionError(pc *PooledConnection, err error) {
	p.opts.Events.error(err, pc.id)
	if pc.getState() != stateIdle {
		return
	}
	p.mu.Lock()
	found := false
	for _, c := range p.idle {
		if c == pc {
			found = true
			break
		}
	}
	p.mu.Unlock()
	if !found {
		return
	}
	if rerr := p.remove(pc); rerr != nil {
		p.opts.Events.error(rerr, pc.id)
	}
}
