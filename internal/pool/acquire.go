package pool

import (
	"context"
	"time"
)

// Acquire returns an exclusively-owned PooledConnection, reusing an idle
// connection, creating a fresh one if under PoolSize, or queueing as a
// FIFO waiter otherwise (spec §4.2).
func (p *Pool) Acquire(ctx context.Context) (*PooledConnection, error) {
	start := time.Now()

	p.mu.Lock()
	if p.ending {
		p.mu.Unlock()
		return nil, newError(ErrCodePoolEnded, "pool has been ended")
	}

	if n := len(p.idle); n > 0 {
		pc := p.idle[0]
		p.idle = p.idle[1:]
		p.updateGaugesLocked()
		p.mu.Unlock()

		pc.cancelIdleTimer()
		pc.activate()
		pc.setState(stateInUse)
		p.opts.Events.idleConnectionActivated(pc.id)
		p.inFlight.add()
		p.metrics.ObserveAcquireWait(time.Since(start))
		return pc, nil
	}

	if len(p.totalIDs) < p.opts.PoolSize {
		id := newConnectionID()
		p.totalIDs[id] = struct{}{}
		p.updateGaugesLocked()
		p.mu.Unlock()

		pc, err := p.connectWithRetry(ctx, id)
		if err != nil {
			p.mu.Lock()
			delete(p.totalIDs, id)
			p.updateGaugesLocked()
			p.mu.Unlock()
			return nil, err
		}
		pc.setState(stateInUse)
		p.inFlight.add()
		p.metrics.ObserveAcquireWait(time.Since(start))
		return pc, nil
	}

	waiter := newWaiter(newWaiterID())
	p.queue = append(p.queue, waiter)
	p.updateGaugesLocked()
	p.mu.Unlock()
	p.opts.Events.connectionRequestQueued()

	deadline := time.Duration(p.opts.WaitForAvailableConnectionTimeoutMillis) * time.Millisecond
	timer := time.NewTimer(deadline)
	defer timer.Stop()

	select {
	case res := <-waiter.ch:
		p.metrics.ObserveAcquireWait(time.Since(start))
		if res.err != nil {
			return nil, res.err
		}
		p.opts.Events.connectionRequestDequeued()
		res.conn.activate()
		res.conn.setState(stateInUse)
		p.inFlight.add()
		return res.conn, nil

	case <-timer.C:
		if waiter.settle(nil, newError(ErrCodeConnectionTimeout, "timed out waiting for an available connection")) {
			p.removeWaiterByID(waiter.id)
			p.metrics.ObserveAcquireWait(time.Since(start))
			return nil, newError(ErrCodeConnectionTimeout, "timed out waiting for an available connection")
		}
		// Lost the race: a handoff settled the waiter microseconds before
		// the deadline fired. The send into the buffered channel already
		// happened, so this receive cannot block.
		res := <-waiter.ch
		p.metrics.ObserveAcquireWait(time.Since(start))
		if res.err != nil {
			return nil, res.err
		}
		p.opts.Events.connectionRequestDequeued()
		res.conn.activate()
		res.conn.setState(stateInUse)
		p.inFlight.add()
		return res.conn, nil

	case <-ctx.Done():
		if waiter.settle(nil, ctx.Err()) {
			p.removeWaiterByID(waiter.id)
			return nil, ctx.Err()
		}
		res := <-waiter.ch
		if res.err != nil {
			return nil, res.err
		}
		p.opts.Events.connectionRequestDequeued()
		res.conn.activate()
		res.conn.setState(stateInUse)
		p.inFlight.add()
		return res.conn, nil
	}
}

// removeWaiterByID splices a waiter out of the queue by identity rather
// than position, so a concurrent dequeue racing the same timeout cannot
// remove the wrong entry (spec §8's boundary behavior).
func (p *Pool) removeWaiterByID(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, w := range p.queue {
		if w.id == id {
			p.queue = append(p.queue[:i], p.queue[i+1:]...)
			break
		}
	}
	p.updateGaugesLocked()
}

// updateGaugesLocked refreshes the Prometheus gauges. Callers must hold p.mu.
func (p *Pool) updateGaugesLocked() {
	p.metrics.SetTotal(len(p.totalIDs))
	p.metrics.SetIdle(len(p.idle))
	p.metrics.SetWaiting(len(p.queue))
}
