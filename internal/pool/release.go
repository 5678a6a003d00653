package pool

import "time"

// release returns pc to circulation (spec §4.3). If the pool is ending or
// the caller asked for removal, it is torn down unconditionally. Otherwise
// it is handed directly to the oldest queued Waiter if one exists, or
// parked on the idle set behind a reap timer.
func (p *Pool) release(pc *PooledConnection, forceRemove bool) error {
	if forceRemove || p.isEnding() {
		err := p.remove(pc)
		p.inFlight.done()
		return err
	}

	p.mu.Lock()
	handedOff := false
	for len(p.queue) > 0 {
		w := p.queue[0]
		p.queue = p.queue[1:]
		if w.settle(pc, nil) {
			handedOff = true
			break
		}
		// w already settled by its own deadline timer; it owns its own
		// bookkeeping, so just move on to the next queued waiter.
	}
	if handedOff {
		p.updateGaugesLocked()
		p.mu.Unlock()
		p.inFlight.done()
		return nil
	}

	pc.setState(stateIdle)
	p.idle = append(p.idle, pc)
	p.updateGaugesLocked()
	p.mu.Unlock()

	idleTimeout := time.Duration(p.opts.IdleTimeoutMillis) * time.Millisecond
	pc.setIdleTimer(time.AfterFunc(idleTimeout, func() { p.reapIdle(pc) }))
	p.opts.Events.connectionIdle(pc.id)
	p.inFlight.done()
	return nil
}
