package pool

import "sync"

// waiterResult is what settles a Waiter: either a connection or a failure.
type waiterResult struct {
	conn *PooledConnection
	err  error
}

// Waiter is a single pending Acquire request sitting in the pool's FIFO
// queue. It carries a single-shot completion channel — settled exactly
// once, by whichever of {a releaser handing off a connection, the
// deadline timer} gets there first (spec §4.2's concurrent-resolution
// edge case; §9's "single-shot completion" re-architecture note).
type Waiter struct {
	id string
	ch chan waiterResult

	once    sync.Once
	settled bool
}

func newWaiter(id string) *Waiter {
	return &Waiter{
		id: id,
		ch: make(chan waiterResult, 1),
	}
}

// settle resolves the waiter exactly once. Returns true iff this call was
// the one that settled it (the caller uses that to decide whether it, not
// some concurrent settler, owns follow-up bookkeeping like emitting
// connectionRequestDequeued).
func (w *Waiter) settle(conn *PooledConnection, err error) bool {
	won := false
	w.once.Do(func() {
		won = true
		w.settled = true
		w.ch <- waiterResult{conn: conn, err: err}
	})
	return won
}
