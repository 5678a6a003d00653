package pool

import "time"

// EventHandlers is the pool's typed event surface (spec §6). Each field is
// an optional callback; a nil field is simply never invoked. This is the
// re-architecture called for in §9: a per-event callback slot in place of
// a string-keyed emitter, so a consumer gets compile-time checked payloads
// instead of an untyped event-name/args pair.
type EventHandlers struct {
	// ConnectionRequestQueued fires when Acquire enqueues a Waiter.
	ConnectionRequestQueued func()

	// ConnectionRequestDequeued fires when a queued Waiter is handed a
	// connection, either via handoff or by being satisfied out of order
	// (the latter cannot happen per the FIFO guarantee but the callback
	// signature does not encode position).
	ConnectionRequestDequeued func()

	// ConnectionAddedToPool fires exactly once per successful new
	// connection, before it is returned to any caller.
	ConnectionAddedToPool func(connectionID string, retryAttempt int, startTime time.Time)

	// ConnectionRemovedFromPool fires on every successful removal.
	ConnectionRemovedFromPool func(connectionID string)

	// ConnectionIdle fires when a released connection joins the idle set.
	ConnectionIdle func(connectionID string)

	// ConnectionRemovedFromIdlePool fires iff the removed connection was
	// in the idle set at removal time.
	ConnectionRemovedFromIdlePool func(connectionID string)

	// IdleConnectionActivated fires when Acquire reuses an idle connection.
	IdleConnectionActivated func(connectionID string)

	// QueryDeniedForReadOnlyTransaction fires once per read-only-transaction
	// retry cycle in Query.
	QueryDeniedForReadOnlyTransaction func()

	// QueryDeniedForConnectionError fires once per stale-connection retry
	// cycle in Query.
	QueryDeniedForConnectionError func()

	// WaitingForDatabaseToStart fires each time connect observes the
	// "database system is starting up" message.
	WaitingForDatabaseToStart func()

	// RetryConnectionOnError fires each time a connect attempt is retried
	// under the error-code policy.
	RetryConnectionOnError func(err error)

	// Error fires for any error the pool cannot propagate synchronously to
	// a waiting caller (e.g. an asynchronous driver error on an idle
	// connection, or an error from closing the driver session when an idle
	// connection is removed; no close error is filtered out as benign).
	// connectionID is empty when the error is not attributable to one
	// connection.
	Error func(err error, connectionID string)
}

func (h EventHandlers) connectionRequestQueued() {
	if h.ConnectionRequestQueued != nil {
		h.ConnectionRequestQueued()
	}
}

func (h EventHandlers) connectionRequestDequeued() {
	if h.ConnectionRequestDequeued != nil {
		h.ConnectionRequestDequeued()
	}
}

func (h EventHandlers) connectionAddedToPool(id string, retryAttempt int, startTime time.Time) {
	if h.ConnectionAddedToPool != nil {
		h.ConnectionAddedToPool(id, retryAttempt, startTime)
	}
}

func (h EventHandlers) connectionRemovedFromPool(id string) {
	if h.ConnectionRemovedFromPool != nil {
		h.ConnectionRemovedFromPool(id)
	}
}

func (h EventHandlers) connectionIdle(id string) {
	if h.ConnectionIdle != nil {
		h.ConnectionIdle(id)
	}
}

func (h EventHandlers) connectionRemovedFromIdlePool(id string) {
	if h.ConnectionRemovedFromIdlePool != nil {
		h.ConnectionRemovedFromIdlePool(id)
	}
}

func (h EventHandlers) idleConnectionActivated(id string) {
	if h.IdleConnectionActivated != nil {
		h.IdleConnectionActivated(id)
	}
}

func (h EventHandlers) queryDeniedForReadOnlyTransaction() {
	if h.QueryDeniedForReadOnlyTransaction != nil {
		h.QueryDeniedForReadOnlyTransaction()
	}
}

func (h EventHandlers) queryDeniedForConnectionError() {
	if h.QueryDeniedForConnectionError != nil {
		h.QueryDeniedForConnectionError()
	}
}

func (h EventHandlers) waitingForDatabaseToStart() {
	if h.WaitingForDatabaseToStart != nil {
		h.WaitingForDatabaseToStart()
	}
}

func (h EventHandlers) retryConnectionOnError(err error) {
	if h.RetryConnectionOnError != nil {
		h.RetryConnectionOnError(err)
	}
}

func (h EventHandlers) error(err error, connectionID string) {
	if h.Error != nil {
		h.Error(err, connectionID)
	}
}
