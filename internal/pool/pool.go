// Package pool implements a connection pool for a PostgreSQL wire-protocol
// client: fair FIFO queueing for waiters, idle-connection reaping, bounded
// connect/wait timeouts, and cluster-failover-aware retry policies.
package pool

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kevin07696/pgpool/internal/poolmetrics"
)

// Pool bounds a set of physical connections to a single PostgreSQL
// endpoint and multiplexes logical query requests onto them. The zero
// value is not usable; construct with New.
type Pool struct {
	opts *Options

	mu       sync.Mutex
	totalIDs map[string]struct{}
	idle     []*PooledConnection
	queue    []*Waiter
	ending   bool

	inFlight *inFlightTracker
	metrics  *poolmetrics.Metrics
	logger   *zap.Logger
}

// New constructs a Pool from opts, which must come from NewOptions. The
// pool creates no connections eagerly; the first PoolSize Acquire calls
// each create one.
func New(opts *Options) *Pool {
	p := &Pool{
		opts:     opts,
		totalIDs: make(map[string]struct{}, opts.PoolSize),
		inFlight: newInFlightTracker(),
		metrics:  poolmetrics.New(nil),
		logger:   opts.Logger,
	}
	p.metrics.SetPoolSize(opts.PoolSize)
	return p
}

func newConnectionID() string {
	return uuid.NewString()
}

func newWaiterID() string {
	return uuid.NewString()
}

// Stats is a point-in-time snapshot of the pool's accounting sets.
type Stats struct {
	Total   int
	Idle    int
	Waiting int
}

// Stats returns the current total/idle/waiting counts.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Total:   len(p.totalIDs),
		Idle:    len(p.idle),
		Waiting: len(p.queue),
	}
}

// End latches the pool closed: acquires fail immediately from this point
// on, every currently-idle connection is removed, and in-use connections
// are allowed to finish and are removed on their eventual release (spec
// §4.8, invariant 6).
func (p *Pool) End(ctx context.Context) error {
	p.mu.Lock()
	if p.ending {
		p.mu.Unlock()
		return nil
	}
	p.ending = true
	p.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- p.drainIdleConnections() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown is End followed by waiting for every in-use connection to
// finish and be released, bounded by ctx. It is a supplemented
// convenience on top of spec §4.8's bare End, grounded on the teacher's
// PostgreSQLAdapter.Shutdown/Close pair and pkg/shutdown.InFlightTracker.
func (p *Pool) Shutdown(ctx context.Context) error {
	if err := p.End(ctx); err != nil {
		return err
	}
	if err := p.inFlight.wait(ctx); err != nil {
		p.logger.Warn("pool shutdown timed out waiting for in-use connections")
		return err
	}
	return nil
}

// MetricsRegistry returns the Prometheus registry backing this pool's
// collectors, for mounting on a /metrics endpoint.
func (p *Pool) MetricsRegistry() *prometheus.Registry {
	return p.metrics.Registry()
}

func (p *Pool) isEnding() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ending
}
