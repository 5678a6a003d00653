// Package poolmetrics exposes the connection pool's accounting as
// Prometheus gauges/counters/histograms, grounded on the teacher's
// pkg/resourcemgmt.GoroutineTracker and pkg/observability/metrics.go
// (promauto-constructed vectors updated from the same call sites that
// emit the pool's lifecycle events).
package poolmetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds one pool's Prometheus collectors. Each Pool owns its own
// Metrics backed by its own registry by default, so multiple pools (e.g.
// in tests) never collide on collector names; pass a shared
// *prometheus.Registry to New to expose them on a process-wide
// /metrics endpoint instead.
type Metrics struct {
	reg *prometheus.Registry

	poolSize       prometheus.Gauge
	total          prometheus.Gauge
	idle           prometheus.Gauge
	waiting        prometheus.Gauge
	connectRetries prometheus.Counter
	startupWaits   prometheus.Counter
	removals       prometheus.Counter
	queryRetries   *prometheus.CounterVec
	acquireWait    prometheus.Histogram
}

// New constructs a Metrics instance. If reg is nil, a private registry is
// created so repeated Pool construction (typical in unit tests) never
// panics on duplicate registration.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		reg: reg,
		poolSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pgpool_pool_size",
			Help: "Configured maximum number of physical connections.",
		}),
		total: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pgpool_connections_total",
			Help: "Current number of physical connections (connecting, in-use, and idle).",
		}),
		idle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pgpool_connections_idle",
			Help: "Current number of idle connections.",
		}),
		waiting: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pgpool_waiters",
			Help: "Current number of Acquire calls queued for a connection.",
		}),
		connectRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pgpool_connect_retries_total",
			Help: "Total connect attempts retried under the error-code retry policy.",
		}),
		startupWaits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pgpool_database_startup_waits_total",
			Help: "Total connect attempts retried because the database is starting up.",
		}),
		removals: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pgpool_connections_removed_total",
			Help: "Total connections removed from the pool.",
		}),
		queryRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pgpool_query_retries_total",
			Help: "Total queries retried, labeled by reason.",
		}, []string{"reason"}),
		acquireWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pgpool_acquire_wait_seconds",
			Help:    "Time spent in Acquire before a connection was returned or a queued request timed out.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		m.poolSize, m.total, m.idle, m.waiting,
		m.connectRetries, m.startupWaits, m.removals,
		m.queryRetries, m.acquireWait,
	)
	return m
}

func (m *Metrics) SetPoolSize(n int)  { m.poolSize.Set(float64(n)) }
func (m *Metrics) SetTotal(n int)     { m.total.Set(float64(n)) }
func (m *Metrics) SetIdle(n int)      { m.idle.Set(float64(n)) }
func (m *Metrics) SetWaiting(n int)   { m.waiting.Set(float64(n)) }
func (m *Metrics) IncConnectRetry()   { m.connectRetries.Inc() }
func (m *Metrics) IncStartupWait()    { m.startupWaits.Inc() }
func (m *Metrics) IncRemoval()        { m.removals.Inc() }

func (m *Metrics) IncQueryRetry(reason string) { m.queryRetries.WithLabelValues(reason).Inc() }

func (m *Metrics) ObserveAcquireWait(d time.Duration) {
	m.acquireWait.Observe(d.Seconds())
}

// Registry returns the registry backing these collectors, for mounting
// alongside promhttp.HandlerFor in a metrics server.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }
