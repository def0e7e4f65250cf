package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/devblac/batchtrace/internal/fault"
)

// Metrics holds Prometheus counters. A nil *Metrics is a valid no-op.
type Metrics struct {
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
	cacheEvictions  *prometheus.CounterVec
	retries         *prometheus.CounterVec
	eventsDelivered *prometheus.CounterVec
	syncChunks      prometheus.Counter
	errors          prometheus.Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// Init initializes global metrics on the default registry (idempotent).
func Init() *Metrics {
	once.Do(func() {
		metrics = New(prometheus.DefaultRegisterer)
	})
	return metrics
}

// New creates the counters and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batchtrace_cache_hits_total",
			Help: "Total number of cache reads that found a live entry",
		}, []string{"cache"}),
		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batchtrace_cache_misses_total",
			Help: "Total number of cache reads that found nothing or an expired entry",
		}, []string{"cache"}),
		cacheEvictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batchtrace_cache_evictions_total",
			Help: "Total number of entries evicted to make room",
		}, []string{"cache"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batchtrace_retries_total",
			Help: "Total number of retried ledger calls by error category",
		}, []string{"code"}),
		eventsDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batchtrace_events_delivered_total",
			Help: "Total number of live contract events delivered",
		}, []string{"kind"}),
		syncChunks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "batchtrace_sync_chunks_total",
			Help: "Total number of block range chunks synced",
		}),
		errors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "batchtrace_errors_total",
			Help: "Total number of errors returned by the data-access layer",
		}),
	}
	reg.MustRegister(
		m.cacheHits,
		m.cacheMisses,
		m.cacheEvictions,
		m.retries,
		m.eventsDelivered,
		m.syncChunks,
		m.errors,
	)
	return m
}

// Hit increments the hit counter of the named cache.
func (m *Metrics) Hit(cache string) {
	if m != nil {
		m.cacheHits.WithLabelValues(cache).Inc()
	}
}

// Miss increments the miss counter of the named cache.
func (m *Metrics) Miss(cache string) {
	if m != nil {
		m.cacheMisses.WithLabelValues(cache).Inc()
	}
}

// Eviction increments the eviction counter of the named cache.
func (m *Metrics) Eviction(cache string) {
	if m != nil {
		m.cacheEvictions.WithLabelValues(cache).Inc()
	}
}

// OnRetry counts a retry by error category. It matches retry.OnRetryFunc.
func (m *Metrics) OnRetry(_ int, err *fault.Error, _ time.Duration) {
	if m != nil && err != nil {
		m.retries.WithLabelValues(string(err.Code)).Inc()
	}
}

// EventDelivered increments the delivered counter of an event kind.
func (m *Metrics) EventDelivered(kind string) {
	if m != nil {
		m.eventsDelivered.WithLabelValues(kind).Inc()
	}
}

// ChunkSynced increments the synced chunk counter.
func (m *Metrics) ChunkSynced() {
	if m != nil {
		m.syncChunks.Inc()
	}
}

// Failure increments the errors counter.
func (m *Metrics) Failure() {
	if m != nil {
		m.errors.Inc()
	}
}

// Handler returns an HTTP handler for /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
