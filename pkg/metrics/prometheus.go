// Package metrics provides Prometheus metrics for the weekly stats mail job.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Manager owns every collector emitted by the job.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         *prometheus.Registry

	// Source
	rowsRead prometheus.Counter

	// Dispatch
	eventsDispatched prometheus.Counter
	eventsSent       prometheus.Counter
	eventsSkipped    prometheus.Counter
	inflight         prometheus.Gauge
	trackingLatency  prometheus.Histogram
	trackingErrors   *prometheus.CounterVec

	// Checkpointing
	cursor       prometheus.Gauge
	cursorWrites prometheus.Counter

	// Run outcome
	lastSuccess prometheus.Gauge
	runDuration prometheus.Histogram

	// Ops endpoint
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager registered on its own registry unless
// one is supplied.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "statsmail",
		subsystem:        "dispatch",
		histogramBuckets: prometheus.DefBuckets,
	}

	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.rowsRead = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "rows_read_total",
		Help:      "Stats CSV rows read",
	})

	m.eventsDispatched = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "events_dispatched_total",
		Help:      "Rows submitted to the worker pool",
	})

	m.eventsSent = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "events_sent_total",
		Help:      "Tracking calls that completed successfully",
	})

	m.eventsSkipped = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "events_skipped_total",
		Help:      "Rows that produced no event because the user was inactive",
	})

	m.inflight = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "inflight",
		Help:      "Rows submitted but not yet completed",
	})

	m.trackingLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "tracking_latency_seconds",
		Help:      "Latency of outbound tracking calls",
		Buckets:   m.histogramBuckets,
	})

	m.trackingErrors = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "tracking_errors_total",
			Help:      "Failed tracking calls by kind",
		},
		[]string{"kind"},
	)

	m.cursor = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "cursor",
		Help:      "Resume cursor loaded at start or written on failure",
	})

	m.cursorWrites = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "cursor_writes_total",
		Help:      "Resume cursor writes",
	})

	m.lastSuccess = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix time of the last run that drained the source",
	})

	m.runDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "run_duration_seconds",
		Help:      "Wall time of dispatcher runs",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 16),
	})

	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Requests served by the ops endpoint",
		},
		[]string{"endpoint", "method", "status"},
	)

	m.httpDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency of ops endpoint requests",
			Buckets:   m.histogramBuckets,
		},
		[]string{"endpoint", "method"},
	)
}

// Registry returns the registry the manager registers on.
func (m *Manager) Registry() *prometheus.Registry { return m.registry }

func (m *Manager) RecordRowRead()     { m.rowsRead.Inc() }
func (m *Manager) RecordDispatched()  { m.eventsDispatched.Inc(); m.inflight.Inc() }
func (m *Manager) RecordSkipped()     { m.eventsSkipped.Inc() }
func (m *Manager) RecordCompleted()   { m.inflight.Dec() }
func (m *Manager) RecordCursor(v int) { m.cursor.Set(float64(v)) }
func (m *Manager) RecordCursorWrite() { m.cursorWrites.Inc() }
func (m *Manager) ResetInflight()     { m.inflight.Set(0) }

// RecordRunSuccess stamps the time of a run that drained its source.
func (m *Manager) RecordRunSuccess(t time.Time) {
	m.lastSuccess.Set(float64(t.Unix()))
}

// RecordSent records a successful tracking call and its latency.
func (m *Manager) RecordSent(latency time.Duration) {
	m.eventsSent.Inc()
	m.trackingLatency.Observe(latency.Seconds())
}

// RecordTrackingError records a failed tracking call.
func (m *Manager) RecordTrackingError(kind string, latency time.Duration) {
	m.trackingErrors.WithLabelValues(kind).Inc()
	m.trackingLatency.Observe(latency.Seconds())
}

// RecordRunDuration observes the wall time of one dispatcher run.
func (m *Manager) RecordRunDuration(d time.Duration) { m.runDuration.Observe(d.Seconds()) }

// RecordHTTPRequest records one request served by the ops endpoint.
func (m *Manager) RecordHTTPRequest(endpoint, method, status string, d time.Duration) {
	m.httpRequests.WithLabelValues(endpoint, method, status).Inc()
	m.httpDuration.WithLabelValues(endpoint, method).Observe(d.Seconds())
}

// Handler serves the manager's registry in the Prometheus exposition format.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Push sends the current values to a Pushgateway, grouped by the given labels.
func (m *Manager) Push(ctx context.Context, url, job string, grouping map[string]string) error {
	p := push.New(url, job).Gatherer(m.registry)
	for k, v := range grouping {
		p = p.Grouping(k, v)
	}
	if err := p.PushContext(ctx); err != nil {
		return errors.Mark(errors.Wrapf(err, "push to %s", url), ErrPushFailed)
	}
	return nil
}

// Default returns the process-wide manager.
func Default() *Manager { return globalManager }

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
