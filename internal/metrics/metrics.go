package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "drafts"

// Names of the recorded operations
const (
	OpSelect        = "select"
	OpSaveItem      = "save_item"
	OpRemoveItem    = "remove_item"
	OpRemoveParent  = "remove_children"
	OpDeleteAll     = "delete_all"
	OpSubmit        = "submit"
	OpCatalogPage   = "catalog_page"
	OpSnapshotSweep = "snapshot_sweep"
	OpRecord        = "record_submission"
	OpConflict      = "context_conflict"
	OpHTTPRequest   = "http_request"
)

// Metrics collects service metrics in its own Prometheus registry
type Metrics struct {
	registry  *prometheus.Registry
	counters  *prometheus.CounterVec
	outcomes  *prometheus.CounterVec
	timers    *prometheus.HistogramVec
	gauges    *prometheus.GaugeVec
	health    *prometheus.GaugeVec
	startTime time.Time

	mu           sync.RWMutex
	healthChecks map[string]bool
}

// NewMetrics creates a new metrics collector
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		counters: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Count of draft events by name.",
		}, []string{"name"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Operations by name and result.",
		}, []string{"name", "result"}),
		timers: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"name"}),
		gauges: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "gauge",
			Help:      "Point-in-time values by name.",
		}, []string{"name"}),
		health: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "component_up",
			Help:      "Health of dependencies (1 healthy, 0 unhealthy).",
		}, []string{"component"}),
		startTime:    time.Now(),
		healthChecks: make(map[string]bool),
	}

	m.registry.MustRegister(
		m.counters, m.outcomes, m.timers, m.gauges, m.health,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// IncrementCounter increments a counter by 1
func (m *Metrics) IncrementCounter(name string) {
	m.counters.WithLabelValues(name).Inc()
}

// SetGauge sets a gauge to a specific value
func (m *Metrics) SetGauge(name string, value float64) {
	m.gauges.WithLabelValues(name).Set(value)
}

// RecordTimer records the duration of an operation
func (m *Metrics) RecordTimer(name string, d time.Duration) {
	m.timers.WithLabelValues(name).Observe(d.Seconds())
}

// RecordSuccess records a successful operation
func (m *Metrics) RecordSuccess(name string) {
	m.outcomes.WithLabelValues(name, "success").Inc()
}

// RecordError records a failed operation
func (m *Metrics) RecordError(name string) {
	m.outcomes.WithLabelValues(name, "error").Inc()
}

// Observe records the outcome and duration of an operation started at start
func (m *Metrics) Observe(name string, start time.Time, err error) {
	m.RecordTimer(name, time.Since(start))
	if err != nil {
		m.RecordError(name)
		return
	}
	m.RecordSuccess(name)
}

// SetHealth sets the health status of a component
func (m *Metrics) SetHealth(component string, isHealthy bool) {
	v := 0.0
	if isHealthy {
		v = 1
	}
	m.health.WithLabelValues(component).Set(v)

	m.mu.Lock()
	m.healthChecks[component] = isHealthy
	m.mu.Unlock()
}

// GetHealthChecks returns the last reported health of every component
func (m *Metrics) GetHealthChecks() map[string]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]bool, len(m.healthChecks))
	for k, v := range m.healthChecks {
		out[k] = v
	}
	return out
}

// Healthy reports whether every component is healthy
func (m *Metrics) Healthy() bool {
	for _, ok := range m.GetHealthChecks() {
		if !ok {
			return false
		}
	}
	return true
}

// GetUptimeSeconds returns the service uptime in seconds
func (m *Metrics) GetUptimeSeconds() int64 {
	return int64(time.Since(m.startTime).Seconds())
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
