package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "incident_sync"

// Metrics holds the Prometheus counters, histograms, and gauges for the
// submission pipeline and the analytics engine.
type Metrics struct {
	ReportsSubmitted *prometheus.CounterVec // labels: path={direct,queued}
	ValidationErrors prometheus.Counter
	QueueDepth       prometheus.Gauge

	// Drain metrics.
	DrainPasses   prometheus.Counter
	DrainDuration prometheus.Histogram
	SyncOutcomes  *prometheus.CounterVec // labels: outcome={committed,already_committed,failed}

	// Analytics metrics.
	AnalyticsReadErrors prometheus.Counter
	Hotspots            prometheus.Gauge

	// Geocoding metrics.
	GeocodeRequests *prometheus.CounterVec // labels: outcome={success,error,empty}
	GeocodeCache    *prometheus.CounterVec // labels: result={hit,miss}
}

func newMetrics() *Metrics {
	return &Metrics{
		ReportsSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_submitted_total",
			Help:      "Accepted submissions by delivery path.",
		}, []string{"path"}),
		ValidationErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_errors_total",
			Help:      "Submissions rejected before reaching the queue.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Reports currently held in the local queue.",
		}),
		DrainPasses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drain_passes_total",
			Help:      "Completed queue drain passes.",
		}),
		DrainDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "drain_duration_seconds",
			Help:      "Duration of a full queue drain pass.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}),
		SyncOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_outcomes_total",
			Help:      "Per-entry drain outcomes.",
		}, []string{"outcome"}),
		AnalyticsReadErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analytics_read_errors_total",
			Help:      "Failed bulk reads of canonical reports.",
		}),
		Hotspots: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "hotspots",
			Help:      "Hotspots found by the most recent analysis.",
		}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      "Reverse geocoding requests by outcome.",
		}, []string{"outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_cache_total",
			Help:      "Reverse geocoding cache lookups by result.",
		}, []string{"result"}),
	}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.ReportsSubmitted,
		m.ValidationErrors,
		m.QueueDepth,
		m.DrainPasses,
		m.DrainDuration,
		m.SyncOutcomes,
		m.AnalyticsReadErrors,
		m.Hotspots,
		m.GeocodeRequests,
		m.GeocodeCache,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}
