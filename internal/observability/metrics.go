package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "poimap"

// Metrics holds the Prometheus counters, histograms, and gauges for ingestion
// and geocoding.
type Metrics struct {
	PipelineRunning prometheus.Gauge

	// Ingestion metrics.
	RowsProcessed    *prometheus.CounterVec   // labels: category, outcome={resolved,skipped,failed}
	RecordsInserted  *prometheus.CounterVec   // labels: category
	CategoryRuns     *prometheus.CounterVec   // labels: category, status
	CategoryDuration *prometheus.HistogramVec // labels: category
	PublishErrors    prometheus.Counter

	// Geocoding metrics.
	GeocodeRequests    *prometheus.CounterVec // labels: outcome={success,not_found,service_error,malformed}
	GeocodeCache       *prometheus.CounterVec // labels: result={hit,miss}
	GeocodeRetries     prometheus.Counter
	GeocodeAPIDuration prometheus.Histogram
	GeocodeEnabled     prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics(true)
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics(false)
}

func newMetrics(withBuckets bool) *Metrics {
	durationBuckets := prometheus.DefBuckets
	apiBuckets := prometheus.DefBuckets
	if withBuckets {
		durationBuckets = []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600}
		apiBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}
	}

	return &Metrics{
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while an ingestion run is in progress, 0 otherwise.",
		}),
		RowsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_rows_total",
			Help:      "Source rows processed by category and outcome.",
		}, []string{"category", "outcome"}),
		RecordsInserted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_records_inserted_total",
			Help:      "Records persisted by category.",
		}, []string{"category"}),
		CategoryRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_category_runs_total",
			Help:      "Category ingestion attempts by terminal status.",
		}, []string{"category", "status"}),
		CategoryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_category_duration_seconds",
			Help:      "Duration of one category ingestion.",
			Buckets:   durationBuckets,
		}, []string{"category"}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_publish_errors_total",
			Help:      "Failed attempts to publish ingested records to the change feed.",
		}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      "Geocoding API requests by outcome.",
		}, []string{"outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_cache_total",
			Help:      "Geocoding cache lookups by result.",
		}, []string{"result"}),
		GeocodeRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_retries_total",
			Help:      "Geocoding requests retried after a transient failure.",
		}),
		GeocodeAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "geocode_api_duration_seconds",
			Help:      "Mapbox API request duration in seconds.",
			Buckets:   apiBuckets,
		}),
		GeocodeEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "geocode_enabled",
			Help:      "1 when a geocoding credential is configured, 0 otherwise.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.PipelineRunning,
		m.RowsProcessed,
		m.RecordsInserted,
		m.CategoryRuns,
		m.CategoryDuration,
		m.PublishErrors,
		m.GeocodeRequests,
		m.GeocodeCache,
		m.GeocodeRetries,
		m.GeocodeAPIDuration,
		m.GeocodeEnabled,
	}
}
