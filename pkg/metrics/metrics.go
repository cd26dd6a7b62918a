package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Aggregation metrics
	AggregationsTotal     *prometheus.CounterVec
	AggregationDuration   *prometheus.HistogramVec
	AggregationsInFlight  prometheus.Gauge
	RecordsAttributed     *prometheus.CounterVec
	AttributionMisses     *prometheus.CounterVec
	SourceFailures        *prometheus.CounterVec
	MergeRejections       prometheus.Counter
	SnapshotCacheRequests *prometheus.CounterVec
	SnapshotsExported     *prometheus.CounterVec

	// External API metrics
	ExternalAPICalls    *prometheus.CounterVec
	ExternalAPIDuration *prometheus.HistogramVec
	ExternalAPIFailures *prometheus.CounterVec
}

// New registers all collectors on reg. Pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		HTTPRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
		),

		AggregationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adreport_aggregations_total",
				Help: "Total number of aggregation runs",
			},
			[]string{"kind", "status"},
		),

		AggregationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "adreport_aggregation_duration_seconds",
				Help:    "Aggregation run duration in seconds",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"kind"},
		),

		AggregationsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "adreport_aggregations_in_flight",
				Help: "Number of aggregation runs currently in progress",
			},
		),

		RecordsAttributed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adreport_records_attributed_total",
				Help: "Total number of intermediate records folded into a snapshot",
			},
			[]string{"platform"},
		),

		AttributionMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adreport_attribution_misses_total",
				Help: "Records that matched no section or platform",
			},
			[]string{"level"},
		),

		SourceFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adreport_source_failures_total",
				Help: "Platform source fetches that failed or were skipped",
			},
			[]string{"platform", "reason"},
		),

		MergeRejections: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "adreport_merge_rejections_total",
				Help: "Realtime merges refused because the series was already merged",
			},
		),

		SnapshotCacheRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adreport_snapshot_cache_requests_total",
				Help: "Snapshot cache lookups by result",
			},
			[]string{"result"},
		),

		SnapshotsExported: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adreport_snapshots_exported_total",
				Help: "Snapshot export attempts by status",
			},
			[]string{"status"},
		),

		ExternalAPICalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "external_api_calls_total",
				Help: "Total number of external API calls",
			},
			[]string{"api", "status"},
		),

		ExternalAPIDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "external_api_duration_seconds",
				Help:    "External API call duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"api"},
		),

		ExternalAPIFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "external_api_failures_total",
				Help: "Total number of external API failures",
			},
			[]string{"api", "error_type"},
		),
	}
}

// HTTP request metrics
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// Aggregation run metrics
func (m *Metrics) RecordAggregation(kind, status string, duration time.Duration) {
	m.AggregationsTotal.WithLabelValues(kind, status).Inc()
	m.AggregationDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

func (m *Metrics) RecordAttributed(platform string, count int) {
	m.RecordsAttributed.WithLabelValues(platform).Add(float64(count))
}

func (m *Metrics) RecordAttributionMisses(level string, count int) {
	if count > 0 {
		m.AttributionMisses.WithLabelValues(level).Add(float64(count))
	}
}

// Source failure, reason is one of skipped, timeout, error
func (m *Metrics) RecordSourceFailure(platform, reason string) {
	m.SourceFailures.WithLabelValues(platform, reason).Inc()
}

func (m *Metrics) RecordMergeRejected() {
	m.MergeRejections.Inc()
}

// Snapshot cache hit or miss
func (m *Metrics) RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.SnapshotCacheRequests.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordExport(status string) {
	m.SnapshotsExported.WithLabelValues(status).Inc()
}

// External API call metrics
func (m *Metrics) RecordExternalAPICall(api, status string, duration time.Duration) {
	m.ExternalAPICalls.WithLabelValues(api, status).Inc()
	m.ExternalAPIDuration.WithLabelValues(api).Observe(duration.Seconds())
}

// External API failure metrics
func (m *Metrics) RecordExternalAPIFailure(api, errorType string) {
	m.ExternalAPIFailures.WithLabelValues(api, errorType).Inc()
}

// Aggregations in progress gauge
func (m *Metrics) IncAggregationsInFlight() {
	m.AggregationsInFlight.Inc()
}

// Aggregations in progress gauge
func (m *Metrics) DecAggregationsInFlight() {
	m.AggregationsInFlight.Dec()
}

// HTTP requests in flight counter
func (m *Metrics) IncHTTPRequestsInFlight() {
	m.HTTPRequestsInFlight.Inc()
}

// HTTP requests in flight counter
func (m *Metrics) DecHTTPRequestsInFlight() {
	m.HTTPRequestsInFlight.Dec()
}
