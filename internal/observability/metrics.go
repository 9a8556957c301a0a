package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "traffic_etl"

// Metrics holds the Prometheus counters, histograms, and gauges for the ETL pipeline.
type Metrics struct {
	// Per-dataset record flow. label: dataset={weather,collisions}
	RecordsExtracted  *prometheus.CounterVec
	RecordsNormalized *prometheus.CounterVec
	RecordsDropped    *prometheus.CounterVec // labels: dataset, reason
	RecordsAdded      *prometheus.CounterVec
	MasterRecords     *prometheus.GaugeVec
	MergeAnomalies    *prometheus.CounterVec

	// Run lifecycle.
	RunsTotal       *prometheus.CounterVec // labels: outcome={success,failed}
	FallbackRuns    prometheus.Counter
	RunDuration     prometheus.Histogram
	LastSuccessTime prometheus.Gauge
	PipelineRunning prometheus.Gauge

	// Upstream API calls.
	APIRequests *prometheus.CounterVec   // labels: source={open-meteo,socrata}, outcome={success,error,retry}
	APIDuration *prometheus.HistogramVec // labels: source

	// Optional sinks.
	SinkErrors  *prometheus.CounterVec // labels: sink={warehouse,kafka}
	SinkEnabled *prometheus.GaugeVec   // labels: sink
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics with no registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		RecordsExtracted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_extracted_total",
			Help:      "Raw rows received from upstream APIs.",
		}, []string{"dataset"}),
		RecordsNormalized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_normalized_total",
			Help:      "Rows that survived normalization.",
		}, []string{"dataset"}),
		RecordsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_dropped_total",
			Help:      "Rows discarded during normalization by reason.",
		}, []string{"dataset", "reason"}),
		RecordsAdded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_added_total",
			Help:      "Net new records appended to the master dataset.",
		}, []string{"dataset"}),
		MasterRecords: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "master_records",
			Help:      "Records in the master dataset after the last run.",
		}, []string{"dataset"}),
		MergeAnomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merge_anomalies_total",
			Help:      "Merges that produced fewer records than the existing master held.",
		}, []string{"dataset"}),
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs by outcome.",
		}, []string{"outcome"}),
		FallbackRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallback_runs_total",
			Help:      "Runs that switched to the fixed historical range after extraction failed.",
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete pipeline run.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
		LastSuccessTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while a run is in progress, 0 otherwise.",
		}),
		APIRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "Upstream API requests by source and outcome.",
		}, []string{"source", "outcome"}),
		APIDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_duration_seconds",
			Help:      "Upstream API request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"source"}),
		SinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_errors_total",
			Help:      "Failed loads into optional sinks.",
		}, []string{"sink"}),
		SinkEnabled: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sink_enabled",
			Help:      "1 when the sink is configured, 0 otherwise.",
		}, []string{"sink"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.RecordsExtracted,
		m.RecordsNormalized,
		m.RecordsDropped,
		m.RecordsAdded,
		m.MasterRecords,
		m.MergeAnomalies,
		m.RunsTotal,
		m.FallbackRuns,
		m.RunDuration,
		m.LastSuccessTime,
		m.PipelineRunning,
		m.APIRequests,
		m.APIDuration,
		m.SinkErrors,
		m.SinkEnabled,
	}
}
