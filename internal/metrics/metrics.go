// Package metrics exposes the connector's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline stage labels.
const (
	StageGate        = "gate"
	StageEnrichment  = "enrichment"
	StagePublication = "publication"
)

// Metrics holds the connector's counters and the registry serving them.
type Metrics struct {
	Registry *prometheus.Registry

	RecordsProcessed prometheus.Counter
	RecordsRejected  prometheus.Counter
	RecordsFailed    prometheus.Counter
	StageFailures    *prometheus.CounterVec
	RunsTotal        prometheus.Counter
	RunDuration      prometheus.Histogram
}

// New creates the metric set on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(registry)

	return &Metrics{
		Registry: registry,
		RecordsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "connector_records_processed_total",
			Help: "Records that completed the pipeline and were marked processed.",
		}),
		RecordsRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "connector_records_rejected_total",
			Help: "Records rejected by the classification gate.",
		}),
		RecordsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "connector_records_failed_total",
			Help: "Records that hit a stage error and will be retried.",
		}),
		StageFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "connector_stage_failures_total",
			Help: "Stage errors by pipeline stage.",
		}, []string{"stage"}),
		RunsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "connector_runs_total",
			Help: "Completed pipeline runs.",
		}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "connector_run_duration_seconds",
			Help:    "Wall time of one pipeline run.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
	}
}
