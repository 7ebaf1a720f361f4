package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters and histograms for the alert
// pipeline.
type Metrics struct {
	AlertsNormalized   prometheus.Counter
	ParseFailures      prometheus.Counter
	ValidationFailures prometheus.Counter
	AlertsStored       prometheus.Counter

	NotificationsSent   prometheus.Counter
	NotificationsFailed prometheus.Counter
	TopicBroadcasts     *prometheus.CounterVec // label: severity

	SweepDeactivated prometheus.Counter
	PipelineRuns     *prometheus.CounterVec // label: outcome={completed,failed}
	PipelineDuration prometheus.Histogram
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.AlertsNormalized,
		m.ParseFailures,
		m.ValidationFailures,
		m.AlertsStored,
		m.NotificationsSent,
		m.NotificationsFailed,
		m.TopicBroadcasts,
		m.SweepDeactivated,
		m.PipelineRuns,
		m.PipelineDuration,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics across tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		AlertsNormalized: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "alertflow",
			Name:      "alerts_normalized_total",
			Help:      "Total candidate alerts produced by the normalizer.",
		}),
		ParseFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "alertflow",
			Name:      "parse_failures_total",
			Help:      "Total extraction fragments that could not be parsed.",
		}),
		ValidationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "alertflow",
			Name:      "validation_failures_total",
			Help:      "Total candidate alerts rejected by validation.",
		}),
		AlertsStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "alertflow",
			Name:      "alerts_stored_total",
			Help:      "Total alerts durably stored.",
		}),
		NotificationsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "alertflow",
			Name:      "notifications_sent_total",
			Help:      "Total per-recipient notification successes.",
		}),
		NotificationsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "alertflow",
			Name:      "notifications_failed_total",
			Help:      "Total per-recipient notification failures.",
		}),
		TopicBroadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "alertflow",
			Name:      "topic_broadcasts_total",
			Help:      "Severity-topic broadcasts by severity.",
		}, []string{"severity"}),
		SweepDeactivated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "alertflow",
			Name:      "sweep_deactivated_total",
			Help:      "Total alerts deactivated by the expiry sweep.",
		}),
		PipelineRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "alertflow",
			Name:      "pipeline_runs_total",
			Help:      "Pipeline runs by terminal state.",
		}, []string{"outcome"}),
		PipelineDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "alertflow",
			Name:      "pipeline_duration_seconds",
			Help:      "Duration of a complete pipeline run.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
	}
}
