package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	ptypes "github.com/gateway-fm/transactioneer/pkg/types"
)

// PrometheusMetrics holds all Prometheus metrics for the submission engine.
type PrometheusMetrics struct {
	// Counters
	SubmissionsTotal *prometheus.CounterVec
	ConflictRetries  prometheus.Counter
	Reconciliations  prometheus.Counter
	ReadErrors       prometheus.Counter

	// Gauges
	QueueDepth     prometheus.Gauge
	SubmissionRate prometheus.Gauge
	EngineState    *prometheus.GaugeVec

	// Histograms
	SubmitDuration prometheus.Histogram
	AttemptsPerTx  prometheus.Histogram
}

// NewPrometheusMetrics creates and registers all Prometheus metrics.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)

	return &PrometheusMetrics{
		SubmissionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "txsubmit_submissions_total",
				Help: "Completed submissions by status and failure reason",
			},
			[]string{"status", "reason"},
		),

		ConflictRetries: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "txsubmit_conflict_retries_total",
				Help: "Extra submission attempts caused by nonce conflicts",
			},
		),

		Reconciliations: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "txsubmit_reconciliations_total",
				Help: "Completed nonce reconciliation sweeps",
			},
		),

		ReadErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "txsubmit_reconcile_read_errors_total",
				Help: "Failed nonce reads during reconciliation sweeps",
			},
		),

		QueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "txsubmit_queue_depth",
				Help: "Work items waiting in the queue",
			},
		),

		SubmissionRate: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "txsubmit_submission_rate",
				Help: "Rolling submissions per second",
			},
		),

		EngineState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "txsubmit_engine_state",
				Help: "Current engine state (1 for the active state, 0 otherwise)",
			},
			[]string{"state"},
		),

		SubmitDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "txsubmit_submit_duration_seconds",
				Help:    "Wall time from reserve to terminal outcome",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
		),

		AttemptsPerTx: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "txsubmit_attempts_per_submission",
				Help:    "Endpoint attempts consumed per work item",
				Buckets: []float64{1, 2, 3, 4, 5},
			},
		),
	}
}

// RecordOutcome records a terminal submission outcome.
func (m *PrometheusMetrics) RecordOutcome(status ptypes.SubmitStatus, reason ptypes.FailReason, attempts int, durationSeconds float64) {
	m.SubmissionsTotal.WithLabelValues(string(status), string(reason)).Inc()
	m.SubmitDuration.Observe(durationSeconds)
	m.AttemptsPerTx.Observe(float64(attempts))
}

// RecordConflictRetry records one extra attempt after a nonce conflict.
func (m *PrometheusMetrics) RecordConflictRetry() {
	m.ConflictRetries.Inc()
}

// RecordReconciliation records a completed reconciliation sweep.
func (m *PrometheusMetrics) RecordReconciliation(readErrors int) {
	m.Reconciliations.Inc()
	m.ReadErrors.Add(float64(readErrors))
}

// SetQueueDepth updates the queue depth gauge.
func (m *PrometheusMetrics) SetQueueDepth(depth int) {
	m.QueueDepth.Set(float64(depth))
}

// SetSubmissionRate updates the rolling rate gauge.
func (m *PrometheusMetrics) SetSubmissionRate(rate float64) {
	m.SubmissionRate.Set(rate)
}

// SetEngineState updates the engine state gauges.
func (m *PrometheusMetrics) SetEngineState(state ptypes.EngineState) {
	for _, s := range []ptypes.EngineState{
		ptypes.EngineIdle, ptypes.EngineRunning, ptypes.EngineStopping, ptypes.EngineStopped,
	} {
		if s == state {
			m.EngineState.WithLabelValues(string(s)).Set(1)
		} else {
			m.EngineState.WithLabelValues(string(s)).Set(0)
		}
	}
}
