package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all custom Prometheus metrics for the application
type Metrics struct {
	// Run metrics
	RunsStarted    *prometheus.CounterVec // trigger: "api", "schedule", "cli"
	RunsFinished   *prometheus.CounterVec // status: finished, cancelled, failed
	RunDuration    prometheus.Histogram
	BlocksExecuted *prometheus.CounterVec // kind: audience, message, ...

	// Facade metrics
	FacadeFailures *prometheus.CounterVec // op: analyze, dispatch, meet, send

	// Social metrics
	MessagesSent prometheus.Counter

	// Connection manager reference for dynamic metrics
	connManager *ConnectionManager
}

var globalMetrics *Metrics

// InitMetrics initializes the Prometheus metrics
func InitMetrics(connManager *ConnectionManager) *Metrics {
	metrics := &Metrics{
		connManager: connManager,

		RunsStarted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "neuro_runs_started_total",
			Help: "Total number of automation runs started, by trigger",
		}, []string{"trigger"}),

		RunsFinished: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "neuro_runs_finished_total",
			Help: "Total number of automation runs finished, by terminal status",
		}, []string{"status"}),

		// Wait blocks stretch runs to minutes, buckets go wide
		RunDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "neuro_run_duration_seconds",
			Help:    "Automation run duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
		}),

		BlocksExecuted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "neuro_blocks_executed_total",
			Help: "Total number of workflow blocks executed, by block kind",
		}, []string{"kind"}),

		FacadeFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "neuro_facade_failures_total",
			Help: "Total number of failed outbound action calls, by operation",
		}, []string{"op"}),

		MessagesSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "neuro_messages_sent_total",
			Help: "Total number of direct messages sent",
		}),
	}

	// Register a collector that reads live subscriber counts from the manager
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "neuro_run_subscribers_current",
			Help: "Current number of WebSocket run-log subscribers",
		},
		func() float64 {
			if connManager != nil {
				return float64(connManager.Count())
			}
			return 0
		},
	))

	globalMetrics = metrics
	return metrics
}

// GetMetrics returns the global metrics instance
func GetMetrics() *Metrics {
	return globalMetrics
}

// RecordRunStarted records a run start by trigger source
func (m *Metrics) RecordRunStarted(trigger string) {
	m.RunsStarted.WithLabelValues(trigger).Inc()
}

// RecordRunFinished records a run reaching a terminal status
func (m *Metrics) RecordRunFinished(status string, seconds float64) {
	m.RunsFinished.WithLabelValues(status).Inc()
	m.RunDuration.Observe(seconds)
}

// RecordBlockExecuted records one executed workflow block
func (m *Metrics) RecordBlockExecuted(kind string) {
	m.BlocksExecuted.WithLabelValues(kind).Inc()
}

// RecordFacadeFailure records a failed outbound action call
func (m *Metrics) RecordFacadeFailure(op string) {
	m.FacadeFailures.WithLabelValues(op).Inc()
}

// RecordMessageSent records a delivered direct message
func (m *Metrics) RecordMessageSent() {
	m.MessagesSent.Inc()
}
