// Package metrics exposes recognition and command counters for Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/emmett/voxtask/internal/confidence"
	"github.com/emmett/voxtask/internal/session"
)

// Metrics holds the collectors registered for one process
type Metrics struct {
	registry *prometheus.Registry

	Sessions          *prometheus.CounterVec
	SessionDuration   prometheus.Histogram
	Retries           prometheus.Counter
	Commands          *prometheus.CounterVec
	Rejections        prometheus.Counter
	Threshold         prometheus.Gauge
	ErrorRate         prometheus.Gauge
	AverageConfidence prometheus.Gauge
}

// New registers the collectors on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		Sessions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voxtask_sessions_total",
				Help: "Recognition sessions by result",
			},
			[]string{"result"},
		),

		SessionDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "voxtask_session_duration_seconds",
				Help:    "Time from session start to its terminal outcome",
				Buckets: []float64{0.5, 1, 2, 3, 5, 8, 13, 21, 34},
			},
		),

		Retries: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "voxtask_session_retries_total",
				Help: "Automatic retries after silence",
			},
		),

		Commands: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voxtask_commands_total",
				Help: "Executed voice commands by intent and outcome",
			},
			[]string{"intent", "outcome"},
		),

		Rejections: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "voxtask_low_confidence_rejections_total",
				Help: "Transcripts discarded for falling below the confidence threshold",
			},
		),

		Threshold: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "voxtask_confidence_threshold",
				Help: "Current confidence threshold",
			},
		),

		ErrorRate: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "voxtask_recognition_error_rate_percent",
				Help: "Share of sessions that failed",
			},
		),

		AverageConfidence: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "voxtask_recognition_average_confidence",
				Help: "Mean confidence of recent successful sessions",
			},
		),
	}
}

// ObserveSession records a terminal session outcome
func (m *Metrics) ObserveSession(o session.Outcome) {
	result := "completed"
	if !o.Succeeded() {
		result = o.Failure.String()
	}
	m.Sessions.WithLabelValues(result).Inc()
	m.SessionDuration.Observe(o.Duration.Seconds())
	m.Retries.Add(float64(o.Retries))
}

// ObserveCommand records an executed command
func (m *Metrics) ObserveCommand(intent, outcome string) {
	m.Commands.WithLabelValues(intent, outcome).Inc()
}

// ObserveRejection records a transcript dropped for low confidence
func (m *Metrics) ObserveRejection() {
	m.Rejections.Inc()
}

// ObserveAnalytics mirrors the controller's state into gauges
func (m *Metrics) ObserveAnalytics(a confidence.Analytics) {
	m.Threshold.Set(a.Threshold)
	m.ErrorRate.Set(a.ErrorRate)
	m.AverageConfidence.Set(a.AverageConfidence)
}

// Registry returns the registry holding these collectors
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the collectors in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
