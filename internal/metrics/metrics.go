// Package metrics provides Prometheus metrics for the localization pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "vietforeign"

// Outcome labels.
const (
	OutcomeSuccess  = "success"
	OutcomeDegraded = "degraded"
	OutcomeError    = "error"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	StageLatency  *prometheus.HistogramVec
	StageErrors   *prometheus.CounterVec
	Uploads       *prometheus.CounterVec
	UploadBytes   prometheus.Counter
	Artifacts     prometheus.Gauge
	Sessions      prometheus.Gauge
	InFlight      prometheus.Gauge
	EventsPublish *prometheus.CounterVec
}

// New creates the metrics and registers them with registerer. A nil
// registerer leaves the metrics unregistered, which tests rely on.
func New(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)

	return &Metrics{
		StageLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline operations in seconds",
			Buckets:   []float64{0.05, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}, []string{"stage", "outcome"}),
		StageErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_errors_total",
			Help:      "Total number of failed pipeline operations",
		}, []string{"stage", "kind"}),
		Uploads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Total number of accepted uploads by format",
		}, []string{"format"}),
		UploadBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_bytes_total",
			Help:      "Total bytes of accepted uploads",
		}),
		Artifacts: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "artifacts",
			Help:      "Number of artifacts held in the store",
		}),
		Sessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions",
			Help:      "Number of transcript sessions held in the store",
		}),
		InFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "inference_in_flight",
			Help:      "Number of inference tasks running on the worker pool",
		}),
		EventsPublish: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Total number of pipeline events published",
		}, []string{"type", "outcome"}),
	}
}

// RecordStage records the duration and, on failure, the error kind of one
// pipeline operation.
func (m *Metrics) RecordStage(stage, outcome, kind string, elapsed time.Duration) {
	m.StageLatency.WithLabelValues(stage, outcome).Observe(elapsed.Seconds())

	if outcome == OutcomeError {
		m.StageErrors.WithLabelValues(stage, kind).Inc()
	}
}

// RecordUpload records an accepted upload.
func (m *Metrics) RecordUpload(format string, size int) {
	m.Uploads.WithLabelValues(format).Inc()
	m.UploadBytes.Add(float64(size))
}

// SetStoreSizes updates the store gauges.
func (m *Metrics) SetStoreSizes(artifacts, sessions int) {
	m.Artifacts.Set(float64(artifacts))
	m.Sessions.Set(float64(sessions))
}

// SetInFlight updates the in-flight inference gauge.
func (m *Metrics) SetInFlight(count int64) {
	m.InFlight.Set(float64(count))
}

// RecordEvent records a publish attempt.
func (m *Metrics) RecordEvent(eventType string, err error) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
	}

	m.EventsPublish.WithLabelValues(eventType, outcome).Inc()
}
