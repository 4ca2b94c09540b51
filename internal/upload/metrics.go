package upload

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks the vault upload path.
//
// All metrics use the procurement_vault_ prefix.
type Metrics struct {
	// UploadsTotal counts orchestrations by outcome and failure kind
	UploadsTotal *prometheus.CounterVec

	// StepDuration tracks latency per protocol step
	StepDuration *prometheus.HistogramVec

	// UploadBytes tracks payload sizes sent to the vault
	UploadBytes prometheus.Histogram

	// FallbacksTotal counts submissions that fell back to inline attachments
	FallbacksTotal *prometheus.CounterVec
}

// NewMetrics creates and registers the upload metrics on reg.
// Panics if registration fails (expected during initialization only).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		UploadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "procurement_vault_uploads_total",
				Help: "Vault upload orchestrations by outcome and error kind",
			},
			[]string{"outcome", "kind"},
		),
		StepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "procurement_vault_step_duration_seconds",
				Help:    "Duration of each vault upload step in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"step"},
		),
		UploadBytes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "procurement_vault_upload_bytes",
				Help:    "Size of files sent through the vault protocol",
				Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
			},
		),
		FallbacksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "procurement_vault_fallbacks_total",
				Help: "Submissions that attached the file inline after a vault failure",
			},
			[]string{"kind"},
		),
	}

	reg.MustRegister(
		m.UploadsTotal,
		m.StepDuration,
		m.UploadBytes,
		m.FallbacksTotal,
	)
	return m
}

// ObserveStep records how long a protocol step took.
func (m *Metrics) ObserveStep(step string, seconds float64) {
	if m == nil {
		return
	}
	m.StepDuration.WithLabelValues(step).Observe(seconds)
}

// RecordUpload records the end of one orchestration.
func (m *Metrics) RecordUpload(outcome, kind string, size int) {
	if m == nil {
		return
	}
	m.UploadsTotal.WithLabelValues(outcome, kind).Inc()
	if size > 0 {
		m.UploadBytes.Observe(float64(size))
	}
}

// RecordFallback records an inline-attachment fallback caused by kind.
func (m *Metrics) RecordFallback(kind string) {
	if m == nil {
		return
	}
	m.FallbacksTotal.WithLabelValues(kind).Inc()
}
