// Package metrics registers the prometheus instruments for the validation
// path and the background sweep jobs. All methods are nil-safe so callers
// can run without a registry in tests.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ValidationMetrics counts validation verdicts and key issuance events.
type ValidationMetrics struct {
	verdicts   *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	issuance   prometheus.Counter
	seatDenied prometheus.Counter
}

// NewValidationMetrics registers the validation instruments.
func NewValidationMetrics(reg prometheus.Registerer) *ValidationMetrics {
	if reg == nil {
		return &ValidationMetrics{}
	}
	verdicts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "license_validation_total",
		Help: "Validation requests by verdict.",
	}, []string{"verdict"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "license_validation_duration_seconds",
		Help:    "Duration of validation requests in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"verdict"})
	issuance := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "license_issued_total",
		Help: "Licenses issued.",
	})
	seatDenied := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "license_seat_denied_total",
		Help: "Seat claims rejected because the activation limit was reached.",
	})
	reg.MustRegister(verdicts, duration, issuance, seatDenied)
	return &ValidationMetrics{
		verdicts:   verdicts,
		duration:   duration,
		issuance:   issuance,
		seatDenied: seatDenied,
	}
}

// ObserveVerdict records one validation decision and its latency.
func (m *ValidationMetrics) ObserveVerdict(verdict string, elapsed time.Duration) {
	if m == nil || m.verdicts == nil {
		return
	}
	label := normalizeLabel(verdict)
	m.verdicts.WithLabelValues(label).Inc()
	m.duration.WithLabelValues(label).Observe(elapsed.Seconds())
}

// IncIssued increments the issuance counter.
func (m *ValidationMetrics) IncIssued() {
	if m == nil || m.issuance == nil {
		return
	}
	m.issuance.Inc()
}

// IncSeatDenied increments the seat-limit rejection counter.
func (m *ValidationMetrics) IncSeatDenied() {
	if m == nil || m.seatDenied == nil {
		return
	}
	m.seatDenied.Inc()
}

// JobMetrics records metadata for scheduled jobs such as the expiry sweep.
type JobMetrics struct {
	duration *prometheus.HistogramVec
	success  *prometheus.CounterVec
	failure  *prometheus.CounterVec
}

// NewJobMetrics registers the job instruments on the provided registerer.
func NewJobMetrics(reg prometheus.Registerer) *JobMetrics {
	if reg == nil {
		return &JobMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "job_duration_seconds",
		Help:    "Duration of background jobs in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	success := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "job_success",
		Help: "Successful job executions.",
	}, []string{"job"})
	failure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "job_failure",
		Help: "Failed job executions.",
	}, []string{"job"})
	reg.MustRegister(duration, success, failure)
	return &JobMetrics{duration: duration, success: success, failure: failure}
}

// ObserveDuration records the duration for the named job.
func (j *JobMetrics) ObserveDuration(job string, elapsed time.Duration) {
	if j == nil || j.duration == nil {
		return
	}
	j.duration.WithLabelValues(normalizeLabel(job)).Observe(elapsed.Seconds())
}

// IncSuccess increments the success counter for the named job.
func (j *JobMetrics) IncSuccess(job string) {
	if j == nil || j.success == nil {
		return
	}
	j.success.WithLabelValues(normalizeLabel(job)).Inc()
}

// IncFailure increments the failure counter for the named job.
func (j *JobMetrics) IncFailure(job string) {
	if j == nil || j.failure == nil {
		return
	}
	j.failure.WithLabelValues(normalizeLabel(job)).Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
