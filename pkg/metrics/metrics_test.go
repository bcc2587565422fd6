package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestValidationMetricsExports(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewValidationMetrics(reg)

	m.ObserveVerdict("valid", 5*time.Millisecond)
	m.ObserveVerdict("valid", 7*time.Millisecond)
	m.ObserveVerdict("revoked", 3*time.Millisecond)
	m.IncIssued()
	m.IncSeatDenied()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "license_validation_total", "verdict", "valid"); err != nil {
		t.Fatalf("fetch valid: %v", err)
	} else if got != 2 {
		t.Fatalf("expected valid=2, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "license_validation_total", "verdict", "revoked"); err != nil {
		t.Fatalf("fetch revoked: %v", err)
	} else if got != 1 {
		t.Fatalf("expected revoked=1, got %f", got)
	}
	if got, err := fetchHistogramSum(mfs, "license_validation_duration_seconds", "verdict", "valid"); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", got)
	}
}

func TestJobMetricsExports(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewJobMetrics(reg)
	job := "expiry-sweep"

	m.ObserveDuration(job, 250*time.Millisecond)
	m.IncSuccess(job)
	m.IncFailure(job)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "job_success", "job", job); err != nil {
		t.Fatalf("fetch success: %v", err)
	} else if got != 1 {
		t.Fatalf("expected success=1, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "job_failure", "job", job); err != nil {
		t.Fatalf("fetch failure: %v", err)
	} else if got != 1 {
		t.Fatalf("expected failure=1, got %f", got)
	}
}

func TestNilSafety(t *testing.T) {
	var vm *ValidationMetrics
	vm.ObserveVerdict("valid", time.Millisecond)
	vm.IncIssued()
	vm.IncSeatDenied()

	var jm *JobMetrics
	jm.ObserveDuration("job", time.Millisecond)
	jm.IncSuccess("job")
	jm.IncFailure("job")

	// Unregistered instances are no-ops as well.
	NewValidationMetrics(nil).ObserveVerdict("valid", time.Millisecond)
	NewJobMetrics(nil).IncSuccess("job")
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
