// Package metrics provides a small, backend-agnostic abstraction for
// recording operational metrics from the normalization pipeline.
//
// The package is intentionally minimal and opinionated:
//
//   - It exposes a narrow interface (Backend) focused on counters and timing
//     data.
//   - It provides a global, pluggable backend that defaults to a no-op
//     implementation, so metrics are always safe to call even when no real
//     backend is configured.
//   - It mirrors the storage abstraction pattern used elsewhere in the
//     project, keeping concrete metric systems isolated in subpackages.
package metrics

import "time"

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
// It is intentionally generic so we can plug in Prometheus, Datadog, etc.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

// nopBackend is used by default so metrics are optional.
type nopBackend struct{}

func (nopBackend) IncCounter(name string, delta float64, labels Labels)       {}
func (nopBackend) ObserveHistogram(name string, value float64, labels Labels) {}
func (nopBackend) Flush() error                                               { return nil }

var backend Backend = nopBackend{}

// SetBackend installs a concrete backend. Passing nil keeps the existing backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	backend = b
}

// Flush delegates to the current backend.
func Flush() error {
	return backend.Flush()
}

// RecordStep measures latency plus success/failure for one cohort stage
// (discover, estimate, transform, finalize).
func RecordStep(cohort, step string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}

	lbls := Labels{
		"cohort": cohort,
		"step":   step,
		"status": status,
	}

	backend.IncCounter("cohortnorm_step_total", 1, lbls)
	backend.ObserveHistogram("cohortnorm_step_duration_seconds", d.Seconds(), lbls)
}

// RecordRows increments a row-level counter for the given cohort and kind.
//
// Typical kinds mirror the cohort summary fields:
//   - "transformed"
//   - "flushed"
//   - "batch_errors"
//   - "resource_errors"
func RecordRows(cohort, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter("cohortnorm_rows_total", float64(delta), Labels{
		"cohort": cohort,
		"kind":   kind,
	})
}

// RecordArtifacts increments the artifact counter for the given cohort.
func RecordArtifacts(cohort string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter("cohortnorm_artifacts_total", float64(delta), Labels{
		"cohort": cohort,
	})
}
