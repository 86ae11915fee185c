// Package prompush implements a Prometheus Pushgateway backend for the
// metrics package.
//
// It adapts the generic metrics.Backend interface to Prometheus by using
// client_golang collectors and pushing them to a Pushgateway instead of
// exposing an HTTP scrape endpoint; a batch job has nothing to scrape once
// it exits. All Prometheus-specific dependencies stay inside this package so
// the rest of the project depends only on the metrics abstraction.
package prompush

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"cohortnorm/internal/metrics"
)

// Backend is a Prometheus Pushgateway metrics backend.
type Backend struct {
	gatewayURL string // e.g. http://pushgateway:9091
	jobName    string // Pushgateway "job" group
	reg        *prometheus.Registry

	stepCounter  *prometheus.CounterVec // cohortnorm_step_total
	stepDuration *prometheus.SummaryVec // cohortnorm_step_duration_seconds

	rowCounter      *prometheus.CounterVec // cohortnorm_rows_total
	artifactCounter *prometheus.CounterVec // cohortnorm_artifacts_total
}

// NewBackend constructs a Pushgateway backend. jobName becomes the
// Pushgateway "job" grouping key; gatewayURL is the base URL of the server.
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: gateway URL is required")
	}
	if jobName == "" {
		jobName = "cohortnorm"
	}

	reg := prometheus.NewRegistry()

	stepCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cohortnorm_step_total",
			Help: "Total pipeline stage executions, partitioned by cohort, step, and status.",
		},
		[]string{"cohort", "step", "status"},
	)
	stepDuration := prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Name:       "cohortnorm_step_duration_seconds",
			Help:       "Duration of pipeline stages in seconds, partitioned by cohort, step, and status.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
		[]string{"cohort", "step", "status"},
	)
	rowCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cohortnorm_rows_total",
			Help: "Row-level counts per cohort and kind (transformed, flushed, ...).",
		},
		[]string{"cohort", "kind"},
	)
	artifactCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cohortnorm_artifacts_total",
			Help: "Output artifacts written per cohort.",
		},
		[]string{"cohort"},
	)

	for _, c := range []prometheus.Collector{stepCounter, stepDuration, rowCounter, artifactCounter} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("prompush: register collector: %w", err)
		}
	}

	return &Backend{
		gatewayURL:      gatewayURL,
		jobName:         jobName,
		reg:             reg,
		stepCounter:     stepCounter,
		stepDuration:    stepDuration,
		rowCounter:      rowCounter,
		artifactCounter: artifactCounter,
	}, nil
}

// IncCounter implements metrics.Backend.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	switch name {
	case "cohortnorm_step_total":
		b.stepCounter.WithLabelValues(labels["cohort"], labels["step"], labels["status"]).Add(delta)
	case "cohortnorm_rows_total":
		b.rowCounter.WithLabelValues(labels["cohort"], labels["kind"]).Add(delta)
	case "cohortnorm_artifacts_total":
		b.artifactCounter.WithLabelValues(labels["cohort"]).Add(delta)
	default:
		// unknown metric name: ignore
	}
}

// ObserveHistogram implements metrics.Backend.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if name != "cohortnorm_step_duration_seconds" {
		return
	}
	b.stepDuration.WithLabelValues(labels["cohort"], labels["step"], labels["status"]).Observe(value)
}

// Flush pushes the current registry to the Pushgateway.
func (b *Backend) Flush() error {
	return push.New(b.gatewayURL, b.jobName).
		Gatherer(b.reg).
		Push()
}
