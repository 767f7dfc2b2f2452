package statemigration

import (
	"strconv"
	"time"

	"github.com/dyluth/quill/internal/blob"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	stateMigrationStepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quill_state_migration_steps_total",
			Help: "Total state schema migration steps applied successfully.",
		},
		[]string{"from_version"},
	)
	stateMigrationStepFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quill_state_migration_step_failures_total",
			Help: "Total state schema migration steps that failed.",
		},
		[]string{"from_version", "reason"},
	)
	stateMigrationStepLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quill_state_migration_step_latency_ms",
			Help:    "State schema migration step latency in milliseconds.",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250},
		},
		[]string{"from_version"},
	)
)

func init() {
	prometheus.MustRegister(
		stateMigrationStepsTotal,
		stateMigrationStepFailuresTotal,
		stateMigrationStepLatencyMs,
	)
}

// Failure reasons used as metric label values.
const (
	reasonStepNotFound = "step_not_found"
	reasonMalformed    = "malformed_state"
	reasonOther        = "error"
)

func failureReason(err error) string {
	switch {
	case IsStepNotFound(err):
		return reasonStepNotFound
	case blob.IsMalformed(err):
		return reasonMalformed
	default:
		return reasonOther
	}
}

func observeStep(fromVersion int, latency time.Duration, err error) {
	label := strconv.Itoa(fromVersion)
	if err != nil {
		stateMigrationStepFailuresTotal.WithLabelValues(label, failureReason(err)).Inc()
		return
	}
	stateMigrationStepsTotal.WithLabelValues(label).Inc()
	stateMigrationStepLatencyMs.WithLabelValues(label).Observe(float64(latency.Microseconds()) / 1000)
}
