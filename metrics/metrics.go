// metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Indexer
var (
	ReconcileRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pact_oracle_reconcile_runs_total",
		Help: "Reconcile passes by result",
	}, []string{"result"})

	ReconcileDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pact_oracle_reconcile_duration_seconds",
		Help:    "Wall time of a reconcile pass, fetch and commit included",
		Buckets: prometheus.DefBuckets,
	})

	MirroredRows = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pact_oracle_mirrored_rows",
		Help: "Rows written by the last successful pass, per account kind",
	}, []string{"kind"})

	SnapshotUploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pact_oracle_snapshot_uploads_total",
		Help: "Snapshot archive uploads by result",
	}, []string{"result"})
)

// Relay
var (
	RelayRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pact_oracle_relay_requests_total",
		Help: "Relay outcomes by result and origin",
	}, []string{"result", "origin"})

	RelayConfirmDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pact_oracle_relay_confirm_duration_seconds",
		Help:    "Time from submission to confirmation",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
	})

	ProjectionFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pact_oracle_projection_failures_total",
		Help: "Confirmed transactions whose local projection failed",
	})
)

// Oracle
var (
	DutyRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pact_oracle_duty_runs_total",
		Help: "Duty invocations by duty and result (ok, error, skipped)",
	}, []string{"duty", "result"})

	VerificationOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pact_oracle_verification_outcomes_total",
		Help: "Verifier outcomes by goal type",
	}, []string{"goal_type", "outcome"})

	Eliminations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pact_oracle_eliminations_total",
		Help: "Elimination transactions by result",
	}, []string{"result"})

	Settlements = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pact_oracle_settlements_total",
		Help: "Settlement transactions by result",
	}, []string{"result"})
)
