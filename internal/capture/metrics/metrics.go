package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RoundsCaptured tracks rounds stored, labeled by which component
	// first observed them.
	RoundsCaptured = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crashwatch_rounds_captured_total",
			Help: "Total number of rounds stored",
		},
		[]string{"source"},
	)

	// FetchErrors tracks provider fetch failures per strategy.
	FetchErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crashwatch_fetch_errors_total",
			Help: "Total number of provider fetch errors",
		},
		[]string{"strategy"},
	)

	// CatchupPages tracks catch-up page outcomes.
	CatchupPages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crashwatch_catchup_pages_total",
			Help: "Total number of catch-up pages by result",
		},
		[]string{"result"},
	)

	// GapsDetected tracks missing ranges found by the gap scan.
	GapsDetected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crashwatch_gaps_detected_total",
			Help: "Total number of missing round ranges detected",
		},
	)

	// RoundsReconstructed tracks rounds recovered via the oracle.
	RoundsReconstructed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crashwatch_rounds_reconstructed_total",
			Help: "Total number of rounds recovered through the hash chain",
		},
	)

	// OraclePollAttempts observes how many polls each oracle walk needed.
	OraclePollAttempts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "crashwatch_oracle_poll_attempts",
			Help:    "Poll attempts per oracle walk",
			Buckets: prometheus.LinearBuckets(1, 5, 10),
		},
	)

	// OutcomeMismatches tracks rounds whose published outcome disagrees
	// with the locally calculated one.
	OutcomeMismatches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crashwatch_outcome_mismatches_total",
			Help: "Rounds whose reported outcome differs from the calculated one",
		},
	)

	// ChainMismatches tracks boundary-hash validation failures during
	// reconciliation.
	ChainMismatches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crashwatch_chain_mismatches_total",
			Help: "Reconciled ranges whose lower boundary hash did not line up",
		},
	)

	// MonitorLastRound tracks the newest round ID seen by the live monitor.
	MonitorLastRound = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "crashwatch_monitor_last_round",
			Help: "Newest round ID observed by the live monitor",
		},
	)

	// ReconcileQueueDepth tracks ranges waiting for reconciliation.
	ReconcileQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "crashwatch_reconcile_queue_depth",
			Help: "Missing ranges queued for reconciliation",
		},
	)
)
