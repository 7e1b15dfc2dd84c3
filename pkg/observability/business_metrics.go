package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Commission ledger metrics
	commissionRecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "commission_records_total",
		Help: "Total number of commission record transitions",
	}, []string{
		"status", // pending, settled, cancelled, refunded
	})

	commissionAmountCents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "commission_amount_cents_total",
		Help: "Total commission amount in minor units, by final status",
	}, []string{
		"status",
	})

	// Settlement attempt metrics
	settlementAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_attempts_total",
		Help: "Total settlement attempts by outcome",
	}, []string{
		"outcome", // requested, success, failed, rejected, deferred
	})

	settlementAmountCents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_amount_cents_total",
		Help: "Total settled amount in minor units",
	}, []string{
		"outcome",
	})

	settlementPollDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "settlement_confirmation_duration_seconds",
		Help: "Wall-clock time from split request to terminal provider state",
		// T+1 settlements confirm anywhere from seconds to a day
		Buckets: []float64{1, 10, 60, 300, 1800, 3600, 21600, 86400},
	}, []string{
		"outcome",
	})

	// Sweep metrics
	sweepRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sweep_runs_total",
		Help: "Total sweep executions",
	}, []string{
		"job",    // settlement, reconcile, anomaly
		"status", // success, failed
	})

	sweepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sweep_duration_seconds",
		Help:    "Sweep execution time",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
	}, []string{
		"job",
	})

	// Anomaly metrics
	agentsAutoSuspendedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agents_auto_suspended_total",
		Help: "Total agents suspended by the anomaly sweep",
	}, []string{
		"reason",
	})

	// Provider gateway metrics
	providerCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "provider_calls_total",
		Help: "Total split-payment provider API calls",
	}, []string{
		"operation", // add_receiver, remove_receiver, request_split, query_split
		"status",    // success, rejected, error
	})
)

// RecordCommissionTransition records a commission record entering a
// lifecycle state
func RecordCommissionTransition(status string, amountCents int64) {
	commissionRecordsTotal.WithLabelValues(status).Inc()
	commissionAmountCents.WithLabelValues(status).Add(float64(amountCents))
}

// RecordSettlementAttempt records a settlement attempt outcome
func RecordSettlementAttempt(outcome string, amountCents int64) {
	settlementAttemptsTotal.WithLabelValues(outcome).Inc()
	settlementAmountCents.WithLabelValues(outcome).Add(float64(amountCents))
}

// RecordSettlementConfirmation records how long a split took to reach
// a terminal provider state
func RecordSettlementConfirmation(outcome string, seconds float64) {
	settlementPollDuration.WithLabelValues(outcome).Observe(seconds)
}

// RecordSweepRun records one sweep execution
func RecordSweepRun(job, status string, seconds float64) {
	sweepRunsTotal.WithLabelValues(job, status).Inc()
	sweepDuration.WithLabelValues(job).Observe(seconds)
}

// RecordAutoSuspension records an anomaly-triggered suspension
func RecordAutoSuspension(reason string) {
	agentsAutoSuspendedTotal.WithLabelValues(reason).Inc()
}

// RecordProviderCall records a provider API call outcome
func RecordProviderCall(operation, status string) {
	providerCallsTotal.WithLabelValues(operation, status).Inc()
}
