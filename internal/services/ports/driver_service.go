package ports

import (
	"context"
	"time"
)

// SettlementRunResult summarizes one daily settlement sweep
type SettlementRunResult struct {
	Due       int
	Requested int
	Deferred  int
	Skipped   int
	Cancelled int
	Failed    int
}

// SettlementDriver runs the periodic sweeps. Each run is resumable:
// all progress lives in the database, and a crash mid-sweep only means
// the next run picks up whatever is still due.
type SettlementDriver interface {
	// RunDailySettlement sweeps due pending commissions into
	// settlement attempts
	RunDailySettlement(ctx context.Context, asOf time.Time) (*SettlementRunResult, error)

	// RunHourlyReconcile converges processing attempts with the
	// provider
	RunHourlyReconcile(ctx context.Context) (*ReconcileResult, error)

	// RunAnomalySweep suspends agents matching the anomaly heuristics
	RunAnomalySweep(ctx context.Context) (*AnomalySweepResult, error)
}
