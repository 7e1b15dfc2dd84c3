package models

import "time"

// AttemptStatus represents the provider-side state of a settlement attempt
type AttemptStatus string

const (
	AttemptProcessing AttemptStatus = "processing"
	AttemptSuccess    AttemptStatus = "success"
	AttemptFailed     AttemptStatus = "failed"
)

// SettlementAttempt is one request to the split-payment provider to
// pay out a commission. The provider is eventually consistent:
// accepted requests sit in processing until a poll observes a
// terminal state.
//
// OutOrderNo is the locally generated idempotency key. It is created
// once per attempt and reused for every poll and retry of that
// attempt; only a brand-new attempt (after a prior one definitively
// failed) gets a fresh key.
type SettlementAttempt struct {
	ID           int64
	CommissionID string

	// TransactionID is the provider's reference for the original
	// customer payment being split.
	TransactionID string

	OutOrderNo      string
	ProviderOrderID string

	// AmountMinorUnits is the payout amount in integer minor units,
	// fixed at request time: round(commissionAmount * 100). It is
	// never re-derived mid-flight.
	AmountMinorUnits int64

	Status     AttemptStatus
	FailReason string

	RequestTime time.Time
	FinishTime  *time.Time
	RetryCount  int
}

// IsTerminal reports whether the attempt has reached a final state.
func (a *SettlementAttempt) IsTerminal() bool {
	return a.Status == AttemptSuccess || a.Status == AttemptFailed
}
