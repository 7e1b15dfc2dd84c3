package ports

import "context"

// SplitState is the normalized provider-side state of a split order
type SplitState string

const (
	SplitFinished   SplitState = "FINISHED"
	SplitProcessing SplitState = "PROCESSING"
	SplitFailed     SplitState = "FAILED"
)

// SplitReceiver is one payout target of a split request. Amounts are
// integer minor units; the decimal-to-minor conversion happens exactly
// once, before this boundary.
type SplitReceiver struct {
	Identity         string
	AmountMinorUnits int64
	Description      string
}

// SplitRequest asks the provider to divert part of an already
// collected payment to the receivers.
type SplitRequest struct {
	TransactionID     string
	OutOrderNo        string
	Receivers         []SplitReceiver
	UnfreezeRemaining bool
}

// SplitResult is the provider's answer to a split request
type SplitResult struct {
	ProviderOrderID string
}

// SplitStatus is the provider's answer to a status query
type SplitStatus struct {
	State           SplitState
	ProviderOrderID string
	FailReason      string
}

// SplitPaymentGateway is the external split-payment provider.
// All calls are at-least-once: responses may be lost, and the caller's
// OutOrderNo plus provider-side duplicate detection make retries safe.
type SplitPaymentGateway interface {
	// AddReceiver registers a payout identity with the provider.
	// Idempotent: an already-registered identity is success.
	AddReceiver(ctx context.Context, identity, name string) error

	// RemoveReceiver deregisters a payout identity.
	RemoveReceiver(ctx context.Context, identity string) error

	// RequestSplit submits a split order. A hard rejection comes back
	// as a DomainError with code PROVIDER_REJECTED; anything else that
	// fails is transient.
	RequestSplit(ctx context.Context, req SplitRequest) (*SplitResult, error)

	// QuerySplit polls a previously submitted split order.
	QuerySplit(ctx context.Context, outOrderNo, transactionID string) (*SplitStatus, error)
}
