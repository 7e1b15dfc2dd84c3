package ports

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/kevin07696/commission-service/internal/domain/models"
)

// SplitSettlementRequest asks the reconciler to push one commission
// through the provider
type SplitSettlementRequest struct {
	CommissionID     string
	TransactionID    string
	PayoutIdentity   string
	AmountMinorUnits int64
	OrderAmount      decimal.Decimal
	Description      string
}

// LimitDecision is the outcome of a settlement limit check
type LimitDecision struct {
	Allowed bool
	Reason  string
}

// SplitProbe is the normalized answer to one status poll
type SplitProbe struct {
	Status          models.AttemptStatus
	ProviderOrderID string
	FailReason      string
}

// ReconcileResult summarizes one reconcile pass over processing attempts
type ReconcileResult struct {
	Polled          int
	Settled         int
	Failed          int
	StillProcessing int
	ForcedFailed    int

	// TouchedAgentIDs are the owners of commissions that reached a
	// terminal state this pass; their earnings caches need a refresh.
	TouchedAgentIDs []int64
}

// ReconcilerService drives settlement attempts against the provider
// and converges their state with the commission ledger
type ReconcilerService interface {
	// RegisterPayoutReceiver registers the identity with the provider.
	// Idempotent; already-registered is success.
	RegisterPayoutReceiver(ctx context.Context, identity, name string) error

	// RemovePayoutReceiver deregisters the identity
	RemovePayoutReceiver(ctx context.Context, identity string) error

	// RequestSplit checks limits, generates a fresh idempotency key,
	// and submits the split order. Acceptance leaves a processing
	// attempt; a hard rejection records a failed attempt and cancels
	// the commission. A limit violation returns LIMIT_EXCEEDED and
	// writes nothing.
	RequestSplit(ctx context.Context, req SplitSettlementRequest) (*models.SettlementAttempt, error)

	// QueryStatus polls one split order by idempotency key and maps
	// the provider state onto an attempt status
	QueryStatus(ctx context.Context, outOrderNo, transactionID string) (*SplitProbe, error)

	// CheckLimits enforces the per-transaction share bound and the
	// daily settlement cap
	CheckLimits(ctx context.Context, amountMinorUnits int64, orderAmount decimal.Decimal) (*LimitDecision, error)

	// ReconcilePending force-fails stuck attempts, then polls every
	// processing attempt and converges attempt and commission state.
	ReconcilePending(ctx context.Context) (*ReconcileResult, error)
}
