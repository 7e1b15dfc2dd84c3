package ports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kevin07696/commission-service/internal/domain/models"
)

// CreateCommissionRequest carries a paid-order event into the ledger
type CreateCommissionRequest struct {
	OrderID        int64
	AgentID        int64
	ReferredUserID int64
	OrderAmount    decimal.Decimal
}

// RefundRequest carries a refund event into the ledger
type RefundRequest struct {
	OrderID      int64
	RefundAmount decimal.Decimal
	FullRefund   bool
}

// RefundAction describes what the ledger did with a refund event
type RefundAction string

const (
	// RefundNoOp: no commission for the order, or the record was
	// already terminal.
	RefundNoOp RefundAction = "noop"
	// RefundCancelled: pending record cancelled outright
	RefundCancelled RefundAction = "cancelled"
	// RefundAdjusted: pending record's amounts reduced, still pending
	RefundAdjusted RefundAction = "adjusted"
	// RefundFlagged: settled record flagged refunded (money already
	// moved; clawback is out of band).
	RefundFlagged RefundAction = "flagged"
)

// RefundOutcome is the ledger's answer to a refund event
type RefundOutcome struct {
	Action     RefundAction
	Commission *models.CommissionRecord
}

// LedgerService owns the commission record lifecycle
type LedgerService interface {
	// CreateCommission books a commission for a paid order. Duplicate
	// deliveries of the same order return the existing record.
	CreateCommission(ctx context.Context, req CreateCommissionRequest) (*models.CommissionRecord, error)

	// UpdateStatus applies a lifecycle transition. Illegal transitions
	// fail; a lost compare-and-set race is a silent no-op.
	UpdateStatus(ctx context.Context, id string, newStatus models.CommissionStatus, reason string) error

	// HandleRefund applies a refund event to the order's commission
	HandleRefund(ctx context.Context, req RefundRequest) (*RefundOutcome, error)

	// GetPendingCommissions returns due pending records owned by
	// active agents, oldest first.
	GetPendingCommissions(ctx context.Context, asOf time.Time) ([]*models.CommissionRecord, error)

	GetCommissionByOrderID(ctx context.Context, orderID int64) (*models.CommissionRecord, error)

	// RefreshAgentEarnings recomputes the agent's earnings cache from
	// the commission rows
	RefreshAgentEarnings(ctx context.Context, agentID int64) error
}
