package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CommissionStatus represents the settlement state of a commission
type CommissionStatus string

const (
	CommissionPending   CommissionStatus = "pending"
	CommissionSettled   CommissionStatus = "settled"
	CommissionCancelled CommissionStatus = "cancelled"
	CommissionRefunded  CommissionStatus = "refunded"
)

// CommissionRecord is the fee owed to an agent for one referred paid
// order. At most one record exists per order.
//
// Lifecycle:
//
//	pending  -> settled   (split finished)
//	pending  -> cancelled (full refund, hard provider rejection, or
//	                       missing transaction id)
//	settled  -> refunded  (refund after settlement; bookkeeping flag
//	                       only, the money already moved)
//
// cancelled and refunded are terminal. A partial refund on a pending
// record shrinks OrderAmount and recomputes CommissionAmount from the
// snapshot rate; the record stays pending.
type CommissionRecord struct {
	ID             string // uuid
	AgentID        int64
	OrderID        int64 // unique across records
	ReferredUserID int64

	OrderAmount decimal.Decimal

	// CommissionRate is the agent's rate snapshotted at creation.
	// Immutable for the life of the record.
	CommissionRate   decimal.Decimal
	CommissionAmount decimal.Decimal

	Status CommissionStatus

	// SettleDate is local midnight of the calendar day after creation
	// (T+1). The daily sweep picks up records with SettleDate <= now.
	SettleDate time.Time
	SettledAt  *time.Time
	FailReason string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CanTransitionTo reports whether moving to next is a legal
// commission state transition.
func (c *CommissionRecord) CanTransitionTo(next CommissionStatus) bool {
	switch c.Status {
	case CommissionPending:
		return next == CommissionSettled || next == CommissionCancelled
	case CommissionSettled:
		return next == CommissionRefunded
	default:
		return false
	}
}

// IsTerminal reports whether the record can never change status again.
func (c *CommissionRecord) IsTerminal() bool {
	return c.Status == CommissionCancelled || c.Status == CommissionRefunded
}
