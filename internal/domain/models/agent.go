package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AgentStatus represents the lifecycle status of an agent
type AgentStatus string

const (
	AgentActive    AgentStatus = "active"
	AgentSuspended AgentStatus = "suspended"
)

// MaxCommissionRate is the upper bound for any agent's commission rate.
// The split-payment provider also enforces 30% per transaction, so the
// two limits are kept in lockstep.
var MaxCommissionRate = decimal.NewFromFloat(0.30)

// Agent represents a referral agent earning commissions on orders
// placed by users they invited. One agent per owning user.
type Agent struct {
	ID          int64
	OwnerUserID int64
	Status      AgentStatus

	// CommissionRate is the agent's current rate in [0, 0.30].
	// Commission records snapshot it at creation time; changing it
	// never affects existing records.
	CommissionRate decimal.Decimal

	// Payout linkage, supplied by the onboarding flow. PayoutIdentity
	// is the provider-side wallet id the split is sent to.
	PayoutIdentity string
	PayoutLinked   bool

	// Earnings cache, recomputable from commission rows.
	// Invariant (eventually consistent): Settled + Pending == Total.
	TotalEarnings   decimal.Decimal
	SettledEarnings decimal.Decimal
	PendingEarnings decimal.Decimal

	// Referral counters maintained by the onboarding flow, read by
	// the anomaly sweep.
	InvitedUsers int
	PaidUsers    int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsActive reports whether the agent may accrue new commissions.
func (a *Agent) IsActive() bool {
	return a.Status == AgentActive
}

// CanReceivePayout reports whether the agent satisfies the settlement
// prerequisites: active and linked to a payout identity.
func (a *Agent) CanReceivePayout() bool {
	return a.IsActive() && a.PayoutLinked && a.PayoutIdentity != ""
}
