package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AuditActionType identifies the kind of change recorded in an audit entry
type AuditActionType string

const (
	AuditEnroll       AuditActionType = "enroll"
	AuditStatusChange AuditActionType = "statusChange"
	AuditRateChange   AuditActionType = "rateChange"
	AuditPayoutBind   AuditActionType = "payoutBind"
	AuditAutoSuspend  AuditActionType = "autoSuspend"
)

// SystemOperatorID marks audit entries written by background jobs
// rather than a human operator.
const SystemOperatorID int64 = 0

// StatusDiff records an agent status transition.
type StatusDiff struct {
	From AgentStatus `json:"from"`
	To   AgentStatus `json:"to"`
}

// RateDiff records a commission rate adjustment.
type RateDiff struct {
	From decimal.Decimal `json:"from"`
	To   decimal.Decimal `json:"to"`
}

// PayoutBindDiff records a payout identity change. Empty strings mean
// unbound.
type PayoutBindDiff struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// SuspendEvidence carries the measurements that tripped an automatic
// suspension heuristic.
type SuspendEvidence struct {
	Reason         string          `json:"reason"`
	RecordCount    int             `json:"recordCount,omitempty"`
	WindowMinutes  int             `json:"windowMinutes,omitempty"`
	DayTotalAmount decimal.Decimal `json:"dayTotalAmount,omitempty"`
	Threshold      decimal.Decimal `json:"threshold,omitempty"`
	InvitedUsers   int             `json:"invitedUsers,omitempty"`
	PaidUsers      int             `json:"paidUsers,omitempty"`
}

// AuditLogEntry is an append-only record of an agent mutation. Entries
// are never updated or deleted. OldValue and NewValue hold the typed
// diff for the action (StatusDiff, RateDiff, PayoutBindDiff, or
// SuspendEvidence) serialized as JSON.
type AuditLogEntry struct {
	ID         int64
	AgentID    int64
	ActionType AuditActionType
	OperatorID int64
	OldValue   any
	NewValue   any
	CreatedAt  time.Time
}
