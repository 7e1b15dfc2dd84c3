package ports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kevin07696/commission-service/internal/domain/models"
)

// AgentRepository persists agents and their earnings cache
type AgentRepository interface {
	Create(ctx context.Context, tx DBTX, agent *models.Agent) error
	GetByID(ctx context.Context, db DBTX, id int64) (*models.Agent, error)
	GetByOwnerUserID(ctx context.Context, db DBTX, ownerUserID int64) (*models.Agent, error)

	// UpdateStatus transitions the agent's status conditional on the
	// expected prior status. Returns false when zero rows matched
	// (someone else already transitioned it).
	UpdateStatus(ctx context.Context, tx DBTX, id int64, from, to models.AgentStatus) (bool, error)

	UpdateRate(ctx context.Context, tx DBTX, id int64, rate decimal.Decimal) error
	UpdatePayout(ctx context.Context, tx DBTX, id int64, payoutIdentity string, linked bool) error

	// UpdateEarnings overwrites the recomputable earnings cache.
	UpdateEarnings(ctx context.Context, tx DBTX, id int64, total, settled, pending decimal.Decimal) error

	// ListConversionOutliers returns active agents with more than
	// minInvited invited users, more than minPaid paid users, and a
	// paid/invited ratio strictly above maxRatio.
	ListConversionOutliers(ctx context.Context, db DBTX, minInvited, minPaid int, maxRatio float64) ([]*models.Agent, error)
}

// AgentActivityStat is a per-agent aggregate used by the anomaly sweep
type AgentActivityStat struct {
	AgentID     int64
	RecordCount int
	TotalAmount decimal.Decimal
}

// CommissionRepository persists commission records
type CommissionRepository interface {
	// Create inserts a new record. Returns ErrDuplicateCommission
	// (wrapped) when a record for the same order already exists.
	Create(ctx context.Context, tx DBTX, rec *models.CommissionRecord) error

	GetByID(ctx context.Context, db DBTX, id string) (*models.CommissionRecord, error)
	GetByOrderID(ctx context.Context, db DBTX, orderID int64) (*models.CommissionRecord, error)

	// UpdateStatus transitions the record conditional on the expected
	// prior status (compare-and-set). settledAt is stamped only when
	// moving to settled. Returns false on zero rows affected.
	UpdateStatus(ctx context.Context, tx DBTX, id string, from, to models.CommissionStatus, failReason string, settledAt *time.Time) (bool, error)

	// AdjustAmounts rewrites order and commission amounts for a
	// partial refund. Conditional on the record still being pending.
	AdjustAmounts(ctx context.Context, tx DBTX, id string, orderAmount, commissionAmount decimal.Decimal) (bool, error)

	// ListDuePending returns pending records with settleDate <= asOf
	// whose owning agent is active, oldest created first.
	ListDuePending(ctx context.Context, db DBTX, asOf time.Time) ([]*models.CommissionRecord, error)

	// FrequencyStats returns per-agent record counts for records
	// created after since, for agents with strictly more than
	// minCount records in the window.
	FrequencyStats(ctx context.Context, db DBTX, since time.Time, minCount int) ([]AgentActivityStat, error)

	// DailyAmountStats returns per-agent sums of pending and settled
	// commission amounts created on or after dayStart, for agents
	// whose sum strictly exceeds threshold.
	DailyAmountStats(ctx context.Context, db DBTX, dayStart time.Time, threshold decimal.Decimal) ([]AgentActivityStat, error)

	// SumEarnings recomputes the earnings cache source values for an
	// agent: settled and pending commission amount totals.
	SumEarnings(ctx context.Context, db DBTX, agentID int64) (settled, pending decimal.Decimal, err error)
}

// AttemptRepository persists settlement attempts
type AttemptRepository interface {
	Create(ctx context.Context, tx DBTX, attempt *models.SettlementAttempt) error
	GetByOutOrderNo(ctx context.Context, db DBTX, outOrderNo string) (*models.SettlementAttempt, error)

	// ListProcessing returns attempts awaiting a terminal provider
	// state, oldest request first.
	ListProcessing(ctx context.Context, db DBTX) ([]*models.SettlementAttempt, error)

	// UpdateStatus transitions the attempt conditional on the
	// expected prior status. Returns false on zero rows affected.
	UpdateStatus(ctx context.Context, tx DBTX, id int64, from, to models.AttemptStatus, providerOrderID, failReason string, finishTime *time.Time) (bool, error)

	IncrementRetry(ctx context.Context, tx DBTX, id int64) error

	// SumActiveAmountSince returns the minor-unit sum of processing
	// and success attempts requested at or after since. Used for the
	// daily settlement cap.
	SumActiveAmountSince(ctx context.Context, db DBTX, since time.Time) (int64, error)
}

// AuditLogRepository persists the append-only agent audit trail
type AuditLogRepository interface {
	Append(ctx context.Context, tx DBTX, entry *models.AuditLogEntry) error
	ListByAgent(ctx context.Context, db DBTX, agentID int64, limit int) ([]*models.AuditLogEntry, error)
}

// OrderReader exposes the one fact this engine needs from the order
// subsystem: the provider transaction id of a paid order. Returns an
// empty string when the order has no provider transaction.
type OrderReader interface {
	PaymentTransactionID(ctx context.Context, orderID int64) (string, error)
}
