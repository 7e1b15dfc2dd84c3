package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/kevin07696/commission-service/internal/domain"
	"github.com/kevin07696/commission-service/internal/domain/models"
	"github.com/kevin07696/commission-service/internal/domain/ports"
)

// CommissionRepository implements ports.CommissionRepository on pgx
type CommissionRepository struct {
	db ports.DBPort
}

// NewCommissionRepository creates a new commission repository
func NewCommissionRepository(db ports.DBPort) *CommissionRepository {
	return &CommissionRepository{db: db}
}

func (r *CommissionRepository) executor(tx ports.DBTX) ports.DBTX {
	if tx != nil {
		return tx
	}
	return r.db.GetDB()
}

const commissionColumns = `id, agent_id, order_id, referred_user_id, order_amount, commission_rate,
	commission_amount, status, settle_date, settled_at, fail_reason, created_at, updated_at`

// Create inserts a new commission record. The unique index on order_id
// is the backstop against duplicate paid-order deliveries.
func (r *CommissionRepository) Create(ctx context.Context, tx ports.DBTX, rec *models.CommissionRecord) error {
	orderAmount, err := toNumeric(rec.OrderAmount)
	if err != nil {
		return err
	}
	rate, err := toNumeric(rec.CommissionRate)
	if err != nil {
		return err
	}
	commissionAmount, err := toNumeric(rec.CommissionAmount)
	if err != nil {
		return err
	}

	row := r.executor(tx).QueryRow(ctx,
		`INSERT INTO commission_records
		   (id, agent_id, order_id, referred_user_id, order_amount, commission_rate, commission_amount, status, settle_date)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING created_at, updated_at`,
		rec.ID, rec.AgentID, rec.OrderID, rec.ReferredUserID,
		orderAmount, rate, commissionAmount, string(rec.Status), rec.SettleDate)

	if err := row.Scan(&rec.CreatedAt, &rec.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return domain.WrapError(domain.ErrorCodeCommissionExists, "commission already exists for order", err).
				WithDetail("order_id", rec.OrderID)
		}
		return fmt.Errorf("create commission: %w", err)
	}
	return nil
}

// GetByID retrieves a commission record by its ID
func (r *CommissionRepository) GetByID(ctx context.Context, db ports.DBTX, id string) (*models.CommissionRecord, error) {
	row := r.executor(db).QueryRow(ctx,
		`SELECT `+commissionColumns+` FROM commission_records WHERE id = $1`, id)
	return scanCommission(row)
}

// GetByOrderID retrieves the commission record for an order
func (r *CommissionRepository) GetByOrderID(ctx context.Context, db ports.DBTX, orderID int64) (*models.CommissionRecord, error) {
	row := r.executor(db).QueryRow(ctx,
		`SELECT `+commissionColumns+` FROM commission_records WHERE order_id = $1`, orderID)
	return scanCommission(row)
}

// UpdateStatus transitions the record conditional on the expected prior
// status. settledAt is written only when provided (moving to settled).
// Zero rows affected returns false: another job already moved it.
func (r *CommissionRepository) UpdateStatus(ctx context.Context, tx ports.DBTX, id string, from, to models.CommissionStatus, failReason string, settledAt *time.Time) (bool, error) {
	tag, err := r.executor(tx).Exec(ctx,
		`UPDATE commission_records
		 SET status = $1,
		     fail_reason = COALESCE($2, fail_reason),
		     settled_at = COALESCE($3, settled_at),
		     updated_at = now()
		 WHERE id = $4 AND status = $5`,
		string(to), nullText(failReason), nullTimestamptz(settledAt), id, string(from))
	if err != nil {
		return false, fmt.Errorf("update commission status: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// AdjustAmounts rewrites the amounts for a partial refund. Conditional
// on the record still being pending.
func (r *CommissionRepository) AdjustAmounts(ctx context.Context, tx ports.DBTX, id string, orderAmount, commissionAmount decimal.Decimal) (bool, error) {
	orderN, err := toNumeric(orderAmount)
	if err != nil {
		return false, err
	}
	commissionN, err := toNumeric(commissionAmount)
	if err != nil {
		return false, err
	}

	tag, err := r.executor(tx).Exec(ctx,
		`UPDATE commission_records
		 SET order_amount = $1, commission_amount = $2, updated_at = now()
		 WHERE id = $3 AND status = 'pending'`,
		orderN, commissionN, id)
	if err != nil {
		return false, fmt.Errorf("adjust commission amounts: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListDuePending returns due pending records whose owning agent is
// active, oldest created first (FIFO).
func (r *CommissionRepository) ListDuePending(ctx context.Context, db ports.DBTX, asOf time.Time) ([]*models.CommissionRecord, error) {
	rows, err := r.executor(db).Query(ctx,
		`SELECT c.id, c.agent_id, c.order_id, c.referred_user_id, c.order_amount, c.commission_rate,
		        c.commission_amount, c.status, c.settle_date, c.settled_at, c.fail_reason, c.created_at, c.updated_at
		 FROM commission_records c
		 JOIN agents a ON c.agent_id = a.id
		 WHERE c.status = 'pending'
		   AND c.settle_date <= $1
		   AND a.status = 'active'
		 ORDER BY c.created_at ASC`,
		asOf)
	if err != nil {
		return nil, fmt.Errorf("list due pending commissions: %w", err)
	}
	defer rows.Close()
	return collectCommissions(rows)
}

// FrequencyStats returns per-agent record counts over the trailing
// window, filtered to agents strictly above minCount.
func (r *CommissionRepository) FrequencyStats(ctx context.Context, db ports.DBTX, since time.Time, minCount int) ([]ports.AgentActivityStat, error) {
	rows, err := r.executor(db).Query(ctx,
		`SELECT agent_id, COUNT(*), COALESCE(SUM(commission_amount), 0)
		 FROM commission_records
		 WHERE created_at > $1
		 GROUP BY agent_id
		 HAVING COUNT(*) > $2`,
		since, minCount)
	if err != nil {
		return nil, fmt.Errorf("frequency stats: %w", err)
	}
	defer rows.Close()
	return collectActivityStats(rows)
}

// DailyAmountStats returns per-agent sums of pending and settled
// commission amounts for today, filtered to agents strictly above
// threshold.
func (r *CommissionRepository) DailyAmountStats(ctx context.Context, db ports.DBTX, dayStart time.Time, threshold decimal.Decimal) ([]ports.AgentActivityStat, error) {
	thresholdN, err := toNumeric(threshold)
	if err != nil {
		return nil, err
	}

	rows, err := r.executor(db).Query(ctx,
		`SELECT agent_id, COUNT(*), SUM(commission_amount)
		 FROM commission_records
		 WHERE created_at >= $1
		   AND status IN ('pending', 'settled')
		 GROUP BY agent_id
		 HAVING SUM(commission_amount) > $2`,
		dayStart, thresholdN)
	if err != nil {
		return nil, fmt.Errorf("daily amount stats: %w", err)
	}
	defer rows.Close()
	return collectActivityStats(rows)
}

// SumEarnings recomputes the agent's earnings cache source values
func (r *CommissionRepository) SumEarnings(ctx context.Context, db ports.DBTX, agentID int64) (decimal.Decimal, decimal.Decimal, error) {
	var settledN, pendingN pgtype.Numeric
	err := r.executor(db).QueryRow(ctx,
		`SELECT
		   COALESCE(SUM(commission_amount) FILTER (WHERE status = 'settled'), 0),
		   COALESCE(SUM(commission_amount) FILTER (WHERE status = 'pending'), 0)
		 FROM commission_records
		 WHERE agent_id = $1`,
		agentID).Scan(&settledN, &pendingN)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("sum earnings: %w", err)
	}

	settled, err := fromNumeric(settledN)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	pending, err := fromNumeric(pendingN)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return settled, pending, nil
}

func collectCommissions(rows pgx.Rows) ([]*models.CommissionRecord, error) {
	var recs []*models.CommissionRecord
	for rows.Next() {
		rec, err := scanCommission(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func collectActivityStats(rows pgx.Rows) ([]ports.AgentActivityStat, error) {
	var stats []ports.AgentActivityStat
	for rows.Next() {
		var (
			stat   ports.AgentActivityStat
			amount pgtype.Numeric
		)
		if err := rows.Scan(&stat.AgentID, &stat.RecordCount, &amount); err != nil {
			return nil, fmt.Errorf("scan activity stat: %w", err)
		}
		total, err := fromNumeric(amount)
		if err != nil {
			return nil, err
		}
		stat.TotalAmount = total
		stats = append(stats, stat)
	}
	return stats, rows.Err()
}

func scanCommission(row pgx.Row) (*models.CommissionRecord, error) {
	var (
		rec                           models.CommissionRecord
		status                        string
		failReason                    pgtype.Text
		settledAt                     pgtype.Timestamptz
		orderAmount, rate, commission pgtype.Numeric
	)

	err := row.Scan(&rec.ID, &rec.AgentID, &rec.OrderID, &rec.ReferredUserID,
		&orderAmount, &rate, &commission, &status, &rec.SettleDate, &settledAt, &failReason,
		&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrCommissionNotFound
		}
		return nil, fmt.Errorf("scan commission: %w", err)
	}

	rec.Status = models.CommissionStatus(status)
	rec.FailReason = textValue(failReason)
	rec.SettledAt = timePtr(settledAt)
	if rec.OrderAmount, err = fromNumeric(orderAmount); err != nil {
		return nil, err
	}
	if rec.CommissionRate, err = fromNumeric(rate); err != nil {
		return nil, err
	}
	if rec.CommissionAmount, err = fromNumeric(commission); err != nil {
		return nil, err
	}
	return &rec, nil
}
