package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/kevin07696/commission-service/internal/domain"
	"github.com/kevin07696/commission-service/internal/domain/models"
	"github.com/kevin07696/commission-service/internal/domain/ports"
)

// AttemptRepository implements ports.AttemptRepository on pgx
type AttemptRepository struct {
	db ports.DBPort
}

// NewAttemptRepository creates a new settlement attempt repository
func NewAttemptRepository(db ports.DBPort) *AttemptRepository {
	return &AttemptRepository{db: db}
}

func (r *AttemptRepository) executor(tx ports.DBTX) ports.DBTX {
	if tx != nil {
		return tx
	}
	return r.db.GetDB()
}

const attemptColumns = `id, commission_id, transaction_id, out_order_no, provider_order_id,
	amount_minor_units, status, fail_reason, request_time, finish_time, retry_count`

// Create inserts a new settlement attempt
func (r *AttemptRepository) Create(ctx context.Context, tx ports.DBTX, attempt *models.SettlementAttempt) error {
	row := r.executor(tx).QueryRow(ctx,
		`INSERT INTO settlement_attempts
		   (commission_id, transaction_id, out_order_no, amount_minor_units, status, request_time)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		attempt.CommissionID, attempt.TransactionID, attempt.OutOrderNo,
		attempt.AmountMinorUnits, string(attempt.Status), attempt.RequestTime)

	if err := row.Scan(&attempt.ID); err != nil {
		if isUniqueViolation(err) {
			return domain.WrapError(domain.ErrorCodeConcurrencyConflict, "attempt already exists for out order no", err).
				WithDetail("out_order_no", attempt.OutOrderNo)
		}
		return fmt.Errorf("create settlement attempt: %w", err)
	}
	return nil
}

// GetByOutOrderNo retrieves an attempt by its merchant-side order number
func (r *AttemptRepository) GetByOutOrderNo(ctx context.Context, db ports.DBTX, outOrderNo string) (*models.SettlementAttempt, error) {
	row := r.executor(db).QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM settlement_attempts WHERE out_order_no = $1`, outOrderNo)
	return scanAttempt(row)
}

// ListProcessing returns attempts awaiting a terminal provider state,
// oldest request first.
func (r *AttemptRepository) ListProcessing(ctx context.Context, db ports.DBTX) ([]*models.SettlementAttempt, error) {
	rows, err := r.executor(db).Query(ctx,
		`SELECT `+attemptColumns+`
		 FROM settlement_attempts
		 WHERE status = 'processing'
		 ORDER BY request_time ASC`)
	if err != nil {
		return nil, fmt.Errorf("list processing attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*models.SettlementAttempt
	for rows.Next() {
		attempt, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, attempt)
	}
	return attempts, rows.Err()
}

// UpdateStatus transitions the attempt conditional on the expected
// prior status. Zero rows affected returns false.
func (r *AttemptRepository) UpdateStatus(ctx context.Context, tx ports.DBTX, id int64, from, to models.AttemptStatus, providerOrderID, failReason string, finishTime *time.Time) (bool, error) {
	tag, err := r.executor(tx).Exec(ctx,
		`UPDATE settlement_attempts
		 SET status = $1,
		     provider_order_id = COALESCE($2, provider_order_id),
		     fail_reason = COALESCE($3, fail_reason),
		     finish_time = COALESCE($4, finish_time)
		 WHERE id = $5 AND status = $6`,
		string(to), nullText(providerOrderID), nullText(failReason), nullTimestamptz(finishTime),
		id, string(from))
	if err != nil {
		return false, fmt.Errorf("update attempt status: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// IncrementRetry bumps the poll counter for a processing attempt
func (r *AttemptRepository) IncrementRetry(ctx context.Context, tx ports.DBTX, id int64) error {
	_, err := r.executor(tx).Exec(ctx,
		`UPDATE settlement_attempts SET retry_count = retry_count + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("increment attempt retry: %w", err)
	}
	return nil
}

// SumActiveAmountSince returns the minor-unit sum of processing and
// success attempts requested at or after since
func (r *AttemptRepository) SumActiveAmountSince(ctx context.Context, db ports.DBTX, since time.Time) (int64, error) {
	var sum int64
	err := r.executor(db).QueryRow(ctx,
		`SELECT COALESCE(SUM(amount_minor_units), 0)
		 FROM settlement_attempts
		 WHERE status IN ('processing', 'success')
		   AND request_time >= $1`,
		since).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum active attempt amount: %w", err)
	}
	return sum, nil
}

func scanAttempt(row pgx.Row) (*models.SettlementAttempt, error) {
	var (
		attempt                     models.SettlementAttempt
		status                      string
		providerOrderID, failReason pgtype.Text
		finishTime                  pgtype.Timestamptz
	)

	err := row.Scan(&attempt.ID, &attempt.CommissionID, &attempt.TransactionID, &attempt.OutOrderNo,
		&providerOrderID, &attempt.AmountMinorUnits, &status, &failReason,
		&attempt.RequestTime, &finishTime, &attempt.RetryCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrorCodeCommissionNotFound, "settlement attempt not found", err)
		}
		return nil, fmt.Errorf("scan settlement attempt: %w", err)
	}

	attempt.Status = models.AttemptStatus(status)
	attempt.ProviderOrderID = textValue(providerOrderID)
	attempt.FailReason = textValue(failReason)
	attempt.FinishTime = timePtr(finishTime)
	return &attempt, nil
}
