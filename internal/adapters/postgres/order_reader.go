package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/kevin07696/commission-service/internal/domain/ports"
)

// OrderReader implements ports.OrderReader against the order
// subsystem's table. This engine only ever reads one column from it.
type OrderReader struct {
	db ports.DBPort
}

// NewOrderReader creates a new order reader
func NewOrderReader(db ports.DBPort) *OrderReader {
	return &OrderReader{db: db}
}

// PaymentTransactionID returns the provider transaction id of a paid
// order, or an empty string when the order has none (or does not
// exist).
func (r *OrderReader) PaymentTransactionID(ctx context.Context, orderID int64) (string, error) {
	var txnID pgtype.Text
	err := r.db.GetDB().QueryRow(ctx,
		`SELECT payment_transaction_id FROM orders WHERE id = $1`, orderID).Scan(&txnID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("lookup order transaction id: %w", err)
	}
	return textValue(txnID), nil
}
