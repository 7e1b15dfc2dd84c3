// Package mocks provides shared mock implementations for testing.
package mocks

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MockDBPort satisfies ports.DBPort. WithTransaction runs the callback
// with a nil transaction so repository mocks see tx == nil.
type MockDBPort struct{}

func (m *MockDBPort) GetDB() *pgxpool.Pool {
	return nil
}

func (m *MockDBPort) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	return fn(ctx, nil)
}
