package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/kevin07696/commission-service/internal/domain/ports"
)

// MockSplitGateway mocks ports.SplitPaymentGateway
type MockSplitGateway struct {
	mock.Mock
}

func (m *MockSplitGateway) AddReceiver(ctx context.Context, identity, name string) error {
	args := m.Called(ctx, identity, name)
	return args.Error(0)
}

func (m *MockSplitGateway) RemoveReceiver(ctx context.Context, identity string) error {
	args := m.Called(ctx, identity)
	return args.Error(0)
}

func (m *MockSplitGateway) RequestSplit(ctx context.Context, req ports.SplitRequest) (*ports.SplitResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ports.SplitResult), args.Error(1)
}

func (m *MockSplitGateway) QuerySplit(ctx context.Context, outOrderNo, transactionID string) (*ports.SplitStatus, error) {
	args := m.Called(ctx, outOrderNo, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ports.SplitStatus), args.Error(1)
}
