package mocks

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/kevin07696/commission-service/internal/domain/models"
	svcports "github.com/kevin07696/commission-service/internal/services/ports"
)

// MockLedgerService mocks svcports.LedgerService
type MockLedgerService struct {
	mock.Mock
}

func (m *MockLedgerService) CreateCommission(ctx context.Context, req svcports.CreateCommissionRequest) (*models.CommissionRecord, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CommissionRecord), args.Error(1)
}

func (m *MockLedgerService) UpdateStatus(ctx context.Context, id string, newStatus models.CommissionStatus, reason string) error {
	args := m.Called(ctx, id, newStatus, reason)
	return args.Error(0)
}

func (m *MockLedgerService) HandleRefund(ctx context.Context, req svcports.RefundRequest) (*svcports.RefundOutcome, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*svcports.RefundOutcome), args.Error(1)
}

func (m *MockLedgerService) GetPendingCommissions(ctx context.Context, asOf time.Time) ([]*models.CommissionRecord, error) {
	args := m.Called(ctx, asOf)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.CommissionRecord), args.Error(1)
}

func (m *MockLedgerService) GetCommissionByOrderID(ctx context.Context, orderID int64) (*models.CommissionRecord, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CommissionRecord), args.Error(1)
}

func (m *MockLedgerService) RefreshAgentEarnings(ctx context.Context, agentID int64) error {
	args := m.Called(ctx, agentID)
	return args.Error(0)
}

// MockReconcilerService mocks svcports.ReconcilerService
type MockReconcilerService struct {
	mock.Mock
}

func (m *MockReconcilerService) RegisterPayoutReceiver(ctx context.Context, identity, name string) error {
	args := m.Called(ctx, identity, name)
	return args.Error(0)
}

func (m *MockReconcilerService) RemovePayoutReceiver(ctx context.Context, identity string) error {
	args := m.Called(ctx, identity)
	return args.Error(0)
}

func (m *MockReconcilerService) RequestSplit(ctx context.Context, req svcports.SplitSettlementRequest) (*models.SettlementAttempt, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SettlementAttempt), args.Error(1)
}

func (m *MockReconcilerService) QueryStatus(ctx context.Context, outOrderNo, transactionID string) (*svcports.SplitProbe, error) {
	args := m.Called(ctx, outOrderNo, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*svcports.SplitProbe), args.Error(1)
}

func (m *MockReconcilerService) CheckLimits(ctx context.Context, amountMinorUnits int64, orderAmount decimal.Decimal) (*svcports.LimitDecision, error) {
	args := m.Called(ctx, amountMinorUnits, orderAmount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*svcports.LimitDecision), args.Error(1)
}

func (m *MockReconcilerService) ReconcilePending(ctx context.Context) (*svcports.ReconcileResult, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*svcports.ReconcileResult), args.Error(1)
}

// MockRegistryService mocks svcports.RegistryService
type MockRegistryService struct {
	mock.Mock
}

func (m *MockRegistryService) Enroll(ctx context.Context, ownerUserID int64) (*models.Agent, error) {
	args := m.Called(ctx, ownerUserID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Agent), args.Error(1)
}

func (m *MockRegistryService) UpdateCommissionRate(ctx context.Context, agentID int64, rate decimal.Decimal, operatorID int64) error {
	args := m.Called(ctx, agentID, rate, operatorID)
	return args.Error(0)
}

func (m *MockRegistryService) Suspend(ctx context.Context, agentID, operatorID int64) error {
	args := m.Called(ctx, agentID, operatorID)
	return args.Error(0)
}

func (m *MockRegistryService) Resume(ctx context.Context, agentID, operatorID int64) error {
	args := m.Called(ctx, agentID, operatorID)
	return args.Error(0)
}

func (m *MockRegistryService) BindPayout(ctx context.Context, agentID int64, payoutIdentity, displayName string) error {
	args := m.Called(ctx, agentID, payoutIdentity, displayName)
	return args.Error(0)
}

func (m *MockRegistryService) UnbindPayout(ctx context.Context, agentID int64) error {
	args := m.Called(ctx, agentID)
	return args.Error(0)
}

func (m *MockRegistryService) GetAgent(ctx context.Context, agentID int64) (*models.Agent, error) {
	args := m.Called(ctx, agentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Agent), args.Error(1)
}

func (m *MockRegistryService) GetAgentStats(ctx context.Context, agentID int64) (*svcports.AgentStats, error) {
	args := m.Called(ctx, agentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*svcports.AgentStats), args.Error(1)
}

func (m *MockRegistryService) SuspendAnomalous(ctx context.Context) (*svcports.AnomalySweepResult, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*svcports.AnomalySweepResult), args.Error(1)
}

// MockSettlementDriver mocks svcports.SettlementDriver
type MockSettlementDriver struct {
	mock.Mock
}

func (m *MockSettlementDriver) RunDailySettlement(ctx context.Context, asOf time.Time) (*svcports.SettlementRunResult, error) {
	args := m.Called(ctx, asOf)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*svcports.SettlementRunResult), args.Error(1)
}

func (m *MockSettlementDriver) RunHourlyReconcile(ctx context.Context) (*svcports.ReconcileResult, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*svcports.ReconcileResult), args.Error(1)
}

func (m *MockSettlementDriver) RunAnomalySweep(ctx context.Context) (*svcports.AnomalySweepResult, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*svcports.AnomalySweepResult), args.Error(1)
}
