package mocks

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/kevin07696/commission-service/internal/domain/models"
	"github.com/kevin07696/commission-service/internal/domain/ports"
)

// MockAgentRepository mocks ports.AgentRepository
type MockAgentRepository struct {
	mock.Mock
}

func (m *MockAgentRepository) Create(ctx context.Context, tx ports.DBTX, agent *models.Agent) error {
	args := m.Called(ctx, tx, agent)
	return args.Error(0)
}

func (m *MockAgentRepository) GetByID(ctx context.Context, db ports.DBTX, id int64) (*models.Agent, error) {
	args := m.Called(ctx, db, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Agent), args.Error(1)
}

func (m *MockAgentRepository) GetByOwnerUserID(ctx context.Context, db ports.DBTX, ownerUserID int64) (*models.Agent, error) {
	args := m.Called(ctx, db, ownerUserID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Agent), args.Error(1)
}

func (m *MockAgentRepository) UpdateStatus(ctx context.Context, tx ports.DBTX, id int64, from, to models.AgentStatus) (bool, error) {
	args := m.Called(ctx, tx, id, from, to)
	return args.Bool(0), args.Error(1)
}

func (m *MockAgentRepository) UpdateRate(ctx context.Context, tx ports.DBTX, id int64, rate decimal.Decimal) error {
	args := m.Called(ctx, tx, id, rate)
	return args.Error(0)
}

func (m *MockAgentRepository) UpdatePayout(ctx context.Context, tx ports.DBTX, id int64, payoutIdentity string, linked bool) error {
	args := m.Called(ctx, tx, id, payoutIdentity, linked)
	return args.Error(0)
}

func (m *MockAgentRepository) UpdateEarnings(ctx context.Context, tx ports.DBTX, id int64, total, settled, pending decimal.Decimal) error {
	args := m.Called(ctx, tx, id, total, settled, pending)
	return args.Error(0)
}

func (m *MockAgentRepository) ListConversionOutliers(ctx context.Context, db ports.DBTX, minInvited, minPaid int, maxRatio float64) ([]*models.Agent, error) {
	args := m.Called(ctx, db, minInvited, minPaid, maxRatio)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Agent), args.Error(1)
}

// MockCommissionRepository mocks ports.CommissionRepository
type MockCommissionRepository struct {
	mock.Mock
}

func (m *MockCommissionRepository) Create(ctx context.Context, tx ports.DBTX, rec *models.CommissionRecord) error {
	args := m.Called(ctx, tx, rec)
	return args.Error(0)
}

func (m *MockCommissionRepository) GetByID(ctx context.Context, db ports.DBTX, id string) (*models.CommissionRecord, error) {
	args := m.Called(ctx, db, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CommissionRecord), args.Error(1)
}

func (m *MockCommissionRepository) GetByOrderID(ctx context.Context, db ports.DBTX, orderID int64) (*models.CommissionRecord, error) {
	args := m.Called(ctx, db, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CommissionRecord), args.Error(1)
}

func (m *MockCommissionRepository) UpdateStatus(ctx context.Context, tx ports.DBTX, id string, from, to models.CommissionStatus, failReason string, settledAt *time.Time) (bool, error) {
	args := m.Called(ctx, tx, id, from, to, failReason, settledAt)
	return args.Bool(0), args.Error(1)
}

func (m *MockCommissionRepository) AdjustAmounts(ctx context.Context, tx ports.DBTX, id string, orderAmount, commissionAmount decimal.Decimal) (bool, error) {
	args := m.Called(ctx, tx, id, orderAmount, commissionAmount)
	return args.Bool(0), args.Error(1)
}

func (m *MockCommissionRepository) ListDuePending(ctx context.Context, db ports.DBTX, asOf time.Time) ([]*models.CommissionRecord, error) {
	args := m.Called(ctx, db, asOf)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.CommissionRecord), args.Error(1)
}

func (m *MockCommissionRepository) FrequencyStats(ctx context.Context, db ports.DBTX, since time.Time, minCount int) ([]ports.AgentActivityStat, error) {
	args := m.Called(ctx, db, since, minCount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ports.AgentActivityStat), args.Error(1)
}

func (m *MockCommissionRepository) DailyAmountStats(ctx context.Context, db ports.DBTX, dayStart time.Time, threshold decimal.Decimal) ([]ports.AgentActivityStat, error) {
	args := m.Called(ctx, db, dayStart, threshold)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ports.AgentActivityStat), args.Error(1)
}

func (m *MockCommissionRepository) SumEarnings(ctx context.Context, db ports.DBTX, agentID int64) (decimal.Decimal, decimal.Decimal, error) {
	args := m.Called(ctx, db, agentID)
	return args.Get(0).(decimal.Decimal), args.Get(1).(decimal.Decimal), args.Error(2)
}

// MockAttemptRepository mocks ports.AttemptRepository
type MockAttemptRepository struct {
	mock.Mock
}

func (m *MockAttemptRepository) Create(ctx context.Context, tx ports.DBTX, attempt *models.SettlementAttempt) error {
	args := m.Called(ctx, tx, attempt)
	return args.Error(0)
}

func (m *MockAttemptRepository) GetByOutOrderNo(ctx context.Context, db ports.DBTX, outOrderNo string) (*models.SettlementAttempt, error) {
	args := m.Called(ctx, db, outOrderNo)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SettlementAttempt), args.Error(1)
}

func (m *MockAttemptRepository) ListProcessing(ctx context.Context, db ports.DBTX) ([]*models.SettlementAttempt, error) {
	args := m.Called(ctx, db)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.SettlementAttempt), args.Error(1)
}

func (m *MockAttemptRepository) UpdateStatus(ctx context.Context, tx ports.DBTX, id int64, from, to models.AttemptStatus, providerOrderID, failReason string, finishTime *time.Time) (bool, error) {
	args := m.Called(ctx, tx, id, from, to, providerOrderID, failReason, finishTime)
	return args.Bool(0), args.Error(1)
}

func (m *MockAttemptRepository) IncrementRetry(ctx context.Context, tx ports.DBTX, id int64) error {
	args := m.Called(ctx, tx, id)
	return args.Error(0)
}

func (m *MockAttemptRepository) SumActiveAmountSince(ctx context.Context, db ports.DBTX, since time.Time) (int64, error) {
	args := m.Called(ctx, db, since)
	return args.Get(0).(int64), args.Error(1)
}

// MockAuditLogRepository mocks ports.AuditLogRepository
type MockAuditLogRepository struct {
	mock.Mock
}

func (m *MockAuditLogRepository) Append(ctx context.Context, tx ports.DBTX, entry *models.AuditLogEntry) error {
	args := m.Called(ctx, tx, entry)
	return args.Error(0)
}

func (m *MockAuditLogRepository) ListByAgent(ctx context.Context, db ports.DBTX, agentID int64, limit int) ([]*models.AuditLogEntry, error) {
	args := m.Called(ctx, db, agentID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.AuditLogEntry), args.Error(1)
}

// MockOrderReader mocks ports.OrderReader
type MockOrderReader struct {
	mock.Mock
}

func (m *MockOrderReader) PaymentTransactionID(ctx context.Context, orderID int64) (string, error) {
	args := m.Called(ctx, orderID)
	return args.String(0), args.Error(1)
}
