package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/kevin07696/commission-service/internal/domain"
	"github.com/kevin07696/commission-service/internal/domain/models"
	"github.com/kevin07696/commission-service/internal/services/ledger"
	svcports "github.com/kevin07696/commission-service/internal/services/ports"
	"github.com/kevin07696/commission-service/internal/testutil/mocks"
)

func newTestService(agentRepo *mocks.MockAgentRepository, commissionRepo *mocks.MockCommissionRepository) *ledger.Service {
	return ledger.NewService(&mocks.MockDBPort{}, agentRepo, commissionRepo, time.UTC, mocks.NewMockLogger())
}

func notFound(code domain.ErrorCode) *domain.DomainError {
	return domain.NewDomainError(code, "not found")
}

// expectEarningsRefresh wires the calls the best-effort earnings cache
// refresh makes after every successful write.
func expectEarningsRefresh(agentRepo *mocks.MockAgentRepository, commissionRepo *mocks.MockCommissionRepository, agentID int64) {
	commissionRepo.On("SumEarnings", mock.Anything, mock.Anything, agentID).
		Return(decimal.Zero, decimal.Zero, nil).Maybe()
	agentRepo.On("UpdateEarnings", mock.Anything, mock.Anything, agentID,
		mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
}

// Test CalculateCommission - rounding is half away from zero at 2dp
func TestCalculateCommission_Rounding(t *testing.T) {
	tests := []struct {
		name        string
		orderAmount string
		rate        string
		expected    string
	}{
		{"exact", "100.00", "0.30", "30"},
		{"round half up", "33.35", "0.30", "10.01"}, // 10.005
		{"round down", "33.34", "0.30", "10"},       // 10.002
		{"tiny order", "0.01", "0.30", "0"},         // 0.003
		{"one cent result", "0.05", "0.30", "0.02"}, // 0.015
		{"zero rate", "100.00", "0", "0"},
		{"zero amount", "0", "0.30", "0"},
		{"large order", "999999.99", "0.25", "250000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ledger.CalculateCommission(
				decimal.RequireFromString(tt.orderAmount),
				decimal.RequireFromString(tt.rate))
			assert.True(t, got.Equal(decimal.RequireFromString(tt.expected)),
				"got %s, want %s", got, tt.expected)
		})
	}
}

// Test CreateCommission - books a pending record with a T+1 settle date
func TestService_CreateCommission_Success(t *testing.T) {
	agentRepo := new(mocks.MockAgentRepository)
	commissionRepo := new(mocks.MockCommissionRepository)
	service := newTestService(agentRepo, commissionRepo)

	ctx := context.Background()
	agent := &models.Agent{
		ID:             7,
		Status:         models.AgentActive,
		CommissionRate: decimal.RequireFromString("0.30"),
	}

	commissionRepo.On("GetByOrderID", ctx, mock.Anything, int64(1001)).
		Return(nil, notFound(domain.ErrorCodeCommissionNotFound)).Once()
	agentRepo.On("GetByID", ctx, mock.Anything, int64(7)).Return(agent, nil)
	commissionRepo.On("Create", ctx, mock.Anything, mock.AnythingOfType("*models.CommissionRecord")).
		Return(nil)
	expectEarningsRefresh(agentRepo, commissionRepo, 7)

	rec, err := service.CreateCommission(ctx, svcports.CreateCommissionRequest{
		OrderID:        1001,
		AgentID:        7,
		ReferredUserID: 42,
		OrderAmount:    decimal.RequireFromString("250.00"),
	})

	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, models.CommissionPending, rec.Status)
	assert.True(t, rec.CommissionAmount.Equal(decimal.RequireFromString("75.00")),
		"got %s", rec.CommissionAmount)
	assert.True(t, rec.CommissionRate.Equal(agent.CommissionRate))

	// T+1: local midnight of the next calendar day
	tomorrow := time.Now().UTC().AddDate(0, 0, 1)
	assert.Equal(t, tomorrow.Year(), rec.SettleDate.Year())
	assert.Equal(t, tomorrow.YearDay(), rec.SettleDate.YearDay())
	assert.Equal(t, 0, rec.SettleDate.Hour())

	commissionRepo.AssertExpectations(t)
}

// Test CreateCommission - redelivered paid order returns existing record
func TestService_CreateCommission_DuplicateOrderReturnsExisting(t *testing.T) {
	agentRepo := new(mocks.MockAgentRepository)
	commissionRepo := new(mocks.MockCommissionRepository)
	service := newTestService(agentRepo, commissionRepo)

	ctx := context.Background()
	existing := &models.CommissionRecord{
		ID:      "existing-id",
		AgentID: 7,
		OrderID: 1001,
		Status:  models.CommissionPending,
	}

	commissionRepo.On("GetByOrderID", ctx, mock.Anything, int64(1001)).
		Return(existing, nil)

	rec, err := service.CreateCommission(ctx, svcports.CreateCommissionRequest{
		OrderID:     1001,
		AgentID:     7,
		OrderAmount: decimal.RequireFromString("250.00"),
	})

	require.NoError(t, err)
	assert.Equal(t, existing.ID, rec.ID)
	commissionRepo.AssertNotCalled(t, "Create")
	agentRepo.AssertNotCalled(t, "GetByID")
}

// Test CreateCommission - suspended agents accrue nothing
func TestService_CreateCommission_SuspendedAgent(t *testing.T) {
	agentRepo := new(mocks.MockAgentRepository)
	commissionRepo := new(mocks.MockCommissionRepository)
	service := newTestService(agentRepo, commissionRepo)

	ctx := context.Background()
	commissionRepo.On("GetByOrderID", ctx, mock.Anything, int64(1001)).
		Return(nil, notFound(domain.ErrorCodeCommissionNotFound))
	agentRepo.On("GetByID", ctx, mock.Anything, int64(7)).
		Return(&models.Agent{ID: 7, Status: models.AgentSuspended}, nil)

	_, err := service.CreateCommission(ctx, svcports.CreateCommissionRequest{
		OrderID:     1001,
		AgentID:     7,
		OrderAmount: decimal.RequireFromString("250.00"),
	})

	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeAgentSuspended))
	commissionRepo.AssertNotCalled(t, "Create")
}

// Test CreateCommission - negative amounts are rejected before any IO
func TestService_CreateCommission_NegativeAmount(t *testing.T) {
	agentRepo := new(mocks.MockAgentRepository)
	commissionRepo := new(mocks.MockCommissionRepository)
	service := newTestService(agentRepo, commissionRepo)

	_, err := service.CreateCommission(context.Background(), svcports.CreateCommissionRequest{
		OrderID:     1001,
		AgentID:     7,
		OrderAmount: decimal.RequireFromString("-1.00"),
	})

	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeValidationAmount))
	commissionRepo.AssertNotCalled(t, "GetByOrderID")
}

// Test CreateCommission - losing the insert race re-fetches the winner
func TestService_CreateCommission_InsertRaceReturnsWinner(t *testing.T) {
	agentRepo := new(mocks.MockAgentRepository)
	commissionRepo := new(mocks.MockCommissionRepository)
	service := newTestService(agentRepo, commissionRepo)

	ctx := context.Background()
	winner := &models.CommissionRecord{ID: "winner-id", AgentID: 7, OrderID: 1001}

	commissionRepo.On("GetByOrderID", ctx, mock.Anything, int64(1001)).
		Return(nil, notFound(domain.ErrorCodeCommissionNotFound)).Once()
	agentRepo.On("GetByID", ctx, mock.Anything, int64(7)).
		Return(&models.Agent{ID: 7, Status: models.AgentActive, CommissionRate: decimal.RequireFromString("0.30")}, nil)
	commissionRepo.On("Create", ctx, mock.Anything, mock.Anything).
		Return(domain.WrapError(domain.ErrorCodeCommissionExists, "duplicate order", assert.AnError))
	commissionRepo.On("GetByOrderID", ctx, mock.Anything, int64(1001)).
		Return(winner, nil).Once()

	rec, err := service.CreateCommission(ctx, svcports.CreateCommissionRequest{
		OrderID:     1001,
		AgentID:     7,
		OrderAmount: decimal.RequireFromString("250.00"),
	})

	require.NoError(t, err)
	assert.Equal(t, "winner-id", rec.ID)
}

// Test UpdateStatus - illegal transitions are rejected
func TestService_UpdateStatus_IllegalTransition(t *testing.T) {
	agentRepo := new(mocks.MockAgentRepository)
	commissionRepo := new(mocks.MockCommissionRepository)
	service := newTestService(agentRepo, commissionRepo)

	ctx := context.Background()
	commissionRepo.On("GetByID", ctx, mock.Anything, "rec-1").
		Return(&models.CommissionRecord{ID: "rec-1", Status: models.CommissionCancelled}, nil)

	err := service.UpdateStatus(ctx, "rec-1", models.CommissionSettled, "")

	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeInvalidStateTransition))
	commissionRepo.AssertNotCalled(t, "UpdateStatus")
}

// Test UpdateStatus - a lost compare-and-set race is a silent no-op
func TestService_UpdateStatus_RaceLostIsNoOp(t *testing.T) {
	agentRepo := new(mocks.MockAgentRepository)
	commissionRepo := new(mocks.MockCommissionRepository)
	service := newTestService(agentRepo, commissionRepo)

	ctx := context.Background()
	commissionRepo.On("GetByID", ctx, mock.Anything, "rec-1").
		Return(&models.CommissionRecord{ID: "rec-1", AgentID: 7, Status: models.CommissionPending}, nil)
	commissionRepo.On("UpdateStatus", ctx, mock.Anything, "rec-1",
		models.CommissionPending, models.CommissionCancelled, "refund", (*time.Time)(nil)).
		Return(false, nil)

	err := service.UpdateStatus(ctx, "rec-1", models.CommissionCancelled, "refund")

	require.NoError(t, err)
	agentRepo.AssertNotCalled(t, "UpdateEarnings")
}

// Test UpdateStatus - moving to settled stamps settled_at
func TestService_UpdateStatus_SettledStampsTime(t *testing.T) {
	agentRepo := new(mocks.MockAgentRepository)
	commissionRepo := new(mocks.MockCommissionRepository)
	service := newTestService(agentRepo, commissionRepo)

	ctx := context.Background()
	commissionRepo.On("GetByID", ctx, mock.Anything, "rec-1").
		Return(&models.CommissionRecord{ID: "rec-1", AgentID: 7, Status: models.CommissionPending}, nil)
	commissionRepo.On("UpdateStatus", ctx, mock.Anything, "rec-1",
		models.CommissionPending, models.CommissionSettled, "",
		mock.MatchedBy(func(ts *time.Time) bool { return ts != nil })).
		Return(true, nil)
	expectEarningsRefresh(agentRepo, commissionRepo, 7)

	err := service.UpdateStatus(ctx, "rec-1", models.CommissionSettled, "")

	require.NoError(t, err)
	commissionRepo.AssertExpectations(t)
}

// Test HandleRefund - order without a commission is a no-op
func TestService_HandleRefund_NoCommission(t *testing.T) {
	agentRepo := new(mocks.MockAgentRepository)
	commissionRepo := new(mocks.MockCommissionRepository)
	service := newTestService(agentRepo, commissionRepo)

	ctx := context.Background()
	commissionRepo.On("GetByOrderID", ctx, mock.Anything, int64(1001)).
		Return(nil, notFound(domain.ErrorCodeCommissionNotFound))

	outcome, err := service.HandleRefund(ctx, svcports.RefundRequest{
		OrderID:      1001,
		RefundAmount: decimal.RequireFromString("10.00"),
		FullRefund:   true,
	})

	require.NoError(t, err)
	assert.Equal(t, svcports.RefundNoOp, outcome.Action)
}

// Test HandleRefund - full refund cancels a pending commission
func TestService_HandleRefund_FullRefundCancelsPending(t *testing.T) {
	agentRepo := new(mocks.MockAgentRepository)
	commissionRepo := new(mocks.MockCommissionRepository)
	service := newTestService(agentRepo, commissionRepo)

	ctx := context.Background()
	rec := &models.CommissionRecord{ID: "rec-1", AgentID: 7, OrderID: 1001, Status: models.CommissionPending}

	commissionRepo.On("GetByOrderID", ctx, mock.Anything, int64(1001)).Return(rec, nil)
	commissionRepo.On("UpdateStatus", ctx, mock.Anything, "rec-1",
		models.CommissionPending, models.CommissionCancelled, "order fully refunded", (*time.Time)(nil)).
		Return(true, nil)
	expectEarningsRefresh(agentRepo, commissionRepo, 7)

	outcome, err := service.HandleRefund(ctx, svcports.RefundRequest{
		OrderID:      1001,
		RefundAmount: decimal.RequireFromString("250.00"),
		FullRefund:   true,
	})

	require.NoError(t, err)
	assert.Equal(t, svcports.RefundCancelled, outcome.Action)
	commissionRepo.AssertExpectations(t)
}

// Test HandleRefund - partial refund shrinks a pending commission
func TestService_HandleRefund_PartialRefundAdjustsPending(t *testing.T) {
	agentRepo := new(mocks.MockAgentRepository)
	commissionRepo := new(mocks.MockCommissionRepository)
	service := newTestService(agentRepo, commissionRepo)

	ctx := context.Background()
	rec := &models.CommissionRecord{
		ID:             "rec-1",
		AgentID:        7,
		OrderID:        1001,
		OrderAmount:    decimal.RequireFromString("250.00"),
		CommissionRate: decimal.RequireFromString("0.30"),
		Status:         models.CommissionPending,
	}

	commissionRepo.On("GetByOrderID", ctx, mock.Anything, int64(1001)).Return(rec, nil)
	commissionRepo.On("AdjustAmounts", ctx, mock.Anything, "rec-1",
		mock.MatchedBy(func(amount decimal.Decimal) bool {
			return amount.Equal(decimal.RequireFromString("150.00"))
		}),
		mock.MatchedBy(func(amount decimal.Decimal) bool {
			return amount.Equal(decimal.RequireFromString("45.00"))
		})).
		Return(true, nil)
	expectEarningsRefresh(agentRepo, commissionRepo, 7)

	outcome, err := service.HandleRefund(ctx, svcports.RefundRequest{
		OrderID:      1001,
		RefundAmount: decimal.RequireFromString("100.00"),
	})

	require.NoError(t, err)
	assert.Equal(t, svcports.RefundAdjusted, outcome.Action)
	assert.True(t, outcome.Commission.CommissionAmount.Equal(decimal.RequireFromString("45.00")))
}

// Test HandleRefund - over-refund floors the order amount at zero
func TestService_HandleRefund_OverRefundFloorsAtZero(t *testing.T) {
	agentRepo := new(mocks.MockAgentRepository)
	commissionRepo := new(mocks.MockCommissionRepository)
	service := newTestService(agentRepo, commissionRepo)

	ctx := context.Background()
	rec := &models.CommissionRecord{
		ID:             "rec-1",
		AgentID:        7,
		OrderID:        1001,
		OrderAmount:    decimal.RequireFromString("50.00"),
		CommissionRate: decimal.RequireFromString("0.30"),
		Status:         models.CommissionPending,
	}

	commissionRepo.On("GetByOrderID", ctx, mock.Anything, int64(1001)).Return(rec, nil)
	commissionRepo.On("AdjustAmounts", ctx, mock.Anything, "rec-1",
		mock.MatchedBy(func(amount decimal.Decimal) bool { return amount.IsZero() }),
		mock.MatchedBy(func(amount decimal.Decimal) bool { return amount.IsZero() })).
		Return(true, nil)
	expectEarningsRefresh(agentRepo, commissionRepo, 7)

	outcome, err := service.HandleRefund(ctx, svcports.RefundRequest{
		OrderID:      1001,
		RefundAmount: decimal.RequireFromString("80.00"),
	})

	require.NoError(t, err)
	assert.Equal(t, svcports.RefundAdjusted, outcome.Action)
}

// Test HandleRefund - refund after settlement only flags the record
func TestService_HandleRefund_SettledIsFlagged(t *testing.T) {
	agentRepo := new(mocks.MockAgentRepository)
	commissionRepo := new(mocks.MockCommissionRepository)
	service := newTestService(agentRepo, commissionRepo)

	ctx := context.Background()
	rec := &models.CommissionRecord{ID: "rec-1", AgentID: 7, OrderID: 1001, Status: models.CommissionSettled}

	commissionRepo.On("GetByOrderID", ctx, mock.Anything, int64(1001)).Return(rec, nil)
	commissionRepo.On("UpdateStatus", ctx, mock.Anything, "rec-1",
		models.CommissionSettled, models.CommissionRefunded, "order refunded after settlement", (*time.Time)(nil)).
		Return(true, nil)
	expectEarningsRefresh(agentRepo, commissionRepo, 7)

	outcome, err := service.HandleRefund(ctx, svcports.RefundRequest{
		OrderID:      1001,
		RefundAmount: decimal.RequireFromString("250.00"),
		FullRefund:   true,
	})

	require.NoError(t, err)
	assert.Equal(t, svcports.RefundFlagged, outcome.Action)
}

// Test HandleRefund - terminal records are left alone
func TestService_HandleRefund_TerminalIsNoOp(t *testing.T) {
	agentRepo := new(mocks.MockAgentRepository)
	commissionRepo := new(mocks.MockCommissionRepository)
	service := newTestService(agentRepo, commissionRepo)

	ctx := context.Background()
	rec := &models.CommissionRecord{ID: "rec-1", OrderID: 1001, Status: models.CommissionRefunded}
	commissionRepo.On("GetByOrderID", ctx, mock.Anything, int64(1001)).Return(rec, nil)

	outcome, err := service.HandleRefund(ctx, svcports.RefundRequest{
		OrderID:      1001,
		RefundAmount: decimal.RequireFromString("10.00"),
	})

	require.NoError(t, err)
	assert.Equal(t, svcports.RefundNoOp, outcome.Action)
	commissionRepo.AssertNotCalled(t, "UpdateStatus")
}

// Test RefreshAgentEarnings - total is settled plus pending
func TestService_RefreshAgentEarnings(t *testing.T) {
	agentRepo := new(mocks.MockAgentRepository)
	commissionRepo := new(mocks.MockCommissionRepository)
	service := newTestService(agentRepo, commissionRepo)

	ctx := context.Background()
	settled := decimal.RequireFromString("120.50")
	pending := decimal.RequireFromString("30.25")

	commissionRepo.On("SumEarnings", ctx, mock.Anything, int64(7)).
		Return(settled, pending, nil)
	agentRepo.On("UpdateEarnings", ctx, mock.Anything, int64(7),
		mock.MatchedBy(func(total decimal.Decimal) bool {
			return total.Equal(decimal.RequireFromString("150.75"))
		}),
		settled, pending).
		Return(nil)

	require.NoError(t, service.RefreshAgentEarnings(ctx, 7))
	agentRepo.AssertExpectations(t)
}
