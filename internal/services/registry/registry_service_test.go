package registry_test

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
	"github.com/kevin07696/commission-service/internal/domain/ports"
	"github.com/kevin07696/commission-service/internal/services/registry"
	"github.com/kevin07696/commission-service/internal/testutil/mocks"
)

type registryMocks struct {
	agentRepo      *mocks.MockAgentRepository
	commissionRepo *mocks.MockCommissionRepository
	auditRepo      *mocks.MockAuditLogRepository
	reconciler     *mocks.MockReconcilerService
}

func newTestService() (*registry.Service, *registryMocks) {
	m := &registryMocks{
		agentRepo:      new(mocks.MockAgentRepository),
		commissionRepo: new(mocks.MockCommissionRepository),
		auditRepo:      new(mocks.MockAuditLogRepository),
		reconciler:     new(mocks.MockReconcilerService),
	}
	svc := registry.NewService(&mocks.MockDBPort{}, m.agentRepo, m.commissionRepo,
		m.auditRepo, m.reconciler, registry.DefaultConfig(time.UTC), mocks.NewMockLogger())
	return svc, m
}

func notFound(code domain.ErrorCode) *domain.DomainError {
	return domain.NewDomainError(code, "not found")
}

// Test Enroll - creates an active agent at the default rate with an
// audit entry
func TestService_Enroll_Success(t *testing.T) {
	svc, m := newTestService()
	ctx := context.Background()

	m.agentRepo.On("GetByOwnerUserID", ctx, mock.Anything, int64(42)).
		Return(nil, notFound(domain.ErrorCodeAgentNotFound))
	m.agentRepo.On("Create", ctx, mock.Anything, mock.AnythingOfType("*models.Agent")).
		Run(func(args mock.Arguments) {
			args.Get(2).(*models.Agent).ID = 7
		}).
		Return(nil)
	m.auditRepo.On("Append", ctx, mock.Anything, mock.MatchedBy(func(entry *models.AuditLogEntry) bool {
		return entry.ActionType == models.AuditEnroll && entry.AgentID == 7 && entry.OperatorID == 42
	})).Return(nil)

	agent, err := svc.Enroll(ctx, 42)

	require.NoError(t, err)
	assert.Equal(t, models.AgentActive, agent.Status)
	assert.True(t, agent.CommissionRate.Equal(decimal.RequireFromString("0.30")))
	m.auditRepo.AssertExpectations(t)
}

// Test Enroll - one agent per owning user
func TestService_Enroll_AlreadyAgent(t *testing.T) {
	svc, m := newTestService()
	ctx := context.Background()

	m.agentRepo.On("GetByOwnerUserID", ctx, mock.Anything, int64(42)).
		Return(&models.Agent{ID: 7, OwnerUserID: 42}, nil)

	_, err := svc.Enroll(ctx, 42)

	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeValidationFailed))
	m.agentRepo.AssertNotCalled(t, "Create")
}

// Test UpdateCommissionRate - bounds are [0, 0.30] inclusive
func TestService_UpdateCommissionRate_Bounds(t *testing.T) {
	tests := []struct {
		name  string
		rate  string
		valid bool
	}{
		{"zero", "0", true},
		{"mid range", "0.15", true},
		{"exactly max", "0.30", true},
		{"just over max", "0.3001", false},
		{"negative", "-0.01", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, m := newTestService()
			ctx := context.Background()
			rate := decimal.RequireFromString(tt.rate)

			if tt.valid {
				m.agentRepo.On("GetByID", ctx, mock.Anything, int64(7)).
					Return(&models.Agent{ID: 7, CommissionRate: decimal.RequireFromString("0.20")}, nil)
				m.agentRepo.On("UpdateRate", ctx, mock.Anything, int64(7), rate).Return(nil)
				m.auditRepo.On("Append", ctx, mock.Anything, mock.MatchedBy(func(entry *models.AuditLogEntry) bool {
					return entry.ActionType == models.AuditRateChange && entry.OperatorID == 99
				})).Return(nil)
			}

			err := svc.UpdateCommissionRate(ctx, 7, rate, 99)

			if tt.valid {
				require.NoError(t, err)
				m.auditRepo.AssertExpectations(t)
			} else {
				require.Error(t, err)
				assert.True(t, domain.IsDomainError(err, domain.ErrorCodeValidationRateRange))
				m.agentRepo.AssertNotCalled(t, "UpdateRate")
			}
		})
	}
}

// Test Suspend - compare-and-set transition with an audit entry
func TestService_Suspend_Success(t *testing.T) {
	svc, m := newTestService()
	ctx := context.Background()

	m.agentRepo.On("GetByID", ctx, mock.Anything, int64(7)).
		Return(&models.Agent{ID: 7, Status: models.AgentActive}, nil)
	m.agentRepo.On("UpdateStatus", ctx, mock.Anything, int64(7),
		models.AgentActive, models.AgentSuspended).Return(true, nil)
	m.auditRepo.On("Append", ctx, mock.Anything, mock.MatchedBy(func(entry *models.AuditLogEntry) bool {
		return entry.ActionType == models.AuditStatusChange && entry.OperatorID == 99
	})).Return(nil)

	require.NoError(t, svc.Suspend(ctx, 7, 99))
	m.auditRepo.AssertExpectations(t)
}

// Test Suspend - a lost transition race writes no audit entry
func TestService_Suspend_RaceLostSkipsAudit(t *testing.T) {
	svc, m := newTestService()
	ctx := context.Background()

	m.agentRepo.On("GetByID", ctx, mock.Anything, int64(7)).
		Return(&models.Agent{ID: 7, Status: models.AgentSuspended}, nil)
	m.agentRepo.On("UpdateStatus", ctx, mock.Anything, int64(7),
		models.AgentActive, models.AgentSuspended).Return(false, nil)

	require.NoError(t, svc.Suspend(ctx, 7, 99))
	m.auditRepo.AssertNotCalled(t, "Append")
}

// Test BindPayout - provider registration happens before the link is
// stored
func TestService_BindPayout_Success(t *testing.T) {
	svc, m := newTestService()
	ctx := context.Background()

	m.agentRepo.On("GetByID", ctx, mock.Anything, int64(7)).
		Return(&models.Agent{ID: 7, OwnerUserID: 42}, nil)
	m.reconciler.On("RegisterPayoutReceiver", ctx, "wallet-abc", "Agent Name").Return(nil)
	m.agentRepo.On("UpdatePayout", ctx, mock.Anything, int64(7), "wallet-abc", true).Return(nil)
	m.auditRepo.On("Append", ctx, mock.Anything, mock.MatchedBy(func(entry *models.AuditLogEntry) bool {
		return entry.ActionType == models.AuditPayoutBind
	})).Return(nil)

	require.NoError(t, svc.BindPayout(ctx, 7, "wallet-abc", "Agent Name"))
	m.reconciler.AssertExpectations(t)
	m.agentRepo.AssertExpectations(t)
}

// Test BindPayout - failed provider registration never marks linked
func TestService_BindPayout_RegistrationFails(t *testing.T) {
	svc, m := newTestService()
	ctx := context.Background()

	m.agentRepo.On("GetByID", ctx, mock.Anything, int64(7)).
		Return(&models.Agent{ID: 7, OwnerUserID: 42}, nil)
	m.reconciler.On("RegisterPayoutReceiver", ctx, "wallet-abc", "Agent Name").
		Return(assert.AnError)

	err := svc.BindPayout(ctx, 7, "wallet-abc", "Agent Name")

	require.Error(t, err)
	m.agentRepo.AssertNotCalled(t, "UpdatePayout")
}

// Test UnbindPayout - unlinked agents are a no-op
func TestService_UnbindPayout_NotLinked(t *testing.T) {
	svc, m := newTestService()
	ctx := context.Background()

	m.agentRepo.On("GetByID", ctx, mock.Anything, int64(7)).
		Return(&models.Agent{ID: 7, PayoutLinked: false}, nil)

	require.NoError(t, svc.UnbindPayout(ctx, 7))
	m.reconciler.AssertNotCalled(t, "RemovePayoutReceiver")
	m.agentRepo.AssertNotCalled(t, "UpdatePayout")
}

// Test GetAgentStats - earnings are recomputed from commission rows
func TestService_GetAgentStats(t *testing.T) {
	svc, m := newTestService()
	ctx := context.Background()

	m.agentRepo.On("GetByID", ctx, mock.Anything, int64(7)).
		Return(&models.Agent{ID: 7, InvitedUsers: 12, PaidUsers: 4}, nil)
	m.commissionRepo.On("SumEarnings", ctx, mock.Anything, int64(7)).
		Return(decimal.RequireFromString("80.00"), decimal.RequireFromString("20.00"), nil)

	stats, err := svc.GetAgentStats(ctx, 7)

	require.NoError(t, err)
	assert.True(t, stats.TotalEarnings.Equal(decimal.RequireFromString("100.00")))
	assert.True(t, stats.SettledEarnings.Equal(decimal.RequireFromString("80.00")))
	assert.True(t, stats.PendingEarnings.Equal(decimal.RequireFromString("20.00")))
	assert.Equal(t, 12, stats.InvitedUsers)
	assert.Equal(t, 4, stats.PaidUsers)
}

func noAnomalies(m *registryMocks) {
	m.commissionRepo.On("FrequencyStats", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]ports.AgentActivityStat{}, nil)
	m.commissionRepo.On("DailyAmountStats", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]ports.AgentActivityStat{}, nil)
	m.agentRepo.On("ListConversionOutliers", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]*models.Agent{}, nil)
}

// Test SuspendAnomalous - a quiet day flags and suspends nobody
func TestService_SuspendAnomalous_NoAnomalies(t *testing.T) {
	svc, m := newTestService()
	noAnomalies(m)

	result, err := svc.SuspendAnomalous(context.Background())

	require.NoError(t, err)
	assert.Zero(t, result.Flagged)
	assert.Zero(t, result.Suspended)
	m.agentRepo.AssertNotCalled(t, "UpdateStatus")
}

// Test SuspendAnomalous - frequency outlier is suspended by the system
// operator with evidence in the audit entry
func TestService_SuspendAnomalous_FrequencyOutlier(t *testing.T) {
	svc, m := newTestService()
	ctx := context.Background()

	m.commissionRepo.On("FrequencyStats", mock.Anything, mock.Anything, mock.Anything, 10).
		Return([]ports.AgentActivityStat{{AgentID: 7, RecordCount: 11}}, nil)
	m.commissionRepo.On("DailyAmountStats", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]ports.AgentActivityStat{}, nil)
	m.agentRepo.On("ListConversionOutliers", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]*models.Agent{}, nil)

	m.agentRepo.On("UpdateStatus", mock.Anything, mock.Anything, int64(7),
		models.AgentActive, models.AgentSuspended).Return(true, nil)
	m.auditRepo.On("Append", mock.Anything, mock.Anything, mock.MatchedBy(func(entry *models.AuditLogEntry) bool {
		evidence, ok := entry.NewValue.(*models.SuspendEvidence)
		return ok &&
			entry.ActionType == models.AuditAutoSuspend &&
			entry.OperatorID == models.SystemOperatorID &&
			evidence.RecordCount == 11
	})).Return(nil)

	result, err := svc.SuspendAnomalous(ctx)

	require.NoError(t, err)
	assert.Equal(t, 1, result.Flagged)
	assert.Equal(t, 1, result.Suspended)
	m.auditRepo.AssertExpectations(t)
}

// Test SuspendAnomalous - already-suspended agents count as flagged
// but not suspended
func TestService_SuspendAnomalous_AlreadySuspended(t *testing.T) {
	svc, m := newTestService()

	m.commissionRepo.On("FrequencyStats", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]ports.AgentActivityStat{{AgentID: 7, RecordCount: 20}}, nil)
	m.commissionRepo.On("DailyAmountStats", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]ports.AgentActivityStat{}, nil)
	m.agentRepo.On("ListConversionOutliers", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]*models.Agent{}, nil)
	m.agentRepo.On("UpdateStatus", mock.Anything, mock.Anything, int64(7),
		models.AgentActive, models.AgentSuspended).Return(false, nil)

	result, err := svc.SuspendAnomalous(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, result.Flagged)
	assert.Zero(t, result.Suspended)
	m.auditRepo.AssertNotCalled(t, "Append")
}

// Test SuspendAnomalous - an agent tripping several heuristics is
// suspended once
func TestService_SuspendAnomalous_DeduplicatesAcrossHeuristics(t *testing.T) {
	svc, m := newTestService()

	m.commissionRepo.On("FrequencyStats", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]ports.AgentActivityStat{{AgentID: 7, RecordCount: 20}}, nil)
	m.commissionRepo.On("DailyAmountStats", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]ports.AgentActivityStat{{AgentID: 7, TotalAmount: decimal.RequireFromString("9000")}}, nil)
	m.agentRepo.On("ListConversionOutliers", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]*models.Agent{{ID: 7, InvitedUsers: 10, PaidUsers: 9}}, nil)

	m.agentRepo.On("UpdateStatus", mock.Anything, mock.Anything, int64(7),
		models.AgentActive, models.AgentSuspended).Return(true, nil).Once()
	m.auditRepo.On("Append", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

	result, err := svc.SuspendAnomalous(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, result.Flagged)
	assert.Equal(t, 1, result.Suspended)
	m.agentRepo.AssertExpectations(t)
}
