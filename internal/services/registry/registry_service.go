package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/kevin07696/commission-service/internal/domain"
	"github.com/kevin07696/commission-service/internal/domain/models"
	"github.com/kevin07696/commission-service/internal/domain/ports"
	svcports "github.com/kevin07696/commission-service/internal/services/ports"
	"github.com/kevin07696/commission-service/pkg/observability"
	"github.com/kevin07696/commission-service/pkg/timeutil"
)

// Config holds enrollment defaults and anomaly thresholds
type Config struct {
	// DefaultRate is the commission rate for new agents (default 0.30)
	DefaultRate decimal.Decimal

	// HourlyRecordThreshold: strictly more commission records than
	// this in the trailing hour trips a suspension (default 10)
	HourlyRecordThreshold int

	// DailyAmountThreshold: today's pending+settled commission sum
	// strictly above this trips a suspension (default 5000.00)
	DailyAmountThreshold decimal.Decimal

	// Conversion outlier bounds: invited > MinInvitedUsers AND paid >
	// MinPaidUsers AND paid/invited > MaxConversionRatio
	MinInvitedUsers    int
	MinPaidUsers       int
	MaxConversionRatio float64

	// Location is the business timezone for the daily window
	Location *time.Location
}

// DefaultConfig returns the production enrollment and anomaly bounds
func DefaultConfig(location *time.Location) Config {
	return Config{
		DefaultRate:           decimal.NewFromFloat(0.30),
		HourlyRecordThreshold: 10,
		DailyAmountThreshold:  decimal.NewFromInt(5000),
		MinInvitedUsers:       5,
		MinPaidUsers:          5,
		MaxConversionRatio:    0.8,
		Location:              location,
	}
}

// Service implements ports.RegistryService
type Service struct {
	db             ports.DBPort
	agentRepo      ports.AgentRepository
	commissionRepo ports.CommissionRepository
	auditRepo      ports.AuditLogRepository
	reconciler     svcports.ReconcilerService
	config         Config
	logger         ports.Logger
	now            func() time.Time
}

// NewService creates a new agent registry service
func NewService(
	db ports.DBPort,
	agentRepo ports.AgentRepository,
	commissionRepo ports.CommissionRepository,
	auditRepo ports.AuditLogRepository,
	reconciler svcports.ReconcilerService,
	config Config,
	logger ports.Logger,
) *Service {
	return &Service{
		db:             db,
		agentRepo:      agentRepo,
		commissionRepo: commissionRepo,
		auditRepo:      auditRepo,
		reconciler:     reconciler,
		config:         config,
		logger:         logger,
		now:            time.Now,
	}
}

// Enroll creates an active agent for the user at the configured
// default rate
func (s *Service) Enroll(ctx context.Context, ownerUserID int64) (*models.Agent, error) {
	if _, err := s.agentRepo.GetByOwnerUserID(ctx, nil, ownerUserID); err == nil {
		return nil, domain.NewDomainError(domain.ErrorCodeValidationFailed, "user is already an agent").
			WithDetail("owner_user_id", ownerUserID)
	} else if !domain.IsDomainError(err, domain.ErrorCodeAgentNotFound) {
		return nil, err
	}

	agent := &models.Agent{
		OwnerUserID:    ownerUserID,
		Status:         models.AgentActive,
		CommissionRate: s.config.DefaultRate,
	}

	err := s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if err := s.agentRepo.Create(ctx, tx, agent); err != nil {
			return err
		}
		return s.auditRepo.Append(ctx, tx, &models.AuditLogEntry{
			AgentID:    agent.ID,
			ActionType: models.AuditEnroll,
			OperatorID: ownerUserID,
			NewValue:   models.StatusDiff{To: models.AgentActive},
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("agent enrolled",
		ports.Int64("agent_id", agent.ID),
		ports.Int64("owner_user_id", ownerUserID),
		ports.String("commission_rate", agent.CommissionRate.String()))
	return agent, nil
}

// UpdateCommissionRate changes the rate for future commissions.
// Existing records keep their snapshotted rate.
func (s *Service) UpdateCommissionRate(ctx context.Context, agentID int64, rate decimal.Decimal, operatorID int64) error {
	if rate.IsNegative() || rate.GreaterThan(models.MaxCommissionRate) {
		return domain.NewDomainError(domain.ErrorCodeValidationRateRange,
			fmt.Sprintf("commission rate must be between 0 and %s", models.MaxCommissionRate.String())).
			WithDetail("agent_id", agentID).
			WithDetail("rate", rate.String())
	}

	agent, err := s.agentRepo.GetByID(ctx, nil, agentID)
	if err != nil {
		return err
	}

	err = s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if err := s.agentRepo.UpdateRate(ctx, tx, agentID, rate); err != nil {
			return err
		}
		return s.auditRepo.Append(ctx, tx, &models.AuditLogEntry{
			AgentID:    agentID,
			ActionType: models.AuditRateChange,
			OperatorID: operatorID,
			NewValue:   models.RateDiff{From: agent.CommissionRate, To: rate},
		})
	})
	if err != nil {
		return err
	}

	s.logger.Info("agent commission rate updated",
		ports.Int64("agent_id", agentID),
		ports.String("from", agent.CommissionRate.String()),
		ports.String("to", rate.String()),
		ports.Int64("operator_id", operatorID))
	return nil
}

// Suspend deactivates the agent. Pending commissions stay on the books
// and settle once the agent is resumed.
func (s *Service) Suspend(ctx context.Context, agentID, operatorID int64) error {
	return s.transitionStatus(ctx, agentID, operatorID, models.AgentActive, models.AgentSuspended)
}

// Resume reactivates a suspended agent
func (s *Service) Resume(ctx context.Context, agentID, operatorID int64) error {
	return s.transitionStatus(ctx, agentID, operatorID, models.AgentSuspended, models.AgentActive)
}

func (s *Service) transitionStatus(ctx context.Context, agentID, operatorID int64, from, to models.AgentStatus) error {
	if _, err := s.agentRepo.GetByID(ctx, nil, agentID); err != nil {
		return err
	}

	err := s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		moved, err := s.agentRepo.UpdateStatus(ctx, tx, agentID, from, to)
		if err != nil {
			return err
		}
		if !moved {
			// Already in the target (or another) state
			s.logger.Debug("agent status race lost, skipping",
				ports.Int64("agent_id", agentID),
				ports.String("target", string(to)))
			return nil
		}
		return s.auditRepo.Append(ctx, tx, &models.AuditLogEntry{
			AgentID:    agentID,
			ActionType: models.AuditStatusChange,
			OperatorID: operatorID,
			NewValue:   models.StatusDiff{From: from, To: to},
		})
	})
	if err != nil {
		return err
	}

	s.logger.Info("agent status changed",
		ports.Int64("agent_id", agentID),
		ports.String("from", string(from)),
		ports.String("to", string(to)),
		ports.Int64("operator_id", operatorID))
	return nil
}

// BindPayout stores the payout identity and registers it with the
// provider. Registration happens first so an unregistered identity is
// never marked linked.
func (s *Service) BindPayout(ctx context.Context, agentID int64, payoutIdentity, displayName string) error {
	if payoutIdentity == "" {
		return domain.NewDomainError(domain.ErrorCodeValidationMissingField, "payout identity is required").
			WithDetail("agent_id", agentID)
	}

	agent, err := s.agentRepo.GetByID(ctx, nil, agentID)
	if err != nil {
		return err
	}

	if err := s.reconciler.RegisterPayoutReceiver(ctx, payoutIdentity, displayName); err != nil {
		return err
	}

	err = s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if err := s.agentRepo.UpdatePayout(ctx, tx, agentID, payoutIdentity, true); err != nil {
			return err
		}
		return s.auditRepo.Append(ctx, tx, &models.AuditLogEntry{
			AgentID:    agentID,
			ActionType: models.AuditPayoutBind,
			OperatorID: agent.OwnerUserID,
			NewValue:   models.PayoutBindDiff{From: agent.PayoutIdentity, To: payoutIdentity},
		})
	})
	if err != nil {
		return err
	}

	s.logger.Info("agent payout bound",
		ports.Int64("agent_id", agentID),
		ports.String("payout_identity", payoutIdentity))
	return nil
}

// UnbindPayout clears the payout identity and deregisters it from the
// provider
func (s *Service) UnbindPayout(ctx context.Context, agentID int64) error {
	agent, err := s.agentRepo.GetByID(ctx, nil, agentID)
	if err != nil {
		return err
	}
	if !agent.PayoutLinked {
		return nil
	}

	if err := s.reconciler.RemovePayoutReceiver(ctx, agent.PayoutIdentity); err != nil {
		return err
	}

	err = s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if err := s.agentRepo.UpdatePayout(ctx, tx, agentID, "", false); err != nil {
			return err
		}
		return s.auditRepo.Append(ctx, tx, &models.AuditLogEntry{
			AgentID:    agentID,
			ActionType: models.AuditPayoutBind,
			OperatorID: agent.OwnerUserID,
			NewValue:   models.PayoutBindDiff{From: agent.PayoutIdentity, To: ""},
		})
	})
	if err != nil {
		return err
	}

	s.logger.Info("agent payout unbound",
		ports.Int64("agent_id", agentID))
	return nil
}

// GetAgent retrieves an agent by id
func (s *Service) GetAgent(ctx context.Context, agentID int64) (*models.Agent, error) {
	return s.agentRepo.GetByID(ctx, nil, agentID)
}

// GetAgentStats returns earnings recomputed from the commission rows
// alongside the onboarding counters
func (s *Service) GetAgentStats(ctx context.Context, agentID int64) (*svcports.AgentStats, error) {
	agent, err := s.agentRepo.GetByID(ctx, nil, agentID)
	if err != nil {
		return nil, err
	}

	settled, pending, err := s.commissionRepo.SumEarnings(ctx, nil, agentID)
	if err != nil {
		return nil, err
	}

	return &svcports.AgentStats{
		Agent:           agent,
		TotalEarnings:   settled.Add(pending),
		SettledEarnings: settled,
		PendingEarnings: pending,
		InvitedUsers:    agent.InvitedUsers,
		PaidUsers:       agent.PaidUsers,
	}, nil
}

// SuspendAnomalous applies the anomaly heuristics and suspends every
// flagged active agent. Suspension is one way: re-activation is always
// a human decision through Resume.
func (s *Service) SuspendAnomalous(ctx context.Context) (*svcports.AnomalySweepResult, error) {
	now := s.now().In(s.config.Location)
	flagged := make(map[int64]*models.SuspendEvidence)

	// Heuristic 1: commission records created faster than any organic
	// referral pattern produces
	hourAgo := now.Add(-1 * time.Hour)
	freqStats, err := s.commissionRepo.FrequencyStats(ctx, nil, hourAgo, s.config.HourlyRecordThreshold)
	if err != nil {
		return nil, fmt.Errorf("frequency stats: %w", err)
	}
	for _, stat := range freqStats {
		flagged[stat.AgentID] = &models.SuspendEvidence{
			Reason:        "commission frequency exceeded hourly threshold",
			RecordCount:   stat.RecordCount,
			WindowMinutes: 60,
		}
	}

	// Heuristic 2: today's commission volume above the daily amount
	// threshold
	dayStart := timeutil.StartOfDay(now, s.config.Location)
	amountStats, err := s.commissionRepo.DailyAmountStats(ctx, nil, dayStart, s.config.DailyAmountThreshold)
	if err != nil {
		return nil, fmt.Errorf("daily amount stats: %w", err)
	}
	for _, stat := range amountStats {
		if _, dup := flagged[stat.AgentID]; dup {
			continue
		}
		flagged[stat.AgentID] = &models.SuspendEvidence{
			Reason:         "daily commission amount exceeded threshold",
			DayTotalAmount: stat.TotalAmount,
			Threshold:      s.config.DailyAmountThreshold,
		}
	}

	// Heuristic 3: paid conversion ratio implausibly high
	outliers, err := s.agentRepo.ListConversionOutliers(ctx, nil,
		s.config.MinInvitedUsers, s.config.MinPaidUsers, s.config.MaxConversionRatio)
	if err != nil {
		return nil, fmt.Errorf("conversion outliers: %w", err)
	}
	for _, agent := range outliers {
		if _, dup := flagged[agent.ID]; dup {
			continue
		}
		flagged[agent.ID] = &models.SuspendEvidence{
			Reason:       "paid conversion ratio exceeded threshold",
			InvitedUsers: agent.InvitedUsers,
			PaidUsers:    agent.PaidUsers,
		}
	}

	result := &svcports.AnomalySweepResult{Flagged: len(flagged)}
	for agentID, evidence := range flagged {
		suspended, err := s.autoSuspend(ctx, agentID, evidence)
		if err != nil {
			s.logger.Error("auto-suspension failed",
				ports.Int64("agent_id", agentID),
				ports.Err(err))
			continue
		}
		if suspended {
			result.Suspended++
		}
	}

	if result.Flagged > 0 {
		s.logger.Warn("anomaly sweep flagged agents",
			ports.Int("flagged", result.Flagged),
			ports.Int("suspended", result.Suspended))
	}
	return result, nil
}

func (s *Service) autoSuspend(ctx context.Context, agentID int64, evidence *models.SuspendEvidence) (bool, error) {
	var moved bool
	err := s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		moved, err = s.agentRepo.UpdateStatus(ctx, tx, agentID, models.AgentActive, models.AgentSuspended)
		if err != nil {
			return err
		}
		if !moved {
			// Already suspended
			return nil
		}
		return s.auditRepo.Append(ctx, tx, &models.AuditLogEntry{
			AgentID:    agentID,
			ActionType: models.AuditAutoSuspend,
			OperatorID: models.SystemOperatorID,
			OldValue:   models.StatusDiff{From: models.AgentActive, To: models.AgentSuspended},
			NewValue:   evidence,
		})
	})
	if err != nil {
		return false, err
	}

	if moved {
		s.logger.Warn("agent auto-suspended",
			ports.Int64("agent_id", agentID),
			ports.String("reason", evidence.Reason))
		observability.RecordAutoSuspension(evidence.Reason)
	}
	return moved, nil
}
