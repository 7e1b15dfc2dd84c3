package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/kevin07696/commission-service/internal/domain"
	"github.com/kevin07696/commission-service/internal/domain/models"
	"github.com/kevin07696/commission-service/internal/domain/ports"
	svcports "github.com/kevin07696/commission-service/internal/services/ports"
	"github.com/kevin07696/commission-service/pkg/observability"
	"github.com/kevin07696/commission-service/pkg/timeutil"
)

// Service implements ports.LedgerService
type Service struct {
	db             ports.DBPort
	agentRepo      ports.AgentRepository
	commissionRepo ports.CommissionRepository
	location       *time.Location
	logger         ports.Logger
}

// NewService creates a new commission ledger service. location is the
// business timezone used for T+1 settle dates.
func NewService(
	db ports.DBPort,
	agentRepo ports.AgentRepository,
	commissionRepo ports.CommissionRepository,
	location *time.Location,
	logger ports.Logger,
) *Service {
	return &Service{
		db:             db,
		agentRepo:      agentRepo,
		commissionRepo: commissionRepo,
		location:       location,
		logger:         logger,
	}
}

// CalculateCommission computes orderAmount * rate rounded to 2 decimal
// places, half away from zero. Pure.
func CalculateCommission(orderAmount, rate decimal.Decimal) decimal.Decimal {
	return orderAmount.Mul(rate).Round(2)
}

// CreateCommission books a commission for a paid order. The agent must
// exist and be active. Duplicate deliveries of the same order return
// the already-booked record.
func (s *Service) CreateCommission(ctx context.Context, req svcports.CreateCommissionRequest) (*models.CommissionRecord, error) {
	if req.OrderAmount.IsNegative() {
		return nil, domain.NewDomainError(domain.ErrorCodeValidationAmount, "order amount must not be negative").
			WithDetail("order_id", req.OrderID)
	}

	// Fast path for redelivered paid-order events; the unique index on
	// order_id is the backstop for the race.
	existing, err := s.commissionRepo.GetByOrderID(ctx, nil, req.OrderID)
	if err == nil {
		s.logger.Debug("commission already booked for order",
			ports.Int64("order_id", req.OrderID),
			ports.String("commission_id", existing.ID))
		return existing, nil
	}
	if !domain.IsDomainError(err, domain.ErrorCodeCommissionNotFound) {
		return nil, fmt.Errorf("lookup commission by order: %w", err)
	}

	agent, err := s.agentRepo.GetByID(ctx, nil, req.AgentID)
	if err != nil {
		return nil, err
	}
	if !agent.IsActive() {
		return nil, domain.NewDomainError(domain.ErrorCodeAgentSuspended, "agent is suspended").
			WithDetail("agent_id", agent.ID)
	}

	now := time.Now().In(s.location)
	rec := &models.CommissionRecord{
		ID:               uuid.New().String(),
		AgentID:          agent.ID,
		OrderID:          req.OrderID,
		ReferredUserID:   req.ReferredUserID,
		OrderAmount:      req.OrderAmount,
		CommissionRate:   agent.CommissionRate,
		CommissionAmount: CalculateCommission(req.OrderAmount, agent.CommissionRate),
		Status:           models.CommissionPending,
		SettleDate:       timeutil.NextSettleDate(now, s.location),
	}

	err = s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return s.commissionRepo.Create(ctx, tx, rec)
	})
	if err != nil {
		if domain.IsDomainError(err, domain.ErrorCodeCommissionExists) {
			// Lost the race against a concurrent delivery
			return s.commissionRepo.GetByOrderID(ctx, nil, req.OrderID)
		}
		return nil, err
	}

	s.logger.Info("commission booked",
		ports.String("commission_id", rec.ID),
		ports.Int64("agent_id", rec.AgentID),
		ports.Int64("order_id", rec.OrderID),
		ports.String("commission_amount", rec.CommissionAmount.String()),
		ports.String("settle_date", rec.SettleDate.Format("2006-01-02")))

	observability.RecordCommissionTransition(string(models.CommissionPending), rec.CommissionAmount.Shift(2).IntPart())
	s.refreshEarningsBestEffort(ctx, rec.AgentID)
	return rec, nil
}

// UpdateStatus applies a lifecycle transition. A lost compare-and-set
// race means another job already moved the record; that is a no-op.
func (s *Service) UpdateStatus(ctx context.Context, id string, newStatus models.CommissionStatus, reason string) error {
	rec, err := s.commissionRepo.GetByID(ctx, nil, id)
	if err != nil {
		return err
	}

	if !rec.CanTransitionTo(newStatus) {
		return domain.NewDomainError(domain.ErrorCodeInvalidStateTransition, "illegal commission state transition").
			WithDetail("commission_id", id).
			WithDetail("from", string(rec.Status)).
			WithDetail("to", string(newStatus))
	}

	var settledAt *time.Time
	if newStatus == models.CommissionSettled {
		now := time.Now()
		settledAt = &now
	}

	moved, err := s.commissionRepo.UpdateStatus(ctx, nil, id, rec.Status, newStatus, reason, settledAt)
	if err != nil {
		return err
	}
	if !moved {
		s.logger.Debug("commission status race lost, skipping",
			ports.String("commission_id", id),
			ports.String("expected", string(rec.Status)),
			ports.String("target", string(newStatus)))
		return nil
	}

	s.logger.Info("commission status updated",
		ports.String("commission_id", id),
		ports.String("from", string(rec.Status)),
		ports.String("to", string(newStatus)),
		ports.String("reason", reason))

	observability.RecordCommissionTransition(string(newStatus), rec.CommissionAmount.Shift(2).IntPart())
	s.refreshEarningsBestEffort(ctx, rec.AgentID)
	return nil
}

// HandleRefund applies a refund event to the order's commission.
// Orders without a commission, and terminal records, are no-ops.
func (s *Service) HandleRefund(ctx context.Context, req svcports.RefundRequest) (*svcports.RefundOutcome, error) {
	if req.RefundAmount.IsNegative() {
		return nil, domain.NewDomainError(domain.ErrorCodeValidationAmount, "refund amount must not be negative").
			WithDetail("order_id", req.OrderID)
	}

	rec, err := s.commissionRepo.GetByOrderID(ctx, nil, req.OrderID)
	if err != nil {
		if domain.IsDomainError(err, domain.ErrorCodeCommissionNotFound) {
			return &svcports.RefundOutcome{Action: svcports.RefundNoOp}, nil
		}
		return nil, err
	}

	switch rec.Status {
	case models.CommissionPending:
		if req.FullRefund {
			return s.refundCancel(ctx, rec)
		}
		return s.refundAdjust(ctx, rec, req.RefundAmount)

	case models.CommissionSettled:
		// Money already moved; flag only. Clawback is out of band.
		moved, err := s.commissionRepo.UpdateStatus(ctx, nil, rec.ID,
			models.CommissionSettled, models.CommissionRefunded, "order refunded after settlement", nil)
		if err != nil {
			return nil, err
		}
		if !moved {
			return &svcports.RefundOutcome{Action: svcports.RefundNoOp, Commission: rec}, nil
		}
		s.logger.Info("settled commission flagged refunded",
			ports.String("commission_id", rec.ID),
			ports.Int64("order_id", rec.OrderID))
		observability.RecordCommissionTransition(string(models.CommissionRefunded), rec.CommissionAmount.Shift(2).IntPart())
		s.refreshEarningsBestEffort(ctx, rec.AgentID)
		return &svcports.RefundOutcome{Action: svcports.RefundFlagged, Commission: rec}, nil

	default:
		// cancelled or refunded: nothing left to undo
		return &svcports.RefundOutcome{Action: svcports.RefundNoOp, Commission: rec}, nil
	}
}

func (s *Service) refundCancel(ctx context.Context, rec *models.CommissionRecord) (*svcports.RefundOutcome, error) {
	moved, err := s.commissionRepo.UpdateStatus(ctx, nil, rec.ID,
		models.CommissionPending, models.CommissionCancelled, "order fully refunded", nil)
	if err != nil {
		return nil, err
	}
	if !moved {
		s.logger.Debug("refund cancel race lost, skipping",
			ports.String("commission_id", rec.ID))
		return &svcports.RefundOutcome{Action: svcports.RefundNoOp, Commission: rec}, nil
	}

	s.logger.Info("pending commission cancelled by refund",
		ports.String("commission_id", rec.ID),
		ports.Int64("order_id", rec.OrderID))
	observability.RecordCommissionTransition(string(models.CommissionCancelled), rec.CommissionAmount.Shift(2).IntPart())
	s.refreshEarningsBestEffort(ctx, rec.AgentID)
	return &svcports.RefundOutcome{Action: svcports.RefundCancelled, Commission: rec}, nil
}

func (s *Service) refundAdjust(ctx context.Context, rec *models.CommissionRecord, refundAmount decimal.Decimal) (*svcports.RefundOutcome, error) {
	newOrderAmount := rec.OrderAmount.Sub(refundAmount)
	if newOrderAmount.IsNegative() {
		newOrderAmount = decimal.Zero
	}
	newCommission := CalculateCommission(newOrderAmount, rec.CommissionRate)

	adjusted, err := s.commissionRepo.AdjustAmounts(ctx, nil, rec.ID, newOrderAmount, newCommission)
	if err != nil {
		return nil, err
	}
	if !adjusted {
		s.logger.Debug("refund adjust race lost, skipping",
			ports.String("commission_id", rec.ID))
		return &svcports.RefundOutcome{Action: svcports.RefundNoOp, Commission: rec}, nil
	}

	s.logger.Info("pending commission adjusted by partial refund",
		ports.String("commission_id", rec.ID),
		ports.Int64("order_id", rec.OrderID),
		ports.String("order_amount", newOrderAmount.String()),
		ports.String("commission_amount", newCommission.String()))

	rec.OrderAmount = newOrderAmount
	rec.CommissionAmount = newCommission
	s.refreshEarningsBestEffort(ctx, rec.AgentID)
	return &svcports.RefundOutcome{Action: svcports.RefundAdjusted, Commission: rec}, nil
}

// GetPendingCommissions returns due pending records owned by active
// agents, oldest first
func (s *Service) GetPendingCommissions(ctx context.Context, asOf time.Time) ([]*models.CommissionRecord, error) {
	return s.commissionRepo.ListDuePending(ctx, nil, asOf)
}

// GetCommissionByOrderID retrieves the commission for an order
func (s *Service) GetCommissionByOrderID(ctx context.Context, orderID int64) (*models.CommissionRecord, error) {
	return s.commissionRepo.GetByOrderID(ctx, nil, orderID)
}

// RefreshAgentEarnings recomputes the agent's earnings cache from the
// commission rows. The cache is a convenience; the rows stay the truth.
func (s *Service) RefreshAgentEarnings(ctx context.Context, agentID int64) error {
	settled, pending, err := s.commissionRepo.SumEarnings(ctx, nil, agentID)
	if err != nil {
		return err
	}
	total := settled.Add(pending)
	return s.agentRepo.UpdateEarnings(ctx, nil, agentID, total, settled, pending)
}

func (s *Service) refreshEarningsBestEffort(ctx context.Context, agentID int64) {
	if err := s.RefreshAgentEarnings(ctx, agentID); err != nil {
		s.logger.Warn("earnings cache refresh failed",
			ports.Int64("agent_id", agentID),
			ports.Err(err))
	}
}
