package driver

import (
	"context"
	"fmt"
	"time"

	"github.com/kevin07696/commission-service/internal/domain"
	"github.com/kevin07696/commission-service/internal/domain/models"
	"github.com/kevin07696/commission-service/internal/domain/ports"
	svcports "github.com/kevin07696/commission-service/internal/services/ports"
	"github.com/kevin07696/commission-service/pkg/observability"
)

// Service implements ports.SettlementDriver. It owns no state of its
// own: every sweep reads due work from the database, so a crashed run
// resumes wherever the records say it stopped.
type Service struct {
	ledger     svcports.LedgerService
	reconciler svcports.ReconcilerService
	registry   svcports.RegistryService
	orders     ports.OrderReader
	logger     ports.Logger
}

// NewService creates a new settlement driver
func NewService(
	ledger svcports.LedgerService,
	reconciler svcports.ReconcilerService,
	registry svcports.RegistryService,
	orders ports.OrderReader,
	logger ports.Logger,
) *Service {
	return &Service{
		ledger:     ledger,
		reconciler: reconciler,
		registry:   registry,
		orders:     orders,
		logger:     logger,
	}
}

// RunDailySettlement sweeps due pending commissions into settlement
// attempts. Per record: the agent must be payable, the order must have
// a provider transaction, and the limits must hold. Limit violations
// defer to the next run; a missing transaction id is a permanent
// cancel.
func (s *Service) RunDailySettlement(ctx context.Context, asOf time.Time) (*svcports.SettlementRunResult, error) {
	start := time.Now()

	due, err := s.ledger.GetPendingCommissions(ctx, asOf)
	if err != nil {
		observability.RecordSweepRun("settlement", "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("list due commissions: %w", err)
	}

	result := &svcports.SettlementRunResult{Due: len(due)}
	agents := make(map[int64]*models.Agent)
	touched := make(map[int64]bool)

	for _, rec := range due {
		agent, ok := agents[rec.AgentID]
		if !ok {
			agent, err = s.registry.GetAgent(ctx, rec.AgentID)
			if err != nil {
				s.logger.Warn("agent lookup failed, skipping commission",
					ports.String("commission_id", rec.ID),
					ports.Int64("agent_id", rec.AgentID),
					ports.Err(err))
				result.Skipped++
				continue
			}
			agents[rec.AgentID] = agent
		}

		if !agent.CanReceivePayout() {
			// Not payable yet; stays due until the payout is linked
			s.logger.Debug("agent not payable, deferring commission",
				ports.String("commission_id", rec.ID),
				ports.Int64("agent_id", agent.ID))
			result.Skipped++
			continue
		}

		txnID, err := s.orders.PaymentTransactionID(ctx, rec.OrderID)
		if err != nil {
			s.logger.Warn("order lookup failed, skipping commission",
				ports.String("commission_id", rec.ID),
				ports.Int64("order_id", rec.OrderID),
				ports.Err(err))
			result.Skipped++
			continue
		}
		if txnID == "" {
			// No provider transaction means there is nothing to split
			// from; the commission can never settle.
			if err := s.ledger.UpdateStatus(ctx, rec.ID, models.CommissionCancelled, "order has no provider transaction"); err != nil {
				s.logger.Error("failed to cancel unsettleable commission",
					ports.String("commission_id", rec.ID),
					ports.Err(err))
				result.Failed++
				continue
			}
			result.Cancelled++
			touched[rec.AgentID] = true
			continue
		}

		amountMinorUnits := rec.CommissionAmount.Shift(2).IntPart()
		if amountMinorUnits <= 0 {
			// Refund adjustments can shrink a commission to zero;
			// nothing is owed.
			if err := s.ledger.UpdateStatus(ctx, rec.ID, models.CommissionCancelled, "commission amount is zero"); err != nil {
				s.logger.Error("failed to cancel zero commission",
					ports.String("commission_id", rec.ID),
					ports.Err(err))
				result.Failed++
				continue
			}
			result.Cancelled++
			touched[rec.AgentID] = true
			continue
		}

		_, err = s.reconciler.RequestSplit(ctx, svcports.SplitSettlementRequest{
			CommissionID:     rec.ID,
			TransactionID:    txnID,
			PayoutIdentity:   agent.PayoutIdentity,
			AmountMinorUnits: amountMinorUnits,
			OrderAmount:      rec.OrderAmount,
			Description:      fmt.Sprintf("commission for order %d", rec.OrderID),
		})
		switch {
		case err == nil:
			result.Requested++
			touched[rec.AgentID] = true
		case domain.IsDomainError(err, domain.ErrorCodeLimitExceeded):
			// Deferral, not failure: the record stays pending and the
			// next run picks it up without any retry budget spent.
			s.logger.Debug("settlement deferred by limits",
				ports.String("commission_id", rec.ID),
				ports.Err(err))
			result.Deferred++
		case domain.IsDomainError(err, domain.ErrorCodeProviderRejected):
			result.Failed++
			touched[rec.AgentID] = true
		default:
			s.logger.Error("split request failed",
				ports.String("commission_id", rec.ID),
				ports.Err(err))
			result.Failed++
		}
	}

	s.refreshEarnings(ctx, keys(touched))

	s.logger.Info("daily settlement sweep finished",
		ports.Int("due", result.Due),
		ports.Int("requested", result.Requested),
		ports.Int("deferred", result.Deferred),
		ports.Int("skipped", result.Skipped),
		ports.Int("cancelled", result.Cancelled),
		ports.Int("failed", result.Failed))
	observability.RecordSweepRun("settlement", "ok", time.Since(start).Seconds())
	return result, nil
}

// RunHourlyReconcile converges processing attempts with the provider
// and refreshes the earnings caches of every touched agent
func (s *Service) RunHourlyReconcile(ctx context.Context) (*svcports.ReconcileResult, error) {
	start := time.Now()

	result, err := s.reconciler.ReconcilePending(ctx)
	if err != nil {
		observability.RecordSweepRun("reconcile", "error", time.Since(start).Seconds())
		return nil, err
	}

	s.refreshEarnings(ctx, result.TouchedAgentIDs)
	observability.RecordSweepRun("reconcile", "ok", time.Since(start).Seconds())
	return result, nil
}

// RunAnomalySweep suspends agents matching the anomaly heuristics
func (s *Service) RunAnomalySweep(ctx context.Context) (*svcports.AnomalySweepResult, error) {
	start := time.Now()

	result, err := s.registry.SuspendAnomalous(ctx)
	if err != nil {
		observability.RecordSweepRun("anomaly", "error", time.Since(start).Seconds())
		return nil, err
	}

	observability.RecordSweepRun("anomaly", "ok", time.Since(start).Seconds())
	return result, nil
}

func (s *Service) refreshEarnings(ctx context.Context, agentIDs []int64) {
	for _, agentID := range agentIDs {
		if err := s.ledger.RefreshAgentEarnings(ctx, agentID); err != nil {
			s.logger.Warn("earnings cache refresh failed",
				ports.Int64("agent_id", agentID),
				ports.Err(err))
		}
	}
}

func keys(m map[int64]bool) []int64 {
	ids := make([]int64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	return ids
}
