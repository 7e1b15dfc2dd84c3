package reconciler

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

// Config bounds the reconciler's settlement behavior
type Config struct {
	// MaxShareRate caps a single settlement at this share of its order
	// amount (default 0.30)
	MaxShareRate decimal.Decimal

	// DailyCapMinorUnits caps the sum of processing and success
	// attempt amounts per calendar day
	DailyCapMinorUnits int64

	// MaxRetries is the poll budget per attempt before force-failing
	MaxRetries int

	// MaxAttemptAge force-fails attempts stuck processing longer than
	// this wall-clock duration
	MaxAttemptAge time.Duration

	// Location is the business timezone for the daily cap window
	Location *time.Location
}

// DefaultConfig returns the production settlement bounds
func DefaultConfig(location *time.Location) Config {
	return Config{
		MaxShareRate:       decimal.NewFromFloat(0.30),
		DailyCapMinorUnits: 100000000,
		MaxRetries:         24,
		MaxAttemptAge:      24 * time.Hour,
		Location:           location,
	}
}

// Service implements ports.ReconcilerService
type Service struct {
	db             ports.DBPort
	commissionRepo ports.CommissionRepository
	attemptRepo    ports.AttemptRepository
	gateway        ports.SplitPaymentGateway
	config         Config
	logger         ports.Logger
	now            func() time.Time
}

// NewService creates a new settlement reconciler service
func NewService(
	db ports.DBPort,
	commissionRepo ports.CommissionRepository,
	attemptRepo ports.AttemptRepository,
	gateway ports.SplitPaymentGateway,
	config Config,
	logger ports.Logger,
) *Service {
	return &Service{
		db:             db,
		commissionRepo: commissionRepo,
		attemptRepo:    attemptRepo,
		gateway:        gateway,
		config:         config,
		logger:         logger,
		now:            time.Now,
	}
}

// RegisterPayoutReceiver registers the identity with the provider.
// The gateway treats already-registered as success.
func (s *Service) RegisterPayoutReceiver(ctx context.Context, identity, name string) error {
	if identity == "" {
		return domain.NewDomainError(domain.ErrorCodeValidationMissingField, "payout identity is required")
	}
	if err := s.gateway.AddReceiver(ctx, identity, name); err != nil {
		return fmt.Errorf("register payout receiver: %w", err)
	}
	return nil
}

// RemovePayoutReceiver deregisters the identity
func (s *Service) RemovePayoutReceiver(ctx context.Context, identity string) error {
	if identity == "" {
		return domain.NewDomainError(domain.ErrorCodeValidationMissingField, "payout identity is required")
	}
	if err := s.gateway.RemoveReceiver(ctx, identity); err != nil {
		return fmt.Errorf("remove payout receiver: %w", err)
	}
	return nil
}

// CheckLimits enforces the per-transaction share bound and the daily
// settlement cap. Violations are deferrals, not failures.
func (s *Service) CheckLimits(ctx context.Context, amountMinorUnits int64, orderAmount decimal.Decimal) (*svcports.LimitDecision, error) {
	perTxnLimit := orderAmount.Mul(s.config.MaxShareRate).Shift(2).IntPart()
	if amountMinorUnits > perTxnLimit {
		return &svcports.LimitDecision{
			Allowed: false,
			Reason: fmt.Sprintf("amount %d exceeds per-transaction limit %d (%s of order)",
				amountMinorUnits, perTxnLimit, s.config.MaxShareRate.String()),
		}, nil
	}

	dayStart := timeutil.StartOfDay(s.now().In(s.config.Location), s.config.Location)
	todayTotal, err := s.attemptRepo.SumActiveAmountSince(ctx, nil, dayStart)
	if err != nil {
		return nil, fmt.Errorf("sum today's settlements: %w", err)
	}
	if todayTotal+amountMinorUnits > s.config.DailyCapMinorUnits {
		return &svcports.LimitDecision{
			Allowed: false,
			Reason: fmt.Sprintf("daily settlement cap reached: %d + %d > %d",
				todayTotal, amountMinorUnits, s.config.DailyCapMinorUnits),
		}, nil
	}

	return &svcports.LimitDecision{Allowed: true}, nil
}

// RequestSplit checks limits, persists a processing attempt under a
// fresh idempotency key, and submits the split order. The attempt is
// written before the network call so a crash leaves a pollable record.
func (s *Service) RequestSplit(ctx context.Context, req svcports.SplitSettlementRequest) (*models.SettlementAttempt, error) {
	if req.AmountMinorUnits <= 0 {
		return nil, domain.NewDomainError(domain.ErrorCodeValidationAmount, "settlement amount must be positive").
			WithDetail("commission_id", req.CommissionID)
	}

	decision, err := s.CheckLimits(ctx, req.AmountMinorUnits, req.OrderAmount)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, domain.NewDomainError(domain.ErrorCodeLimitExceeded, decision.Reason).
			WithDetail("commission_id", req.CommissionID)
	}

	now := s.now()
	attempt := &models.SettlementAttempt{
		CommissionID:     req.CommissionID,
		TransactionID:    req.TransactionID,
		OutOrderNo:       NewOutOrderNo(now),
		AmountMinorUnits: req.AmountMinorUnits,
		Status:           models.AttemptProcessing,
		RequestTime:      now,
	}
	if err := s.attemptRepo.Create(ctx, nil, attempt); err != nil {
		return nil, err
	}

	result, err := s.gateway.RequestSplit(ctx, ports.SplitRequest{
		TransactionID: req.TransactionID,
		OutOrderNo:    attempt.OutOrderNo,
		Receivers: []ports.SplitReceiver{{
			Identity:         req.PayoutIdentity,
			AmountMinorUnits: req.AmountMinorUnits,
			Description:      req.Description,
		}},
		UnfreezeRemaining: true,
	})
	if err != nil {
		if domain.IsDomainError(err, domain.ErrorCodeProviderRejected) {
			// The provider refused the order outright; the attempt and
			// its commission are both dead.
			if failErr := s.failAttempt(ctx, attempt, err.Error()); failErr != nil {
				s.logger.Error("failed to record rejected attempt",
					ports.String("out_order_no", attempt.OutOrderNo),
					ports.Err(failErr))
			}
			observability.RecordSettlementAttempt("rejected", req.AmountMinorUnits)
			return nil, err
		}

		// Submission outcome unknown. The attempt stays processing;
		// the reconcile poll resolves it either way through the
		// order-not-found probe.
		s.logger.Warn("split submission outcome unknown, left for reconcile",
			ports.String("out_order_no", attempt.OutOrderNo),
			ports.String("commission_id", req.CommissionID),
			ports.Err(err))
		observability.RecordSettlementAttempt("unknown", req.AmountMinorUnits)
		return attempt, nil
	}

	if _, err := s.attemptRepo.UpdateStatus(ctx, nil, attempt.ID,
		models.AttemptProcessing, models.AttemptProcessing, result.ProviderOrderID, "", nil); err != nil {
		s.logger.Warn("failed to record provider order id",
			ports.String("out_order_no", attempt.OutOrderNo),
			ports.Err(err))
	}
	attempt.ProviderOrderID = result.ProviderOrderID

	s.logger.Info("split order submitted",
		ports.String("out_order_no", attempt.OutOrderNo),
		ports.String("commission_id", req.CommissionID),
		ports.Int64("amount_minor_units", req.AmountMinorUnits),
		ports.String("provider_order_id", result.ProviderOrderID))
	observability.RecordSettlementAttempt("submitted", req.AmountMinorUnits)
	return attempt, nil
}

// QueryStatus polls one split order and maps the provider state onto
// an attempt status
func (s *Service) QueryStatus(ctx context.Context, outOrderNo, transactionID string) (*svcports.SplitProbe, error) {
	status, err := s.gateway.QuerySplit(ctx, outOrderNo, transactionID)
	if err != nil {
		return nil, fmt.Errorf("query split status: %w", err)
	}

	switch status.State {
	case ports.SplitFinished:
		return &svcports.SplitProbe{Status: models.AttemptSuccess, ProviderOrderID: status.ProviderOrderID}, nil
	case ports.SplitProcessing:
		return &svcports.SplitProbe{Status: models.AttemptProcessing, ProviderOrderID: status.ProviderOrderID}, nil
	default:
		return &svcports.SplitProbe{
			Status:          models.AttemptFailed,
			ProviderOrderID: status.ProviderOrderID,
			FailReason:      status.FailReason,
		}, nil
	}
}

// ReconcilePending force-fails attempts whose retry or wall-clock
// budget ran out, then polls every remaining processing attempt and
// converges attempt and commission state.
func (s *Service) ReconcilePending(ctx context.Context) (*svcports.ReconcileResult, error) {
	attempts, err := s.attemptRepo.ListProcessing(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("list processing attempts: %w", err)
	}

	result := &svcports.ReconcileResult{Polled: len(attempts)}
	now := s.now()

	for _, attempt := range attempts {
		if attempt.RetryCount >= s.config.MaxRetries || now.Sub(attempt.RequestTime) > s.config.MaxAttemptAge {
			reason := fmt.Sprintf("gave up after %d polls over %s", attempt.RetryCount, now.Sub(attempt.RequestTime).Round(time.Minute))
			if err := s.failAttempt(ctx, attempt, reason); err != nil {
				s.logger.Error("failed to force-fail stuck attempt",
					ports.String("out_order_no", attempt.OutOrderNo),
					ports.Err(err))
				continue
			}
			result.ForcedFailed++
			result.TouchedAgentIDs = s.appendTouchedAgent(ctx, result.TouchedAgentIDs, attempt.CommissionID)
			continue
		}

		probe, err := s.QueryStatus(ctx, attempt.OutOrderNo, attempt.TransactionID)
		if err != nil {
			// Transient; leave the attempt for the next pass
			s.logger.Warn("split status poll failed",
				ports.String("out_order_no", attempt.OutOrderNo),
				ports.Err(err))
			continue
		}

		switch probe.Status {
		case models.AttemptSuccess:
			if err := s.settleAttempt(ctx, attempt, probe.ProviderOrderID); err != nil {
				s.logger.Error("failed to settle attempt",
					ports.String("out_order_no", attempt.OutOrderNo),
					ports.Err(err))
				continue
			}
			result.Settled++
			result.TouchedAgentIDs = s.appendTouchedAgent(ctx, result.TouchedAgentIDs, attempt.CommissionID)

		case models.AttemptFailed:
			if err := s.failAttempt(ctx, attempt, probe.FailReason); err != nil {
				s.logger.Error("failed to record failed attempt",
					ports.String("out_order_no", attempt.OutOrderNo),
					ports.Err(err))
				continue
			}
			result.Failed++
			result.TouchedAgentIDs = s.appendTouchedAgent(ctx, result.TouchedAgentIDs, attempt.CommissionID)

		default:
			if err := s.attemptRepo.IncrementRetry(ctx, nil, attempt.ID); err != nil {
				s.logger.Warn("failed to bump attempt retry count",
					ports.String("out_order_no", attempt.OutOrderNo),
					ports.Err(err))
			}
			result.StillProcessing++
		}
	}

	s.logger.Info("reconcile pass finished",
		ports.Int("polled", result.Polled),
		ports.Int("settled", result.Settled),
		ports.Int("failed", result.Failed),
		ports.Int("still_processing", result.StillProcessing),
		ports.Int("forced_failed", result.ForcedFailed))
	return result, nil
}

// settleAttempt marks the attempt success and its commission settled
// in one transaction. Both writes are compare-and-set; losing either
// race means another pass already converged the pair.
func (s *Service) settleAttempt(ctx context.Context, attempt *models.SettlementAttempt, providerOrderID string) error {
	now := s.now()
	return s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		moved, err := s.attemptRepo.UpdateStatus(ctx, tx, attempt.ID,
			models.AttemptProcessing, models.AttemptSuccess, providerOrderID, "", &now)
		if err != nil {
			return err
		}
		if !moved {
			s.logger.Debug("attempt settle race lost, skipping",
				ports.String("out_order_no", attempt.OutOrderNo))
			return nil
		}

		settled, err := s.commissionRepo.UpdateStatus(ctx, tx, attempt.CommissionID,
			models.CommissionPending, models.CommissionSettled, "", &now)
		if err != nil {
			return err
		}
		if !settled {
			s.logger.Debug("commission settle race lost, skipping",
				ports.String("commission_id", attempt.CommissionID))
		}

		s.logger.Info("settlement confirmed",
			ports.String("out_order_no", attempt.OutOrderNo),
			ports.String("commission_id", attempt.CommissionID),
			ports.Int64("amount_minor_units", attempt.AmountMinorUnits))
		observability.RecordSettlementConfirmation("success", now.Sub(attempt.RequestTime).Seconds())
		return nil
	})
}

// failAttempt marks the attempt failed and cancels its commission in
// one transaction
func (s *Service) failAttempt(ctx context.Context, attempt *models.SettlementAttempt, reason string) error {
	now := s.now()
	return s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		moved, err := s.attemptRepo.UpdateStatus(ctx, tx, attempt.ID,
			models.AttemptProcessing, models.AttemptFailed, "", reason, &now)
		if err != nil {
			return err
		}
		if !moved {
			s.logger.Debug("attempt fail race lost, skipping",
				ports.String("out_order_no", attempt.OutOrderNo))
			return nil
		}

		cancelled, err := s.commissionRepo.UpdateStatus(ctx, tx, attempt.CommissionID,
			models.CommissionPending, models.CommissionCancelled, reason, nil)
		if err != nil {
			return err
		}
		if !cancelled {
			s.logger.Debug("commission cancel race lost, skipping",
				ports.String("commission_id", attempt.CommissionID))
		}

		s.logger.Warn("settlement failed",
			ports.String("out_order_no", attempt.OutOrderNo),
			ports.String("commission_id", attempt.CommissionID),
			ports.String("reason", reason))
		observability.RecordSettlementConfirmation("failed", now.Sub(attempt.RequestTime).Seconds())
		return nil
	})
}

func (s *Service) appendTouchedAgent(ctx context.Context, ids []int64, commissionID string) []int64 {
	rec, err := s.commissionRepo.GetByID(ctx, nil, commissionID)
	if err != nil {
		s.logger.Warn("failed to resolve commission owner",
			ports.String("commission_id", commissionID),
			ports.Err(err))
		return ids
	}
	for _, id := range ids {
		if id == rec.AgentID {
			return ids
		}
	}
	return append(ids, rec.AgentID)
}
