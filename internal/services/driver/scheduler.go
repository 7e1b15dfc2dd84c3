package driver

import (
	"context"
	"sync"
	"time"

	"github.com/kevin07696/commission-service/internal/domain/ports"
	svcports "github.com/kevin07696/commission-service/internal/services/ports"
	"github.com/kevin07696/commission-service/pkg/timeutil"
)

// SchedulerConfig sets the sweep cadence
type SchedulerConfig struct {
	// DailyHour is the local hour (0-23) of the daily settlement sweep
	DailyHour int

	// ReconcileInterval is the gap between reconcile passes
	ReconcileInterval time.Duration

	// AnomalyInterval is the gap between anomaly sweeps
	AnomalyInterval time.Duration

	// Location is the business timezone
	Location *time.Location
}

// DefaultSchedulerConfig returns the production cadence: settlement at
// 01:00 local, reconcile hourly, anomaly sweep every 6 hours.
func DefaultSchedulerConfig(location *time.Location) SchedulerConfig {
	return SchedulerConfig{
		DailyHour:         1,
		ReconcileInterval: time.Hour,
		AnomalyInterval:   6 * time.Hour,
		Location:          location,
	}
}

// Scheduler runs the driver's sweeps on timers. One goroutine per job
// family; within a family runs never overlap.
type Scheduler struct {
	driver svcports.SettlementDriver
	config SchedulerConfig
	logger ports.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a new sweep scheduler
func NewScheduler(driver svcports.SettlementDriver, config SchedulerConfig, logger ports.Logger) *Scheduler {
	return &Scheduler{
		driver: driver,
		config: config,
		logger: logger,
	}
}

// Start launches the sweep goroutines
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(3)
	go s.runDaily(ctx)
	go s.runEvery(ctx, "reconcile", s.config.ReconcileInterval, func(ctx context.Context) {
		if _, err := s.driver.RunHourlyReconcile(ctx); err != nil {
			s.logger.Error("reconcile sweep failed", ports.Err(err))
		}
	})
	go s.runEvery(ctx, "anomaly", s.config.AnomalyInterval, func(ctx context.Context) {
		if _, err := s.driver.RunAnomalySweep(ctx); err != nil {
			s.logger.Error("anomaly sweep failed", ports.Err(err))
		}
	})

	s.logger.Info("sweep scheduler started",
		ports.Int("daily_hour", s.config.DailyHour),
		ports.String("reconcile_interval", s.config.ReconcileInterval.String()),
		ports.String("anomaly_interval", s.config.AnomalyInterval.String()))
}

// Stop cancels the sweep goroutines and waits for in-flight runs to
// finish or the context to expire
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("sweep scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) runDaily(ctx context.Context) {
	defer s.wg.Done()

	for {
		wait := s.untilNextDailyRun(time.Now())
		timer := time.NewTimer(wait)

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			asOf := time.Now().In(s.config.Location)
			if _, err := s.driver.RunDailySettlement(ctx, asOf); err != nil {
				s.logger.Error("daily settlement sweep failed", ports.Err(err))
			}
		}
	}
}

// untilNextDailyRun returns the wait until the next DailyHour o'clock
// in the business timezone
func (s *Scheduler) untilNextDailyRun(now time.Time) time.Duration {
	local := now.In(s.config.Location)
	next := timeutil.StartOfDay(local, s.config.Location).Add(time.Duration(s.config.DailyHour) * time.Hour)
	if !next.After(local) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(local)
}

func (s *Scheduler) runEvery(ctx context.Context, name string, interval time.Duration, run func(context.Context)) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.logger.Debug("sweep tick", ports.String("job", name))
			run(ctx)
		}
	}
}
