package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	adapterports "github.com/kevin07696/commission-service/internal/adapters/ports"
	"github.com/kevin07696/commission-service/internal/adapters/postgres"
	"github.com/kevin07696/commission-service/internal/adapters/secrets"
	"github.com/kevin07696/commission-service/internal/adapters/wxpay"
	"github.com/kevin07696/commission-service/internal/config"
	cronHandler "github.com/kevin07696/commission-service/internal/handlers/cron"
	"github.com/kevin07696/commission-service/internal/services/driver"
	"github.com/kevin07696/commission-service/internal/services/ledger"
	"github.com/kevin07696/commission-service/internal/services/reconciler"
	"github.com/kevin07696/commission-service/internal/services/registry"
	"github.com/kevin07696/commission-service/pkg/logging"
	"github.com/kevin07696/commission-service/pkg/middleware"
	"github.com/kevin07696/commission-service/pkg/observability"
	"github.com/kevin07696/commission-service/pkg/shutdown"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logger)
	defer logger.Sync()

	logger.Info("Starting commission service",
		zap.String("version", "0.1.0"),
	)

	location, err := cfg.Settlement.Location()
	if err != nil {
		logger.Fatal("Failed to load settlement timezone", zap.Error(err))
	}

	// Database connection pool
	dbPool, err := initDatabase(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}

	logger.Info("Database connection established",
		zap.String("database", cfg.Database.Database),
	)

	db := postgres.NewDBExecutor(dbPool)
	agentRepo := postgres.NewAgentRepository(db)
	commissionRepo := postgres.NewCommissionRepository(db)
	attemptRepo := postgres.NewAttemptRepository(db)
	auditRepo := postgres.NewAuditLogRepository(db)
	orderReader := postgres.NewOrderReader(db)

	// Provider credentials come from the secret manager unless set
	// directly in the environment
	apiKey := cfg.Provider.APIKey
	if cfg.Provider.APIKeyPath != "" {
		secretManager, err := initSecretManager(cfg, logger)
		if err != nil {
			logger.Fatal("Failed to initialize secret manager", zap.Error(err))
		}
		secret, err := secretManager.GetSecret(context.Background(), cfg.Provider.APIKeyPath)
		if err != nil {
			logger.Fatal("Failed to resolve provider API key", zap.Error(err))
		}
		apiKey = secret.Value
	}

	gateway := wxpay.NewGateway(&wxpay.Config{
		BaseURL:    cfg.Provider.BaseURL,
		MerchantID: cfg.Provider.MerchantID,
		APIKey:     apiKey,
		Timeout:    time.Duration(cfg.Provider.Timeout) * time.Second,
		MaxRetries: cfg.Provider.MaxRetries,
	}, logger.Named("wxpay"))

	svcLogger := logging.NewZapLogger(logger)

	reconcilerService := reconciler.NewService(db, commissionRepo, attemptRepo, gateway, reconciler.Config{
		MaxShareRate:       decimal.NewFromFloat(cfg.Settlement.MaxShareRate),
		DailyCapMinorUnits: cfg.Settlement.DailyCapMinorUnits,
		MaxRetries:         cfg.Settlement.MaxRetries,
		MaxAttemptAge:      time.Duration(cfg.Settlement.MaxAttemptAgeHours) * time.Hour,
		Location:           location,
	}, svcLogger)

	ledgerService := ledger.NewService(db, agentRepo, commissionRepo, location, svcLogger)

	registryService := registry.NewService(db, agentRepo, commissionRepo, auditRepo, reconcilerService, registry.Config{
		DefaultRate:           decimal.NewFromFloat(cfg.Settlement.DefaultAgentRate),
		HourlyRecordThreshold: cfg.Anomaly.HourlyRecordThreshold,
		DailyAmountThreshold:  decimal.NewFromFloat(cfg.Anomaly.DailyAmountThreshold),
		MinInvitedUsers:       cfg.Anomaly.MinInvitedUsers,
		MinPaidUsers:          cfg.Anomaly.MinPaidUsers,
		MaxConversionRatio:    cfg.Anomaly.MaxConversionRatio,
		Location:              location,
	}, svcLogger)

	driverService := driver.NewService(ledgerService, reconcilerService, registryService, orderReader, svcLogger)

	scheduler := driver.NewScheduler(driverService, driver.SchedulerConfig{
		DailyHour:         cfg.Settlement.DailyHour,
		ReconcileInterval: time.Duration(cfg.Settlement.ReconcileIntervalMinutes) * time.Minute,
		AnomalyInterval:   time.Duration(cfg.Settlement.AnomalyIntervalHours) * time.Hour,
		Location:          location,
	}, svcLogger)

	// Cron endpoints, rate limited per client
	rateLimiter := middleware.NewRateLimiter(1, 5)
	settlementHandler := cronHandler.NewSettlementHandler(driverService, logger.Named("cron"), cfg.Server.CronSecret, location)

	mux := http.NewServeMux()
	mux.HandleFunc("/cron/run-settlement", rateLimiter.HTTPHandlerFunc(settlementHandler.RunSettlement))
	mux.HandleFunc("/cron/run-reconcile", rateLimiter.HTTPHandlerFunc(settlementHandler.RunReconcile))
	mux.HandleFunc("/cron/run-anomaly-sweep", rateLimiter.HTTPHandlerFunc(settlementHandler.RunAnomalySweep))
	mux.HandleFunc("/cron/health", settlementHandler.HealthCheck)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Minute, // sweeps can run long
		IdleTimeout:  60 * time.Second,
	}

	healthChecker := observability.NewHealthChecker(dbPool)
	metricsServer := observability.StartMetricsServer(fmt.Sprintf("%d", cfg.Server.MetricsPort), healthChecker)

	// Shutdown order (reverse of registration): scheduler first, then
	// the HTTP servers, the rate limiter, and the pool last.
	shutdownManager := shutdown.NewManager(logger, 30*time.Second)
	shutdownManager.Register("database", func(ctx context.Context) error {
		dbPool.Close()
		return nil
	})
	shutdownManager.Register("rate_limiter", func(ctx context.Context) error {
		rateLimiter.Shutdown()
		return nil
	})
	shutdownManager.Register("metrics_server", func(ctx context.Context) error {
		return observability.ShutdownMetricsServer(metricsServer)
	})
	shutdownManager.Register("http_server", func(ctx context.Context) error {
		return httpServer.Shutdown(ctx)
	})
	shutdownManager.Register("scheduler", scheduler.Stop)

	go func() {
		logger.Info("Cron server listening",
			zap.String("addr", httpServer.Addr),
		)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	scheduler.Start()

	shutdownManager.WaitForShutdown()
}

func initLogger(cfg config.LoggerConfig) *zap.Logger {
	var zapCfg zap.Config
	if cfg.Development {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	if level, err := zapcore.ParseLevel(cfg.Level); err == nil {
		zapCfg.Level = zap.NewAtomicLevelAt(level)
	}

	logger, err := zapCfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

func initDatabase(cfg *config.Config, logger *zap.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.Database.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolCfg.MaxConns = cfg.Database.MaxConns
	poolCfg.MinConns = cfg.Database.MinConns

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

func initSecretManager(cfg *config.Config, logger *zap.Logger) (adapterports.SecretManagerAdapter, error) {
	switch cfg.Secrets.Backend {
	case "aws":
		return secrets.NewAWSSecretsManagerAdapter(context.Background(),
			secrets.DefaultAWSSecretsManagerConfig(cfg.Secrets.AWSRegion), logger.Named("secrets"))
	default:
		return secrets.NewLocalSecretManager(cfg.Secrets.LocalPath, logger.Named("secrets")), nil
	}
}
