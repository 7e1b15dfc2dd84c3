package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	shutdownDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "shutdown_duration_seconds",
		Help:    "Total time taken to shutdown gracefully",
		Buckets: []float64{1, 5, 10, 15, 20, 25, 30},
	})

	shutdownErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shutdown_errors_total",
		Help: "Total number of shutdown errors by component",
	}, []string{"component"})
)

// ShutdownFunc represents a function that shuts down a component
type ShutdownFunc func(context.Context) error

// Component represents a registered shutdown component
type Component struct {
	Name         string
	ShutdownFunc ShutdownFunc
}

// Manager coordinates graceful shutdown of all service components.
// Components shut down in REVERSE registration order (LIFO), so the
// sweep scheduler stops before the HTTP servers and the database pool
// closes last.
type Manager struct {
	logger     *zap.Logger
	components []Component
	mu         sync.Mutex
	timeout    time.Duration
}

// NewManager creates a new shutdown manager
func NewManager(logger *zap.Logger, timeout time.Duration) *Manager {
	return &Manager{
		logger:     logger,
		components: make([]Component, 0),
		timeout:    timeout,
	}
}

// Register adds a shutdown function to be called during graceful
// shutdown. Components are shut down in REVERSE order of registration.
func (sm *Manager) Register(name string, fn ShutdownFunc) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.components = append(sm.components, Component{
		Name:         name,
		ShutdownFunc: fn,
	})

	sm.logger.Debug("Registered shutdown component",
		zap.String("component", name),
		zap.Int("registration_order", len(sm.components)),
	)
}

// WaitForShutdown blocks until SIGINT or SIGTERM, then executes
// graceful shutdown of all registered components
func (sm *Manager) WaitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	sm.logger.Info("Received shutdown signal - initiating graceful shutdown",
		zap.String("signal", sig.String()),
		zap.Duration("timeout", sm.timeout),
	)

	sm.Shutdown()
}

// Shutdown performs graceful shutdown of all registered components
func (sm *Manager) Shutdown() {
	shutdownStart := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), sm.timeout)
	defer cancel()

	sm.mu.Lock()
	components := make([]Component, len(sm.components))
	copy(components, sm.components)
	sm.mu.Unlock()

	sm.logger.Info("Starting graceful shutdown",
		zap.Int("component_count", len(components)),
	)

	errorCount := 0
	for i := len(components) - 1; i >= 0; i-- {
		component := components[i]
		start := time.Now()

		if err := component.ShutdownFunc(ctx); err != nil {
			errorCount++
			shutdownErrors.WithLabelValues(component.Name).Inc()
			sm.logger.Error("Component shutdown failed",
				zap.String("component", component.Name),
				zap.Error(err),
				zap.Duration("elapsed", time.Since(start)),
			)
			continue
		}

		sm.logger.Info("Component shut down",
			zap.String("component", component.Name),
			zap.Duration("elapsed", time.Since(start)),
		)
	}

	elapsed := time.Since(shutdownStart)
	shutdownDuration.Observe(elapsed.Seconds())

	if errorCount > 0 {
		sm.logger.Error("Graceful shutdown completed with errors",
			zap.Int("error_count", errorCount),
			zap.Duration("elapsed", elapsed),
		)
		return
	}
	sm.logger.Info("Graceful shutdown completed successfully",
		zap.Duration("elapsed", elapsed),
	)
}
