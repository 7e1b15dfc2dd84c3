package wxpay

import (
	"errors"
	"sync"
	"time"
)

// CircuitState is the breaker's position
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

var (
	// ErrCircuitOpen is returned while the breaker is rejecting calls
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrTooManyRequests is returned when the half-open probe slot is taken
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// CircuitBreakerConfig tunes the breaker
type CircuitBreakerConfig struct {
	// MaxFailures opens the circuit once this many consecutive
	// failures accumulate in the closed state
	MaxFailures uint32
	// Timeout is how long the circuit stays open before allowing a probe
	Timeout time.Duration
	// MaxRequestsHalfOpen bounds concurrent probes while half-open
	MaxRequestsHalfOpen uint32
}

func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		MaxFailures:         5,
		Timeout:             30 * time.Second,
		MaxRequestsHalfOpen: 1,
	}
}

// CircuitBreaker guards the split-payment provider endpoint. A run of
// failures opens the circuit so sweeps fail fast instead of stacking
// timeouts against a dead provider; after Timeout one probe is let
// through, and its outcome decides whether the circuit closes again.
type CircuitBreaker struct {
	mu            sync.RWMutex
	config        CircuitBreakerConfig
	state         CircuitState
	failures      uint32
	probesInUse   uint32
	lastStateMove time.Time
}

func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		config:        config,
		state:         StateClosed,
		lastStateMove: time.Now(),
	}
}

// Call runs fn when the circuit admits it and records the outcome
func (cb *CircuitBreaker) Call(fn func() error) error {
	if err := cb.admit(); err != nil {
		return err
	}

	err := fn()
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return nil

	case StateOpen:
		if time.Since(cb.lastStateMove) <= cb.config.Timeout {
			return ErrCircuitOpen
		}
		cb.moveTo(StateHalfOpen)
		cb.probesInUse++
		return nil

	case StateHalfOpen:
		if cb.probesInUse >= cb.config.MaxRequestsHalfOpen {
			return ErrTooManyRequests
		}
		cb.probesInUse++
		return nil
	}

	return ErrCircuitOpen
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		switch cb.state {
		case StateHalfOpen:
			cb.moveTo(StateClosed)
		case StateClosed:
			cb.failures = 0
		}
		return
	}

	cb.failures++
	switch cb.state {
	case StateClosed:
		if cb.failures >= cb.config.MaxFailures {
			cb.moveTo(StateOpen)
		}
	case StateHalfOpen:
		// A failed probe means the provider is still down
		cb.moveTo(StateOpen)
	}
}

func (cb *CircuitBreaker) moveTo(next CircuitState) {
	if cb.state == next {
		return
	}

	cb.state = next
	cb.lastStateMove = time.Now()
	cb.probesInUse = 0
	if next != StateOpen {
		cb.failures = 0
	}
}

// State reports the current position
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// Reset forces the circuit closed
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.failures = 0
	cb.probesInUse = 0
	cb.lastStateMove = time.Now()
}
