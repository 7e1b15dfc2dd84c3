package wxpay

import (
	"errors"
	"testing"
	"time"
)

func TestCircuitBreaker_InitialState(t *testing.T) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig())

	if cb.State() != StateClosed {
		t.Errorf("expected initial state closed, got %s", cb.State())
	}
}

func TestCircuitBreaker_SuccessKeepsClosed(t *testing.T) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig())

	for i := 0; i < 10; i++ {
		err := cb.Call(func() error { return nil })
		if err != nil {
			t.Errorf("call %d: unexpected error: %v", i, err)
		}
	}

	if cb.State() != StateClosed {
		t.Errorf("expected state closed after successes, got %s", cb.State())
	}
}

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		MaxFailures:         3,
		Timeout:             time.Minute,
		MaxRequestsHalfOpen: 1,
	})

	callErr := errors.New("provider down")

	for i := 0; i < 3; i++ {
		if err := cb.Call(func() error { return callErr }); !errors.Is(err, callErr) {
			t.Errorf("call %d: expected provider error, got %v", i, err)
		}
	}

	if cb.State() != StateOpen {
		t.Fatalf("expected state open after %d failures, got %s", 3, cb.State())
	}

	// Open circuit rejects without executing the function
	executed := false
	err := cb.Call(func() error {
		executed = true
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
	if executed {
		t.Error("function should not execute while circuit is open")
	}
}

func TestCircuitBreaker_FailuresBelowThresholdStayClosed(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		MaxFailures:         3,
		Timeout:             time.Minute,
		MaxRequestsHalfOpen: 1,
	})

	callErr := errors.New("transient")

	cb.Call(func() error { return callErr })
	cb.Call(func() error { return callErr })

	if cb.State() != StateClosed {
		t.Errorf("expected state closed below failure threshold, got %s", cb.State())
	}

	// A success resets the failure count
	cb.Call(func() error { return nil })
	cb.Call(func() error { return callErr })
	cb.Call(func() error { return callErr })

	if cb.State() != StateClosed {
		t.Errorf("expected success to reset failure count, got state %s", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenProbeCloses(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		MaxFailures:         1,
		Timeout:             10 * time.Millisecond,
		MaxRequestsHalfOpen: 1,
	})

	cb.Call(func() error { return errors.New("fail") })
	if cb.State() != StateOpen {
		t.Fatalf("expected state open, got %s", cb.State())
	}

	time.Sleep(20 * time.Millisecond)

	// First call after the timeout is the probe; success closes the circuit
	if err := cb.Call(func() error { return nil }); err != nil {
		t.Errorf("expected probe to execute, got %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("expected state closed after successful probe, got %s", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenProbeReopens(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		MaxFailures:         1,
		Timeout:             10 * time.Millisecond,
		MaxRequestsHalfOpen: 1,
	})

	cb.Call(func() error { return errors.New("fail") })
	time.Sleep(20 * time.Millisecond)

	callErr := errors.New("still down")
	if err := cb.Call(func() error { return callErr }); !errors.Is(err, callErr) {
		t.Errorf("expected probe to execute and fail, got %v", err)
	}

	if cb.State() != StateOpen {
		t.Errorf("expected failed probe to reopen circuit, got %s", cb.State())
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		MaxFailures:         1,
		Timeout:             time.Minute,
		MaxRequestsHalfOpen: 1,
	})

	cb.Call(func() error { return errors.New("fail") })
	if cb.State() != StateOpen {
		t.Fatalf("expected state open, got %s", cb.State())
	}

	cb.Reset()

	if cb.State() != StateClosed {
		t.Errorf("expected state closed after reset, got %s", cb.State())
	}
	if err := cb.Call(func() error { return nil }); err != nil {
		t.Errorf("unexpected error after reset: %v", err)
	}
}

func TestCircuitBreaker_DefaultConfig(t *testing.T) {
	cfg := DefaultCircuitBreakerConfig()

	if cfg.MaxFailures != 5 {
		t.Errorf("expected MaxFailures 5, got %d", cfg.MaxFailures)
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("expected Timeout 30s, got %v", cfg.Timeout)
	}
	if cfg.MaxRequestsHalfOpen != 1 {
		t.Errorf("expected MaxRequestsHalfOpen 1, got %d", cfg.MaxRequestsHalfOpen)
	}
}

func TestCircuitState_String(t *testing.T) {
	cases := []struct {
		state CircuitState
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{CircuitState(99), "unknown"},
	}

	for _, tc := range cases {
		if got := tc.state.String(); got != tc.want {
			t.Errorf("CircuitState(%d).String() = %q, want %q", tc.state, got, tc.want)
		}
	}
}
