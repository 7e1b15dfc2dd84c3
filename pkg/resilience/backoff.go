package resilience

import (
	"math"
	"math/rand"
	"time"
)

// BackoffStrategy computes the wait before a retry attempt
type BackoffStrategy interface {
	NextDelay(attempt int) time.Duration
}

// ExponentialBackoff doubles (by Multiplier) the delay each attempt
// and spreads concurrent retriers with random jitter so a provider
// outage does not end in a synchronized stampede when it recovers.
type ExponentialBackoff struct {
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
	Jitter     float64 // fraction of the delay, 0.1 means +/-10%
}

// DefaultExponentialBackoff is tuned for split-payment provider calls:
// 100ms, 200ms, 400ms, ... capped at 30s, +/-10% jitter.
func DefaultExponentialBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   30 * time.Second,
		Multiplier: 2.0,
		Jitter:     0.1,
	}
}

// NextDelay returns BaseDelay * Multiplier^attempt, capped at MaxDelay,
// with jitter applied. attempt is 0-indexed; negative attempts get the
// base delay.
func (eb *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt < 0 {
		return eb.BaseDelay
	}

	delay := math.Min(
		float64(eb.BaseDelay)*math.Pow(eb.Multiplier, float64(attempt)),
		float64(eb.MaxDelay),
	)

	spread := (rand.Float64()*2 - 1) * delay * eb.Jitter
	result := time.Duration(delay + spread)
	if result < 0 {
		return eb.BaseDelay
	}
	return result
}

// FixedBackoff waits the same duration between every attempt
type FixedBackoff struct {
	Delay time.Duration
}

func (fb *FixedBackoff) NextDelay(attempt int) time.Duration {
	return fb.Delay
}
