package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	errs "skeeterdeleter/pkg/errors"
)

// BackoffStrategy defines the interface for different backoff strategies
type BackoffStrategy interface {
	// NextDelay returns the delay after the given failed attempt (1-based)
	NextDelay(attempt int) time.Duration
}

// ErrorAwareBackoff is a BackoffStrategy that can also read the failure,
// for example to honor a server's retry hint
type ErrorAwareBackoff interface {
	BackoffStrategy
	DelayFor(attempt int, err error) time.Duration
}

// ExponentialBackoff implements exponential backoff with jitter
type ExponentialBackoff struct {
	// BaseDelay is the delay after the first failure
	BaseDelay time.Duration
	// MaxDelay caps every delay
	MaxDelay time.Duration
	// Multiplier is the factor by which delay increases
	Multiplier float64
	// JitterFactor adds randomness (0.0 to 1.0)
	JitterFactor float64
	// MaxHint caps a server supplied retry hint. Zero ignores hints.
	MaxHint time.Duration
}

// DefaultExponentialBackoff doubles from two seconds, capped at a minute
func DefaultExponentialBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		BaseDelay:    2 * time.Second,
		MaxDelay:     60 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
		MaxHint:      15 * time.Minute,
	}
}

// NextDelay returns BaseDelay * Multiplier^(attempt-1), capped and jittered
func (eb *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	delay := float64(eb.BaseDelay) * math.Pow(eb.Multiplier, float64(attempt-1))
	if eb.MaxDelay > 0 && delay > float64(eb.MaxDelay) {
		delay = float64(eb.MaxDelay)
	}

	if eb.JitterFactor > 0 {
		jitter := delay * eb.JitterFactor
		delay += (rand.Float64() * 2 * jitter) - jitter
	}

	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// DelayFor waits at least as long as the retry hint carried by err, up to
// MaxHint
func (eb *ExponentialBackoff) DelayFor(attempt int, err error) time.Duration {
	delay := eb.NextDelay(attempt)
	hint := errs.RetryAfterOf(err)
	if eb.MaxHint <= 0 || hint <= 0 {
		return delay
	}
	if hint > eb.MaxHint {
		hint = eb.MaxHint
	}
	if hint > delay {
		return hint
	}
	return delay
}

// Wait waits for the specified duration or until context is cancelled
func Wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
