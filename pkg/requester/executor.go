package requester

import (
	"context"
	"errors"
	"time"

	errs "skeeterdeleter/pkg/errors"
	"skeeterdeleter/pkg/logger"
	"skeeterdeleter/pkg/ratelimit"
	"skeeterdeleter/pkg/retry"
)

// DefaultMaxAttempts bounds the tries of a single request
const DefaultMaxAttempts = 3

// Options configures an Executor
type Options struct {
	Gate        *ratelimit.Gate
	Clock       ratelimit.Clock
	MaxAttempts int
	Backoff     retry.BackoffStrategy
	Logger      logger.Logger
}

// Executor runs every outbound request through the shared gate and the retry
// policy, and classifies the outcome.
type Executor struct {
	gate        *ratelimit.Gate
	clock       ratelimit.Clock
	maxAttempts int
	backoff     retry.BackoffStrategy
	logger      logger.Logger
}

// New creates an Executor. Missing options get defaults: a 750ms gate on the
// wall clock, three attempts and exponential backoff.
func New(opts Options) *Executor {
	if opts.Clock == nil {
		opts.Clock = ratelimit.SystemClock{}
	}
	if opts.Gate == nil {
		opts.Gate = ratelimit.NewGate(ratelimit.DefaultInterval, opts.Clock)
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Backoff == nil {
		opts.Backoff = retry.DefaultExponentialBackoff()
	}
	if opts.Logger == nil {
		opts.Logger = logger.GetLogger()
	}

	return &Executor{
		gate:        opts.Gate,
		clock:       opts.Clock,
		maxAttempts: opts.MaxAttempts,
		backoff:     opts.Backoff,
		logger:      opts.Logger,
	}
}

// Do executes fn for the named operation. Each attempt waits at the gate
// first. The returned error is nil, a context error, or an *errors.Failure
// whose Kind tells the caller how to react.
func (e *Executor) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	err := retry.Do(func(attempt int) error {
		if err := e.admit(ctx, op, attempt); err != nil {
			return err
		}
		return fn(ctx)
	}, e.retryConfig(ctx, op))
	return classify(err)
}

// Call is Do for operations that produce a value
func Call[T any](ctx context.Context, e *Executor, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	result, err := retry.DoWithResult(func(attempt int) (T, error) {
		if err := e.admit(ctx, op, attempt); err != nil {
			var zero T
			return zero, err
		}
		return fn(ctx)
	}, e.retryConfig(ctx, op))
	return result, classify(err)
}

func (e *Executor) admit(ctx context.Context, op string, attempt int) error {
	if err := e.gate.Wait(ctx); err != nil {
		return err
	}
	e.logger.DebugWithFields("Sending request", map[string]interface{}{
		"op":      op,
		"attempt": attempt,
	})
	return nil
}

func (e *Executor) retryConfig(ctx context.Context, op string) *retry.Config {
	return &retry.Config{
		MaxAttempts: e.maxAttempts,
		Backoff:     e.backoff,
		RetryIf:     retry.DefaultRetryIf,
		Sleep:       e.clock.Sleep,
		Context:     ctx,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			e.logger.WithError(err).DebugWithFields("Transient failure", map[string]interface{}{
				"op":      op,
				"attempt": attempt,
			})
			logger.LogRateLimit(op, attempt, delay)
		},
	}
}

// classify turns a retry outcome into the failure taxonomy
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var exhausted *retry.ExhaustedError
	if errors.As(err, &exhausted) {
		return errs.NewFailure(errs.TransientFailure, exhausted.Attempts, exhausted.Err)
	}
	if errs.IsType(err, errs.ErrorTypeNotFound) {
		return errs.NewFailure(errs.ItemActionFailure, 1, err)
	}
	return errs.NewFailure(errs.FatalFailure, 1, err)
}

// Gate exposes the shared gate
func (e *Executor) Gate() *ratelimit.Gate {
	return e.gate
}
