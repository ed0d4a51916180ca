// Package retry provides bounded retries with exponential backoff.
//
// Only errors that RetryIf reports as transient are retried. By default that
// means *errors.Error values of type network, rate_limit or server_error.
// Anything else is returned after the first attempt.
//
//	err := retry.Do(func(attempt int) error {
//		return client.DeleteRecord(ctx, uri)
//	}, &retry.Config{
//		MaxAttempts: 3,
//		Backoff:     retry.DefaultExponentialBackoff(),
//		Context:     ctx,
//	})
//
// When every attempt fails the result is an *ExhaustedError that wraps the
// last error and records how many attempts were made. Backoff waits go
// through Config.Sleep so callers can route them through their own clock.
package retry
