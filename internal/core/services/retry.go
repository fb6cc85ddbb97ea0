package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/custodia-labs/docchat-core/internal/core/domain"
)

// callWithRetry runs fn with a per-attempt timeout, retrying up to
// policy.MaxRetries times with exponential backoff. A zero Timeout passes ctx
// through unchanged so fn may return resources bound to it.
// It returns the number of attempts made alongside the result.
func callWithRetry[T any](
	ctx context.Context,
	policy domain.RetryPolicy,
	logger *slog.Logger,
	stage string,
	fn func(ctx context.Context) (T, error),
) (T, int, error) {
	attempts := 0

	op := func() (T, error) {
		attempts++
		attemptCtx := ctx
		if policy.Timeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, policy.Timeout)
			defer cancel()
		}

		result, err := fn(attemptCtx)
		if err == nil {
			return result, nil
		}
		if !retryable(ctx, err) {
			return result, backoff.Permanent(err)
		}
		return result, err
	}

	result, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(newBackOff(policy)),
		backoff.WithMaxTries(uint(policy.Attempts())),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, wait time.Duration) {
			logger.Warn("retrying call",
				"stage", stage,
				"attempt", attempts,
				"wait", wait,
				"error", err,
			)
		}),
	)
	return result, attempts, err
}

// retryable reports whether an attempt error is worth another try.
// Caller cancellation and invalid input are final.
func retryable(parent context.Context, err error) bool {
	if parent.Err() != nil {
		return false
	}
	if errors.Is(err, domain.ErrInvalidInput) || errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

func newBackOff(policy domain.RetryPolicy) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if policy.InitialBackoff > 0 {
		b.InitialInterval = policy.InitialBackoff
	}
	b.MaxInterval = 10 * time.Second
	return b
}
