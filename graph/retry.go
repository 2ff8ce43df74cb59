package graph

import (
	"context"
	"fmt"
	"time"
)

// RetryConfig configures automatic retry of a failing node function:
// bounded attempts, exponential backoff capped at MaxDelay, with a
// predicate deciding whether a given error is worth retrying at all.
type RetryConfig struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	BackoffFactor   float64
	RetryableErrors func(error) bool // nil means "retry everything"
}

// DefaultRetryConfig makes up to 3 attempts (2 retries) with a 100ms..5s
// exponential backoff.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
	}
}

// runWithRetry runs fn up to cfg.MaxAttempts times, sleeping with backoff
// between attempts, and calling onRetry before each retry (attempt is
// 1-based, the attempt number that just failed).
func runWithRetry[S any](ctx context.Context, cfg *RetryConfig, fn func(ctx context.Context) (S, error), onRetry func(attempt int, err error)) (S, error) {
	var zero S
	delay := cfg.InitialDelay
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return zero, fmt.Errorf("retry cancelled: %w", ctx.Err())
		default:
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if cfg.RetryableErrors != nil && !cfg.RetryableErrors(err) {
			return zero, fmt.Errorf("non-retryable error: %w", err)
		}

		if attempt == maxAttempts {
			break
		}
		if onRetry != nil {
			onRetry(attempt, err)
		}

		select {
		case <-time.After(delay):
			delay = time.Duration(float64(delay) * cfg.BackoffFactor)
			if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
				delay = cfg.MaxDelay
			}
		case <-ctx.Done():
			return zero, fmt.Errorf("retry cancelled during backoff: %w", ctx.Err())
		}
	}

	return zero, fmt.Errorf("max retries (%d) exceeded: %w", maxAttempts, lastErr)
}
