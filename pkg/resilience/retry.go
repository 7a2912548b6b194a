// Package resilience provides the backoff, circuit-breaking, and
// rate-limiting primitives used to guard the task executor's connection to
// the master from a flaky network without blocking the hot path.
package resilience

import (
	"context"
	"math/rand"
	"time"

	"go.opentelemetry.io/otel"
)

// Retry runs fn with exponential backoff and full jitter, up to attempts
// tries. delay is the initial backoff; it doubles each retry, capped at 60s.
func Retry[T any](ctx context.Context, attempts int, delay time.Duration, fn func() (T, error)) (T, error) {
	var zero T
	if attempts <= 0 {
		return zero, nil
	}

	cur := delay
	var lastErr error
	meter := otel.Meter("taskexecutor-resilience")
	attemptCounter, _ := meter.Int64Counter("taskexec_retry_attempts_total")
	successCounter, _ := meter.Int64Counter("taskexec_retry_success_total")
	failCounter, _ := meter.Int64Counter("taskexec_retry_fail_total")

	for i := 0; i < attempts; i++ {
		v, err := fn()
		attemptCounter.Add(ctx, 1)
		if err == nil {
			successCounter.Add(ctx, 1)
			return v, nil
		}
		lastErr = err
		if i == attempts-1 {
			break
		}
		if cur > 60*time.Second {
			cur = 60 * time.Second
		}
		sleep := time.Duration(rand.Int63n(int64(cur) + 1))
		select {
		case <-ctx.Done():
			failCounter.Add(ctx, 1)
			return zero, ctx.Err()
		case <-time.After(sleep):
		}
		cur *= 2
	}
	failCounter.Add(ctx, 1)
	return zero, lastErr
}
