// Package resilience collects the bounded-concurrency and failure-recovery
// primitives effect handlers invoke (spec §4.9): retry with exponential
// backoff, bulkhead (bounded concurrency), and graceful shutdown.
//
// Retry is grounded on original_source's runtime/src/retry.rs RetryPolicy
// (max_retries/initial_delay/max_delay/multiplier, promoted here onto
// github.com/cenkalti/backoff/v4 — a dependency the teacher already pulls
// in transitively through testcontainers-go but never imports from
// application code; here it becomes a direct, deliberately-used
// dependency, see DESIGN.md).
package resilience

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy configures exponential backoff retry (spec §4.9). Delay for
// attempt k is min(InitialDelay * Multiplier^k, MaxDelay).
type RetryPolicy struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64

	// Retryable classifies an error as retryable. A nil Retryable treats
	// every error as retryable. Returning false stops the retry loop
	// immediately and surfaces the error as-is.
	Retryable func(error) bool
}

// DefaultRetryPolicy matches original_source's RetryPolicy::default(): 3
// retries, 100ms initial delay, 30s cap, doubling multiplier.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:   3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

func (p RetryPolicy) backoffPolicy() backoff.BackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     p.InitialDelay,
		RandomizationFactor: 0,
		Multiplier:          p.Multiplier,
		MaxInterval:         p.MaxDelay,
		MaxElapsedTime:      0, // bounded by MaxRetries via WithMaxRetries below, not elapsed time
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	return backoff.WithMaxRetries(b, uint64(p.MaxRetries))
}

// classify wraps an error that Retryable rejects in backoff.Permanent, which
// signals backoff.Retry to stop immediately — kept local so
// RetryPolicy.Retryable can classify arbitrary errors without requiring
// callers to import cenkalti/backoff directly.
func (p RetryPolicy) classify(err error) error {
	if err == nil {
		return nil
	}
	if p.Retryable != nil && !p.Retryable(err) {
		return backoff.Permanent(err)
	}
	return err
}

// Retry reruns op until it succeeds, op returns a non-retryable error, or
// MaxRetries is exceeded, waiting between attempts per the exponential
// backoff schedule above. The last error is returned on exhaustion (spec
// §4.9, §8 testable property 7).
func Retry(ctx context.Context, policy RetryPolicy, op func(ctx context.Context) error) error {
	wrapped := func() error {
		return policy.classify(op(ctx))
	}
	return backoff.Retry(wrapped, backoff.WithContext(policy.backoffPolicy(), ctx))
}

// RetryValue is Retry for operations that also produce a value on success.
func RetryValue[T any](ctx context.Context, policy RetryPolicy, op func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := Retry(ctx, policy, func(ctx context.Context) error {
		v, err := op(ctx)
		if err == nil {
			result = v
		}
		return err
	})
	return result, err
}
