package unifiedllm

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy controls how transient provider failures are retried. Delays
// are in seconds and grow by BackoffMultiplier per attempt up to MaxDelay.
type RetryPolicy struct {
	MaxRetries        int
	BaseDelay         float64
	MaxDelay          float64
	BackoffMultiplier float64
	Jitter            bool // scale each delay by a random factor in [0.5, 1.5)

	// OnRetry is called before sleeping for the given 1-based retry attempt.
	OnRetry func(err error, attempt int, delay time.Duration)
}

// DefaultRetryPolicy returns the default transport retry policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:        2,
		BaseDelay:         1.0,
		MaxDelay:          60.0,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}
}

func seconds(s float64) time.Duration { return time.Duration(s * float64(time.Second)) }

// Delay returns the backoff before retry attempt n (0-indexed).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	s := math.Min(p.BaseDelay*math.Pow(p.BackoffMultiplier, float64(attempt)), p.MaxDelay)
	if p.Jitter {
		s *= 0.5 + rand.Float64()
	}
	return seconds(s)
}

// next decides whether err, returned by the call numbered attempt, earns
// another try and how long to wait first. A Retry-After beyond MaxDelay
// means the provider will not recover soon enough, so it ends the retries.
func (p RetryPolicy) next(err error, attempt int) (time.Duration, bool) {
	if attempt >= p.MaxRetries || !IsRetryable(err) {
		return 0, false
	}
	var rl *RateLimitError
	if errors.As(err, &rl) && rl.RetryAfter != nil {
		after := seconds(*rl.RetryAfter)
		if after > seconds(p.MaxDelay) {
			return 0, false
		}
		return after, true
	}
	return p.Delay(attempt), true
}

// Retry calls fn until it succeeds, fails with a non-retryable error or the
// policy runs out of attempts. The last error is returned unchanged.
func Retry[T any](ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	for attempt := 0; ; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		delay, ok := policy.next(err, attempt)
		if !ok {
			return zero, err
		}
		if policy.OnRetry != nil {
			policy.OnRetry(err, attempt+1, delay)
		}
		if err := sleep(ctx, delay); err != nil {
			return zero, &AbortError{SDKError: SDKError{Message: "request cancelled during retry", Cause: err}}
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
