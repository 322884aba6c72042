package router

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"strings"
	"time"
)

// RetryPolicy is an explicit, independently testable retry policy: bounded
// attempts, exponential backoff with jitter, and a classifier deciding which
// errors are worth retrying.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// BaseDelay is the delay before the second attempt. Each subsequent
	// attempt doubles it, capped at MaxDelay.
	BaseDelay time.Duration
	MaxDelay  time.Duration

	// Jitter is the fraction of the computed delay randomized on top of
	// it, in [0, 1]. 0.2 means up to 20% extra.
	Jitter float64

	// Retryable decides whether an error is transient. Nil means
	// DefaultRetryable.
	Retryable func(error) bool
}

// DefaultRetryPolicy returns 3 attempts with 500ms base delay, 10s cap and
// 20% jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
		Jitter:      0.2,
	}
}

// Delay returns the backoff delay before the given attempt (1-indexed;
// attempt 1 has no delay).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	d := p.BaseDelay
	for i := 2; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			d = p.MaxDelay
			break
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if p.Jitter > 0 {
		d += time.Duration(p.Jitter * rand.Float64() * float64(d))
	}
	return d
}

// retryable reports whether err should be retried under this policy.
func (p RetryPolicy) retryable(err error) bool {
	if p.Retryable != nil {
		return p.Retryable(err)
	}
	return DefaultRetryable(err)
}

// DefaultRetryable classifies transient failures: timeouts, connection level
// errors, rate limits, and 5xx responses. Context cancellation and other 4xx
// class errors fail immediately.
func DefaultRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"rate limit",
		"too many requests",
		"status code: 429",
		"status code: 500",
		"status code: 502",
		"status code: 503",
		"status code: 504",
		"internal server error",
		"service unavailable",
		"connection refused",
		"connection reset",
		"timeout",
		"overloaded",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// do runs fn with the policy's retry schedule. It returns the last error if
// all attempts fail, and the attempt count that produced the returned value.
func do[T any](ctx context.Context, p RetryPolicy, fn func() (T, error)) (T, int, error) {
	var zero T
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if delay := p.Delay(attempt); delay > 0 {
			select {
			case <-ctx.Done():
				return zero, attempt - 1, ctx.Err()
			case <-time.After(delay):
			}
		}
		if ctx.Err() != nil {
			return zero, attempt - 1, ctx.Err()
		}

		result, err := fn()
		if err == nil {
			return result, attempt, nil
		}
		lastErr = err
		if !p.retryable(err) {
			return zero, attempt, err
		}
	}
	return zero, attempts, lastErr
}
