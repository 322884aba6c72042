package router

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRetryable(t *testing.T) {
	type input struct {
		err error
	}

	type expected struct {
		retryable bool
	}

	tests := []struct {
		name     string
		input    input
		expected expected
	}{
		{
			name:     "nil error",
			input:    input{err: nil},
			expected: expected{retryable: false},
		},
		{
			name:     "context canceled",
			input:    input{err: context.Canceled},
			expected: expected{retryable: false},
		},
		{
			name:     "deadline exceeded",
			input:    input{err: context.DeadlineExceeded},
			expected: expected{retryable: true},
		},
		{
			name:     "wrapped deadline exceeded",
			input:    input{err: fmt.Errorf("calling backend: %w", context.DeadlineExceeded)},
			expected: expected{retryable: true},
		},
		{
			name:     "rate limit",
			input:    input{err: errors.New("API returned: Rate limit exceeded")},
			expected: expected{retryable: true},
		},
		{
			name:     "http 429",
			input:    input{err: errors.New("unexpected status code: 429")},
			expected: expected{retryable: true},
		},
		{
			name:     "http 503",
			input:    input{err: errors.New("unexpected status code: 503")},
			expected: expected{retryable: true},
		},
		{
			name:     "connection refused",
			input:    input{err: errors.New("dial tcp 127.0.0.1:11434: connection refused")},
			expected: expected{retryable: true},
		},
		{
			name:     "provider overloaded",
			input:    input{err: errors.New("Overloaded")},
			expected: expected{retryable: true},
		},
		{
			name:     "bad request is permanent",
			input:    input{err: errors.New("unexpected status code: 400")},
			expected: expected{retryable: false},
		},
		{
			name:     "invalid api key is permanent",
			input:    input{err: errors.New("unexpected status code: 401 invalid api key")},
			expected: expected{retryable: false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected.retryable, DefaultRetryable(tt.input.err))
		})
	}
}

func TestRetryPolicy_Delay(t *testing.T) {
	p := RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    350 * time.Millisecond,
	}

	assert.Equal(t, time.Duration(0), p.Delay(1))
	assert.Equal(t, 100*time.Millisecond, p.Delay(2))
	assert.Equal(t, 200*time.Millisecond, p.Delay(3))
	// Doubling again would exceed the cap.
	assert.Equal(t, 350*time.Millisecond, p.Delay(4))
	assert.Equal(t, 350*time.Millisecond, p.Delay(5))
}

func TestRetryPolicy_DelayJitterBounds(t *testing.T) {
	p := RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
		Jitter:      0.5,
	}

	for i := 0; i < 20; i++ {
		d := p.Delay(2)
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.LessOrEqual(t, d, 150*time.Millisecond)
	}
}

func TestDo_StopsOnPermanentError(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5}
	permanent := errors.New("unexpected status code: 400")

	calls := 0
	_, attempts, err := do(context.Background(), p, func() (int, error) {
		calls++
		return 0, permanent
	})

	require.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, attempts)
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Millisecond}

	calls := 0
	result, attempts, err := do(context.Background(), p, func() (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("status code: 503")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, attempts)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}
	transient := errors.New("status code: 502")

	calls := 0
	_, attempts, err := do(context.Background(), p, func() (int, error) {
		calls++
		return 0, transient
	})

	require.ErrorIs(t, err, transient)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, attempts)
}

func TestDo_HonorsCancellation(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 10, BaseDelay: time.Hour}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, _, err := do(ctx, p, func() (int, error) {
		return 0, errors.New("status code: 503")
	})

	assert.ErrorIs(t, err, context.Canceled)
}
