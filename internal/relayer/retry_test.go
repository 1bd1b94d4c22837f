package relayer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errNonRetryable = errors.New("non-retryable error")

func testRetryConfig(attempts int) RetryConfig {
	return RetryConfig{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond}
}

func TestRetry_SuccessAfterRetry(t *testing.T) {
	t.Parallel()
	attempts := 0
	result, err := RetryWithConfig(context.Background(), testRetryConfig(4), func() (string, error) {
		attempts++
		if attempts < 3 {
			return "", ErrRetryable
		}
		return "success", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "success", result)
	assert.Equal(t, 3, attempts)
}

func TestRetry_NonRetryableError(t *testing.T) {
	t.Parallel()
	attempts := 0
	_, err := RetryWithConfig(context.Background(), testRetryConfig(4), func() (string, error) {
		attempts++
		return "", errNonRetryable
	})

	require.ErrorIs(t, err, errNonRetryable)
	assert.Equal(t, 1, attempts)
}

func TestRetry_MaxAttempts(t *testing.T) {
	t.Parallel()
	attempts := 0
	_, err := RetryWithConfig(context.Background(), testRetryConfig(4), func() (string, error) {
		attempts++
		return "", ErrRetryable
	})

	require.ErrorIs(t, err, ErrRetryable)
	assert.Equal(t, 4, attempts)
}

func TestRetry_ZeroAttemptsRunsOnce(t *testing.T) {
	t.Parallel()
	attempts := 0
	_, _ = RetryWithConfig(context.Background(), RetryConfig{}, func() (int, error) {
		attempts++
		return 0, ErrRetryable
	})
	assert.Equal(t, 1, attempts)
}

func TestRetry_ContextCancellation(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{MaxAttempts: 10, BaseDelay: 50 * time.Millisecond, MaxDelay: time.Second}

	attempts := 0
	_, err := RetryWithConfig(ctx, cfg, func() (string, error) {
		attempts++
		cancel()
		return "", ErrRetryable
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"retryable", ErrRetryable, true},
		{"wrapped retryable", WrapRetryable(errNonRetryable), true},
		{"rate limited", &rateLimitedError{after: time.Second}, true},
		{"canceled", context.Canceled, false},
		{"plain", errNonRetryable, false},
		{"rpc error", &RPCError{Code: -32000, Message: "reverted"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestParseRetryAfter(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 3*time.Second, ParseRetryAfter("3"))
	assert.Equal(t, time.Duration(0), ParseRetryAfter(""))
	assert.Equal(t, time.Duration(0), ParseRetryAfter("soon"))
	assert.Equal(t, time.Duration(0), ParseRetryAfter("-1"))
}

func TestCalculateDelay_Bounded(t *testing.T) {
	t.Parallel()
	for attempt := 0; attempt < 6; attempt++ {
		d := calculateDelay(attempt, 10*time.Millisecond, 40*time.Millisecond)
		assert.LessOrEqual(t, d, 40*time.Millisecond)
		assert.Positive(t, d)
	}
}

func TestRateLimiter_BucketPerRelayerURL(t *testing.T) {
	t.Parallel()
	rl := NewRateLimiter(10, 2)

	first := rl.bucket("https://relay.example/v1")
	assert.True(t, first.Allow())
	assert.True(t, first.Allow())
	assert.False(t, rl.bucket("https://Relay.Example/v1/").Allow(), "same relayer spelled differently shares a bucket")
	assert.False(t, rl.bucket("https://relay.example/v1?apikey=secret").Allow())

	assert.True(t, rl.bucket("https://relay.example/v2").Allow())
	assert.True(t, rl.bucket("https://other.example/v1").Allow())
}

func TestEndpointKey(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in, want string
	}{
		{"https://Relay.Example/v1/", "https://relay.example/v1"},
		{"HTTPS://relay.example", "https://relay.example"},
		{"https://relay.example:8545/rpc?key=abc", "https://relay.example:8545/rpc"},
		{"relay-local/", "relay-local"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, endpointKey(tt.in), tt.in)
	}
}

func TestRateLimiter_Wait(t *testing.T) {
	t.Parallel()
	rl := NewRateLimiter(100, 1)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, rl.Wait(ctx, "relay"))
	start := time.Now()
	require.NoError(t, rl.Wait(ctx, "relay"))
	assert.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)
}
