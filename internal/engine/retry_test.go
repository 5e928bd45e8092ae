package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy() *RetryPolicy {
	return &RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestRetryWithBackoff_SucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := RetryWithBackoff(context.Background(), fastPolicy(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("throttled by upstream")
		}
		return nil
	}, IsTransientError)

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryWithBackoff_PermanentErrorFailsFast(t *testing.T) {
	attempts := 0
	permanent := errors.New("invalid parameter")
	err := RetryWithBackoff(context.Background(), fastPolicy(), func() error {
		attempts++
		return permanent
	}, IsTransientError)

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, attempts)
}

func TestRetryWithBackoff_ExhaustsRetries(t *testing.T) {
	attempts := 0
	err := RetryWithBackoff(context.Background(), fastPolicy(), func() error {
		attempts++
		return errors.New("connection reset by peer")
	}, IsTransientError)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries")
	assert.Equal(t, 4, attempts) // initial attempt + 3 retries
}

func TestRetryWithBackoff_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RetryWithBackoff(ctx, &RetryPolicy{MaxRetries: 2, BaseDelay: time.Second, MaxDelay: time.Second}, func() error {
		return errors.New("timeout talking to API")
	}, IsTransientError)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsTransientError(t *testing.T) {
	assert.True(t, IsTransientError(errors.New("Throttling: rate exceeded")))
	assert.True(t, IsTransientError(errors.New("503 Service Unavailable")))
	assert.True(t, IsTransientError(errors.New("dial tcp: i/o timeout")))
	assert.False(t, IsTransientError(errors.New("access denied")))
	assert.False(t, IsTransientError(nil))
}
