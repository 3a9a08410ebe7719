package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetry_SucceedsBeforeExhausted(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), RetryConfig{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffMultiplier: 2}, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetry_ExhaustsAndReturnsLastError(t *testing.T) {
	attempts := 0
	wantErr := errors.New("permanent")
	err := Retry(context.Background(), RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffMultiplier: 2}, func() error {
		attempts++
		return wantErr
	})
	require.ErrorIs(t, err, wantErr)
	assert.Equal(t, 3, attempts, "initial attempt plus MaxRetries retries")
}

func TestRetry_ContextCancellationAbortsWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	err := Retry(ctx, RetryConfig{MaxRetries: 5, InitialDelay: time.Hour, MaxDelay: time.Hour, BackoffMultiplier: 2}, func() error {
		attempts++
		return errors.New("fail")
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts, "only the first attempt runs before the cancelled wait aborts")
}

func TestNextDelay_CapsAtMaxDelay(t *testing.T) {
	cfg := RetryConfig{MaxDelay: 500 * time.Millisecond, BackoffMultiplier: 10}
	d := nextDelay(200*time.Millisecond, cfg)
	assert.Equal(t, 500*time.Millisecond, d)
}
