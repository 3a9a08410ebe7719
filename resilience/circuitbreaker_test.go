package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 5, ResetTimeout: time.Minute})

	boom := errors.New("boom")
	for i := 0; i < 5; i++ {
		err := cb.Execute(context.Background(), func() error { return boom })
		require.ErrorIs(t, err, boom)
	}

	assert.Equal(t, StateOpen, cb.State())

	calls := 0
	err := cb.Execute(context.Background(), func() error { calls++; return nil })
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.Zero(t, calls, "the underlying operation must not run while open")
}

func TestCircuitBreaker_HalfOpenThenClosed(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: 10 * time.Millisecond, HalfOpenMax: 2})

	require.Error(t, cb.Execute(context.Background(), func() error { return errors.New("x") }))
	assert.Equal(t, StateOpen, cb.State())

	time.Sleep(15 * time.Millisecond)

	require.NoError(t, cb.Execute(context.Background(), func() error { return nil }))
	assert.Equal(t, StateHalfOpen, cb.State())

	require.NoError(t, cb.Execute(context.Background(), func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: 10 * time.Millisecond, HalfOpenMax: 2})

	_ = cb.Execute(context.Background(), func() error { return errors.New("x") })
	time.Sleep(15 * time.Millisecond)

	err := cb.Execute(context.Background(), func() error { return errors.New("still failing") })
	require.Error(t, err)
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_GetStatus(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "state_save", MaxFailures: 3})
	_ = cb.Execute(context.Background(), func() error { return errors.New("x") })

	status := cb.GetStatus()
	assert.Equal(t, "state_save", status.Name)
	assert.Equal(t, 1, status.Failures)
	assert.Equal(t, StateClosed, status.State)
}
