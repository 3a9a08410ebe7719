package actor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/actorsys/runtime/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActor_HealthCheck_HealthyWhenReadyAndClosedCircuit(t *testing.T) {
	a := New(Config{Name: "counter", HealthInterval: time.Hour}, Dependencies{}, Hooks[counterState]{
		CreateDefaultState: func() counterState { return counterState{} },
	})
	require.NoError(t, a.Initialize(context.Background(), nil))
	defer a.Shutdown(context.Background())

	report := a.HealthCheck(context.Background())
	assert.True(t, report.Healthy)
	assert.Equal(t, "ready", report.Components["lifecycle"])
	assert.Equal(t, "closed", report.Components["state_save"])
}

func TestActor_HealthCheck_UnhealthyWhenNotReady(t *testing.T) {
	a := New(Config{Name: "counter", HealthInterval: time.Hour}, Dependencies{}, Hooks[counterState]{
		CreateDefaultState: func() counterState { return counterState{} },
	})

	report := a.HealthCheck(context.Background())
	assert.False(t, report.Healthy)
	assert.Equal(t, "uninitialized", report.Components["lifecycle"])
}

func TestActor_HealthCheck_UnhealthyWhenCircuitOpen(t *testing.T) {
	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:        "counter:state_save",
		MaxFailures: 1,
	})
	_ = breaker.Execute(context.Background(), func() error { return errors.New("boom") })

	a := New(Config{Name: "counter", HealthInterval: time.Hour}, Dependencies{StateSave: breaker}, Hooks[counterState]{
		CreateDefaultState: func() counterState { return counterState{} },
	})
	require.NoError(t, a.Initialize(context.Background(), nil))
	defer a.Shutdown(context.Background())

	report := a.HealthCheck(context.Background())
	assert.False(t, report.Healthy)
	assert.Equal(t, "circuit open", report.Components["state_save"])
}

func TestActor_HealthCheck_UnhealthyOnCustomHookFailure(t *testing.T) {
	a := New(Config{Name: "counter", HealthInterval: time.Hour}, Dependencies{}, Hooks[counterState]{
		CreateDefaultState: func() counterState { return counterState{} },
		OnHealthCheck: func(ctx context.Context) error {
			return errors.New("dependency down")
		},
	})
	require.NoError(t, a.Initialize(context.Background(), nil))
	defer a.Shutdown(context.Background())

	report := a.HealthCheck(context.Background())
	assert.False(t, report.Healthy)
	assert.Equal(t, "dependency down", report.Components["custom"])
}

func TestActor_ShutdownStopsHealthLoopWithoutPanicking(t *testing.T) {
	a := New(Config{Name: "counter", HealthInterval: time.Millisecond}, Dependencies{}, Hooks[counterState]{
		CreateDefaultState: func() counterState { return counterState{} },
	})
	require.NoError(t, a.Initialize(context.Background(), nil))

	assert.NotPanics(t, func() { require.NoError(t, a.Shutdown(context.Background())) })
}
