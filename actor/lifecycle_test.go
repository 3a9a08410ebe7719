package actor

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/actorsys/runtime/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStateStore struct {
	data      map[string][]byte
	loadErr   error
	saveErr   error
	savedOnce bool
}

func newFakeStateStore() *fakeStateStore {
	return &fakeStateStore{data: map[string][]byte{}}
}

func (f *fakeStateStore) Load(ctx context.Context, actorName string) ([]byte, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.data[actorName], nil
}

func (f *fakeStateStore) Save(ctx context.Context, actorName string, data []byte) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.data[actorName] = data
	f.savedOnce = true
	return nil
}

func quickHealthInterval() Config {
	return Config{Name: "counter", HealthInterval: time.Hour}
}

func TestActor_InitializeUsesDefaultStateWhenStoreEmpty(t *testing.T) {
	store := newFakeStateStore()
	a := New(quickHealthInterval(), Dependencies{Store: store}, Hooks[counterState]{
		CreateDefaultState: func() counterState { return counterState{Tags: map[string]int{"seed": 1}} },
	})

	err := a.Initialize(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, StateReady, a.State())
	assert.Equal(t, 1, a.state.Tags["seed"])

	_ = a.Shutdown(context.Background())
}

func TestActor_InitializeLoadsPersistedState(t *testing.T) {
	store := newFakeStateStore()
	data, err := json.Marshal(counterState{Count: 42, Tags: map[string]int{}})
	require.NoError(t, err)
	store.data["counter"] = data

	a := New(quickHealthInterval(), Dependencies{Store: store}, Hooks[counterState]{
		CreateDefaultState: func() counterState { return counterState{} },
	})

	require.NoError(t, a.Initialize(context.Background(), nil))
	assert.Equal(t, 42, a.state.Count)
	_ = a.Shutdown(context.Background())
}

func TestActor_InitializeFailsClosedOnCorruptPersistedState(t *testing.T) {
	store := newFakeStateStore()
	store.data["counter"] = []byte("{not json")

	a := New(quickHealthInterval(), Dependencies{Store: store}, Hooks[counterState]{})

	err := a.Initialize(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.StateValidationFailed))
	assert.Equal(t, StateFailed, a.State())
}

func TestActor_InitializeRunsHooksInOrder(t *testing.T) {
	var order []string
	a := New(quickHealthInterval(), Dependencies{Store: newFakeStateStore()}, Hooks[counterState]{
		CreateDefaultState: func() counterState { return counterState{} },
		BeforeStateLoad: func(ctx context.Context) error {
			order = append(order, "beforeStateLoad")
			return nil
		},
		AfterStateLoad: func(ctx context.Context, state *counterState) error {
			order = append(order, "afterStateLoad")
			return nil
		},
		OnInitialize: func(ctx context.Context, state *counterState) error {
			order = append(order, "onInitialize")
			return nil
		},
	})

	require.NoError(t, a.Initialize(context.Background(), nil))
	assert.Equal(t, []string{"beforeStateLoad", "afterStateLoad", "onInitialize"}, order)
	_ = a.Shutdown(context.Background())
}

func TestActor_InitializeStopsOnOnInitializeFailure(t *testing.T) {
	a := New(quickHealthInterval(), Dependencies{Store: newFakeStateStore()}, Hooks[counterState]{
		CreateDefaultState: func() counterState { return counterState{} },
		OnInitialize: func(ctx context.Context, state *counterState) error {
			return errors.New("dependency unavailable")
		},
	})

	err := a.Initialize(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, StateFailed, a.State())
}

func TestActor_SaveStateLogsRatherThanFailsOnStoreError(t *testing.T) {
	store := newFakeStateStore()
	store.saveErr = errors.New("disk full")
	a := New(quickHealthInterval(), Dependencies{Store: store}, Hooks[counterState]{
		CreateDefaultState: func() counterState { return counterState{} },
	})
	require.NoError(t, a.Initialize(context.Background(), nil))

	assert.NotPanics(t, func() { a.saveState(context.Background()) })
	assert.False(t, store.savedOnce)
	_ = a.Shutdown(context.Background())
}

func TestActor_ShutdownRunsHookAndStopsHealthLoop(t *testing.T) {
	called := false
	a := New(quickHealthInterval(), Dependencies{Store: newFakeStateStore()}, Hooks[counterState]{
		CreateDefaultState: func() counterState { return counterState{} },
		OnShutdown: func(ctx context.Context) error {
			called = true
			return nil
		},
	})
	require.NoError(t, a.Initialize(context.Background(), nil))

	require.NoError(t, a.Shutdown(context.Background()))
	assert.True(t, called)
	assert.Equal(t, StateStopped, a.State())
}
