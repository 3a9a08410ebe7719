package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus(t *testing.T) *Bus {
	t.Helper()
	transport := NewMemoryTransport(time.Second)
	bus := New(transport, Config{AskTimeout: 200 * time.Millisecond}, nil)
	t.Cleanup(func() { _ = bus.Close() })
	return bus
}

func TestBus_AskReturnsHandlerResult(t *testing.T) {
	bus := newTestBus(t)

	_, err := bus.On("auth", "VERIFY_SESSION", func(ctx context.Context, env Envelope) (any, error) {
		return map[string]any{"valid": true}, nil
	})
	require.NoError(t, err)

	result, err := bus.Ask(context.Background(), "auth", New("VERIFY_SESSION", nil, ""), 0)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"valid": true}, result)
}

func TestBus_AskTimesOutWithNoHandler(t *testing.T) {
	bus := newTestBus(t)

	_, err := bus.Ask(context.Background(), "nobody", New("GET_X", nil, ""), 50*time.Millisecond)
	require.Error(t, err)

	bus.mu.Lock()
	pendingLen := len(bus.pending)
	bus.mu.Unlock()
	assert.Zero(t, pendingLen, "pending table must drop back to 0 after timeout")
}

func TestBus_TellDeliversFireAndForget(t *testing.T) {
	bus := newTestBus(t)

	received := make(chan Envelope, 1)
	_, err := bus.On("notification", "MAGIC_LINK_SENT", func(ctx context.Context, env Envelope) (any, error) {
		received <- env
		return nil, nil
	})
	require.NoError(t, err)

	err = bus.Tell(context.Background(), "notification", New("MAGIC_LINK_SENT", map[string]any{"email": "u@x"}, ""))
	require.NoError(t, err)

	select {
	case env := <-received:
		assert.Equal(t, "MAGIC_LINK_SENT", env.Type)
	case <-time.After(time.Second):
		t.Fatal("tell was not delivered")
	}
}

func TestBus_PublishBroadcastsToAllSubscribers(t *testing.T) {
	bus := newTestBus(t)

	var mu sync.Mutex
	var receivedBy []string

	for _, name := range []string{"analytics", "audit"} {
		n := name
		_, err := bus.Subscribe("MAGIC_LINK_SENT", func(ctx context.Context, env Envelope) {
			mu.Lock()
			receivedBy = append(receivedBy, n)
			mu.Unlock()
		})
		require.NoError(t, err)
	}

	err := bus.Publish(context.Background(), "MAGIC_LINK_SENT", New("MAGIC_LINK_SENT", nil, ""))
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"analytics", "audit"}, receivedBy)
}

func TestBus_CloseTerminatesPendingAsks(t *testing.T) {
	bus := newTestBus(t)

	resultCh := make(chan error, 1)
	go func() {
		_, err := bus.Ask(context.Background(), "nobody", New("GET_X", nil, ""), 10*time.Second)
		resultCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, bus.Close())

	select {
	case err := <-resultCh:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("ask did not terminate on bus close")
	}
}
