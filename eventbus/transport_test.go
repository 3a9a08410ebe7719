package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryTransport_PublishFansOutToAllSubscribers(t *testing.T) {
	transport := NewMemoryTransport(time.Second)

	var mu sync.Mutex
	var got []string

	for _, name := range []string{"a", "b", "c"} {
		n := name
		_, err := transport.Subscribe("topic", func(ctx context.Context, env Envelope) {
			mu.Lock()
			got = append(got, n)
			mu.Unlock()
		})
		require.NoError(t, err)
	}

	err := transport.Publish(context.Background(), "topic", Envelope{ID: "1"})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"a", "b", "c"}, got)
}

func TestMemoryTransport_UnsubscribeStopsDelivery(t *testing.T) {
	transport := NewMemoryTransport(time.Second)

	calls := 0
	unsubscribe, err := transport.Subscribe("topic", func(ctx context.Context, env Envelope) { calls++ })
	require.NoError(t, err)

	unsubscribe()
	_ = transport.Publish(context.Background(), "topic", Envelope{ID: "1"})
	assert.Zero(t, calls)
}

func TestMemoryTransport_SlowSubscriberTimesOutWithoutBlockingSiblings(t *testing.T) {
	transport := NewMemoryTransport(10 * time.Millisecond)

	fastDone := make(chan struct{})
	_, _ = transport.Subscribe("topic", func(ctx context.Context, env Envelope) {
		time.Sleep(time.Second)
	})
	_, _ = transport.Subscribe("topic", func(ctx context.Context, env Envelope) {
		close(fastDone)
	})

	err := transport.Publish(context.Background(), "topic", Envelope{ID: "1"})
	require.Error(t, err, "the slow subscriber's timeout must surface")

	select {
	case <-fastDone:
	case <-time.After(time.Second):
		t.Fatal("fast subscriber should not be blocked by the slow one")
	}
}

func TestMemoryTransport_ClosedTransportRejectsPublishAndSubscribe(t *testing.T) {
	transport := NewMemoryTransport(time.Second)
	require.NoError(t, transport.Close())

	_, err := transport.Subscribe("topic", func(ctx context.Context, env Envelope) {})
	assert.Error(t, err)

	err = transport.Publish(context.Background(), "topic", Envelope{})
	assert.Error(t, err)
}
