package eventbus

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/go-redis/redis/v8"
)

// RedisTransport is the distributed pub/sub backend: channels are Redis
// pub/sub topics, keyed per spec §6 ("Bus channel naming"). It satisfies
// the same Transport interface as MemoryTransport so a Bus can swap
// backends without changing ask/tell/publish semantics (spec §4.2
// "Distributed pub/sub").
type RedisTransport struct {
	client *redis.Client

	mu   sync.Mutex
	subs map[string]*redisSub
}

type redisSub struct {
	pubsub   *redis.PubSub
	handlers map[int]func(context.Context, Envelope)
	nextID   int
	cancel   context.CancelFunc
}

// NewRedisTransport wraps an existing go-redis client.
func NewRedisTransport(client *redis.Client) *RedisTransport {
	return &RedisTransport{client: client, subs: make(map[string]*redisSub)}
}

func (t *RedisTransport) Publish(ctx context.Context, channel string, envelope Envelope) error {
	data, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	return t.client.Publish(ctx, channel, data).Err()
}

func (t *RedisTransport) Subscribe(channel string, handler func(context.Context, Envelope)) (func(), error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	sub, ok := t.subs[channel]
	if !ok {
		ctx, cancel := context.WithCancel(context.Background())
		pubsub := t.client.Subscribe(ctx, channel)
		sub = &redisSub{pubsub: pubsub, handlers: make(map[int]func(context.Context, Envelope)), cancel: cancel}
		t.subs[channel] = sub
		go t.pump(ctx, channel, sub)
	}

	id := sub.nextID
	sub.nextID++
	sub.handlers[id] = handler

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if s, ok := t.subs[channel]; ok {
			delete(s.handlers, id)
			if len(s.handlers) == 0 {
				s.cancel()
				_ = s.pubsub.Close()
				delete(t.subs, channel)
			}
		}
	}, nil
}

func (t *RedisTransport) pump(ctx context.Context, channel string, sub *redisSub) {
	ch := sub.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				continue
			}
			t.mu.Lock()
			handlers := make([]func(context.Context, Envelope), 0, len(sub.handlers))
			for _, h := range sub.handlers {
				handlers = append(handlers, h)
			}
			t.mu.Unlock()
			for _, h := range handlers {
				go h(context.Background(), env)
			}
		}
	}
}

func (t *RedisTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for channel, sub := range t.subs {
		sub.cancel()
		_ = sub.pubsub.Close()
		delete(t.subs, channel)
	}
	return nil
}
