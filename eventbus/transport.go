package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Transport is the pluggable pub/sub backbone the Bus rides on. Both the
// in-memory and Redis transports satisfy it; the spec treats the backend as
// transport-agnostic as long as it can publish to a keyed channel and
// pattern-subscribe to it (spec §4.2 "Transport backends").
type Transport interface {
	// Publish delivers envelope to every current subscriber of channel; a
	// slow subscriber never blocks its siblings. MemoryTransport bounds each
	// subscriber invocation by ctx and its handler timeout; RedisTransport
	// runs each handler on its own goroutine with a background context.
	Publish(ctx context.Context, channel string, envelope Envelope) error

	// Subscribe registers handler for channel, returning an unsubscribe func.
	Subscribe(channel string, handler func(context.Context, Envelope)) (func(), error)

	// Close releases transport resources. After Close, MemoryTransport
	// rejects every Publish/Subscribe call with an error; RedisTransport
	// closes its subscriptions but does not reject later calls.
	Close() error
}

// DefaultHandlerTimeout bounds a single subscriber invocation within Publish.
const DefaultHandlerTimeout = 5 * time.Second

// MemoryTransport is a local, single-process pub/sub used for tests and
// single-process deployments (spec §4.2 "In-memory").
type MemoryTransport struct {
	mu      sync.RWMutex
	subs    map[string]map[int]func(context.Context, Envelope)
	nextID  int
	timeout time.Duration
	closed  bool
}

// NewMemoryTransport creates a MemoryTransport with the given per-handler timeout.
func NewMemoryTransport(timeout time.Duration) *MemoryTransport {
	if timeout <= 0 {
		timeout = DefaultHandlerTimeout
	}
	return &MemoryTransport{subs: make(map[string]map[int]func(context.Context, Envelope)), timeout: timeout}
}

func (t *MemoryTransport) Subscribe(channel string, handler func(context.Context, Envelope)) (func(), error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, errors.New("transport closed")
	}
	if t.subs[channel] == nil {
		t.subs[channel] = make(map[int]func(context.Context, Envelope))
	}
	id := t.nextID
	t.nextID++
	t.subs[channel][id] = handler
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		delete(t.subs[channel], id)
		t.mu.Unlock()
	}, nil
}

// Publish fans envelope out to every subscriber of channel concurrently,
// each under its own timeout, joining any resulting errors (grounded on the
// teacher's Bus.PublishEvent concurrent fan-out).
func (t *MemoryTransport) Publish(ctx context.Context, channel string, envelope Envelope) error {
	t.mu.RLock()
	if t.closed {
		t.mu.RUnlock()
		return errors.New("transport closed")
	}
	handlers := make([]func(context.Context, Envelope), 0, len(t.subs[channel]))
	for _, h := range t.subs[channel] {
		handlers = append(handlers, h)
	}
	timeout := t.timeout
	t.mu.RUnlock()

	if len(handlers) == 0 {
		return nil
	}

	errCh := make(chan error, len(handlers))
	var wg sync.WaitGroup
	for i, h := range handlers {
		wg.Add(1)
		go func(idx int, handler func(context.Context, Envelope)) {
			defer wg.Done()
			hctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			done := make(chan struct{})
			go func() {
				handler(hctx, envelope)
				close(done)
			}()
			select {
			case <-done:
			case <-hctx.Done():
				errCh <- fmt.Errorf("subscriber[%d] on %s: %w", idx, channel, hctx.Err())
			}
		}(i, h)
	}
	wg.Wait()
	close(errCh)

	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (t *MemoryTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.subs = make(map[string]map[int]func(context.Context, Envelope))
	return nil
}
