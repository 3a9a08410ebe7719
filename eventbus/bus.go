package eventbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/actorsys/runtime/internal/errs"
	"github.com/actorsys/runtime/internal/log"
	"github.com/actorsys/runtime/resilience"
)

// Pattern is the delivery pattern a consumer is registered under (spec §3,
// "Event Consumer").
type Pattern string

const (
	PatternAsk     Pattern = "ask"
	PatternTell    Pattern = "tell"
	PatternPublish Pattern = "publish"
)

// DeliveryMode governs tell semantics (spec §4.2 "tell").
type DeliveryMode string

const (
	AtMostOnce  DeliveryMode = "at-most-once"
	AtLeastOnce DeliveryMode = "at-least-once"
)

// Config configures a Bus.
type Config struct {
	AskTimeout       time.Duration // default per-ask timeout when the caller doesn't override it
	AskRetries       int           // ask retries on timeout, with exponential backoff
	TellMode         DeliveryMode
	TellTTL          time.Duration // at-least-once: time before an unacked tell is redelivered
	TellMaxRedeliver int           // at-least-once: redeliveries before the entry is dropped
	DedupCapacity    int
}

// DefaultConfig mirrors spec §4.2/§4.4 defaults.
func DefaultConfig() Config {
	return Config{
		AskTimeout:       5 * time.Second,
		AskRetries:       0,
		TellMode:         AtMostOnce,
		TellTTL:          30 * time.Second,
		TellMaxRedeliver: 3,
		DedupCapacity:    resilience.DefaultDedupCapacity,
	}
}

// Bus implements ask/tell/publish over a pluggable Transport (spec §4.2).
type Bus struct {
	transport Transport
	cfg       Config
	log       *log.Logger
	dedup     *resilience.Deduplicator

	mu       sync.Mutex
	pending  map[string]chan Envelope // correlationId -> reply channel, for ask
	unacked  map[string]*pendingTell  // envelopeId -> pending tell, for at-least-once
	closed   bool
	sweepEnd chan struct{}
}

type pendingTell struct {
	envelope    Envelope
	target      string
	deliveredAt time.Time
	attempts    int
}

// New creates a Bus over transport. If cfg.TellMode is AtLeastOnce, a
// background sweeper redelivers unacked tells past TellTTL.
func New(transport Transport, cfg Config, logger *log.Logger) *Bus {
	if cfg.AskTimeout <= 0 {
		cfg.AskTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = log.NewDefault("eventbus")
	}
	b := &Bus{
		transport: transport,
		cfg:       cfg,
		log:       logger,
		dedup:     resilience.NewDeduplicator(cfg.DedupCapacity),
		pending:   make(map[string]chan Envelope),
		unacked:   make(map[string]*pendingTell),
		sweepEnd:  make(chan struct{}),
	}
	if cfg.TellMode == AtLeastOnce {
		go b.sweepUnacked()
	}
	return b
}

func directedChannel(target, eventType string) string {
	return fmt.Sprintf("actor:%s:%s", target, eventType)
}

func broadcastChannel(eventType string) string {
	return fmt.Sprintf("broadcast:%s", eventType)
}

func responseChannel(correlationID string) string {
	return fmt.Sprintf("event:response:%s", correlationID)
}

// On subscribes handler to target's directed inbound channel for eventType
// (spec §4.2 "on(eventType, handler)").
func (b *Bus) On(target, eventType string, handler func(context.Context, Envelope) (any, error)) (func(), error) {
	return b.transport.Subscribe(directedChannel(target, eventType), func(ctx context.Context, env Envelope) {
		b.dispatchToHandler(ctx, env, handler)
	})
}

// Subscribe subscribes handler to eventType's broadcast channel (spec §4.2
// "subscribe(eventType, handler)").
// Each subscription dedups envelope ids on its own, so one subscriber
// receiving an envelope never hides it from another.
func (b *Bus) Subscribe(eventType string, handler func(context.Context, Envelope)) (func(), error) {
	seen := resilience.NewDeduplicator(b.cfg.DedupCapacity)
	return b.transport.Subscribe(broadcastChannel(eventType), func(ctx context.Context, env Envelope) {
		if seen.IsDuplicate(env.ID) {
			return
		}
		handler(ctx, env)
	})
}

func (b *Bus) dispatchToHandler(ctx context.Context, env Envelope, handler func(context.Context, Envelope) (any, error)) {
	result, err := handler(ctx, env)
	b.ackTell(env.ID)
	if env.CorrelationID == "" {
		return
	}
	reply := Envelope{
		ID:            env.ID,
		Type:          env.Type + "_REPLY",
		CorrelationID: env.CorrelationID,
		Timestamp:     time.Now(),
	}
	if err != nil {
		reply.Payload = map[string]any{"error": errs.Transform(err, env.Actor)}
	} else {
		reply.Payload = map[string]any{"data": result}
	}
	_ = b.transport.Publish(ctx, responseChannel(env.CorrelationID), reply)
}

// Ask sends envelope to target and blocks for a reply on
// event:response:<correlationId> up to timeout (0 means cfg.AskTimeout).
// On timeout the pending entry is evicted and REQUEST_TIMEOUT is returned
// (spec §4.2 "ask", §8 scenario 5).
func (b *Bus) Ask(ctx context.Context, target string, env Envelope, timeout time.Duration) (any, error) {
	if timeout <= 0 {
		timeout = b.cfg.AskTimeout
	}
	if env.CorrelationID == "" {
		env = New(env.Type, env.Payload, "")
	}

	reply := make(chan Envelope, 1)
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, errs.New(errs.UnknownError, "bus is shutting down")
	}
	b.pending[env.CorrelationID] = reply
	b.mu.Unlock()

	unsubscribe, err := b.transport.Subscribe(responseChannel(env.CorrelationID), func(_ context.Context, r Envelope) {
		b.mu.Lock()
		ch, ok := b.pending[env.CorrelationID]
		b.mu.Unlock()
		if ok {
			select {
			case ch <- r:
			default:
			}
		}
	})
	if err != nil {
		b.evictPending(env.CorrelationID)
		return nil, err
	}
	defer unsubscribe()
	defer b.evictPending(env.CorrelationID)

	attempt := 0
	for {
		if err := b.transport.Publish(ctx, directedChannel(target, env.Type), env); err != nil {
			return nil, err
		}

		select {
		case r := <-reply:
			payload, _ := r.Payload.(map[string]any)
			if payload != nil {
				if errVal, ok := payload["error"]; ok {
					return nil, fmt.Errorf("%v", errVal)
				}
				return payload["data"], nil
			}
			return r.Payload, nil
		case <-time.After(timeout):
			if attempt >= b.cfg.AskRetries {
				return nil, errs.NewRequestTimeout(env.CorrelationID)
			}
			attempt++
			backoff := time.Duration(1<<(attempt-1)) * 100 * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (b *Bus) evictPending(correlationID string) {
	b.mu.Lock()
	delete(b.pending, correlationID)
	b.mu.Unlock()
}

// Tell delivers envelope to target's directed channel and returns
// immediately (fire-and-forget). Under AtLeastOnce mode, the bus tracks a
// pending-ack entry; handlers invoked through On() implicitly ack on
// return (spec §4.2 "tell"; SPEC_FULL.md resolves the previously
// unspecified redelivery semantics this way).
func (b *Bus) Tell(ctx context.Context, target string, env Envelope) error {
	if env.ID == "" {
		env = New(env.Type, env.Payload, env.CorrelationID)
	}
	if b.cfg.TellMode == AtLeastOnce {
		b.mu.Lock()
		b.unacked[env.ID] = &pendingTell{envelope: env, target: target, deliveredAt: time.Now()}
		b.mu.Unlock()
	}
	return b.transport.Publish(ctx, directedChannel(target, env.Type), env)
}

// ackTell removes id from the unacked table; a no-op for at-most-once or
// unknown ids (idempotent by construction).
func (b *Bus) ackTell(id string) {
	b.mu.Lock()
	delete(b.unacked, id)
	b.mu.Unlock()
}

// Publish broadcasts envelope to every subscriber of eventType's broadcast
// channel (spec §4.2 "publish").
func (b *Bus) Publish(ctx context.Context, eventType string, env Envelope) error {
	if env.ID == "" {
		env = New(eventType, env.Payload, env.CorrelationID)
	}
	return b.transport.Publish(ctx, broadcastChannel(eventType), env)
}

// sweepUnacked redelivers tells past TellTTL, dropping entries that exceed
// TellMaxRedeliver (spec §9 open question, resolved in SPEC_FULL.md).
func (b *Bus) sweepUnacked() {
	ticker := time.NewTicker(b.cfg.TellTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-b.sweepEnd:
			return
		case <-ticker.C:
			b.sweepOnce()
		}
	}
}

func (b *Bus) sweepOnce() {
	now := time.Now()
	b.mu.Lock()
	due := make([]*pendingTell, 0)
	for id, pt := range b.unacked {
		if now.Sub(pt.deliveredAt) >= b.cfg.TellTTL {
			pt.attempts++
			if pt.attempts > b.cfg.TellMaxRedeliver {
				delete(b.unacked, id)
				b.log.WithContext(context.Background()).
					WithField("envelope_id", id).
					WithField("target", pt.target).
					Warn("tell redelivery exhausted, dropping")
				continue
			}
			pt.deliveredAt = now
			due = append(due, pt)
		}
	}
	b.mu.Unlock()

	for _, pt := range due {
		_ = b.transport.Publish(context.Background(), directedChannel(pt.target, pt.envelope.Type), pt.envelope)
	}
}

// Close terminates pending asks with a shutdown error, stops the sweeper,
// and releases the transport (spec §4.2 "Cancellation & shutdown").
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	shutdown := Envelope{Payload: map[string]any{"error": errs.New(errs.UnknownError, "bus is shutting down")}}
	for id, ch := range b.pending {
		select {
		case ch <- shutdown:
		default:
		}
		close(ch)
		delete(b.pending, id)
	}
	b.mu.Unlock()

	close(b.sweepEnd)
	return b.transport.Close()
}
