package actor

import (
	"context"
	"time"

	"github.com/actorsys/runtime/catalog"
	"github.com/actorsys/runtime/eventbus"
	"github.com/actorsys/runtime/internal/errs"
	"github.com/actorsys/runtime/internal/log"
)

// HandleCommand runs the full command-dispatch pipeline (spec §4.3
// "Command dispatch"). Commands against one actor instance run serially:
// the instance's mutex is held for the duration, so the actor is its own
// unit of mutual exclusion over state (spec §5).
func (a *Actor[S]) HandleCommand(ctx context.Context, cmdType string, payload any, correlationID string) (any, error) {
	start := time.Now()
	ctx = log.WithCorrelationID(ctx, correlationID)
	ctx = log.WithActorID(ctx, a.cfg.Name)

	a.mu.Lock()
	defer a.mu.Unlock()

	// Step 2: beforeCommand.
	if a.hook.BeforeCommand != nil {
		if err := a.hook.BeforeCommand(ctx, cmdType, payload); err != nil {
			return nil, a.recordAndTransform(ctx, cmdType, start, err)
		}
	}

	// Step 3: validate payload, preferring the catalog.
	if fe, err := a.validatePayload(ctx, cmdType, payload); err != nil {
		return nil, a.recordAndTransform(ctx, cmdType, start, err)
	} else if len(fe) > 0 {
		wrapped := errs.NewCommandValidationFailed(fe)
		a.recordCommand(ctx, cmdType, start, false)
		return nil, wrapped
	}

	// Step 4: rate limit, keyed by the actor-supplied keyGenerator.
	if limiter, ok := a.limiters[cmdType]; ok {
		key := cmdType
		if a.hook.KeyGenerator != nil {
			key = a.hook.KeyGenerator(cmdType, payload)
		}
		if !limiter.Allow(key, 1) {
			wrapped := errs.NewRateLimitExceeded(key)
			a.recordCommand(ctx, cmdType, start, false)
			return nil, wrapped
		}
	}

	// Step 5: onCommand.
	if a.hook.OnCommand == nil {
		err := errs.NewUnknownCommand(cmdType)
		a.recordCommand(ctx, cmdType, start, false)
		return nil, err
	}
	result, err := a.hook.OnCommand(ctx, cmdType, payload, &a.state)
	if err != nil {
		return nil, a.recordAndTransform(ctx, cmdType, start, err)
	}

	// Step 6: afterCommand.
	if a.hook.AfterCommand != nil {
		if err := a.hook.AfterCommand(ctx, cmdType, result); err != nil {
			a.deps.Logger.WithContext(ctx).WithError(err).Warn("afterCommand hook failed")
		}
	}

	// Step 7: emit each result event per its consumer pattern.
	for _, evt := range result.Events {
		a.emit(ctx, evt)
	}

	// Step 8: save state through the state_save circuit breaker.
	a.saveState(ctx)

	// Step 9: counters and per-event metric.
	a.recordCommand(ctx, cmdType, start, true)

	return result.Reply, nil
}

// HandleQuery runs the query-dispatch pipeline: like HandleCommand but with
// no emission, no state save, and no rate limiter by default (spec §4.3
// "Query dispatch").
func (a *Actor[S]) HandleQuery(ctx context.Context, queryType string, payload any, correlationID string) (any, error) {
	start := time.Now()
	ctx = log.WithCorrelationID(ctx, correlationID)
	ctx = log.WithActorID(ctx, a.cfg.Name)

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.hook.BeforeQuery != nil {
		if err := a.hook.BeforeQuery(ctx, queryType, payload); err != nil {
			return nil, a.recordAndTransformQuery(ctx, queryType, start, err)
		}
	}

	if fe, err := a.validatePayload(ctx, queryType, payload); err != nil {
		return nil, a.recordAndTransformQuery(ctx, queryType, start, err)
	} else if len(fe) > 0 {
		wrapped := errs.NewCommandValidationFailed(fe)
		a.recordQuery(ctx, queryType, start, false)
		return nil, wrapped
	}

	if a.hook.OnQuery == nil {
		err := errs.NewUnknownQuery(queryType)
		a.recordQuery(ctx, queryType, start, false)
		return nil, err
	}
	result, err := a.hook.OnQuery(ctx, queryType, payload, &a.state)
	if err != nil {
		return nil, a.recordAndTransformQuery(ctx, queryType, start, err)
	}

	if a.hook.AfterQuery != nil {
		if err := a.hook.AfterQuery(ctx, queryType, result); err != nil {
			a.deps.Logger.WithContext(ctx).WithError(err).Warn("afterQuery hook failed")
		}
	}

	a.recordQuery(ctx, queryType, start, true)
	return result, nil
}

// validatePayload prefers catalog.ValidatePayload and falls back to the
// actor's own cfg.CommandSchemas entry for eventType when no catalog is
// attached (spec §4.3 "Command dispatch" step 3). With neither a catalog
// nor a matching local schema, payloads pass through unvalidated.
func (a *Actor[S]) validatePayload(ctx context.Context, eventType string, payload any) ([]errs.FieldError, error) {
	if a.deps.Catalog != nil {
		result, err := a.deps.Catalog.ValidatePayload(ctx, eventType, payload)
		if err != nil {
			return nil, err
		}
		if result.Valid {
			return nil, nil
		}
		fe := make([]errs.FieldError, 0, len(result.Errors))
		for _, e := range result.Errors {
			fe = append(fe, errs.FieldError{Path: e.Path, Message: e.Message, Expected: e.Expected, Received: e.Received})
		}
		return fe, nil
	}

	schema, ok := a.cfg.CommandSchemas[eventType]
	if !ok || a.localValidator == nil {
		return nil, nil
	}
	result, err := a.localValidator.Validate(a.cfg.Name+":"+eventType, 1, schema, payload)
	if err != nil {
		return nil, err
	}
	if result.Valid {
		return nil, nil
	}
	fe := make([]errs.FieldError, 0, len(result.Errors))
	for _, e := range result.Errors {
		fe = append(fe, errs.FieldError{Path: e.Path, Message: e.Message, Expected: e.Expected, Received: e.Received})
	}
	return fe, nil
}

// emit validates, looks up registered consumers, and dispatches per each
// consumer's declared pattern (spec §4.3 "Command dispatch" step 7).
func (a *Actor[S]) emit(ctx context.Context, evt OutgoingEvent) {
	env := eventbus.New(evt.Type, evt.Payload, log.CorrelationID(ctx))
	env.Actor = a.cfg.Name

	if a.deps.Catalog == nil || a.deps.Bus == nil {
		return
	}

	if result, err := a.deps.Catalog.ValidatePayload(ctx, evt.Type, evt.Payload); err != nil || !result.Valid {
		a.deps.Logger.WithContext(ctx).WithField("event", evt.Type).Warn("emitted event failed payload validation, not dispatched")
		return
	}

	consumers, err := a.deps.Catalog.GetConsumers(ctx, evt.Type)
	if err != nil {
		a.deps.Logger.WithContext(ctx).WithError(err).Warn("consumer lookup failed for emitted event")
		return
	}

	for _, consumer := range consumers {
		if !catalog.MatchesFilter(consumer.Filter, evt.Payload) {
			continue
		}
		pattern := consumer.Pattern
		var dispatchErr error
		switch pattern {
		case catalog.PatternAsk:
			_, dispatchErr = a.deps.Bus.Ask(ctx, consumer.ConsumerActor, env, 0)
		case catalog.PatternTell:
			dispatchErr = a.deps.Bus.Tell(ctx, consumer.ConsumerActor, env)
		default:
			dispatchErr = a.deps.Bus.Publish(ctx, evt.Type, env)
		}
		if dispatchErr != nil {
			a.deps.Logger.WithContext(ctx).WithError(dispatchErr).
				Warn("event emission to consumer failed")
		}
	}

	if a.deps.Catalog != nil {
		_ = a.deps.Catalog.RecordMetric(ctx, catalog.EventMetric{
			EventName: evt.Type, ActorID: a.cfg.Name, Direction: catalog.DirectionProduced,
			Success: true, CorrelationID: log.CorrelationID(ctx),
		})
	}
}

// recordAndTransform transforms a command-pipeline error, invokes onError,
// records the failed attempt, and returns the transformed error to the
// caller. The failure is always recorded here, so every call site passes
// the raw hook error straight through without a separate record call.
func (a *Actor[S]) recordAndTransform(ctx context.Context, cmdType string, start time.Time, err error) *errs.Error {
	wrapped := a.transform(err)
	if a.hook.OnError != nil {
		a.hook.OnError(ctx, wrapped)
	}
	a.recordCommand(ctx, cmdType, start, false)
	return wrapped
}

func (a *Actor[S]) recordAndTransformQuery(ctx context.Context, queryType string, start time.Time, err error) *errs.Error {
	wrapped := a.transform(err)
	if a.hook.OnError != nil {
		a.hook.OnError(ctx, wrapped)
	}
	a.recordQuery(ctx, queryType, start, false)
	return wrapped
}

func (a *Actor[S]) recordCommand(ctx context.Context, cmdType string, start time.Time, success bool) {
	if a.deps.Metrics != nil {
		a.deps.Metrics.RecordCommand(a.cfg.Name, cmdType, time.Since(start), success)
	}
	if a.deps.Catalog != nil {
		_ = a.deps.Catalog.RecordMetric(ctx, catalog.EventMetric{
			EventName: cmdType, ActorID: a.cfg.Name, Direction: catalog.DirectionConsumed,
			Success: success, DurationMs: time.Since(start).Milliseconds(),
			CorrelationID: log.CorrelationID(ctx),
		})
	}
}

func (a *Actor[S]) recordQuery(ctx context.Context, queryType string, start time.Time, success bool) {
	if a.deps.Metrics != nil {
		a.deps.Metrics.RecordQuery(a.cfg.Name, queryType, time.Since(start), success)
	}
	if a.deps.Catalog != nil {
		_ = a.deps.Catalog.RecordMetric(ctx, catalog.EventMetric{
			EventName: queryType, ActorID: a.cfg.Name, Direction: catalog.DirectionConsumed,
			Success: success, DurationMs: time.Since(start).Milliseconds(),
			CorrelationID: log.CorrelationID(ctx),
		})
	}
}
