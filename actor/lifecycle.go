package actor

import (
	"context"
	"encoding/json"

	"github.com/actorsys/runtime/catalog"
	"github.com/actorsys/runtime/internal/errs"
)

// Initialize runs the ordered startup sequence (spec §4.3 "Initialization"):
// validate config, load or default state, register with the catalog, run
// onInitialize, then start the periodic health check.
func (a *Actor[S]) Initialize(ctx context.Context, configPayload []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.setState(StateInitializing)

	// Step 1: validate declared configuration against its schema, if any.
	if len(a.cfg.ConfigSchema) > 0 {
		v := catalog.NewValidator(catalog.ModeLoose)
		var payload any
		if len(configPayload) > 0 {
			if err := json.Unmarshal(configPayload, &payload); err != nil {
				err := errs.NewConfigValidationFailed("config payload is not valid JSON")
				a.markFailed(err)
				return err
			}
		}
		result, err := v.Validate(a.cfg.Name+":config", 1, a.cfg.ConfigSchema, payload)
		if err != nil {
			wrapped := errs.NewConfigValidationFailed(err.Error())
			a.markFailed(wrapped)
			return wrapped
		}
		if !result.Valid {
			wrapped := errs.NewConfigValidationFailed("actor configuration failed schema validation")
			a.markFailed(wrapped)
			return wrapped
		}
	}

	// Step 2: beforeStateLoad.
	if a.hook.BeforeStateLoad != nil {
		if err := a.hook.BeforeStateLoad(ctx); err != nil {
			wrapped := a.transform(err)
			a.markFailed(wrapped)
			return wrapped
		}
	}

	// Steps 3-4: load persisted state, reconstructing into the concrete Go
	// type S directly via json.Unmarshal (see StateStore doc comment for
	// why no name-based heuristic or discriminator is needed here), or
	// fall back to the actor's declared default.
	loaded := false
	if a.deps.Store != nil {
		data, err := a.deps.Store.Load(ctx, a.cfg.Name)
		if err == nil && len(data) > 0 {
			var state S
			if err := json.Unmarshal(data, &state); err != nil {
				wrapped := errs.NewStateValidationFailed([]errs.FieldError{{Message: err.Error()}})
				a.markFailed(wrapped)
				return wrapped
			}
			if len(a.cfg.StateSchema) > 0 {
				v := catalog.NewValidator(catalog.ModeLoose)
				result, verr := v.Validate(a.cfg.Name+":state", 1, a.cfg.StateSchema, state)
				if verr != nil {
					wrapped := errs.NewStateValidationFailed([]errs.FieldError{{Message: verr.Error()}})
					a.markFailed(wrapped)
					return wrapped
				}
				if !result.Valid {
					fe := make([]errs.FieldError, 0, len(result.Errors))
					for _, e := range result.Errors {
						fe = append(fe, errs.FieldError{Path: e.Path, Message: e.Message, Expected: e.Expected, Received: e.Received})
					}
					wrapped := errs.NewStateValidationFailed(fe)
					a.markFailed(wrapped)
					return wrapped
				}
			}
			a.state = state
			loaded = true
		}
	}
	if !loaded {
		if a.hook.CreateDefaultState != nil {
			a.state = a.hook.CreateDefaultState()
		}
	}

	// Step 5: afterStateLoad.
	if a.hook.AfterStateLoad != nil {
		if err := a.hook.AfterStateLoad(ctx, &a.state); err != nil {
			wrapped := a.transform(err)
			a.markFailed(wrapped)
			return wrapped
		}
	}

	// Step 6: register the manifest and event definitions with the catalog.
	if a.deps.Catalog != nil {
		manifest := a.cfg.Manifest
		manifest.ActorName = a.cfg.Name
		if err := a.deps.Catalog.RegisterActor(ctx, manifest); err != nil {
			a.deps.Logger.WithContext(ctx).WithError(err).Warn("actor manifest registration failed")
		}
		for _, def := range a.cfg.Definitions {
			if def.ProducerActor == "" {
				def.ProducerActor = a.cfg.Name
			}
			if err := a.deps.Catalog.Register(ctx, def); err != nil {
				a.deps.Logger.WithContext(ctx).WithError(err).WithField("event", def.Name).
					Warn("event definition registration failed")
			}
		}
	}

	// Step 7: onInitialize.
	if a.hook.OnInitialize != nil {
		if err := a.hook.OnInitialize(ctx, &a.state); err != nil {
			wrapped := a.transform(err)
			a.markFailed(wrapped)
			return wrapped
		}
	}

	a.setState(StateReady)

	// Step 8: schedule periodic health checks.
	a.startHealthLoop()

	return nil
}

// saveState persists the actor's current state through the state_save
// circuit breaker. Failures are logged, never fatal to the caller (spec
// §4.3 "Command dispatch" step 8).
func (a *Actor[S]) saveState(ctx context.Context) {
	if a.deps.Store == nil {
		return
	}
	data, err := json.Marshal(a.state)
	if err != nil {
		a.deps.Logger.WithContext(ctx).WithError(err).Error("state marshal failed")
		return
	}
	err = a.deps.StateSave.Execute(ctx, func() error {
		return a.deps.Store.Save(ctx, a.cfg.Name, data)
	})
	if err != nil {
		a.deps.Logger.WithContext(ctx).WithError(err).Warn("state save failed or circuit open")
	}
}

// Shutdown runs onShutdown and stops the health loop (spec §4.2
// "Cancellation & shutdown" applied to an individual actor).
func (a *Actor[S]) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.setState(StateStopping)
	if a.stopHealth != nil {
		a.stopHealth()
	}

	var err error
	if a.hook.OnShutdown != nil {
		if herr := a.hook.OnShutdown(ctx); herr != nil {
			err = a.transform(herr)
		}
	}
	a.setState(StateStopped)
	return err
}
