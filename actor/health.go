package actor

import (
	"context"

	"github.com/robfig/cron/v3"
)

// HealthReport is the result of an actor health check (spec §4.3 "Health
// check"): lifecycle state, the state_save circuit breaker not open, plus
// any custom check. A single unhealthy component propagates to overall
// unhealthy.
type HealthReport struct {
	Healthy    bool
	Components map[string]string
}

// HealthCheck aggregates the actor's health: lifecycle state, the
// state_save circuit breaker, and any custom onHealthCheck hook.
func (a *Actor[S]) HealthCheck(ctx context.Context) HealthReport {
	report := HealthReport{Healthy: true, Components: map[string]string{}}

	if a.State() != StateReady {
		report.Healthy = false
		report.Components["lifecycle"] = a.State().String()
	} else {
		report.Components["lifecycle"] = "ready"
	}

	if a.deps.StateSave != nil {
		status := a.deps.StateSave.GetStatus()
		if status.State.String() == "open" {
			report.Healthy = false
			report.Components["state_save"] = "circuit open"
		} else {
			report.Components["state_save"] = status.State.String()
		}
	}

	if a.hook.OnHealthCheck != nil {
		if err := a.hook.OnHealthCheck(ctx); err != nil {
			report.Healthy = false
			report.Components["custom"] = err.Error()
		}
	}

	return report
}

// startHealthLoop schedules the periodic health check (spec §4.3
// "Initialization" step 8, default every minute) via robfig/cron, the
// teacher's own choice for cron-style scheduling.
func (a *Actor[S]) startHealthLoop() {
	ctx, cancel := context.WithCancel(context.Background())
	a.stopHealth = cancel

	c := cron.New()
	spec := "@every " + a.cfg.HealthInterval.String()
	_, err := c.AddFunc(spec, func() {
		report := a.HealthCheck(ctx)
		if !report.Healthy {
			a.deps.Logger.WithContext(ctx).Warn("actor health check reported unhealthy")
		}
	})
	if err != nil {
		a.deps.Logger.WithContext(ctx).WithError(err).Error("failed to schedule health check")
		return
	}
	c.Start()

	go func() {
		<-ctx.Done()
		c.Stop()
	}()
}
