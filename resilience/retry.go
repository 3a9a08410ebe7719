package resilience

import (
	"context"
	"math/rand"
	"time"
)

// RetryConfig configures exponential backoff retry (spec §4.4).
type RetryConfig struct {
	MaxRetries        int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	Jitter            float64
}

// DefaultRetryConfig mirrors the teacher's defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		InitialDelay:      100 * time.Millisecond,
		MaxDelay:          10 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            0.1,
	}
}

// Retry runs fn up to cfg.MaxRetries+1 times, sleeping
// min(initialDelay * multiplier^attempt, maxDelay) between attempts (§8 property 9).
// The final error is returned unwrapped if every attempt fails; ctx
// cancellation aborts the wait between attempts immediately.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := addJitter(delay, cfg.Jitter)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			delay = nextDelay(delay, cfg)
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
	}
	return lastErr
}

func nextDelay(current time.Duration, cfg RetryConfig) time.Duration {
	next := time.Duration(float64(current) * cfg.BackoffMultiplier)
	if next > cfg.MaxDelay {
		next = cfg.MaxDelay
	}
	return next
}

func addJitter(d time.Duration, jitter float64) time.Duration {
	if jitter <= 0 {
		return d
	}
	delta := float64(d) * jitter
	offset := (rand.Float64()*2 - 1) * delta
	result := time.Duration(float64(d) + offset)
	if result < 0 {
		return 0
	}
	return result
}
