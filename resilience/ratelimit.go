package resilience

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// TokenBucketConfig configures a keyed token-bucket limiter (spec §4.4).
type TokenBucketConfig struct {
	MaxTokens      int
	RefillRate     int
	RefillInterval time.Duration
}

// DefaultTokenBucketConfig is 100 tokens, refilling 10 per second.
func DefaultTokenBucketConfig() TokenBucketConfig {
	return TokenBucketConfig{MaxTokens: 100, RefillRate: 10, RefillInterval: time.Second}
}

// TokenBucket is a per-key token-bucket rate limiter backed by
// golang.org/x/time/rate. Distinct keys (e.g. the result of a command's
// keyGenerator) get independent buckets, lazily created on first use.
type TokenBucket struct {
	mu       sync.Mutex
	cfg      TokenBucketConfig
	limiters map[string]*rate.Limiter
}

// NewTokenBucket creates a keyed token bucket, filling unset config with defaults.
func NewTokenBucket(cfg TokenBucketConfig) *TokenBucket {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 100
	}
	if cfg.RefillRate <= 0 {
		cfg.RefillRate = 10
	}
	if cfg.RefillInterval <= 0 {
		cfg.RefillInterval = time.Second
	}
	return &TokenBucket{cfg: cfg, limiters: make(map[string]*rate.Limiter)}
}

func (tb *TokenBucket) limiterFor(key string) *rate.Limiter {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	if l, ok := tb.limiters[key]; ok {
		return l
	}
	perSecond := float64(tb.cfg.RefillRate) / tb.cfg.RefillInterval.Seconds()
	l := rate.NewLimiter(rate.Limit(perSecond), tb.cfg.MaxTokens)
	tb.limiters[key] = l
	return l
}

// Acquire blocks until n tokens are available for key, then subtracts them.
func (tb *TokenBucket) Acquire(ctx context.Context, key string, n int) error {
	return tb.limiterFor(key).WaitN(ctx, n)
}

// Allow reports whether n tokens are immediately available for key, consuming
// them if so. Used by the actor runtime's rate-limited command dispatch,
// which must reject rather than block (§4.3 step 4).
func (tb *TokenBucket) Allow(key string, n int) bool {
	return tb.limiterFor(key).AllowN(time.Now(), n)
}

// AvailableTokens returns the current token count for key after refilling.
func (tb *TokenBucket) AvailableTokens(key string) float64 {
	return tb.limiterFor(key).TokensAt(time.Now())
}

// Reset discards the bucket for key, restoring it to full capacity on next use.
func (tb *TokenBucket) Reset(key string) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	delete(tb.limiters, key)
}
