package resilience

import (
	"sync"
	"time"
)

// SlidingWindowConfig configures a SlidingWindow limiter (spec §4.4).
type SlidingWindowConfig struct {
	WindowMs    int
	MaxRequests int
}

type windowCount struct {
	count       int
	windowStart time.Time
}

// SlidingWindow is a keyed fixed-window rate limiter: a key's window opens
// at its first Allow call after the previous window expired and lasts
// WindowMs, and at most MaxRequests Allow(key) calls succeed within one
// such window. Windows do not slide, so a WindowMs-long span that
// straddles two consecutive windows can admit up to 2*MaxRequests-1 calls.
type SlidingWindow struct {
	mu     sync.Mutex
	cfg    SlidingWindowConfig
	counts map[string]*windowCount
}

// NewSlidingWindow creates a SlidingWindow limiter.
func NewSlidingWindow(cfg SlidingWindowConfig) *SlidingWindow {
	if cfg.WindowMs <= 0 {
		cfg.WindowMs = 60000
	}
	if cfg.MaxRequests <= 0 {
		cfg.MaxRequests = 100
	}
	return &SlidingWindow{cfg: cfg, counts: make(map[string]*windowCount)}
}

// Allow reports whether identifier is still within MaxRequests for its
// current window, counting the call only when it is allowed.
func (w *SlidingWindow) Allow(identifier string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	window := time.Duration(w.cfg.WindowMs) * time.Millisecond

	wc, ok := w.counts[identifier]
	if !ok || now.Sub(wc.windowStart) >= window {
		wc = &windowCount{count: 0, windowStart: now}
		w.counts[identifier] = wc
	}

	if wc.count >= w.cfg.MaxRequests {
		return false
	}
	wc.count++
	return true
}

// Remaining returns how many more requests identifier may make in the
// current window.
func (w *SlidingWindow) Remaining(identifier string) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	window := time.Duration(w.cfg.WindowMs) * time.Millisecond

	wc, ok := w.counts[identifier]
	if !ok || now.Sub(wc.windowStart) >= window {
		return w.cfg.MaxRequests
	}
	remaining := w.cfg.MaxRequests - wc.count
	if remaining < 0 {
		return 0
	}
	return remaining
}
