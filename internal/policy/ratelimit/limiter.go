// Package ratelimit throttles how often transfers may start.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Config holds rate limiter configuration. A non-positive PerSecond disables
// throttling.
type Config struct {
	PerSecond float64
	Burst     int
}

// Limiter is a token bucket shared by all transfer workers. A nil Limiter
// never blocks.
type Limiter struct {
	lim *rate.Limiter
}

// New creates a Limiter.
func New(cfg Config) *Limiter {
	r := rate.Limit(cfg.PerSecond)
	if cfg.PerSecond <= 0 {
		r = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{lim: rate.NewLimiter(r, burst)}
}

// Unlimited reports whether Wait always returns immediately.
func (l *Limiter) Unlimited() bool {
	return l == nil || l.lim.Limit() == rate.Inf
}

// Wait blocks until a token is available and returns how long it waited.
func (l *Limiter) Wait(ctx context.Context) (time.Duration, error) {
	if l.Unlimited() {
		return 0, nil
	}
	start := time.Now()
	if err := l.lim.Wait(ctx); err != nil {
		return time.Since(start), fmt.Errorf("rate limit wait: %w", err)
	}
	return time.Since(start), nil
}
