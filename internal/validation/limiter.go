package validation

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Default AI-call limits
const (
	DefaultAIConcurrency = 2
	DefaultConcurrency   = 4
	MaxConcurrency       = 64
)

// Limiter caps simultaneous classifier calls and, optionally, their rate.
// It is the only state shared between record pipelines.
type Limiter struct {
	sem  *semaphore.Weighted
	rate *rate.Limiter
}

// NewLimiter creates a Limiter allowing maxConcurrent calls at once and at
// most perSecond call starts per second (0 disables the rate cap)
func NewLimiter(maxConcurrent int, perSecond float64) *Limiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultAIConcurrency
	}
	l := &Limiter{sem: semaphore.NewWeighted(int64(maxConcurrent))}
	if perSecond > 0 {
		l.rate = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
	return l
}

// Acquire blocks until a call slot is free. The returned release must be called
// exactly once.
func (l *Limiter) Acquire(ctx context.Context) (func(), error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for AI slot: %w", err)
	}
	if l.rate != nil {
		if err := l.rate.Wait(ctx); err != nil {
			l.sem.Release(1)
			return nil, fmt.Errorf("waiting for AI rate limit: %w", err)
		}
	}
	return func() { l.sem.Release(1) }, nil
}
