package fetch

import (
	"context"
	"sync"
	"time"
)

// RateLimiter implements a token bucket. A nil limiter never waits.
type RateLimiter struct {
	rate       float64 // requests per second
	tokens     float64
	maxTokens  float64 // burst size
	lastUpdate time.Time
	mu         sync.Mutex
}

// NewRateLimiter creates a limiter allowing rate requests per second.
// A rate of 0 or less disables limiting.
func NewRateLimiter(rate float64) *RateLimiter {
	if rate <= 0 {
		return nil
	}
	return &RateLimiter{
		rate:       rate,
		tokens:     rate,
		maxTokens:  rate * 2,
		lastUpdate: time.Now(),
	}
}

// Wait blocks until a token is available or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if rl == nil {
		return nil
	}

	rl.mu.Lock()
	now := time.Now()
	rl.tokens += now.Sub(rl.lastUpdate).Seconds() * rl.rate
	if rl.tokens > rl.maxTokens {
		rl.tokens = rl.maxTokens
	}
	rl.lastUpdate = now

	// Reserve the token now; a later caller waits behind us.
	rl.tokens--
	if rl.tokens >= 0 {
		rl.mu.Unlock()
		return nil
	}
	wait := time.Duration(-rl.tokens / rl.rate * float64(time.Second))
	rl.mu.Unlock()

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		rl.mu.Lock()
		rl.tokens++
		rl.mu.Unlock()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
