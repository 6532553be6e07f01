package node

import (
	"context"
	"log/slog"

	"golang.org/x/time/rate"
)

// RateLimiter wraps a token bucket rate limiter for the node RPC
// connection, adapted from the teacher's scanner.RateLimiter (there it
// throttled one balance provider; here it throttles the single Bitcoin
// node during read-ahead prefetch, §6).
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter creates a rate limiter allowing rps requests per second.
func NewRateLimiter(rps int) *RateLimiter {
	slog.Debug("node rate limiter created", "rps", rps)
	return &RateLimiter{
		// Burst(1) spreads requests evenly instead of allowing a burst that
		// could overwhelm a node mid-prefetch.
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// Wait blocks until the rate limiter allows another request or ctx is
// cancelled.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if err := rl.limiter.Wait(ctx); err != nil {
		slog.Warn("node rate limiter wait cancelled", "error", err)
		return err
	}
	return nil
}
