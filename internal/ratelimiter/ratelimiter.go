package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter throttles remote command invocations using a token bucket.
//
// Some iRODS deployments throttle or reject clients that open many short
// connections in quick succession, and every icommand opens one. The limiter
// spaces out invocations so that bulk operations (uploading thousands of
// items, listing many datasets) stay under the server's connection rate.
//
// A nil *RateLimiter is valid and never blocks.
//
// Thread safety:
// All methods are safe for concurrent use.
type RateLimiter struct {
	limiter *rate.Limiter
}

// New creates a RateLimiter allowing requestsPerSecond sustained commands
// with bursts of up to burst commands.
//
// A zero requestsPerSecond disables limiting and returns nil. A zero burst
// is raised to 1 so that the limiter can ever admit a command.
func New(requestsPerSecond, burst uint) *RateLimiter {
	if requestsPerSecond == 0 {
		return nil
	}
	if burst == 0 {
		burst = 1
	}

	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), int(burst)),
	}
}

// Allow reports whether a command may run now, consuming a token if so.
func (r *RateLimiter) Allow() bool {
	if r == nil {
		return true
	}
	return r.limiter.Allow()
}

// Wait blocks until a token is available or the context is cancelled.
//
// Returns the context error if ctx is done before a token was acquired.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if r == nil {
		return ctx.Err()
	}
	return r.limiter.Wait(ctx)
}

// Tokens returns the number of tokens currently in the bucket.
// Primarily useful for tests and debugging.
func (r *RateLimiter) Tokens() float64 {
	if r == nil {
		return 0
	}
	return r.limiter.Tokens()
}
