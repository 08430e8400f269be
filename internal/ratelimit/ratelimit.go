// Package ratelimit enforces per-caller request budgets for the HTTP API.
//
// The server wires three rules: "query" for reads and "mutate" for writes,
// both keyed by the authenticated user ID, and "auth" for token issuance,
// keyed by client IP since no identity exists yet. MemoryLimiter is the
// process-local implementation; NoopLimiter stands in when limiting is
// disabled via DECIVUE_RATE_LIMIT_ENABLED.
package ratelimit

import "context"

// Limiter answers whether one more request under key may proceed.
// Implementations must be safe for concurrent use.
type Limiter interface {
	// Allow reports whether the request identified by key proceeds. Keys
	// arrive namespaced by rule, e.g. "query:maria.ops" or "auth:203.0.113.9".
	// An error means the limiter itself failed; the middleware treats that
	// as fail-open so a broken limiter cannot take the API down with it.
	Allow(ctx context.Context, key string) (bool, error)

	// Close releases any resources held by the limiter.
	Close() error
}

// NoopLimiter admits every request.
type NoopLimiter struct{}

func (NoopLimiter) Allow(context.Context, string) (bool, error) { return true, nil }

func (NoopLimiter) Close() error { return nil }
