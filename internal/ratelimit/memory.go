package ratelimit

import (
	"context"
	"sync"
	"time"
)

const (
	// Keys not seen for this long are dropped so the table stays bounded
	// by the number of recently active callers.
	idleEvictAfter = 15 * time.Minute
	// Minimum spacing between sweeps of the key table.
	sweepEvery = time.Minute
)

// entry is the token balance for one caller key.
type entry struct {
	tokens float64
	seen   time.Time
}

// MemoryLimiter is a process-local token bucket Limiter. Each key earns
// rate tokens per second up to a burst-sized balance, and every allowed
// request spends one.
//
// Decivue deploys as a single process in front of one Postgres, so a
// per-process limiter is the real limit, not an approximation. Idle keys
// are swept inline during Allow; there is no background goroutine.
type MemoryLimiter struct {
	rate  float64
	burst float64
	now   func() time.Time // stubbed in tests

	mu        sync.Mutex
	entries   map[string]*entry
	lastSweep time.Time
}

// NewMemoryLimiter creates a limiter allowing rate sustained requests per
// second per key, with bursts up to burst.
func NewMemoryLimiter(rate float64, burst int) *MemoryLimiter {
	return &MemoryLimiter{
		rate:    rate,
		burst:   float64(burst),
		now:     time.Now,
		entries: make(map[string]*entry),
	}
}

// Allow spends one token from key's balance. A new key starts with a full
// burst, so the first request always passes.
func (m *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.sweepIfDue(now)

	e, ok := m.entries[key]
	if !ok {
		m.entries[key] = &entry{tokens: m.burst - 1, seen: now}
		return true, nil
	}

	e.tokens += now.Sub(e.seen).Seconds() * m.rate
	if e.tokens > m.burst {
		e.tokens = m.burst
	}
	e.seen = now

	if e.tokens < 1 {
		return false, nil
	}
	e.tokens--
	return true, nil
}

// Close implements Limiter. The limiter holds no external resources.
func (m *MemoryLimiter) Close() error { return nil }

// sweepIfDue drops idle entries at most once per sweepEvery.
// Caller holds m.mu.
func (m *MemoryLimiter) sweepIfDue(now time.Time) {
	if now.Sub(m.lastSweep) < sweepEvery {
		return
	}
	m.lastSweep = now
	for key, e := range m.entries {
		if now.Sub(e.seen) > idleEvictAfter {
			delete(m.entries, key)
		}
	}
}
