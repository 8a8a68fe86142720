// Package ratelimit implements fixed-window rate limiting keyed by
// recipient and scope.
package ratelimit

import (
	"sort"
	"sync"
	"time"
)

// Scope describes one fixed-window counting bucket.
type Scope struct {
	Limit  int
	Window time.Duration
}

// Verdict is the outcome of a rate limit check.
type Verdict struct {
	Allowed    bool          `json:"allowed"`
	Scope      string        `json:"scope,omitempty"`
	Current    int           `json:"current"`
	Limit      int           `json:"limit"`
	ResetAt    time.Time     `json:"reset_at"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
}

type counterKey struct {
	recipientID string
	scope       string
}

type counter struct {
	windowStart time.Time
	count       int
}

// Limiter enforces fixed-window counters per (recipient, scope). A
// request is blocked if any configured scope is at or over its limit.
// Window boundaries are fixed wall-clock truncations, not sliding.
type Limiter struct {
	mu       sync.Mutex
	scopes   map[string]Scope
	order    []string
	counters map[counterKey]*counter
	now      func() time.Time
}

// New creates a limiter for the given scopes. With no scopes configured
// every request is allowed.
func New(scopes map[string]Scope) *Limiter {
	order := make([]string, 0, len(scopes))
	for name := range scopes {
		order = append(order, name)
	}
	// Deterministic evaluation order so the blocking scope is stable.
	sort.Strings(order)

	return &Limiter{
		scopes:   scopes,
		order:    order,
		counters: make(map[counterKey]*counter),
		now:      time.Now,
	}
}

// Allow checks all scopes for the recipient and, if every scope has
// headroom, consumes one unit from each. The check-and-increment is a
// single critical section so concurrent callers never exceed a limit.
func (l *Limiter) Allow(recipientID string) Verdict {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	// First pass: find a blocking scope without mutating any counter.
	for _, name := range l.order {
		scope := l.scopes[name]
		c := l.counterFor(recipientID, name, scope, now)
		if c.count >= scope.Limit {
			resetAt := c.windowStart.Add(scope.Window)
			return Verdict{
				Allowed:    false,
				Scope:      name,
				Current:    c.count,
				Limit:      scope.Limit,
				ResetAt:    resetAt,
				RetryAfter: resetAt.Sub(now),
			}
		}
	}

	// Second pass: consume from every scope.
	v := Verdict{Allowed: true}
	for _, name := range l.order {
		scope := l.scopes[name]
		c := l.counterFor(recipientID, name, scope, now)
		c.count++
		// Report the tightest scope for observability.
		if v.Limit == 0 || scope.Limit-c.count < v.Limit-v.Current {
			v.Scope = name
			v.Current = c.count
			v.Limit = scope.Limit
			v.ResetAt = c.windowStart.Add(scope.Window)
		}
	}
	return v
}

// counterFor returns the live counter for the key, resetting it when
// the window has rolled over. Callers must hold l.mu.
func (l *Limiter) counterFor(recipientID, name string, scope Scope, now time.Time) *counter {
	key := counterKey{recipientID: recipientID, scope: name}
	windowStart := now.Truncate(scope.Window)

	c, ok := l.counters[key]
	if !ok {
		c = &counter{windowStart: windowStart}
		l.counters[key] = c
		return c
	}

	if !c.windowStart.Equal(windowStart) {
		// Fixed windows reset fully at the boundary, no carry-over.
		c.windowStart = windowStart
		c.count = 0
	}
	return c
}

// EvictExpired drops counters whose window ended before now. Returns
// the number of evicted counters.
func (l *Limiter) EvictExpired(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	evicted := 0
	for key, c := range l.counters {
		scope, ok := l.scopes[key.scope]
		if !ok || c.windowStart.Add(scope.Window).Before(now) {
			delete(l.counters, key)
			evicted++
		}
	}
	return evicted
}

// Size returns the number of live counters, for stats.
func (l *Limiter) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.counters)
}
