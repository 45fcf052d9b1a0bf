// Package ratelimit implements fixed-window request budgets keyed by
// endpoint class and client. The window refills in full when it rolls
// over; there is no gradual token drip.
package ratelimit

import (
	"sync"
	"time"
)

const defaultWindow = time.Minute

// Limits holds the per-window request budget for each class.
type Limits struct {
	Login   int
	OAuth   int
	Refresh int
	Write   int
	Default int
	Window  time.Duration
}

// DefaultLimits mirror the shipped configuration defaults.
func DefaultLimits() Limits {
	return Limits{
		Login:   5,
		OAuth:   10,
		Refresh: 20,
		Write:   30,
		Default: 100,
		Window:  defaultWindow,
	}
}

func (l Limits) forClass(c Class) int {
	switch c {
	case ClassAuthLogin:
		return l.Login
	case ClassAuthOAuth:
		return l.OAuth
	case ClassAuthRefresh:
		return l.Refresh
	case ClassTrucksCreate, ClassTrucksUpdate:
		return l.Write
	default:
		return l.Default
	}
}

// Decision is the outcome of one admission check, with everything the
// HTTP layer needs for the response headers.
type Decision struct {
	OK         bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
	Reset      time.Time
}

type bucket struct {
	count       int
	windowStart time.Time
	lastSeen    time.Time
}

type key struct {
	class  Class
	client string
}

// Limiter tracks a fixed-window bucket per (class, client) pair. All state
// is in memory; budgets are per process.
type Limiter struct {
	limits Limits
	now    func() time.Time

	mu      sync.Mutex
	buckets map[key]*bucket
}

// Option configures Limiter behavior.
type Option func(*Limiter)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(l *Limiter) {
		if fn != nil {
			l.now = fn
		}
	}
}

// NewLimiter constructs a Limiter with the given budgets.
func NewLimiter(limits Limits, opts ...Option) *Limiter {
	if limits.Window <= 0 {
		limits.Window = defaultWindow
	}
	l := &Limiter{
		limits:  limits,
		now:     time.Now,
		buckets: make(map[key]*bucket),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow consumes one request from the (class, client) bucket and reports
// the decision. A rejected request consumes nothing.
func (l *Limiter) Allow(c Class, client string) Decision {
	limit := l.limits.forClass(c)
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	k := key{class: c, client: client}
	b, ok := l.buckets[k]
	if !ok {
		b = &bucket{windowStart: now}
		l.buckets[k] = b
	}
	if now.Sub(b.windowStart) >= l.limits.Window {
		// Window rolled over: the budget snaps back to full.
		b.count = 0
		b.windowStart = now
	}
	b.lastSeen = now

	reset := b.windowStart.Add(l.limits.Window)
	if b.count >= limit {
		return Decision{
			OK:         false,
			Limit:      limit,
			Remaining:  0,
			RetryAfter: reset.Sub(now),
			Reset:      reset,
		}
	}
	b.count++
	return Decision{
		OK:        true,
		Limit:     limit,
		Remaining: limit - b.count,
		Reset:     reset,
	}
}

// Reset drops all buckets.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buckets = make(map[key]*bucket)
}

// Prune removes buckets idle longer than the given age. Meant to be called
// periodically from a background goroutine.
func (l *Limiter) Prune(olderThan time.Duration) int {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for k, b := range l.buckets {
		if now.Sub(b.lastSeen) > olderThan {
			delete(l.buckets, k)
			removed++
		}
	}
	return removed
}
