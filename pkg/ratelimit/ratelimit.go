// Package ratelimit implements a generic identity-keyed sliding-window
// admission controller. It is independent of what is being limited; call
// sites construct one limiter per concern and must not share instances
// between concerns with different budgets.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter admits at most maxRequests events per identity within a trailing
// window. Timestamps older than the window are pruned on every check, so
// per-identity state never grows unbounded.
type Limiter struct {
	maxRequests int
	window      time.Duration

	mu     sync.Mutex
	events map[string][]time.Time
	now    func() time.Time
}

// New creates a limiter admitting maxRequests per window for each identity.
func New(maxRequests int, window time.Duration) *Limiter {
	return &Limiter{
		maxRequests: maxRequests,
		window:      window,
		events:      make(map[string][]time.Time),
		now:         time.Now,
	}
}

// SetClock replaces the time source. Tests use this to verify admission
// behavior without real sleeps.
func (l *Limiter) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// Allow reports whether a request for identity is admitted, recording the
// event when it is. A denied request records nothing.
func (l *Limiter) Allow(identity string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	recent := l.prune(identity, now)
	if len(recent) >= l.maxRequests {
		return false
	}

	l.events[identity] = append(recent, now)
	return true
}

// Remaining reports how many further requests the identity could make right
// now. It never returns a negative number and records nothing.
func (l *Limiter) Remaining(identity string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	recent := l.prune(identity, l.now())
	if len(recent) >= l.maxRequests {
		return 0
	}
	return l.maxRequests - len(recent)
}

// prune drops events older than the window and stores the surviving slice.
// Callers must hold l.mu.
func (l *Limiter) prune(identity string, now time.Time) []time.Time {
	cutoff := now.Add(-l.window)
	recent := l.events[identity][:0]
	for _, ts := range l.events[identity] {
		if ts.After(cutoff) {
			recent = append(recent, ts)
		}
	}
	if len(recent) == 0 {
		delete(l.events, identity)
		return nil
	}
	l.events[identity] = recent
	return recent
}
