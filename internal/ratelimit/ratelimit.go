// Package ratelimit provides a sliding-window upload limiter keyed by
// platform name.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limit caps uploads at MaxUploads within any trailing Window. A
// non-positive MaxUploads or Window disables limiting.
type Limit struct {
	MaxUploads int
	Window     time.Duration
}

func (l Limit) enabled() bool {
	return l.MaxUploads > 0 && l.Window > 0
}

// Limiter tracks upload timestamps per platform and blocks callers
// until a slot opens in the window. All state is guarded by a single
// mutex; waiting happens unlocked so platforms never stall each other.
type Limiter struct {
	mu       sync.Mutex
	defaults Limit
	limits   map[string]Limit
	stamps   map[string][]time.Time

	// now is replaceable in tests
	now func() time.Time
}

// New creates a limiter that applies def to every platform without an
// explicit override.
func New(def Limit) *Limiter {
	return &Limiter{
		defaults: def,
		limits:   make(map[string]Limit),
		stamps:   make(map[string][]time.Time),
		now:      time.Now,
	}
}

// SetLimit overrides the default limit for one platform.
func (l *Limiter) SetLimit(platform string, limit Limit) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limits[platform] = limit
}

func (l *Limiter) limitFor(platform string) Limit {
	if limit, ok := l.limits[platform]; ok {
		return limit
	}
	return l.defaults
}

// prune drops timestamps that fell out of the trailing window.
func prune(stamps []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	i := 0
	for i < len(stamps) && !stamps[i].After(cutoff) {
		i++
	}
	return stamps[i:]
}

// Acquire blocks until the platform has a free upload slot, then
// records the upload. The wait ends exactly when the oldest recorded
// upload leaves the window. Returns the context error if ctx is
// cancelled while waiting.
func (l *Limiter) Acquire(ctx context.Context, platform string) error {
	for {
		l.mu.Lock()
		limit := l.limitFor(platform)
		if !limit.enabled() {
			l.mu.Unlock()
			return nil
		}

		now := l.now()
		stamps := prune(l.stamps[platform], now, limit.Window)
		if len(stamps) < limit.MaxUploads {
			l.stamps[platform] = append(stamps, now)
			l.mu.Unlock()
			return nil
		}

		wait := stamps[0].Add(limit.Window).Sub(now)
		l.stamps[platform] = stamps
		l.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// InWindow reports how many uploads for the platform are still inside
// the trailing window.
func (l *Limiter) InWindow(platform string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	limit := l.limitFor(platform)
	if !limit.enabled() {
		return 0
	}
	stamps := prune(l.stamps[platform], l.now(), limit.Window)
	l.stamps[platform] = stamps
	return len(stamps)
}
