package ratelimit

import (
	"sync"
	"time"
)

// Decision is the outcome of a single admission check.
type Decision struct {
	Allowed    bool
	Remaining  int           // admissions left in the current window
	RetryAfter time.Duration // time until the window resets; zero when allowed
}

// window is the per-client counter. Its mutex scopes contention to one client.
type window struct {
	mu      sync.Mutex
	start   time.Time
	count   int
	evicted bool // set under mu when Sweep removes it from the map
}

// WindowLimiter admits at most limit requests per client identity in a fixed
// window that starts at the client's first request.
type WindowLimiter struct {
	windows sync.Map // client id -> *window
	limit   int
	period  time.Duration
	now     func() time.Time
}

// NewWindowLimiter creates a limiter admitting limit requests per period per client.
func NewWindowLimiter(limit int, period time.Duration) *WindowLimiter {
	return &WindowLimiter{
		limit:  limit,
		period: period,
		now:    time.Now,
	}
}

// WithClock replaces the time source. Intended for tests.
func (l *WindowLimiter) WithClock(now func() time.Time) *WindowLimiter {
	l.now = now
	return l
}

// Admit records one request for clientID and reports whether it is allowed.
func (l *WindowLimiter) Admit(clientID string) Decision {
	for {
		w := l.load(clientID)

		w.mu.Lock()
		if w.evicted {
			// Lost a race with Sweep; the next load creates a fresh window.
			w.mu.Unlock()
			continue
		}

		now := l.now()
		if w.count == 0 || now.Sub(w.start) >= l.period {
			w.start = now
			w.count = 0
		}

		if w.count < l.limit {
			w.count++
			d := Decision{Allowed: true, Remaining: l.limit - w.count}
			w.mu.Unlock()
			return d
		}

		d := Decision{RetryAfter: w.start.Add(l.period).Sub(now)}
		w.mu.Unlock()
		return d
	}
}

func (l *WindowLimiter) load(clientID string) *window {
	if v, ok := l.windows.Load(clientID); ok {
		return v.(*window)
	}
	v, _ := l.windows.LoadOrStore(clientID, &window{})
	return v.(*window)
}

// Sweep removes windows that have expired and returns how many were removed.
func (l *WindowLimiter) Sweep() int {
	now := l.now()
	removed := 0
	l.windows.Range(func(key, value any) bool {
		w := value.(*window)
		w.mu.Lock()
		if !w.evicted && now.Sub(w.start) >= l.period {
			w.evicted = true
			l.windows.CompareAndDelete(key, w)
			removed++
		}
		w.mu.Unlock()
		return true
	})
	return removed
}

// Len returns the number of tracked client windows.
func (l *WindowLimiter) Len() int {
	n := 0
	l.windows.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
