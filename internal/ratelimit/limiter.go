// Package ratelimit implements a fixed-window request limiter keyed by
// client identity.
package ratelimit

import (
	"sync"
	"time"
)

// Result describes one admission decision.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

type window struct {
	start time.Time
	count int
}

// Limiter counts requests per identity inside fixed windows. A window is
// replaced lazily on the first request after it expires, so an idle
// identity costs nothing between sweeps.
type Limiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]*window

	sweepEvery time.Duration
	stop       chan struct{}
	done       chan struct{}
}

// New builds a Limiter allowing limit requests per identity per window.
func New(limit int, windowSize, sweepEvery time.Duration) *Limiter {
	return &Limiter{
		limit:      limit,
		window:     windowSize,
		now:        time.Now,
		entries:    map[string]*window{},
		sweepEvery: sweepEvery,
	}
}

// Check records one request for id and reports whether it is admitted.
func (l *Limiter) Check(id string) Result {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.entries[id]
	if !ok || now.Sub(w.start) >= l.window {
		w = &window{start: now}
		l.entries[id] = w
	}

	resetAt := w.start.Add(l.window)
	if w.count >= l.limit {
		return Result{Allowed: false, Limit: l.limit, Remaining: 0, ResetAt: resetAt}
	}
	w.count++
	return Result{
		Allowed:   true,
		Limit:     l.limit,
		Remaining: l.limit - w.count,
		ResetAt:   resetAt,
	}
}

// Start launches the background sweep that drops expired windows. Calling
// Start twice is a bug.
func (l *Limiter) Start() {
	l.stop = make(chan struct{})
	l.done = make(chan struct{})
	go func() {
		defer close(l.done)
		ticker := time.NewTicker(l.sweepEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.sweep()
			case <-l.stop:
				return
			}
		}
	}()
}

// Stop terminates the sweep goroutine and waits for it to exit.
func (l *Limiter) Stop() {
	if l.stop == nil {
		return
	}
	close(l.stop)
	<-l.done
}

func (l *Limiter) sweep() {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, w := range l.entries {
		if now.Sub(w.start) >= l.window {
			delete(l.entries, id)
		}
	}
}
