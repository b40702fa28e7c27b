// Package ratelimit implements the fixed-window per-client counter that
// gates metadata resolution.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

const (
	// Window is the fixed counting period per client key.
	Window = 10 * time.Minute
	// Limit is the number of requests allowed per Window.
	Limit = 10
)

type record struct {
	count       int
	windowStart time.Time
}

// Limiter counts requests per client key. The zero value is not usable; use New.
type Limiter struct {
	mu      sync.Mutex
	records map[string]*record
	now     func() time.Time
}

type Option func(*Limiter)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

func New(opts ...Option) *Limiter {
	l := &Limiter{
		records: make(map[string]*record),
		now:     time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Allow records one request for key and reports whether it is within Limit.
// A missing record or one whose window has passed restarts the window.
func (l *Limiter) Allow(key string) bool {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	r, ok := l.records[key]
	if !ok || now.Sub(r.windowStart) > Window {
		l.records[key] = &record{count: 1, windowStart: now}
		return true
	}
	r.count++
	return r.count <= Limit
}

// Sweep drops records whose window has passed and returns how many were removed.
func (l *Limiter) Sweep() int {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for k, r := range l.records {
		if now.Sub(r.windowStart) > Window {
			delete(l.records, k)
			n++
		}
	}
	return n
}

// Len returns the number of tracked client keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// RunJanitor calls Sweep every interval until ctx is done.
func (l *Limiter) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			l.Sweep()
		}
	}
}
