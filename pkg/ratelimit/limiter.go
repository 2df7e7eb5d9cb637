// Package ratelimit provides an in-memory token bucket keyed by string.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

const (
	sweepInterval = 5 * time.Minute
	staleAfter    = 10 * time.Minute
)

type bucket struct {
	tokens   int
	lastFill time.Time
}

// Limiter allows up to capacity events per key, refilling one token every
// refill interval.
type Limiter struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	refill   time.Duration
	capacity int
	now      func() time.Time
}

func New(refill time.Duration, capacity int) *Limiter {
	if refill <= 0 {
		refill = time.Second
	}
	if capacity < 1 {
		capacity = 1
	}
	return &Limiter{
		buckets:  make(map[string]*bucket),
		refill:   refill,
		capacity: capacity,
		now:      time.Now,
	}
}

// Allow takes a token for key and reports whether one was available.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.capacity, lastFill: now}
		l.buckets[key] = b
	}

	if add := int(now.Sub(b.lastFill) / l.refill); add > 0 {
		b.tokens = min(b.tokens+add, l.capacity)
		b.lastFill = b.lastFill.Add(time.Duration(add) * l.refill)
	}
	if b.tokens == 0 {
		return false
	}
	b.tokens--
	return true
}

// Reset refills the bucket for key, e.g. after a successful login.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	delete(l.buckets, key)
	l.mu.Unlock()
}

// Run drops idle buckets until ctx is done.
func (l *Limiter) Run(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}

func (l *Limiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	threshold := l.now().Add(-staleAfter)
	for key, b := range l.buckets {
		if b.lastFill.Before(threshold) {
			delete(l.buckets, key)
		}
	}
}

func (l *Limiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
