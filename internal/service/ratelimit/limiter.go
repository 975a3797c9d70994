package ratelimit

import (
	"sync"
	"time"
)

type bucket struct {
	tokens float64
	last   time.Time
}

// Limiter is a keyed token bucket. Every key shares the same capacity and
// refill rate.
type Limiter struct {
	mu         sync.Mutex
	m          map[string]*bucket
	capacity   float64
	refillRate float64 // tokens per second
	now        func() time.Time
}

// New creates a limiter. A capacity <= 0 allows everything.
func New(capacity, refillPerSec float64) *Limiter {
	return &Limiter{
		m:          make(map[string]*bucket),
		capacity:   capacity,
		refillRate: refillPerSec,
		now:        time.Now,
	}
}

// Allow returns true if one token can be consumed for key.
func (l *Limiter) Allow(key string) bool {
	if l.capacity <= 0 {
		return true
	}
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.m[key]
	if !ok {
		b = &bucket{tokens: l.capacity, last: now}
		l.m[key] = b
	}
	if elapsed := now.Sub(b.last).Seconds(); elapsed > 0 {
		b.tokens += elapsed * l.refillRate
		if b.tokens > l.capacity {
			b.tokens = l.capacity
		}
		b.last = now
	}
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// Prune drops buckets idle for longer than idle; they would be full again.
func (l *Limiter) Prune(idle time.Duration) int {
	cutoff := l.now().Add(-idle)
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for k, b := range l.m {
		if b.last.Before(cutoff) {
			delete(l.m, k)
			n++
		}
	}
	return n
}
