// Package ratelimit implements per-(route, credential) rate limiting with
// lazy-refill token buckets.
package ratelimit

import (
	"math"
	"sync"
	"time"
)

// Decision is the outcome of a rate limit check.
type Decision struct {
	Allowed           bool
	RetryAfterSeconds uint64
}

// Snapshot summarizes limiter state for the health endpoint.
type Snapshot struct {
	ActiveBuckets int            `json:"activeBuckets"`
	Routes        map[string]int `json:"routes"`
}

type bucketKey struct {
	route      string
	credential string
}

// bucket is a token bucket with lazy refill (no background goroutine).
type bucket struct {
	mu       sync.Mutex
	tokens   float64
	capacity float64
	rate     float64 // tokens per second
	lastFill time.Time
	lastUsed time.Time
	settings Settings
}

func newBucket(settings Settings, now time.Time) *bucket {
	capacity := float64(settings.Burst)
	return &bucket{
		tokens:   capacity,
		capacity: capacity,
		rate:     float64(settings.RequestsPerMinute) / 60.0,
		lastFill: now,
		lastUsed: now,
		settings: settings,
	}
}

// updateSettings resets the bucket to full when the effective limits
// changed since it was created. Callers hold b.mu.
func (b *bucket) updateSettings(settings Settings, now time.Time) {
	if b.settings == settings {
		return
	}
	b.settings = settings
	b.capacity = float64(settings.Burst)
	b.rate = float64(settings.RequestsPerMinute) / 60.0
	b.tokens = b.capacity
	b.lastFill = now
}

// refill adds tokens for the elapsed time. A full bucket only advances the
// clock so idle time never accumulates beyond capacity.
func (b *bucket) refill(now time.Time) {
	if b.tokens >= b.capacity {
		b.lastFill = now
		return
	}
	elapsed := now.Sub(b.lastFill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens = min(b.capacity, b.tokens+elapsed*b.rate)
	b.lastFill = now
}

// tryConsume takes one token, or reports how long until one is available.
func (b *bucket) tryConsume(now time.Time) (retryAfter uint64, allowed bool) {
	b.refill(now)
	if b.tokens >= 1 {
		b.tokens--
		return 0, true
	}
	needed := 1 - b.tokens
	if b.rate <= 0 {
		return 60, false
	}
	return max(1, uint64(math.Ceil(needed/b.rate))), false
}

// Limiter keys token buckets by (route, credential) so each client gets an
// independent budget per route.
type Limiter struct {
	mu      sync.RWMutex
	buckets map[bucketKey]*bucket
}

// NewLimiter creates an empty limiter.
func NewLimiter() *Limiter {
	return &Limiter{buckets: make(map[bucketKey]*bucket)}
}

// Check consumes one token from the bucket for (route, credential),
// creating the bucket on first sight. Changed settings reset the bucket.
func (l *Limiter) Check(route, credential string, settings Settings) Decision {
	now := time.Now()
	key := bucketKey{route: route, credential: credential}

	l.mu.RLock()
	b, ok := l.buckets[key]
	l.mu.RUnlock()

	if !ok {
		l.mu.Lock()
		if b, ok = l.buckets[key]; !ok {
			b = newBucket(settings, now)
			l.buckets[key] = b
		}
		l.mu.Unlock()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.updateSettings(settings, now)
	b.lastUsed = now
	retryAfter, allowed := b.tryConsume(now)
	return Decision{Allowed: allowed, RetryAfterSeconds: retryAfter}
}

// Snapshot returns the active bucket count and per-route bucket counts.
func (l *Limiter) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	routes := make(map[string]int, len(l.buckets))
	for key := range l.buckets {
		routes[key.route]++
	}
	return Snapshot{ActiveBuckets: len(l.buckets), Routes: routes}
}

// EvictStale removes buckets not used since cutoff and returns how many
// were dropped.
func (l *Limiter) EvictStale(cutoff time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	evicted := 0
	for key, b := range l.buckets {
		b.mu.Lock()
		stale := b.lastUsed.Before(cutoff)
		b.mu.Unlock()
		if stale {
			delete(l.buckets, key)
			evicted++
		}
	}
	return evicted
}
