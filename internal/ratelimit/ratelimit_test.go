package ratelimit

import (
	"testing"
	"time"
)

func TestCheck_EnforcesBurst(t *testing.T) {
	t.Parallel()
	l := NewLimiter()
	settings := Settings{RequestsPerMinute: 2, Burst: 2}

	for i := range 2 {
		if d := l.Check("/v1/test", "client", settings); !d.Allowed {
			t.Fatalf("request %d should be allowed", i)
		}
	}
	d := l.Check("/v1/test", "client", settings)
	if d.Allowed {
		t.Fatal("third request should be limited")
	}
	if d.RetryAfterSeconds < 1 {
		t.Errorf("retry after = %d, want >= 1", d.RetryAfterSeconds)
	}
}

func TestCheck_ResetsBucketWhenSettingsChange(t *testing.T) {
	t.Parallel()
	l := NewLimiter()
	strict := Settings{RequestsPerMinute: 1, Burst: 1}
	relaxed := Settings{RequestsPerMinute: 10, Burst: 10}

	if d := l.Check("/v1/test", "client", strict); !d.Allowed {
		t.Fatal("first request should pass")
	}
	if d := l.Check("/v1/test", "client", strict); d.Allowed {
		t.Fatal("second request should be limited")
	}
	if d := l.Check("/v1/test", "client", relaxed); !d.Allowed {
		t.Fatal("new settings should reset the bucket")
	}
}

func TestCheck_IsolatesRoutesAndCredentials(t *testing.T) {
	t.Parallel()
	l := NewLimiter()
	settings := Settings{RequestsPerMinute: 1, Burst: 1}

	if d := l.Check("/route/a", "client", settings); !d.Allowed {
		t.Fatal("route a should pass")
	}
	if d := l.Check("/route/b", "client", settings); !d.Allowed {
		t.Fatal("route b has its own bucket")
	}
	if d := l.Check("/route/a", "other", settings); !d.Allowed {
		t.Fatal("other credential has its own bucket")
	}
}

func TestSnapshot_CountsRoutes(t *testing.T) {
	t.Parallel()
	l := NewLimiter()
	settings := Settings{RequestsPerMinute: 5, Burst: 5}
	l.Check("/route/a", "client-a", settings)
	l.Check("/route/a", "client-b", settings)
	l.Check("/route/b", "client-a", settings)

	snap := l.Snapshot()
	if snap.ActiveBuckets != 3 {
		t.Errorf("active buckets = %d, want 3", snap.ActiveBuckets)
	}
	if snap.Routes["/route/a"] != 2 || snap.Routes["/route/b"] != 1 {
		t.Errorf("routes = %v", snap.Routes)
	}
}

func TestEvictStale(t *testing.T) {
	t.Parallel()
	l := NewLimiter()
	settings := Settings{RequestsPerMinute: 5, Burst: 5}
	l.Check("/route/a", "client", settings)

	if n := l.EvictStale(time.Now().Add(-time.Hour)); n != 0 {
		t.Errorf("fresh bucket evicted: %d", n)
	}
	if n := l.EvictStale(time.Now().Add(time.Hour)); n != 1 {
		t.Errorf("evicted = %d, want 1", n)
	}
	if snap := l.Snapshot(); snap.ActiveBuckets != 0 {
		t.Errorf("active buckets after eviction = %d", snap.ActiveBuckets)
	}
}

func TestBucket_RefillOverTime(t *testing.T) {
	t.Parallel()
	now := time.Now()
	b := newBucket(Settings{RequestsPerMinute: 60, Burst: 1}, now)

	if _, allowed := b.tryConsume(now); !allowed {
		t.Fatal("full bucket should allow")
	}
	if _, allowed := b.tryConsume(now); allowed {
		t.Fatal("empty bucket should limit")
	}
	// 60 rpm refills one token per second.
	if _, allowed := b.tryConsume(now.Add(1100 * time.Millisecond)); !allowed {
		t.Fatal("bucket should refill after a second")
	}
}

func TestBucket_RetryAfterCeiling(t *testing.T) {
	t.Parallel()
	now := time.Now()
	b := newBucket(Settings{RequestsPerMinute: 1, Burst: 1}, now)
	b.tryConsume(now)

	retryAfter, allowed := b.tryConsume(now)
	if allowed {
		t.Fatal("should be limited")
	}
	// One token per minute: a full token costs 60 seconds.
	if retryAfter != 60 {
		t.Errorf("retry after = %d, want 60", retryAfter)
	}
}
