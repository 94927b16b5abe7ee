package pool

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/H-Chris233/api-router/internal/urlutil"
)

// acceptingListener accepts connections and holds them open.
func acceptingListener(t *testing.T) (net.Listener, Key) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
		}
	}()
	addr := ln.Addr().(*net.TCPAddr)
	return ln, Key{Scheme: "http", Host: "127.0.0.1", Port: addr.Port}
}

func TestKeyForURL(t *testing.T) {
	t.Parallel()
	u, err := urlutil.Parse("https://api.example.com/v1/chat")
	if err != nil {
		t.Fatal(err)
	}
	key := KeyForURL(u)
	if key != (Key{Scheme: "https", Host: "api.example.com", Port: 443}) {
		t.Errorf("key = %+v", key)
	}

	u, err = urlutil.Parse("http://api.example.com:8080/v1/chat")
	if err != nil {
		t.Fatal(err)
	}
	if key := KeyForURL(u); key.Port != 8080 {
		t.Errorf("explicit port lost: %+v", key)
	}
}

func TestAcquireReturnReuses(t *testing.T) {
	t.Parallel()
	_, key := acceptingListener(t)
	p := New(DefaultConfig())

	conn, err := p.Acquire(context.Background(), key)
	if err != nil {
		t.Fatal(err)
	}
	id := conn.ID()
	p.Return(conn)

	again, err := p.Acquire(context.Background(), key)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Recycle(again)
	if again.ID() != id {
		t.Errorf("expected reused connection %d, got %d", id, again.ID())
	}
}

func TestAcquireDiscardsExpiredIdle(t *testing.T) {
	t.Parallel()
	_, key := acceptingListener(t)
	p := New(Config{MaxSize: 2, IdleTimeout: 10 * time.Millisecond})

	conn, err := p.Acquire(context.Background(), key)
	if err != nil {
		t.Fatal(err)
	}
	id := conn.ID()
	p.Return(conn)

	time.Sleep(30 * time.Millisecond)

	fresh, err := p.Acquire(context.Background(), key)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Recycle(fresh)
	if fresh.ID() == id {
		t.Error("expired connection should not be reused")
	}
}

func TestAcquireBlocksAtCapacity(t *testing.T) {
	t.Parallel()
	_, key := acceptingListener(t)
	p := New(Config{MaxSize: 1, IdleTimeout: time.Minute})

	held, err := p.Acquire(context.Background(), key)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := p.Acquire(ctx, key); err == nil {
		t.Fatal("second acquire should block until timeout")
	}

	p.Return(held)
	reused, err := p.Acquire(context.Background(), key)
	if err != nil {
		t.Fatal(err)
	}
	p.Recycle(reused)
}

func TestAcquireConcurrentRespectsBound(t *testing.T) {
	t.Parallel()
	_, key := acceptingListener(t)
	p := New(Config{MaxSize: 2, IdleTimeout: time.Minute})

	var wg sync.WaitGroup
	var held, peak atomic.Int64
	for range 8 {
		wg.Go(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			conn, err := p.Acquire(ctx, key)
			if err != nil {
				t.Error(err)
				return
			}
			cur := held.Add(1)
			for {
				old := peak.Load()
				if cur <= old || peak.CompareAndSwap(old, cur) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			held.Add(-1)
			p.Return(conn)
		})
	}
	wg.Wait()

	if got := peak.Load(); got > 2 {
		t.Errorf("held %d connections at once, want at most 2", got)
	}
	hp := p.hostPoolFor(key)
	if n := hp.active.Load(); n > 2 {
		t.Errorf("active = %d, want at most 2", n)
	}
}

func TestRecycleFreesCapacity(t *testing.T) {
	t.Parallel()
	_, key := acceptingListener(t)
	p := New(Config{MaxSize: 1, IdleTimeout: time.Minute})

	conn, err := p.Acquire(context.Background(), key)
	if err != nil {
		t.Fatal(err)
	}
	p.Recycle(conn)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	next, err := p.Acquire(ctx, key)
	if err != nil {
		t.Fatalf("recycle should free a slot: %v", err)
	}
	p.Recycle(next)
}

func TestAcquireDialFailure(t *testing.T) {
	t.Parallel()
	ln, key := acceptingListener(t)
	ln.Close()
	p := New(DefaultConfig())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := p.Acquire(ctx, key); err == nil {
		t.Fatal("dialing a closed listener should fail")
	}

	// The failed dial must not leak an active slot.
	hp := p.hostPoolFor(key)
	if n := hp.active.Load(); n != 0 {
		t.Errorf("active = %d after failed dial, want 0", n)
	}
}
