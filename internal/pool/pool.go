// Package pool maintains keep-alive upstream connections, grouped per
// (scheme, host, port). Idle connections expire; new ones are dialed
// through a caching DNS resolver.
package pool

import (
	"context"
	"crypto/tls"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/dnscache"

	router "github.com/H-Chris233/api-router/internal"
	"github.com/H-Chris233/api-router/internal/urlutil"
)

const (
	defaultMaxSize     = 10
	defaultIdleTimeout = 60 * time.Second
	dialTimeout        = 10 * time.Second
)

// Key identifies one upstream origin.
type Key struct {
	Scheme string
	Host   string
	Port   int
}

// KeyForURL derives the pool key from a parsed upstream URL.
func KeyForURL(u *urlutil.URL) Key {
	return Key{Scheme: u.Scheme, Host: u.Host, Port: u.PortOrDefault()}
}

// Conn is a pooled upstream connection. Callers hand it back with
// Pool.Return after a clean exchange or Pool.Recycle after an error.
type Conn struct {
	net.Conn
	key      Key
	id       uint64
	lastUsed time.Time
}

// ID returns the connection's per-origin serial number, for logging.
func (c *Conn) ID() uint64 { return c.id }

func (c *Conn) expired(idleTimeout time.Duration) bool {
	return time.Since(c.lastUsed) > idleTimeout
}

// Config bounds one origin's pool.
type Config struct {
	MaxSize     int
	IdleTimeout time.Duration
}

// DefaultConfig returns the standard pool bounds.
func DefaultConfig() Config {
	return Config{MaxSize: defaultMaxSize, IdleTimeout: defaultIdleTimeout}
}

type hostPool struct {
	idle   chan *Conn
	active atomic.Int64
	nextID atomic.Uint64
}

// Pool manages per-origin connection pools.
type Pool struct {
	mu       sync.RWMutex
	pools    map[Key]*hostPool
	cfg      Config
	resolver *dnscache.Resolver
}

// New creates a pool with the given per-origin bounds.
func New(cfg Config) *Pool {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = defaultMaxSize
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}
	return &Pool{
		pools:    make(map[Key]*hostPool),
		cfg:      cfg,
		resolver: &dnscache.Resolver{},
	}
}

func (p *Pool) hostPoolFor(key Key) *hostPool {
	p.mu.RLock()
	hp, ok := p.pools[key]
	p.mu.RUnlock()
	if ok {
		return hp
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if hp, ok = p.pools[key]; ok {
		return hp
	}
	hp = &hostPool{idle: make(chan *Conn, p.cfg.MaxSize)}
	p.pools[key] = hp
	return hp
}

// Acquire returns a live connection for key, reusing an idle one when
// possible. When the origin is at capacity it blocks until a connection
// is returned or ctx is done.
func (p *Pool) Acquire(ctx context.Context, key Key) (*Conn, error) {
	hp := p.hostPoolFor(key)

	for {
		select {
		case conn := <-hp.idle:
			if conn.expired(p.cfg.IdleTimeout) {
				conn.Close()
				hp.active.Add(-1)
				continue
			}
			conn.lastUsed = time.Now()
			return conn, nil
		default:
		}

		// Reserve the slot before dialing so concurrent acquires cannot
		// overshoot the bound.
		if hp.active.Add(1) <= int64(p.cfg.MaxSize) {
			conn, err := p.dial(ctx, key, hp.nextID.Add(1))
			if err != nil {
				hp.active.Add(-1)
				return nil, err
			}
			return conn, nil
		}
		hp.active.Add(-1)

		// At capacity: wait for a return.
		select {
		case conn := <-hp.idle:
			if conn.expired(p.cfg.IdleTimeout) {
				conn.Close()
				replacement, err := p.dial(ctx, key, hp.nextID.Add(1))
				if err != nil {
					hp.active.Add(-1)
					return nil, err
				}
				return replacement, nil
			}
			conn.lastUsed = time.Now()
			return conn, nil
		case <-ctx.Done():
			return nil, router.WrapErr(router.KindIO, "waiting for pooled connection", ctx.Err())
		}
	}
}

// Return places a connection back in its origin's idle set. A full idle
// set means the connection is surplus and is closed instead.
func (p *Pool) Return(conn *Conn) {
	conn.lastUsed = time.Now()
	hp := p.hostPoolFor(conn.key)
	select {
	case hp.idle <- conn:
	default:
		conn.Close()
		hp.active.Add(-1)
	}
}

// Recycle discards a connection whose stream state is unknown, typically
// after an I/O error mid-exchange.
func (p *Pool) Recycle(conn *Conn) {
	conn.Close()
	p.hostPoolFor(conn.key).active.Add(-1)
}

func (p *Pool) dial(ctx context.Context, key Key, id uint64) (*Conn, error) {
	nc, err := p.dialTCP(ctx, key)
	if err != nil {
		return nil, router.WrapErr(router.KindIO, "dial "+key.Host, err)
	}

	if key.Scheme == "https" {
		tc := tls.Client(nc, &tls.Config{ServerName: key.Host})
		hsCtx, cancel := context.WithTimeout(ctx, dialTimeout)
		err = tc.HandshakeContext(hsCtx)
		cancel()
		if err != nil {
			nc.Close()
			return nil, router.WrapErr(router.KindTLS, "tls handshake with "+key.Host, err)
		}
		nc = tc
	}

	return &Conn{Conn: nc, key: key, id: id, lastUsed: time.Now()}, nil
}

// dialTCP resolves through the DNS cache and tries each address in turn.
func (p *Pool) dialTCP(ctx context.Context, key Key) (net.Conn, error) {
	port := strconv.Itoa(key.Port)
	ips, err := p.resolver.LookupHost(ctx, key.Host)
	if err != nil || len(ips) == 0 {
		// Literal addresses and resolver failures fall through to the
		// system dialer.
		d := net.Dialer{Timeout: dialTimeout}
		return d.DialContext(ctx, "tcp", net.JoinHostPort(key.Host, port))
	}

	var lastErr error
	d := net.Dialer{Timeout: dialTimeout}
	for _, ip := range ips {
		conn, dialErr := d.DialContext(ctx, "tcp", net.JoinHostPort(ip, port))
		if dialErr == nil {
			return conn, nil
		}
		lastErr = dialErr
	}
	return nil, lastErr
}
