// Package server owns the TCP listener and request dispatch. The data
// plane is raw HTTP/1.1 over net.Conn so request and response bytes stay
// under the router's control end to end.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	router "github.com/H-Chris233/api-router/internal"
	"github.com/H-Chris233/api-router/internal/config"
	"github.com/H-Chris233/api-router/internal/ratelimit"
	"github.com/H-Chris233/api-router/internal/telemetry"
)

// portFallbackAttempts is how many consecutive ports Listen tries when the
// configured one is taken.
const portFallbackAttempts = 10

// Deps holds all dependencies for the dispatcher.
type Deps struct {
	Config      *config.Cache
	ConfigPaths config.Paths
	Limiter     *ratelimit.Limiter
	Upstream    router.Upstream
	Metrics     *telemetry.Metrics
	Failures    *telemetry.FailureTracker
	Logger      *slog.Logger
}

// Server accepts client connections and routes each request.
type Server struct {
	deps   Deps
	logger *slog.Logger
}

// New creates a dispatcher from its dependencies.
func New(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{deps: deps, logger: logger}
}

// Listen binds the first free port in [port, port+9] and returns the
// listener plus the port actually bound.
func Listen(port int) (net.Listener, int, error) {
	var lastErr error
	for offset := range portFallbackAttempts {
		candidate := port + offset
		ln, err := net.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", candidate))
		if err == nil {
			return ln, candidate, nil
		}
		lastErr = err
	}
	return nil, 0, router.WrapErr(router.KindIO,
		fmt.Sprintf("no free port in %d-%d", port, port+portFallbackAttempts-1), lastErr)
}

// Serve accepts connections until ctx is cancelled. Each connection is
// handled on its own goroutine; Serve drains them before returning.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	var wg sync.WaitGroup
	for {
		conn, err := ln.Accept()
		if err != nil {
			wg.Wait()
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return router.WrapErr(router.KindIO, "accepting connection", err)
		}
		wg.Go(func() {
			defer conn.Close()
			s.handleConn(ctx, conn)
		})
	}
}
