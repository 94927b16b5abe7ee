package server

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	router "github.com/H-Chris233/api-router/internal"
	"github.com/H-Chris233/api-router/internal/httpparse"
	"github.com/H-Chris233/api-router/internal/telemetry"
)

const (
	readChunkSize = 4096
	// readBudget bounds how many reads one request may take, so a client
	// trickling bytes cannot hold a handler goroutine forever.
	readBudget = 1000
)

// forwardRoutes are the POST routes that proxy to the upstream provider.
var forwardRoutes = map[string]bool{
	"/v1/chat/completions":     true,
	"/v1/completions":          true,
	"/v1/embeddings":           true,
	"/v1/audio/transcriptions": true,
	"/v1/audio/translations":   true,
	"/v1/messages":             true,
}

var staticModelsBody = []byte(`{"object": "list", "data": [{"id": "qwen3-coder-plus", "object": "model", "created": 1677610602, "owned_by": "organization-owner"}]}`)

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	// A panicking handler must not take the listener down with it. The
	// other deferred cleanups (gauge release, span end) run before this
	// during unwinding.
	defer func() {
		if r := recover(); r != nil {
			s.logger.LogAttrs(ctx, slog.LevelError, "panic while handling connection",
				slog.Any("panic", r))
		}
	}()

	requestID := router.NewRequestID()
	start := time.Now()
	clientIP := remoteIP(conn)

	release := s.deps.Metrics.TrackConnection()
	defer release()

	ctx, span := telemetry.Tracer("server").Start(ctx, "http_request",
		trace.WithAttributes(
			attribute.String("request_id", requestID),
			attribute.String("client_ip", clientIP),
		))
	defer span.End()

	raw, ok := s.readRequest(conn)
	if !ok || len(raw) == 0 {
		return
	}

	req, err := httpparse.Parse(raw)
	if err != nil {
		span.SetAttributes(attribute.Int("status_code", 400))
		s.writeError(conn, err)
		s.finishRequest(ctx, "/unknown", "UNKNOWN", 400, start)
		return
	}

	routePath := req.RoutePath()
	span.SetAttributes(
		attribute.String("method", req.Method),
		attribute.String("route", routePath),
	)

	switch {
	case req.Method == "GET" && routePath == "/health":
		s.handleHealth(ctx, conn, start)
	case req.Method == "GET" && routePath == "/metrics":
		s.handleMetrics(ctx, conn, start)
	case req.Method == "GET" && routePath == "/v1/models":
		writeSuccess(conn, "application/json", staticModelsBody)
		span.SetAttributes(attribute.Int("status_code", 200))
		s.finishRequest(ctx, "/v1/models", "GET", 200, start)
	case req.Method == "POST" && forwardRoutes[routePath]:
		status := s.handleForward(ctx, conn, req, routePath, requestID)
		span.SetAttributes(attribute.Int("status_code", status))
		s.finishRequest(ctx, routePath, "POST", status, start)
	default:
		span.SetAttributes(attribute.Int("status_code", 404))
		conn.Write([]byte("HTTP/1.1 404 NOT FOUND\r\nContent-Length: 9\r\n\r\nNot Found"))
		s.logger.LogAttrs(ctx, slog.LevelWarn, "route not found",
			slog.String("method", req.Method),
			slog.String("route", routePath))
		s.finishRequest(ctx, routePath, req.Method, 404, start)
	}
}

// readRequest accumulates one request from the socket: everything through
// the header terminator, plus Content-Length body bytes when declared.
func (s *Server) readRequest(conn net.Conn) ([]byte, bool) {
	var raw []byte
	buf := make([]byte, readChunkSize)

	for range readBudget {
		n, err := conn.Read(buf)
		if err != nil {
			if n > 0 {
				raw = append(raw, buf[:n]...)
			}
			if len(raw) == 0 {
				return nil, false
			}
			return raw, true
		}
		raw = append(raw, buf[:n]...)

		headerEnd := bytes.Index(raw, []byte("\r\n\r\n"))
		if headerEnd < 0 {
			continue
		}
		contentLength, declared := httpparse.ContentLength(raw[:headerEnd])
		if !declared {
			return raw, true
		}
		if len(raw) >= headerEnd+4+contentLength {
			return raw, true
		}
	}
	return raw, true
}

func (s *Server) handleHealth(ctx context.Context, conn net.Conn, start time.Time) {
	snapshot := s.deps.Limiter.Snapshot()
	s.deps.Metrics.RateLimiterBuckets.Set(float64(snapshot.ActiveBuckets))

	payload := map[string]any{
		"status":      "ok",
		"message":     "Light API Router running",
		"rateLimiter": snapshot,
	}
	body, err := json.Marshal(payload)
	status := writeHealth(conn, body, err)
	s.logger.LogAttrs(ctx, slog.LevelInfo, "health check completed")
	s.finishRequest(ctx, "/health", "GET", status, start)
}

// writeHealth sends the health payload, or a 500 envelope when it could not
// be encoded, and returns the status actually written.
func writeHealth(conn net.Conn, body []byte, err error) int {
	if err != nil {
		conn.Write(buildErrorResponse(500, "INTERNAL SERVER ERROR", "failed to encode health status"))
		return 500
	}
	writeSuccess(conn, "application/json", body)
	return 200
}

func (s *Server) handleMetrics(ctx context.Context, conn net.Conn, start time.Time) {
	snapshot := s.deps.Limiter.Snapshot()
	s.deps.Metrics.RateLimiterBuckets.Set(float64(snapshot.ActiveBuckets))

	out, err := s.deps.Metrics.Gather()
	if err != nil {
		s.logger.LogAttrs(ctx, slog.LevelWarn, "failed to gather metrics",
			slog.String("error", err.Error()))
		conn.Write([]byte("HTTP/1.1 500 INTERNAL SERVER ERROR\r\nContent-Length: 21\r\n\r\nFailed to get metrics"))
		s.finishRequest(ctx, "/metrics", "GET", 500, start)
		return
	}
	writeSuccess(conn, telemetry.MetricsContentType, out)
	s.finishRequest(ctx, "/metrics", "GET", 200, start)
}

// finishRequest records the per-request metrics shared by every route.
func (s *Server) finishRequest(ctx context.Context, route, method string, status int, start time.Time) {
	s.deps.Metrics.ObserveLatency(route, time.Since(start).Seconds())
	s.deps.Metrics.RecordRequest(route, method, status)
	s.logger.LogAttrs(ctx, slog.LevelDebug, "request finished",
		slog.String("route", route),
		slog.String("method", method),
		slog.Int("status", status),
		slog.Int64("latency_ms", time.Since(start).Milliseconds()))
}

func remoteIP(conn net.Conn) string {
	addr := conn.RemoteAddr().String()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
