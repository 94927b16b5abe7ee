package server

import (
	"context"
	"log/slog"
	"net"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	router "github.com/H-Chris233/api-router/internal"
	"github.com/H-Chris233/api-router/internal/config"
	"github.com/H-Chris233/api-router/internal/forward"
	"github.com/H-Chris233/api-router/internal/httpparse"
	"github.com/H-Chris233/api-router/internal/ratelimit"
	"github.com/H-Chris233/api-router/internal/telemetry"
)

// multipartRoutes forward the client body verbatim apart from the model
// field splice; everything else is JSON.
var multipartRoutes = map[string]bool{
	"/v1/audio/transcriptions": true,
	"/v1/audio/translations":   true,
}

// streamableRoutes may switch to SSE relay when the body asks for it.
var streamableRoutes = map[string]bool{
	"/v1/chat/completions": true,
	"/v1/completions":      true,
	"/v1/messages":         true,
}

// handleForward runs the proxy pipeline for one POST route and returns the
// status code recorded for it.
func (s *Server) handleForward(ctx context.Context, conn net.Conn, req *httpparse.Parsed, routePath, requestID string) int {
	cfg, err := s.deps.Config.Load(s.deps.ConfigPaths)
	if err != nil {
		s.writeError(conn, err)
		return 500
	}

	defaultAPIKey := resolveDefaultAPIKey()
	credential := extractClientAPIKey(req.Headers, defaultAPIKey)

	if settings := ratelimit.Resolve(routePath, cfg); settings != nil {
		decision := s.deps.Limiter.Check(routePath, credential, *settings)
		if !decision.Allowed {
			s.logger.LogAttrs(ctx, slog.LevelWarn, "rate limit exceeded",
				slog.String("client", router.AnonymizeKey(credential)),
				slog.String("route", routePath),
				slog.Uint64("retry_after", decision.RetryAfterSeconds))
			body := buildErrorResponse(429, "TOO MANY REQUESTS", "Rate limit exceeded",
				header{"Retry-After", strconv.FormatUint(decision.RetryAfterSeconds, 10)})
			conn.Write(body)
			return 429
		}
	}

	provider := router.ExtractProvider(cfg.BaseURL)
	ctx, span := telemetry.Tracer("server").Start(ctx, "upstream_request",
		trace.WithAttributes(
			attribute.String("request_id", requestID),
			attribute.String("provider", provider),
		))
	defer span.End()

	upstreamStart := time.Now()
	if multipartRoutes[routePath] {
		err = s.forwardMultipart(ctx, conn, req, routePath, cfg, defaultAPIKey)
	} else {
		err = s.forwardJSON(ctx, conn, req, routePath, cfg, defaultAPIKey)
	}
	span.SetAttributes(attribute.Int64("upstream_latency_ms", time.Since(upstreamStart).Milliseconds()))

	if err != nil {
		kind := router.KindOf(err)
		s.deps.Metrics.RecordUpstreamError(kind.MetricLabel())
		if kind == router.KindUpstream || kind == router.KindTLS {
			s.deps.Failures.Track(provider, err)
		}
		s.logger.LogAttrs(ctx, slog.LevelError, "request failed",
			slog.String("request_id", requestID),
			slog.String("route", routePath),
			slog.String("client", router.AnonymizeKey(credential)),
			slog.String("provider", provider),
			slog.String("error", err.Error()))
		s.writeError(conn, err)
		return kind.HTTPStatus()
	}

	s.logger.LogAttrs(ctx, slog.LevelInfo, "request completed",
		slog.String("provider", provider))
	return 200
}

func (s *Server) forwardJSON(ctx context.Context, conn net.Conn, req *httpparse.Parsed, routePath string, cfg *config.API, defaultAPIKey string) error {
	if !req.HasBody() {
		return router.Errorf(router.KindBadRequest, "empty request body")
	}

	body, err := forward.RewriteJSONModel(req.Body, cfg)
	if err != nil {
		return err
	}

	plan := forward.Prepare(routePath, req, cfg, defaultAPIKey, "application/json")

	if streamableRoutes[routePath] && forward.ShouldStream(body) {
		s.logger.LogAttrs(ctx, slog.LevelDebug, "starting streaming request")
		settings := router.DefaultStreamSettings
		if plan.Stream != nil {
			settings = *plan.Stream
		}
		return s.deps.Upstream.Stream(ctx, conn, plan.BaseURL, plan.Method, plan.Path, plan.Headers, body, settings)
	}

	response, err := s.deps.Upstream.Send(ctx, plan.FullURL(), plan.Method, plan.Headers, body)
	if err != nil {
		return err
	}
	s.logger.LogAttrs(ctx, slog.LevelDebug, "upstream request completed",
		slog.Int("response_size", len(response)))
	return writeSuccess(conn, "application/json", response)
}

func (s *Server) forwardMultipart(ctx context.Context, conn net.Conn, req *httpparse.Parsed, routePath string, cfg *config.API, defaultAPIKey string) error {
	if !req.HasBody() {
		return router.Errorf(router.KindBadRequest, "empty request body")
	}
	contentType := req.Header("content-type")
	if contentType == "" {
		return router.Errorf(router.KindBadRequest, "missing Content-Type header")
	}

	body := forward.RewriteMultipartModel(req.Body, cfg)
	plan := forward.Prepare(routePath, req, cfg, defaultAPIKey, contentType)

	response, err := s.deps.Upstream.Send(ctx, plan.FullURL(), plan.Method, plan.Headers, body)
	if err != nil {
		return err
	}
	s.logger.LogAttrs(ctx, slog.LevelDebug, "multipart upstream request completed",
		slog.Int("response_size", len(response)))
	return writeSuccess(conn, "application/json", response)
}
