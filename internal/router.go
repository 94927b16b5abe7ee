// Package router defines domain types and interfaces for the API router.
// This package has no project imports -- it is the dependency root.
package router

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync/atomic"
	"time"
)

// StreamSettings controls the SSE relay for one forwarded request.
// Zero values mean "use defaults" (8192-byte buffer, 30 s heartbeat).
type StreamSettings struct {
	BufferSize        int
	HeartbeatInterval time.Duration
}

// DefaultStreamSettings are applied when a route carries no stream config.
var DefaultStreamSettings = StreamSettings{
	BufferSize:        8192,
	HeartbeatInterval: 30 * time.Second,
}

// Normalize fills in defaults for unset fields.
func (s StreamSettings) Normalize() StreamSettings {
	if s.BufferSize <= 0 {
		s.BufferSize = DefaultStreamSettings.BufferSize
	}
	if s.HeartbeatInterval <= 0 {
		s.HeartbeatInterval = DefaultStreamSettings.HeartbeatInterval
	}
	return s
}

// Upstream is the outbound HTTP surface the dispatcher depends on.
// The production implementation lives in internal/upstream; tests install
// fakes instead of overriding a global.
type Upstream interface {
	// Send forwards a request to the absolute URL and returns the
	// upstream response body.
	Send(ctx context.Context, url, method string, headers map[string]string, body []byte) ([]byte, error)
	// Stream forwards a request and relays the upstream byte stream to
	// client as SSE, emitting heartbeats during idle periods. It owns
	// client until it returns.
	Stream(ctx context.Context, client net.Conn, baseURL, method, path string, headers map[string]string, body []byte, settings StreamSettings) error
}

// requestCounter feeds NewRequestID. Process-local, never reset.
var requestCounter atomic.Uint64

// NewRequestID returns a unique 32-hex-character request id derived from
// wall-clock time and a per-process counter.
func NewRequestID() string {
	now := time.Now()
	counter := uint32(requestCounter.Add(1) - 1)
	return fmt.Sprintf("%016x%08x%08x", now.Unix(), uint32(now.Nanosecond()), counter)
}

// ExtractProvider identifies the upstream provider from a base URL by
// substring match.
func ExtractProvider(baseURL string) string {
	switch {
	case strings.Contains(baseURL, "dashscope.aliyuncs.com"):
		return "qwen"
	case strings.Contains(baseURL, "openai.com"):
		return "openai"
	case strings.Contains(baseURL, "anthropic.com"):
		return "anthropic"
	case strings.Contains(baseURL, "cohere.com"):
		return "cohere"
	case strings.Contains(baseURL, "generativelanguage.googleapis.com"):
		return "gemini"
	default:
		return "unknown"
	}
}

// AnonymizeKey renders a credential safe for logs: first four and last two
// characters with the middle elided.
func AnonymizeKey(key string) string {
	if key == "" {
		return "unknown"
	}
	prefixLen := min(len(key), 4)
	suffixLen := min(len(key)-prefixLen, 2)
	return key[:prefixLen] + "***" + key[len(key)-suffixLen:]
}
