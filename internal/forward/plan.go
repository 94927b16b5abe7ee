// Package forward turns an inbound request plus configuration into an
// upstream forwarding plan: target URL, method, headers, and stream
// settings, with model names rewritten along the way.
package forward

import (
	"strings"
	"time"

	router "github.com/H-Chris233/api-router/internal"
	"github.com/H-Chris233/api-router/internal/config"
	"github.com/H-Chris233/api-router/internal/httpparse"
)

// Plan is everything needed to forward one request upstream.
type Plan struct {
	Method  string
	Headers map[string]string
	BaseURL string
	Path    string
	Stream  *router.StreamSettings
}

// FullURL joins the base URL and upstream path. An absolute upstream path
// bypasses the base URL entirely.
func (p *Plan) FullURL() string {
	return joinBaseAndPath(p.BaseURL, p.Path)
}

// Prepare computes the forwarding plan for a route. contentType overrides
// the outgoing Content-Type when non-empty; the endpoint's method override
// applies uppercased, defaulting to POST.
func Prepare(routePath string, req *httpparse.Parsed, cfg *config.API, defaultAPIKey, contentType string) *Plan {
	endpoint := cfg.Endpoint(routePath)

	method := endpoint.Method
	if method == "" {
		method = "POST"
	}

	var stream *router.StreamSettings
	if sc := endpoint.StreamConfig; sc != nil {
		stream = streamSettings(sc)
	} else if sc := cfg.StreamConfig; sc != nil {
		stream = streamSettings(sc)
	}

	return &Plan{
		Method:  strings.ToUpper(method),
		Headers: buildUpstreamHeaders(cfg, &endpoint, req.Headers, defaultAPIKey, contentType),
		BaseURL: cfg.NormalizedBaseURL(),
		Path:    computeUpstreamPath(req.Target, &endpoint),
		Stream:  stream,
	}
}

func streamSettings(sc *config.Stream) *router.StreamSettings {
	return &router.StreamSettings{
		BufferSize:        sc.BufferSize,
		HeartbeatInterval: time.Duration(sc.HeartbeatIntervalSecs) * time.Second,
	}
}

// computeUpstreamPath rewrites the request target onto the endpoint's
// upstream path, carrying the client's query string over. Absolute http(s)
// upstream paths are kept verbatim apart from query merging.
func computeUpstreamPath(requestTarget string, endpoint *config.Endpoint) string {
	if endpoint.UpstreamPath == "" {
		if strings.HasPrefix(requestTarget, "/") {
			return requestTarget
		}
		return "/" + requestTarget
	}

	path := endpoint.UpstreamPath
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	queryIndex := strings.IndexByte(requestTarget, '?')
	if queryIndex < 0 {
		return path
	}
	query := requestTarget[queryIndex+1:]

	switch {
	case strings.Contains(path, "?"):
		if query != "" {
			if !strings.HasSuffix(path, "?") && !strings.HasSuffix(path, "&") {
				path += "&"
			}
			path += query
		}
	case query != "":
		path += "?" + query
	default:
		path += "?"
	}
	return path
}

func joinBaseAndPath(base, path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if base == "" {
		return path
	}
	switch {
	case path == "":
		return base
	case strings.HasPrefix(path, "/"):
		return base + path
	default:
		return base + "/" + path
	}
}

// buildUpstreamHeaders layers global headers, then endpoint headers, then
// the computed Content-Type and Authorization. Accept, User-Agent, and
// x-request-id pass through from the client when nothing configured them.
func buildUpstreamHeaders(cfg *config.API, endpoint *config.Endpoint, clientHeaders map[string]string, defaultAPIKey, contentType string) map[string]string {
	headers := make(map[string]string, len(cfg.Headers)+len(endpoint.Headers)+4)
	for name, value := range cfg.Headers {
		headers[name] = value
	}
	for name, value := range endpoint.Headers {
		headers[name] = value
	}

	if contentType != "" {
		headers["Content-Type"] = contentType
	}

	if !hasHeaderFold(headers, "authorization") {
		if auth := clientHeaders["authorization"]; auth != "" {
			headers["Authorization"] = auth
		} else {
			headers["Authorization"] = "Bearer " + defaultAPIKey
		}
	}

	copyIfAbsent(headers, clientHeaders, "accept", "Accept")
	copyIfAbsent(headers, clientHeaders, "user-agent", "User-Agent")
	copyIfAbsent(headers, clientHeaders, "x-request-id", "x-request-id")

	return headers
}

func hasHeaderFold(headers map[string]string, target string) bool {
	for name := range headers {
		if strings.EqualFold(name, target) {
			return true
		}
	}
	return false
}

func copyIfAbsent(headers, clientHeaders map[string]string, clientKey, canonicalKey string) {
	if hasHeaderFold(headers, canonicalKey) {
		return
	}
	if value, ok := clientHeaders[clientKey]; ok {
		headers[canonicalKey] = value
	}
}
