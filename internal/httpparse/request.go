// Package httpparse parses inbound HTTP/1.1 requests from raw byte buffers.
// The dispatcher owns the socket and hands the accumulated bytes here; the
// body is kept verbatim (it may be binary multipart data) and is never
// decoded.
package httpparse

import (
	"bytes"
	"strconv"
	"strings"
	"unicode/utf8"

	router "github.com/H-Chris233/api-router/internal"
)

var crlfcrlf = []byte("\r\n\r\n")

// Parsed is one inbound request. Header names are lowercased; values are
// trimmed. Constructed per request and dropped with it.
type Parsed struct {
	Method  string
	Target  string
	Version string
	Headers map[string]string
	Body    []byte
}

// Header returns the value for a lowercase header name, or "".
func (p *Parsed) Header(name string) string { return p.Headers[name] }

// HasBody reports whether any body bytes were received.
func (p *Parsed) HasBody() bool { return len(p.Body) > 0 }

// RoutePath returns the request target with any query string stripped.
func (p *Parsed) RoutePath() string {
	if path, _, found := strings.Cut(p.Target, "?"); found {
		return path
	}
	return p.Target
}

// Parse splits a raw request buffer at the first CRLFCRLF into a request
// line, a lowercased header map, and the verbatim body.
func Parse(raw []byte) (*Parsed, error) {
	headerEnd := bytes.Index(raw, crlfcrlf)
	if headerEnd < 0 {
		return nil, router.Errorf(router.KindBadRequest, "malformed HTTP request")
	}

	headerBytes := raw[:headerEnd]
	if !utf8.Valid(headerBytes) {
		return nil, router.Errorf(router.KindBadRequest, "invalid HTTP headers")
	}

	lines := strings.Split(string(headerBytes), "\r\n")
	parts := strings.Fields(lines[0])
	if len(parts) != 3 {
		return nil, router.Errorf(router.KindBadRequest, "invalid request line")
	}

	headers := make(map[string]string, 16)
	for _, line := range lines[1:] {
		if name, value, found := strings.Cut(line, ":"); found {
			headers[strings.ToLower(strings.TrimSpace(name))] = strings.TrimSpace(value)
		}
	}

	return &Parsed{
		Method:  parts[0],
		Target:  parts[1],
		Version: parts[2],
		Headers: headers,
		Body:    raw[headerEnd+4:],
	}, nil
}

// ContentLength scans the raw header region for a Content-Length value.
// Used by the dispatcher's read loop before the request is fully parsed.
func ContentLength(headerRegion []byte) (int, bool) {
	for line := range bytes.Lines(headerRegion) {
		name, value, found := bytes.Cut(line, []byte(":"))
		if !found {
			continue
		}
		if strings.EqualFold(string(bytes.TrimSpace(name)), "content-length") {
			n, err := strconv.Atoi(string(bytes.TrimSpace(value)))
			if err != nil {
				return 0, false
			}
			return n, true
		}
	}
	return 0, false
}
