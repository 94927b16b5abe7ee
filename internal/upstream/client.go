// Package upstream speaks HTTP/1.1 to provider origins over pooled
// connections, both request/response and SSE relay.
package upstream

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	router "github.com/H-Chris233/api-router/internal"
	"github.com/H-Chris233/api-router/internal/pool"
	"github.com/H-Chris233/api-router/internal/urlutil"
)

const readChunkSize = 4096

// Client implements the forwarding transport on top of a connection pool.
type Client struct {
	pool   *pool.Pool
	logger *slog.Logger
}

// NewClient wraps a connection pool.
func NewClient(p *pool.Pool, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{pool: p, logger: logger}
}

// Send forwards one request and returns the upstream response body. The
// connection goes back to the pool after a complete exchange and is
// discarded after any error.
func (c *Client) Send(ctx context.Context, url, method string, headers map[string]string, body []byte) ([]byte, error) {
	u, err := urlutil.Parse(url)
	if err != nil {
		return nil, err
	}
	key := pool.KeyForURL(u)

	c.logger.LogAttrs(ctx, slog.LevelDebug, "forwarding request",
		slog.String("method", method),
		slog.String("target", u.RequestTarget()),
		slog.String("host", key.Host),
		slog.Int("port", key.Port))

	conn, err := c.pool.Acquire(ctx, key)
	if err != nil {
		return nil, err
	}

	request := buildRequest(method, u.RequestTarget(), hostHeader(key), headers, body)
	raw, err := exchange(conn, request)
	if err != nil {
		c.pool.Recycle(conn)
		return nil, err
	}
	c.pool.Return(conn)
	return extractBody(raw), nil
}

// hostHeader renders the Host value for an origin: bare host on the
// scheme's default port, host:port otherwise.
func hostHeader(key pool.Key) string {
	if (key.Scheme == "http" && key.Port == 80) || (key.Scheme == "https" && key.Port == 443) {
		return key.Host
	}
	return key.Host + ":" + strconv.Itoa(key.Port)
}

// buildRequest assembles the wire bytes for one HTTP/1.1 request. A nil
// body omits Content-Length entirely.
func buildRequest(method, target, host string, headers map[string]string, body []byte) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s %s HTTP/1.1\r\n", method, target)
	fmt.Fprintf(&buf, "Host: %s\r\n", host)
	buf.WriteString("Connection: keep-alive\r\n")
	for name, value := range headers {
		fmt.Fprintf(&buf, "%s: %s\r\n", name, value)
	}
	if body != nil {
		fmt.Fprintf(&buf, "Content-Length: %d\r\n\r\n", len(body))
		buf.Write(body)
	} else {
		buf.WriteString("\r\n")
	}
	return buf.Bytes()
}

// exchange writes the request and accumulates the response until the
// Content-Length is satisfied, or until the origin closes the stream when
// no length was declared.
func exchange(conn *pool.Conn, request []byte) ([]byte, error) {
	if _, err := conn.Write(request); err != nil {
		return nil, router.WrapErr(router.KindIO, "writing upstream request", err)
	}

	var response []byte
	buf := make([]byte, readChunkSize)
	headersParsed := false
	bodyStart := 0
	contentLength := -1

	for {
		n, err := conn.Read(buf)
		if n > 0 {
			response = append(response, buf[:n]...)
			if !headersParsed {
				if _, hdrs, start, ok := parseResponseHead(response); ok {
					headersParsed = true
					bodyStart = start
					if cl, found := hdrs["content-length"]; found {
						if v, parseErr := strconv.Atoi(cl); parseErr == nil {
							contentLength = v
						}
					}
				}
			}
			if headersParsed && contentLength >= 0 && len(response)-bodyStart >= contentLength {
				return response, nil
			}
		}
		if err != nil {
			if isEOF(err) {
				return response, nil
			}
			return nil, router.WrapErr(router.KindIO, "reading upstream response", err)
		}
	}
}

// parseResponseHead parses the status line and lowercased headers once the
// CRLFCRLF terminator is present.
func parseResponseHead(response []byte) (status int, headers map[string]string, bodyStart int, ok bool) {
	headerEnd := bytes.Index(response, []byte("\r\n\r\n"))
	if headerEnd < 0 {
		return 0, nil, 0, false
	}
	lines := strings.Split(string(response[:headerEnd]), "\r\n")
	fields := strings.Fields(lines[0])
	if len(fields) < 2 {
		return 0, nil, 0, false
	}
	code, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, nil, 0, false
	}
	headers = make(map[string]string, len(lines))
	for _, line := range lines[1:] {
		if name, value, found := strings.Cut(line, ":"); found {
			headers[strings.ToLower(strings.TrimSpace(name))] = strings.TrimSpace(value)
		}
	}
	return code, headers, headerEnd + 4, true
}

// extractBody strips the header block; a response with no terminator is
// returned as-is.
func extractBody(response []byte) []byte {
	if pos := bytes.Index(response, []byte("\r\n\r\n")); pos >= 0 {
		return response[pos+4:]
	}
	return response
}
