package upstream

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"syscall"
	"time"

	router "github.com/H-Chris233/api-router/internal"
	"github.com/H-Chris233/api-router/internal/pool"
	"github.com/H-Chris233/api-router/internal/urlutil"
)

// sseResponseHead is sent to the client before any upstream bytes arrive so
// proxies and browsers start treating the connection as an event stream.
const sseResponseHead = "HTTP/1.1 200 OK\r\n" +
	"Content-Type: text/event-stream\r\n" +
	"Cache-Control: no-cache\r\n" +
	"Connection: keep-alive\r\n" +
	"X-Accel-Buffering: no\r\n" +
	"\r\n"

var heartbeatFrame = []byte(": heartbeat\n\n")

// minReadWindow floors the read deadline so a stalled heartbeat clock can
// never busy-loop the relay.
const minReadWindow = 100 * time.Millisecond

// Stream forwards a request to baseURL and relays the upstream bytes to the
// client connection as they arrive, inserting heartbeat comments during
// idle stretches. A client that goes away mid-stream ends the relay
// cleanly rather than as an error.
func (c *Client) Stream(ctx context.Context, client net.Conn, baseURL, method, path string, headers map[string]string, body []byte, settings router.StreamSettings) error {
	settings = settings.Normalize()

	u, err := urlutil.Parse(baseURL)
	if err != nil {
		return err
	}
	key := pool.KeyForURL(u)

	conn, err := c.pool.Acquire(ctx, key)
	if err != nil {
		return err
	}

	if err := c.relay(ctx, conn, client, buildRequest(method, path, hostHeader(key), headers, body), settings); err != nil {
		c.pool.Recycle(conn)
		return err
	}
	conn.SetReadDeadline(time.Time{})
	c.pool.Return(conn)
	return nil
}

func (c *Client) relay(ctx context.Context, conn *pool.Conn, client net.Conn, request []byte, settings router.StreamSettings) error {
	if _, err := conn.Write(request); err != nil {
		return router.WrapErr(router.KindIO, "writing upstream request", err)
	}
	if _, err := client.Write([]byte(sseResponseHead)); err != nil {
		if isDisconnect(err) {
			return nil
		}
		return router.WrapErr(router.KindIO, "writing stream response head", err)
	}

	buf := make([]byte, settings.BufferSize)
	lastActivity := time.Now()

	for {
		// The read deadline doubles as the heartbeat timer: wake up when
		// the next heartbeat is due even if the origin stays quiet.
		window := settings.HeartbeatInterval - time.Since(lastActivity)
		if window < minReadWindow {
			window = minReadWindow
		}
		conn.SetReadDeadline(time.Now().Add(window))

		n, err := conn.Read(buf)
		if n > 0 {
			if _, werr := client.Write(buf[:n]); werr != nil {
				if isDisconnect(werr) {
					c.logger.LogAttrs(ctx, slog.LevelWarn, "client disconnected during stream")
					return nil
				}
				return router.WrapErr(router.KindIO, "writing to client", werr)
			}
			lastActivity = time.Now()
		}
		if err == nil {
			continue
		}

		var netErr net.Error
		switch {
		case errors.As(err, &netErr) && netErr.Timeout():
			if time.Since(lastActivity) >= settings.HeartbeatInterval {
				if _, werr := client.Write(heartbeatFrame); werr != nil {
					if isDisconnect(werr) {
						c.logger.LogAttrs(ctx, slog.LevelWarn, "client disconnected during heartbeat")
						return nil
					}
					return router.WrapErr(router.KindIO, "writing heartbeat", werr)
				}
				lastActivity = time.Now()
			}
		case isEOF(err):
			c.logger.LogAttrs(ctx, slog.LevelDebug, "upstream closed stream")
			return nil
		case isDisconnect(err):
			c.logger.LogAttrs(ctx, slog.LevelWarn, "upstream connection lost during stream")
			return nil
		default:
			return router.WrapErr(router.KindIO, "reading upstream stream", err)
		}
	}
}

func isEOF(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

// isDisconnect reports whether err means the peer went away, which the
// relay treats as a normal end of stream.
func isDisconnect(err error) bool {
	return errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, net.ErrClosed)
}
