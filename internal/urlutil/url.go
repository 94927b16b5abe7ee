// Package urlutil implements a minimal URL parser for upstream targets.
// Only http and https are accepted; anything else is a forwarding error,
// so the general-purpose net/url grammar is deliberately not used.
package urlutil

import (
	"strconv"
	"strings"

	router "github.com/H-Chris233/api-router/internal"
)

// URL is a parsed http(s) URL.
type URL struct {
	Scheme string
	Host   string
	Port   int // 0 when the URL carries no explicit port
	Path   string
	Query  string
}

// Parse splits an absolute http(s) URL into its components.
func Parse(raw string) (*URL, error) {
	raw = strings.TrimSpace(raw)

	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return nil, router.Errorf(router.KindURL, "missing scheme in %q", raw)
	}
	if scheme != "http" && scheme != "https" {
		return nil, router.Errorf(router.KindURL, "unsupported scheme: %s", scheme)
	}

	var hostPort, pathQuery string
	if hp, pq, found := strings.Cut(rest, "/"); found {
		hostPort, pathQuery = hp, "/"+pq
	} else if hp, q, found := strings.Cut(rest, "?"); found {
		hostPort, pathQuery = hp, "/?"+q
	} else {
		hostPort, pathQuery = rest, "/"
	}

	u := &URL{Scheme: scheme}
	if h, p, found := strings.Cut(hostPort, ":"); found {
		port, err := strconv.Atoi(p)
		if err != nil || port < 0 || port > 65535 {
			return nil, router.Errorf(router.KindURL, "invalid port: %s", p)
		}
		u.Host, u.Port = h, port
	} else {
		u.Host = hostPort
	}
	if u.Host == "" {
		return nil, router.Errorf(router.KindURL, "missing host in %q", raw)
	}

	u.Path, u.Query, _ = strings.Cut(pathQuery, "?")
	return u, nil
}

// PortOrDefault returns the explicit port, or the scheme default (80/443).
func (u *URL) PortOrDefault() int {
	if u.Port != 0 {
		return u.Port
	}
	if u.Scheme == "https" {
		return 443
	}
	return 80
}

// RequestTarget returns the path plus query string as sent on the wire.
func (u *URL) RequestTarget() string {
	if u.Query != "" {
		return u.Path + "?" + u.Query
	}
	return u.Path
}
