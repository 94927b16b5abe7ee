package ratelimit

import (
	"os"
	"strconv"

	"github.com/H-Chris233/api-router/internal/config"
)

// Settings are the effective limits for one (route, credential) bucket.
type Settings struct {
	RequestsPerMinute uint32
	Burst             uint32
}

func envUint32(name string) *uint32 {
	raw := os.Getenv(name)
	if raw == "" {
		return nil
	}
	n, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return nil
	}
	v := uint32(n)
	return &v
}

// Resolve computes the limits for a route. Each field resolves
// independently, endpoint block first, then the global block, then the
// RATE_LIMIT_REQUESTS_PER_MINUTE / RATE_LIMIT_BURST environment variables.
// A zero requests-per-minute, or none configured anywhere, means the route
// is unlimited and Resolve returns nil.
func Resolve(routePath string, cfg *config.API) *Settings {
	var endpointRL *config.RateLimit
	if ep, ok := cfg.Endpoints[routePath]; ok {
		endpointRL = ep.RateLimit
	}

	rpm := pick(endpointRL, cfg.RateLimit, func(rl *config.RateLimit) *uint32 { return rl.RequestsPerMinute })
	if rpm == nil {
		rpm = envUint32("RATE_LIMIT_REQUESTS_PER_MINUTE")
	}
	if rpm == nil || *rpm == 0 {
		return nil
	}

	burst := pick(endpointRL, cfg.RateLimit, func(rl *config.RateLimit) *uint32 { return rl.Burst })
	if burst == nil {
		burst = envUint32("RATE_LIMIT_BURST")
	}
	effective := *rpm
	if burst != nil {
		effective = *burst
	}
	return &Settings{RequestsPerMinute: *rpm, Burst: max(1, effective)}
}

func pick(endpoint, global *config.RateLimit, field func(*config.RateLimit) *uint32) *uint32 {
	if endpoint != nil {
		if v := field(endpoint); v != nil {
			return v
		}
	}
	if global != nil {
		if v := field(global); v != nil {
			return v
		}
	}
	return nil
}
