// Package config handles JSON provider configuration with mtime-based hot
// reload. Field names on the wire are camelCase.
package config

import (
	"encoding/json"
	"strings"
)

// RateLimit is a rate limit block (global or per endpoint). A nil
// RequestsPerMinute means "not set here"; resolution walks endpoint,
// global, then environment.
type RateLimit struct {
	RequestsPerMinute *uint32 `json:"requestsPerMinute"`
	Burst             *uint32 `json:"burst"`
}

// Stream controls SSE relay buffering and heartbeats.
type Stream struct {
	BufferSize            int    `json:"bufferSize"`
	HeartbeatIntervalSecs uint64 `json:"heartbeatIntervalSecs"`
}

// UnmarshalJSON applies the documented defaults (8192-byte buffer, 30 s
// heartbeat) for absent or non-positive fields.
func (s *Stream) UnmarshalJSON(data []byte) error {
	type alias Stream
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	if a.BufferSize <= 0 {
		a.BufferSize = 8192
	}
	if a.HeartbeatIntervalSecs == 0 {
		a.HeartbeatIntervalSecs = 30
	}
	*s = Stream(a)
	return nil
}

// Endpoint is the per-route configuration block.
type Endpoint struct {
	UpstreamPath      string            `json:"upstreamPath"`
	Method            string            `json:"method"`
	Headers           map[string]string `json:"headers"`
	StreamSupport     bool              `json:"streamSupport"`
	RequiresMultipart bool              `json:"requiresMultipart"`
	RateLimit         *RateLimit        `json:"rateLimit"`
	StreamConfig      *Stream           `json:"streamConfig"`
}

// API is the provider configuration. Immutable after load; reloads replace
// the whole value.
type API struct {
	BaseURL      string              `json:"baseUrl"`
	Headers      map[string]string   `json:"headers"`
	ModelMapping map[string]string   `json:"modelMapping"`
	Endpoints    map[string]Endpoint `json:"endpoints"`
	Port         int                 `json:"port"`
	RateLimit    *RateLimit          `json:"rateLimit"`
	StreamConfig *Stream             `json:"streamConfig"`
}

// UnmarshalJSON applies the default listen port.
func (c *API) UnmarshalJSON(data []byte) error {
	type alias API
	a := alias{Port: DefaultPort}
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	if a.Port == 0 {
		a.Port = DefaultPort
	}
	*c = API(a)
	return nil
}

// DefaultPort is the listen port when the config does not set one.
const DefaultPort = 8000

// Default returns an empty configuration used when no config file loads.
func Default() *API {
	return &API{Port: DefaultPort}
}

// Endpoint returns the endpoint block for a route path, or a zero value
// when the route is not configured.
func (c *API) Endpoint(path string) Endpoint {
	return c.Endpoints[path]
}

// MapModel returns the upstream model name for a client model name, or the
// input unchanged when no mapping applies.
func (c *API) MapModel(model string) string {
	if mapped, ok := c.ModelMapping[model]; ok {
		return mapped
	}
	return model
}

// NormalizedBaseURL ensures an https:// prefix when the scheme is absent
// and trims any trailing slash.
func (c *API) NormalizedBaseURL() string {
	base := strings.TrimSpace(c.BaseURL)
	if base == "" {
		return ""
	}
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + base
	}
	return strings.TrimRight(base, "/")
}
