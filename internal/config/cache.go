package config

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"time"

	router "github.com/H-Chris233/api-router/internal"
)

// FallbackPath is loaded when the primary config cannot be read.
const FallbackPath = "./transformer/qwen.json"

// Paths names the primary config file and the fallback used when the
// primary cannot be read.
type Paths struct {
	Primary  string
	Fallback string
}

// ResolvePaths picks the primary config file. Precedence: the
// API_ROUTER_CONFIG_PATH environment variable, then a basename looked up
// under ./transformer/, then qwen.
func ResolvePaths(basename string) Paths {
	if explicit := os.Getenv("API_ROUTER_CONFIG_PATH"); explicit != "" {
		return Paths{Primary: explicit, Fallback: FallbackPath}
	}
	if basename == "" {
		basename = "qwen"
	}
	return Paths{Primary: "./transformer/" + basename + ".json", Fallback: FallbackPath}
}

type cachedEntry struct {
	config   *API
	source   string
	modified time.Time
}

// Cache holds the most recently loaded configuration and reloads it when
// the file's mtime changes. Construct with NewCache.
type Cache struct {
	mu     sync.RWMutex
	entry  *cachedEntry
	logger *slog.Logger
}

// NewCache returns an empty cache that logs reload activity to logger.
func NewCache(logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{logger: logger}
}

// needsReload compares the cached entry against the current file state.
// When the cached entry came from the fallback and the primary is still
// missing, the fallback's own mtime decides.
func (e *cachedEntry) needsReload(paths Paths) bool {
	info, err := os.Stat(paths.Primary)
	if err == nil {
		if e.source == paths.Primary {
			return !e.modified.Equal(info.ModTime())
		}
		return true
	}
	if e.source == paths.Primary {
		return true
	}
	fbInfo, fbErr := os.Stat(paths.Fallback)
	if fbErr != nil {
		return true
	}
	return !e.modified.Equal(fbInfo.ModTime())
}

// Load returns the configuration for paths, reloading from disk only when
// the backing file changed. Concurrent callers share one entry.
func (c *Cache) Load(paths Paths) (*API, error) {
	c.mu.RLock()
	if c.entry != nil && !c.entry.needsReload(paths) {
		cfg := c.entry.config
		c.mu.RUnlock()
		return cfg, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	// Another goroutine may have reloaded while we waited for the lock.
	if c.entry != nil && !c.entry.needsReload(paths) {
		return c.entry.config, nil
	}

	entry, err := c.loadEntry(paths)
	if err != nil {
		return nil, err
	}
	c.entry = entry
	return entry.config, nil
}

// loadEntry reads the primary config, falling back to the fallback path
// only on read failure. Parse errors never fall back; a config that
// exists but does not parse is an operator mistake that must surface.
func (c *Cache) loadEntry(paths Paths) (*cachedEntry, error) {
	entry, err := readPath(paths.Primary)
	if err == nil {
		c.logger.LogAttrs(context.Background(), slog.LevelDebug, "loaded api config",
			slog.String("source", paths.Primary))
		return entry, nil
	}
	if router.KindOf(err) != router.KindConfigRead {
		return nil, err
	}

	c.logger.LogAttrs(context.Background(), slog.LevelWarn, "primary config unreadable, using fallback",
		slog.String("primary", paths.Primary),
		slog.String("fallback", paths.Fallback),
		slog.String("error", err.Error()))
	return readPath(paths.Fallback)
}

func readPath(path string) (*cachedEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, router.WrapErr(router.KindConfigRead, "cannot read config file "+path, err)
	}
	var modified time.Time
	if info, statErr := os.Stat(path); statErr == nil {
		modified = info.ModTime()
	}
	cfg := new(API)
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, router.WrapErr(router.KindConfigParse, path, err)
	}
	return &cachedEntry{config: cfg, source: path, modified: modified}, nil
}
