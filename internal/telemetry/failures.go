package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	failureThreshold = 5
	failureWindow    = 300 * time.Second
	alertThrottle    = 60 * time.Second
)

type failureInfo struct {
	count        uint64
	firstFailure time.Time
	lastAlerted  time.Time
}

// FailureTracker raises a log alert when one provider fails repeatedly
// inside a sliding window. Alerts are throttled per provider.
type FailureTracker struct {
	mu        sync.Mutex
	providers map[string]*failureInfo
	logger    *slog.Logger
}

// NewFailureTracker creates a tracker that alerts through logger.
func NewFailureTracker(logger *slog.Logger) *FailureTracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &FailureTracker{providers: make(map[string]*failureInfo), logger: logger}
}

// Track records one upstream failure for provider and emits an alert when
// the threshold is crossed.
func (t *FailureTracker) Track(provider string, err error) {
	now := time.Now()

	t.mu.Lock()
	info, ok := t.providers[provider]
	if !ok {
		info = &failureInfo{firstFailure: now}
		t.providers[provider] = info
	}
	alert := info.registerFailure(now)
	t.cleanupLocked(now)
	t.mu.Unlock()

	if alert {
		t.logger.LogAttrs(context.Background(), slog.LevelError, "repeated upstream failures detected",
			slog.String("provider", provider),
			slog.String("error", err.Error()),
			slog.Int("threshold", failureThreshold),
			slog.Duration("window", failureWindow))
	}
}

func (i *failureInfo) registerFailure(now time.Time) bool {
	if now.Sub(i.firstFailure) > failureWindow {
		i.count = 1
		i.firstFailure = now
		i.lastAlerted = time.Time{}
		return false
	}

	i.count++
	if i.count < failureThreshold {
		return false
	}
	if !i.lastAlerted.IsZero() && now.Sub(i.lastAlerted) <= alertThrottle {
		return false
	}
	i.lastAlerted = now
	return true
}

// cleanupLocked drops providers whose window expired long ago.
func (t *FailureTracker) cleanupLocked(now time.Time) {
	cutoff := now.Add(-2 * failureWindow)
	for provider, info := range t.providers {
		if info.firstFailure.Before(cutoff) {
			delete(t.providers, provider)
		}
	}
}
