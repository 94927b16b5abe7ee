// The router binary is an OpenAI-compatible reverse proxy: it terminates
// client HTTP/1.1 itself, rewrites model names per provider config, and
// forwards over pooled upstream connections.
//
// Usage: router [config-basename] [port]
//
// The first argument picks ./transformer/<name>.json, the second overrides
// the configured listen port.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

var version = "dev"

func main() {
	args := os.Args
	if len(args) > 1 && (args[1] == "-version" || args[1] == "--version") {
		fmt.Println("router", version)
		os.Exit(0)
	}

	initLogging()

	if err := run(args); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

// initLogging configures slog from LOG_FORMAT and LOG_LEVEL.
func initLogging() {
	var level slog.Level
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
