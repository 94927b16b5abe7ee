package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	router "github.com/H-Chris233/api-router/internal"
	"github.com/H-Chris233/api-router/internal/config"
	"github.com/H-Chris233/api-router/internal/pool"
	"github.com/H-Chris233/api-router/internal/ratelimit"
	"github.com/H-Chris233/api-router/internal/server"
	"github.com/H-Chris233/api-router/internal/telemetry"
	"github.com/H-Chris233/api-router/internal/upstream"
)

const (
	bucketEvictInterval = 10 * time.Minute
	bucketEvictCutoff   = time.Hour
)

func run(args []string) error {
	logger := slog.Default()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	basename := ""
	if len(args) > 1 {
		basename = args[1]
	}
	paths := config.ResolvePaths(basename)
	cache := config.NewCache(logger)

	// A broken or missing config still gets a listener on the default
	// port; forwarding routes surface the load error per request.
	cfg, err := cache.Load(paths)
	if err != nil {
		switch router.KindOf(err) {
		case router.KindConfigParse:
			logger.Warn("config parse failed, using defaults", "error", err)
		default:
			logger.Error("config load failed, using defaults", "error", err)
		}
		cfg = config.Default()
	}

	basePort := cfg.Port
	if len(args) > 2 {
		if p, parseErr := strconv.Atoi(args[2]); parseErr == nil && p > 0 && p < 65536 {
			basePort = p
		} else {
			logger.Warn("invalid port argument, using configured port",
				"arg", args[2], "port", basePort)
		}
	}

	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		shutdown, traceErr := telemetry.SetupTracing(ctx, endpoint, 1.0)
		if traceErr != nil {
			logger.Warn("tracing disabled", "error", traceErr)
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				shutdown(shutdownCtx)
			}()
		}
	}

	ln, port, err := server.Listen(basePort)
	if err != nil {
		return err
	}

	limiter := ratelimit.NewLimiter()
	srv := server.New(server.Deps{
		Config:      cache,
		ConfigPaths: paths,
		Limiter:     limiter,
		Upstream:    upstream.NewClient(pool.New(pool.DefaultConfig()), logger),
		Metrics:     telemetry.NewMetrics(),
		Failures:    telemetry.NewFailureTracker(logger),
		Logger:      logger,
	})

	logger.Info("api router listening", "version", version, "addr", "http://0.0.0.0:"+strconv.Itoa(port))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(ctx, ln)
	})
	g.Go(func() error {
		ticker := time.NewTicker(bucketEvictInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if n := limiter.EvictStale(time.Now().Add(-bucketEvictCutoff)); n > 0 {
					logger.Debug("evicted stale rate limit buckets", "count", n)
				}
			}
		}
	})

	err = g.Wait()
	logger.Info("api router stopped")
	return err
}
