package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gridwatch/energy-data-cache/internal/cache/localstore"
	"github.com/gridwatch/energy-data-cache/internal/cache/redisstore"
	"github.com/gridwatch/energy-data-cache/internal/cache/tiered"
	"github.com/gridwatch/energy-data-cache/internal/core/config"
	"github.com/gridwatch/energy-data-cache/internal/core/health"
	"github.com/gridwatch/energy-data-cache/internal/core/httpclient"
	"github.com/gridwatch/energy-data-cache/internal/core/observability"
	"github.com/gridwatch/energy-data-cache/internal/core/server"
	"github.com/gridwatch/energy-data-cache/internal/invalidation/kafkaconsumer"
	"github.com/gridwatch/energy-data-cache/internal/logger"
	"github.com/gridwatch/energy-data-cache/internal/service"
	"github.com/gridwatch/energy-data-cache/internal/upstream"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.FromEnv()

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   strings.ToLower(os.Getenv("LOG_CONSOLE")) == "true",
		Component: "energy-proxy",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	observability.ExposeBuildInfo(Version)
	appLog.Info("starting energy-proxy",
		"addr", cfg.Addr,
		"version", Version,
		"upstream", cfg.UpstreamURL,
		"redis", cfg.RedisAddr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// the shared tier is optional: a failed connect degrades to
	// local-only caching instead of refusing to start
	var shared *redisstore.Client
	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	rc, err := redisstore.New(connectCtx, cfg.RedisAddr)
	cancel()
	if err != nil {
		appLog.Warn("shared cache unavailable, serving local-only", "addr", cfg.RedisAddr, "err", err)
	} else {
		shared = rc
		defer func() { _ = rc.Close() }()
	}

	local, err := localstore.New(cfg.LocalCapacity)
	if err != nil {
		appLog.Error("local cache init failed", "err", err)
		return 1
	}

	var sharedStore tiered.SharedStore
	if shared != nil {
		sharedStore = shared
	}
	cache := tiered.New(appLog, local, sharedStore, cfg.CacheOpTimeout, cfg.FallbackTTL)

	client, err := upstream.NewClient(appLog, cfg.UpstreamURL, httpclient.NewOutbound(), cfg.UpstreamTimeout)
	if err != nil {
		appLog.Error("upstream client init failed", "err", err)
		return 1
	}

	retry := upstream.RetryPolicy{
		MaxAttempts: cfg.RetryMaxAttempts,
		BaseBackoff: cfg.RetryBaseBackoff,
		MaxBackoff:  cfg.RetryMaxBackoff,
	}
	svc := service.New(appLog, cache, client, retry, cfg.CoalesceGrace, cfg.TTLFor)

	if cfg.Invalidation.Enabled {
		if shared == nil {
			appLog.Warn("invalidation enabled but shared cache is down, consumer not started")
		} else {
			kcfg := kafkaconsumer.NewConfig(
				strings.Split(cfg.Invalidation.Brokers, ","),
				cfg.Invalidation.Topic,
				cfg.Invalidation.GroupID,
			)
			consumer := kafkaconsumer.New(kcfg, appLog, cache, shared)
			go func() {
				if err := consumer.Start(ctx); err != nil {
					appLog.Error("invalidation consumer exited", "err", err)
				}
			}()
		}
	}

	var ready health.Pinger
	if shared != nil {
		ready = shared
	}
	if err := server.Run(ctx, cfg, appLog, svc, ready, svc); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}
