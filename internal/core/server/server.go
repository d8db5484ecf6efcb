package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gridwatch/energy-data-cache/internal/core/config"
	"github.com/gridwatch/energy-data-cache/internal/core/health"
	middleware "github.com/gridwatch/energy-data-cache/internal/core/middleware"
	"github.com/gridwatch/energy-data-cache/internal/core/model"
	"github.com/gridwatch/energy-data-cache/internal/core/router"
)

// Drainer flushes work that must settle before the process exits,
// such as detached shared-cache writes.
type Drainer interface {
	Drain()
}

// sets up http and starts serving; blocks until ctx is canceled
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger, handler router.QueryHandler, ready health.Pinger, drain Drainer) error {
	r := chi.NewRouter()
	r.Use(middleware.Recover())
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS())

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(ready))
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	for _, res := range model.Resources() {
		r.Get("/v1/"+string(res), router.Handle(logger, res, handler))
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		if drain != nil {
			drain.Drain()
		}
		return nil
	case err := <-errCh:
		return err
	}
}
