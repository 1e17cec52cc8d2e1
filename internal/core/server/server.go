package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohammed-shakir/region-adjacency/internal/core/config"
	"github.com/mohammed-shakir/region-adjacency/internal/core/health"
	middleware "github.com/mohammed-shakir/region-adjacency/internal/core/middleware"
	"github.com/mohammed-shakir/region-adjacency/internal/core/router"
	"github.com/mohammed-shakir/region-adjacency/internal/serializer"
)

// NewHandler wires every route. A nil metrics handler falls back to the
// default Prometheus registry.
func NewHandler(cfg config.Config, logger *slog.Logger, h *router.Holder, metrics http.Handler) http.Handler {
	if metrics == nil {
		metrics = promhttp.Handler()
	}
	metricsPath := cfg.Metrics.Path
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	delim := cfg.Engine.Delimiter
	if delim == "" {
		delim = serializer.DefaultDelimiter
	}
	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS())

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(h))
	r.Method(http.MethodGet, metricsPath, metrics)

	r.Get("/regions", router.HandleRegions(logger, h))
	r.Get("/regions/{id}", router.HandleRegion(logger, h))
	r.Get("/regions/{id}/neighbors", router.HandleNeighbors(logger, h))
	r.Get("/adjacency.csv", router.HandleCSV(logger, h, delim))
	return r
}

// sets up http and serves until ctx is done
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger, handler http.Handler) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
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
		return nil
	case err := <-errCh:
		return err
	}
}
