package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"clubcheckin/internal/app"
	"clubcheckin/internal/attendance"
	"clubcheckin/internal/config"
	"clubcheckin/internal/metrics"
)

// Worker consumes notification jobs, resolves recipients and dispatches mail.
func main() {
	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("worker failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.App, logger *slog.Logger) error {
	if cfg.QueueBackend == "memory" {
		return errors.New("QUEUE_BACKEND=memory runs the worker inside the api process")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backends, err := app.Open(ctx, cfg, "worker", logger)
	if err != nil {
		return err
	}
	defer backends.Close()

	m := metrics.New(prometheus.DefaultRegisterer)
	renderer := app.Renderer(cfg)

	// Check render service health on startup
	if !cfg.RenderSkip {
		if err := renderer.Health(ctx); err != nil {
			logger.Warn("render service not available; certificate jobs will fail until it is", "error", err)
		} else {
			logger.Info("render service connected", "url", cfg.RenderServiceURL)
		}
	}

	roster := attendance.NewService(backends.Attendance, logger, m)
	proc := app.NewProcessor(cfg, backends, roster, renderer, logger, m)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{
		Addr:              ":" + cfg.MetricsPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return proc.Run(gctx, backends.Queue)
	})
	g.Go(func() error {
		logger.Info("metrics listening", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsSrv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	logger.Info("worker stopped")
	return err
}
