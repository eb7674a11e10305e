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

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"clubcheckin/internal/app"
	"clubcheckin/internal/attendance"
	"clubcheckin/internal/certificate"
	"clubcheckin/internal/config"
	"clubcheckin/internal/httpapi"
	"clubcheckin/internal/httpmiddleware"
	"clubcheckin/internal/jobs"
	"clubcheckin/internal/metrics"
)

func main() {
	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg, logger); err != nil {
		logger.Error("http server failed", "error", err)
		os.Exit(1)
	}
}

func runHTTP(cfg config.App, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backends, err := app.Open(ctx, cfg, "api", logger)
	if err != nil {
		return err
	}
	defer backends.Close()

	m := metrics.New(prometheus.DefaultRegisterer)
	att := attendance.NewService(backends.Attendance, logger, m)
	certs := certificate.NewService(backends.Certificates, logger, m)
	publisher := jobs.NewPublisher(backends.Queue, backends.Reports)

	// The in-memory queue only reaches consumers in this process.
	if cfg.QueueBackend == "memory" {
		proc := app.NewProcessor(cfg, backends, att, app.Renderer(cfg), logger, m)
		go func() {
			if err := proc.Run(ctx, backends.Queue); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("in-process worker stopped", "error", err)
			}
		}()
		logger.Info("running notification worker in-process")
	}

	h := httpapi.New(att, certs, backends.Directory, publisher, backends.Reports, httpapi.AuthConfig{
		SigningKey:  cfg.JWTSigningKey,
		Issuer:      cfg.JWTIssuer,
		OperatorKey: cfg.OperatorKey,
		AccessTTL:   cfg.AccessTTL,
	}, logger)

	rc := httpapi.RouterConfig{
		AllowOrigins: cfg.CORSOrigins,
		Fallback:     httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin),
		Health:       map[string]httpapi.HealthCheck{},
		Log:          logger,
	}
	if backends.DB != nil {
		rc.Health["db"] = backends.DB.Healthy
	}
	if backends.Redis != nil {
		rc.Limiter = httpmiddleware.NewRedisWindow(backends.Redis.Client, cfg.RateLimitPerMin)
		rc.Health["redis"] = backends.Redis.Healthy
	}

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      httpapi.NewRouter(h, rc),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "port", cfg.HTTPPort, "store", cfg.StoreBackend, "queue", cfg.QueueBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down server")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced shutdown", "error", err)
	}
	logger.Info("server exited")
	return nil
}
