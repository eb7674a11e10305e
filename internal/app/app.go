// Package app assembles the stores, queue and notification pipeline shared
// by the api and worker binaries.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"clubcheckin/internal/attendance"
	"clubcheckin/internal/certificate"
	"clubcheckin/internal/config"
	"clubcheckin/internal/directory"
	"clubcheckin/internal/jobs"
	"clubcheckin/internal/mailer"
	"clubcheckin/internal/metrics"
	"clubcheckin/internal/notify"
	"clubcheckin/internal/queue"
	"clubcheckin/internal/renderclient"
	"clubcheckin/internal/store"
)

const (
	jobQueueKey  = "clubcheckin:jobs"
	reportPrefix = "clubcheckin:dispatch:"
)

// Backends are the storage and queue dependencies selected by config.
type Backends struct {
	Attendance   attendance.Store
	Certificates certificate.Store
	Directory    directory.Directory
	Queue        queue.Queue
	Reports      notify.ReportStore

	// DB and Redis are nil when the matching backend is in memory.
	DB    *store.DB
	Redis *store.Redis
}

// Open connects the configured backends. STORE_BACKEND=memory skips
// Postgres and QUEUE_BACKEND=memory skips Redis. process names the binary on
// its Redis connections.
func Open(ctx context.Context, cfg config.App, process string, logger *slog.Logger) (*Backends, error) {
	b := &Backends{}
	if cfg.InMemory() {
		logger.Warn("using in-memory stores; data is lost on restart")
		b.Attendance = attendance.NewInMemory()
		b.Certificates = certificate.NewInMemory()
		b.Directory = directory.NewInMemory()
	} else {
		db, err := store.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		b.DB = db
		b.Attendance = attendance.NewRepository(db.Client)
		b.Certificates = certificate.NewRepository(db.Client)
		b.Directory = directory.NewRepository(db.Client)
	}

	switch cfg.QueueBackend {
	case "memory":
		b.Queue = queue.NewInMemory(64)
		b.Reports = notify.NewInMemoryReportStore()
	case "redis":
		rdb, err := store.NewRedis(cfg.RedisAddr, "clubcheckin-"+process)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.Redis = rdb
		if !b.Redis.Healthy(ctx) {
			logger.Warn("redis not reachable yet", "addr", cfg.RedisAddr)
		}
		b.Queue = queue.NewRedisQueue(b.Redis.Client, jobQueueKey, logger)
		b.Reports = notify.NewRedisReportStore(b.Redis.Client, reportPrefix)
	default:
		b.Close()
		return nil, fmt.Errorf("app: unknown queue backend %q", cfg.QueueBackend)
	}
	return b, nil
}

// Close releases connections.
func (b *Backends) Close() {
	if b.DB != nil {
		_ = b.DB.Close()
	}
	if b.Redis != nil {
		_ = b.Redis.Close()
	}
}

// Renderer returns the certificate render client.
func Renderer(cfg config.App) *renderclient.Client {
	return renderclient.New(cfg.RenderServiceURL, cfg.RenderSkip)
}

// NewProcessor wires the job processor with the mail transport and dispatcher
// settings from cfg.
func NewProcessor(cfg config.App, b *Backends, roster jobs.Roster, renderer notify.Renderer,
	logger *slog.Logger, m *metrics.Metrics) *jobs.Processor {
	opts := notify.DefaultOptions()
	opts.MaxRetries = cfg.DispatchMaxRetries
	opts.RetryDelay = cfg.DispatchRetryDelay
	opts.ThrottleDelay = cfg.DispatchThrottle

	transport := mailer.New(cfg.MailAPIURL, cfg.MailAPIKey, cfg.MailFrom, cfg.MailSkip, logger)
	return &jobs.Processor{
		Directory:       b.Directory,
		Roster:          roster,
		Dispatcher:      notify.NewDispatcher(transport, opts, logger, m),
		Renderer:        renderer,
		Reports:         b.Reports,
		GraduatedCohort: cfg.GraduatedCohort,
		Log:             logger,
		Metrics:         m,
	}
}
