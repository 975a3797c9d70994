package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	mid "LineGuard/internal/middleware"
	"LineGuard/internal/service/ratelimit"
	"LineGuard/pkg/config"
	xhttp "LineGuard/pkg/http"
	pkgkafka "LineGuard/pkg/kafka"
	applogger "LineGuard/pkg/logger"
)

const limiterIdle = 10 * time.Minute

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	httpServer *xhttp.Server
	consumer   *pkgkafka.Consumer
	pipeline   *mid.EventPipeline
	limiter    *ratelimit.Limiter
}

// New creates a new App. consumer, pipeline and limiter may be nil.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	httpServer *xhttp.Server,
	consumer *pkgkafka.Consumer,
	pipeline *mid.EventPipeline,
	limiter *ratelimit.Limiter,
) *App {
	if l == nil {
		l = applogger.Nop()
	}
	return &App{
		cfg:        cfg,
		log:        l,
		httpServer: httpServer,
		consumer:   consumer,
		pipeline:   pipeline,
		limiter:    limiter,
	}
}

// Run starts every component and blocks until ctx is cancelled, an
// interrupt arrives or the HTTP listener fails.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.pipeline != nil {
		a.pipeline.Start(ctx)
	}

	if a.consumer != nil {
		if err := a.consumer.Start(); err != nil {
			a.log.Error("kafka consumer start error", applogger.Error(err))
			return err
		}
		a.log.Info("kafka consumer started",
			applogger.String("topic", a.cfg.Kafka.Scoring.RequestsTopic),
			applogger.String("group", a.cfg.Kafka.Scoring.GroupID))
	}

	if a.limiter != nil {
		go a.pruneLimiter(ctx)
	}

	errCh := a.httpServer.Start()
	a.log.Info("lineguard started",
		applogger.String("env", a.cfg.Environment),
		applogger.Int("port", a.cfg.Server.Port),
		applogger.String("dataset_source", a.cfg.Dataset.Source),
		applogger.Bool("kafka", a.cfg.Kafka.Enabled),
		applogger.Bool("redis", a.cfg.Redis.Enabled))

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("shutdown signal received")
	case err, ok := <-errCh:
		if ok && err != nil {
			a.log.Error("http server error", applogger.Error(err))
			runErr = err
		}
	}

	// ctx is done at this point; shutdown gets a fresh budget.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	a.shutdown(shutdownCtx)
	return runErr
}

// shutdown stops intake first, then the background workers. Resources
// opened by the DI layer are released by its cleanup.
func (a *App) shutdown(ctx context.Context) {
	a.log.Info("shutting down...")

	if err := a.httpServer.Stop(ctx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	if a.pipeline != nil {
		a.pipeline.Stop()
	}

	a.log.Info("shutdown complete")
}

func (a *App) pruneLimiter(ctx context.Context) {
	t := time.NewTicker(limiterIdle)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := a.limiter.Prune(limiterIdle); n > 0 {
				a.log.Debug("pruned idle rate limit buckets", applogger.Int("count", n))
			}
		}
	}
}
