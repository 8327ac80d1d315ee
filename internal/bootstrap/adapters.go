package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/edunexus/governance/config"
	"github.com/edunexus/governance/internal/adapters/dispatcher"
	"github.com/edunexus/governance/internal/adapters/reaper"
	"github.com/edunexus/governance/internal/core"
	"github.com/edunexus/governance/internal/observability/statsd"
)

// ReaperConfig contains configuration for the idempotency reaper.
type ReaperConfig struct {
	DB      *sql.DB
	Repo    core.IdempotencyRepository
	Logger  *slog.Logger
	Config  config.ReaperConfig
	Metrics statsd.Sink
}

// RunReaper starts the reaper loop and blocks until ctx ends.
func RunReaper(ctx context.Context, cfg ReaperConfig) error {
	runner, err := reaper.NewRunner(reaper.RunnerOptions{
		DB:      cfg.DB,
		Repo:    cfg.Repo,
		Config:  cfg.Config,
		Logger:  cfg.Logger,
		Metrics: cfg.Metrics,
	})
	if err != nil {
		return fmt.Errorf("create reaper runner: %w", err)
	}
	return runner.Run(ctx)
}

// newDispatcher sizes the background worker pool from config.
func newDispatcher(cfg config.DispatchConfig, logger *slog.Logger, metrics statsd.Sink) *dispatcher.Dispatcher {
	return dispatcher.New(dispatcher.Options{
		Workers:   cfg.Workers,
		QueueSize: cfg.QueueSize,
		Logger:    logger,
		Metrics:   metrics,
	})
}

// drainDispatcher waits for ctx to end, then lets queued tasks finish within timeout.
func drainDispatcher(ctx context.Context, d *dispatcher.Dispatcher, timeout time.Duration) error {
	if d == nil {
		<-ctx.Done()
		return nil
	}
	return d.Run(ctx, timeout)
}
