package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/edunexus/governance/config"
	"github.com/edunexus/governance/internal/core"
	obserrors "github.com/edunexus/governance/internal/observability/errors"
	"github.com/edunexus/governance/internal/observability/metrics"
	"github.com/edunexus/governance/internal/observability/statsd"
)

// ReaperServiceOptions groups dependencies for ReaperService.
type ReaperServiceOptions struct {
	Repo    core.IdempotencyRepository // Required: idempotency repository
	Config  config.ReaperConfig        // Required: reaper configuration
	Logger  *slog.Logger               // Optional: structured logger
	Metrics statsd.Sink                // Optional: metrics sink (StatsD-compatible)
	Now     func() time.Time           // Optional: clock override for tests
}

// ReaperService deletes expired idempotency records.
//
// Expired records are already invisible to lookups, so the sweep only bounds table growth.
// Records kept in Redis expire natively and the sweep is a no-op for them.
type ReaperService struct {
	repo    core.IdempotencyRepository
	config  config.ReaperConfig
	logger  *slog.Logger
	metrics statsd.Sink
	now     func() time.Time
}

// NewReaperService constructs a new ReaperService.
func NewReaperService(opts ReaperServiceOptions) (*ReaperService, error) {
	if opts.Repo == nil {
		return nil, errors.New("IdempotencyRepository is required")
	}
	if opts.Config.Interval <= 0 {
		return nil, errors.New("reaper interval must be positive")
	}
	if opts.Config.BatchSize <= 0 {
		return nil, errors.New("reaper batch size must be positive")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "reaper_service")
		logger.Debug("ReaperService initialized",
			"interval", opts.Config.Interval,
			"batch_size", opts.Config.BatchSize,
		)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &ReaperService{
		repo:    opts.Repo,
		config:  opts.Config,
		logger:  logger,
		metrics: opts.Metrics,
		now:     now,
	}, nil
}

// MustNewReaperService constructs a new ReaperService and panics on error.
func MustNewReaperService(opts ReaperServiceOptions) *ReaperService {
	svc, err := NewReaperService(opts)
	if err != nil {
		panic(fmt.Sprintf("failed to create ReaperService: %v", err))
	}
	return svc
}

// Run starts the reaper loop and runs until the context is cancelled.
// Returns nil on graceful shutdown (context.Canceled), error otherwise.
func (s *ReaperService) Run(ctx context.Context) error {
	if s.logger != nil {
		s.logger.InfoContext(ctx, "starting reaper service", "interval", s.config.Interval)
	}

	// Spread instances that start together.
	s.waitWithJitter(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	if _, err := s.PurgeExpired(ctx); err != nil {
		s.logPurgeError(ctx, err, "initial purge")
	}

	for {
		select {
		case <-ctx.Done():
			if s.logger != nil {
				s.logger.InfoContext(ctx, "reaper service stopping", "reason", ctx.Err())
			}
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.PurgeExpired(ctx); err != nil {
				s.logPurgeError(ctx, err, "purge")
			}
		}
	}
}

// waitWithJitter sleeps a random delay up to 10% of the interval.
func (s *ReaperService) waitWithJitter(ctx context.Context) {
	maxJitter := int64(s.config.Interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		}
		return
	}
	jitter := time.Duration(int64(binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter))) // #nosec G115 - bounded by maxJitter

	timer := time.NewTimer(jitter)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// PurgeExpired deletes expired records in batches until a batch comes back empty,
// and returns the number of rows removed.
func (s *ReaperService) PurgeExpired(ctx context.Context) (int64, error) {
	start := time.Now()
	now := s.now()

	var total int64
	var err error
	for {
		var count int64
		count, err = s.repo.DeleteExpired(ctx, now, s.config.BatchSize)
		total += count
		if err != nil || count < int64(s.config.BatchSize) {
			break
		}
		if err = ctx.Err(); err != nil {
			break
		}
	}

	s.emitPurgeMetrics(total, err, time.Since(start))
	if err != nil {
		return total, fmt.Errorf("purge expired idempotency records: %w", err)
	}
	if total > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "purged expired idempotency records", "count", total)
	}
	return total, nil
}

func (s *ReaperService) emitPurgeMetrics(total int64, err error, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}

	result := metrics.ResultSuccess
	switch {
	case err != nil:
		result = metrics.ResultError
	case total == 0:
		result = metrics.ResultNoop
	}
	tags := map[string]string{"result": result}
	if err != nil {
		if class := obserrors.Classify(err); class != "" {
			tags["error_class"] = class
		}
	}

	s.metrics.Count("reaper.cleanup", 1, tags)
	s.metrics.Timing("reaper.cleanup_duration", elapsed, metrics.CloneTags(tags))
	if total > 0 {
		metrics.EmitIdempotencyPurged(s.metrics, total)
	}
}

func (s *ReaperService) logPurgeError(ctx context.Context, err error, label string) {
	if s.logger == nil {
		return
	}
	if isContextCancellation(err) {
		s.logger.DebugContext(ctx, "reaper "+label+" interrupted", "error", err)
		return
	}
	s.logger.ErrorContext(ctx, "reaper "+label+" failed", "error", err)
}

func isContextCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
