// Package failurenotifier fans job run failure alerts out to every configured sink.
package failurenotifier

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/edunexus/governance/internal/domain/model"
	"github.com/edunexus/governance/internal/observability/notify"
)

// SinkRegistration pairs a sink implementation with a human-readable name for logging.
type SinkRegistration struct {
	Name string
	Sink notify.Sink
}

// Options configures the failure notifier service.
type Options struct {
	Logger *slog.Logger
	Sinks  []SinkRegistration
	// Statuses limits which terminal statuses are announced. Defaults to FAILED and DEAD_LETTER.
	Statuses []model.JobRunStatus
	// SinkTimeout bounds each delivery. Zero means 10s.
	SinkTimeout time.Duration
}

// Service dispatches failure events to all registered sinks.
type Service struct {
	logger   *slog.Logger
	sinks    []SinkRegistration
	statuses map[string]struct{}
	timeout  time.Duration
}

// NewService constructs a failure notifier.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var sinks []SinkRegistration
	for _, entry := range opts.Sinks {
		if entry.Sink == nil {
			continue
		}
		if entry.Name == "" {
			entry.Name = "sink"
		}
		sinks = append(sinks, entry)
	}

	statuses := opts.Statuses
	if len(statuses) == 0 {
		statuses = []model.JobRunStatus{model.JobRunStatusFailed, model.JobRunStatusDeadLetter}
	}
	allowed := make(map[string]struct{}, len(statuses))
	for _, st := range statuses {
		allowed[string(st)] = struct{}{}
	}

	timeout := opts.SinkTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Service{
		logger:   logger.With("component", "failure_notifier"),
		sinks:    sinks,
		statuses: allowed,
		timeout:  timeout,
	}
}

// NotifyJobFailure delivers payload to all sinks concurrently and waits for them.
// Delivery errors are logged, never returned.
func (s *Service) NotifyJobFailure(ctx context.Context, payload notify.JobFailurePayload) {
	if s == nil || len(s.sinks) == 0 {
		return
	}
	if _, ok := s.statuses[payload.Status]; payload.Status != "" && !ok {
		s.logger.DebugContext(ctx, "skipping notification for status",
			"job_id", payload.JobID,
			"status", payload.Status,
		)
		return
	}
	if payload.Severity == "" {
		payload.Severity = notify.SeverityCritical
	}

	// Alerts must still go out when the triggering request context is already done.
	base := context.WithoutCancel(ctx)

	var g errgroup.Group
	for _, entry := range s.sinks {
		g.Go(func() error {
			sendCtx, cancel := context.WithTimeout(base, s.timeout)
			defer cancel()
			if err := entry.Sink.SendJobFailure(sendCtx, payload); err != nil {
				s.logger.ErrorContext(ctx, "failure notifier delivery error",
					"sink", entry.Name,
					"job_id", payload.JobID,
					"job_type", payload.JobType,
					"error", err,
				)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// Enabled reports whether the notifier has any active sinks.
func (s *Service) Enabled() bool {
	return s != nil && len(s.sinks) > 0
}
