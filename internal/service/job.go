package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/edunexus/governance/internal/core"
	"github.com/edunexus/governance/internal/domain/model"
	apperrors "github.com/edunexus/governance/internal/errors"
	obserrors "github.com/edunexus/governance/internal/observability/errors"
	"github.com/edunexus/governance/internal/observability/metrics"
	"github.com/edunexus/governance/internal/observability/notify"
	"github.com/edunexus/governance/internal/observability/statsd"
	"github.com/edunexus/governance/internal/service/failurenotifier"
)

// JobServiceOptions groups dependencies for JobService.
type JobServiceOptions struct {
	Repo            core.JobRunRepository    // Required: job run repository
	Logger          *slog.Logger             // Optional: structured logger
	Metrics         statsd.Sink              // Optional: metrics sink
	FailureNotifier *failurenotifier.Service // Optional: failure notification fan-out
	Now             func() time.Time         // Optional: clock for notification timestamps
}

// JobService tracks background units of work as a persisted state machine.
//
// PENDING -> RUNNING -> SUCCEEDED | FAILED | DEAD_LETTER. Terminal states are never left, and a
// run that needs another try is a new JobRun. The service never retries anything itself.
type JobService struct {
	repo            core.JobRunRepository
	logger          *slog.Logger
	metrics         statsd.Sink
	failureNotifier *failurenotifier.Service
	now             func() time.Time
}

// NewJobService constructs a new JobService.
func NewJobService(opts JobServiceOptions) (*JobService, error) {
	if opts.Repo == nil {
		return nil, errors.New("JobRunRepository is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &JobService{
		repo:            opts.Repo,
		logger:          logger.With("component", "job_service"),
		metrics:         opts.Metrics,
		failureNotifier: opts.FailureNotifier,
		now:             now,
	}, nil
}

// MustNewJobService constructs a new JobService and panics on error.
func MustNewJobService(opts JobServiceOptions) *JobService {
	svc, err := NewJobService(opts)
	if err != nil {
		//nolint:forbidigo // startup wiring fails fast on missing dependencies
		panic(fmt.Sprintf("failed to create JobService: %v", err))
	}
	return svc
}

// Create records a PENDING run with attempt 1. It does not start any work.
func (s *JobService) Create(
	ctx context.Context,
	jobType model.JobType,
	businessID string,
	payload json.RawMessage,
) (*model.JobRun, error) {
	req := &model.CreateJobRunRequest{JobType: jobType, BusinessID: businessID, Payload: payload}
	if err := req.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid job run")
	}

	run, err := s.repo.Create(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create job run: %w", err)
	}

	metrics.EmitJobTransition(s.metrics, metrics.JobMetric{
		JobType: string(run.JobType),
		To:      string(model.JobRunStatusPending),
		Result:  metrics.ResultSuccess,
	})
	s.logger.DebugContext(ctx, "job run created",
		"job_id", run.ID,
		"job_type", run.JobType,
		"business_id", run.BusinessID,
	)
	return run, nil
}

// GetByID returns one run. Ids that are not UUIDs cannot exist and are reported as not found.
func (s *JobService) GetByID(ctx context.Context, id string) (*model.JobRun, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperrors.NotFound("job run not found")
	}
	run, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get job run %s: %w", id, err)
	}
	return run, nil
}

// ListByBusinessID returns every run owned by businessID, newest first.
func (s *JobService) ListByBusinessID(ctx context.Context, businessID string) ([]*model.JobRun, error) {
	if _, err := uuid.Parse(businessID); err != nil {
		return nil, apperrors.ValidationField("business_id", "business_id must be a UUID")
	}
	runs, err := s.repo.ListByBusinessID(ctx, businessID)
	if err != nil {
		return nil, fmt.Errorf("list job runs for %s: %w", businessID, err)
	}
	return runs, nil
}

// MarkRunning moves a PENDING run to RUNNING. Repeated calls on a RUNNING run succeed and
// keep the original startedAt.
func (s *JobService) MarkRunning(ctx context.Context, id string) error {
	ok, err := s.repo.MarkRunning(ctx, id)
	if err != nil {
		return fmt.Errorf("mark job run %s running: %w", id, err)
	}
	if !ok {
		return s.rejected(ctx, id, model.JobRunStatusRunning)
	}
	metrics.EmitJobTransition(s.metrics, metrics.JobMetric{
		To:     string(model.JobRunStatusRunning),
		Result: metrics.ResultSuccess,
	})
	s.logger.DebugContext(ctx, "job run started", "job_id", id)
	return nil
}

// MarkSucceeded moves a RUNNING run to SUCCEEDED with result, clearing any error message.
func (s *JobService) MarkSucceeded(ctx context.Context, id string, result json.RawMessage) error {
	if len(result) > 0 && !json.Valid(result) {
		return apperrors.ValidationField("result", "job result must be valid JSON")
	}
	if len(result) == 0 {
		result = json.RawMessage(`{}`)
	}
	return s.finish(ctx, model.JobRunTransition{
		ID:     id,
		To:     model.JobRunStatusSucceeded,
		From:   []model.JobRunStatus{model.JobRunStatusRunning},
		Result: result,
	}, nil)
}

// MarkFailed records a transient failure after the task's own retries ran out.
func (s *JobService) MarkFailed(ctx context.Context, id string, cause error) error {
	return s.fail(ctx, id, model.JobRunStatusFailed, cause)
}

// MarkDeadLetter records a failure the owning task decided needs no further handling.
func (s *JobService) MarkDeadLetter(ctx context.Context, id string, cause error) error {
	return s.fail(ctx, id, model.JobRunStatusDeadLetter, cause)
}

func (s *JobService) fail(ctx context.Context, id string, to model.JobRunStatus, cause error) error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	return s.finish(ctx, model.JobRunTransition{
		ID:           id,
		To:           to,
		From:         []model.JobRunStatus{model.JobRunStatusPending, model.JobRunStatusRunning},
		ErrorMessage: &msg,
	}, cause)
}

func (s *JobService) finish(ctx context.Context, t model.JobRunTransition, cause error) error {
	ok, err := s.repo.Transition(ctx, t)
	if err != nil {
		return fmt.Errorf("transition job run %s to %s: %w", t.ID, t.To, err)
	}
	if !ok {
		return s.rejected(ctx, t.ID, t.To)
	}

	run, err := s.repo.GetByID(ctx, t.ID)
	if err != nil {
		// The transition landed; only reporting is affected.
		s.logger.WarnContext(ctx, "reload finished job run", "job_id", t.ID, "error", err)
		run = &model.JobRun{ID: t.ID, Status: t.To}
	}

	result := metrics.ResultSuccess
	if cause != nil {
		result = metrics.ResultError
	}
	metrics.EmitJobTransition(s.metrics, metrics.JobMetric{
		JobType:  string(run.JobType),
		To:       string(t.To),
		Result:   result,
		Duration: run.Duration(),
		Err:      cause,
	})

	if cause == nil {
		s.logger.InfoContext(ctx, "job run succeeded", "job_id", t.ID, "job_type", run.JobType)
		return nil
	}

	s.logger.WarnContext(ctx, "job run finished with failure",
		"job_id", t.ID,
		"job_type", run.JobType,
		"status", t.To,
		"error", cause,
	)
	s.notifyFailure(ctx, run, cause)
	return nil
}

// rejected explains why a conditional update did not apply.
func (s *JobService) rejected(ctx context.Context, id string, to model.JobRunStatus) error {
	run, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("move job run %s to %s: %w", id, to, err)
	}
	metrics.EmitJobTransition(s.metrics, metrics.JobMetric{
		JobType: string(run.JobType),
		To:      string(to),
		Result:  metrics.ResultNoop,
	})
	s.logger.WarnContext(ctx, "job run transition rejected",
		"job_id", id,
		"from", run.Status,
		"to", to,
	)
	return apperrors.Conflictf("job run %s is %s and cannot move to %s", id, run.Status, to)
}

func (s *JobService) notifyFailure(ctx context.Context, run *model.JobRun, cause error) {
	if !s.failureNotifier.Enabled() {
		return
	}
	severity := notify.SeverityWarning
	if run.Status == model.JobRunStatusDeadLetter {
		severity = notify.SeverityCritical
	}
	s.failureNotifier.NotifyJobFailure(ctx, notify.JobFailurePayload{
		JobID:      run.ID,
		JobType:    string(run.JobType),
		BusinessID: run.BusinessID,
		Status:     string(run.Status),
		Attempt:    run.Attempt,
		Error:      cause.Error(),
		ErrorClass: obserrors.Classify(cause),
		Severity:   severity,
		OccurredAt: s.now(),
	})
}
