// Package jobrunner executes JobRuns on the background dispatcher and guarantees that every
// run it starts ends in exactly one terminal status.
package jobrunner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/edunexus/governance/internal/adapters/dispatcher"
	"github.com/edunexus/governance/internal/domain/model"
	apperrors "github.com/edunexus/governance/internal/errors"
)

// HandlerFunc performs the work of one run and returns its result snapshot.
type HandlerFunc func(ctx context.Context, run *model.JobRun) (json.RawMessage, error)

// Handler is the registration for one job type.
type Handler struct {
	Run HandlerFunc
	// Classify picks FAILED or DEAD_LETTER for an error. Defaults to DefaultClassify.
	Classify func(err error) model.JobRunStatus
	// OnFailure runs before the terminal transition for errors, panics and rejected dispatches,
	// so owning entities can be marked failed too.
	OnFailure func(ctx context.Context, run *model.JobRun, err error)
}

// Tracker is the subset of the job service the runner drives.
type Tracker interface {
	MarkRunning(ctx context.Context, id string) error
	MarkSucceeded(ctx context.Context, id string, result json.RawMessage) error
	MarkFailed(ctx context.Context, id string, cause error) error
	MarkDeadLetter(ctx context.Context, id string, cause error) error
}

// Dispatcher accepts background tasks without blocking.
type Dispatcher interface {
	Dispatch(task dispatcher.Task) error
}

// RunnerOptions configures the runner.
type RunnerOptions struct {
	Jobs       Tracker    // Required
	Dispatcher Dispatcher // Required
	Logger     *slog.Logger
}

// Runner maps job types to handlers and supervises their execution.
type Runner struct {
	jobs       Tracker
	dispatcher Dispatcher
	logger     *slog.Logger

	mu       sync.RWMutex
	handlers map[model.JobType]Handler
}

// NewRunner constructs a Runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Jobs == nil {
		return nil, errors.New("job tracker is required")
	}
	if opts.Dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		jobs:       opts.Jobs,
		dispatcher: opts.Dispatcher,
		logger:     logger.With("component", "job_runner"),
		handlers:   make(map[model.JobType]Handler),
	}, nil
}

// Register installs h for jobType, replacing any previous handler.
func (r *Runner) Register(jobType model.JobType, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[jobType] = h
}

func (r *Runner) handler(jobType model.JobType) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[jobType]
	return h, ok && h.Run != nil
}

// DefaultClassify treats exhausted dependencies and timeouts as FAILED (worth a new run later)
// and everything else, panics included, as DEAD_LETTER.
func DefaultClassify(err error) model.JobRunStatus {
	if apperrors.IsDependencyUnavailable(err) || apperrors.IsTimeout(err) {
		return model.JobRunStatusFailed
	}
	return model.JobRunStatusDeadLetter
}

// Submit hands run to the dispatcher. When the dispatcher refuses it, the run is marked FAILED
// right away and the refusal is returned; the run never stays PENDING.
func (r *Runner) Submit(ctx context.Context, run *model.JobRun) error {
	h, ok := r.handler(run.JobType)
	if !ok {
		err := fmt.Errorf("no handler for job type %s", run.JobType)
		r.finishFailure(ctx, run, Handler{}, err)
		return err
	}

	err := r.dispatcher.Dispatch(dispatcher.Task{
		Name: string(run.JobType) + ":" + run.ID,
		Run: func(taskCtx context.Context) error {
			r.process(taskCtx, run, h)
			return nil
		},
		OnFailure: func(taskCtx context.Context, err error) {
			// process already recovers; this fires only if supervision itself panicked.
			r.finishFailure(taskCtx, run, h, err)
		},
	})
	if err != nil {
		r.logger.WarnContext(ctx, "job dispatch rejected", "job_id", run.ID, "job_type", run.JobType, "error", err)
		r.finishFailureAs(context.WithoutCancel(ctx), run, h, model.JobRunStatusFailed,
			fmt.Errorf("dispatch job run: %w", err))
		return fmt.Errorf("dispatch job run %s: %w", run.ID, err)
	}
	return nil
}

// process is the catch-all wrapper around a handler.
func (r *Runner) process(ctx context.Context, run *model.JobRun, h Handler) {
	if err := r.jobs.MarkRunning(ctx, run.ID); err != nil {
		r.logger.ErrorContext(ctx, "mark job running failed", "job_id", run.ID, "error", err)
		if apperrors.IsConflict(err) {
			// Already terminal: whoever settled it owns the outcome.
			return
		}
		r.finishFailure(ctx, run, h, fmt.Errorf("mark job running: %w", err))
		return
	}

	result, err := runHandler(ctx, run, h.Run)
	if err != nil {
		r.finishFailure(ctx, run, h, err)
		return
	}

	if err := r.jobs.MarkSucceeded(ctx, run.ID, result); err != nil {
		r.logger.ErrorContext(ctx, "mark job succeeded failed", "job_id", run.ID, "error", err)
		if apperrors.IsConflict(err) {
			return
		}
		r.finishFailure(ctx, run, h, fmt.Errorf("record job result: %w", err))
	}
}

func runHandler(ctx context.Context, run *model.JobRun, fn HandlerFunc) (result json.RawMessage, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &dispatcher.PanicError{Task: string(run.JobType) + ":" + run.ID, Value: rec}
		}
	}()
	return fn(ctx, run)
}

func (r *Runner) finishFailure(ctx context.Context, run *model.JobRun, h Handler, cause error) {
	classify := h.Classify
	if classify == nil {
		classify = DefaultClassify
	}
	r.finishFailureAs(ctx, run, h, classify(cause), cause)
}

func (r *Runner) finishFailureAs(
	ctx context.Context,
	run *model.JobRun,
	h Handler,
	status model.JobRunStatus,
	cause error,
) {
	if h.OnFailure != nil {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					r.logger.ErrorContext(ctx, "job failure hook panicked", "job_id", run.ID, "panic", rec)
				}
			}()
			h.OnFailure(ctx, run, cause)
		}()
	}

	var err error
	if status == model.JobRunStatusFailed {
		err = r.jobs.MarkFailed(ctx, run.ID, cause)
	} else {
		err = r.jobs.MarkDeadLetter(ctx, run.ID, cause)
	}
	if err != nil {
		r.logger.ErrorContext(ctx, "record job failure",
			"job_id", run.ID,
			"status", status,
			"error", err,
			"original_error", cause,
		)
	}
}
