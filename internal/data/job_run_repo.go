package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/edunexus/governance/internal/core"
	"github.com/edunexus/governance/internal/data/pgxutil"
	"github.com/edunexus/governance/internal/domain/model"
	apperrors "github.com/edunexus/governance/internal/errors"
)

// JobRunRepoOptions configures a JobRunRepo.
type JobRunRepoOptions struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// JobRunRepo persists JobRun rows in the job_runs table.
type JobRunRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewJobRunRepo creates a new JobRunRepo.
func NewJobRunRepo(db *sql.DB, opts JobRunRepoOptions) *JobRunRepo {
	tp := opts.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &JobRunRepo{
		DB:           db,
		timeProvider: tp,
		logger:       logger.With("component", "job_run_repo"),
	}
}

const jobRunColumns = `
  id,
  job_type,
  business_id::text AS business_id,
  status,
  attempt,
  payload,
  result,
  error_message,
  created_at,
  started_at,
  finished_at,
  updated_at`

// Create inserts a PENDING run with attempt 1.
func (r *JobRunRepo) Create(ctx context.Context, req *model.CreateJobRunRequest) (*model.JobRun, error) {
	if req == nil {
		return nil, errors.New("create job run request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	payload := []byte(req.Payload)
	if len(payload) == 0 {
		payload = []byte(`{}`)
	}
	now := r.timeProvider.Now()

	query := `
		INSERT INTO job_runs (job_type, business_id, status, attempt, payload, created_at, updated_at)
		VALUES ($1, $2, $3, 1, $4, $5, $5)
		RETURNING ` + jobRunColumns

	run, err := pgxutil.QueryOne[model.JobRun](ctx, r.DB, query,
		string(req.JobType), req.BusinessID, string(model.JobRunStatusPending), payload, now)
	if err != nil {
		return nil, fmt.Errorf("insert job run: %w", apperrors.MapDBError(err))
	}
	return run, nil
}

// GetByID returns a run by id.
func (r *JobRunRepo) GetByID(ctx context.Context, id string) (*model.JobRun, error) {
	query := `SELECT ` + jobRunColumns + ` FROM job_runs WHERE id = $1`

	run, err := pgxutil.QueryOne[model.JobRun](ctx, r.DB, query, id)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrJobRunNotFound
		}
		return nil, fmt.Errorf("get job run: %w", apperrors.MapDBError(err))
	}
	return run, nil
}

// ListByBusinessID returns every run owned by businessID, newest first.
func (r *JobRunRepo) ListByBusinessID(ctx context.Context, businessID string) ([]*model.JobRun, error) {
	query := `SELECT ` + jobRunColumns + `
		FROM job_runs
		WHERE business_id = $1
		ORDER BY created_at DESC, id DESC`

	runs, err := pgxutil.QueryAll[model.JobRun](ctx, r.DB, query, businessID)
	if err != nil {
		return nil, fmt.Errorf("list job runs: %w", apperrors.MapDBError(err))
	}
	return runs, nil
}

// MarkRunning moves a PENDING run to RUNNING. started_at is only set the first time; calling
// it again on a RUNNING run keeps the original value.
func (r *JobRunRepo) MarkRunning(ctx context.Context, id string) (bool, error) {
	const query = `
		UPDATE job_runs
		SET status = $2,
		    started_at = COALESCE(started_at, $3),
		    updated_at = $3
		WHERE id = $1 AND status IN ($4, $2)`

	now := r.timeProvider.Now()
	res, err := r.DB.ExecContext(ctx, query, id,
		string(model.JobRunStatusRunning), now, string(model.JobRunStatusPending))
	if err != nil {
		return false, fmt.Errorf("mark job run running: %w", apperrors.MapDBError(err))
	}
	return rowsChanged(res)
}

// Transition applies a terminal status update when the stored status is one of t.From.
func (r *JobRunRepo) Transition(ctx context.Context, t model.JobRunTransition) (bool, error) {
	if !t.To.Valid() {
		return false, fmt.Errorf("invalid job run status %q", t.To)
	}
	if len(t.From) == 0 {
		return false, errors.New("transition requires at least one source status")
	}

	from := make([]string, 0, len(t.From))
	for _, s := range t.From {
		from = append(from, string(s))
	}

	var result any
	if len(t.Result) > 0 {
		result = []byte(t.Result)
	}

	const query = `
		UPDATE job_runs
		SET status = $2,
		    result = COALESCE($3::jsonb, result),
		    error_message = $4,
		    finished_at = $5,
		    updated_at = $5
		WHERE id = $1 AND status = ANY($6)`

	now := r.timeProvider.Now()
	var changed bool
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		tag, err := conn.Exec(ctx, query, t.ID, string(t.To), result, t.ErrorMessage, now, from)
		if err != nil {
			return err
		}
		changed = tag.RowsAffected() > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("transition job run to %s: %w", t.To, apperrors.MapDBError(err))
	}
	if !changed {
		r.logger.DebugContext(ctx, "job run transition skipped",
			"job_id", t.ID,
			"to", t.To,
		)
	}
	return changed, nil
}

var _ core.JobRunRepository = (*JobRunRepo)(nil)
