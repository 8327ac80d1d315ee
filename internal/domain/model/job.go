// Package model defines the data types shared by the governance core: job runs, idempotency
// records, documents and the caller principal.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// JobType identifies the kind of background work a JobRun supervises.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type JobType string

// JobRunStatus is the lifecycle state of a JobRun.
type JobRunStatus string

const (
	// JobTypeDocumentIngest ingests an uploaded document into the knowledge base.
	JobTypeDocumentIngest JobType = "DOCUMENT_INGEST"
	// JobTypeDocumentDelete removes a document's chunks from the knowledge base.
	JobTypeDocumentDelete JobType = "DOCUMENT_DELETE"

	// JobRunStatusPending indicates the run was created but not yet picked up.
	JobRunStatusPending JobRunStatus = "PENDING"
	// JobRunStatusRunning indicates the owning task started executing.
	JobRunStatusRunning JobRunStatus = "RUNNING"
	// JobRunStatusSucceeded is terminal: the task finished and recorded a result.
	JobRunStatusSucceeded JobRunStatus = "SUCCEEDED"
	// JobRunStatusFailed is terminal: the task failed after its internal retries.
	JobRunStatusFailed JobRunStatus = "FAILED"
	// JobRunStatusDeadLetter is terminal: the task owner decided no further handling applies.
	JobRunStatusDeadLetter JobRunStatus = "DEAD_LETTER"
)

// ErrInvalidJobType is returned when a job type is not recognised.
var ErrInvalidJobType = errors.New("invalid job type")

// UnmarshalText implements encoding.TextUnmarshaler for JobType.
func (t *JobType) UnmarshalText(text []byte) error {
	jt := JobType(strings.ToUpper(strings.TrimSpace(string(text))))
	if !jt.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidJobType, string(text))
	}
	*t = jt
	return nil
}

// Valid returns true if the JobType is known.
func (t JobType) Valid() bool {
	return t == JobTypeDocumentIngest || t == JobTypeDocumentDelete
}

// Valid returns true if the status is one of the five lifecycle states.
func (s JobRunStatus) Valid() bool {
	switch s {
	case JobRunStatusPending, JobRunStatusRunning, JobRunStatusSucceeded,
		JobRunStatusFailed, JobRunStatusDeadLetter:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status has no outgoing transitions.
func (s JobRunStatus) Terminal() bool {
	return s == JobRunStatusSucceeded || s == JobRunStatusFailed || s == JobRunStatusDeadLetter
}

// TerminalJobRunStatuses lists the statuses a JobRun never leaves.
func TerminalJobRunStatuses() []JobRunStatus {
	return []JobRunStatus{JobRunStatusSucceeded, JobRunStatusFailed, JobRunStatusDeadLetter}
}

// JobRun is a persisted background unit of work.
type JobRun struct {
	ID           string          `json:"id"                      db:"id"`
	JobType      JobType         `json:"job_type"                db:"job_type"`
	BusinessID   string          `json:"business_id"             db:"business_id"`
	Status       JobRunStatus    `json:"status"                  db:"status"`
	Attempt      int             `json:"attempt"                 db:"attempt"`
	Payload      json.RawMessage `json:"payload"                 db:"payload"`
	Result       json.RawMessage `json:"result,omitempty"        db:"result"`
	ErrorMessage *string         `json:"error_message,omitempty" db:"error_message"`
	CreatedAt    time.Time       `json:"created_at"              db:"created_at"`
	StartedAt    *time.Time      `json:"started_at,omitempty"    db:"started_at"`
	FinishedAt   *time.Time      `json:"finished_at,omitempty"   db:"finished_at"`
	UpdatedAt    time.Time       `json:"updated_at"              db:"updated_at"`
}

// Duration returns the time spent between start and finish, or zero when either is unset.
func (j *JobRun) Duration() time.Duration {
	if j == nil || j.StartedAt == nil || j.FinishedAt == nil {
		return 0
	}
	return j.FinishedAt.Sub(*j.StartedAt)
}

// CreateJobRunRequest describes a new JobRun.
type CreateJobRunRequest struct {
	JobType    JobType         `json:"job_type"`
	BusinessID string          `json:"business_id"`
	Payload    json.RawMessage `json:"payload"`
}

// Validate validates the CreateJobRunRequest fields.
func (r *CreateJobRunRequest) Validate() error {
	if !r.JobType.Valid() {
		return ErrInvalidJobType
	}
	if _, err := uuid.Parse(r.BusinessID); err != nil {
		return fmt.Errorf("business id must be a uuid: %w", err)
	}
	if len(r.Payload) > 0 && !json.Valid(r.Payload) {
		return errors.New("payload must be valid JSON")
	}
	return nil
}

// JobRunTransition is a conditional status update applied by the tracker. The update only
// lands when the stored status is one of From.
type JobRunTransition struct {
	ID           string
	To           JobRunStatus
	From         []JobRunStatus
	Result       json.RawMessage
	ErrorMessage *string
}
