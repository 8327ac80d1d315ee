package core

import (
	"context"
	"time"

	"github.com/edunexus/governance/internal/domain/model"
)

// This file contains repository interface definitions (ports in hexagonal architecture).
// Service implementations depend on these interfaces, not on the data layer.

// JobRunRepository persists JobRun rows. Status writers are conditional: Transition only applies
// when the stored status is one of the transition's From states and reports whether it did.
type JobRunRepository interface {
	Create(ctx context.Context, req *model.CreateJobRunRequest) (*model.JobRun, error)
	GetByID(ctx context.Context, id string) (*model.JobRun, error)
	ListByBusinessID(ctx context.Context, businessID string) ([]*model.JobRun, error)
	MarkRunning(ctx context.Context, id string) (bool, error)
	Transition(ctx context.Context, t model.JobRunTransition) (bool, error)
}

// IdempotencyRepository stores replay snapshots keyed by (scope, key).
//
// Find returns (nil, nil) when no unexpired record exists at now. Insert is insert-if-absent
// and reports whether this call wrote the row; an existing row is never overwritten.
type IdempotencyRepository interface {
	Find(ctx context.Context, scope, key string, now time.Time) (*model.IdempotencyRecord, error)
	Insert(ctx context.Context, rec *model.IdempotencyRecord) (bool, error)
	DeleteExpired(ctx context.Context, now time.Time, limit int) (int64, error)
}

// DocumentRepository persists knowledge documents, the owning entities of ingestion runs.
type DocumentRepository interface {
	Create(ctx context.Context, req *model.CreateDocumentRequest) (*model.Document, error)
	GetByID(ctx context.Context, id string) (*model.Document, error)
	UpdateStatus(ctx context.Context, upd model.DocumentStatusUpdate) (bool, error)
}
