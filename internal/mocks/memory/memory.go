// Package memory contains in-process test doubles for the core repository ports.
// They follow the same conditional-update rules as the Postgres repositories so
// service and HTTP tests can run without a database.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/edunexus/governance/internal/core"
	"github.com/edunexus/governance/internal/data"
	"github.com/edunexus/governance/internal/domain/model"
)

var (
	_ core.JobRunRepository      = (*JobRunRepo)(nil)
	_ core.IdempotencyRepository = (*IdempotencyRepo)(nil)
	_ core.DocumentRepository    = (*DocumentRepo)(nil)
)

// JobRunRepo is a map-backed core.JobRunRepository.
type JobRunRepo struct {
	Now func() time.Time

	mu   sync.Mutex
	runs map[string]*model.JobRun
	// Transitions records every applied status change per run, in order.
	transitions map[string][]model.JobRunStatus
}

// NewJobRunRepo creates an empty JobRunRepo.
func NewJobRunRepo() *JobRunRepo {
	return &JobRunRepo{
		Now:         time.Now,
		runs:        make(map[string]*model.JobRun),
		transitions: make(map[string][]model.JobRunStatus),
	}
}

func cloneRun(r *model.JobRun) *model.JobRun {
	c := *r
	return &c
}

func (r *JobRunRepo) Create(_ context.Context, req *model.CreateJobRunRequest) (*model.JobRun, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	payload := req.Payload
	if len(payload) == 0 {
		payload = []byte(`{}`)
	}
	now := r.Now()
	run := &model.JobRun{
		ID:         uuid.NewString(),
		JobType:    req.JobType,
		BusinessID: req.BusinessID,
		Status:     model.JobRunStatusPending,
		Attempt:    1,
		Payload:    payload,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[run.ID] = run
	r.transitions[run.ID] = []model.JobRunStatus{model.JobRunStatusPending}
	return cloneRun(run), nil
}

func (r *JobRunRepo) GetByID(_ context.Context, id string) (*model.JobRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return nil, data.ErrJobRunNotFound
	}
	return cloneRun(run), nil
}

func (r *JobRunRepo) ListByBusinessID(_ context.Context, businessID string) ([]*model.JobRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.JobRun
	for _, run := range r.runs {
		if run.BusinessID == businessID {
			out = append(out, cloneRun(run))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *JobRunRepo) MarkRunning(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok || (run.Status != model.JobRunStatusPending && run.Status != model.JobRunStatusRunning) {
		return false, nil
	}
	now := r.Now()
	if run.StartedAt == nil {
		run.StartedAt = &now
	}
	if run.Status != model.JobRunStatusRunning {
		r.transitions[id] = append(r.transitions[id], model.JobRunStatusRunning)
	}
	run.Status = model.JobRunStatusRunning
	run.UpdatedAt = now
	return true, nil
}

func (r *JobRunRepo) Transition(_ context.Context, t model.JobRunTransition) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[t.ID]
	if !ok || !slices.Contains(t.From, run.Status) {
		return false, nil
	}
	now := r.Now()
	run.Status = t.To
	if len(t.Result) > 0 {
		run.Result = t.Result
	}
	run.ErrorMessage = t.ErrorMessage
	run.FinishedAt = &now
	run.UpdatedAt = now
	r.transitions[t.ID] = append(r.transitions[t.ID], t.To)
	return true, nil
}

// History returns the statuses a run passed through.
func (r *JobRunRepo) History(id string) []model.JobRunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.transitions[id])
}

// All returns every stored run.
func (r *JobRunRepo) All() []*model.JobRun {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.JobRun, 0, len(r.runs))
	for _, run := range r.runs {
		out = append(out, cloneRun(run))
	}
	return out
}

// IdempotencyRepo is a map-backed core.IdempotencyRepository.
type IdempotencyRepo struct {
	mu      sync.Mutex
	records map[string]*model.IdempotencyRecord
}

// NewIdempotencyRepo creates an empty IdempotencyRepo.
func NewIdempotencyRepo() *IdempotencyRepo {
	return &IdempotencyRepo{records: make(map[string]*model.IdempotencyRecord)}
}

func idemKey(scope, key string) string { return scope + "\x00" + key }

func (r *IdempotencyRepo) Find(_ context.Context, scope, key string, now time.Time) (*model.IdempotencyRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[idemKey(scope, key)]
	if !ok || rec.Expired(now) {
		return nil, nil
	}
	c := *rec
	return &c, nil
}

func (r *IdempotencyRepo) Insert(_ context.Context, rec *model.IdempotencyRecord) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := idemKey(rec.Scope, rec.Key)
	if existing, ok := r.records[k]; ok && !existing.Expired(rec.CreatedAt) {
		return false, nil
	}
	c := *rec
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	r.records[k] = &c
	return true, nil
}

func (r *IdempotencyRepo) DeleteExpired(_ context.Context, now time.Time, limit int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for k, rec := range r.records {
		if limit > 0 && n >= int64(limit) {
			break
		}
		if rec.Expired(now) {
			delete(r.records, k)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored records, expired or not.
func (r *IdempotencyRepo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// DocumentRepo is a map-backed core.DocumentRepository.
type DocumentRepo struct {
	Now func() time.Time

	mu      sync.Mutex
	docs    map[string]*model.Document
	history map[string][]model.DocumentStatus
}

// NewDocumentRepo creates an empty DocumentRepo.
func NewDocumentRepo() *DocumentRepo {
	return &DocumentRepo{
		Now:     time.Now,
		docs:    make(map[string]*model.Document),
		history: make(map[string][]model.DocumentStatus),
	}
}

func (r *DocumentRepo) Create(_ context.Context, req *model.CreateDocumentRequest) (*model.Document, error) {
	now := r.Now()
	doc := &model.Document{
		ID:        uuid.NewString(),
		OwnerID:   req.OwnerID,
		Filename:  req.Filename,
		FileType:  req.FileType,
		FileSize:  req.FileSize,
		Status:    model.DocumentStatusUploading,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[doc.ID] = doc
	r.history[doc.ID] = []model.DocumentStatus{doc.Status}
	c := *doc
	return &c, nil
}

func (r *DocumentRepo) GetByID(_ context.Context, id string) (*model.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return nil, data.ErrDocumentNotFound
	}
	c := *doc
	return &c, nil
}

func (r *DocumentRepo) UpdateStatus(_ context.Context, upd model.DocumentStatusUpdate) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[upd.ID]
	if !ok || (len(upd.From) > 0 && !slices.Contains(upd.From, doc.Status)) {
		return false, nil
	}
	doc.Status = upd.To
	doc.ErrorMessage = upd.ErrorMessage
	doc.UpdatedAt = r.Now()
	r.history[upd.ID] = append(r.history[upd.ID], upd.To)
	return true, nil
}

// History returns the statuses a document passed through.
func (r *DocumentRepo) History(id string) []model.DocumentStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.history[id])
}

// All returns every stored document.
func (r *DocumentRepo) All() []*model.Document {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.Document, 0, len(r.docs))
	for _, doc := range r.docs {
		c := *doc
		out = append(out, &c)
	}
	return out
}
