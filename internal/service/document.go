package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/edunexus/governance/internal/adapters/aiclient"
	"github.com/edunexus/governance/internal/core"
	"github.com/edunexus/governance/internal/domain/model"
	apperrors "github.com/edunexus/governance/internal/errors"
	"github.com/edunexus/governance/internal/observability/trace"
)

// Idempotency scopes owned by the document service.
const (
	ScopeKnowledgeUpload = "teacher.knowledge.upload"
	ScopeKnowledgeDelete = "teacher.knowledge.delete"
)

const documentSnapshotTTL = 24 * time.Hour

// AICaller issues downstream AI calls.
type AICaller interface {
	Call(ctx context.Context, op aiclient.Operation, req aiclient.Request) (*aiclient.Response, error)
}

// JobSubmitter hands a created JobRun to background execution.
type JobSubmitter interface {
	Submit(ctx context.Context, run *model.JobRun) error
}

// DocumentServiceOptions groups dependencies for DocumentService.
type DocumentServiceOptions struct {
	Documents   core.DocumentRepository // Required
	Jobs        *JobService             // Required
	Idempotency *IdempotencyService     // Required
	AI          AICaller                // Required
	Submitter   JobSubmitter            // Required
	Logger      *slog.Logger

	// TmpDir holds uploaded bytes until ingestion finishes. Empty uses os.TempDir().
	TmpDir       string
	MaxBytes     int64
	AllowedTypes []string
	// ChunksExpression is a JMESPath expression selecting the chunk count from the ingest response.
	ChunksExpression string
}

// DocumentService accepts knowledge documents and ingests them in the background.
type DocumentService struct {
	docs      core.DocumentRepository
	jobs      *JobService
	idem      *IdempotencyService
	ai        AICaller
	submitter JobSubmitter
	logger    *slog.Logger

	tmpDir       string
	maxBytes     int64
	allowedTypes []string
	chunksExpr   string
}

// NewDocumentService constructs a new DocumentService.
func NewDocumentService(opts DocumentServiceOptions) (*DocumentService, error) {
	switch {
	case opts.Documents == nil:
		return nil, errors.New("DocumentRepository is required")
	case opts.Jobs == nil:
		return nil, errors.New("JobService is required")
	case opts.Idempotency == nil:
		return nil, errors.New("IdempotencyService is required")
	case opts.AI == nil:
		return nil, errors.New("AI client is required")
	case opts.Submitter == nil:
		return nil, errors.New("job submitter is required")
	}

	chunksExpr := strings.TrimSpace(opts.ChunksExpression)
	if chunksExpr == "" {
		chunksExpr = "chunks"
	}
	if err := aiclient.ValidateExpression(chunksExpr); err != nil {
		return nil, err
	}
	allowed := opts.AllowedTypes
	if len(allowed) == 0 {
		allowed = []string{"pdf", "doc", "docx"}
	}
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 50 << 20
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &DocumentService{
		docs:         opts.Documents,
		jobs:         opts.Jobs,
		idem:         opts.Idempotency,
		ai:           opts.AI,
		submitter:    opts.Submitter,
		logger:       logger.With("component", "document_service"),
		tmpDir:       opts.TmpDir,
		maxBytes:     maxBytes,
		allowedTypes: allowed,
		chunksExpr:   chunksExpr,
	}, nil
}

// UploadRequest is one multipart upload.
type UploadRequest struct {
	Principal      model.Principal
	IdempotencyKey string
	Filename       string
	ContentType    string
	Content        io.Reader
}

// UploadResult carries the response snapshot of an upload.
type UploadResult struct {
	Snapshot json.RawMessage
	Replayed bool
}

// documentSnapshot is the replayable body of an accepted upload.
type documentSnapshot struct {
	*model.Document
	JobID string `json:"job_id"`
}

// ingestPayload is the input snapshot of a DOCUMENT_INGEST run.
type ingestPayload struct {
	DocumentID     string `json:"documentId"`
	OwnerID        string `json:"ownerId"`
	Filename       string `json:"filename"`
	FilePath       string `json:"filePath"`
	TraceID        string `json:"traceId"`
	IdempotencyKey string `json:"idempotencyKey,omitempty"`
}

// Upload spills the file to disk, creates the document and its DOCUMENT_INGEST run and
// dispatches ingestion. A replayed key returns the first upload's snapshot without doing any of that.
//
// A dispatch refused by a saturated pool still returns the snapshot; the run and the document
// are already marked FAILED by then.
func (s *DocumentService) Upload(ctx context.Context, req UploadRequest) (UploadResult, error) {
	filename := sanitizeFilename(req.Filename)
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	if !slices.Contains(s.allowedTypes, ext) {
		return UploadResult{}, apperrors.ValidationField("file",
			fmt.Sprintf("only %s files are accepted", strings.Join(s.allowedTypes, "/")))
	}
	fileType := strings.TrimSpace(req.ContentType)
	if fileType == "" {
		fileType = "application/octet-stream"
	}

	path, size, sum, err := s.spill(req.Content, filename)
	if err != nil {
		return UploadResult{}, err
	}
	keepFile := false
	defer func() {
		if !keepFile {
			removeQuietly(path)
		}
	}()

	ctx, traceID := trace.Ensure(ctx)
	var run *model.JobRun
	res, err := s.idem.Guard(ctx, GuardRequest{
		Scope: ScopeKnowledgeUpload,
		Key:   req.IdempotencyKey,
		Payload: map[string]any{
			"ownerId":       req.Principal.UserID,
			"filename":      filename,
			"fileType":      fileType,
			"fileSize":      size,
			"contentSha256": sum,
		},
		TTL: documentSnapshotTTL,
	}, func(ctx context.Context) (json.RawMessage, error) {
		doc, err := s.docs.Create(ctx, &model.CreateDocumentRequest{
			OwnerID:  req.Principal.UserID,
			Filename: filename,
			FileType: fileType,
			FileSize: size,
		})
		if err != nil {
			return nil, fmt.Errorf("create document: %w", err)
		}

		payload, err := json.Marshal(ingestPayload{
			DocumentID:     doc.ID,
			OwnerID:        doc.OwnerID,
			Filename:       filename,
			FilePath:       path,
			TraceID:        traceID,
			IdempotencyKey: strings.TrimSpace(req.IdempotencyKey),
		})
		if err != nil {
			return nil, fmt.Errorf("encode ingest payload: %w", err)
		}
		run, err = s.jobs.Create(ctx, model.JobTypeDocumentIngest, doc.ID, payload)
		if err != nil {
			s.IngestFailed(ctx, &model.JobRun{BusinessID: doc.ID}, err)
			return nil, err
		}
		return json.Marshal(documentSnapshot{Document: doc, JobID: run.ID})
	})
	if err != nil {
		return UploadResult{}, err
	}
	if res.Replayed {
		return UploadResult{Snapshot: res.Snapshot, Replayed: true}, nil
	}

	// From here the run owns the file: the ingest handler or its failure hook removes it.
	keepFile = true
	if err := s.submitter.Submit(ctx, run); err != nil {
		s.logger.WarnContext(ctx, "document ingestion not dispatched",
			"document_id", run.BusinessID,
			"job_id", run.ID,
			"error", err,
		)
	}
	return UploadResult{Snapshot: res.Snapshot}, nil
}

// spill copies content to a temp file, enforcing the size limit, and returns its path, size and
// SHA-256 hex digest.
func (s *DocumentService) spill(content io.Reader, filename string) (string, int64, string, error) {
	if content == nil {
		return "", 0, "", apperrors.ValidationField("file", "file is required")
	}
	f, err := os.CreateTemp(s.tmpDir, "governance-doc-*-"+filename)
	if err != nil {
		return "", 0, "", fmt.Errorf("create temp file: %w", err)
	}
	path := f.Name()

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(f, h), io.LimitReader(content, s.maxBytes+1))
	closeErr := f.Close()
	switch {
	case err != nil:
		removeQuietly(path)
		return "", 0, "", fmt.Errorf("write temp file: %w", err)
	case closeErr != nil:
		removeQuietly(path)
		return "", 0, "", fmt.Errorf("close temp file: %w", closeErr)
	case n == 0:
		removeQuietly(path)
		return "", 0, "", apperrors.ValidationField("file", "file must not be empty")
	case n > s.maxBytes:
		removeQuietly(path)
		return "", 0, "", apperrors.ValidationField("file",
			fmt.Sprintf("file exceeds %d bytes", s.maxBytes))
	}
	return path, n, hex.EncodeToString(h.Sum(nil)), nil
}

// Get returns a document owned by the principal. Documents of other owners are reported as not found.
func (s *DocumentService) Get(ctx context.Context, principal model.Principal, id string) (*model.Document, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperrors.NotFound("document not found")
	}
	doc, err := s.docs.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	if doc.OwnerID != principal.UserID {
		return nil, apperrors.NotFound("document not found")
	}
	return doc, nil
}

// Ingest is the DOCUMENT_INGEST job handler. It walks the document through PARSING and
// EMBEDDING, calls the ingestion endpoint and marks the document READY.
func (s *DocumentService) Ingest(ctx context.Context, run *model.JobRun) (json.RawMessage, error) {
	var p ingestPayload
	if err := json.Unmarshal(run.Payload, &p); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "decode ingest payload")
	}
	defer removeQuietly(p.FilePath)
	if p.TraceID != "" {
		ctx = trace.WithID(ctx, p.TraceID)
	}

	if err := s.moveDocument(ctx, p.DocumentID, model.DocumentStatusParsing, model.DocumentStatusUploading); err != nil {
		return nil, err
	}
	if err := s.moveDocument(ctx, p.DocumentID, model.DocumentStatusEmbedding, model.DocumentStatusParsing); err != nil {
		return nil, err
	}

	resp, err := s.ai.Call(ctx, aiclient.OpIngestKB, aiclient.Request{
		Body: map[string]any{
			"traceId":        p.TraceID,
			"documentId":     p.DocumentID,
			"teacherId":      p.OwnerID,
			"filename":       p.Filename,
			"filePath":       p.FilePath,
			"idempotencyKey": p.IdempotencyKey,
		},
		TraceID:        p.TraceID,
		IdempotencyKey: p.IdempotencyKey,
	})
	if err != nil {
		return nil, fmt.Errorf("ingest document %s: %w", p.DocumentID, err)
	}
	chunks, err := s.chunkCount(resp)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "read ingest response")
	}

	if err := s.moveDocument(ctx, p.DocumentID, model.DocumentStatusReady, model.DocumentStatusEmbedding); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "document ingested",
		"document_id", p.DocumentID,
		"job_id", run.ID,
		"chunks", chunks,
		"attempts", resp.Attempts,
	)
	return json.Marshal(map[string]any{"documentId": p.DocumentID, "chunks": chunks})
}

// chunkCount reads the chunk count, treating an absent field as zero.
func (s *DocumentService) chunkCount(resp *aiclient.Response) (int, error) {
	v, err := resp.Search(s.chunksExpr)
	if err != nil {
		return 0, err
	}
	if v == nil {
		return 0, nil
	}
	return resp.SearchInt(s.chunksExpr)
}

// IngestFailed marks the document FAILED and drops the spilled file. It runs for handler
// errors, panics and refused dispatches alike.
func (s *DocumentService) IngestFailed(ctx context.Context, run *model.JobRun, cause error) {
	var p ingestPayload
	if err := json.Unmarshal(run.Payload, &p); err == nil {
		removeQuietly(p.FilePath)
	}

	msg := cause.Error()
	ok, err := s.docs.UpdateStatus(ctx, model.DocumentStatusUpdate{
		ID:           run.BusinessID,
		To:           model.DocumentStatusFailed,
		From:         []model.DocumentStatus{model.DocumentStatusUploading, model.DocumentStatusParsing, model.DocumentStatusEmbedding},
		ErrorMessage: &msg,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "mark document failed", "document_id", run.BusinessID, "error", err)
		return
	}
	if !ok {
		s.logger.WarnContext(ctx, "document already settled, failure not recorded",
			"document_id", run.BusinessID,
			"job_id", run.ID,
		)
	}
}

// ClassifyIngestFailure dead-letters every ingestion failure: the upload is not retried automatically.
func ClassifyIngestFailure(error) model.JobRunStatus {
	return model.JobRunStatusDeadLetter
}

func (s *DocumentService) moveDocument(ctx context.Context, id string, to, from model.DocumentStatus) error {
	ok, err := s.docs.UpdateStatus(ctx, model.DocumentStatusUpdate{
		ID:   id,
		To:   to,
		From: []model.DocumentStatus{from},
	})
	if err != nil {
		return fmt.Errorf("move document to %s: %w", to, err)
	}
	if !ok {
		return apperrors.Conflictf("document %s is no longer %s", id, from)
	}
	return nil
}

// DeleteRequest asks for a document's chunks to be removed from the knowledge base.
type DeleteRequest struct {
	Principal      model.Principal
	IdempotencyKey string
	DocumentID     string
}

// deletePayload is the input snapshot of a DOCUMENT_DELETE run.
type deletePayload struct {
	DocumentID     string `json:"documentId"`
	TraceID        string `json:"traceId"`
	IdempotencyKey string `json:"idempotencyKey,omitempty"`
}

// RequestDelete creates and dispatches a DOCUMENT_DELETE run for an owned document and returns
// the run snapshot.
func (s *DocumentService) RequestDelete(ctx context.Context, req DeleteRequest) (UploadResult, error) {
	doc, err := s.Get(ctx, req.Principal, req.DocumentID)
	if err != nil {
		return UploadResult{}, err
	}

	ctx, traceID := trace.Ensure(ctx)
	var run *model.JobRun
	res, err := s.idem.Guard(ctx, GuardRequest{
		Scope:   ScopeKnowledgeDelete,
		Key:     req.IdempotencyKey,
		Payload: map[string]any{"ownerId": req.Principal.UserID, "documentId": doc.ID},
		TTL:     documentSnapshotTTL,
	}, func(ctx context.Context) (json.RawMessage, error) {
		payload, err := json.Marshal(deletePayload{
			DocumentID:     doc.ID,
			TraceID:        traceID,
			IdempotencyKey: strings.TrimSpace(req.IdempotencyKey),
		})
		if err != nil {
			return nil, fmt.Errorf("encode delete payload: %w", err)
		}
		run, err = s.jobs.Create(ctx, model.JobTypeDocumentDelete, doc.ID, payload)
		if err != nil {
			return nil, err
		}
		return json.Marshal(run)
	})
	if err != nil {
		return UploadResult{}, err
	}
	if res.Replayed {
		return UploadResult{Snapshot: res.Snapshot, Replayed: true}, nil
	}
	if err := s.submitter.Submit(ctx, run); err != nil {
		s.logger.WarnContext(ctx, "knowledge delete not dispatched", "document_id", doc.ID, "job_id", run.ID, "error", err)
	}
	return UploadResult{Snapshot: res.Snapshot}, nil
}

// DeleteChunks is the DOCUMENT_DELETE job handler.
func (s *DocumentService) DeleteChunks(ctx context.Context, run *model.JobRun) (json.RawMessage, error) {
	var p deletePayload
	if err := json.Unmarshal(run.Payload, &p); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "decode delete payload")
	}
	resp, err := s.ai.Call(ctx, aiclient.OpDeleteKB, aiclient.Request{
		Body:           map[string]any{"traceId": p.TraceID, "documentId": p.DocumentID},
		TraceID:        p.TraceID,
		IdempotencyKey: p.IdempotencyKey,
	})
	if err != nil {
		return nil, fmt.Errorf("delete knowledge chunks for %s: %w", p.DocumentID, err)
	}
	if !json.Valid(resp.Body) || len(resp.Body) == 0 {
		return json.Marshal(map[string]any{"documentId": p.DocumentID})
	}
	return resp.Body, nil
}

// sanitizeFilename keeps the base name and replaces characters that are awkward in paths.
func sanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "upload.bin"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r == '*' || r == '?' || r == ':' || r == '"' || r == '<' || r == '>' || r == '|':
			return '_'
		case r < 0x20:
			return -1
		}
		return r
	}, name)
}

func removeQuietly(path string) {
	if path == "" {
		return
	}
	_ = os.Remove(path)
}
