package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/edunexus/governance/internal/core"
	"github.com/edunexus/governance/internal/data/pgxutil"
	"github.com/edunexus/governance/internal/domain/model"
	apperrors "github.com/edunexus/governance/internal/errors"
)

// DocumentRepo persists knowledge documents.
type DocumentRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewDocumentRepo creates a new DocumentRepo. A nil TimeProvider uses the system clock.
func NewDocumentRepo(db *sql.DB, tp TimeProvider) *DocumentRepo {
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	return &DocumentRepo{DB: db, timeProvider: tp}
}

const documentColumns = `id, owner_id, filename, file_type, file_size, status, error_message, created_at, updated_at`

// Create inserts a document in UPLOADING status.
func (r *DocumentRepo) Create(ctx context.Context, req *model.CreateDocumentRequest) (*model.Document, error) {
	if req == nil {
		return nil, errors.New("create document request is required")
	}

	query := `
		INSERT INTO documents (owner_id, filename, file_type, file_size, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING ` + documentColumns

	doc, err := pgxutil.QueryOne[model.Document](ctx, r.DB, query,
		req.OwnerID, req.Filename, req.FileType, req.FileSize,
		string(model.DocumentStatusUploading), r.timeProvider.Now())
	if err != nil {
		return nil, fmt.Errorf("insert document: %w", apperrors.MapDBError(err))
	}
	return doc, nil
}

// GetByID returns a document by id.
func (r *DocumentRepo) GetByID(ctx context.Context, id string) (*model.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`

	doc, err := pgxutil.QueryOne[model.Document](ctx, r.DB, query, id)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrDocumentNotFound
		}
		return nil, fmt.Errorf("get document: %w", apperrors.MapDBError(err))
	}
	return doc, nil
}

// UpdateStatus moves a document to upd.To. When upd.From is non-empty the update only applies
// if the current status is listed there.
func (r *DocumentRepo) UpdateStatus(ctx context.Context, upd model.DocumentStatusUpdate) (bool, error) {
	from := make([]string, 0, len(upd.From))
	for _, s := range upd.From {
		from = append(from, string(s))
	}

	const query = `
		UPDATE documents
		SET status = $2, error_message = $3, updated_at = $4
		WHERE id = $1 AND (cardinality($5::text[]) = 0 OR status = ANY($5::text[]))`

	res, err := r.DB.ExecContext(ctx, query, upd.ID, string(upd.To), upd.ErrorMessage, r.timeProvider.Now(), from)
	if err != nil {
		return false, fmt.Errorf("update document status: %w", apperrors.MapDBError(err))
	}
	return rowsChanged(res)
}

var _ core.DocumentRepository = (*DocumentRepo)(nil)
