package model

import "time"

// DocumentStatus tracks a knowledge document through ingestion.
type DocumentStatus string

const (
	DocumentStatusUploading DocumentStatus = "UPLOADING"
	DocumentStatusParsing   DocumentStatus = "PARSING"
	DocumentStatusEmbedding DocumentStatus = "EMBEDDING"
	DocumentStatusReady     DocumentStatus = "READY"
	DocumentStatusFailed    DocumentStatus = "FAILED"
)

// Document is the owning entity of DOCUMENT_INGEST job runs.
type Document struct {
	ID           string         `json:"id"                      db:"id"`
	OwnerID      string         `json:"owner_id"                db:"owner_id"`
	Filename     string         `json:"filename"                db:"filename"`
	FileType     string         `json:"file_type"               db:"file_type"`
	FileSize     int64          `json:"file_size"               db:"file_size"`
	Status       DocumentStatus `json:"status"                  db:"status"`
	ErrorMessage *string        `json:"error_message,omitempty" db:"error_message"`
	CreatedAt    time.Time      `json:"created_at"              db:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"              db:"updated_at"`
}

// CreateDocumentRequest describes a freshly uploaded document.
type CreateDocumentRequest struct {
	OwnerID  string
	Filename string
	FileType string
	FileSize int64
}

// DocumentStatusUpdate moves a document to To when its current status is one of From.
type DocumentStatusUpdate struct {
	ID           string
	To           DocumentStatus
	From         []DocumentStatus
	ErrorMessage *string
}
