package httpx

import (
	"errors"
	"net/http"
	"strings"

	apperrors "github.com/edunexus/governance/internal/errors"
	"github.com/edunexus/governance/internal/service"
)

// multipartOverhead leaves room for form boundaries and headers above the file size limit.
const multipartOverhead = 1 << 20

// DocumentHandlers serves knowledge document uploads, lookups and deletes.
type DocumentHandlers struct {
	Svc      *service.DocumentService
	MaxBytes int64
}

// Upload accepts a multipart `file` and answers 202 with the document snapshot.
func (h *DocumentHandlers) Upload(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFrom(r.Context())
	if h.MaxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.MaxBytes+multipartOverhead)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteAppError(w, r, apperrors.ValidationField("file", "file exceeds the upload size limit"))
			return
		}
		WriteAppError(w, r, apperrors.ValidationField("file", "multipart field \"file\" is required"))
		return
	}
	defer file.Close()
	if r.MultipartForm != nil {
		defer func() { _ = r.MultipartForm.RemoveAll() }()
	}

	res, err := h.Svc.Upload(r.Context(), service.UploadRequest{
		Principal:      principal,
		IdempotencyKey: r.Header.Get(HeaderIdempotencyKey),
		Filename:       header.Filename,
		ContentType:    header.Header.Get("Content-Type"),
		Content:        file,
	})
	if err != nil {
		WriteAppError(w, r, err)
		return
	}
	WriteSnapshot(w, r, http.StatusAccepted, res.Snapshot, res.Replayed)
}

// Get returns one document owned by the caller.
func (h *DocumentHandlers) Get(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFrom(r.Context())
	doc, err := h.Svc.Get(r.Context(), principal, strings.TrimSpace(r.PathValue("id")))
	if err != nil {
		WriteAppError(w, r, err)
		return
	}
	WriteData(w, r, http.StatusOK, doc)
}

// Delete dispatches removal of a document's knowledge chunks and answers 202 with the job run.
func (h *DocumentHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFrom(r.Context())
	res, err := h.Svc.RequestDelete(r.Context(), service.DeleteRequest{
		Principal:      principal,
		IdempotencyKey: r.Header.Get(HeaderIdempotencyKey),
		DocumentID:     strings.TrimSpace(r.PathValue("id")),
	})
	if err != nil {
		WriteAppError(w, r, err)
		return
	}
	WriteSnapshot(w, r, http.StatusAccepted, res.Snapshot, res.Replayed)
}
