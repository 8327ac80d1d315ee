// Package httpx provides the HTTP surface of the governance service.
package httpx

import (
	"net/http"
	"strings"

	apperrors "github.com/edunexus/governance/internal/errors"
	"github.com/edunexus/governance/internal/service"
)

// JobHandlers exposes JobRun state to operators.
type JobHandlers struct {
	Svc *service.JobService
}

// GetJob returns one JobRun.
func (h *JobHandlers) GetJob(w http.ResponseWriter, r *http.Request) {
	run, err := h.Svc.GetByID(r.Context(), strings.TrimSpace(r.PathValue("id")))
	if err != nil {
		WriteAppError(w, r, err)
		return
	}
	WriteData(w, r, http.StatusOK, run)
}

// ListJobs returns every JobRun of ?business_id=, newest first.
func (h *JobHandlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	businessID := strings.TrimSpace(r.URL.Query().Get("business_id"))
	if businessID == "" {
		WriteAppError(w, r, apperrors.ValidationField("business_id", "business_id is required"))
		return
	}
	runs, err := h.Svc.ListByBusinessID(r.Context(), businessID)
	if err != nil {
		WriteAppError(w, r, err)
		return
	}
	WriteData(w, r, http.StatusOK, runs)
}
