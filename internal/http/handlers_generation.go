package httpx

import (
	"net/http"

	"github.com/edunexus/governance/internal/service"
)

// GenerationHandlers serves the synchronous plan and question generation endpoints.
type GenerationHandlers struct {
	Svc *service.GenerationService
}

// GeneratePlan answers 200 with the generated lesson plan.
func (h *GenerationHandlers) GeneratePlan(w http.ResponseWriter, r *http.Request) {
	var req service.PlanRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	principal, _ := PrincipalFrom(r.Context())
	res, err := h.Svc.GeneratePlan(r.Context(), principal, r.Header.Get(HeaderIdempotencyKey), req)
	if err != nil {
		WriteAppError(w, r, err)
		return
	}
	WriteSnapshot(w, r, http.StatusOK, res.Snapshot, res.Replayed)
}

// GenerateQuestions answers 200 with the generated practice set.
func (h *GenerationHandlers) GenerateQuestions(w http.ResponseWriter, r *http.Request) {
	var req service.QuestionsRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	principal, _ := PrincipalFrom(r.Context())
	res, err := h.Svc.GenerateQuestions(r.Context(), principal, r.Header.Get(HeaderIdempotencyKey), req)
	if err != nil {
		WriteAppError(w, r, err)
		return
	}
	WriteSnapshot(w, r, http.StatusOK, res.Snapshot, res.Replayed)
}
