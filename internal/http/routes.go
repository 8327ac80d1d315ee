package httpx

import (
	"log/slog"
	"net/http"

	"github.com/edunexus/governance/internal/service"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Jobs       *service.JobService
	Documents  *service.DocumentService
	Generation *service.GenerationService
	// MaxUploadBytes bounds multipart bodies on the upload route.
	MaxUploadBytes int64
	Principal      PrincipalHeaders
	HealthChecks   []HealthCheck
	Logger         *slog.Logger
}

// NewRouter creates the API router wrapped in trace, principal, role, logging and recovery middleware.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()

	if services.Documents != nil {
		registerDocumentRoutes(mux, &DocumentHandlers{Svc: services.Documents, MaxBytes: services.MaxUploadBytes})
	}
	if services.Generation != nil {
		registerGenerationRoutes(mux, &GenerationHandlers{Svc: services.Generation})
	}
	if services.Jobs != nil {
		registerJobRoutes(mux, &JobHandlers{Svc: services.Jobs})
	}
	health := &HealthHandler{Checks: services.HealthChecks, Logger: logger}
	mux.Handle("GET /healthz", health)
	mux.Handle("HEAD /healthz", health)

	var h http.Handler = mux
	h = RequireRoles()(h)
	h = Principal(services.Principal)(h)
	h = Logging(logger)(h)
	h = Recover(logger)(h)
	return Trace()(h)
}

func registerDocumentRoutes(mux *http.ServeMux, h *DocumentHandlers) {
	mux.HandleFunc("POST /api/teacher/knowledge/documents", h.Upload)
	mux.HandleFunc("GET /api/teacher/knowledge/documents/{id}", h.Get)
	mux.HandleFunc("DELETE /api/teacher/knowledge/documents/{id}", h.Delete)
}

func registerGenerationRoutes(mux *http.ServeMux, h *GenerationHandlers) {
	mux.HandleFunc("POST /api/teacher/plans/generate", h.GeneratePlan)
	mux.HandleFunc("POST /api/student/questions/generate", h.GenerateQuestions)
}

func registerJobRoutes(mux *http.ServeMux, h *JobHandlers) {
	mux.HandleFunc("GET /api/admin/jobs/{id}", h.GetJob)
	mux.HandleFunc("GET /api/admin/jobs", h.ListJobs)
}
