package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

const healthCheckTimeout = 2 * time.Second

// HealthCheck checks one dependency.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// HealthHandler reports readiness. Any failing check answers 503.
type HealthHandler struct {
	Checks []HealthCheck
	Logger *slog.Logger
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := healthResponse{Status: "ok"}
	code := http.StatusOK
	for _, c := range h.Checks {
		if resp.Checks == nil {
			resp.Checks = make(map[string]string, len(h.Checks))
		}
		if err := c.Check(ctx); err != nil {
			resp.Checks[c.Name] = "down"
			resp.Status = "degraded"
			code = http.StatusServiceUnavailable
			if h.Logger != nil {
				h.Logger.WarnContext(ctx, "health check failed", "check", c.Name, "error", err)
			}
			continue
		}
		resp.Checks[c.Name] = "ok"
	}

	if r.Method == http.MethodHead {
		w.WriteHeader(code)
		return
	}
	WriteJSON(w, code, resp)
}
