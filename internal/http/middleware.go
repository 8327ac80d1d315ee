package httpx

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/edunexus/governance/internal/domain/model"
	"github.com/edunexus/governance/internal/observability/trace"
)

// HeaderRequestID carries the trace identifier in and out of the service.
const HeaderRequestID = "X-Request-Id"

// Trace returns a middleware that reads X-Request-Id (or generates one), echoes it on the
// response and places it on the request context.
func Trace() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := trace.WithID(r.Context(), r.Header.Get(HeaderRequestID))
			ctx, id := trace.Ensure(ctx)
			w.Header().Set(HeaderRequestID, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Logging returns a middleware that logs HTTP requests and responses.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &respWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.InfoContext(r.Context(), "http",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
				slog.String("trace_id", trace.ID(r.Context())),
			)
		})
	}
}

type respWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *respWriter) WriteHeader(status int) {
	if !w.wroteHeader {
		w.status = status
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *respWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// Recover returns a middleware that recovers from panics and logs them.
func Recover(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.ErrorContext(r.Context(), "panic",
						slog.Any("error", rec),
						slog.String("path", r.URL.Path),
						slog.String("method", r.Method),
						slog.String("trace_id", trace.ID(r.Context())),
						slog.String("stack", string(debug.Stack())))
					WriteError(w, r, ErrorParams{
						Code:    http.StatusInternalServerError,
						ErrCode: "internal",
						Err:     errors.New(http.StatusText(http.StatusInternalServerError)),
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// PrincipalHeaders names the gateway headers that carry the authenticated caller.
type PrincipalHeaders struct {
	UserID string
	Role   string
	Status string
}

func (h PrincipalHeaders) withDefaults() PrincipalHeaders {
	if h.UserID == "" {
		h.UserID = "X-User-Id"
	}
	if h.Role == "" {
		h.Role = "X-User-Role"
	}
	if h.Status == "" {
		h.Status = "X-User-Status"
	}
	return h
}

// Principal returns a middleware that turns the gateway headers into a model.Principal on the
// request context. Requests without a user id pass through without one.
func Principal(headers PrincipalHeaders) func(http.Handler) http.Handler {
	headers = headers.withDefaults()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := strings.TrimSpace(r.Header.Get(headers.UserID))
			if userID == "" {
				next.ServeHTTP(w, r)
				return
			}
			p := model.Principal{
				UserID: userID,
				Role:   model.ParseRole(r.Header.Get(headers.Role)),
				Status: strings.TrimSpace(r.Header.Get(headers.Status)),
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// rolePrefixes gates API path prefixes by role.
var rolePrefixes = []struct {
	prefix string
	role   model.Role
}{
	{prefix: "/api/teacher/", role: model.RoleTeacher},
	{prefix: "/api/student/", role: model.RoleStudent},
	{prefix: "/api/admin/", role: model.RoleAdmin},
}

// RequireRoles returns a middleware enforcing role-prefix gating on /api/ paths.
// Missing principals get 401; disabled accounts or the wrong role get 403.
func RequireRoles() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasPrefix(r.URL.Path, "/api/") {
				next.ServeHTTP(w, r)
				return
			}
			p, ok := PrincipalFrom(r.Context())
			if !ok {
				WriteError(w, r, ErrorParams{
					Code:    http.StatusUnauthorized,
					ErrCode: "authentication_required",
					Err:     errors.New("authentication required"),
				})
				return
			}
			if !p.Active() || !roleAllowed(r.URL.Path, p.Role) {
				WriteError(w, r, ErrorParams{
					Code:    http.StatusForbidden,
					ErrCode: "insufficient_permissions",
					Err:     errors.New("insufficient permissions"),
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func roleAllowed(path string, role model.Role) bool {
	for _, rp := range rolePrefixes {
		if strings.HasPrefix(path, rp.prefix) {
			return role == rp.role
		}
	}
	return true
}
