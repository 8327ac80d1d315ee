package httpx

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edunexus/governance/internal/domain/model"
	apperrors "github.com/edunexus/governance/internal/errors"
	"github.com/edunexus/governance/internal/observability/trace"
)

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestRecoverWritesJSON(t *testing.T) {
	h := Trace()(Recover(discardLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/x", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	env := decode(t, rec)
	assert.Equal(t, "internal", env.Code)
	assert.Equal(t, rec.Header().Get(HeaderRequestID), env.TraceID)
}

func TestPrincipalMiddleware(t *testing.T) {
	var got model.Principal
	var ok bool
	h := Principal(PrincipalHeaders{UserID: "X-Gw-User"})(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got, ok = PrincipalFrom(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Gw-User", " u-9 ")
	req.Header.Set("X-User-Role", "teacher")
	h.ServeHTTP(httptest.NewRecorder(), req)
	require.True(t, ok)
	assert.Equal(t, model.Principal{UserID: "u-9", Role: model.RoleTeacher}, got)

	ok = false
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.False(t, ok)
}

func TestRequireRolesIgnoresNonAPIPaths(t *testing.T) {
	called := false
	h := RequireRoles()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.True(t, called)
}

func TestWriteAppError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
		msg    string
	}{
		{name: "validation", err: apperrors.ValidationField("topic", "topic is required"), status: 400, code: "validation", msg: "topic is required"},
		{name: "not found", err: fmt.Errorf("get: %w", apperrors.NotFound("document not found")), status: 404, code: "not_found", msg: "document not found"},
		{name: "conflict", err: apperrors.Conflict("key reused"), status: 409, code: "conflict", msg: "key reused"},
		{
			name:   "dependency",
			err:    apperrors.DependencyUnavailable(errors.New("dial tcp 10.0.0.1"), "ai service unavailable"),
			status: 503,
			code:   "dependency_unavailable",
			msg:    "ai service unavailable",
		},
		{name: "plain error", err: errors.New("pq: secret detail"), status: 500, code: "internal", msg: "Internal Server Error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req = req.WithContext(trace.WithID(req.Context(), "trace-1"))
			rec := httptest.NewRecorder()

			WriteAppError(rec, req, tt.err)

			assert.Equal(t, tt.status, rec.Code)
			env := decode(t, rec)
			assert.Equal(t, tt.code, env.Code)
			assert.Equal(t, tt.msg, env.Error)
			assert.Equal(t, "trace-1", env.TraceID)
		})
	}
}
