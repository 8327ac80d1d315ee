package httpx

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	apperrors "github.com/edunexus/governance/internal/errors"
	"github.com/edunexus/governance/internal/observability/trace"
)

// HeaderIdempotencyKey is the optional client header scoping replays.
const HeaderIdempotencyKey = "Idempotency-Key"

// HeaderReplayed marks a response served from a stored snapshot.
const HeaderReplayed = "Idempotent-Replayed"

// DecodeJSON decodes JSON from the request body into the destination and handles errors.
// Returns true if successful, false if there was an error (error response already written).
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		WriteError(w, r, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_json", Err: err})
		return false
	}
	return true
}

// WriteJSON writes a JSON response with the given status code and data.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := buf.WriteTo(w); err != nil {
		// Client went away.
		return
	}
}

type dataEnvelope struct {
	Data    any    `json:"data"`
	TraceID string `json:"trace_id,omitempty"`
}

// WriteData wraps v in the success envelope.
func WriteData(w http.ResponseWriter, r *http.Request, code int, v any) {
	WriteJSON(w, code, dataEnvelope{Data: v, TraceID: trace.ID(r.Context())})
}

// WriteSnapshot writes a stored or fresh idempotency snapshot. The body carries no per-request
// fields, so a replay is byte-identical to the original response; the trace id travels in the
// X-Request-Id header. Replays carry HeaderReplayed.
func WriteSnapshot(w http.ResponseWriter, _ *http.Request, code int, snapshot json.RawMessage, replayed bool) {
	if replayed {
		w.Header().Set(HeaderReplayed, "true")
	}
	WriteJSON(w, code, dataEnvelope{Data: snapshot})
}

// ErrorParams groups parameters for WriteError.
type ErrorParams struct {
	Code    int
	ErrCode string
	Err     error
}

type errorBody struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}

// WriteError writes a JSON error response using ErrorParams.
func WriteError(w http.ResponseWriter, r *http.Request, p ErrorParams) {
	body := errorBody{Code: p.ErrCode, TraceID: trace.ID(r.Context())}
	if p.Err != nil {
		body.Error = p.Err.Error()
		body.Field = apperrors.GetField(p.Err)
	}
	WriteJSON(w, p.Code, body)
}

// WriteAppError maps err to its HTTP status and renders it. Internal errors hide their cause.
func WriteAppError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	code := string(apperrors.GetCode(err))
	if code == "" {
		code = string(apperrors.ErrCodeInternal)
	}

	msg := err
	var appErr *apperrors.AppError
	switch {
	case status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable:
		msg = errors.New(http.StatusText(status))
	case errors.As(err, &appErr):
		msg = &apperrors.AppError{Code: appErr.Code, Message: appErr.Message, Field: appErr.Field}
	}
	WriteError(w, r, ErrorParams{Code: status, ErrCode: code, Err: msg})
}
