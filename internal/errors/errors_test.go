package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_ErrorAndUnwrap(t *testing.T) {
	cause := errors.New("underlying error")

	plain := NotFound("job run not found")
	assert.Equal(t, "job run not found", plain.Error())
	assert.Nil(t, plain.Unwrap())

	wrapped := Wrap(cause, ErrCodeInternal, "failed to process")
	assert.Equal(t, "failed to process: underlying error", wrapped.Error())
	assert.ErrorIs(t, wrapped, cause)
}

func TestWrap_NilError(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrCodeInternal, "ignored"))
}

func TestIsHelpers_ThroughWrapping(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"not found", NotFoundf("job %s", "x"), IsNotFound},
		{"conflict", Conflict("key reused"), IsConflict},
		{"validation", ValidationField("file", "required"), IsValidation},
		{"dependency", DependencyUnavailable(errors.New("503"), "ai service unavailable"), IsDependencyUnavailable},
		{"internal", Internalf("boom %d", 1), IsInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outer := fmt.Errorf("outer: %w", tt.err)
			assert.True(t, tt.check(outer))
		})
	}
}

func TestGetCodeAndField(t *testing.T) {
	err := fmt.Errorf("ctx: %w", ValidationField("file", "file is required"))
	assert.Equal(t, ErrCodeValidation, GetCode(err))
	assert.Equal(t, "file", GetField(err))

	assert.Empty(t, GetCode(errors.New("plain")))
	assert.Empty(t, GetField(errors.New("plain")))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{NotFound("x"), http.StatusNotFound},
		{Conflict("x"), http.StatusConflict},
		{Validation("x"), http.StatusBadRequest},
		{DependencyUnavailable(nil, "x"), http.StatusServiceUnavailable},
		{Internal("x"), http.StatusInternalServerError},
		{errors.New("unclassified"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			require.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestMapContextError(t *testing.T) {
	cause := Internal("last attempt failed")

	timeout := MapContextError(context.DeadlineExceeded, cause)
	assert.True(t, IsTimeout(timeout))
	assert.ErrorIs(t, timeout, context.DeadlineExceeded)

	canceled := MapContextError(fmt.Errorf("sleep: %w", context.Canceled), nil)
	assert.True(t, IsCanceled(canceled))
	assert.Equal(t, 499, HTTPStatus(canceled))

	assert.Equal(t, cause, MapContextError(nil, cause))
}
