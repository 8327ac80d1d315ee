package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edunexus/governance/internal/observability/notify"
)

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Config{})
	require.Error(t, err)
}

func TestMessageIncludesFields(t *testing.T) {
	c, err := NewClient(Config{WebhookURL: "https://hooks.slack.com/services/test", Channel: "#alerts"})
	require.NoError(t, err)

	msg := c.message(notify.JobFailurePayload{
		JobID:      "job-1",
		JobType:    "DOCUMENT_INGEST",
		BusinessID: "doc-9",
		Status:     "DEAD_LETTER",
		Attempt:    1,
		Error:      "kb ingest <exhausted>",
		ErrorClass: "dependency_unavailable",
		Metadata:   map[string]string{"filename": "notes.pdf"},
		OccurredAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	})

	assert.Equal(t, "governance", msg.Username)
	assert.Equal(t, "#alerts", msg.Channel)
	for _, want := range []string{
		"dead_letter", "`job-1`", "DOCUMENT_INGEST", "doc-9", "dependency_unavailable",
		"kb ingest &lt;exhausted&gt;", "filename: notes.pdf", "2026-01-02T03:04:05Z",
	} {
		assert.Contains(t, msg.Text, want)
	}
}

func TestMessageJobLink(t *testing.T) {
	c, err := NewClient(Config{WebhookURL: "https://hooks.example/x", JobURLPrefix: "https://gov.example/api/admin/jobs"})
	require.NoError(t, err)

	msg := c.message(notify.JobFailurePayload{JobID: "abc"})
	assert.Contains(t, msg.Text, "<https://gov.example/api/admin/jobs/abc|abc>")
}

func TestSendJobFailureRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, err := NewClient(Config{WebhookURL: srv.URL, RetryLimit: 1})
	require.NoError(t, err)

	require.NoError(t, c.SendJobFailure(context.Background(), notify.JobFailurePayload{JobID: "1"}))
	assert.EqualValues(t, 2, calls.Load())
}

func TestSendJobFailureReturnsLastError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	c, err := NewClient(Config{WebhookURL: srv.URL})
	require.NoError(t, err)

	err = c.SendJobFailure(context.Background(), notify.JobFailurePayload{JobID: "1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}
