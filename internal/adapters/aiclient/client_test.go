package aiclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/edunexus/governance/internal/errors"
	"github.com/edunexus/governance/internal/observability/statsd"
	"github.com/edunexus/governance/internal/observability/trace"
)

type sleepLog struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepLog) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return nil
}

func (s *sleepLog) total() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sum time.Duration
	for _, d := range s.delays {
		sum += d
	}
	return sum
}

// scripted replies with statuses[i] on call i and the last status afterwards.
func scripted(t *testing.T, statuses []int, body string) (*httptest.Server, *atomic.Int32, chan http.Header) {
	t.Helper()
	var calls atomic.Int32
	headers := make(chan http.Header, 16)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(calls.Add(1)) - 1
		headers <- r.Header.Clone()
		status := statuses[min(n, len(statuses)-1)]
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls, headers
}

func newTestClient(t *testing.T, baseURL string, sl *sleepLog, jitter time.Duration) (*Client, *statsd.Recorder) {
	t.Helper()
	rec := &statsd.Recorder{}
	c, err := New(Options{
		BaseURL:      baseURL,
		ServiceToken: "svc-token",
		Metrics:      rec,
		Sleep:        sl.sleep,
		Jitter:       func(lo, hi time.Duration) time.Duration { return jitter },
	})
	require.NoError(t, err)
	return c, rec
}

func TestNewValidates(t *testing.T) {
	_, err := New(Options{ServiceToken: "x"})
	require.Error(t, err)
	_, err = New(Options{BaseURL: "http://ai"})
	require.Error(t, err)
}

func TestCallSucceedsOnLastAttempt(t *testing.T) {
	srv, calls, _ := scripted(t, []int{503, 503, 503, 200}, `{"chunks": 7}`)
	sl := &sleepLog{}
	c, rec := newTestClient(t, srv.URL, sl, 100*time.Millisecond)

	resp, err := c.Call(context.Background(), OpIngestKB, Request{Body: map[string]string{"documentId": "d"}})
	require.NoError(t, err)
	assert.EqualValues(t, 4, calls.Load())
	assert.Equal(t, 4, resp.Attempts)

	chunks, err := resp.SearchInt("chunks")
	require.NoError(t, err)
	assert.Equal(t, 7, chunks)

	// Ingestion backoff is deterministic: 1.2s, 2.4s, 4.8s.
	assert.Equal(t, []time.Duration{1200 * time.Millisecond, 2400 * time.Millisecond, 4800 * time.Millisecond}, sl.delays)
	assert.EqualValues(t, 3, rec.CountOf("aiclient.attempt", map[string]string{"status": "503"}))
	assert.EqualValues(t, 1, rec.CountOf("aiclient.attempt", map[string]string{"status": "200"}))
}

func TestCallExhaustsBudget(t *testing.T) {
	srv, calls, _ := scripted(t, []int{503}, `{"error":"busy"}`)
	sl := &sleepLog{}
	c, _ := newTestClient(t, srv.URL, sl, 0)

	_, err := c.Call(context.Background(), OpIngestKB, Request{Body: map[string]string{}})
	require.Error(t, err)
	assert.EqualValues(t, 4, calls.Load())
	assert.True(t, apperrors.IsDependencyUnavailable(err))
	assert.Equal(t, http.StatusServiceUnavailable, apperrors.HTTPStatus(err))
	assert.Equal(t, 1200*time.Millisecond+2400*time.Millisecond+4800*time.Millisecond, sl.total())

	var callErr *CallError
	require.ErrorAs(t, err, &callErr)
	assert.Equal(t, 503, callErr.Status)
	assert.Equal(t, 4, callErr.Attempt)
	assert.Contains(t, callErr.Body, "busy")
}

func TestCallInteractiveAddsJitterOnStatusRetries(t *testing.T) {
	srv, calls, _ := scripted(t, []int{429, 200}, `{"answer":"hi"}`)
	sl := &sleepLog{}
	c, _ := newTestClient(t, srv.URL, sl, 120*time.Millisecond)

	_, err := c.Call(context.Background(), OpChat, Request{Body: map[string]string{"q": "x"}})
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls.Load())
	assert.Equal(t, []time.Duration{500*time.Millisecond + 120*time.Millisecond}, sl.delays)
}

func TestCallNonRetryableIsTerminal(t *testing.T) {
	srv, calls, _ := scripted(t, []int{400}, `{"error":"bad"}`)
	sl := &sleepLog{}
	c, _ := newTestClient(t, srv.URL, sl, 0)

	_, err := c.Call(context.Background(), OpIngestKB, Request{Body: map[string]string{}})
	require.Error(t, err)
	assert.EqualValues(t, 1, calls.Load())
	assert.Empty(t, sl.delays)
	assert.True(t, apperrors.IsInternal(err))

	var callErr *CallError
	require.ErrorAs(t, err, &callErr)
	assert.Equal(t, 400, callErr.Status)
	assert.False(t, callErr.Retryable())
}

func TestCallRetriesTransportErrorsWithoutJitter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	sl := &sleepLog{}
	c, rec := newTestClient(t, url, sl, 250*time.Millisecond)

	_, err := c.Call(context.Background(), OpGeneratePlan, Request{Body: map[string]string{}})
	require.Error(t, err)
	assert.True(t, apperrors.IsDependencyUnavailable(err))
	assert.Equal(t, []time.Duration{1200 * time.Millisecond}, sl.delays)
	assert.EqualValues(t, 2, rec.CountOf("aiclient.attempt", map[string]string{"status": "transport_error"}))

	var callErr *CallError
	require.ErrorAs(t, err, &callErr)
	assert.Zero(t, callErr.Status)
}

func TestCallPropagatesHeaders(t *testing.T) {
	srv, _, headers := scripted(t, []int{200}, `{}`)
	c, _ := newTestClient(t, srv.URL, &sleepLog{}, 0)

	ctx := trace.WithID(context.Background(), "trace-ctx")
	resp, err := c.Call(ctx, OpGenerateQuestions, Request{Body: map[string]int{"n": 5}, IdempotencyKey: " idem-1 "})
	require.NoError(t, err)

	h := <-headers
	assert.Equal(t, "svc-token", h.Get(HeaderServiceToken))
	assert.Equal(t, "trace-ctx", h.Get(HeaderTraceID))
	assert.Equal(t, "idem-1", h.Get(HeaderIdempotencyKey))
	assert.Equal(t, "application/json", h.Get("Content-Type"))
	assert.Equal(t, "trace-ctx", resp.TraceID)

	_, err = c.Call(context.Background(), OpGenerateQuestions, Request{Body: map[string]int{}, TraceID: "explicit"})
	require.NoError(t, err)
	h = <-headers
	assert.Equal(t, "explicit", h.Get(HeaderTraceID))
	assert.Empty(t, h.Values(HeaderIdempotencyKey))
}

func TestCallSameTraceIDOnEveryAttempt(t *testing.T) {
	srv, _, headers := scripted(t, []int{502, 200}, `{}`)
	c, _ := newTestClient(t, srv.URL, &sleepLog{}, 0)

	_, err := c.Call(context.Background(), OpDeleteKB, Request{Body: map[string]string{}})
	require.NoError(t, err)

	first, second := <-headers, <-headers
	assert.NotEmpty(t, first.Get(HeaderTraceID))
	assert.Equal(t, first.Get(HeaderTraceID), second.Get(HeaderTraceID))
}

func TestCallStopsWhenContextCanceled(t *testing.T) {
	srv, calls, _ := scripted(t, []int{503}, `{}`)
	ctx, cancel := context.WithCancel(context.Background())
	c, err := New(Options{
		BaseURL:      srv.URL,
		ServiceToken: "t",
		Sleep: func(ctx context.Context, _ time.Duration) error {
			cancel()
			return ctx.Err()
		},
	})
	require.NoError(t, err)

	_, err = c.Call(ctx, OpIngestKB, Request{Body: map[string]string{}})
	require.Error(t, err)
	assert.True(t, apperrors.IsCanceled(err))
	assert.EqualValues(t, 1, calls.Load())

	var callErr *CallError
	assert.ErrorAs(t, err, &callErr)
}

func TestPolicyOverrides(t *testing.T) {
	c, err := New(Options{
		BaseURL:      "http://ai",
		ServiceToken: "t",
		Overrides:    map[Class]Policy{ClassIngestion: {MaxAttempts: 6}},
	})
	require.NoError(t, err)

	p := c.PolicyFor(OpIngestKB)
	assert.Equal(t, 6, p.MaxAttempts)
	assert.Equal(t, 1200*time.Millisecond, p.BaseDelay)
	assert.Equal(t, 2, c.PolicyFor(OpChat).MaxAttempts)
}

func TestBackoffAndCatalogue(t *testing.T) {
	p := Policy{BaseDelay: 500 * time.Millisecond}
	assert.Equal(t, 500*time.Millisecond, p.Backoff(1))
	assert.Equal(t, time.Second, p.Backoff(2))
	assert.Equal(t, 4*time.Second, p.Backoff(4))

	for _, op := range Operations() {
		require.NoError(t, op.Validate(), op.Name)
		if op.Class == ClassIngestion {
			assert.False(t, op.Policy.Jitter)
			assert.Equal(t, 4, op.Policy.MaxAttempts)
		} else {
			assert.Equal(t, 2, op.Policy.MaxAttempts)
		}
	}
	assert.Error(t, Operation{Name: "x", Path: "nope", Policy: Policy{MaxAttempts: 1}}.Validate())
}

func TestUniformJitterBounds(t *testing.T) {
	for range 200 {
		d := uniformJitter(50*time.Millisecond, 300*time.Millisecond)
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, 300*time.Millisecond)
	}
}

func TestResponseSearch(t *testing.T) {
	r := &Response{Body: json.RawMessage(`{"data":{"chunks":3.5,"items":[1,2]}}`)}
	v, err := r.Search("length(data.items)")
	require.NoError(t, err)
	assert.InDelta(t, 2.0, v, 0)

	_, err = r.SearchInt("data.chunks")
	require.Error(t, err)

	bad := &Response{Body: json.RawMessage(`nope`)}
	_, err = bad.Search("a")
	require.Error(t, err)

	require.Error(t, ValidateExpression("a[?"))
	require.NoError(t, ValidateExpression("data.chunks"))
}

func TestCallRejectsUnencodableBody(t *testing.T) {
	c, err := New(Options{BaseURL: "http://ai", ServiceToken: "t"})
	require.NoError(t, err)
	_, err = c.Call(context.Background(), OpChat, Request{Body: make(chan int)})
	assert.True(t, apperrors.IsValidation(err))
	assert.False(t, errors.Is(err, context.Canceled))
}
