// Package aiclient calls the internal AI/document-processing service with bounded retries,
// exponential backoff and trace/idempotency header propagation.
package aiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/edunexus/governance/internal/errors"
	"github.com/edunexus/governance/internal/observability/metrics"
	"github.com/edunexus/governance/internal/observability/statsd"
	"github.com/edunexus/governance/internal/observability/trace"
)

// Header names exchanged with the downstream service.
const (
	HeaderServiceToken   = "X-Service-Token"
	HeaderTraceID        = "X-Trace-Id"
	HeaderIdempotencyKey = "Idempotency-Key"
)

const (
	defaultJitterMin = 50 * time.Millisecond
	defaultJitterMax = 300 * time.Millisecond
	maxResponseBytes = 8 << 20
	maxErrorBody     = 512
)

// Options configures a Client.
type Options struct {
	BaseURL      string // Required: downstream base URL
	ServiceToken string // Required: static service credential
	HTTPClient   *http.Client
	// AttemptTimeouts bounds each attempt per class. Zero means no per-attempt timeout
	// beyond the HTTP client's own.
	AttemptTimeouts map[Class]time.Duration
	// Overrides replaces MaxAttempts/BaseDelay for a whole class when the value is positive.
	Overrides map[Class]Policy
	JitterMin time.Duration
	JitterMax time.Duration
	Logger    *slog.Logger
	Metrics   statsd.Sink
	// Sleep waits between attempts; tests replace it to observe delays.
	Sleep func(ctx context.Context, d time.Duration) error
	// Jitter draws the extra delay for jittered retries.
	Jitter func(lo, hi time.Duration) time.Duration
}

// Client issues downstream calls. It is safe for concurrent use.
type Client struct {
	baseURL   string
	token     string
	hc        *http.Client
	timeouts  map[Class]time.Duration
	overrides map[Class]Policy
	jitterMin time.Duration
	jitterMax time.Duration
	logger    *slog.Logger
	metrics   statsd.Sink
	sleep     func(ctx context.Context, d time.Duration) error
	jitter    func(lo, hi time.Duration) time.Duration
}

// New builds a Client.
func New(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, errors.New("ai service base url is required")
	}
	if strings.TrimSpace(opts.ServiceToken) == "" {
		return nil, errors.New("ai service token is required")
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	lo, hi := opts.JitterMin, opts.JitterMax
	if lo <= 0 {
		lo = defaultJitterMin
	}
	if hi < lo {
		hi = max(defaultJitterMax, lo)
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	jitter := opts.Jitter
	if jitter == nil {
		jitter = uniformJitter
	}

	return &Client{
		baseURL:   base,
		token:     opts.ServiceToken,
		hc:        hc,
		timeouts:  opts.AttemptTimeouts,
		overrides: opts.Overrides,
		jitterMin: lo,
		jitterMax: hi,
		logger:    logger.With("component", "ai_client"),
		metrics:   opts.Metrics,
		sleep:     sleep,
		jitter:    jitter,
	}, nil
}

// Request is one logical downstream call.
type Request struct {
	Body any
	// TraceID defaults to the context trace id, or a generated one.
	TraceID string
	// IdempotencyKey is forwarded when non-blank.
	IdempotencyKey string
}

// Response is a successful downstream reply.
type Response struct {
	Status   int
	Header   http.Header
	Body     json.RawMessage
	TraceID  string
	Attempts int
}

// Attempt is one try against the downstream service. It is logged and measured, never stored.
type Attempt struct {
	TraceID string
	Number  int
	Latency time.Duration
	Status  int
	Err     error
}

// PolicyFor returns op's effective policy after class overrides.
func (c *Client) PolicyFor(op Operation) Policy {
	p := op.Policy
	if o, ok := c.overrides[op.Class]; ok {
		if o.MaxAttempts > 0 {
			p.MaxAttempts = o.MaxAttempts
		}
		if o.BaseDelay > 0 {
			p.BaseDelay = o.BaseDelay
		}
	}
	return p
}

// Call posts req to op. Retryable failures (429, 500, 502, 503, 504 and transport errors) are
// retried up to the operation's attempt budget; any other status fails immediately.
//
// Errors: a non-retryable status is Internal, an exhausted budget is DependencyUnavailable, and
// a cancelled ctx is Canceled/Timeout. The last *CallError is always reachable with errors.As.
func (c *Client) Call(ctx context.Context, op Operation, req Request) (*Response, error) {
	if err := op.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "invalid ai operation")
	}
	body, err := json.Marshal(req.Body)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "encode ai request")
	}

	traceID := strings.TrimSpace(req.TraceID)
	if traceID == "" {
		_, traceID = trace.Ensure(ctx)
	}
	idemKey := strings.TrimSpace(req.IdempotencyKey)
	policy := c.PolicyFor(op)

	var last *CallError
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		resp, callErr := c.attempt(ctx, op, body, traceID, idemKey, attempt)
		if callErr == nil {
			resp.Attempts = attempt
			return resp, nil
		}
		last = callErr

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, apperrors.MapContextError(ctxErr, last)
		}
		if !callErr.Retryable() {
			return nil, apperrors.Wrapf(callErr, apperrors.ErrCodeInternal, "ai %s rejected request", op.Name)
		}
		if attempt == policy.MaxAttempts {
			break
		}

		delay := policy.Backoff(attempt)
		if policy.Jitter && callErr.Status > 0 {
			delay += c.jitter(c.jitterMin, c.jitterMax)
		}
		if err := c.sleep(ctx, delay); err != nil {
			return nil, apperrors.MapContextError(err, last)
		}
	}

	return nil, apperrors.DependencyUnavailable(last,
		fmt.Sprintf("ai %s unavailable after %d attempts", op.Name, policy.MaxAttempts))
}

func (c *Client) attempt(
	ctx context.Context,
	op Operation,
	body []byte,
	traceID, idemKey string,
	attempt int,
) (*Response, *CallError) {
	if timeout := c.timeouts[op.Class]; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := c.do(ctx, op, body, traceID, idemKey)
	latency := time.Since(start)

	var callErr *CallError
	switch {
	case err != nil:
		callErr = &CallError{Operation: op.Name, Path: op.Path, Attempt: attempt, Cause: err}
	case resp.Status < 200 || resp.Status >= 300:
		callErr = &CallError{
			Operation: op.Name,
			Path:      op.Path,
			Attempt:   attempt,
			Status:    resp.Status,
			Body:      truncate(string(resp.Body), maxErrorBody),
		}
	}

	a := Attempt{TraceID: traceID, Number: attempt, Latency: latency}
	if resp != nil {
		a.Status = resp.Status
	}
	if callErr != nil {
		a.Err = callErr
	}
	c.record(ctx, op, a)

	if callErr != nil {
		return nil, callErr
	}
	if echoed := resp.Header.Get(HeaderTraceID); echoed != "" {
		resp.TraceID = echoed
	} else {
		resp.TraceID = traceID
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, op Operation, body []byte, traceID, idemKey string) (*Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+op.Path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set(HeaderServiceToken, c.token)
	httpReq.Header.Set(HeaderTraceID, traceID)
	if idemKey != "" {
		httpReq.Header.Set(HeaderIdempotencyKey, idemKey)
	}

	httpResp, err := c.hc.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return &Response{Status: httpResp.StatusCode, Header: httpResp.Header, Body: raw}, nil
}

func (c *Client) record(ctx context.Context, op Operation, a Attempt) {
	retried := a.Err != nil
	metrics.EmitCallAttempt(c.metrics, metrics.CallAttempt{
		Operation: op.Name,
		Attempt:   a.Number,
		Status:    a.Status,
		Latency:   a.Latency,
		Retried:   retried,
	})

	attrs := []any{
		"path", op.Path,
		"attempt", a.Number,
		"latency_ms", a.Latency.Milliseconds(),
		"trace_id", a.TraceID,
	}
	switch {
	case a.Err == nil:
		c.logger.InfoContext(ctx, "ai_call", attrs...)
	case a.Status > 0:
		c.logger.WarnContext(ctx, "ai_call_error", append(attrs, "status", a.Status)...)
	default:
		c.logger.WarnContext(ctx, "ai_call_error", append(attrs, "error", a.Err)...)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// uniformJitter draws uniformly from [lo, hi].
func uniformJitter(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rand.Int64N(int64(hi-lo)+1))
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
