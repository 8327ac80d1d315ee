package metrics

import (
	"strconv"
	"time"

	"github.com/edunexus/governance/internal/observability/statsd"
)

// Idempotency lookup outcomes.
const (
	IdempotencyReplay   = "replay"
	IdempotencyMiss     = "miss"
	IdempotencyConflict = "conflict"
)

// CallAttempt describes one attempt against the AI dependency.
type CallAttempt struct {
	Operation string
	Attempt   int
	// Status is the HTTP status, or 0 for transport errors.
	Status  int
	Latency time.Duration
	Retried bool
}

// EmitCallAttempt emits aiclient.attempt and aiclient.latency.
func EmitCallAttempt(sink statsd.Sink, in CallAttempt) {
	if sink == nil {
		return
	}
	status := "transport_error"
	if in.Status > 0 {
		status = strconv.Itoa(in.Status)
	}
	tags := map[string]string{
		"operation": in.Operation,
		"attempt":   strconv.Itoa(in.Attempt),
		"status":    status,
		"retried":   strconv.FormatBool(in.Retried),
	}
	sink.Count("aiclient.attempt", 1, tags)
	sink.Timing("aiclient.latency", in.Latency, map[string]string{"operation": in.Operation})
}

// EmitIdempotency counts a lookup outcome for scope.
func EmitIdempotency(sink statsd.Sink, scope, outcome string) {
	if sink == nil {
		return
	}
	sink.Count("idempotency."+outcome, 1, map[string]string{"scope": scope})
}

// EmitQueueDepth records the number of queued background tasks.
func EmitQueueDepth(sink statsd.Sink, depth int) {
	if sink == nil {
		return
	}
	sink.Gauge("dispatcher.queue_depth", float64(depth), nil)
}

// EmitDispatchRejected counts tasks refused because the queue was full or closed.
func EmitDispatchRejected(sink statsd.Sink, reason string) {
	if sink == nil {
		return
	}
	sink.Count("dispatcher.rejected", 1, map[string]string{"reason": reason})
}

// EmitIdempotencyPurged counts expired idempotency records removed by the reaper.
func EmitIdempotencyPurged(sink statsd.Sink, n int64) {
	if sink == nil || n <= 0 {
		return
	}
	sink.Count("idempotency.purged", n, nil)
}
