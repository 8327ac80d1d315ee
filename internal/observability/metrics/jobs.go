// Package metrics holds the metric vocabulary emitted by the governance core.
package metrics

import (
	"time"

	obserrors "github.com/edunexus/governance/internal/observability/errors"
	"github.com/edunexus/governance/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// JobMetric captures one job run status transition.
type JobMetric struct {
	JobType  string
	To       string
	Result   string
	Duration time.Duration
	Err      error
}

// EmitJobTransition emits jobs.transition and, for finished runs, jobs.duration.
func EmitJobTransition(sink statsd.Sink, in JobMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"job_type": in.JobType,
		"to":       in.To,
		"result":   in.Result,
	}
	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("jobs.transition", 1, tags)
	if in.Duration > 0 {
		sink.Timing("jobs.duration", in.Duration, CloneTags(tags))
	}
}

// CloneTags creates a shallow copy of a tag map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
