package aiclient

import (
	"fmt"
	"strings"
)

// CallError describes the last failed attempt of a downstream call.
type CallError struct {
	Operation string
	Path      string
	Attempt   int
	// Status is the HTTP status, or 0 when the attempt failed before a response arrived.
	Status int
	Body   string
	Cause  error
}

func (e *CallError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "ai call %s attempt %d", e.Path, e.Attempt)
	if e.Status > 0 {
		fmt.Fprintf(&b, ": status %d", e.Status)
		if e.Body != "" {
			b.WriteString(": ")
			b.WriteString(e.Body)
		}
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *CallError) Unwrap() error { return e.Cause }

// Retryable reports whether the failure class allows another attempt.
func (e *CallError) Retryable() bool {
	if e.Status == 0 {
		return true
	}
	return isRetryableStatus(e.Status)
}
