package aiclient

import (
	"fmt"
	"time"
)

// Class groups operations that share a retry policy shape.
type Class string

const (
	// ClassInteractive covers calls a user is waiting on: few attempts, jittered backoff.
	ClassInteractive Class = "interactive"
	// ClassIngestion covers heavy document processing: more attempts, deterministic backoff.
	ClassIngestion Class = "ingestion"
)

// Policy is the retry budget of one operation.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	// Jitter adds a random [JitterMin, JitterMax] delay to retries caused by a retryable status.
	Jitter bool
}

// Operation names one downstream endpoint and its retry policy.
type Operation struct {
	Name   string
	Path   string
	Class  Class
	Policy Policy
}

// Downstream operations.
var (
	OpChat = Operation{
		Name: "rag.chat", Path: "/internal/v1/rag/chat", Class: ClassInteractive,
		Policy: Policy{MaxAttempts: 2, BaseDelay: 500 * time.Millisecond, Jitter: true},
	}
	OpAnalyzeExercise = Operation{
		Name: "exercise.analyze", Path: "/internal/v1/exercise/analyze", Class: ClassInteractive,
		Policy: Policy{MaxAttempts: 2, BaseDelay: 800 * time.Millisecond, Jitter: true},
	}
	OpGenerateQuestions = Operation{
		Name: "aiq.generate", Path: "/internal/v1/aiq/generate", Class: ClassInteractive,
		Policy: Policy{MaxAttempts: 2, BaseDelay: 1000 * time.Millisecond, Jitter: true},
	}
	OpGeneratePlan = Operation{
		Name: "lesson_plan.generate", Path: "/internal/v1/lesson-plans/generate", Class: ClassInteractive,
		Policy: Policy{MaxAttempts: 2, BaseDelay: 1200 * time.Millisecond, Jitter: true},
	}
	OpIngestKB = Operation{
		Name: "kb.ingest", Path: "/internal/v1/kb/ingest", Class: ClassIngestion,
		Policy: Policy{MaxAttempts: 4, BaseDelay: 1200 * time.Millisecond},
	}
	OpDeleteKB = Operation{
		Name: "kb.delete", Path: "/internal/v1/kb/delete", Class: ClassInteractive,
		Policy: Policy{MaxAttempts: 2, BaseDelay: 500 * time.Millisecond, Jitter: true},
	}
)

// Operations returns the full downstream catalogue.
func Operations() []Operation {
	return []Operation{OpChat, OpAnalyzeExercise, OpGenerateQuestions, OpGeneratePlan, OpIngestKB, OpDeleteKB}
}

// Validate reports whether the operation can be called.
func (o Operation) Validate() error {
	if o.Path == "" || o.Path[0] != '/' {
		return fmt.Errorf("operation %q: path must start with /", o.Name)
	}
	if o.Policy.MaxAttempts < 1 {
		return fmt.Errorf("operation %q: max attempts must be at least 1", o.Name)
	}
	if o.Policy.BaseDelay < 0 {
		return fmt.Errorf("operation %q: base delay must not be negative", o.Name)
	}
	return nil
}

// Backoff returns the wait before attempt+1 after attempt failed: base * 2^(attempt-1).
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return p.BaseDelay << (attempt - 1)
}

// isRetryableStatus lists downstream statuses worth another attempt.
func isRetryableStatus(status int) bool {
	switch status {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
