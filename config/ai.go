package config

import (
	"strings"
	"time"
)

// AIConfig configures the downstream AI/document-processing service client.
type AIConfig struct {
	BaseURL      string `env:"BASE_URL"      envDefault:"http://localhost:9000"`
	ServiceToken string `env:"SERVICE_TOKEN" envDefault:"dev-service-token"`

	// Per-attempt response timeouts.
	InteractiveTimeout time.Duration `env:"INTERACTIVE_TIMEOUT" envDefault:"60s"`
	IngestionTimeout   time.Duration `env:"INGESTION_TIMEOUT"   envDefault:"120s"`

	// Zero keeps each operation's catalogue value.
	InteractiveMaxAttempts int           `env:"INTERACTIVE_MAX_ATTEMPTS" envDefault:"0"`
	IngestionMaxAttempts   int           `env:"INGESTION_MAX_ATTEMPTS"   envDefault:"0"`
	IngestionBaseDelay     time.Duration `env:"INGESTION_BASE_DELAY"     envDefault:"0"`

	JitterMin time.Duration `env:"JITTER_MIN" envDefault:"50ms"`
	JitterMax time.Duration `env:"JITTER_MAX" envDefault:"300ms"`

	// ChunksExpression extracts the chunk count from an ingest response.
	ChunksExpression string `env:"CHUNKS_EXPRESSION" envDefault:"chunks"`
}

// Sanitize applies guardrails to the AI client configuration.
func (a *AIConfig) Sanitize() {
	a.BaseURL = strings.TrimRight(strings.TrimSpace(a.BaseURL), "/")
	if a.InteractiveTimeout <= 0 {
		a.InteractiveTimeout = 60 * time.Second
	}
	if a.IngestionTimeout <= 0 {
		a.IngestionTimeout = 120 * time.Second
	}
	a.InteractiveMaxAttempts = clampInt(a.InteractiveMaxAttempts, 0, 10)
	a.IngestionMaxAttempts = clampInt(a.IngestionMaxAttempts, 0, 10)
	if a.IngestionBaseDelay < 0 {
		a.IngestionBaseDelay = 0
	}
	if a.JitterMin <= 0 {
		a.JitterMin = 50 * time.Millisecond
	}
	if a.JitterMax < a.JitterMin {
		a.JitterMax = max(300*time.Millisecond, a.JitterMin)
	}
	if strings.TrimSpace(a.ChunksExpression) == "" {
		a.ChunksExpression = "chunks"
	}
}

func clampInt(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
