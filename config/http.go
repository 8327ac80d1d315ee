package config

import (
	"strings"
	"time"
)

// HTTPConfig contains HTTP server configuration.
type HTTPConfig struct {
	// Addr is the address to bind the HTTP server to.
	Addr string `env:"HTTP_ADDR" envDefault:":8080"`

	// BaseURL is the externally visible base URL, used for links in notifications.
	BaseURL string `env:"APP_BASE_URL" envDefault:"http://localhost:8080"`

	ReadHeaderTimeout time.Duration `env:"HTTP_READ_HEADER_TIMEOUT" envDefault:"10s"`
	// WriteTimeout must cover the longest synchronous downstream call including retries.
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT"    envDefault:"150s"`
	IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT"     envDefault:"120s"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// Sanitize applies guardrails to HTTP configuration values.
func (h *HTTPConfig) Sanitize() {
	if strings.TrimSpace(h.Addr) == "" {
		h.Addr = ":8080"
	}
	h.BaseURL = strings.TrimRight(strings.TrimSpace(h.BaseURL), "/")
	if h.ReadHeaderTimeout <= 0 {
		h.ReadHeaderTimeout = 10 * time.Second
	}
	if h.WriteTimeout <= 0 {
		h.WriteTimeout = 150 * time.Second
	}
	if h.IdleTimeout <= 0 {
		h.IdleTimeout = 120 * time.Second
	}
	if h.ShutdownTimeout <= 0 {
		h.ShutdownTimeout = 30 * time.Second
	}
}

// UploadConfig controls knowledge document uploads.
type UploadConfig struct {
	// TmpDir receives uploaded bytes until the ingestion task finishes. Empty means os.TempDir().
	TmpDir   string   `env:"TMP_DIR"`
	MaxBytes int64    `env:"MAX_BYTES"     envDefault:"52428800"` // 50 MiB
	Types    []string `env:"ALLOWED_TYPES" envDefault:"pdf,doc,docx" envSeparator:","`
}

// Sanitize normalises allowed types and the size limit.
func (u *UploadConfig) Sanitize() {
	u.TmpDir = strings.TrimSpace(u.TmpDir)
	if u.MaxBytes <= 0 {
		u.MaxBytes = 50 << 20
	}
	types := u.Types[:0]
	for _, t := range u.Types {
		if t = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(t), ".")); t != "" {
			types = append(types, t)
		}
	}
	if len(types) == 0 {
		types = []string{"pdf", "doc", "docx"}
	}
	u.Types = types
}
