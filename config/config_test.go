package config

import (
	"testing"
	"time"

	env "github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseServices(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    map[ServiceMode]bool
		expectError bool
	}{
		{name: "single service - http", input: "http", expected: map[ServiceMode]bool{ServiceModeHTTP: true}},
		{name: "single service - reaper", input: "reaper", expected: map[ServiceMode]bool{ServiceModeReaper: true}},
		{
			name:     "services with spaces and case",
			input:    " HTTP , reaper ",
			expected: map[ServiceMode]bool{ServiceModeHTTP: true, ServiceModeReaper: true},
		},
		{name: "duplicate services", input: "http,http", expected: map[ServiceMode]bool{ServiceModeHTTP: true}},
		{name: "empty string", input: "", expectError: true},
		{name: "only spaces and commas", input: " , , ", expectError: true},
		{name: "invalid service name", input: "http,scheduler", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseServices(tt.input)
			if tt.expectError {
				if err == nil {
					t.Errorf("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(result) != len(tt.expected) {
				t.Fatalf("expected %d services, got %d", len(tt.expected), len(result))
			}
			for service, expected := range tt.expected {
				if result[service] != expected {
					t.Errorf("expected service %s to be %v, got %v", service, expected, result[service])
				}
			}
		})
	}
}

func TestConfig_ServiceEnabledMethods(t *testing.T) {
	tests := []struct {
		name          string
		services      string
		reaperEnabled bool
		wantHTTP      bool
		wantReaper    bool
	}{
		{name: "both", services: "http,reaper", reaperEnabled: true, wantHTTP: true, wantReaper: true},
		{name: "reaper disabled by flag", services: "http,reaper", reaperEnabled: false, wantHTTP: true},
		{name: "reaper only", services: "reaper", reaperEnabled: true, wantReaper: true},
		{name: "invalid list", services: "bogus", reaperEnabled: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &AppConfig{Services: tt.services, Reaper: ReaperConfig{Enabled: tt.reaperEnabled}}
			assert.Equal(t, tt.wantHTTP, cfg.IsHTTPServerEnabled())
			assert.Equal(t, tt.wantReaper, cfg.IsReaperEnabled())
		})
	}
}

func TestValidServiceModes(t *testing.T) {
	modes := ValidServiceModes()
	assert.ElementsMatch(t, []ServiceMode{ServiceModeHTTP, ServiceModeReaper}, modes)
}

func TestAppConfig_Defaults(t *testing.T) {
	var cfg AppConfig
	require.NoError(t, env.ParseWithOptions(&cfg, env.Options{Environment: map[string]string{}}))
	cfg.Sanitize()

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "X-User-Id", cfg.Gateway.UserIDHeader)
	assert.Equal(t, 4, cfg.Dispatch.Workers)
	assert.Equal(t, 64, cfg.Dispatch.QueueSize)
	assert.Equal(t, IdempotencyBackendPostgres, cfg.Idempotency.Backend)
	assert.Equal(t, 24*time.Hour, cfg.Idempotency.DefaultTTL)
	assert.Equal(t, []string{"pdf", "doc", "docx"}, cfg.Upload.Types)
	assert.Equal(t, 50*time.Millisecond, cfg.AI.JitterMin)
	assert.Equal(t, 300*time.Millisecond, cfg.AI.JitterMax)
	assert.False(t, cfg.Redis.Enabled)
	assert.False(t, cfg.Observability.Metrics.IsEnabled())
}

func TestAppConfig_ParseEnv(t *testing.T) {
	environment := map[string]string{
		"LOG_LEVEL":                   " DEBUG ",
		"DB_HOST":                     "db.internal",
		"DB_MAX_OPEN_CONNS":           "40",
		"AI_BASE_URL":                 "http://ai.internal:9000/",
		"AI_INGESTION_MAX_ATTEMPTS":   "6",
		"DISPATCH_WORKERS":            "8",
		"IDEMPOTENCY_BACKEND":         "redis",
		"IDEMPOTENCY_DEFAULT_TTL":     "1m",
		"UPLOAD_ALLOWED_TYPES":        ".PDF, docx",
		"GATEWAY_ROLE_HEADER":         "X-Role",
		"SLACK_WEBHOOK_URL":           "https://hooks.example.com/x",
		"SLACK_ENABLED":               "true",
		"REAPER_INTERVAL":             "5s",
		"REAPER_BATCH_SIZE":           "50000",
		"STATSD_ENABLED":              "true",
		"STATSD_ADDRESS":              "statsd:8125",
		"NOTIFICATIONS_RETRY_LIMIT":   "-1",
		"HTTP_SHUTDOWN_TIMEOUT":       "0s",
		"AI_INTERACTIVE_MAX_ATTEMPTS": "99",
		"AI_JITTER_MIN":               "100ms",
		"AI_JITTER_MAX":               "10ms",
	}

	var cfg AppConfig
	require.NoError(t, env.ParseWithOptions(&cfg, env.Options{Environment: environment}))
	cfg.Sanitize()

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "db.internal", cfg.Postgres.Host)
	assert.Equal(t, 40, cfg.Postgres.MaxOpenConns)
	assert.Equal(t, "http://ai.internal:9000", cfg.AI.BaseURL)
	assert.Equal(t, 6, cfg.AI.IngestionMaxAttempts)
	assert.Equal(t, 10, cfg.AI.InteractiveMaxAttempts)
	assert.Equal(t, 300*time.Millisecond, cfg.AI.JitterMax)
	assert.Equal(t, 8, cfg.Dispatch.Workers)
	assert.Equal(t, IdempotencyBackendRedis, cfg.Idempotency.Backend)
	assert.True(t, cfg.Redis.Enabled, "redis backend turns on the redis connection")
	assert.Equal(t, MinIdempotencyTTL, cfg.Idempotency.DefaultTTL)
	assert.Equal(t, []string{"pdf", "docx"}, cfg.Upload.Types)
	assert.Equal(t, "X-Role", cfg.Gateway.RoleHeader)
	assert.True(t, cfg.Observability.Notifications.Slack.Enabled)
	assert.Equal(t, time.Minute, cfg.Reaper.Interval)
	assert.Equal(t, 10000, cfg.Reaper.BatchSize)
	assert.True(t, cfg.Observability.Metrics.IsEnabled())
	assert.Equal(t, 0, cfg.Observability.Notifications.RetryLimit)
	assert.Equal(t, 30*time.Second, cfg.HTTP.ShutdownTimeout)
}

func TestIdempotencyConfig_Sanitize(t *testing.T) {
	tests := []struct {
		name    string
		in      IdempotencyConfig
		backend string
		ttl     time.Duration
	}{
		{name: "unknown backend falls back", in: IdempotencyConfig{Backend: "mongo", DefaultTTL: time.Hour}, backend: "postgres", ttl: time.Hour},
		{name: "zero ttl floored", in: IdempotencyConfig{Backend: "REDIS"}, backend: "redis", ttl: 300 * time.Second},
		{name: "floor is inclusive", in: IdempotencyConfig{DefaultTTL: 300 * time.Second}, backend: "postgres", ttl: 300 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.in
			cfg.Sanitize()
			assert.Equal(t, tt.backend, cfg.Backend)
			assert.Equal(t, tt.ttl, cfg.DefaultTTL)
		})
	}
}

func TestSlackNotificationConfig_DisabledWithoutWebhook(t *testing.T) {
	cfg := ObservabilityNotificationsConfig{Slack: SlackNotificationConfig{Enabled: true, WebhookURL: "  "}}
	cfg.Sanitize()
	assert.False(t, cfg.Slack.Enabled)
	assert.Equal(t, "governance", cfg.Slack.Username)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
}

func TestAppConfig_SlogLevel(t *testing.T) {
	for level, want := range map[string]string{"debug": "DEBUG", "warn": "WARN", "error": "ERROR", "": "INFO", "loud": "INFO"} {
		cfg := AppConfig{LogLevel: level}
		assert.Equal(t, want, cfg.SlogLevel().String(), level)
	}
}
