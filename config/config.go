package config

import (
	"log/slog"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using
// github.com/caarlos0/env. See the individual files for variables:
//   - auth.go: gateway principal headers
//   - database.go: Postgres and Redis
//   - http.go: HTTP server and uploads
//   - ai.go: downstream AI service and retry budgets
//   - services.go: service modes, dispatcher, idempotency and reaper
//   - observability.go: metrics and failure notifications
type AppConfig struct {
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Services is a comma-delimited list of enabled services: http, reaper.
	Services string `env:"SERVICES" envDefault:"http,reaper"`

	Gateway     GatewayConfig
	Postgres    DBConfig    `envPrefix:"DB_"`
	Redis       RedisConfig `envPrefix:"REDIS_"`
	HTTP        HTTPConfig
	Upload      UploadConfig      `envPrefix:"UPLOAD_"`
	AI          AIConfig          `envPrefix:"AI_"`
	Dispatch    DispatchConfig    `envPrefix:"DISPATCH_"`
	Idempotency IdempotencyConfig `envPrefix:"IDEMPOTENCY_"`
	Reaper      ReaperConfig      `envPrefix:"REAPER_"`

	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.Gateway.Sanitize()
	c.Postgres.Sanitize()
	c.Redis.Sanitize()
	c.HTTP.Sanitize()
	c.Upload.Sanitize()
	c.AI.Sanitize()
	c.Dispatch.Sanitize()
	c.Idempotency.Sanitize()
	c.Reaper.Sanitize()
	c.Observability.Sanitize()

	// The Redis idempotency backend needs a Redis connection.
	if c.Idempotency.Backend == IdempotencyBackendRedis {
		c.Redis.Enabled = true
	}
}

// SlogLevel maps LogLevel to a slog.Level, defaulting to info.
func (c *AppConfig) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// GetEnabledServices returns the enabled services based on the Services field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

// IsHTTPServerEnabled returns true if the HTTP server (and its dispatcher) is enabled.
func (c *AppConfig) IsHTTPServerEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModeHTTP]
}

// IsReaperEnabled returns true if the idempotency reaper is enabled.
func (c *AppConfig) IsReaperEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModeReaper] && c.Reaper.Enabled
}
