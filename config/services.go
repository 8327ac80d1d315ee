package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/edunexus/governance/internal/domain/model"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the HTTP server together with its in-process dispatcher.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeReaper runs the expired idempotency record sweep.
	ServiceModeReaper ServiceMode = "reaper"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{ServiceModeHTTP, ServiceModeReaper}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)
	for _, part := range strings.Split(servicesStr, ",") {
		name := strings.TrimSpace(part)
		if name == "" {
			continue
		}
		switch mode := ServiceMode(strings.ToLower(name)); mode {
		case ServiceModeHTTP, ServiceModeReaper:
			services[mode] = true
		default:
			return nil, fmt.Errorf("invalid service name: %q (valid options: http, reaper)", name)
		}
	}
	if len(services) == 0 {
		return nil, errors.New("at least one service must be specified")
	}
	return services, nil
}

// DispatchConfig sizes the background worker pool.
type DispatchConfig struct {
	Workers         int           `env:"WORKERS"          envDefault:"4"`
	QueueSize       int           `env:"QUEUE_SIZE"       envDefault:"64"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"5m"`
}

// Sanitize applies guardrails to dispatcher configuration values.
func (d *DispatchConfig) Sanitize() {
	d.Workers = clampInt(d.Workers, 1, 256)
	if d.QueueSize < 1 {
		d.QueueSize = 64
	}
	if d.ShutdownTimeout <= 0 {
		d.ShutdownTimeout = 5 * time.Minute
	}
}

// Idempotency backends.
const (
	IdempotencyBackendPostgres = "postgres"
	IdempotencyBackendRedis    = "redis"
)

// MinIdempotencyTTL is the lowest TTL the configuration accepts.
const MinIdempotencyTTL = model.MinIdempotencyTTL

// IdempotencyConfig selects the idempotency store and default record lifetime.
type IdempotencyConfig struct {
	Backend    string        `env:"BACKEND"     envDefault:"postgres"`
	DefaultTTL time.Duration `env:"DEFAULT_TTL" envDefault:"24h"`
}

// Sanitize never lets the TTL drop below the floor.
func (i *IdempotencyConfig) Sanitize() {
	i.Backend = strings.ToLower(strings.TrimSpace(i.Backend))
	if i.Backend != IdempotencyBackendRedis {
		i.Backend = IdempotencyBackendPostgres
	}
	if i.DefaultTTL < MinIdempotencyTTL {
		i.DefaultTTL = MinIdempotencyTTL
	}
}

// ReaperConfig controls the expired idempotency record sweep.
type ReaperConfig struct {
	Enabled bool `env:"ENABLED" envDefault:"true"`
	// Interval is the reaper tick interval.
	Interval time.Duration `env:"INTERVAL" envDefault:"10m"`
	// BatchSize is the maximum number of rows deleted per statement.
	BatchSize int `env:"BATCH_SIZE" envDefault:"1000"`
}

// Sanitize applies guardrails to reaper configuration values.
func (r *ReaperConfig) Sanitize() {
	if r.Interval < time.Minute {
		r.Interval = time.Minute
	}
	r.BatchSize = clampInt(r.BatchSize, 1, 10000)
}
