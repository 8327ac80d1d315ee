package bootstrap

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edunexus/governance/config"
	"github.com/edunexus/governance/internal/data"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestGetEnabledServices(t *testing.T) {
	tests := []struct {
		name     string
		services string
		want     []string
	}{
		{name: "defaults", services: "http,reaper", want: []string{"http", "reaper"}},
		{name: "reaper only", services: "reaper", want: []string{"reaper"}},
		{name: "invalid", services: "http,bogus", want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.AppConfig{Services: tt.services}
			assert.Equal(t, tt.want, GetEnabledServices(cfg))
		})
	}
	assert.Empty(t, GetEnabledServices(nil))
}

func TestValidateServiceConfig(t *testing.T) {
	require.Error(t, ValidateServiceConfig(nil))
	require.Error(t, ValidateServiceConfig(&config.AppConfig{Services: "nope"}))
	require.Error(t, ValidateServiceConfig(&config.AppConfig{Services: "http"}), "http needs an AI base url")

	cfg := &config.AppConfig{Services: "http", AI: config.AIConfig{BaseURL: "http://ai:9000"}}
	require.NoError(t, ValidateServiceConfig(cfg))
	require.NoError(t, ValidateServiceConfig(&config.AppConfig{Services: "reaper"}))
}

func TestBuildBackgroundServices(t *testing.T) {
	tests := []struct {
		name     string
		services string
		reaperOn bool
		want     []config.ServiceMode
	}{
		{name: "both", services: "http,reaper", reaperOn: true, want: []config.ServiceMode{config.ServiceModeHTTP, config.ServiceModeReaper}},
		{name: "reaper disabled by flag", services: "http,reaper", want: []config.ServiceMode{config.ServiceModeHTTP}},
		{name: "reaper only", services: "reaper", reaperOn: true, want: []config.ServiceMode{config.ServiceModeReaper}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &ServiceOrchestrationConfig{Config: &config.AppConfig{
				Services: tt.services,
				Reaper:   config.ReaperConfig{Enabled: tt.reaperOn},
			}}
			var got []config.ServiceMode
			for _, svc := range buildBackgroundServices(cfg, quietLogger()) {
				got = append(got, svc.mode)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func blockingService(name string, stopped chan<- string) backgroundService {
	return backgroundService{
		mode: config.ServiceModeReaper,
		name: name,
		start: func(ctx context.Context) error {
			<-ctx.Done()
			stopped <- name
			return ctx.Err()
		},
	}
}

func TestRunServicesStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan string, 2)

	done := make(chan error, 1)
	go func() {
		done <- runServices(ctx, []backgroundService{
			blockingService("a", stopped),
			blockingService("b", stopped),
		}, quietLogger())
	}()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("services did not stop")
	}
	assert.ElementsMatch(t, []string{"a", "b"}, []string{<-stopped, <-stopped})
}

func TestRunServicesFailureStopsOthers(t *testing.T) {
	stopped := make(chan string, 1)
	boom := errors.New("listen tcp :8080: address already in use")

	err := runServices(context.Background(), []backgroundService{
		blockingService("reaper", stopped),
		{mode: config.ServiceModeHTTP, name: "http", start: func(context.Context) error { return boom }},
	}, quietLogger())

	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "http failed")
	assert.Equal(t, "reaper", <-stopped)
}

func TestRunServicesRequiresOne(t *testing.T) {
	require.Error(t, runServices(context.Background(), nil, quietLogger()))
}

func TestBuildIdempotencyRepo(t *testing.T) {
	redisCfg := &config.AppConfig{Idempotency: config.IdempotencyConfig{Backend: config.IdempotencyBackendRedis}}
	_, err := buildIdempotencyRepo(&ServiceDeps{Config: redisCfg}, quietLogger())
	require.Error(t, err)

	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { _ = client.Close() })
	repo, err := buildIdempotencyRepo(&ServiceDeps{Config: redisCfg, RedisClient: client}, quietLogger())
	require.NoError(t, err)
	assert.IsType(t, &data.RedisIdempotencyRepo{}, repo)

	pgCfg := &config.AppConfig{Idempotency: config.IdempotencyConfig{Backend: config.IdempotencyBackendPostgres}}
	_, err = buildIdempotencyRepo(&ServiceDeps{Config: pgCfg}, quietLogger())
	require.Error(t, err)
}

func TestJobURLPrefix(t *testing.T) {
	assert.Empty(t, jobURLPrefix("  "))
	assert.Equal(t, "https://gov.example.com/api/admin/jobs/", jobURLPrefix("https://gov.example.com/"))
}

func TestNewServicesWithRedisBackend(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { _ = client.Close() })

	cfg := &config.AppConfig{
		Services:    "http",
		AI:          config.AIConfig{BaseURL: "http://ai:9000", ServiceToken: "t"},
		Dispatch:    config.DispatchConfig{Workers: 1, QueueSize: 1},
		Idempotency: config.IdempotencyConfig{Backend: config.IdempotencyBackendRedis},
	}
	cfg.Sanitize()

	svcs, err := NewServices(&ServiceDeps{Config: cfg, RedisClient: client, Logger: quietLogger()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = svcs.Dispatcher.Close(context.Background()) })
	assert.NotNil(t, svcs.Documents)
	assert.NotNil(t, svcs.Generation)
	assert.IsType(t, &data.RedisIdempotencyRepo{}, svcs.IdempotencyRepo)

	server := NewHTTPServer(&HTTPServerConfig{Config: cfg, Services: svcs, Logger: quietLogger()})
	rec := httptest.NewRecorder()
	server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}
