package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/edunexus/governance/config"
	"github.com/edunexus/governance/internal/adapters/aiclient"
	"github.com/edunexus/governance/internal/adapters/dispatcher"
	"github.com/edunexus/governance/internal/adapters/jobrunner"
	"github.com/edunexus/governance/internal/core"
	"github.com/edunexus/governance/internal/data"
	"github.com/edunexus/governance/internal/domain/model"
	"github.com/edunexus/governance/internal/observability/notify/slack"
	"github.com/edunexus/governance/internal/observability/statsd"
	"github.com/edunexus/governance/internal/service"
	"github.com/edunexus/governance/internal/service/failurenotifier"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Jobs            *service.JobService
	Idempotency     *service.IdempotencyService
	IdempotencyRepo core.IdempotencyRepository
	Documents       *service.DocumentService
	Generation      *service.GenerationService
	AI              *aiclient.Client
	Dispatcher      *dispatcher.Dispatcher
	Runner          *jobrunner.Runner
	Observability   ObservabilityContainer
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	MetricsSink     statsd.Sink
	MetricsConfig   config.ObservabilityMetricsConfig
	FailureNotifier *failurenotifier.Service
	NotifierConfig  config.ObservabilityNotificationsConfig
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// buildObservability configures metrics and notification adapters.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig, jobURLPrefix string) ObservabilityContainer {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	var metricsSink statsd.Sink
	if cfg.Metrics.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled: true,
			Address: cfg.Metrics.StatsdAddress,
			Prefix:  cfg.Metrics.Prefix,
			Logger:  obsLogger,
		})
		if err != nil {
			obsLogger.Error("failed to initialise statsd client", "error", err)
		} else {
			metricsSink = client
		}
	}

	return ObservabilityContainer{
		MetricsSink:     metricsSink,
		MetricsConfig:   cfg.Metrics,
		FailureNotifier: buildFailureNotifier(obsLogger, cfg.Notifications, jobURLPrefix),
		NotifierConfig:  cfg.Notifications,
	}
}

func buildFailureNotifier(
	logger *slog.Logger,
	cfg config.ObservabilityNotificationsConfig,
	jobURLPrefix string,
) *failurenotifier.Service {
	baseLogger := logger
	if baseLogger == nil {
		baseLogger = slog.Default()
	}
	opts := failurenotifier.Options{
		Logger:      baseLogger.With("component", "failure_notifier"),
		SinkTimeout: cfg.Timeout,
	}
	if !cfg.Slack.Enabled {
		return failurenotifier.NewService(opts)
	}

	client, err := slack.NewClient(slack.Config{
		WebhookURL:   cfg.Slack.WebhookURL,
		Channel:      cfg.Slack.Channel,
		Username:     cfg.Slack.Username,
		Timeout:      cfg.Timeout,
		RetryLimit:   cfg.RetryLimit,
		JobURLPrefix: jobURLPrefix,
	})
	if err != nil {
		baseLogger.Error("failed to initialise slack notifier", "error", err)
		return failurenotifier.NewService(opts)
	}
	opts.Sinks = []failurenotifier.SinkRegistration{{Name: "slack", Sink: client}}
	if !cfg.Slack.NotifyFailed {
		opts.Statuses = []model.JobRunStatus{model.JobRunStatusDeadLetter}
	}
	return failurenotifier.NewService(opts)
}

// jobURLPrefix links notifications to the admin job endpoint when a public base URL is known.
func jobURLPrefix(baseURL string) string {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return ""
	}
	return baseURL + "/api/admin/jobs/"
}

// buildIdempotencyRepo selects the record store named by IDEMPOTENCY_BACKEND.
//
//nolint:ireturn // the backend is chosen at runtime.
func buildIdempotencyRepo(deps *ServiceDeps, logger *slog.Logger) (core.IdempotencyRepository, error) {
	switch deps.Config.Idempotency.Backend {
	case config.IdempotencyBackendRedis:
		if deps.RedisClient == nil {
			return nil, errors.New("redis idempotency backend requires a redis client")
		}
		return data.NewRedisIdempotencyRepo(deps.RedisClient), nil
	default:
		if deps.DB == nil {
			return nil, errors.New("postgres idempotency backend requires a database")
		}
		return data.NewIdempotencyRepo(deps.DB, data.IdempotencyRepoOptions{Logger: logger}), nil
	}
}

func newAIClient(cfg config.AIConfig, logger *slog.Logger, metrics statsd.Sink) (*aiclient.Client, error) {
	return aiclient.New(aiclient.Options{
		BaseURL:      cfg.BaseURL,
		ServiceToken: cfg.ServiceToken,
		AttemptTimeouts: map[aiclient.Class]time.Duration{
			aiclient.ClassInteractive: cfg.InteractiveTimeout,
			aiclient.ClassIngestion:   cfg.IngestionTimeout,
		},
		Overrides: map[aiclient.Class]aiclient.Policy{
			aiclient.ClassInteractive: {MaxAttempts: cfg.InteractiveMaxAttempts},
			aiclient.ClassIngestion:   {MaxAttempts: cfg.IngestionMaxAttempts, BaseDelay: cfg.IngestionBaseDelay},
		},
		JitterMin: cfg.JitterMin,
		JitterMax: cfg.JitterMax,
		Logger:    logger,
		Metrics:   metrics,
	})
}

// NewServices wires repositories, the AI client, the dispatcher and the use-case services.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return ServiceContainer{}, errors.New("service deps with config are required")
	}
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	obs := buildObservability(logger, cfg.Observability, jobURLPrefix(cfg.HTTP.BaseURL))

	idemRepo, err := buildIdempotencyRepo(deps, logger)
	if err != nil {
		return ServiceContainer{}, err
	}
	idem, err := service.NewIdempotencyService(service.IdempotencyServiceOptions{
		Repo:       idemRepo,
		Logger:     logger,
		Metrics:    obs.MetricsSink,
		DefaultTTL: cfg.Idempotency.DefaultTTL,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("wire idempotency service: %w", err)
	}

	jobs, err := service.NewJobService(service.JobServiceOptions{
		Repo:            data.NewJobRunRepo(deps.DB, data.JobRunRepoOptions{Logger: logger}),
		Logger:          logger,
		Metrics:         obs.MetricsSink,
		FailureNotifier: obs.FailureNotifier,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("wire job service: %w", err)
	}

	ai, err := newAIClient(cfg.AI, logger, obs.MetricsSink)
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("wire ai client: %w", err)
	}

	disp := newDispatcher(cfg.Dispatch, logger, obs.MetricsSink)
	runner, err := jobrunner.NewRunner(jobrunner.RunnerOptions{Jobs: jobs, Dispatcher: disp, Logger: logger})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("wire job runner: %w", err)
	}

	docs, err := service.NewDocumentService(service.DocumentServiceOptions{
		Documents:        data.NewDocumentRepo(deps.DB, &data.RealTimeProvider{}),
		Jobs:             jobs,
		Idempotency:      idem,
		AI:               ai,
		Submitter:        runner,
		Logger:           logger,
		TmpDir:           cfg.Upload.TmpDir,
		MaxBytes:         cfg.Upload.MaxBytes,
		AllowedTypes:     cfg.Upload.Types,
		ChunksExpression: cfg.AI.ChunksExpression,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("wire document service: %w", err)
	}
	registerJobHandlers(runner, docs)

	gen, err := service.NewGenerationService(service.GenerationServiceOptions{
		Idempotency: idem,
		AI:          ai,
		Logger:      logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("wire generation service: %w", err)
	}

	return ServiceContainer{
		Jobs:            jobs,
		Idempotency:     idem,
		IdempotencyRepo: idemRepo,
		Documents:       docs,
		Generation:      gen,
		AI:              ai,
		Dispatcher:      disp,
		Runner:          runner,
		Observability:   obs,
	}, nil
}

// registerJobHandlers binds each job type to the service that executes it.
func registerJobHandlers(runner *jobrunner.Runner, docs *service.DocumentService) {
	runner.Register(model.JobTypeDocumentIngest, jobrunner.Handler{
		Run:       docs.Ingest,
		Classify:  service.ClassifyIngestFailure,
		OnFailure: docs.IngestFailed,
	})
	runner.Register(model.JobTypeDocumentDelete, jobrunner.Handler{Run: docs.DeleteChunks})
}

// ServiceOrchestrationConfig contains configuration for service orchestration.
type ServiceOrchestrationConfig struct {
	Config      *config.AppConfig
	Services    ServiceContainer
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// backgroundService describes a startable component bound to a service mode.
type backgroundService struct {
	mode  config.ServiceMode
	name  string
	start func(context.Context) error
}

func newHTTPBackgroundService(cfg *ServiceOrchestrationConfig, logger *slog.Logger) backgroundService {
	return backgroundService{
		mode: config.ServiceModeHTTP,
		name: "http",
		start: func(ctx context.Context) error {
			server := NewHTTPServer(&HTTPServerConfig{
				Config:      cfg.Config,
				Services:    cfg.Services,
				DB:          cfg.DB,
				RedisClient: cfg.RedisClient,
				Logger:      logger,
			})

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return serveHTTP(logger, server) })
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Config.HTTP.ShutdownTimeout)
				defer cancel()
				if err := ShutdownHTTPServer(ShutdownConfig{Context: shutdownCtx, Server: server, Logger: logger}); err != nil {
					logger.Error("HTTP shutdown failed", "error", err)
				}
				// Requests are drained; let accepted background work finish.
				return drainDispatcher(gctx, cfg.Services.Dispatcher, cfg.Config.Dispatch.ShutdownTimeout)
			})
			return g.Wait()
		},
	}
}

func newReaperBackgroundService(cfg *ServiceOrchestrationConfig, logger *slog.Logger) backgroundService {
	return backgroundService{
		mode: config.ServiceModeReaper,
		name: "reaper",
		start: func(ctx context.Context) error {
			return RunReaper(ctx, ReaperConfig{
				DB:      cfg.DB,
				Repo:    cfg.Services.IdempotencyRepo,
				Logger:  logger,
				Config:  cfg.Config.Reaper,
				Metrics: cfg.Services.Observability.MetricsSink,
			})
		},
	}
}

// buildBackgroundServices returns the components enabled by SERVICES.
func buildBackgroundServices(cfg *ServiceOrchestrationConfig, logger *slog.Logger) []backgroundService {
	candidates := []backgroundService{
		newHTTPBackgroundService(cfg, logger),
		newReaperBackgroundService(cfg, logger),
	}
	out := make([]backgroundService, 0, len(candidates))
	for _, svc := range candidates {
		switch svc.mode {
		case config.ServiceModeHTTP:
			if !cfg.Config.IsHTTPServerEnabled() {
				continue
			}
		case config.ServiceModeReaper:
			if !cfg.Config.IsReaperEnabled() {
				continue
			}
		}
		out = append(out, svc)
	}
	return out
}

// RunServicesWithShutdown starts all enabled services and blocks until SIGINT/SIGTERM or the
// first service failure, then stops the rest gracefully.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return runServices(ctx, buildBackgroundServices(cfg, logger), logger)
}

func runServices(ctx context.Context, services []backgroundService, logger *slog.Logger) error {
	if len(services) == 0 {
		return errors.New("no services enabled")
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, svc := range services {
		g.Go(func() error {
			logger.InfoContext(gctx, "background service started", "service", svc.name, "mode", svc.mode)
			err := svc.start(gctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("%s failed: %w", svc.name, err)
			}
			logger.InfoContext(gctx, svc.name+" stopped")
			return nil
		})
	}

	err := g.Wait()
	if err != nil {
		logger.Error("service error", "error", err)
	}
	return err
}
