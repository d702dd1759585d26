package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/fleetline/dispatch/config"
	redisadapter "github.com/fleetline/dispatch/internal/adapters/redis"
	"github.com/fleetline/dispatch/internal/adapters/timer"
	"github.com/fleetline/dispatch/internal/core"
	"github.com/fleetline/dispatch/internal/data"
	"github.com/fleetline/dispatch/internal/domain/dispatch"
	"github.com/fleetline/dispatch/internal/observability/statsd"
	"github.com/fleetline/dispatch/internal/service"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Jobs        *service.JobService
	Assignments *service.AssignmentService
	Acceptance  *service.AcceptanceService
	Status      *service.StatusService
	Fanout      *service.Fanout
	Timers      *timer.Coordinator

	Observability ObservabilityContainer
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	MetricsSink   *statsd.Client
	MetricsConfig config.ObservabilityMetricsConfig
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient goredis.UniversalClient
	Logger      *slog.Logger
}

// buildObservability configures the metrics sink.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	var metricsSink *statsd.Client
	if cfg.Metrics.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled: true,
			Address: cfg.Metrics.StatsdAddress,
			Prefix:  "dispatch",
			Logger:  obsLogger,
		})
		if err != nil {
			obsLogger.Error("failed to initialise statsd client", "error", err)
		} else {
			metricsSink = client
		}
	}

	return ObservabilityContainer{
		MetricsSink:   metricsSink,
		MetricsConfig: cfg.Metrics,
	}
}

// NewServices wires repositories, adapters, and engines together.
//
// The timer coordinator and the acceptance engine reference each other: the
// coordinator needs a fire callback and the engine needs the coordinator to
// arm and cancel windows. The callback closes over the engine variable and
// is bound before any timer can fire.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	observability := buildObservability(logger, cfg.Observability)
	var sink statsd.Sink
	if observability.MetricsSink != nil {
		sink = observability.MetricsSink
	}

	repoCfg := data.RepoConfig{Logger: logger, TimeProvider: &data.RealTimeProvider{}}
	jobRepo := data.NewJobRepo(deps.DB, repoCfg)
	orders := data.NewOrderNumberSource(deps.DB, repoCfg)
	directory := data.NewDirectoryRepo(deps.DB)
	vehicles := data.NewVehicleRepo(deps.DB)

	publisher := redisadapter.NewPublisher(redisadapter.PublisherOptions{
		Client:  deps.RedisClient,
		Prefix:  cfg.Dispatch.ChannelPrefix,
		Logger:  logger,
		Metrics: sink,
	})

	fanout, err := service.NewFanout(service.FanoutOptions{
		Publisher: publisher,
		Logger:    logger,
		Metrics:   sink,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build fanout: %w", err)
	}

	policy, err := dispatch.NewAcceptancePolicy(cfg.Dispatch.DriverAcceptWindow, cfg.Dispatch.ProviderAcceptWindow)
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build acceptance policy: %w", err)
	}
	gate := dispatch.Gate{PlatformVendorID: cfg.Dispatch.PlatformVendorID}
	visibility := service.NewVisibilityResolver(directory)

	var acceptance *service.AcceptanceService
	coordinator, err := timer.NewCoordinator(timer.Options{
		Fire: func(ctx context.Context, handle core.TimerHandle) error {
			return acceptance.HandleExpiry(ctx, handle)
		},
		Logger:  logger,
		Metrics: sink,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build timer coordinator: %w", err)
	}

	acceptance, err = service.NewAcceptanceService(service.AcceptanceServiceOptions{
		Repo:       jobRepo,
		Directory:  directory,
		Vehicles:   vehicles,
		Timers:     coordinator,
		Visibility: visibility,
		Fanout:     fanout,
		Logger:     logger,
		Metrics:    sink,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build acceptance service: %w", err)
	}

	assignments, err := service.NewAssignmentService(service.AssignmentServiceOptions{
		Repo:       jobRepo,
		Directory:  directory,
		Vehicles:   vehicles,
		Timers:     coordinator,
		Visibility: visibility,
		Fanout:     fanout,
		Policy:     policy,
		Logger:     logger,
		Metrics:    sink,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build assignment service: %w", err)
	}

	status, err := service.NewStatusService(service.StatusServiceOptions{
		Repo:        jobRepo,
		Directory:   directory,
		Vehicles:    vehicles,
		Timers:      coordinator,
		Visibility:  visibility,
		Fanout:      fanout,
		Assignments: assignments,
		Gate:        gate,
		Logger:      logger,
		Metrics:     sink,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build status service: %w", err)
	}

	jobs, err := service.NewJobService(service.JobServiceOptions{
		Repo:       jobRepo,
		Orders:     orders,
		Directory:  directory,
		Timers:     coordinator,
		Visibility: visibility,
		Fanout:     fanout,
		Gate:       gate,
		Logger:     logger,
		Metrics:    sink,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build job service: %w", err)
	}

	return ServiceContainer{
		Jobs:          jobs,
		Assignments:   assignments,
		Acceptance:    acceptance,
		Status:        status,
		Fanout:        fanout,
		Timers:        coordinator,
		Observability: observability,
	}, nil
}

// RunOptions configures the service run loop.
type RunOptions struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Logger   *slog.Logger
}

// Run starts the enabled services and blocks until a shutdown signal or a
// service failure. Acceptance windows are recovered from the job store
// before the process reports ready.
func Run(opts RunOptions) error {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	enabled, err := opts.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("invalid service configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if enabled[config.ServiceModeDispatch] && opts.Config.Dispatch.RecoverOnStart {
		if err := opts.Services.Acceptance.RecoverPending(ctx); err != nil {
			return fmt.Errorf("recover acceptance windows: %w", err)
		}
	}

	group, gctx := errgroup.WithContext(ctx)

	if enabled[config.ServiceModeHealth] {
		group.Go(func() error {
			return runHealthServer(gctx, opts.Config.HTTP, logger)
		})
	}

	group.Go(func() error {
		<-gctx.Done()
		opts.Services.Timers.StopAll()
		if opts.Services.Observability.MetricsSink != nil {
			if err := opts.Services.Observability.MetricsSink.Close(); err != nil {
				logger.Warn("failed to close metrics sink", "error", err)
			}
		}
		return nil
	})

	logger.Info("services started", "services", opts.Config.Services)
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}
