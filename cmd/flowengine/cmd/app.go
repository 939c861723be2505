package cmd

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/workforge/flowengine/internal/agentsvc"
	"github.com/workforge/flowengine/internal/condition"
	"github.com/workforge/flowengine/internal/config"
	"github.com/workforge/flowengine/internal/discipline"
	"github.com/workforge/flowengine/internal/engine"
	"github.com/workforge/flowengine/internal/eventbus"
	"github.com/workforge/flowengine/internal/obs"
	"github.com/workforge/flowengine/internal/persistence"
	"github.com/workforge/flowengine/internal/stepexec"
	"github.com/workforge/flowengine/internal/workflow"
)

// app bundles the process's wired components, shared by serve/run.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	metrics   *obs.Metrics
	workflows *workflow.Registry
	eng       *engine.Engine
	bus       *eventbus.Bus
}

// buildApp loads configuration and wires the full orchestration pipeline:
// agent client, condition evaluator, step executor, discipline scheduler,
// state persistence backend, optional event bus, and engine dispatcher.
func buildApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := obs.NewLogger(cfg.App.Environment)
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}

	metrics := obs.NewMetrics()

	workflows := workflow.NewRegistry(nil)

	agents := agentsvc.NewHTTPClient(cfg.AgentService.BaseURL, cfg.AgentService.DefaultTimeout, logger)
	evaluator := condition.NewEvaluator(logger)

	executor := stepexec.NewExecutor(agents, evaluator, logger, int64(cfg.Engine.MaxWorkerThreads),
		stepexec.WithRateLimit(cfg.AgentService.RateLimitPerSecond, cfg.AgentService.RateLimitBurst),
		stepexec.WithMetrics(metrics),
	)
	scheduler := discipline.New(executor, evaluator, logger)

	persist, err := buildPersistence(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing persistence: %w", err)
	}

	var bus *eventbus.Bus
	if cfg.MessageQueue.Enabled {
		bus, err = eventbus.Connect(cfg.MessageQueue.URL, cfg.MessageQueue.Exchange, logger)
		if err != nil {
			return nil, fmt.Errorf("connecting event bus: %w", err)
		}
	}

	eng := engine.New(engine.Config{
		MaxWorkerThreads:  cfg.Engine.MaxWorkerThreads,
		MaxConcurrentRuns: cfg.Engine.MaxConcurrentWorkflows,
		QueueHighWater:    cfg.Engine.PendingQueueHighWaterMark,
		HistoryCap:        cfg.Engine.HistoryRetentionSize,
		AutoCleanup:       cfg.Engine.AutoCleanupInterval,
	}, workflows, scheduler, persist, logger, metrics).WithEventBus(bus)

	workflows.SetActiveReferenceChecker(eng.HasActiveExecution)

	return &app{cfg: cfg, logger: logger, metrics: metrics, workflows: workflows, eng: eng, bus: bus}, nil
}

func buildPersistence(cfg *config.Config, logger *zap.Logger) (engine.Persister, error) {
	switch cfg.Persistence.Backend {
	case "postgres":
		return persistence.NewPostgresStore(cfg.Database.URL, logger)
	case "redis":
		return persistence.NewRedisCache(cfg.Redis.URL, cfg.Redis.Password, cfg.Redis.DB, logger)
	default:
		return persistence.NewFilesystemStore(cfg.Persistence.Directory, logger), nil
	}
}

// close releases any resources buildApp opened that don't belong to a
// longer-lived server loop (event bus connection).
func (a *app) close() {
	if a.bus != nil {
		if err := a.bus.Close(); err != nil {
			a.logger.Warn("failed to close event bus cleanly", zap.Error(err))
		}
	}
	a.logger.Sync()
}

func shutdownTimeout(cfg *config.Config) time.Duration {
	if cfg.Engine.ShutdownGracePeriod <= 0 {
		return 30 * time.Second
	}
	return cfg.Engine.ShutdownGracePeriod
}
