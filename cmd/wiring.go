package cmd

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"bindery/internal/assemble"
	"bindery/internal/clock/system"
	"bindery/internal/config"
	"bindery/internal/engine"
	"bindery/internal/fetch"
	"bindery/internal/metrics"
	"bindery/internal/progress"
	filestore "bindery/internal/progress/file"
	"bindery/internal/progress/memory"
	"bindery/internal/progress/postgres"
	"bindery/internal/ratelimit"
	"bindery/internal/retry"
	"bindery/internal/source"
	"bindery/internal/source/novelfull"
	"bindery/internal/source/royalroad"
)

// buildRegistry wires every known source adapter over one shared HTTP
// client.
func buildRegistry(cfg config.Config) (*source.Registry, error) {
	client := fetch.New(cfg.FetchOptions())

	registry := source.NewRegistry()
	for _, adapter := range []source.Adapter{
		royalroad.New(client),
		novelfull.New(client),
	} {
		if err := registry.Register(adapter); err != nil {
			return nil, fmt.Errorf("register adapter: %w", err)
		}
	}
	return registry, nil
}

// buildStore selects the progress backend. The caller owns closing; the
// returned func is a no-op for backends without connections.
func buildStore(ctx context.Context, cfg config.Config) (progress.Store, func(), error) {
	switch cfg.StorageBackend {
	case config.BackendFile:
		store, err := filestore.New(cfg.StorageDir)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	case config.BackendPostgres:
		store, closeFn, err := postgres.Open(ctx, cfg.StorageDSN)
		if err != nil {
			return nil, nil, err
		}
		return store, closeFn, nil
	case config.BackendMemory:
		return memory.New(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

// buildEngine assembles the orchestrator from config. The retry hook logs
// and counts every backoff so pacing problems are visible.
func buildEngine(
	cfg config.Config,
	registry *source.Registry,
	store progress.Store,
	assembler engine.Assembler,
	logger *zap.Logger,
) *engine.Engine {
	retryCfg := cfg.RetryConfig()
	retryCfg.OnRetry = func(label string, attempt int, delay time.Duration, err error) {
		metrics.FetchRetries.WithLabelValues(label).Inc()
		logger.Warn("retrying fetch",
			zap.String("source", label),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
	}
	return engine.New(
		registry,
		ratelimit.New(cfg.RateLimitConfig()),
		retry.New(retryCfg),
		store,
		assembler,
		system.New(),
		logger,
	)
}

// buildAssembler creates the filesystem spool under the output dir.
func buildAssembler(cfg config.Config, logger *zap.Logger) (engine.Assembler, error) {
	return assemble.NewFileSystemAssembler(cfg.OutputDir, logger)
}
