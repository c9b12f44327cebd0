package cli

import (
	"context"

	"github.com/aretw0/strata"
	"github.com/aretw0/strata/internal/config"
	"github.com/aretw0/strata/pkg/adapters/loam"
	"github.com/aretw0/strata/pkg/adapters/memory"
	"github.com/aretw0/strata/pkg/adapters/redis"
	"github.com/aretw0/strata/pkg/adapters/sqlite"
	"github.com/aretw0/strata/pkg/adapters/yamlfile"
	"github.com/aretw0/strata/pkg/observability"
	"github.com/aretw0/strata/pkg/ports"
	"github.com/aretw0/strata/pkg/render"
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// App is a configured system together with the resources it owns.
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	System   *strata.System
	Registry *prometheus.Registry

	closers []func() error
}

// NewApp opens the configured store and builds a system over it.
func NewApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &App{
		Config:   cfg,
		Logger:   logger,
		Registry: prometheus.NewRegistry(),
	}

	store, closeStore, err := OpenStore(ctx, cfg.Store, logger.Named("store"))
	if err != nil {
		return nil, err
	}
	if closeStore != nil {
		app.closers = append(app.closers, closeStore)
	}

	renderer, err := render.New(cfg.Render.Engine)
	if err != nil {
		_ = app.Close()
		return nil, err
	}

	metrics, err := observability.NewMetrics(app.Registry)
	if err != nil {
		_ = app.Close()
		return nil, errors.Wrap(err, "failed to register metrics")
	}

	sys, err := strata.New(store,
		strata.WithRenderer(renderer),
		strata.WithCacheConfig(cfg.Cache.Size, cfg.Cache.TTL),
		strata.WithLogger(logger),
		strata.WithParallelism(cfg.Resolver.Parallelism),
		strata.WithDefaultTarget(cfg.Generate.Target),
		strata.WithHooks(observability.Chain(
			observability.LogHooks(logger.Named("hooks")),
			metrics.Hooks(),
		)),
	)
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	app.System = sys

	app.Registry.MustRegister(
		observability.NewCacheCollector(sys.Cache(), ""),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return app, nil
}

// OpenStore opens the configured backend. The returned closer may be nil.
func OpenStore(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (ports.Store, func() error, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		if cfg.Path == "" {
			return memory.NewStore(), nil, nil
		}
		store, err := yamlfile.Load(ctx, cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil

	case config.BackendYAML:
		store, err := yamlfile.Open(ctx, cfg.Path, yamlfile.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil

	case config.BackendLoam:
		store, err := loam.Open(ctx, cfg.Path, loam.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil

	case config.BackendSQLite:
		store, err := sqlite.Open(ctx, cfg.Path, sqlite.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil

	case config.BackendRedis:
		store := redis.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, redis.WithPrefix(cfg.Redis.Prefix))
		if err := store.Ping(ctx); err != nil {
			_ = store.Close()
			return nil, nil, errors.Wrapf(err, "failed to reach redis at %s", cfg.Redis.Addr)
		}
		return store, store.Close, nil
	}
	return nil, nil, errors.Newf("unknown store backend %q", cfg.Backend)
}

// Follow keeps the system in sync with a watchable store until ctx is done.
// Stores that cannot be watched are left as they are.
func (a *App) Follow(ctx context.Context) {
	events, err := a.System.Watch(ctx)
	if err != nil {
		a.Logger.Debug("store is not watched", zap.Error(err))
		return
	}
	go func() {
		for id := range events {
			a.Logger.Info("corpus reloaded", zap.String("document", id))
		}
	}()
}

// Close releases the store in reverse order of acquisition.
func (a *App) Close() error {
	var err error
	for i := len(a.closers) - 1; i >= 0; i-- {
		err = errors.CombineErrors(err, a.closers[i]())
	}
	a.closers = nil
	return err
}
