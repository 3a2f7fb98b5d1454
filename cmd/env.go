package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/hexrisk/internal/config"
	"github.com/sells-group/hexrisk/internal/dataset"
	"github.com/sells-group/hexrisk/internal/engine"
	"github.com/sells-group/hexrisk/internal/resilience"
	"github.com/sells-group/hexrisk/internal/store"
)

// mapEnv holds the store, registry cache and engine needed by the map and
// serve commands.
type mapEnv struct {
	Store  store.Store
	Cache  *dataset.CachedLookup
	Engine *engine.Engine
}

// Close releases resources held by the environment.
func (me *mapEnv) Close() {
	if me.Store != nil {
		_ = me.Store.Close()
	}
}

// initStore opens the backend selected by store.driver.
func initStore(ctx context.Context, c *config.Config) (store.Store, error) {
	switch c.Store.Driver {
	case config.DriverSQLite:
		return store.NewSQLite(c.Store.DatabaseURL)
	case config.DriverPostgres:
		return store.NewPostgres(ctx, c.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: c.Store.MaxConns,
			MinConns: c.Store.MinConns,
		})
	case config.DriverMemory:
		fx, err := store.LoadFixtures(c.Store.FixturePath)
		if err != nil {
			return nil, err
		}
		return store.NewMemory(fx)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", c.Store.Driver)
	}
}

// openStore opens the backend, retrying while the database is unreachable.
func openStore(ctx context.Context, c *config.Config) (store.Store, error) {
	return resilience.Retry(ctx, resilience.DefaultBackoff(), "open store", func(ctx context.Context) (store.Store, error) {
		return initStore(ctx, c)
	})
}

// initMapEnv validates config for mode, opens the store, and builds the
// engine over a cached registry. Callers should defer env.Close().
func initMapEnv(ctx context.Context, c *config.Config, mode string) (*mapEnv, error) {
	if err := c.Validate(mode); err != nil {
		return nil, err
	}

	st, err := openStore(ctx, c)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	cache := dataset.NewCachedLookup(st, c.Registry.CacheSize, c.Registry.CacheTTL())
	eng, err := engine.New(engine.Config{
		Resolver:         dataset.NewRegistry(cache),
		Catalog:          st,
		Expander:         st,
		Executor:         st,
		ImpactExecutor:   st,
		UnitArea:         c.Engine.UnitArea,
		NativeResolution: c.Engine.NativeResolution,
	})
	if err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "init engine")
	}

	zap.L().Debug("map environment ready",
		zap.String("driver", c.Store.Driver),
		zap.Int("cache_size", c.Registry.CacheSize),
		zap.Duration("cache_ttl", c.Registry.CacheTTL()),
	)

	return &mapEnv{Store: st, Cache: cache, Engine: eng}, nil
}
