package main

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/court-inventory/internal/cost"
	"github.com/sells-group/court-inventory/internal/db"
	"github.com/sells-group/court-inventory/internal/discovery"
	"github.com/sells-group/court-inventory/internal/fetcher"
	"github.com/sells-group/court-inventory/internal/hierarchy"
	"github.com/sells-group/court-inventory/internal/pipeline"
	"github.com/sells-group/court-inventory/internal/registry"
	"github.com/sells-group/court-inventory/internal/store"
	anthropicpkg "github.com/sells-group/court-inventory/pkg/anthropic"
	"github.com/sells-group/court-inventory/pkg/geocode"
)

// appEnv holds the pool and the stores built on it.
type appEnv struct {
	Pool      *pgxpool.Pool
	Store     *store.Store
	Hierarchy *hierarchy.Store
	Sources   *registry.Registry
}

// Close releases the connection pool.
func (e *appEnv) Close() {
	if e.Pool != nil {
		e.Pool.Close()
	}
}

// initEnv validates config for mode, opens the pool and applies pending
// migrations. Callers should defer env.Close().
func initEnv(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	pool, err := db.Open(ctx, cfg.Store.DatabaseURL, db.PoolConfig{
		MaxConns: cfg.Store.MaxConns,
		MinConns: cfg.Store.MinConns,
	})
	if err != nil {
		return nil, err
	}

	if err := db.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	return &appEnv{
		Pool:      pool,
		Store:     store.New(pool),
		Hierarchy: hierarchy.NewStore(pool),
		Sources:   registry.New(pool),
	}, nil
}

// pipelineEnv adds the fetcher, the model engine and the run orchestrator.
type pipelineEnv struct {
	*appEnv
	Fetcher *fetcher.Fetcher
	Engine  *discovery.Engine
	Finder  *discovery.SourceFinder
	Runner  *pipeline.Runner
}

// initPipeline builds everything the discover and update commands need.
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	env, err := initEnv(ctx, "pipeline")
	if err != nil {
		return nil, err
	}

	client := anthropicpkg.NewClient(cfg.Anthropic.Key,
		anthropicpkg.WithBaseURL(cfg.Anthropic.BaseURL),
		anthropicpkg.WithMaxRetries(cfg.Anthropic.MaxRetries),
	)
	engine := discovery.NewEngine(client, discovery.ConfigFrom(cfg), cost.NewCalculator(cfg.Pricing.Anthropic), env.Store)
	f := fetcher.New(fetcher.OptionsFromConfig(cfg.Fetch))

	var gc geocode.Client
	if cfg.Pipeline.Geocode {
		gc = newGeocoder()
	} else {
		zap.L().Debug("geocoding disabled for pipeline runs")
	}

	runner := pipeline.New(pipeline.Deps{
		Store:    env.Store,
		Sources:  env.Sources,
		Fetcher:  f,
		Engine:   engine,
		Resolver: env.Hierarchy,
		Geocoder: gc,
	}, pipeline.ConfigFrom(cfg))

	return &pipelineEnv{
		appEnv:  env,
		Fetcher: f,
		Engine:  engine,
		Finder:  discovery.NewSourceFinder(engine, f, env.Sources),
		Runner:  runner,
	}, nil
}

func newGeocoder() geocode.Client {
	return geocode.NewClient(geocode.WithRateLimit(cfg.Geocode.RateLimit))
}
