package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"

	"domainreader/internal/platform/config"
	"domainreader/internal/platform/postgres"
	"domainreader/internal/platform/redis"
	"domainreader/internal/reader"
	"domainreader/internal/reader/filter"
	readermetrics "domainreader/internal/reader/metrics"
	"domainreader/internal/reader/store"
	"domainreader/internal/schema"
	"domainreader/pkg/platform/circuit"
)

// readerApp is the resolution engine with the resources it holds open.
type readerApp struct {
	db      *sql.DB
	redis   *redis.Client
	service *reader.Service
}

func (a *readerApp) Close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}

// buildReader opens Postgres and the schema registry and assembles the
// reader service. reg may be nil, in which case no metrics are registered.
func buildReader(ctx context.Context, cfg config.Config, reg prometheus.Registerer, logger *slog.Logger) (*readerApp, error) {
	readerCfg, err := readerConfig(cfg.Reader)
	if err != nil {
		return nil, err
	}

	db, err := postgres.Open(ctx, cfg.Postgres)
	if err != nil {
		return nil, err
	}
	app := &readerApp{db: db}

	registry, rc, err := buildRegistry(ctx, cfg, reg, logger)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.redis = rc

	opts := []reader.Option{
		reader.WithLogger(logger),
		reader.WithConfig(readerCfg),
		reader.WithTracer(otel.Tracer("domainreader/reader")),
	}
	if reg != nil {
		opts = append(opts, reader.WithMetrics(readermetrics.New(reg)))
	}

	svc, err := reader.New(registry, store.NewPostgresStore(db), opts...)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.service = svc
	return app, nil
}

func readerConfig(cfg config.ReaderConfig) (reader.Config, error) {
	failure, err := reader.ParseFailurePolicy(cfg.ExecutionFailurePolicy)
	if err != nil {
		return reader.Config{}, err
	}
	unbound, err := filter.ParsePolicy(cfg.UnboundParameterPolicy)
	if err != nil {
		return reader.Config{}, err
	}
	return reader.Config{
		QueryTimeout:  cfg.QueryTimeout,
		MaxPageSize:   cfg.MaxPageSize,
		EntitySchema:  cfg.EntitySchema,
		HistorySuffix: cfg.HistorySuffix,
		HistoryOrder:  cfg.HistoryOrderColumn,
		FailurePolicy: failure,
		UnboundPolicy: unbound,
	}, nil
}

// buildRegistry picks the file registry when SCHEMA_FILE is set and the HTTP
// registry otherwise. With Redis configured the registry sits behind the
// descriptor cache.
func buildRegistry(ctx context.Context, cfg config.Config, reg prometheus.Registerer, logger *slog.Logger) (schema.Registry, *redis.Client, error) {
	var registry schema.Registry
	if cfg.Schema.File != "" {
		fileRegistry, err := schema.LoadFileRegistry(cfg.Schema.File)
		if err != nil {
			return nil, nil, fmt.Errorf("load schema file: %w", err)
		}
		registry = fileRegistry
	} else {
		httpRegistry, err := schema.NewHTTPRegistry(cfg.Schema.URI, cfg.Schema.Timeout)
		if err != nil {
			return nil, nil, err
		}
		registry = httpRegistry
	}

	rc, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	if rc == nil {
		return registry, nil, nil
	}

	cacheOpts := []schema.CacheOption{
		schema.WithCacheLogger(logger),
		schema.WithBreaker(circuit.New("schema-cache", circuit.WithFailureThreshold(5), circuit.WithSuccessThreshold(2))),
	}
	if reg != nil {
		cacheOpts = append(cacheOpts, schema.WithCacheMetrics(schema.NewMetrics(reg)))
	}
	cached, err := schema.NewRedisCache(registry, rc.Client, cfg.Schema.CacheTTL, cacheOpts...)
	if err != nil {
		_ = rc.Close()
		return nil, nil, err
	}
	return cached, rc, nil
}
