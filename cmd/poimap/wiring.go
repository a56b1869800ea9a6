package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/couchcryptid/poimap-etl/internal/adapter/kafka"
	"github.com/couchcryptid/poimap-etl/internal/adapter/mapbox"
	"github.com/couchcryptid/poimap-etl/internal/adapter/postgres"
	"github.com/couchcryptid/poimap-etl/internal/adapter/sqlite"
	"github.com/couchcryptid/poimap-etl/internal/catalog"
	"github.com/couchcryptid/poimap-etl/internal/config"
	"github.com/couchcryptid/poimap-etl/internal/domain"
	"github.com/couchcryptid/poimap-etl/internal/observability"
	"github.com/couchcryptid/poimap-etl/internal/pipeline"
	"github.com/couchcryptid/poimap-etl/internal/source"
)

// store is what the commands need from either backend.
type store interface {
	pipeline.Store
	catalog.Source
	Migrate(ctx context.Context) error
	io.Closer
}

// openStore connects to the configured backend and applies the schema.
func openStore(ctx context.Context, cfg *config.Config) (store, error) {
	var (
		st  store
		err error
	)
	switch cfg.DatabaseDriver {
	case config.DriverPostgres:
		st, err = postgres.New(ctx, cfg.DatabaseURL)
	case config.DriverSQLite:
		st, err = sqlite.New(cfg.DatabaseURL)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.DatabaseDriver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

// buildGeocoder composes the Mapbox client with its decorators, outermost
// first: cache, retry, rate limit. Returns nil when no token is configured.
func buildGeocoder(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) domain.Geocoder {
	if !cfg.GeocodingEnabled() {
		metrics.GeocodeEnabled.Set(0)
		logger.Info("mapbox geocoding disabled, address-based categories will be skipped")
		return nil
	}
	metrics.GeocodeEnabled.Set(1)

	client := mapbox.NewClient(mapbox.Options{
		Token:     cfg.MapboxToken,
		Timeout:   cfg.MapboxTimeout,
		Country:   cfg.MapboxCountry,
		Proximity: cfg.MapboxProximity,
	}, metrics, logger)
	limited := mapbox.NewRateLimitedGeocoder(client, cfg.MapboxRateLimit)
	retrying := mapbox.NewRetryingGeocoder(limited, cfg.MapboxMaxAttempts, metrics, logger)
	cached := mapbox.NewCachedGeocoder(retrying, cfg.MapboxCacheSize, metrics)

	logger.Info("mapbox geocoding enabled",
		"cache_size", cfg.MapboxCacheSize,
		"timeout", cfg.MapboxTimeout,
		"rate_limit", cfg.MapboxRateLimit,
		"max_attempts", cfg.MapboxMaxAttempts,
	)
	return cached
}

// buildPublisher returns the Kafka change feed, or nil when unconfigured.
func buildPublisher(cfg *config.Config, logger *slog.Logger) *kafka.Publisher {
	if !cfg.KafkaEnabled() {
		return nil
	}
	logger.Info("publishing ingested records", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	return kafka.NewPublisher(cfg, logger)
}

// loadSources builds the dispatch table from SOURCE_DIR and the optional
// manifest.
func loadSources(cfg *config.Config) ([]pipeline.SourceSpec, error) {
	specs := pipeline.DefaultSources(cfg.SourceDir)
	if cfg.SourceManifest == "" {
		return specs, nil
	}
	m, err := source.LoadManifest(cfg.SourceManifest)
	if err != nil {
		return nil, err
	}
	return pipeline.WithManifest(specs, m), nil
}

// newPipeline wires the pipeline and returns a cleanup for the publisher.
func newPipeline(a *app, st pipeline.Store, opts ...pipeline.Option) (*pipeline.Pipeline, func(), error) {
	specs, err := loadSources(a.cfg)
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {}
	opts = append(opts, pipeline.WithGeocodeTimeout(a.cfg.GeocodeTimeout))
	if pub := buildPublisher(a.cfg, a.logger); pub != nil {
		opts = append(opts, pipeline.WithPublisher(pub))
		cleanup = func() {
			if err := pub.Close(); err != nil {
				a.logger.Error("kafka publisher close error", "error", err)
			}
		}
	}

	geocoder := buildGeocoder(a.cfg, a.metrics, a.logger)
	return pipeline.New(st, specs, geocoder, a.logger, a.metrics, opts...), cleanup, nil
}
