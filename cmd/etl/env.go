package main

import (
	"context"
	"fmt"

	"github.com/couchcryptid/nyc-traffic-weather-etl/internal/adapter/fetch"
	kafkaadapter "github.com/couchcryptid/nyc-traffic-weather-etl/internal/adapter/kafka"
	"github.com/couchcryptid/nyc-traffic-weather-etl/internal/adapter/openmeteo"
	"github.com/couchcryptid/nyc-traffic-weather-etl/internal/adapter/socrata"
	"github.com/couchcryptid/nyc-traffic-weather-etl/internal/observability"
	"github.com/couchcryptid/nyc-traffic-weather-etl/internal/pipeline"
	"github.com/couchcryptid/nyc-traffic-weather-etl/internal/store"
	"github.com/couchcryptid/nyc-traffic-weather-etl/internal/warehouse"
)

// pipelineEnv holds the wired components shared by the run and serve commands.
type pipelineEnv struct {
	Store     *store.MasterStore
	Driver    *pipeline.Driver
	Metrics   *observability.Metrics
	warehouse *warehouse.SQLite
	writer    *kafkaadapter.Writer
}

// initStore prepares the data directory layout.
func initStore() (*store.MasterStore, error) {
	st := store.New(cfg.DataDir)
	if err := st.Init(); err != nil {
		return nil, fmt.Errorf("init data dir: %w", err)
	}
	return st, nil
}

// initSinks opens the optional warehouse and Kafka sinks.
func (e *pipelineEnv) initSinks(ctx context.Context) ([]pipeline.Loader, error) {
	var loaders []pipeline.Loader

	if cfg.WarehouseEnabled() {
		wh, err := warehouse.Open(cfg.WarehouseDSN)
		if err != nil {
			return nil, err
		}
		if err := wh.Migrate(ctx); err != nil {
			wh.Close()
			return nil, fmt.Errorf("migrate warehouse: %w", err)
		}
		e.warehouse = wh
		loaders = append(loaders, wh)
		e.Metrics.SinkEnabled.WithLabelValues(wh.Name()).Set(1)
		logger.Info("warehouse sink enabled", "dsn", cfg.WarehouseDSN)
	} else {
		e.Metrics.SinkEnabled.WithLabelValues("warehouse").Set(0)
		logger.Info("warehouse sink disabled", "skip_database", cfg.SkipDatabase)
	}

	if cfg.KafkaEnabled() {
		e.writer = kafkaadapter.NewWriter(cfg, logger)
		loaders = append(loaders, e.writer)
		e.Metrics.SinkEnabled.WithLabelValues(e.writer.Name()).Set(1)
		logger.Info("kafka sink enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	} else {
		e.Metrics.SinkEnabled.WithLabelValues("kafka").Set(0)
	}
	return loaders, nil
}

// initPipeline wires the upstream clients, the master store, and the
// configured sinks into a Driver. extractors overrides the live API clients
// when non-nil.
func initPipeline(ctx context.Context, metrics *observability.Metrics, extractors *extractorPair) (*pipelineEnv, error) {
	st, err := initStore()
	if err != nil {
		return nil, err
	}
	e := &pipelineEnv{Store: st, Metrics: metrics}

	loaders, err := e.initSinks(ctx)
	if err != nil {
		return nil, err
	}

	if extractors == nil {
		extractors = liveExtractors(metrics)
	}
	e.Driver = pipeline.NewDriver(extractors.weather, extractors.collisions, st, loaders, logger, metrics)
	return e, nil
}

type extractorPair struct {
	weather    pipeline.Extractor
	collisions pipeline.Extractor
}

func liveExtractors(metrics *observability.Metrics) *extractorPair {
	weatherFetcher := fetch.New(fetch.Options{
		Source:     openmeteo.Source,
		Timeout:    cfg.APITimeout,
		MaxRetries: cfg.APIMaxRetries,
		RateLimit:  cfg.APIRateLimit,
	}, metrics, logger)
	collisionFetcher := fetch.New(fetch.Options{
		Source:     socrata.Source,
		Timeout:    cfg.APITimeout,
		MaxRetries: cfg.APIMaxRetries,
		RateLimit:  cfg.APIRateLimit,
	}, metrics, logger)

	return &extractorPair{
		weather: openmeteo.NewClient(weatherFetcher, cfg.OpenMeteoURL, logger),
		collisions: socrata.NewClient(collisionFetcher, cfg.CollisionsURL, cfg.SocrataAppToken,
			cfg.CollisionPageSize, cfg.CollisionMaxRows, logger),
	}
}

// Close releases the sinks.
func (e *pipelineEnv) Close() {
	if e.warehouse != nil {
		if err := e.warehouse.Close(); err != nil {
			logger.Error("warehouse close error", "error", err)
		}
	}
	if e.writer != nil {
		if err := e.writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}
}
