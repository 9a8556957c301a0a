package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	DataDir         string
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Run window and schedule.
	LookbackDays     int
	ScheduleInterval time.Duration

	// Upstream APIs.
	OpenMeteoURL      string
	CollisionsURL     string
	SocrataAppToken   string
	CollisionPageSize int
	CollisionMaxRows  int
	APITimeout        time.Duration
	APIMaxRetries     int
	APIRateLimit      float64

	// SQLite warehouse mirror. Empty DSN or SKIP_DATABASE=true disables it.
	WarehouseDSN string
	SkipDatabase bool

	// Kafka publishing. No brokers disables it.
	KafkaBrokers       []string
	KafkaTopic         string
	BatchSize          int
	BatchFlushInterval time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	scheduleInterval, err := parseDuration("SCHEDULE_INTERVAL", "24h")
	if err != nil {
		return nil, err
	}

	apiTimeout, err := parseDuration("API_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}

	lookback, err := parsePositiveInt("LOOKBACK_DAYS", 30)
	if err != nil {
		return nil, err
	}
	pageSize, err := parsePositiveInt("COLLISIONS_PAGE_SIZE", 1000)
	if err != nil {
		return nil, err
	}
	maxRows, err := parsePositiveInt("COLLISIONS_MAX_ROWS", 50000)
	if err != nil {
		return nil, err
	}
	maxRetries, err := parsePositiveInt("API_MAX_RETRIES", 3)
	if err != nil {
		return nil, err
	}

	rateLimit, err := strconv.ParseFloat(sharedcfg.EnvOrDefault("API_RATE_LIMIT", "5"), 64)
	if err != nil || rateLimit <= 0 {
		return nil, errors.New("invalid API_RATE_LIMIT")
	}

	var brokers []string
	if raw := os.Getenv("KAFKA_BROKERS"); raw != "" {
		brokers = sharedcfg.ParseBrokers(raw)
	}

	cfg := &Config{
		DataDir:         sharedcfg.EnvOrDefault("DATA_DIR", "data"),
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		LookbackDays:     lookback,
		ScheduleInterval: scheduleInterval,

		OpenMeteoURL:      sharedcfg.EnvOrDefault("OPEN_METEO_URL", "https://archive-api.open-meteo.com"),
		CollisionsURL:     sharedcfg.EnvOrDefault("COLLISIONS_API_URL", "https://data.cityofnewyork.us/resource/h9gi-nx95.json"),
		SocrataAppToken:   os.Getenv("SOCRATA_APP_TOKEN"),
		CollisionPageSize: pageSize,
		CollisionMaxRows:  maxRows,
		APITimeout:        apiTimeout,
		APIMaxRetries:     maxRetries,
		APIRateLimit:      rateLimit,

		WarehouseDSN: os.Getenv("WAREHOUSE_DSN"),
		SkipDatabase: os.Getenv("SKIP_DATABASE") == "true",

		KafkaBrokers:       brokers,
		KafkaTopic:         sharedcfg.EnvOrDefault("KAFKA_TOPIC", "nyc-traffic-weather"),
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,
	}
	if cfg.DataDir == "" {
		return nil, errors.New("DATA_DIR is required")
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}
	if cfg.CollisionPageSize > cfg.CollisionMaxRows {
		return nil, errors.New("COLLISIONS_PAGE_SIZE must not exceed COLLISIONS_MAX_ROWS")
	}

	return cfg, nil
}

// WarehouseEnabled reports whether masters are mirrored into SQLite.
func (c *Config) WarehouseEnabled() bool {
	return c.WarehouseDSN != "" && !c.SkipDatabase
}

// KafkaEnabled reports whether newly accumulated records are published.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}
