package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"

	"github.com/couchcryptid/incident-risk-service/internal/analytics"
)

// Commit backends.
const (
	BackendMySQL = "mysql"
	BackendKafka = "kafka"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Local queue and ledger storage.
	QueuePath     string
	QueueInMemory bool
	DrainInterval time.Duration

	// Remote store.
	CommitBackend     string
	MySQLDSN          string
	KafkaBrokers      []string
	KafkaReportsTopic string

	// Mapbox geocoding configuration.
	MapboxToken     string
	MapboxEnabled   bool
	MapboxTimeout   time.Duration
	MapboxCacheSize int

	DefaultRiskPeriod analytics.Period
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	drainInterval, err := parsePositiveDuration("DRAIN_INTERVAL", "30s")
	if err != nil {
		return nil, err
	}
	mapboxTimeout, err := parsePositiveDuration("MAPBOX_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}
	mapboxCacheSize, err := parsePositiveInt("MAPBOX_CACHE_SIZE", 1000)
	if err != nil {
		return nil, err
	}
	queueInMemory, err := parseBool("QUEUE_IN_MEMORY", false)
	if err != nil {
		return nil, err
	}
	period, err := analytics.ParsePeriod(sharedcfg.EnvOrDefault("DEFAULT_RISK_PERIOD", "month"))
	if err != nil {
		return nil, fmt.Errorf("invalid DEFAULT_RISK_PERIOD: %w", err)
	}

	mapboxToken := os.Getenv("MAPBOX_TOKEN")
	mapboxEnabled := mapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		mapboxEnabled = v == "true"
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		QueuePath:     sharedcfg.EnvOrDefault("QUEUE_PATH", "./data/queue"),
		QueueInMemory: queueInMemory,
		DrainInterval: drainInterval,

		CommitBackend:     strings.ToLower(sharedcfg.EnvOrDefault("COMMIT_BACKEND", BackendMySQL)),
		MySQLDSN:          sharedcfg.EnvOrDefault("MYSQL_DSN", "incident:incident@tcp(localhost:3306)/incidents"),
		KafkaBrokers:      sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaReportsTopic: sharedcfg.EnvOrDefault("KAFKA_REPORTS_TOPIC", "incident-reports"),

		MapboxToken:     mapboxToken,
		MapboxEnabled:   mapboxEnabled,
		MapboxTimeout:   mapboxTimeout,
		MapboxCacheSize: mapboxCacheSize,

		DefaultRiskPeriod: period,
	}

	if !cfg.QueueInMemory && cfg.QueuePath == "" {
		return nil, errors.New("QUEUE_PATH is required unless QUEUE_IN_MEMORY is true")
	}
	switch cfg.CommitBackend {
	case BackendMySQL:
		if cfg.MySQLDSN == "" {
			return nil, errors.New("MYSQL_DSN is required for the mysql backend")
		}
	case BackendKafka:
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required for the kafka backend")
		}
		if cfg.KafkaReportsTopic == "" {
			return nil, errors.New("KAFKA_REPORTS_TOPIC is required for the kafka backend")
		}
	default:
		return nil, fmt.Errorf("invalid COMMIT_BACKEND %q (want mysql or kafka)", cfg.CommitBackend)
	}
	if cfg.MapboxEnabled && cfg.MapboxToken == "" {
		return nil, errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}

	return cfg, nil
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
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

func parseBool(key string, def bool) (bool, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s", key)
	}
	return b, nil
}
