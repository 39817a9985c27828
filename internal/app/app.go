// Package app wires configured components for the service and CLI binaries.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	kafkaadapter "github.com/couchcryptid/incident-risk-service/internal/adapter/kafka"
	"github.com/couchcryptid/incident-risk-service/internal/adapter/mapbox"
	mysqladapter "github.com/couchcryptid/incident-risk-service/internal/adapter/mysql"
	"github.com/couchcryptid/incident-risk-service/internal/analytics"
	"github.com/couchcryptid/incident-risk-service/internal/config"
	"github.com/couchcryptid/incident-risk-service/internal/ledger"
	"github.com/couchcryptid/incident-risk-service/internal/observability"
	"github.com/couchcryptid/incident-risk-service/internal/pipeline"
	"github.com/couchcryptid/incident-risk-service/internal/queue"
	"github.com/couchcryptid/incident-risk-service/internal/storage/badger"
)

// Committer is a remote store the pipeline can write to and probe.
type Committer interface {
	pipeline.Committer
	pipeline.Pinger
	CheckReadiness(ctx context.Context) error
	Close() error
}

// Local bundles the durable queue and ledger, which share one database.
type Local struct {
	DB     *badger.DB
	Queue  *queue.Queue
	Ledger *ledger.Ledger
}

// OpenLocal opens the queue database described by cfg.
func OpenLocal(cfg *config.Config, clock clockwork.Clock, logger *slog.Logger) (*Local, error) {
	bcfg := badger.DefaultConfig(cfg.QueuePath)
	if cfg.QueueInMemory {
		bcfg = badger.InMemoryConfig()
	}
	bcfg.Logger = logger

	db, err := badger.Open(bcfg)
	if err != nil {
		return nil, fmt.Errorf("open queue store: %w", err)
	}
	return &Local{
		DB:     db,
		Queue:  queue.New(db, clock),
		Ledger: ledger.New(db),
	}, nil
}

// Close closes the underlying database.
func (l *Local) Close() error {
	return l.DB.Close()
}

// NewCommitter returns the commit target selected by COMMIT_BACKEND. The
// mysql backend reuses store; the kafka backend opens its own producer.
func NewCommitter(cfg *config.Config, store *mysqladapter.Store, logger *slog.Logger) (Committer, error) {
	switch cfg.CommitBackend {
	case config.BackendMySQL:
		return store, nil
	case config.BackendKafka:
		return kafkaadapter.NewWriter(cfg.KafkaBrokers, cfg.KafkaReportsTopic, logger), nil
	default:
		return nil, fmt.Errorf("unknown commit backend %q", cfg.CommitBackend)
	}
}

// NewGeocoder returns a cached Mapbox geocoder, or nil when geocoding is
// disabled. The returned close func is never nil.
func NewGeocoder(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) (analytics.Geocoder, func(), error) {
	if !cfg.MapboxEnabled {
		logger.Info("mapbox geocoding disabled")
		return nil, func() {}, nil
	}
	client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, metrics, logger)
	cached, err := mapbox.NewCachedGeocoder(client, cfg.MapboxCacheSize, metrics)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("mapbox geocoding enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout)
	return cached, cached.Close, nil
}
