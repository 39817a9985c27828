// Package kafka publishes committed reports to a Kafka topic, as an
// alternative remote store for deployments where a downstream consumer owns
// the canonical table.
package kafka

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/incident-risk-service/internal/domain"
)

// remoteIDPrefix marks ids assigned by this adapter rather than a database.
const remoteIDPrefix = "rpt-"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer produces one message per committed report.
// It implements pipeline.Committer.
type Writer struct {
	writer  messageWriter
	brokers []string
	logger  *slog.Logger
}

// NewWriter creates a producer for topic. Messages are keyed by local id and
// hash-partitioned, so every retry of a report lands on the same partition
// and downstream consumers can deduplicate by key.
func NewWriter(brokers []string, topic string, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, brokers: brokers, logger: logger}
}

// Commit publishes the report and returns its remote id. The id is derived
// from the local id, so a retried commit reports the same id.
func (w *Writer) Commit(ctx context.Context, r domain.OfflineReport) (string, error) {
	remoteID := RemoteID(r.LocalID)
	msg, err := serializeToMessage(remoteID, r)
	if err != nil {
		return "", err
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		return "", fmt.Errorf("publish report %s: %w", r.LocalID, err)
	}
	w.logger.Debug("report published", "local_id", r.LocalID, "remote_id", remoteID, "attempt", r.Attempts)
	return remoteID, nil
}

// Ping dials the first reachable broker.
func (w *Writer) Ping(ctx context.Context) error {
	var errs []error
	for _, b := range w.brokers {
		conn, err := kafkago.DialContext(ctx, "tcp", b)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		return conn.Close()
	}
	if len(errs) == 0 {
		return errors.New("no kafka brokers configured")
	}
	return fmt.Errorf("dial kafka brokers: %w", errors.Join(errs...))
}

// CheckReadiness satisfies the shared readiness checker.
func (w *Writer) CheckReadiness(ctx context.Context) error {
	return w.Ping(ctx)
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// RemoteID derives the stable remote id for a local id.
func RemoteID(localID string) string {
	sum := sha256.Sum256([]byte(localID))
	return remoteIDPrefix + hex.EncodeToString(sum[:8])
}

// serializeToMessage renders the report in its canonical remote shape.
func serializeToMessage(remoteID string, r domain.OfflineReport) (kafkago.Message, error) {
	report := domain.Report{
		ID:           remoteID,
		LocalID:      r.LocalID,
		Barangay:     r.Barangay,
		Description:  r.Description,
		IncidentType: r.IncidentType,
		Category:     r.Category,
		Sensitive:    r.Sensitive,
		Location:     r.Location,
		SubmittedBy:  r.SubmittedBy,
		Status:       domain.ReportPending,
		Timestamp:    r.CreatedAt.UTC(),
		MediaRefs:    r.MediaRefs,
	}
	data, err := json.Marshal(report)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize report: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(r.LocalID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "incident_type", Value: []byte(r.IncidentType)},
			{Key: "barangay", Value: []byte(r.Barangay)},
			{Key: "created_at", Value: []byte(r.CreatedAt.UTC().Format(time.RFC3339))},
		},
	}, nil
}
