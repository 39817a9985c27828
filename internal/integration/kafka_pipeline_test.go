//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/couchcryptid/incident-risk-service/internal/adapter/kafka"
	"github.com/couchcryptid/incident-risk-service/internal/app"
	"github.com/couchcryptid/incident-risk-service/internal/config"
	"github.com/couchcryptid/incident-risk-service/internal/domain"
	"github.com/couchcryptid/incident-risk-service/internal/observability"
	"github.com/couchcryptid/incident-risk-service/internal/pipeline"
)

const testReportsTopic = "test-incident-reports"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node KRaft broker for the duration of the test.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("incident-test"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("terminate kafka container: %v", err)
		}
	})

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	cconn, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer cconn.Close()

	require.NoError(t, cconn.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     3,
		ReplicationFactor: 1,
	}))
}

// offline is a pinger for a remote store that cannot be reached.
type offline struct{}

func (offline) Ping(context.Context) error { return errors.New("no route to host") }

type publishedReport struct {
	Report  domain.Report
	Key     string
	Headers map[string]string
}

func readPublished(ctx context.Context, t *testing.T, consumer *kafkago.Reader) publishedReport {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from reports topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	var r domain.Report
	require.NoError(t, json.Unmarshal(msg.Value, &r), "unmarshal report message")
	return publishedReport{Report: r, Key: string(msg.Key), Headers: headers}
}

// TestOfflineSubmissionsDrainToKafka queues reports while the remote store is
// unreachable, then drains them through a real broker and checks that a second
// drain publishes nothing more.
func TestOfflineSubmissionsDrainToKafka(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testReportsTopic)

	logger := discardLogger()
	metrics := observability.NewMetricsForTesting()
	clock := clockwork.NewFakeClockAt(time.Date(2024, time.August, 1, 9, 0, 0, 0, time.UTC))

	local, err := app.OpenLocal(&config.Config{QueueInMemory: true}, clock, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = local.Close() })

	writer := kafka.NewWriter([]string{broker}, testReportsTopic, logger)
	t.Cleanup(func() { _ = writer.Close() })
	require.NoError(t, writer.Ping(ctx))

	submitter := pipeline.NewSubmitter(writer, local.Queue, offline{}, clock, logger, metrics)
	submissions := []domain.Submission{
		{
			Barangay:     "San Roque",
			Description:  "Knee-deep flooding along J.P. Rizal",
			IncidentType: "flood",
			Location:     domain.Coordinates{Lat: 14.6247, Lng: 121.0965},
			SubmittedBy:  "resident-7",
		},
		{
			Barangay:     "Malanday",
			Description:  "Fallen tree blocking the road",
			IncidentType: "road obstruction",
			Location:     domain.Coordinates{Lat: 14.6522, Lng: 121.0953},
			SubmittedBy:  "resident-12",
		},
	}
	localIDs := map[string]string{}
	for _, s := range submissions {
		res, err := submitter.Submit(ctx, s)
		require.NoError(t, err)
		require.True(t, res.Queued)
		localIDs[res.LocalID] = s.Barangay
		clock.Advance(time.Minute)
	}

	coord := pipeline.NewCoordinator(local.Queue, local.Ledger, writer, clock, logger, metrics)
	first, err := coord.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Committed)
	assert.Zero(t, first.Failed)

	depth, err := local.Queue.Depth(ctx)
	require.NoError(t, err)
	assert.Zero(t, depth)

	for id := range localIDs {
		rec, ok, err := local.Ledger.Lookup(ctx, id)
		require.NoError(t, err)
		require.True(t, ok, "ledger record for %s", id)
		assert.Equal(t, kafka.RemoteID(id), rec.RemoteID)
		assert.Equal(t, 1, rec.Attempts)
	}

	second, err := coord.Drain(ctx)
	require.NoError(t, err)
	assert.Empty(t, second.Entries)

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testReportsTopic,
		GroupID:     "test-consumer-" + strconv.FormatInt(time.Now().UnixNano(), 10),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	for range localIDs {
		msg := readPublished(ctx, t, consumer)
		barangay, ok := localIDs[msg.Key]
		require.True(t, ok, "unexpected message key %q", msg.Key)

		assert.Equal(t, kafka.RemoteID(msg.Key), msg.Report.ID)
		assert.Equal(t, msg.Key, msg.Report.LocalID)
		assert.Equal(t, barangay, msg.Report.Barangay)
		assert.Equal(t, domain.ReportPending, msg.Report.Status)
		assert.Equal(t, barangay, msg.Headers["barangay"])
		assert.NotEmpty(t, msg.Headers["incident_type"])
		_, err := time.Parse(time.RFC3339, msg.Headers["created_at"])
		assert.NoError(t, err, "created_at should be RFC 3339")
	}

	readCtx, readCancel := context.WithTimeout(ctx, 5*time.Second)
	_, err = consumer.ReadMessage(readCtx)
	readCancel()
	assert.Error(t, err, "expected no further messages after the second drain")
}
