package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/incident-risk-service/internal/domain"
)

type fakeWriter struct {
	msgs []kafkago.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

var testCreated = time.Date(2024, time.August, 1, 9, 0, 0, 0, time.UTC)

func testReport() domain.OfflineReport {
	return domain.OfflineReport{
		LocalID: "0190f0a4-6a6b-7c3e-9d5a-000000000001",
		Submission: domain.Submission{
			Barangay:     "San Roque",
			Description:  "Flooded street",
			IncidentType: "flood",
			Location:     domain.Coordinates{Lat: 14.6505, Lng: 121.1025},
			SubmittedBy:  "user-7",
			CreatedAt:    testCreated,
		},
		SyncStatus: domain.StatusSyncing,
		Attempts:   2,
	}
}

func TestSerializeToMessage(t *testing.T) {
	r := testReport()
	msg, err := serializeToMessage("rpt-1", r)
	require.NoError(t, err)

	assert.Equal(t, []byte(r.LocalID), msg.Key)

	var got domain.Report
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, "rpt-1", got.ID)
	assert.Equal(t, r.LocalID, got.LocalID)
	assert.Equal(t, domain.ReportPending, got.Status)
	assert.Equal(t, testCreated, got.Timestamp)
	assert.NotContains(t, string(msg.Value), "sync_status")

	require.Len(t, msg.Headers, 3)
	assert.Equal(t, "incident_type", msg.Headers[0].Key)
	assert.Equal(t, []byte("flood"), msg.Headers[0].Value)
	assert.Equal(t, []byte("San Roque"), msg.Headers[1].Value)
	assert.Equal(t, []byte(testCreated.Format(time.RFC3339)), msg.Headers[2].Value)
}

func TestRemoteID_StablePerLocalID(t *testing.T) {
	a := RemoteID("local-a")
	assert.Equal(t, a, RemoteID("local-a"))
	assert.NotEqual(t, a, RemoteID("local-b"))
	assert.Len(t, a, len(remoteIDPrefix)+16)
}

func TestWriter_CommitRetryKeepsID(t *testing.T) {
	fw := &fakeWriter{}
	w := &Writer{writer: fw, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	ctx := context.Background()

	id1, err := w.Commit(ctx, testReport())
	require.NoError(t, err)
	id2, err := w.Commit(ctx, testReport())
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	require.Len(t, fw.msgs, 2)
	assert.Equal(t, fw.msgs[0].Key, fw.msgs[1].Key)
}

func TestWriter_CommitError(t *testing.T) {
	fw := &fakeWriter{err: errors.New("leader not available")}
	w := &Writer{writer: fw, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	_, err := w.Commit(context.Background(), testReport())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish report")
}

func TestWriter_PingWithoutBrokers(t *testing.T) {
	w := &Writer{writer: &fakeWriter{}}
	require.Error(t, w.Ping(context.Background()))
}
