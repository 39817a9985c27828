package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/incident-risk-service/internal/domain"
	"github.com/couchcryptid/incident-risk-service/internal/ledger"
	"github.com/couchcryptid/incident-risk-service/internal/storage/badger"
)

func newLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	db, err := badger.Open(badger.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return ledger.New(db)
}

func TestLedger_RecordAndLookup(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)
	at := time.Date(2024, 8, 1, 10, 0, 0, 0, time.UTC)

	_, ok, err := l.Lookup(ctx, "local-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, l.RecordCommit(ctx, "local-1", "42", at, 2))

	rec, ok, err := l.Lookup(ctx, "local-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.SyncRecord{LocalID: "local-1", RemoteID: "42", SyncedAt: at, Attempts: 2}, rec)
}

func TestLedger_RecordIsIdempotent(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)
	at := time.Date(2024, 8, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, l.RecordCommit(ctx, "local-1", "42", at, 1))
	require.NoError(t, l.RecordCommit(ctx, "local-1", "42", at.Add(time.Hour), 3))

	rec, _, err := l.Lookup(ctx, "local-1")
	require.NoError(t, err)
	assert.Equal(t, at, rec.SyncedAt, "first record wins")
	assert.Equal(t, 1, rec.Attempts)
}

func TestLedger_ConflictingRemoteID(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)

	require.NoError(t, l.RecordCommit(ctx, "local-1", "42", time.Now(), 1))
	err := l.RecordCommit(ctx, "local-1", "43", time.Now(), 1)
	assert.ErrorIs(t, err, domain.ErrLedgerConflict)
}

func TestLedger_List(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)
	at := time.Date(2024, 8, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, l.RecordCommit(ctx, "b", "2", at, 1))
	require.NoError(t, l.RecordCommit(ctx, "a", "1", at, 1))

	recs, err := l.List(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "a", recs[0].LocalID)
	assert.Equal(t, "b", recs[1].LocalID)
}
