// Package ledger persists the local id -> remote id mapping written after every
// confirmed commit. A hit is authoritative: the report reached the remote
// store, whatever the queue says.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/couchcryptid/incident-risk-service/internal/domain"
	"github.com/couchcryptid/incident-risk-service/internal/storage"
)

const keyPrefix = "ledger/"

// Ledger is an append-only store of SyncRecords keyed by local id.
type Ledger struct {
	kv storage.KV
}

// New creates a Ledger over kv.
func New(kv storage.KV) *Ledger {
	return &Ledger{kv: kv}
}

func key(localID string) string { return keyPrefix + localID }

// RecordCommit stores proof of a successful commit. Recording the same pair
// twice is a no-op; a second remote id for the same local id is rejected.
func (l *Ledger) RecordCommit(ctx context.Context, localID, remoteID string, at time.Time, attempts int) error {
	existing, ok, err := l.Lookup(ctx, localID)
	if err != nil {
		return err
	}
	if ok {
		if existing.RemoteID == remoteID {
			return nil
		}
		return fmt.Errorf("record %s -> %s (have %s): %w", localID, remoteID, existing.RemoteID, domain.ErrLedgerConflict)
	}

	data, err := json.Marshal(domain.SyncRecord{
		LocalID:  localID,
		RemoteID: remoteID,
		SyncedAt: at.UTC(),
		Attempts: attempts,
	})
	if err != nil {
		return &domain.StorageError{Op: "record commit", Key: key(localID), Err: err}
	}
	if err := l.kv.Set(ctx, key(localID), data); err != nil {
		return &domain.StorageError{Op: "record commit", Key: key(localID), Err: err}
	}
	return nil
}

// Lookup returns the SyncRecord for localID, if one exists.
func (l *Ledger) Lookup(ctx context.Context, localID string) (domain.SyncRecord, bool, error) {
	data, err := l.kv.Get(ctx, key(localID))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return domain.SyncRecord{}, false, nil
	}
	if err != nil {
		return domain.SyncRecord{}, false, &domain.StorageError{Op: "lookup", Key: key(localID), Err: err}
	}

	var rec domain.SyncRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return domain.SyncRecord{}, false, &domain.StorageError{Op: "decode", Key: key(localID), Err: err}
	}
	return rec, true, nil
}

// List returns every record in local id order.
func (l *Ledger) List(ctx context.Context) ([]domain.SyncRecord, error) {
	var out []domain.SyncRecord
	err := l.kv.Scan(ctx, keyPrefix, func(k string, v []byte) error {
		var rec domain.SyncRecord
		if err := json.Unmarshal(v, &rec); err != nil {
			return &domain.StorageError{Op: "decode", Key: k, Err: err}
		}
		out = append(out, rec)
		return nil
	})
	if err != nil {
		var serr *domain.StorageError
		if errors.As(err, &serr) {
			return nil, err
		}
		return nil, &domain.StorageError{Op: "list", Err: err}
	}
	return out, nil
}
