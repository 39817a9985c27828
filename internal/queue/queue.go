// Package queue is the durable local submission queue. It owns reports that
// could not be committed immediately until the sync coordinator confirms them.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/incident-risk-service/internal/domain"
	"github.com/couchcryptid/incident-risk-service/internal/storage"
)

const keyPrefix = "queue/"

// Queue stores OfflineReports in a storage.KV, one key per report.
// It assumes a single writer per process.
type Queue struct {
	kv    storage.KV
	clock clockwork.Clock
}

// New creates a Queue over kv. A nil clock uses real time.
func New(kv storage.KV, clock clockwork.Clock) *Queue {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Queue{kv: kv, clock: clock}
}

func key(localID string) string { return keyPrefix + localID }

// Enqueue stores a validated submission as a pending report and returns its local id.
func (q *Queue) Enqueue(ctx context.Context, s domain.Submission) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", &domain.StorageError{Op: "enqueue", Err: fmt.Errorf("generate local id: %w", err)}
	}
	if err := q.EnqueueAs(ctx, id.String(), s); err != nil {
		return "", err
	}
	return id.String(), nil
}

// EnqueueAs stores a pending report under an id the caller already assigned,
// e.g. one used for a failed direct commit.
func (q *Queue) EnqueueAs(ctx context.Context, localID string, s domain.Submission) error {
	if localID == "" {
		return &domain.StorageError{Op: "enqueue", Err: errors.New("empty local id")}
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = q.clock.Now().UTC()
	}
	return q.put(ctx, "enqueue", domain.OfflineReport{
		LocalID:    localID,
		Submission: s,
		SyncStatus: domain.StatusPending,
	})
}

// Get returns one queued report.
func (q *Queue) Get(ctx context.Context, localID string) (domain.OfflineReport, error) {
	data, err := q.kv.Get(ctx, key(localID))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return domain.OfflineReport{}, fmt.Errorf("queue entry %s: %w", localID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.OfflineReport{}, &domain.StorageError{Op: "get", Key: key(localID), Err: err}
	}
	return decode(key(localID), data)
}

// List returns every queued report, oldest first.
func (q *Queue) List(ctx context.Context) ([]domain.OfflineReport, error) {
	var out []domain.OfflineReport
	err := q.kv.Scan(ctx, keyPrefix, func(k string, v []byte) error {
		r, err := decode(k, v)
		if err != nil {
			return err
		}
		out = append(out, r)
		return nil
	})
	if err != nil {
		var serr *domain.StorageError
		if errors.As(err, &serr) {
			return nil, err
		}
		return nil, &domain.StorageError{Op: "list", Err: err}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].LocalID < out[j].LocalID
	})
	return out, nil
}

// ListPending returns reports awaiting a commit attempt (pending, failed, or
// with no status), oldest first.
func (q *Queue) ListPending(ctx context.Context) ([]domain.OfflineReport, error) {
	all, err := q.List(ctx)
	if err != nil {
		return nil, err
	}
	pending := all[:0]
	for _, r := range all {
		if r.SyncStatus.Retryable() {
			r.SyncStatus = r.SyncStatus.Normalize()
			pending = append(pending, r)
		}
	}
	return pending, nil
}

// Depth returns the number of queued reports in any status.
func (q *Queue) Depth(ctx context.Context) (int, error) {
	n := 0
	err := q.kv.Scan(ctx, keyPrefix, func(string, []byte) error {
		n++
		return nil
	})
	if err != nil {
		return 0, &domain.StorageError{Op: "count", Err: err}
	}
	return n, nil
}

// SetStatus moves a report along the sync state machine and returns the
// updated entry. Entering syncing counts an attempt; entering syncing or failed
// stamps LastAttemptAt; entering failed records errMsg.
func (q *Queue) SetStatus(ctx context.Context, localID string, status domain.SyncStatus, errMsg string) (domain.OfflineReport, error) {
	r, err := q.Get(ctx, localID)
	if err != nil {
		return domain.OfflineReport{}, err
	}

	current := r.SyncStatus.Normalize()
	if !current.CanTransitionTo(status) {
		return r, fmt.Errorf("%s: %s -> %s: %w", localID, current, status, domain.ErrIllegalTransition)
	}

	now := q.clock.Now().UTC()
	switch status {
	case domain.StatusSyncing:
		r.Attempts++
		r.LastAttemptAt = now
		r.LastError = ""
	case domain.StatusFailed:
		r.LastAttemptAt = now
		r.LastError = errMsg
	}
	r.SyncStatus = status

	if err := q.put(ctx, "set status", r); err != nil {
		return domain.OfflineReport{}, err
	}
	return r, nil
}

// Remove deletes a report. Callers must only remove after a SyncRecord exists
// for it, or through Cancel.
func (q *Queue) Remove(ctx context.Context, localID string) error {
	if err := q.kv.Delete(ctx, key(localID)); err != nil {
		return &domain.StorageError{Op: "remove", Key: key(localID), Err: err}
	}
	return nil
}

// Cancel removes a report on user request. Only pending reports qualify: once
// an attempt has started the remote store may already hold it.
func (q *Queue) Cancel(ctx context.Context, localID string) error {
	r, err := q.Get(ctx, localID)
	if err != nil {
		return err
	}
	if r.SyncStatus.Normalize() != domain.StatusPending {
		return fmt.Errorf("cancel %s (%s): %w", localID, r.SyncStatus, domain.ErrNotCancellable)
	}
	return q.Remove(ctx, localID)
}

func (q *Queue) put(ctx context.Context, op string, r domain.OfflineReport) error {
	data, err := json.Marshal(r)
	if err != nil {
		return &domain.StorageError{Op: op, Key: key(r.LocalID), Err: fmt.Errorf("encode report: %w", err)}
	}
	if err := q.kv.Set(ctx, key(r.LocalID), data); err != nil {
		return &domain.StorageError{Op: op, Key: key(r.LocalID), Err: err}
	}
	return nil
}

func decode(k string, data []byte) (domain.OfflineReport, error) {
	var r domain.OfflineReport
	if err := json.Unmarshal(data, &r); err != nil {
		return domain.OfflineReport{}, &domain.StorageError{Op: "decode", Key: k, Err: err}
	}
	return r, nil
}
