package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/incident-risk-service/internal/domain"
	"github.com/couchcryptid/incident-risk-service/internal/observability"
)

// interruptedAttempt is recorded when a drain finds an entry left in syncing by
// a previous process and no ledger record proving the commit landed.
const interruptedAttempt = "previous attempt interrupted before confirmation"

// Committer writes a report to the remote store and returns its remote id.
// Implementations should treat LocalID as an idempotency key.
type Committer interface {
	Commit(ctx context.Context, report domain.OfflineReport) (string, error)
}

// Queue is the local submission queue as seen by the coordinator.
type Queue interface {
	List(ctx context.Context) ([]domain.OfflineReport, error)
	SetStatus(ctx context.Context, localID string, status domain.SyncStatus, errMsg string) (domain.OfflineReport, error)
	Remove(ctx context.Context, localID string) error
	Depth(ctx context.Context) (int, error)
}

// Ledger records confirmed commits.
type Ledger interface {
	Lookup(ctx context.Context, localID string) (domain.SyncRecord, bool, error)
	RecordCommit(ctx context.Context, localID, remoteID string, at time.Time, attempts int) error
}

// Outcome is the result of syncing one queue entry.
type Outcome string

const (
	OutcomeCommitted        Outcome = "committed"
	OutcomeAlreadyCommitted Outcome = "already_committed"
	OutcomeFailed           Outcome = "failed"
)

// EntryResult is the per-entry outcome of a drain pass.
type EntryResult struct {
	LocalID  string  `json:"local_id"`
	RemoteID string  `json:"remote_id,omitempty"`
	Outcome  Outcome `json:"outcome"`
	Error    string  `json:"error,omitempty"`
	Err      error   `json:"-"`
}

// DrainResult summarizes a drain pass.
type DrainResult struct {
	Entries          []EntryResult `json:"entries"`
	Committed        int           `json:"committed"`
	AlreadyCommitted int           `json:"already_committed"`
	Failed           int           `json:"failed"`
}

func (r *DrainResult) add(e EntryResult) {
	r.Entries = append(r.Entries, e)
	switch e.Outcome {
	case OutcomeCommitted:
		r.Committed++
	case OutcomeAlreadyCommitted:
		r.AlreadyCommitted++
	case OutcomeFailed:
		r.Failed++
	}
}

// Coordinator drains the local queue into the remote store with at most one
// effective remote write per local id. It has no timer of its own; callers
// decide when to call Drain.
type Coordinator struct {
	queue     Queue
	ledger    Ledger
	committer Committer
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewCoordinator wires a Coordinator. A nil clock uses real time.
func NewCoordinator(q Queue, l Ledger, c Committer, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Coordinator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Coordinator{
		queue:     q,
		ledger:    l,
		committer: c,
		clock:     clock,
		logger:    logger,
		metrics:   metrics,
	}
}

// Drain processes every queued entry, oldest first. One entry's failure never
// stops the pass; remote commit errors are reported in the result, not
// returned. The returned error is non-nil only when the queue cannot be read.
func (c *Coordinator) Drain(ctx context.Context) (DrainResult, error) {
	start := c.clock.Now()

	entries, err := c.queue.List(ctx)
	if err != nil {
		return DrainResult{}, fmt.Errorf("list queue: %w", err)
	}

	var result DrainResult
	for _, entry := range entries {
		// Coarse abandonment only: an in-flight commit is never interrupted here.
		if ctx.Err() != nil {
			c.logger.Info("drain abandoned", "reason", ctx.Err(), "remaining", len(entries)-len(result.Entries))
			break
		}
		res := c.syncEntry(ctx, entry)
		result.add(res)
		c.metrics.SyncOutcomes.WithLabelValues(string(res.Outcome)).Inc()
	}

	if depth, err := c.queue.Depth(ctx); err == nil {
		c.metrics.QueueDepth.Set(float64(depth))
	}
	c.metrics.DrainPasses.Inc()
	c.metrics.DrainDuration.Observe(c.clock.Since(start).Seconds())

	if len(entries) > 0 {
		c.logger.Info("drain finished",
			"entries", len(entries),
			"committed", result.Committed,
			"already_committed", result.AlreadyCommitted,
			"failed", result.Failed,
		)
	}
	return result, nil
}

// syncEntry runs one entry through: ledger check -> syncing -> commit ->
// record -> synced -> remove. Each step is persisted before the next starts.
func (c *Coordinator) syncEntry(ctx context.Context, entry domain.OfflineReport) EntryResult {
	res := EntryResult{LocalID: entry.LocalID}

	rec, ok, err := c.ledger.Lookup(ctx, entry.LocalID)
	if err != nil {
		return c.failed(res, err)
	}
	if ok {
		// Committed by an earlier pass that crashed before cleanup.
		return c.cleanup(ctx, entry, rec.RemoteID, OutcomeAlreadyCommitted)
	}

	switch entry.SyncStatus.Normalize() {
	case domain.StatusSynced:
		return c.failed(res, errors.New("entry marked synced without a ledger record"))
	case domain.StatusSyncing:
		c.logger.Warn("recovering interrupted sync attempt", "local_id", entry.LocalID, "attempts", entry.Attempts)
		if _, err := c.queue.SetStatus(ctx, entry.LocalID, domain.StatusFailed, interruptedAttempt); err != nil {
			return c.failed(res, err)
		}
	}

	entry, err = c.queue.SetStatus(ctx, entry.LocalID, domain.StatusSyncing, "")
	if err != nil {
		return c.failed(res, err)
	}

	remoteID, err := c.committer.Commit(ctx, entry)
	if err != nil {
		cerr := &domain.RemoteCommitError{LocalID: entry.LocalID, Err: err}
		if _, serr := c.queue.SetStatus(ctx, entry.LocalID, domain.StatusFailed, err.Error()); serr != nil {
			c.logger.Error("record failed attempt", "local_id", entry.LocalID, "error", serr)
		}
		c.logger.Warn("remote commit failed", "local_id", entry.LocalID, "attempts", entry.Attempts, "error", err)
		return c.failed(res, cerr)
	}

	if err := c.ledger.RecordCommit(ctx, entry.LocalID, remoteID, c.clock.Now(), entry.Attempts); err != nil {
		// The remote write landed but cannot be proven. The entry stays in
		// syncing; the next pass retries and relies on the remote side
		// deduplicating by local id.
		c.logger.Error("record commit in ledger", "local_id", entry.LocalID, "remote_id", remoteID, "error", err)
		res.RemoteID = remoteID
		return c.failed(res, err)
	}

	return c.cleanup(ctx, entry, remoteID, OutcomeCommitted)
}

// cleanup retires a committed entry. Failures are logged only: the ledger
// already proves the commit, so the next pass finishes the job.
func (c *Coordinator) cleanup(ctx context.Context, entry domain.OfflineReport, remoteID string, outcome Outcome) EntryResult {
	if entry.SyncStatus == domain.StatusSyncing {
		if _, err := c.queue.SetStatus(ctx, entry.LocalID, domain.StatusSynced, ""); err != nil {
			c.logger.Warn("mark synced", "local_id", entry.LocalID, "error", err)
		}
	}
	if err := c.queue.Remove(ctx, entry.LocalID); err != nil {
		c.logger.Warn("remove synced entry", "local_id", entry.LocalID, "error", err)
	}
	c.logger.Debug("report synced", "local_id", entry.LocalID, "remote_id", remoteID, "outcome", outcome)
	return EntryResult{LocalID: entry.LocalID, RemoteID: remoteID, Outcome: outcome}
}

func (c *Coordinator) failed(res EntryResult, err error) EntryResult {
	res.Outcome = OutcomeFailed
	res.Err = err
	res.Error = err.Error()
	return res
}
