package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/incident-risk-service/internal/domain"
	"github.com/couchcryptid/incident-risk-service/internal/observability"
)

// Enqueuer stores a submission for a later drain under a caller-chosen local id.
type Enqueuer interface {
	EnqueueAs(ctx context.Context, localID string, s domain.Submission) error
}

// Pinger reports whether the remote store is reachable right now.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SubmitResult says where a submission ended up.
type SubmitResult struct {
	LocalID  string `json:"local_id"`
	RemoteID string `json:"remote_id,omitempty"`
	Queued   bool   `json:"queued"`
}

// Submitter accepts new reports. It commits directly when it can and falls
// back to the local queue otherwise.
type Submitter struct {
	committer Committer
	queue     Enqueuer
	pinger    Pinger
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewSubmitter wires a Submitter. pinger may be nil, in which case every
// submission gets one direct commit attempt.
func NewSubmitter(c Committer, q Enqueuer, pinger Pinger, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Submitter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Submitter{
		committer: c,
		queue:     q,
		pinger:    pinger,
		clock:     clock,
		logger:    logger,
		metrics:   metrics,
	}
}

// Submit validates s, then commits it or queues it. A *domain.ValidationError
// means nothing was stored; a *domain.StorageError means the report could be
// neither committed nor queued.
func (s *Submitter) Submit(ctx context.Context, sub domain.Submission) (SubmitResult, error) {
	if err := sub.Validate(); err != nil {
		s.metrics.ValidationErrors.Inc()
		return SubmitResult{}, err
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = s.clock.Now().UTC()
	}

	id, err := uuid.NewV7()
	if err != nil {
		return SubmitResult{}, &domain.StorageError{Op: "submit", Err: err}
	}
	localID := id.String()

	if s.reachable(ctx) {
		remoteID, err := s.committer.Commit(ctx, domain.OfflineReport{
			LocalID:    localID,
			Submission: sub,
			SyncStatus: domain.StatusSyncing,
			Attempts:   1,
		})
		if err == nil {
			s.metrics.ReportsSubmitted.WithLabelValues("direct").Inc()
			return SubmitResult{LocalID: localID, RemoteID: remoteID}, nil
		}
		s.logger.Warn("direct commit failed, queueing report", "local_id", localID, "error", err)
	}

	// The same local id is reused so a commit that landed despite an error is
	// deduplicated by the remote store on retry.
	if err := s.queue.EnqueueAs(ctx, localID, sub); err != nil {
		var serr *domain.StorageError
		if !errors.As(err, &serr) {
			err = &domain.StorageError{Op: "enqueue", Err: err}
		}
		return SubmitResult{}, err
	}
	s.metrics.ReportsSubmitted.WithLabelValues("queued").Inc()
	s.metrics.QueueDepth.Inc()
	s.logger.Info("report queued", "local_id", localID, "barangay", sub.Barangay)
	return SubmitResult{LocalID: localID, Queued: true}, nil
}

func (s *Submitter) reachable(ctx context.Context) bool {
	if s.pinger == nil {
		return true
	}
	if err := s.pinger.Ping(ctx); err != nil {
		s.logger.Debug("remote store unreachable", "error", err)
		return false
	}
	return true
}
