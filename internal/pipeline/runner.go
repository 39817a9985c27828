package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

// Drainer runs one drain pass.
type Drainer interface {
	Drain(ctx context.Context) (DrainResult, error)
}

// Runner decides when to drain: once at start (picking up whatever a previous
// process left behind), on every tick, and whenever Trigger is called. It also
// serializes all queue writers so the queue keeps a single writer.
type Runner struct {
	drainer  Drainer
	interval time.Duration
	clock    clockwork.Clock
	logger   *slog.Logger

	mu      sync.Mutex
	trigger chan struct{}
	ready   atomic.Bool
}

// NewRunner creates a Runner. A nil clock uses real time.
func NewRunner(d Drainer, interval time.Duration, clock clockwork.Clock, logger *slog.Logger) *Runner {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Runner{
		drainer:  d,
		interval: interval,
		clock:    clock,
		logger:   logger,
		trigger:  make(chan struct{}, 1),
	}
}

// Trigger requests a drain as soon as the loop is free, e.g. on reconnect.
// Requests made while one is already pending are coalesced.
func (r *Runner) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// CheckReadiness returns nil once a drain pass has completed.
func (r *Runner) CheckReadiness(_ context.Context) error {
	if !r.ready.Load() {
		return errors.New("no drain pass has completed yet")
	}
	return nil
}

// DrainNow runs a pass immediately, waiting for any pass already in progress.
func (r *Runner) DrainNow(ctx context.Context) (DrainResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.drainer.Drain(ctx)
	if err == nil {
		r.ready.Store(true)
	}
	return res, err
}

// Exclusive runs fn while no drain is in progress. Used for queue writes that
// must not interleave with a pass, such as cancellation.
func (r *Runner) Exclusive(fn func() error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn()
}

// Run drives the loop until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("drain runner started", "interval", r.interval)

	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	r.drainOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("drain runner stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
			r.drainOnce(ctx)
		case <-r.trigger:
			r.drainOnce(ctx)
		}
	}
}

func (r *Runner) drainOnce(ctx context.Context) {
	if _, err := r.DrainNow(ctx); err != nil && ctx.Err() == nil {
		r.logger.Error("drain pass failed", "error", err)
	}
}
