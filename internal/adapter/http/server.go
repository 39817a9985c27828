package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/incident-risk-service/internal/analytics"
	"github.com/couchcryptid/incident-risk-service/internal/domain"
	"github.com/couchcryptid/incident-risk-service/internal/observability"
	"github.com/couchcryptid/incident-risk-service/internal/pipeline"
)

const maxBodyBytes = 1 << 20

// Submitter accepts new reports.
type Submitter interface {
	Submit(ctx context.Context, s domain.Submission) (pipeline.SubmitResult, error)
}

// Queue is the read and cancel view of the local queue.
type Queue interface {
	List(ctx context.Context) ([]domain.OfflineReport, error)
	Cancel(ctx context.Context, localID string) error
	Depth(ctx context.Context) (int, error)
}

// Syncer runs drains and serializes other queue writers against them.
type Syncer interface {
	DrainNow(ctx context.Context) (pipeline.DrainResult, error)
	Exclusive(fn func() error) error
}

// Analytics serves hotspot and risk queries.
type Analytics interface {
	Hotspots(ctx context.Context) ([]analytics.Hotspot, error)
	RiskProfiles(ctx context.Context, period analytics.Period) ([]analytics.RiskProfile, error)
}

// Services are the handlers' collaborators.
type Services struct {
	Submitter     Submitter
	Queue         Queue
	Sync          Syncer
	Analytics     Analytics
	DefaultPeriod analytics.Period

	// Metrics is optional. When set, the queue depth gauge is refreshed
	// after a cancellation.
	Metrics *observability.Metrics
}

// Server exposes the report API plus health, readiness, and metrics endpoints.
type Server struct {
	httpServer *http.Server
	svc        Services
	logger     *slog.Logger
}

// NewServer creates an HTTP server with the /v1 API, /healthz, /readyz, and
// /metrics routes.
func NewServer(addr string, svc Services, ready sharedobs.ReadinessChecker, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	if svc.DefaultPeriod == "" {
		svc.DefaultPeriod = analytics.PeriodMonth
	}
	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		svc:    svc,
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /v1/reports", s.handleSubmit)
	mux.HandleFunc("GET /v1/queue", s.handleListQueue)
	mux.HandleFunc("DELETE /v1/queue/{id}", s.handleCancel)
	mux.HandleFunc("POST /v1/sync", s.handleSync)
	mux.HandleFunc("GET /v1/hotspots", s.handleHotspots)
	mux.HandleFunc("GET /v1/hotspots.geojson", s.handleHotspotsGeoJSON)
	mux.HandleFunc("GET /v1/risk", s.handleRisk)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var sub domain.Submission
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&sub); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body", nil)
		return
	}

	res, err := s.svc.Submitter.Submit(r.Context(), sub)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	status := http.StatusCreated
	if res.Queued {
		status = http.StatusAccepted
	}
	sharedobs.WriteJSON(w, status, res)
}

func (s *Server) handleListQueue(w http.ResponseWriter, r *http.Request) {
	entries, err := s.svc.Queue.List(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if entries == nil {
		entries = []domain.OfflineReport{}
	}
	sharedobs.WriteJSON(w, http.StatusOK, map[string]any{"depth": len(entries), "entries": entries})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := s.svc.Sync.Exclusive(func() error {
		if err := s.svc.Queue.Cancel(r.Context(), id); err != nil {
			return err
		}
		s.refreshDepth(r.Context())
		return nil
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.logger.Info("queued report cancelled", "local_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) refreshDepth(ctx context.Context) {
	if s.svc.Metrics == nil {
		return
	}
	depth, err := s.svc.Queue.Depth(ctx)
	if err != nil {
		s.logger.Warn("read queue depth", "error", err)
		return
	}
	s.svc.Metrics.QueueDepth.Set(float64(depth))
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Sync.DrainNow(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if res.Entries == nil {
		res.Entries = []pipeline.EntryResult{}
	}
	sharedobs.WriteJSON(w, http.StatusOK, res)
}

func (s *Server) handleHotspots(w http.ResponseWriter, r *http.Request) {
	hotspots, err := s.svc.Analytics.Hotspots(r.Context())
	sharedobs.WriteJSON(w, http.StatusOK, map[string]any{
		"hotspots": hotspots,
		"degraded": s.degraded(err),
	})
}

func (s *Server) handleHotspotsGeoJSON(w http.ResponseWriter, r *http.Request) {
	hotspots, err := s.svc.Analytics.Hotspots(r.Context())
	if s.degraded(err) {
		w.Header().Set("X-Analytics-Degraded", "true")
	}
	data, err := analytics.HotspotsGeoJSON(hotspots).MarshalJSON()
	if err != nil {
		s.logger.Error("render hotspots geojson", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error", nil)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleRisk(w http.ResponseWriter, r *http.Request) {
	period := s.svc.DefaultPeriod
	if q := r.URL.Query().Get("period"); q != "" {
		p, err := analytics.ParsePeriod(q)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), nil)
			return
		}
		period = p
	}

	profiles, err := s.svc.Analytics.RiskProfiles(r.Context(), period)
	sharedobs.WriteJSON(w, http.StatusOK, map[string]any{
		"period":   period,
		"areas":    profiles,
		"degraded": s.degraded(err),
	})
}

// degraded reports whether analytics fell back to an empty result. Other
// errors are not expected from the analytics service and are logged.
func (s *Server) degraded(err error) bool {
	if err == nil {
		return false
	}
	var rerr *domain.RemoteReadError
	if !errors.As(err, &rerr) {
		s.logger.Error("analytics query", "error", err)
	}
	return true
}

func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	var (
		verr *domain.ValidationError
		serr *domain.StorageError
	)
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusUnprocessableEntity, "invalid report", verr.Fields)
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found", nil)
	case errors.Is(err, domain.ErrNotCancellable):
		writeError(w, http.StatusConflict, "report is already being synced", nil)
	case errors.As(err, &serr):
		s.logger.Error("local storage failure", "op", serr.Op, "error", err)
		writeError(w, http.StatusServiceUnavailable, "local storage unavailable", nil)
	default:
		s.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error", nil)
	}
}

type errorBody struct {
	Error  string              `json:"error"`
	Fields []domain.FieldError `json:"fields,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string, fields []domain.FieldError) {
	sharedobs.WriteJSON(w, status, errorBody{Error: msg, Fields: fields})
}
