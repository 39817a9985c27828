package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/couchcryptid/incident-risk-service/internal/adapter/http"
	"github.com/couchcryptid/incident-risk-service/internal/analytics"
	"github.com/couchcryptid/incident-risk-service/internal/domain"
	"github.com/couchcryptid/incident-risk-service/internal/observability"
	"github.com/couchcryptid/incident-risk-service/internal/pipeline"
)

// --- fakes ---

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type fakeSubmitter struct {
	res pipeline.SubmitResult
	err error
	got domain.Submission
}

func (f *fakeSubmitter) Submit(_ context.Context, s domain.Submission) (pipeline.SubmitResult, error) {
	f.got = s
	return f.res, f.err
}

type fakeQueue struct {
	entries   []domain.OfflineReport
	cancelErr error
	cancelled []string
}

func (f *fakeQueue) List(context.Context) ([]domain.OfflineReport, error) { return f.entries, nil }

func (f *fakeQueue) Cancel(_ context.Context, id string) error {
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.cancelled = append(f.cancelled, id)
	for i, e := range f.entries {
		if e.LocalID == id {
			f.entries = append(f.entries[:i], f.entries[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeQueue) Depth(context.Context) (int, error) { return len(f.entries), nil }

type fakeSyncer struct {
	res        pipeline.DrainResult
	err        error
	exclusives int
}

func (f *fakeSyncer) DrainNow(context.Context) (pipeline.DrainResult, error) { return f.res, f.err }

func (f *fakeSyncer) Exclusive(fn func() error) error {
	f.exclusives++
	return fn()
}

type fakeAnalytics struct {
	hotspots   []analytics.Hotspot
	profiles   []analytics.RiskProfile
	err        error
	lastPeriod analytics.Period
}

func (f *fakeAnalytics) Hotspots(context.Context) ([]analytics.Hotspot, error) {
	return f.hotspots, f.err
}

func (f *fakeAnalytics) RiskProfiles(_ context.Context, p analytics.Period) ([]analytics.RiskProfile, error) {
	f.lastPeriod = p
	return f.profiles, f.err
}

type harness struct {
	srv       *httpadapter.Server
	submitter *fakeSubmitter
	queue     *fakeQueue
	sync      *fakeSyncer
	analytics *fakeAnalytics
	metrics   *observability.Metrics
}

func newHarness(readyErr error) *harness {
	h := &harness{
		submitter: &fakeSubmitter{},
		queue:     &fakeQueue{},
		sync:      &fakeSyncer{},
		analytics: &fakeAnalytics{},
		metrics:   observability.NewMetricsForTesting(),
	}
	h.srv = httpadapter.NewServer(":0", httpadapter.Services{
		Submitter: h.submitter,
		Queue:     h.queue,
		Sync:      h.sync,
		Analytics: h.analytics,
		Metrics:   h.metrics,
	}, &mockReadiness{err: readyErr}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return h
}

func (h *harness) do(method, target, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	h.srv.ServeHTTP(rec, httptest.NewRequest(method, target, r))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

// --- health ---

func TestHealthzReturns200(t *testing.T) {
	rec := newHarness(nil).do(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	rec := newHarness(nil).do(http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	rec := newHarness(fmt.Errorf("no drain pass has completed yet")).do(http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	rec := newHarness(nil).do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAllReady(t *testing.T) {
	ctx := context.Background()
	assert.NoError(t, httpadapter.AllReady(&mockReadiness{}, &mockReadiness{}).CheckReadiness(ctx))
	err := httpadapter.AllReady(&mockReadiness{}, &mockReadiness{err: errors.New("db down")}).CheckReadiness(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}

// --- reports ---

const validBody = `{"barangay":"San Roque","description":"Flooded","incident_type":"flood",
	"location":{"lat":14.65,"lng":121.1},"submitted_by":"user-7"}`

func TestSubmit_DirectReturns201(t *testing.T) {
	h := newHarness(nil)
	h.submitter.res = pipeline.SubmitResult{LocalID: "l-1", RemoteID: "42"}

	rec := h.do(http.MethodPost, "/v1/reports", validBody)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "42", decode(t, rec)["remote_id"])
	assert.Equal(t, "San Roque", h.submitter.got.Barangay)
	assert.InDelta(t, 121.1, h.submitter.got.Location.Lng, 1e-9)
}

func TestSubmit_QueuedReturns202(t *testing.T) {
	h := newHarness(nil)
	h.submitter.res = pipeline.SubmitResult{LocalID: "l-1", Queued: true}

	rec := h.do(http.MethodPost, "/v1/reports", validBody)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, true, decode(t, rec)["queued"])
}

func TestSubmit_ValidationReturns422WithFields(t *testing.T) {
	h := newHarness(nil)
	h.submitter.err = &domain.ValidationError{Fields: []domain.FieldError{{Field: "barangay", Rule: "required"}}}

	rec := h.do(http.MethodPost, "/v1/reports", validBody)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	fields := decode(t, rec)["fields"].([]any)
	require.Len(t, fields, 1)
	assert.Equal(t, "barangay", fields[0].(map[string]any)["field"])
}

func TestSubmit_MalformedBody(t *testing.T) {
	rec := newHarness(nil).do(http.MethodPost, "/v1/reports", `{"barangay":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmit_StorageFailureReturns503(t *testing.T) {
	h := newHarness(nil)
	h.submitter.err = &domain.StorageError{Op: "enqueue", Err: errors.New("disk full")}

	rec := h.do(http.MethodPost, "/v1/reports", validBody)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

// --- queue ---

func TestListQueue(t *testing.T) {
	h := newHarness(nil)
	h.queue.entries = []domain.OfflineReport{{LocalID: "l-1", SyncStatus: domain.StatusFailed, Attempts: 2}}

	rec := h.do(http.MethodGet, "/v1/queue", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.InDelta(t, 1, body["depth"], 0)
	entry := body["entries"].([]any)[0].(map[string]any)
	assert.Equal(t, "failed", entry["sync_status"])
}

func TestListQueue_EmptyIsArray(t *testing.T) {
	rec := newHarness(nil).do(http.MethodGet, "/v1/queue", "")
	assert.JSONEq(t, `{"depth":0,"entries":[]}`, rec.Body.String())
}

func TestCancel(t *testing.T) {
	h := newHarness(nil)

	rec := h.do(http.MethodDelete, "/v1/queue/l-9", "")

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"l-9"}, h.queue.cancelled)
	assert.Equal(t, 1, h.sync.exclusives)
}

func TestCancel_RefreshesQueueDepth(t *testing.T) {
	h := newHarness(nil)
	h.queue.entries = []domain.OfflineReport{{LocalID: "l-1"}, {LocalID: "l-2"}}
	h.metrics.QueueDepth.Set(2)

	rec := h.do(http.MethodDelete, "/v1/queue/l-1", "")

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.InDelta(t, 1, testutil.ToFloat64(h.metrics.QueueDepth), 0)
}

func TestCancel_FailureLeavesQueueDepth(t *testing.T) {
	h := newHarness(nil)
	h.queue.entries = []domain.OfflineReport{{LocalID: "l-1"}}
	h.queue.cancelErr = fmt.Errorf("cancel l-1: %w", domain.ErrNotCancellable)
	h.metrics.QueueDepth.Set(5)

	h.do(http.MethodDelete, "/v1/queue/l-1", "")

	assert.InDelta(t, 5, testutil.ToFloat64(h.metrics.QueueDepth), 0)
}

func TestCancel_ErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("queue entry x: %w", domain.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("cancel x: %w", domain.ErrNotCancellable), http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		h := newHarness(nil)
		h.queue.cancelErr = tt.err
		rec := h.do(http.MethodDelete, "/v1/queue/x", "")
		assert.Equal(t, tt.want, rec.Code, tt.err.Error())
	}
}

func TestSync(t *testing.T) {
	h := newHarness(nil)
	h.sync.res = pipeline.DrainResult{
		Entries:   []pipeline.EntryResult{{LocalID: "l-1", RemoteID: "42", Outcome: pipeline.OutcomeCommitted}},
		Committed: 1,
	}

	rec := h.do(http.MethodPost, "/v1/sync", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.InDelta(t, 1, body["committed"], 0)
	assert.Equal(t, "committed", body["entries"].([]any)[0].(map[string]any)["outcome"])
}

func TestSync_QueueUnreadable(t *testing.T) {
	h := newHarness(nil)
	h.sync.err = &domain.StorageError{Op: "list", Err: errors.New("corrupt")}

	rec := h.do(http.MethodPost, "/v1/sync", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

// --- analytics ---

func TestHotspots(t *testing.T) {
	h := newHarness(nil)
	key := analytics.GridKey{Row: 14650, Col: 121102}
	h.analytics.hotspots = []analytics.Hotspot{{Key: key, Center: key.Centroid(), Count: 2, RiskLevel: analytics.RiskLow, Radius: 84.85}}

	rec := h.do(http.MethodGet, "/v1/hotspots", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, false, body["degraded"])
	assert.Len(t, body["hotspots"], 1)
}

func TestHotspots_DegradedOnReadFailure(t *testing.T) {
	h := newHarness(nil)
	h.analytics.hotspots = []analytics.Hotspot{}
	h.analytics.err = &domain.RemoteReadError{Err: errors.New("timeout")}

	rec := h.do(http.MethodGet, "/v1/hotspots", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"hotspots":[],"degraded":true}`, rec.Body.String())
}

func TestHotspotsGeoJSON(t *testing.T) {
	h := newHarness(nil)
	key := analytics.GridKey{Row: 14650, Col: 121102}
	h.analytics.hotspots = []analytics.Hotspot{{Key: key, Center: key.Centroid(), Count: 2, RiskLevel: analytics.RiskLow}}

	rec := h.do(http.MethodGet, "/v1/hotspots.geojson", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/geo+json", rec.Header().Get("Content-Type"))
	body := decode(t, rec)
	assert.Equal(t, "FeatureCollection", body["type"])
	assert.Len(t, body["features"], 1)
}

func TestRisk_DefaultAndExplicitPeriod(t *testing.T) {
	h := newHarness(nil)
	h.analytics.profiles = []analytics.RiskProfile{{Barangay: "San Roque", TotalCount: 3}}

	rec := h.do(http.MethodGet, "/v1/risk", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, analytics.PeriodMonth, h.analytics.lastPeriod)

	rec = h.do(http.MethodGet, "/v1/risk?period=day", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, analytics.PeriodDay, h.analytics.lastPeriod)
	assert.Equal(t, "day", decode(t, rec)["period"])
}

func TestRisk_BadPeriod(t *testing.T) {
	rec := newHarness(nil).do(http.MethodGet, "/v1/risk?period=fortnight", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
