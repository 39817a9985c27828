package analytics

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/incident-risk-service/internal/domain"
	"github.com/couchcryptid/incident-risk-service/internal/observability"
)

const defaultLabelConcurrency = 4

// ReportSource bulk-reads canonical reports from the remote store.
type ReportSource interface {
	FetchReports(ctx context.Context) ([]domain.Report, error)
}

// Geocoder resolves a point to a place label.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lng float64) (domain.Place, error)
}

// Snapshot is one consistent read analysed both ways.
type Snapshot struct {
	GeneratedAt time.Time     `json:"generated_at"`
	Period      Period        `json:"period"`
	Hotspots    []Hotspot     `json:"hotspots"`
	Risk        []RiskProfile `json:"risk"`
}

// Service runs the analyses over the current remote snapshot. Read failures
// never fail the caller outright: the result is empty and the returned error is
// a *domain.RemoteReadError the caller may log or surface as degraded.
type Service struct {
	source   ReportSource
	geocoder Geocoder
	clock    clockwork.Clock
	logger   *slog.Logger
	metrics  *observability.Metrics

	labelConcurrency int
}

// NewService wires a Service. geocoder may be nil to skip hotspot labels.
func NewService(src ReportSource, geocoder Geocoder, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{
		source:           src,
		geocoder:         geocoder,
		clock:            clock,
		logger:           logger,
		metrics:          metrics,
		labelConcurrency: defaultLabelConcurrency,
	}
}

// Hotspots returns the current hotspots, labelled when a geocoder is set.
func (s *Service) Hotspots(ctx context.Context) ([]Hotspot, error) {
	reports, err := s.fetch(ctx)
	if err != nil {
		return []Hotspot{}, err
	}
	return s.hotspots(ctx, reports, s.clock.Now()), nil
}

// RiskProfiles returns the top barangays for period.
func (s *Service) RiskProfiles(ctx context.Context, period Period) ([]RiskProfile, error) {
	reports, err := s.fetch(ctx)
	if err != nil {
		return []RiskProfile{}, err
	}
	return AnalyzeRisk(reports, s.clock.Now(), period), nil
}

// Snapshot reads once and runs both analyses against the same reports.
func (s *Service) Snapshot(ctx context.Context, period Period) (Snapshot, error) {
	now := s.clock.Now()
	snap := Snapshot{
		GeneratedAt: now.UTC(),
		Period:      period,
		Hotspots:    []Hotspot{},
		Risk:        []RiskProfile{},
	}

	reports, err := s.fetch(ctx)
	if err != nil {
		return snap, err
	}
	snap.Hotspots = s.hotspots(ctx, reports, now)
	snap.Risk = AnalyzeRisk(reports, now, period)
	return snap, nil
}

func (s *Service) fetch(ctx context.Context) ([]domain.Report, error) {
	reports, err := s.source.FetchReports(ctx)
	if err != nil {
		s.metrics.AnalyticsReadErrors.Inc()
		s.logger.Warn("analytics read failed, returning empty result", "error", err)
		return nil, &domain.RemoteReadError{Err: err}
	}
	return reports, nil
}

func (s *Service) hotspots(ctx context.Context, reports []domain.Report, now time.Time) []Hotspot {
	out := DetectHotspots(reports, now)
	s.metrics.Hotspots.Set(float64(len(out)))
	if s.geocoder != nil && len(out) > 0 {
		s.label(ctx, out)
	}
	return out
}

// label fills Hotspot.Label in place. Lookup failures leave the label empty.
func (s *Service) label(ctx context.Context, hotspots []Hotspot) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.labelConcurrency)

	for i := range hotspots {
		g.Go(func() error {
			c := hotspots[i].Center
			place, err := s.geocoder.ReverseGeocode(gctx, c.Lat, c.Lng)
			if err != nil {
				s.logger.Debug("hotspot label lookup failed", "lat", c.Lat, "lng", c.Lng, "error", err)
				return nil
			}
			hotspots[i].Label = place.Name
			return nil
		})
	}
	_ = g.Wait()
}
