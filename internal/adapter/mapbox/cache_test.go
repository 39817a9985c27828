package mapbox

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/incident-risk-service/internal/domain"
	"github.com/couchcryptid/incident-risk-service/internal/observability"
)

type countingGeocoder struct {
	calls int
	place domain.Place
	err   error
}

func (m *countingGeocoder) ReverseGeocode(context.Context, float64, float64) (domain.Place, error) {
	m.calls++
	return m.place, m.err
}

func newCached(t *testing.T, inner *countingGeocoder) (*CachedGeocoder, *observability.Metrics) {
	t.Helper()
	m := observability.NewMetricsForTesting()
	c, err := NewCachedGeocoder(inner, 100, m)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c, m
}

func TestCachedGeocoder_CacheHit(t *testing.T) {
	inner := &countingGeocoder{place: domain.Place{Name: "San Roque"}}
	cached, m := newCached(t, inner)
	ctx := context.Background()

	p1, err := cached.ReverseGeocode(ctx, 14.6505, 121.1025)
	require.NoError(t, err)
	cached.Wait()

	p2, err := cached.ReverseGeocode(ctx, 14.6505, 121.1025)
	require.NoError(t, err)

	assert.Equal(t, p1, p2)
	assert.Equal(t, 1, inner.calls, "second lookup should be served from cache")
	assert.InDelta(t, 1, testutil.ToFloat64(m.GeocodeCache.WithLabelValues("hit")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.GeocodeCache.WithLabelValues("miss")), 0)
}

func TestCachedGeocoder_DistinctPoints(t *testing.T) {
	inner := &countingGeocoder{place: domain.Place{Name: "Somewhere"}}
	cached, _ := newCached(t, inner)
	ctx := context.Background()

	_, err := cached.ReverseGeocode(ctx, 14.6505, 121.1025)
	require.NoError(t, err)
	cached.Wait()
	_, err = cached.ReverseGeocode(ctx, 14.6515, 121.1025)
	require.NoError(t, err)

	assert.Equal(t, 2, inner.calls)
}

func TestCachedGeocoder_EmptyResultNotCached(t *testing.T) {
	inner := &countingGeocoder{}
	cached, _ := newCached(t, inner)
	ctx := context.Background()

	_, err := cached.ReverseGeocode(ctx, 1.5, 1.5)
	require.NoError(t, err)
	cached.Wait()
	_, err = cached.ReverseGeocode(ctx, 1.5, 1.5)
	require.NoError(t, err)

	assert.Equal(t, 2, inner.calls)
}

func TestCachedGeocoder_ErrorPassedThrough(t *testing.T) {
	inner := &countingGeocoder{err: errors.New("rate limited")}
	cached, _ := newCached(t, inner)

	_, err := cached.ReverseGeocode(context.Background(), 14.6505, 121.1025)
	require.Error(t, err)
}

func TestNewCachedGeocoder_RejectsNonPositiveSize(t *testing.T) {
	_, err := NewCachedGeocoder(&countingGeocoder{}, 0, observability.NewMetricsForTesting())
	require.Error(t, err)
}
