package mapbox

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/couchcryptid/incident-risk-service/internal/analytics"
	"github.com/couchcryptid/incident-risk-service/internal/domain"
	"github.com/couchcryptid/incident-risk-service/internal/observability"
)

// CachedGeocoder wraps a Geocoder with a bounded in-memory cache keyed by the
// point rounded to six decimals. Hotspot centroids are fixed per grid cell, so
// repeat analyses hit the cache.
type CachedGeocoder struct {
	inner   analytics.Geocoder
	cache   *ristretto.Cache[string, domain.Place]
	metrics *observability.Metrics
}

// NewCachedGeocoder creates a cache decorator holding up to maxEntries places.
func NewCachedGeocoder(inner analytics.Geocoder, maxEntries int, metrics *observability.Metrics) (*CachedGeocoder, error) {
	if maxEntries <= 0 {
		return nil, fmt.Errorf("geocode cache size must be positive, got %d", maxEntries)
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, domain.Place]{
		NumCounters: int64(maxEntries) * 10,
		MaxCost:     int64(maxEntries),
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create geocode cache: %w", err)
	}
	return &CachedGeocoder{inner: inner, cache: cache, metrics: metrics}, nil
}

func (c *CachedGeocoder) ReverseGeocode(ctx context.Context, lat, lng float64) (domain.Place, error) {
	key := fmt.Sprintf("rev:%.6f,%.6f", lat, lng)
	if place, ok := c.cache.Get(key); ok {
		c.metrics.GeocodeCache.WithLabelValues("hit").Inc()
		return place, nil
	}
	c.metrics.GeocodeCache.WithLabelValues("miss").Inc()

	place, err := c.inner.ReverseGeocode(ctx, lat, lng)
	if err != nil {
		return place, err
	}
	// Only cache named places so transient "not found" answers can be retried.
	if place.Name != "" {
		c.cache.Set(key, place, 1)
	}
	return place, nil
}

// Wait blocks until pending cache writes are visible to Get.
func (c *CachedGeocoder) Wait() { c.cache.Wait() }

// Close releases the cache's background goroutines.
func (c *CachedGeocoder) Close() { c.cache.Close() }
