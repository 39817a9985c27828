package domain

import (
	"math"

	"github.com/golang/geo/s2"
)

// Coordinates is a WGS-84 latitude/longitude pair in degrees.
type Coordinates struct {
	Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lng float64 `json:"lng" validate:"gte=-180,lte=180"`
}

// Valid reports whether the pair is a usable fix: both components non-zero,
// finite, and inside the WGS-84 range.
func (c Coordinates) Valid() bool {
	if c.Lat == 0 || c.Lng == 0 {
		return false
	}
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lng) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lng, 0) {
		return false
	}
	return c.LatLng().IsValid()
}

// LatLng converts to an s2 point for geometry helpers.
func (c Coordinates) LatLng() s2.LatLng {
	return s2.LatLngFromDegrees(c.Lat, c.Lng)
}

// Place is a reverse-geocoded label for a point.
type Place struct {
	Name      string  `json:"name"`
	Address   string  `json:"address"`
	Relevance float64 `json:"relevance"`
}
