// Package analytics derives hotspots and per-barangay risk profiles from
// canonical reports. DetectHotspots and AnalyzeRisk are pure functions of
// their inputs; Service adds remote reads and optional place labels.
package analytics

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/golang/geo/s2"

	"github.com/couchcryptid/incident-risk-service/internal/domain"
)

const (
	// CellSize is the grid cell edge in degrees (roughly 110 m of latitude).
	CellSize = 0.001
	// HotspotWindow is how far back reports count towards a hotspot.
	HotspotWindow = 30 * 24 * time.Hour
	// HotspotThreshold is the minimum cell population for a hotspot.
	HotspotThreshold = 2

	radiusPerSqrtReport = 60.0
	minRadius           = 50.0
	maxRadius           = 150.0
)

// RiskLevel is a coarse severity bucket shared by hotspots and risk profiles.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// GridKey identifies a grid cell by its integer row and column.
type GridKey struct {
	Row int64 `json:"row"`
	Col int64 `json:"col"`
}

// KeyFor quantizes c to the cell containing it.
func KeyFor(c domain.Coordinates) GridKey {
	return GridKey{
		Row: int64(math.Floor(c.Lat / CellSize)),
		Col: int64(math.Floor(c.Lng / CellSize)),
	}
}

func (k GridKey) String() string { return fmt.Sprintf("%d:%d", k.Row, k.Col) }

// Centroid is the fixed display point of a cell: its lower-left corner offset
// by half a cell.
func (k GridKey) Centroid() domain.Coordinates {
	return domain.Coordinates{
		Lat: float64(k.Row)*CellSize + CellSize/2,
		Lng: float64(k.Col)*CellSize + CellSize/2,
	}
}

// CellBounds returns the cell as an s2 lat/lng rectangle.
func CellBounds(k GridKey) s2.Rect {
	lo := s2.LatLngFromDegrees(float64(k.Row)*CellSize, float64(k.Col)*CellSize)
	hi := s2.LatLngFromDegrees(float64(k.Row+1)*CellSize, float64(k.Col+1)*CellSize)
	return s2.RectFromLatLng(lo).AddPoint(hi)
}

// Hotspot is a grid cell dense enough to flag on the map.
type Hotspot struct {
	Key       GridKey            `json:"key"`
	Center    domain.Coordinates `json:"center"`
	Count     int                `json:"count"`
	RiskLevel RiskLevel          `json:"risk_level"`
	Radius    float64            `json:"radius"`
	ReportIDs []string           `json:"report_ids"`
	Label     string             `json:"label,omitempty"`
}

// DetectHotspots groups eligible reports into grid cells and returns the cells
// holding at least HotspotThreshold of them, most populated first. Cells with
// equal counts keep the order in which they were first seen.
//
// Eligible reports are verified, not sensitive, carry a valid fix, and fall
// within [now-HotspotWindow, now].
func DetectHotspots(reports []domain.Report, now time.Time) []Hotspot {
	since := now.Add(-HotspotWindow)

	var order []GridKey
	members := make(map[GridKey][]string)
	for _, r := range reports {
		if !hotspotEligible(r, since, now) {
			continue
		}
		k := KeyFor(r.Location)
		if _, seen := members[k]; !seen {
			order = append(order, k)
		}
		members[k] = append(members[k], r.ID)
	}

	out := make([]Hotspot, 0, len(order))
	for _, k := range order {
		ids := members[k]
		if len(ids) < HotspotThreshold {
			continue
		}
		out = append(out, Hotspot{
			Key:       k,
			Center:    k.Centroid(),
			Count:     len(ids),
			RiskLevel: hotspotLevel(len(ids)),
			Radius:    hotspotRadius(len(ids)),
			ReportIDs: ids,
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}

func hotspotEligible(r domain.Report, since, now time.Time) bool {
	if r.Status != domain.ReportVerified || r.Sensitive {
		return false
	}
	if !r.Location.Valid() {
		return false
	}
	return !r.Timestamp.Before(since) && !r.Timestamp.After(now)
}

func hotspotLevel(count int) RiskLevel {
	switch {
	case count >= 5:
		return RiskHigh
	case count >= 3:
		return RiskMedium
	default:
		return RiskLow
	}
}

func hotspotRadius(count int) float64 {
	return clamp(math.Sqrt(float64(count))*radiusPerSqrtReport, minRadius, maxRadius)
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
