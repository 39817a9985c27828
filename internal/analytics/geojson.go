package analytics

import (
	geojson "github.com/paulmach/go.geojson"
)

// HotspotsGeoJSON renders hotspots as Point features at their cell centroids,
// each with the cell bounds as its bbox.
func HotspotsGeoJSON(hotspots []Hotspot) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, h := range hotspots {
		f := geojson.NewPointFeature([]float64{h.Center.Lng, h.Center.Lat})

		b := CellBounds(h.Key)
		f.BoundingBox = []float64{
			b.Lo().Lng.Degrees(), b.Lo().Lat.Degrees(),
			b.Hi().Lng.Degrees(), b.Hi().Lat.Degrees(),
		}

		f.SetProperty("count", h.Count)
		f.SetProperty("risk_level", string(h.RiskLevel))
		f.SetProperty("radius", h.Radius)
		f.SetProperty("report_ids", h.ReportIDs)
		if h.Label != "" {
			f.SetProperty("label", h.Label)
		}
		fc.AddFeature(f)
	}
	return fc
}
