package api

import (
	"github.com/alertflow/alertflow/internal/models"
)

type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}
type Feature struct {
	Type       string         `json:"type"`
	Geometry   Geometry       `json:"geometry"`
	Properties map[string]any `json:"properties"`
}
type Geometry struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

// toGeoJSON renders alerts as point features. Alerts without a coordinate
// fix cannot be placed on a map and are skipped.
func toGeoJSON(alerts []models.Alert) FeatureCollection {
	features := make([]Feature, 0, len(alerts))

	for _, a := range alerts {
		if !a.HasCoordinates() {
			continue
		}
		f := Feature{
			Type: "Feature",
			Geometry: Geometry{
				Type:        "Point",
				Coordinates: []float64{*a.Longitude, *a.Latitude},
			},
			Properties: map[string]any{
				"id":        a.ID,
				"type":      a.TypeKey(),
				"location":  a.Location,
				"magnitude": a.Magnitude,
				"severity":  a.Severity,
				"source":    a.Source,
				"createdAt": a.CreatedAt,
				"expiresAt": a.ExpiresAt,
			},
		}
		features = append(features, f)
	}

	return FeatureCollection{
		Type:     "FeatureCollection",
		Features: features,
	}
}
