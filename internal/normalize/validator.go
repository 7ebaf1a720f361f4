package normalize

import (
	"github.com/alertflow/alertflow/internal/models"
)

// ValidateAlert checks a candidate alert for structural soundness. It is a
// pure predicate: no mutation, no side effects. Absent coordinates are
// valid; present ones must be in range.
func ValidateAlert(a *models.Alert) error {
	switch {
	case a.ID == "":
		return &models.ValidationError{Field: "id", Reason: "missing"}
	case a.DisasterType == "":
		return &models.ValidationError{Field: "disasterType", Reason: "missing"}
	case a.Location == "":
		return &models.ValidationError{Field: "location", Reason: "missing"}
	case a.CreatedAt.IsZero():
		return &models.ValidationError{Field: "createdAt", Reason: "missing"}
	case a.ExpiresAt.IsZero():
		return &models.ValidationError{Field: "expiresAt", Reason: "missing"}
	}

	if a.Latitude != nil && (*a.Latitude < -90 || *a.Latitude > 90) {
		return &models.ValidationError{Field: "latitude", Reason: "out of range [-90,90]"}
	}
	if a.Longitude != nil && (*a.Longitude < -180 || *a.Longitude > 180) {
		return &models.ValidationError{Field: "longitude", Reason: "out of range [-180,180]"}
	}

	return nil
}
