package push

import (
	"fmt"
	"strings"
	"time"

	"github.com/alertflow/alertflow/internal/models"
)

// NewAlertMessage builds the notification payload for an alert.
func NewAlertMessage(a *models.Alert) Message {
	return Message{
		Title:    fmt.Sprintf("%s %s Alert", strings.ToUpper(string(a.Severity)), strings.ToUpper(a.DisasterType)),
		Body:     messageBody(a),
		Priority: severityPriority(a.Severity),
		Data: map[string]string{
			"alertId":      a.ID,
			"disasterType": a.DisasterType,
			"severity":     string(a.Severity),
			"location":     a.Location,
			"magnitude":    a.Magnitude,
			"latitude":     coordString(a.Latitude),
			"longitude":    coordString(a.Longitude),
			"createdAt":    a.CreatedAt.Format(time.RFC3339),
			"clickAction":  "ALERT_DETAIL",
		},
	}
}

func messageBody(a *models.Alert) string {
	body := fmt.Sprintf("%s detected in %s", a.DisasterType, a.Location)
	if a.Magnitude != "" && a.Magnitude != "Unknown" {
		body += fmt.Sprintf(" (Magnitude: %s)", a.Magnitude)
	}
	return body + ". Tap for details."
}

func severityPriority(s models.Severity) string {
	switch s {
	case models.SeverityCritical:
		return "max"
	case models.SeverityHigh, models.SeverityMedium:
		return "high"
	default:
		return "normal"
	}
}

func coordString(f *float64) string {
	if f == nil {
		return ""
	}
	return fmt.Sprintf("%g", *f)
}
