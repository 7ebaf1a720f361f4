package models

import (
	"strings"
	"time"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ParseSeverity maps a user-supplied string onto a known severity level.
func ParseSeverity(s string) (Severity, bool) {
	switch Severity(strings.ToLower(s)) {
	case SeverityLow:
		return SeverityLow, true
	case SeverityMedium:
		return SeverityMedium, true
	case SeverityHigh:
		return SeverityHigh, true
	case SeverityCritical:
		return SeverityCritical, true
	default:
		return "", false
	}
}

// Alert is a structured disaster event derived from extracted text.
// Coordinates are pointers: an event without a location fix carries nil,
// never zero.
type Alert struct {
	ID                 string
	DisasterType       string // original casing preserved for display
	Latitude           *float64
	Longitude          *float64
	Location           string
	Date               string // calendar date as reported, e.g. "2025-06-04"
	Time               string // time of day as reported, e.g. "14:30:00"
	Magnitude          string // opaque text, "Unknown" when the source omits it
	Severity           Severity
	CreatedAt          time.Time
	ExpiresAt          time.Time
	IsActive           bool
	Source             string
	NotificationSent   bool
	NotificationSentAt *time.Time
}

// TypeKey returns the canonical lower-cased disaster type used for
// preference matching.
func (a *Alert) TypeKey() string {
	return strings.ToLower(a.DisasterType)
}

func (a *Alert) HasCoordinates() bool {
	return a.Latitude != nil && a.Longitude != nil
}
