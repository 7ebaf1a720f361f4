package normalize

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/alertflow/alertflow/internal/models"
)

// AlertSource tags every normalized alert with its ingestion origin.
const AlertSource = "USGS"

// ValidityWindow is the fixed lifetime of an alert after normalization.
const ValidityWindow = 24 * time.Hour

// ParseError reports an extraction fragment that could not be decoded.
// Parse failures skip the fragment, they are never fatal to the batch.
type ParseError struct {
	Fragment string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unparseable extraction fragment: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// rawCandidate mirrors the shape the extraction service is asked to emit.
// Numeric fields arrive as strings or numbers depending on the model's mood,
// so they are decoded loosely and coerced afterwards.
type rawCandidate struct {
	DisasterType string `json:"disasterType"`
	Latitude     any    `json:"latitude"`
	Longitude    any    `json:"longitude"`
	Location     string `json:"location"`
	Date         string `json:"date"`
	Time         string `json:"time"`
	Magnitude    any    `json:"magnitude"`
}

// Normalizer turns raw extraction-service output into candidate alerts.
type Normalizer struct {
	clock clockwork.Clock
}

func NewNormalizer(clock clockwork.Clock) *Normalizer {
	return &Normalizer{clock: clock}
}

// Normalize parses the raw payload into alerts, in extraction order.
// Unparseable fragments are logged and counted in skipped; a malformed
// payload never fails the whole batch.
func (n *Normalizer) Normalize(payload string) (alerts []*models.Alert, skipped int) {
	candidates, skipped := parseCandidates(payload)

	alerts = make([]*models.Alert, 0, len(candidates))
	for _, c := range candidates {
		alerts = append(alerts, n.buildAlert(c))
	}
	return alerts, skipped
}

// parseCandidates tries the whole payload as a JSON array, then as a single
// object, then falls back to a balanced-brace fragment scan.
func parseCandidates(payload string) (candidates []rawCandidate, skipped int) {
	clean := stripFences(payload)

	var arr []rawCandidate
	if err := json.Unmarshal([]byte(clean), &arr); err == nil {
		return arr, 0
	}

	var single rawCandidate
	if err := json.Unmarshal([]byte(clean), &single); err == nil {
		return []rawCandidate{single}, 0
	}

	for _, frag := range scanFragments(clean) {
		var c rawCandidate
		if err := json.Unmarshal([]byte(frag), &c); err != nil {
			perr := &ParseError{Fragment: frag, Err: err}
			slog.Warn("skipping extraction fragment", "error", perr)
			skipped++
			continue
		}
		candidates = append(candidates, c)
	}
	return candidates, skipped
}

// stripFences removes markdown code-fence markers the extraction service
// tends to wrap its JSON in.
func stripFences(s string) string {
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

func (n *Normalizer) buildAlert(c rawCandidate) *models.Alert {
	now := n.clock.Now()
	magnitude := magnitudeString(c.Magnitude)

	return &models.Alert{
		ID:           uuid.NewString(),
		DisasterType: defaultString(c.DisasterType, "Unknown"),
		Latitude:     coordinate(c.Latitude),
		Longitude:    coordinate(c.Longitude),
		Location:     defaultString(c.Location, "Unknown Location"),
		Date:         defaultString(c.Date, now.Format("2006-01-02")),
		Time:         defaultString(c.Time, now.Format("15:04:05")),
		Magnitude:    magnitude,
		Severity:     DeriveSeverity(magnitude, c.DisasterType),
		CreatedAt:    now,
		ExpiresAt:    now.Add(ValidityWindow),
		IsActive:     true,
		Source:       AlertSource,
	}
}

// DeriveSeverity classifies an alert from its magnitude and disaster type.
// A magnitude that does not parse as a number yields medium regardless of
// type.
func DeriveSeverity(magnitude, disasterType string) models.Severity {
	mag, err := strconv.ParseFloat(strings.TrimSpace(magnitude), 64)
	if err != nil {
		return models.SeverityMedium
	}

	switch strings.ToLower(disasterType) {
	case "earthquake":
		switch {
		case mag >= 7.0:
			return models.SeverityCritical
		case mag >= 6.0:
			return models.SeverityHigh
		case mag >= 4.0:
			return models.SeverityMedium
		default:
			return models.SeverityLow
		}
	case "cyclone", "hurricane":
		switch {
		case mag >= 4:
			return models.SeverityCritical
		case mag >= 3:
			return models.SeverityHigh
		case mag >= 2:
			return models.SeverityMedium
		default:
			return models.SeverityLow
		}
	default:
		switch {
		case mag >= 7.0:
			return models.SeverityCritical
		case mag >= 5.0:
			return models.SeverityHigh
		case mag >= 3.0:
			return models.SeverityMedium
		default:
			return models.SeverityLow
		}
	}
}

// coordinate coerces a loosely typed latitude/longitude value to a float.
// Missing or non-numeric values become nil, never zero.
func coordinate(v any) *float64 {
	switch val := v.(type) {
	case float64:
		return &val
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return nil
		}
		return &f
	default:
		return nil
	}
}

// magnitudeString keeps magnitude as opaque text so values like "Unknown"
// survive the round trip.
func magnitudeString(v any) string {
	switch val := v.(type) {
	case string:
		if strings.TrimSpace(val) == "" {
			return "Unknown"
		}
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return "Unknown"
	}
}

func defaultString(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
