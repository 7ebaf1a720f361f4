package dispatch

import (
	"slices"

	"github.com/alertflow/alertflow/internal/models"
)

// Target filters pushable subscribers down to those whose preferences admit
// the alert. An empty preference set means "no filter": it matches every
// alert, not none. Both the type and the severity filter must pass.
func Target(targets []models.PushTarget, alert *models.Alert) []models.PushTarget {
	matched := make([]models.PushTarget, 0, len(targets))
	for _, t := range targets {
		if prefsAdmit(t.Preferences, alert) {
			matched = append(matched, t)
		}
	}
	return matched
}

func prefsAdmit(p models.Preferences, a *models.Alert) bool {
	typeOK := len(p.DisasterTypes) == 0 || slices.Contains(p.DisasterTypes, a.TypeKey())
	severityOK := len(p.SeverityLevels) == 0 || slices.Contains(p.SeverityLevels, string(a.Severity))
	return typeOK && severityOK
}
