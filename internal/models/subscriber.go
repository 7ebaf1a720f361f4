package models

import "time"

// QuietHours is stored with the subscriber but not consulted during
// targeting; dispatch gating on it is an open product question.
type QuietHours struct {
	Enabled bool   `json:"enabled"`
	Start   string `json:"start"` // "22:00"
	End     string `json:"end"`   // "07:00"
}

// Preferences filter which alerts a subscriber is notified about.
// An empty DisasterTypes or SeverityLevels slice means "no filter".
type Preferences struct {
	DisasterTypes        []string    `json:"disasterTypes"`
	SeverityLevels       []string    `json:"severityLevels"`
	NotificationsEnabled bool        `json:"notificationsEnabled"`
	QuietHours           *QuietHours `json:"quietHours,omitempty"`
}

// DefaultPreferences are applied on first registration: everything allowed,
// notifications on, quiet hours present but disabled.
func DefaultPreferences() Preferences {
	return Preferences{
		DisasterTypes:        []string{},
		SeverityLevels:       []string{},
		NotificationsEnabled: true,
		QuietHours:           &QuietHours{Enabled: false, Start: "22:00", End: "07:00"},
	}
}

type Location struct {
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// Subscriber is a registered notification recipient. A subscriber without a
// push token is retained for record keeping but never targeted.
type Subscriber struct {
	UserID       string
	PushToken    string
	Location     *Location
	Preferences  Preferences
	RegisteredAt time.Time
	LastActiveAt time.Time
}

// PushTarget is the slice of subscriber state needed to address one device.
type PushTarget struct {
	Token       string
	UserID      string
	Preferences Preferences
}
