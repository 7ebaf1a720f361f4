package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/alertflow/alertflow/internal/models"
)

// ErrNotFound is returned when a subscriber lookup or keyed update matches
// no record.
var ErrNotFound = errors.New("not found")

// StorageError wraps a persistence failure. It is fatal to the pipeline run
// that triggered it; batch writes guarantee no partial state is left behind.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

type AlertRepository interface {
	// StoreBatch persists all alerts atomically and returns their ids.
	// Either every alert is stored or none are.
	StoreBatch(ctx context.Context, alerts []*models.Alert) ([]string, error)
	// ListActive returns unexpired active alerts, most distant expiry
	// first, newest first within the same expiry.
	ListActive(ctx context.Context, limit int) ([]models.Alert, error)
	ListActiveBySeverity(ctx context.Context, severity models.Severity, limit int) ([]models.Alert, error)
	// MarkNotified records the outcome of a dispatch attempt. Safe to call
	// repeatedly for the same alert.
	MarkNotified(ctx context.Context, alertID string, sent bool) error
	// SweepExpired deactivates every active alert whose validity window has
	// elapsed and returns how many were flipped. Safe to run concurrently
	// with StoreBatch: it only ever transitions active records whose expiry
	// is already in the past.
	SweepExpired(ctx context.Context) (int, error)
}

// UpsertSubscriberParams carries a registration or profile update. Nil or
// empty fields keep whatever is already stored ("last known good").
type UpsertSubscriberParams struct {
	UserID      string
	PushToken   string
	Location    *models.Location
	Preferences *models.Preferences
}

// NearbySubscriber is a subscriber annotated with its distance from a
// query point.
type NearbySubscriber struct {
	models.Subscriber
	DistanceKm float64
}

type SubscriberRepository interface {
	// ListPushTargets returns every subscriber that can receive push: a
	// non-empty token and notifications enabled.
	ListPushTargets(ctx context.Context) ([]models.PushTarget, error)
	UpsertSubscriber(ctx context.Context, p UpsertSubscriberParams) (*models.Subscriber, error)
	UpdateLocation(ctx context.Context, userID string, lat, lng *float64) error
	UpdatePreferences(ctx context.Context, userID string, prefs models.Preferences) error
	UpdatePushToken(ctx context.Context, userID, token string) error
	GetSubscriber(ctx context.Context, userID string) (*models.Subscriber, error)
	// ListInRadius returns subscribers with a stored location within
	// radiusKm of the given point, nearest first.
	ListInRadius(ctx context.Context, lat, lng, radiusKm float64) ([]NearbySubscriber, error)
}
