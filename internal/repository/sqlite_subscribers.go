package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/alertflow/alertflow/internal/geo"
	"github.com/alertflow/alertflow/internal/models"
)

func (s *SQLiteDB) ListPushTargets(ctx context.Context) ([]models.PushTarget, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, push_token, preferences
		FROM subscribers
		WHERE push_token != '' AND notifications_enabled = 1`)
	if err != nil {
		return nil, &StorageError{Op: "list push targets", Err: err}
	}
	defer rows.Close()

	var targets []models.PushTarget
	for rows.Next() {
		var (
			t        models.PushTarget
			prefsRaw string
		)
		if err := rows.Scan(&t.UserID, &t.Token, &prefsRaw); err != nil {
			return nil, &StorageError{Op: "scan push target", Err: err}
		}
		if err := json.Unmarshal([]byte(prefsRaw), &t.Preferences); err != nil {
			return nil, &StorageError{Op: "decode preferences", Err: fmt.Errorf("user %s: %w", t.UserID, err)}
		}
		targets = append(targets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "list push targets", Err: err}
	}
	return targets, nil
}

func (s *SQLiteDB) UpsertSubscriber(ctx context.Context, p UpsertSubscriberParams) (*models.Subscriber, error) {
	if p.UserID == "" {
		return nil, &models.ValidationError{Field: "userId", Reason: "missing"}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &StorageError{Op: "upsert subscriber", Err: err}
	}
	defer tx.Rollback()

	now := s.clock.Now().UTC()

	existing, err := getSubscriberTx(ctx, tx, p.UserID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	var sub models.Subscriber
	if existing == nil {
		sub = models.Subscriber{
			UserID:       p.UserID,
			PushToken:    p.PushToken,
			Location:     p.Location,
			Preferences:  models.DefaultPreferences(),
			RegisteredAt: now,
			LastActiveAt: now,
		}
		if p.Preferences != nil {
			sub.Preferences = *p.Preferences
		}
	} else {
		sub = *existing
		// Last-known-good merge: incoming empties never clobber stored
		// values.
		if p.PushToken != "" {
			sub.PushToken = p.PushToken
		}
		if p.Location != nil {
			sub.Location = p.Location
		}
		if p.Preferences != nil {
			sub.Preferences = *p.Preferences
		}
		sub.LastActiveAt = now
	}

	prefsRaw, err := json.Marshal(sub.Preferences)
	if err != nil {
		return nil, &StorageError{Op: "encode preferences", Err: err}
	}

	var lat, lng, locUpdated any
	if sub.Location != nil {
		if sub.Location.LastUpdated.IsZero() {
			loc := *sub.Location
			loc.LastUpdated = now
			sub.Location = &loc
		}
		lat, lng = sub.Location.Latitude, sub.Location.Longitude
		locUpdated = sub.Location.LastUpdated.UTC()
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO subscribers (user_id, push_token, latitude, longitude,
			location_updated_at, preferences, notifications_enabled,
			registered_at, last_active_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			push_token = excluded.push_token,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			location_updated_at = excluded.location_updated_at,
			preferences = excluded.preferences,
			notifications_enabled = excluded.notifications_enabled,
			last_active_at = excluded.last_active_at`,
		sub.UserID, sub.PushToken, lat, lng, locUpdated, string(prefsRaw),
		sub.Preferences.NotificationsEnabled, sub.RegisteredAt.UTC(), sub.LastActiveAt.UTC())
	if err != nil {
		return nil, &StorageError{Op: "upsert subscriber", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return nil, &StorageError{Op: "upsert subscriber", Err: err}
	}
	return &sub, nil
}

func (s *SQLiteDB) UpdateLocation(ctx context.Context, userID string, lat, lng *float64) error {
	if lat == nil || lng == nil {
		return &models.ValidationError{Field: "location", Reason: "latitude and longitude are required"}
	}

	now := s.clock.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE subscribers
		SET latitude = ?, longitude = ?, location_updated_at = ?, last_active_at = ?
		WHERE user_id = ?`, *lat, *lng, now, now, userID)
	if err != nil {
		return &StorageError{Op: "update location", Err: err}
	}
	return requireRow(res, "update location")
}

func (s *SQLiteDB) UpdatePreferences(ctx context.Context, userID string, prefs models.Preferences) error {
	prefsRaw, err := json.Marshal(prefs)
	if err != nil {
		return &StorageError{Op: "encode preferences", Err: err}
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE subscribers
		SET preferences = ?, notifications_enabled = ?, last_active_at = ?
		WHERE user_id = ?`,
		string(prefsRaw), prefs.NotificationsEnabled, s.clock.Now().UTC(), userID)
	if err != nil {
		return &StorageError{Op: "update preferences", Err: err}
	}
	return requireRow(res, "update preferences")
}

func (s *SQLiteDB) UpdatePushToken(ctx context.Context, userID, token string) error {
	if token == "" {
		return &models.ValidationError{Field: "pushToken", Reason: "missing"}
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE subscribers
		SET push_token = ?, last_active_at = ?
		WHERE user_id = ?`, token, s.clock.Now().UTC(), userID)
	if err != nil {
		return &StorageError{Op: "update push token", Err: err}
	}
	return requireRow(res, "update push token")
}

func (s *SQLiteDB) GetSubscriber(ctx context.Context, userID string) (*models.Subscriber, error) {
	return getSubscriber(ctx, s.db, userID)
}

func (s *SQLiteDB) ListInRadius(ctx context.Context, lat, lng, radiusKm float64) ([]NearbySubscriber, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, push_token, latitude, longitude, location_updated_at,
			preferences, registered_at, last_active_at
		FROM subscribers
		WHERE latitude IS NOT NULL AND longitude IS NOT NULL`)
	if err != nil {
		return nil, &StorageError{Op: "list in radius", Err: err}
	}
	defer rows.Close()

	var nearby []NearbySubscriber
	for rows.Next() {
		sub, err := scanSubscriber(rows)
		if err != nil {
			return nil, err
		}
		if sub.Location == nil {
			continue
		}
		d := geo.DistanceKm(lat, lng, sub.Location.Latitude, sub.Location.Longitude)
		if d <= radiusKm {
			nearby = append(nearby, NearbySubscriber{Subscriber: *sub, DistanceKm: d})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "list in radius", Err: err}
	}

	sort.Slice(nearby, func(i, j int) bool { return nearby[i].DistanceKm < nearby[j].DistanceKm })
	return nearby, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscriber(row rowScanner) (*models.Subscriber, error) {
	var (
		sub        models.Subscriber
		lat, lng   sql.NullFloat64
		locUpdated sql.NullTime
		prefsRaw   string
	)
	err := row.Scan(&sub.UserID, &sub.PushToken, &lat, &lng, &locUpdated,
		&prefsRaw, &sub.RegisteredAt, &sub.LastActiveAt)
	if err != nil {
		return nil, err
	}

	if lat.Valid && lng.Valid {
		sub.Location = &models.Location{Latitude: lat.Float64, Longitude: lng.Float64}
		if locUpdated.Valid {
			sub.Location.LastUpdated = locUpdated.Time
		}
	}
	if err := json.Unmarshal([]byte(prefsRaw), &sub.Preferences); err != nil {
		return nil, &StorageError{Op: "decode preferences", Err: fmt.Errorf("user %s: %w", sub.UserID, err)}
	}
	return &sub, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getSubscriber(ctx context.Context, q queryRower, userID string) (*models.Subscriber, error) {
	row := q.QueryRowContext(ctx, `
		SELECT user_id, push_token, latitude, longitude, location_updated_at,
			preferences, registered_at, last_active_at
		FROM subscribers
		WHERE user_id = ?`, userID)

	sub, err := scanSubscriber(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		var serr *StorageError
		if errors.As(err, &serr) {
			return nil, err
		}
		return nil, &StorageError{Op: "get subscriber", Err: err}
	}
	return sub, nil
}

func getSubscriberTx(ctx context.Context, tx *sql.Tx, userID string) (*models.Subscriber, error) {
	return getSubscriber(ctx, tx, userID)
}

func requireRow(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return &StorageError{Op: op, Err: err}
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
