package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/alertflow/alertflow/internal/models"
)

const (
	defaultActiveLimit   = 50
	defaultSeverityLimit = 20
)

const alertColumns = `id, disaster_type, latitude, longitude, location, date, time,
	magnitude, severity, created_at, expires_at, is_active, source,
	notification_sent, notification_sent_at`

func (s *SQLiteDB) StoreBatch(ctx context.Context, alerts []*models.Alert) ([]string, error) {
	if len(alerts) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &StorageError{Op: "store batch", Err: err}
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO alerts (id, disaster_type, latitude, longitude, location, date, time,
			magnitude, severity, created_at, expires_at, is_active, source,
			notification_sent, notification_sent_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, &StorageError{Op: "store batch", Err: err}
	}
	defer stmt.Close()

	ids := make([]string, 0, len(alerts))
	for _, a := range alerts {
		_, err := stmt.ExecContext(ctx,
			a.ID, a.DisasterType, nullFloat(a.Latitude), nullFloat(a.Longitude),
			a.Location, a.Date, a.Time, a.Magnitude, string(a.Severity),
			a.CreatedAt.UTC(), a.ExpiresAt.UTC(), a.IsActive, a.Source,
			a.NotificationSent, nullTime(a.NotificationSentAt))
		if err != nil {
			return nil, &StorageError{Op: "store batch", Err: fmt.Errorf("alert %s: %w", a.ID, err)}
		}
		ids = append(ids, a.ID)
	}

	if err := tx.Commit(); err != nil {
		return nil, &StorageError{Op: "store batch", Err: err}
	}
	return ids, nil
}

func (s *SQLiteDB) ListActive(ctx context.Context, limit int) ([]models.Alert, error) {
	if limit <= 0 {
		limit = defaultActiveLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+alertColumns+`
		FROM alerts
		WHERE is_active = 1 AND expires_at > ?
		ORDER BY expires_at DESC, created_at DESC
		LIMIT ?`, s.clock.Now().UTC(), limit)
	if err != nil {
		return nil, &StorageError{Op: "list active", Err: err}
	}
	defer rows.Close()

	return scanAlerts(rows)
}

func (s *SQLiteDB) ListActiveBySeverity(ctx context.Context, severity models.Severity, limit int) ([]models.Alert, error) {
	if limit <= 0 {
		limit = defaultSeverityLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+alertColumns+`
		FROM alerts
		WHERE is_active = 1 AND severity = ? AND expires_at > ?
		ORDER BY expires_at DESC, created_at DESC
		LIMIT ?`, string(severity), s.clock.Now().UTC(), limit)
	if err != nil {
		return nil, &StorageError{Op: "list active by severity", Err: err}
	}
	defer rows.Close()

	return scanAlerts(rows)
}

func (s *SQLiteDB) MarkNotified(ctx context.Context, alertID string, sent bool) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE alerts
		SET notification_sent = ?, notification_sent_at = ?
		WHERE id = ?`, sent, s.clock.Now().UTC(), alertID)
	if err != nil {
		return &StorageError{Op: "mark notified", Err: err}
	}
	return nil
}

func (s *SQLiteDB) SweepExpired(ctx context.Context) (int, error) {
	// Single guarded UPDATE: only already-expired active rows transition,
	// so the sweep cannot touch freshly stored alerts and repeating it is
	// a no-op.
	res, err := s.db.ExecContext(ctx, `
		UPDATE alerts
		SET is_active = 0
		WHERE is_active = 1 AND expires_at <= ?`, s.clock.Now().UTC())
	if err != nil {
		return 0, &StorageError{Op: "sweep expired", Err: err}
	}

	count, err := res.RowsAffected()
	if err != nil {
		return 0, &StorageError{Op: "sweep expired", Err: err}
	}
	return int(count), nil
}

func scanAlerts(rows *sql.Rows) ([]models.Alert, error) {
	var alerts []models.Alert
	for rows.Next() {
		var (
			a          models.Alert
			lat, lng   sql.NullFloat64
			severity   string
			notifiedAt sql.NullTime
		)
		if err := rows.Scan(&a.ID, &a.DisasterType, &lat, &lng, &a.Location,
			&a.Date, &a.Time, &a.Magnitude, &severity, &a.CreatedAt, &a.ExpiresAt,
			&a.IsActive, &a.Source, &a.NotificationSent, &notifiedAt); err != nil {
			return nil, &StorageError{Op: "scan alert", Err: err}
		}
		a.Severity = models.Severity(severity)
		if lat.Valid {
			a.Latitude = &lat.Float64
		}
		if lng.Valid {
			a.Longitude = &lng.Float64
		}
		if notifiedAt.Valid {
			a.NotificationSentAt = &notifiedAt.Time
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "scan alerts", Err: err}
	}
	return alerts, nil
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
