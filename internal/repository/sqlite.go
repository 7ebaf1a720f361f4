package repository

import (
	"database/sql"
	"fmt"

	"github.com/jonboulle/clockwork"
	_ "modernc.org/sqlite"
)

type SQLiteDB struct {
	db    *sql.DB
	clock clockwork.Clock
}

func NewSQLiteDB(path string) (*SQLiteDB, error) {
	return NewSQLiteDBWithClock(path, clockwork.NewRealClock())
}

// NewSQLiteDBWithClock injects the clock used for expiry comparisons and
// bookkeeping timestamps. Tests pass a fake clock to step time across the
// 24h validity window.
func NewSQLiteDBWithClock(path string, clock clockwork.Clock) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error while pinging database: %w", err)
	}

	s := &SQLiteDB{
		db:    db,
		clock: clock,
	}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("error while migrating to database: %w", err)
	}

	return s, nil
}

func (s *SQLiteDB) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS alerts (
			id TEXT PRIMARY KEY,
			disaster_type TEXT NOT NULL,
			latitude REAL,
			longitude REAL,
			location TEXT NOT NULL,
			date TEXT NOT NULL,
			time TEXT NOT NULL,
			magnitude TEXT NOT NULL,
			severity TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			expires_at DATETIME NOT NULL,
			is_active INTEGER NOT NULL DEFAULT 1,
			source TEXT NOT NULL,
			notification_sent INTEGER NOT NULL DEFAULT 0,
			notification_sent_at DATETIME
		);

		CREATE TABLE IF NOT EXISTS subscribers (
			user_id TEXT PRIMARY KEY,
			push_token TEXT NOT NULL DEFAULT '',
			latitude REAL,
			longitude REAL,
			location_updated_at DATETIME,
			preferences TEXT NOT NULL,
			notifications_enabled INTEGER NOT NULL DEFAULT 1,
			registered_at DATETIME NOT NULL,
			last_active_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_alerts_active_expires ON alerts(is_active, expires_at);
		CREATE INDEX IF NOT EXISTS idx_alerts_severity ON alerts(severity);
		CREATE INDEX IF NOT EXISTS idx_subscribers_push ON subscribers(notifications_enabled, push_token);
  	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteDB) Close() error {
	return s.db.Close()
}
