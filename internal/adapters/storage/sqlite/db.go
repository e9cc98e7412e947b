// Package sqlite is the single-file storage backend used by mmctl and local
// runs of the API.
package sqlite

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"

	"github.com/Mind-Measure/mind-measure-mobile-sub003/internal/domain"
)

// DefaultPath is relative to the working directory.
const DefaultPath = ".mindmeasure/checkins.db"

// Store implements domain.SessionStore and domain.TrendStore on SQLite.
type Store struct {
	db *sqlx.DB
}

// Open opens or creates the database and runs migrations.
func Open(path string) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// _txlock=immediate takes the write lock at BEGIN, so two read-modify-write
	// transactions cannot interleave.
	dsn := path + "?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000&_txlock=immediate"
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	migrations := []string{
		migrationSessions,
		migrationOnePending,
		migrationSessionIndexes,
		migrationTrendPoints,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

const migrationSessions = `
CREATE TABLE IF NOT EXISTS checkin_sessions (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    assessment_type TEXT NOT NULL,
    first_name TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    cancel_reason TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    activated_at TIMESTAMP,
    completed_at TIMESTAMP,
    cancelled_at TIMESTAMP,
    text_data TEXT,
    visual_data TEXT,
    analysis TEXT,
    final_score REAL
);
`

// At most one pending session per user, enforced by the database as well.
const migrationOnePending = `
CREATE UNIQUE INDEX IF NOT EXISTS checkin_sessions_one_pending
    ON checkin_sessions(user_id) WHERE status = 'pending';
`

const migrationSessionIndexes = `
CREATE INDEX IF NOT EXISTS checkin_sessions_user_status_created
    ON checkin_sessions(user_id, status, created_at DESC);
`

const migrationTrendPoints = `
CREATE TABLE IF NOT EXISTS checkin_trend_points (
    session_id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    assessment_type TEXT NOT NULL,
    score REAL NOT NULL,
    mood_score INTEGER NOT NULL,
    risk_level TEXT NOT NULL,
    recorded_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS checkin_trend_points_series
    ON checkin_trend_points(user_id, assessment_type, recorded_at);
`

func isDomainErr(err error) bool {
	return errors.Is(err, domain.ErrInvalidState) ||
		errors.Is(err, domain.ErrInvalidInput) ||
		errors.Is(err, domain.ErrSessionNotFound) ||
		errors.Is(err, domain.ErrConflict)
}

// mapErr turns lock contention and uniqueness violations into ErrConflict.
func mapErr(op string, err error) error {
	var se sqlite3.Error
	if errors.As(err, &se) {
		switch {
		case se.Code == sqlite3.ErrBusy, se.Code == sqlite3.ErrLocked,
			se.ExtendedCode == sqlite3.ErrConstraintUnique,
			se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey:
			return fmt.Errorf("%w: sqlite %s: %v", domain.ErrConflict, op, err)
		}
	}
	return fmt.Errorf("sqlite %s: %w", op, err)
}
