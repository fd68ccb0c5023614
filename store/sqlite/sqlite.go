/*
Package sqlite provides a SQLite-backed implementation of the staffing and
notification repositories.

PURPOSE:
  Implements staffing.TxStore and notification.Repository on database/sql
  with go-sqlite3. The same SQL runs inside and outside a transaction: every
  query goes through a queryer, which is either the *sql.DB or the *sql.Tx.

KEY TABLES:
  counsellors:           Staff identities, unique username (case-insensitive)
  submissions:           Events with lifecycle and payment state
  assignments:           Confirmed staffing, replaced wholesale on finalize
  suggestions:           Advisory staffing from the submitter
  activity:              Append-only audit log
  duplicate_dismissals:  "Not a duplicate" pairs, stored (low, high)
  notifications:         Detection feed
  notification_settings: Key/value job switches and thresholds

CASCADES:
  Deleting a submission removes its assignments, suggestions and dismissals.
  Notifications keep their row and lose the submission link.

STORAGE FORMATS:
  Dates:      TEXT "2006-01-02"
  Timestamps: TEXT, fixed-width UTC with nanoseconds so that string order
              equals time order
  JSON:       activity details and notification metadata

MIGRATION:
  Versioned migrations run on New() and are recorded in schema_migrations.
  Each migration runs in its own transaction; re-opening a database only
  applies versions it has not seen.

WAL MODE:
  Opened with WAL and a busy timeout. The pool is capped at one connection,
  which keeps ":memory:" databases on a single handle and serializes
  writers the way SQLite does anyway.

USAGE:
  store, err := sqlite.New("./data/staffing.db")
  if err != nil {
      return err
  }
  defer store.Close()

SEE ALSO:
  - staffing/store.go:         repository interfaces
  - notification/repository.go: feed repository interface
  - store/memory:              in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/warp/staffing-engine/generic"
	"github.com/warp/staffing-engine/notification"
	"github.com/warp/staffing-engine/staffing"
)

// timeLayout is fixed-width so lexical order matches chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn implements every repository method against a queryer.
type conn struct {
	q queryer
}

// Store is the database handle. Methods that need more than one statement
// are wrapped in a transaction when called outside WithTx.
type Store struct {
	*conn
	db *sql.DB
}

var (
	_ staffing.TxStore        = (*Store)(nil)
	_ notification.Repository = (*Store)(nil)
	_ staffing.Store          = (*conn)(nil)
	_ notification.Feed       = (*conn)(nil)
)

// New opens (creating if needed) the database at path and applies pending
// migrations. Use ":memory:" for a throwaway database.
func New(path string) (*Store, error) {
	dsn := path + "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := migrate(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Store{conn: &conn{q: db}, db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable. Used by the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a database transaction. If fn returns an error
// the transaction is rolled back.
func (s *Store) WithTx(ctx context.Context, fn func(staffing.Store) error) error {
	return s.inTx(ctx, func(c *conn) error { return fn(c) })
}

// WithFeedTx is WithTx for the notification feed.
func (s *Store) WithFeedTx(ctx context.Context, fn func(notification.Feed) error) error {
	return s.inTx(ctx, func(c *conn) error { return fn(c) })
}

func (s *Store) inTx(ctx context.Context, fn func(*conn) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&conn{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Store) ReplaceAssignments(ctx context.Context, id staffing.SubmissionID, counsellorIDs []staffing.CounsellorID, at time.Time) error {
	return s.WithTx(ctx, func(tx staffing.Store) error {
		return tx.ReplaceAssignments(ctx, id, counsellorIDs, at)
	})
}

func (s *Store) ReplaceSuggestions(ctx context.Context, id staffing.SubmissionID, counsellorIDs []staffing.CounsellorID, at time.Time) error {
	return s.WithTx(ctx, func(tx staffing.Store) error {
		return tx.ReplaceSuggestions(ctx, id, counsellorIDs, at)
	})
}

// =============================================================================
// MIGRATIONS
// =============================================================================

type migration struct {
	description string
	sql         string
}

var migrations = []migration{
	{description: "core schema", sql: `
	CREATE TABLE counsellors (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		username   TEXT NOT NULL UNIQUE COLLATE NOCASE,
		name       TEXT NOT NULL DEFAULT '',
		active     INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL
	);

	CREATE TABLE submissions (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		start_date     TEXT NOT NULL,
		end_date       TEXT NOT NULL,
		city           TEXT NOT NULL,
		country        TEXT NOT NULL,
		organizer_id   INTEGER,
		organizer_name TEXT NOT NULL DEFAULT '',
		event_type_id  INTEGER,
		event_name_id  INTEGER,
		event_name     TEXT NOT NULL DEFAULT '',
		remarks        TEXT NOT NULL DEFAULT '',
		status         TEXT NOT NULL CHECK (status IN ('pending', 'confirmed', 'not_applicable')),
		event_status   TEXT NOT NULL CHECK (event_status IN ('ONGOING', 'COMPLETED', 'CANCELLED', 'POSTPONED')),
		payment_status TEXT NOT NULL DEFAULT 'UNPAID',
		submitted_by   INTEGER NOT NULL REFERENCES counsellors(id),
		sent_by        INTEGER REFERENCES counsellors(id),
		confirmed_at   TEXT,
		created_at     TEXT NOT NULL,
		updated_at     TEXT NOT NULL
	);

	CREATE INDEX idx_submissions_start ON submissions(start_date);
	CREATE INDEX idx_submissions_status ON submissions(status, event_status);
	CREATE INDEX idx_submissions_created ON submissions(created_at DESC, id DESC);

	CREATE TABLE assignments (
		submission_id INTEGER NOT NULL REFERENCES submissions(id) ON DELETE CASCADE,
		counsellor_id INTEGER NOT NULL REFERENCES counsellors(id),
		assigned_at   TEXT NOT NULL,
		PRIMARY KEY (submission_id, counsellor_id)
	);

	-- Availability conflict lookups go counsellor-first
	CREATE INDEX idx_assignments_counsellor ON assignments(counsellor_id);

	CREATE TABLE suggestions (
		submission_id INTEGER NOT NULL REFERENCES submissions(id) ON DELETE CASCADE,
		counsellor_id INTEGER NOT NULL REFERENCES counsellors(id),
		created_at    TEXT NOT NULL,
		PRIMARY KEY (submission_id, counsellor_id)
	);

	CREATE TABLE activity (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		action     TEXT NOT NULL,
		actor      TEXT NOT NULL,
		details    TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX idx_activity_action_created ON activity(action, created_at);

	CREATE TABLE duplicate_dismissals (
		submission_a INTEGER NOT NULL REFERENCES submissions(id) ON DELETE CASCADE,
		submission_b INTEGER NOT NULL REFERENCES submissions(id) ON DELETE CASCADE,
		dismissed_by TEXT NOT NULL,
		dismissed_at TEXT NOT NULL,
		PRIMARY KEY (submission_a, submission_b),
		CHECK (submission_a < submission_b)
	);
	`},
	{description: "notification feed", sql: `
	CREATE TABLE notifications (
		id            TEXT PRIMARY KEY,
		type          TEXT NOT NULL,
		priority      TEXT NOT NULL,
		title         TEXT NOT NULL,
		message       TEXT NOT NULL DEFAULT '',
		metadata      TEXT,
		target_role   TEXT NOT NULL DEFAULT '',
		target_user   TEXT NOT NULL DEFAULT '',
		status        TEXT NOT NULL DEFAULT 'unread',
		submission_id INTEGER REFERENCES submissions(id) ON DELETE SET NULL,
		expires_at    TEXT,
		created_at    TEXT NOT NULL,
		read_at       TEXT
	);

	-- Dedup lookups
	CREATE INDEX idx_notifications_subject ON notifications(type, title, status, created_at);
	CREATE INDEX idx_notifications_created ON notifications(created_at DESC, id DESC);

	CREATE TABLE notification_settings (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	`},
}

// migrate applies every migration newer than the recorded schema version.
func migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL DEFAULT '',
			applied_at  TEXT NOT NULL
		)`); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for i := current; i < len(migrations); i++ {
		version := i + 1
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, migrations[i].sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", version, migrations[i].description, err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)",
			version, migrations[i].description, formatTime(time.Now())); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", version, migrations[i].description, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d (%s): %w", version, migrations[i].description, err)
		}
	}
	return nil
}

// SchemaVersion returns the highest applied migration.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&v)
	return v, err
}

// =============================================================================
// HELPERS
// =============================================================================

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored timestamp %q: %w", s, err)
	}
	return t, nil
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullInt64[T ~int64](v *T) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func int64Ptr[T ~int64](n sql.NullInt64) *T {
	if !n.Valid {
		return nil
	}
	v := T(n.Int64)
	return &v
}

func encodeJSON(v map[string]any) (sql.NullString, error) {
	if len(v) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode json: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func decodeJSON(ns sql.NullString) (map[string]any, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(ns.String), &out); err != nil {
		return nil, fmt.Errorf("failed to decode json: %w", err)
	}
	return out, nil
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func isConstraint(err error, code sqlite3.ErrNoExtended) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == code
}

func isUniqueConstraintError(err error) bool {
	return isConstraint(err, sqlite3.ErrConstraintUnique) || isConstraint(err, sqlite3.ErrConstraintPrimaryKey)
}

func isForeignKeyError(err error) bool {
	return isConstraint(err, sqlite3.ErrConstraintForeignKey)
}

func rowsAffected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n, nil
}

// validationf is a short constructor for storage-level input errors.
func validationf(field, format string, args ...any) error {
	return &generic.ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
