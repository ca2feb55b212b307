// Package sqlite provides persistence for the chore economy core:
// XP balances and transactions, credibility state and event history,
// task assignments, review authority, and earned badges.
//
// All timestamps are stored as RFC3339 text. Mutations that must land
// atomically (a review decision's trust + ledger effects) run through
// WithTx, which rolls the whole unit back on any failure.
package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite handle.
type DB struct {
	sql *sql.DB
}

// Open opens (creating if needed) the database at path and applies all
// migrations. Use ":memory:" for tests.
func Open(path string) (*DB, error) {
	handle, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Single writer at a time; busy_timeout covers sweep/request overlap.
	pragmas := []string{
		`PRAGMA journal_mode = WAL`,
		`PRAGMA busy_timeout = 5000`,
		`PRAGMA foreign_keys = ON`,
	}
	for _, p := range pragmas {
		if _, err := handle.Exec(p); err != nil {
			handle.Close()
			return nil, fmt.Errorf("pragma: %w", err)
		}
	}

	db := &DB{sql: handle}
	if err := db.migrate(); err != nil {
		handle.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the underlying handle.
func (db *DB) Close() error { return db.sql.Close() }

func (db *DB) migrate() error {
	for _, stmt := range Migrations() {
		if _, err := db.sql.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Migrations returns the schema migration statements.
// Each string is a single SQL statement (SQLite executes one at a time).
func Migrations() []string {
	return []string{
		// XP balances — one row per user, created lazily
		`CREATE TABLE IF NOT EXISTS xp_balances (
			user_id         TEXT PRIMARY KEY,
			current_xp      INTEGER NOT NULL DEFAULT 0,
			lifetime_earned INTEGER NOT NULL DEFAULT 0,
			lifetime_spent  INTEGER NOT NULL DEFAULT 0,
			created_at      TEXT NOT NULL,
			last_updated    TEXT NOT NULL
		)`,

		// Append-only XP transaction log
		`CREATE TABLE IF NOT EXISTS xp_transactions (
			id                  TEXT PRIMARY KEY,
			user_id             TEXT NOT NULL,
			type                TEXT NOT NULL,
			amount              INTEGER NOT NULL,
			timestamp           TEXT NOT NULL,
			related_task_id     TEXT,
			credibility_at_time INTEGER,
			notes               TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_xp_tx_user ON xp_transactions(user_id, timestamp)`,

		// Credibility state — one row per user, created lazily
		`CREATE TABLE IF NOT EXISTS credibility_states (
			user_id                 TEXT PRIMARY KEY,
			score                   INTEGER NOT NULL DEFAULT 100,
			streak                  INTEGER NOT NULL DEFAULT 0,
			has_redemption_bonus    INTEGER NOT NULL DEFAULT 0,
			redemption_bonus_expiry TEXT,
			updated_at              TEXT NOT NULL
		)`,

		// Active credibility event history (append-only event rows keyed
		// by user and indexed by timestamp — decay sweeps and stacking
		// lookbacks never scan embedded arrays)
		`CREATE TABLE IF NOT EXISTS credibility_events (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id         TEXT NOT NULL,
			kind            TEXT NOT NULL,
			amount          INTEGER NOT NULL,
			timestamp       TEXT NOT NULL,
			related_task_id TEXT,
			decayed         INTEGER NOT NULL DEFAULT 0,
			prior_streak    INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cred_events_user ON credibility_events(user_id, timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_cred_events_decay ON credibility_events(kind, decayed, timestamp)`,

		// Archival log for fully decayed downvotes
		`CREATE TABLE IF NOT EXISTS credibility_archive (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id         TEXT NOT NULL,
			kind            TEXT NOT NULL,
			amount          INTEGER NOT NULL,
			timestamp       TEXT NOT NULL,
			related_task_id TEXT,
			archived_at     TEXT NOT NULL
		)`,

		// Task assignments
		`CREATE TABLE IF NOT EXISTS assignments (
			id                  TEXT PRIMARY KEY,
			template_id         TEXT NOT NULL,
			child_id            TEXT NOT NULL,
			assigned_by         TEXT,
			title               TEXT NOT NULL,
			description         TEXT NOT NULL DEFAULT '',
			category            TEXT NOT NULL DEFAULT '',
			assigned_level      INTEGER NOT NULL DEFAULT 1,
			adjusted_level      INTEGER,
			status              TEXT NOT NULL,
			created_at          TEXT NOT NULL,
			started_at          TEXT,
			completed_at        TEXT,
			reviewed_at         TEXT,
			due_date            TEXT,
			photo_url           TEXT NOT NULL DEFAULT '',
			child_notes         TEXT NOT NULL DEFAULT '',
			completion_minutes  INTEGER NOT NULL DEFAULT 0,
			reviewed_by         TEXT NOT NULL DEFAULT '',
			parent_notes        TEXT NOT NULL DEFAULT '',
			review_decision     TEXT NOT NULL DEFAULT '',
			xp_awarded          INTEGER NOT NULL DEFAULT 0,
			appeal_deadline     TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_assignments_child ON assignments(child_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_assignments_status ON assignments(status, due_date)`,

		// Review authority: which guardian may review which child
		`CREATE TABLE IF NOT EXISTS review_authority (
			guardian_id TEXT NOT NULL,
			child_id    TEXT NOT NULL,
			PRIMARY KEY (guardian_id, child_id)
		)`,

		// Earned badges — write-once
		`CREATE TABLE IF NOT EXISTS earned_badges (
			child_id   TEXT NOT NULL,
			badge_type TEXT NOT NULL,
			earned_at  TEXT NOT NULL,
			PRIMARY KEY (child_id, badge_type)
		)`,
	}
}

// ─── Transactional Units ────────────────────────────────────────────────────

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// Ops exposes the row operations, bound either to the database handle or
// to an open transaction.
type Ops struct {
	q queryer
}

// Ops returns operations that auto-commit per statement.
func (db *DB) Ops() *Ops { return &Ops{q: db.sql} }

// WithTx runs fn inside a single transaction. Any error (or panic) rolls
// back every row written by fn — a review decision's credibility and XP
// effects land together or not at all.
func (db *DB) WithTx(fn func(ops *Ops) error) error {
	tx, err := db.sql.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&Ops{q: tx}); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// ─── Time Helpers ───────────────────────────────────────────────────────────

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	return &t
}
