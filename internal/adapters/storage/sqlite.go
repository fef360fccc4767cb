package storage

// sqlite.go - local persistence for the exit engine.
//
// Tables:
//   attempts        - attempt ledger, one row per (action, id)
//   acquisitions    - first-seen record per token, feeds hold-time and trust
//   cycles          - one summary row per evaluation cycle
//   action_outcomes - every SELL/REDEEM outcome, audit trail only
//
// Timestamps are stored as unix milliseconds. Journal rows older than the
// retention window are pruned on open; ledger and acquisitions are never pruned.

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS attempts (
    action          TEXT    NOT NULL,
    id              TEXT    NOT NULL,
    last_attempt_ms INTEGER NOT NULL,
    failures        INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (action, id)
);

CREATE TABLE IF NOT EXISTS acquisitions (
    token_id      TEXT PRIMARY KEY,
    market_id     TEXT    NOT NULL,
    first_seen_ms INTEGER NOT NULL,
    size          REAL    NOT NULL DEFAULT 0,
    observed      INTEGER NOT NULL DEFAULT 0,
    mixed         INTEGER NOT NULL DEFAULT 0,
    updated_ms    INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS cycles (
    id          TEXT PRIMARY KEY,
    started_ms  INTEGER NOT NULL,
    duration_ms INTEGER NOT NULL DEFAULT 0,
    positions   INTEGER NOT NULL DEFAULT 0,
    sells       INTEGER NOT NULL DEFAULT 0,
    redeems     INTEGER NOT NULL DEFAULT 0,
    skipped     INTEGER NOT NULL DEFAULT 0,
    failed      INTEGER NOT NULL DEFAULT 0,
    dry_run     INTEGER NOT NULL DEFAULT 0,
    warnings    INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS action_outcomes (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    cycle_id    TEXT    NOT NULL,
    at_ms       INTEGER NOT NULL,
    action      TEXT    NOT NULL,
    strategy    TEXT    NOT NULL DEFAULT '',
    market_id   TEXT    NOT NULL,
    token_id    TEXT    NOT NULL DEFAULT '',
    side        TEXT    NOT NULL DEFAULT '',
    size        REAL    NOT NULL DEFAULT 0,
    limit_price REAL,
    reason      TEXT    NOT NULL DEFAULT '',
    status      TEXT    NOT NULL,
    skip_reason TEXT    NOT NULL DEFAULT '',
    error_kind  TEXT    NOT NULL DEFAULT '',
    ref         TEXT    NOT NULL DEFAULT '',
    error       TEXT    NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_cycles_started ON cycles(started_ms DESC);
CREATE INDEX IF NOT EXISTS idx_outcomes_at    ON action_outcomes(at_ms DESC);
CREATE INDEX IF NOT EXISTS idx_outcomes_cycle ON action_outcomes(cycle_id);
`

const retentionJournal = 30 * 24 * time.Hour

// SQLiteStorage implements ports.AttemptStore, ports.AcquisitionStore and
// ports.Journal on SQLite (pure Go, no CGo).
type SQLiteStorage struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStorage opens (or creates) the database at path and applies the schema.
// Use ":memory:" for tests.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // single writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}

	s := &SQLiteStorage{db: db, now: time.Now}
	s.pruneOld(context.Background())
	return s, nil
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// pruneOld drops journal rows past retention.
func (s *SQLiteStorage) pruneOld(ctx context.Context) {
	cutoff := toMillis(s.now().Add(-retentionJournal))
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cycles WHERE started_ms < ?`, cutoff); err != nil {
		slog.Warn("storage: prune cycles failed", "err", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM action_outcomes WHERE at_ms < ?`, cutoff); err != nil {
		slog.Warn("storage: prune outcomes failed", "err", err)
	}
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
