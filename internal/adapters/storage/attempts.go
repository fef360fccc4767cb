package storage

import (
	"context"
	"fmt"

	"github.com/alejandrodnm/polyexit/internal/domain"
)

// LoadAttempts returns every ledger row.
func (s *SQLiteStorage) LoadAttempts(ctx context.Context) ([]domain.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT action, id, last_attempt_ms, failures FROM attempts ORDER BY action, id`)
	if err != nil {
		return nil, fmt.Errorf("storage.LoadAttempts: query: %w", err)
	}
	defer rows.Close()

	var out []domain.LedgerEntry
	for rows.Next() {
		var (
			e      domain.LedgerEntry
			action string
			lastMs int64
		)
		if err := rows.Scan(&action, &e.Key.ID, &lastMs, &e.Attempt.ConsecutiveFailures); err != nil {
			return nil, fmt.Errorf("storage.LoadAttempts: scan: %w", err)
		}
		e.Key.Action = domain.Action(action)
		e.Attempt.LastAttemptAt = fromMillis(lastMs)
		out = append(out, e)
	}
	return out, rows.Err()
}

// SaveAttempt upserts one ledger row.
func (s *SQLiteStorage) SaveAttempt(ctx context.Context, e domain.LedgerEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attempts (action, id, last_attempt_ms, failures)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(action, id) DO UPDATE SET
			last_attempt_ms = excluded.last_attempt_ms,
			failures        = excluded.failures
	`, string(e.Key.Action), e.Key.ID, toMillis(e.Attempt.LastAttemptAt), e.Attempt.ConsecutiveFailures)
	if err != nil {
		return fmt.Errorf("storage.SaveAttempt %s: %w", e.Key, err)
	}
	return nil
}

// DeleteAttempt removes a ledger row. Missing rows are not an error.
func (s *SQLiteStorage) DeleteAttempt(ctx context.Context, key domain.AttemptKey) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM attempts WHERE action = ? AND id = ?`, string(key.Action), key.ID,
	); err != nil {
		return fmt.Errorf("storage.DeleteAttempt %s: %w", key, err)
	}
	return nil
}
