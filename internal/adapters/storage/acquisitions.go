package storage

import (
	"context"
	"fmt"

	"github.com/alejandrodnm/polyexit/internal/domain"
)

// LoadAcquisitions returns first-seen records keyed by token ID.
func (s *SQLiteStorage) LoadAcquisitions(ctx context.Context) (map[string]domain.Acquisition, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT token_id, market_id, first_seen_ms, size, observed, mixed, updated_ms FROM acquisitions`)
	if err != nil {
		return nil, fmt.Errorf("storage.LoadAcquisitions: query: %w", err)
	}
	defer rows.Close()

	out := make(map[string]domain.Acquisition)
	for rows.Next() {
		var (
			a                  domain.Acquisition
			firstMs, updatedMs int64
			observed, mixed    int
		)
		if err := rows.Scan(&a.TokenID, &a.MarketID, &firstMs, &a.Size, &observed, &mixed, &updatedMs); err != nil {
			return nil, fmt.Errorf("storage.LoadAcquisitions: scan: %w", err)
		}
		a.FirstSeenAt = fromMillis(firstMs)
		a.UpdatedAt = fromMillis(updatedMs)
		a.Observed = observed == 1
		a.Mixed = mixed == 1
		out[a.TokenID] = a
	}
	return out, rows.Err()
}

// UpsertAcquisition writes a record. first_seen_ms only moves earlier and
// observed and mixed never clear.
func (s *SQLiteStorage) UpsertAcquisition(ctx context.Context, a domain.Acquisition) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO acquisitions (token_id, market_id, first_seen_ms, size, observed, mixed, updated_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(token_id) DO UPDATE SET
			first_seen_ms = MIN(first_seen_ms, excluded.first_seen_ms),
			size       = excluded.size,
			observed   = MAX(observed, excluded.observed),
			mixed      = MAX(mixed, excluded.mixed),
			updated_ms = excluded.updated_ms
	`, a.TokenID, a.MarketID, toMillis(a.FirstSeenAt), a.Size, boolToInt(a.Observed), boolToInt(a.Mixed), toMillis(a.UpdatedAt))
	if err != nil {
		return fmt.Errorf("storage.UpsertAcquisition %s: %w", a.TokenID, err)
	}
	return nil
}

// DeleteAcquisition forgets a token once it leaves the wallet.
func (s *SQLiteStorage) DeleteAcquisition(ctx context.Context, tokenID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM acquisitions WHERE token_id = ?`, tokenID); err != nil {
		return fmt.Errorf("storage.DeleteAcquisition %s: %w", tokenID, err)
	}
	return nil
}
