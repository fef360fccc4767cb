package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alejandrodnm/polyexit/internal/domain"
)

// attemptRecord is the JSON stored per hash field.
type attemptRecord struct {
	LastAttemptMs int64 `json:"last_ms"`
	Failures      int   `json:"failures"`
}

func encodeAttempt(a domain.RedemptionAttempt) (string, error) {
	b, err := json.Marshal(attemptRecord{
		LastAttemptMs: a.LastAttemptAt.UnixMilli(),
		Failures:      a.ConsecutiveFailures,
	})
	return string(b), err
}

func decodeEntry(field, value string) (domain.LedgerEntry, error) {
	action, id, ok := strings.Cut(field, ":")
	if !ok || id == "" {
		return domain.LedgerEntry{}, fmt.Errorf("malformed field %q", field)
	}
	var rec attemptRecord
	if err := json.Unmarshal([]byte(value), &rec); err != nil {
		return domain.LedgerEntry{}, fmt.Errorf("field %q: %w", field, err)
	}
	return domain.LedgerEntry{
		Key: domain.AttemptKey{Action: domain.Action(action), ID: id},
		Attempt: domain.RedemptionAttempt{
			LastAttemptAt:       time.UnixMilli(rec.LastAttemptMs).UTC(),
			ConsecutiveFailures: rec.Failures,
		},
	}, nil
}

// LoadAttempts reads every ledger entry. Malformed fields are logged and skipped.
func (s *Store) LoadAttempts(ctx context.Context) ([]domain.LedgerEntry, error) {
	raw, err := s.rdb.HGetAll(ctx, s.attemptsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore.LoadAttempts: %w", err)
	}
	out := make([]domain.LedgerEntry, 0, len(raw))
	for field, value := range raw {
		e, err := decodeEntry(field, value)
		if err != nil {
			slog.Warn("redisstore: skipping ledger entry", "err", err)
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// SaveAttempt writes one entry.
func (s *Store) SaveAttempt(ctx context.Context, e domain.LedgerEntry) error {
	v, err := encodeAttempt(e.Attempt)
	if err != nil {
		return fmt.Errorf("redisstore.SaveAttempt %s: %w", e.Key, err)
	}
	if err := s.rdb.HSet(ctx, s.attemptsKey(), e.Key.String(), v).Err(); err != nil {
		return fmt.Errorf("redisstore.SaveAttempt %s: %w", e.Key, err)
	}
	return nil
}

// DeleteAttempt removes one entry.
func (s *Store) DeleteAttempt(ctx context.Context, key domain.AttemptKey) error {
	if err := s.rdb.HDel(ctx, s.attemptsKey(), key.String()).Err(); err != nil {
		return fmt.Errorf("redisstore.DeleteAttempt %s: %w", key, err)
	}
	return nil
}
