package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/alejandrodnm/polyexit/internal/domain"
)

// SaveCycle writes the cycle summary and its outcomes in one transaction.
func (s *SQLiteStorage) SaveCycle(ctx context.Context, summary domain.CycleSummary, outcomes []domain.ActionOutcome) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SaveCycle: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO cycles (id, started_ms, duration_ms, positions, sells, redeems, skipped, failed, dry_run, warnings)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		summary.ID,
		toMillis(summary.StartedAt),
		summary.Duration.Milliseconds(),
		summary.Positions,
		summary.Sells,
		summary.Redeems,
		summary.Skipped,
		summary.Failed,
		boolToInt(summary.DryRun),
		summary.Warnings,
	); err != nil {
		return fmt.Errorf("storage.SaveCycle: insert cycle: %w", err)
	}

	if len(outcomes) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO action_outcomes
				(cycle_id, at_ms, action, strategy, market_id, token_id, side, size,
				 limit_price, reason, status, skip_reason, error_kind, ref, error)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("storage.SaveCycle: prepare: %w", err)
		}
		defer stmt.Close()

		for _, o := range outcomes {
			d := o.Decision
			var limit any
			if d.LimitPrice != nil {
				limit = *d.LimitPrice
			}
			if _, err := stmt.ExecContext(ctx,
				summary.ID,
				toMillis(o.At),
				string(d.Action),
				d.Strategy,
				d.MarketID,
				d.TokenID,
				d.Side,
				d.Size,
				limit,
				d.Reason,
				string(o.Status),
				string(o.Skip),
				string(o.ErrorKind),
				o.Ref,
				o.Error,
			); err != nil {
				return fmt.Errorf("storage.SaveCycle: insert outcome %s: %w", d.MarketID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SaveCycle: commit: %w", err)
	}
	return nil
}

// RecentOutcomes returns the latest outcomes, newest first.
func (s *SQLiteStorage) RecentOutcomes(ctx context.Context, limit int) ([]domain.ActionOutcome, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT at_ms, action, strategy, market_id, token_id, side, size, limit_price,
		       reason, status, skip_reason, error_kind, ref, error
		FROM action_outcomes
		ORDER BY at_ms DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage.RecentOutcomes: query: %w", err)
	}
	defer rows.Close()

	var out []domain.ActionOutcome
	for rows.Next() {
		var (
			o                          domain.ActionOutcome
			atMs                       int64
			action, status, skip, kind string
			limitPrice                 sql.NullFloat64
		)
		if err := rows.Scan(
			&atMs, &action, &o.Decision.Strategy, &o.Decision.MarketID, &o.Decision.TokenID,
			&o.Decision.Side, &o.Decision.Size, &limitPrice, &o.Decision.Reason,
			&status, &skip, &kind, &o.Ref, &o.Error,
		); err != nil {
			return nil, fmt.Errorf("storage.RecentOutcomes: scan: %w", err)
		}
		o.At = fromMillis(atMs)
		o.Decision.Action = domain.Action(action)
		o.Status = domain.OutcomeStatus(status)
		o.Skip = domain.SkipReason(skip)
		o.ErrorKind = domain.ErrorKind(kind)
		if limitPrice.Valid {
			o.Decision.LimitPrice = domain.Ptr(limitPrice.Float64)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// RecentCycles returns the latest cycle summaries, newest first.
func (s *SQLiteStorage) RecentCycles(ctx context.Context, limit int) ([]domain.CycleSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_ms, duration_ms, positions, sells, redeems, skipped, failed, dry_run, warnings
		FROM cycles
		ORDER BY started_ms DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage.RecentCycles: query: %w", err)
	}
	defer rows.Close()

	var out []domain.CycleSummary
	for rows.Next() {
		var (
			c                domain.CycleSummary
			startedMs, durMs int64
			dryRun           int
		)
		if err := rows.Scan(&c.ID, &startedMs, &durMs, &c.Positions, &c.Sells, &c.Redeems,
			&c.Skipped, &c.Failed, &dryRun, &c.Warnings); err != nil {
			return nil, fmt.Errorf("storage.RecentCycles: scan: %w", err)
		}
		c.StartedAt = fromMillis(startedMs)
		c.Duration = time.Duration(durMs) * time.Millisecond
		c.DryRun = dryRun == 1
		out = append(out, c)
	}
	return out, rows.Err()
}
