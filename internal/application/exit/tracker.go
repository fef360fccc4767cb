package exit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/polyexit/internal/domain"
	"github.com/alejandrodnm/polyexit/internal/ports"
)

// defaultForgetAfter keeps records of tokens missing from snapshots for a while,
// so one empty API response does not wipe acquisition history.
const defaultForgetAfter = time.Hour

// Tracker reconciles snapshots with first-seen records and fills the
// hold-time and entry-trust fields of each position.
type Tracker struct {
	store       ports.AcquisitionStore // nil keeps records in memory only
	tolerance   float64                // shares of growth ignored before marking a record mixed
	forgetAfter time.Duration

	mu      sync.Mutex
	records map[string]domain.Acquisition
	primed  bool
}

// NewTracker builds a tracker. tolerance is in shares.
func NewTracker(store ports.AcquisitionStore, tolerance float64) *Tracker {
	return &Tracker{
		store:       store,
		tolerance:   tolerance,
		forgetAfter: defaultForgetAfter,
		records:     make(map[string]domain.Acquisition),
	}
}

// Load reads persisted records. Call once before the first Reconcile.
func (t *Tracker) Load(ctx context.Context) error {
	if t.store == nil {
		return nil
	}
	records, err := t.store.LoadAcquisitions(ctx)
	if err != nil {
		return fmt.Errorf("exit.Tracker.Load: %w", err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records = records
	return nil
}

// Reconcile updates records from positions and returns them with
// FirstAcquiredAt, TimeHeldSec and EntryMetaTrusted set.
//
// Tokens seen on the first reconcile of the process were already held, so
// their first-seen time is only a lower bound and trust stays unknown. An
// acquisition time carried by the snapshot is kept and makes the hold time known.
func (t *Tracker) Reconcile(ctx context.Context, positions []domain.Position, now time.Time) []domain.Position {
	t.mu.Lock()
	defer t.mu.Unlock()

	var dirty []domain.Acquisition
	seen := make(map[string]bool, len(positions))
	out := make([]domain.Position, len(positions))

	for i, p := range positions {
		seen[p.TokenID] = true
		rec, ok := t.records[p.TokenID]
		upstream := !p.FirstAcquiredAt.IsZero() && !p.FirstAcquiredAt.After(now)
		switch {
		case !ok:
			rec = domain.Acquisition{
				TokenID:     p.TokenID,
				MarketID:    p.MarketID,
				FirstSeenAt: now,
				Size:        p.Size,
				Observed:    t.primed || upstream,
			}
			if upstream {
				rec.FirstSeenAt = p.FirstAcquiredAt
			}
		case upstream && p.FirstAcquiredAt.Before(rec.FirstSeenAt):
			rec.FirstSeenAt = p.FirstAcquiredAt
			rec.Observed = true
		}
		if ok && p.Size > rec.Size+t.tolerance {
			if !rec.Mixed {
				slog.Info("exit: position grew, entry metadata untrusted",
					"market", p.MarketID, "token", p.TokenID,
					"from", rec.Size, "to", p.Size)
			}
			rec.Mixed = true
		}
		rec.Size = p.Size
		rec.UpdatedAt = now
		t.records[p.TokenID] = rec
		dirty = append(dirty, rec)

		p.FirstAcquiredAt = rec.FirstSeenAt
		p.TimeHeldSec = now.Sub(rec.FirstSeenAt).Seconds()
		p.EntryMetaTrusted = rec.EntryTrust()
		out[i] = p
	}

	var forgotten []string
	for token, rec := range t.records {
		if seen[token] || now.Sub(rec.UpdatedAt) < t.forgetAfter {
			continue
		}
		delete(t.records, token)
		forgotten = append(forgotten, token)
	}
	t.primed = true

	t.persist(ctx, dirty, forgotten)
	return out
}

func (t *Tracker) persist(ctx context.Context, dirty []domain.Acquisition, forgotten []string) {
	if t.store == nil {
		return
	}
	for _, rec := range dirty {
		if err := t.store.UpsertAcquisition(ctx, rec); err != nil {
			slog.Warn("exit: save acquisition failed", "token", rec.TokenID, "err", err)
		}
	}
	for _, token := range forgotten {
		if err := t.store.DeleteAcquisition(ctx, token); err != nil {
			slog.Warn("exit: delete acquisition failed", "token", token, "err", err)
		}
	}
}
