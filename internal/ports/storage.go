package ports

import (
	"context"

	"github.com/alejandrodnm/polyexit/internal/domain"
)

// AttemptStore persists the attempt ledger across restarts.
type AttemptStore interface {
	LoadAttempts(ctx context.Context) ([]domain.LedgerEntry, error)
	SaveAttempt(ctx context.Context, e domain.LedgerEntry) error
	DeleteAttempt(ctx context.Context, key domain.AttemptKey) error
	Close() error
}

// AcquisitionStore persists first-seen records for the position tracker.
type AcquisitionStore interface {
	LoadAcquisitions(ctx context.Context) (map[string]domain.Acquisition, error)
	UpsertAcquisition(ctx context.Context, a domain.Acquisition) error
	DeleteAcquisition(ctx context.Context, tokenID string) error
}

// Journal keeps an audit trail of cycles and submitted actions.
type Journal interface {
	SaveCycle(ctx context.Context, summary domain.CycleSummary, outcomes []domain.ActionOutcome) error
	RecentOutcomes(ctx context.Context, limit int) ([]domain.ActionOutcome, error)
}
