package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/polyexit/internal/domain"
)

// PositionProvider returns the current holdings of the wallet.
type PositionProvider interface {
	FetchPositions(ctx context.Context) ([]domain.Position, error)
}

// EndTimeProvider enriches positions whose market end time is unknown.
type EndTimeProvider interface {
	// FetchEndTimes returns end times keyed by condition ID.
	FetchEndTimes(ctx context.Context, conditionIDs []string) (map[string]time.Time, error)
}
