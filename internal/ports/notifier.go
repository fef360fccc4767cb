package ports

import (
	"context"

	"github.com/alejandrodnm/polyexit/internal/domain"
)

// Notifier presents the result of a cycle.
type Notifier interface {
	NotifyCycle(ctx context.Context, report domain.CycleReport) error
}
