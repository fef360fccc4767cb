package ports

import (
	"context"

	"github.com/alejandrodnm/polyexit/internal/domain"
)

// BookProvider fetches CLOB order books using the batch endpoint.
type BookProvider interface {
	// FetchOrderBooks returns books keyed by token ID. Tokens the CLOB does
	// not list are absent from the map.
	FetchOrderBooks(ctx context.Context, tokenIDs []string) (map[string]domain.OrderBook, error)
}
