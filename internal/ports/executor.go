package ports

import (
	"context"

	"github.com/alejandrodnm/polyexit/internal/domain"
)

// SellExecutor signs and submits SELL orders to the CLOB.
// Returned errors are tagged with a domain.ErrorKind.
type SellExecutor interface {
	// SubmitSellOrder returns the CLOB order ID.
	SubmitSellOrder(ctx context.Context, order domain.SellOrder) (string, error)
}

// RedemptionExecutor redeems resolved positions on-chain.
// Returned errors are tagged with a domain.ErrorKind.
type RedemptionExecutor interface {
	// SubmitRedemption returns the transaction hash.
	SubmitRedemption(ctx context.Context, r domain.Redemption) (string, error)
}
