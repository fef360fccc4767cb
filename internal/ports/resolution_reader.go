package ports

import (
	"context"
	"math/big"
)

// ResolutionReader reads settlement state from the CTF contract.
type ResolutionReader interface {
	// PayoutDenominator is zero before resolution. Errors may be transient.
	PayoutDenominator(ctx context.Context, conditionID string) (*big.Int, error)
}
