package domain

// Conflict describes a winning sibling position in the same market.
type Conflict struct {
	Side   string
	PnLPct float64
	Size   float64
}

// ConflictingPosition returns the first position in market with a different
// token and non-negative PnL. Breakeven counts as winning.
func ConflictingPosition(positions []Position, marketID, targetTokenID string) *Conflict {
	for _, p := range positions {
		if p.MarketID != marketID || p.TokenID == targetTokenID {
			continue
		}
		if p.PnLPct >= 0 {
			return &Conflict{Side: p.Side, PnLPct: p.PnLPct, Size: p.Size}
		}
	}
	return nil
}
