package domain

// Tradability is the sell-path classification of a position.
type Tradability string

const (
	Tradable        Tradability = "TRADABLE"
	TradRedeemable  Tradability = "REDEEMABLE"
	TradNotTradable Tradability = "NOT_TRADABLE"
	TradNoBid       Tradability = "NO_BID"
)

// CheckTradability classifies p with precedence
// REDEEMABLE, NOT_TRADABLE, NO_BID, then TRADABLE.
func CheckTradability(p Position) Tradability {
	if p.RedeemableProofSource == ProofOnchainDenom || p.RedeemableProofSource == ProofDataAPIFlag {
		return TradRedeemable
	}
	if p.ExecutionStatus == StatusNotTradable || p.ExecutionStatus == StatusExecutionBlocked {
		return TradNotTradable
	}
	if p.CurrentBidPrice == nil {
		return TradNoBid
	}
	return Tradable
}
