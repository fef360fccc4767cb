package domain

// SellOrder is a limit SELL to submit on the CLOB.
type SellOrder struct {
	TokenID    string
	MarketID   string
	Size       float64 // shares
	LimitPrice float64
	NegRisk    bool
}

// Redemption asks the chain to pay out a resolved condition.
// Amounts holds the held shares per outcome index, used by neg-risk markets.
type Redemption struct {
	MarketID string
	NegRisk  bool
	Amounts  map[int]float64
}

// CycleReport is what the notifier shows after a cycle.
type CycleReport struct {
	Summary   CycleSummary
	Decisions []ExitDecision
	Outcomes  []ActionOutcome
	Warnings  []string
}
