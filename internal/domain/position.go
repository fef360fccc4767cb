package domain

import (
	"math"
	"time"
)

// ProofSource records where redeemability evidence came from.
type ProofSource string

const (
	ProofOnchainDenom       ProofSource = "ONCHAIN_DENOM"
	ProofDataAPIFlag        ProofSource = "DATA_API_FLAG"
	ProofDataAPIUnconfirmed ProofSource = "DATA_API_UNCONFIRMED"
	ProofNone               ProofSource = "NONE"
)

// ExecutionStatus says whether a token can currently be sold on the CLOB.
type ExecutionStatus string

const (
	StatusTradable         ExecutionStatus = "TRADABLE"
	StatusNotTradable      ExecutionStatus = "NOT_TRADABLE_ON_CLOB"
	StatusExecutionBlocked ExecutionStatus = "EXECUTION_BLOCKED"
)

// Position is one outcome-token holding of the wallet.
type Position struct {
	MarketID     string // condition ID
	TokenID      string
	Side         string // outcome label, e.g. "Yes"
	OutcomeIndex int
	Title        string
	NegRisk      bool

	Size         float64
	EntryPrice   float64
	CurrentPrice float64
	// CurrentBidPrice is nil when the book has no bids.
	CurrentBidPrice *float64

	PnLPct     float64 // percent units, 8 means +8%
	PnLUSD     float64
	PnLTrusted bool
	// EntryMetaTrusted is nil when unknown.
	EntryMetaTrusted *bool

	FirstAcquiredAt time.Time
	TimeHeldSec     float64

	Redeemable            bool
	RedeemableProofSource ProofSource
	ExecutionStatus       ExecutionStatus

	// MarketEndTime is zero when unknown.
	MarketEndTime time.Time
}

// HasBid reports whether a best bid is known.
func (p Position) HasBid() bool {
	return p.CurrentBidPrice != nil
}

// Bid returns the best bid, or 0 when none.
func (p Position) Bid() float64 {
	if p.CurrentBidPrice == nil {
		return 0
	}
	return *p.CurrentBidPrice
}

// EntryMetaUntrusted is true only when entry metadata is known to be wrong.
func (p Position) EntryMetaUntrusted() bool {
	return p.EntryMetaTrusted != nil && !*p.EntryMetaTrusted
}

// EntryMetaKnownTrusted is true only when entry metadata is known to be right.
func (p Position) EntryMetaKnownTrusted() bool {
	return p.EntryMetaTrusted != nil && *p.EntryMetaTrusted
}

// InvestedUSD is the entry cost of the position.
func (p Position) InvestedUSD() float64 {
	return p.Size * p.EntryPrice
}

// ValueUSD is the position marked at the current index price.
func (p Position) ValueUSD() float64 {
	return p.Size * p.CurrentPrice
}

// HasEndTime reports whether the market end time is known.
func (p Position) HasEndTime() bool {
	return !p.MarketEndTime.IsZero()
}

// TimeToEnd returns the remaining time until market end. Negative once past.
func (p Position) TimeToEnd(now time.Time) time.Duration {
	return p.MarketEndTime.Sub(now)
}

// ComputePnL fills PnLPct and PnLUSD from entry and current price.
// PnLTrusted is false when the entry price is not positive.
func (p *Position) ComputePnL() {
	if p.EntryPrice <= 0 || math.IsNaN(p.EntryPrice) {
		p.PnLTrusted = false
		p.PnLPct = 0
		p.PnLUSD = 0
		return
	}
	p.PnLTrusted = true
	p.PnLPct = (p.CurrentPrice - p.EntryPrice) / p.EntryPrice * 100
	p.PnLUSD = (p.CurrentPrice - p.EntryPrice) * p.Size
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

const priceEpsilon = 1e-9

// AtLeast compares a >= b with float tolerance.
func AtLeast(a, b float64) bool {
	return a+priceEpsilon >= b
}
