package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputePnL_Trusted(t *testing.T) {
	p := Position{Size: 100, EntryPrice: 0.40, CurrentPrice: 0.50}
	p.ComputePnL()
	assert.True(t, p.PnLTrusted)
	assert.InDelta(t, 25.0, p.PnLPct, 1e-9)
	assert.InDelta(t, 10.0, p.PnLUSD, 1e-9)
}

func TestComputePnL_ZeroEntryIsUntrusted(t *testing.T) {
	p := Position{Size: 100, EntryPrice: 0, CurrentPrice: 0.50}
	p.ComputePnL()
	assert.False(t, p.PnLTrusted)
	assert.Equal(t, 0.0, p.PnLPct)
}

func TestEntryMetaUntrusted_TriState(t *testing.T) {
	assert.False(t, Position{}.EntryMetaUntrusted())
	assert.False(t, Position{EntryMetaTrusted: Ptr(true)}.EntryMetaUntrusted())
	assert.True(t, Position{EntryMetaTrusted: Ptr(false)}.EntryMetaUntrusted())

	assert.False(t, Position{}.EntryMetaKnownTrusted())
	assert.False(t, Position{EntryMetaTrusted: Ptr(false)}.EntryMetaKnownTrusted())
	assert.True(t, Position{EntryMetaTrusted: Ptr(true)}.EntryMetaKnownTrusted())
}

func TestOrderBook_BestBid(t *testing.T) {
	_, ok := OrderBook{}.BestBid()
	assert.False(t, ok)

	ob := OrderBook{Bids: []BookEntry{{Price: 0.61, Size: 10}, {Price: 0.60, Size: 5}, {Price: 0.50, Size: 100}}}
	bid, ok := ob.BestBid()
	assert.True(t, ok)
	assert.Equal(t, 0.61, bid)
}
