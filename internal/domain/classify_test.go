package domain

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

// --- ResolveProof ---

func TestResolveProof_OnchainDenominatorWins(t *testing.T) {
	read := PayoutRead{Checked: true, Denominator: big.NewInt(1)}

	redeemable, src := ResolveProof(false, read)
	assert.True(t, redeemable)
	assert.Equal(t, ProofOnchainDenom, src)

	redeemable, src = ResolveProof(true, read)
	assert.True(t, redeemable)
	assert.Equal(t, ProofOnchainDenom, src)
}

func TestResolveProof_FlagWithoutOnchainRead(t *testing.T) {
	redeemable, src := ResolveProof(true, PayoutRead{})
	assert.True(t, redeemable)
	assert.Equal(t, ProofDataAPIFlag, src)
}

func TestResolveProof_FlagDisagreesWithChain(t *testing.T) {
	redeemable, src := ResolveProof(true, PayoutRead{Checked: true, Denominator: big.NewInt(0)})
	assert.False(t, redeemable, "chain is authoritative for blocking redemption")
	assert.Equal(t, ProofDataAPIUnconfirmed, src)
}

func TestResolveProof_NothingClaimed(t *testing.T) {
	redeemable, src := ResolveProof(false, PayoutRead{Checked: true, Denominator: big.NewInt(0)})
	assert.False(t, redeemable)
	assert.Equal(t, ProofNone, src)

	redeemable, src = ResolveProof(false, PayoutRead{})
	assert.False(t, redeemable)
	assert.Equal(t, ProofNone, src)
}

func TestApplyProof_UnconfirmedStaysOnSellPath(t *testing.T) {
	p := Position{
		Redeemable:      true,
		ExecutionStatus: StatusTradable,
		CurrentBidPrice: Ptr(0.97),
	}
	p.ApplyProof(PayoutRead{Checked: true, Denominator: big.NewInt(0)})

	assert.False(t, p.Redeemable)
	assert.Equal(t, ProofDataAPIUnconfirmed, p.RedeemableProofSource)
	assert.Equal(t, Tradable, CheckTradability(p))
}

// --- CheckTradability ---

func TestCheckTradability_Precedence(t *testing.T) {
	cases := []struct {
		name string
		pos  Position
		want Tradability
	}{
		{
			name: "verified proof beats missing bid and blocked status",
			pos:  Position{RedeemableProofSource: ProofOnchainDenom, ExecutionStatus: StatusExecutionBlocked},
			want: TradRedeemable,
		},
		{
			name: "data api flag is redeemable",
			pos:  Position{RedeemableProofSource: ProofDataAPIFlag, CurrentBidPrice: Ptr(0.5)},
			want: TradRedeemable,
		},
		{
			name: "unconfirmed is not redeemable",
			pos:  Position{RedeemableProofSource: ProofDataAPIUnconfirmed, ExecutionStatus: StatusTradable, CurrentBidPrice: Ptr(0.5)},
			want: Tradable,
		},
		{
			name: "not tradable beats no bid",
			pos:  Position{RedeemableProofSource: ProofNone, ExecutionStatus: StatusNotTradable},
			want: TradNotTradable,
		},
		{
			name: "execution blocked",
			pos:  Position{ExecutionStatus: StatusExecutionBlocked, CurrentBidPrice: Ptr(0.5)},
			want: TradNotTradable,
		},
		{
			name: "no bid",
			pos:  Position{ExecutionStatus: StatusTradable},
			want: TradNoBid,
		},
		{
			name: "tradable",
			pos:  Position{ExecutionStatus: StatusTradable, CurrentBidPrice: Ptr(0.42)},
			want: Tradable,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CheckTradability(tc.pos))
		})
	}
}

// --- ConflictingPosition ---

func TestConflictingPosition_WinningSiblingBlocks(t *testing.T) {
	positions := []Position{
		{MarketID: "M", TokenID: "yes", Side: "Yes", PnLPct: 15, Size: 40},
	}
	c := ConflictingPosition(positions, "M", "no")
	if assert.NotNil(t, c) {
		assert.Equal(t, "Yes", c.Side)
		assert.Equal(t, 15.0, c.PnLPct)
		assert.Equal(t, 40.0, c.Size)
	}
}

func TestConflictingPosition_LosingSiblingDoesNotBlock(t *testing.T) {
	positions := []Position{
		{MarketID: "M", TokenID: "yes", Side: "Yes", PnLPct: -20, Size: 40},
	}
	assert.Nil(t, ConflictingPosition(positions, "M", "no"))
}

func TestConflictingPosition_BreakevenBlocks(t *testing.T) {
	positions := []Position{{MarketID: "M", TokenID: "yes", PnLPct: 0}}
	assert.NotNil(t, ConflictingPosition(positions, "M", "no"))
}

func TestConflictingPosition_IgnoresSameTokenAndOtherMarkets(t *testing.T) {
	positions := []Position{
		{MarketID: "M", TokenID: "no", PnLPct: 50},
		{MarketID: "OTHER", TokenID: "yes", PnLPct: 50},
	}
	assert.Nil(t, ConflictingPosition(positions, "M", "no"))
}

// --- ClassifyMessage ---

func TestClassifyMessage(t *testing.T) {
	cases := map[string]ErrorKind{
		"execution reverted: result for condition not received yet": KindNotResolved,
		"Condition not resolved":                                     KindNotResolved,
		"preflight: payoutDenominator=0":                             KindNotResolved,
		"unexpected status 429: slow down":                           KindRateLimited,
		"HTTP 503 Service Unavailable":                               KindRateLimited,
		"json-rpc error -32005: limit exceeded":                      KindRateLimited,
		"code=-32000 header not found":                               KindRateLimited,
		"transfer of 1032000 shares reverted":                        KindDurable,
		"Too Many Requests":                                          KindRateLimited,
		"missing response for request":                               KindRateLimited,
		"could not decode result data (code=BAD_DATA)":               KindRateLimited,
		"replacement transaction underpriced":                        KindNonceConflict,
		"nonce too low: next nonce 12, tx nonce 11":                  KindNonceConflict,
		"already known":                                              KindNonceConflict,
		"execution reverted: SafeMath: subtraction overflow":         KindDurable,
		"tx 0xab4290ff reverted":                                     KindDurable,
	}
	for msg, want := range cases {
		assert.Equal(t, want, ClassifyMessage(msg), msg)
	}
}

func TestClassify_TagsAndPassesThrough(t *testing.T) {
	assert.Nil(t, Classify(nil))

	err := Classify(assert.AnError)
	assert.Equal(t, KindDurable, KindOf(err))
	assert.ErrorIs(t, err, assert.AnError)

	tagged := &ActionError{Kind: KindRateLimited, Err: assert.AnError}
	assert.Same(t, tagged, Classify(tagged))
	assert.Equal(t, KindRateLimited, KindOf(tagged))
}

func TestErrorKind_Counted(t *testing.T) {
	assert.False(t, KindUnavailable.Counted())
	assert.True(t, KindDurable.Counted())
	assert.False(t, KindNotResolved.Counted())
	assert.False(t, KindRateLimited.Counted())
	assert.False(t, KindNonceConflict.Counted())
}
