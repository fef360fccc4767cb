package domain

import "math/big"

// PayoutRead is the outcome of reading payoutDenominator for a condition.
// Checked is false when the read failed or was not attempted.
type PayoutRead struct {
	Checked     bool
	Denominator *big.Int
}

// Resolved reports whether the condition has settled on-chain.
func (r PayoutRead) Resolved() bool {
	return r.Checked && r.Denominator != nil && r.Denominator.Sign() > 0
}

// ResolveProof reconciles the Data API redeemable flag with the on-chain read.
// A failed read is never treated as "not resolved".
func ResolveProof(flag bool, read PayoutRead) (redeemable bool, source ProofSource) {
	switch {
	case read.Resolved():
		return true, ProofOnchainDenom
	case flag && !read.Checked:
		return true, ProofDataAPIFlag
	case flag:
		return false, ProofDataAPIUnconfirmed
	default:
		return false, ProofNone
	}
}

// ApplyProof sets the redeemable fields of p from read.
func (p *Position) ApplyProof(read PayoutRead) {
	p.Redeemable, p.RedeemableProofSource = ResolveProof(p.Redeemable, read)
}
