package domain

import "time"

// Acquisition is the locally persisted first-seen record of a token.
//
// Observed is set when the token appeared between two snapshots, so
// FirstSeenAt brackets the real buy. Tokens already held when tracking
// started only give a lower bound. Mixed is set once the size grew after
// first sight, so the original timestamp no longer describes the whole position.
type Acquisition struct {
	TokenID     string
	MarketID    string
	FirstSeenAt time.Time
	Size        float64
	Observed    bool
	Mixed       bool
	UpdatedAt   time.Time
}

// EntryTrust is the tri-state entry-metadata trust derived from the record.
func (a Acquisition) EntryTrust() *bool {
	switch {
	case a.Mixed:
		return Ptr(false)
	case a.Observed:
		return Ptr(true)
	default:
		return nil
	}
}
