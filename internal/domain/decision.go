package domain

import "time"

// Action is what the engine decided to do with a position.
type Action string

const (
	ActionNone   Action = "NONE"
	ActionSell   Action = "SELL"
	ActionRedeem Action = "REDEEM"
)

// Strategy names used in decisions and the journal.
const (
	StrategyDisputeExit   = "dispute_exit"
	StrategyAutoSell      = "threshold_autosell"
	StrategyQuickWin      = "quick_win"
	StrategyStaleExit     = "stale_exit"
	StrategyOversizedExit = "oversized_exit"
	StrategyRedeem        = "redeem"
)

// ExitDecision is the per-cycle verdict for one position.
type ExitDecision struct {
	MarketID   string
	TokenID    string
	Side       string
	Size       float64
	Action     Action
	Strategy   string
	LimitPrice *float64
	Reason     string
}

// NoAction builds a NONE decision for p.
func NoAction(p Position, reason string) ExitDecision {
	return ExitDecision{
		MarketID: p.MarketID,
		TokenID:  p.TokenID,
		Side:     p.Side,
		Size:     p.Size,
		Action:   ActionNone,
		Reason:   reason,
	}
}

// OutcomeStatus is the result of submitting a decision.
type OutcomeStatus string

const (
	OutcomeSubmitted OutcomeStatus = "SUBMITTED"
	OutcomeSkipped   OutcomeStatus = "SKIPPED"
	OutcomeFailed    OutcomeStatus = "FAILED"
	OutcomeDryRun    OutcomeStatus = "DRY_RUN"
)

// ActionOutcome records what happened to a SELL or REDEEM decision.
type ActionOutcome struct {
	Decision  ExitDecision
	Status    OutcomeStatus
	Skip      SkipReason // set when Status is SKIPPED
	ErrorKind ErrorKind  // set when the submitter returned an error
	Ref       string     // tx hash or CLOB order ID
	Error     string
	At        time.Time
}

// CycleSummary is the persisted record of one evaluation cycle.
type CycleSummary struct {
	ID        string
	StartedAt time.Time
	Duration  time.Duration
	Positions int
	Sells     int
	Redeems   int
	Skipped   int
	Failed    int
	DryRun    bool
	Warnings  int
}
