package strategy

import (
	"fmt"
	"math"
	"time"

	"github.com/alejandrodnm/polyexit/internal/domain"
)

// Policy is one rung of the exit ladder.
type Policy interface {
	Name() string
	// Evaluate returns a reason and true when the policy wants to sell p.
	Evaluate(p domain.Position, now time.Time) (string, bool)
}

// Ladder evaluates policies in order. The first match wins.
type Ladder struct {
	policies []Policy
}

// NewLadder builds the standard ladder from cfg.
func NewLadder(cfg Config) *Ladder {
	return &Ladder{policies: []Policy{
		DisputeExit{cfg: cfg},
		AutoSell{cfg: cfg},
		QuickWin{cfg: cfg},
		StaleExit{cfg: cfg},
		OversizedExit{cfg: cfg},
	}}
}

// NewCustomLadder builds a ladder from the given policies, in order.
func NewCustomLadder(policies ...Policy) *Ladder {
	return &Ladder{policies: policies}
}

// Evaluate returns the decision for p at now. It has no side effects.
func (l *Ladder) Evaluate(p domain.Position, now time.Time) domain.ExitDecision {
	for _, pol := range l.policies {
		reason, ok := pol.Evaluate(p, now)
		if !ok {
			continue
		}
		d := domain.NoAction(p, reason)
		d.Action = domain.ActionSell
		d.Strategy = pol.Name()
		d.LimitPrice = domain.Ptr(sellPrice(p))
		return d
	}
	return domain.NoAction(p, "hold")
}

// sellPrice prefers the executable bid over the index price.
func sellPrice(p domain.Position) float64 {
	if p.HasBid() {
		return p.Bid()
	}
	return p.CurrentPrice
}

// heldFor is the hold duration from the tracker, falling back to firstAcquiredAt.
func heldFor(p domain.Position, now time.Time) time.Duration {
	if p.TimeHeldSec > 0 {
		return time.Duration(p.TimeHeldSec * float64(time.Second))
	}
	if p.FirstAcquiredAt.IsZero() {
		return 0
	}
	return now.Sub(p.FirstAcquiredAt)
}

// --- Dispute-window exit ---

// DisputeExit sells as soon as the bid reaches the dispute-window price.
type DisputeExit struct{ cfg Config }

func (DisputeExit) Name() string { return domain.StrategyDisputeExit }

func (s DisputeExit) Evaluate(p domain.Position, _ time.Time) (string, bool) {
	if !s.cfg.DisputeExitEnabled || !p.HasBid() {
		return "", false
	}
	if !domain.AtLeast(p.Bid(), s.cfg.DisputeWindowExitPrice) {
		return "", false
	}
	return fmt.Sprintf("bid %.4f >= dispute exit price %.4f", p.Bid(), s.cfg.DisputeWindowExitPrice), true
}

// --- Threshold auto-sell ---

// AutoSell sells near-certain positions once the minimum hold has passed.
type AutoSell struct{ cfg Config }

func (AutoSell) Name() string { return domain.StrategyAutoSell }

func (s AutoSell) Evaluate(p domain.Position, now time.Time) (string, bool) {
	if !s.cfg.AutoSellEnabled || p.EntryMetaUntrusted() {
		return "", false
	}
	price := sellPrice(p)
	if !domain.AtLeast(price, s.cfg.AutoSellThreshold) {
		return "", false
	}
	held := heldFor(p, now)
	if held < s.cfg.minHold() {
		return "", false
	}
	return fmt.Sprintf("price %.4f >= threshold %.4f after %s", price, s.cfg.AutoSellThreshold, held.Round(time.Second)), true
}

// --- Quick win ---

// QuickWin takes large entry-relative gains made shortly after buying.
// It needs trusted entry metadata: an unknown first-seen time is only a lower
// bound on the hold time, which can make an old position look fresh.
type QuickWin struct{ cfg Config }

func (QuickWin) Name() string { return domain.StrategyQuickWin }

func (s QuickWin) Evaluate(p domain.Position, now time.Time) (string, bool) {
	if !s.cfg.QuickWinEnabled || !p.EntryMetaKnownTrusted() || p.EntryPrice <= 0 {
		return "", false
	}
	held := heldFor(p, now)
	if held >= s.cfg.quickWinWindow() {
		return "", false
	}
	gain := (sellPrice(p) - p.EntryPrice) / p.EntryPrice * 100
	if !domain.AtLeast(gain, s.cfg.QuickWinProfitPct) {
		return "", false
	}
	return fmt.Sprintf("gain %.1f%% >= %.1f%% within %s", gain, s.cfg.QuickWinProfitPct, held.Round(time.Second)), true
}

// --- Stale profitable exit ---

// StaleExit frees capital from profitable positions held too long,
// unless the market resolves soon.
type StaleExit struct{ cfg Config }

func (StaleExit) Name() string { return domain.StrategyStaleExit }

func (s StaleExit) Evaluate(p domain.Position, now time.Time) (string, bool) {
	if !s.cfg.StaleExitEnabled || p.EntryMetaUntrusted() {
		return "", false
	}
	if p.PnLPct <= 0 || !p.PnLTrusted || !p.HasBid() {
		return "", false
	}
	if domain.CheckTradability(p) != domain.Tradable || p.FirstAcquiredAt.IsZero() {
		return "", false
	}
	age := now.Sub(p.FirstAcquiredAt)
	if age < hours(s.cfg.StalePositionHours) {
		return "", false
	}
	if s.cfg.StaleExpiryHoldHours > 0 && p.HasEndTime() {
		left := p.TimeToEnd(now)
		if left > 0 && left <= hours(s.cfg.StaleExpiryHoldHours) {
			return "", false
		}
	}
	return fmt.Sprintf("profitable %.1f%% and held %s", p.PnLPct, age.Round(time.Minute)), true
}

// --- Oversized exit ---

// OversizedExit trims positions whose entry cost exceeds the size limit.
type OversizedExit struct{ cfg Config }

func (OversizedExit) Name() string { return domain.StrategyOversizedExit }

func (s OversizedExit) Evaluate(p domain.Position, now time.Time) (string, bool) {
	if !s.cfg.OversizedExitEnabled {
		return "", false
	}
	invested := p.InvestedUSD()
	if invested <= s.cfg.OversizedExitThresholdUSD {
		return "", false
	}
	switch {
	case p.PnLPct > 0:
		return fmt.Sprintf("oversized $%.2f and profitable %.1f%%", invested, p.PnLPct), true
	case math.Abs(p.PnLPct) <= s.cfg.OversizedExitBreakevenTolerancePct:
		return fmt.Sprintf("oversized $%.2f near breakeven %.1f%%", invested, p.PnLPct), true
	case p.HasEndTime() && p.TimeToEnd(now) <= hours(s.cfg.OversizedExitHoursBeforeEvent):
		return fmt.Sprintf("oversized $%.2f at %.1f%% with event in %s", invested, p.PnLPct, p.TimeToEnd(now).Round(time.Minute)), true
	}
	return "", false
}
