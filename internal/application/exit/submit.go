package exit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/polyexit/internal/domain"
)

// action is one submission: a redemption for a whole market or a sell of one token.
type action struct {
	decision   domain.ExitDecision
	key        domain.AttemptKey
	valueUSD   float64
	redemption *domain.Redemption
	order      *domain.SellOrder
}

// planActions groups REDEEM decisions per market and keeps SELL decisions
// per token. Redemptions come first, in market order of appearance.
func planActions(positions []domain.Position, decisions []domain.ExitDecision) []action {
	var redeems, sells []action
	byMarket := make(map[string]int)

	for i, d := range decisions {
		p := positions[i]
		switch d.Action {
		case domain.ActionRedeem:
			idx, ok := byMarket[p.MarketID]
			if !ok {
				idx = len(redeems)
				byMarket[p.MarketID] = idx
				rd := domain.ExitDecision{
					MarketID: p.MarketID,
					Action:   domain.ActionRedeem,
					Strategy: domain.StrategyRedeem,
					Reason:   d.Reason,
				}
				redeems = append(redeems, action{
					decision: rd,
					key:      domain.RedeemKey(p.MarketID),
					redemption: &domain.Redemption{
						MarketID: p.MarketID,
						Amounts:  make(map[int]float64),
					},
				})
			}
			a := &redeems[idx]
			a.decision.Size += p.Size
			a.valueUSD += p.ValueUSD()
			a.redemption.NegRisk = a.redemption.NegRisk || p.NegRisk
			a.redemption.Amounts[p.OutcomeIndex] += p.Size
		case domain.ActionSell:
			if d.LimitPrice == nil {
				continue
			}
			sells = append(sells, action{
				decision: d,
				key:      domain.SellKey(p.TokenID),
				order: &domain.SellOrder{
					TokenID:    p.TokenID,
					MarketID:   p.MarketID,
					Size:       p.Size,
					LimitPrice: *d.LimitPrice,
					NegRisk:    p.NegRisk,
				},
			})
		}
	}
	return append(redeems, sells...)
}

// submitAll runs actions one at a time. Each outcome is recorded in the
// ledger before the next submission starts.
func (e *Engine) submitAll(ctx context.Context, cfg Config, positions []domain.Position, decisions []domain.ExitDecision) []domain.ActionOutcome {
	actions := planActions(positions, decisions)
	if len(actions) == 0 {
		return nil
	}

	e.submitMu.Lock()
	defer e.submitMu.Unlock()

	outcomes := make([]domain.ActionOutcome, 0, len(actions))
	for _, a := range actions {
		if ctx.Err() != nil {
			break
		}
		o := e.submit(ctx, cfg, a)
		outcomes = append(outcomes, o)
		logOutcome(o)
	}
	return outcomes
}

func (e *Engine) submit(ctx context.Context, cfg Config, a action) domain.ActionOutcome {
	now := e.now()
	out := domain.ActionOutcome{Decision: a.decision, At: now}

	if e.backoff.Active(now) {
		return skipped(out, domain.SkipRateLimited)
	}
	if reason := e.ledger.Check(a.key, now); reason != domain.SkipNone {
		return skipped(out, reason)
	}
	if a.redemption != nil && a.valueUSD < cfg.MinPositionUSD && !cfg.IncludeLosses {
		return skipped(out, domain.SkipBelowMinValue)
	}
	if e.dryRun {
		out.Status = domain.OutcomeDryRun
		return out
	}

	var (
		ref string
		err error
	)
	if a.redemption != nil {
		ref, err = e.redeemer.SubmitRedemption(ctx, *a.redemption)
	} else {
		ref, err = e.seller.SubmitSellOrder(ctx, *a.order)
	}

	switch {
	case err == nil:
		e.ledger.RecordSuccess(a.key)
		e.backoff.Clear()
		e.forgetAttempt(ctx, a.key)
		out.Status = domain.OutcomeSubmitted
		out.Ref = ref
		return out
	case errors.Is(err, domain.ErrOpenSellExists):
		return skipped(out, domain.SkipOpenOrder)
	case errors.Is(err, domain.ErrZeroBalance):
		return skipped(out, domain.SkipZeroBalance)
	}

	kind := domain.KindOf(err)
	attempt := e.ledger.RecordOutcome(a.key, kind, now)
	e.saveAttempt(ctx, domain.LedgerEntry{Key: a.key, Attempt: attempt})
	out.ErrorKind = kind
	out.Error = err.Error()

	switch kind {
	case domain.KindNotResolved:
		return skipped(out, domain.SkipNotResolved)
	case domain.KindRateLimited:
		wait := e.backoff.Trip(now)
		slog.Warn("exit: rate limited, backing off", "key", a.key.String(), "wait", wait)
		return skipped(out, domain.SkipRateLimited)
	case domain.KindNonceConflict:
		return skipped(out, domain.SkipNonceConflict)
	case domain.KindUnavailable:
		return skipped(out, domain.SkipUnavailable)
	}

	out.Status = domain.OutcomeFailed
	if ceiling := e.ledger.MaxFailures(); ceiling > 0 && attempt.ConsecutiveFailures >= ceiling {
		slog.Error("exit: failure ceiling reached, entry blocked until reset",
			"key", a.key.String(), "failures", attempt.ConsecutiveFailures)
	}
	return out
}

func skipped(out domain.ActionOutcome, reason domain.SkipReason) domain.ActionOutcome {
	out.Status = domain.OutcomeSkipped
	out.Skip = reason
	return out
}

func (e *Engine) saveAttempt(ctx context.Context, entry domain.LedgerEntry) {
	if e.attempts == nil {
		return
	}
	if err := e.attempts.SaveAttempt(ctx, entry); err != nil {
		slog.Warn("exit: persist attempt failed", "key", entry.Key.String(), "err", err)
	}
}

func (e *Engine) forgetAttempt(ctx context.Context, key domain.AttemptKey) {
	if e.attempts == nil {
		return
	}
	if err := e.attempts.DeleteAttempt(ctx, key); err != nil {
		slog.Warn("exit: delete attempt failed", "key", key.String(), "err", err)
	}
}

func logOutcome(o domain.ActionOutcome) {
	attrs := []any{
		"action", o.Decision.Action,
		"market", o.Decision.MarketID,
		"status", o.Status,
	}
	if o.Decision.TokenID != "" {
		attrs = append(attrs, "token", o.Decision.TokenID)
	}
	if o.Decision.Strategy != "" {
		attrs = append(attrs, "strategy", o.Decision.Strategy)
	}
	if o.Decision.LimitPrice != nil {
		attrs = append(attrs, "price", fmt.Sprintf("%.4f", *o.Decision.LimitPrice))
	}
	switch o.Status {
	case domain.OutcomeFailed:
		slog.Warn("exit: action failed", append(attrs, "kind", o.ErrorKind, "err", o.Error)...)
	case domain.OutcomeSkipped:
		slog.Debug("exit: action skipped", append(attrs, "reason", o.Skip)...)
	default:
		slog.Info("exit: action", append(attrs, "ref", o.Ref, "at", o.At.Format(time.RFC3339))...)
	}
}
