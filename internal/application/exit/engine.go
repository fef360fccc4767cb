// Package exit runs the per-cycle exit pipeline for one wallet: snapshot,
// concurrent lookups, pure evaluation, then serialized submission.
package exit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/polyexit/internal/domain"
	"github.com/alejandrodnm/polyexit/internal/domain/strategy"
	"github.com/alejandrodnm/polyexit/internal/ports"
)

// Config holds the settings that may change between cycles.
type Config struct {
	Strategy          strategy.Config
	MinPositionUSD    float64 // redemptions worth less are skipped unless IncludeLosses
	IncludeLosses     bool
	EvalWorkers       int // 0 = NumCPU*2
	LookupParallelism int // 0 = 8
}

// DefaultConfig returns the default strategy and a $0.10 redemption floor.
func DefaultConfig() Config {
	return Config{
		Strategy:       strategy.Defaults(),
		MinPositionUSD: 0.10,
	}
}

// Deps are the engine collaborators. Tracker, EndTimes, Attempts, Journal and
// Notifier are optional. Seller and Redeemer may be nil only in dry-run mode.
type Deps struct {
	Positions ports.PositionProvider
	Books     ports.BookProvider
	Resolver  ports.ResolutionReader
	Seller    ports.SellExecutor
	Redeemer  ports.RedemptionExecutor

	Tracker  *Tracker
	EndTimes ports.EndTimeProvider
	Attempts ports.AttemptStore
	Journal  ports.Journal
	Notifier ports.Notifier

	Ledger  *domain.AttemptLedger
	Backoff *domain.Backoff
	Clock   func() time.Time
}

// Engine owns the ledger and backoff state of one wallet.
type Engine struct {
	positions ports.PositionProvider
	books     ports.BookProvider
	resolver  ports.ResolutionReader
	seller    ports.SellExecutor
	redeemer  ports.RedemptionExecutor
	tracker   *Tracker
	endTimes  ports.EndTimeProvider
	attempts  ports.AttemptStore
	journal   ports.Journal
	notifier  ports.Notifier

	ledger  *domain.AttemptLedger
	backoff *domain.Backoff
	now     func() time.Time
	dryRun  bool

	cfgMu sync.RWMutex
	cfg   Config

	// submitMu serializes submissions for the wallet.
	submitMu sync.Mutex
}

// New validates deps and builds an Engine.
func New(cfg Config, deps Deps, dryRun bool) (*Engine, error) {
	if deps.Positions == nil || deps.Books == nil || deps.Resolver == nil {
		return nil, errors.New("exit.New: positions, books and resolver are required")
	}
	if !dryRun && (deps.Seller == nil || deps.Redeemer == nil) {
		return nil, errors.New("exit.New: seller and redeemer are required outside dry-run")
	}
	if deps.Ledger == nil {
		return nil, errors.New("exit.New: ledger is required")
	}
	if deps.Backoff == nil {
		deps.Backoff = domain.NewBackoff(30*time.Second, 10*time.Minute)
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	return &Engine{
		positions: deps.Positions,
		books:     deps.Books,
		resolver:  deps.Resolver,
		seller:    deps.Seller,
		redeemer:  deps.Redeemer,
		tracker:   deps.Tracker,
		endTimes:  deps.EndTimes,
		attempts:  deps.Attempts,
		journal:   deps.Journal,
		notifier:  deps.Notifier,
		ledger:    deps.Ledger,
		backoff:   deps.Backoff,
		now:       deps.Clock,
		dryRun:    dryRun,
		cfg:       cfg,
	}, nil
}

// SetConfig replaces the config used from the next cycle on.
func (e *Engine) SetConfig(cfg Config) {
	e.cfgMu.Lock()
	e.cfg = cfg
	e.cfgMu.Unlock()
}

func (e *Engine) config() Config {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()
	return e.cfg
}

// Restore loads the persisted ledger and acquisition records.
func (e *Engine) Restore(ctx context.Context) error {
	if e.attempts != nil {
		entries, err := e.attempts.LoadAttempts(ctx)
		if err != nil {
			return fmt.Errorf("exit.Restore: attempts: %w", err)
		}
		e.ledger.Restore(entries)
		slog.Info("exit: attempt ledger restored", "entries", len(entries))
	}
	if e.tracker != nil {
		if err := e.tracker.Load(ctx); err != nil {
			return fmt.Errorf("exit.Restore: %w", err)
		}
	}
	return nil
}

// ResetMarket clears the redemption ledger entry of a market, lifting a
// tripped breaker. Returns false if there was nothing to clear.
func (e *Engine) ResetMarket(ctx context.Context, marketID string) (bool, error) {
	key := domain.RedeemKey(marketID)
	existed := e.ledger.Reset(key)
	if e.attempts != nil {
		if err := e.attempts.DeleteAttempt(ctx, key); err != nil {
			return existed, fmt.Errorf("exit.ResetMarket: %w", err)
		}
	}
	return existed, nil
}

// syncResets lifts breakers whose persisted row was deleted by another
// process, e.g. exitbot -reset-market. A failed read keeps current state.
func (e *Engine) syncResets(ctx context.Context) {
	if e.attempts == nil {
		return
	}
	entries, err := e.attempts.LoadAttempts(ctx)
	if err != nil {
		slog.Warn("exit: reload attempt ledger failed", "err", err)
		return
	}
	for _, key := range e.ledger.ReleaseMissing(entries) {
		slog.Info("exit: breaker reset externally", "key", key.String())
	}
}

// Ledger returns the current ledger entries for reporting.
func (e *Engine) Ledger() []domain.LedgerEntry {
	return e.ledger.Snapshot()
}

// CheckBuy reports a winning sibling position that would conflict with
// buying tokenID in marketID. Nil means the buy is allowed.
func (e *Engine) CheckBuy(ctx context.Context, marketID, tokenID string) (*domain.Conflict, error) {
	positions, err := e.positions.FetchPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("exit.CheckBuy: fetch positions: %w", err)
	}
	return domain.ConflictingPosition(positions, marketID, tokenID), nil
}

// RunOnce runs one full cycle: snapshot, tracking, lookups, evaluation and
// submission. Only a failed snapshot fails the cycle.
func (e *Engine) RunOnce(ctx context.Context) (domain.CycleReport, error) {
	start := e.now()
	e.syncResets(ctx)

	positions, err := e.positions.FetchPositions(ctx)
	if err != nil {
		return domain.CycleReport{}, fmt.Errorf("exit.RunOnce: fetch positions: %w", err)
	}
	if e.tracker != nil {
		positions = e.tracker.Reconcile(ctx, positions, start)
	}

	report := e.cycle(ctx, positions, start)

	if e.notifier != nil {
		if err := e.notifier.NotifyCycle(ctx, report); err != nil {
			slog.Warn("exit: notifier error", "err", err)
		}
	}
	if e.journal != nil {
		if err := e.journal.SaveCycle(ctx, report.Summary, report.Outcomes); err != nil {
			slog.Warn("exit: journal error", "err", err)
		}
	}

	slog.Info("exit: cycle complete",
		"cycle", report.Summary.ID,
		"positions", report.Summary.Positions,
		"sells", report.Summary.Sells,
		"redeems", report.Summary.Redeems,
		"skipped", report.Summary.Skipped,
		"failed", report.Summary.Failed,
		"duration", report.Summary.Duration.Round(time.Millisecond),
	)
	return report, nil
}

// EvaluateAndAct decides and acts on an already fetched snapshot and returns
// one decision per position. It does not notify or journal.
func (e *Engine) EvaluateAndAct(ctx context.Context, positions []domain.Position) []domain.ExitDecision {
	return e.cycle(ctx, positions, e.now()).Decisions
}

func (e *Engine) cycle(ctx context.Context, positions []domain.Position, start time.Time) domain.CycleReport {
	cfg := e.config()

	positions, endWarning := e.enrichEndTimes(ctx, positions)
	data := e.lookup(ctx, positions, cfg.LookupParallelism)
	positions = data.apply(positions)

	decisions := evaluateConcurrent(strategy.NewLadder(cfg.Strategy), positions, e.now(), cfg.EvalWorkers)
	outcomes := e.submitAll(ctx, cfg, positions, decisions)

	warnings := data.warnings
	if endWarning != "" {
		warnings = append(warnings, endWarning)
	}

	summary := domain.CycleSummary{
		ID:        uuid.New().String(),
		StartedAt: start,
		Duration:  e.now().Sub(start),
		Positions: len(positions),
		DryRun:    e.dryRun,
		Warnings:  len(warnings),
	}
	for _, o := range outcomes {
		switch o.Status {
		case domain.OutcomeSubmitted, domain.OutcomeDryRun:
			if o.Decision.Action == domain.ActionRedeem {
				summary.Redeems++
			} else {
				summary.Sells++
			}
		case domain.OutcomeSkipped:
			summary.Skipped++
		case domain.OutcomeFailed:
			summary.Failed++
		}
	}

	return domain.CycleReport{
		Summary:   summary,
		Decisions: decisions,
		Outcomes:  outcomes,
		Warnings:  warnings,
	}
}
