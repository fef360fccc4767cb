package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/alejandrodnm/polyexit/config"
	"github.com/alejandrodnm/polyexit/internal/adapters/notify"
	"github.com/alejandrodnm/polyexit/internal/adapters/storage"
	"github.com/alejandrodnm/polyexit/internal/application/exit"
	"github.com/alejandrodnm/polyexit/internal/ports"
)

const stopFile = "STOP_EXIT"

// recentLimit is how many journal rows -report shows.
const recentLimit = 20

// runLoop runs a cycle per tick until ctx ends or the stop file appears.
// The config file is reloaded before every cycle after the first.
func runLoop(ctx context.Context, engine *exit.Engine, configPath string, cfg *config.Config, once bool) {
	cycle := 1
	runCycle(ctx, engine, cycle)
	if once {
		return
	}

	interval := cfg.Interval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("exit loop started, press Ctrl+C or create "+stopFile+" to stop", "interval", interval)

	for {
		select {
		case <-ctx.Done():
			slog.Info("exit loop stopped (signal)", "total_cycles", cycle)
			return
		case <-ticker.C:
			if _, err := os.Stat(stopFile); err == nil {
				slog.Info(stopFile+" file detected, shutting down", "total_cycles", cycle)
				os.Remove(stopFile)
				return
			}

			if next, err := config.Load(configPath); err != nil {
				slog.Warn("config reload failed, keeping previous config", "err", err)
			} else {
				engine.SetConfig(engineConfig(next))
				if next.Interval() != interval {
					interval = next.Interval()
					ticker.Reset(interval)
					slog.Info("poll interval changed", "interval", interval)
				}
			}

			cycle++
			runCycle(ctx, engine, cycle)
		}
	}
}

func runCycle(ctx context.Context, engine *exit.Engine, cycle int) {
	report, err := engine.RunOnce(ctx)
	if err != nil {
		slog.Error("exit cycle failed", "cycle", cycle, "err", err)
		return
	}
	for _, w := range report.Warnings {
		slog.Warn("exit: warning", "cycle", cycle, "msg", w)
	}
}

func runReport(ctx context.Context, cfg *config.Config, attempts ports.AttemptStore, journal *storage.SQLiteStorage, console *notify.Console) {
	ledger, err := attempts.LoadAttempts(ctx)
	if err != nil {
		slog.Error("failed to load attempt ledger", "err", err)
		os.Exit(1)
	}
	outcomes, err := journal.RecentOutcomes(ctx, recentLimit)
	if err != nil {
		slog.Error("failed to load outcomes", "err", err)
		os.Exit(1)
	}
	recent, err := journal.RecentCycles(ctx, recentLimit)
	if err != nil {
		slog.Error("failed to load cycles", "err", err)
		os.Exit(1)
	}

	console.PrintReport(notify.ReportInput{
		Now:         time.Now(),
		Ledger:      ledger,
		MaxFailures: cfg.Redemption.MaxFailures,
		Cooldown:    cfg.Cooldown(),
		Outcomes:    outcomes,
		Cycles:      recent,
	})
}

func runResetMarket(ctx context.Context, engine *exit.Engine, marketID string) {
	cleared, err := engine.ResetMarket(ctx, marketID)
	if err != nil {
		slog.Error("reset failed", "market", marketID, "err", err)
		os.Exit(1)
	}
	if !cleared {
		slog.Warn("no ledger entry for market", "market", marketID)
		return
	}
	slog.Info("ledger entry cleared, a running exitbot picks it up on its next cycle", "market", marketID)
}

func runCheckBuy(ctx context.Context, engine *exit.Engine, console *notify.Console, marketID, tokenID string) {
	conflict, err := engine.CheckBuy(ctx, marketID, tokenID)
	if err != nil {
		slog.Error("conflict check failed", "err", err)
		os.Exit(1)
	}
	console.PrintConflict(marketID, tokenID, conflict)
	if conflict != nil {
		os.Exit(3)
	}
}
