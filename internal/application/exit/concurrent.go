package exit

import (
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/alejandrodnm/polyexit/internal/domain"
	"github.com/alejandrodnm/polyexit/internal/domain/strategy"
)

// evaluateConcurrent decides every position in a worker pool. Evaluation is
// pure, so results only depend on the inputs; they come back in input order.
//
// If workers <= 0 it uses runtime.NumCPU() * 2.
func evaluateConcurrent(ladder *strategy.Ladder, positions []domain.Position, now time.Time, workers int) []domain.ExitDecision {
	if workers <= 0 {
		workers = runtime.NumCPU() * 2
	}

	type work struct {
		idx int
		pos domain.Position
	}
	type result struct {
		idx      int
		decision domain.ExitDecision
	}

	workCh := make(chan work, len(positions))
	resultCh := make(chan result, len(positions))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for w := range workCh {
				resultCh <- result{idx: w.idx, decision: decide(ladder, w.pos, now)}
			}
		}()
	}

	for i, p := range positions {
		workCh <- work{idx: i, pos: p}
	}
	close(workCh)

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	decisions := make([]domain.ExitDecision, len(positions))
	for r := range resultCh {
		decisions[r.idx] = r.decision
	}

	slog.Debug("exit: evaluation complete", "positions", len(positions), "workers", workers)
	return decisions
}

// decide routes p through the tradability classifier, then the ladder.
func decide(ladder *strategy.Ladder, p domain.Position, now time.Time) domain.ExitDecision {
	switch domain.CheckTradability(p) {
	case domain.TradRedeemable:
		d := domain.NoAction(p, "redeemable via "+string(p.RedeemableProofSource))
		d.Action = domain.ActionRedeem
		d.Strategy = domain.StrategyRedeem
		return d
	case domain.TradNotTradable:
		return domain.NoAction(p, "not tradable: "+string(p.ExecutionStatus))
	case domain.TradNoBid:
		return domain.NoAction(p, "no bid")
	default:
		return ladder.Evaluate(p, now)
	}
}
