package exit

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/alejandrodnm/polyexit/internal/domain"
)

const defaultLookupParallelism = 8

// lookups is the read-only market data gathered before evaluation.
type lookups struct {
	books       map[string]domain.OrderBook
	booksOK     bool
	payouts     map[string]domain.PayoutRead
	warnings    []string
	warningsMux sync.Mutex
}

func (l *lookups) warn(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	l.warningsMux.Lock()
	l.warnings = append(l.warnings, msg)
	l.warningsMux.Unlock()
}

// lookup fetches books and payout denominators concurrently. Failures
// degrade to "unknown" and are reported as warnings, never as errors.
func (e *Engine) lookup(ctx context.Context, positions []domain.Position, parallelism int) *lookups {
	if parallelism <= 0 {
		parallelism = defaultLookupParallelism
	}

	tokens := make([]string, 0, len(positions))
	markets := make([]string, 0, len(positions))
	seenMarket := make(map[string]bool, len(positions))
	for _, p := range positions {
		tokens = append(tokens, p.TokenID)
		if !seenMarket[p.MarketID] {
			seenMarket[p.MarketID] = true
			markets = append(markets, p.MarketID)
		}
	}

	l := &lookups{payouts: make(map[string]domain.PayoutRead, len(markets))}
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(parallelism)

	g.Go(func() error {
		books, err := e.books.FetchOrderBooks(ctx, tokens)
		if err != nil {
			slog.Warn("exit: order books unavailable", "err", err)
			l.warn("order books unavailable: %v", err)
			return nil
		}
		l.books, l.booksOK = books, true
		return nil
	})

	for _, m := range markets {
		g.Go(func() error {
			read := domain.PayoutRead{}
			denom, err := e.resolver.PayoutDenominator(ctx, m)
			if err != nil {
				slog.Debug("exit: payout read failed", "market", m, "err", err)
				l.warn("payout read %s: %v", shortMarket(m), err)
			} else {
				read = domain.PayoutRead{Checked: true, Denominator: denom}
			}
			mu.Lock()
			l.payouts[m] = read
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return l
}

// apply sets bid, execution status and redeemable proof on each position.
func (l *lookups) apply(positions []domain.Position) []domain.Position {
	out := make([]domain.Position, len(positions))
	for i, p := range positions {
		switch book, listed := l.books[p.TokenID]; {
		case l.booksOK && !listed:
			p.ExecutionStatus = domain.StatusNotTradable
			p.CurrentBidPrice = nil
		case l.booksOK:
			if bid, ok := book.BestBid(); ok {
				p.CurrentBidPrice = domain.Ptr(bid)
			} else {
				p.CurrentBidPrice = nil
			}
		}
		if p.ExecutionStatus == "" {
			p.ExecutionStatus = domain.StatusTradable
		}
		p.ApplyProof(l.payouts[p.MarketID])
		out[i] = p
	}
	return out
}

// enrichEndTimes fills MarketEndTime from Gamma for positions lacking one.
// The input slice is left untouched.
func (e *Engine) enrichEndTimes(ctx context.Context, positions []domain.Position) ([]domain.Position, string) {
	if e.endTimes == nil {
		return positions, ""
	}
	var missing []string
	seen := make(map[string]bool)
	for _, p := range positions {
		if !p.HasEndTime() && !seen[p.MarketID] {
			seen[p.MarketID] = true
			missing = append(missing, p.MarketID)
		}
	}
	if len(missing) == 0 {
		return positions, ""
	}

	ends, err := e.endTimes.FetchEndTimes(ctx, missing)
	if err != nil {
		slog.Warn("exit: end time enrichment failed", "markets", len(missing), "err", err)
		return positions, fmt.Sprintf("end times unavailable for %d markets: %v", len(missing), err)
	}
	out := append([]domain.Position(nil), positions...)
	for i := range out {
		if out[i].HasEndTime() {
			continue
		}
		if t, ok := ends[strings.ToLower(out[i].MarketID)]; ok {
			out[i].MarketEndTime = t
		}
	}
	return out, ""
}

func shortMarket(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:6] + "…" + id[len(id)-4:]
}
