package polymarket

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/alejandrodnm/polyexit/internal/domain"
)

// mapPositions converts Data API rows into domain positions.
// Rows with no size are dropped.
func mapPositions(raw []dataPosition) []domain.Position {
	out := make([]domain.Position, 0, len(raw))
	for _, r := range raw {
		if r.Size <= 0 || r.Asset == "" {
			continue
		}
		out = append(out, mapPosition(r))
	}
	return out
}

func mapPosition(r dataPosition) domain.Position {
	p := domain.Position{
		MarketID:        r.ConditionID,
		TokenID:         r.Asset,
		Side:            r.Outcome,
		OutcomeIndex:    r.OutcomeIndex,
		Title:           r.Title,
		NegRisk:         r.NegativeRisk,
		Size:            r.Size,
		EntryPrice:      r.AvgPrice,
		CurrentPrice:    r.CurPrice,
		Redeemable:      r.Redeemable,
		ExecutionStatus: domain.StatusTradable,
		MarketEndTime:   parseEndDate(r.EndDate),
	}
	p.ComputePnL()
	// Prefer the index's own cost-basis PnL when it has one.
	if p.PnLTrusted && r.InitialValue > 0 {
		p.PnLPct = r.PercentPnl
		p.PnLUSD = r.CashPnl
	}
	return p
}

// parseEndDate accepts the formats Polymarket uses. Unknown input yields zero.
func parseEndDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{
		time.RFC3339,
		"2006-01-02T15:04:05.000Z",
		"2006-01-02T15:04:05Z",
		"2006-01-02",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// gammaEndTime prefers the full timestamp over the date-only field.
func gammaEndTime(gm gammaMarket) time.Time {
	if t := parseEndDate(gm.EndDate); !t.IsZero() {
		return t
	}
	return parseEndDate(gm.EndDateISO)
}

// mapOrderBooks converts the /books batch response to tokenID -> OrderBook.
func mapOrderBooks(raw []orderBookResponse) map[string]domain.OrderBook {
	result := make(map[string]domain.OrderBook, len(raw))
	for _, r := range raw {
		result[r.AssetID] = domain.OrderBook{
			TokenID: r.AssetID,
			Bids:    mapBookEntries(r.Bids, false),
			Asks:    mapBookEntries(r.Asks, true),
		}
	}
	return result
}

// mapBookEntries parses and sorts levels. ascending is used for asks.
func mapBookEntries(raw []bookEntryRaw, ascending bool) []domain.BookEntry {
	entries := make([]domain.BookEntry, 0, len(raw))
	for _, r := range raw {
		price, _ := strconv.ParseFloat(r.Price, 64)
		size, _ := strconv.ParseFloat(r.Size, 64)
		if price <= 0 || size <= 0 {
			continue
		}
		entries = append(entries, domain.BookEntry{Price: price, Size: size})
	}

	sort.Slice(entries, func(i, j int) bool {
		if ascending {
			return entries[i].Price < entries[j].Price
		}
		return entries[i].Price > entries[j].Price
	})
	return entries
}
