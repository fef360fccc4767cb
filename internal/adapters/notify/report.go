package notify

import (
	"fmt"
	"sort"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/polyexit/internal/domain"
)

// ReportInput is what the -report flag prints.
type ReportInput struct {
	Now         time.Time
	Ledger      []domain.LedgerEntry
	MaxFailures int
	Cooldown    time.Duration
	Outcomes    []domain.ActionOutcome
	Cycles      []domain.CycleSummary
}

// PrintReport prints the attempt ledger, recent cycles and recent outcomes.
func (c *Console) PrintReport(in ReportInput) {
	fmt.Fprintf(c.out, "\n── ATTEMPT LEDGER (%d) ──\n", len(in.Ledger))
	if len(in.Ledger) == 0 {
		fmt.Fprintln(c.out, "  (empty)")
	} else {
		entries := append([]domain.LedgerEntry(nil), in.Ledger...)
		sort.Slice(entries, func(i, j int) bool {
			return entries[i].Attempt.LastAttemptAt.After(entries[j].Attempt.LastAttemptAt)
		})

		table := tablewriter.NewWriter(c.out)
		table.Header("Key", "Failures", "Last attempt", "State")
		for _, e := range entries {
			table.Append(
				shortKey(e.Key),
				fmt.Sprintf("%d", e.Attempt.ConsecutiveFailures),
				e.Attempt.LastAttemptAt.Format("2006-01-02 15:04:05"),
				ledgerState(e.Attempt, in),
			)
		}
		table.Render()
	}

	fmt.Fprintf(c.out, "\n── RECENT CYCLES (%d) ──\n", len(in.Cycles))
	if len(in.Cycles) == 0 {
		fmt.Fprintln(c.out, "  (none)")
	}
	for _, s := range in.Cycles {
		dry := ""
		if s.DryRun {
			dry = " dry-run"
		}
		fmt.Fprintf(c.out, "  %s%s  positions:%d sell:%d redeem:%d skipped:%d failed:%d\n",
			s.StartedAt.Format("2006-01-02 15:04:05"), dry,
			s.Positions, s.Sells, s.Redeems, s.Skipped, s.Failed)
	}

	fmt.Fprintf(c.out, "\n── RECENT OUTCOMES (%d) ──\n", len(in.Outcomes))
	if len(in.Outcomes) == 0 {
		fmt.Fprintln(c.out, "  (none)")
	} else {
		c.printOutcomes(in.Outcomes)
	}
	fmt.Fprintln(c.out)
}

func ledgerState(a domain.RedemptionAttempt, in ReportInput) string {
	if in.MaxFailures > 0 && a.ConsecutiveFailures >= in.MaxFailures {
		return "BLOCKED (reset needed)"
	}
	if left := a.LastAttemptAt.Add(in.Cooldown).Sub(in.Now); left > 0 {
		return fmt.Sprintf("cooldown %s", left.Truncate(time.Second))
	}
	return "eligible"
}

func shortKey(k domain.AttemptKey) string {
	return string(k.Action) + ":" + shortID(k.ID)
}

// PrintConflict reports the result of a pre-buy conflict check.
func (c *Console) PrintConflict(marketID, tokenID string, conflict *domain.Conflict) {
	if conflict == nil {
		fmt.Fprintf(c.out, "no conflict: buying %s in %s does not hedge a winning position\n",
			shortID(tokenID), shortID(marketID))
		return
	}
	fmt.Fprintf(c.out, "CONFLICT: already holding %.2f %q shares in %s at %+.1f%%, buying %s would hedge it\n",
		conflict.Size, conflict.Side, shortID(marketID), conflict.PnLPct, shortID(tokenID))
}
