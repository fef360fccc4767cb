package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/polyexit/internal/domain"
)

// Console implements ports.Notifier.
type Console struct {
	out   io.Writer
	table bool
}

// NewConsole writes to stdout. table adds a per-decision table after the summary line.
func NewConsole(table bool) *Console {
	return &Console{out: os.Stdout, table: table}
}

// NewConsoleWriter is for tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table}
}

// NotifyCycle prints one summary line and, in table mode, every actionable decision.
func (c *Console) NotifyCycle(_ context.Context, r domain.CycleReport) error {
	s := r.Summary
	mode := ""
	if s.DryRun {
		mode = " [dry-run]"
	}
	fmt.Fprintf(c.out, "[%s]%s %d positions | sell:%d redeem:%d skipped:%d failed:%d | %s\n",
		s.StartedAt.Format("15:04:05"), mode,
		s.Positions, s.Sells, s.Redeems, s.Skipped, s.Failed,
		s.Duration.Truncate(time.Millisecond),
	)

	for _, w := range r.Warnings {
		fmt.Fprintf(c.out, "  ! %s\n", w)
	}

	if c.table && len(r.Outcomes) > 0 {
		c.printOutcomes(r.Outcomes)
	}
	return nil
}

func (c *Console) printOutcomes(outcomes []domain.ActionOutcome) {
	table := tablewriter.NewWriter(c.out)
	table.Header("Action", "Strategy", "Market", "Side", "Size", "Price", "Status", "Detail")

	for _, o := range outcomes {
		d := o.Decision
		table.Append(
			string(d.Action),
			d.Strategy,
			shortID(d.MarketID),
			d.Side,
			fmt.Sprintf("%.2f", d.Size),
			priceLabel(d.LimitPrice),
			string(o.Status),
			outcomeDetail(o),
		)
	}
	table.Render()
}

// outcomeDetail is the skip reason, the error kind or the submission ref.
func outcomeDetail(o domain.ActionOutcome) string {
	switch o.Status {
	case domain.OutcomeSkipped:
		return string(o.Skip)
	case domain.OutcomeFailed:
		return fmt.Sprintf("%s: %s", o.ErrorKind, truncate(o.Error, 60))
	case domain.OutcomeSubmitted:
		return shortID(o.Ref)
	default:
		return o.Decision.Reason
	}
}

func priceLabel(p *float64) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("%.3f", *p)
}

// shortID keeps hex IDs readable in tables: 0x1234…abcd.
func shortID(id string) string {
	if len(id) <= 14 {
		return id
	}
	return id[:6] + "…" + id[len(id)-4:]
}

func truncate(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-1]) + "…"
}
