// Package report prints a periodic plain-text summary of the engine.
package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alanyoungcy/kalshiedge/internal/domain"
)

// Console renders status snapshots as tables.
type Console struct {
	mu       sync.Mutex
	out      io.Writer
	outcomes int
}

// NewConsole writes to out and lists up to outcomes recent results.
func NewConsole(out io.Writer, outcomes int) *Console {
	return &Console{out: out, outcomes: outcomes}
}

// Print writes one report.
func (c *Console) Print(s domain.StatusSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.out, "\n== edgebot [%s] cycle %d at %s ==\n", s.Mode, s.Cycle, s.UpdatedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(c.out, "  balance $%.2f  peak $%.2f  start $%.2f  realized %+.2f  drawdown %.1f%%  time left %s\n",
		s.Balance, s.Peak, s.StartingBalance, s.RealizedPnL, s.Drawdown*100, s.Countdown.Round(time.Second))
	cs := s.Correction
	fmt.Fprintf(c.out, "  regime %s  edge x%.2f  stake x%.2f  record %d-%d (%.0f%%)  streak +%d/-%d\n",
		cs.Regime, cs.EdgeMultiplier, cs.StakeMultiplier, cs.Wins, cs.Losses, cs.GlobalWinRate*100,
		cs.ConsecutiveWins, cs.ConsecutiveLosses)
	if s.Stopped {
		fmt.Fprintf(c.out, "  STOPPED: %s\n", s.StopReason)
	} else if s.EmergencyUntil.After(s.UpdatedAt) {
		fmt.Fprintf(c.out, "  EMERGENCY PAUSE until %s\n", s.EmergencyUntil.UTC().Format("15:04:05"))
	}

	if len(s.OpenPositions) > 0 {
		fmt.Fprintln(c.out, "\n  open positions")
		tbl := tablewriter.NewWriter(c.out)
		tbl.Header("Ticker", "Side", "Kind", "State", "Entry", "Qty", "Cost", "Age")
		for _, p := range s.OpenPositions {
			tbl.Append(
				p.Ticker,
				string(p.Side),
				string(p.Kind),
				string(p.State),
				fmt.Sprintf("%d¢", p.EntryPrice),
				fmt.Sprintf("%d", p.Contracts),
				fmt.Sprintf("$%.2f", p.Cost),
				s.UpdatedAt.Sub(p.PlacedAt).Round(time.Second).String(),
			)
		}
		tbl.Render()
	}

	if recent := lastN(s.RecentOutcomes, c.outcomes); len(recent) > 0 {
		fmt.Fprintln(c.out, "\n  recent outcomes")
		tbl := tablewriter.NewWriter(c.out)
		tbl.Header("Resolved", "Ticker", "Side", "Result", "Entry", "Exit", "Qty", "P&L", "Reason")
		for _, o := range recent {
			result := "LOSS"
			if o.Won {
				result = "WIN"
			}
			tbl.Append(
				o.ResolvedAt.UTC().Format("15:04:05"),
				o.Ticker,
				string(o.Side),
				result,
				fmt.Sprintf("%d¢", o.EntryPrice),
				fmt.Sprintf("%d¢", o.ExitPrice),
				fmt.Sprintf("%d", o.Contracts),
				fmt.Sprintf("%+.2f", o.PnL),
				o.Reason,
			)
		}
		tbl.Render()
	}

	if len(cs.WinRates) > 0 {
		fmt.Fprintln(c.out, "\n  correction buckets")
		tbl := tablewriter.NewWriter(c.out)
		tbl.Header("Dimension", "Bucket", "Samples", "Win rate", "Weight")
		for _, dim := range sortedKeys(cs.WinRates) {
			buckets := cs.WinRates[dim]
			for _, b := range sortedKeys(buckets) {
				st := buckets[b]
				w := 1.0
				if ws, ok := cs.Weights[dim]; ok {
					if v, ok := ws[b]; ok {
						w = v
					}
				}
				tbl.Append(dim, b, fmt.Sprintf("%d", st.Samples), fmt.Sprintf("%.0f%%", st.WinRate*100), fmt.Sprintf("%.2f", w))
			}
		}
		tbl.Render()
	}
	if s.DroppedEvents > 0 {
		fmt.Fprintf(c.out, "  %d events dropped by slow consumers\n", s.DroppedEvents)
	}
	fmt.Fprintln(c.out, strings.Repeat("=", 60))
}

func lastN(xs []domain.Outcome, n int) []domain.Outcome {
	if n <= 0 || len(xs) <= n {
		return xs
	}
	return xs[len(xs)-n:]
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
