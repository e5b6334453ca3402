// Package notify renders run snapshots and the final outcome on a terminal.
package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"golang.org/x/term"

	"github.com/alejandrodnm/updown/internal/domain"
	"github.com/alejandrodnm/updown/internal/volatility"
)

// clearScreen moves the cursor home and clears the terminal.
const clearScreen = "\033[H\033[2J"

// Console implements ports.Reporter.
type Console struct {
	out   io.Writer
	loc   *time.Location
	clear bool
}

// NewConsole writes to stdout and redraws in place when stdout is a terminal.
// Times are shown in loc (UTC when nil).
func NewConsole(loc *time.Location) *Console {
	return &Console{
		out:   os.Stdout,
		loc:   orUTC(loc),
		clear: term.IsTerminal(int(os.Stdout.Fd())),
	}
}

// NewConsoleWriter writes to w and never clears. Used by tests.
func NewConsoleWriter(w io.Writer, loc *time.Location) *Console {
	return &Console{out: w, loc: orUTC(loc)}
}

func orUTC(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}

// Report prints one snapshot.
func (c *Console) Report(_ context.Context, s domain.Snapshot) error {
	if c.clear {
		fmt.Fprint(c.out, clearScreen)
	}

	fmt.Fprintf(c.out, "[%s] %s %s  ref %s  now %s  (%+.3f%%)  %s left\n",
		s.Time.In(c.loc).Format("15:04:05 MST"),
		s.Venue, s.Instrument,
		price(s.ReferencePrice, s.Currency),
		price(s.CurrentPrice, s.Currency),
		s.Displacement*100,
		remaining(s.RemainingSeconds),
	)
	if s.Degraded {
		fmt.Fprintf(c.out, "  !! DEGRADED: no fresh quote (feed %s), last known price in use\n", s.FeedStatus)
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("P(UP)", "P(DOWN)", "z", "Drift/s", "OBI live", "OBI smooth", "Bid", "Ask")
	table.Append(
		fmt.Sprintf("%.2f%%", s.PUp*100),
		fmt.Sprintf("%.2f%%", s.PDown*100),
		fmt.Sprintf("%.3f", s.Z),
		fmt.Sprintf("%.3g", s.Drift.PerSecond),
		fmt.Sprintf("%.3f", s.ImbalanceLive),
		fmt.Sprintf("%.3f", s.ImbalanceSmooth),
		book(s.Bid),
		book(s.Ask),
	)
	table.Render()

	v := s.Variance
	vt := tablewriter.NewWriter(c.out)
	vt.Header("Forecast", "Jump", "Sigma*", "Micro", "Total", "Floor vol")
	vt.Append(
		fmt.Sprintf("%.3e", v.Forecast),
		fmt.Sprintf("%.3e", v.Jump),
		fmt.Sprintf("%.3e", v.SigmaStar),
		fmt.Sprintf("%.3e", v.Microstructure),
		fmt.Sprintf("%.3e", v.Total),
		fmt.Sprintf("%.1f%%", volatility.PerSecondToAnnual(v.FloorPerSecond)*100),
	)
	vt.Render()
	return nil
}

// Final prints the run outcome.
func (c *Console) Final(_ context.Context, o domain.Outcome) error {
	fmt.Fprintf(c.out, "\n=== RESULT %s %s ===\n", o.Venue, o.Instrument)

	table := tablewriter.NewWriter(c.out)
	table.Header("t0", "Reference", "Final", "Direction", "Snapshots", "Degraded", "Mean P(UP)")
	table.Append(
		o.ReferenceTime.In(c.loc).Format("2006-01-02 15:04 MST"),
		price(o.ReferencePrice, o.Currency),
		price(o.FinalPrice, o.Currency),
		string(o.Direction),
		fmt.Sprintf("%d", o.Snapshots),
		fmt.Sprintf("%d", o.Degraded),
		fmt.Sprintf("%.2f%%", o.MeanPUp*100),
	)
	table.Render()
	return nil
}

func price(p float64, currency string) string {
	if p <= 0 {
		return "-"
	}
	return fmt.Sprintf("%.2f %s", p, currency)
}

func book(p float64) string {
	if p <= 0 {
		return "-"
	}
	return fmt.Sprintf("%.2f", p)
}

func remaining(sec float64) string {
	d := time.Duration(sec * float64(time.Second)).Round(time.Second)
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%02d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}
