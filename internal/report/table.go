package report

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/zombor/merchant-validator/internal/compliance"
	"github.com/zombor/merchant-validator/internal/validation"
)

var (
	green  = color.New(color.FgHiGreen).SprintFunc()
	yellow = color.New(color.FgHiYellow).SprintFunc()
	red    = color.New(color.FgHiRed).SprintFunc()
	faint  = color.New(color.Faint).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

// StatusColor renders a status in its terminal color
func StatusColor(s compliance.Status) string {
	switch s {
	case compliance.StatusAccepted:
		return green(string(s))
	case compliance.StatusRejected:
		return red(string(s))
	case compliance.StatusReviewRequired:
		return yellow(string(s))
	default:
		return faint(string(s))
	}
}

func newTable(w io.Writer, headers []string) *tablewriter.Table {
	table := tablewriter.NewTable(w,
		tablewriter.WithHeaderAlignment(tw.AlignLeft),
		tablewriter.WithRowAlignment(tw.AlignLeft),
		tablewriter.WithRendition(tw.Rendition{
			Borders: tw.BorderNone,
			Settings: tw.Settings{
				Lines:      tw.LinesNone,
				Separators: tw.SeparatorsNone,
			},
		}),
		tablewriter.WithPadding(tw.Padding{Left: "", Right: "  "}),
	)
	table.Header(headers)
	return table
}

// PrintSummary writes the per-status counts and, when rows is true, one line
// per record
func PrintSummary(w io.Writer, r *validation.BatchReport, rows bool) error {
	s := NewSummary(r)

	if rows && len(r.Rows) > 0 {
		table := newTable(w, []string{"Row", "Merchant", "Status", "Confidence", "Reason"})
		for _, row := range r.Rows {
			if err := table.Append([]string{
				fmt.Sprintf("%d", row.Record.RowIndex),
				row.Record.MerchantName,
				StatusColor(row.Verdict.Status),
				string(row.Verdict.Confidence),
				truncate(row.Verdict.Reason, 80),
			}); err != nil {
				return fmt.Errorf("adding result row: %w", err)
			}
		}
		if err := table.Render(); err != nil {
			return fmt.Errorf("rendering results: %w", err)
		}
		fmt.Fprintln(w)
	}

	table := newTable(w, []string{"Status", "Count"})
	for _, st := range compliance.AllStatuses {
		if err := table.Append([]string{StatusColor(st), fmt.Sprintf("%d", s.StatusBreakdown[st])}); err != nil {
			return fmt.Errorf("adding summary row: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("rendering summary: %w", err)
	}

	fmt.Fprintf(w, "\n%s %d  accepted %.2f%%  rejected %.2f%%  skipped %d\n",
		bold("Total"), s.Total, s.AcceptanceRate, s.RejectionRate, s.Skipped)
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
