package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/jakechorley/live-schedule/pkg/core/scheduler"
	"github.com/jakechorley/live-schedule/pkg/db"
	"github.com/jakechorley/live-schedule/pkg/export"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorDim    = "\033[2m"
)

// coverageColor returns green when every slot was filled, yellow when more than half
// were and red otherwise
func coverageColor(filled, total int) string {
	switch {
	case total == 0:
		return colorDim
	case filled == total:
		return colorGreen
	case filled > total/2:
		return colorYellow
	default:
		return colorRed
	}
}

// printSummary writes a per-account table for a generation run
func printSummary(w io.Writer, summary *scheduler.Summary) {
	fmt.Fprintf(w, "\nGeneration %s (%s to %s)\n\n", summary.RunID, summary.StartDate, summary.EndDate)

	const (
		accountColWidth = 10
		statusColWidth  = 20
		batchColWidth   = 8
		slotsColWidth   = 10
	)

	fmt.Fprintf(w, "%-*s%-*s%-*s%-*s%s\n",
		accountColWidth, "Account",
		statusColWidth, "Status",
		batchColWidth, "Batch",
		slotsColWidth, "Filled",
		"Co-hosts")
	fmt.Fprintln(w, strings.Repeat("-", accountColWidth+statusColWidth+batchColWidth+slotsColWidth+8))

	for _, acc := range summary.Accounts {
		batch := "-"
		if acc.BatchID != 0 {
			batch = fmt.Sprintf("%d", acc.BatchID)
		}
		total := acc.SlotsFilled + acc.SlotsSkipped
		filled := fmt.Sprintf("%d/%d", acc.SlotsFilled, total)

		fmt.Fprintf(w, "%-*d", accountColWidth, acc.AccountID)
		switch acc.Kind {
		case scheduler.OutcomeCompleted:
			fmt.Fprintf(w, "%-*s", statusColWidth, acc.Kind)
		case scheduler.OutcomeCancelled:
			fmt.Fprintf(w, "%s%-*s%s", colorYellow, statusColWidth, acc.Kind, colorReset)
		default:
			fmt.Fprintf(w, "%s%-*s%s", colorRed, statusColWidth, acc.Kind, colorReset)
		}
		fmt.Fprintf(w, "%-*s", batchColWidth, batch)
		fmt.Fprintf(w, "%s%-*s%s", coverageColor(acc.SlotsFilled, total), slotsColWidth, filled, colorReset)
		fmt.Fprintf(w, "%d\n", acc.CohostsAssigned)

		if acc.Error != "" {
			fmt.Fprintf(w, "%s  %s%s\n", colorDim, acc.Error, colorReset)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Accounts processed: %d\n", summary.AccountsProcessed)
	fmt.Fprintf(w, "Slots filled:       %d\n", summary.SlotsFilled)
	fmt.Fprintf(w, "Slots skipped:      %d\n", len(summary.SlotsSkipped))
	fmt.Fprintf(w, "Co-hosts assigned:  %d\n", summary.CohostsAssigned)
	if summary.Cancelled {
		fmt.Fprintf(w, "%sRun was cancelled before every account finished%s\n", colorYellow, colorReset)
	}
}

// printSchedules writes schedule rows in the same column order as the Excel export
func printSchedules(w io.Writer, views []db.ScheduleView) {
	if len(views) == 0 {
		fmt.Fprintln(w, "No live schedules found")
		return
	}

	headers := export.Headers
	rows := make([][]string, len(views))
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for i, v := range views {
		cells := export.Row(i+1, v)
		rows[i] = make([]string, len(cells))
		for j, cell := range cells {
			rows[i][j] = fmt.Sprint(cell)
		}
		for j, cell := range rows[i] {
			if len(cell) > widths[j] {
				widths[j] = len(cell)
			}
		}
	}

	total := 0
	for i, h := range headers {
		fmt.Fprintf(w, "%-*s", widths[i]+2, h)
		total += widths[i] + 2
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, strings.Repeat("-", total))

	for i, row := range rows {
		for j, cell := range row {
			fmt.Fprintf(w, "%-*s", widths[j]+2, cell)
		}
		if views[i].IsDraft {
			fmt.Fprintf(w, "%sdraft%s", colorDim, colorReset)
		}
		fmt.Fprintln(w)
	}
}
