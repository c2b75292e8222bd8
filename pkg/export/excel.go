// Package export renders schedule views as an Excel workbook.
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/jakechorley/live-schedule/pkg/db"
)

const (
	// SheetName is the single worksheet in the exported workbook
	SheetName = "Live Schedules"

	// ContentType is the MIME type of the exported workbook
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	displayDateLayout = "02/01/2006"
	noCohost          = "-"
)

// Headers are the column titles of the export, in order
var Headers = []string{"No.", "Date", "Time", "Platform", "Account Name", "Host Name", "Cohost Name"}

// Filename returns the download name for a workbook generated at now
func Filename(now time.Time) string {
	return fmt.Sprintf("Live_Schedules_%s.xlsx", now.Format("20060102_1504"))
}

// Row returns the cell values for one schedule, numbered n (1-based)
func Row(n int, view db.ScheduleView) []any {
	cohost := noCohost
	if view.CohostName != nil && *view.CohostName != "" {
		cohost = *view.CohostName
	}
	return []any{
		n,
		view.Date.Format(displayDateLayout),
		fmt.Sprintf("%s - %s", view.StartTime, view.EndTime),
		view.Platform,
		view.AccountName,
		view.HostName,
		cohost,
	}
}

// WriteWorkbook writes views to w as an .xlsx workbook with a bold header row
func WriteWorkbook(w io.Writer, views []db.ScheduleView) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	header := make([]any, len(Headers))
	for i, h := range Headers {
		header[i] = h
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header row: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	if err := f.SetCellStyle(SheetName, "A1", "G1", bold); err != nil {
		return fmt.Errorf("failed to style header row: %w", err)
	}

	for i, view := range views {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := Row(i+1, view)
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}

	if err := f.SetColWidth(SheetName, "A", "A", 6); err != nil {
		return err
	}
	if err := f.SetColWidth(SheetName, "B", "G", 20); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}
