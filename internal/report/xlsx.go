package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/zombor/merchant-validator/internal/compliance"
	"github.com/zombor/merchant-validator/internal/validation"
)

// Sheet names in the generated workbook
const (
	ResultsSheet = "Validation Results"
	SummarySheet = "Summary"
	SkippedSheet = "Skipped Rows"
)

// Columns appended after the original columns
var resultColumns = []string{"STATUS", "CONFIDENCE", "REASON"}

var statusFill = map[compliance.Status]string{
	compliance.StatusAccepted:       "C6EFCE",
	compliance.StatusRejected:       "FFC7CE",
	compliance.StatusReviewRequired: "FFEB9C",
	compliance.StatusError:          "D9D9D9",
}

// WriteXLSX writes the report as a workbook: every original column plus
// STATUS, CONFIDENCE and REASON, a Summary sheet and, when rows were
// skipped, a Skipped Rows sheet
func WriteXLSX(w io.Writer, r *validation.BatchReport) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", ResultsSheet); err != nil {
		return fmt.Errorf("naming results sheet: %w", err)
	}
	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}

	if err := writeResults(f, r, headerStyle); err != nil {
		return err
	}
	if err := writeSummary(f, NewSummary(r), headerStyle); err != nil {
		return err
	}
	if len(r.Skipped) > 0 {
		if err := writeSkipped(f, r, headerStyle); err != nil {
			return err
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

func writeResults(f *excelize.File, r *validation.BatchReport, headerStyle int) error {
	header := append(append([]string(nil), r.Header...), resultColumns...)
	if err := setRow(f, ResultsSheet, 1, header); err != nil {
		return err
	}
	if err := styleRow(f, ResultsSheet, 1, len(header), headerStyle); err != nil {
		return err
	}

	fills := make(map[compliance.Status]int, len(statusFill))
	for status, color := range statusFill {
		id, err := f.NewStyle(&excelize.Style{Fill: excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1}})
		if err != nil {
			return fmt.Errorf("creating status style: %w", err)
		}
		fills[status] = id
	}

	statusCol := len(r.Header) + 1
	for i, row := range r.Rows {
		values := make([]string, len(r.Header), len(header))
		copy(values, row.Record.Original)
		values = append(values, string(row.Verdict.Status), string(row.Verdict.Confidence), row.Verdict.Reason)

		rowNum := i + 2
		if err := setRow(f, ResultsSheet, rowNum, values); err != nil {
			return err
		}
		if style, ok := fills[row.Verdict.Status]; ok {
			cell, err := excelize.CoordinatesToCellName(statusCol, rowNum)
			if err != nil {
				return fmt.Errorf("locating status cell: %w", err)
			}
			if err := f.SetCellStyle(ResultsSheet, cell, cell, style); err != nil {
				return fmt.Errorf("styling status cell: %w", err)
			}
		}
	}

	return setWidths(f, ResultsSheet, len(header))
}

func writeSummary(f *excelize.File, s Summary, headerStyle int) error {
	if _, err := f.NewSheet(SummarySheet); err != nil {
		return fmt.Errorf("creating summary sheet: %w", err)
	}

	rows := [][]interface{}{
		{"Metric", "Value"},
		{"Total Processed", s.Total},
	}
	for _, st := range compliance.AllStatuses {
		rows = append(rows, []interface{}{string(st), s.StatusBreakdown[st]})
	}
	for _, c := range compliance.AllConfidences {
		rows = append(rows, []interface{}{"Confidence " + string(c), s.ConfidenceBreakdown[c]})
	}
	rows = append(rows,
		[]interface{}{"Acceptance Rate %", s.AcceptanceRate},
		[]interface{}{"Rejection Rate %", s.RejectionRate},
		[]interface{}{"Skipped Rows", s.Skipped},
	)

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("locating summary cell: %w", err)
		}
		values := row
		if err := f.SetSheetRow(SummarySheet, cell, &values); err != nil {
			return fmt.Errorf("writing summary row: %w", err)
		}
	}
	if err := styleRow(f, SummarySheet, 1, 2, headerStyle); err != nil {
		return err
	}
	return setWidths(f, SummarySheet, 2)
}

func writeSkipped(f *excelize.File, r *validation.BatchReport, headerStyle int) error {
	if _, err := f.NewSheet(SkippedSheet); err != nil {
		return fmt.Errorf("creating skipped sheet: %w", err)
	}

	header := append([]string{"ROW", "SKIP REASON"}, r.Header...)
	if err := setRow(f, SkippedSheet, 1, header); err != nil {
		return err
	}
	if err := styleRow(f, SkippedSheet, 1, len(header), headerStyle); err != nil {
		return err
	}
	for i, s := range r.Skipped {
		values := append([]string{fmt.Sprintf("%d", s.RowIndex), s.Reason}, s.Row...)
		if err := setRow(f, SkippedSheet, i+2, values); err != nil {
			return err
		}
	}
	return setWidths(f, SkippedSheet, len(header))
}

func setRow(f *excelize.File, sheet string, rowNum int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return fmt.Errorf("locating row %d: %w", rowNum, err)
	}
	row := make([]interface{}, len(values))
	for i, v := range values {
		row[i] = v
	}
	if err := f.SetSheetRow(sheet, cell, &row); err != nil {
		return fmt.Errorf("writing row %d of %s: %w", rowNum, sheet, err)
	}
	return nil
}

func styleRow(f *excelize.File, sheet string, rowNum, cols, style int) error {
	if cols == 0 {
		return nil
	}
	first, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return fmt.Errorf("locating row %d: %w", rowNum, err)
	}
	last, err := excelize.CoordinatesToCellName(cols, rowNum)
	if err != nil {
		return fmt.Errorf("locating row %d: %w", rowNum, err)
	}
	if err := f.SetCellStyle(sheet, first, last, style); err != nil {
		return fmt.Errorf("styling %s header: %w", sheet, err)
	}
	return nil
}

func setWidths(f *excelize.File, sheet string, cols int) error {
	if cols == 0 {
		return nil
	}
	last, err := excelize.ColumnNumberToName(cols)
	if err != nil {
		return fmt.Errorf("naming column %d: %w", cols, err)
	}
	if err := f.SetColWidth(sheet, "A", last, 22); err != nil {
		return fmt.Errorf("sizing %s columns: %w", sheet, err)
	}
	return nil
}
