package validation

import (
	"errors"
	"fmt"
	"sort"

	"github.com/zombor/merchant-validator/internal/compliance"
	"github.com/zombor/merchant-validator/internal/sheet"
)

// ErrLengthMismatch is returned when records and verdicts do not pair up
var ErrLengthMismatch = errors.New("records and verdicts differ in length")

// ReportRow pairs a record with its verdict
type ReportRow struct {
	Record  sheet.MerchantRecord `json:"record"`
	Verdict compliance.Verdict   `json:"verdict"`
}

// BatchReport is the result of one batch run
type BatchReport struct {
	Total   int                       `json:"total"`
	Counts  map[compliance.Status]int `json:"counts"`
	Rows    []ReportRow               `json:"rows"`
	Header  []string                  `json:"header"`
	Columns sheet.Columns             `json:"columns"`
	Skipped []sheet.SkippedRow        `json:"skipped"`
}

// Aggregate folds verdicts into a BatchReport. verdicts[i] belongs to
// records[i]. Rows come out ordered by row index and every status has a count.
func Aggregate(header []string, cols sheet.Columns, records []sheet.MerchantRecord, verdicts []compliance.Verdict, skipped []sheet.SkippedRow) (*BatchReport, error) {
	if len(records) != len(verdicts) {
		return nil, fmt.Errorf("%w: %d records, %d verdicts", ErrLengthMismatch, len(records), len(verdicts))
	}

	report := &BatchReport{
		Total:   len(records),
		Counts:  make(map[compliance.Status]int, len(compliance.AllStatuses)),
		Rows:    make([]ReportRow, len(records)),
		Header:  append([]string(nil), header...),
		Columns: cols,
		Skipped: append([]sheet.SkippedRow{}, skipped...),
	}
	for _, s := range compliance.AllStatuses {
		report.Counts[s] = 0
	}

	for i, rec := range records {
		report.Rows[i] = ReportRow{Record: rec, Verdict: verdicts[i]}
		report.Counts[verdicts[i].Status]++
	}

	sort.SliceStable(report.Rows, func(a, b int) bool {
		return report.Rows[a].Record.RowIndex < report.Rows[b].Record.RowIndex
	})
	sort.SliceStable(report.Skipped, func(a, b int) bool {
		return report.Skipped[a].RowIndex < report.Skipped[b].RowIndex
	})

	return report, nil
}

// Count returns the number of rows with the given status
func (r *BatchReport) Count(s compliance.Status) int {
	return r.Counts[s]
}
