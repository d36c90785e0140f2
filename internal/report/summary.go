package report

import (
	"math"

	"github.com/zombor/merchant-validator/internal/compliance"
	"github.com/zombor/merchant-validator/internal/sheet"
	"github.com/zombor/merchant-validator/internal/validation"
)

// Summary holds the batch statistics shown to users
type Summary struct {
	Total               int                           `json:"total"`
	StatusBreakdown     map[compliance.Status]int     `json:"status_breakdown"`
	ConfidenceBreakdown map[compliance.Confidence]int `json:"confidence_breakdown"`
	AcceptanceRate      float64                       `json:"acceptance_rate"`
	RejectionRate       float64                       `json:"rejection_rate"`
	Skipped             int                           `json:"skipped"`
}

// Row is one flattened result row
type Row struct {
	RowIndex     int                   `json:"row_index"`
	MerchantName string                `json:"merchant_name"`
	ImageURL     string                `json:"image_url"`
	Status       compliance.Status     `json:"status"`
	Confidence   compliance.Confidence `json:"confidence"`
	Reason       string                `json:"reason"`
	Violations   []string              `json:"violations,omitempty"`
}

// Document is the JSON form of a batch report
type Document struct {
	Summary Summary            `json:"summary"`
	Results []Row              `json:"results"`
	Skipped []sheet.SkippedRow `json:"skipped_rows"`
}

// NewSummary computes statistics for a report
func NewSummary(r *validation.BatchReport) Summary {
	s := Summary{
		Total:               r.Total,
		StatusBreakdown:     make(map[compliance.Status]int, len(compliance.AllStatuses)),
		ConfidenceBreakdown: make(map[compliance.Confidence]int, len(compliance.AllConfidences)),
		Skipped:             len(r.Skipped),
	}
	for _, st := range compliance.AllStatuses {
		s.StatusBreakdown[st] = r.Counts[st]
	}
	for _, c := range compliance.AllConfidences {
		s.ConfidenceBreakdown[c] = 0
	}
	for _, row := range r.Rows {
		s.ConfidenceBreakdown[row.Verdict.Confidence]++
	}

	if r.Total > 0 {
		s.AcceptanceRate = percent(r.Counts[compliance.StatusAccepted], r.Total)
		s.RejectionRate = percent(r.Counts[compliance.StatusRejected], r.Total)
	}
	return s
}

// NewDocument flattens a report for JSON responses
func NewDocument(r *validation.BatchReport) Document {
	doc := Document{
		Summary: NewSummary(r),
		Results: make([]Row, len(r.Rows)),
		Skipped: r.Skipped,
	}
	for i, row := range r.Rows {
		doc.Results[i] = Row{
			RowIndex:     row.Record.RowIndex,
			MerchantName: row.Record.MerchantName,
			ImageURL:     row.Record.ImageURL,
			Status:       row.Verdict.Status,
			Confidence:   row.Verdict.Confidence,
			Reason:       row.Verdict.Reason,
			Violations:   row.Verdict.Violations,
		}
	}
	if doc.Skipped == nil {
		doc.Skipped = []sheet.SkippedRow{}
	}
	return doc
}

// percent rounds to two decimals
func percent(n, total int) float64 {
	return math.Round(float64(n)/float64(total)*10000) / 100
}
