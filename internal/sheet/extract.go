package sheet

import (
	"net/url"
	"strings"
)

// Skip reasons reported on SkippedRow
const (
	ReasonEmptyRow   = "empty row"
	ReasonEmptyName  = "empty merchant name"
	ReasonEmptyURL   = "empty image url"
	ReasonInvalidURL = "invalid image url"
)

func trimCell(s string) string {
	return strings.TrimSpace(strings.Trim(s, "\ufeff"))
}

// ValidURL reports whether s is an absolute http(s) URL with a host
func ValidURL(s string) bool {
	if s == "" || strings.ContainsAny(s, " \t\r\n") {
		return false
	}
	u, err := url.ParseRequestURI(s)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return u.Hostname() != ""
}

// ExtractRecords partitions data rows into MerchantRecords and SkippedRows.
// Every input row lands in exactly one of the two outputs, in input order.
func ExtractRecords(cols Columns, rows [][]string) ([]MerchantRecord, []SkippedRow) {
	records := make([]MerchantRecord, 0, len(rows))
	var skipped []SkippedRow

	for i, row := range rows {
		rowIndex := i + 1

		if isEmptyRow(row) {
			skipped = append(skipped, SkippedRow{RowIndex: rowIndex, Reason: ReasonEmptyRow})
			continue
		}

		name := cell(row, cols.Name)
		imageURL := cell(row, cols.URL)

		var reason string
		switch {
		case name == "":
			reason = ReasonEmptyName
		case imageURL == "":
			reason = ReasonEmptyURL
		case !ValidURL(imageURL):
			reason = ReasonInvalidURL
		}
		if reason != "" {
			skipped = append(skipped, SkippedRow{RowIndex: rowIndex, Reason: reason, Row: copyRow(row)})
			continue
		}

		records = append(records, MerchantRecord{
			RowIndex:     rowIndex,
			MerchantName: name,
			ImageURL:     imageURL,
			Original:     copyRow(row),
		})
	}

	return records, skipped
}

func isEmptyRow(row []string) bool {
	for _, c := range row {
		if trimCell(c) != "" {
			return false
		}
	}
	return true
}

func copyRow(row []string) []string {
	out := make([]string, len(row))
	copy(out, row)
	return out
}
