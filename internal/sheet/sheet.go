package sheet

// Dataset is a loaded tabular file: one header row followed by data rows.
// Rows may be ragged; missing trailing cells read as empty.
type Dataset struct {
	Header []string
	Rows   [][]string
}

// Columns maps the two roles the pipeline needs onto header indices
type Columns struct {
	Name       int    `json:"name_column"`
	URL        int    `json:"url_column"`
	NameHeader string `json:"name_header"`
	URLHeader  string `json:"url_header"`
}

// MerchantRecord is one validated data row
type MerchantRecord struct {
	RowIndex     int      `json:"row_index"` // 1-based, header excluded
	MerchantName string   `json:"merchant_name"`
	ImageURL     string   `json:"image_url"`
	Original     []string `json:"-"` // full source row, passed through to the report
}

// SkippedRow is a data row that could not become a MerchantRecord
type SkippedRow struct {
	RowIndex int      `json:"row_index"`
	Reason   string   `json:"reason"`
	Row      []string `json:"row,omitempty"`
}

// cell returns the trimmed value at idx, or "" when the row is too short
func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return trimCell(row[idx])
}
