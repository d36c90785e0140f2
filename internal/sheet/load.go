package sheet

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
)

// ErrUnsupportedFile is returned for datasets that are neither xlsx nor csv
var ErrUnsupportedFile = errors.New("unsupported dataset file")

// ErrEmptyDataset is returned when a file has no header row
var ErrEmptyDataset = errors.New("dataset has no header row")

// LoadOptions controls dataset decoding
type LoadOptions struct {
	// CSVEncoding is "utf-8" (default) or "windows-1251"
	CSVEncoding string
}

// IsDatasetFile reports whether the filename or content type looks like a dataset
func IsDatasetFile(filename, contentType string) bool {
	ct := strings.ToLower(contentType)
	if strings.Contains(ct, "spreadsheet") || strings.Contains(ct, "excel") || strings.Contains(ct, "csv") {
		return true
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm", ".csv":
		return true
	}
	return false
}

// Load decodes a dataset, choosing the format by file extension
func Load(filename string, data []byte, opts LoadOptions) (Dataset, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm":
		return LoadXLSX(bytes.NewReader(data))
	case ".csv":
		return LoadCSV(bytes.NewReader(data), opts.CSVEncoding)
	default:
		return Dataset{}, fmt.Errorf("%w: %s", ErrUnsupportedFile, filename)
	}
}

// LoadXLSX reads the first worksheet. The first non-empty row is the header.
func LoadXLSX(r io.Reader) (Dataset, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return Dataset{}, fmt.Errorf("opening workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return Dataset{}, ErrEmptyDataset
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return Dataset{}, fmt.Errorf("reading sheet %q: %w", sheets[0], err)
	}

	return splitHeader(rows)
}

// LoadCSV reads a comma or semicolon separated file
func LoadCSV(r io.Reader, encoding string) (Dataset, error) {
	var reader io.Reader = r
	if strings.EqualFold(encoding, "windows-1251") {
		reader = charmap.Windows1251.NewDecoder().Reader(r)
	}

	br := bufio.NewReader(reader)
	firstLine, err := br.Peek(4096)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return Dataset{}, fmt.Errorf("reading csv: %w", err)
	}

	csvReader := csv.NewReader(br)
	csvReader.Comma = detectDelimiter(firstLine)
	csvReader.LazyQuotes = true
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	rows, err := csvReader.ReadAll()
	if err != nil {
		return Dataset{}, fmt.Errorf("csv read error: %w", err)
	}

	return splitHeader(rows)
}

// detectDelimiter picks ';' when the first line has more semicolons than commas
func detectDelimiter(head []byte) rune {
	if idx := bytes.IndexByte(head, '\n'); idx >= 0 {
		head = head[:idx]
	}
	if bytes.Count(head, []byte(";")) > bytes.Count(head, []byte(",")) {
		return ';'
	}
	return ','
}

func splitHeader(rows [][]string) (Dataset, error) {
	for i, row := range rows {
		if isEmptyRow(row) {
			continue
		}
		header := make([]string, len(row))
		for j, h := range row {
			header[j] = trimCell(h)
		}
		return Dataset{Header: header, Rows: rows[i+1:]}, nil
	}
	return Dataset{}, ErrEmptyDataset
}
