package parsers

import (
	"fmt"
	"strings"

	"gst-reconciliation-service/pkg/errors"
)

// Table is a grid of cell text read from a CSV file or one worksheet.
// Rows keep their original order; line numbers are 1-based.
type Table struct {
	File  string
	Sheet string
	Rows  [][]string
}

// Frame is a table whose header row has been located and whose logical columns
// have been resolved to cell positions
type Frame struct {
	File       string
	Sheet      string
	HeaderLine int
	Header     []string
	columns    map[string]int
	rows       []Row
}

// Row is one data row of a frame
type Row struct {
	Line  int
	cells []string
	frame *Frame
}

// Get returns the trimmed text of a logical column, or "" when the layout does
// not map it or the row is short
func (r Row) Get(column string) string {
	idx, ok := r.frame.columns[column]
	if !ok || idx >= len(r.cells) {
		return ""
	}
	return strings.TrimSpace(r.cells[idx])
}

// Has reports whether the logical column was found in the header
func (f *Frame) Has(column string) bool {
	_, ok := f.columns[column]
	return ok
}

// Column returns the header text a logical column was resolved to
func (f *Frame) Column(column string) string {
	idx, ok := f.columns[column]
	if !ok {
		return ""
	}
	return f.Header[idx]
}

// Rows returns the data rows below the header
func (f *Frame) Rows() []Row {
	return f.rows
}

// Locate finds the header row of the table and resolves the layout's columns.
// The first of the leading scanRows rows under which every required column
// resolves is the header. Blank header cells take the text of the cell above,
// which is how two-row GSTR-2B headers are read.
func (t *Table) Locate(layout *Layout, scanRows int) (*Frame, error) {
	limit := len(t.Rows)
	if scanRows > 0 && scanRows < limit {
		limit = scanRows
	}

	var best []string
	for i := 0; i < limit; i++ {
		header := combinedHeader(t.Rows, i)
		columns, missing := resolveColumns(header, layout)
		if len(missing) == 0 {
			f := &Frame{
				File:       t.File,
				Sheet:      t.Sheet,
				HeaderLine: i + 1,
				Header:     header,
				columns:    columns,
			}
			for j := i + 1; j < len(t.Rows); j++ {
				f.rows = append(f.rows, Row{Line: j + 1, cells: t.Rows[j], frame: f})
			}
			return f, nil
		}
		if best == nil && !isEmptyRecord(header) {
			best = header
		}
	}

	if len(t.Rows) == 0 {
		return nil, errors.ValidationError(errors.CodeMissingField, "file_content", "empty", nil).
			WithContext("file", t.File).
			WithSuggestion("Ensure the file contains header and data rows")
	}

	err := errors.MissingColumnsError(t.File, layout.Required, requiredHitList(best, layout))
	if t.Sheet != "" {
		err.WithContext("sheet", t.Sheet)
	}
	return nil, err.WithSuggestion(fmt.Sprintf("Ensure the %s register has the columns: %s",
		layout.Name, strings.Join(layout.Required, ", ")))
}

func combinedHeader(rows [][]string, i int) []string {
	header := make([]string, len(rows[i]))
	for j, cell := range rows[i] {
		header[j] = strings.TrimSpace(cell)
		if header[j] == "" && i > 0 && j < len(rows[i-1]) {
			header[j] = strings.TrimSpace(rows[i-1][j])
		}
	}
	return header
}

// resolveColumns maps logical columns to header positions. Exact alias matches are
// assigned first for every column, then contained matches; a header cell serves at
// most one logical column.
func resolveColumns(header []string, layout *Layout) (map[string]int, []string) {
	normalized := make([]string, len(header))
	for i, h := range header {
		normalized[i] = normalizeHeader(h)
	}

	columns := make(map[string]int)
	used := make(map[int]bool)

	cols := layout.Columns()
	for _, exact := range []bool{true, false} {
		for _, col := range cols {
			if _, done := columns[col]; done {
				continue
			}
			if idx, ok := findHeader(normalized, layout.Aliases[col], used, exact); ok {
				columns[col] = idx
				used[idx] = true
			}
		}
	}

	var missing []string
	for _, col := range layout.Required {
		if _, ok := columns[col]; !ok {
			missing = append(missing, col)
		}
	}
	return columns, missing
}

func findHeader(normalized, aliases []string, used map[int]bool, exact bool) (int, bool) {
	for _, alias := range aliases {
		want := normalizeHeader(alias)
		if want == "" {
			continue
		}
		for i, h := range normalized {
			if used[i] || h == "" {
				continue
			}
			if h == want || (!exact && strings.Contains(h, want)) {
				return i, true
			}
		}
	}
	return 0, false
}

// requiredHitList returns the logical names of the required columns a header
// resolves, so a missing-columns error can name the ones that were not found
func requiredHitList(header []string, layout *Layout) []string {
	if header == nil {
		return nil
	}
	columns, _ := resolveColumns(header, layout)
	found := make([]string, 0, len(columns))
	for _, col := range layout.Required {
		if _, ok := columns[col]; ok {
			found = append(found, col)
		}
	}
	return found
}
