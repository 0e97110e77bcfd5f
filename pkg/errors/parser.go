package errors

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// ParseContext locates a problem inside an input register
type ParseContext struct {
	File   string `json:"file"`
	Sheet  string `json:"sheet,omitempty"`
	Line   int    `json:"line"`
	Column string `json:"column,omitempty"`
	Value  string `json:"value,omitempty"`
}

// RowError is a parse problem tied to one row of an input register.
// Recoverable row errors are reported but never stop ingestion.
type RowError struct {
	*ReconcilerError
	Location    *ParseContext `json:"location"`
	Recoverable bool          `json:"recoverable"`
}

// Error implements the error interface with the file location appended
func (e *RowError) Error() string {
	if e.Location == nil {
		return e.ReconcilerError.Error()
	}

	location := "at " + filepath.Base(e.Location.File)
	if e.Location.Sheet != "" {
		location += "[" + e.Location.Sheet + "]"
	}
	if e.Location.Line > 0 {
		location += fmt.Sprintf(":%d", e.Location.Line)
	}
	if e.Location.Column != "" {
		location += fmt.Sprintf(" column '%s'", e.Location.Column)
	}
	return e.ReconcilerError.Error() + " " + location
}

// NewRowError creates a recoverable row error
func NewRowError(code ErrorCode, loc *ParseContext, message string, cause error) *RowError {
	base := build(cause, CategoryParse, code, message)
	if loc != nil {
		base.WithContext("file", loc.File).
			WithContext("line", loc.Line)
		if loc.Sheet != "" {
			base.WithContext("sheet", loc.Sheet)
		}
		if loc.Column != "" {
			base.WithContext("column", loc.Column)
		}
	}
	return &RowError{ReconcilerError: base, Location: loc, Recoverable: true}
}

// ShortRowError reports a data row with fewer cells than the header
func ShortRowError(file, sheet string, line, got, want int) *RowError {
	err := NewRowError(CodeInvalidData, &ParseContext{File: file, Sheet: sheet, Line: line},
		fmt.Sprintf("row has %d cells, header has %d", got, want), nil)
	err.WithSuggestion("missing trailing cells are read as empty values")
	return err
}

// MissingColumnsError reports every required logical column absent from a header row
func MissingColumnsError(file string, required, header []string) *ReconcilerError {
	missing := findMissingColumns(required, header)
	err := ParseError(CodeMissingColumn, file, 1, strings.Join(missing, ", "), "", nil)
	return err.WithContext("found_columns", header)
}

// ParseErrorCollector gathers row errors while a register is read
type ParseErrorCollector struct {
	errors    []*RowError
	maxErrors int
}

// NewParseErrorCollector creates a collector that stops accepting errors after maxErrors.
// A maxErrors of zero means no limit.
func NewParseErrorCollector(maxErrors int) *ParseErrorCollector {
	return &ParseErrorCollector{maxErrors: maxErrors}
}

// Add records err and reports whether ingestion may continue
func (c *ParseErrorCollector) Add(err *RowError) bool {
	if err == nil {
		return true
	}
	c.errors = append(c.errors, err)
	if c.maxErrors > 0 && len(c.errors) >= c.maxErrors {
		return false
	}
	return err.Recoverable
}

// HasErrors returns true if any errors have been collected
func (c *ParseErrorCollector) HasErrors() bool {
	return len(c.errors) > 0
}

// Errors returns all collected errors
func (c *ParseErrorCollector) Errors() []*RowError {
	return c.errors
}

// Summary returns an error summary for all collected errors
func (c *ParseErrorCollector) Summary() *ErrorSummary {
	base := make([]*ReconcilerError, len(c.errors))
	for i, err := range c.errors {
		base[i] = err.ReconcilerError
	}
	return NewErrorSummary(base)
}

func findMissingColumns(required, header []string) []string {
	present := make(map[string]bool, len(header))
	for _, col := range header {
		present[strings.ToLower(strings.TrimSpace(col))] = true
	}

	var missing []string
	for _, col := range required {
		if !present[strings.ToLower(strings.TrimSpace(col))] {
			missing = append(missing, col)
		}
	}
	return missing
}

// FormatRowErrors renders row errors grouped by file, at most three per file
func FormatRowErrors(errs []*RowError) string {
	if len(errs) == 0 {
		return "No parse errors"
	}

	byFile := make(map[string][]*RowError)
	for _, err := range errs {
		file := "unknown"
		if err.Location != nil {
			file = filepath.Base(err.Location.File)
		}
		byFile[file] = append(byFile[file], err)
	}

	files := make([]string, 0, len(byFile))
	for f := range byFile {
		files = append(files, f)
	}
	sort.Strings(files)

	lines := []string{fmt.Sprintf("Found %d parse issues:", len(errs))}
	for _, file := range files {
		fileErrs := byFile[file]
		lines = append(lines, fmt.Sprintf("File: %s (%d issues)", file, len(fileErrs)))
		for i, err := range fileErrs {
			if i == 3 {
				lines = append(lines, fmt.Sprintf("  ... and %d more", len(fileErrs)-3))
				break
			}
			lines = append(lines, "  - "+err.Error())
		}
	}
	return strings.Join(lines, "\n")
}
