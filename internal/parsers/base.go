// Package parsers reads purchase registers and GSTR-2B workbooks into raw records.
//
// Input files are CSV or XLSX. Every file is first read into a Table, a plain grid
// of cell text. A Layout then locates the header row, maps the logical columns
// onto header cells through aliases, and turns each data row into a RawInvoice,
// RawNote or amendment. Cells are never interpreted here: amounts and dates stay
// text and are cleaned later by the normalizer.
//
// Example usage:
//
//	parser, err := parsers.NewRegisterParser(parsers.PortalInvoiceLayout, nil)
//	rows, stats, err := parser.ParseInvoices(ctx, "gstr2b.xlsx")
//
// Hard failures are limited to unreadable files, unsupported extensions and
// missing required columns. Problems tied to a single row are collected in
// ParseStats and the row is kept whenever possible.
package parsers

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"gst-reconciliation-service/pkg/errors"
	"gst-reconciliation-service/pkg/logger"
)

// ParseConfig holds configuration shared by the CSV and XLSX readers
type ParseConfig struct {
	// Delimiter separates CSV fields. Only the first rune is used.
	Delimiter        string `json:"delimiter" mapstructure:"delimiter"`
	TrimLeadingSpace bool   `json:"trim_leading_space" mapstructure:"trim_leading_space"`
	SkipEmptyRows    bool   `json:"skip_empty_rows" mapstructure:"skip_empty_rows"`
	MaxFieldSize     int    `json:"max_field_size" mapstructure:"max_field_size"`
	ValidateEncoding bool   `json:"validate_encoding" mapstructure:"validate_encoding"`
	// HeaderScanRows is how many leading rows are searched for the header row
	HeaderScanRows int `json:"header_scan_rows" mapstructure:"header_scan_rows"`
	// MaxErrors stops collecting row errors after this many. Zero means no limit.
	MaxErrors int `json:"max_errors" mapstructure:"max_errors"`
}

// DefaultParseConfig returns a configuration with sensible defaults
func DefaultParseConfig() *ParseConfig {
	return &ParseConfig{
		Delimiter:        ",",
		TrimLeadingSpace: true,
		SkipEmptyRows:    true,
		MaxFieldSize:     1000000, // 1MB per field
		ValidateEncoding: true,
		HeaderScanRows:   25,
		MaxErrors:        100,
	}
}

// Validate checks the configuration
func (c *ParseConfig) Validate() error {
	if utf8.RuneCountInString(c.Delimiter) != 1 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "parser.delimiter", c.Delimiter,
			fmt.Errorf("delimiter must be a single character"))
	}
	if c.HeaderScanRows <= 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "parser.header_scan_rows", c.HeaderScanRows, nil)
	}
	if c.MaxErrors < 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "parser.max_errors", c.MaxErrors, nil)
	}
	return nil
}

func (c *ParseConfig) delimiter() rune {
	r, _ := utf8.DecodeRuneInString(c.Delimiter)
	return r
}

// BaseParser provides file access shared by the register parsers
type BaseParser struct {
	config *ParseConfig
	logger logger.Logger
}

// NewBaseParser creates a new BaseParser with the given configuration
func NewBaseParser(config *ParseConfig) *BaseParser {
	if config == nil {
		config = DefaultParseConfig()
	}

	log := logger.WithComponent("parser")
	log.WithFields(logger.Fields{
		"delimiter":         config.Delimiter,
		"validate_encoding": config.ValidateEncoding,
		"header_scan_rows":  config.HeaderScanRows,
	}).Debug("Created base parser")

	return &BaseParser{
		config: config,
		logger: log,
	}
}

// Config returns the active configuration
func (bp *BaseParser) Config() *ParseConfig {
	return bp.config
}

// ReadTable reads a CSV or XLSX file. For workbooks the sheet is chosen by layout.
func (bp *BaseParser) ReadTable(ctx context.Context, path string, layout *Layout) (*Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		return bp.ReadCSV(ctx, path)
	case ".xlsx", ".xlsm":
		return bp.ReadXLSX(ctx, path, layout)
	default:
		return nil, errors.FileError(errors.CodeUnsupportedExt, path, nil).
			WithSuggestion("Save the register as .csv or .xlsx")
	}
}

// openFile opens path and maps os errors onto file error codes
func (bp *BaseParser) openFile(path string) (*os.File, error) {
	bp.logger.WithField("file_path", path).Debug("Opening file")

	file, err := os.Open(path)
	if err != nil {
		bp.logger.WithError(err).WithField("file_path", path).Error("Failed to open file")
		if os.IsNotExist(err) {
			return nil, errors.FileError(errors.CodeFileNotFound, path, err)
		}
		if os.IsPermission(err) {
			return nil, errors.FileError(errors.CodeFilePermission, path, err)
		}
		return nil, errors.FileError(errors.CodeFileCorrupted, path, err)
	}
	return file, nil
}

// validateEncoding checks that the first lines of a text file are valid UTF-8
func (bp *BaseParser) validateEncoding(file *os.File, path string) error {
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), bp.config.MaxFieldSize+64*1024)
	lineNum := 0

	for scanner.Scan() && lineNum < 100 {
		lineNum++
		if !utf8.Valid(scanner.Bytes()) {
			return errors.ParseError(
				errors.CodeInvalidFormat,
				path,
				lineNum,
				"encoding",
				"",
				fmt.Errorf("invalid UTF-8 encoding detected"),
			).WithSuggestion("Save the file in UTF-8 encoding and try again")
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.FileError(errors.CodeFileCorrupted, path, err)
	}
	return nil
}

// isCancelled reports whether ctx is done
func isCancelled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// isEmptyRecord checks if all fields in a record are empty or whitespace
func isEmptyRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

// normalizeHeader lowercases a header text and drops everything but letters and digits
func normalizeHeader(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if r < utf8.RuneSelf && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ParseStats holds statistics about a parsing operation
type ParseStats struct {
	File          string             `json:"file"`
	Sheet         string             `json:"sheet,omitempty"`
	HeaderLine    int                `json:"header_line"`
	TotalLines    int                `json:"total_lines"`
	RecordsParsed int                `json:"records_parsed"`
	RecordsValid  int                `json:"records_valid"`
	ErrorCount    int                `json:"error_count"`
	Errors        []*errors.RowError `json:"errors,omitempty"`
}

// HasErrors returns true if there were any row errors
func (ps *ParseStats) HasErrors() bool {
	return ps != nil && ps.ErrorCount > 0
}

// String returns a human-readable summary of parsing statistics
func (ps *ParseStats) String() string {
	return fmt.Sprintf("Parsed %d lines, %d records (%d valid), %d errors",
		ps.TotalLines, ps.RecordsParsed, ps.RecordsValid, ps.ErrorCount)
}

// GetSampleErrors returns a sample of the row errors for logging
func (ps *ParseStats) GetSampleErrors(maxSamples int) []string {
	if len(ps.Errors) == 0 {
		return nil
	}

	limit := len(ps.Errors)
	if maxSamples > 0 && maxSamples < limit {
		limit = maxSamples
	}

	samples := make([]string, 0, limit)
	for i := 0; i < limit; i++ {
		samples = append(samples, ps.Errors[i].Error())
	}
	return samples
}
