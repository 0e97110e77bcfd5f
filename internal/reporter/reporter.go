// Package reporter renders reconciliation results.
//
// Results of either cascade are first flattened into a Report, one Row per
// outcome, and then written in the configured format. Sections and CSV rows are
// chosen by outcome kind, never by status text.
//
// Supported output formats:
//   - Console: human-readable sections for terminal display
//   - JSON: the full Report for programmatic consumption
//   - CSV: one line per outcome for spreadsheet applications
//   - XLSX: a workbook with Outcomes, Summary and Exclusions sheets
//
// Example usage:
//
//	generator, _ := reporter.NewReportGenerator(reporter.DefaultReportConfig())
//	err := generator.GenerateReport(reporter.FromInvoiceResult(result), os.Stdout)
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"gst-reconciliation-service/internal/models"
	"gst-reconciliation-service/pkg/errors"
)

// OutputFormat represents the supported report output formats
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
	FormatXLSX    OutputFormat = "xlsx"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV, FormatXLSX:
		return true
	default:
		return false
	}
}

// IsBinary reports whether the format must not be written to a terminal
func (f OutputFormat) IsBinary() bool {
	return f == FormatXLSX
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat `json:"format" mapstructure:"format"`

	// IncludeMatched lists manual and exact matches in console and CSV output
	IncludeMatched         bool `json:"include_matched" mapstructure:"include_matched"`
	IncludeExclusions      bool `json:"include_exclusions" mapstructure:"include_exclusions"`
	IncludeProcessingStats bool `json:"include_processing_stats" mapstructure:"include_processing_stats"`

	// MaxConsoleRows caps the rows printed per console section; 0 prints all
	MaxConsoleRows int `json:"max_console_rows" mapstructure:"max_console_rows"`
	// SortByValue orders unmatched rows by descending final taxable value
	SortByValue bool `json:"sort_by_value" mapstructure:"sort_by_value"`

	CSVDelimiter rune `json:"csv_delimiter" mapstructure:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers" mapstructure:"csv_headers"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:                 FormatConsole,
		IncludeMatched:         false,
		IncludeExclusions:      true,
		IncludeProcessingStats: true,
		MaxConsoleRows:         10,
		SortByValue:            false,
		CSVDelimiter:           ',',
		CSVHeaders:             true,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "report.format", c.Format,
			fmt.Errorf("invalid output format: %s", c.Format)).
			WithSuggestion("Use one of: console, json, csv, xlsx")
	}
	if c.MaxConsoleRows < 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "report.max_console_rows", c.MaxConsoleRows, nil)
	}
	if c.CSVDelimiter == 0 || c.CSVDelimiter == '"' || c.CSVDelimiter == '\n' || c.CSVDelimiter == '\r' {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "report.csv_delimiter", string(c.CSVDelimiter), nil)
	}
	return nil
}

// ReportGenerator generates reconciliation reports in various formats
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &ReportGenerator{config: config}, nil
}

// GenerateReport writes the report to writer in the configured format
func (rg *ReportGenerator) GenerateReport(report *Report, writer io.Writer) error {
	if report == nil {
		return errors.ValidationError(errors.CodeMissingField, "report", nil, nil)
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(report, writer)
	case FormatJSON:
		return rg.generateJSONReport(report, writer)
	case FormatCSV:
		return rg.generateCSVReport(report, writer)
	case FormatXLSX:
		return rg.generateXLSXReport(report, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

func (rg *ReportGenerator) generateConsoleReport(report *Report, writer io.Writer) error {
	title := "GST INVOICE RECONCILIATION REPORT"
	if report.Scope == models.ScopeNotes {
		title = "GST CREDIT/DEBIT NOTE RECONCILIATION REPORT"
	}
	fmt.Fprintf(writer, "%s\n", title)
	fmt.Fprintf(writer, "Generated: %s\n", report.ProcessedAt.Format(time.RFC3339))
	if report.RunID != "" {
		fmt.Fprintf(writer, "Run ID: %s\n", report.RunID)
	}
	if report.GSTIN != "" {
		fmt.Fprintf(writer, "GSTIN: %s\n", report.GSTIN)
	}
	if report.Period != "" {
		fmt.Fprintf(writer, "Period: %s\n", report.Period)
	}
	fmt.Fprintf(writer, "Tolerance: %s", report.Tolerance.StringFixed(2))
	if report.SmartMode {
		fmt.Fprintf(writer, " (smart suggestions on)")
	}
	fmt.Fprintf(writer, "\n\n")

	fmt.Fprintf(writer, "=== SUMMARY ===\n")
	rg.printSummary(report, writer)
	fmt.Fprintf(writer, "\n")

	groups := report.byKind()
	for _, kind := range kindOrder {
		rows := groups[kind]
		if len(rows) == 0 {
			continue
		}
		if (kind == models.KindExact || kind == models.KindManual) && !rg.config.IncludeMatched {
			continue
		}
		if kind.IsUnmatched() && rg.config.SortByValue {
			rows = sortedByValue(rows)
		}
		fmt.Fprintf(writer, "=== %s (%d) ===\n", sectionTitles[kind], len(rows))
		rg.printRows(rows, writer)
		fmt.Fprintf(writer, "\n")
	}

	if len(report.Vendors) > 0 {
		fmt.Fprintf(writer, "=== VENDORS WITH ISSUES (%d) ===\n", len(report.Vendors))
		for _, v := range report.Vendors {
			fmt.Fprintf(writer, "  - %s\n", v)
		}
		fmt.Fprintf(writer, "\n")
	}

	if rg.config.IncludeExclusions && len(report.Exclusions) > 0 {
		fmt.Fprintf(writer, "=== EXCLUDED FROM MATCHING (%d) ===\n", len(report.Exclusions))
		for i, ex := range report.Exclusions {
			if rg.limitReached(i, len(report.Exclusions), writer) {
				break
			}
			fmt.Fprintf(writer, "  %d. [%s] line %d, ID: %s, GSTIN: %q, No: %q, Reason: %s\n",
				i+1, ex.Side, ex.Line, ex.ID, ex.GSTIN, ex.Number, ex.Reason)
		}
		fmt.Fprintf(writer, "\n")
	}

	if len(report.Warnings) > 0 {
		fmt.Fprintf(writer, "=== WARNINGS ===\n")
		for _, w := range report.Warnings {
			fmt.Fprintf(writer, "  - %s\n", w)
		}
		fmt.Fprintf(writer, "\n")
	}

	if rg.config.IncludeProcessingStats && report.Stats != nil {
		fmt.Fprintf(writer, "=== PROCESSING STATISTICS ===\n")
		fmt.Fprintf(writer, "Books Rows:      %d (%d records)\n", report.Stats.BooksRows, report.Stats.BooksRecords)
		fmt.Fprintf(writer, "Portal Rows:     %d (%d records)\n", report.Stats.PortalRows, report.Stats.PortalRecords)
		if report.Stats.Backfilled > 0 {
			fmt.Fprintf(writer, "Names Backfilled: %d\n", report.Stats.Backfilled)
		}
		fmt.Fprintf(writer, "Preparation:     %v\n", report.Stats.PrepareTime)
		fmt.Fprintf(writer, "Matching:        %v\n", report.Stats.MatchingTime)
		fmt.Fprintf(writer, "Total:           %v\n", report.Stats.TotalTime)
	}

	return nil
}

func (rg *ReportGenerator) printSummary(report *Report, writer io.Writer) {
	s := report.Summary
	if s == nil {
		fmt.Fprintf(writer, "No summary available\n")
		return
	}

	fmt.Fprintf(writer, "Books Records:       %d\n", s.TotalBooks)
	fmt.Fprintf(writer, "Portal Records:      %d\n", s.TotalPortal)
	fmt.Fprintf(writer, "Manually Linked:     %d\n", s.ManualCount)
	fmt.Fprintf(writer, "Matched:             %d (%.1f%%)\n", s.MatchedCount, percentage(s.MatchedCount, s.TotalBooks))
	fmt.Fprintf(writer, "Tax Errors:          %d\n", s.TaxErrorCount)
	fmt.Fprintf(writer, "Approximate Matches: %d\n", s.MismatchCount)
	fmt.Fprintf(writer, "Suggestions:         %d\n", s.SuggestionCount)
	fmt.Fprintf(writer, "Group Suggestions:   %d\n", s.GroupCount)
	fmt.Fprintf(writer, "Not in Portal:       %d (taxable %s)\n", s.NotInPortalCount, s.NotInPortalValue.StringFixed(2))
	fmt.Fprintf(writer, "Not in Books:        %d (taxable %s)\n", s.NotInBooksCount, s.NotInBooksValue.StringFixed(2))
	if s.AmendmentsDeleted > 0 || s.AmendmentsAdded > 0 {
		fmt.Fprintf(writer, "Amendments:          %d replaced, %d added\n", s.AmendmentsDeleted, s.AmendmentsAdded)
	}
	if s.ExcludedCount > 0 {
		fmt.Fprintf(writer, "Excluded:            %d\n", s.ExcludedCount)
	}
	if report.Scope == models.ScopeNotes {
		fmt.Fprintf(writer, "Net ITC Impact:      %s\n", s.NetITCImpact.StringFixed(2))
	}
}

func (rg *ReportGenerator) printRows(rows []Row, writer io.Writer) {
	for i, row := range rows {
		if rg.limitReached(i, len(rows), writer) {
			break
		}
		fmt.Fprintf(writer, "  %d. %s (%s) [%s]\n", i+1, row.PartyName, row.GSTIN, row.Logic)
		if row.BooksID != "" {
			fmt.Fprintf(writer, "     Books  %-8s No: %s, Date: %s, Taxable: %s\n",
				row.BooksID, row.BooksNumber, row.BooksDate, taxable(row.BooksValues))
		}
		if row.PortalID != "" {
			fmt.Fprintf(writer, "     Portal %-8s No: %s, Date: %s, Taxable: %s\n",
				row.PortalID, row.PortalNumber, row.PortalDate, taxable(row.PortalValues))
		}
		if row.Kind.IsPaired() && !row.Diff.TaxableValue.IsZero() {
			fmt.Fprintf(writer, "     Taxable Diff: %s\n", row.Diff.TaxableValue.StringFixed(2))
		}
		if row.Kind == models.KindTaxError {
			fmt.Fprintf(writer, "     Tax Diff: IGST %s, CGST %s, SGST %s\n",
				row.Diff.IGST.StringFixed(2), row.Diff.CGST.StringFixed(2), row.Diff.SGST.StringFixed(2))
		}
	}
}

// limitReached prints the overflow line and reports true once i reaches the
// configured maximum
func (rg *ReportGenerator) limitReached(i, total int, writer io.Writer) bool {
	max := rg.config.MaxConsoleRows
	if max <= 0 || i < max {
		return false
	}
	fmt.Fprintf(writer, "  ... and %d more\n", total-max)
	return true
}

func (rg *ReportGenerator) generateJSONReport(report *Report, writer io.Writer) error {
	output := *report
	if !rg.config.IncludeExclusions {
		output.Exclusions = nil
	}
	if !rg.config.IncludeProcessingStats {
		output.Stats = nil
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(&output)
}

// csvHeaders are the columns of CSV and XLSX outcome rows
var csvHeaders = []string{
	"Kind",
	"Status",
	"Match_Logic",
	"GSTIN",
	"Party_Name",
	"Note_Type",
	"Books_ID",
	"Books_Number",
	"Books_Date",
	"Books_Taxable",
	"Portal_ID",
	"Portal_Number",
	"Portal_Date",
	"Portal_Taxable",
	"Taxable_Diff",
	"IGST_Diff",
	"CGST_Diff",
	"SGST_Diff",
	"Cess_Diff",
	"Final_Taxable",
	"ITC_Impact",
}

func (rg *ReportGenerator) generateCSVReport(report *Report, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter

	if rg.config.CSVHeaders {
		if err := csvWriter.Write(csvHeaders); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}

	for _, row := range rg.outputRows(report) {
		if err := csvWriter.Write(row.fields()); err != nil {
			return fmt.Errorf("failed to write outcome record: %w", err)
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

// outputRows returns the rows written to CSV, honouring IncludeMatched
func (rg *ReportGenerator) outputRows(report *Report) []Row {
	if rg.config.IncludeMatched {
		return report.Rows
	}
	rows := make([]Row, 0, len(report.Rows))
	for _, row := range report.Rows {
		if row.Kind == models.KindExact || row.Kind == models.KindManual {
			continue
		}
		rows = append(rows, row)
	}
	return rows
}

func (row Row) fields() []string {
	return []string{
		row.Kind.String(),
		row.Status,
		row.Logic,
		row.GSTIN,
		row.PartyName,
		row.NoteType,
		row.BooksID.String(),
		row.BooksNumber,
		row.BooksDate,
		taxable(row.BooksValues),
		row.PortalID.String(),
		row.PortalNumber,
		row.PortalDate,
		taxable(row.PortalValues),
		row.Diff.TaxableValue.StringFixed(2),
		row.Diff.IGST.StringFixed(2),
		row.Diff.CGST.StringFixed(2),
		row.Diff.SGST.StringFixed(2),
		row.Diff.Cess.StringFixed(2),
		row.FinalTaxable.StringFixed(2),
		fixed(row.ITCImpact),
	}
}

func sortedByValue(rows []Row) []Row {
	out := make([]Row, len(rows))
	copy(out, rows)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].FinalTaxable.GreaterThan(out[j].FinalTaxable)
	})
	return out
}

func percentage(part, total int) float64 {
	if total == 0 {
		return 0.0
	}
	return float64(part) / float64(total) * 100.0
}
