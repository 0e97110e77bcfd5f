package reporter

import (
	"fmt"
	"io"

	"gst-reconciliation-service/internal/models"

	"github.com/xuri/excelize/v2"
)

const (
	sheetOutcomes   = "Outcomes"
	sheetSummary    = "Summary"
	sheetExclusions = "Exclusions"
)

// generateXLSXReport writes a workbook with every outcome row, the summary and,
// when enabled, the excluded records
func (rg *ReportGenerator) generateXLSXReport(report *Report, writer io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetOutcomes); err != nil {
		return fmt.Errorf("failed to create outcomes sheet: %w", err)
	}

	header := make([]interface{}, len(csvHeaders))
	for i, h := range csvHeaders {
		header[i] = h
	}
	if err := f.SetSheetRow(sheetOutcomes, "A1", &header); err != nil {
		return fmt.Errorf("failed to write outcomes header: %w", err)
	}
	// the workbook always carries every row; IncludeMatched only trims text output
	for i, row := range report.Rows {
		values := row.cells()
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheetOutcomes, cell, &values); err != nil {
			return fmt.Errorf("failed to write outcome row %d: %w", i+1, err)
		}
	}
	if err := f.SetPanes(sheetOutcomes, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("failed to freeze outcomes header: %w", err)
	}

	if _, err := f.NewSheet(sheetSummary); err != nil {
		return fmt.Errorf("failed to create summary sheet: %w", err)
	}
	for i, kv := range summaryCells(report) {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		pair := []interface{}{kv.label, kv.value}
		if err := f.SetSheetRow(sheetSummary, cell, &pair); err != nil {
			return fmt.Errorf("failed to write summary: %w", err)
		}
	}

	if rg.config.IncludeExclusions && len(report.Exclusions) > 0 {
		if _, err := f.NewSheet(sheetExclusions); err != nil {
			return fmt.Errorf("failed to create exclusions sheet: %w", err)
		}
		head := []interface{}{"Side", "Line", "ID", "GSTIN", "Number", "Reason"}
		if err := f.SetSheetRow(sheetExclusions, "A1", &head); err != nil {
			return fmt.Errorf("failed to write exclusions header: %w", err)
		}
		for i, ex := range report.Exclusions {
			cell, _ := excelize.CoordinatesToCellName(1, i+2)
			values := []interface{}{string(ex.Side), ex.Line, ex.ID.String(), ex.GSTIN, ex.Number, string(ex.Reason)}
			if err := f.SetSheetRow(sheetExclusions, cell, &values); err != nil {
				return fmt.Errorf("failed to write exclusion row %d: %w", i+1, err)
			}
		}
	}

	if _, err := f.WriteTo(writer); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// cells returns the row as spreadsheet values; amounts are numbers so the sheet
// can total them
func (row Row) cells() []interface{} {
	text := row.fields()
	values := make([]interface{}, len(text))
	for i, v := range text {
		values[i] = v
	}

	numeric := map[int]func() (float64, bool){
		9:  func() (float64, bool) { return amountFloat(row.BooksValues) },
		13: func() (float64, bool) { return amountFloat(row.PortalValues) },
		14: func() (float64, bool) { return row.Diff.TaxableValue.InexactFloat64(), true },
		15: func() (float64, bool) { return row.Diff.IGST.InexactFloat64(), true },
		16: func() (float64, bool) { return row.Diff.CGST.InexactFloat64(), true },
		17: func() (float64, bool) { return row.Diff.SGST.InexactFloat64(), true },
		18: func() (float64, bool) { return row.Diff.Cess.InexactFloat64(), true },
		19: func() (float64, bool) { return row.FinalTaxable.InexactFloat64(), true },
		20: func() (float64, bool) {
			if row.ITCImpact == nil {
				return 0, false
			}
			return row.ITCImpact.InexactFloat64(), true
		},
	}
	for i, get := range numeric {
		if v, ok := get(); ok {
			values[i] = v
		}
	}
	return values
}

func amountFloat(a *models.Amounts) (float64, bool) {
	if a == nil {
		return 0, false
	}
	return a.TaxableValue.InexactFloat64(), true
}

type summaryCell struct {
	label string
	value interface{}
}

func summaryCells(report *Report) []summaryCell {
	cells := []summaryCell{
		{"Scope", string(report.Scope)},
		{"Processed At", report.ProcessedAt.Format("2006-01-02 15:04:05")},
		{"Tolerance", report.Tolerance.InexactFloat64()},
	}
	if report.RunID != "" {
		cells = append(cells, summaryCell{"Run ID", report.RunID})
	}
	if report.GSTIN != "" {
		cells = append(cells, summaryCell{"GSTIN", report.GSTIN})
	}
	if report.Period != "" {
		cells = append(cells, summaryCell{"Period", report.Period})
	}

	s := report.Summary
	if s == nil {
		return cells
	}
	cells = append(cells,
		summaryCell{"Books Records", s.TotalBooks},
		summaryCell{"Portal Records", s.TotalPortal},
		summaryCell{"Manually Linked", s.ManualCount},
		summaryCell{"Matched", s.MatchedCount},
		summaryCell{"Tax Errors", s.TaxErrorCount},
		summaryCell{"Approximate Matches", s.MismatchCount},
		summaryCell{"Suggestions", s.SuggestionCount},
		summaryCell{"Group Suggestions", s.GroupCount},
		summaryCell{"Not in Portal", s.NotInPortalCount},
		summaryCell{"Not in Portal Taxable", s.NotInPortalValue.InexactFloat64()},
		summaryCell{"Not in Books", s.NotInBooksCount},
		summaryCell{"Not in Books Taxable", s.NotInBooksValue.InexactFloat64()},
		summaryCell{"Amendments Replaced", s.AmendmentsDeleted},
		summaryCell{"Amendments Added", s.AmendmentsAdded},
		summaryCell{"Excluded", s.ExcludedCount},
	)
	if report.Scope == models.ScopeNotes {
		cells = append(cells, summaryCell{"Net ITC Impact", s.NetITCImpact.InexactFloat64()})
	}
	return cells
}
