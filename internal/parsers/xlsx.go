package parsers

import (
	"context"
	"fmt"
	"strings"

	"gst-reconciliation-service/pkg/errors"
	"gst-reconciliation-service/pkg/logger"

	"github.com/xuri/excelize/v2"
)

// ReadXLSX reads the sheet of a workbook that the layout selects. Cells are read
// raw so dates arrive as serial day numbers and amounts without display formatting.
func (bp *BaseParser) ReadXLSX(ctx context.Context, path string, layout *Layout) (*Table, error) {
	file, err := bp.openFile(path)
	if err != nil {
		return nil, err
	}
	file.Close()

	f, err := excelize.OpenFile(path, excelize.Options{RawCellValue: true})
	if err != nil {
		bp.logger.WithError(err).WithField("file_path", path).Error("Failed to open workbook")
		return nil, errors.FileError(errors.CodeFileCorrupted, path, err).
			WithSuggestion("Ensure the file is a valid .xlsx workbook")
	}
	defer f.Close()

	sheets := f.GetSheetList()
	sheet, ok := SelectSheet(sheets, layout)
	if !ok {
		return nil, errors.ParseError(errors.CodeMissingSheet, path, 0, "sheet", layout.Name, nil).
			WithContext("sheets", sheets).
			WithSuggestion(fmt.Sprintf("Add a sheet named like one of: %s", strings.Join(layout.SheetKeywords, ", ")))
	}

	if isCancelled(ctx) {
		return nil, errors.InternalError(errors.CodeUnexpectedError, "xlsx_parsing",
			fmt.Errorf("parsing cancelled: %w", ctx.Err()))
	}

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, errors.ParseError(errors.CodeInvalidFormat, path, 0, "sheet", sheet, err)
	}

	bp.logger.WithFields(logger.Fields{
		"file_path": path,
		"sheet":     sheet,
		"rows":      len(rows),
	}).Debug("Read worksheet")

	return &Table{File: path, Sheet: sheet, Rows: rows}, nil
}

// SelectSheet picks the worksheet for a layout. An exact name wins, then the last
// sheet containing a keyword; sheets containing an excluded word are skipped. A
// layout without sheet rules reads the first sheet.
func SelectSheet(sheets []string, layout *Layout) (string, bool) {
	if len(sheets) == 0 {
		return "", false
	}
	if len(layout.SheetExact) == 0 && len(layout.SheetKeywords) == 0 {
		return sheets[0], true
	}

	found := ""
	for _, sheet := range sheets {
		name := strings.ToLower(strings.TrimSpace(sheet))
		if containsAny(name, layout.SheetExclude) {
			continue
		}
		for _, exact := range layout.SheetExact {
			if name == strings.ToLower(exact) {
				return sheet, true
			}
		}
		if containsAny(name, layout.SheetKeywords) {
			found = sheet
		}
	}
	return found, found != ""
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if w != "" && strings.Contains(s, strings.ToLower(w)) {
			return true
		}
	}
	return false
}
