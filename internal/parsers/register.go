package parsers

import (
	"context"
	"fmt"

	"gst-reconciliation-service/internal/models"
	"gst-reconciliation-service/pkg/errors"
	"gst-reconciliation-service/pkg/logger"
)

// RegisterParser reads one kind of register described by a layout
type RegisterParser struct {
	*BaseParser
	layout *Layout
	logger logger.Logger
}

// NewRegisterParser creates a parser for layout. A nil config selects DefaultParseConfig.
func NewRegisterParser(layout *Layout, config *ParseConfig) (*RegisterParser, error) {
	if layout == nil {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "parser.layout", nil, nil).
			WithSuggestion("Choose one of the predefined layouts or define one in the config file")
	}
	if err := layout.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "parser.layout", layout.Name, err).
			WithSuggestion("Check the layout's required columns and aliases")
	}
	if config == nil {
		config = DefaultParseConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	log := logger.WithComponent("register_parser").WithField("layout", layout.Name)
	log.Debug("Created register parser")

	return &RegisterParser{
		BaseParser: NewBaseParser(config),
		layout:     layout,
		logger:     log,
	}, nil
}

// Layout returns the layout the parser reads
func (rp *RegisterParser) Layout() *Layout {
	return rp.layout
}

// Frame reads path and locates its header. For optional layouts a workbook
// without a matching sheet yields a nil frame and no error.
func (rp *RegisterParser) Frame(ctx context.Context, path string) (*Frame, error) {
	table, err := rp.ReadTable(ctx, path, rp.layout)
	if err != nil {
		if re, ok := errors.AsReconcilerError(err); ok && re.Code == errors.CodeMissingSheet && rp.layout.Optional {
			rp.logger.WithField("file_path", path).Info("No sheet for optional layout, reading as empty")
			return nil, nil
		}
		return nil, err
	}

	frame, err := table.Locate(rp.layout, rp.config.HeaderScanRows)
	if err != nil {
		rp.logger.WithError(err).WithField("file_path", path).Error("Failed to locate header row")
		return nil, err
	}

	rp.logger.WithFields(logger.Fields{
		"file_path":   path,
		"sheet":       frame.Sheet,
		"header_line": frame.HeaderLine,
		"data_rows":   len(frame.rows),
	}).Debug("Located header row")

	return frame, nil
}

// ParseInvoices reads invoice rows
func (rp *RegisterParser) ParseInvoices(ctx context.Context, path string) ([]models.RawInvoice, *ParseStats, error) {
	return parseRows(ctx, rp, path, invoiceFromRow)
}

// ParseNotes reads credit/debit note rows
func (rp *RegisterParser) ParseNotes(ctx context.Context, path string) ([]models.RawNote, *ParseStats, error) {
	return parseRows(ctx, rp, path, noteFromRow)
}

// ParseInvoiceAmendments reads B2BA rows. Each row supersedes the invoice filed under
// its GSTIN and original number.
func (rp *RegisterParser) ParseInvoiceAmendments(ctx context.Context, path string) ([]models.Amendment[models.RawInvoice], *ParseStats, error) {
	return parseRows(ctx, rp, path, func(r Row) models.Amendment[models.RawInvoice] {
		revised := invoiceFromRow(r)
		return models.Amendment[models.RawInvoice]{
			GSTIN:          revised.GSTIN,
			OriginalNumber: r.Get(ColOriginalNumber),
			Revised:        revised,
		}
	})
}

// ParseNoteAmendments reads CDNRA rows
func (rp *RegisterParser) ParseNoteAmendments(ctx context.Context, path string) ([]models.Amendment[models.RawNote], *ParseStats, error) {
	return parseRows(ctx, rp, path, func(r Row) models.Amendment[models.RawNote] {
		revised := noteFromRow(r)
		return models.Amendment[models.RawNote]{
			GSTIN:          revised.GSTIN,
			OriginalNumber: revised.OriginalNumber,
			Revised:        revised,
		}
	})
}

// parseRows turns every data row of the frame into a record. Short rows are kept and
// reported; oversized fields drop the row.
func parseRows[T any](ctx context.Context, rp *RegisterParser, path string, build func(Row) T) ([]T, *ParseStats, error) {
	rp.logger.WithFields(logger.Fields{
		"file_path": path,
		"operation": "parse_" + rp.layout.Name,
	}).Info("Starting register parsing")

	stats := &ParseStats{File: path}

	frame, err := rp.Frame(ctx, path)
	if err != nil {
		return nil, stats, err
	}
	if frame == nil {
		return nil, stats, nil
	}
	stats.Sheet = frame.Sheet
	stats.HeaderLine = frame.HeaderLine

	collector := errors.NewParseErrorCollector(rp.config.MaxErrors)
	out := make([]T, 0, len(frame.rows))

	for _, row := range frame.rows {
		if isCancelled(ctx) {
			rp.logger.Warn("Register parsing was cancelled")
			return out, stats, errors.InternalError(errors.CodeUnexpectedError, "register_parsing",
				fmt.Errorf("parsing cancelled by context: %w", ctx.Err()))
		}

		stats.TotalLines = row.Line
		if rp.config.SkipEmptyRows && isEmptyRecord(row.cells) {
			continue
		}
		stats.RecordsParsed++

		if idx, size, ok := rp.oversizedField(row.cells); ok {
			collector.Add(errors.NewRowError(errors.CodeInvalidData,
				&errors.ParseContext{File: path, Sheet: frame.Sheet, Line: row.Line, Column: columnName(frame, idx)},
				fmt.Sprintf("field exceeds maximum size of %d bytes (%d)", rp.config.MaxFieldSize, size), nil))
			continue
		}
		if len(row.cells) < len(frame.Header) {
			collector.Add(errors.ShortRowError(path, frame.Sheet, row.Line, len(row.cells), len(frame.Header)))
		}

		out = append(out, build(row))
		stats.RecordsValid++
	}

	stats.Errors = collector.Errors()
	stats.ErrorCount = len(stats.Errors)

	rp.logger.WithFields(logger.Fields{
		"file_path":      path,
		"sheet":          frame.Sheet,
		"total_lines":    stats.TotalLines,
		"records_parsed": stats.RecordsParsed,
		"records_valid":  stats.RecordsValid,
		"error_count":    stats.ErrorCount,
	}).Info("Register parsing completed")

	if stats.HasErrors() {
		rp.logger.WithField("sample_errors", stats.GetSampleErrors(3)).Warn("Encountered errors during parsing")
	}

	return out, stats, nil
}

func (rp *RegisterParser) oversizedField(cells []string) (int, int, bool) {
	if rp.config.MaxFieldSize <= 0 {
		return 0, 0, false
	}
	for i, cell := range cells {
		if len(cell) > rp.config.MaxFieldSize {
			return i, len(cell), true
		}
	}
	return 0, 0, false
}

func columnName(f *Frame, idx int) string {
	if idx < len(f.Header) {
		return f.Header[idx]
	}
	return fmt.Sprintf("column_%d", idx+1)
}

func invoiceFromRow(r Row) models.RawInvoice {
	return models.RawInvoice{
		ID:            models.UniqueID(r.Get(ColUniqueID)),
		Line:          r.Line,
		GSTIN:         r.Get(ColGSTIN),
		PartyName:     r.Get(ColPartyName),
		InvoiceNumber: r.Get(ColInvoiceNumber),
		InvoiceDate:   r.Get(ColInvoiceDate),
		TaxableValue:  r.Get(ColTaxableValue),
		IGST:          r.Get(ColIGST),
		CGST:          r.Get(ColCGST),
		SGST:          r.Get(ColSGST),
		Cess:          r.Get(ColCess),
		InvoiceValue:  r.Get(ColInvoiceValue),
		PlaceOfSupply: r.Get(ColPlaceOfSupply),
		ReverseCharge: r.Get(ColReverseCharge),
	}
}

func noteFromRow(r Row) models.RawNote {
	return models.RawNote{
		ID:             models.UniqueID(r.Get(ColUniqueID)),
		Line:           r.Line,
		GSTIN:          r.Get(ColGSTIN),
		TradeName:      r.Get(ColPartyName),
		NoteNumber:     r.Get(ColNoteNumber),
		NoteDate:       r.Get(ColNoteDate),
		NoteType:       r.Get(ColNoteType),
		DocType:        r.Get(ColDocType),
		TaxableValue:   r.Get(ColTaxableValue),
		IGST:           r.Get(ColIGST),
		CGST:           r.Get(ColCGST),
		SGST:           r.Get(ColSGST),
		Cess:           r.Get(ColCess),
		OriginalNumber: r.Get(ColOriginalNumber),
	}
}
