package parsers

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"

	"gst-reconciliation-service/pkg/errors"
	"gst-reconciliation-service/pkg/logger"
)

// ReadCSV reads every row of a CSV file. Rows may have differing lengths.
func (bp *BaseParser) ReadCSV(ctx context.Context, path string) (*Table, error) {
	file, err := bp.openFile(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	if bp.config.ValidateEncoding {
		if err := bp.validateEncoding(file, path); err != nil {
			bp.logger.WithError(err).WithField("file_path", path).Error("File encoding validation failed")
			return nil, err
		}
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			return nil, errors.FileError(errors.CodeFileCorrupted, path, err)
		}
	}

	reader := csv.NewReader(file)
	reader.Comma = bp.config.delimiter()
	reader.TrimLeadingSpace = bp.config.TrimLeadingSpace
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	table := &Table{File: path}
	line := 0
	for {
		if isCancelled(ctx) {
			return nil, errors.InternalError(errors.CodeUnexpectedError, "csv_parsing",
				fmt.Errorf("parsing cancelled: %w", ctx.Err()))
		}

		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, errors.ParseError(errors.CodeInvalidFormat, path, line, "record", "", err).
				WithSuggestion("Check the file format and ensure it's a valid CSV")
		}
		table.Rows = append(table.Rows, record)
	}

	bp.logger.WithFields(logger.Fields{
		"file_path": path,
		"rows":      len(table.Rows),
	}).Debug("Read CSV file")

	return table, nil
}
