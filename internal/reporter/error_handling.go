package reporter

import (
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"gst-reconciliation-service/pkg/errors"
	"gst-reconciliation-service/pkg/logger"
)

// SafeReportGenerator writes reports with two fallbacks. A report file that
// cannot be written goes to a backup file beside it, and a JSON or CSV report
// that fails to encode is written as console text instead. Its log lines and
// errors carry the run id, scope, GSTIN and period of the report.
type SafeReportGenerator struct {
	*ReportGenerator
	logger logger.Logger
}

// NewSafeReportGenerator creates a new safe report generator
func NewSafeReportGenerator(config *ReportConfig, log logger.Logger) (*SafeReportGenerator, error) {
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	generator, err := NewReportGenerator(config)
	if err != nil {
		if _, ok := errors.AsReconcilerError(err); ok {
			return nil, err
		}
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "report_config", config, err).
			WithSuggestion("Check the report configuration values")
	}

	return &SafeReportGenerator{
		ReportGenerator: generator,
		logger:          log.WithComponent("reporter"),
	}, nil
}

// LogRun is the logging context of the run the report belongs to
func (r *Report) LogRun() logger.Run {
	return logger.Run{ID: r.RunID, Scope: string(r.Scope), GSTIN: r.GSTIN, Period: r.Period}
}

// GenerateReportSafely writes the report, falling back to a backup file or to
// console text when the first attempt fails
func (srg *SafeReportGenerator) GenerateReportSafely(report *Report, writer io.Writer) error {
	if err := checkReport(report, writer); err != nil {
		srg.logger.WithError(err).Error("Report not written")
		return err
	}

	log := srg.logger.WithRun(report.LogRun()).WithFields(logger.Fields{
		"format": srg.config.Format,
		"rows":   len(report.Rows),
	})

	err := srg.GenerateReport(report, writer)
	if err == nil {
		log.Info("Report written")
		return nil
	}
	log.WithError(err).Warn("Report write failed, trying fallback")

	if path, ok := reportFile(writer); ok && isWriteFailure(err) {
		err = srg.writeBackup(report, path, err, log)
	} else if srg.config.Format == FormatJSON || srg.config.Format == FormatCSV {
		err = srg.writeConsole(report, writer, err, log)
	} else {
		err = runError(report, "report_generation", err)
	}

	if err != nil {
		log.WithError(err).Error("Report not written")
	}
	return err
}

func checkReport(report *Report, writer io.Writer) error {
	if report == nil {
		return errors.ValidationError(errors.CodeMissingField, "report", nil, nil).
			WithSuggestion("Provide a reconciliation result")
	}
	if report.Summary == nil {
		return errors.ValidationError(errors.CodeMissingField, "summary", nil, nil).
			WithSuggestion("Ensure the reconciliation result includes a summary")
	}
	if writer == nil {
		return errors.ValidationError(errors.CodeMissingField, "writer", nil, nil).
			WithSuggestion("Provide a valid output writer")
	}
	return nil
}

// writeConsole writes the report as console text after a structured format
// failed. A workbook stream cannot be followed by console text, so XLSX never
// gets here.
func (srg *SafeReportGenerator) writeConsole(report *Report, writer io.Writer, cause error, log logger.Logger) error {
	fallbackConfig := *srg.config
	fallbackConfig.Format = FormatConsole

	fallback, err := NewReportGenerator(&fallbackConfig)
	if err != nil {
		return runError(report, "report_generation", cause)
	}

	fmt.Fprintf(writer, "NOTE: %s report written as text, %s output failed: %v\n\n",
		report.Scope, srg.config.Format, cause)
	if err := fallback.GenerateReport(report, writer); err != nil {
		return runError(report, "report_fallback",
			fmt.Errorf("%s output failed: %v; console output failed: %w", srg.config.Format, cause, err))
	}

	log.WithField("fallback_format", FormatConsole).Info("Report written as console text")
	return nil
}

// writeBackup writes the report to BackupPath(path) after path could not be written
func (srg *SafeReportGenerator) writeBackup(report *Report, path string, cause error, log logger.Logger) error {
	backupPath := BackupPath(path)

	backup, err := os.Create(backupPath)
	if err != nil {
		return runError(report, "report_generation", cause).
			WithContext("backup_file", backupPath)
	}
	defer backup.Close()

	if err := srg.GenerateReport(report, backup); err != nil {
		return runError(report, "report_backup",
			fmt.Errorf("writing %s failed: %v; writing backup failed: %w", path, cause, err)).
			WithContext("backup_file", backupPath)
	}

	log.WithFields(logger.Fields{
		"report_file": path,
		"backup_file": backupPath,
	}).Warn("Report written to backup file")
	fmt.Fprintf(os.Stderr, "Warning: Could not write to %s, report saved to %s\n", path, backupPath)
	return nil
}

// BackupPath returns the path used when the report file cannot be written
func BackupPath(originalPath string) string {
	dir := filepath.Dir(originalPath)
	base := filepath.Base(originalPath)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)

	return filepath.Join(dir, fmt.Sprintf("%s_backup%s", name, ext))
}

// runError wraps err for the report's run, tagging it with the run context
func runError(report *Report, operation string, err error) *errors.ReconcilerError {
	reconcilerErr, ok := errors.AsReconcilerError(err)
	if !ok {
		reconcilerErr = errors.InternalError(errors.CodeUnexpectedError, operation, err).
			WithSuggestion("Check the output destination and report format settings")
	}
	for key, value := range report.LogRun().Fields() {
		reconcilerErr = reconcilerErr.WithContext(key, value)
	}
	return reconcilerErr
}

// reportFile returns the path of writer when it is a named file other than
// stdout or stderr
func reportFile(writer io.Writer) (string, bool) {
	file, ok := writer.(*os.File)
	if !ok || file == os.Stdout || file == os.Stderr || file.Name() == "" {
		return "", false
	}
	return file.Name(), true
}

func isWriteFailure(err error) bool {
	var pathErr *fs.PathError
	return stderrors.As(err, &pathErr) ||
		stderrors.Is(err, fs.ErrPermission) ||
		stderrors.Is(err, fs.ErrClosed) ||
		stderrors.Is(err, syscall.ENOSPC)
}
