package cmd

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	"gst-reconciliation-service/pkg/errors"
	"gst-reconciliation-service/pkg/logger"

	"github.com/spf13/viper"
)

// CLIErrorHandler provides user-friendly error handling for CLI operations
type CLIErrorHandler struct {
	logger  logger.Logger
	verbose bool
	out     io.Writer
}

// NewCLIErrorHandler creates a new CLI error handler writing to stderr
func NewCLIErrorHandler() *CLIErrorHandler {
	return &CLIErrorHandler{
		logger:  logger.GetGlobalLogger().WithComponent("cli"),
		verbose: viper.GetBool("verbose"),
		out:     os.Stderr,
	}
}

// HandleError prints err for the user and returns the process exit code
func (h *CLIErrorHandler) HandleError(err error) int {
	if err == nil {
		return 0
	}

	h.logger.WithError(err).Debug("Command failed")

	if reconcilerErr, ok := errors.AsReconcilerError(err); ok {
		return h.handleReconcilerError(reconcilerErr)
	}

	return h.handleGenericError(err)
}

func (h *CLIErrorHandler) handleReconcilerError(err *errors.ReconcilerError) int {
	fmt.Fprintf(h.out, "Error: %s\n", err.Message)

	if len(err.Context) > 0 {
		fmt.Fprintf(h.out, "\nContext:\n")
		for _, key := range err.ContextKeys() {
			fmt.Fprintf(h.out, "  %s: %v\n", key, err.Context[key])
		}
	}

	if err.Suggestion != "" {
		fmt.Fprintf(h.out, "\nSuggestion: %s\n", err.Suggestion)
	}

	fmt.Fprintf(h.out, "\n%s\n", h.getCategoryHelp(err.Category))

	if h.verbose && err.Cause != nil {
		fmt.Fprintf(h.out, "\nUnderlying error: %v\n", err.Cause)
	}

	return err.GetExitCode()
}

func (h *CLIErrorHandler) handleGenericError(err error) int {
	switch {
	case h.isFileNotFoundError(err):
		fmt.Fprintf(h.out, "Error: File not found\n")
		fmt.Fprintf(h.out, "Suggestion: Check if the file path is correct and the file exists\n")
		return 2
	case h.isPermissionError(err):
		fmt.Fprintf(h.out, "Error: Permission denied\n")
		fmt.Fprintf(h.out, "Suggestion: Check file permissions and ensure you have read access\n")
		return 2
	case h.isDiskFullError(err):
		fmt.Fprintf(h.out, "Error: Insufficient disk space\n")
		fmt.Fprintf(h.out, "Suggestion: Free up disk space and try again\n")
		return 2
	}

	// cobra flag and argument errors land here
	fmt.Fprintf(h.out, "Error: %v\n", err)
	fmt.Fprintf(h.out, "Run 'gst-reconciler --help' for usage.\n")
	return 1
}

// getCategoryHelp returns category-specific help text
func (h *CLIErrorHandler) getCategoryHelp(category errors.ErrorCategory) string {
	switch category {
	case errors.CategoryFile:
		return `File error help:
• Check that the register file exists and is readable
• Registers must be .csv or .xlsx files
• Close the workbook in Excel if it is open, then retry`

	case errors.CategoryParse:
		return `Parse error help:
• Check that the header row names the GSTIN, document number, date and taxable value columns
• Run 'gst-reconciler layouts <name>' to see the header texts each column is read from
• Add your own header texts in the config file under layouts.<name>.aliases
• Save CSV files as UTF-8`

	case errors.CategoryValidation:
		return `Validation error help:
• Check that all required flags and fields have values
• Manual link ids look like B_12 and G_40 (row positions shown in reports)
• Scopes are invoices or notes`

	case errors.CategoryConfiguration:
		return `Configuration error help:
• Check your command-line flags and arguments
• Verify the config file syntax if using --config
• Tolerances are amounts in rupees and cannot be negative
• Environment variables use the GSTRECON_ prefix, e.g. GSTRECON_TOLERANCE_DEFAULT`

	case errors.CategoryReconciliation:
		return `Reconciliation error help:
• Check for duplicate unique ids in the registers
• Remove saved manual links that point at rows which no longer exist ('gst-reconciler links list')
• Re-run with --verbose for details`

	case errors.CategoryStorage:
		return `Database error help:
• Check that the database path (--db or database.path) is writable
• Another process may hold the database; retry when it finishes
• Use --no-saved-links --no-record to run without the database`

	case errors.CategoryNetwork:
		return `Server error help:
• Check that the port is free and the host address is valid
• Use --port to listen on a different port`

	default:
		return `For more help:
• Use 'gst-reconciler --help' for general help
• Use 'gst-reconciler invoices --help' or 'gst-reconciler notes --help' for command help`
	}
}

func (h *CLIErrorHandler) isFileNotFoundError(err error) bool {
	return stderrors.Is(err, os.ErrNotExist) || strings.Contains(err.Error(), "no such file or directory")
}

func (h *CLIErrorHandler) isPermissionError(err error) bool {
	return stderrors.Is(err, os.ErrPermission) ||
		strings.Contains(err.Error(), "permission denied") ||
		strings.Contains(err.Error(), "access denied")
}

func (h *CLIErrorHandler) isDiskFullError(err error) bool {
	if stderrors.Is(err, syscall.ENOSPC) {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "no space left") ||
		strings.Contains(errStr, "disk full") ||
		strings.Contains(errStr, "device full")
}
