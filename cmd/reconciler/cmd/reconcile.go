package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gst-reconciliation-service/cmd/reconciler/config"
	"gst-reconciliation-service/internal/linkstore"
	"gst-reconciliation-service/internal/models"
	"gst-reconciliation-service/internal/reconciler"
	"gst-reconciliation-service/internal/reporter"
	"gst-reconciliation-service/pkg/errors"
	"gst-reconciliation-service/pkg/logger"

	"github.com/mattn/go-isatty"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// reconcileOptions holds the flags of the invoices and notes commands
type reconcileOptions struct {
	booksFile      string
	portalFile     string
	amendmentsFile string
	outputFormat   string
	outputFile     string

	tolerance        string
	vendorTolerances map[string]string
	links            []string

	noSavedLinks bool
	noRecord     bool
	showProgress bool
	meta         reconciler.RunMeta

	// set by validate
	toleranceValue *decimal.Decimal
	vendorValues   map[string]decimal.Decimal
	linkPairs      []models.LinkPair
}

var reconcileExamples = map[models.Scope]string{
	models.ScopeInvoices: `  # Purchase register against GSTR-2B
  gst-reconciler invoices --books purchase.xlsx --portal gstr2b.xlsx

  # Wider tolerance with a per-vendor override, written as a workbook
  gst-reconciler invoices -b purchase.csv -p gstr2b.xlsx -t 10 \
    --vendor-tolerance 27AAAAA0000A1Z5=50 -f xlsx -o recon.xlsx

  # Cross-vendor suggestions and a one-off manual link
  gst-reconciler invoices -b purchase.csv -p b2b.csv --smart --link B_12:G_40`,
	models.ScopeNotes: `  # Credit/debit note register against the CDNR sheet of GSTR-2B
  gst-reconciler notes --books notes.xlsx --portal gstr2b.xlsx

  # JSON report for a named return period, without touching the database
  gst-reconciler notes -b notes.csv -p cdnr.csv -f json \
    --gstin 27ABCDE1234F1Z5 --period 2024-06 --no-saved-links --no-record`,
}

var (
	invoicesCmd = newReconcileCommand(models.ScopeInvoices)
	notesCmd    = newReconcileCommand(models.ScopeNotes)
)

func init() {
	rootCmd.AddCommand(invoicesCmd, notesCmd)
}

// newReconcileCommand builds the command reconciling one scope. Both scopes share
// their flags; each command keeps its own values.
func newReconcileCommand(scope models.Scope) *cobra.Command {
	opts := &reconcileOptions{}

	short := "Reconcile purchase invoices with the GSTR-2B B2B sheet"
	what := "purchase invoices"
	if scope == models.ScopeNotes {
		short = "Reconcile credit and debit notes with the GSTR-2B CDNR sheet"
		what = "credit and debit notes"
	}

	cmd := &cobra.Command{
		Use:   string(scope),
		Short: short,
		Long: fmt.Sprintf(`Reconcile the %s of a purchase register (Books) with the
GSTR-2B statement (Portal).

Rows are matched by a cascade of passes: saved and ad-hoc manual links first,
then exact keys, then relaxed date and number keys, and finally a digits-only
fallback. Whatever is left is reported as missing from the portal or from the
books. Portal amendments (B2BA/CDNRA) are applied before matching; when the
portal file is a workbook they are read from it unless --amendments is given.

Examples:
%s`, what, reconcileExamples[scope]),
		Args: cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.validate(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(cmd, scope, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.booksFile, "books", "b", "", "purchase register file, CSV or XLSX (required)")
	flags.StringVarP(&opts.portalFile, "portal", "p", "", "GSTR-2B file, CSV or XLSX (required)")
	flags.StringVar(&opts.amendmentsFile, "amendments", "", "portal amendment file (default: read from the portal workbook)")

	flags.StringVarP(&opts.outputFormat, "output-format", "f", "console", "output format: console, json, csv, xlsx")
	flags.StringVarP(&opts.outputFile, "output-file", "o", "", "output file path (default: stdout)")
	flags.Bool("include-matched", false, "list matched rows in console and CSV output")

	flags.StringVarP(&opts.tolerance, "tolerance", "t", "", "taxable value tolerance in rupees (default from config, 5)")
	flags.StringToStringVar(&opts.vendorTolerances, "vendor-tolerance", nil, "per-vendor tolerance as GSTIN=amount")
	flags.StringArrayVar(&opts.links, "link", nil, "manual link BOOKS_ID:PORTAL_ID for this run (repeatable)")
	if scope == models.ScopeInvoices {
		flags.Bool("smart", false, "suggest cross-vendor matches for what is left unmatched")
	}

	flags.BoolVar(&opts.noSavedLinks, "no-saved-links", false, "ignore the manual links saved in the database")
	flags.BoolVar(&opts.noRecord, "no-record", false, "do not record the run in the database")
	flags.BoolVar(&opts.showProgress, "progress", false, "show progress indicators")

	flags.StringVar(&opts.meta.GSTIN, "gstin", "", "GSTIN of the return being reconciled")
	flags.StringVar(&opts.meta.CompanyName, "company", "", "company name recorded with the run")
	flags.StringVar(&opts.meta.FinancialYear, "fy", "", "financial year recorded with the run, e.g. 2024-25")
	flags.StringVar(&opts.meta.Period, "period", "", "return period recorded with the run, e.g. 2024-06")

	return cmd
}

// validate checks the flags and parses the typed values. Settings that can also
// come from the config file are bound to viper here, per command.
func (o *reconcileOptions) validate(cmd *cobra.Command) error {
	viper.BindPFlag("report.include_matched", cmd.Flags().Lookup("include-matched"))
	if f := cmd.Flags().Lookup("smart"); f != nil {
		viper.BindPFlag("matching.smart_mode", f)
	}

	if strings.TrimSpace(o.booksFile) == "" {
		return errors.ValidationError(errors.CodeMissingField, "books", nil, nil).
			WithSuggestion("Pass the purchase register with --books")
	}
	if strings.TrimSpace(o.portalFile) == "" {
		return errors.ValidationError(errors.CodeMissingField, "portal", nil, nil).
			WithSuggestion("Pass the GSTR-2B file with --portal")
	}
	if err := validateFileExists(o.booksFile, "books register"); err != nil {
		return err
	}
	if err := validateFileExists(o.portalFile, "portal register"); err != nil {
		return err
	}
	if o.amendmentsFile != "" {
		if err := validateFileExists(o.amendmentsFile, "amendment register"); err != nil {
			return err
		}
	}

	format := reporter.OutputFormat(strings.ToLower(o.outputFormat))
	if !format.IsValid() {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "output-format", o.outputFormat, nil).
			WithSuggestion("Use one of: console, json, csv, xlsx")
	}
	o.outputFormat = string(format)
	if format.IsBinary() && o.outputFile == "" && isatty.IsTerminal(os.Stdout.Fd()) {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "output-file", nil, nil).
			WithSuggestion("Write xlsx output to a file with --output-file")
	}
	if o.outputFile != "" {
		if dir := filepath.Dir(o.outputFile); dir != "." {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				return errors.FileError(errors.CodeFileNotFound, dir, err).
					WithSuggestion("Create the output directory first")
			}
		}
	}

	o.toleranceValue = nil
	if cmd.Flags().Changed("tolerance") {
		d, err := decimal.NewFromString(strings.TrimSpace(o.tolerance))
		if err != nil {
			return errors.ConfigurationError(errors.CodeInvalidTolerance, "tolerance", o.tolerance, err)
		}
		if d.IsNegative() {
			return errors.ConfigurationError(errors.CodeInvalidTolerance, "tolerance", o.tolerance, nil).
				WithSuggestion("Use a tolerance of zero or more")
		}
		o.toleranceValue = &d
	}

	vendors, err := config.ParseVendorTolerances(o.vendorTolerances)
	if err != nil {
		return err
	}
	o.vendorValues = vendors

	links, err := config.ParseLinks(o.links)
	if err != nil {
		return err
	}
	o.linkPairs = links

	return nil
}

func validateFileExists(filePath, description string) error {
	if filePath == "" {
		return errors.ValidationError(errors.CodeMissingField, description, nil, nil)
	}

	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return errors.FileError(errors.CodeFileNotFound, filePath, err).
			WithContext("file", description)
	}
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, filePath, err).
			WithContext("file", description)
	}

	if info.IsDir() {
		return errors.FileError(errors.CodeUnsupportedExt, filePath, fmt.Errorf("%s is a directory, expected a file", description))
	}

	file, err := os.Open(filePath)
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, filePath, err).
			WithContext("file", description)
	}
	file.Close()

	return nil
}

func runReconcile(cmd *cobra.Command, scope models.Scope, opts *reconcileOptions) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	v := viper.GetViper()
	stderr := cmd.ErrOrStderr()
	log := logger.WithComponent("cli").WithRun(logger.Run{Scope: string(scope), GSTIN: opts.meta.GSTIN, Period: opts.meta.Period})

	if viper.GetBool("verbose") {
		fmt.Fprintf(stderr, "Starting %s reconciliation...\n", scope)
		fmt.Fprintf(stderr, "Books file: %s\n", opts.booksFile)
		fmt.Fprintf(stderr, "Portal file: %s\n", opts.portalFile)
		fmt.Fprintf(stderr, "Output format: %s\n", opts.outputFormat)
		if opts.outputFile != "" {
			fmt.Fprintf(stderr, "Output file: %s\n", opts.outputFile)
		}
	}

	serviceConfig, err := config.CreateReconcilerConfig(v)
	if err != nil {
		return err
	}
	service, err := reconciler.NewService(serviceConfig)
	if err != nil {
		return err
	}
	parseConfig, err := config.CreateParseConfig(v)
	if err != nil {
		return err
	}
	layouts, err := config.CreateLayouts(v, scope)
	if err != nil {
		return err
	}

	orchestrator, err := reconciler.NewOrchestrator(service, parseConfig)
	if err != nil {
		return err
	}

	if !opts.noSavedLinks || !opts.noRecord {
		store, err := openStore(ctx)
		if err != nil {
			// the run itself does not need the database
			log.WithError(err).Warn("Link database unavailable")
			fmt.Fprintf(stderr, "Warning: link database unavailable, continuing without saved links: %v\n", err)
		} else {
			defer store.Close()
			if !opts.noSavedLinks {
				orchestrator.WithLinkSource(store)
			}
			if !opts.noRecord {
				orchestrator.WithRunRecorder(store)
			}
		}
	}

	if opts.showProgress {
		orchestrator.AddProgressCallback(func(progress *reconciler.Progress) {
			fmt.Fprintf(stderr, "\r[%d/%d] %s (%.1f%% complete)",
				progress.CompletedSteps, progress.TotalSteps,
				progress.CurrentStep, progress.PercentComplete)
		})
	}

	request := &reconciler.FileRequest{
		BooksFile:      opts.booksFile,
		PortalFile:     opts.portalFile,
		AmendmentsFile: opts.amendmentsFile,
		Layouts:        layouts,
		Links:          opts.linkPairs,
		Meta:           opts.meta,
		Overrides: reconciler.Overrides{
			Tolerance:        opts.toleranceValue,
			VendorTolerances: opts.vendorValues,
		},
	}

	var report *reporter.Report
	switch scope {
	case models.ScopeNotes:
		run, err := orchestrator.ReconcileNoteFiles(ctx, request)
		if err != nil {
			return err
		}
		report = reporter.FromNoteRun(run)
	default:
		run, err := orchestrator.ReconcileInvoiceFiles(ctx, request)
		if err != nil {
			return err
		}
		report = reporter.FromInvoiceRun(run)
	}

	if opts.showProgress {
		fmt.Fprintln(stderr)
	}

	if err := writeReport(cmd.OutOrStdout(), report, opts); err != nil {
		return err
	}

	for _, w := range report.Warnings {
		fmt.Fprintf(stderr, "Warning: %s\n", w)
	}

	if viper.GetBool("verbose") {
		fmt.Fprintf(stderr, "\nReconciliation completed successfully.\n")
		fmt.Fprintf(stderr, "Processed %d books and %d portal records.\n",
			report.Summary.TotalBooks, report.Summary.TotalPortal)
		fmt.Fprintf(stderr, "Outcomes: %s\n", report.Summary)
		if report.RunID != "" {
			fmt.Fprintf(stderr, "Recorded as run %s\n", report.RunID)
		}
		if report.Stats != nil {
			fmt.Fprintf(stderr, "Processing time: %v\n", report.Stats.TotalTime)
		}
	}

	return nil
}

func writeReport(stdout io.Writer, report *reporter.Report, opts *reconcileOptions) error {
	reportConfig, err := config.CreateReportConfig(viper.GetViper(), opts.outputFormat)
	if err != nil {
		return err
	}
	generator, err := reporter.NewSafeReportGenerator(reportConfig, logger.GetGlobalLogger())
	if err != nil {
		return err
	}

	output := stdout
	if opts.outputFile != "" {
		file, err := os.Create(opts.outputFile)
		if err != nil {
			return errors.FileError(errors.CodeFilePermission, opts.outputFile, err).
				WithSuggestion("Check that the output location is writable")
		}
		defer file.Close()
		output = file
	}

	return generator.GenerateReportSafely(report, output)
}

// openStore opens the link database named by database.path
func openStore(ctx context.Context) (*linkstore.Store, error) {
	storeConfig, err := config.CreateLinkStoreConfig(viper.GetViper())
	if err != nil {
		return nil, err
	}
	return linkstore.Open(ctx, storeConfig)
}
