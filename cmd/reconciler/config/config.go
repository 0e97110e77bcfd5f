// Package config turns viper settings into the configuration of each component.
//
// Keys (all optional; environment variables use the GSTRECON_ prefix with dots
// replaced by underscores, e.g. GSTRECON_TOLERANCE_DEFAULT):
//
//	tolerance.default             taxable tolerance in rupees
//	tolerance.vendors             GSTIN -> tolerance overrides
//	matching.smart_mode           enable cross-vendor suggestions
//	matching.diagnostics          report ambiguous keys and duplicate notes
//	normalizer.*                  gstin_length, date_layouts, excel_serial_dates, require_books_note_date
//	postprocess.*                 taxable_threshold, tax_head_threshold
//	parser.*                      delimiter, header_scan_rows, max_errors, validate_encoding
//	layouts.<name>.aliases        extra header texts per logical column
//	report.*                      include_matched, include_exclusions, max_console_rows, sort_by_value
//	database.*                    path, busy_timeout
//	server.*                      host, port, read_timeout, write_timeout
//	log.*                         level, format, file
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gst-reconciliation-service/internal/api"
	"gst-reconciliation-service/internal/linkstore"
	"gst-reconciliation-service/internal/matcher"
	"gst-reconciliation-service/internal/models"
	"gst-reconciliation-service/internal/normalizer"
	"gst-reconciliation-service/internal/parsers"
	"gst-reconciliation-service/internal/postprocess"
	"gst-reconciliation-service/internal/reconciler"
	"gst-reconciliation-service/internal/reporter"
	"gst-reconciliation-service/pkg/errors"
	"gst-reconciliation-service/pkg/logger"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables read by viper
const EnvPrefix = "GSTRECON"

// DefaultConfigName is the config file looked up in the home directory
const DefaultConfigName = ".gst-reconciler.yaml"

// DefaultConfigPath returns $HOME/.gst-reconciler.yaml, or "" when there is no home
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, DefaultConfigName)
}

// SetDefaults registers the default of every key
func SetDefaults(v *viper.Viper) {
	m := matcher.DefaultConfig()
	n := normalizer.DefaultConfig()
	p := postprocess.DefaultConfig()
	pc := parsers.DefaultParseConfig()
	r := reporter.DefaultReportConfig()
	db := linkstore.DefaultConfig()
	srv := api.DefaultServerConfig()

	v.SetDefault("tolerance.default", m.Tolerance.String())
	v.SetDefault("matching.smart_mode", m.SmartMode)
	v.SetDefault("matching.diagnostics", true)

	v.SetDefault("normalizer.gstin_length", n.GSTINLength)
	v.SetDefault("normalizer.excel_serial_dates", n.ExcelSerialDates)
	v.SetDefault("normalizer.require_books_note_date", n.RequireBooksNoteDate)

	v.SetDefault("postprocess.taxable_threshold", p.TaxableThreshold.String())
	v.SetDefault("postprocess.tax_head_threshold", p.TaxHeadThreshold.String())

	v.SetDefault("parser.delimiter", pc.Delimiter)
	v.SetDefault("parser.header_scan_rows", pc.HeaderScanRows)
	v.SetDefault("parser.max_errors", pc.MaxErrors)
	v.SetDefault("parser.validate_encoding", pc.ValidateEncoding)

	v.SetDefault("report.include_exclusions", r.IncludeExclusions)
	v.SetDefault("report.include_processing_stats", r.IncludeProcessingStats)
	v.SetDefault("report.max_console_rows", r.MaxConsoleRows)

	v.SetDefault("database.path", db.Path)
	v.SetDefault("database.busy_timeout", db.BusyTimeout)

	v.SetDefault("server.host", srv.Host)
	v.SetDefault("server.port", srv.Port)
	v.SetDefault("server.read_timeout", srv.ReadTimeout)
	v.SetDefault("server.write_timeout", srv.WriteTimeout)

	// the report goes to stdout; keep stderr quiet unless asked
	v.SetDefault("log.level", string(logger.WarnLevel))
	v.SetDefault("log.format", string(logger.TextFormat))
}

// CreateMatchingConfig builds the cascade configuration, including per-vendor tolerances
func CreateMatchingConfig(v *viper.Viper) (*matcher.Config, error) {
	config := matcher.DefaultConfig()

	tol, err := decimalSetting(v, "tolerance.default")
	if err != nil {
		return nil, err
	}
	config.Tolerance = tol
	config.SmartMode = v.GetBool("matching.smart_mode")

	// viper lowercases map keys; GSTINs are uppercase
	for gstin, raw := range v.GetStringMapString("tolerance.vendors") {
		d, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return nil, errors.ConfigurationError(errors.CodeInvalidTolerance, "tolerance.vendors."+gstin, raw, err)
		}
		config.VendorTolerances[strings.ToUpper(strings.TrimSpace(gstin))] = d
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// CreateNormalizerConfig builds the normalizer configuration
func CreateNormalizerConfig(v *viper.Viper) (*normalizer.Config, error) {
	config := normalizer.DefaultConfig()
	config.GSTINLength = v.GetInt("normalizer.gstin_length")
	config.ExcelSerialDates = v.GetBool("normalizer.excel_serial_dates")
	config.RequireBooksNoteDate = v.GetBool("normalizer.require_books_note_date")
	if layouts := v.GetStringSlice("normalizer.date_layouts"); len(layouts) > 0 {
		config.DateLayouts = layouts
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// CreateReconcilerConfig builds the service configuration from its parts
func CreateReconcilerConfig(v *viper.Viper) (*reconciler.Config, error) {
	matching, err := CreateMatchingConfig(v)
	if err != nil {
		return nil, err
	}
	norm, err := CreateNormalizerConfig(v)
	if err != nil {
		return nil, err
	}

	post := postprocess.DefaultConfig()
	if post.TaxableThreshold, err = decimalSetting(v, "postprocess.taxable_threshold"); err != nil {
		return nil, err
	}
	if post.TaxHeadThreshold, err = decimalSetting(v, "postprocess.tax_head_threshold"); err != nil {
		return nil, err
	}

	config := &reconciler.Config{
		Matcher:     matching,
		Normalizer:  norm,
		PostProcess: post,
		Diagnostics: v.GetBool("matching.diagnostics"),
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// CreateParseConfig builds the register reader configuration
func CreateParseConfig(v *viper.Viper) (*parsers.ParseConfig, error) {
	config := parsers.DefaultParseConfig()
	config.Delimiter = v.GetString("parser.delimiter")
	config.HeaderScanRows = v.GetInt("parser.header_scan_rows")
	config.MaxErrors = v.GetInt("parser.max_errors")
	config.ValidateEncoding = v.GetBool("parser.validate_encoding")

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// CreateLayouts returns the register layouts of a scope with any configured extra
// header aliases applied
func CreateLayouts(v *viper.Viper, scope models.Scope) (*reconciler.Layouts, error) {
	layouts := reconciler.DefaultInvoiceLayouts()
	if scope == models.ScopeNotes {
		layouts = reconciler.DefaultNoteLayouts()
	}

	apply := func(l *parsers.Layout) (*parsers.Layout, error) {
		if l == nil {
			return nil, nil
		}
		key := "layouts." + l.Name + ".aliases"
		if !v.IsSet(key) {
			return l, nil
		}
		extra := make(map[string][]string)
		for col := range v.GetStringMap(key) {
			extra[col] = v.GetStringSlice(key + "." + col)
		}
		out := l.WithAliases(extra)
		if err := out.Validate(); err != nil {
			return nil, errors.ConfigurationError(errors.CodeInvalidConfig, key, nil, err)
		}
		return out, nil
	}

	var err error
	if layouts.Books, err = apply(layouts.Books); err != nil {
		return nil, err
	}
	if layouts.Portal, err = apply(layouts.Portal); err != nil {
		return nil, err
	}
	if layouts.Amendments, err = apply(layouts.Amendments); err != nil {
		return nil, err
	}
	return &layouts, nil
}

// CreateReportConfig creates a report configuration for the specified output format
func CreateReportConfig(v *viper.Viper, format string) (*reporter.ReportConfig, error) {
	config := reporter.DefaultReportConfig()
	config.Format = reporter.OutputFormat(strings.ToLower(strings.TrimSpace(format)))
	config.IncludeMatched = v.GetBool("report.include_matched")
	config.IncludeExclusions = v.GetBool("report.include_exclusions")
	config.IncludeProcessingStats = v.GetBool("report.include_processing_stats")
	config.MaxConsoleRows = v.GetInt("report.max_console_rows")
	config.SortByValue = v.GetBool("report.sort_by_value")

	switch config.Format {
	case reporter.FormatCSV:
		config.CSVHeaders = true
		config.IncludeProcessingStats = false
	case reporter.FormatJSON, reporter.FormatXLSX:
		// structured output carries every row
		config.IncludeMatched = true
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// CreateLinkStoreConfig builds the link database configuration
func CreateLinkStoreConfig(v *viper.Viper) (*linkstore.Config, error) {
	config := linkstore.DefaultConfig()
	config.Path = v.GetString("database.path")
	config.BusyTimeout = v.GetDuration("database.busy_timeout")

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// CreateServerConfig builds the HTTP server configuration
func CreateServerConfig(v *viper.Viper) (api.ServerConfig, error) {
	config := api.DefaultServerConfig()
	config.Host = v.GetString("server.host")
	config.Port = v.GetInt("server.port")
	config.ReadTimeout = v.GetDuration("server.read_timeout")
	config.WriteTimeout = v.GetDuration("server.write_timeout")

	if err := config.Validate(); err != nil {
		return config, err
	}
	return config, nil
}

// CreateLoggerConfig builds the logger configuration. Verbose forces debug level.
func CreateLoggerConfig(v *viper.Viper, verbose bool) (*logger.Config, error) {
	config := logger.DefaultConfig()
	config.Level = logger.Level(strings.ToLower(v.GetString("log.level")))
	if verbose {
		config = logger.DebugConfig()
	}
	config.Format = logger.Format(strings.ToLower(v.GetString("log.format")))
	if file := v.GetString("log.file"); file != "" {
		config.Output = logger.FileOutput
		config.File = file
	}

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "log", nil, err)
	}
	return config, nil
}

// ParseVendorTolerances parses GSTIN=amount pairs given on the command line
func ParseVendorTolerances(pairs map[string]string) (map[string]decimal.Decimal, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]decimal.Decimal, len(pairs))
	for gstin, raw := range pairs {
		d, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return nil, errors.ConfigurationError(errors.CodeInvalidTolerance, "vendor-tolerance", gstin+"="+raw, err)
		}
		if d.IsNegative() {
			return nil, errors.ConfigurationError(errors.CodeInvalidTolerance, "vendor-tolerance", gstin+"="+raw,
				fmt.Errorf("tolerance must not be negative"))
		}
		out[strings.ToUpper(strings.TrimSpace(gstin))] = d
	}
	return out, nil
}

// ParseLinks parses BOOKS_ID:PORTAL_ID pairs given on the command line
func ParseLinks(values []string) ([]models.LinkPair, error) {
	links := make([]models.LinkPair, 0, len(values))
	for _, v := range values {
		parts := strings.SplitN(v, ":", 2)
		if len(parts) != 2 || strings.TrimSpace(parts[0]) == "" || strings.TrimSpace(parts[1]) == "" {
			return nil, errors.ValidationError(errors.CodeInvalidData, "link", v,
				fmt.Errorf("expected BOOKS_ID:PORTAL_ID"))
		}
		links = append(links, models.LinkPair{
			BooksID:  models.UniqueID(strings.TrimSpace(parts[0])),
			PortalID: models.UniqueID(strings.TrimSpace(parts[1])),
		})
	}
	return links, nil
}

func decimalSetting(v *viper.Viper, key string) (decimal.Decimal, error) {
	raw := strings.TrimSpace(v.GetString(key))
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, errors.ConfigurationError(errors.CodeInvalidConfig, key, raw, err)
	}
	if d.IsNegative() {
		return decimal.Zero, errors.ConfigurationError(errors.CodeInvalidTolerance, key, raw, nil)
	}
	return d, nil
}
