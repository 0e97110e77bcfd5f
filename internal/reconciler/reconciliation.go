package reconciler

import (
	"fmt"
	"strings"
	"time"

	"gst-reconciliation-service/internal/matcher"
	"gst-reconciliation-service/internal/models"
	"gst-reconciliation-service/internal/normalizer"
	"gst-reconciliation-service/internal/postprocess"
	"gst-reconciliation-service/pkg/errors"
	"gst-reconciliation-service/pkg/logger"

	"github.com/shopspring/decimal"
)

// Service runs invoice and note reconciliations. It holds no state between runs
// and is safe for concurrent use.
type Service struct {
	config       *Config
	preprocessor *Preprocessor
	post         *postprocess.Processor
	logger       logger.Logger
}

// Config holds configuration options for the reconciliation service
type Config struct {
	Matcher     *matcher.Config     `json:"matcher" mapstructure:"matcher"`
	Normalizer  *normalizer.Config  `json:"normalizer" mapstructure:"normalizer"`
	PostProcess *postprocess.Config `json:"postprocess" mapstructure:"postprocess"`

	// Diagnostics reports ambiguous keys and duplicate notes alongside the outcomes
	Diagnostics bool `json:"diagnostics" mapstructure:"diagnostics"`
}

// DefaultConfig returns a default configuration for the reconciliation service
func DefaultConfig() *Config {
	return &Config{
		Matcher:     matcher.DefaultConfig(),
		Normalizer:  normalizer.DefaultConfig(),
		PostProcess: postprocess.DefaultConfig(),
		Diagnostics: true,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Matcher == nil {
		return errors.ConfigurationError(errors.CodeMissingConfig, "matcher", nil, nil)
	}
	if err := c.Matcher.Validate(); err != nil {
		return err
	}
	if c.Normalizer == nil {
		return errors.ConfigurationError(errors.CodeMissingConfig, "normalizer", nil, nil)
	}
	if err := c.Normalizer.Validate(); err != nil {
		return err
	}
	if c.PostProcess == nil {
		return errors.ConfigurationError(errors.CodeMissingConfig, "postprocess", nil, nil)
	}
	if c.PostProcess.TaxableThreshold.IsNegative() || c.PostProcess.TaxHeadThreshold.IsNegative() {
		return errors.ConfigurationError(errors.CodeInvalidTolerance, "postprocess", c.PostProcess, nil)
	}
	return nil
}

// Overrides adjust the matcher configuration for one run
type Overrides struct {
	Tolerance        *decimal.Decimal           `json:"tolerance,omitempty"`
	VendorTolerances map[string]decimal.Decimal `json:"vendor_tolerances,omitempty"`
	SmartMode        *bool                      `json:"smart_mode,omitempty"`
}

// apply returns a copy of base with the overrides set. Vendor overrides are merged
// over the configured ones.
func (o Overrides) apply(base *matcher.Config) (*matcher.Config, error) {
	cfg := base.Clone()
	if o.Tolerance != nil {
		cfg.Tolerance = *o.Tolerance
	}
	if o.SmartMode != nil {
		cfg.SmartMode = *o.SmartMode
	}
	if len(o.VendorTolerances) > 0 {
		if cfg.VendorTolerances == nil {
			cfg.VendorTolerances = make(map[string]decimal.Decimal, len(o.VendorTolerances))
		}
		for gstin, tol := range o.VendorTolerances {
			cfg.VendorTolerances[strings.ToUpper(strings.TrimSpace(gstin))] = tol
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// InvoiceRequest is one invoice reconciliation over raw register rows
type InvoiceRequest struct {
	Books      []models.RawInvoice                   `json:"books"`
	Portal     []models.RawInvoice                   `json:"portal"`
	Amendments []models.Amendment[models.RawInvoice] `json:"amendments,omitempty"`
	Links      []models.LinkPair                     `json:"links,omitempty"`
	Overrides
}

// NoteRequest is one credit/debit note reconciliation over raw register rows
type NoteRequest struct {
	Books      []models.RawNote                   `json:"books"`
	Portal     []models.RawNote                   `json:"portal"`
	Amendments []models.Amendment[models.RawNote] `json:"amendments,omitempty"`
	Links      []models.LinkPair                  `json:"links,omitempty"`
	Overrides
}

// SummaryStats counts the outcomes of one run per kind
type SummaryStats struct {
	TotalBooks       int             `json:"total_books"`
	TotalPortal      int             `json:"total_portal"`
	ManualCount      int             `json:"manual_count"`
	MatchedCount     int             `json:"matched_count"`
	TaxErrorCount    int             `json:"tax_error_count"`
	MismatchCount    int             `json:"mismatch_count"`
	AIMatchedCount   int             `json:"ai_matched_count"`
	SuggestionCount  int             `json:"suggestion_count"`
	GroupCount       int             `json:"group_count"`
	NotInPortalCount int             `json:"not_in_portal_count"`
	NotInBooksCount  int             `json:"not_in_books_count"`
	NotInPortalValue decimal.Decimal `json:"not_in_portal_value"`
	NotInBooksValue  decimal.Decimal `json:"not_in_books_value"`
	NetITCImpact     decimal.Decimal `json:"net_itc_impact"`

	AmendmentsDeleted int `json:"amendments_deleted"`
	AmendmentsAdded   int `json:"amendments_added"`
	ExcludedCount     int `json:"excluded_count"`
}

// String returns a one-line description of the summary
func (s *SummaryStats) String() string {
	return fmt.Sprintf("matched=%d manual=%d tax_error=%d mismatch=%d suggestion=%d group=%d not_in_portal=%d not_in_books=%d",
		s.MatchedCount, s.ManualCount, s.TaxErrorCount, s.MismatchCount, s.SuggestionCount, s.GroupCount,
		s.NotInPortalCount, s.NotInBooksCount)
}

// ProcessingStats contains timing and volume for one run
type ProcessingStats struct {
	BooksRows     int           `json:"books_rows"`
	PortalRows    int           `json:"portal_rows"`
	BooksRecords  int           `json:"books_records"`
	PortalRecords int           `json:"portal_records"`
	Backfilled    int           `json:"backfilled_names,omitempty"`
	PrepareTime   time.Duration `json:"prepare_time"`
	MatchingTime  time.Duration `json:"matching_time"`
	TotalTime     time.Duration `json:"total_time"`
}

// InvoiceResult contains the complete results of an invoice reconciliation
type InvoiceResult struct {
	Outcomes      []models.InvoiceOutcome   `json:"outcomes"`
	Summary       *SummaryStats             `json:"summary"`
	Exclusions    []models.Exclusion        `json:"exclusions,omitempty"`
	AmbiguousKeys []matcher.AmbiguousKey    `json:"ambiguous_keys,omitempty"`
	Amendments    normalizer.AmendmentStats `json:"amendments"`
	Tolerance     decimal.Decimal           `json:"tolerance"`
	SmartMode     bool                      `json:"smart_mode"`
	Stats         *ProcessingStats          `json:"processing_stats,omitempty"`
	ProcessedAt   time.Time                 `json:"processed_at"`
}

// NoteResult contains the complete results of a note reconciliation
type NoteResult struct {
	Outcomes    []models.NoteOutcome      `json:"outcomes"`
	Summary     *SummaryStats             `json:"summary"`
	Exclusions  []models.Exclusion        `json:"exclusions,omitempty"`
	Duplicates  []matcher.DuplicateGroup  `json:"duplicates,omitempty"`
	Amendments  normalizer.AmendmentStats `json:"amendments"`
	Tolerance   decimal.Decimal           `json:"tolerance"`
	Stats       *ProcessingStats          `json:"processing_stats,omitempty"`
	ProcessedAt time.Time                 `json:"processed_at"`
}

// NewService creates a new reconciliation service. A nil config selects DefaultConfig.
func NewService(config *Config) (*Service, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	log := logger.WithComponent("reconciler")
	log.WithField("matcher", config.Matcher.String()).Debug("Created reconciliation service")

	return &Service{
		config:       config,
		preprocessor: NewPreprocessor(config.Normalizer),
		post:         postprocess.New(config.PostProcess),
		logger:       log,
	}, nil
}

// GetConfiguration returns the current configuration
func (s *Service) GetConfiguration() *Config {
	return s.config
}

// GetMatchingConfig returns a copy of the matcher configuration
func (s *Service) GetMatchingConfig() *matcher.Config {
	return s.config.Matcher.Clone()
}
