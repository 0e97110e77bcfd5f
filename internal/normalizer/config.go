// Package normalizer turns raw register rows into the records the matching engine
// works on. It never fails on malformed values: unparseable amounts become zero,
// unparseable dates keep their raw text, and rows that cannot take part in matching
// are reported as exclusions instead of being dropped silently.
package normalizer

import (
	"strings"

	"gst-reconciliation-service/internal/models"
	"gst-reconciliation-service/pkg/errors"
	"gst-reconciliation-service/pkg/logger"
)

// Config controls normalization
type Config struct {
	// GSTINLength is the exact length a GSTIN must have to take part in matching
	GSTINLength int `json:"gstin_length" mapstructure:"gstin_length"`
	// DateLayouts are tried in order. Layouts are day-first except the ISO ones.
	DateLayouts []string `json:"date_layouts" mapstructure:"date_layouts"`
	// ExcelSerialDates accepts spreadsheet serial day numbers as dates
	ExcelSerialDates bool `json:"excel_serial_dates" mapstructure:"excel_serial_dates"`
	// RequireBooksNoteDate excludes Books notes whose date does not parse
	RequireBooksNoteDate bool `json:"require_books_note_date" mapstructure:"require_books_note_date"`
}

// DefaultDateLayouts lists the date layouts found in purchase registers and GSTR-2B exports
var DefaultDateLayouts = []string{
	"2-1-2006",
	"2/1/2006",
	"2.1.2006",
	"2-Jan-2006",
	"2 Jan 2006",
	"2-Jan-06",
	"2-1-06",
	"2/1/06",
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2-1-2006 15:04:05",
	"2/1/2006 15:04:05",
}

// DefaultConfig returns the configuration used for Indian GST registers
func DefaultConfig() *Config {
	layouts := make([]string, len(DefaultDateLayouts))
	copy(layouts, DefaultDateLayouts)
	return &Config{
		GSTINLength:          15,
		DateLayouts:          layouts,
		ExcelSerialDates:     true,
		RequireBooksNoteDate: true,
	}
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if c.GSTINLength <= 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "normalizer.gstin_length", c.GSTINLength, nil)
	}
	if len(c.DateLayouts) == 0 {
		return errors.ConfigurationError(errors.CodeMissingConfig, "normalizer.date_layouts", nil, nil)
	}
	for _, layout := range c.DateLayouts {
		if strings.TrimSpace(layout) == "" {
			return errors.ConfigurationError(errors.CodeInvalidConfig, "normalizer.date_layouts", c.DateLayouts, nil)
		}
	}
	return nil
}

// Normalizer cleans raw rows and consolidates split invoice lines
type Normalizer struct {
	config *Config
	logger logger.Logger
}

// New creates a normalizer. A nil config selects DefaultConfig.
func New(config *Config) *Normalizer {
	if config == nil {
		config = DefaultConfig()
	}
	return &Normalizer{
		config: config,
		logger: logger.WithComponent("normalizer"),
	}
}

// Config returns the active configuration
func (n *Normalizer) Config() *Config {
	return n.config
}

// Result is the normalized form of one side
type Result[T models.Record] struct {
	Side       models.Side        `json:"side"`
	Records    []T                `json:"records"`
	Exclusions []models.Exclusion `json:"exclusions"`
	// RawRows counts the rows before exclusion and consolidation
	RawRows int `json:"raw_rows"`
}

// InvoiceResult is the normalized invoice register of one side
type InvoiceResult = Result[models.InvoiceRecord]

// NoteResult is the normalized note register of one side
type NoteResult = Result[models.NoteRecord]
