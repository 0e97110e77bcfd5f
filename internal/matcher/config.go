// Package matcher provides the match cascade engines for invoices and for
// credit/debit notes.
//
// Both cascades are built from the same one-to-one pass. A pass buckets the
// leftovers of each side by a key, pairs the Nth Books record of a key with the
// Nth Portal record of that key, and keeps the pair only when the pass predicate
// holds. Records that fail stay in the leftovers for the next pass. Each pass
// returns fresh leftover slices; inputs are never modified.
//
// The invoice cascade runs:
//  1. Manual links supplied by the caller
//  2. Exact match on GSTIN, invoice number and date
//  3. Date-relaxed match on GSTIN and invoice number
//  4. Number-relaxed match on GSTIN and date
//  5. Digits-only number fallback, without a value check
//  6. Optional cross-vendor suggestions (smart mode)
//  7. Group match on GSTIN totals
//  8. Unmatched leftovers
//
// Example usage:
//
//	config := matcher.DefaultConfig()
//	config.Tolerance = decimal.NewFromInt(10)
//	config.SmartMode = true
//
//	engine := matcher.NewEngine(config)
//	outcomes := engine.ReconcileInvoices(books, portal, links)
package matcher

import (
	"fmt"
	"sort"
	"strings"

	"gst-reconciliation-service/internal/models"
	"gst-reconciliation-service/pkg/errors"

	"github.com/shopspring/decimal"
)

// DefaultTolerance is the taxable value difference accepted when nothing else is configured
var DefaultTolerance = decimal.NewFromInt(5)

// Config holds the parameters of a cascade run
type Config struct {
	// Tolerance is the largest accepted |books - portal| taxable difference. A
	// difference equal to the tolerance still matches.
	Tolerance decimal.Decimal `json:"tolerance" mapstructure:"tolerance"`

	// SmartMode enables the cross-vendor suggestion passes of the invoice cascade
	SmartMode bool `json:"smart_mode" mapstructure:"smart_mode"`

	// VendorTolerances overrides Tolerance for the Books GSTINs it lists
	VendorTolerances map[string]decimal.Decimal `json:"vendor_tolerances,omitempty" mapstructure:"vendors"`
}

// DefaultConfig returns a configuration with the standard tolerance and smart mode off
func DefaultConfig() *Config {
	return &Config{
		Tolerance:        DefaultTolerance,
		VendorTolerances: map[string]decimal.Decimal{},
	}
}

// Validate checks that every tolerance is non-negative and within the amount range
func (c *Config) Validate() error {
	if c.Tolerance.IsNegative() || !models.InAmountRange(c.Tolerance) {
		return errors.ConfigurationError(errors.CodeInvalidTolerance, "tolerance", c.Tolerance.String(), nil)
	}

	for gstin, tol := range c.VendorTolerances {
		if strings.TrimSpace(gstin) == "" {
			return errors.ConfigurationError(errors.CodeInvalidConfig, "tolerance.vendors", gstin,
				fmt.Errorf("vendor tolerance without GSTIN"))
		}
		if tol.IsNegative() || !models.InAmountRange(tol) {
			return errors.ConfigurationError(errors.CodeInvalidTolerance, "tolerance.vendors."+gstin, tol.String(), nil)
		}
	}

	return nil
}

// ToleranceFor returns the tolerance applied to records of the given Books GSTIN
func (c *Config) ToleranceFor(gstin string) decimal.Decimal {
	if tol, ok := c.VendorTolerances[strings.ToUpper(strings.TrimSpace(gstin))]; ok {
		return tol
	}
	return c.Tolerance
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}

	vendors := make(map[string]decimal.Decimal, len(c.VendorTolerances))
	for gstin, tol := range c.VendorTolerances {
		vendors[gstin] = tol
	}

	return &Config{
		Tolerance:        c.Tolerance,
		SmartMode:        c.SmartMode,
		VendorTolerances: vendors,
	}
}

// normalizeVendors upper-cases vendor GSTIN keys so lookups match normalized records
func (c *Config) normalizeVendors() {
	if len(c.VendorTolerances) == 0 {
		return
	}
	vendors := make(map[string]decimal.Decimal, len(c.VendorTolerances))
	for gstin, tol := range c.VendorTolerances {
		vendors[strings.ToUpper(strings.TrimSpace(gstin))] = tol
	}
	c.VendorTolerances = vendors
}

// String returns a human-readable description of the configuration
func (c *Config) String() string {
	gstins := make([]string, 0, len(c.VendorTolerances))
	for gstin := range c.VendorTolerances {
		gstins = append(gstins, gstin)
	}
	sort.Strings(gstins)

	return fmt.Sprintf("Config{Tolerance: %s, SmartMode: %t, VendorOverrides: %d %v}",
		c.Tolerance.String(), c.SmartMode, len(gstins), gstins)
}
