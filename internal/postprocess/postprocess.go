// Package postprocess finishes cascade outcomes: it flags tax errors, coalesces
// GSTIN and party name across the two sides, and computes diff, final taxable
// and ITC impact fields.
package postprocess

import (
	"gst-reconciliation-service/internal/models"
	"gst-reconciliation-service/pkg/logger"

	"github.com/shopspring/decimal"
)

// Config holds the tax error thresholds
type Config struct {
	// TaxableThreshold is the taxable difference below which a pair counts as agreeing
	TaxableThreshold decimal.Decimal `json:"taxable_threshold" mapstructure:"taxable_threshold"`
	// TaxHeadThreshold is the IGST/CGST/SGST difference above which a head counts as wrong
	TaxHeadThreshold decimal.Decimal `json:"tax_head_threshold" mapstructure:"tax_head_threshold"`
}

// DefaultConfig returns thresholds of one currency unit
func DefaultConfig() *Config {
	return &Config{
		TaxableThreshold: decimal.NewFromInt(1),
		TaxHeadThreshold: decimal.NewFromInt(1),
	}
}

// Processor applies post-processing to outcomes of either cascade
type Processor struct {
	config *Config
	logger logger.Logger
}

// New creates a processor. A nil config selects DefaultConfig.
func New(config *Config) *Processor {
	if config == nil {
		config = DefaultConfig()
	}
	return &Processor{
		config: config,
		logger: logger.WithComponent("postprocess"),
	}
}

// Invoices finishes invoice outcomes. Exact and date-mismatch pairs become tax
// errors when the taxable values agree but a tax head does not.
func (p *Processor) Invoices(outcomes []models.InvoiceOutcome, names *NameTable) []models.InvoiceOutcome {
	out := make([]models.InvoiceOutcome, len(outcomes))
	taxErrors := 0

	for i, o := range outcomes {
		if (o.Kind == models.KindExact || (o.Kind == models.KindMismatch && o.Match == models.MatchDateMismatch)) && p.isTaxError(o.BooksValues(), o.PortalValues(), o.Books != nil && o.Portal != nil) {
			o = reclassify(o, models.StatusTaxError)
			taxErrors++
		}
		out[i] = finish(o, names)
	}

	p.logger.WithFields(logger.Fields{"outcomes": len(out), "tax_errors": taxErrors}).Debug("Post-processed invoices")
	return out
}

// Notes finishes note outcomes, flags exact pairs with tax errors and computes the
// ITC impact of every row
func (p *Processor) Notes(outcomes []models.NoteOutcome, names *NameTable) []models.NoteOutcome {
	out := make([]models.NoteOutcome, len(outcomes))
	taxErrors := 0

	for i, o := range outcomes {
		if o.Kind == models.KindExact && p.isTaxError(o.BooksValues(), o.PortalValues(), o.Books != nil && o.Portal != nil) {
			o = reclassify(o, models.StatusNoteTaxError)
			taxErrors++
		}
		o = finish(o, names)
		o.ITCImpact = ITCImpact(o)
		out[i] = o
	}

	p.logger.WithFields(logger.Fields{"outcomes": len(out), "tax_errors": taxErrors}).Debug("Post-processed notes")
	return out
}

// isTaxError holds when the taxable difference is below the taxable threshold and
// some tax head differs by more than the head threshold
func (p *Processor) isTaxError(books, portal models.Amounts, paired bool) bool {
	if !paired {
		return false
	}
	diff := books.Sub(portal)
	if !diff.TaxableValue.Abs().LessThan(p.config.TaxableThreshold) {
		return false
	}
	for _, head := range []decimal.Decimal{diff.IGST, diff.CGST, diff.SGST} {
		if head.Abs().GreaterThan(p.config.TaxHeadThreshold) {
			return true
		}
	}
	return false
}

func reclassify[T models.Record](o models.Outcome[T], status string) models.Outcome[T] {
	o.Origin = o.Kind
	o.Kind = models.KindTaxError
	o.Status = status
	return o
}

// finish fills the coalesced identity fields, the diff and the final taxable value
func finish[T models.Record](o models.Outcome[T], names *NameTable) models.Outcome[T] {
	o.GSTIN = coalesceGSTIN(o)
	o.PartyName = coalesceParty(o, names)
	o.Diff = o.BooksValues().Sub(o.PortalValues()).Round(2)

	switch {
	case o.Books != nil:
		o.FinalTaxable = (*o.Books).Values().TaxableValue
	case o.Portal != nil:
		o.FinalTaxable = (*o.Portal).Values().TaxableValue
	default:
		o.FinalTaxable = decimal.Zero
	}
	return o
}

func coalesceGSTIN[T models.Record](o models.Outcome[T]) string {
	if o.Books != nil && (*o.Books).SupplierGSTIN() != "" {
		return (*o.Books).SupplierGSTIN()
	}
	if o.Portal != nil {
		return (*o.Portal).SupplierGSTIN()
	}
	return ""
}

func coalesceParty[T models.Record](o models.Outcome[T], names *NameTable) string {
	if o.Books != nil && usableName((*o.Books).Party()) {
		return (*o.Books).Party()
	}
	if o.Portal != nil && usableName((*o.Portal).Party()) {
		return (*o.Portal).Party()
	}
	if name, ok := names.Lookup(o.GSTIN); ok {
		return name
	}
	return UnknownParty
}

// ITCImpact returns the signed input tax credit effect of a note outcome. The value
// is the Books taxable when non-zero, else the Portal taxable; it is negative when
// either side is a credit note.
func ITCImpact(o models.NoteOutcome) decimal.Decimal {
	val := decimal.Zero
	if o.Books != nil {
		val = o.Books.Amounts.TaxableValue
	}
	if val.IsZero() && o.Portal != nil {
		val = o.Portal.Amounts.TaxableValue
	}

	credit := (o.Books != nil && o.Books.NoteType.IsCredit()) || (o.Portal != nil && o.Portal.NoteType.IsCredit())
	if credit {
		return val.Abs().Neg().Round(2)
	}
	return val.Abs().Round(2)
}
