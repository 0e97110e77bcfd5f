package matcher

import (
	"gst-reconciliation-service/internal/models"
	"gst-reconciliation-service/pkg/logger"

	"github.com/shopspring/decimal"
)

// Engine runs the invoice and note cascades under one configuration. It keeps no
// state between runs and is safe for concurrent use.
type Engine struct {
	config *Config
	logger logger.Logger
}

// NewEngine creates a new engine. A nil config selects DefaultConfig.
func NewEngine(config *Config) *Engine {
	if config == nil {
		config = DefaultConfig()
	}
	cfg := config.Clone()
	cfg.normalizeVendors()

	return &Engine{
		config: cfg,
		logger: logger.WithComponent("matcher"),
	}
}

// WithLogger returns a copy of the engine that logs through l
func (e *Engine) WithLogger(l logger.Logger) *Engine {
	return &Engine{config: e.config, logger: l.WithComponent("matcher")}
}

// Config returns a copy of the engine configuration
func (e *Engine) Config() *Config {
	return e.config.Clone()
}

// withinTolerance accepts a pair whose taxable values differ by at most the
// tolerance of the Books GSTIN
func withinTolerance[T models.Record](cfg *Config) predicate[T] {
	return func(b, p *T) bool {
		return models.WithinTolerance((*b).Values().TaxableValue, (*p).Values().TaxableValue, cfg.ToleranceFor((*b).SupplierGSTIN()))
	}
}

func newLabel(kind models.OutcomeKind, match models.MatchKind, status, logic string) label {
	return label{kind: kind, match: match, status: status, logic: logic}
}

// ReconcileInvoices classifies every Books and Portal invoice into exactly one outcome.
// Manual links are honoured first; links naming unknown or reused ids are skipped.
func (e *Engine) ReconcileInvoices(books, portal []models.InvoiceRecord, links []models.LinkPair) []models.InvoiceOutcome {
	tolerant := withinTolerance[models.InvoiceRecord](e.config)

	stages := []stage[models.InvoiceRecord]{
		manualPass[models.InvoiceRecord](
			newLabel(models.KindManual, models.MatchNone, models.StatusManual, models.LogicManual), links, e.logger),

		keyedPass[models.InvoiceRecord]("exact",
			newLabel(models.KindExact, models.MatchNone, models.StatusMatched, models.LogicExact),
			func(r *models.InvoiceRecord) (string, bool) { return joinKey(r.GSTIN, r.CleanNumber, r.Date.Key()) },
			tolerant),

		keyedPass[models.InvoiceRecord]("date_relaxed",
			newLabel(models.KindMismatch, models.MatchDateMismatch, models.StatusDateMismatch, models.LogicDateMismatch),
			func(r *models.InvoiceRecord) (string, bool) { return joinKey(r.GSTIN, r.CleanNumber) },
			func(b, p *models.InvoiceRecord) bool { return tolerant(b, p) && sameYear(b.Date, p.Date) }),

		keyedPass[models.InvoiceRecord]("number_relaxed",
			newLabel(models.KindMismatch, models.MatchInvoiceMismatch, models.StatusInvoiceMismatch, models.LogicInvoiceMismatch),
			func(r *models.InvoiceRecord) (string, bool) { return joinKey(r.GSTIN, r.Date.Key()) },
			tolerant),

		keyedPass[models.InvoiceRecord]("digits_fallback",
			newLabel(models.KindMismatch, models.MatchValueMismatch, models.StatusValueMismatch, models.LogicValueMismatch),
			func(r *models.InvoiceRecord) (string, bool) { return joinKey(r.GSTIN, r.DigitsNumber) },
			nil),
	}

	if e.config.SmartMode {
		stages = append(stages,
			keyedPass[models.InvoiceRecord]("suggest_number_value",
				newLabel(models.KindSuggestion, models.SuggestInvoiceValue, models.StatusSuggestion, models.LogicInvoiceValue),
				func(r *models.InvoiceRecord) (string, bool) {
					return joinKey(r.CleanNumber, unitsKey(r.RoundedTaxable()))
				},
				tolerant),

			keyedPass[models.InvoiceRecord]("suggest_date_value",
				newLabel(models.KindSuggestion, models.SuggestDateValue, models.StatusSuggestion, models.LogicDateValue),
				func(r *models.InvoiceRecord) (string, bool) {
					return joinKey(r.Date.Key(), unitsKey(r.RoundedTaxable()))
				},
				tolerant),

			approxValuePass[models.InvoiceRecord]("suggest_approx_value",
				newLabel(models.KindSuggestion, models.SuggestApproxValue, models.StatusSuggestion, models.LogicApproxValue),
				tolerant),
		)
	}

	stages = append(stages,
		groupPass[models.InvoiceRecord](
			newLabel(models.KindGroup, models.MatchNone, models.StatusGroup, models.LogicGroup), e.config.ToleranceFor),
		unmatchedPass[models.InvoiceRecord](
			newLabel(models.KindUnmatchedBooks, models.MatchNone, models.StatusNotInPortal, models.LogicUnmatched),
			newLabel(models.KindUnmatchedPortal, models.MatchNone, models.StatusNotInBooks, models.LogicUnmatched)),
	)

	e.logger.WithFields(logger.Fields{
		"books":      len(books),
		"portal":     len(portal),
		"links":      len(links),
		"tolerance":  e.config.Tolerance.String(),
		"smart_mode": e.config.SmartMode,
	}).Debug("Running invoice cascade")

	tracker := logger.NewProgressTracker(logger.ProgressConfig{Operation: "invoice cascade", Logger: e.logger})
	return runCascade(tracker, stages, books, portal)
}

// sameYear holds when either date is missing or both share the same year key
func sameYear(a, b models.DocDate) bool {
	if !a.Valid || !b.Valid {
		return true
	}
	return a.YearKey() == b.YearKey()
}

// ToleranceFor returns the tolerance the engine applies to a Books GSTIN
func (e *Engine) ToleranceFor(gstin string) decimal.Decimal {
	return e.config.ToleranceFor(gstin)
}
