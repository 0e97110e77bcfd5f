package matcher

import (
	"gst-reconciliation-service/internal/models"
	"gst-reconciliation-service/pkg/logger"
)

// ReconcileNotes runs the credit/debit note cascade. Note amounts are magnitudes, so
// every pass compares values regardless of direction; the note type only enters
// the keys of the type-aware passes.
func (e *Engine) ReconcileNotes(books, portal []models.NoteRecord, links []models.LinkPair) []models.NoteOutcome {
	tolerant := withinTolerance[models.NoteRecord](e.config)

	stages := []stage[models.NoteRecord]{
		manualPass[models.NoteRecord](
			newLabel(models.KindManual, models.MatchNone, models.StatusNoteManual, models.LogicManual), links, e.logger),

		keyedPass[models.NoteRecord]("exact",
			newLabel(models.KindExact, models.MatchNone, models.StatusNoteMatched, models.LogicNoteExact),
			func(r *models.NoteRecord) (string, bool) {
				return joinKey(r.GSTIN, r.Date.Key(), unitsKey(r.RoundedTaxable()))
			},
			tolerant),

		keyedPass[models.NoteRecord]("date_relaxed",
			newLabel(models.KindMismatch, models.MatchDateMismatch, models.StatusNoteDateMismatch, models.LogicDateMismatch),
			func(r *models.NoteRecord) (string, bool) {
				return joinKey(r.GSTIN, unitsKey(r.RoundedTaxable()))
			},
			tolerant),

		keyedPass[models.NoteRecord]("taxable_relaxed",
			newLabel(models.KindMismatch, models.MatchTaxableMismatch, models.StatusNoteTaxableMismatch, models.LogicNoteTaxable),
			func(r *models.NoteRecord) (string, bool) { return joinKey(r.GSTIN, r.Date.Key()) },
			nil),

		keyedPass[models.NoteRecord]("type_value",
			newLabel(models.KindMismatch, models.MatchTypeValue, models.StatusNoteTypeMismatch, models.LogicNoteTypeValue),
			func(r *models.NoteRecord) (string, bool) {
				return joinKey(r.GSTIN, r.NoteType.String(), unitsKey(r.RoundedTaxable()))
			},
			tolerant),

		keyedPass[models.NoteRecord]("cross_gstin",
			newLabel(models.KindSuggestion, models.SuggestCrossGSTIN, models.StatusNoteSuggestion, models.LogicNoteCrossGSTIN),
			func(r *models.NoteRecord) (string, bool) {
				return joinKey(r.NoteType.String(), unitsKey(r.RoundedTaxable()))
			},
			tolerant),

		groupPass[models.NoteRecord](
			newLabel(models.KindGroup, models.MatchNone, models.StatusNoteGroup, models.LogicGroup), e.config.ToleranceFor),

		unmatchedPass[models.NoteRecord](
			newLabel(models.KindUnmatchedBooks, models.MatchNone, models.StatusNoteNotInPortal, models.LogicUnmatched),
			newLabel(models.KindUnmatchedPortal, models.MatchNone, models.StatusNoteNotInBooks, models.LogicUnmatched)),
	}

	e.logger.WithFields(logger.Fields{
		"books":     len(books),
		"portal":    len(portal),
		"links":     len(links),
		"tolerance": e.config.Tolerance.String(),
	}).Debug("Running note cascade")

	tracker := logger.NewProgressTracker(logger.ProgressConfig{Operation: "note cascade", Logger: e.logger})
	return runCascade(tracker, stages, books, portal)
}
