package reconciler

import (
	"gst-reconciliation-service/internal/models"
	"gst-reconciliation-service/internal/normalizer"
	"gst-reconciliation-service/internal/postprocess"
	"gst-reconciliation-service/pkg/logger"
)

// Preprocessor prepares raw register rows for the cascade: amendments are applied to
// the portal side, ids are issued and values normalized
type Preprocessor struct {
	normalizer *normalizer.Normalizer
	logger     logger.Logger
}

// NewPreprocessor creates a new preprocessor. A nil config selects normalizer.DefaultConfig.
func NewPreprocessor(config *normalizer.Config) *Preprocessor {
	return &Preprocessor{
		normalizer: normalizer.New(config),
		logger:     logger.WithComponent("preprocessor"),
	}
}

// PreparedInvoices are both sides of an invoice run, ready for matching
type PreparedInvoices struct {
	Books      *normalizer.InvoiceResult
	Portal     *normalizer.InvoiceResult
	Amendments normalizer.AmendmentStats
}

// Exclusions returns the records removed from both sides, Books first
func (p *PreparedInvoices) Exclusions() []models.Exclusion {
	return concatExclusions(p.Books.Exclusions, p.Portal.Exclusions)
}

// PreparedNotes are both sides of a note run, ready for matching
type PreparedNotes struct {
	Books      *normalizer.NoteResult
	Portal     *normalizer.NoteResult
	Amendments normalizer.AmendmentStats
	// PortalNames maps GSTINs to the trade names filed on the portal
	PortalNames *postprocess.NameTable
	// Backfilled counts Books notes that took their trade name from PortalNames
	Backfilled int
}

// Exclusions returns the records removed from both sides, Books first
func (p *PreparedNotes) Exclusions() []models.Exclusion {
	return concatExclusions(p.Books.Exclusions, p.Portal.Exclusions)
}

// Invoices applies B2BA amendments to the portal rows and normalizes both sides
func (p *Preprocessor) Invoices(books, portal []models.RawInvoice, amendments []models.Amendment[models.RawInvoice]) (*PreparedInvoices, error) {
	amended, stats, err := normalizer.ApplyInvoiceAmendments(portal, amendments)
	if err != nil {
		return nil, err
	}

	booksResult, err := p.normalizer.Invoices(books, models.SideBooks)
	if err != nil {
		return nil, err
	}
	portalResult, err := p.normalizer.Invoices(amended, models.SidePortal)
	if err != nil {
		return nil, err
	}

	p.logger.WithFields(logger.Fields{
		"books":              len(booksResult.Records),
		"portal":             len(portalResult.Records),
		"amendments_deleted": stats.Deleted,
		"amendments_added":   stats.Added,
	}).Debug("Prepared invoices")

	return &PreparedInvoices{Books: booksResult, Portal: portalResult, Amendments: stats}, nil
}

// Notes applies CDNRA amendments to the portal rows, normalizes both sides and
// backfills missing Books trade names from the portal
func (p *Preprocessor) Notes(books, portal []models.RawNote, amendments []models.Amendment[models.RawNote]) (*PreparedNotes, error) {
	amended, stats, err := normalizer.ApplyNoteAmendments(portal, amendments)
	if err != nil {
		return nil, err
	}

	booksResult, err := p.normalizer.Notes(books, models.SideBooks)
	if err != nil {
		return nil, err
	}
	portalResult, err := p.normalizer.Notes(amended, models.SidePortal)
	if err != nil {
		return nil, err
	}

	names := postprocess.BuildNameTable[models.NoteRecord](nil, portalResult.Records)
	filled := postprocess.BackfillTradeNames(booksResult.Records, names)

	backfilled := 0
	for i := range filled {
		if filled[i].TradeName != booksResult.Records[i].TradeName {
			backfilled++
		}
	}
	booksResult.Records = filled

	p.logger.WithFields(logger.Fields{
		"books":              len(booksResult.Records),
		"portal":             len(portalResult.Records),
		"backfilled_names":   backfilled,
		"amendments_deleted": stats.Deleted,
		"amendments_added":   stats.Added,
	}).Debug("Prepared notes")

	return &PreparedNotes{
		Books:       booksResult,
		Portal:      portalResult,
		Amendments:  stats,
		PortalNames: names,
		Backfilled:  backfilled,
	}, nil
}

func concatExclusions(books, portal []models.Exclusion) []models.Exclusion {
	if len(books)+len(portal) == 0 {
		return nil
	}
	out := make([]models.Exclusion, 0, len(books)+len(portal))
	out = append(out, books...)
	return append(out, portal...)
}
