package reconciler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"gst-reconciliation-service/internal/matcher"
	"gst-reconciliation-service/internal/models"
	"gst-reconciliation-service/internal/postprocess"
	"gst-reconciliation-service/pkg/errors"
	"gst-reconciliation-service/pkg/logger"

	"github.com/shopspring/decimal"
)

// ReconcileInvoices performs the complete invoice reconciliation of one period
func (s *Service) ReconcileInvoices(ctx context.Context, req *InvoiceRequest) (*InvoiceResult, error) {
	if req == nil {
		return nil, errors.ValidationError(errors.CodeMissingField, "invoice_request", nil, nil)
	}
	if err := checkContext(ctx, "invoice_reconciliation"); err != nil {
		return nil, err
	}

	startTime := time.Now()
	cfg, err := req.Overrides.apply(s.config.Matcher)
	if err != nil {
		return nil, err
	}

	op := logger.NewOperationLogger("invoice_reconciliation", s.logger).
		WithField("tolerance", cfg.Tolerance.String()).
		WithField("smart_mode", cfg.SmartMode)

	prepared, err := s.preprocessor.Invoices(req.Books, req.Portal, req.Amendments)
	if err != nil {
		op.Error(err, "Failed to prepare invoices")
		return nil, err
	}
	prepareTime := time.Since(startTime)

	matchStart := time.Now()
	outcomes := s.invoiceOutcomes(cfg, prepared.Books.Records, prepared.Portal.Records, req.Links)
	matchingTime := time.Since(matchStart)

	result := &InvoiceResult{
		Outcomes:    outcomes,
		Exclusions:  prepared.Exclusions(),
		Amendments:  prepared.Amendments,
		Tolerance:   cfg.Tolerance,
		SmartMode:   cfg.SmartMode,
		ProcessedAt: startTime,
	}
	if s.config.Diagnostics {
		result.AmbiguousKeys = matcher.NewEdgeCaseHandler(cfg).AmbiguousInvoiceKeys(prepared.Books.Records, prepared.Portal.Records)
	}

	result.Summary = Summarize(outcomes, len(prepared.Books.Records), len(prepared.Portal.Records))
	result.Summary.AmendmentsDeleted = prepared.Amendments.Deleted
	result.Summary.AmendmentsAdded = prepared.Amendments.Added
	result.Summary.ExcludedCount = len(result.Exclusions)

	result.Stats = &ProcessingStats{
		BooksRows:     prepared.Books.RawRows,
		PortalRows:    prepared.Portal.RawRows,
		BooksRecords:  len(prepared.Books.Records),
		PortalRecords: len(prepared.Portal.Records),
		PrepareTime:   prepareTime,
		MatchingTime:  matchingTime,
		TotalTime:     time.Since(startTime),
	}

	if err := checkConservation(outcomes, prepared.Books.Records, prepared.Portal.Records); err != nil {
		op.Error(err, "Outcomes do not account for every record")
		return nil, err
	}

	op.WithField("summary", result.Summary.String()).Success("Invoice reconciliation completed")
	return result, nil
}

// ReconcileInvoiceRecords runs the cascade and post-processing over records that are
// already normalized
func (s *Service) ReconcileInvoiceRecords(books, portal []models.InvoiceRecord, links []models.LinkPair, overrides Overrides) ([]models.InvoiceOutcome, error) {
	cfg, err := overrides.apply(s.config.Matcher)
	if err != nil {
		return nil, err
	}
	return s.invoiceOutcomes(cfg, books, portal, links), nil
}

func (s *Service) invoiceOutcomes(cfg *matcher.Config, books, portal []models.InvoiceRecord, links []models.LinkPair) []models.InvoiceOutcome {
	engine := matcher.NewEngine(cfg).WithLogger(s.logger)
	outcomes := engine.ReconcileInvoices(books, portal, links)
	return s.post.Invoices(outcomes, postprocess.BuildNameTable(books, portal))
}

// ReconcileNotes performs the complete credit/debit note reconciliation of one period
func (s *Service) ReconcileNotes(ctx context.Context, req *NoteRequest) (*NoteResult, error) {
	if req == nil {
		return nil, errors.ValidationError(errors.CodeMissingField, "note_request", nil, nil)
	}
	if err := checkContext(ctx, "note_reconciliation"); err != nil {
		return nil, err
	}

	startTime := time.Now()
	cfg, err := req.Overrides.apply(s.config.Matcher)
	if err != nil {
		return nil, err
	}

	op := logger.NewOperationLogger("note_reconciliation", s.logger).
		WithField("tolerance", cfg.Tolerance.String())

	prepared, err := s.preprocessor.Notes(req.Books, req.Portal, req.Amendments)
	if err != nil {
		op.Error(err, "Failed to prepare notes")
		return nil, err
	}
	prepareTime := time.Since(startTime)

	matchStart := time.Now()
	outcomes, summary := s.noteOutcomes(cfg, prepared.Books.Records, prepared.Portal.Records, req.Links)
	matchingTime := time.Since(matchStart)

	result := &NoteResult{
		Outcomes:    outcomes,
		Summary:     summary,
		Exclusions:  prepared.Exclusions(),
		Amendments:  prepared.Amendments,
		Tolerance:   cfg.Tolerance,
		ProcessedAt: startTime,
	}
	if s.config.Diagnostics {
		edge := matcher.NewEdgeCaseHandler(cfg)
		result.Duplicates = append(edge.DetectDuplicateNotes(models.SideBooks, prepared.Books.Records),
			edge.DetectDuplicateNotes(models.SidePortal, prepared.Portal.Records)...)
	}

	summary.AmendmentsDeleted = prepared.Amendments.Deleted
	summary.AmendmentsAdded = prepared.Amendments.Added
	summary.ExcludedCount = len(result.Exclusions)

	result.Stats = &ProcessingStats{
		BooksRows:     prepared.Books.RawRows,
		PortalRows:    prepared.Portal.RawRows,
		BooksRecords:  len(prepared.Books.Records),
		PortalRecords: len(prepared.Portal.Records),
		Backfilled:    prepared.Backfilled,
		PrepareTime:   prepareTime,
		MatchingTime:  matchingTime,
		TotalTime:     time.Since(startTime),
	}

	if err := checkConservation(outcomes, prepared.Books.Records, prepared.Portal.Records); err != nil {
		op.Error(err, "Outcomes do not account for every record")
		return nil, err
	}

	op.WithField("summary", summary.String()).
		WithField("net_itc_impact", summary.NetITCImpact.StringFixed(2)).
		Success("Note reconciliation completed")
	return result, nil
}

// ReconcileNoteRecords runs the note cascade and post-processing over records that
// are already normalized, and summarizes the outcomes
func (s *Service) ReconcileNoteRecords(books, portal []models.NoteRecord, links []models.LinkPair, overrides Overrides) ([]models.NoteOutcome, *SummaryStats, error) {
	cfg, err := overrides.apply(s.config.Matcher)
	if err != nil {
		return nil, nil, err
	}
	outcomes, summary := s.noteOutcomes(cfg, books, portal, links)
	return outcomes, summary, nil
}

func (s *Service) noteOutcomes(cfg *matcher.Config, books, portal []models.NoteRecord, links []models.LinkPair) ([]models.NoteOutcome, *SummaryStats) {
	engine := matcher.NewEngine(cfg).WithLogger(s.logger)
	outcomes := engine.ReconcileNotes(books, portal, links)
	outcomes = s.post.Notes(outcomes, postprocess.BuildNameTable(books, portal))
	return outcomes, Summarize(outcomes, len(books), len(portal))
}

// Summarize counts outcomes per kind. Unmatched values are taxable totals of the side
// that holds the record; the ITC impact is the sum over all outcomes.
func Summarize[T models.Record](outcomes []models.Outcome[T], totalBooks, totalPortal int) *SummaryStats {
	s := &SummaryStats{
		TotalBooks:       totalBooks,
		TotalPortal:      totalPortal,
		NotInPortalValue: decimal.Zero,
		NotInBooksValue:  decimal.Zero,
		NetITCImpact:     decimal.Zero,
	}

	for _, o := range outcomes {
		switch o.Kind {
		case models.KindManual:
			s.ManualCount++
		case models.KindExact:
			s.MatchedCount++
		case models.KindTaxError:
			s.TaxErrorCount++
		case models.KindMismatch:
			s.MismatchCount++
			s.AIMatchedCount++
		case models.KindSuggestion:
			s.SuggestionCount++
		case models.KindGroup:
			s.GroupCount++
		case models.KindUnmatchedBooks:
			s.NotInPortalCount++
			s.NotInPortalValue = s.NotInPortalValue.Add(o.BooksValues().TaxableValue)
		case models.KindUnmatchedPortal:
			s.NotInBooksCount++
			s.NotInBooksValue = s.NotInBooksValue.Add(o.PortalValues().TaxableValue)
		}
		s.NetITCImpact = s.NetITCImpact.Add(o.ITCImpact)
	}

	s.NotInPortalValue = s.NotInPortalValue.Round(2)
	s.NotInBooksValue = s.NotInBooksValue.Round(2)
	s.NetITCImpact = s.NetITCImpact.Round(2)
	return s
}

// VendorsWithIssues returns the party names with any mismatch or unmatched outcome,
// sorted and without duplicates
func VendorsWithIssues[T models.Record](outcomes []models.Outcome[T]) []string {
	seen := make(map[string]bool)
	var vendors []string
	for _, o := range outcomes {
		if !o.NeedsAttention() || o.PartyName == "" || seen[o.PartyName] {
			continue
		}
		seen[o.PartyName] = true
		vendors = append(vendors, o.PartyName)
	}
	sort.Strings(vendors)
	return vendors
}

// checkConservation verifies that every record appears on its side of exactly one outcome
func checkConservation[T models.Record](outcomes []models.Outcome[T], books, portal []T) error {
	booksSeen := make(map[models.UniqueID]int, len(books))
	portalSeen := make(map[models.UniqueID]int, len(portal))
	for _, o := range outcomes {
		if id := o.BooksID(); id != "" {
			booksSeen[id]++
		}
		if id := o.PortalID(); id != "" {
			portalSeen[id]++
		}
	}

	if err := compareSide(models.SideBooks, books, booksSeen); err != nil {
		return err
	}
	return compareSide(models.SidePortal, portal, portalSeen)
}

func compareSide[T models.Record](side models.Side, records []T, seen map[models.UniqueID]int) error {
	if len(seen) != len(records) {
		return errors.ReconciliationError(errors.CodeMatchingFailed, "conservation_check",
			fmt.Errorf("%s side has %d records but %d distinct ids in outcomes", side, len(records), len(seen)))
	}
	for _, r := range records {
		if n := seen[r.RecordID()]; n != 1 {
			return errors.ReconciliationError(errors.CodeMatchingFailed, "conservation_check",
				fmt.Errorf("%s record %s appears in %d outcomes", side, r.RecordID(), n))
		}
	}
	return nil
}

func checkContext(ctx context.Context, operation string) error {
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return errors.InternalError(errors.CodeUnexpectedError, operation,
			fmt.Errorf("cancelled before start: %w", ctx.Err()))
	default:
		return nil
	}
}
