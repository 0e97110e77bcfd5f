package reporter

import (
	"time"

	"gst-reconciliation-service/internal/models"
	"gst-reconciliation-service/internal/reconciler"

	"github.com/shopspring/decimal"
)

// Report is the format-independent view of one reconciliation run
type Report struct {
	Scope       models.Scope                `json:"scope"`
	RunID       string                      `json:"run_id,omitempty"`
	GSTIN       string                      `json:"gstin,omitempty"`
	Period      string                      `json:"period,omitempty"`
	ProcessedAt time.Time                   `json:"processed_at"`
	Tolerance   decimal.Decimal             `json:"tolerance"`
	SmartMode   bool                        `json:"smart_mode,omitempty"`
	Summary     *reconciler.SummaryStats    `json:"summary"`
	Rows        []Row                       `json:"rows"`
	Exclusions  []models.Exclusion          `json:"exclusions,omitempty"`
	Vendors     []string                    `json:"vendors_with_issues,omitempty"`
	Stats       *reconciler.ProcessingStats `json:"processing_stats,omitempty"`
	Warnings    []string                    `json:"warnings,omitempty"`
}

// Row is one outcome flattened for output. Books and Portal columns are empty
// when the outcome has no record on that side.
type Row struct {
	Kind   models.OutcomeKind `json:"kind"`
	Match  models.MatchKind   `json:"match,omitempty"`
	Status string             `json:"status"`
	Logic  string             `json:"match_logic"`

	GSTIN     string `json:"gstin"`
	PartyName string `json:"party_name"`
	NoteType  string `json:"note_type,omitempty"`

	BooksID      models.UniqueID  `json:"books_id,omitempty"`
	BooksNumber  string           `json:"books_number,omitempty"`
	BooksDate    string           `json:"books_date,omitempty"`
	BooksValues  *models.Amounts  `json:"books_values,omitempty"`
	PortalID     models.UniqueID  `json:"portal_id,omitempty"`
	PortalNumber string           `json:"portal_number,omitempty"`
	PortalDate   string           `json:"portal_date,omitempty"`
	PortalValues *models.Amounts  `json:"portal_values,omitempty"`
	Diff         models.Amounts   `json:"diff"`
	FinalTaxable decimal.Decimal  `json:"final_taxable"`
	ITCImpact    *decimal.Decimal `json:"itc_impact,omitempty"`
}

// FromInvoiceResult builds a report from an invoice reconciliation
func FromInvoiceResult(result *reconciler.InvoiceResult) *Report {
	rows := make([]Row, 0, len(result.Outcomes))
	for _, o := range result.Outcomes {
		row := baseRow(o)
		if o.Books != nil {
			row.BooksNumber = o.Books.InvoiceNumber
			row.BooksDate = o.Books.Date.String()
		}
		if o.Portal != nil {
			row.PortalNumber = o.Portal.InvoiceNumber
			row.PortalDate = o.Portal.Date.String()
		}
		rows = append(rows, row)
	}

	return &Report{
		Scope:       models.ScopeInvoices,
		ProcessedAt: result.ProcessedAt,
		Tolerance:   result.Tolerance,
		SmartMode:   result.SmartMode,
		Summary:     result.Summary,
		Rows:        rows,
		Exclusions:  result.Exclusions,
		Vendors:     reconciler.VendorsWithIssues(result.Outcomes),
		Stats:       result.Stats,
	}
}

// FromNoteResult builds a report from a credit/debit note reconciliation
func FromNoteResult(result *reconciler.NoteResult) *Report {
	rows := make([]Row, 0, len(result.Outcomes))
	for _, o := range result.Outcomes {
		row := baseRow(o)
		if o.Books != nil {
			row.BooksNumber = o.Books.NoteNumber
			row.BooksDate = o.Books.Date.String()
			row.NoteType = o.Books.NoteType.String()
		}
		if o.Portal != nil {
			row.PortalNumber = o.Portal.NoteNumber
			row.PortalDate = o.Portal.Date.String()
			if o.Books == nil || o.Books.NoteType == models.NoteUnknown {
				row.NoteType = o.Portal.NoteType.String()
			}
		}
		impact := o.ITCImpact
		row.ITCImpact = &impact
		rows = append(rows, row)
	}

	return &Report{
		Scope:       models.ScopeNotes,
		ProcessedAt: result.ProcessedAt,
		Tolerance:   result.Tolerance,
		Summary:     result.Summary,
		Rows:        rows,
		Exclusions:  result.Exclusions,
		Vendors:     reconciler.VendorsWithIssues(result.Outcomes),
		Stats:       result.Stats,
	}
}

// FromInvoiceRun builds a report from an orchestrated invoice run
func FromInvoiceRun(run *reconciler.InvoiceRun) *Report {
	r := FromInvoiceResult(run.InvoiceResult)
	r.RunID = run.RunID
	r.GSTIN, r.Period = run.Meta.GSTIN, run.Meta.Period
	r.Warnings = run.Warnings
	return r
}

// FromNoteRun builds a report from an orchestrated note run
func FromNoteRun(run *reconciler.NoteRun) *Report {
	r := FromNoteResult(run.NoteResult)
	r.RunID = run.RunID
	r.GSTIN, r.Period = run.Meta.GSTIN, run.Meta.Period
	r.Warnings = run.Warnings
	return r
}

func baseRow[T models.Record](o models.Outcome[T]) Row {
	row := Row{
		Kind:         o.Kind,
		Match:        o.Match,
		Status:       o.Status,
		Logic:        o.Logic,
		GSTIN:        o.GSTIN,
		PartyName:    o.PartyName,
		BooksID:      o.BooksID(),
		PortalID:     o.PortalID(),
		Diff:         o.Diff,
		FinalTaxable: o.FinalTaxable,
	}
	if o.Books != nil {
		v := o.BooksValues()
		row.BooksValues = &v
	}
	if o.Portal != nil {
		v := o.PortalValues()
		row.PortalValues = &v
	}
	return row
}

// kindOrder is the order sections are printed in
var kindOrder = []models.OutcomeKind{
	models.KindManual,
	models.KindExact,
	models.KindTaxError,
	models.KindMismatch,
	models.KindSuggestion,
	models.KindGroup,
	models.KindUnmatchedBooks,
	models.KindUnmatchedPortal,
}

var sectionTitles = map[models.OutcomeKind]string{
	models.KindManual:          "MANUALLY LINKED",
	models.KindExact:           "MATCHED",
	models.KindTaxError:        "MATCHED WITH TAX ERRORS",
	models.KindMismatch:        "APPROXIMATE MATCHES",
	models.KindSuggestion:      "SUGGESTIONS",
	models.KindGroup:           "GROUP SUGGESTIONS",
	models.KindUnmatchedBooks:  "NOT IN PORTAL",
	models.KindUnmatchedPortal: "NOT IN BOOKS",
}

// byKind groups rows by outcome kind, keeping their order
func (r *Report) byKind() map[models.OutcomeKind][]Row {
	groups := make(map[models.OutcomeKind][]Row)
	for _, row := range r.Rows {
		groups[row.Kind] = append(groups[row.Kind], row)
	}
	return groups
}

func fixed(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.StringFixed(2)
}

func taxable(a *models.Amounts) string {
	if a == nil {
		return ""
	}
	return a.TaxableValue.StringFixed(2)
}
