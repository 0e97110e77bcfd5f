package models

// Status texts shown to users. Code must dispatch on OutcomeKind, never on these.
const (
	StatusManual          = "Manually Linked"
	StatusMatched         = "Matched"
	StatusDateMismatch    = "AI Matched (Date Mismatch)"
	StatusInvoiceMismatch = "AI Matched (Invoice Mismatch)"
	StatusValueMismatch   = "AI Matched (Mismatch)"
	StatusSuggestion      = "Suggestion"
	StatusGroup           = "Suggestion (Group Match)"
	StatusNotInPortal     = "Invoices Not in GSTR-2B"
	StatusNotInBooks      = "Invoices Not in Purchase Books"
	StatusTaxError        = "Matched (Tax Error)"

	StatusNoteManual          = "CDNR Manually Linked"
	StatusNoteMatched         = "CDNR Matched"
	StatusNoteDateMismatch    = "CDNR AI Matched (Date Mismatch)"
	StatusNoteTaxableMismatch = "CDNR AI Matched (Taxable Mismatch)"
	StatusNoteTypeMismatch    = "CDNR AI Matched (Mismatch)"
	StatusNoteSuggestion      = "CDNR Suggestion"
	StatusNoteGroup           = "CDNR Suggestion (Group Match)"
	StatusNoteNotInPortal     = "CDNR Not in GSTR-2B"
	StatusNoteNotInBooks      = "CDNR Not in Books"
	StatusNoteTaxError        = "CDNR Matched (Tax Error)"
)

// Match logic labels naming the pass that produced an outcome
const (
	LogicManual          = "User Selection"
	LogicExact           = "Exact Match"
	LogicDateMismatch    = "Date Mismatch"
	LogicInvoiceMismatch = "Invoice Mismatch"
	LogicValueMismatch   = "Value Mismatch"
	LogicInvoiceValue    = "Inv No + Val Match"
	LogicDateValue       = "Date + Val Match"
	LogicApproxValue     = "Value Match (Approx)"
	LogicGroup           = "Total Value Matches"
	LogicUnmatched       = "Unmatched"

	LogicNoteExact      = "Exact: GSTIN+Date+Taxable"
	LogicNoteTaxable    = "Taxable Mismatch"
	LogicNoteTypeValue  = "Type+Value Match"
	LogicNoteCrossGSTIN = "Cross-GSTIN Type+Value"
)
