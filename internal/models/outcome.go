package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// OutcomeKind is the tag of a reconciliation outcome
type OutcomeKind int

const (
	KindManual OutcomeKind = iota + 1
	KindExact
	KindTaxError
	KindMismatch
	KindSuggestion
	KindGroup
	KindUnmatchedBooks
	KindUnmatchedPortal
)

var kindNames = map[OutcomeKind]string{
	KindManual:          "manual",
	KindExact:           "exact",
	KindTaxError:        "tax_error",
	KindMismatch:        "mismatch",
	KindSuggestion:      "suggestion",
	KindGroup:           "group_suggestion",
	KindUnmatchedBooks:  "unmatched_books",
	KindUnmatchedPortal: "unmatched_portal",
}

// String returns the string representation of OutcomeKind
func (k OutcomeKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("OutcomeKind(%d)", int(k))
}

// MarshalText implements encoding.TextMarshaler
func (k OutcomeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (k *OutcomeKind) UnmarshalText(text []byte) error {
	for kind, name := range kindNames {
		if name == string(text) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown outcome kind: %s", text)
}

// IsPaired reports whether outcomes of this kind reference one record from each side
func (k OutcomeKind) IsPaired() bool {
	switch k {
	case KindManual, KindExact, KindTaxError, KindMismatch, KindSuggestion:
		return true
	}
	return false
}

// IsUnmatched reports whether the kind is a terminal unmatched bucket
func (k OutcomeKind) IsUnmatched() bool {
	return k == KindUnmatchedBooks || k == KindUnmatchedPortal
}

// MatchKind refines the Mismatch and Suggestion tags
type MatchKind string

const (
	MatchNone MatchKind = ""

	// Approximate matches
	MatchDateMismatch    MatchKind = "date_mismatch"
	MatchInvoiceMismatch MatchKind = "invoice_mismatch"
	MatchValueMismatch   MatchKind = "value_mismatch"
	MatchTaxableMismatch MatchKind = "taxable_mismatch"
	MatchTypeValue       MatchKind = "type_value_mismatch"

	// Suggestions
	SuggestInvoiceValue MatchKind = "invoice_value"
	SuggestDateValue    MatchKind = "date_value"
	SuggestApproxValue  MatchKind = "approx_value"
	SuggestCrossGSTIN   MatchKind = "cross_gstin"
)

// Outcome is one row of a reconciliation result. Paired kinds carry both sides,
// group and unmatched kinds carry exactly one.
type Outcome[T Record] struct {
	Kind OutcomeKind `json:"kind"`
	// Match refines Mismatch and Suggestion kinds
	Match MatchKind `json:"match,omitempty"`
	// Origin is the kind assigned by the cascade before post-processing reclassified it
	Origin OutcomeKind `json:"origin,omitempty"`
	Status string      `json:"status"`
	Logic  string      `json:"match_logic"`

	Books  *T `json:"books,omitempty"`
	Portal *T `json:"portal,omitempty"`

	GSTIN        string          `json:"gstin"`
	PartyName    string          `json:"party_name"`
	Diff         Amounts         `json:"diff"`
	FinalTaxable decimal.Decimal `json:"final_taxable"`
	ITCImpact    decimal.Decimal `json:"itc_impact"`
}

// BooksID returns the Books record id, or "" when the outcome has no Books side
func (o Outcome[T]) BooksID() UniqueID {
	if o.Books == nil {
		return ""
	}
	return (*o.Books).RecordID()
}

// PortalID returns the Portal record id, or "" when the outcome has no Portal side
func (o Outcome[T]) PortalID() UniqueID {
	if o.Portal == nil {
		return ""
	}
	return (*o.Portal).RecordID()
}

// BooksValues returns the Books amounts, zero when absent
func (o Outcome[T]) BooksValues() Amounts {
	if o.Books == nil {
		return Amounts{}
	}
	return (*o.Books).Values()
}

// PortalValues returns the Portal amounts, zero when absent
func (o Outcome[T]) PortalValues() Amounts {
	if o.Portal == nil {
		return Amounts{}
	}
	return (*o.Portal).Values()
}

// NeedsAttention reports whether the outcome shows a discrepancy the supplier should fix
func (o Outcome[T]) NeedsAttention() bool {
	return o.Kind == KindMismatch || o.Kind.IsUnmatched()
}

// InvoiceOutcome is an outcome of the invoice cascade
type InvoiceOutcome = Outcome[InvoiceRecord]

// NoteOutcome is an outcome of the note cascade
type NoteOutcome = Outcome[NoteRecord]
