package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Side identifies which ledger a record came from
type Side string

const (
	// SideBooks is the taxpayer's purchase register
	SideBooks Side = "books"
	// SidePortal is the GSTR-2B extract downloaded from the GST portal
	SidePortal Side = "portal"
)

// IDPrefix returns the prefix used for unique ids issued on this side
func (s Side) IDPrefix() string {
	if s == SidePortal {
		return "G_"
	}
	return "B_"
}

// IsValid checks if the side is known
func (s Side) IsValid() bool {
	return s == SideBooks || s == SidePortal
}

// UniqueID is the stable identity of a record within its side. It is issued once,
// before consolidation, and never rewritten afterwards so manual links keep pointing
// at the same record across runs.
type UniqueID string

// NewUniqueID builds the id for the n-th raw row of a side
func NewUniqueID(side Side, n int) UniqueID {
	return UniqueID(fmt.Sprintf("%s%d", side.IDPrefix(), n))
}

// String returns the id text
func (id UniqueID) String() string {
	return string(id)
}

// IsZero reports whether the id was never assigned
func (id UniqueID) IsZero() bool {
	return id == ""
}

// DocDate is a document date that remembers its raw text when it could not be parsed
type DocDate struct {
	Time  time.Time `json:"-"`
	Raw   string    `json:"raw"`
	Valid bool      `json:"valid"`
}

// NewDocDate creates a valid date
func NewDocDate(t time.Time) DocDate {
	y, m, d := t.Date()
	return DocDate{Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC), Raw: t.Format("02-01-2006"), Valid: true}
}

// Key returns the date as YYYYMMDD, or "" when the date is not valid
func (d DocDate) Key() string {
	if !d.Valid {
		return ""
	}
	return d.Time.Format("20060102")
}

// YearKey returns the first four characters of Key
func (d DocDate) YearKey() string {
	k := d.Key()
	if len(k) < 4 {
		return ""
	}
	return k[:4]
}

// String renders the date as dd-mm-yyyy, or the raw text when invalid
func (d DocDate) String() string {
	if d.Valid {
		return d.Time.Format("02-01-2006")
	}
	return d.Raw
}

// MarshalJSON writes the ISO date when valid and the raw text otherwise
func (d DocDate) MarshalJSON() ([]byte, error) {
	if d.Valid {
		return json.Marshal(d.Time.Format("2006-01-02"))
	}
	if d.Raw == "" {
		return []byte("null"), nil
	}
	return json.Marshal(d.Raw)
}

// Amounts holds the taxable value and tax heads of a document
type Amounts struct {
	TaxableValue decimal.Decimal `json:"taxable_value"`
	IGST         decimal.Decimal `json:"igst"`
	CGST         decimal.Decimal `json:"cgst"`
	SGST         decimal.Decimal `json:"sgst"`
	Cess         decimal.Decimal `json:"cess"`
}

// Add returns the field-wise sum
func (a Amounts) Add(o Amounts) Amounts {
	return Amounts{
		TaxableValue: a.TaxableValue.Add(o.TaxableValue),
		IGST:         a.IGST.Add(o.IGST),
		CGST:         a.CGST.Add(o.CGST),
		SGST:         a.SGST.Add(o.SGST),
		Cess:         a.Cess.Add(o.Cess),
	}
}

// Sub returns the field-wise difference a - o
func (a Amounts) Sub(o Amounts) Amounts {
	return Amounts{
		TaxableValue: a.TaxableValue.Sub(o.TaxableValue),
		IGST:         a.IGST.Sub(o.IGST),
		CGST:         a.CGST.Sub(o.CGST),
		SGST:         a.SGST.Sub(o.SGST),
		Cess:         a.Cess.Sub(o.Cess),
	}
}

// Round rounds every field to the given number of places
func (a Amounts) Round(places int32) Amounts {
	return Amounts{
		TaxableValue: a.TaxableValue.Round(places),
		IGST:         a.IGST.Round(places),
		CGST:         a.CGST.Round(places),
		SGST:         a.SGST.Round(places),
		Cess:         a.Cess.Round(places),
	}
}

// Magnitude rounds to two places and drops the sign of every field
func (a Amounts) Magnitude() Amounts {
	r := a.Round(2)
	return Amounts{
		TaxableValue: r.TaxableValue.Abs(),
		IGST:         r.IGST.Abs(),
		CGST:         r.CGST.Abs(),
		SGST:         r.SGST.Abs(),
		Cess:         r.Cess.Abs(),
	}
}

// TotalTax returns IGST + CGST + SGST + Cess
func (a Amounts) TotalTax() decimal.Decimal {
	return a.IGST.Add(a.CGST).Add(a.SGST).Add(a.Cess)
}

// Total returns the taxable value plus all tax heads
func (a Amounts) Total() decimal.Decimal {
	return a.TaxableValue.Add(a.TotalTax())
}

// Record is the view of a normalized document that the matching engine works on
type Record interface {
	RecordID() UniqueID
	SupplierGSTIN() string
	Party() string
	Values() Amounts
	DateKey() string
}

// InvoiceRecord is one logical B2B invoice on either side
type InvoiceRecord struct {
	ID            UniqueID        `json:"unique_id"`
	GSTIN         string          `json:"gstin"`
	PartyName     string          `json:"party_name,omitempty"`
	InvoiceNumber string          `json:"invoice_number"`
	CleanNumber   string          `json:"clean_number"`
	DigitsNumber  string          `json:"digits_number,omitempty"`
	Date          DocDate         `json:"invoice_date"`
	Amounts       Amounts         `json:"amounts"`
	InvoiceValue  decimal.Decimal `json:"invoice_value"`
	PlaceOfSupply string          `json:"place_of_supply,omitempty"`
	ReverseCharge string          `json:"reverse_charge,omitempty"`
	SourceRows    int             `json:"source_rows"`
}

func (r InvoiceRecord) RecordID() UniqueID { return r.ID }
func (r InvoiceRecord) SupplierGSTIN() string { return r.GSTIN }
func (r InvoiceRecord) Party() string { return r.PartyName }
func (r InvoiceRecord) Values() Amounts { return r.Amounts }
func (r InvoiceRecord) DateKey() string { return r.Date.Key() }
func (r InvoiceRecord) RoundedTaxable() int64 { return RoundUnits(r.Amounts.TaxableValue) }

// String returns a short description of the invoice
func (r InvoiceRecord) String() string {
	return fmt.Sprintf("Invoice{ID: %s, GSTIN: %s, No: %s, Date: %s, Taxable: %s}",
		r.ID, r.GSTIN, r.InvoiceNumber, r.Date, r.Amounts.TaxableValue.StringFixed(2))
}

// NoteType is the normalized direction of a credit/debit note
type NoteType string

const (
	NoteCredit  NoteType = "credit note"
	NoteDebit   NoteType = "debit note"
	NoteUnknown NoteType = ""
)

// String returns the string representation of NoteType
func (t NoteType) String() string {
	if t == NoteUnknown {
		return "unknown"
	}
	return string(t)
}

// IsCredit reports whether the note reduces input tax credit
func (t NoteType) IsCredit() bool {
	return t == NoteCredit
}

// ParsePortalNoteType maps the portal's note type text ("Credit Note", "Debit Note")
func ParsePortalNoteType(s string) NoteType {
	v := strings.ToLower(strings.TrimSpace(s))
	switch {
	case strings.Contains(v, "credit"):
		return NoteCredit
	case strings.Contains(v, "debit"):
		return NoteDebit
	case v == "c" || v == "cr":
		return NoteCredit
	case v == "d" || v == "dr":
		return NoteDebit
	default:
		return NoteUnknown
	}
}

// ParseBooksDocType maps a purchase-register document type code. Books record notes
// from the buyer's side, so a "D" (debit note issued by us) corresponds to the
// supplier's credit note and vice versa.
func ParseBooksDocType(s string) NoteType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "d":
		return NoteCredit
	case "c":
		return NoteDebit
	default:
		return ParsePortalNoteType(s)
	}
}

// NoteRecord is one credit or debit note on either side. Amounts are magnitudes.
type NoteRecord struct {
	ID             UniqueID `json:"unique_id"`
	GSTIN          string   `json:"gstin"`
	TradeName      string   `json:"trade_name,omitempty"`
	NoteNumber     string   `json:"note_number"`
	CleanNumber    string   `json:"clean_number"`
	Date           DocDate  `json:"note_date"`
	NoteType       NoteType `json:"note_type"`
	DocType        string   `json:"doc_type,omitempty"`
	Amounts        Amounts  `json:"amounts"`
	OriginalNumber string   `json:"original_number,omitempty"`
}

func (r NoteRecord) RecordID() UniqueID { return r.ID }
func (r NoteRecord) SupplierGSTIN() string { return r.GSTIN }
func (r NoteRecord) Party() string { return r.TradeName }
func (r NoteRecord) Values() Amounts { return r.Amounts }
func (r NoteRecord) DateKey() string { return r.Date.Key() }
func (r NoteRecord) RoundedTaxable() int64 { return RoundUnits(r.Amounts.TaxableValue) }

// String returns a short description of the note
func (r NoteRecord) String() string {
	return fmt.Sprintf("Note{ID: %s, GSTIN: %s, No: %s, Type: %s, Taxable: %s}",
		r.ID, r.GSTIN, r.NoteNumber, r.NoteType, r.Amounts.TaxableValue.StringFixed(2))
}

// RawInvoice is an invoice row as read from a register, before normalization
type RawInvoice struct {
	// ID is optional. Rows without one get an id from their position.
	ID            UniqueID `json:"unique_id,omitempty"`
	Line          int      `json:"line"`
	GSTIN         string   `json:"gstin"`
	PartyName     string   `json:"party_name"`
	InvoiceNumber string   `json:"invoice_number"`
	InvoiceDate   string   `json:"invoice_date"`
	TaxableValue  string   `json:"taxable_value"`
	IGST          string   `json:"igst"`
	CGST          string   `json:"cgst"`
	SGST          string   `json:"sgst"`
	Cess          string   `json:"cess"`
	InvoiceValue  string   `json:"invoice_value"`
	PlaceOfSupply string   `json:"place_of_supply"`
	ReverseCharge string   `json:"reverse_charge"`
}

// RawNote is a note row as read from a register, before normalization
type RawNote struct {
	ID             UniqueID `json:"unique_id,omitempty"`
	Line           int      `json:"line"`
	GSTIN          string   `json:"gstin"`
	TradeName      string   `json:"trade_name"`
	NoteNumber     string   `json:"note_number"`
	NoteDate       string   `json:"note_date"`
	NoteType       string   `json:"note_type"`
	DocType        string   `json:"doc_type"`
	TaxableValue   string   `json:"taxable_value"`
	IGST           string   `json:"igst"`
	CGST           string   `json:"cgst"`
	SGST           string   `json:"sgst"`
	Cess           string   `json:"cess"`
	OriginalNumber string   `json:"original_number"`
}

// Amendment is a revised portal document that supersedes the one filed under
// (GSTIN, OriginalNumber)
type Amendment[T any] struct {
	GSTIN          string `json:"gstin"`
	OriginalNumber string `json:"original_number"`
	Revised        T      `json:"revised"`
}

// Scope separates invoice links and runs from note links and runs
type Scope string

const (
	ScopeInvoices Scope = "invoices"
	ScopeNotes    Scope = "notes"
)

// IsValid checks if the scope is known
func (s Scope) IsValid() bool {
	return s == ScopeInvoices || s == ScopeNotes
}

// LinkPair is a user-confirmed pairing of one Books record with one Portal record
type LinkPair struct {
	BooksID  UniqueID `json:"books_id"`
	PortalID UniqueID `json:"portal_id"`
}

// String returns a string representation of the pair
func (p LinkPair) String() string {
	return fmt.Sprintf("%s<->%s", p.BooksID, p.PortalID)
}

// ExclusionReason explains why a record was kept out of matching
type ExclusionReason string

const (
	ExcludedInvalidGSTIN ExclusionReason = "invalid_gstin"
	ExcludedEmptyNumber  ExclusionReason = "empty_document_number"
	ExcludedMissingDate  ExclusionReason = "missing_date"
)

// Exclusion is a record the normalizer removed from the matching universe
type Exclusion struct {
	Side   Side            `json:"side"`
	ID     UniqueID        `json:"unique_id"`
	Line   int             `json:"line"`
	GSTIN  string          `json:"gstin"`
	Number string          `json:"number"`
	Reason ExclusionReason `json:"reason"`
}

// Amount bounds. Register values never come near them; anything beyond is treated as
// unusable instead of being carried into arbitrary-precision arithmetic.
const (
	MaxAmountDigits   = 30
	MaxAmountExponent = 20
)

// InAmountRange reports whether d has at most MaxAmountDigits digits and an exponent
// within ±MaxAmountExponent
func InAmountRange(d decimal.Decimal) bool {
	if exp := d.Exponent(); exp > MaxAmountExponent || exp < -MaxAmountExponent {
		return false
	}
	return d.NumDigits() <= MaxAmountDigits
}

// RoundUnits rounds to a whole currency unit using banker's rounding
func RoundUnits(d decimal.Decimal) int64 {
	return d.RoundBank(0).IntPart()
}

// WithinTolerance reports whether |a - b| <= tolerance
func WithinTolerance(a, b, tolerance decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(tolerance)
}
