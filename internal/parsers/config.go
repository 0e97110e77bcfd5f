package parsers

import (
	"fmt"
	"sort"
	"strings"
)

// Logical columns of an invoice register
const (
	ColUniqueID       = "unique_id"
	ColGSTIN          = "gstin"
	ColPartyName      = "party_name"
	ColInvoiceNumber  = "invoice_number"
	ColInvoiceDate    = "invoice_date"
	ColTaxableValue   = "taxable_value"
	ColIGST           = "igst"
	ColCGST           = "cgst"
	ColSGST           = "sgst"
	ColCess           = "cess"
	ColInvoiceValue   = "invoice_value"
	ColPlaceOfSupply  = "place_of_supply"
	ColReverseCharge  = "reverse_charge"
	ColNoteNumber     = "note_number"
	ColNoteDate       = "note_date"
	ColNoteType       = "note_type"
	ColDocType        = "doc_type"
	ColOriginalNumber = "original_number"
)

// Layout describes how one kind of register is laid out: which sheet holds it,
// which logical columns it must have and the header texts each column goes by
type Layout struct {
	Name        string `json:"name" mapstructure:"name"`
	Description string `json:"description,omitempty" mapstructure:"description"`

	// SheetExact names are preferred over keyword matches
	SheetExact []string `json:"sheet_exact,omitempty" mapstructure:"sheet_exact"`
	// SheetKeywords select a sheet whose name contains any of them
	SheetKeywords []string `json:"sheet_keywords,omitempty" mapstructure:"sheet_keywords"`
	// SheetExclude rejects a sheet whose name contains any of them
	SheetExclude []string `json:"sheet_exclude,omitempty" mapstructure:"sheet_exclude"`
	// Optional layouts read as empty when the workbook has no matching sheet
	Optional bool `json:"optional,omitempty" mapstructure:"optional"`

	// Required logical columns. A missing one is a hard error.
	Required []string `json:"required" mapstructure:"required"`
	// Aliases maps a logical column to the header texts it may appear as. Matching
	// ignores case, spaces and punctuation; an exact alias wins over a contained one.
	Aliases map[string][]string `json:"aliases" mapstructure:"aliases"`
}

// Validate checks the layout
func (l *Layout) Validate() error {
	if strings.TrimSpace(l.Name) == "" {
		return fmt.Errorf("layout name cannot be empty")
	}
	if len(l.Required) == 0 {
		return fmt.Errorf("layout %s has no required columns", l.Name)
	}
	for _, col := range l.Required {
		if len(l.Aliases[col]) == 0 {
			return fmt.Errorf("layout %s: required column %s has no aliases", l.Name, col)
		}
	}
	return nil
}

// Columns returns every logical column the layout knows, sorted
func (l *Layout) Columns() []string {
	cols := make([]string, 0, len(l.Aliases))
	for col := range l.Aliases {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}

// WithAliases returns a copy of the layout with extra header texts for some columns.
// Extra aliases are tried before the built-in ones.
func (l *Layout) WithAliases(extra map[string][]string) *Layout {
	out := *l
	out.Aliases = make(map[string][]string, len(l.Aliases))
	for col, names := range l.Aliases {
		out.Aliases[col] = append([]string(nil), names...)
	}
	for col, names := range extra {
		out.Aliases[col] = append(append([]string(nil), names...), out.Aliases[col]...)
	}
	return &out
}

var invoiceAliases = map[string][]string{
	ColUniqueID:      {"Unique_ID", "Unique ID"},
	ColGSTIN:         {"GSTIN of Supplier", "GSTIN/UIN of Supplier", "Supplier GSTIN", "GSTIN", "GSTIN/UIN"},
	ColPartyName:     {"Name of Party", "Trade/Legal name", "Trade Name", "Party Name", "Supplier Name", "Legal Name"},
	ColInvoiceNumber: {"Invoice Number", "Invoice No", "Inv No", "Bill No", "Document Number"},
	ColInvoiceDate:   {"Invoice Date", "Inv Date", "Bill Date", "Document Date"},
	ColTaxableValue:  {"Taxable Value", "Taxable Amount", "Taxable Value (₹)"},
	ColIGST:          {"Integrated Tax", "IGST", "Integrated Tax (₹)"},
	ColCGST:          {"Central Tax", "CGST", "Central Tax (₹)"},
	ColSGST:          {"State/UT Tax", "SGST", "SGST/UTGST", "State/UT Tax (₹)"},
	ColCess:          {"Cess", "Cess (₹)"},
	ColInvoiceValue:  {"Invoice Value", "Invoice Value (₹)", "Total Value"},
	ColPlaceOfSupply: {"Place of Supply", "POS"},
	ColReverseCharge: {"Supply Attract Reverse Charge", "Reverse Charge", "RCM"},
}

var noteAliases = map[string][]string{
	ColUniqueID:     {"Unique_ID", "Unique ID"},
	ColGSTIN:        {"GSTIN of Supplier", "GSTIN/UIN of Supplier", "Supplier GSTIN", "GSTIN", "GSTIN/UIN"},
	ColPartyName:    {"Trade/Legal name", "Trade Name", "Name of Party", "Party Name", "Supplier Name"},
	ColNoteNumber:   {"Note Number", "Note No", "Credit/Debit Note No", "Document Number", "Voucher No"},
	ColNoteDate:     {"Note Date", "Credit/Debit Note Date", "Document Date", "Voucher Date"},
	ColNoteType:     {"Note Type", "Note type"},
	ColDocType:      {"Doc Type", "Document Type", "Dr/Cr"},
	ColTaxableValue: {"Taxable Value", "Taxable Amount", "Taxable Value (₹)"},
	ColIGST:         {"Integrated Tax", "IGST", "Integrated Tax (₹)"},
	ColCGST:         {"Central Tax", "CGST", "Central Tax (₹)"},
	ColSGST:         {"State/UT Tax", "SGST", "SGST/UTGST", "State/UT Tax (₹)"},
	ColCess:         {"Cess", "Cess (₹)"},
}

func withOriginal(aliases map[string][]string, names ...string) map[string][]string {
	out := make(map[string][]string, len(aliases)+1)
	for k, v := range aliases {
		out[k] = v
	}
	out[ColOriginalNumber] = names
	return out
}

// Predefined layouts for purchase registers and GSTR-2B workbooks
var (
	// BooksInvoiceLayout is a purchase register of B2B invoices
	BooksInvoiceLayout = &Layout{
		Name:          "books_invoices",
		Description:   "Purchase register, one row per invoice line",
		SheetExact:    []string{"b2b", "purchase"},
		SheetKeywords: []string{"b2b", "purchase", "sales"},
		SheetExclude:  []string{"cdnr", "credit", "debit", "cdnra", "b2ba"},
		Required:      []string{ColGSTIN, ColInvoiceNumber, ColInvoiceDate, ColTaxableValue},
		Aliases:       invoiceAliases,
	}

	// PortalInvoiceLayout is the B2B sheet of a GSTR-2B download
	PortalInvoiceLayout = &Layout{
		Name:          "gstr2b_b2b",
		Description:   "GSTR-2B B2B sheet",
		SheetExact:    []string{"b2b"},
		SheetKeywords: []string{"b2b"},
		SheetExclude:  []string{"cdnr", "credit", "debit", "cdnra", "b2ba"},
		Required:      []string{ColGSTIN, ColInvoiceNumber, ColInvoiceDate, ColTaxableValue},
		Aliases:       invoiceAliases,
	}

	// PortalInvoiceAmendmentLayout is the B2BA sheet of a GSTR-2B download
	PortalInvoiceAmendmentLayout = &Layout{
		Name:          "gstr2b_b2ba",
		Description:   "GSTR-2B B2BA amendments",
		SheetExact:    []string{"b2ba"},
		SheetKeywords: []string{"b2ba"},
		Optional:      true,
		Required:      []string{ColGSTIN, ColOriginalNumber, ColInvoiceNumber, ColTaxableValue},
		Aliases:       withOriginal(invoiceAliases, "Original Invoice Number", "Original Invoice No", "Original Details"),
	}

	// BooksNoteLayout is a purchase register of credit/debit notes
	BooksNoteLayout = &Layout{
		Name:          "books_notes",
		Description:   "Purchase register credit/debit notes",
		SheetExact:    []string{"cdnr", "cndr"},
		SheetKeywords: []string{"cdnr", "cndr", "credit", "debit"},
		SheetExclude:  []string{"cdnra"},
		Required:      []string{ColGSTIN, ColNoteNumber, ColNoteDate, ColTaxableValue},
		Aliases:       noteAliases,
	}

	// PortalNoteLayout is the B2B-CDNR sheet of a GSTR-2B download
	PortalNoteLayout = &Layout{
		Name:          "gstr2b_cdnr",
		Description:   "GSTR-2B B2B-CDNR sheet",
		SheetExact:    []string{"b2b-cdnr"},
		SheetKeywords: []string{"cdnr"},
		SheetExclude:  []string{"cdnra"},
		Required:      []string{ColGSTIN, ColNoteNumber, ColTaxableValue},
		Aliases:       noteAliases,
	}

	// PortalNoteAmendmentLayout is the B2B-CDNRA sheet of a GSTR-2B download
	PortalNoteAmendmentLayout = &Layout{
		Name:          "gstr2b_cdnra",
		Description:   "GSTR-2B B2B-CDNRA amendments",
		SheetExact:    []string{"b2b-cdnra"},
		SheetKeywords: []string{"cdnra"},
		Optional:      true,
		Required:      []string{ColGSTIN, ColOriginalNumber, ColNoteNumber, ColTaxableValue},
		Aliases:       withOriginal(noteAliases, "Original Note Number", "Original Note No", "Original Details"),
	}
)

// GetLayout returns a predefined layout by name
func GetLayout(name string) *Layout {
	for _, l := range ListAvailableLayouts() {
		if strings.EqualFold(strings.TrimSpace(name), l.Name) {
			return l
		}
	}
	return nil
}

// ListAvailableLayouts returns all predefined layouts
func ListAvailableLayouts() []*Layout {
	return []*Layout{
		BooksInvoiceLayout,
		PortalInvoiceLayout,
		PortalInvoiceAmendmentLayout,
		BooksNoteLayout,
		PortalNoteLayout,
		PortalNoteAmendmentLayout,
	}
}
