// Command register_generator writes sample purchase registers and GSTR-2B
// statements for exercising gst-reconciler by hand.
//
//	go run ./testdata/generators -output-dir /tmp/gst -vendors 20 -invoices 500 -seed 42
//
// Every Books invoice is copied to the Portal side with one deliberate difference
// drawn from the scenario mix (none, reformatted number, shifted date, tax split
// error, value difference, missing, amended through B2BA). A share of Portal-only
// invoices and a note register built the same way are added.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// Scenario is the difference applied to the Portal copy of a Books document
type Scenario string

const (
	ScenarioExact       Scenario = "exact"
	ScenarioNumber      Scenario = "number_format"
	ScenarioDate        Scenario = "date_shift"
	ScenarioTaxSplit    Scenario = "tax_split"
	ScenarioValue       Scenario = "value_difference"
	ScenarioMissing     Scenario = "missing_in_portal"
	ScenarioAmended     Scenario = "amended"
	ScenarioPortalExtra Scenario = "portal_only"
)

// scenarioMix is the cumulative share of each scenario, in percent
var scenarioMix = []struct {
	scenario Scenario
	upTo     int
}{
	{ScenarioExact, 60},
	{ScenarioNumber, 70},
	{ScenarioDate, 78},
	{ScenarioTaxSplit, 83},
	{ScenarioValue, 88},
	{ScenarioMissing, 95},
	{ScenarioAmended, 100},
}

// Vendor is a supplier GSTIN with its trade name
type Vendor struct {
	GSTIN string
	Name  string
	// Interstate vendors charge IGST, the rest CGST and SGST
	Interstate bool
}

// Document is one invoice or note row
type Document struct {
	Vendor   Vendor
	Number   string
	Date     time.Time
	Taxable  decimal.Decimal
	IGST     decimal.Decimal
	CGST     decimal.Decimal
	SGST     decimal.Decimal
	NoteType string
}

// Amendment is a B2BA or CDNRA row revising an earlier Portal document
type Amendment struct {
	OriginalNumber string
	Revised        Document
}

// Registers is everything one run writes
type Registers struct {
	BooksInvoices     []Document
	PortalInvoices    []Document
	InvoiceAmendments []Amendment
	BooksNotes        []Document
	PortalNotes       []Document
	Scenarios         map[Scenario]int
}

// RegisterGenerator generates matching Books and Portal registers
type RegisterGenerator struct {
	Vendors   int
	Invoices  int
	Notes     int
	StartDate time.Time
	EndDate   time.Time
	HomeState string

	rng *rand.Rand
}

var states = []string{"27", "29", "33", "07", "24", "36", "09", "19"}

var nameParts = []string{"Shree", "Ganesh", "Sai", "Om", "Balaji", "Krishna", "Metro", "Prime", "National", "Royal"}
var nameKinds = []string{"Traders", "Enterprises", "Industries", "Agencies", "Steel", "Polymers", "Logistics", "Pharma"}

func main() {
	var (
		outputDir = flag.String("output-dir", "generated", "Output directory for the registers")
		vendors   = flag.Int("vendors", 15, "Number of suppliers")
		invoices  = flag.Int("invoices", 300, "Number of Books invoices")
		notes     = flag.Int("notes", 40, "Number of Books credit/debit notes")
		startDate = flag.String("start-date", "2025-04-01", "First document date (YYYY-MM-DD)")
		endDate   = flag.String("end-date", "2025-06-30", "Last document date (YYYY-MM-DD)")
		format    = flag.String("format", "xlsx", "Output format: xlsx or csv")
		seed      = flag.Int64("seed", time.Now().UnixNano(), "Random seed for reproducible generation")
	)
	flag.Parse()

	start, err := time.Parse("2006-01-02", *startDate)
	if err != nil {
		log.Fatalf("Invalid start date: %v", err)
	}
	end, err := time.Parse("2006-01-02", *endDate)
	if err != nil {
		log.Fatalf("Invalid end date: %v", err)
	}
	if !end.After(start) {
		log.Fatalf("End date must be after start date")
	}

	generator := &RegisterGenerator{
		Vendors:   *vendors,
		Invoices:  *invoices,
		Notes:     *notes,
		StartDate: start,
		EndDate:   end,
		HomeState: "27",
		rng:       rand.New(rand.NewSource(*seed)),
	}

	registers := generator.Generate()

	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}

	switch *format {
	case "csv":
		err = registers.WriteCSV(*outputDir)
	case "xlsx":
		err = registers.WriteXLSX(*outputDir)
	default:
		log.Fatalf("Unknown format %q, use xlsx or csv", *format)
	}
	if err != nil {
		log.Fatalf("Failed to write registers: %v", err)
	}

	fmt.Printf("Generated %d Books / %d Portal invoices, %d amendments, %d Books / %d Portal notes in %s\n",
		len(registers.BooksInvoices), len(registers.PortalInvoices), len(registers.InvoiceAmendments),
		len(registers.BooksNotes), len(registers.PortalNotes), *outputDir)
	for _, s := range scenarioMix {
		fmt.Printf("  %-18s %d\n", s.scenario, registers.Scenarios[s.scenario])
	}
	fmt.Printf("  %-18s %d\n", ScenarioPortalExtra, registers.Scenarios[ScenarioPortalExtra])
	fmt.Printf("Seed used: %d\n", *seed)
}

// Generate builds both sides of the invoice and note registers
func (g *RegisterGenerator) Generate() *Registers {
	vendors := g.vendors()
	r := &Registers{Scenarios: make(map[Scenario]int)}

	for i := 0; i < g.Invoices; i++ {
		v := vendors[g.rng.Intn(len(vendors))]
		doc := g.document(v, fmt.Sprintf("INV/%s/%04d", strings.ToUpper(v.Name[:3]), i+1))
		r.BooksInvoices = append(r.BooksInvoices, doc)

		scenario := g.pick()
		r.Scenarios[scenario]++
		switch scenario {
		case ScenarioMissing:
			continue
		case ScenarioAmended:
			// filed under a wrong number, corrected through B2BA
			wrong := doc
			wrong.Number = doc.Number + "X"
			r.PortalInvoices = append(r.PortalInvoices, wrong)
			r.InvoiceAmendments = append(r.InvoiceAmendments, Amendment{OriginalNumber: wrong.Number, Revised: doc})
			continue
		}
		r.PortalInvoices = append(r.PortalInvoices, g.mutate(doc, scenario))
	}

	// portal-only invoices, about five percent
	for i := 0; i < g.Invoices/20; i++ {
		v := vendors[g.rng.Intn(len(vendors))]
		r.PortalInvoices = append(r.PortalInvoices, g.document(v, fmt.Sprintf("P-%05d", i+1)))
		r.Scenarios[ScenarioPortalExtra]++
	}

	for i := 0; i < g.Notes; i++ {
		v := vendors[g.rng.Intn(len(vendors))]
		doc := g.document(v, fmt.Sprintf("CN/%04d", i+1))
		doc.NoteType = "Credit Note"
		if g.rng.Intn(4) == 0 {
			doc.Number = fmt.Sprintf("DN/%04d", i+1)
			doc.NoteType = "Debit Note"
		}
		r.BooksNotes = append(r.BooksNotes, doc)

		switch scenario := g.pick(); scenario {
		case ScenarioMissing, ScenarioAmended:
			continue
		default:
			r.PortalNotes = append(r.PortalNotes, g.mutate(doc, scenario))
		}
	}

	return r
}

func (g *RegisterGenerator) vendors() []Vendor {
	out := make([]Vendor, g.Vendors)
	for i := range out {
		state := states[g.rng.Intn(len(states))]
		out[i] = Vendor{
			GSTIN:      fmt.Sprintf("%s%s%04d%s1Z%d", state, g.letters(5), g.rng.Intn(10000), g.letters(1), g.rng.Intn(10)),
			Name:       nameParts[g.rng.Intn(len(nameParts))] + " " + nameKinds[g.rng.Intn(len(nameKinds))],
			Interstate: state != g.HomeState,
		}
	}
	return out
}

func (g *RegisterGenerator) letters(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte('A' + g.rng.Intn(26))
	}
	return string(b)
}

func (g *RegisterGenerator) pick() Scenario {
	n := g.rng.Intn(100)
	for _, s := range scenarioMix {
		if n < s.upTo {
			return s.scenario
		}
	}
	return ScenarioExact
}

func (g *RegisterGenerator) document(v Vendor, number string) Document {
	days := int(g.EndDate.Sub(g.StartDate).Hours() / 24)
	taxable := decimal.NewFromInt(int64(500 + g.rng.Intn(200000))).Div(decimal.NewFromInt(100)).Mul(decimal.NewFromInt(100)).Round(2)
	rate := []int64{5, 12, 18, 28}[g.rng.Intn(4)]

	doc := Document{
		Vendor:  v,
		Number:  number,
		Date:    g.StartDate.AddDate(0, 0, g.rng.Intn(days+1)),
		Taxable: taxable,
	}
	doc.setTax(rate)
	return doc
}

func (d *Document) setTax(rate int64) {
	tax := d.Taxable.Mul(decimal.NewFromInt(rate)).Div(decimal.NewFromInt(100)).Round(2)
	d.IGST, d.CGST, d.SGST = decimal.Zero, decimal.Zero, decimal.Zero
	if d.Vendor.Interstate {
		d.IGST = tax
		return
	}
	d.CGST = tax.Div(decimal.NewFromInt(2)).Round(2)
	d.SGST = tax.Sub(d.CGST)
}

func (g *RegisterGenerator) mutate(doc Document, scenario Scenario) Document {
	out := doc
	switch scenario {
	case ScenarioExact:
		// rupee rounding stays inside the default tolerance
		out.Taxable = doc.Taxable.Add(decimal.NewFromInt(int64(g.rng.Intn(3) - 1)))
	case ScenarioNumber:
		out.Number = strings.NewReplacer("/", "", "-", "").Replace(doc.Number)
	case ScenarioDate:
		out.Date = doc.Date.AddDate(0, 0, 1+g.rng.Intn(5))
	case ScenarioTaxSplit:
		tax := doc.IGST.Add(doc.CGST).Add(doc.SGST)
		if doc.IGST.IsZero() {
			out.IGST, out.CGST, out.SGST = tax, decimal.Zero, decimal.Zero
		} else {
			out.IGST = decimal.Zero
			out.CGST = tax.Div(decimal.NewFromInt(2)).Round(2)
			out.SGST = tax.Sub(out.CGST)
		}
	case ScenarioValue:
		out.Taxable = doc.Taxable.Add(decimal.NewFromInt(int64(50 + g.rng.Intn(500))))
	}
	return out
}

func (d Document) total() decimal.Decimal {
	return d.Taxable.Add(d.IGST).Add(d.CGST).Add(d.SGST)
}

var (
	booksInvoiceHeader  = []string{"GSTIN", "Party Name", "Invoice Number", "Invoice Date", "Taxable Value", "IGST", "CGST", "SGST", "Invoice Value"}
	portalInvoiceHeader = []string{"GSTIN of Supplier", "Trade/Legal name", "Invoice number", "Invoice Date", "Taxable Value (₹)", "Integrated Tax (₹)", "Central Tax (₹)", "State/UT Tax (₹)", "Invoice Value (₹)"}
	amendmentHeader     = append([]string{"Original Invoice Number"}, portalInvoiceHeader...)
	booksNoteHeader     = []string{"GSTIN", "Party Name", "Note Number", "Note Date", "Note Type", "Taxable Value", "IGST", "CGST", "SGST"}
	portalNoteHeader    = []string{"GSTIN of Supplier", "Trade/Legal name", "Note Number", "Note Date", "Note Type", "Taxable Value (₹)", "Integrated Tax (₹)", "Central Tax (₹)", "State/UT Tax (₹)"}
)

func invoiceRow(d Document) []string {
	return []string{d.Vendor.GSTIN, d.Vendor.Name, d.Number, d.Date.Format("02/01/2006"),
		d.Taxable.StringFixed(2), d.IGST.StringFixed(2), d.CGST.StringFixed(2), d.SGST.StringFixed(2), d.total().StringFixed(2)}
}

func noteRow(d Document) []string {
	return []string{d.Vendor.GSTIN, d.Vendor.Name, d.Number, d.Date.Format("02-01-2006"), d.NoteType,
		d.Taxable.StringFixed(2), d.IGST.StringFixed(2), d.CGST.StringFixed(2), d.SGST.StringFixed(2)}
}

func (r *Registers) tables() map[string][][]string {
	t := map[string][][]string{
		"books_invoices": {booksInvoiceHeader},
		"portal_b2b":     {portalInvoiceHeader},
		"portal_b2ba":    {amendmentHeader},
		"books_notes":    {booksNoteHeader},
		"portal_cdnr":    {portalNoteHeader},
	}
	for _, d := range r.BooksInvoices {
		t["books_invoices"] = append(t["books_invoices"], invoiceRow(d))
	}
	for _, d := range r.PortalInvoices {
		t["portal_b2b"] = append(t["portal_b2b"], invoiceRow(d))
	}
	for _, a := range r.InvoiceAmendments {
		t["portal_b2ba"] = append(t["portal_b2ba"], append([]string{a.OriginalNumber}, invoiceRow(a.Revised)...))
	}
	for _, d := range r.BooksNotes {
		t["books_notes"] = append(t["books_notes"], noteRow(d))
	}
	for _, d := range r.PortalNotes {
		t["portal_cdnr"] = append(t["portal_cdnr"], noteRow(d))
	}
	return t
}

// WriteCSV writes one CSV file per register
func (r *Registers) WriteCSV(dir string) error {
	for name, rows := range r.tables() {
		if err := writeCSV(filepath.Join(dir, name+".csv"), rows); err != nil {
			return err
		}
	}
	return nil
}

func writeCSV(filename string, rows [][]string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.WriteAll(rows); err != nil {
		return err
	}
	return writer.Error()
}

// WriteXLSX writes purchase_register.xlsx (Purchase and CDNR sheets) and
// gstr2b.xlsx (B2B, B2BA and B2B-CDNR sheets, each under a title row as the
// portal download has)
func (r *Registers) WriteXLSX(dir string) error {
	t := r.tables()

	books := []sheet{{"Purchase", "", t["books_invoices"]}, {"CDNR", "", t["books_notes"]}}
	if err := writeWorkbook(filepath.Join(dir, "purchase_register.xlsx"), books); err != nil {
		return err
	}

	portal := []sheet{
		{"B2B", "Taxable inward supplies received from registered persons", t["portal_b2b"]},
		{"B2BA", "Amendments to previously filed invoices", t["portal_b2ba"]},
		{"B2B-CDNR", "Debit/Credit notes (Original)", t["portal_cdnr"]},
	}
	return writeWorkbook(filepath.Join(dir, "gstr2b.xlsx"), portal)
}

type sheet struct {
	name  string
	title string
	rows  [][]string
}

func writeWorkbook(filename string, sheets []sheet) error {
	f := excelize.NewFile()
	defer f.Close()

	for i, s := range sheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", s.name); err != nil {
				return err
			}
		} else if _, err := f.NewSheet(s.name); err != nil {
			return err
		}

		row := 1
		if s.title != "" {
			if err := f.SetCellValue(s.name, "A1", s.title); err != nil {
				return err
			}
			row = 3
		}
		for _, values := range s.rows {
			cell, err := excelize.CoordinatesToCellName(1, row)
			if err != nil {
				return err
			}
			if err := f.SetSheetRow(s.name, cell, &values); err != nil {
				return err
			}
			row++
		}
	}

	return f.SaveAs(filename)
}
