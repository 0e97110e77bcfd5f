package postprocess

import (
	"testing"

	"gst-reconciliation-service/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const gstinA = "27AAAAA0000A1Z5"

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func invoicePair(kind models.OutcomeKind, match models.MatchKind, books, portal models.Amounts) models.InvoiceOutcome {
	b := models.InvoiceRecord{ID: "B_0", GSTIN: gstinA, PartyName: "Acme Traders", InvoiceNumber: "INV-1", Amounts: books}
	p := models.InvoiceRecord{ID: "G_0", GSTIN: gstinA, InvoiceNumber: "INV1", Amounts: portal}
	return models.InvoiceOutcome{Kind: kind, Match: match, Books: &b, Portal: &p}
}

func TestInvoices_TaxErrorReclassification(t *testing.T) {
	p := New(nil)

	tests := []struct {
		name       string
		kind       models.OutcomeKind
		match      models.MatchKind
		portalIGST string
		wantKind   models.OutcomeKind
		wantOrigin models.OutcomeKind
	}{
		{"exact with igst off by two", models.KindExact, models.MatchNone, "178", models.KindTaxError, models.KindExact},
		{"exact with igst off by half", models.KindExact, models.MatchNone, "179.50", models.KindExact, 0},
		{"date mismatch with igst off by two", models.KindMismatch, models.MatchDateMismatch, "178", models.KindTaxError, models.KindMismatch},
		{"value mismatch is never a tax error", models.KindMismatch, models.MatchValueMismatch, "178", models.KindMismatch, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := invoicePair(tt.kind, tt.match,
				models.Amounts{TaxableValue: dec("1000.50"), IGST: dec("180")},
				models.Amounts{TaxableValue: dec("1000"), IGST: dec(tt.portalIGST)},
			)
			out := p.Invoices([]models.InvoiceOutcome{o}, nil)
			require.Len(t, out, 1)
			assert.Equal(t, tt.wantKind, out[0].Kind)
			assert.Equal(t, tt.wantOrigin, out[0].Origin)
			if tt.wantKind == models.KindTaxError {
				assert.Equal(t, models.StatusTaxError, out[0].Status)
			}
		})
	}
}

func TestInvoices_TaxableThresholdIsStrict(t *testing.T) {
	o := invoicePair(models.KindExact, models.MatchNone,
		models.Amounts{TaxableValue: dec("1001"), IGST: dec("180")},
		models.Amounts{TaxableValue: dec("1000"), IGST: dec("170")},
	)
	out := New(nil).Invoices([]models.InvoiceOutcome{o}, nil)
	assert.Equal(t, models.KindExact, out[0].Kind)
}

func TestInvoices_DiffAndFinalTaxable(t *testing.T) {
	o := invoicePair(models.KindMismatch, models.MatchValueMismatch,
		models.Amounts{TaxableValue: dec("10000"), CGST: dec("900.005")},
		models.Amounts{TaxableValue: dec("10050"), CGST: dec("904.5")},
	)
	unmatched := models.InvoiceOutcome{
		Kind:   models.KindUnmatchedPortal,
		Portal: &models.InvoiceRecord{ID: "G_1", GSTIN: gstinA, Amounts: models.Amounts{TaxableValue: dec("250.75")}},
	}

	out := New(nil).Invoices([]models.InvoiceOutcome{o, unmatched}, nil)

	assert.True(t, out[0].Diff.TaxableValue.Equal(dec("-50")), "taxable diff %s", out[0].Diff.TaxableValue)
	assert.True(t, out[0].Diff.CGST.Equal(dec("-4.5")), "cgst diff %s", out[0].Diff.CGST)
	assert.True(t, out[0].FinalTaxable.Equal(dec("10000")))

	assert.True(t, out[1].Diff.TaxableValue.Equal(dec("-250.75")))
	assert.True(t, out[1].FinalTaxable.Equal(dec("250.75")))
	assert.Equal(t, gstinA, out[1].GSTIN)
}

func TestInvoices_PartyNameFallback(t *testing.T) {
	names := NewNameTable()
	names.Add("29BBBBB1111B1Z3", "Beta Supplies")

	outcomes := []models.InvoiceOutcome{
		{Kind: models.KindUnmatchedBooks, Books: &models.InvoiceRecord{ID: "B_0", GSTIN: gstinA, PartyName: "Acme"}},
		{Kind: models.KindUnmatchedPortal, Portal: &models.InvoiceRecord{ID: "G_0", GSTIN: gstinA, PartyName: "Acme Portal"}},
		{Kind: models.KindUnmatchedPortal, Portal: &models.InvoiceRecord{ID: "G_1", GSTIN: "29BBBBB1111B1Z3"}},
		{Kind: models.KindUnmatchedPortal, Portal: &models.InvoiceRecord{ID: "G_2", GSTIN: "33CCCCC2222C1Z1", PartyName: UnknownParty}},
	}

	out := New(nil).Invoices(outcomes, names)

	want := []string{"Acme", "Acme Portal", "Beta Supplies", UnknownParty}
	for i, o := range out {
		assert.Equal(t, want[i], o.PartyName, "outcome %d", i)
	}
}

func TestInvoices_InputsNotModified(t *testing.T) {
	o := invoicePair(models.KindExact, models.MatchNone,
		models.Amounts{TaxableValue: dec("1000"), IGST: dec("180")},
		models.Amounts{TaxableValue: dec("1000"), IGST: dec("170")},
	)
	in := []models.InvoiceOutcome{o}

	out := New(nil).Invoices(in, nil)

	assert.Equal(t, models.KindTaxError, out[0].Kind)
	assert.Equal(t, models.KindExact, in[0].Kind)
	assert.Empty(t, in[0].PartyName)
}

func TestNotes_ITCImpact(t *testing.T) {
	credit := &models.NoteRecord{ID: "B_0", GSTIN: gstinA, NoteType: models.NoteCredit, Amounts: models.Amounts{TaxableValue: dec("1000.456")}}
	debit := &models.NoteRecord{ID: "B_1", GSTIN: gstinA, NoteType: models.NoteDebit, Amounts: models.Amounts{TaxableValue: dec("500")}}
	zeroBooks := &models.NoteRecord{ID: "B_2", GSTIN: gstinA, NoteType: models.NoteDebit}
	portalCredit := &models.NoteRecord{ID: "G_0", GSTIN: gstinA, NoteType: models.NoteCredit, Amounts: models.Amounts{TaxableValue: dec("300")}}

	tests := []struct {
		name string
		o    models.NoteOutcome
		want string
	}{
		{"credit books", models.NoteOutcome{Kind: models.KindUnmatchedBooks, Books: credit}, "-1000.46"},
		{"debit books", models.NoteOutcome{Kind: models.KindUnmatchedBooks, Books: debit}, "500"},
		{"portal credit wins sign", models.NoteOutcome{Kind: models.KindMismatch, Match: models.MatchTypeValue, Books: debit, Portal: portalCredit}, "-500"},
		{"zero books falls back to portal", models.NoteOutcome{Kind: models.KindMismatch, Match: models.MatchTaxableMismatch, Books: zeroBooks, Portal: portalCredit}, "-300"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ITCImpact(tt.o)
			assert.True(t, got.Equal(dec(tt.want)), "got %s, want %s", got, tt.want)
		})
	}
}

func TestNotes_TaxErrorOnlyOnExact(t *testing.T) {
	b := models.NoteRecord{ID: "B_0", GSTIN: gstinA, NoteType: models.NoteCredit, Amounts: models.Amounts{TaxableValue: dec("100"), SGST: dec("9")}}
	p := models.NoteRecord{ID: "G_0", GSTIN: gstinA, NoteType: models.NoteCredit, Amounts: models.Amounts{TaxableValue: dec("100"), SGST: dec("2")}}

	outcomes := []models.NoteOutcome{
		{Kind: models.KindExact, Books: &b, Portal: &p},
		{Kind: models.KindMismatch, Match: models.MatchDateMismatch, Books: &b, Portal: &p},
	}

	out := New(nil).Notes(outcomes, nil)

	assert.Equal(t, models.KindTaxError, out[0].Kind)
	assert.Equal(t, models.StatusNoteTaxError, out[0].Status)
	assert.Equal(t, models.KindMismatch, out[1].Kind)
	assert.True(t, out[0].ITCImpact.Equal(dec("-100")))
}

func TestBuildNameTable(t *testing.T) {
	books := []models.NoteRecord{
		{ID: "B_0", GSTIN: gstinA},
		{ID: "B_1", GSTIN: gstinA, TradeName: "Acme Books"},
	}
	portal := []models.NoteRecord{
		{ID: "G_0", GSTIN: gstinA, TradeName: "Acme Portal"},
		{ID: "G_1", GSTIN: "29BBBBB1111B1Z3", TradeName: "  Beta  "},
	}

	table := BuildNameTable(books, portal)

	assert.Equal(t, 2, table.Len())
	name, ok := table.Lookup(gstinA)
	assert.True(t, ok)
	assert.Equal(t, "Acme Books", name)
	name, _ = table.Lookup("29BBBBB1111B1Z3")
	assert.Equal(t, "Beta", name)

	_, ok = (*NameTable)(nil).Lookup(gstinA)
	assert.False(t, ok)
}

func TestBackfillTradeNames(t *testing.T) {
	names := BuildNameTable[models.NoteRecord](nil, []models.NoteRecord{{ID: "G_0", GSTIN: gstinA, TradeName: "Acme"}})
	books := []models.NoteRecord{
		{ID: "B_0", GSTIN: gstinA},
		{ID: "B_1", GSTIN: gstinA, TradeName: "Own Name"},
		{ID: "B_2", GSTIN: "29BBBBB1111B1Z3"},
	}

	out := BackfillTradeNames(books, names)

	assert.Equal(t, "Acme", out[0].TradeName)
	assert.Equal(t, "Own Name", out[1].TradeName)
	assert.Empty(t, out[2].TradeName)
	assert.Empty(t, books[0].TradeName, "input must not be modified")
}
