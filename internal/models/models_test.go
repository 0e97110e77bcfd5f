package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestNewUniqueID(t *testing.T) {
	if got := NewUniqueID(SideBooks, 3); got != "B_3" {
		t.Errorf("expected B_3, got %s", got)
	}
	if got := NewUniqueID(SidePortal, 0); got != "G_0" {
		t.Errorf("expected G_0, got %s", got)
	}
	if !UniqueID("").IsZero() {
		t.Error("expected empty id to be zero")
	}
}

func TestDocDateKeys(t *testing.T) {
	d := NewDocDate(time.Date(2025, time.April, 1, 15, 30, 0, 0, time.Local))
	if d.Key() != "20250401" {
		t.Errorf("expected 20250401, got %s", d.Key())
	}
	if d.YearKey() != "2025" {
		t.Errorf("expected 2025, got %s", d.YearKey())
	}
	if d.String() != "01-04-2025" {
		t.Errorf("expected 01-04-2025, got %s", d.String())
	}

	invalid := DocDate{Raw: "sometime in May"}
	if invalid.Key() != "" || invalid.YearKey() != "" {
		t.Error("expected empty keys for an invalid date")
	}
	if invalid.String() != "sometime in May" {
		t.Errorf("expected raw text to be kept, got %s", invalid.String())
	}
}

func TestDocDateMarshalJSON(t *testing.T) {
	tests := []struct {
		name string
		date DocDate
		want string
	}{
		{"valid", NewDocDate(time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)), `"2024-03-09"`},
		{"raw", DocDate{Raw: "31/02/2024"}, `"31/02/2024"`},
		{"empty", DocDate{}, `null`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := json.Marshal(tt.date)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(b) != tt.want {
				t.Errorf("expected %s, got %s", tt.want, b)
			}
		})
	}
}

func TestAmountsArithmetic(t *testing.T) {
	a := Amounts{TaxableValue: decimal.NewFromInt(600), IGST: decimal.NewFromInt(108)}
	b := Amounts{TaxableValue: decimal.NewFromInt(400), IGST: decimal.NewFromInt(72)}

	sum := a.Add(b)
	if !sum.TaxableValue.Equal(decimal.NewFromInt(1000)) || !sum.IGST.Equal(decimal.NewFromInt(180)) {
		t.Errorf("unexpected sum %+v", sum)
	}

	diff := b.Sub(a)
	if !diff.TaxableValue.Equal(decimal.NewFromInt(-200)) {
		t.Errorf("expected -200, got %s", diff.TaxableValue)
	}

	mag := Amounts{TaxableValue: decimal.RequireFromString("-1234.567")}.Magnitude()
	if !mag.TaxableValue.Equal(decimal.RequireFromString("1234.57")) {
		t.Errorf("expected 1234.57, got %s", mag.TaxableValue)
	}

	if !sum.Total().Equal(decimal.NewFromInt(1180)) {
		t.Errorf("expected total 1180, got %s", sum.Total())
	}
}

func TestWithinTolerance(t *testing.T) {
	tol := decimal.NewFromInt(5)
	tests := []struct {
		a, b string
		want bool
	}{
		{"1000", "995", true},
		{"1000", "994.99", false},
		{"995", "1000", true},
		{"1000", "1000", true},
	}
	for _, tt := range tests {
		got := WithinTolerance(decimal.RequireFromString(tt.a), decimal.RequireFromString(tt.b), tol)
		if got != tt.want {
			t.Errorf("WithinTolerance(%s, %s) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestRoundUnits(t *testing.T) {
	tests := map[string]int64{
		"1000.49": 1000,
		"1000.5":  1000,
		"1001.5":  1002,
		"999.51":  1000,
		"0":       0,
	}
	for in, want := range tests {
		if got := RoundUnits(decimal.RequireFromString(in)); got != want {
			t.Errorf("RoundUnits(%s) = %d, want %d", in, got, want)
		}
	}
}

func TestNoteTypeParsing(t *testing.T) {
	portal := map[string]NoteType{
		"Credit Note": NoteCredit,
		" debit note": NoteDebit,
		"C":           NoteCredit,
		"refund":      NoteUnknown,
	}
	for in, want := range portal {
		if got := ParsePortalNoteType(in); got != want {
			t.Errorf("ParsePortalNoteType(%q) = %q, want %q", in, got, want)
		}
	}

	books := map[string]NoteType{
		"D":           NoteCredit,
		"c":           NoteDebit,
		"Credit Note": NoteCredit,
		"":            NoteUnknown,
	}
	for in, want := range books {
		if got := ParseBooksDocType(in); got != want {
			t.Errorf("ParseBooksDocType(%q) = %q, want %q", in, got, want)
		}
	}

	if NoteUnknown.String() != "unknown" {
		t.Errorf("unexpected unknown label %s", NoteUnknown.String())
	}
}

func TestOutcomeKindText(t *testing.T) {
	for kind := KindManual; kind <= KindUnmatchedPortal; kind++ {
		text, err := kind.MarshalText()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var back OutcomeKind
		if err := back.UnmarshalText(text); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if back != kind {
			t.Errorf("expected %s, got %s", kind, back)
		}
	}

	var k OutcomeKind
	if err := k.UnmarshalText([]byte("matched-ish")); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestOutcomeAccessors(t *testing.T) {
	books := InvoiceRecord{ID: "B_1", Amounts: Amounts{TaxableValue: decimal.NewFromInt(10)}}
	o := InvoiceOutcome{Kind: KindUnmatchedBooks, Books: &books}

	if o.BooksID() != "B_1" || o.PortalID() != "" {
		t.Errorf("unexpected ids %s / %s", o.BooksID(), o.PortalID())
	}
	if !o.PortalValues().TaxableValue.IsZero() {
		t.Error("expected zero portal values")
	}
	if !o.NeedsAttention() {
		t.Error("expected unmatched outcome to need attention")
	}
	if o.Kind.IsPaired() {
		t.Error("unmatched outcome must not be paired")
	}

	b, err := json.Marshal(o)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(b), `"kind":"unmatched_books"`) {
		t.Errorf("expected kind tag in JSON, got %s", b)
	}
	if strings.Contains(string(b), `"origin"`) {
		t.Errorf("expected origin to be omitted, got %s", b)
	}
}

func TestScopeIsValid(t *testing.T) {
	for _, s := range []Scope{ScopeInvoices, ScopeNotes} {
		if !s.IsValid() {
			t.Errorf("Expected %q to be valid", s)
		}
	}
	if Scope("cdnr").IsValid() {
		t.Error("Expected unknown scope to be invalid")
	}
}
