package matcher

import (
	"reflect"
	"testing"

	"gst-reconciliation-service/internal/models"
)

func createTestInvoices() []models.InvoiceRecord {
	return []models.InvoiceRecord{
		invoice("B_0", gstinA, "INV-1", "2025-04-01", "100"),
		invoice("B_1", gstinB, "INV-1", "2025-04-01", "200"),
		invoice("B_2", gstinA, "INV-1", "2025-04-01", "300"),
		invoice("B_3", gstinA, "INV-2", "", "400"),
	}
}

func exactKey(r *models.InvoiceRecord) (string, bool) {
	return joinKey(r.GSTIN, r.CleanNumber, r.Date.Key())
}

func TestNewOccurrenceIndex(t *testing.T) {
	idx := newOccurrenceIndex(createTestInvoices(), exactKey)

	if idx.Len() != 2 {
		t.Fatalf("Expected 2 distinct keys, got %d", idx.Len())
	}

	wantKeys := []string{gstinA + "|INV1|20250401", gstinB + "|INV1|20250401"}
	if !reflect.DeepEqual(idx.Keys(), wantKeys) {
		t.Errorf("Expected keys in first-seen order %v, got %v", wantKeys, idx.Keys())
	}

	if got := idx.Positions(wantKeys[0]); !reflect.DeepEqual(got, []int{0, 2}) {
		t.Errorf("Expected positions [0 2], got %v", got)
	}
}

func TestOccurrenceIndex_Occurrence(t *testing.T) {
	idx := newOccurrenceIndex(createTestInvoices(), exactKey)
	key := gstinA + "|INV1|20250401"

	tests := []struct {
		n     int
		want  int
		found bool
	}{
		{0, 0, true},
		{1, 2, true},
		{2, 0, false},
		{-1, 0, false},
	}

	for _, tt := range tests {
		got, found := idx.Occurrence(key, tt.n)
		if found != tt.found || (found && got != tt.want) {
			t.Errorf("Occurrence(%d) = %d, %t; want %d, %t", tt.n, got, found, tt.want, tt.found)
		}
	}

	if _, found := idx.Occurrence("missing", 0); found {
		t.Error("Expected no occurrence for an unknown key")
	}
}

func TestOccurrenceIndex_SkipsUnusableKeys(t *testing.T) {
	idx := newOccurrenceIndex(createTestInvoices(), exactKey)

	for _, k := range idx.Keys() {
		for _, pos := range idx.Positions(k) {
			if pos == 3 {
				t.Fatalf("Undated record indexed under %q", k)
			}
		}
	}
}

func TestJoinKey(t *testing.T) {
	tests := []struct {
		parts []string
		want  string
		ok    bool
	}{
		{[]string{"A", "B"}, "A|B", true},
		{[]string{"A"}, "A", true},
		{[]string{"A", ""}, "", false},
		{[]string{"", "B", "C"}, "", false},
	}

	for _, tt := range tests {
		got, ok := joinKey(tt.parts...)
		if got != tt.want || ok != tt.ok {
			t.Errorf("joinKey(%q) = %q, %t; want %q, %t", tt.parts, got, ok, tt.want, tt.ok)
		}
	}
}

func BenchmarkOccurrenceIndex(b *testing.B) {
	books, _ := buildCascadeDataset(5000)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		newOccurrenceIndex(books, exactKey)
	}
}
