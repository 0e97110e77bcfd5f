package matcher

import (
	"reflect"
	"testing"

	"gst-reconciliation-service/internal/models"
)

func TestNewEdgeCaseHandler(t *testing.T) {
	handler := NewEdgeCaseHandler(nil)
	if handler == nil || handler.Config == nil {
		t.Fatal("Expected handler with default config")
	}
}

func TestEdgeCaseHandler_DetectDuplicateNotes(t *testing.T) {
	handler := NewEdgeCaseHandler(DefaultConfig())

	notes := []models.NoteRecord{
		note("G_0", gstinA, "CN-1", "2025-04-01", models.NoteCredit, "100"),
		note("G_1", gstinA, "CN-2", "2025-04-02", models.NoteCredit, "200"),
		note("G_2", gstinA, "cn1", "2025-04-03", models.NoteCredit, "100"),
		note("G_3", gstinB, "CN-1", "2025-04-01", models.NoteDebit, "100"),
	}

	groups := handler.DetectDuplicateNotes(models.SidePortal, notes)
	if len(groups) != 1 {
		t.Fatalf("Expected 1 duplicate group, got %d", len(groups))
	}

	g := groups[0]
	if g.GSTIN != gstinA || g.Number != "CN1" {
		t.Errorf("Unexpected group key %s/%s", g.GSTIN, g.Number)
	}
	if !reflect.DeepEqual(g.IDs, []models.UniqueID{"G_0", "G_2"}) {
		t.Errorf("Expected ids [G_0 G_2], got %v", g.IDs)
	}
	if g.GroupID != "DUP_G_0" || g.Records != 2 || g.Side != models.SidePortal {
		t.Errorf("Unexpected group %+v", g)
	}
}

func TestEdgeCaseHandler_DetectDuplicateNotes_None(t *testing.T) {
	handler := NewEdgeCaseHandler(nil)

	notes := []models.NoteRecord{
		note("B_0", gstinA, "CN-1", "2025-04-01", models.NoteCredit, "100"),
		note("B_1", gstinA, "CN-2", "2025-04-01", models.NoteCredit, "100"),
	}
	if groups := handler.DetectDuplicateNotes(models.SideBooks, notes); len(groups) != 0 {
		t.Errorf("Expected no duplicates, got %+v", groups)
	}
}

func TestEdgeCaseHandler_AmbiguousInvoiceKeys(t *testing.T) {
	handler := NewEdgeCaseHandler(nil)

	books := []models.InvoiceRecord{
		invoice("B_0", gstinA, "INV-1", "2025-04-01", "100"),
		invoice("B_1", gstinA, "INV-1", "2025-04-01", "200"),
		invoice("B_2", gstinA, "INV-2", "2025-04-01", "300"),
		invoice("B_3", gstinB, "INV-3", "2025-04-01", "300"),
		invoice("B_4", gstinB, "INV-3", "2025-04-01", "300"),
	}
	portal := []models.InvoiceRecord{
		invoice("G_0", gstinA, "INV-1", "2025-04-01", "200"),
		invoice("G_1", gstinA, "INV-2", "2025-04-01", "300"),
	}

	got := handler.AmbiguousInvoiceKeys(books, portal)
	want := []AmbiguousKey{{Key: gstinA + "|INV1|20250401", Books: 2, Portal: 1}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("AmbiguousInvoiceKeys() = %+v, want %+v", got, want)
	}
}
