package postprocess

import (
	"strings"

	"gst-reconciliation-service/internal/models"
)

// UnknownParty is the party name used when no side and no table entry knows one
const UnknownParty = "Unknown"

// NameTable maps a GSTIN to the party name first seen for it. A table belongs to a
// single run.
type NameTable struct {
	names map[string]string
}

// NewNameTable creates an empty table
func NewNameTable() *NameTable {
	return &NameTable{names: make(map[string]string)}
}

// BuildNameTable collects names from both full inputs, Books first. The first
// non-empty name of a GSTIN wins.
func BuildNameTable[T models.Record](books, portal []T) *NameTable {
	t := NewNameTable()
	for _, r := range books {
		t.Add(r.SupplierGSTIN(), r.Party())
	}
	for _, r := range portal {
		t.Add(r.SupplierGSTIN(), r.Party())
	}
	return t
}

// Add records name for gstin unless the GSTIN already has one
func (t *NameTable) Add(gstin, name string) {
	name = strings.TrimSpace(name)
	if gstin == "" || !usableName(name) {
		return
	}
	if _, ok := t.names[gstin]; !ok {
		t.names[gstin] = name
	}
}

// Lookup returns the name recorded for gstin
func (t *NameTable) Lookup(gstin string) (string, bool) {
	if t == nil {
		return "", false
	}
	name, ok := t.names[gstin]
	return name, ok
}

// Len returns the number of GSTINs with a name
func (t *NameTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.names)
}

// BackfillTradeNames returns a copy of the Books notes where an empty trade name is
// taken from the table
func BackfillTradeNames(books []models.NoteRecord, names *NameTable) []models.NoteRecord {
	out := make([]models.NoteRecord, len(books))
	copy(out, books)
	for i := range out {
		if usableName(out[i].TradeName) {
			continue
		}
		if name, ok := names.Lookup(out[i].GSTIN); ok {
			out[i].TradeName = name
		}
	}
	return out
}

func usableName(name string) bool {
	return name != "" && name != UnknownParty
}
