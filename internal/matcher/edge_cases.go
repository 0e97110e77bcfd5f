package matcher

import (
	"fmt"

	"gst-reconciliation-service/internal/models"
)

// EdgeCaseHandler inspects inputs for situations the cascade resolves silently,
// so they can be surfaced in reports
type EdgeCaseHandler struct {
	Config *Config
}

// NewEdgeCaseHandler creates a new edge case handler
func NewEdgeCaseHandler(config *Config) *EdgeCaseHandler {
	if config == nil {
		config = DefaultConfig()
	}
	return &EdgeCaseHandler{Config: config}
}

// DuplicateGroup is a set of records on one side that share GSTIN and document number
type DuplicateGroup struct {
	GroupID string            `json:"group_id"`
	Side    models.Side       `json:"side"`
	GSTIN   string            `json:"gstin"`
	Number  string            `json:"number"`
	IDs     []models.UniqueID `json:"ids"`
	Records int               `json:"records"`
	Reason  string            `json:"reason"`
}

// AmbiguousKey is a key held by several records on both sides. The cascade pairs
// them by occurrence order, which may not be the pairing the user expects.
type AmbiguousKey struct {
	Key    string `json:"key"`
	Books  int    `json:"books"`
	Portal int    `json:"portal"`
}

// DetectDuplicateNotes finds notes of one side filed more than once under the same
// GSTIN and number. Invoices never qualify since consolidation merges them.
func (ech *EdgeCaseHandler) DetectDuplicateNotes(side models.Side, notes []models.NoteRecord) []DuplicateGroup {
	return detectDuplicates(side, notes, func(r *models.NoteRecord) (string, string) { return r.GSTIN, r.CleanNumber })
}

func detectDuplicates[T models.Record](side models.Side, records []T, key func(*T) (gstin, number string)) []DuplicateGroup {
	idx := newOccurrenceIndex(records, func(r *T) (string, bool) {
		return joinKey(key(r))
	})

	var groups []DuplicateGroup
	for _, k := range idx.Keys() {
		positions := idx.Positions(k)
		if len(positions) < 2 {
			continue
		}

		first := &records[positions[0]]
		gstin, number := key(first)
		ids := make([]models.UniqueID, 0, len(positions))
		for _, i := range positions {
			ids = append(ids, records[i].RecordID())
		}

		groups = append(groups, DuplicateGroup{
			GroupID: fmt.Sprintf("DUP_%s", (*first).RecordID()),
			Side:    side,
			GSTIN:   gstin,
			Number:  number,
			IDs:     ids,
			Records: len(positions),
			Reason:  fmt.Sprintf("%d %s records share number %s", len(positions), side, number),
		})
	}
	return groups
}

// AmbiguousInvoiceKeys reports exact-match keys held by more than one invoice on
// both sides
func (ech *EdgeCaseHandler) AmbiguousInvoiceKeys(books, portal []models.InvoiceRecord) []AmbiguousKey {
	key := func(r *models.InvoiceRecord) (string, bool) { return joinKey(r.GSTIN, r.CleanNumber, r.Date.Key()) }
	return ambiguousKeys(books, portal, key)
}

func ambiguousKeys[T models.Record](books, portal []T, key keyFunc[T]) []AmbiguousKey {
	booksIdx := newOccurrenceIndex(books, key)
	portalIdx := newOccurrenceIndex(portal, key)

	var out []AmbiguousKey
	for _, k := range booksIdx.Keys() {
		b, p := len(booksIdx.Positions(k)), len(portalIdx.Positions(k))
		if p == 0 || (b < 2 && p < 2) {
			continue
		}
		out = append(out, AmbiguousKey{Key: k, Books: b, Portal: p})
	}
	return out
}
