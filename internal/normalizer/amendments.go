package normalizer

import (
	"gst-reconciliation-service/internal/models"
)

// AmendmentStats counts the portal rows removed and added by an amendment pass
type AmendmentStats struct {
	Deleted int `json:"deleted"`
	Added   int `json:"added"`
}

type amendAccess[T any] struct {
	id     func(*T) *models.UniqueID
	gstin  func(*T) *string
	number func(*T) string
	assign func([]T, models.Side) ([]T, error)
}

// applyAmendments drops every portal row filed under an amended (GSTIN, number) and
// appends the revised rows. Existing rows keep their ids; revised rows without an id
// continue the portal numbering so earlier links stay valid.
func applyAmendments[T any](portal []T, amendments []models.Amendment[T], acc amendAccess[T]) ([]T, AmendmentStats, error) {
	var stats AmendmentStats

	rows, err := acc.assign(portal, models.SidePortal)
	if err != nil {
		return nil, stats, err
	}
	if len(amendments) == 0 {
		return rows, stats, nil
	}

	kill := make(map[string]bool, len(amendments))
	for _, a := range amendments {
		kill[amendmentKey(a.GSTIN, a.OriginalNumber)] = true
	}

	out := make([]T, 0, len(rows)+len(amendments))
	for i := range rows {
		if kill[amendmentKey(*acc.gstin(&rows[i]), acc.number(&rows[i]))] {
			stats.Deleted++
			continue
		}
		out = append(out, rows[i])
	}

	next := len(rows)
	for _, a := range amendments {
		revised := a.Revised
		if *acc.gstin(&revised) == "" {
			*acc.gstin(&revised) = a.GSTIN
		}
		if acc.id(&revised).IsZero() {
			*acc.id(&revised) = models.NewUniqueID(models.SidePortal, next)
			next++
		}
		out = append(out, revised)
		stats.Added++
	}

	// revised rows may collide with ids supplied by the caller
	if _, err := acc.assign(out, models.SidePortal); err != nil {
		return nil, stats, err
	}

	return out, stats, nil
}

func amendmentKey(gstin, number string) string {
	return NormalizeGSTIN(gstin) + "|" + CleanNumber(cleanText(number))
}

// ApplyInvoiceAmendments applies B2BA amendments to the portal invoice rows
func ApplyInvoiceAmendments(portal []models.RawInvoice, amendments []models.Amendment[models.RawInvoice]) ([]models.RawInvoice, AmendmentStats, error) {
	return applyAmendments(portal, amendments, amendAccess[models.RawInvoice]{
		id:     func(r *models.RawInvoice) *models.UniqueID { return &r.ID },
		gstin:  func(r *models.RawInvoice) *string { return &r.GSTIN },
		number: func(r *models.RawInvoice) string { return r.InvoiceNumber },
		assign: AssignInvoiceIDs,
	})
}

// ApplyNoteAmendments applies CDNRA amendments to the portal note rows
func ApplyNoteAmendments(portal []models.RawNote, amendments []models.Amendment[models.RawNote]) ([]models.RawNote, AmendmentStats, error) {
	return applyAmendments(portal, amendments, amendAccess[models.RawNote]{
		id:     func(r *models.RawNote) *models.UniqueID { return &r.ID },
		gstin:  func(r *models.RawNote) *string { return &r.GSTIN },
		number: func(r *models.RawNote) string { return r.NoteNumber },
		assign: AssignNoteIDs,
	})
}
