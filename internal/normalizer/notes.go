package normalizer

import (
	"strings"

	"gst-reconciliation-service/internal/models"
	"gst-reconciliation-service/pkg/logger"
)

// AssignNoteIDs issues unique ids to raw note rows that do not have one
func AssignNoteIDs(rows []models.RawNote, side models.Side) ([]models.RawNote, error) {
	return assignIDs(rows, side, func(r *models.RawNote) *models.UniqueID { return &r.ID })
}

// Notes normalizes one side of the credit/debit note register. Amounts become
// magnitudes, the note direction is read from the side's own vocabulary, and notes
// are never consolidated.
func (n *Normalizer) Notes(rows []models.RawNote, side models.Side) (*NoteResult, error) {
	withIDs, err := AssignNoteIDs(rows, side)
	if err != nil {
		return nil, err
	}

	result := &NoteResult{Side: side, RawRows: len(rows)}
	result.Records = make([]models.NoteRecord, 0, len(withIDs))

	for _, raw := range withIDs {
		rec := n.noteRecord(raw, side)

		switch {
		case !n.ValidGSTIN(rec.GSTIN):
			result.Exclusions = append(result.Exclusions, exclusion(side, raw.Line, rec.ID, rec.GSTIN, rec.NoteNumber, models.ExcludedInvalidGSTIN))
		case side == models.SideBooks && n.config.RequireBooksNoteDate && !rec.Date.Valid:
			result.Exclusions = append(result.Exclusions, exclusion(side, raw.Line, rec.ID, rec.GSTIN, rec.NoteNumber, models.ExcludedMissingDate))
		default:
			result.Records = append(result.Records, rec)
		}
	}

	n.logger.WithFields(logger.Fields{
		"side":     side,
		"raw_rows": result.RawRows,
		"excluded": len(result.Exclusions),
	}).Debug("Normalized notes")

	return result, nil
}

func (n *Normalizer) noteRecord(raw models.RawNote, side models.Side) models.NoteRecord {
	number := cleanText(raw.NoteNumber)
	docType := strings.ToUpper(cleanText(raw.DocType))

	var noteType models.NoteType
	if side == models.SideBooks && docType != "" {
		noteType = models.ParseBooksDocType(docType)
	} else {
		noteType = models.ParsePortalNoteType(raw.NoteType)
	}

	amounts := models.Amounts{
		TaxableValue: ParseAmount(raw.TaxableValue),
		IGST:         ParseAmount(raw.IGST),
		CGST:         ParseAmount(raw.CGST),
		SGST:         ParseAmount(raw.SGST),
		Cess:         ParseAmount(raw.Cess),
	}

	return models.NoteRecord{
		ID:             raw.ID,
		GSTIN:          NormalizeGSTIN(raw.GSTIN),
		TradeName:      cleanText(raw.TradeName),
		NoteNumber:     number,
		CleanNumber:    CleanNumber(number),
		Date:           n.ParseDate(raw.NoteDate),
		NoteType:       noteType,
		DocType:        docType,
		Amounts:        amounts.Magnitude(),
		OriginalNumber: cleanText(raw.OriginalNumber),
	}
}
