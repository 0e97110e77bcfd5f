package normalizer

import (
	"fmt"

	"gst-reconciliation-service/internal/models"
	"gst-reconciliation-service/pkg/errors"
	"gst-reconciliation-service/pkg/logger"
)

// assignIDs fills in missing unique ids in input order and rejects duplicates.
// Rows that already carry an id keep it.
func assignIDs[T any](rows []T, side models.Side, id func(*T) *models.UniqueID) ([]T, error) {
	out := make([]T, len(rows))
	copy(out, rows)

	seen := make(map[models.UniqueID]int, len(out))
	for i := range out {
		p := id(&out[i])
		if p.IsZero() {
			*p = models.NewUniqueID(side, i)
		}
		if prev, dup := seen[*p]; dup {
			return nil, errors.ReconciliationError(errors.CodeDataInconsistent, "id assignment",
				fmt.Errorf("unique id %s used by rows %d and %d", *p, prev, i)).
				WithContext("side", side)
		}
		seen[*p] = i
	}
	return out, nil
}

// AssignInvoiceIDs issues unique ids to raw invoice rows that do not have one
func AssignInvoiceIDs(rows []models.RawInvoice, side models.Side) ([]models.RawInvoice, error) {
	return assignIDs(rows, side, func(r *models.RawInvoice) *models.UniqueID { return &r.ID })
}

// Invoices normalizes one side of the invoice register. Ids are assigned first, then
// values are cleaned, unusable rows are excluded and split lines are consolidated.
func (n *Normalizer) Invoices(rows []models.RawInvoice, side models.Side) (*InvoiceResult, error) {
	withIDs, err := AssignInvoiceIDs(rows, side)
	if err != nil {
		return nil, err
	}

	result := &InvoiceResult{Side: side, RawRows: len(rows)}
	cleaned := make([]models.InvoiceRecord, 0, len(withIDs))

	for _, raw := range withIDs {
		rec := n.invoiceRecord(raw)

		switch {
		case !n.ValidGSTIN(rec.GSTIN):
			result.Exclusions = append(result.Exclusions, exclusion(side, raw.Line, rec.ID, rec.GSTIN, rec.InvoiceNumber, models.ExcludedInvalidGSTIN))
		case rec.CleanNumber == "":
			result.Exclusions = append(result.Exclusions, exclusion(side, raw.Line, rec.ID, rec.GSTIN, rec.InvoiceNumber, models.ExcludedEmptyNumber))
		default:
			cleaned = append(cleaned, rec)
		}
	}

	result.Records = Consolidate(cleaned)

	n.logger.WithFields(logger.Fields{
		"side":         side,
		"raw_rows":     result.RawRows,
		"excluded":     len(result.Exclusions),
		"consolidated": len(result.Records),
	}).Debug("Normalized invoices")

	return result, nil
}

func (n *Normalizer) invoiceRecord(raw models.RawInvoice) models.InvoiceRecord {
	return models.InvoiceRecord{
		ID:            raw.ID,
		GSTIN:         NormalizeGSTIN(raw.GSTIN),
		PartyName:     cleanText(raw.PartyName),
		InvoiceNumber: cleanText(raw.InvoiceNumber),
		CleanNumber:   CleanNumber(cleanText(raw.InvoiceNumber)),
		DigitsNumber:  DigitsNumber(cleanText(raw.InvoiceNumber)),
		Date:          n.ParseDate(raw.InvoiceDate),
		Amounts: models.Amounts{
			TaxableValue: ParseAmount(raw.TaxableValue),
			IGST:         ParseAmount(raw.IGST),
			CGST:         ParseAmount(raw.CGST),
			SGST:         ParseAmount(raw.SGST),
			Cess:         ParseAmount(raw.Cess),
		},
		InvoiceValue:  ParseAmount(raw.InvoiceValue),
		PlaceOfSupply: cleanText(raw.PlaceOfSupply),
		ReverseCharge: cleanText(raw.ReverseCharge),
		SourceRows:    1,
	}
}

// Consolidate merges invoice lines sharing (GSTIN, CleanNumber). Amounts are summed;
// the id and every other field come from the first line, with empty text fields and
// an unparsed date filled from later lines. Output follows first-seen key order.
func Consolidate(records []models.InvoiceRecord) []models.InvoiceRecord {
	index := make(map[string]int, len(records))
	out := make([]models.InvoiceRecord, 0, len(records))

	for _, rec := range records {
		key := rec.GSTIN + "|" + rec.CleanNumber
		i, ok := index[key]
		if !ok {
			index[key] = len(out)
			out = append(out, rec)
			continue
		}

		merged := &out[i]
		merged.Amounts = merged.Amounts.Add(rec.Amounts)
		merged.InvoiceValue = merged.InvoiceValue.Add(rec.InvoiceValue)
		merged.SourceRows += rec.SourceRows

		if merged.PartyName == "" {
			merged.PartyName = rec.PartyName
		}
		if merged.PlaceOfSupply == "" {
			merged.PlaceOfSupply = rec.PlaceOfSupply
		}
		if merged.ReverseCharge == "" {
			merged.ReverseCharge = rec.ReverseCharge
		}
		// first valid date wins, not first line: an unparsed date counts as missing
		if !merged.Date.Valid && rec.Date.Valid {
			merged.Date = rec.Date
		}
	}

	return out
}

func exclusion(side models.Side, line int, id models.UniqueID, gstin, number string, reason models.ExclusionReason) models.Exclusion {
	return models.Exclusion{
		Side:   side,
		ID:     id,
		Line:   line,
		GSTIN:  gstin,
		Number: number,
		Reason: reason,
	}
}
