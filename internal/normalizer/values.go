package normalizer

import (
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"gst-reconciliation-service/internal/models"

	"github.com/shopspring/decimal"
)

var currencyReplacer = strings.NewReplacer(",", "", " ", "", "\u00a0", "", "₹", "", "Rs.", "", "Rs", "", "INR", "")

// integralNumber matches document numbers that are plain integers, optionally with a
// zero fraction as spreadsheets export them ("82", "0082", "82.0")
var integralNumber = regexp.MustCompile(`^[+-]?[0-9]+(\.0+)?$`)

// parseBounded parses a decimal, refusing text outside models.InAmountRange. Digits are
// counted before parsing so an oversized cell is never expanded.
func parseBounded(v string) (decimal.Decimal, bool) {
	digits := 0
	for i := 0; i < len(v); i++ {
		if v[i] >= '0' && v[i] <= '9' {
			digits++
		}
	}
	if digits == 0 || digits > models.MaxAmountDigits {
		return decimal.Zero, false
	}

	d, err := decimal.NewFromString(v)
	if err != nil || !models.InAmountRange(d) {
		return decimal.Zero, false
	}
	return d, true
}

// ParseAmount converts a numeric-like string with thousands separators or a rupee sign.
// Anything that does not parse, or is out of range, yields zero. "(120.50)" is read as -120.50.
func ParseAmount(s string) decimal.Decimal {
	v := currencyReplacer.Replace(strings.TrimSpace(s))
	if v == "" || v == "-" {
		return decimal.Zero
	}

	negative := false
	if strings.HasPrefix(v, "(") && strings.HasSuffix(v, ")") {
		negative = true
		v = strings.TrimSuffix(strings.TrimPrefix(v, "("), ")")
	}

	d, ok := parseBounded(v)
	if !ok {
		return decimal.Zero
	}
	if negative {
		return d.Neg()
	}
	return d
}

// excelEpoch is day zero of the 1900 date system as used by spreadsheet serials
var excelEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// ParseDate parses a document date day-first. When nothing matches, the raw text is
// kept and the date is marked invalid so date keys skip it.
func (n *Normalizer) ParseDate(s string) models.DocDate {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return models.DocDate{}
	}

	for _, layout := range n.config.DateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return models.NewDocDate(t)
		}
	}

	if n.config.ExcelSerialDates {
		if d, ok := parseBounded(raw); ok {
			days := d.IntPart()
			// 1..2958465 covers 1900-01-01 to 9999-12-31
			if days >= 1 && days <= 2958465 {
				return models.NewDocDate(excelEpoch.AddDate(0, 0, int(days)))
			}
		}
	}

	return models.DocDate{Raw: raw}
}

// CleanNumber normalizes a document number. Integral numbers lose leading zeros and a
// trailing ".0" ("0082" and "82.0" both give "82"); anything else keeps only letters
// and digits, uppercased, so "1e7" stays "1E7".
func CleanNumber(s string) string {
	v := strings.TrimSpace(s)
	if v == "" {
		return ""
	}

	if integralNumber.MatchString(v) {
		if d, err := decimal.NewFromString(v); err == nil {
			return d.Truncate(0).String()
		}
	}

	var b strings.Builder
	for _, r := range v {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}

// DigitsNumber keeps only the digits of CleanNumber(s). "BB/82" gives "82".
func DigitsNumber(s string) string {
	clean := CleanNumber(s)
	var b strings.Builder
	for _, r := range clean {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeGSTIN trims and uppercases a GSTIN
func NormalizeGSTIN(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// ValidGSTIN reports whether a normalized GSTIN has the configured length
func (n *Normalizer) ValidGSTIN(gstin string) bool {
	return utf8.RuneCountInString(gstin) == n.config.GSTINLength
}

// cleanText trims a free-text field and blanks spreadsheet placeholders
func cleanText(s string) string {
	v := strings.TrimSpace(s)
	switch strings.ToLower(v) {
	case "nan", "none", "null", "n/a":
		return ""
	}
	return v
}
