package normalizer

import (
	"strings"
	"testing"
	"time"

	"gst-reconciliation-service/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

// quickly fails the test when fn takes longer than a bounded parse ever should
func quickly(t *testing.T, name string, fn func()) {
	t.Helper()
	start := time.Now()
	fn()
	assert.Lessf(t, time.Since(start), 500*time.Millisecond, "%s took too long", name)
}

func TestParseAmountExponentAndSize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1e7", "10000000"},
		{"1E+3", "1000"},
		{"(1e3)", "-1000"},
		{"2.5e-2", "0.025"},
		{"1e50000000", "0"},
		{"1E60000000", "0"},
		{"1e-50000000", "0"},
		{"(1e50000000)", "0"},
		{"1" + strings.Repeat("0", 39), "0"},
		{strings.Repeat("9", 30), strings.Repeat("9", 30)},
		{"0." + strings.Repeat("0", 25) + "1", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var got decimal.Decimal
			quickly(t, "ParseAmount", func() { got = ParseAmount(tt.in) })
			assert.Truef(t, got.Equal(decimal.RequireFromString(tt.want)), "ParseAmount(%q) = %s, want %s", tt.in, got, tt.want)
		})
	}
}

func TestOversizedAmountStaysCheap(t *testing.T) {
	quickly(t, "WithinTolerance", func() {
		books := ParseAmount("1e50000000")
		assert.True(t, books.IsZero())
		assert.False(t, models.WithinTolerance(books, decimal.RequireFromString("1000.50"), decimal.NewFromInt(5)))
		assert.Equal(t, int64(0), models.RoundUnits(books))
	})
}

func TestCleanNumberExponentText(t *testing.T) {
	tests := []struct {
		in     string
		clean  string
		digits string
	}{
		{"1e7", "1E7", "17"},
		{"1E60000000", "1E60000000", "160000000"},
		{"1e60000000", "1E60000000", "160000000"},
		{"-82", "-82", "82"},
		{"0082.00", "82", "82"},
		{strings.Repeat("7", 40), strings.Repeat("7", 40), strings.Repeat("7", 40)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var clean, digits string
			quickly(t, "CleanNumber", func() {
				clean = CleanNumber(tt.in)
				digits = DigitsNumber(tt.in)
			})
			assert.Equal(t, tt.clean, clean)
			assert.Equal(t, tt.digits, digits)
		})
	}
}

func TestParseDateSerialBounds(t *testing.T) {
	n := New(nil)

	tests := []struct {
		in    string
		key   string
		valid bool
	}{
		{"45748", "20250401", true},
		{"45748.0", "20250401", true},
		{"4.5748e4", "20250401", true},
		{"1e60000000", "", false},
		{"1e-60000000", "", false},
		{strings.Repeat("4", 40), "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var d models.DocDate
			quickly(t, "ParseDate", func() { d = n.ParseDate(tt.in) })
			assert.Equal(t, tt.valid, d.Valid)
			assert.Equal(t, tt.key, d.Key())
			if !tt.valid {
				assert.Equal(t, tt.in, d.Raw)
			}
		})
	}
}
