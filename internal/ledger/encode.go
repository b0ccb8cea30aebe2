package ledger

import (
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"golang.org/x/text/width"
)

// EncodeRow serializes row as one CSV line without the trailing newline.
// Every field is quoted; time is normalized and raw is compacted to maxRaw
// characters (DefaultRawMaxChars when maxRaw <= 0).
func EncodeRow(row Row, maxRaw int) string {
	confidence := ""
	if row.Confidence.Valid {
		confidence = FormatAmount(row.Confidence.Decimal)
	}

	fields := []string{
		NormalizeTime(row.Time),
		row.App,
		FormatAmount(row.Amount),
		row.Currency,
		row.Merchant,
		row.Category,
		row.Note,
		confidence,
		CompactRaw(row.Raw, maxRaw),
	}

	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(Quote(f))
	}
	return b.String()
}

// Quote wraps s in double quotes, doubling any embedded quote.
func Quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// FormatAmount renders d without trailing fractional zeros, so whole values
// have no decimal point.
func FormatAmount(d decimal.Decimal) string {
	return d.String()
}

// CompactRaw trims s and cuts it to at most max characters, appending an
// ellipsis when truncated.
func CompactRaw(s string, max int) string {
	if max <= 0 {
		max = DefaultRawMaxChars
	}
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max]) + "…"
}

// ParseAmount parses a money cell, tolerating surrounding whitespace,
// full-width digits, currency symbols, and thousands separators. An empty
// cell is zero.
func ParseAmount(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(width.Fold.String(s))
	if s == "" {
		return decimal.Zero, true
	}

	neg := false
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r == '.':
			b.WriteRune(r)
		case r == '-' || r == '−':
			if b.Len() == 0 {
				neg = !neg
				continue
			}
			return decimal.Zero, false
		case r == '+' && b.Len() == 0:
		case r == ',' || r == ' ' || r == '\'':
		case isCurrencyRune(r):
		default:
			return decimal.Zero, false
		}
	}

	digits := b.String()
	if digits == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(digits)
	if err != nil {
		return decimal.Zero, false
	}
	if neg {
		d = d.Neg()
	}
	return d, true
}

func isCurrencyRune(r rune) bool {
	switch r {
	case '¥', '$', '€', '£', '₩', '₹', '元':
		return true
	}
	return false
}
