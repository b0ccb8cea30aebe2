package ledger

import (
	"strings"
	"time"

	"golang.org/x/text/width"
)

const (
	secondLayout = "2006-01-02 15:04:05"
	minuteLayout = "2006-01-02 15:04"
	dateLayout   = "2006-01-02"
)

// dateTimeLayouts are tried in order; the first successful parse wins.
var dateTimeLayouts = []string{
	"2006-1-2 15:04:05",
	"2006-1-2 15:04",
	"2006/1/2 15:04:05",
	"2006/1/2 15:04",
	"2006.1.2 15:04:05",
	"2006.1.2 15:04",
	"2006年1月2日 15:04:05",
	"2006年1月2日 15:04",
	"2006年1月2日15:04:05",
	"2006年1月2日15:04",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

var dateLayouts = []string{
	"2006-1-2",
	"2006/1/2",
	"2006.1.2",
	"2006年1月2日",
}

// NormalizeTime converts a time string to "yyyy-MM-dd HH:mm", or to
// "yyyy-MM-dd" when only a date is recognized. Seconds are dropped.
// Unrecognized input is returned unchanged.
func NormalizeTime(s string) string {
	t := strings.TrimSpace(s)
	if t == "" {
		return s
	}
	if isCanonical(t, minuteLayout) || isCanonical(t, dateLayout) {
		return t
	}
	if isCanonical(t, secondLayout) {
		return t[:len(minuteLayout)]
	}

	folded := strings.Join(strings.Fields(width.Fold.String(t)), " ")
	for _, layout := range dateTimeLayouts {
		if parsed, err := time.Parse(layout, folded); err == nil {
			return parsed.Format(minuteLayout)
		}
	}
	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, folded); err == nil {
			return parsed.Format(dateLayout)
		}
	}
	return s
}

// isCanonical checks s against layout shape: digits where the layout has
// digits, identical separators elsewhere.
func isCanonical(s, layout string) bool {
	if len(s) != len(layout) {
		return false
	}
	for i := 0; i < len(layout); i++ {
		l := layout[i]
		c := s[i]
		if l >= '0' && l <= '9' {
			if c < '0' || c > '9' {
				return false
			}
			continue
		}
		if c != l {
			return false
		}
	}
	return true
}
