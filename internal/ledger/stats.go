package ledger

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Period selects the granularity of a summary.
type Period string

const (
	PeriodDay   Period = "day"
	PeriodMonth Period = "month"
	PeriodYear  Period = "year"
)

// ParsePeriod validates a period name. Empty means month.
func ParsePeriod(s string) (Period, error) {
	switch Period(strings.ToLower(strings.TrimSpace(s))) {
	case "", PeriodMonth:
		return PeriodMonth, nil
	case PeriodDay:
		return PeriodDay, nil
	case PeriodYear:
		return PeriodYear, nil
	}
	return "", fmt.Errorf("unknown period %q (want day, month or year)", s)
}

// Key returns the time prefix rows must share to fall within the period
// containing anchor.
func (p Period) Key(anchor time.Time) string {
	switch p {
	case PeriodDay:
		return anchor.Format("2006-01-02")
	case PeriodYear:
		return anchor.Format("2006")
	default:
		return anchor.Format("2006-01")
	}
}

// Shift moves anchor by n periods.
func (p Period) Shift(anchor time.Time, n int) time.Time {
	switch p {
	case PeriodDay:
		return anchor.AddDate(0, 0, n)
	case PeriodYear:
		return anchor.AddDate(n, 0, 0)
	default:
		// normalize to the first of the month so Jan 31 + 1 lands in February
		first := time.Date(anchor.Year(), anchor.Month(), 1, 0, 0, 0, 0, anchor.Location())
		return first.AddDate(0, n, 0)
	}
}

// UnknownMerchant labels rows with a blank merchant.
const UnknownMerchant = "Unknown"

// MerchantTotal is the signed sum of amounts for one merchant.
type MerchantTotal struct {
	Merchant string          `json:"merchant"`
	Total    decimal.Decimal `json:"total"`
}

// Summary aggregates rows within one period.
type Summary struct {
	Period    Period          `json:"period"`
	Key       string          `json:"key"`
	Expense   decimal.Decimal `json:"expense"`
	Income    decimal.Decimal `json:"income"`
	Count     int             `json:"count"`
	Merchants []MerchantTotal `json:"merchants"`
}

// Summarize totals the rows whose time falls in the period containing
// anchor. Expense is the sum of negative amounts, income the sum of
// positive ones. Merchants are ordered by ascending total, so the largest
// spend comes first.
func Summarize(rows []Row, p Period, anchor time.Time) Summary {
	s := Summary{
		Period:  p,
		Key:     p.Key(anchor),
		Expense: decimal.Zero,
		Income:  decimal.Zero,
	}

	byMerchant := make(map[string]decimal.Decimal)
	for _, r := range rows {
		if !strings.HasPrefix(strings.TrimSpace(r.Time), s.Key) {
			continue
		}
		s.Count++
		switch {
		case r.Amount.IsNegative():
			s.Expense = s.Expense.Add(r.Amount)
		case r.Amount.IsPositive():
			s.Income = s.Income.Add(r.Amount)
		}

		name := strings.TrimSpace(r.Merchant)
		if name == "" {
			name = UnknownMerchant
		}
		byMerchant[name] = byMerchant[name].Add(r.Amount)
	}

	s.Merchants = make([]MerchantTotal, 0, len(byMerchant))
	for name, total := range byMerchant {
		s.Merchants = append(s.Merchants, MerchantTotal{Merchant: name, Total: total})
	}
	sort.Slice(s.Merchants, func(i, j int) bool {
		if c := s.Merchants[i].Total.Cmp(s.Merchants[j].Total); c != 0 {
			return c < 0
		}
		return s.Merchants[i].Merchant < s.Merchants[j].Merchant
	})
	return s
}
