package ledger

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func row(ts, merchant, amount string) Row {
	return Row{Time: ts, Merchant: merchant, Amount: decimal.RequireFromString(amount)}
}

func TestSummarize_Month(t *testing.T) {
	rows := []Row{
		row("2024-03-05 12:00", "Cafe", "-30"),
		row("2024-03-07 08:00", "", "-12.5"),
		row("2024-03-10 09:00", "Employer", "1000"),
		row("2024-04-01 10:00", "Cafe", "-99"),
		row("2024-03-11 10:00", "Cafe", "-20"),
	}
	anchor := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	s := Summarize(rows, PeriodMonth, anchor)
	require.Equal(t, "2024-03", s.Key)
	require.Equal(t, 4, s.Count)
	require.True(t, s.Expense.Equal(decimal.RequireFromString("-62.5")), "expense = %s", s.Expense)
	require.True(t, s.Income.Equal(decimal.NewFromInt(1000)), "income = %s", s.Income)

	require.Len(t, s.Merchants, 3)
	require.Equal(t, "Cafe", s.Merchants[0].Merchant)
	require.True(t, s.Merchants[0].Total.Equal(decimal.NewFromInt(-50)))
	require.Equal(t, UnknownMerchant, s.Merchants[1].Merchant)
	require.Equal(t, "Employer", s.Merchants[2].Merchant)
}

func TestSummarize_DayAndYear(t *testing.T) {
	rows := []Row{
		row("2024-03-05 12:00", "A", "-1"),
		row("2024-03-06 12:00", "B", "-2"),
		row("2023-12-31 23:59", "C", "-4"),
	}
	anchor := time.Date(2024, 3, 5, 18, 0, 0, 0, time.UTC)

	day := Summarize(rows, PeriodDay, anchor)
	require.Equal(t, "2024-03-05", day.Key)
	require.Equal(t, 1, day.Count)

	year := Summarize(rows, PeriodYear, anchor)
	require.Equal(t, "2024", year.Key)
	require.Equal(t, 2, year.Count)
	require.True(t, year.Expense.Equal(decimal.NewFromInt(-3)))
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil, PeriodMonth, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.Equal(t, 0, s.Count)
	require.True(t, s.Expense.IsZero())
	require.Empty(t, s.Merchants)
}

func TestPeriodShift(t *testing.T) {
	jan31 := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	require.Equal(t, "2024-02", PeriodMonth.Key(PeriodMonth.Shift(jan31, 1)))
	require.Equal(t, "2023-12", PeriodMonth.Key(PeriodMonth.Shift(jan31, -1)))
	require.Equal(t, "2024-02-01", PeriodDay.Key(PeriodDay.Shift(jan31, 1)))
	require.Equal(t, "2025", PeriodYear.Key(PeriodYear.Shift(jan31, 1)))
}

func TestParsePeriod(t *testing.T) {
	p, err := ParsePeriod("")
	require.NoError(t, err)
	require.Equal(t, PeriodMonth, p)

	p, err = ParsePeriod("Day")
	require.NoError(t, err)
	require.Equal(t, PeriodDay, p)

	_, err = ParsePeriod("week")
	require.Error(t, err)
}

func TestRowDigest_StableAcrossScale(t *testing.T) {
	a := row("2024-03-05 12:00", "Cafe", "-12.50")
	b := row("2024-03-05 12:00", "Cafe", "-12.5")
	c := row("2024-03-05 12:00", "Cafe", "-12.6")

	da, err := a.Digest()
	require.NoError(t, err)
	db, err := b.Digest()
	require.NoError(t, err)
	dc, err := c.Digest()
	require.NoError(t, err)

	require.Len(t, da, 64)
	require.Equal(t, da, db)
	require.NotEqual(t, da, dc)
}
