package ops

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hpungsan/autoledger/internal/config"
	"github.com/hpungsan/autoledger/internal/errors"
	"github.com/hpungsan/autoledger/internal/ledger"
)

// StatsInput contains parameters for the Stats operation.
type StatsInput struct {
	Period string    // day, month (default) or year
	Anchor string    // date inside the period, "2006-01-02"; default today
	Shift  int       // periods to move from the anchor, e.g. -1 for the previous month
	Now    time.Time // clock override; zero means time.Now
}

// StatsOutput contains the result of the Stats operation.
type StatsOutput struct {
	Path    string `json:"path"`
	Skipped int    `json:"skipped"`
	ledger.Summary
}

// Stats totals the ledger for one day, month or year.
func Stats(ctx context.Context, cfg *config.Config, input StatsInput) (*StatsOutput, error) {
	period, err := ledger.ParsePeriod(input.Period)
	if err != nil {
		return nil, errors.NewInvalidRequest(err.Error())
	}

	anchor := input.Now
	if anchor.IsZero() {
		anchor = time.Now()
	}
	if a := strings.TrimSpace(input.Anchor); a != "" {
		t, err := time.ParseInLocation("2006-01-02", ledger.NormalizeTime(a), time.Local)
		if err != nil {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("anchor %q is not a date (want YYYY-MM-DD)", input.Anchor))
		}
		anchor = t
	}
	if input.Shift != 0 {
		anchor = period.Shift(anchor, input.Shift)
	}

	path, rows, skipped, err := readLedger(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &StatsOutput{
		Path:    path,
		Skipped: skipped,
		Summary: ledger.Summarize(rows, period, anchor),
	}, nil
}
