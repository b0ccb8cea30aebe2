package ops

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/hpungsan/autoledger/internal/db"
	"github.com/hpungsan/autoledger/internal/errors"
)

// PurgeInput contains parameters for the Purge operation.
type PurgeInput struct {
	OlderThanDays int       // required, at least 1
	ScreenshotDir string    // screenshots outside this dir are left on disk
	Now           time.Time // clock override; zero means time.Now
	Logger        *slog.Logger
}

// PurgeOutput contains the result of the Purge operation.
type PurgeOutput struct {
	Purged             int    `json:"purged"`
	ScreenshotsRemoved int    `json:"screenshots_removed"`
	Message            string `json:"message"`
}

// Purge deletes capture history older than the given age together with the
// screenshots those captures saved.
func Purge(ctx context.Context, database *sql.DB, input PurgeInput) (*PurgeOutput, error) {
	if input.OlderThanDays < 1 {
		return nil, errors.NewInvalidRequest("older_than_days must be at least 1")
	}
	logger := input.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := input.Now
	if now.IsZero() {
		now = time.Now()
	}
	cutoff := now.Add(-time.Duration(input.OlderThanDays) * 24 * time.Hour)

	paths, count, err := db.PurgeCaptures(ctx, database, cutoff.UnixMilli())
	if err != nil {
		return nil, err
	}

	removed := 0
	for _, p := range paths {
		abs, err := ValidateScreenshotPath(p, input.ScreenshotDir)
		if err != nil {
			if !errors.Is(err, errors.ErrNotFound) {
				logger.Warn("screenshot left in place", "path", p, "error", err)
			}
			continue
		}
		if err := os.Remove(abs); err != nil {
			logger.Warn("screenshot not removed", "path", abs, "error", err)
			continue
		}
		removed++
	}

	return &PurgeOutput{
		Purged:             count,
		ScreenshotsRemoved: removed,
		Message:            formatPurgeMessage(count, removed, input.OlderThanDays),
	}, nil
}

// formatPurgeMessage creates a human-readable message for the purge result.
func formatPurgeMessage(count, screenshots, olderThanDays int) string {
	if count == 0 {
		return fmt.Sprintf("No captures older than %d days", olderThanDays)
	}
	captureWord := "capture"
	if count > 1 {
		captureWord = "captures"
	}
	msg := fmt.Sprintf("Deleted %d %s older than %d days", count, captureWord, olderThanDays)
	if screenshots > 0 {
		msg += fmt.Sprintf(" and %d screenshot(s)", screenshots)
	}
	return msg
}
