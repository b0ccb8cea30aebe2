package ops

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hpungsan/autoledger/internal/db"
	"github.com/hpungsan/autoledger/internal/errors"
)

func TestPurge_RemovesOldCapturesAndScreenshots(t *testing.T) {
	database, _, dir := setup(t)
	ctx := context.Background()
	shotDir := filepath.Join(dir, db.ScreenshotsDir)
	now := time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC)

	oldShot := filepath.Join(shotDir, "01OLDSHOT.png")
	newShot := filepath.Join(shotDir, "01NEWSHOT.png")
	for _, p := range []string{oldShot, newShot} {
		if err := os.WriteFile(p, []byte("\x89PNG"), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	records := []*db.CaptureRecord{
		{ID: "01OLD1", Source: "hotkey", Outcome: "delivered", ScreenshotPath: &oldShot, CreatedAt: now.AddDate(0, 0, -40).UnixMilli()},
		{ID: "01OLD2", Source: "hotkey", Outcome: "failed", CreatedAt: now.AddDate(0, 0, -31).UnixMilli()},
		{ID: "01NEW1", Source: "hotkey", Outcome: "delivered", ScreenshotPath: &newShot, CreatedAt: now.AddDate(0, 0, -2).UnixMilli()},
	}
	for _, r := range records {
		if err := db.InsertCapture(ctx, database, r); err != nil {
			t.Fatalf("InsertCapture failed: %v", err)
		}
	}

	out, err := Purge(ctx, database, PurgeInput{OlderThanDays: 30, ScreenshotDir: shotDir, Now: now})
	if err != nil {
		t.Fatalf("Purge failed: %v", err)
	}
	if out.Purged != 2 || out.ScreenshotsRemoved != 1 {
		t.Errorf("Purged = %d, ScreenshotsRemoved = %d; want 2, 1", out.Purged, out.ScreenshotsRemoved)
	}
	if out.Message != "Deleted 2 captures older than 30 days and 1 screenshot(s)" {
		t.Errorf("Message = %q", out.Message)
	}
	if _, err := os.Stat(oldShot); !os.IsNotExist(err) {
		t.Errorf("old screenshot still present: %v", err)
	}
	if _, err := os.Stat(newShot); err != nil {
		t.Errorf("new screenshot removed: %v", err)
	}
	if _, err := db.GetCapture(ctx, database, "01NEW1"); err != nil {
		t.Errorf("recent capture purged: %v", err)
	}
}

func TestPurge_LeavesForeignScreenshots(t *testing.T) {
	database, _, dir := setup(t)
	ctx := context.Background()
	now := time.Now()

	foreign := filepath.Join(t.TempDir(), "keep.png")
	if err := os.WriteFile(foreign, []byte("\x89PNG"), 0o600); err != nil {
		t.Fatal(err)
	}
	rec := &db.CaptureRecord{ID: "01OLD1", Source: "hotkey", Outcome: "delivered", ScreenshotPath: &foreign, CreatedAt: now.AddDate(0, 0, -10).UnixMilli()}
	if err := db.InsertCapture(ctx, database, rec); err != nil {
		t.Fatal(err)
	}

	out, err := Purge(ctx, database, PurgeInput{OlderThanDays: 7, ScreenshotDir: filepath.Join(dir, db.ScreenshotsDir), Now: now})
	if err != nil {
		t.Fatalf("Purge failed: %v", err)
	}
	if out.Purged != 1 || out.ScreenshotsRemoved != 0 {
		t.Errorf("Purged = %d, ScreenshotsRemoved = %d; want 1, 0", out.Purged, out.ScreenshotsRemoved)
	}
	if _, err := os.Stat(foreign); err != nil {
		t.Errorf("foreign screenshot removed: %v", err)
	}
}

func TestPurge_Nothing(t *testing.T) {
	database, _, _ := setup(t)

	out, err := Purge(context.Background(), database, PurgeInput{OlderThanDays: 30})
	if err != nil {
		t.Fatalf("Purge failed: %v", err)
	}
	if out.Purged != 0 || out.Message != "No captures older than 30 days" {
		t.Errorf("got %+v", out)
	}
}

func TestPurge_InvalidAge(t *testing.T) {
	database, _, _ := setup(t)
	for _, days := range []int{0, -3} {
		_, err := Purge(context.Background(), database, PurgeInput{OlderThanDays: days})
		if !errors.Is(err, errors.ErrInvalidRequest) {
			t.Errorf("days=%d: expected ErrInvalidRequest, got %v", days, err)
		}
	}
}

func TestFormatPurgeMessage(t *testing.T) {
	tests := []struct {
		count, shots, days int
		want               string
	}{
		{0, 0, 7, "No captures older than 7 days"},
		{1, 0, 7, "Deleted 1 capture older than 7 days"},
		{3, 2, 30, "Deleted 3 captures older than 30 days and 2 screenshot(s)"},
	}
	for _, tt := range tests {
		if got := formatPurgeMessage(tt.count, tt.shots, tt.days); got != tt.want {
			t.Errorf("formatPurgeMessage(%d, %d, %d) = %q, want %q", tt.count, tt.shots, tt.days, got, tt.want)
		}
	}
}
