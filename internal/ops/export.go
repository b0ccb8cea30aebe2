package ops

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/hpungsan/autoledger/internal/config"
	"github.com/hpungsan/autoledger/internal/errors"
)

// ExportSchemaVersion is written into every export header.
const ExportSchemaVersion = "1.0"

// ExportInput contains parameters for the Export operation.
type ExportInput struct {
	Path   string    // optional, default: <ledger dir>/exports/ledger-<timestamp>.jsonl
	Prefix string    // optional time prefix filter, e.g. "2026-03"
	Now    time.Time // clock override; zero means time.Now
}

// ExportOutput contains the result of the Export operation.
type ExportOutput struct {
	Path       string `json:"path"`
	Count      int    `json:"count"`
	Skipped    int    `json:"skipped"`
	ExportedAt int64  `json:"exported_at"`
}

// ExportHeader is the first line of a JSONL export file.
type ExportHeader struct {
	AutoledgerExport bool   `json:"_autoledger_export"`
	SchemaVersion    string `json:"schema_version"`
	ExportedAt       int64  `json:"exported_at"`
	Source           string `json:"source"`
}

// ExportsDirFor returns the exports directory next to the configured ledger.
func ExportsDirFor(cfg *config.Config) (string, error) {
	path, err := ledgerPath(cfg)
	if err != nil {
		return "", err
	}
	return filepath.Join(filepath.Dir(path), ExportsDir), nil
}

// Export writes ledger rows, in file order, to a JSONL file. The file is
// written to a temp name and renamed into place, so an existing export is
// never left half written.
func Export(ctx context.Context, cfg *config.Config, input ExportInput) (*ExportOutput, error) {
	now := input.Now
	if now.IsZero() {
		now = time.Now()
	}
	dir, err := ExportsDirFor(cfg)
	if err != nil {
		return nil, err
	}

	exportPath := input.Path
	if exportPath == "" {
		exportPath = defaultExportPath(dir, input.Prefix, now)
	}
	exportPath, err = ValidateExportPath(exportPath, dir, PathCheckWrite)
	if err != nil {
		return nil, err
	}

	source, rows, skipped, err := readLedger(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export directory: %w", err))
	}

	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tempPath := exportPath + "." + hex.EncodeToString(randBytes) + ".tmp"
	file, err := openFileNoFollow(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export file: %w", err))
	}

	success := false
	defer func() {
		if file != nil {
			_ = file.Close()
		}
		if !success {
			_ = os.Remove(tempPath)
		}
	}()

	enc := json.NewEncoder(file)
	enc.SetEscapeHTML(false)
	header := ExportHeader{
		AutoledgerExport: true,
		SchemaVersion:    ExportSchemaVersion,
		ExportedAt:       now.Unix(),
		Source:           source,
	}
	if err := enc.Encode(header); err != nil {
		return nil, errors.NewInternal(err)
	}

	prefix := strings.TrimSpace(input.Prefix)
	count := 0
	for _, r := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if prefix != "" && !strings.HasPrefix(r.Time, prefix) {
			continue
		}
		item, err := newRowItem(r)
		if err != nil {
			return nil, err
		}
		if err := enc.Encode(item); err != nil {
			return nil, errors.NewInternal(err)
		}
		count++
	}

	if err := file.Sync(); err != nil {
		return nil, errors.NewInternal(err)
	}
	// Close before the rename; Windows refuses to rename open files.
	if err := file.Close(); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to close export file: %w", err))
	}
	file = nil

	if info, err := os.Lstat(exportPath); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return nil, errors.NewInvalidRequest("export path must not be a symlink")
	}
	if err := os.Rename(tempPath, exportPath); err != nil {
		if runtime.GOOS == "windows" {
			if _, statErr := os.Stat(exportPath); statErr == nil {
				return nil, errors.NewInvalidRequest("export destination already exists; choose a new path")
			}
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to finalize export: %w", err))
	}

	success = true
	return &ExportOutput{
		Path:       exportPath,
		Count:      count,
		Skipped:    skipped,
		ExportedAt: now.Unix(),
	}, nil
}

// defaultExportPath names an export ledger-<timestamp>.jsonl, or
// ledger-<prefix>-<timestamp>.jsonl when filtered.
func defaultExportPath(dir, prefix string, now time.Time) string {
	name := "ledger"
	if p := sanitizeForFilename(prefix); p != "" {
		name += "-" + p
	}
	return filepath.Join(dir, fmt.Sprintf("%s-%s.jsonl", name, now.Format("2006-01-02T150405")))
}

// sanitizeForFilename keeps letters, digits and dashes; anything else
// becomes a dash.
func sanitizeForFilename(s string) string {
	s = strings.TrimSpace(s)
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return strings.Trim(b.String(), "-")
}
