package ops

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hpungsan/autoledger/internal/errors"
)

// maxScreenshotBytes bounds how much of a screenshot is sent for inference.
const maxScreenshotBytes = 20 << 20

// ExportsDir is the subdirectory of the ledger directory holding exports.
const ExportsDir = "exports"

// PathCheckMode indicates whether the path check is for reading or writing.
type PathCheckMode int

const (
	PathCheckRead  PathCheckMode = iota // file must exist
	PathCheckWrite                      // file may be created
)

// ValidateScreenshotPath checks that path names a PNG directly inside dir.
// Nested paths are rejected so no intermediate directory can be swapped for
// a symlink between the check and the open; the final component is opened
// with O_NOFOLLOW.
func ValidateScreenshotPath(path, dir string) (string, error) {
	return validateFileIn(path, dir, ".png", "screenshot", PathCheckRead)
}

// ValidateExportPath checks that path names a .jsonl file directly inside
// the exports directory dir.
func ValidateExportPath(path, dir string, mode PathCheckMode) (string, error) {
	return validateFileIn(path, dir, ".jsonl", "export", mode)
}

func validateFileIn(path, dir, ext, kind string, mode PathCheckMode) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.NewInvalidRequest(kind + " path is required")
	}
	if containsTraversal(path) {
		return "", errors.NewInvalidRequest(kind + " path must not contain directory traversal (..)")
	}

	cleaned := filepath.Clean(path)
	if !strings.EqualFold(filepath.Ext(cleaned), ext) {
		return "", errors.NewInvalidRequest(fmt.Sprintf("%s path must have %s extension", kind, ext))
	}
	absPath, err := filepath.Abs(cleaned)
	if err != nil {
		return "", errors.NewInvalidRequest(fmt.Sprintf("invalid path: %v", err))
	}
	absDir, err := filepath.Abs(filepath.Clean(dir))
	if err != nil {
		return "", errors.NewInvalidRequest(fmt.Sprintf("invalid %s dir: %v", kind, err))
	}
	if filepath.Dir(absPath) != absDir {
		return "", errors.NewInvalidRequest(fmt.Sprintf("%s must be directly in %s", kind, absDir))
	}

	if info, err := os.Lstat(absDir); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return "", errors.NewInvalidRequest(kind + " dir must not be a symlink")
	}
	info, err := os.Lstat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			if mode == PathCheckWrite {
				return absPath, nil
			}
			return "", errors.NewNotFound(kind, path)
		}
		return "", errors.NewInternal(err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return "", errors.NewInvalidRequest(kind + " must not be a symlink")
	}
	return absPath, nil
}

// ReadScreenshot validates path against dir and reads the PNG.
func ReadScreenshot(path, dir string) ([]byte, error) {
	absPath, err := ValidateScreenshotPath(path, dir)
	if err != nil {
		return nil, err
	}
	f, err := openFileNoFollowRead(absPath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(io.LimitReader(f, maxScreenshotBytes+1))
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	if len(data) > maxScreenshotBytes {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("screenshot exceeds %d bytes", maxScreenshotBytes))
	}
	return data, nil
}

// containsTraversal checks if path contains ".." directory traversal.
func containsTraversal(path string) bool {
	for _, part := range strings.Split(path, string(filepath.Separator)) {
		if part == ".." {
			return true
		}
	}
	if filepath.Separator != '/' {
		for _, part := range strings.Split(path, "/") {
			if part == ".." {
				return true
			}
		}
	}
	return false
}
