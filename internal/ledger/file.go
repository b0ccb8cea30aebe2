package ledger

import (
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/hpungsan/autoledger/internal/errors"
)

const (
	lockTimeout    = 10 * time.Second
	lockRetry      = 10 * time.Millisecond
	lockStaleAfter = 2 * time.Minute
	fileMode       = 0o600
)

// EnsureHeader writes Header to path when the file is missing or empty.
// It reports whether the header was written. Existing content is never
// modified.
func EnsureHeader(path string) (bool, error) {
	if err := ensureParent(path); err != nil {
		return false, errors.NewLedgerWriteFailed(path, err)
	}

	written := false
	err := withFileLock(path, func() error {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, fileMode)
		if err != nil {
			return fmt.Errorf("open ledger: %w", err)
		}
		defer func() { _ = f.Close() }()

		info, err := f.Stat()
		if err != nil {
			return fmt.Errorf("stat ledger: %w", err)
		}
		if info.Size() > 0 {
			return nil
		}
		if _, err := f.WriteString(Header); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
		if err := f.Sync(); err != nil {
			return fmt.Errorf("sync ledger: %w", err)
		}
		written = true
		return nil
	})
	if err != nil {
		return false, errors.NewLedgerWriteFailed(path, err)
	}
	return written, nil
}

// AppendRow appends one encoded row plus a newline and fsyncs the file.
// A failed write is rolled back to the previous size so no partial row
// remains.
func AppendRow(path, line string) error {
	if err := ensureParent(path); err != nil {
		return errors.NewLedgerWriteFailed(path, err)
	}
	payload := make([]byte, 0, len(line)+1)
	payload = append(payload, line...)
	payload = append(payload, '\n')

	err := withFileLock(path, func() error {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, fileMode)
		if err != nil {
			return fmt.Errorf("open ledger: %w", err)
		}
		defer func() { _ = f.Close() }()

		info, err := f.Stat()
		if err != nil {
			return fmt.Errorf("stat ledger: %w", err)
		}
		before := info.Size()

		if _, err := f.Write(payload); err != nil {
			_ = f.Truncate(before)
			return fmt.Errorf("append row: %w", err)
		}
		if err := f.Sync(); err != nil {
			_ = f.Truncate(before)
			return fmt.Errorf("sync ledger: %w", err)
		}
		return nil
	})
	if err != nil {
		return errors.NewLedgerWriteFailed(path, err)
	}
	return nil
}

// Append ensures the header exists and appends row encoded with maxRaw.
func Append(path string, row Row, maxRaw int) error {
	if _, err := EnsureHeader(path); err != nil {
		return err
	}
	return AppendRow(path, EncodeRow(row, maxRaw))
}

// ReadFile parses every row in path. A missing file reads as empty.
// The second return value is the number of skipped malformed rows.
func ReadFile(path string, onIssue func(error)) ([]Row, int, error) {
	f, err := os.Open(path)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, err
	}
	defer func() { _ = f.Close() }()

	rd := NewReader(f)
	rd.OnIssue = onIssue
	var rows []Row
	for {
		row, err := rd.Read()
		if err != nil {
			if err == io.EOF {
				return rows, rd.Skipped(), nil
			}
			return rows, rd.Skipped(), err
		}
		rows = append(rows, row)
	}
}

func ensureParent(path string) error {
	parent := filepath.Dir(path)
	if parent == "." || parent == "" {
		return nil
	}
	return os.MkdirAll(parent, 0o700)
}

// withFileLock serializes writers across processes with an O_EXCL lock file
// next to path. Locks older than lockStaleAfter are reclaimed.
func withFileLock(path string, fn func() error) error {
	lockPath := path + ".lock"
	start := time.Now()
	for {
		lf, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, fileMode)
		if err == nil {
			_ = lf.Close()
			defer func() { _ = os.Remove(lockPath) }()
			return fn()
		}
		if !os.IsExist(err) {
			return fmt.Errorf("acquire ledger lock: %w", err)
		}
		if info, statErr := os.Stat(lockPath); statErr == nil && time.Since(info.ModTime()) > lockStaleAfter {
			_ = os.Remove(lockPath)
			continue
		}
		if time.Since(start) >= lockTimeout {
			return fmt.Errorf("ledger lock timeout")
		}
		time.Sleep(lockRetry)
	}
}
