package ops

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/shopspring/decimal"

	"github.com/hpungsan/autoledger/internal/config"
	"github.com/hpungsan/autoledger/internal/errors"
	"github.com/hpungsan/autoledger/internal/ledger"
)

// ImportMode controls how duplicates and bad lines are handled.
type ImportMode string

const (
	ImportModeSkip  ImportMode = "skip"  // skip duplicates and bad lines, import the rest
	ImportModeError ImportMode = "error" // import nothing if any line is a duplicate or bad
)

// Import error codes.
const (
	ImportParseError    = "PARSE_ERROR"
	ImportInvalidRecord = "INVALID_RECORD"
	ImportDuplicate     = "DUPLICATE"
	ImportReadError     = "READ_ERROR"
)

// ImportInput contains parameters for the Import operation.
type ImportInput struct {
	Path string     // required, a file directly in the exports directory
	Mode ImportMode // default: skip
}

// ImportOutput contains the result of the Import operation.
type ImportOutput struct {
	Imported int           `json:"imported"`
	Skipped  int           `json:"skipped"`
	Errors   []ImportError `json:"errors"`
}

// ImportError describes one export line that was not imported.
type ImportError struct {
	Line    int    `json:"line"`
	Digest  string `json:"digest,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// exportLine is one decoded export line. Amount shadows the embedded row's
// field so a missing amount can be told apart from zero.
type exportLine struct {
	Header bool             `json:"_autoledger_export"`
	Amount *decimal.Decimal `json:"amount"`
	ledger.Row
}

type importRecord struct {
	line   int
	row    ledger.Row
	digest string
}

// Import appends the rows of a JSONL export to the ledger. A row whose
// digest is already in the ledger, or earlier in the same file, is a
// duplicate.
func Import(ctx context.Context, cfg *config.Config, input ImportInput) (*ImportOutput, error) {
	if input.Mode == "" {
		input.Mode = ImportModeSkip
	}
	if input.Mode != ImportModeSkip && input.Mode != ImportModeError {
		return nil, errors.NewInvalidRequest("mode must be one of: skip, error")
	}
	dir, err := ExportsDirFor(cfg)
	if err != nil {
		return nil, err
	}
	path, err := ValidateExportPath(input.Path, dir, PathCheckRead)
	if err != nil {
		return nil, err
	}

	file, err := openFileNoFollowRead(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	records, importErrors := parseExportFile(file, cfg.RawMaxChars)

	_, existing, _, err := readLedger(ctx, cfg)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(existing))
	for _, r := range existing {
		d, err := r.Digest()
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		seen[d] = true
	}

	fresh := make([]importRecord, 0, len(records))
	for _, rec := range records {
		if seen[rec.digest] {
			importErrors = append(importErrors, ImportError{
				Line:    rec.line,
				Digest:  rec.digest,
				Code:    ImportDuplicate,
				Message: "row already in ledger",
			})
			continue
		}
		seen[rec.digest] = true
		fresh = append(fresh, rec)
	}

	if input.Mode == ImportModeError && len(importErrors) > 0 {
		return &ImportOutput{Errors: importErrors}, nil
	}

	imported := 0
	for _, rec := range fresh {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, err := appendRow(ctx, cfg, rec.row); err != nil {
			return nil, err
		}
		imported++
	}

	return &ImportOutput{
		Imported: imported,
		Skipped:  len(importErrors),
		Errors:   importErrors,
	}, nil
}

// parseExportFile decodes every row line of an export. Rows come back
// normalized the way appendRow will store them, with matching digests.
func parseExportFile(r io.Reader, maxRaw int) ([]importRecord, []ImportError) {
	var (
		records []importRecord
		errs    []ImportError
	)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4<<20)
	lineNum := 0
	for sc.Scan() {
		lineNum++
		if len(sc.Bytes()) == 0 {
			continue
		}

		var l exportLine
		if err := json.Unmarshal(sc.Bytes(), &l); err != nil {
			errs = append(errs, ImportError{
				Line:    lineNum,
				Code:    ImportParseError,
				Message: fmt.Sprintf("invalid JSON: %v", err),
			})
			continue
		}
		if l.Header {
			continue
		}
		if l.Amount == nil {
			errs = append(errs, ImportError{
				Line:    lineNum,
				Code:    ImportInvalidRecord,
				Message: "missing amount field",
			})
			continue
		}

		row := l.Row
		row.Amount = *l.Amount
		row.Time = ledger.NormalizeTime(row.Time)
		row.Raw = ledger.CompactRaw(row.Raw, maxRaw)
		if row.Time == "" {
			errs = append(errs, ImportError{
				Line:    lineNum,
				Code:    ImportInvalidRecord,
				Message: "missing time field",
			})
			continue
		}
		d, err := row.Digest()
		if err != nil {
			errs = append(errs, ImportError{
				Line:    lineNum,
				Code:    ImportInvalidRecord,
				Message: err.Error(),
			})
			continue
		}
		records = append(records, importRecord{line: lineNum, row: row, digest: d})
	}

	if err := sc.Err(); err != nil {
		errs = append(errs, ImportError{
			Line:    lineNum,
			Code:    ImportReadError,
			Message: fmt.Sprintf("failed to read file: %v", err),
		})
	}
	return records, errs
}
