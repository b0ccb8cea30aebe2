package ops

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"github.com/hpungsan/autoledger/internal/config"
	"github.com/hpungsan/autoledger/internal/errors"
	"github.com/hpungsan/autoledger/internal/ledger"
)

// ListInput contains parameters for the List operation.
type ListInput struct {
	Prefix string // optional time prefix, e.g. "2026-03" or "2026-03-01"
	Limit  int    // default: 20, max: 100
	Offset int    // default: 0
}

// ListOutput contains the result of the List operation.
type ListOutput struct {
	Path       string     `json:"path"`
	Items      []RowItem  `json:"items"`
	Pagination Pagination `json:"pagination"`
	Skipped    int        `json:"skipped"`
	Sort       string     `json:"sort"`
}

// List returns ledger rows newest first. Rows with equal times keep the
// reverse of their file order.
func List(ctx context.Context, cfg *config.Config, input ListInput) (*ListOutput, error) {
	path, rows, skipped, err := readLedger(ctx, cfg)
	if err != nil {
		return nil, err
	}

	limit, offset := clampPage(input.Limit, input.Offset, DefaultListLimit, MaxListLimit)
	prefix := strings.TrimSpace(input.Prefix)

	filtered := make([]ledger.Row, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		if prefix == "" || strings.HasPrefix(rows[i].Time, prefix) {
			filtered = append(filtered, rows[i])
		}
	}
	slices.SortStableFunc(filtered, func(a, b ledger.Row) int {
		return strings.Compare(b.Time, a.Time)
	})

	total := len(filtered)
	end := min(offset+limit, total)
	start := min(offset, total)

	items := make([]RowItem, 0, end-start)
	for _, r := range filtered[start:end] {
		item, err := newRowItem(r)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	return &ListOutput{
		Path:  path,
		Items: items,
		Pagination: Pagination{
			Limit:   limit,
			Offset:  offset,
			HasMore: end < total,
			Total:   total,
		},
		Skipped: skipped,
		Sort:    "time_desc",
	}, nil
}

// GetRow returns the row with the given digest.
func GetRow(ctx context.Context, cfg *config.Config, digest string) (*RowItem, error) {
	digest = strings.TrimSpace(digest)
	if digest == "" {
		return nil, errors.NewInvalidRequest("digest is required")
	}
	_, rows, _, err := readLedger(ctx, cfg)
	if err != nil {
		return nil, err
	}
	for i := len(rows) - 1; i >= 0; i-- {
		item, err := newRowItem(rows[i])
		if err != nil {
			return nil, err
		}
		if item.Digest == digest {
			return &item, nil
		}
	}
	return nil, errors.NewNotFound("row", digest)
}

func readLedger(ctx context.Context, cfg *config.Config) (string, []ledger.Row, int, error) {
	path, err := ledgerPath(cfg)
	if err != nil {
		return "", nil, 0, err
	}
	rows, skipped, err := ledger.ReadFile(path, func(issue error) {
		slog.DebugContext(ctx, "ledger read issue", "path", path, "error", issue)
	})
	if err != nil {
		return "", nil, 0, errors.NewInternal(err)
	}
	return path, rows, skipped, nil
}
