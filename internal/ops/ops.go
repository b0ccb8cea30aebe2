// Package ops implements the operations shared by the CLI, the MCP server
// and the web UI.
package ops

import (
	"strings"

	"github.com/hpungsan/autoledger/internal/config"
	"github.com/hpungsan/autoledger/internal/errors"
	"github.com/hpungsan/autoledger/internal/ledger"
)

// Pagination limits
const (
	DefaultListLimit    = 20
	MaxListLimit        = 100
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100
)

// Pagination contains pagination metadata for list operations.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
	Total   int  `json:"total"`
}

// RowItem is a ledger row with its content digest.
type RowItem struct {
	Digest string `json:"digest"`
	ledger.Row
}

func newRowItem(r ledger.Row) (RowItem, error) {
	d, err := r.Digest()
	if err != nil {
		return RowItem{}, errors.NewInternal(err)
	}
	return RowItem{Digest: d, Row: r}, nil
}

// clampPage applies limit defaults and bounds; offset is never negative.
func clampPage(limit, offset, def, maxLimit int) (int, int) {
	if limit <= 0 {
		limit = def
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return limit, max(offset, 0)
}

// ledgerPath returns the configured ledger file. Callers resolve it against
// the base directory once at startup (config.ResolveLedgerPath).
func ledgerPath(cfg *config.Config) (string, error) {
	p := strings.TrimSpace(cfg.LedgerPath)
	if p == "" {
		return "", errors.NewInvalidRequest("ledger path is not configured")
	}
	return p, nil
}
