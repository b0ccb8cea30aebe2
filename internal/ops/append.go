package ops

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hpungsan/autoledger/internal/config"
	"github.com/hpungsan/autoledger/internal/errors"
	"github.com/hpungsan/autoledger/internal/inference"
	"github.com/hpungsan/autoledger/internal/ledger"
)

// AppendInput contains parameters for the Append operation.
// Amount and Confidence are decimal strings.
type AppendInput struct {
	Time       string // default: now
	App        string // default: "Unknown"
	Amount     string // required, negative for expenses
	Currency   string // default: "CNY"
	Merchant   string
	Category   string
	Note       string
	Confidence string // optional, 0..1
	Raw        string

	Now time.Time // clock override; zero means time.Now
}

// AppendOutput contains the result of the Append operation.
type AppendOutput struct {
	Path          string  `json:"path"`
	HeaderWritten bool    `json:"header_written"`
	Row           RowItem `json:"row"`
}

// Append validates input and appends one row to the ledger, writing the
// header first when the file is new or empty.
func Append(ctx context.Context, cfg *config.Config, input AppendInput) (*AppendOutput, error) {
	row, err := buildRow(input)
	if err != nil {
		return nil, err
	}
	return appendRow(ctx, cfg, row)
}

func buildRow(input AppendInput) (ledger.Row, error) {
	amountText := strings.TrimSpace(input.Amount)
	if amountText == "" {
		return ledger.Row{}, errors.NewInvalidRequest("amount is required")
	}
	amount, ok := ledger.ParseAmount(amountText)
	if !ok {
		return ledger.Row{}, errors.NewInvalidRequest(fmt.Sprintf("amount %q is not a number", input.Amount))
	}

	var confidence decimal.NullDecimal
	if c := strings.TrimSpace(input.Confidence); c != "" {
		d, err := decimal.NewFromString(c)
		if err != nil {
			return ledger.Row{}, errors.NewInvalidRequest(fmt.Sprintf("confidence %q is not a number", input.Confidence))
		}
		if d.IsNegative() || d.GreaterThan(decimal.NewFromInt(1)) {
			return ledger.Row{}, errors.NewInvalidRequest("confidence must be between 0 and 1")
		}
		confidence = decimal.NewNullDecimal(d)
	}

	ts := strings.TrimSpace(input.Time)
	if ts == "" {
		now := input.Now
		if now.IsZero() {
			now = time.Now()
		}
		ts = now.Format("2006-01-02 15:04")
	}

	return ledger.Row{
		Time:       ts,
		App:        defaultString(input.App, inference.DefaultApp),
		Amount:     amount,
		Currency:   defaultString(input.Currency, inference.DefaultCurrency),
		Merchant:   strings.TrimSpace(input.Merchant),
		Category:   strings.TrimSpace(input.Category),
		Note:       strings.TrimSpace(input.Note),
		Confidence: confidence,
		Raw:        input.Raw,
	}, nil
}

// appendRow writes row and returns it in the form a later read will see.
func appendRow(_ context.Context, cfg *config.Config, row ledger.Row) (*AppendOutput, error) {
	path, err := ledgerPath(cfg)
	if err != nil {
		return nil, err
	}

	row.Time = ledger.NormalizeTime(row.Time)
	row.Raw = ledger.CompactRaw(row.Raw, cfg.RawMaxChars)

	written, err := ledger.EnsureHeader(path)
	if err != nil {
		return nil, err
	}
	if err := ledger.AppendRow(path, ledger.EncodeRow(row, cfg.RawMaxChars)); err != nil {
		return nil, err
	}

	item, err := newRowItem(row)
	if err != nil {
		return nil, err
	}
	return &AppendOutput{Path: path, HeaderWritten: written, Row: item}, nil
}

func defaultString(s, def string) string {
	if s = strings.TrimSpace(s); s == "" {
		return def
	}
	return s
}
