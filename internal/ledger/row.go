// Package ledger reads and writes the append-only CSV expense ledger.
//
// The file format is a small CSV dialect: every field is double-quoted on
// write, quoted fields may contain commas and newlines, and the first line is
// a header naming the nine columns (optionally prefixed with a UTF-8 BOM so
// spreadsheet apps detect the encoding). Rows are only ever appended.
package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/gowebpki/jcs"
	"github.com/shopspring/decimal"
)

// Column names in legacy positional order.
const (
	ColTime       = "time"
	ColApp        = "app"
	ColAmount     = "amount"
	ColCurrency   = "currency"
	ColMerchant   = "merchant"
	ColCategory   = "category"
	ColNote       = "note"
	ColConfidence = "confidence"
	ColRaw        = "raw"
)

// Columns lists the expected header in legacy positional order.
var Columns = []string{
	ColTime, ColApp, ColAmount, ColCurrency, ColMerchant,
	ColCategory, ColNote, ColConfidence, ColRaw,
}

const numColumns = 9

// BOM is the UTF-8 byte-order mark written before the header.
const BOM = "\uFEFF"

// Header is the exact bytes written to an empty ledger file.
var Header = BOM + strings.Join(Columns, ",") + "\n"

// DefaultRawMaxChars bounds the raw column when no explicit limit is given.
const DefaultRawMaxChars = 240

// Row is one confirmed expense record.
type Row struct {
	Time       string              `json:"time"`
	App        string              `json:"app"`
	Amount     decimal.Decimal     `json:"amount"`
	Currency   string              `json:"currency"`
	Merchant   string              `json:"merchant"`
	Category   string              `json:"category"`
	Note       string              `json:"note"`
	Confidence decimal.NullDecimal `json:"confidence"`
	Raw        string              `json:"raw"`
}

// Digest returns a stable content id for the row: the sha256 of its
// RFC 8785 canonical JSON form.
func (r Row) Digest() (string, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// IsExpense reports whether the row records money going out.
func (r Row) IsExpense() bool {
	return r.Amount.IsNegative()
}
