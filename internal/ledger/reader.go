package ledger

import (
	"bufio"
	"io"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/hpungsan/autoledger/internal/errors"
)

// Reader produces ledger rows lazily from a byte stream.
//
// The first record is the header. When it names all nine columns the reader
// maps fields by name; otherwise it falls back to the legacy positional
// layout. Malformed rows are skipped and malformed numbers are defaulted;
// neither aborts the read.
type Reader struct {
	// OnIssue, if set, receives each recovered parse problem
	// (CSV_ROW_MALFORMED or CSV_NUMERIC_MALFORMED).
	OnIssue func(err error)

	br      *bufio.Reader
	done    bool
	started bool
	index   [numColumns]int
	minLen  int
	record  int
	skipped int
}

// NewReader returns a Reader over r. A Reader cannot be rewound; build a new
// one over a fresh stream to start again.
func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReader(r)}
}

// Skipped returns how many data rows were skipped as malformed so far.
func (r *Reader) Skipped() int {
	return r.skipped
}

// Read returns the next row, or io.EOF when the stream is exhausted.
func (r *Reader) Read() (Row, error) {
	if !r.started {
		r.started = true
		header, err := r.readRecord()
		if err != nil {
			return Row{}, err
		}
		r.resolveHeader(header)
	}

	for {
		fields, err := r.readRecord()
		if err != nil {
			return Row{}, err
		}
		r.record++

		if isBlankRecord(fields) {
			continue
		}
		if len(fields) < r.minLen {
			r.skipped++
			r.report(errors.NewCsvRowMalformed(r.record, len(fields)))
			continue
		}
		return r.buildRow(fields), nil
	}
}

// Parse reads every row from r.
func Parse(r io.Reader) ([]Row, error) {
	rd := NewReader(r)
	var rows []Row
	for {
		row, err := rd.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return rows, err
		}
		rows = append(rows, row)
	}
}

func (r *Reader) report(err error) {
	if r.OnIssue != nil {
		r.OnIssue(err)
	}
}

// resolveHeader builds the column index from the header record.
func (r *Reader) resolveHeader(header []string) {
	positions := make(map[string]int, len(header))
	for i, cell := range header {
		name := strings.TrimSpace(cell)
		if i == 0 {
			name = strings.TrimSpace(strings.TrimPrefix(name, BOM))
		}
		if _, dup := positions[name]; !dup {
			positions[name] = i
		}
	}

	useHeader := true
	for i, name := range Columns {
		idx, ok := positions[name]
		if !ok {
			useHeader = false
			break
		}
		r.index[i] = idx
	}
	if !useHeader {
		for i := range r.index {
			r.index[i] = i
		}
	}
	// time, app and amount are the minimum usable fields
	r.minLen = r.index[2] + 1
	if r.index[0]+1 > r.minLen {
		r.minLen = r.index[0] + 1
	}
	if r.index[1]+1 > r.minLen {
		r.minLen = r.index[1] + 1
	}
}

func (r *Reader) buildRow(fields []string) Row {
	get := func(col int) string {
		idx := r.index[col]
		if idx < len(fields) {
			return fields[idx]
		}
		return ""
	}

	row := Row{
		Time:     NormalizeTime(get(0)),
		App:      get(1),
		Currency: get(3),
		Merchant: get(4),
		Category: get(5),
		Note:     get(6),
		Raw:      get(8),
	}

	amountText := get(2)
	if amount, ok := ParseAmount(amountText); ok {
		row.Amount = amount
	} else {
		row.Amount = decimal.Zero
		r.report(errors.NewCsvNumericMalformed(ColAmount, amountText))
	}

	confText := strings.TrimSpace(get(7))
	if confText != "" {
		if conf, err := decimal.NewFromString(confText); err == nil {
			row.Confidence = decimal.NewNullDecimal(conf)
		} else {
			r.report(errors.NewCsvNumericMalformed(ColConfidence, confText))
		}
	}

	return row
}

// readRecord scans one record. Quoted fields may span lines; "" inside a
// quoted field is a literal quote; CRLF counts as a single terminator. A
// final record without a terminator is still returned.
func (r *Reader) readRecord() ([]string, error) {
	if r.done {
		return nil, io.EOF
	}

	var (
		fields   []string
		cell     strings.Builder
		inQuotes bool
		consumed bool
	)

	for {
		ch, _, err := r.br.ReadRune()
		if err == io.EOF {
			r.done = true
			if !consumed {
				return nil, io.EOF
			}
			return append(fields, cell.String()), nil
		}
		if err != nil {
			return nil, err
		}
		consumed = true

		switch {
		case ch == '"':
			if !inQuotes {
				inQuotes = true
				continue
			}
			next, _, err := r.br.ReadRune()
			switch {
			case err == nil && next == '"':
				cell.WriteRune('"')
			case err == nil:
				inQuotes = false
				_ = r.br.UnreadRune()
			case err == io.EOF:
				inQuotes = false
			default:
				return nil, err
			}

		case ch == ',' && !inQuotes:
			fields = append(fields, cell.String())
			cell.Reset()

		case (ch == '\n' || ch == '\r') && !inQuotes:
			if ch == '\r' {
				next, _, err := r.br.ReadRune()
				if err == nil && next != '\n' {
					_ = r.br.UnreadRune()
				} else if err != nil && err != io.EOF {
					return nil, err
				}
			}
			return append(fields, cell.String()), nil

		default:
			cell.WriteRune(ch)
		}
	}
}

func isBlankRecord(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
