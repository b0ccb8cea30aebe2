package ops

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/hpungsan/autoledger/internal/capture"
	"github.com/hpungsan/autoledger/internal/db"
	"github.com/hpungsan/autoledger/internal/errors"
	"github.com/hpungsan/autoledger/internal/ledger"
)

// HistoryInput contains parameters for the History operation.
type HistoryInput struct {
	Outcome string // optional: delivered, manual_fallback or failed
	Source  string // optional trigger source
	Limit   int    // default: 20, max: 100
	Offset  int
}

// HistoryOutput contains the result of the History operation.
type HistoryOutput struct {
	Items      []db.CaptureRecord `json:"items"`
	Pagination Pagination         `json:"pagination"`
	Sort       string             `json:"sort"`
}

// History lists recorded capture outcomes, newest first.
func History(ctx context.Context, database *sql.DB, input HistoryInput) (*HistoryOutput, error) {
	filter := db.CaptureFilter{
		Outcome: strings.TrimSpace(input.Outcome),
		Source:  strings.TrimSpace(input.Source),
	}
	switch capture.State(filter.Outcome) {
	case "", capture.StateDelivered, capture.StateManualFallback, capture.StateFailed:
	default:
		return nil, errors.NewInvalidRequest("outcome must be delivered, manual_fallback or failed")
	}
	if filter.Source != "" {
		src, err := capture.ParseSource(filter.Source)
		if err != nil && filter.Source != string(capture.SourceResume) {
			return nil, err
		}
		if err == nil {
			filter.Source = string(src)
		}
	}

	limit, offset := clampPage(input.Limit, input.Offset, DefaultHistoryLimit, MaxHistoryLimit)

	items, err := db.ListCaptures(ctx, database, filter, limit, offset)
	if err != nil {
		return nil, err
	}
	total, err := db.CountCaptures(ctx, database, filter)
	if err != nil {
		return nil, err
	}

	return &HistoryOutput{
		Items: items,
		Pagination: Pagination{
			Limit:   limit,
			Offset:  offset,
			HasMore: offset+len(items) < total,
			Total:   total,
		},
		Sort: "created_at_desc",
	}, nil
}

// GetCapture returns one history record by ULID.
func GetCapture(ctx context.Context, database *sql.DB, id string) (*db.CaptureRecord, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.NewInvalidRequest("id is required")
	}
	return db.GetCapture(ctx, database, id)
}

// Recorder stores capture outcomes as history. It is a capture.Presenter.
type Recorder struct {
	db  *sql.DB
	log *slog.Logger
}

// NewRecorder returns a Recorder writing to database.
func NewRecorder(database *sql.DB, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{db: database, log: logger}
}

// Present implements capture.Presenter.
func (r *Recorder) Present(ctx context.Context, o capture.Outcome) {
	if _, err := r.Record(ctx, o); err != nil {
		r.log.Error("capture history not recorded", "state", o.State, "error", err)
	}
}

// Record stores o and returns the new record's id.
func (r *Recorder) Record(ctx context.Context, o capture.Outcome) (string, error) {
	rec := historyRecord(o)
	if err := db.InsertCapture(ctx, r.db, rec); err != nil {
		return "", err
	}
	return rec.ID, nil
}

func historyRecord(o capture.Outcome) *db.CaptureRecord {
	rec := &db.CaptureRecord{
		ID:        db.NewID(o.At),
		Source:    string(o.Source),
		Reason:    optional(o.Reason),
		Outcome:   string(o.State),
		Surface:   optional(o.Surface),
		CreatedAt: o.At.UnixMilli(),
	}
	switch c := o.Content.(type) {
	case capture.Text:
		rec.TextChars = utf8.RuneCountInString(c.Text)
		rec.Detail = optional(ledger.CompactRaw(c.Text, ledger.DefaultRawMaxChars))
	case capture.Screenshot:
		rec.ScreenshotPath = optional(c.Handle)
	case capture.ManualEntryRequested:
		rec.Detail = optional(c.AppHint)
	}
	if o.Failure != "" {
		rec.ErrorCode = optional(string(o.Failure))
	}
	if o.Err != nil {
		code := string(errors.ErrInternal)
		if lErr, ok := errors.As(o.Err); ok {
			code = string(lErr.Code)
		}
		rec.ErrorCode = &code
		rec.Detail = optional(o.Err.Error())
	}
	return rec
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
