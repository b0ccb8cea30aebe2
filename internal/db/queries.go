package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hpungsan/autoledger/internal/errors"
)

// CaptureRecord is one row of capture history.
type CaptureRecord struct {
	ID             string  `json:"id"`
	Source         string  `json:"source"`
	Reason         *string `json:"reason,omitempty"`
	Outcome        string  `json:"outcome"`
	Surface        *string `json:"surface,omitempty"`
	Detail         *string `json:"detail,omitempty"`
	TextChars      int     `json:"text_chars"`
	ScreenshotPath *string `json:"screenshot_path,omitempty"`
	ErrorCode      *string `json:"error_code,omitempty"`
	CreatedAt      int64   `json:"created_at"`
}

// CaptureFilter narrows ListCaptures. Empty fields match everything.
type CaptureFilter struct {
	Outcome string
	Source  string
}

// InsertCapture stores a capture history record.
func InsertCapture(ctx context.Context, db *sql.DB, r *CaptureRecord) error {
	query := `
		INSERT INTO captures (
			id, source, reason, outcome, surface, detail,
			text_chars, screenshot_path, error_code, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := db.ExecContext(ctx, query,
		r.ID, r.Source, toNullString(r.Reason), r.Outcome, toNullString(r.Surface),
		toNullString(r.Detail), r.TextChars, toNullString(r.ScreenshotPath),
		toNullString(r.ErrorCode), r.CreatedAt,
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// GetCapture returns the capture record with the given ULID.
func GetCapture(ctx context.Context, db *sql.DB, id string) (*CaptureRecord, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, source, reason, outcome, surface, detail,
			text_chars, screenshot_path, error_code, created_at
		FROM captures WHERE id = ?
	`, id)
	r, err := scanCapture(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("capture", id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return r, nil
}

// ListCaptures returns capture records newest first.
func ListCaptures(ctx context.Context, db *sql.DB, f CaptureFilter, limit, offset int) ([]CaptureRecord, error) {
	where, args := captureWhere(f)
	query := fmt.Sprintf(`
		SELECT id, source, reason, outcome, surface, detail,
			text_chars, screenshot_path, error_code, created_at
		FROM captures%s
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, where)
	args = append(args, limit, offset)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	out := []CaptureRecord{}
	for rows.Next() {
		r, err := scanCapture(rows)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}

// CountCaptures returns the number of records matching f.
func CountCaptures(ctx context.Context, db *sql.DB, f CaptureFilter) (int, error) {
	where, args := captureWhere(f)
	var n int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM captures"+where, args...).Scan(&n); err != nil {
		return 0, errors.NewInternal(err)
	}
	return n, nil
}

func captureWhere(f CaptureFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if f.Outcome != "" {
		clauses = append(clauses, "outcome = ?")
		args = append(args, f.Outcome)
	}
	if f.Source != "" {
		clauses = append(clauses, "source = ?")
		args = append(args, f.Source)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	where := " WHERE " + clauses[0]
	for _, c := range clauses[1:] {
		where += " AND " + c
	}
	return where, args
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCapture(s scanner) (*CaptureRecord, error) {
	var (
		r          CaptureRecord
		reason     sql.NullString
		surface    sql.NullString
		detail     sql.NullString
		screenshot sql.NullString
		errorCode  sql.NullString
	)
	err := s.Scan(
		&r.ID, &r.Source, &reason, &r.Outcome, &surface, &detail,
		&r.TextChars, &screenshot, &errorCode, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Reason = fromNullString(reason)
	r.Surface = fromNullString(surface)
	r.Detail = fromNullString(detail)
	r.ScreenshotPath = fromNullString(screenshot)
	r.ErrorCode = fromNullString(errorCode)
	return &r, nil
}

// toNullString converts a *string to sql.NullString.
func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// fromNullString converts a sql.NullString to *string.
func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

// PurgeCaptures deletes capture records created before the given unix
// milliseconds and returns the screenshot paths they referenced.
func PurgeCaptures(ctx context.Context, db *sql.DB, before int64) ([]string, int, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	defer tx.Rollback() //nolint:errcheck

	rows, err := tx.QueryContext(ctx,
		`SELECT screenshot_path FROM captures WHERE created_at < ? AND screenshot_path IS NOT NULL`, before)
	if err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	paths := []string{}
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			rows.Close()
			return nil, 0, errors.NewInternal(err)
		}
		paths = append(paths, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, 0, errors.NewInternal(err)
	}
	rows.Close()

	res, err := tx.ExecContext(ctx, `DELETE FROM captures WHERE created_at < ?`, before)
	if err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	return paths, int(n), nil
}
