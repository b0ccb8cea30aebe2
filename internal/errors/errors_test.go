package errors

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"testing"
)

func TestLedgerError_Error(t *testing.T) {
	err := &LedgerError{
		Code:    ErrNotFound,
		Status:  404,
		Message: "row not found",
	}

	expected := "NOT_FOUND: row not found"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestNewInvalidRequest(t *testing.T) {
	err := NewInvalidRequest("amount is required")

	if err.Code != ErrInvalidRequest {
		t.Errorf("Code = %q, want %q", err.Code, ErrInvalidRequest)
	}
	if err.Status != 400 {
		t.Errorf("Status = %d, want 400", err.Status)
	}
	if err.Message != "amount is required" {
		t.Errorf("Message = %q, want %q", err.Message, "amount is required")
	}
}

func TestNewNotFound(t *testing.T) {
	err := NewNotFound("row", "abc123")

	if err.Code != ErrNotFound {
		t.Errorf("Code = %q, want %q", err.Code, ErrNotFound)
	}
	if err.Status != 404 {
		t.Errorf("Status = %d, want 404", err.Status)
	}
	if err.Details["identifier"] != "abc123" {
		t.Errorf("Details[identifier] = %v, want %q", err.Details["identifier"], "abc123")
	}
}

func TestNewDebounced(t *testing.T) {
	err := NewDebounced("broadcast", 1200)

	if err.Code != ErrDebounced {
		t.Errorf("Code = %q, want %q", err.Code, ErrDebounced)
	}
	if err.Details["since_last_ms"] != int64(1200) {
		t.Errorf("Details[since_last_ms] = %v, want 1200", err.Details["since_last_ms"])
	}
}

func TestScreenshotErrors(t *testing.T) {
	retry := NewScreenshotRetryable("interval_too_short")
	if retry.Code != ErrScreenshotRetryable {
		t.Errorf("Code = %q, want %q", retry.Code, ErrScreenshotRetryable)
	}
	if retry.Details["failure_code"] != "interval_too_short" {
		t.Errorf("Details[failure_code] = %v", retry.Details["failure_code"])
	}

	fatal := NewScreenshotFatal("no_access")
	if fatal.Code != ErrScreenshotFatal {
		t.Errorf("Code = %q, want %q", fatal.Code, ErrScreenshotFatal)
	}
	if fatal.Status != 502 {
		t.Errorf("Status = %d, want 502", fatal.Status)
	}
}

func TestNewLedgerWriteFailed_Unwraps(t *testing.T) {
	cause := fmt.Errorf("open ledger: %w", fs.ErrPermission)
	err := NewLedgerWriteFailed("/tmp/ledger.csv", cause)

	if err.Code != ErrLedgerWriteFailed {
		t.Errorf("Code = %q, want %q", err.Code, ErrLedgerWriteFailed)
	}
	if err.Details["path"] != "/tmp/ledger.csv" {
		t.Errorf("Details[path] = %v", err.Details["path"])
	}
	if !stderrors.Is(err, fs.ErrPermission) {
		t.Error("expected LedgerWriteFailed to unwrap to fs.ErrPermission")
	}
}

func TestNewInternal(t *testing.T) {
	err := NewInternal(fmt.Errorf("database connection failed"))

	if err.Code != ErrInternal {
		t.Errorf("Code = %q, want %q", err.Code, ErrInternal)
	}
	if err.Status != 500 {
		t.Errorf("Status = %d, want 500", err.Status)
	}
	if err.Message != "database connection failed" {
		t.Errorf("Message = %q, want %q", err.Message, "database connection failed")
	}
}

func TestNewInternal_NilError(t *testing.T) {
	err := NewInternal(nil)

	if err.Message != "internal error" {
		t.Errorf("Message = %q, want %q", err.Message, "internal error")
	}
}

func TestIs(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code ErrorCode
		want bool
	}{
		{"matching", NewNotFound("row", "x"), ErrNotFound, true},
		{"different code", NewNotFound("row", "x"), ErrInternal, false},
		{"plain error", fmt.Errorf("boom"), ErrInternal, false},
		{"nil", nil, ErrInternal, false},
		{"wrapped", fmt.Errorf("append: %w", NewLedgerWriteFailed("p", nil)), ErrLedgerWriteFailed, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Is(tt.err, tt.code); got != tt.want {
				t.Errorf("Is() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAs(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", NewCaptureTimeout(5000))
	lErr, ok := As(wrapped)
	if !ok {
		t.Fatal("As() did not find LedgerError")
	}
	if lErr.Code != ErrCaptureTimeout {
		t.Errorf("Code = %q, want %q", lErr.Code, ErrCaptureTimeout)
	}

	if _, ok := As(fmt.Errorf("plain")); ok {
		t.Error("As() should not match a plain error")
	}
}
