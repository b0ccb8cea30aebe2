package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents an autoledger error code.
type ErrorCode string

const (
	ErrInvalidRequest       ErrorCode = "INVALID_REQUEST"        // 400
	ErrNotFound             ErrorCode = "NOT_FOUND"              // 404
	ErrDebounced            ErrorCode = "DEBOUNCED"              // 429, expected suppression
	ErrExtractionEmpty      ErrorCode = "EXTRACTION_EMPTY"       // 204, triggers escalation
	ErrScreenshotRetryable  ErrorCode = "SCREENSHOT_RETRYABLE"   // 503, triggers manual fallback
	ErrScreenshotFatal      ErrorCode = "SCREENSHOT_FATAL"       // 502
	ErrJournalStale         ErrorCode = "JOURNAL_STALE"          // 410, treated as no pending work
	ErrCsvRowMalformed      ErrorCode = "CSV_ROW_MALFORMED"      // 422, row skipped
	ErrCsvNumericMalformed  ErrorCode = "CSV_NUMERIC_MALFORMED"  // 422, field defaulted
	ErrLedgerWriteFailed    ErrorCode = "LEDGER_WRITE_FAILED"    // 500
	ErrModelUnavailable     ErrorCode = "MODEL_UNAVAILABLE"      // 503
	ErrModelResponseInvalid ErrorCode = "MODEL_RESPONSE_INVALID" // 502
	ErrCaptureTimeout       ErrorCode = "CAPTURE_TIMEOUT"        // 504
	ErrInternal             ErrorCode = "INTERNAL"               // 500
)

// LedgerError represents a structured error with code, status, and details.
type LedgerError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
	cause   error
}

// Error implements the error interface.
func (e *LedgerError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *LedgerError) Unwrap() error {
	return e.cause
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *LedgerError {
	return &LedgerError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for a missing ledger row or capture.
func NewNotFound(kind, identifier string) *LedgerError {
	return &LedgerError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("%s not found: %s", kind, identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewDebounced reports a trigger suppressed by the debounce window.
func NewDebounced(source string, sinceLastMillis int64) *LedgerError {
	return &LedgerError{
		Code:    ErrDebounced,
		Status:  429,
		Message: fmt.Sprintf("trigger from %s debounced (%dms since last)", source, sinceLastMillis),
		Details: map[string]any{"source": source, "since_last_ms": sinceLastMillis},
	}
}

// NewExtractionEmpty reports that the foreground surface yielded no readable text.
func NewExtractionEmpty(surface string) *LedgerError {
	return &LedgerError{
		Code:    ErrExtractionEmpty,
		Status:  204,
		Message: fmt.Sprintf("no readable text on surface %q", surface),
		Details: map[string]any{"surface": surface},
	}
}

// NewScreenshotRetryable reports a screenshot failure that falls back to manual entry.
func NewScreenshotRetryable(code string) *LedgerError {
	return &LedgerError{
		Code:    ErrScreenshotRetryable,
		Status:  503,
		Message: fmt.Sprintf("screenshot failed (%s), falling back to manual entry", code),
		Details: map[string]any{"failure_code": code},
	}
}

// NewScreenshotFatal reports a screenshot failure that ends the capture cycle.
func NewScreenshotFatal(code string) *LedgerError {
	return &LedgerError{
		Code:    ErrScreenshotFatal,
		Status:  502,
		Message: fmt.Sprintf("screenshot failed (%s)", code),
		Details: map[string]any{"failure_code": code},
	}
}

// NewJournalStale reports a pending record older than the freshness window.
func NewJournalStale(ageMillis int64) *LedgerError {
	return &LedgerError{
		Code:    ErrJournalStale,
		Status:  410,
		Message: fmt.Sprintf("pending record expired (age %dms)", ageMillis),
		Details: map[string]any{"age_ms": ageMillis},
	}
}

// NewCsvRowMalformed reports a ledger row that was skipped during parsing.
func NewCsvRowMalformed(line int, fields int) *LedgerError {
	return &LedgerError{
		Code:    ErrCsvRowMalformed,
		Status:  422,
		Message: fmt.Sprintf("ledger row %d has %d usable fields", line, fields),
		Details: map[string]any{"row": line, "fields": fields},
	}
}

// NewCsvNumericMalformed reports a numeric cell that was defaulted during parsing.
func NewCsvNumericMalformed(column, value string) *LedgerError {
	return &LedgerError{
		Code:    ErrCsvNumericMalformed,
		Status:  422,
		Message: fmt.Sprintf("malformed %s value %q", column, value),
		Details: map[string]any{"column": column, "value": value},
	}
}

// NewLedgerWriteFailed creates a 500 error for a failed ledger append.
// The row must be treated as not persisted.
func NewLedgerWriteFailed(path string, err error) *LedgerError {
	msg := "ledger write failed"
	if err != nil {
		msg = fmt.Sprintf("ledger write failed: %v", err)
	}
	return &LedgerError{
		Code:    ErrLedgerWriteFailed,
		Status:  500,
		Message: msg,
		Details: map[string]any{"path": path},
		cause:   err,
	}
}

// NewModelUnavailable creates a 503 error when the inference endpoint is not configured or unreachable.
func NewModelUnavailable(msg string) *LedgerError {
	return &LedgerError{
		Code:    ErrModelUnavailable,
		Status:  503,
		Message: msg,
	}
}

// NewModelResponseInvalid creates a 502 error for model output that fails validation.
func NewModelResponseInvalid(msg string) *LedgerError {
	return &LedgerError{
		Code:    ErrModelResponseInvalid,
		Status:  502,
		Message: msg,
	}
}

// NewCaptureTimeout creates a 504 error when no capture outcome arrives in time.
func NewCaptureTimeout(waitMillis int64) *LedgerError {
	return &LedgerError{
		Code:    ErrCaptureTimeout,
		Status:  504,
		Message: fmt.Sprintf("no capture outcome within %dms", waitMillis),
		Details: map[string]any{"wait_ms": waitMillis},
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *LedgerError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &LedgerError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
		cause:   err,
	}
}

// Is checks if an error is (or wraps) a LedgerError with the given code.
func Is(err error, code ErrorCode) bool {
	var lErr *LedgerError
	if stderrors.As(err, &lErr) {
		return lErr.Code == code
	}
	return false
}

// As returns the LedgerError in err's chain, if any.
func As(err error) (*LedgerError, bool) {
	var lErr *LedgerError
	if stderrors.As(err, &lErr) {
		return lErr, true
	}
	return nil, false
}
