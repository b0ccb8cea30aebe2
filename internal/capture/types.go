package capture

import (
	"fmt"
	"strings"
	"time"

	"github.com/hpungsan/autoledger/internal/errors"
)

// Source identifies what kind of input fired a trigger.
type Source string

const (
	SourceHotkey      Source = "hotkey"
	SourceQuickToggle Source = "quick_toggle"
	SourceBroadcast   Source = "broadcast"
)

// ParseSource validates a source name.
func ParseSource(s string) (Source, error) {
	switch Source(strings.ToLower(strings.TrimSpace(s))) {
	case SourceHotkey:
		return SourceHotkey, nil
	case SourceQuickToggle, "qs_tile":
		return SourceQuickToggle, nil
	case SourceBroadcast:
		return SourceBroadcast, nil
	}
	return "", errors.NewInvalidRequest(fmt.Sprintf("unknown trigger source %q (want hotkey, quick_toggle or broadcast)", s))
}

// TriggerEvent is one external request to capture the screen.
type TriggerEvent struct {
	Source Source
	// Origin is a caller-supplied tag, e.g. the broadcast sender or
	// "longpress" for a held key.
	Origin string
	At     time.Time
}

// Reason is the label recorded in the journal and carried to the presenter.
func (e TriggerEvent) Reason() string {
	if o := strings.TrimSpace(e.Origin); o != "" {
		return o
	}
	return string(e.Source)
}

// State is the orchestrator's position in the capture cycle.
type State string

const (
	StateIdle           State = "idle"
	StateArmed          State = "armed"
	StateExtracting     State = "extracting"
	StateEscalating     State = "escalating"
	StateDelivered      State = "delivered"
	StateManualFallback State = "manual_fallback"
	StateFailed         State = "failed"
)

// Session is the single live capture session. It is owned by the
// sequencer goroutine.
type Session struct {
	ArmedAt       time.Time
	Triggered     bool
	LastTriggerAt time.Time
	State         State
}

// Content is what a completed capture hands to the presenter: Text,
// Screenshot or ManualEntryRequested.
type Content interface {
	Kind() string
	content()
}

// Text is readable text extracted from the foreground surface.
type Text struct {
	Text string
}

// Screenshot refers to a captured image by an opaque handle (a file path
// for the desktop screenshotter).
type Screenshot struct {
	Handle string
}

// ManualEntryRequested asks the user to enter the record by hand.
type ManualEntryRequested struct {
	AppHint string
	Reason  string
}

func (Text) Kind() string                 { return "text" }
func (Screenshot) Kind() string           { return "screenshot" }
func (ManualEntryRequested) Kind() string { return "manual_entry" }

func (Text) content()                 {}
func (Screenshot) content()           {}
func (ManualEntryRequested) content() {}

// FailureCode is a screenshot failure reported by the screenshotter.
type FailureCode string

const (
	FailIntervalTooShort FailureCode = "interval_too_short"
	FailInvalidDisplay   FailureCode = "invalid_display"
	FailInvalidScale     FailureCode = "invalid_scale"
	FailNoAccess         FailureCode = "no_access"
	FailNoHardwareBuffer FailureCode = "no_hardware_buffer"
	FailInternal         FailureCode = "internal_error"
)

// Retryable reports whether the failure falls back to manual entry rather
// than ending the cycle with an error. Codes outside the known set are not
// retryable.
func (c FailureCode) Retryable() bool {
	switch c {
	case FailIntervalTooShort, FailInvalidDisplay, FailInvalidScale:
		return true
	}
	return false
}

// ScreenshotResult is delivered to the screenshot callback. An empty Code
// means success.
type ScreenshotResult struct {
	Handle string
	Code   FailureCode
}

// Outcome is the terminal result of one capture cycle.
type Outcome struct {
	Source  Source
	Reason  string
	Surface string
	State   State
	// Content is nil when Err is set.
	Content Content
	// Failure is the screenshot failure that led to manual fallback, if any.
	Failure FailureCode
	Err     error
	// Resumed marks an escalation re-issued after a restart.
	Resumed bool
	At      time.Time
}

// OutcomeView is the JSON form of an Outcome.
type OutcomeView struct {
	Kind       string         `json:"kind"`
	Source     string         `json:"source"`
	Reason     string         `json:"reason,omitempty"`
	Surface    string         `json:"surface,omitempty"`
	State      string         `json:"state"`
	Text       string         `json:"text,omitempty"`
	Screenshot string         `json:"screenshot,omitempty"`
	AppHint    string         `json:"app_hint,omitempty"`
	Failure    string         `json:"failure,omitempty"`
	Resumed    bool           `json:"resumed,omitempty"`
	At         int64          `json:"at"`
	Error      map[string]any `json:"error,omitempty"`
}

// View converts o for JSON output.
func (o Outcome) View() OutcomeView {
	v := OutcomeView{
		Source:  string(o.Source),
		Reason:  o.Reason,
		Surface: o.Surface,
		State:   string(o.State),
		Failure: string(o.Failure),
		Resumed: o.Resumed,
		At:      o.At.UnixMilli(),
	}
	switch c := o.Content.(type) {
	case Text:
		v.Kind = c.Kind()
		v.Text = c.Text
	case Screenshot:
		v.Kind = c.Kind()
		v.Screenshot = c.Handle
	case ManualEntryRequested:
		v.Kind = c.Kind()
		v.AppHint = c.AppHint
	}
	if o.Err != nil {
		v.Kind = "error"
		if lErr, ok := errors.As(o.Err); ok {
			v.Error = map[string]any{"code": string(lErr.Code), "message": lErr.Message}
		} else {
			v.Error = map[string]any{"code": string(errors.ErrInternal), "message": o.Err.Error()}
		}
	}
	return v
}
