// Package capture turns trigger events into captured screen content.
//
// The Orchestrator is a single-writer state machine. Every transition runs
// on the goroutine executing Run; triggers, key events, timers and
// screenshot callbacks only enqueue tasks. A capture cycle tries, in order:
// text extraction from the foreground surface, a screenshot (guarded by a
// durable journal record so a killed process can resume it), and finally a
// request for manual entry.
package capture

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hpungsan/autoledger/internal/config"
	"github.com/hpungsan/autoledger/internal/errors"
	"github.com/hpungsan/autoledger/internal/extract"
	"github.com/hpungsan/autoledger/internal/journal"
)

// SourceResume marks a cycle re-issued from the journal at startup.
const SourceResume Source = "resume"

// Clock abstracts time so tests can drive timers deterministically.
type Clock interface {
	Now() time.Time
	// AfterFunc runs f after d and returns a function that cancels it.
	AfterFunc(d time.Duration, f func()) (stop func() bool)
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// SystemClock returns the wall clock.
func SystemClock() Clock { return systemClock{} }

// Surface gives access to the foreground content tree.
type Surface interface {
	// Available reports whether extraction can run right now.
	Available() bool
	Foreground(ctx context.Context) (*extract.Node, error)
}

// Screenshotter captures the screen asynchronously. done may be called from
// any goroutine, at most once per request.
type Screenshotter interface {
	Available() bool
	RequestScreenshot(ctx context.Context, done func(ScreenshotResult))
}

// Presenter receives the outcome of every capture cycle.
type Presenter interface {
	Present(ctx context.Context, o Outcome)
}

// PresenterFunc adapts a function to Presenter.
type PresenterFunc func(ctx context.Context, o Outcome)

func (f PresenterFunc) Present(ctx context.Context, o Outcome) { f(ctx, o) }

// PendingJournal is the durable in-flight marker. *journal.Journal
// satisfies it.
type PendingJournal interface {
	SetPending(ctx context.Context, reason string) error
	ConsumePending(ctx context.Context) (string, bool, error)
	Clear(ctx context.Context) error
}

// Options holds the orchestrator's timing knobs and surface filter.
type Options struct {
	Debounce          time.Duration
	LongPress         time.Duration
	SettlePoll        time.Duration
	SettleMaxWait     time.Duration
	BroadcastDelay    time.Duration
	ResumeDelay       time.Duration
	CacheMaxAge       time.Duration
	ScreenshotTimeout time.Duration
	Filter            extract.SurfaceFilter
}

// DefaultOptions mirrors config.DefaultConfig.
func DefaultOptions() Options {
	return OptionsFromConfig(config.DefaultConfig())
}

// OptionsFromConfig reads the capture knobs from cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Debounce:          config.Millis(cfg.DebounceMillis),
		LongPress:         config.Millis(cfg.LongPressMillis),
		SettlePoll:        config.Millis(cfg.SettlePollMillis),
		SettleMaxWait:     config.Millis(cfg.SettleMaxWaitMillis),
		BroadcastDelay:    config.Millis(cfg.BroadcastDelayMillis),
		ResumeDelay:       config.Millis(cfg.ResumeDelayMillis),
		CacheMaxAge:       config.Millis(cfg.CacheMaxAgeMillis),
		ScreenshotTimeout: config.Millis(cfg.ScreenshotTimeoutMillis),
		Filter: extract.SurfaceFilter{
			Patterns: cfg.SystemSurfaces,
			Self:     cfg.SelfSurface,
		},
	}
}

// Deps are the orchestrator's collaborators. Surface and Screenshotter may
// be nil, meaning the capability is absent. A nil Journal keeps pending
// records in memory only.
type Deps struct {
	Surface       Surface
	Screenshotter Screenshotter
	Presenter     Presenter
	Journal       PendingJournal
	Clock         Clock
	Logger        *slog.Logger
}

// cycle carries what is known about the capture in progress.
type cycle struct {
	source  Source
	reason  string
	hint    string
	resumed bool
}

type escalation struct {
	cycle
	attempt     int
	stopTimeout func() bool
}

// Orchestrator runs capture cycles.
//
// Thread-safety model:
//   - KeyDown, KeyUp, Trigger, Observe, Start: safe from any goroutine
//   - Run: must be called from exactly one goroutine
type Orchestrator struct {
	opts      Options
	surface   Surface
	shots     Screenshotter
	presenter Presenter
	journal   PendingJournal
	clock     Clock
	log       *slog.Logger

	cache   ScreenCache
	queue   *taskQueue
	started atomic.Bool

	// Owned by the sequencer goroutine.
	session  Session
	holdSeq  int
	stopHold func() bool
	attempt  int
	esc      *escalation
}

// New builds an Orchestrator. Call Run to start processing.
func New(deps Deps, opts Options) *Orchestrator {
	o := &Orchestrator{
		opts:      opts,
		surface:   deps.Surface,
		shots:     deps.Screenshotter,
		presenter: deps.Presenter,
		journal:   deps.Journal,
		clock:     deps.Clock,
		log:       deps.Logger,
		queue:     newTaskQueue(),
		session:   Session{State: StateIdle},
	}
	if o.clock == nil {
		o.clock = SystemClock()
	}
	if o.log == nil {
		o.log = slog.Default()
	}
	if o.journal == nil {
		o.journal = journal.New(journal.NewMemoryStore(), journal.WithClock(o.clock.Now))
	}
	return o
}

// Run processes tasks until ctx is cancelled or Stop is called.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.log.Debug("capture orchestrator starting")
	for {
		if t, ok := o.queue.TryDequeue(); ok {
			t(ctx)
			continue
		}

		select {
		case <-ctx.Done():
			o.log.Debug("capture orchestrator stopping: context cancelled")
			o.queue.Close()
			return ctx.Err()
		case _, ok := <-o.queue.Wait():
			if !ok && o.queue.Len() == 0 {
				o.log.Debug("capture orchestrator stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop closes the task queue; Run returns once it is drained.
func (o *Orchestrator) Stop() {
	o.queue.Close()
}

// drain runs queued tasks on the calling goroutine until the queue is empty.
func (o *Orchestrator) drain(ctx context.Context) {
	for {
		t, ok := o.queue.TryDequeue()
		if !ok {
			return
		}
		t(ctx)
	}
}

func (o *Orchestrator) post(t task) {
	if !o.queue.Enqueue(t) {
		o.log.Debug("capture task dropped: orchestrator stopped")
	}
}

func (o *Orchestrator) after(d time.Duration, t task) func() bool {
	return o.clock.AfterFunc(d, func() { o.post(t) })
}

// KeyDown reports the capture key going down. Auto-repeat events
// (repeat > 0) are ignored.
func (o *Orchestrator) KeyDown(repeat int) {
	o.post(func(ctx context.Context) { o.handleKeyDown(ctx, repeat) })
}

// KeyUp reports the capture key being released.
func (o *Orchestrator) KeyUp() {
	o.post(func(ctx context.Context) { o.handleKeyUp(ctx) })
}

// Trigger submits a trigger event.
func (o *Orchestrator) Trigger(ev TriggerEvent) {
	if ev.At.IsZero() {
		ev.At = o.clock.Now()
	}
	o.post(func(ctx context.Context) { o.handleTrigger(ctx, ev) })
}

// Observe records the text of a content-tree change in the screen cache.
// Excluded surfaces and blank text leave the cache untouched. It reports
// whether the cache was updated.
func (o *Orchestrator) Observe(root *extract.Node) bool {
	if root == nil || o.opts.Filter.Excluded(root.SurfaceID) {
		return false
	}
	text := extract.Extract(root)
	if text == "" {
		return false
	}
	o.cache.Put(CacheEntry{Text: text, Surface: root.SurfaceID, CapturedAt: o.clock.Now()})
	return true
}

// Start checks the journal for a screenshot left in flight by a previous
// process and, when a fresh one exists, re-issues it after the resume
// delay. Only the first call has any effect. It reports whether a resume
// was scheduled.
func (o *Orchestrator) Start(ctx context.Context) (bool, error) {
	if !o.started.CompareAndSwap(false, true) {
		return false, nil
	}
	reason, ok, err := o.journal.ConsumePending(ctx)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	o.log.Info("pending screenshot found at startup, re-issuing",
		"reason", reason, "delay_ms", o.opts.ResumeDelay.Milliseconds())
	o.after(o.opts.ResumeDelay, func(ctx context.Context) { o.resume(ctx, reason) })
	return true, nil
}

// ---- sequencer-side handlers ----

func (o *Orchestrator) handleKeyDown(ctx context.Context, repeat int) {
	if repeat > 0 || !o.session.ArmedAt.IsZero() {
		return
	}
	now := o.clock.Now()
	if o.debounced(now) {
		o.log.Info("long-press not armed: debounce window open",
			"since_last_ms", now.Sub(o.session.LastTriggerAt).Milliseconds())
		return
	}

	o.session.ArmedAt = now
	o.session.Triggered = false
	if o.esc == nil {
		o.session.State = StateArmed
	}
	o.holdSeq++
	seq := o.holdSeq
	o.stopHold = o.after(o.opts.LongPress, func(ctx context.Context) { o.longPressElapsed(ctx, seq) })
	o.log.Debug("long-press armed", "hold", seq)
}

func (o *Orchestrator) longPressElapsed(ctx context.Context, seq int) {
	if seq != o.holdSeq || o.session.ArmedAt.IsZero() || o.session.Triggered {
		return
	}
	o.session.Triggered = true
	o.stopHold = nil
	o.handleTrigger(ctx, TriggerEvent{Source: SourceHotkey, Origin: "longpress", At: o.clock.Now()})
}

func (o *Orchestrator) handleKeyUp(_ context.Context) {
	if o.session.ArmedAt.IsZero() {
		return
	}
	if o.stopHold != nil {
		o.stopHold()
		o.stopHold = nil
	}
	if !o.session.Triggered {
		o.log.Debug("key released before long-press elapsed",
			"held_ms", o.clock.Now().Sub(o.session.ArmedAt).Milliseconds())
	}
	o.session.ArmedAt = time.Time{}
	o.session.Triggered = false
	if o.session.State == StateArmed {
		o.session.State = StateIdle
	}
}

func (o *Orchestrator) handleTrigger(ctx context.Context, ev TriggerEvent) {
	if o.reject(ev, "arrival") {
		return
	}
	o.log.Info("trigger accepted", "source", ev.Source, "reason", ev.Reason())

	switch ev.Source {
	case SourceBroadcast:
		o.after(o.opts.BroadcastDelay, func(ctx context.Context) { o.beginExtraction(ctx, ev) })
	case SourceQuickToggle:
		o.settle(ctx, ev, o.clock.Now().Add(o.opts.SettleMaxWait))
	default:
		o.beginExtraction(ctx, ev)
	}
}

func (o *Orchestrator) debounced(now time.Time) bool {
	last := o.session.LastTriggerAt
	return !last.IsZero() && now.Sub(last) < o.opts.Debounce
}

// reject applies the global debounce and the one-capture-in-flight rule.
func (o *Orchestrator) reject(ev TriggerEvent, stage string) bool {
	now := o.clock.Now()
	if o.debounced(now) {
		lErr := errors.NewDebounced(string(ev.Source), now.Sub(o.session.LastTriggerAt).Milliseconds())
		o.log.Info("trigger debounced", "source", ev.Source, "reason", ev.Reason(),
			"stage", stage, "code", lErr.Code, "detail", lErr.Message)
		return true
	}
	if o.esc != nil {
		o.log.Info("trigger rejected: screenshot in flight", "source", ev.Source,
			"stage", stage, "attempt", o.esc.attempt)
		return true
	}
	return false
}

// settle polls until the foreground is no longer an excluded surface or
// the deadline passes, then begins extraction either way.
func (o *Orchestrator) settle(ctx context.Context, ev TriggerEvent, deadline time.Time) {
	if o.surface == nil || !o.surface.Available() {
		o.beginExtraction(ctx, ev)
		return
	}
	id := o.foregroundID(ctx)
	if !o.opts.Filter.Excluded(id) {
		o.beginExtraction(ctx, ev)
		return
	}
	if !o.clock.Now().Before(deadline) {
		o.log.Info("foreground did not settle, proceeding", "surface", id)
		o.beginExtraction(ctx, ev)
		return
	}
	o.log.Debug("waiting for system surface to close", "surface", id)
	o.after(o.opts.SettlePoll, func(ctx context.Context) { o.settle(ctx, ev, deadline) })
}

func (o *Orchestrator) foregroundID(ctx context.Context) string {
	root, err := o.surface.Foreground(ctx)
	if err != nil || root == nil {
		return ""
	}
	return root.SurfaceID
}

func (o *Orchestrator) beginExtraction(ctx context.Context, ev TriggerEvent) {
	if o.reject(ev, "transition") {
		return
	}
	now := o.clock.Now()
	o.session.LastTriggerAt = now
	o.session.State = StateExtracting
	c := cycle{source: ev.Source, reason: ev.Reason()}

	if o.surface == nil || !o.surface.Available() {
		if e, ok := o.cache.Fresh(now, o.opts.CacheMaxAge); ok {
			o.log.Info("extraction unavailable, using screen cache",
				"surface", e.Surface, "age_ms", now.Sub(e.CapturedAt).Milliseconds())
			c.hint = e.Surface
			o.deliver(ctx, c, Text{Text: e.Text})
			return
		}
		o.log.Info("extraction unavailable and no fresh screen cache")
		o.escalate(ctx, c)
		return
	}

	root, err := o.surface.Foreground(ctx)
	if err != nil {
		o.log.Warn("foreground snapshot failed", "error", err)
	}
	if root != nil {
		c.hint = root.SurfaceID
		if o.opts.Filter.Excluded(root.SurfaceID) {
			o.log.Info("foreground surface excluded from extraction", "surface", root.SurfaceID)
		}
	}

	text := o.opts.Filter.ExtractSurface(root)
	if text != "" {
		o.log.Info("text extracted", "surface", c.hint, "chars", len([]rune(text)))
		o.deliver(ctx, c, Text{Text: text})
		return
	}

	lErr := errors.NewExtractionEmpty(c.hint)
	o.log.Info("extraction empty, escalating", "surface", c.hint, "reason", c.reason, "code", lErr.Code)
	o.escalate(ctx, c)
}

func (o *Orchestrator) escalate(ctx context.Context, c cycle) {
	if o.shots == nil || !o.shots.Available() {
		o.log.Info("screenshot capability unavailable, requesting manual entry", "reason", c.reason)
		o.manualFallback(ctx, c, "")
		return
	}

	// The journal write must land before the request is issued.
	if err := o.journal.SetPending(ctx, c.reason); err != nil {
		o.log.Error("pending record not written, restart recovery unavailable for this capture",
			"reason", c.reason, "error", err)
	}

	o.attempt++
	esc := &escalation{cycle: c, attempt: o.attempt}
	o.esc = esc
	o.session.State = StateEscalating
	if o.opts.ScreenshotTimeout > 0 {
		esc.stopTimeout = o.after(o.opts.ScreenshotTimeout, func(ctx context.Context) {
			o.screenshotTimedOut(ctx, esc.attempt)
		})
	}

	o.log.Info("requesting screenshot", "reason", c.reason, "surface", c.hint,
		"attempt", esc.attempt, "resumed", c.resumed)
	attempt := esc.attempt
	o.shots.RequestScreenshot(ctx, func(res ScreenshotResult) {
		o.post(func(ctx context.Context) { o.screenshotDone(ctx, attempt, res) })
	})
}

func (o *Orchestrator) resume(ctx context.Context, reason string) {
	if o.esc != nil {
		o.log.Info("resume skipped: screenshot already in flight", "reason", reason)
		return
	}
	c := cycle{source: SourceResume, reason: reason, resumed: true}
	if o.surface != nil && o.surface.Available() {
		c.hint = o.foregroundID(ctx)
	}
	o.escalate(ctx, c)
}

// finishEscalation ends the in-flight escalation and clears the journal.
func (o *Orchestrator) finishEscalation(ctx context.Context) *escalation {
	esc := o.esc
	o.esc = nil
	if esc.stopTimeout != nil {
		esc.stopTimeout()
	}
	if err := o.journal.Clear(ctx); err != nil {
		o.log.Warn("pending record not cleared", "error", err)
	}
	return esc
}

func (o *Orchestrator) screenshotDone(ctx context.Context, attempt int, res ScreenshotResult) {
	if o.esc == nil || o.esc.attempt != attempt {
		o.log.Warn("stale screenshot callback ignored", "attempt", attempt, "handle", res.Handle, "failure", res.Code)
		return
	}
	esc := o.finishEscalation(ctx)

	switch {
	case res.Code == "":
		o.log.Info("screenshot captured", "handle", res.Handle, "reason", esc.reason)
		o.deliver(ctx, esc.cycle, Screenshot{Handle: res.Handle})
	case res.Code.Retryable():
		lErr := errors.NewScreenshotRetryable(string(res.Code))
		o.log.Warn("screenshot failed, requesting manual entry", "failure", res.Code, "code", lErr.Code)
		o.manualFallback(ctx, esc.cycle, res.Code)
	default:
		lErr := errors.NewScreenshotFatal(string(res.Code))
		o.log.Error("screenshot failed", "failure", res.Code, "code", lErr.Code)
		o.session.State = StateFailed
		o.present(ctx, Outcome{
			Source:  esc.source,
			Reason:  esc.reason,
			Surface: esc.hint,
			State:   StateFailed,
			Failure: res.Code,
			Err:     lErr,
			Resumed: esc.resumed,
			At:      o.clock.Now(),
		})
	}
}

func (o *Orchestrator) screenshotTimedOut(ctx context.Context, attempt int) {
	if o.esc == nil || o.esc.attempt != attempt {
		return
	}
	esc := o.finishEscalation(ctx)
	o.log.Warn("screenshot callback timed out, requesting manual entry",
		"attempt", attempt, "timeout_ms", o.opts.ScreenshotTimeout.Milliseconds())
	o.manualFallback(ctx, esc.cycle, "")
}

func (o *Orchestrator) deliver(ctx context.Context, c cycle, content Content) {
	o.session.State = StateDelivered
	o.present(ctx, Outcome{
		Source:  c.source,
		Reason:  c.reason,
		Surface: c.hint,
		State:   StateDelivered,
		Content: content,
		Resumed: c.resumed,
		At:      o.clock.Now(),
	})
}

func (o *Orchestrator) manualFallback(ctx context.Context, c cycle, code FailureCode) {
	o.session.State = StateManualFallback
	o.present(ctx, Outcome{
		Source:  c.source,
		Reason:  c.reason,
		Surface: c.hint,
		State:   StateManualFallback,
		Content: ManualEntryRequested{AppHint: c.hint, Reason: c.reason},
		Failure: code,
		Resumed: c.resumed,
		At:      o.clock.Now(),
	})
}

func (o *Orchestrator) present(ctx context.Context, out Outcome) {
	if o.presenter == nil {
		return
	}
	o.presenter.Present(ctx, out)
}
