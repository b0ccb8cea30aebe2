package ops

import (
	"context"
	"database/sql"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/hpungsan/autoledger/internal/capture"
	"github.com/hpungsan/autoledger/internal/config"
	"github.com/hpungsan/autoledger/internal/db"
	"github.com/hpungsan/autoledger/internal/errors"
	"github.com/hpungsan/autoledger/internal/extract"
	"github.com/hpungsan/autoledger/internal/inference"
	"github.com/hpungsan/autoledger/internal/journal"
	"github.com/hpungsan/autoledger/internal/ledger"
	"github.com/hpungsan/autoledger/internal/platform"
)

// CaptureInput contains parameters for the Capture operation.
type CaptureInput struct {
	Source string        // hotkey (default), quick_toggle or broadcast
	Origin string        // optional reason tag, e.g. the broadcast sender
	Tree   *extract.Node // foreground content tree; nil means extraction is unavailable

	// ScreenshotDir receives captured PNGs, normally <baseDir>/screenshots.
	ScreenshotDir string
	// Screenshotter replaces the configured screenshot command when set.
	Screenshotter capture.Screenshotter

	Parse bool          // ask the model for a row suggestion
	Save  bool          // append the suggestion to the ledger (requires Parse)
	Wait  time.Duration // default: cfg.CaptureWaitMillis

	Logger *slog.Logger
}

// ErrorView is the JSON form of a non-fatal error reported inside an output.
type ErrorView struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CaptureOutput contains the result of the Capture operation.
type CaptureOutput struct {
	ID             string               `json:"id"`
	Outcome        capture.OutcomeView  `json:"outcome"`
	ResumedOutcome *capture.OutcomeView `json:"resumed_outcome,omitempty"`
	Suggested
}

// Suggested carries the model's row suggestion for captured content.
type Suggested struct {
	Suggestion *RowItem      `json:"suggestion,omitempty"`
	ParseError *ErrorView    `json:"parse_error,omitempty"`
	Saved      *AppendOutput `json:"saved,omitempty"`
}

// Capture runs one capture cycle end to end. Any screenshot left pending by
// an earlier process is resumed first. Every outcome is recorded in history.
func Capture(ctx context.Context, database *sql.DB, cfg *config.Config, input CaptureInput) (*CaptureOutput, error) {
	src := capture.SourceHotkey
	if input.Source != "" {
		var err error
		if src, err = capture.ParseSource(input.Source); err != nil {
			return nil, err
		}
	}
	if input.Save && !input.Parse {
		return nil, errors.NewInvalidRequest("save requires parse")
	}

	logger := input.Logger
	if logger == nil {
		logger = slog.Default()
	}
	wait := input.Wait
	if wait <= 0 {
		wait = config.Millis(cfg.CaptureWaitMillis)
	}
	shotDir := input.ScreenshotDir
	if shotDir == "" {
		shotDir = filepath.Join(filepath.Dir(cfg.LedgerPath), db.ScreenshotsDir)
	}
	shots := input.Screenshotter
	if shots == nil {
		shots = platform.NewCommandScreenshotter(cfg.ScreenshotCommand, shotDir,
			config.Millis(cfg.ScreenshotMinIntervalMillis), platform.WithLogger(logger))
	}

	// A pending screenshot is re-issued at once and delivered before the
	// requested capture runs.
	opts := capture.OptionsFromConfig(cfg)
	opts.ResumeDelay = 0

	presenter := capture.NewChannelPresenter(4, logger)
	orch := capture.New(capture.Deps{
		Surface:       platform.NewTreeSurface(input.Tree, input.Tree != nil),
		Screenshotter: shots,
		Presenter:     presenter,
		Journal:       newJournal(database, cfg),
		Logger:        logger,
	}, opts)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = orch.Run(runCtx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	resumed, err := orch.Start(ctx)
	if err != nil {
		logger.Warn("pending screenshot check failed", "error", err)
	}
	trigger := capture.TriggerEvent{Source: src, Origin: input.Origin}
	if !resumed {
		orch.Trigger(trigger)
	}

	recorder := NewRecorder(database, logger)
	timer := time.NewTimer(wait)
	defer timer.Stop()

	output := &CaptureOutput{}
	for {
		select {
		case out := <-presenter.C:
			id, err := recorder.Record(ctx, out)
			if err != nil {
				return nil, err
			}
			if out.Resumed {
				view := out.View()
				output.ResumedOutcome = &view
				if resumed {
					resumed = false
					orch.Trigger(trigger)
				}
				continue
			}
			output.ID = id
			output.Outcome = out.View()
			if input.Parse {
				if err := suggest(ctx, cfg, shotDir, out, input.Save, &output.Suggested, logger); err != nil {
					return nil, err
				}
			}
			return output, nil
		case <-timer.C:
			return nil, errors.NewCaptureTimeout(wait.Milliseconds())
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// suggest asks the model for a row. Model failures are reported in the
// output; only a failed ledger write is returned as an error.
func suggest(ctx context.Context, cfg *config.Config, shotDir string, out capture.Outcome, save bool, output *Suggested, logger *slog.Logger) error {
	row, err := parseOutcome(ctx, cfg, shotDir, out, logger)
	if err != nil {
		output.ParseError = errorView(err)
		return nil
	}
	if row == nil {
		return nil
	}
	item, err := newRowItem(*row)
	if err != nil {
		return err
	}
	output.Suggestion = &item
	if !save {
		return nil
	}
	saved, err := appendRow(ctx, cfg, *row)
	if err != nil {
		return err
	}
	output.Saved = saved
	output.Suggestion = &saved.Row
	return nil
}

func parseOutcome(ctx context.Context, cfg *config.Config, shotDir string, out capture.Outcome, logger *slog.Logger) (*ledger.Row, error) {
	client, err := inference.New(cfg, inference.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	var (
		expense *inference.Expense
		raw     string
	)
	switch c := out.Content.(type) {
	case capture.Text:
		raw = c.Text
		expense, err = client.ParseText(ctx, c.Text)
	case capture.Screenshot:
		data, rerr := ReadScreenshot(c.Handle, shotDir)
		if rerr != nil {
			return nil, rerr
		}
		expense, err = client.ParseScreenshot(ctx, data)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	row := expense.Row(out.At)
	if row.Raw == "" {
		row.Raw = raw
	}
	return &row, nil
}

func newJournal(database *sql.DB, cfg *config.Config) *journal.Journal {
	opts := []journal.Option{}
	if cfg.PendingFreshMillis > 0 {
		opts = append(opts, journal.WithFreshness(config.Millis(cfg.PendingFreshMillis)))
	}
	return journal.New(db.NewKV(database), opts...)
}

func errorView(err error) *ErrorView {
	if lErr, ok := errors.As(err); ok {
		return &ErrorView{Code: string(lErr.Code), Message: lErr.Message}
	}
	return &ErrorView{Code: string(errors.ErrInternal), Message: err.Error()}
}
