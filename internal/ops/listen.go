package ops

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/hpungsan/autoledger/internal/capture"
	"github.com/hpungsan/autoledger/internal/config"
	"github.com/hpungsan/autoledger/internal/db"
	"github.com/hpungsan/autoledger/internal/errors"
	"github.com/hpungsan/autoledger/internal/extract"
	"github.com/hpungsan/autoledger/internal/platform"
)

// Listen event types.
const (
	EventKeyDown    = "key_down"
	EventKeyUp      = "key_up"
	EventTrigger    = "trigger"
	EventTree       = "tree"
	EventExtraction = "extraction"
)

// maxEventBytes bounds one JSON line; content trees can be large.
const maxEventBytes = 16 << 20

// ListenEvent is one line of the listen input stream.
type ListenEvent struct {
	Type      string        `json:"type"`
	Repeat    int           `json:"repeat,omitempty"`    // key_down
	Source    string        `json:"source,omitempty"`    // trigger
	Origin    string        `json:"origin,omitempty"`    // trigger
	Tree      *extract.Node `json:"tree,omitempty"`      // tree
	Available *bool         `json:"available,omitempty"` // extraction
}

// ListenInput contains parameters for the Listen operation.
type ListenInput struct {
	In  io.Reader // JSON-lines events
	Out io.Writer // JSON-lines outcomes

	ScreenshotDir string
	Screenshotter capture.Screenshotter // nil uses cfg.ScreenshotCommand
	Clock         capture.Clock         // nil uses the wall clock

	// Linger keeps the orchestrator running after the input ends so
	// delayed work (broadcast delay, screenshots) can finish.
	Linger time.Duration

	Logger *slog.Logger
}

// ListenOutput summarizes a finished Listen session.
type ListenOutput struct {
	Events  int  `json:"events"`
	Invalid int  `json:"invalid"`
	Resumed bool `json:"resumed"`
}

// Listen drives a long-lived orchestrator from a stream of input events
// until the stream ends or ctx is cancelled. Outcomes are written to Out
// and recorded in history.
func Listen(ctx context.Context, database *sql.DB, cfg *config.Config, input ListenInput) (*ListenOutput, error) {
	if input.In == nil || input.Out == nil {
		return nil, errors.NewInvalidRequest("listen requires an input and an output stream")
	}
	logger := input.Logger
	if logger == nil {
		logger = slog.Default()
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

	surface := platform.NewTreeSurface(nil, true)
	orch := capture.New(capture.Deps{
		Surface:       surface,
		Screenshotter: shots,
		Presenter: capture.MultiPresenter{
			platform.NewJSONPresenter(input.Out, logger),
			NewRecorder(database, logger),
		},
		Journal: newJournal(database, cfg),
		Clock:   input.Clock,
		Logger:  logger,
	}, capture.OptionsFromConfig(cfg))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- orch.Run(runCtx) }()

	output := &ListenOutput{}
	resumed, err := orch.Start(ctx)
	if err != nil {
		logger.Warn("pending screenshot check failed", "error", err)
	}
	output.Resumed = resumed

	lines := make(chan []byte)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(input.In)
		sc.Buffer(make([]byte, 0, 64*1024), maxEventBytes)
		for sc.Scan() {
			line := append([]byte(nil), sc.Bytes()...)
			select {
			case lines <- line:
			case <-runCtx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	logger.Info("listening for capture events")
	for open := true; open; {
		select {
		case line, ok := <-lines:
			if !ok {
				open = false
				break
			}
			if len(strings.TrimSpace(string(line))) == 0 {
				continue
			}
			if err := dispatch(orch, surface, line); err != nil {
				output.Invalid++
				logger.Warn("invalid event", "error", err)
				continue
			}
			output.Events++
		case <-ctx.Done():
			orch.Stop()
			<-done
			return output, nil
		}
	}

	select {
	case err := <-scanErr:
		if err != nil {
			logger.Error("event stream read failed", "error", err)
		}
	default:
	}

	if input.Linger > 0 {
		select {
		case <-time.After(input.Linger):
		case <-ctx.Done():
		}
	}
	orch.Stop()
	if err := <-done; err != nil && ctx.Err() == nil {
		return output, errors.NewInternal(err)
	}
	logger.Info("event stream closed", "events", output.Events, "invalid", output.Invalid)
	return output, nil
}

func dispatch(orch *capture.Orchestrator, surface *platform.TreeSurface, line []byte) error {
	var ev ListenEvent
	if err := json.Unmarshal(line, &ev); err != nil {
		return errors.NewInvalidRequest("event is not JSON: " + err.Error())
	}
	switch ev.Type {
	case EventKeyDown:
		orch.KeyDown(ev.Repeat)
	case EventKeyUp:
		orch.KeyUp()
	case EventTrigger:
		src, err := capture.ParseSource(ev.Source)
		if err != nil {
			return err
		}
		orch.Trigger(capture.TriggerEvent{Source: src, Origin: ev.Origin})
	case EventTree:
		if ev.Tree == nil {
			return errors.NewInvalidRequest("tree event without tree")
		}
		surface.Publish(ev.Tree)
		orch.Observe(ev.Tree)
	case EventExtraction:
		if ev.Available == nil {
			return errors.NewInvalidRequest("extraction event without available")
		}
		surface.SetAvailable(*ev.Available)
	default:
		return errors.NewInvalidRequest("unknown event type " + ev.Type)
	}
	return nil
}
