package platform

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"image/png"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/hpungsan/autoledger/internal/capture"
	"github.com/hpungsan/autoledger/internal/db"
)

// Runner executes argv and returns its stdout.
type Runner func(ctx context.Context, argv []string) ([]byte, error)

func defaultRunner(ctx context.Context, argv []string) ([]byte, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("missing command")
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...) // #nosec G204
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if stderrors.As(err, &exitErr) {
			return nil, fmt.Errorf("%w: %s", err, bytes.TrimSpace(stderr.Bytes()))
		}
		return nil, err
	}
	return stdout.Bytes(), nil
}

// CommandScreenshotter captures the screen by running an external command
// that writes a PNG to stdout, and stores the image as <dir>/<ulid>.png.
type CommandScreenshotter struct {
	argv        []string
	dir         string
	minInterval time.Duration
	run         Runner
	now         func() time.Time
	log         *slog.Logger

	mu   sync.Mutex
	last time.Time
}

// ScreenshotOption configures a CommandScreenshotter.
type ScreenshotOption func(*CommandScreenshotter)

// WithRunner replaces command execution, for tests.
func WithRunner(r Runner) ScreenshotOption {
	return func(s *CommandScreenshotter) { s.run = r }
}

// WithNow replaces the time source used for the minimum-interval check.
func WithNow(now func() time.Time) ScreenshotOption {
	return func(s *CommandScreenshotter) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ScreenshotOption {
	return func(s *CommandScreenshotter) { s.log = l }
}

// NewCommandScreenshotter returns a screenshotter running argv. An empty
// argv yields a screenshotter that reports itself unavailable.
func NewCommandScreenshotter(argv []string, dir string, minInterval time.Duration, opts ...ScreenshotOption) *CommandScreenshotter {
	s := &CommandScreenshotter{
		argv:        argv,
		dir:         dir,
		minInterval: minInterval,
		run:         defaultRunner,
		now:         time.Now,
		log:         slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Available implements capture.Screenshotter.
func (s *CommandScreenshotter) Available() bool {
	return len(s.argv) > 0 && s.argv[0] != ""
}

// RequestScreenshot implements capture.Screenshotter. The command runs on
// its own goroutine; done is called exactly once.
func (s *CommandScreenshotter) RequestScreenshot(ctx context.Context, done func(capture.ScreenshotResult)) {
	now := s.now()
	s.mu.Lock()
	tooSoon := !s.last.IsZero() && now.Sub(s.last) < s.minInterval
	if !tooSoon {
		s.last = now
	}
	s.mu.Unlock()

	if tooSoon {
		go done(capture.ScreenshotResult{Code: capture.FailIntervalTooShort})
		return
	}

	go func() {
		done(s.capture(ctx, now))
	}()
}

func (s *CommandScreenshotter) capture(ctx context.Context, at time.Time) capture.ScreenshotResult {
	out, err := s.run(ctx, s.argv)
	if err != nil {
		code := classifyRunError(err)
		s.log.Warn("screenshot command failed", "command", s.argv[0], "failure", code, "error", err)
		return capture.ScreenshotResult{Code: code}
	}
	if len(out) == 0 {
		return capture.ScreenshotResult{Code: capture.FailNoHardwareBuffer}
	}

	cfg, err := png.DecodeConfig(bytes.NewReader(out))
	if err != nil {
		s.log.Warn("screenshot output is not a PNG", "bytes", len(out), "error", err)
		return capture.ScreenshotResult{Code: capture.FailInvalidDisplay}
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return capture.ScreenshotResult{Code: capture.FailInvalidScale}
	}

	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		s.log.Error("screenshot directory not writable", "dir", s.dir, "error", err)
		return capture.ScreenshotResult{Code: capture.FailInternal}
	}
	path := filepath.Join(s.dir, db.NewID(at)+".png")
	if err := os.WriteFile(path, out, 0o600); err != nil {
		s.log.Error("screenshot not saved", "path", path, "error", err)
		return capture.ScreenshotResult{Code: capture.FailInternal}
	}
	return capture.ScreenshotResult{Handle: path}
}

func classifyRunError(err error) capture.FailureCode {
	switch {
	case stderrors.Is(err, exec.ErrNotFound), stderrors.Is(err, fs.ErrNotExist), stderrors.Is(err, fs.ErrPermission):
		return capture.FailNoAccess
	default:
		return capture.FailInternal
	}
}
