package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/autoledger/internal/config"
	"github.com/hpungsan/autoledger/internal/errors"
	"github.com/hpungsan/autoledger/internal/extract"
	"github.com/hpungsan/autoledger/internal/ops"
	"github.com/hpungsan/autoledger/internal/platform"
	"github.com/hpungsan/autoledger/internal/web"
)

// maxStdinBytes bounds text piped to append --raw -.
const maxStdinBytes = 1 << 20

// newCLIApp creates the CLI application with all commands. shotDir is
// where captured screenshots live.
func newCLIApp(db *sql.DB, cfg *config.Config, shotDir string) *cli.App {
	app := &cli.App{
		Name:    "autoledger",
		Usage:   "Capture expenses from the screen into a CSV ledger",
		Version: Version,
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "verbose", Usage: "Enable debug logging on stderr"},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("verbose") {
				logLevel.Set(slog.LevelDebug)
			}
			return nil
		},
		Commands: []*cli.Command{
			appendCmd(cfg),
			listCmd(cfg),
			getCmd(cfg),
			statsCmd(cfg),
			captureCmd(db, cfg, shotDir),
			listenCmd(db, cfg, shotDir),
			historyCmd(db),
			exportCmd(cfg),
			importCmd(cfg),
			purgeCmd(db, shotDir),
			uiCmd(db, cfg, shotDir),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

func appendCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "append",
		Usage: "Append one row to the ledger",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "amount", Aliases: []string{"a"}, Required: true, Usage: "Signed amount, negative for expenses"},
			&cli.StringFlag{Name: "time", Aliases: []string{"t"}, Usage: "Local time \"YYYY-MM-DD HH:MM\" (default: now)"},
			&cli.StringFlag{Name: "app", Usage: "WeChat|Alipay|Bank|Unknown"},
			&cli.StringFlag{Name: "currency", Usage: "Currency code (default: CNY)"},
			&cli.StringFlag{Name: "merchant", Aliases: []string{"m"}, Usage: "Merchant or counterparty"},
			&cli.StringFlag{Name: "category", Aliases: []string{"c"}, Usage: "Category"},
			&cli.StringFlag{Name: "note", Aliases: []string{"n"}, Usage: "Note"},
			&cli.StringFlag{Name: "confidence", Usage: "Extraction confidence 0-1"},
			&cli.StringFlag{Name: "raw", Usage: "Source text; \"-\" reads it from stdin"},
		},
		Action: func(c *cli.Context) error {
			raw := c.String("raw")
			if raw == "-" {
				text, err := readAllLimited(c.App.Reader, maxStdinBytes)
				if err != nil {
					return outputError(err)
				}
				raw = text
			}
			output, err := ops.Append(c.Context, cfg, ops.AppendInput{
				Time:       c.String("time"),
				App:        c.String("app"),
				Amount:     c.String("amount"),
				Currency:   c.String("currency"),
				Merchant:   c.String("merchant"),
				Category:   c.String("category"),
				Note:       c.String("note"),
				Confidence: c.String("confidence"),
				Raw:        raw,
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, output)
		},
	}
}

func listCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List ledger rows, newest first",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "prefix", Aliases: []string{"p"}, Usage: "Time prefix, e.g. 2026-03"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultListLimit, Usage: "Max rows"},
			&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Usage: "Rows to skip"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.List(c.Context, cfg, ops.ListInput{
				Prefix: c.String("prefix"),
				Limit:  c.Int("limit"),
				Offset: c.Int("offset"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, output)
		},
	}
}

func getCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Show one ledger row by digest",
		ArgsUsage: "<digest>",
		Action: func(c *cli.Context) error {
			output, err := ops.GetRow(c.Context, cfg, c.Args().First())
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, output)
		},
	}
}

func statsCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Total expense and income for a day, month or year",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "period", Value: "month", Usage: "day|month|year"},
			&cli.StringFlag{Name: "anchor", Usage: "Date inside the period, YYYY-MM-DD (default: today)"},
			&cli.IntFlag{Name: "shift", Usage: "Periods to move from the anchor, e.g. -1"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Stats(c.Context, cfg, ops.StatsInput{
				Period: c.String("period"),
				Anchor: c.String("anchor"),
				Shift:  c.Int("shift"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, output)
		},
	}
}

func captureCmd(db *sql.DB, cfg *config.Config, shotDir string) *cli.Command {
	return &cli.Command{
		Name:  "capture",
		Usage: "Run one capture cycle and print its outcome",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "tree", Usage: "Content tree JSON file (\"-\" for stdin); omit when extraction is unavailable"},
			&cli.StringFlag{Name: "source", Aliases: []string{"s"}, Value: "hotkey", Usage: "hotkey|quick_toggle|broadcast"},
			&cli.StringFlag{Name: "origin", Usage: "Reason tag recorded with the capture"},
			&cli.BoolFlag{Name: "parse", Usage: "Ask the model for a row suggestion"},
			&cli.BoolFlag{Name: "save", Usage: "Append the suggestion to the ledger (implies --parse)"},
			&cli.DurationFlag{Name: "wait", Usage: "How long to wait for an outcome (default: capture_wait_ms)"},
		},
		Action: func(c *cli.Context) error {
			var tree *extract.Node
			if path := c.String("tree"); path != "" {
				var err error
				if tree, err = platform.LoadTree(path); err != nil {
					return outputError(err)
				}
			}
			save := c.Bool("save")
			output, err := ops.Capture(c.Context, db, cfg, ops.CaptureInput{
				Source:        c.String("source"),
				Origin:        c.String("origin"),
				Tree:          tree,
				ScreenshotDir: shotDir,
				Parse:         c.Bool("parse") || save,
				Save:          save,
				Wait:          c.Duration("wait"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, output)
		},
	}
}

func listenCmd(db *sql.DB, cfg *config.Config, shotDir string) *cli.Command {
	return &cli.Command{
		Name:  "listen",
		Usage: "Read capture events as JSON lines on stdin and write outcomes as JSON lines",
		Description: `Each input line is one event:
   {"type":"key_down","repeat":0}  {"type":"key_up"}
   {"type":"trigger","source":"broadcast","origin":"tasker"}
   {"type":"tree","tree":{...}}    {"type":"extraction","available":false}`,
		Flags: []cli.Flag{
			&cli.DurationFlag{Name: "linger", Value: 2 * time.Second, Usage: "Keep running after input ends so pending work can finish"},
		},
		Action: func(c *cli.Context) error {
			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			output, err := ops.Listen(ctx, db, cfg, ops.ListenInput{
				In:            c.App.Reader,
				Out:           c.App.Writer,
				ScreenshotDir: shotDir,
				Linger:        c.Duration("linger"),
			})
			if err != nil {
				return outputError(err)
			}
			slog.Info("listen finished", "events", output.Events, "invalid", output.Invalid, "resumed", output.Resumed)
			return nil
		},
	}
}

func historyCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:      "history",
		Usage:     "List recorded captures, or show one by id",
		ArgsUsage: "[id]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "outcome", Usage: "delivered|manual_fallback|failed"},
			&cli.StringFlag{Name: "source", Aliases: []string{"s"}, Usage: "hotkey|quick_toggle|broadcast|resume"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultHistoryLimit, Usage: "Max records"},
			&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Usage: "Records to skip"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() > 0 {
				rec, err := ops.GetCapture(c.Context, db, c.Args().First())
				if err != nil {
					return outputError(err)
				}
				return outputJSON(c.App.Writer, rec)
			}
			output, err := ops.History(c.Context, db, ops.HistoryInput{
				Outcome: c.String("outcome"),
				Source:  c.String("source"),
				Limit:   c.Int("limit"),
				Offset:  c.Int("offset"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, output)
		},
	}
}

func exportCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export ledger rows to a JSONL file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "Export file path (default: <ledger dir>/exports/ledger-<timestamp>.jsonl)"},
			&cli.StringFlag{Name: "prefix", Usage: "Only rows whose time starts with this, e.g. 2026-03"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Export(c.Context, cfg, ops.ExportInput{
				Path:   c.String("path"),
				Prefix: c.String("prefix"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, output)
		},
	}
}

func importCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "Append rows from a JSONL export to the ledger",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Required: true, Usage: "Export file in the exports directory"},
			&cli.StringFlag{Name: "mode", Aliases: []string{"m"}, Value: "skip", Usage: "skip|error"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Import(c.Context, cfg, ops.ImportInput{
				Path: c.String("path"),
				Mode: ops.ImportMode(c.String("mode")),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, output)
		},
	}
}

func purgeCmd(db *sql.DB, shotDir string) *cli.Command {
	return &cli.Command{
		Name:  "purge",
		Usage: "Delete old capture history and its screenshots",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "older-than", Required: true, Usage: "Age in days, e.g. 30d"},
		},
		Action: func(c *cli.Context) error {
			days, err := parseDuration(c.String("older-than"))
			if err != nil {
				return outputError(errors.NewInvalidRequest(err.Error()))
			}
			output, err := ops.Purge(c.Context, db, ops.PurgeInput{
				OlderThanDays: days,
				ScreenshotDir: shotDir,
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, output)
		},
	}
}

func uiCmd(db *sql.DB, cfg *config.Config, shotDir string) *cli.Command {
	return &cli.Command{
		Name:  "ui",
		Usage: "Serve the local web UI",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Value: "127.0.0.1", Usage: "Address to bind"},
			&cli.IntFlag{Name: "port", Value: 8424, Usage: "Port to listen on"},
		},
		Action: func(c *cli.Context) error {
			srv, err := web.NewServer(db, cfg, shotDir, Version, c.String("bind"), c.Int("port"))
			if err != nil {
				return outputError(errors.NewInternal(err))
			}
			if err := web.Run(srv); err != nil {
				return outputError(errors.NewInternal(err))
			}
			return nil
		},
	}
}

// Helper functions

// outputJSON writes v to w as indented JSON.
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats err as "[CODE] message" with exit status 1.
func outputError(err error) error {
	if lErr, ok := errors.As(err); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", lErr.Code, lErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// parseDuration parses a day count such as "30d".
func parseDuration(s string) (int, error) {
	if numStr, ok := strings.CutSuffix(s, "d"); ok {
		days, err := strconv.Atoi(numStr)
		if err != nil {
			return 0, fmt.Errorf("invalid duration: %s", s)
		}
		if days < 0 {
			return 0, fmt.Errorf("duration must be non-negative")
		}
		return days, nil
	}
	return 0, fmt.Errorf("duration must end with 'd' (days), e.g., 30d")
}

// readAllLimited reads r up to limit bytes and trims surrounding space.
func readAllLimited(r io.Reader, limit int64) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return "", errors.NewInternal(err)
	}
	if int64(len(data)) > limit {
		return "", errors.NewInvalidRequest(fmt.Sprintf("stdin exceeds %d bytes", limit))
	}
	return strings.TrimSpace(string(data)), nil
}
