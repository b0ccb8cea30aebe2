package main

import (
	"bufio"
	"bytes"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/autoledger/internal/capture"
	"github.com/hpungsan/autoledger/internal/config"
	"github.com/hpungsan/autoledger/internal/db"
	"github.com/hpungsan/autoledger/internal/ops"
)

type testEnv struct {
	db      *sql.DB
	cfg     *config.Config
	dir     string
	shotDir string
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	database, err := db.Init(dir)
	if err != nil {
		t.Fatalf("failed to init test db: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	cfg := config.DefaultConfig()
	cfg.LedgerPath = cfg.ResolveLedgerPath(dir)
	return &testEnv{db: database, cfg: cfg, dir: dir, shotDir: filepath.Join(dir, db.ScreenshotsDir)}
}

// run executes one CLI invocation with stdin and returns stdout.
func (e *testEnv) run(stdin string, args ...string) (string, error) {
	app := newCLIApp(e.db, e.cfg, e.shotDir)
	var out bytes.Buffer
	app.Writer = &out
	app.ErrWriter = io.Discard
	app.Reader = strings.NewReader(stdin)
	err := app.Run(append([]string{"autoledger"}, args...))
	return out.String(), err
}

func TestCLIAppendListGetStats(t *testing.T) {
	env := setupTestEnv(t)

	out, err := env.run("", "append", "--amount=-12.50", "--time=2026-03-01 12:30", "--merchant=Noodle Bar", "--app=WeChat")
	require.NoError(t, err)
	var appended ops.AppendOutput
	require.NoError(t, json.Unmarshal([]byte(out), &appended))
	require.True(t, appended.HeaderWritten)
	require.Equal(t, "Noodle Bar", appended.Row.Merchant)

	_, err = env.run("", "append", "-a", "88", "-t", "2026-03-02 09:00", "-m", "Refund")
	require.NoError(t, err)

	out, err = env.run("", "list", "--prefix=2026-03")
	require.NoError(t, err)
	var listed ops.ListOutput
	require.NoError(t, json.Unmarshal([]byte(out), &listed))
	require.Len(t, listed.Items, 2)
	require.Equal(t, "Refund", listed.Items[0].Merchant)

	out, err = env.run("", "get", appended.Row.Digest)
	require.NoError(t, err)
	var row ops.RowItem
	require.NoError(t, json.Unmarshal([]byte(out), &row))
	require.Equal(t, "WeChat", row.App)

	out, err = env.run("", "stats", "--period=month", "--anchor=2026-03-20")
	require.NoError(t, err)
	var stats ops.StatsOutput
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	require.Equal(t, "2026-03", stats.Key)
	require.Equal(t, 2, stats.Count)
	require.Equal(t, "-12.5", stats.Expense.String())
	require.Equal(t, "88", stats.Income.String())
}

func TestCLIAppendRawFromStdin(t *testing.T) {
	env := setupTestEnv(t)

	out, err := env.run("  Paid 9.90\nto Corner Shop  \n", "append", "--amount=-9.90", "--raw=-")
	require.NoError(t, err)
	var appended ops.AppendOutput
	require.NoError(t, json.Unmarshal([]byte(out), &appended))
	require.Equal(t, "Paid 9.90\nto Corner Shop", appended.Row.Raw)
}

func TestCLICaptureWithTree(t *testing.T) {
	env := setupTestEnv(t)
	treePath := filepath.Join(env.dir, "tree.json")
	require.NoError(t, os.WriteFile(treePath, []byte(`{
		"package": "com.tencent.mm",
		"children": [{"text": "Payment"}, {"text": "-35.00"}]
	}`), 0o600))

	out, err := env.run("", "capture", "--tree", treePath, "--source=broadcast", "--origin=tasker")
	require.NoError(t, err)
	var captured ops.CaptureOutput
	require.NoError(t, json.Unmarshal([]byte(out), &captured))
	require.Equal(t, "text", captured.Outcome.Kind)
	require.Contains(t, captured.Outcome.Text, "-35.00")
	require.Equal(t, "tasker", captured.Outcome.Reason)

	out, err = env.run("", "history", captured.ID)
	require.NoError(t, err)
	var rec db.CaptureRecord
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	require.Equal(t, "broadcast", rec.Source)
}

func TestCLICaptureManualFallback(t *testing.T) {
	env := setupTestEnv(t)

	out, err := env.run("", "capture")
	require.NoError(t, err)
	var captured ops.CaptureOutput
	require.NoError(t, json.Unmarshal([]byte(out), &captured))
	require.Equal(t, "manual_entry", captured.Outcome.Kind)
	require.Equal(t, string(capture.StateManualFallback), captured.Outcome.State)
}

func TestCLIListen(t *testing.T) {
	env := setupTestEnv(t)
	events := strings.Join([]string{
		`{"type":"tree","tree":{"surface":"com.bank","children":[{"label":"Transfer -200.00"}]}}`,
		`{"type":"trigger","source":"hotkey"}`,
		`{"type":"nonsense"}`,
	}, "\n")

	out, err := env.run(events, "listen", "--linger=0s")
	require.NoError(t, err)

	sc := bufio.NewScanner(strings.NewReader(out))
	require.True(t, sc.Scan(), "expected one outcome line")
	var view capture.OutcomeView
	require.NoError(t, json.Unmarshal(sc.Bytes(), &view))
	require.Equal(t, "Transfer -200.00", view.Text)

	out, err = env.run("", "history", "--outcome=delivered")
	require.NoError(t, err)
	var hist ops.HistoryOutput
	require.NoError(t, json.Unmarshal([]byte(out), &hist))
	require.Equal(t, 1, hist.Pagination.Total)
}

func TestCLIExportImportPurge(t *testing.T) {
	env := setupTestEnv(t)

	_, err := env.run("", "append", "--amount=-30", "--time=2026-03-03 18:00", "--merchant=Cinema")
	require.NoError(t, err)

	exportPath := filepath.Join(env.dir, ops.ExportsDir, "march.jsonl")
	out, err := env.run("", "export", "--path="+exportPath, "--prefix=2026-03")
	require.NoError(t, err)
	var exported ops.ExportOutput
	require.NoError(t, json.Unmarshal([]byte(out), &exported))
	require.Equal(t, 1, exported.Count)
	require.Equal(t, exportPath, exported.Path)

	out, err = env.run("", "import", "--path="+exportPath)
	require.NoError(t, err)
	var imported ops.ImportOutput
	require.NoError(t, json.Unmarshal([]byte(out), &imported))
	require.Equal(t, 0, imported.Imported)
	require.Equal(t, 1, imported.Skipped)

	out, err = env.run("", "purge", "--older-than=30d")
	require.NoError(t, err)
	var purged ops.PurgeOutput
	require.NoError(t, json.Unmarshal([]byte(out), &purged))
	require.Equal(t, 0, purged.Purged)
}

func TestParseDuration(t *testing.T) {
	days, err := parseDuration("30d")
	require.NoError(t, err)
	require.Equal(t, 30, days)

	for _, bad := range []string{"30", "d", "-1d", "1w"} {
		_, err := parseDuration(bad)
		require.Error(t, err, bad)
	}
}

func TestCLIVerboseFlag(t *testing.T) {
	env := setupTestEnv(t)
	t.Cleanup(func() { logLevel.Set(slog.LevelInfo) })

	_, err := env.run("", "--verbose", "list")
	require.NoError(t, err)
	require.Equal(t, slog.LevelDebug, logLevel.Level())
}

func TestCLIErrorHandling(t *testing.T) {
	env := setupTestEnv(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"append without amount", []string{"append", "--merchant=x"}, "amount"},
		{"append bad amount", []string{"append", "--amount=abc"}, "[INVALID_REQUEST]"},
		{"get unknown digest", []string{"get", "deadbeef"}, "[NOT_FOUND]"},
		{"stats bad period", []string{"stats", "--period=week"}, "[INVALID_REQUEST]"},
		{"history bad outcome", []string{"history", "--outcome=lost"}, "[INVALID_REQUEST]"},
		{"capture bad source", []string{"capture", "--source=pager"}, "[INVALID_REQUEST]"},
		{"capture missing tree file", []string{"capture", "--tree=/nonexistent/tree.json"}, "[NOT_FOUND]"},
		{"export wrong extension", []string{"export", "--path=out.csv"}, "[INVALID_REQUEST]"},
		{"import bad mode", []string{"import", "--path=x.jsonl", "--mode=merge"}, "[INVALID_REQUEST]"},
		{"purge without d suffix", []string{"purge", "--older-than=30"}, "[INVALID_REQUEST]"},
		{"purge zero days", []string{"purge", "--older-than=0d"}, "[INVALID_REQUEST]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.run("", tt.args...)
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestIsCLIMode(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected bool
	}{
		{"no args", []string{"autoledger"}, false},
		{"append command", []string{"autoledger", "append"}, true},
		{"listen command", []string{"autoledger", "listen"}, true},
		{"ui command", []string{"autoledger", "ui"}, true},
		{"help flag", []string{"autoledger", "--help"}, true},
		{"version flag", []string{"autoledger", "-v"}, true},
		{"verbose flag", []string{"autoledger", "--verbose", "list"}, true},
		{"unknown arg defaults to MCP", []string{"autoledger", "--unknown"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oldArgs := os.Args
			defer func() { os.Args = oldArgs }()
			os.Args = tt.args
			if got := isCLIMode(); got != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestIsHelpOrVersion(t *testing.T) {
	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()

	for args, want := range map[string]bool{
		"--help":    true,
		"help":      true,
		"--version": true,
		"list":      false,
	} {
		os.Args = []string{"autoledger", args}
		if got := isHelpOrVersion(); got != want {
			t.Errorf("isHelpOrVersion(%q) = %v, want %v", args, got, want)
		}
	}
	os.Args = []string{"autoledger"}
	if isHelpOrVersion() {
		t.Error("no args should not be help")
	}
}

func TestReadAllLimited(t *testing.T) {
	got, err := readAllLimited(strings.NewReader("  hello \n"), 16)
	require.NoError(t, err)
	require.Equal(t, "hello", got)

	_, err = readAllLimited(strings.NewReader(strings.Repeat("x", 17)), 16)
	require.Error(t, err)
}
