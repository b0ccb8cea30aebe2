package ops

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hpungsan/autoledger/internal/config"
	"github.com/hpungsan/autoledger/internal/errors"
)

func seedLedger(t *testing.T, cfg *config.Config) {
	t.Helper()
	ctx := context.Background()
	for _, in := range []AppendInput{
		{Time: "2026-02-27 08:15", App: "Alipay", Amount: "-9.9", Merchant: "Metro"},
		{Time: "2026-03-01 12:30", App: "WeChat", Amount: "-12.50", Merchant: "Coffee Shop", Confidence: "0.9"},
		{Time: "2026-03-02 19:00", App: "WeChat", Amount: "-88", Merchant: "Hotpot", Raw: "Paid 88.00"},
	} {
		if _, err := Append(ctx, cfg, in); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
}

func readExportLines(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open export: %v", err)
	}
	defer f.Close()

	var lines []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var m map[string]any
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			t.Fatalf("invalid export line %q: %v", sc.Text(), err)
		}
		lines = append(lines, m)
	}
	return lines
}

func TestExport_DefaultPath(t *testing.T) {
	_, cfg, dir := setup(t)
	seedLedger(t, cfg)
	now := time.Date(2026, 3, 5, 10, 0, 0, 0, time.Local)

	out, err := Export(context.Background(), cfg, ExportInput{Now: now})
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	want := filepath.Join(dir, ExportsDir, "ledger-2026-03-05T100000.jsonl")
	if out.Path != want {
		t.Errorf("Path = %q, want %q", out.Path, want)
	}
	if out.Count != 3 {
		t.Errorf("Count = %d, want 3", out.Count)
	}
	if out.ExportedAt != now.Unix() {
		t.Errorf("ExportedAt = %d, want %d", out.ExportedAt, now.Unix())
	}

	lines := readExportLines(t, out.Path)
	if len(lines) != 4 {
		t.Fatalf("lines = %d, want header + 3", len(lines))
	}
	if lines[0]["_autoledger_export"] != true || lines[0]["schema_version"] != ExportSchemaVersion {
		t.Errorf("header = %v", lines[0])
	}
	if lines[1]["merchant"] != "Metro" || lines[3]["merchant"] != "Hotpot" {
		t.Errorf("rows not in file order: %v / %v", lines[1]["merchant"], lines[3]["merchant"])
	}
	if d, _ := lines[2]["digest"].(string); len(d) != 64 {
		t.Errorf("digest = %v", lines[2]["digest"])
	}

	entries, err := os.ReadDir(filepath.Join(dir, ExportsDir))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestExport_PrefixFilter(t *testing.T) {
	_, cfg, dir := setup(t)
	seedLedger(t, cfg)
	now := time.Date(2026, 3, 5, 10, 0, 0, 0, time.Local)

	out, err := Export(context.Background(), cfg, ExportInput{Prefix: "2026-03", Now: now})
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if out.Count != 2 {
		t.Errorf("Count = %d, want 2", out.Count)
	}
	want := filepath.Join(dir, ExportsDir, "ledger-2026-03-2026-03-05T100000.jsonl")
	if out.Path != want {
		t.Errorf("Path = %q, want %q", out.Path, want)
	}
}

func TestExport_EmptyLedger(t *testing.T) {
	_, cfg, dir := setup(t)
	path := filepath.Join(dir, ExportsDir, "empty.jsonl")

	out, err := Export(context.Background(), cfg, ExportInput{Path: path})
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if out.Count != 0 {
		t.Errorf("Count = %d, want 0", out.Count)
	}
	if lines := readExportLines(t, path); len(lines) != 1 {
		t.Errorf("lines = %d, want header only", len(lines))
	}
}

func TestExport_Overwrites(t *testing.T) {
	_, cfg, dir := setup(t)
	seedLedger(t, cfg)
	path := filepath.Join(dir, ExportsDir, "fixed.jsonl")
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("old\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := Export(context.Background(), cfg, ExportInput{Path: path}); err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if lines := readExportLines(t, path); len(lines) != 4 {
		t.Errorf("lines = %d, want 4", len(lines))
	}
}

func TestExport_InvalidPaths(t *testing.T) {
	_, cfg, dir := setup(t)
	exports := filepath.Join(dir, ExportsDir)

	tests := []struct {
		name string
		path string
	}{
		{"wrong extension", filepath.Join(exports, "out.csv")},
		{"traversal", filepath.Join(exports, "..", "out.jsonl")},
		{"outside exports", filepath.Join(dir, "out.jsonl")},
		{"nested", filepath.Join(exports, "sub", "out.jsonl")},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Export(context.Background(), cfg, ExportInput{Path: tc.path})
			if !errors.Is(err, errors.ErrInvalidRequest) {
				t.Errorf("expected ErrInvalidRequest, got: %v", err)
			}
		})
	}
}

func TestExport_SymlinkRejected(t *testing.T) {
	_, cfg, dir := setup(t)
	exports := filepath.Join(dir, ExportsDir)
	if err := os.MkdirAll(exports, 0o700); err != nil {
		t.Fatal(err)
	}
	target := filepath.Join(t.TempDir(), "target.jsonl")
	if err := os.WriteFile(target, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(exports, "link.jsonl")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	_, err := Export(context.Background(), cfg, ExportInput{Path: link})
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest, got: %v", err)
	}
}

func TestSanitizeForFilename(t *testing.T) {
	tests := map[string]string{
		"2026-03":         "2026-03",
		" 2026-03-01 12 ": "2026-03-01-12",
		"../../etc":       "etc",
		"":                "",
		"2026/03":         "2026-03",
	}
	for in, want := range tests {
		if got := sanitizeForFilename(in); got != want {
			t.Errorf("sanitizeForFilename(%q) = %q, want %q", in, got, want)
		}
	}
}
