package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// EnvAPIKey overrides Config.APIKey when set, so the key can stay out of config.json.
const EnvAPIKey = "AUTOLEDGER_API_KEY"

// Config holds application configuration.
type Config struct {
	// LedgerPath is the CSV ledger file. Relative paths resolve against the base directory.
	// Empty means <baseDir>/ledger.csv.
	LedgerPath string `json:"ledger_path,omitempty"`

	// RawMaxChars bounds the raw column of each appended row.
	RawMaxChars int `json:"raw_max_chars"`

	// BaseURL, APIKey and Model configure the OpenAI-compatible inference endpoint.
	BaseURL string `json:"base_url"`
	APIKey  string `json:"api_key,omitempty"`
	Model   string `json:"model"`

	// ModelTimeoutMillis bounds a single inference call.
	ModelTimeoutMillis int `json:"model_timeout_ms"`

	// DebounceMillis is the global window in which a new trigger is rejected.
	DebounceMillis int `json:"debounce_ms"`

	// LongPressMillis is how long a hold-style input must stay down to fire.
	LongPressMillis int `json:"long_press_ms"`

	// SettlePollMillis and SettleMaxWaitMillis control the quick-toggle foreground wait.
	SettlePollMillis    int `json:"settle_poll_ms"`
	SettleMaxWaitMillis int `json:"settle_max_wait_ms"`

	// BroadcastDelayMillis delays handling of broadcast triggers.
	BroadcastDelayMillis int `json:"broadcast_delay_ms"`

	// ResumeDelayMillis is the delay before re-issuing a screenshot found pending at startup.
	ResumeDelayMillis int `json:"resume_delay_ms"`

	// PendingFreshMillis is how long a pending screenshot record stays valid.
	PendingFreshMillis int `json:"pending_fresh_ms"`

	// CacheMaxAgeMillis is the oldest screen-cache entry the fast path accepts.
	CacheMaxAgeMillis int `json:"cache_max_age_ms"`

	// CaptureWaitMillis bounds how long one-shot capture waits for an outcome.
	CaptureWaitMillis int `json:"capture_wait_ms"`

	// SystemSurfaces are case-insensitive substrings identifying system shell
	// and launcher surfaces that must never be extracted.
	SystemSurfaces []string `json:"system_surfaces,omitempty"`

	// SelfSurface is this application's own surface identifier.
	SelfSurface string `json:"self_surface"`

	// ScreenshotCommand is the external program (argv) that writes a PNG to stdout.
	// Empty disables screenshot escalation.
	ScreenshotCommand []string `json:"screenshot_command,omitempty"`

	// ScreenshotMinIntervalMillis is the minimum spacing between two screenshot requests.
	ScreenshotMinIntervalMillis int `json:"screenshot_min_interval_ms"`

	// ScreenshotTimeoutMillis bounds the wait for a screenshot callback before
	// the capture falls back to manual entry.
	ScreenshotTimeoutMillis int `json:"screenshot_timeout_ms"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// 0 means use sql.DB default (unlimited).
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	// DisabledTypes is a list of tool type prefixes to disable entirely.
	// Known types: "ledger", "capture".
	DisabledTypes []string `json:"disabled_types,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		RawMaxChars:                 240,
		BaseURL:                     "https://api.openai.com",
		Model:                       "gpt-4.1-mini",
		ModelTimeoutMillis:          60000,
		DebounceMillis:              2500,
		LongPressMillis:             650,
		SettlePollMillis:            100,
		SettleMaxWaitMillis:         1500,
		BroadcastDelayMillis:        150,
		ResumeDelayMillis:           500,
		PendingFreshMillis:          5000,
		CacheMaxAgeMillis:           10000,
		CaptureWaitMillis:           15000,
		SystemSurfaces:              []string{"systemui", "launcher"},
		SelfSurface:                 "autoledger",
		ScreenshotMinIntervalMillis: 1000,
		ScreenshotTimeoutMillis:     10000,
	}
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.autoledger.
func Load(baseDir string) (*Config, error) {
	cfg, err := loadFile(filepath.Join(baseDir, "config.json"))
	if err != nil {
		return nil, err
	}
	applyEnv(cfg)
	return cfg, nil
}

// LoadWithOverride loads the global config (~/.autoledger) and then the nearest
// .autoledger/config.json found walking upward from startDir.
// The override takes precedence for scalar values; arrays are merged (deduplicated).
// Either or both configs may be missing.
func LoadWithOverride(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	overridePath := FindOverrideConfig(startDir)
	override, err := loadFileRaw(overridePath)
	if err != nil {
		return nil, err
	}

	cfg := Merge(Merge(DefaultConfig(), global), override)
	applyEnv(cfg)
	return cfg, nil
}

// FindOverrideConfig walks upward from startDir to find the nearest .autoledger/config.json.
// Returns the path if found, or empty string if not found.
func FindOverrideConfig(startDir string) string {
	if startDir == "" {
		return ""
	}
	dir := startDir
	for {
		configPath := filepath.Join(dir, ".autoledger", "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// ResolveLedgerPath returns the absolute ledger path for baseDir.
func (c *Config) ResolveLedgerPath(baseDir string) string {
	p := strings.TrimSpace(c.LedgerPath)
	if p == "" {
		return filepath.Join(baseDir, "ledger.csv")
	}
	if strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, p[2:])
		}
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(baseDir, p)
	}
	return filepath.Clean(p)
}

// Millis converts a millisecond knob to a time.Duration.
func Millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

func applyEnv(cfg *Config) {
	if key := strings.TrimSpace(os.Getenv(EnvAPIKey)); key != "" {
		cfg.APIKey = key
	}
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	result.LedgerPath = pickString(overlay.LedgerPath, base.LedgerPath)
	result.BaseURL = strings.TrimRight(pickString(overlay.BaseURL, base.BaseURL), "/")
	result.APIKey = pickString(overlay.APIKey, base.APIKey)
	result.Model = pickString(overlay.Model, base.Model)
	result.SelfSurface = pickString(overlay.SelfSurface, base.SelfSurface)

	result.RawMaxChars = pickInt(overlay.RawMaxChars, base.RawMaxChars)
	result.ModelTimeoutMillis = pickInt(overlay.ModelTimeoutMillis, base.ModelTimeoutMillis)
	result.DebounceMillis = pickInt(overlay.DebounceMillis, base.DebounceMillis)
	result.LongPressMillis = pickInt(overlay.LongPressMillis, base.LongPressMillis)
	result.SettlePollMillis = pickInt(overlay.SettlePollMillis, base.SettlePollMillis)
	result.SettleMaxWaitMillis = pickInt(overlay.SettleMaxWaitMillis, base.SettleMaxWaitMillis)
	result.BroadcastDelayMillis = pickInt(overlay.BroadcastDelayMillis, base.BroadcastDelayMillis)
	result.ResumeDelayMillis = pickInt(overlay.ResumeDelayMillis, base.ResumeDelayMillis)
	result.PendingFreshMillis = pickInt(overlay.PendingFreshMillis, base.PendingFreshMillis)
	result.CacheMaxAgeMillis = pickInt(overlay.CacheMaxAgeMillis, base.CacheMaxAgeMillis)
	result.CaptureWaitMillis = pickInt(overlay.CaptureWaitMillis, base.CaptureWaitMillis)
	result.ScreenshotMinIntervalMillis = pickInt(overlay.ScreenshotMinIntervalMillis, base.ScreenshotMinIntervalMillis)
	result.ScreenshotTimeoutMillis = pickInt(overlay.ScreenshotTimeoutMillis, base.ScreenshotTimeoutMillis)
	result.DBMaxOpenConns = pickInt(overlay.DBMaxOpenConns, base.DBMaxOpenConns)
	result.DBMaxIdleConns = pickInt(overlay.DBMaxIdleConns, base.DBMaxIdleConns)

	// The screenshot command is an argv, not a set: overlay replaces it wholesale.
	result.ScreenshotCommand = base.ScreenshotCommand
	if len(overlay.ScreenshotCommand) > 0 {
		result.ScreenshotCommand = overlay.ScreenshotCommand
	}

	// Arrays: merge and deduplicate
	result.SystemSurfaces = mergeStringSlice(base.SystemSurfaces, overlay.SystemSurfaces)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)
	result.DisabledTypes = mergeStringSlice(base.DisabledTypes, overlay.DisabledTypes)

	return result
}

func pickString(overlay, base string) string {
	if strings.TrimSpace(overlay) != "" {
		return overlay
	}
	return base
}

func pickInt(overlay, base int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range a {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}
	for _, s := range b {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
