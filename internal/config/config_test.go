package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

// fakeBinder wraps a pflag.FlagSet to satisfy the flagBinder interface.
type fakeBinder struct {
	fs *pflag.FlagSet
}

func (f *fakeBinder) Flags() *pflag.FlagSet { return f.fs }

// newFlagBinder creates a FlagSet with all config flags registered at their
// defaults and parses args into it.
func newFlagBinder(t *testing.T, defaults Config, args ...string) *fakeBinder {
	t.Helper()

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs, defaults)

	if err := fs.Parse(args); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	return &fakeBinder{fs: fs}
}

// withWorkdir runs the test from an empty directory so no gobpe.* file in
// the package directory is picked up.
func withWorkdir(t *testing.T) string {
	t.Helper()

	orig, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}

	dir := t.TempDir()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}

	t.Cleanup(func() { _ = os.Chdir(orig) })

	return dir
}

// --- DefaultConfig ---

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q; want %q", cfg.LogLevel, "info")
	}

	if cfg.Paths.VocabDir != "vocab" {
		t.Errorf("Paths.VocabDir = %q; want %q", cfg.Paths.VocabDir, "vocab")
	}

	if cfg.Learn.NumMerges != 10000 {
		t.Errorf("Learn.NumMerges = %d; want 10000", cfg.Learn.NumMerges)
	}

	if cfg.Learn.EndOfWord != "</w>" {
		t.Errorf("Learn.EndOfWord = %q; want %q", cfg.Learn.EndOfWord, "</w>")
	}

	if cfg.Runtime.Workers != WorkersAuto {
		t.Errorf("Runtime.Workers = %q; want %q", cfg.Runtime.Workers, WorkersAuto)
	}

	if !cfg.Apply.Checkpoint {
		t.Error("Apply.Checkpoint = false; want true")
	}

	if cfg.Server.ListenAddr != "127.0.0.1:8080" {
		t.Errorf("Server.ListenAddr = %q; want %q", cfg.Server.ListenAddr, "127.0.0.1:8080")
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() = %v", err)
	}
}

func TestRegisterFlags(t *testing.T) {
	defaults := DefaultConfig()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs, defaults)

	checks := []struct {
		flag string
		want string
	}{
		{"log-level", "info"},
		{"vocab-dir", "vocab"},
		{"num-merges", "10000"},
		{"min-frequency", "1"},
		{"strategy", "incremental"},
		{"workers", "auto"},
		{"format", "json"},
		{"checkpoint", "true"},
		{"memo-size", "8192"},
	}

	for _, c := range checks {
		f := fs.Lookup(c.flag)
		if f == nil {
			t.Errorf("flag %q not registered", c.flag)
			continue
		}

		if f.DefValue != c.want {
			t.Errorf("flag %q default = %q; want %q", c.flag, f.DefValue, c.want)
		}
	}

	for name := range flagKeys {
		if fs.Lookup(name) == nil {
			t.Errorf("flagKeys entry %q has no registered flag", name)
		}
	}
}

// --- Load ---

func TestLoad_Defaults(t *testing.T) {
	withWorkdir(t)

	defaults := DefaultConfig()

	cfg, err := Load(LoadOptions{
		Cmd:      newFlagBinder(t, defaults),
		Defaults: defaults,
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg != defaults {
		t.Errorf("Load() = %+v; want %+v", cfg, defaults)
	}
}

func TestLoad_FlagOverride(t *testing.T) {
	withWorkdir(t)

	defaults := DefaultConfig()

	cfg, err := Load(LoadOptions{
		Cmd:      newFlagBinder(t, defaults, "--num-merges=50", "--workers=8", "--log-level=debug", "--format=cbor", "--checkpoint=false"),
		Defaults: defaults,
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Learn.NumMerges != 50 {
		t.Errorf("Learn.NumMerges = %d; want 50", cfg.Learn.NumMerges)
	}

	if cfg.Runtime.Workers != "8" {
		t.Errorf("Runtime.Workers = %q; want %q", cfg.Runtime.Workers, "8")
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q; want %q", cfg.LogLevel, "debug")
	}

	if cfg.Artifacts.Format != "cbor" {
		t.Errorf("Artifacts.Format = %q; want %q", cfg.Artifacts.Format, "cbor")
	}

	if cfg.Apply.Checkpoint {
		t.Error("Apply.Checkpoint = true; want false")
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	withWorkdir(t)
	t.Setenv("GOBPE_LOG_LEVEL", "warn")
	t.Setenv("GOBPE_LEARN_NUM_MERGES", "77")
	t.Setenv("GOBPE_PATHS_VOCAB_DIR", "/env/vocab")

	cfg, err := Load(LoadOptions{Defaults: DefaultConfig()})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q; want %q", cfg.LogLevel, "warn")
	}

	if cfg.Learn.NumMerges != 77 {
		t.Errorf("Learn.NumMerges = %d; want 77", cfg.Learn.NumMerges)
	}

	if cfg.Paths.VocabDir != "/env/vocab" {
		t.Errorf("Paths.VocabDir = %q; want %q", cfg.Paths.VocabDir, "/env/vocab")
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := withWorkdir(t)
	cfgFile := filepath.Join(dir, "custom.yaml")

	content := `
log_level: error
learn:
  num_merges: 300
  strategy: recompute
vocab:
  size: 500
runtime:
  workers: "3"
`

	if err := os.WriteFile(cfgFile, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	defaults := DefaultConfig()

	cfg, err := Load(LoadOptions{
		Cmd:        newFlagBinder(t, defaults),
		ConfigFile: cfgFile,
		Defaults:   defaults,
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.LogLevel != "error" {
		t.Errorf("LogLevel = %q; want %q", cfg.LogLevel, "error")
	}

	if cfg.Learn.NumMerges != 300 {
		t.Errorf("Learn.NumMerges = %d; want 300", cfg.Learn.NumMerges)
	}

	if cfg.Learn.Strategy != "recompute" {
		t.Errorf("Learn.Strategy = %q; want %q", cfg.Learn.Strategy, "recompute")
	}

	if cfg.Vocab.Size != 500 {
		t.Errorf("Vocab.Size = %d; want 500", cfg.Vocab.Size)
	}

	if cfg.Runtime.Workers != "3" {
		t.Errorf("Runtime.Workers = %q; want %q", cfg.Runtime.Workers, "3")
	}

	if cfg.Paths.VocabDir != defaults.Paths.VocabDir {
		t.Errorf("Paths.VocabDir = %q; want default %q", cfg.Paths.VocabDir, defaults.Paths.VocabDir)
	}
}

func TestLoad_Precedence(t *testing.T) {
	dir := withWorkdir(t)

	if err := os.WriteFile(filepath.Join(dir, "gobpe.yaml"), []byte("learn:\n  num_merges: 10\n  top_k: 5\n  min_frequency: 2\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	t.Setenv("GOBPE_LEARN_NUM_MERGES", "20")
	t.Setenv("GOBPE_LEARN_TOP_K", "6")

	defaults := DefaultConfig()

	cfg, err := Load(LoadOptions{
		Cmd:      newFlagBinder(t, defaults, "--num-merges=30"),
		Defaults: defaults,
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Learn.NumMerges != 30 {
		t.Errorf("flag should win: NumMerges = %d; want 30", cfg.Learn.NumMerges)
	}

	if cfg.Learn.TopK != 6 {
		t.Errorf("env should beat file: TopK = %d; want 6", cfg.Learn.TopK)
	}

	if cfg.Learn.MinFrequency != 2 {
		t.Errorf("file should beat default: MinFrequency = %d; want 2", cfg.Learn.MinFrequency)
	}
}

func TestLoad_InvalidConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "bad.yaml")
	// Write invalid YAML
	if err := os.WriteFile(cfgFile, []byte(":\t:bad yaml:::"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	_, err := Load(LoadOptions{
		ConfigFile: cfgFile,
		Defaults:   DefaultConfig(),
	})
	if err == nil {
		t.Error("Load() = nil; want error for invalid config file")
	}
}

func TestLoad_MissingExplicitConfigFile(t *testing.T) {
	_, err := Load(LoadOptions{
		ConfigFile: "/nonexistent/path/gobpe.yaml",
		Defaults:   DefaultConfig(),
	})
	if err == nil {
		t.Error("Load() = nil; want error for missing explicit config file")
	}
}

// --- Validate ---

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "zero merges", mutate: func(c *Config) { c.Learn.NumMerges = 0 }, wantErr: "num_merges"},
		{name: "negative top k", mutate: func(c *Config) { c.Learn.TopK = -1 }, wantErr: "top_k"},
		{name: "bad strategy", mutate: func(c *Config) { c.Learn.Strategy = "greedy" }, wantErr: "strategy"},
		{name: "blank marker", mutate: func(c *Config) { c.Learn.EndOfWord = "" }, wantErr: "end_of_word"},
		{name: "marker with space", mutate: func(c *Config) { c.Learn.EndOfWord = "< w>" }, wantErr: "end_of_word"},
		{name: "vocab too small", mutate: func(c *Config) { c.Vocab.Size = 4 }, wantErr: "vocab size"},
		{name: "vocab pruning", mutate: func(c *Config) { c.Vocab.Size = 5 }},
		{name: "bad workers", mutate: func(c *Config) { c.Runtime.Workers = "many" }, wantErr: "workers"},
		{name: "bad format", mutate: func(c *Config) { c.Artifacts.Format = "xml" }, wantErr: "format"},
		{name: "bad log level", mutate: func(c *Config) { c.LogLevel = "loud" }, wantErr: "log level"},
		{name: "no vocab dir", mutate: func(c *Config) { c.Paths.VocabDir = "" }, wantErr: "vocab_dir"},
		{name: "no listen addr", mutate: func(c *Config) { c.Server.ListenAddr = "" }, wantErr: "listen_addr"},
		{name: "zero text limit", mutate: func(c *Config) { c.Server.MaxTextBytes = 0 }, wantErr: "max_text_bytes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v; want nil", err)
				}

				return
			}

			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v; want error containing %q", err, tt.wantErr)
			}
		})
	}
}

// --- options ---

func TestResolveWorkers(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{in: "", want: runtime.NumCPU()},
		{in: "auto", want: runtime.NumCPU()},
		{in: " AUTO ", want: runtime.NumCPU()},
		{in: "-1", want: runtime.NumCPU()},
		{in: "1", want: 1},
		{in: "12", want: 12},
		{in: "0", wantErr: true},
		{in: "-2", wantErr: true},
		{in: "lots", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ResolveWorkers(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ResolveWorkers(%q) = %d; want error", tt.in, got)
			}

			continue
		}

		if err != nil || got != tt.want {
			t.Errorf("ResolveWorkers(%q) = %d, %v; want %d", tt.in, got, err, tt.want)
		}
	}
}

func TestNormalizeStrategyAndFormat(t *testing.T) {
	if got, err := NormalizeStrategy(""); err != nil || got != StrategyIncremental {
		t.Errorf("NormalizeStrategy(\"\") = %q, %v", got, err)
	}

	if got, err := NormalizeStrategy(" Recompute"); err != nil || got != StrategyRecompute {
		t.Errorf("NormalizeStrategy(\" Recompute\") = %q, %v", got, err)
	}

	if got, err := NormalizeFormat("CBOR"); err != nil || got != FormatCBOR {
		t.Errorf("NormalizeFormat(\"CBOR\") = %q, %v", got, err)
	}

	if _, err := NormalizeFormat("yaml"); err == nil {
		t.Error("NormalizeFormat(\"yaml\") = nil error")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"", slog.LevelInfo},
		{"INFO", slog.LevelInfo},
		{"debug", slog.LevelDebug},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
	}

	for _, tt := range tests {
		got, err := ParseLogLevel(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}

	if _, err := ParseLogLevel("verbose"); err == nil {
		t.Error("ParseLogLevel(\"verbose\") = nil error")
	}
}
