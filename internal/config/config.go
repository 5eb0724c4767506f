// Package config loads gobpe settings from flags, GOBPE_* environment
// variables, an optional config file and built-in defaults, in that order
// of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	LogLevel  string          `mapstructure:"log_level"`
	Paths     PathsConfig     `mapstructure:"paths"`
	Learn     LearnConfig     `mapstructure:"learn"`
	Vocab     VocabConfig     `mapstructure:"vocab"`
	Runtime   RuntimeConfig   `mapstructure:"runtime"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts"`
	Apply     ApplyConfig     `mapstructure:"apply"`
	Server    ServerConfig    `mapstructure:"server"`
}

type PathsConfig struct {
	VocabDir string `mapstructure:"vocab_dir"`
	OutDir   string `mapstructure:"out_dir"`
}

type LearnConfig struct {
	NumMerges    int    `mapstructure:"num_merges"`
	TopK         int    `mapstructure:"top_k"`
	MinFrequency int64  `mapstructure:"min_frequency"`
	Strategy     string `mapstructure:"strategy"`
	EndOfWord    string `mapstructure:"end_of_word"`
}

type VocabConfig struct {
	// Size of the pruned final vocabulary; 0 disables pruning.
	Size int `mapstructure:"size"`
}

type RuntimeConfig struct {
	// Workers is a positive integer, "auto" or -1 (one per CPU).
	Workers string `mapstructure:"workers"`
}

type ArtifactsConfig struct {
	Format          string `mapstructure:"format"`
	SaveFrequencies bool   `mapstructure:"save_frequencies"`
}

type ApplyConfig struct {
	Checkpoint bool `mapstructure:"checkpoint"`
	MemoSize   int  `mapstructure:"memo_size"`
	Wrap       bool `mapstructure:"wrap"`
}

type ServerConfig struct {
	ListenAddr      string `mapstructure:"listen_addr"`
	MaxTextBytes    int    `mapstructure:"max_text_bytes"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"`
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

// flagKeys maps every config flag to its configuration key.
var flagKeys = map[string]string{
	"log-level":        "log_level",
	"vocab-dir":        "paths.vocab_dir",
	"out-dir":          "paths.out_dir",
	"num-merges":       "learn.num_merges",
	"top-k":            "learn.top_k",
	"min-frequency":    "learn.min_frequency",
	"strategy":         "learn.strategy",
	"end-of-word":      "learn.end_of_word",
	"vocab-size":       "vocab.size",
	"workers":          "runtime.workers",
	"format":           "artifacts.format",
	"save-frequencies": "artifacts.save_frequencies",
	"checkpoint":       "apply.checkpoint",
	"memo-size":        "apply.memo_size",
	"wrap":             "apply.wrap",
	"listen-addr":      "server.listen_addr",
	"max-text-bytes":   "server.max_text_bytes",
	"shutdown-timeout": "server.shutdown_timeout",
}

func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
		Paths: PathsConfig{
			VocabDir: "vocab",
			OutDir:   "",
		},
		Learn: LearnConfig{
			NumMerges:    10000,
			TopK:         0,
			MinFrequency: 1,
			Strategy:     StrategyIncremental,
			EndOfWord:    "</w>",
		},
		Vocab: VocabConfig{
			Size: 0,
		},
		Runtime: RuntimeConfig{
			Workers: WorkersAuto,
		},
		Artifacts: ArtifactsConfig{
			Format:          FormatJSON,
			SaveFrequencies: false,
		},
		Apply: ApplyConfig{
			Checkpoint: true,
			MemoSize:   8192,
			Wrap:       false,
		},
		Server: ServerConfig{
			ListenAddr:      "127.0.0.1:8080",
			MaxTextBytes:    64 * 1024,
			ShutdownTimeout: 30,
		},
	}
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("log-level", defaults.LogLevel, "Log level (debug|info|warn|error)")
	fs.String("vocab-dir", defaults.Paths.VocabDir, "Directory holding learned artifacts")
	fs.String("out-dir", defaults.Paths.OutDir, "Directory for tokenized corpora when --out is not given")
	fs.Int("num-merges", defaults.Learn.NumMerges, "Number of merge operations to learn")
	fs.Int("top-k", defaults.Learn.TopK, "Keep only the K most frequent words of each corpus (0 keeps all)")
	fs.Int64("min-frequency", defaults.Learn.MinFrequency, "Ignore words seen fewer times while learning")
	fs.String("strategy", defaults.Learn.Strategy, "Pair statistics strategy (incremental|recompute)")
	fs.String("end-of-word", defaults.Learn.EndOfWord, "Marker appended to every word")
	fs.Int("vocab-size", defaults.Vocab.Size, "Size of the pruned final vocabulary (0 disables pruning)")
	fs.String("workers", defaults.Runtime.Workers, "Worker goroutines: a positive number, auto or -1")
	fs.String("format", defaults.Artifacts.Format, "Artifact encoding (json|cbor)")
	fs.Bool("save-frequencies", defaults.Artifacts.SaveFrequencies, "Also store the learning frequency table")
	fs.Bool("checkpoint", defaults.Apply.Checkpoint, "Save the cache after each tokenized corpus")
	fs.Int("memo-size", defaults.Apply.MemoSize, "Words remembered by the id encoder")
	fs.Bool("wrap", defaults.Apply.Wrap, "Wrap encoded sentences with the go and end ids")
	fs.String("listen-addr", defaults.Server.ListenAddr, "HTTP listen address for serve")
	fs.Int("max-text-bytes", defaults.Server.MaxTextBytes, "Largest request text accepted by serve")
	fs.Int("shutdown-timeout", defaults.Server.ShutdownTimeout, "Seconds serve waits for requests to drain")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)

	if opts.Cmd != nil {
		if err := bindFlags(v, opts.Cmd.Flags()); err != nil {
			return Config{}, err
		}
	}

	v.SetEnvPrefix("GOBPE")
	replacer := strings.NewReplacer("-", "_", ".", "_")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)

		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("gobpe")
		v.AddConfigPath(".")

		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	return cfg, nil
}

// bindFlags binds each registered config flag to its nested key, so a
// changed flag wins over the environment and the config file.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}

		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %q: %w", name, err)
		}
	}

	return nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("log_level", c.LogLevel)
	v.SetDefault("paths.vocab_dir", c.Paths.VocabDir)
	v.SetDefault("paths.out_dir", c.Paths.OutDir)
	v.SetDefault("learn.num_merges", c.Learn.NumMerges)
	v.SetDefault("learn.top_k", c.Learn.TopK)
	v.SetDefault("learn.min_frequency", c.Learn.MinFrequency)
	v.SetDefault("learn.strategy", c.Learn.Strategy)
	v.SetDefault("learn.end_of_word", c.Learn.EndOfWord)
	v.SetDefault("vocab.size", c.Vocab.Size)
	v.SetDefault("runtime.workers", c.Runtime.Workers)
	v.SetDefault("artifacts.format", c.Artifacts.Format)
	v.SetDefault("artifacts.save_frequencies", c.Artifacts.SaveFrequencies)
	v.SetDefault("apply.checkpoint", c.Apply.Checkpoint)
	v.SetDefault("apply.memo_size", c.Apply.MemoSize)
	v.SetDefault("apply.wrap", c.Apply.Wrap)
	v.SetDefault("server.listen_addr", c.Server.ListenAddr)
	v.SetDefault("server.max_text_bytes", c.Server.MaxTextBytes)
	v.SetDefault("server.shutdown_timeout", c.Server.ShutdownTimeout)
}

// Validate reports the first setting that cannot drive a run.
func (c Config) Validate() error {
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}

	if c.Learn.NumMerges <= 0 {
		return fmt.Errorf("num_merges must be positive, got %d", c.Learn.NumMerges)
	}

	if c.Learn.TopK < 0 {
		return fmt.Errorf("top_k must not be negative, got %d", c.Learn.TopK)
	}

	if c.Learn.MinFrequency < 0 {
		return fmt.Errorf("min_frequency must not be negative, got %d", c.Learn.MinFrequency)
	}

	if _, err := NormalizeStrategy(c.Learn.Strategy); err != nil {
		return err
	}

	if c.Learn.EndOfWord == "" || strings.IndexFunc(c.Learn.EndOfWord, unicode.IsSpace) >= 0 {
		return fmt.Errorf("end_of_word %q must be non-empty and free of whitespace", c.Learn.EndOfWord)
	}

	if c.Vocab.Size != 0 && c.Vocab.Size <= ReservedIDs {
		return fmt.Errorf("vocab size must exceed %d reserved ids, got %d", ReservedIDs, c.Vocab.Size)
	}

	if _, err := ResolveWorkers(c.Runtime.Workers); err != nil {
		return err
	}

	if _, err := NormalizeFormat(c.Artifacts.Format); err != nil {
		return err
	}

	if c.Apply.MemoSize < 0 {
		return fmt.Errorf("memo_size must not be negative, got %d", c.Apply.MemoSize)
	}

	if c.Paths.VocabDir == "" {
		return errors.New("vocab_dir is required")
	}

	if c.Server.ListenAddr == "" {
		return errors.New("server.listen_addr is required")
	}

	if c.Server.MaxTextBytes <= 0 {
		return fmt.Errorf("server.max_text_bytes must be positive, got %d", c.Server.MaxTextBytes)
	}

	if c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("server.shutdown_timeout must not be negative, got %d", c.Server.ShutdownTimeout)
	}

	return nil
}
