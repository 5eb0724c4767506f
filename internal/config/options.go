package config

import (
	"fmt"
	"log/slog"
	"runtime"
	"strconv"
	"strings"
)

const (
	StrategyIncremental = "incremental"
	StrategyRecompute   = "recompute"

	FormatJSON = "json"
	FormatCBOR = "cbor"

	WorkersAuto = "auto"

	// ReservedIDs is the number of control symbols every vocabulary holds.
	ReservedIDs = 4
)

func NormalizeStrategy(raw string) (string, error) {
	strategy := strings.ToLower(strings.TrimSpace(raw))
	if strategy == "" {
		strategy = StrategyIncremental
	}

	switch strategy {
	case StrategyIncremental, StrategyRecompute:
		return strategy, nil
	default:
		return "", fmt.Errorf(
			"invalid strategy %q (expected %s|%s)",
			raw,
			StrategyIncremental,
			StrategyRecompute,
		)
	}
}

func NormalizeFormat(raw string) (string, error) {
	format := strings.ToLower(strings.TrimSpace(raw))
	if format == "" {
		format = FormatJSON
	}

	switch format {
	case FormatJSON, FormatCBOR:
		return format, nil
	default:
		return "", fmt.Errorf("invalid format %q (expected %s|%s)", raw, FormatJSON, FormatCBOR)
	}
}

// ResolveWorkers turns the workers setting into a goroutine count. "auto",
// an empty value and -1 select one worker per CPU.
func ResolveWorkers(raw string) (int, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" || s == WorkersAuto {
		return runtime.NumCPU(), nil
	}

	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid workers %q (expected a positive number, %s or -1)", raw, WorkersAuto)
	}

	switch {
	case n == -1:
		return runtime.NumCPU(), nil
	case n <= 0:
		return 0, fmt.Errorf("invalid workers %d (expected a positive number, %s or -1)", n, WorkersAuto)
	default:
		return n, nil
	}
}

// ParseLogLevel converts a level name to a slog.Level.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (want debug|info|warn|error)", s)
	}
}
