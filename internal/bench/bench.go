// Package bench provides benchmarking primitives for the gobpe bench command.
package bench

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// Run result and stats
// ---------------------------------------------------------------------------

// RunResult holds the timing and volume of a single apply run.
type RunResult struct {
	Index    int
	Cold     bool // true for the first run (empty cache)
	Duration time.Duration
	Words    int64
	Tokens   int64
	// WordsPerSec is Words / Duration.
	WordsPerSec float64
}

// Stats holds aggregate timing statistics across all runs.
type Stats struct {
	Min  time.Duration
	Max  time.Duration
	Mean time.Duration
}

// ComputeStats calculates min, max and mean over a slice of durations.
// The slice must be non-empty.
func ComputeStats(durations []time.Duration) Stats {
	if len(durations) == 0 {
		return Stats{}
	}

	mn, mx := durations[0], durations[0]

	var sum time.Duration

	for _, d := range durations {
		if d < mn {
			mn = d
		}

		if d > mx {
			mx = d
		}

		sum += d
	}

	return Stats{
		Min:  mn,
		Max:  mx,
		Mean: sum / time.Duration(len(durations)),
	}
}

// Durations extracts the run durations in order.
func Durations(runs []RunResult) []time.Duration {
	out := make([]time.Duration, len(runs))
	for i, r := range runs {
		out[i] = r.Duration
	}

	return out
}

// ---------------------------------------------------------------------------
// Measurement
// ---------------------------------------------------------------------------

// Counts is the work reported by one measured run.
type Counts struct {
	Words  int64
	Tokens int64
}

// Measure calls fn n times and times each call. The first run is cold.
func Measure(n int, fn func(i int) (Counts, error)) ([]RunResult, error) {
	if n <= 0 {
		return nil, fmt.Errorf("runs must be positive, got %d", n)
	}

	runs := make([]RunResult, 0, n)

	for i := 0; i < n; i++ {
		start := time.Now()

		c, err := fn(i)
		if err != nil {
			return runs, fmt.Errorf("run %d: %w", i+1, err)
		}

		d := time.Since(start)
		runs = append(runs, RunResult{
			Index:       i,
			Cold:        i == 0,
			Duration:    d,
			Words:       c.Words,
			Tokens:      c.Tokens,
			WordsPerSec: CalcThroughput(c.Words, d),
		})
	}

	return runs, nil
}

// ---------------------------------------------------------------------------
// Throughput helpers
// ---------------------------------------------------------------------------

// CalcThroughput returns items per second.
// Returns 0 if d is zero to avoid division by zero.
func CalcThroughput(items int64, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}

	return float64(items) / d.Seconds()
}

// MeanThroughput averages WordsPerSec over the warm runs, or over all runs
// when only the cold run exists.
func MeanThroughput(runs []RunResult) float64 {
	var sum float64

	var n int

	for _, r := range runs {
		if r.Cold && len(runs) > 1 {
			continue
		}

		sum += r.WordsPerSec
		n++
	}

	if n == 0 {
		return 0
	}

	return sum / float64(n)
}

// ---------------------------------------------------------------------------
// Throughput threshold gate
// ---------------------------------------------------------------------------

// CheckThroughputThreshold returns an error if mean < minimum.
// A minimum of 0 disables the gate.
func CheckThroughputThreshold(mean, minimum float64) error {
	if minimum <= 0 {
		return nil
	}

	if mean < minimum {
		return fmt.Errorf("mean throughput %.1f words/s below threshold %.1f", mean, minimum)
	}

	return nil
}

// ---------------------------------------------------------------------------
// Output formatters
// ---------------------------------------------------------------------------

// FormatTable writes a human-readable ASCII table of bench results to w.
func FormatTable(runs []RunResult, stats Stats, w io.Writer) {
	sb := &strings.Builder{}

	fmt.Fprintf(sb, "%-5s  %-5s  %10s  %10s  %10s  %12s\n", "Run", "Cold", "MS", "Words", "Tokens", "Words/s")
	fmt.Fprintln(sb, strings.Repeat("-", 60))

	for _, r := range runs {
		cold := ""
		if r.Cold {
			cold = "yes"
		}

		fmt.Fprintf(sb, "%-5d  %-5s  %10.1f  %10d  %10d  %12.1f\n",
			r.Index+1,
			cold,
			float64(r.Duration.Microseconds())/1000,
			r.Words,
			r.Tokens,
			r.WordsPerSec,
		)
	}

	fmt.Fprintln(sb, strings.Repeat("-", 60))
	fmt.Fprintf(sb, "%-5s  %-5s  %10.1f  (min)\n", "", "", float64(stats.Min.Microseconds())/1000)
	fmt.Fprintf(sb, "%-5s  %-5s  %10.1f  (mean)\n", "", "", float64(stats.Mean.Microseconds())/1000)
	fmt.Fprintf(sb, "%-5s  %-5s  %10.1f  (max)\n", "", "", float64(stats.Max.Microseconds())/1000)

	fmt.Fprint(w, sb.String())
}

// jsonReport is the top-level JSON structure emitted by FormatJSON.
type jsonReport struct {
	Runs  []jsonRun `json:"runs"`
	Stats jsonStats `json:"stats"`
}

type jsonRun struct {
	Index       int     `json:"index"`
	Cold        bool    `json:"cold"`
	DurationMS  float64 `json:"duration_ms"`
	Words       int64   `json:"words"`
	Tokens      int64   `json:"tokens"`
	WordsPerSec float64 `json:"words_per_sec"`
}

type jsonStats struct {
	MinMS           float64 `json:"min_ms"`
	MeanMS          float64 `json:"mean_ms"`
	MaxMS           float64 `json:"max_ms"`
	MeanWordsPerSec float64 `json:"mean_words_per_sec"`
}

// FormatJSON writes a JSON report of bench results to w.
func FormatJSON(runs []RunResult, stats Stats, w io.Writer) {
	jr := jsonReport{
		Runs: make([]jsonRun, len(runs)),
		Stats: jsonStats{
			MinMS:           float64(stats.Min.Microseconds()) / 1000,
			MeanMS:          float64(stats.Mean.Microseconds()) / 1000,
			MaxMS:           float64(stats.Max.Microseconds()) / 1000,
			MeanWordsPerSec: MeanThroughput(runs),
		},
	}

	for i, r := range runs {
		jr.Runs[i] = jsonRun{
			Index:       r.Index,
			Cold:        r.Cold,
			DurationMS:  float64(r.Duration.Microseconds()) / 1000,
			Words:       r.Words,
			Tokens:      r.Tokens,
			WordsPerSec: r.WordsPerSec,
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(jr)
}
