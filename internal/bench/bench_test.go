package bench_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/example/go-bpe/internal/bench"
)

// ---------------------------------------------------------------------------
// Aggregation (min/max/mean)
// ---------------------------------------------------------------------------

func TestStats_MinMaxMean(t *testing.T) {
	durations := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		300 * time.Millisecond,
	}
	s := bench.ComputeStats(durations)

	if s.Min != 100*time.Millisecond {
		t.Errorf("want min=100ms, got %v", s.Min)
	}

	if s.Max != 300*time.Millisecond {
		t.Errorf("want max=300ms, got %v", s.Max)
	}

	if s.Mean != 200*time.Millisecond {
		t.Errorf("want mean=200ms, got %v", s.Mean)
	}
}

func TestStats_SingleRun(t *testing.T) {
	s := bench.ComputeStats([]time.Duration{150 * time.Millisecond})
	if s.Min != s.Max || s.Min != s.Mean {
		t.Errorf("single run: min/max/mean should all be equal, got min=%v max=%v mean=%v", s.Min, s.Max, s.Mean)
	}
}

func TestStats_Empty(t *testing.T) {
	if s := bench.ComputeStats(nil); s != (bench.Stats{}) {
		t.Errorf("want zero stats for no runs, got %+v", s)
	}
}

// ---------------------------------------------------------------------------
// Throughput
// ---------------------------------------------------------------------------

func TestThroughput_Calculation(t *testing.T) {
	// 1000 words in 500ms → 2000 words/s
	got := bench.CalcThroughput(1000, 500*time.Millisecond)
	if got < 1999.9 || got > 2000.1 {
		t.Errorf("want 2000 words/s, got %.4f", got)
	}
}

func TestThroughput_ZeroDuration(t *testing.T) {
	if got := bench.CalcThroughput(10, 0); got != 0 {
		t.Errorf("want 0 for zero duration, got %.4f", got)
	}
}

func TestMeanThroughput_SkipsColdRun(t *testing.T) {
	runs := []bench.RunResult{
		{Cold: true, WordsPerSec: 10},
		{WordsPerSec: 100},
		{WordsPerSec: 300},
	}

	if got := bench.MeanThroughput(runs); got != 200 {
		t.Errorf("want 200, got %.1f", got)
	}

	if got := bench.MeanThroughput(runs[:1]); got != 10 {
		t.Errorf("single cold run: want 10, got %.1f", got)
	}
}

func TestMeasure(t *testing.T) {
	runs, err := bench.Measure(3, func(i int) (bench.Counts, error) {
		return bench.Counts{Words: int64(10 * (i + 1)), Tokens: int64(20 * (i + 1))}, nil
	})
	if err != nil {
		t.Fatalf("Measure: %v", err)
	}

	if len(runs) != 3 {
		t.Fatalf("want 3 runs, got %d", len(runs))
	}

	if !runs[0].Cold || runs[1].Cold {
		t.Errorf("only the first run should be cold: %+v", runs)
	}

	if runs[2].Words != 30 || runs[2].Tokens != 60 || runs[2].Index != 2 {
		t.Errorf("unexpected third run: %+v", runs[2])
	}

	if len(bench.Durations(runs)) != 3 {
		t.Error("Durations should return one entry per run")
	}
}

func TestMeasure_Errors(t *testing.T) {
	if _, err := bench.Measure(0, nil); err == nil {
		t.Error("want error for zero runs")
	}

	boom := errors.New("boom")

	runs, err := bench.Measure(3, func(i int) (bench.Counts, error) {
		if i == 1 {
			return bench.Counts{}, boom
		}

		return bench.Counts{Words: 1}, nil
	})
	if !errors.Is(err, boom) {
		t.Errorf("want wrapped boom, got %v", err)
	}

	if len(runs) != 1 {
		t.Errorf("want the completed run returned, got %d", len(runs))
	}
}

// ---------------------------------------------------------------------------
// Throughput threshold gate
// ---------------------------------------------------------------------------

func TestThroughputThreshold_Below(t *testing.T) {
	if err := bench.CheckThroughputThreshold(500, 1000); err == nil {
		t.Error("want error when mean throughput is below threshold")
	}
}

func TestThroughputThreshold_Above(t *testing.T) {
	if err := bench.CheckThroughputThreshold(1500, 1000); err != nil {
		t.Errorf("want no error above threshold, got: %v", err)
	}
}

func TestThroughputThreshold_ExactlyAtThreshold(t *testing.T) {
	if err := bench.CheckThroughputThreshold(1000, 1000); err != nil {
		t.Errorf("want no error at exact threshold, got: %v", err)
	}
}

func TestThroughputThreshold_DisabledWhenZero(t *testing.T) {
	if err := bench.CheckThroughputThreshold(0, 0); err != nil {
		t.Errorf("threshold=0 should disable gate, got: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Output formatting
// ---------------------------------------------------------------------------

func TestFormatTable_ContainsHeaders(t *testing.T) {
	runs := []bench.RunResult{
		{Index: 0, Cold: true, Duration: 800 * time.Millisecond, Words: 100, Tokens: 250, WordsPerSec: 125},
		{Index: 1, Cold: false, Duration: 500 * time.Millisecond, Words: 100, Tokens: 250, WordsPerSec: 200},
	}
	stats := bench.ComputeStats([]time.Duration{800 * time.Millisecond, 500 * time.Millisecond})

	var buf strings.Builder
	bench.FormatTable(runs, stats, &buf)
	out := buf.String()

	for _, want := range []string{"run", "cold", "ms", "words/s", "tokens", "(mean)"} {
		if !strings.Contains(strings.ToLower(out), want) {
			t.Errorf("table output missing %q:\n%s", want, out)
		}
	}
}

func TestFormatJSON_IsValidJSON(t *testing.T) {
	runs := []bench.RunResult{
		{Index: 0, Cold: true, Duration: 800 * time.Millisecond, Words: 100, Tokens: 250, WordsPerSec: 125},
	}
	stats := bench.ComputeStats([]time.Duration{800 * time.Millisecond})

	var buf bytes.Buffer
	bench.FormatJSON(runs, stats, &buf)

	var out struct {
		Runs  []map[string]any `json:"runs"`
		Stats map[string]any   `json:"stats"`
	}

	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("FormatJSON produced invalid JSON: %v\n%s", err, buf.String())
	}

	if len(out.Runs) != 1 || out.Runs[0]["words"] != float64(100) {
		t.Errorf("unexpected runs: %v", out.Runs)
	}

	if out.Stats["mean_words_per_sec"] != float64(125) {
		t.Errorf("unexpected stats: %v", out.Stats)
	}
}
