package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime/pprof"

	"github.com/spf13/cobra"

	"github.com/example/go-bpe/internal/artifact"
	"github.com/example/go-bpe/internal/bench"
	"github.com/example/go-bpe/internal/corpus"
	"github.com/example/go-bpe/internal/tokenizer"
)

func newBenchCmd() *cobra.Command {
	var (
		ins           []string
		runs          int
		output        string
		minThroughput float64
		learnedCache  bool
		cpuProfile    string
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Benchmark tokenization throughput",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if len(ins) == 0 {
				return fmt.Errorf("--in is required for bench")
			}
			if runs < 1 {
				return fmt.Errorf("--runs must be at least 1")
			}
			if output != "table" && output != "json" {
				return fmt.Errorf("--output must be 'table' or 'json'")
			}

			paths, err := corpus.ExpandPaths(ins)
			if err != nil {
				return err
			}

			inputs, err := readCorpora(paths)
			if err != nil {
				return err
			}

			store, err := artifact.OpenStore(cfg.Paths.VocabDir)
			if err != nil {
				return err
			}

			bundle, err := store.Load()
			if err != nil {
				return err
			}

			// The first run starts from an empty cache unless the learned
			// cache is requested; later runs reuse what it filled in.
			cache := bundle.Cache
			if !learnedCache {
				cache = nil
			}
			applier := tokenizer.NewApplier(bundle.Merges, cache, bundle.Manifest.EndOfWord)

			if cpuProfile != "" {
				f, err := os.Create(cpuProfile)
				if err != nil {
					return fmt.Errorf("create cpuprofile: %w", err)
				}
				defer f.Close()

				if err := pprof.StartCPUProfile(f); err != nil {
					return fmt.Errorf("start cpuprofile: %w", err)
				}
				defer pprof.StopCPUProfile()
			}

			results, err := bench.Measure(runs, func(int) (bench.Counts, error) {
				return tokenizeAll(cmd.Context(), applier, inputs)
			})
			if err != nil {
				return err
			}

			stats := bench.ComputeStats(bench.Durations(results))

			switch output {
			case "json":
				bench.FormatJSON(results, stats, cmd.OutOrStdout())
			default:
				bench.FormatTable(results, stats, cmd.OutOrStdout())
			}

			return bench.CheckThroughputThreshold(bench.MeanThroughput(results), minThroughput)
		},
	}

	cmd.Flags().StringSliceVar(&ins, "in", nil, "Corpus paths or glob patterns to tokenize on each run (required)")
	cmd.Flags().IntVar(&runs, "runs", 5, "Number of tokenization runs")
	cmd.Flags().StringVar(&output, "output", "table", "Report format: table|json")
	cmd.Flags().Float64Var(&minThroughput, "min-throughput", 0, "Exit non-zero if mean words/s falls below this value (0 = disabled)")
	cmd.Flags().BoolVar(&learnedCache, "learned-cache", false, "Start from the stored cache instead of an empty one")
	cmd.Flags().StringVar(&cpuProfile, "cpuprofile", "", "Write a CPU profile to this file")

	return cmd
}

func readCorpora(paths []string) ([][]byte, error) {
	inputs := make([][]byte, len(paths))

	for i, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read corpus: %w", err)
		}

		inputs[i] = data
	}

	if len(inputs) == 0 {
		return nil, errors.New("no corpus to benchmark")
	}

	return inputs, nil
}

// tokenizeAll runs the applier over every in-memory corpus and discards the
// output.
func tokenizeAll(ctx context.Context, a *tokenizer.Applier, inputs [][]byte) (bench.Counts, error) {
	var (
		total bench.Counts
		err   error
	)

	pprof.Do(ctx, pprof.Labels("stage", "apply"), func(ctx context.Context) {
		for _, data := range inputs {
			var stats corpus.Stats

			stats, err = corpus.TokenizeReader(ctx, bytes.NewReader(data), io.Discard, a, nil)
			if err != nil {
				return
			}

			total.Words += stats.Words
			total.Tokens += stats.Tokens
		}
	})

	return total, err
}
