package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/example/go-bpe/internal/artifact"
	"github.com/example/go-bpe/internal/config"
	"github.com/example/go-bpe/internal/corpus"
	"github.com/example/go-bpe/internal/tokenizer"
	"github.com/example/go-bpe/internal/vocab"
)

func newApplyCmd() *cobra.Command {
	var (
		ins   []string
		outs  []string
		prune bool
	)

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Rewrite corpora as space-separated subwords",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if len(ins) == 0 {
				return errors.New("--in is required for apply")
			}

			if prune && cfg.Vocab.Size == 0 {
				return errors.New("--prune needs --vocab-size")
			}

			paths, err := corpus.ExpandPaths(ins)
			if err != nil {
				return err
			}

			jobs, err := corpus.PairJobs(paths, outs, cfg.Paths.OutDir)
			if err != nil {
				return err
			}

			store, err := artifact.OpenStore(cfg.Paths.VocabDir)
			if err != nil {
				return err
			}

			_, err = applyCorpora(cmd.Context(), cfg, store, jobs, prune)
			return err
		},
	}

	cmd.Flags().StringSliceVar(&ins, "in", nil, "Corpus paths or glob patterns to tokenize (required)")
	cmd.Flags().StringSliceVar(&outs, "out", nil, "Output paths, one per input (default: --out-dir/<input name>)")
	cmd.Flags().BoolVar(&prune, "prune", false, "Replace the pruned vocabulary with one built from these corpora (needs --vocab-size)")

	return cmd
}

// applyCorpora tokenizes every job with the artifacts in store. The grown
// cache is saved after each corpus when checkpointing is on and always once
// at the end. With prune set, the applied subwords are pruned into a final
// vocabulary of cfg.Vocab.Size entries.
func applyCorpora(ctx context.Context, cfg config.Config, store *artifact.Store, jobs []corpus.Job, prune bool) (*corpus.Report, error) {
	workers, err := config.ResolveWorkers(cfg.Runtime.Workers)
	if err != nil {
		return nil, err
	}

	bundle, err := store.Load()
	if err != nil {
		return nil, err
	}

	log := slog.Default()
	applier := tokenizer.NewApplier(bundle.Merges, bundle.Cache, bundle.Manifest.EndOfWord)

	opts := corpus.TokenizeOptions{
		Workers:       workers,
		CountSubwords: prune,
		Logger:        log,
	}
	if cfg.Apply.Checkpoint {
		opts.AfterEach = func(corpus.Job) error {
			return store.SaveCache(applier.Cache())
		}
	}

	report, err := corpus.TokenizeFiles(ctx, jobs, applier, opts)
	if err != nil {
		return nil, err
	}

	if err := store.SaveCache(applier.Cache()); err != nil {
		return nil, err
	}

	stats := applier.Stats()
	log.Info("applied merges",
		"corpora", len(jobs),
		"lines", report.Total.Lines,
		"words", report.Total.Words,
		"tokens", report.Total.Tokens,
		"cache_hits", stats.Hits,
		"cache_misses", stats.Misses,
		"cache_entries", stats.Entries,
	)

	if prune {
		pruned, err := vocab.Prune(report.Subwords, cfg.Vocab.Size)
		if err != nil {
			return nil, err
		}

		if err := store.SavePrunedVocabulary(pruned); err != nil {
			return nil, err
		}

		log.Info("pruned vocabulary", "requested", cfg.Vocab.Size, "size", pruned.Len(), "observed", report.Subwords.Len())
	}

	return report, nil
}
