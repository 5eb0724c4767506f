package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/example/go-bpe/internal/artifact"
	"github.com/example/go-bpe/internal/bpe"
	"github.com/example/go-bpe/internal/config"
	"github.com/example/go-bpe/internal/corpus"
	"github.com/example/go-bpe/internal/vocab"
)

func newLearnCmd() *cobra.Command {
	var train []string

	cmd := &cobra.Command{
		Use:   "learn",
		Short: "Learn a merge list and vocabulary from training corpora",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if len(train) == 0 {
				return errors.New("--train is required for learn")
			}

			paths, err := corpus.ExpandPaths(train)
			if err != nil {
				return err
			}

			_, err = learnCorpora(cmd.Context(), cfg, paths)
			return err
		},
	}

	cmd.Flags().StringSliceVar(&train, "train", nil, "Training corpus paths or glob patterns (required)")

	return cmd
}

// learnCorpora counts words over paths, learns the merge list and saves the
// artifacts into the configured vocabulary directory.
func learnCorpora(ctx context.Context, cfg config.Config, paths []string) (*artifact.Store, error) {
	workers, err := config.ResolveWorkers(cfg.Runtime.Workers)
	if err != nil {
		return nil, err
	}

	strategy, err := bpe.ParseStrategy(cfg.Learn.Strategy)
	if err != nil {
		return nil, err
	}

	codec, err := artifact.CodecFor(cfg.Artifacts.Format)
	if err != nil {
		return nil, err
	}

	store, err := artifact.NewStore(cfg.Paths.VocabDir, codec)
	if err != nil {
		return nil, err
	}

	log := slog.Default()

	counts, err := corpus.CountFiles(ctx, paths, corpus.CountOptions{
		TopK:      cfg.Learn.TopK,
		Workers:   workers,
		EndOfWord: cfg.Learn.EndOfWord,
		Logger:    log,
	})
	if err != nil {
		return nil, err
	}

	table := counts.Filter(cfg.Learn.MinFrequency)
	if table.Len() == 0 {
		return nil, fmt.Errorf("no word occurs at least %d times in %d corpora", cfg.Learn.MinFrequency, len(paths))
	}

	if dropped := counts.Len() - table.Len(); dropped > 0 {
		log.Info("dropped rare words", "words", dropped, "min_frequency", cfg.Learn.MinFrequency)
	}

	res, err := bpe.Learn(ctx, table, bpe.Options{
		NumMerges: cfg.Learn.NumMerges,
		Workers:   workers,
		Strategy:  strategy,
		Logger:    log,
	})
	if err != nil {
		return nil, err
	}

	learned := artifact.Learned{
		Merges:    res.Merges,
		Vocab:     vocab.Build(res.Table, log),
		Cache:     res.Cache,
		EndOfWord: cfg.Learn.EndOfWord,
	}
	if cfg.Artifacts.SaveFrequencies {
		learned.Frequencies = counts
	}

	if err := store.SaveLearned(learned); err != nil {
		return nil, err
	}

	m := store.Manifest()
	log.Info("saved artifacts",
		"dir", store.Dir(),
		"codec", m.Codec,
		"merges", m.NumMerges,
		"vocab_size", m.VocabSize,
		"run_id", m.RunID,
	)

	return store, nil
}
