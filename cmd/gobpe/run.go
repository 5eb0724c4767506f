package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/example/go-bpe/internal/corpus"
)

func newRunCmd() *cobra.Command {
	var (
		train []string
		outs  []string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Learn on the training corpora, tokenize them and prune the vocabulary",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if len(train) == 0 {
				return errors.New("--train is required for run")
			}

			paths, err := corpus.ExpandPaths(train)
			if err != nil {
				return err
			}

			jobs, err := corpus.PairJobs(paths, outs, cfg.Paths.OutDir)
			if err != nil {
				return err
			}

			store, err := learnCorpora(cmd.Context(), cfg, paths)
			if err != nil {
				return err
			}

			_, err = applyCorpora(cmd.Context(), cfg, store, jobs, cfg.Vocab.Size > 0)
			return err
		},
	}

	cmd.Flags().StringSliceVar(&train, "train", nil, "Training corpus paths or glob patterns (required)")
	cmd.Flags().StringSliceVar(&outs, "out", nil, "Output paths, one per training corpus (default: --out-dir/<input name>)")

	return cmd
}
