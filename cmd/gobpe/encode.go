package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/go-bpe/internal/artifact"
	"github.com/example/go-bpe/internal/config"
	"github.com/example/go-bpe/internal/corpus"
	"github.com/example/go-bpe/internal/tokenizer"
)

func newEncodeCmd() *cobra.Command {
	var (
		text string
		ins  []string
		outs []string
	)

	cmd := &cobra.Command{
		Use:   "encode",
		Short: "Encode text or corpora as vocabulary ids",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if strings.TrimSpace(text) == "" && len(ins) == 0 {
				return errors.New("--text or --in is required for encode")
			}

			store, err := artifact.OpenStore(cfg.Paths.VocabDir)
			if err != nil {
				return err
			}

			enc, err := newEncoder(cfg, store)
			if err != nil {
				return err
			}

			if len(ins) == 0 {
				ids, err := enc.Encode(text)
				if err != nil {
					return err
				}

				if _, err := fmt.Fprintln(cmd.OutOrStdout(), joinIDs(ids)); err != nil {
					return err
				}

				return checkpointCache(cfg, store, enc)
			}

			paths, err := corpus.ExpandPaths(ins)
			if err != nil {
				return err
			}

			jobs, err := corpus.PairJobs(paths, outs, cfg.Paths.OutDir)
			if err != nil {
				return err
			}

			var total corpus.Stats
			for _, job := range jobs {
				stats, err := corpus.EncodeFile(cmd.Context(), job, enc)
				if err != nil {
					return err
				}

				total.Add(stats)
				slog.Info("encoded corpus", "in", job.In, "out", job.Out, "lines", stats.Lines, "ids", stats.Tokens)

				if err := checkpointCache(cfg, store, enc); err != nil {
					return err
				}
			}

			slog.Info("encoded corpora", "corpora", len(jobs), "lines", total.Lines, "words", total.Words, "ids", total.Tokens)

			return nil
		},
	}

	cmd.Flags().StringVar(&text, "text", "", "Sentence to encode to stdout")
	cmd.Flags().StringSliceVar(&ins, "in", nil, "Corpus paths or glob patterns to encode")
	cmd.Flags().StringSliceVar(&outs, "out", nil, "Output paths, one per input (default: --out-dir/<input name>)")

	return cmd
}

// newEncoder builds an Encoder over the stored merges and cache. The pruned
// vocabulary is preferred when one was saved.
func newEncoder(cfg config.Config, store *artifact.Store) (*tokenizer.Encoder, error) {
	bundle, err := store.Load()
	if err != nil {
		return nil, err
	}

	v := bundle.Vocab
	if bundle.Pruned != nil {
		v = bundle.Pruned
	}

	applier := tokenizer.NewApplier(bundle.Merges, bundle.Cache, bundle.Manifest.EndOfWord)

	return tokenizer.NewEncoder(applier, v, tokenizer.EncoderOptions{
		Wrap:     cfg.Apply.Wrap,
		MemoSize: cfg.Apply.MemoSize,
	})
}

// checkpointCache saves the cache grown while encoding when checkpointing is
// on.
func checkpointCache(cfg config.Config, store *artifact.Store, enc *tokenizer.Encoder) error {
	if !cfg.Apply.Checkpoint {
		return nil
	}

	return store.SaveCache(enc.Applier().Cache())
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}

	return strings.Join(parts, " ")
}
