package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/example/go-bpe/internal/artifact"
	"github.com/example/go-bpe/internal/config"
	"github.com/example/go-bpe/internal/corpus"
	"github.com/example/go-bpe/internal/doctor"
)

func newDoctorCmd() *cobra.Command {
	var corpora []string

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, artifacts and corpora before a run",
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Validation is reported as a check instead of failing early.
			cfg := activeCfg
			if cfg.Paths.VocabDir == "" {
				return fmt.Errorf("configuration not loaded")
			}

			out := cmd.OutOrStdout()
			manifest := filepath.Join(cfg.Paths.VocabDir, artifact.ManifestFile)
			_, statErr := os.Stat(manifest)

			dcfg := doctor.Config{
				Settings: cfg.Validate,
				Workers: func() (string, error) {
					n, err := config.ResolveWorkers(cfg.Runtime.Workers)
					if err != nil {
						return "", err
					}

					return strconv.Itoa(n), nil
				},
				Artifacts: func() (string, error) {
					store, err := artifact.OpenStore(cfg.Paths.VocabDir)
					if err != nil {
						return "", err
					}

					if err := store.Verify(); err != nil {
						return "", err
					}

					m := store.Manifest()

					return fmt.Sprintf("%d merges, %d symbols, %s codec", m.NumMerges, m.VocabSize, m.Codec), nil
				},
				SkipArtifacts: errors.Is(statErr, os.ErrNotExist),
				OutDir:        cfg.Paths.OutDir,
			}

			var expandErr error
			if len(corpora) > 0 {
				dcfg.Corpora, expandErr = corpus.ExpandPaths(corpora)
			}

			result := doctor.Run(dcfg, out)

			if expandErr != nil {
				result.AddFailure(fmt.Sprintf("corpora: %v", expandErr))
				_, _ = fmt.Fprintf(out, "%s corpora: %v\n", doctor.FailMark, expandErr)
			}

			if result.Failed() {
				for _, f := range result.Failures() {
					fmt.Fprintf(cmd.ErrOrStderr(), "FAIL: %s\n", f)
				}

				return errors.New("doctor checks failed")
			}

			_, _ = fmt.Fprintln(out, "doctor checks passed")

			return nil
		},
	}

	cmd.Flags().StringSliceVar(&corpora, "corpus", nil, "Corpus paths or glob patterns to check")

	return cmd
}
