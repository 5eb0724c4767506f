package main

import (
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/go-bpe/internal/artifact"
	"github.com/example/go-bpe/internal/config"
	"github.com/example/go-bpe/internal/server"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve tokenization over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			workers, err := config.ResolveWorkers(cfg.Runtime.Workers)
			if err != nil {
				return err
			}

			store, err := artifact.OpenStore(cfg.Paths.VocabDir)
			if err != nil {
				return err
			}

			enc, err := newEncoder(cfg, store)
			if err != nil {
				return err
			}

			h := server.NewHandler(enc, store,
				server.WithWorkers(workers),
				server.WithMaxTextBytes(cfg.Server.MaxTextBytes),
			)

			slog.Info("serving", "addr", cfg.Server.ListenAddr, "vocab_dir", store.Dir(), "workers", workers)

			err = server.New(cfg, h).
				WithShutdownTimeout(time.Duration(cfg.Server.ShutdownTimeout) * time.Second).
				Start(cmd.Context())
			if err != nil {
				return err
			}

			return checkpointCache(cfg, store, enc)
		},
	}

	return cmd
}
