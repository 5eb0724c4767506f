// Package corpus reads and writes corpus files: word frequency counting for
// learning, and line-by-line tokenization and id encoding for application.
package corpus

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/example/go-bpe/internal/bpe"
	"github.com/example/go-bpe/internal/text"
)

// checkEvery is the number of lines between context checks.
const checkEvery = 4096

// CountOptions configures frequency counting.
type CountOptions struct {
	// TopK keeps only the K most frequent words of each corpus; 0 keeps all.
	TopK int
	// Workers bounds the corpora counted at once.
	Workers int
	// EndOfWord defaults to bpe.EndOfWord.
	EndOfWord string
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

func (o CountOptions) eow() string {
	if o.EndOfWord == "" {
		return bpe.EndOfWord
	}

	return o.EndOfWord
}

func (o CountOptions) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}

	return o.Logger
}

// CountReader counts the words of a single corpus up to its end marker and
// returns them in split form, ordered by first appearance.
func CountReader(ctx context.Context, r io.Reader, opts CountOptions) (*bpe.FrequencyTable, error) {
	surface := bpe.NewFrequencyTable()
	lr := text.NewLineReader(r)

	for {
		words, ok := lr.Next()
		if !ok {
			break
		}

		if lr.Line()%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		for _, w := range words {
			surface.Add(w, 1)
		}
	}

	if err := lr.Err(); err != nil {
		return nil, err
	}

	surface = surface.TopK(opts.TopK)

	// Distinct surface words have distinct split forms, so the order of
	// first appearance carries over.
	table := bpe.NewFrequencyTable()
	for _, e := range surface.Entries() {
		table.Add(bpe.SplitWith(e.Key, opts.eow()).String(), e.Count)
	}

	return table, nil
}

// CountFile is CountReader over the file at path.
func CountFile(ctx context.Context, path string, opts CountOptions) (*bpe.FrequencyTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open corpus: %w", err)
	}
	defer f.Close()

	table, err := CountReader(ctx, f, opts)
	if err != nil {
		return nil, fmt.Errorf("count %s: %w", path, err)
	}

	opts.logger().Info("counted corpus", "path", path, "words", table.Len(), "occurrences", table.Total())

	return table, nil
}

// CountFiles counts every corpus concurrently and merges the tables in the
// order of paths.
func CountFiles(ctx context.Context, paths []string, opts CountOptions) (*bpe.FrequencyTable, error) {
	tables := make([]*bpe.FrequencyTable, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(opts.Workers, 1))

	for i, path := range paths {
		i, path := i, path

		g.Go(func() error {
			t, err := CountFile(ctx, path, opts)
			if err != nil {
				return err
			}

			tables[i] = t

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := bpe.NewFrequencyTable()
	for _, t := range tables {
		merged.Merge(t)
	}

	return merged, nil
}
