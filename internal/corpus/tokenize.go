package corpus

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/example/go-bpe/internal/bpe"
	"github.com/example/go-bpe/internal/text"
	"github.com/example/go-bpe/internal/tokenizer"
)

// Job pairs an input corpus with the file its output is written to.
type Job struct {
	In  string
	Out string
}

// Stats counts the work done on one or more corpora.
type Stats struct {
	Lines  int64
	Words  int64
	Tokens int64
}

// Add accumulates other into s.
func (s *Stats) Add(other Stats) {
	s.Lines += other.Lines
	s.Words += other.Words
	s.Tokens += other.Tokens
}

// TokenizeOptions configures TokenizeFiles.
type TokenizeOptions struct {
	// Workers bounds the corpora tokenized at once.
	Workers int
	// CountSubwords collects applied subword counts in Report.Subwords.
	CountSubwords bool
	// AfterEach runs once per finished job, possibly from several
	// goroutines at once.
	AfterEach func(Job) error
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Report summarises a TokenizeFiles run.
type Report struct {
	Total Stats
	Jobs  []Stats
	// Subwords holds applied subword counts merged in job order, or nil.
	Subwords *bpe.FrequencyTable
}

// TokenizeReader writes one line of space-joined subwords per input line,
// stopping at the corpus end marker. A non-nil counter receives every
// emitted subword.
func TokenizeReader(ctx context.Context, r io.Reader, w io.Writer, a *tokenizer.Applier, counter *bpe.FrequencyTable) (Stats, error) {
	return eachLine(ctx, r, w, func(words []string, bw *bufio.Writer) int64 {
		var n int64

		for i, word := range words {
			for j, sym := range a.ApplyWord(word) {
				if i > 0 || j > 0 {
					_ = bw.WriteByte(' ')
				}

				_, _ = bw.WriteString(sym)

				if counter != nil {
					counter.Add(sym, 1)
				}

				n++
			}
		}

		return n
	})
}

// EncodeReader writes one line of space-separated vocabulary ids per input
// line, stopping at the corpus end marker.
func EncodeReader(ctx context.Context, r io.Reader, w io.Writer, enc *tokenizer.Encoder) (Stats, error) {
	var encErr error

	stats, err := eachLine(ctx, r, w, func(words []string, bw *bufio.Writer) int64 {
		ids, err := enc.Encode(strings.Join(words, " "))
		if err != nil && encErr == nil {
			encErr = err
		}

		var buf []byte
		for i, id := range ids {
			if i > 0 {
				buf = append(buf, ' ')
			}

			buf = strconv.AppendInt(buf, id, 10)
		}

		_, _ = bw.Write(buf)

		return int64(len(ids))
	})
	if err != nil {
		return stats, err
	}

	return stats, encErr
}

func eachLine(ctx context.Context, r io.Reader, w io.Writer, emit func([]string, *bufio.Writer) int64) (Stats, error) {
	var stats Stats

	lr := text.NewLineReader(r)
	bw := bufio.NewWriter(w)

	for {
		words, ok := lr.Next()
		if !ok {
			break
		}

		if lr.Line()%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
		}

		stats.Tokens += emit(words, bw)
		stats.Lines++
		stats.Words += int64(len(words))

		if err := bw.WriteByte('\n'); err != nil {
			return stats, err
		}
	}

	if err := lr.Err(); err != nil {
		return stats, err
	}

	return stats, bw.Flush()
}

// TokenizeFile runs TokenizeReader from job.In to job.Out, creating the
// output directory when needed.
func TokenizeFile(ctx context.Context, job Job, a *tokenizer.Applier, counter *bpe.FrequencyTable) (Stats, error) {
	return withFiles(job, func(in io.Reader, out io.Writer) (Stats, error) {
		return TokenizeReader(ctx, in, out, a, counter)
	})
}

// EncodeFile runs EncodeReader from job.In to job.Out.
func EncodeFile(ctx context.Context, job Job, enc *tokenizer.Encoder) (Stats, error) {
	return withFiles(job, func(in io.Reader, out io.Writer) (Stats, error) {
		return EncodeReader(ctx, in, out, enc)
	})
}

func withFiles(job Job, fn func(io.Reader, io.Writer) (Stats, error)) (stats Stats, err error) {
	if filepath.Clean(job.In) == filepath.Clean(job.Out) {
		return stats, fmt.Errorf("output %s would overwrite its input", job.Out)
	}

	in, err := os.Open(job.In)
	if err != nil {
		return stats, fmt.Errorf("open corpus: %w", err)
	}
	defer in.Close()

	if dir := filepath.Dir(job.Out); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return stats, fmt.Errorf("create output dir %s: %w", dir, err)
		}
	}

	out, err := os.Create(job.Out)
	if err != nil {
		return stats, fmt.Errorf("create output: %w", err)
	}

	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", job.Out, cerr)
		}
	}()

	stats, err = fn(in, out)
	if err != nil {
		return stats, fmt.Errorf("process %s: %w", job.In, err)
	}

	return stats, nil
}

// PairJobs matches inputs with outputs one to one. With an empty outs and a
// non-empty outDir, each output is named after its input inside outDir.
func PairJobs(ins, outs []string, outDir string) ([]Job, error) {
	if len(outs) == 0 && outDir != "" {
		for _, in := range ins {
			outs = append(outs, filepath.Join(outDir, filepath.Base(in)))
		}
	}

	if len(ins) != len(outs) {
		return nil, fmt.Errorf("got %d inputs and %d outputs", len(ins), len(outs))
	}

	if len(ins) == 0 {
		return nil, errors.New("no corpus to process")
	}

	jobs := make([]Job, len(ins))
	for i := range ins {
		jobs[i] = Job{In: ins[i], Out: outs[i]}
	}

	return jobs, nil
}

// TokenizeFiles tokenizes every job concurrently with a shared Applier.
func TokenizeFiles(ctx context.Context, jobs []Job, a *tokenizer.Applier, opts TokenizeOptions) (*Report, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	report := &Report{Jobs: make([]Stats, len(jobs))}
	counters := make([]*bpe.FrequencyTable, len(jobs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(opts.Workers, 1))

	for i, job := range jobs {
		i, job := i, job

		g.Go(func() error {
			if opts.CountSubwords {
				counters[i] = bpe.NewFrequencyTable()
			}

			stats, err := TokenizeFile(ctx, job, a, counters[i])
			if err != nil {
				return err
			}

			report.Jobs[i] = stats

			log.Info("tokenized corpus",
				"in", job.In,
				"out", job.Out,
				"lines", stats.Lines,
				"tokens", stats.Tokens,
			)

			if opts.AfterEach != nil {
				return opts.AfterEach(job)
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, s := range report.Jobs {
		report.Total.Add(s)
	}

	if opts.CountSubwords {
		report.Subwords = bpe.NewFrequencyTable()
		for _, c := range counters {
			report.Subwords.Merge(c)
		}
	}

	return report, nil
}
