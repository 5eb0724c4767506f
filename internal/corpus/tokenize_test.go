package corpus

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/example/go-bpe/internal/bpe"
	"github.com/example/go-bpe/internal/testutil"
	"github.com/example/go-bpe/internal/text"
	"github.com/example/go-bpe/internal/tokenizer"
	"github.com/example/go-bpe/internal/vocab"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var scenarioMerges = []bpe.Pair{{A: "e", B: "s"}, {A: "es", B: "t"}, {A: "est", B: "</w>"}}

func TestTokenizeReader(t *testing.T) {
	a := tokenizer.NewApplier(scenarioMerges, nil, "")
	counter := bpe.NewFrequencyTable()

	var out bytes.Buffer

	stats, err := TokenizeReader(context.Background(), strings.NewReader("lowest west\nnewest\n \nskipped\n"), &out, a, counter)
	require.NoError(t, err)

	require.Equal(t, "l o w est</w> w est</w>\nn e w est</w>\n", out.String())
	require.Equal(t, Stats{Lines: 2, Words: 3, Tokens: 10}, stats)

	c, _ := counter.Get("est</w>")
	require.Equal(t, int64(3), c)
	require.Equal(t, stats.Tokens, counter.Total())
}

func TestTokenizeReader_RejectsInvalidUTF8(t *testing.T) {
	a := tokenizer.NewApplier(scenarioMerges, nil, "")

	var out bytes.Buffer

	_, err := TokenizeReader(context.Background(), strings.NewReader("lowest\nwe\xffst\n"), &out, a, nil)
	require.ErrorIs(t, err, text.ErrInvalidUTF8)
	require.NotContains(t, out.String(), "\uFFFD")
}

func TestEncodeReader(t *testing.T) {
	a := tokenizer.NewApplier(scenarioMerges, nil, "")
	enc, err := tokenizer.NewEncoder(a, vocab.New([]string{"l", "o", "w", "est</w>"}), tokenizer.EncoderOptions{Wrap: true})
	require.NoError(t, err)

	var out bytes.Buffer

	stats, err := EncodeReader(context.Background(), strings.NewReader("lowest\nlow\n"), &out, enc)
	require.NoError(t, err)

	require.Equal(t, "2 4 5 6 7 3\n2 4 5 6 1 3\n", out.String())
	require.Equal(t, int64(2), stats.Lines)
	require.Equal(t, int64(12), stats.Tokens)
}

func TestTokenizeFiles(t *testing.T) {
	dir := t.TempDir()
	in1 := testutil.WriteCorpus(t, dir, "one.txt", "lowest newest", "west")
	in2 := testutil.WriteCorpus(t, dir, "two.txt", "widest")

	jobs, err := PairJobs([]string{in1, in2}, nil, filepath.Join(dir, "out"))
	require.NoError(t, err)

	var calls atomic.Int32

	a := tokenizer.NewApplier(scenarioMerges, nil, "")
	report, err := TokenizeFiles(context.Background(), jobs, a, TokenizeOptions{
		Workers:       2,
		CountSubwords: true,
		AfterEach: func(Job) error {
			calls.Add(1)
			return nil
		},
		Logger: quietLogger(),
	})
	require.NoError(t, err)

	require.Equal(t, int32(2), calls.Load())
	require.Equal(t, []string{"l o w est</w> n e w est</w>", "w est</w>"}, testutil.ReadLines(t, jobs[0].Out))
	require.Equal(t, []string{"w i d est</w>"}, testutil.ReadLines(t, jobs[1].Out))

	require.Equal(t, Stats{Lines: 3, Words: 4, Tokens: 14}, report.Total)
	require.Equal(t, report.Total.Tokens, report.Subwords.Total())
	require.Equal(t, []string{"l", "o", "w", "est</w>", "n", "e", "i", "d"}, report.Subwords.Keys())
}

func TestTokenizeFile_RejectsInPlace(t *testing.T) {
	in := testutil.WriteCorpus(t, t.TempDir(), "a.txt", "x")

	_, err := TokenizeFile(context.Background(), Job{In: in, Out: in}, tokenizer.NewApplier(nil, nil, ""), nil)
	require.Error(t, err)
}

func TestPairJobs(t *testing.T) {
	jobs, err := PairJobs([]string{"a", "b"}, []string{"x", "y"}, "")
	require.NoError(t, err)
	require.Equal(t, []Job{{In: "a", Out: "x"}, {In: "b", Out: "y"}}, jobs)

	_, err = PairJobs([]string{"a"}, []string{"x", "y"}, "")
	require.Error(t, err)

	_, err = PairJobs(nil, nil, "")
	require.Error(t, err)
}
