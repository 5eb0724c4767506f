package bpe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/emirpasic/gods/trees/binaryheap"
)

// Strategy selects how pair statistics are maintained between merge steps.
type Strategy string

const (
	// StrategyIncremental updates pair counts from the positions touched by
	// each merge and keeps candidates in a lazy max-heap.
	StrategyIncremental Strategy = "incremental"
	// StrategyRecompute recounts every pair before every merge step.
	StrategyRecompute Strategy = "recompute"
)

// ErrInvalidMerges is returned when the requested number of merges is not
// positive.
var ErrInvalidMerges = errors.New("number of merges must be positive")

// ParseStrategy converts a case-insensitive name to a Strategy. An empty
// name selects StrategyIncremental.
func ParseStrategy(raw string) (Strategy, error) {
	switch s := Strategy(strings.ToLower(strings.TrimSpace(raw))); s {
	case "":
		return StrategyIncremental, nil
	case StrategyIncremental, StrategyRecompute:
		return s, nil
	default:
		return "", fmt.Errorf("invalid strategy %q (expected %s|%s)", raw, StrategyIncremental, StrategyRecompute)
	}
}

// Options configures Learn.
type Options struct {
	// NumMerges is the number of merge steps to run.
	NumMerges int
	// Workers bounds the goroutines used to count and rewrite words.
	Workers int
	// Strategy defaults to StrategyIncremental.
	Strategy Strategy
	// Logger receives progress records; nil uses slog.Default().
	Logger *slog.Logger
}

// Result is the outcome of a learning run.
type Result struct {
	// Merges holds the selected pairs in selection order.
	Merges []Pair
	// Table is the fully merged frequency table in the input order.
	Table *FrequencyTable
	// Cache maps every input key to its final merged form.
	Cache *Cache
}

// Learn runs up to opts.NumMerges merge steps over table. Each step fuses the
// most frequent adjacent pair in every word; ties go to the smallest pair by
// Pair.Compare. Learning stops early, with a warning, when no pair is left.
// The input table is not modified.
func Learn(ctx context.Context, table *FrequencyTable, opts Options) (*Result, error) {
	if opts.NumMerges <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidMerges, opts.NumMerges)
	}

	strategy, err := ParseStrategy(string(opts.Strategy))
	if err != nil {
		return nil, err
	}

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	l := &learner{
		words:   make([]Word, table.Len()),
		counts:  make([]int64, table.Len()),
		workers: max(opts.Workers, 1),
		total:   opts.NumMerges,
		log:     log,
	}

	keys := table.Keys()
	for i, e := range table.entries {
		l.words[i] = ParseWord(e.Key)
		l.counts[i] = e.Count
	}

	log.Info("learning merges",
		"words", table.Len(),
		"occurrences", table.Total(),
		"merges", opts.NumMerges,
		"strategy", string(strategy),
		"workers", l.workers,
	)

	var merges []Pair
	if strategy == StrategyRecompute {
		merges, err = l.runRecompute(ctx)
	} else {
		merges, err = l.runIncremental(ctx)
	}

	if err != nil {
		return nil, err
	}

	res := &Result{
		Merges: merges,
		Table:  NewFrequencyTable(),
		Cache:  NewCache(),
	}

	// The learner keeps words aligned with the input rows, so the cache can
	// pair each original key with the final form at the same position.
	for i, w := range l.words {
		final := w.String()
		res.Table.Add(final, l.counts[i])
		res.Cache.Put(keys[i], final)
	}

	log.Info("finished learning", "merges", len(merges), "symbols_per_word", l.meanLength())

	return res, nil
}

type learner struct {
	words   []Word
	counts  []int64
	workers int
	total   int
	log     *slog.Logger

	lastPercent int
}

// runRecompute is the reference loop: full pair recount, argmax, rewrite.
func (l *learner) runRecompute(ctx context.Context) ([]Pair, error) {
	merges := make([]Pair, 0, l.total)

	for len(merges) < l.total {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		stats := CountPairs(l.words, l.counts, l.workers)

		best, count, ok := stats.Best()
		if !ok {
			l.stopEarly(len(merges))
			break
		}

		shardDo(len(l.words), l.workers, func(start, end int) {
			for i := start; i < end; i++ {
				l.words[i], _ = Fuse(l.words[i], best)
			}
		})

		merges = append(merges, best)
		l.progress(len(merges), best, count)
	}

	return merges, nil
}

// candidate is a heap entry. count may be stale; it is checked against the
// live statistics when popped.
type candidate struct {
	pair  Pair
	count int64
}

func compareCandidates(a, b interface{}) int {
	ca, cb := a.(candidate), b.(candidate)
	switch {
	case ca.count > cb.count:
		return -1
	case ca.count < cb.count:
		return 1
	default:
		return ca.pair.Compare(cb.pair)
	}
}

// runIncremental maintains pair counts from fusion deltas. Every pair with a
// positive count has at least one heap entry whose count is not lower than
// the live count: increases push a fresh entry, decreases leave an entry
// that is corrected when it reaches the top.
func (l *learner) runIncremental(ctx context.Context) ([]Pair, error) {
	stats, index := countPairsIndexed(l.words, l.counts, l.workers)

	heap := binaryheap.NewWith(compareCandidates)
	for p, c := range stats {
		if c > 0 {
			heap.Push(candidate{pair: p, count: c})
		}
	}

	merges := make([]Pair, 0, l.total)

	for len(merges) < l.total {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		best, count, ok := popBest(heap, stats)
		if !ok {
			l.stopEarly(len(merges))
			break
		}

		positions := index[best]
		delete(index, best)

		changed := make(map[Pair]bool)

		for i := range positions {
			fused, deltas := fuseWithDeltas(l.words[i], best)
			if deltas == nil {
				continue
			}

			l.words[i] = fused

			for _, d := range deltas {
				stats[d.pair] += d.delta * l.counts[i]
				if d.delta > 0 {
					index.add(d.pair, i)
					changed[d.pair] = true
				} else if _, seen := changed[d.pair]; !seen {
					changed[d.pair] = false
				}
			}
		}

		for p, increased := range changed {
			c := stats[p]
			switch {
			case c <= 0:
				delete(stats, p)
			case increased:
				heap.Push(candidate{pair: p, count: c})
			}
		}

		merges = append(merges, best)
		l.progress(len(merges), best, count)
	}

	return merges, nil
}

func popBest(heap *binaryheap.Heap, stats PairStats) (Pair, int64, bool) {
	for {
		v, ok := heap.Pop()
		if !ok {
			return Pair{}, 0, false
		}

		c := v.(candidate)

		live := stats[c.pair]
		if live <= 0 {
			continue
		}

		if live != c.count {
			heap.Push(candidate{pair: c.pair, count: live})
			continue
		}

		return c.pair, live, true
	}
}

func (l *learner) stopEarly(done int) {
	l.log.Warn("no mergeable pair left; stopping early", "merges", done, "requested", l.total)
}

func (l *learner) progress(done int, p Pair, count int64) {
	percent := done * 100 / l.total
	if percent <= l.lastPercent {
		l.log.Debug("merge", "step", done, "pair", p.String(), "frequency", count)
		return
	}

	l.lastPercent = percent
	l.log.Info("learn progress",
		"percent", percent,
		"merges", done,
		"pair", p.String(),
		"frequency", count,
	)
}

func (l *learner) meanLength() float64 {
	if len(l.words) == 0 {
		return 0
	}

	var n int
	for _, w := range l.words {
		n += len(w)
	}

	return float64(n) / float64(len(l.words))
}
