package bpe

import (
	"github.com/sourcegraph/conc/pool"
)

// PairStats holds the frequency-weighted count of every adjacent pair.
type PairStats map[Pair]int64

// Best returns the pair with the highest count. Ties go to the pair that
// sorts first by left symbol, then right symbol. ok is false when no pair
// has a positive count.
func (s PairStats) Best() (best Pair, count int64, ok bool) {
	for p, c := range s {
		if c <= 0 {
			continue
		}

		if !ok || c > count || (c == count && p.Compare(best) < 0) {
			best, count, ok = p, c, true
		}
	}

	return best, count, ok
}

// PairCounts computes pair statistics for a word table on the calling
// goroutine.
func PairCounts(table *FrequencyTable) PairStats {
	stats := make(PairStats)
	for _, e := range table.entries {
		addPairs(stats, ParseWord(e.Key), e.Count)
	}

	return stats
}

// CountPairs computes pair statistics for words weighted by counts, sharding
// the words over at most workers goroutines and summing the partial tables.
func CountPairs(words []Word, counts []int64, workers int) PairStats {
	parts := shardResults(len(words), workers, func(start, end int) PairStats {
		local := make(PairStats)
		for i := start; i < end; i++ {
			addPairs(local, words[i], counts[i])
		}

		return local
	})

	if len(parts) == 1 {
		return parts[0]
	}

	total := make(PairStats)
	for _, part := range parts {
		for p, c := range part {
			total[p] += c
		}
	}

	return total
}

func addPairs(stats PairStats, w Word, count int64) {
	if count == 0 {
		return
	}

	for i := 0; i+1 < len(w); i++ {
		stats[Pair{w[i], w[i+1]}] += count
	}
}

// pairIndex records which words may contain a pair. It is a superset:
// entries are added when a pair appears and only dropped when the pair
// itself is merged.
type pairIndex map[Pair]map[int]struct{}

func (ix pairIndex) add(p Pair, word int) {
	set := ix[p]
	if set == nil {
		set = make(map[int]struct{})
		ix[p] = set
	}

	set[word] = struct{}{}
}

// countPairsIndexed is CountPairs that also builds the pair index.
func countPairsIndexed(words []Word, counts []int64, workers int) (PairStats, pairIndex) {
	type partial struct {
		stats PairStats
		index pairIndex
	}

	parts := shardResults(len(words), workers, func(start, end int) partial {
		local := partial{stats: make(PairStats), index: make(pairIndex)}
		for i := start; i < end; i++ {
			w := words[i]
			for j := 0; j+1 < len(w); j++ {
				p := Pair{w[j], w[j+1]}
				local.stats[p] += counts[i]
				local.index.add(p, i)
			}
		}

		return local
	})

	stats := make(PairStats)
	index := make(pairIndex)

	for _, part := range parts {
		for p, c := range part.stats {
			stats[p] += c
		}

		for p, set := range part.index {
			for i := range set {
				index.add(p, i)
			}
		}
	}

	return stats, index
}

// shardResults splits [0, n) into at most workers contiguous ranges and runs
// fn on each in a bounded pool. Results are returned in range order.
func shardResults[T any](n, workers int, fn func(start, end int) T) []T {
	if workers < 1 {
		workers = 1
	}

	if n <= workers || workers == 1 {
		return []T{fn(0, n)}
	}

	size := (n + workers - 1) / workers
	out := make([]T, (n+size-1)/size)
	p := pool.New().WithMaxGoroutines(workers)

	for shard, start := 0, 0; start < n; shard, start = shard+1, start+size {
		shard, start := shard, start
		end := min(start+size, n)
		p.Go(func() {
			out[shard] = fn(start, end)
		})
	}

	p.Wait()

	return out
}

// shardDo is shardResults for functions without a result.
func shardDo(n, workers int, fn func(start, end int)) {
	shardResults(n, workers, func(start, end int) struct{} {
		fn(start, end)
		return struct{}{}
	})
}
