package bpe

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPairCounts(t *testing.T) {
	tab := FromEntries([]Entry{
		{"l o w </w>", 5},
		{"l o w e r </w>", 2},
	})

	stats := PairCounts(tab)
	require.Equal(t, int64(7), stats[Pair{"l", "o"}])
	require.Equal(t, int64(7), stats[Pair{"o", "w"}])
	require.Equal(t, int64(5), stats[Pair{"w", "</w>"}])
	require.Equal(t, int64(2), stats[Pair{"w", "e"}])
	require.Equal(t, int64(2), stats[Pair{"r", "</w>"}])
	require.Len(t, stats, 6)
}

func TestPairStats_BestTieBreak(t *testing.T) {
	stats := PairStats{
		{"o", "w"}: 3,
		{"e", "s"}: 3,
		{"e", "r"}: 3,
		{"x", "y"}: 1,
		{"a", "a"}: 0,
	}

	best, count, ok := stats.Best()
	require.True(t, ok)
	require.Equal(t, Pair{"e", "r"}, best)
	require.Equal(t, int64(3), count)
}

func TestPairStats_BestEmpty(t *testing.T) {
	_, _, ok := PairStats{}.Best()
	require.False(t, ok)

	_, _, ok = PairStats{{"a", "b"}: 0}.Best()
	require.False(t, ok)
}

func TestCountPairs_ShardedMatchesSingle(t *testing.T) {
	var words []Word

	var counts []int64

	for i := 0; i < 257; i++ {
		words = append(words, Split(fmt.Sprintf("w%03dab", i%37)))
		counts = append(counts, int64(i%5+1))
	}

	single := CountPairs(words, counts, 1)
	for _, workers := range []int{2, 3, 8, 64, 1000} {
		require.Equal(t, single, CountPairs(words, counts, workers), "workers=%d", workers)
	}
}

func TestCountPairsIndexed(t *testing.T) {
	words := []Word{ParseWord("a b </w>"), ParseWord("b a b </w>"), ParseWord("c </w>")}
	counts := []int64{2, 1, 4}

	stats, index := countPairsIndexed(words, counts, 2)
	require.Equal(t, CountPairs(words, counts, 1), stats)
	require.Equal(t, map[int]struct{}{0: {}, 1: {}}, index[Pair{"a", "b"}])
	require.Equal(t, map[int]struct{}{2: {}}, index[Pair{"c", "</w>"}])
}
