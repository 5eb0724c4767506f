package tokenizer

import (
	"sort"
	"strings"
	"sync/atomic"

	"github.com/example/go-bpe/internal/bpe"
)

// Applier replays a merge list over words. It is safe for concurrent use;
// results are memoised in a shared bpe.Cache.
type Applier struct {
	merges []bpe.Pair
	// ranks maps each pair to the ascending positions at which it was
	// recorded in merges.
	ranks map[bpe.Pair][]int
	cache *bpe.Cache
	eow   string

	hits   atomic.Int64
	misses atomic.Int64
}

// CacheStats reports cache usage of an Applier.
type CacheStats struct {
	Hits    int64
	Misses  int64
	Entries int
}

// NewApplier returns an Applier for merges. A nil cache starts empty; an
// empty eow selects bpe.EndOfWord.
func NewApplier(merges []bpe.Pair, cache *bpe.Cache, eow string) *Applier {
	if cache == nil {
		cache = bpe.NewCache()
	}

	if eow == "" {
		eow = bpe.EndOfWord
	}

	ranks := make(map[bpe.Pair][]int, len(merges))
	for i, m := range merges {
		ranks[m] = append(ranks[m], i)
	}

	return &Applier{
		merges: append([]bpe.Pair(nil), merges...),
		ranks:  ranks,
		cache:  cache,
		eow:    eow,
	}
}

// ApplyWord returns the subword symbols of a single surface word. Merges are
// replayed strictly in recorded order.
func (a *Applier) ApplyWord(word string) []string {
	w := bpe.SplitWith(word, a.eow)
	if len(w) <= 1 {
		return w
	}

	key := w.String()
	if merged, ok := a.cache.Get(key); ok {
		a.hits.Add(1)
		return bpe.ParseWord(merged)
	}

	a.misses.Add(1)

	w = a.replay(w)
	a.cache.Put(key, w.String())

	return w
}

// Apply tokenizes a whitespace-delimited sentence.
func (a *Applier) Apply(sentence string) []string {
	var out []string
	for _, word := range strings.Fields(sentence) {
		out = append(out, a.ApplyWord(word)...)
	}

	return out
}

// replay jumps from one applicable merge to the next. A merge whose pair is
// absent from the current form is a no-op, so applying the lowest-ranked
// present pair at or after next is the same as visiting every merge.
func (a *Applier) replay(w bpe.Word) bpe.Word {
	next := 0
	for len(w) > 1 {
		rank := -1

		for i := 0; i+1 < len(w); i++ {
			r, ok := a.nextRank(bpe.Pair{A: w[i], B: w[i+1]}, next)
			if ok && (rank < 0 || r < rank) {
				rank = r
			}
		}

		if rank < 0 {
			break
		}

		w, _ = bpe.Fuse(w, a.merges[rank])
		next = rank + 1
	}

	return w
}

func (a *Applier) nextRank(p bpe.Pair, from int) (int, bool) {
	positions := a.ranks[p]
	i := sort.SearchInts(positions, from)

	if i == len(positions) {
		return 0, false
	}

	return positions[i], true
}

// Merges returns the merge list in recorded order.
func (a *Applier) Merges() []bpe.Pair {
	return append([]bpe.Pair(nil), a.merges...)
}

// Cache returns the shared cache, including entries added while applying.
func (a *Applier) Cache() *bpe.Cache {
	return a.cache
}

// EndOfWord returns the marker appended to every word.
func (a *Applier) EndOfWord() string {
	return a.eow
}

// Stats returns cache hit and miss counts since construction.
func (a *Applier) Stats() CacheStats {
	return CacheStats{
		Hits:    a.hits.Load(),
		Misses:  a.misses.Load(),
		Entries: a.cache.Len(),
	}
}
