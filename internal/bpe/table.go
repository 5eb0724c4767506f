package bpe

import "sort"

// Entry is one key/count row of a FrequencyTable.
type Entry struct {
	Key   string
	Count int64
}

// FrequencyTable maps keys to counts and remembers the order in which keys
// were first added. Word tables use the space-joined Word form as key; the
// same type counts applied subwords for vocabulary pruning.
//
// A FrequencyTable is not safe for concurrent use.
type FrequencyTable struct {
	entries []Entry
	index   map[string]int
}

// NewFrequencyTable returns an empty table.
func NewFrequencyTable() *FrequencyTable {
	return &FrequencyTable{index: make(map[string]int)}
}

// FromEntries builds a table from rows in order. Repeated keys are summed.
func FromEntries(entries []Entry) *FrequencyTable {
	t := NewFrequencyTable()
	for _, e := range entries {
		t.Add(e.Key, e.Count)
	}

	return t
}

// Add increments the count of key by n, appending key if it is new.
func (t *FrequencyTable) Add(key string, n int64) {
	if i, ok := t.index[key]; ok {
		t.entries[i].Count += n
		return
	}

	t.index[key] = len(t.entries)
	t.entries = append(t.entries, Entry{Key: key, Count: n})
}

// AddWord counts one occurrence of the split form of a surface word.
func (t *FrequencyTable) AddWord(word, eow string) {
	t.Add(SplitWith(word, eow).String(), 1)
}

// Get returns the count of key.
func (t *FrequencyTable) Get(key string) (int64, bool) {
	i, ok := t.index[key]
	if !ok {
		return 0, false
	}

	return t.entries[i].Count, true
}

// Len returns the number of distinct keys.
func (t *FrequencyTable) Len() int {
	return len(t.entries)
}

// Total returns the sum of all counts.
func (t *FrequencyTable) Total() int64 {
	var sum int64
	for _, e := range t.entries {
		sum += e.Count
	}

	return sum
}

// Entries returns a copy of the rows in insertion order.
func (t *FrequencyTable) Entries() []Entry {
	return append([]Entry(nil), t.entries...)
}

// Keys returns the keys in insertion order.
func (t *FrequencyTable) Keys() []string {
	keys := make([]string, len(t.entries))
	for i, e := range t.entries {
		keys[i] = e.Key
	}

	return keys
}

// Merge adds every row of other into t: counts of shared keys are summed and
// new keys are appended in other's order.
func (t *FrequencyTable) Merge(other *FrequencyTable) {
	if other == nil {
		return
	}

	for _, e := range other.entries {
		t.Add(e.Key, e.Count)
	}
}

// TopK returns a new table with the k highest-count rows, ordered by count,
// highest first. Ties keep the first-encountered row. k <= 0 returns an
// unsorted copy of t.
func (t *FrequencyTable) TopK(k int) *FrequencyTable {
	if k <= 0 {
		return FromEntries(t.entries)
	}

	sorted := t.Entries()
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Count > sorted[j].Count
	})

	return FromEntries(sorted[:min(k, len(sorted))])
}

// Filter returns a new table without the rows whose count is below minCount.
func (t *FrequencyTable) Filter(minCount int64) *FrequencyTable {
	out := NewFrequencyTable()
	for _, e := range t.entries {
		if e.Count >= minCount {
			out.Add(e.Key, e.Count)
		}
	}

	return out
}
