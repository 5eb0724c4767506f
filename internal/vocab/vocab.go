// Package vocab assigns stable integer ids to learned subword symbols.
package vocab

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/example/go-bpe/internal/bpe"
)

// Reserved control symbols. They always occupy the first ids.
const (
	PadSymbol     = "</p>"
	UnknownSymbol = "UNK"
	GoSymbol      = "</g>"
	EndSymbol     = "</e>"
)

// Reserved ids.
const (
	PadID int64 = iota
	UnknownID
	GoID
	EndID
)

// Reserved lists the control symbols in id order.
var Reserved = []string{PadSymbol, UnknownSymbol, GoSymbol, EndSymbol}

// ErrInvalidSize is returned when a pruned vocabulary cannot hold the
// reserved symbols plus at least one learned symbol.
var ErrInvalidSize = errors.New("vocabulary size too small")

// Vocabulary is a bijective mapping between symbols and ids. It is
// immutable after construction and safe for concurrent use.
type Vocabulary struct {
	symbols []string
	ids     map[string]int64
}

// New returns a vocabulary holding the reserved symbols followed by the
// given symbols in order. Duplicates keep their first id.
func New(symbols []string) *Vocabulary {
	v := &Vocabulary{
		symbols: make([]string, 0, len(Reserved)+len(symbols)),
		ids:     make(map[string]int64, len(Reserved)+len(symbols)),
	}

	for _, s := range Reserved {
		v.add(s)
	}

	for _, s := range symbols {
		v.add(s)
	}

	return v
}

// FromSymbols rebuilds a vocabulary from its id-ordered symbol list, as
// persisted. The list must start with the reserved symbols and hold no
// duplicates.
func FromSymbols(symbols []string) (*Vocabulary, error) {
	if len(symbols) < len(Reserved) {
		return nil, fmt.Errorf("vocabulary has %d symbols; want at least %d", len(symbols), len(Reserved))
	}

	for i, s := range Reserved {
		if symbols[i] != s {
			return nil, fmt.Errorf("id %d is %q; want reserved symbol %q", i, symbols[i], s)
		}
	}

	v := New(nil)
	for i, s := range symbols[len(Reserved):] {
		if _, dup := v.ids[s]; dup {
			return nil, fmt.Errorf("duplicate symbol %q at id %d", s, i+len(Reserved))
		}

		v.add(s)
	}

	return v, nil
}

// Build indexes every symbol of every word in a fully merged table, scanning
// the table in order. A learned symbol spelled like a reserved one shares
// the reserved id; each such symbol is logged once as a warning. A nil log
// uses slog.Default().
func Build(table *bpe.FrequencyTable, log *slog.Logger) *Vocabulary {
	if log == nil {
		log = slog.Default()
	}

	v := New(nil)
	warned := make(map[string]bool)
	for _, key := range table.Keys() {
		for _, s := range bpe.ParseWord(key) {
			if isReserved(s) && !warned[s] {
				warned[s] = true
				id, _ := v.ID(s)
				log.Warn("learned symbol collides with reserved symbol", "symbol", s, "id", id, "word", key)
			}

			v.add(s)
		}
	}

	return v
}

// Prune builds a vocabulary of at most size entries: the reserved symbols
// plus the most frequent symbols in counts. Ties keep the symbol counted
// first.
func Prune(counts *bpe.FrequencyTable, size int) (*Vocabulary, error) {
	if size <= len(Reserved) {
		return nil, fmt.Errorf("%w: %d (must exceed %d reserved ids)", ErrInvalidSize, size, len(Reserved))
	}

	learned := bpe.NewFrequencyTable()
	for _, e := range counts.Entries() {
		if !isReserved(e.Key) {
			learned.Add(e.Key, e.Count)
		}
	}

	return New(learned.TopK(size - len(Reserved)).Keys()), nil
}

func isReserved(s string) bool {
	for _, r := range Reserved {
		if s == r {
			return true
		}
	}

	return false
}

func (v *Vocabulary) add(s string) {
	if _, ok := v.ids[s]; ok {
		return
	}

	v.ids[s] = int64(len(v.symbols))
	v.symbols = append(v.symbols, s)
}

// Len returns the number of ids, reserved ones included.
func (v *Vocabulary) Len() int {
	return len(v.symbols)
}

// ID returns the id of s.
func (v *Vocabulary) ID(s string) (int64, bool) {
	id, ok := v.ids[s]
	return id, ok
}

// Symbol returns the symbol with the given id.
func (v *Vocabulary) Symbol(id int64) (string, bool) {
	if id < 0 || id >= int64(len(v.symbols)) {
		return "", false
	}

	return v.symbols[id], true
}

// Symbols returns the id-ordered symbol list.
func (v *Vocabulary) Symbols() []string {
	return append([]string(nil), v.symbols...)
}

// SymbolToID returns a copy of the symbol to id view.
func (v *Vocabulary) SymbolToID() map[string]int64 {
	out := make(map[string]int64, len(v.ids))
	for s, id := range v.ids {
		out[s] = id
	}

	return out
}

// Encode maps symbols to ids. Unknown symbols map to UnknownID.
func (v *Vocabulary) Encode(symbols []string) []int64 {
	ids := make([]int64, len(symbols))
	for i, s := range symbols {
		id, ok := v.ids[s]
		if !ok {
			id = UnknownID
		}

		ids[i] = id
	}

	return ids
}

// Decode maps ids back to symbols. Out-of-range ids decode to UnknownSymbol.
func (v *Vocabulary) Decode(ids []int64) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		s, ok := v.Symbol(id)
		if !ok {
			s = UnknownSymbol
		}

		out[i] = s
	}

	return out
}
