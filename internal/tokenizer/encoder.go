package tokenizer

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru"

	"github.com/example/go-bpe/internal/text"
	"github.com/example/go-bpe/internal/vocab"
)

// DefaultMemoSize is the number of words whose ids an Encoder remembers.
const DefaultMemoSize = 8192

// ErrNilApplier is returned when NewEncoder is called without an Applier.
var ErrNilApplier = errors.New("tokenizer applier must not be nil")

// EncoderOptions configures an Encoder.
type EncoderOptions struct {
	// Wrap surrounds every encoded sentence with the go and end ids.
	Wrap bool
	// MemoSize bounds the word memo; 0 selects DefaultMemoSize.
	MemoSize int
}

// Encoder implements Tokenizer over an Applier and a Vocabulary.
type Encoder struct {
	applier *Applier
	vocab   *vocab.Vocabulary
	wrap    bool
	memo    *lru.Cache
}

var _ Tokenizer = (*Encoder)(nil)

// NewEncoder returns an Encoder. Symbols missing from v encode as the
// unknown id.
func NewEncoder(a *Applier, v *vocab.Vocabulary, opts EncoderOptions) (*Encoder, error) {
	if a == nil {
		return nil, ErrNilApplier
	}

	if v == nil {
		return nil, errors.New("tokenizer vocabulary must not be nil")
	}

	size := opts.MemoSize
	if size <= 0 {
		size = DefaultMemoSize
	}

	memo, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("create encoder memo: %w", err)
	}

	return &Encoder{applier: a, vocab: v, wrap: opts.Wrap, memo: memo}, nil
}

// Encode tokenizes a sentence and returns its ids. The sentence must be
// valid UTF-8.
func (e *Encoder) Encode(sentence string) ([]int64, error) {
	if !utf8.ValidString(sentence) {
		return nil, fmt.Errorf("encode: %w", text.ErrInvalidUTF8)
	}

	words := strings.Fields(sentence)

	ids := make([]int64, 0, 2*len(words)+2)
	if e.wrap {
		ids = append(ids, vocab.GoID)
	}

	for _, w := range words {
		ids = append(ids, e.EncodeWord(w)...)
	}

	if e.wrap {
		ids = append(ids, vocab.EndID)
	}

	return ids, nil
}

// Apply returns the subword symbols of a sentence without mapping them to
// ids.
func (e *Encoder) Apply(sentence string) []string {
	return e.applier.Apply(sentence)
}

// Applier returns the Applier the encoder replays merges with.
func (e *Encoder) Applier() *Applier {
	return e.applier
}

// EncodeWord returns the ids of a single surface word. The returned slice
// must not be modified.
func (e *Encoder) EncodeWord(word string) []int64 {
	if v, ok := e.memo.Get(word); ok {
		return v.([]int64)
	}

	ids := e.vocab.Encode(e.applier.ApplyWord(word))
	e.memo.Add(word, ids)

	return ids
}

// Decode turns ids back into text. Reserved control ids are dropped and
// every end-of-word marker becomes a word boundary.
func (e *Encoder) Decode(ids []int64) string {
	var sb strings.Builder

	for _, s := range e.vocab.Decode(ids) {
		switch s {
		case vocab.PadSymbol, vocab.GoSymbol, vocab.EndSymbol:
			continue
		}

		sb.WriteString(s)
	}

	return strings.Join(strings.Fields(strings.ReplaceAll(sb.String(), e.applier.EndOfWord(), " ")), " ")
}
