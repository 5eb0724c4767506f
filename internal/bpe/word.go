// Package bpe implements byte-pair-encoding vocabulary learning: the symbol
// sequence model, ordered word frequency tables, pair statistics and the
// merge learner.
package bpe

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// EndOfWord is the default marker appended to every split word.
const EndOfWord = "</w>"

// ErrEmptyWord is returned when a zero-length surface word is split.
var ErrEmptyWord = errors.New("empty word")

// Word is an ordered symbol sequence. The last symbol carries the
// end-of-word marker, either on its own or fused with the preceding
// characters.
type Word []string

// Split converts a surface word into its initial form: one symbol per
// character followed by EndOfWord. The caller must not pass an empty word.
func Split(word string) Word {
	return SplitWith(word, EndOfWord)
}

// SplitWith is Split with a custom end-of-word marker.
func SplitWith(word, eow string) Word {
	w := make(Word, 0, utf8.RuneCountInString(word)+1)
	for _, r := range word {
		w = append(w, string(r))
	}

	return append(w, eow)
}

// SplitChecked is SplitWith for callers that cannot guarantee the
// precondition: empty words, invalid UTF-8 and words containing whitespace
// are rejected.
func SplitChecked(word, eow string) (Word, error) {
	if word == "" {
		return nil, ErrEmptyWord
	}

	if !utf8.ValidString(word) {
		return nil, fmt.Errorf("word %q is not valid UTF-8", word)
	}

	if strings.IndexFunc(word, unicode.IsSpace) >= 0 {
		return nil, fmt.Errorf("word %q contains whitespace", word)
	}

	return SplitWith(word, eow), nil
}

// ParseWord re-splits the stored space-joined form of a word.
func ParseWord(s string) Word {
	return strings.Fields(s)
}

// String returns the canonical space-joined form used as table and cache key.
func (w Word) String() string {
	return strings.Join(w, " ")
}

// Clone returns a copy of w that shares no storage with it.
func (w Word) Clone() Word {
	return append(Word(nil), w...)
}
