// Package text handles corpus lines: whitespace word splitting and the
// blank-line end-of-corpus marker.
package text

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// MaxLineBytes is the longest corpus line a LineReader accepts.
const MaxLineBytes = 16 << 20

// ErrLineTooLong is returned when a corpus line exceeds MaxLineBytes.
var ErrLineTooLong = errors.New("corpus line too long")

// ErrInvalidUTF8 is returned when a corpus line is not valid UTF-8.
var ErrInvalidUTF8 = errors.New("invalid UTF-8")

// Fields splits a line into whitespace-delimited words.
func Fields(line string) []string {
	return strings.Fields(line)
}

// IsEndMarker reports whether line ends a corpus: it is empty or holds only
// whitespace.
func IsEndMarker(line string) bool {
	return strings.TrimSpace(line) == ""
}

// LineReader yields the word lists of a corpus, one per line, stopping at
// the first end marker or at EOF.
type LineReader struct {
	sc   *bufio.Scanner
	line int
	done bool
	err  error
}

// NewLineReader wraps r.
func NewLineReader(r io.Reader) *LineReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), MaxLineBytes)

	return &LineReader{sc: sc}
}

// Next returns the words of the next line. It returns false at the end of
// the corpus or on error; check Err afterwards.
func (lr *LineReader) Next() ([]string, bool) {
	if lr.done {
		return nil, false
	}

	if !lr.sc.Scan() {
		lr.done = true

		if err := lr.sc.Err(); err != nil {
			if errors.Is(err, bufio.ErrTooLong) {
				err = fmt.Errorf("line %d: %w", lr.line+1, ErrLineTooLong)
			}

			lr.err = err
		}

		return nil, false
	}

	lr.line++

	line := lr.sc.Text()
	if !utf8.ValidString(line) {
		lr.done = true
		lr.err = fmt.Errorf("line %d: %w", lr.line, ErrInvalidUTF8)

		return nil, false
	}

	if IsEndMarker(line) {
		lr.done = true
		return nil, false
	}

	return Fields(line), true
}

// Line returns the 1-based number of the last line returned by Next.
func (lr *LineReader) Line() int {
	return lr.line
}

// Err returns the first read error, if any.
func (lr *LineReader) Err() error {
	return lr.err
}
