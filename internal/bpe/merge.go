package bpe

import "cmp"

// Pair is an ordered pair of adjacent symbols.
type Pair struct {
	A string
	B string
}

// Merged returns the fused symbol: the exact concatenation of A and B.
func (p Pair) Merged() string {
	return p.A + p.B
}

// String returns the pair in its persisted "A B" form.
func (p Pair) String() string {
	return p.A + " " + p.B
}

// Compare orders pairs by left symbol, then right symbol, byte-wise.
func (p Pair) Compare(q Pair) int {
	if c := cmp.Compare(p.A, q.A); c != 0 {
		return c
	}

	return cmp.Compare(p.B, q.B)
}

// Fuse replaces every non-overlapping occurrence of p in w, scanning left to
// right, with the fused symbol. Matches only happen on whole symbols. The
// input is left untouched; when nothing matches w itself is returned and the
// second result is false.
func Fuse(w Word, p Pair) (Word, bool) {
	first := -1
	for i := 0; i+1 < len(w); i++ {
		if w[i] == p.A && w[i+1] == p.B {
			first = i
			break
		}
	}

	if first < 0 {
		return w, false
	}

	merged := p.Merged()
	out := make(Word, 0, len(w)-1)
	out = append(out, w[:first]...)

	for i := first; i < len(w); {
		if i+1 < len(w) && w[i] == p.A && w[i+1] == p.B {
			out = append(out, merged)
			i += 2

			continue
		}

		out = append(out, w[i])
		i++
	}

	return out, true
}

// pairDelta is a change to the count of one pair within one word.
type pairDelta struct {
	pair  Pair
	delta int64
}

// fuseWithDeltas is Fuse that also reports the pair-count changes the fusion
// causes inside w, unweighted by the word's frequency.
func fuseWithDeltas(w Word, p Pair) (Word, []pairDelta) {
	n := len(w)
	if n < 2 {
		return w, nil
	}

	merged := p.Merged()
	out := make(Word, 0, n)

	var deltas []pairDelta

	for i := 0; i < n; {
		if i+1 < n && w[i] == p.A && w[i+1] == p.B {
			if len(out) > 0 {
				left := out[len(out)-1]
				deltas = append(deltas,
					pairDelta{pair: Pair{left, p.A}, delta: -1},
					pairDelta{pair: Pair{left, merged}, delta: 1},
				)
			}

			deltas = append(deltas, pairDelta{pair: p, delta: -1})

			if i+2 < n {
				right := w[i+2]
				deltas = append(deltas,
					pairDelta{pair: Pair{p.B, right}, delta: -1},
					pairDelta{pair: Pair{merged, right}, delta: 1},
				)
			}

			out = append(out, merged)
			i += 2

			continue
		}

		out = append(out, w[i])
		i++
	}

	if deltas == nil {
		return w, nil
	}

	return out, deltas
}
