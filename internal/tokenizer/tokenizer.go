// Package tokenizer applies a learned merge list to text. The Applier turns
// words into subword symbols; the Encoder maps those symbols to vocabulary
// ids for downstream sequence models.
package tokenizer

// Tokenizer encodes text into vocabulary token IDs.
type Tokenizer interface {
	// Encode tokenizes text and returns vocabulary token IDs.
	Encode(text string) ([]int64, error)
}
