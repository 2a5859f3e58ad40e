// Package tokenizer converts between text and token IDs.
//
// Two implementations ship: a trainable byte-pair-encoding tokenizer (BPE)
// whose vocabulary is learned from a corpus and persisted as JSON, and a
// TikToken adapter over pretrained OpenAI vocabularies.
package tokenizer

import "errors"

var (
	// ErrInvalidTokenID is returned by Decode for IDs outside the
	// vocabulary.
	ErrInvalidTokenID = errors.New("tokenizer: invalid token id")
	// ErrNotTrained is returned when encoding with an untrained BPE.
	ErrNotTrained = errors.New("tokenizer: not trained")
)

// Tokenizer is the interface the generation stack consumes.
//
// Implementations must be safe for concurrent use: generation requests
// share one tokenizer.
type Tokenizer interface {
	// Encode converts text to token IDs, optionally wrapping the result
	// in BOS/EOS markers.
	Encode(text string, addSpecial bool) ([]int32, error)
	// Decode converts token IDs back to text, optionally dropping special
	// tokens. IDs outside the vocabulary fail with ErrInvalidTokenID.
	Decode(ids []int32, skipSpecial bool) (string, error)

	// VocabSize returns the number of known tokens.
	VocabSize() int

	// Special token IDs; -1 when the vocabulary has no such token.
	BosID() int32
	EosID() int32
	PadID() int32
	UnkID() int32

	// IsSpecial reports whether id is a special token.
	IsSpecial(id int32) bool
}
