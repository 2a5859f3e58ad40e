package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// TikToken adapts pkoukk/tiktoken-go pretrained encodings to the
// Tokenizer interface. Useful for token counting and for experiments
// against established vocabularies; it carries no BOS/PAD/UNK tokens, so
// addSpecial is a no-op and those IDs report -1.
type TikToken struct {
	encoding *tiktoken.Tiktoken
	name     string
}

// NewTikToken loads an encoding by name ("cl100k_base", "p50k_base", ...).
func NewTikToken(encodingName string) (*TikToken, error) {
	encoding, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("tokenizer: load tiktoken encoding %q: %w", encodingName, err)
	}
	return &TikToken{encoding: encoding, name: encodingName}, nil
}

// NewTikTokenForModel loads the encoding of a model name ("gpt-4", ...).
func NewTikTokenForModel(modelName string) (*TikToken, error) {
	encoding, err := tiktoken.EncodingForModel(modelName)
	if err != nil {
		return nil, fmt.Errorf("tokenizer: load tiktoken for model %q: %w", modelName, err)
	}
	return &TikToken{encoding: encoding, name: modelName}, nil
}

// Encode converts text to token IDs. addSpecial is ignored.
func (t *TikToken) Encode(text string, _ bool) ([]int32, error) {
	tokens := t.encoding.Encode(text, nil, nil)
	ids := make([]int32, len(tokens))
	for i, tok := range tokens {
		ids[i] = int32(tok)
	}
	return ids, nil
}

// Decode converts token IDs back to text.
func (t *TikToken) Decode(ids []int32, _ bool) (string, error) {
	tokens := make([]int, len(ids))
	for i, id := range ids {
		if id < 0 {
			return "", fmt.Errorf("%w: %d", ErrInvalidTokenID, id)
		}
		tokens[i] = int(id)
	}
	return t.encoding.Decode(tokens), nil
}

// VocabSize returns the encoding's vocabulary size.
func (t *TikToken) VocabSize() int {
	switch t.name {
	case "cl100k_base":
		return 100256
	case "p50k_base", "r50k_base":
		return 50257
	default:
		return 100000
	}
}

// BosID returns -1; tiktoken encodings have no BOS token.
func (t *TikToken) BosID() int32 { return -1 }

// EosID returns the <|endoftext|> ID where the encoding defines one.
func (t *TikToken) EosID() int32 {
	switch t.name {
	case "cl100k_base":
		return 100257
	case "p50k_base", "r50k_base":
		return 50256
	default:
		return -1
	}
}

// PadID returns -1; tiktoken encodings have no padding token.
func (t *TikToken) PadID() int32 { return -1 }

// UnkID returns -1; byte-level BPE has no unknown token.
func (t *TikToken) UnkID() int32 { return -1 }

// IsSpecial reports whether id is a special token of the encoding.
func (t *TikToken) IsSpecial(id int32) bool {
	if eos := t.EosID(); eos >= 0 && id == eos {
		return true
	}
	// cl100k_base ChatML markers.
	return t.name == "cl100k_base" && id >= 100256 && id <= 100276
}

// Name returns the encoding or model name.
func (t *TikToken) Name() string { return t.name }
