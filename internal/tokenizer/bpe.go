package tokenizer

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
)

// endOfWord marks word boundaries inside BPE symbol sequences so merges
// never cross words and decoding can restore spaces.
const endOfWord = "</w>"

// DefaultSpecialTokens is the special vocabulary of a fresh BPE.
var DefaultSpecialTokens = []string{"<pad>", "<unk>", "<bos>", "<eos>"}

type mergePair struct {
	Left  string
	Right string
}

// BPE is a trainable byte-pair-encoding tokenizer.
//
// Training learns an ordered merge table from word frequencies; encoding
// replays the merges in learned order on each word. After training (or
// loading) the tokenizer is immutable apart from an internal per-word
// cache, so concurrent Encode/Decode calls are safe. Train itself must
// not race with other calls.
type BPE struct {
	vocabSize int
	specials  []string
	merges    []mergePair
	vocab     map[string]int32
	inverse   map[int32]string
	trained   bool

	mu    sync.RWMutex
	cache map[string][]string
}

// NewBPE creates an untrained tokenizer targeting vocabSize tokens, with
// the default special tokens. Panics on a target too small to hold them.
func NewBPE(vocabSize int) *BPE {
	return NewBPEWithSpecials(vocabSize, DefaultSpecialTokens)
}

// NewBPEWithSpecials creates an untrained tokenizer with explicit special
// tokens.
func NewBPEWithSpecials(vocabSize int, specials []string) *BPE {
	if vocabSize <= len(specials) {
		panic(fmt.Sprintf("tokenizer: vocab size %d cannot hold %d special tokens", vocabSize, len(specials)))
	}
	return &BPE{
		vocabSize: vocabSize,
		specials:  append([]string(nil), specials...),
		cache:     make(map[string][]string),
	}
}

// Train learns the merge table from a corpus. Text is lower-cased and
// split on whitespace; merges stop when the vocabulary reaches its target
// size or no symbol pair occurs more than once. Ties on pair frequency
// break to the lexicographically smallest pair, which makes training
// deterministic for a given corpus.
func (b *BPE) Train(corpus []string) {
	wordFreqs := make(map[string]int)
	for _, text := range corpus {
		for _, word := range strings.Fields(strings.ToLower(text)) {
			wordFreqs[word]++
		}
	}

	splits := make(map[string][]string, len(wordFreqs))
	tokens := make(map[string]struct{})
	for _, s := range b.specials {
		tokens[s] = struct{}{}
	}
	tokens[endOfWord] = struct{}{}
	for word := range wordFreqs {
		symbols := splitWord(word)
		splits[word] = symbols
		for _, sym := range symbols {
			tokens[sym] = struct{}{}
		}
	}

	b.merges = nil
	for len(tokens) < b.vocabSize {
		best, freq := bestPair(splits, wordFreqs)
		if freq < 2 {
			break
		}
		b.merges = append(b.merges, best)
		tokens[best.Left+best.Right] = struct{}{}
		for word, symbols := range splits {
			splits[word] = applyMerge(symbols, best)
		}
	}

	names := make([]string, 0, len(tokens))
	for tok := range tokens {
		names = append(names, tok)
	}
	sort.Strings(names)

	b.vocab = make(map[string]int32, len(names))
	b.inverse = make(map[int32]string, len(names))
	for i, tok := range names {
		b.vocab[tok] = int32(i)
		b.inverse[int32(i)] = tok
	}
	b.cache = make(map[string][]string)
	b.trained = true
}

func splitWord(word string) []string {
	runes := []rune(word)
	symbols := make([]string, 0, len(runes)+1)
	for _, r := range runes {
		symbols = append(symbols, string(r))
	}
	return append(symbols, endOfWord)
}

// bestPair returns the most frequent adjacent symbol pair across all word
// splits, weighted by word frequency. Equal frequencies resolve to the
// lexicographically smallest pair.
func bestPair(splits map[string][]string, wordFreqs map[string]int) (mergePair, int) {
	freqs := make(map[mergePair]int)
	for word, symbols := range splits {
		wf := wordFreqs[word]
		for i := 0; i+1 < len(symbols); i++ {
			freqs[mergePair{symbols[i], symbols[i+1]}] += wf
		}
	}

	var best mergePair
	bestFreq := 0
	for pair, freq := range freqs {
		if freq > bestFreq || (freq == bestFreq && lessPair(pair, best)) {
			best, bestFreq = pair, freq
		}
	}
	return best, bestFreq
}

func lessPair(a, b mergePair) bool {
	if a.Left != b.Left {
		return a.Left < b.Left
	}
	return a.Right < b.Right
}

// applyMerge replaces every non-overlapping left-to-right occurrence of
// the pair with its concatenation.
func applyMerge(symbols []string, pair mergePair) []string {
	out := make([]string, 0, len(symbols))
	for i := 0; i < len(symbols); i++ {
		if i+1 < len(symbols) && symbols[i] == pair.Left && symbols[i+1] == pair.Right {
			out = append(out, pair.Left+pair.Right)
			i++
			continue
		}
		out = append(out, symbols[i])
	}
	return out
}

// encodeWord splits a word into learned subword symbols, caching results.
func (b *BPE) encodeWord(word string) []string {
	b.mu.RLock()
	cached, ok := b.cache[word]
	b.mu.RUnlock()
	if ok {
		return cached
	}

	symbols := splitWord(word)
	for _, pair := range b.merges {
		symbols = applyMerge(symbols, pair)
	}

	b.mu.Lock()
	b.cache[word] = symbols
	b.mu.Unlock()
	return symbols
}

// Encode converts text to token IDs. Symbols outside the vocabulary map
// to the unknown token.
func (b *BPE) Encode(text string, addSpecial bool) ([]int32, error) {
	if !b.trained {
		return nil, ErrNotTrained
	}

	var ids []int32
	if addSpecial {
		ids = append(ids, b.BosID())
	}
	unk := b.UnkID()
	for _, word := range strings.Fields(strings.ToLower(text)) {
		for _, sym := range b.encodeWord(word) {
			if id, ok := b.vocab[sym]; ok {
				ids = append(ids, id)
			} else {
				ids = append(ids, unk)
			}
		}
	}
	if addSpecial {
		ids = append(ids, b.EosID())
	}
	return ids, nil
}

// Decode converts token IDs back to text. Unknown IDs fail fast rather
// than being silently dropped.
func (b *BPE) Decode(ids []int32, skipSpecial bool) (string, error) {
	if !b.trained {
		return "", ErrNotTrained
	}

	var sb strings.Builder
	for _, id := range ids {
		tok, ok := b.inverse[id]
		if !ok {
			return "", fmt.Errorf("%w: %d", ErrInvalidTokenID, id)
		}
		if skipSpecial && b.IsSpecial(id) {
			continue
		}
		sb.WriteString(tok)
	}
	return strings.TrimSpace(strings.ReplaceAll(sb.String(), endOfWord, " ")), nil
}

// VocabSize returns the learned vocabulary size.
func (b *BPE) VocabSize() int { return len(b.vocab) }

// TargetVocabSize returns the size the tokenizer was configured to learn.
func (b *BPE) TargetVocabSize() int { return b.vocabSize }

// Merges returns the number of learned merges.
func (b *BPE) Merges() int { return len(b.merges) }

func (b *BPE) lookup(tok string) int32 {
	if id, ok := b.vocab[tok]; ok {
		return id
	}
	return -1
}

// BosID returns the beginning-of-sequence token ID.
func (b *BPE) BosID() int32 { return b.lookup("<bos>") }

// EosID returns the end-of-sequence token ID.
func (b *BPE) EosID() int32 { return b.lookup("<eos>") }

// PadID returns the padding token ID.
func (b *BPE) PadID() int32 { return b.lookup("<pad>") }

// UnkID returns the unknown token ID.
func (b *BPE) UnkID() int32 { return b.lookup("<unk>") }

// IsSpecial reports whether id is one of the special tokens.
func (b *BPE) IsSpecial(id int32) bool {
	tok, ok := b.inverse[id]
	if !ok {
		return false
	}
	for _, s := range b.specials {
		if tok == s {
			return true
		}
	}
	return false
}

// bpeRecord is the JSON persistence format.
type bpeRecord struct {
	VocabSize     int              `json:"vocab_size"`
	SpecialTokens []string         `json:"special_tokens"`
	Merges        [][2]string      `json:"merges"`
	Vocab         map[string]int32 `json:"vocab"`
}

// Save writes the trained tokenizer as JSON.
func (b *BPE) Save(path string) error {
	if !b.trained {
		return ErrNotTrained
	}
	rec := bpeRecord{
		VocabSize:     b.vocabSize,
		SpecialTokens: b.specials,
		Merges:        make([][2]string, len(b.merges)),
		Vocab:         b.vocab,
	}
	for i, m := range b.merges {
		rec.Merges[i] = [2]string{m.Left, m.Right}
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("tokenizer: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("tokenizer: write %s: %w", path, err)
	}
	return nil
}

// LoadBPE restores a tokenizer from its JSON record. The result encodes
// and decodes identically to the instance that saved it.
func LoadBPE(path string) (*BPE, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("tokenizer: read %s: %w", path, err)
	}

	var rec bpeRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("tokenizer: parse %s: %w", path, err)
	}
	if rec.VocabSize <= 0 {
		return nil, fmt.Errorf("tokenizer: %s: vocab_size must be positive, got %d", path, rec.VocabSize)
	}
	if len(rec.Vocab) == 0 {
		return nil, fmt.Errorf("tokenizer: %s: empty vocabulary", path)
	}

	b := &BPE{
		vocabSize: rec.VocabSize,
		specials:  rec.SpecialTokens,
		merges:    make([]mergePair, len(rec.Merges)),
		vocab:     rec.Vocab,
		inverse:   make(map[int32]string, len(rec.Vocab)),
		trained:   true,
		cache:     make(map[string][]string),
	}
	for i, m := range rec.Merges {
		if m[0] == "" || m[1] == "" {
			return nil, fmt.Errorf("tokenizer: %s: merge %d has empty symbol", path, i)
		}
		b.merges[i] = mergePair{Left: m[0], Right: m[1]}
	}
	for tok, id := range rec.Vocab {
		if prev, ok := b.inverse[id]; ok {
			return nil, fmt.Errorf("tokenizer: %s: id %d assigned to both %q and %q", path, id, prev, tok)
		}
		b.inverse[id] = tok
	}
	return b, nil
}
