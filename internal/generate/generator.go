// Package generate implements autoregressive decoding over a trained
// sequence-to-sequence model: greedy, beam search and nucleus sampling.
package generate

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/loom-ml/loom/internal/nn"
	"github.com/loom-ml/loom/internal/tensor"
)

// ErrEmptySource is returned when a request carries no source tokens.
var ErrEmptySource = errors.New("generate: empty source sequence")

// Generator drives token-by-token decoding. The encoder runs once per
// request; every decoding step re-decodes the growing target prefix under
// a fresh causal mask.
type Generator[B tensor.Backend] struct {
	model   *nn.Seq2Seq[B]
	backend B
	maxLen  int
	bos     int32
	eos     int32
	pad     int32
}

// NewGenerator creates a generator producing at most maxLen tokens per
// request. maxLen is capped by the model's positional table. Panics on a
// non-positive maxLen.
func NewGenerator[B tensor.Backend](model *nn.Seq2Seq[B], maxLen int, bos, eos, pad int32) *Generator[B] {
	if maxLen <= 0 {
		panic(fmt.Sprintf("generate: maxLen must be positive, got %d", maxLen))
	}
	// The target holds BOS plus generated tokens, so it may reach
	// maxLen+1 positions.
	if limit := model.Config().MaxLen - 1; maxLen > limit {
		maxLen = limit
	}
	return &Generator[B]{model: model, backend: model.Backend(), maxLen: maxLen, bos: bos, eos: eos, pad: pad}
}

// MaxLen returns the effective per-request generation bound.
func (g *Generator[B]) MaxLen() int { return g.maxLen }

// Generate decodes a response to src with the given method. The result
// excludes the leading BOS but keeps a trailing EOS when one was emitted,
// and never exceeds MaxLen tokens.
func (g *Generator[B]) Generate(src []int32, method Method) ([]int32, error) {
	if err := method.Validate(); err != nil {
		return nil, err
	}
	if len(src) == 0 {
		return nil, ErrEmptySource
	}
	if len(src) > g.model.Config().MaxLen {
		return nil, fmt.Errorf("generate: source length %d exceeds model limit %d",
			len(src), g.model.Config().MaxLen)
	}

	srcT := tensor.MustFromSlice(src, tensor.Shape{1, len(src)}, g.backend)
	srcMask := g.sourceMask(src)
	memory := g.model.Encode(srcT, srcMask)

	switch m := method.(type) {
	case Greedy:
		return g.greedy(memory, srcMask), nil
	case BeamSearch:
		return g.beamSearch(memory, srcMask, m), nil
	case Sample:
		return g.sample(memory, srcMask, m), nil
	default:
		return nil, fmt.Errorf("generate: unknown method %T", method)
	}
}

// sourceMask builds the [1, 1, 1, srcLen] padding indicator for src.
func (g *Generator[B]) sourceMask(src []int32) *tensor.Tensor[float32, B] {
	data := make([]float32, len(src))
	for i, id := range src {
		if id != g.pad {
			data[i] = 1
		}
	}
	return tensor.MustFromSlice(data, tensor.Shape{1, 1, 1, len(src)}, g.backend)
}

// stepLogits re-decodes the target prefix and returns the logits of its
// last position.
func (g *Generator[B]) stepLogits(tgt []int32, memory, srcMask *tensor.Tensor[float32, B]) []float32 {
	tgtT := tensor.MustFromSlice(tgt, tensor.Shape{1, len(tgt)}, g.backend)
	tgtMask := nn.CausalMask(len(tgt), g.backend)

	dec := g.model.Decode(tgtT, memory, srcMask, tgtMask)
	logits := g.model.Project(dec)

	vocab := logits.Shape()[2]
	data := logits.Data()
	return data[(len(tgt)-1)*vocab:]
}

func (g *Generator[B]) greedy(memory, srcMask *tensor.Tensor[float32, B]) []int32 {
	tgt := []int32{g.bos}
	for step := 0; step < g.maxLen; step++ {
		next := int32(argmax(g.stepLogits(tgt, memory, srcMask)))
		tgt = append(tgt, next)
		if next == g.eos {
			break
		}
	}
	return tgt[1:]
}

// argmax returns the index of the largest value, lowest index on ties.
func argmax(values []float32) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}

type beam struct {
	ids   []int32 // includes leading BOS
	score float64 // cumulative log-probability
	rank  float64 // length-penalized score
}

func (g *Generator[B]) beamSearch(memory, srcMask *tensor.Tensor[float32, B], cfg BeamSearch) []int32 {
	step := func(ids []int32) []float64 {
		return logSoftmax64(g.stepLogits(ids, memory, srcMask))
	}
	return beamDecode(step, g.bos, g.eos, g.maxLen, cfg)
}

// beamDecode runs beam search over a step function that returns next-token
// log-probabilities for a target prefix. A beam that emits EOS moves to a
// finished set with its penalized score frozen; it stops competing for the
// BeamSize open slots and can no longer be evicted. The best sequence over
// finished and open beams wins. Scores are penalized by the full sequence
// length including BOS.
func beamDecode(step func(ids []int32) []float64, bos, eos int32, maxLen int, cfg BeamSearch) []int32 {
	penalize := func(score float64, length int) float64 {
		return score / math.Pow(float64(length), cfg.LengthPenalty)
	}

	open := []beam{{ids: []int32{bos}}}
	var finished []beam
	for n := 0; n < maxLen && len(open) > 0; n++ {
		var candidates []beam
		for _, b := range open {
			logProbs := step(b.ids)
			for _, tok := range topIndices(logProbs, cfg.BeamSize) {
				ids := append(append([]int32(nil), b.ids...), int32(tok))
				next := beam{ids: ids, score: b.score + logProbs[tok]}
				next.rank = penalize(next.score, len(ids))
				if int32(tok) == eos {
					finished = append(finished, next)
					continue
				}
				candidates = append(candidates, next)
			}
		}
		// Stable: candidates from earlier (higher-ranked) beams keep
		// priority on ties, so BeamSize 1 matches greedy decoding.
		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].rank > candidates[j].rank
		})
		if len(candidates) > cfg.BeamSize {
			candidates = candidates[:cfg.BeamSize]
		}
		open = candidates
	}

	all := append(finished, open...)
	best := all[0]
	for _, b := range all[1:] {
		if b.rank > best.rank {
			best = b
		}
	}
	return best.ids[1:]
}

func (g *Generator[B]) sample(memory, srcMask *tensor.Tensor[float32, B], cfg Sample) []int32 {
	rng := rand.New(rand.NewSource(cfg.Seed))

	tgt := []int32{g.bos}
	for step := 0; step < g.maxLen; step++ {
		logits := g.stepLogits(tgt, memory, srcMask)
		scaled := make([]float64, len(logits))
		for i, v := range logits {
			scaled[i] = float64(v / cfg.Temperature)
		}
		probs := softmax64(scaled)
		if cfg.TopK > 0 {
			filterTopK(probs, cfg.TopK)
		}
		if cfg.TopP < 1 {
			filterTopP(probs, float64(cfg.TopP))
		}

		next := int32(drawFrom(probs, rng))
		tgt = append(tgt, next)
		if next == g.eos {
			break
		}
	}
	return tgt[1:]
}

// topIndices returns the indices of the k largest values in descending
// order, lower indices first on ties.
func topIndices(values []float64, k int) []int {
	idx := make([]int, len(values))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return values[idx[a]] > values[idx[b]] })
	if k > len(idx) {
		k = len(idx)
	}
	return idx[:k]
}

func logSoftmax64(logits []float32) []float64 {
	maxVal := logits[argmax(logits)]
	var sum float64
	for _, v := range logits {
		sum += math.Exp(float64(v - maxVal))
	}
	logSum := math.Log(sum)
	out := make([]float64, len(logits))
	for i, v := range logits {
		out[i] = float64(v-maxVal) - logSum
	}
	return out
}

func softmax64(logits []float64) []float64 {
	maxVal := logits[0]
	for _, v := range logits[1:] {
		if v > maxVal {
			maxVal = v
		}
	}
	var sum float64
	out := make([]float64, len(logits))
	for i, v := range logits {
		out[i] = math.Exp(v - maxVal)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// filterTopK zeroes every probability outside the k largest and
// renormalizes the survivors, so a later nucleus cut operates on the
// restricted distribution rather than the original one.
func filterTopK(probs []float64, k int) {
	if k >= len(probs) {
		return
	}
	keep := topIndices(probs, k)
	kept := make(map[int]bool, k)
	for _, i := range keep {
		kept[i] = true
	}
	var total float64
	for i := range probs {
		if !kept[i] {
			probs[i] = 0
			continue
		}
		total += probs[i]
	}
	if total == 0 {
		return
	}
	for _, i := range keep {
		probs[i] /= total
	}
}

// filterTopP zeroes everything outside the smallest set of tokens whose
// cumulative probability reaches p. The single most likely token always
// survives, so p = 0 reduces to greedy selection.
func filterTopP(probs []float64, p float64) {
	order := topIndices(probs, len(probs))
	var cum float64
	cutoff := len(order)
	for i, idx := range order {
		cum += probs[idx]
		if cum >= p {
			cutoff = i + 1
			break
		}
	}
	for _, idx := range order[cutoff:] {
		probs[idx] = 0
	}
}

// drawFrom samples an index proportionally to the (possibly unnormalized)
// weights.
func drawFrom(probs []float64, rng *rand.Rand) int {
	var total float64
	for _, p := range probs {
		total += p
	}
	r := rng.Float64() * total
	var cum float64
	last := 0
	for i, p := range probs {
		if p == 0 {
			continue
		}
		cum += p
		last = i
		if r < cum {
			return i
		}
	}
	// Floating point slack: fall back to the last non-zero entry.
	return last
}
