package generate

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loom-ml/loom/internal/backend/cpu"
	"github.com/loom-ml/loom/internal/nn"
)

const (
	padID int32 = 0
	bosID int32 = 1
	eosID int32 = 2
)

func testModel() *nn.Seq2Seq[*cpu.Backend] {
	return nn.NewSeq2Seq(nn.Seq2SeqConfig{
		SrcVocabSize:     20,
		TgtVocabSize:     20,
		DModel:           8,
		NumHeads:         2,
		NumEncoderLayers: 2,
		NumDecoderLayers: 2,
		FFDim:            16,
		MaxLen:           32,
	}, cpu.New())
}

func testGenerator(maxLen int) *Generator[*cpu.Backend] {
	return NewGenerator(testModel(), maxLen, bosID, eosID, padID)
}

func TestMethodValidation(t *testing.T) {
	tests := []struct {
		name   string
		method Method
		ok     bool
	}{
		{"greedy", Greedy{}, true},
		{"beam default", NewBeamSearch(), true},
		{"beam size zero", BeamSearch{BeamSize: 0}, false},
		{"beam negative penalty", BeamSearch{BeamSize: 2, LengthPenalty: -1}, false},
		{"sample default", NewSample(1), true},
		{"sample zero temperature", Sample{Temperature: 0}, false},
		{"sample negative temperature", Sample{Temperature: -0.5}, false},
		{"sample negative topk", Sample{Temperature: 1, TopK: -1}, false},
		{"sample topp above one", Sample{Temperature: 1, TopP: 1.5}, false},
		{"sample topp zero", Sample{Temperature: 1, TopP: 0}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.method.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestGenerateRejectsInvalidMethodBeforeCompute(t *testing.T) {
	g := testGenerator(10)
	_, err := g.Generate([]int32{3, 4}, Sample{Temperature: 0})
	require.Error(t, err)
}

func TestGenerateEmptySource(t *testing.T) {
	g := testGenerator(10)
	_, err := g.Generate(nil, Greedy{})
	assert.ErrorIs(t, err, ErrEmptySource)
}

func TestGenerateSourceTooLong(t *testing.T) {
	g := testGenerator(10)
	src := make([]int32, 100)
	for i := range src {
		src[i] = 3
	}
	_, err := g.Generate(src, Greedy{})
	assert.Error(t, err)
}

func TestGreedyDeterministicAndBounded(t *testing.T) {
	g := testGenerator(10)
	src := []int32{bosID, 5, 6, 7, eosID}

	a, err := g.Generate(src, Greedy{})
	require.NoError(t, err)
	b, err := g.Generate(src, Greedy{})
	require.NoError(t, err)

	assert.Equal(t, a, b, "greedy decoding must be deterministic")
	assert.LessOrEqual(t, len(a), 10)
	assert.NotEmpty(t, a)
	// EOS ends generation, so it may appear only as the final token.
	for _, id := range a[:len(a)-1] {
		assert.NotEqual(t, eosID, id)
	}
}

func TestBeamSizeOneMatchesGreedy(t *testing.T) {
	g := testGenerator(8)
	src := []int32{bosID, 4, 9, eosID}

	greedy, err := g.Generate(src, Greedy{})
	require.NoError(t, err)
	beam, err := g.Generate(src, BeamSearch{BeamSize: 1, LengthPenalty: 0.6})
	require.NoError(t, err)

	assert.Equal(t, greedy, beam)
}

func TestBeamSearchBounded(t *testing.T) {
	g := testGenerator(6)
	src := []int32{bosID, 3, eosID}

	out, err := g.Generate(src, NewBeamSearch())
	require.NoError(t, err)
	assert.NotEmpty(t, out)
	assert.LessOrEqual(t, len(out), 6)
}

func TestSampleSeededReproducible(t *testing.T) {
	g := testGenerator(10)
	src := []int32{bosID, 5, 11, eosID}

	a, err := g.Generate(src, Sample{Temperature: 0.8, TopP: 0.9, Seed: 42})
	require.NoError(t, err)
	b, err := g.Generate(src, Sample{Temperature: 0.8, TopP: 0.9, Seed: 42})
	require.NoError(t, err)
	assert.Equal(t, a, b, "same seed must give the same tokens")
}

func TestSampleTopPZeroMatchesGreedy(t *testing.T) {
	g := testGenerator(8)
	src := []int32{bosID, 7, 13, eosID}

	greedy, err := g.Generate(src, Greedy{})
	require.NoError(t, err)

	// p = 0 keeps only the single most likely token at every step, so
	// any seed collapses to greedy decoding.
	for _, seed := range []int64{1, 99, 12345} {
		sampled, err := g.Generate(src, Sample{Temperature: 1, TopP: 0, Seed: seed})
		require.NoError(t, err)
		assert.Equal(t, greedy, sampled, "seed %d", seed)
	}
}

func TestBeamSearchKeepsFinishedBeams(t *testing.T) {
	// Vocabulary of five tokens, EOS = 2. One beam finishes on the first
	// step; on the next step both expansions of the surviving open beam
	// briefly outrank it, and afterwards every continuation collapses.
	// The finished sequence must still win the final selection.
	low := math.Log(0.001)
	step := func(ids []int32) []float64 {
		probs := []float64{low, low, low, low, low}
		switch len(ids) {
		case 1:
			probs[0] = math.Log(0.5)
			probs[2] = math.Log(0.4)
		case 2:
			probs[0] = math.Log(0.9)
			probs[3] = math.Log(0.85)
		}
		return probs
	}

	out := beamDecode(step, bosID, eosID, 4, BeamSearch{BeamSize: 2, LengthPenalty: 0})
	assert.Equal(t, []int32{eosID}, out)
}

func TestSampleBounded(t *testing.T) {
	g := testGenerator(5)
	src := []int32{bosID, 3, 4, eosID}

	out, err := g.Generate(src, Sample{Temperature: 1.2, TopK: 5, TopP: 0.95, Seed: 7})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(out), 5)
}

func TestGeneratorCapsMaxLenToModel(t *testing.T) {
	g := NewGenerator(testModel(), 1000, bosID, eosID, padID)
	assert.Equal(t, 31, g.MaxLen(), "maxLen must cap at the positional table minus BOS")

	out, err := g.Generate([]int32{bosID, 3, eosID}, Greedy{})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(out), 31)
}

func TestArgmaxTieBreaksLow(t *testing.T) {
	assert.Equal(t, 1, argmax([]float32{0, 3, 3, 1}))
}

func TestTopIndicesStableOnTies(t *testing.T) {
	got := topIndices([]float64{0.2, 0.5, 0.5, 0.1}, 3)
	assert.Equal(t, []int{1, 2, 0}, got)
}

func TestFilterTopK(t *testing.T) {
	probs := []float64{0.1, 0.4, 0.3, 0.2}
	filterTopK(probs, 2)
	// Survivors 0.4 and 0.3 renormalize over their 0.7 of mass.
	assert.Zero(t, probs[0])
	assert.Zero(t, probs[3])
	assert.InDelta(t, 4.0/7.0, probs[1], 1e-12)
	assert.InDelta(t, 3.0/7.0, probs[2], 1e-12)
}

func TestFilterTopKThenTopPUsesRestrictedMass(t *testing.T) {
	probs := []float64{0.5, 0.3, 0.15, 0.05}
	filterTopK(probs, 2)
	// After top-k the distribution is {0.625, 0.375}; the first token
	// alone covers p = 0.6, so the nucleus keeps exactly one.
	filterTopP(probs, 0.6)
	assert.InDelta(t, 0.625, probs[0], 1e-12)
	for i, v := range probs[1:] {
		assert.Zero(t, v, "index %d must be cut", i+1)
	}
}

func TestFilterTopPKeepsAtLeastOne(t *testing.T) {
	probs := []float64{0.7, 0.2, 0.1}
	filterTopP(probs, 0)
	assert.Equal(t, []float64{0.7, 0, 0}, probs)
}

func TestFilterTopPNucleus(t *testing.T) {
	probs := []float64{0.5, 0.3, 0.15, 0.05}
	filterTopP(probs, 0.8)
	// 0.5 + 0.3 reaches 0.8; the tail is cut.
	assert.Equal(t, []float64{0.5, 0.3, 0, 0}, probs)
}
