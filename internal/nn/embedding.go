package nn

import (
	"fmt"
	"math"

	"github.com/loom-ml/loom/internal/tensor"
)

// Embedding is a lookup table mapping token IDs to dense vectors.
type Embedding[B tensor.Backend] struct {
	NumEmbeddings int
	EmbeddingDim  int

	weight  *Parameter[B]
	backend B
}

// NewEmbedding creates a [numEmbeddings, embeddingDim] table with Xavier
// uniform initialization.
func NewEmbedding[B tensor.Backend](numEmbeddings, embeddingDim int, backend B) *Embedding[B] {
	if numEmbeddings <= 0 || embeddingDim <= 0 {
		panic(fmt.Sprintf("nn: Embedding dimensions must be positive, got vocab=%d dim=%d",
			numEmbeddings, embeddingDim))
	}
	weight := tensor.Zeros[float32](tensor.Shape{numEmbeddings, embeddingDim}, backend)
	xavierUniform(weight, numEmbeddings, embeddingDim)

	return &Embedding[B]{
		NumEmbeddings: numEmbeddings,
		EmbeddingDim:  embeddingDim,
		weight:        NewParameter("weight", weight),
		backend:       backend,
	}
}

// Forward gathers rows for each index: [batch, seq] -> [batch, seq, dim].
func (e *Embedding[B]) Forward(indices *tensor.Tensor[int32, B]) *tensor.Tensor[float32, B] {
	return e.weight.Tensor().Embedding(indices)
}

// Parameters returns the table weight.
func (e *Embedding[B]) Parameters() []*Parameter[B] {
	return []*Parameter[B]{e.weight}
}

// StateDict exports the table.
func (e *Embedding[B]) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{"weight": e.weight.Tensor().Raw()}
}

// LoadStateDict restores the table.
func (e *Embedding[B]) LoadStateDict(state map[string]*tensor.RawTensor) error {
	return loadParams(state, e.weight)
}

// TokenEmbedding is an Embedding whose output is scaled by sqrt(dModel),
// balancing embedding magnitude against the positional encoding added
// right after it.
type TokenEmbedding[B tensor.Backend] struct {
	emb   *Embedding[B]
	scale float32
}

// NewTokenEmbedding creates a scaled token embedding.
func NewTokenEmbedding[B tensor.Backend](vocabSize, dModel int, backend B) *TokenEmbedding[B] {
	return &TokenEmbedding[B]{
		emb:   NewEmbedding(vocabSize, dModel, backend),
		scale: float32(math.Sqrt(float64(dModel))),
	}
}

// Forward returns embedding(indices) * sqrt(dModel).
func (t *TokenEmbedding[B]) Forward(indices *tensor.Tensor[int32, B]) *tensor.Tensor[float32, B] {
	return t.emb.Forward(indices).MulScalar(t.scale)
}

// Parameters returns the underlying table weight.
func (t *TokenEmbedding[B]) Parameters() []*Parameter[B] { return t.emb.Parameters() }

// StateDict exports the underlying table.
func (t *TokenEmbedding[B]) StateDict() map[string]*tensor.RawTensor { return t.emb.StateDict() }

// LoadStateDict restores the underlying table.
func (t *TokenEmbedding[B]) LoadStateDict(state map[string]*tensor.RawTensor) error {
	return t.emb.LoadStateDict(state)
}
