package nn

import (
	"fmt"

	"github.com/loom-ml/loom/internal/tensor"
)

// MultiHeadAttention projects queries, keys and values into numHeads
// subspaces of headDim = embedDim / numHeads, attends in each head
// independently, and projects the concatenated results back to embedDim.
type MultiHeadAttention[B tensor.Backend] struct {
	EmbedDim int
	NumHeads int
	HeadDim  int

	wq *Linear[B]
	wk *Linear[B]
	wv *Linear[B]
	wo *Linear[B]

	drop    *Dropout[B]
	backend B
}

// NewMultiHeadAttention creates an MHA block. Panics when embedDim is not
// divisible by numHeads.
func NewMultiHeadAttention[B tensor.Backend](embedDim, numHeads int, dropout float32, training bool, backend B) *MultiHeadAttention[B] {
	if numHeads <= 0 {
		panic(fmt.Sprintf("nn: numHeads must be positive, got %d", numHeads))
	}
	if embedDim%numHeads != 0 {
		panic(fmt.Sprintf("nn: embedDim %d not divisible by numHeads %d", embedDim, numHeads))
	}
	return &MultiHeadAttention[B]{
		EmbedDim: embedDim,
		NumHeads: numHeads,
		HeadDim:  embedDim / numHeads,
		wq:       NewLinear(embedDim, embedDim, backend),
		wk:       NewLinear(embedDim, embedDim, backend),
		wv:       NewLinear(embedDim, embedDim, backend),
		wo:       NewLinear(embedDim, embedDim, backend),
		drop:     NewDropout[B](dropout, training),
		backend:  backend,
	}
}

// splitHeads reshapes [batch, seq, embed] to [batch, heads, seq, headDim].
func (m *MultiHeadAttention[B]) splitHeads(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := x.Shape()
	batch, seq := shape[0], shape[1]
	return x.Reshape(batch, seq, m.NumHeads, m.HeadDim).Transpose(0, 2, 1, 3)
}

// Forward attends query over key/value. Query, key and value are
// [batch, seq, embed]; key and value must share their sequence length.
//
// The mask is an optional indicator tensor (1 = attend, 0 = blocked) of
// rank 2, 3 or 4, expanded per expandMask. Returns the attention output
// [batch, seqQ, embed] and the per-head weights
// [batch, heads, seqQ, seqK].
func (m *MultiHeadAttention[B]) Forward(
	query, key, value *tensor.Tensor[float32, B],
	mask *tensor.Tensor[float32, B],
) (*tensor.Tensor[float32, B], *tensor.Tensor[float32, B]) {
	batch, seqQ := query.Shape()[0], query.Shape()[1]

	q := m.splitHeads(m.wq.Forward(query))
	k := m.splitHeads(m.wk.Forward(key))
	v := m.splitHeads(m.wv.Forward(value))

	if mask != nil {
		mask = expandMask(mask)
	}
	ctx, weights := ScaledDotProductAttention(q, k, v, mask, m.drop)

	merged := ctx.Transpose(0, 2, 1, 3).Reshape(batch, seqQ, m.EmbedDim)
	return m.wo.Forward(merged), weights
}

// Parameters returns all projection parameters.
func (m *MultiHeadAttention[B]) Parameters() []*Parameter[B] {
	var out []*Parameter[B]
	for _, l := range []*Linear[B]{m.wq, m.wk, m.wv, m.wo} {
		out = append(out, l.Parameters()...)
	}
	return out
}

// StateDict exports the four projections.
func (m *MultiHeadAttention[B]) StateDict() map[string]*tensor.RawTensor {
	out := make(map[string]*tensor.RawTensor)
	mergeStateDict(out, "wq", m.wq.StateDict())
	mergeStateDict(out, "wk", m.wk.StateDict())
	mergeStateDict(out, "wv", m.wv.StateDict())
	mergeStateDict(out, "wo", m.wo.StateDict())
	return out
}

// LoadStateDict restores the four projections.
func (m *MultiHeadAttention[B]) LoadStateDict(state map[string]*tensor.RawTensor) error {
	for name, l := range map[string]*Linear[B]{"wq": m.wq, "wk": m.wk, "wv": m.wv, "wo": m.wo} {
		if err := l.LoadStateDict(subStateDict(state, name)); err != nil {
			return fmt.Errorf("nn: loading %s: %w", name, err)
		}
	}
	return nil
}
