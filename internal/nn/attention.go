package nn

import (
	"fmt"
	"math"

	"github.com/loom-ml/loom/internal/tensor"
)

var negInf = float32(math.Inf(-1))

// CausalMask returns a [1, 1, n, n] lower-triangular indicator mask:
// position i may attend to positions j <= i. Broadcasts over batch and
// heads.
func CausalMask[B tensor.Backend](n int, backend B) *tensor.Tensor[float32, B] {
	if n <= 0 {
		panic(fmt.Sprintf("nn: causal mask size must be positive, got %d", n))
	}
	data := make([]float32, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			data[i*n+j] = 1
		}
	}
	return tensor.MustFromSlice(data, tensor.Shape{1, 1, n, n}, backend)
}

// expandMask normalizes an indicator mask to a 4-D shape that broadcasts
// against [batch, heads, seqQ, seqK] attention scores:
//
//	[batch, seqK]        -> [batch, 1, 1, seqK]   (padding mask)
//	[batch, seqQ, seqK]  -> [batch, 1, seqQ, seqK]
//	4-D                  -> unchanged
//
// Any other rank is an invariant violation.
func expandMask[B tensor.Backend](mask *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	switch mask.Shape().Rank() {
	case 2:
		return mask.Unsqueeze(1).Unsqueeze(2)
	case 3:
		return mask.Unsqueeze(1)
	case 4:
		return mask
	default:
		panic(fmt.Sprintf("nn: attention mask must be 2-D, 3-D or 4-D, got %v", mask.Shape()))
	}
}

// ScaledDotProductAttention computes softmax(Q K^T / sqrt(dk)) V over
// [batch, heads, seq, headDim] inputs.
//
// The mask, when non-nil, must already be 4-D (see expandMask); blocked
// positions (mask = 0) receive -Inf before the softmax so their weight is
// exactly zero. Dropout, when non-nil, is applied to the attention
// weights. Returns the attended values and the post-softmax weights.
func ScaledDotProductAttention[B tensor.Backend](
	q, k, v *tensor.Tensor[float32, B],
	mask *tensor.Tensor[float32, B],
	dropout *Dropout[B],
) (*tensor.Tensor[float32, B], *tensor.Tensor[float32, B]) {
	headDim := q.Shape()[q.Shape().Rank()-1]
	scale := float32(math.Sqrt(float64(headDim)))

	scores := q.BatchMatMul(k.Transpose(0, 1, 3, 2)).DivScalar(scale)
	if mask != nil {
		scores = scores.MaskedFill(mask, negInf)
	}
	weights := scores.Softmax(-1)
	if dropout != nil {
		weights = dropout.Forward(weights)
	}
	return weights.BatchMatMul(v), weights
}
