package nn

import (
	"fmt"

	"github.com/loom-ml/loom/internal/tensor"
)

// LayerNorm normalizes the last dimension to zero mean and unit variance,
// then applies a learned affine transform:
//
//	y = (x - mean) / sqrt(var + eps) * gamma + beta
type LayerNorm[B tensor.Backend] struct {
	Dim int
	Eps float32

	gamma *Parameter[B]
	beta  *Parameter[B]
}

// NewLayerNorm creates a LayerNorm over the last dimension of size dim.
func NewLayerNorm[B tensor.Backend](dim int, backend B) *LayerNorm[B] {
	if dim <= 0 {
		panic(fmt.Sprintf("nn: LayerNorm dimension must be positive, got %d", dim))
	}
	return &LayerNorm[B]{
		Dim:   dim,
		Eps:   1e-5,
		gamma: NewParameter("gamma", tensor.Ones[float32](tensor.Shape{dim}, backend)),
		beta:  NewParameter("beta", tensor.Zeros[float32](tensor.Shape{dim}, backend)),
	}
}

// Forward normalizes the last dimension of x.
func (ln *LayerNorm[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := x.Shape()
	if shape[len(shape)-1] != ln.Dim {
		panic(fmt.Sprintf("nn: LayerNorm expects last dim %d, got shape %v", ln.Dim, shape))
	}

	mean := x.MeanDim(-1, true)
	centered := x.Sub(mean)
	variance := centered.Mul(centered).MeanDim(-1, true)
	inv := variance.AddScalar(ln.Eps).Rsqrt()

	return centered.Mul(inv).Mul(ln.gamma.Tensor()).Add(ln.beta.Tensor())
}

// Parameters returns gamma and beta.
func (ln *LayerNorm[B]) Parameters() []*Parameter[B] {
	return []*Parameter[B]{ln.gamma, ln.beta}
}

// StateDict exports gamma and beta.
func (ln *LayerNorm[B]) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{
		"gamma": ln.gamma.Tensor().Raw(),
		"beta":  ln.beta.Tensor().Raw(),
	}
}

// LoadStateDict restores gamma and beta.
func (ln *LayerNorm[B]) LoadStateDict(state map[string]*tensor.RawTensor) error {
	return loadParams(state, ln.gamma, ln.beta)
}
