package nn

import (
	"fmt"

	"github.com/loom-ml/loom/internal/tensor"
)

// Linear is a fully connected layer: y = x @ W^T + b.
//
// The weight is stored [outFeatures, inFeatures] and initialized with
// Xavier uniform; the bias starts at zero.
type Linear[B tensor.Backend] struct {
	InFeatures  int
	OutFeatures int

	weight  *Parameter[B]
	bias    *Parameter[B]
	backend B
}

// NewLinear creates a Linear layer. Panics on non-positive dimensions.
func NewLinear[B tensor.Backend](inFeatures, outFeatures int, backend B) *Linear[B] {
	if inFeatures <= 0 || outFeatures <= 0 {
		panic(fmt.Sprintf("nn: Linear dimensions must be positive, got in=%d out=%d", inFeatures, outFeatures))
	}
	weight := tensor.Zeros[float32](tensor.Shape{outFeatures, inFeatures}, backend)
	xavierUniform(weight, inFeatures, outFeatures)
	bias := tensor.Zeros[float32](tensor.Shape{outFeatures}, backend)

	return &Linear[B]{
		InFeatures:  inFeatures,
		OutFeatures: outFeatures,
		weight:      NewParameter("weight", weight),
		bias:        NewParameter("bias", bias),
		backend:     backend,
	}
}

// Forward applies the layer to the last dimension of x. Inputs of rank
// above 2 are flattened over their leading dimensions for the product.
func (l *Linear[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := x.Shape()
	if shape[len(shape)-1] != l.InFeatures {
		panic(fmt.Sprintf("nn: Linear expects last dim %d, got shape %v", l.InFeatures, shape))
	}

	rows := shape.NumElements() / l.InFeatures
	flat := x.Reshape(rows, l.InFeatures)
	y := flat.MatMul(l.weight.Tensor().Transpose()).Add(l.bias.Tensor())

	outShape := append(shape.Clone()[:len(shape)-1], l.OutFeatures)
	return y.Reshape(outShape...)
}

// Parameters returns weight and bias.
func (l *Linear[B]) Parameters() []*Parameter[B] {
	return []*Parameter[B]{l.weight, l.bias}
}

// StateDict exports the layer's tensors.
func (l *Linear[B]) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{
		"weight": l.weight.Tensor().Raw(),
		"bias":   l.bias.Tensor().Raw(),
	}
}

// LoadStateDict restores the layer's tensors.
func (l *Linear[B]) LoadStateDict(state map[string]*tensor.RawTensor) error {
	return loadParams(state, l.weight, l.bias)
}
