package cpu

import (
	"fmt"

	"github.com/loom-ml/loom/internal/tensor"
)

// Reshape returns a contiguous copy under the new shape.
func (b *Backend) Reshape(x *tensor.RawTensor, shape tensor.Shape) *tensor.RawTensor {
	out, err := x.WithShape(shape)
	if err != nil {
		panic(err)
	}
	return out
}

// Unsqueeze inserts a size-1 dimension at dim (dim may equal rank to
// append at the end).
func (b *Backend) Unsqueeze(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	shape := x.Shape()
	if dim < 0 {
		dim += shape.Rank() + 1
	}
	if dim < 0 || dim > shape.Rank() {
		panic(fmt.Sprintf("cpu: Unsqueeze dim %d out of range for rank %d", dim, shape.Rank()))
	}
	newShape := make(tensor.Shape, 0, shape.Rank()+1)
	newShape = append(newShape, shape[:dim]...)
	newShape = append(newShape, 1)
	newShape = append(newShape, shape[dim:]...)
	out, err := x.WithShape(newShape)
	if err != nil {
		panic(err)
	}
	return out
}

// Transpose permutes axes into a contiguous result. With no axes given it
// reverses all dimensions.
func (b *Backend) Transpose(x *tensor.RawTensor, axes ...int) *tensor.RawTensor {
	shape := x.Shape()
	rank := shape.Rank()

	if len(axes) == 0 {
		axes = make([]int, rank)
		for i := range axes {
			axes[i] = rank - 1 - i
		}
	}
	if len(axes) != rank {
		panic(fmt.Sprintf("cpu: Transpose got %d axes for rank %d", len(axes), rank))
	}
	seen := make([]bool, rank)
	for _, a := range axes {
		if a < 0 || a >= rank || seen[a] {
			panic(fmt.Sprintf("cpu: Transpose axes %v is not a permutation of rank %d", axes, rank))
		}
		seen[a] = true
	}

	outShape := make(tensor.Shape, rank)
	for d, a := range axes {
		outShape[d] = shape[a]
	}
	out := tensor.MustNewRaw(outShape, x.DType(), tensor.CPU)

	inStrides := shape.Strides()
	// Stride of output dim d in the input buffer.
	mapped := make([]int, rank)
	for d, a := range axes {
		mapped[d] = inStrides[a]
	}

	switch x.DType() {
	case tensor.Float32:
		permuteCopy(x.AsFloat32(), out.AsFloat32(), outShape, mapped)
	case tensor.Int32:
		permuteCopy(x.AsInt32(), out.AsInt32(), outShape, mapped)
	default:
		panic(fmt.Sprintf("cpu: Transpose unsupported dtype %s", x.DType()))
	}
	return out
}

func permuteCopy[T float32 | int32](in, out []T, outShape tensor.Shape, inStrides []int) {
	idx := make([]int, len(outShape))
	for i := range out {
		src := 0
		for d := range idx {
			src += idx[d] * inStrides[d]
		}
		out[i] = in[src]
		increment(idx, outShape)
	}
}
