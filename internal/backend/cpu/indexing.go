package cpu

import (
	"fmt"

	"github.com/loom-ml/loom/internal/tensor"
)

// MaskedFill writes value into x wherever the float32 indicator mask is
// zero. The mask broadcasts against x from the right.
func (b *Backend) MaskedFill(x, mask *tensor.RawTensor, value float32) *tensor.RawTensor {
	requireFloat32("MaskedFill", x, mask)
	outShape, err := tensor.BroadcastShapes(x.Shape(), mask.Shape())
	if err != nil {
		panic(err)
	}
	if !outShape.Equal(x.Shape()) {
		panic(fmt.Sprintf("cpu: MaskedFill mask %v does not broadcast into %v", mask.Shape(), x.Shape()))
	}

	out := x.Clone()
	od := out.AsFloat32()
	md := mask.AsFloat32()

	maskStrides := broadcastStrides(mask.Shape(), outShape)
	idx := make([]int, len(outShape))
	for i := range od {
		mi := 0
		for d := range idx {
			mi += idx[d] * maskStrides[d]
		}
		if md[mi] == 0 {
			od[i] = value
		}
		increment(idx, outShape)
	}
	return out
}

// Embedding gathers rows of weight [vocab, dim] by Int32 indices, producing
// [indices..., dim]. Out-of-range indices are programming errors.
func (b *Backend) Embedding(weight, indices *tensor.RawTensor) *tensor.RawTensor {
	requireFloat32("Embedding", weight)
	if indices.DType() != tensor.Int32 {
		panic(fmt.Sprintf("cpu: Embedding requires int32 indices, got %s", indices.DType()))
	}
	ws := weight.Shape()
	if len(ws) != 2 {
		panic(fmt.Sprintf("cpu: Embedding weight must be 2-D, got %v", ws))
	}
	vocab, dim := ws[0], ws[1]

	outShape := append(indices.Shape().Clone(), dim)
	out := tensor.MustNewRaw(outShape, tensor.Float32, tensor.CPU)

	wd, od := weight.AsFloat32(), out.AsFloat32()
	for i, id := range indices.AsInt32() {
		if id < 0 || int(id) >= vocab {
			panic(fmt.Sprintf("cpu: Embedding index %d out of range [0, %d)", id, vocab))
		}
		copy(od[i*dim:(i+1)*dim], wd[int(id)*dim:(int(id)+1)*dim])
	}
	return out
}

// Cast converts between Float32 and Int32 (float values truncate).
func (b *Backend) Cast(x *tensor.RawTensor, dtype tensor.DataType) *tensor.RawTensor {
	if x.DType() == dtype {
		return x.Clone()
	}
	out := tensor.MustNewRaw(x.Shape(), dtype, tensor.CPU)
	switch {
	case x.DType() == tensor.Float32 && dtype == tensor.Int32:
		xd, od := x.AsFloat32(), out.AsInt32()
		for i := range xd {
			od[i] = int32(xd[i])
		}
	case x.DType() == tensor.Int32 && dtype == tensor.Float32:
		xd, od := x.AsInt32(), out.AsFloat32()
		for i := range xd {
			od[i] = float32(xd[i])
		}
	default:
		panic(fmt.Sprintf("cpu: Cast %s -> %s unsupported", x.DType(), dtype))
	}
	return out
}
