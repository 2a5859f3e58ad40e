// Package cpu implements the tensor.Backend contract on host memory.
//
// Matrix products go through gonum's float32 BLAS; everything else is
// plain Go loops over the typed RawTensor views.
package cpu

import (
	"fmt"

	"github.com/loom-ml/loom/internal/tensor"
)

// Backend is the CPU compute backend. It is stateless and safe for
// concurrent use.
type Backend struct{}

// New returns a CPU backend.
func New() *Backend { return &Backend{} }

// Name returns "cpu".
func (b *Backend) Name() string { return "cpu" }

// Device returns tensor.CPU.
func (b *Backend) Device() tensor.Device { return tensor.CPU }

// Add returns a + b with broadcasting.
func (b *Backend) Add(x, y *tensor.RawTensor) *tensor.RawTensor {
	return broadcastPair(x, y, func(a, b float32) float32 { return a + b })
}

// Sub returns a - b with broadcasting.
func (b *Backend) Sub(x, y *tensor.RawTensor) *tensor.RawTensor {
	return broadcastPair(x, y, func(a, b float32) float32 { return a - b })
}

// Mul returns the element-wise product with broadcasting.
func (b *Backend) Mul(x, y *tensor.RawTensor) *tensor.RawTensor {
	return broadcastPair(x, y, func(a, b float32) float32 { return a * b })
}

// Div returns the element-wise quotient with broadcasting.
func (b *Backend) Div(x, y *tensor.RawTensor) *tensor.RawTensor {
	return broadcastPair(x, y, func(a, b float32) float32 { return a / b })
}

func requireFloat32(op string, ts ...*tensor.RawTensor) {
	for _, t := range ts {
		if t.DType() != tensor.Float32 {
			panic(fmt.Sprintf("cpu: %s requires float32 tensors, got %s", op, t.DType()))
		}
	}
}

// broadcastPair applies f element-wise over the broadcast of two float32
// tensors. Shapes that cannot broadcast are programming errors.
func broadcastPair(x, y *tensor.RawTensor, f func(a, b float32) float32) *tensor.RawTensor {
	requireFloat32("element-wise op", x, y)
	outShape, err := tensor.BroadcastShapes(x.Shape(), y.Shape())
	if err != nil {
		panic(err)
	}
	out := tensor.MustNewRaw(outShape, tensor.Float32, tensor.CPU)
	xd, yd, od := x.AsFloat32(), y.AsFloat32(), out.AsFloat32()

	if x.Shape().Equal(y.Shape()) {
		for i := range od {
			od[i] = f(xd[i], yd[i])
		}
		return out
	}

	xStrides := broadcastStrides(x.Shape(), outShape)
	yStrides := broadcastStrides(y.Shape(), outShape)
	idx := make([]int, len(outShape))
	for i := range od {
		xi, yi := 0, 0
		for d := range idx {
			xi += idx[d] * xStrides[d]
			yi += idx[d] * yStrides[d]
		}
		od[i] = f(xd[xi], yd[yi])
		increment(idx, outShape)
	}
	return out
}

// broadcastStrides maps an input shape onto the broadcast output shape:
// missing leading dims and stretched size-1 dims get stride 0.
func broadcastStrides(in, out tensor.Shape) []int {
	strides := make([]int, len(out))
	inStrides := in.Strides()
	offset := len(out) - len(in)
	for d := range out {
		if d < offset {
			continue
		}
		if in[d-offset] == 1 && out[d] != 1 {
			continue
		}
		strides[d] = inStrides[d-offset]
	}
	return strides
}

// increment advances a row-major multi-index by one position.
func increment(idx []int, shape tensor.Shape) {
	for d := len(idx) - 1; d >= 0; d-- {
		idx[d]++
		if idx[d] < shape[d] {
			return
		}
		idx[d] = 0
	}
}
