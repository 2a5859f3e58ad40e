package cpu

import (
	"fmt"
	"math"

	"github.com/loom-ml/loom/internal/tensor"
)

func unary(x *tensor.RawTensor, f func(float32) float32) *tensor.RawTensor {
	requireFloat32("unary op", x)
	out := tensor.MustNewRaw(x.Shape(), tensor.Float32, tensor.CPU)
	xd, od := x.AsFloat32(), out.AsFloat32()
	for i := range xd {
		od[i] = f(xd[i])
	}
	return out
}

// AddScalar returns x + s.
func (b *Backend) AddScalar(x *tensor.RawTensor, s float32) *tensor.RawTensor {
	return unary(x, func(v float32) float32 { return v + s })
}

// MulScalar returns x * s.
func (b *Backend) MulScalar(x *tensor.RawTensor, s float32) *tensor.RawTensor {
	return unary(x, func(v float32) float32 { return v * s })
}

// DivScalar returns x / s.
func (b *Backend) DivScalar(x *tensor.RawTensor, s float32) *tensor.RawTensor {
	return unary(x, func(v float32) float32 { return v / s })
}

// Exp returns e^x element-wise.
func (b *Backend) Exp(x *tensor.RawTensor) *tensor.RawTensor {
	return unary(x, func(v float32) float32 { return float32(math.Exp(float64(v))) })
}

// Sqrt returns the element-wise square root.
func (b *Backend) Sqrt(x *tensor.RawTensor) *tensor.RawTensor {
	return unary(x, func(v float32) float32 { return float32(math.Sqrt(float64(v))) })
}

// Rsqrt returns 1/sqrt(x) element-wise.
func (b *Backend) Rsqrt(x *tensor.RawTensor) *tensor.RawTensor {
	return unary(x, func(v float32) float32 { return float32(1.0 / math.Sqrt(float64(v))) })
}

// Gelu applies the exact (erf-based) GELU: 0.5 * x * (1 + erf(x/sqrt(2))).
func (b *Backend) Gelu(x *tensor.RawTensor) *tensor.RawTensor {
	return unary(x, func(v float32) float32 {
		return float32(0.5 * float64(v) * (1.0 + math.Erf(float64(v)/math.Sqrt2)))
	})
}

// resolveDim normalizes a possibly negative dim against rank.
func resolveDim(dim, rank int) int {
	if dim < 0 {
		dim += rank
	}
	if dim < 0 || dim >= rank {
		panic(fmt.Sprintf("cpu: dimension %d out of range for rank %d", dim, rank))
	}
	return dim
}

// lanes decomposes a shape around dim into (outer, n, inner) so that the
// elements of one lane along dim sit at base + j*inner for j in [0, n).
func lanes(shape tensor.Shape, dim int) (outer, n, inner int) {
	outer, inner = 1, 1
	for d := 0; d < dim; d++ {
		outer *= shape[d]
	}
	for d := dim + 1; d < len(shape); d++ {
		inner *= shape[d]
	}
	return outer, shape[dim], inner
}

// Softmax normalizes along dim with the max-subtraction trick.
func (b *Backend) Softmax(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	requireFloat32("Softmax", x)
	dim = resolveDim(dim, x.Shape().Rank())
	out := tensor.MustNewRaw(x.Shape(), tensor.Float32, tensor.CPU)
	xd, od := x.AsFloat32(), out.AsFloat32()

	outer, n, inner := lanes(x.Shape(), dim)
	for o := 0; o < outer; o++ {
		for in := 0; in < inner; in++ {
			base := o*n*inner + in
			maxVal := xd[base]
			for j := 1; j < n; j++ {
				if v := xd[base+j*inner]; v > maxVal {
					maxVal = v
				}
			}
			var sum float64
			for j := 0; j < n; j++ {
				e := math.Exp(float64(xd[base+j*inner] - maxVal))
				od[base+j*inner] = float32(e)
				sum += e
			}
			for j := 0; j < n; j++ {
				od[base+j*inner] = float32(float64(od[base+j*inner]) / sum)
			}
		}
	}
	return out
}

// LogSoftmax computes log(softmax(x)) along dim as x - max - log(sum(exp)).
func (b *Backend) LogSoftmax(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	requireFloat32("LogSoftmax", x)
	dim = resolveDim(dim, x.Shape().Rank())
	out := tensor.MustNewRaw(x.Shape(), tensor.Float32, tensor.CPU)
	xd, od := x.AsFloat32(), out.AsFloat32()

	outer, n, inner := lanes(x.Shape(), dim)
	for o := 0; o < outer; o++ {
		for in := 0; in < inner; in++ {
			base := o*n*inner + in
			maxVal := xd[base]
			for j := 1; j < n; j++ {
				if v := xd[base+j*inner]; v > maxVal {
					maxVal = v
				}
			}
			var sum float64
			for j := 0; j < n; j++ {
				sum += math.Exp(float64(xd[base+j*inner] - maxVal))
			}
			logSum := math.Log(sum)
			for j := 0; j < n; j++ {
				od[base+j*inner] = float32(float64(xd[base+j*inner]-maxVal) - logSum)
			}
		}
	}
	return out
}

// MeanDim averages along dim, keeping it as size 1 when keepDim is set.
func (b *Backend) MeanDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	requireFloat32("MeanDim", x)
	shape := x.Shape()
	dim = resolveDim(dim, shape.Rank())

	outShape := tensor.Shape{}
	for d, size := range shape {
		if d == dim {
			if keepDim {
				outShape = append(outShape, 1)
			}
			continue
		}
		outShape = append(outShape, size)
	}
	if len(outShape) == 0 {
		outShape = tensor.Shape{1}
	}
	out := tensor.MustNewRaw(outShape, tensor.Float32, tensor.CPU)
	xd, od := x.AsFloat32(), out.AsFloat32()

	outer, n, inner := lanes(shape, dim)
	for o := 0; o < outer; o++ {
		for in := 0; in < inner; in++ {
			base := o*n*inner + in
			var sum float64
			for j := 0; j < n; j++ {
				sum += float64(xd[base+j*inner])
			}
			od[o*inner+in] = float32(sum / float64(n))
		}
	}
	return out
}
