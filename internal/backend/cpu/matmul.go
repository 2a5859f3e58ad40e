package cpu

import (
	"fmt"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/loom-ml/loom/internal/tensor"
)

// MatMul computes the 2-D product [m, k] x [k, n] -> [m, n] via BLAS sgemm.
func (b *Backend) MatMul(x, y *tensor.RawTensor) *tensor.RawTensor {
	requireFloat32("MatMul", x, y)
	xs, ys := x.Shape(), y.Shape()
	if len(xs) != 2 || len(ys) != 2 {
		panic(fmt.Sprintf("cpu: MatMul requires 2-D tensors, got %v x %v", xs, ys))
	}
	if xs[1] != ys[0] {
		panic(fmt.Sprintf("cpu: MatMul inner dimensions mismatch: %v x %v", xs, ys))
	}
	m, k, n := xs[0], xs[1], ys[1]
	out := tensor.MustNewRaw(tensor.Shape{m, n}, tensor.Float32, tensor.CPU)
	gemm(m, k, n, x.AsFloat32(), y.AsFloat32(), out.AsFloat32())
	return out
}

// BatchMatMul computes [..., m, k] x [..., k, n] -> [..., m, n] for equal
// leading batch dims, one sgemm per batch.
func (b *Backend) BatchMatMul(x, y *tensor.RawTensor) *tensor.RawTensor {
	requireFloat32("BatchMatMul", x, y)
	xs, ys := x.Shape(), y.Shape()
	if len(xs) < 3 || len(xs) != len(ys) {
		panic(fmt.Sprintf("cpu: BatchMatMul requires equal-rank tensors of rank >= 3, got %v x %v", xs, ys))
	}
	rank := len(xs)
	batch := 1
	for d := 0; d < rank-2; d++ {
		if xs[d] != ys[d] {
			panic(fmt.Sprintf("cpu: BatchMatMul batch dimensions mismatch: %v x %v", xs, ys))
		}
		batch *= xs[d]
	}
	m, k, n := xs[rank-2], xs[rank-1], ys[rank-1]
	if ys[rank-2] != k {
		panic(fmt.Sprintf("cpu: BatchMatMul inner dimensions mismatch: %v x %v", xs, ys))
	}

	outShape := xs.Clone()
	outShape[rank-1] = n
	out := tensor.MustNewRaw(outShape, tensor.Float32, tensor.CPU)

	xd, yd, od := x.AsFloat32(), y.AsFloat32(), out.AsFloat32()
	for i := 0; i < batch; i++ {
		gemm(m, k, n,
			xd[i*m*k:(i+1)*m*k],
			yd[i*k*n:(i+1)*k*n],
			od[i*m*n:(i+1)*m*n])
	}
	return out
}

func gemm(m, k, n int, a, b, c []float32) {
	blas32.Gemm(blas.NoTrans, blas.NoTrans, 1,
		blas32.General{Rows: m, Cols: k, Stride: k, Data: a},
		blas32.General{Rows: k, Cols: n, Stride: n, Data: b},
		0,
		blas32.General{Rows: m, Cols: n, Stride: n, Data: c})
}
