package cpu

import (
	"math"
	"testing"

	"github.com/loom-ml/loom/internal/tensor"
)

func rawF32(t *testing.T, shape tensor.Shape, data []float32) *tensor.RawTensor {
	t.Helper()
	r, err := tensor.NewRawFromFloat32(shape, data, tensor.CPU)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func approxEqual(a, b, tol float32) bool {
	return float32(math.Abs(float64(a-b))) <= tol
}

func TestAddBroadcast(t *testing.T) {
	b := New()
	x := rawF32(t, tensor.Shape{2, 3}, []float32{1, 2, 3, 4, 5, 6})
	y := rawF32(t, tensor.Shape{3}, []float32{10, 20, 30})

	got := b.Add(x, y).AsFloat32()
	want := []float32{11, 22, 33, 14, 25, 36}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Add[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestMulBroadcastColumn(t *testing.T) {
	b := New()
	x := rawF32(t, tensor.Shape{2, 2}, []float32{1, 2, 3, 4})
	y := rawF32(t, tensor.Shape{2, 1}, []float32{10, 100})

	got := b.Mul(x, y).AsFloat32()
	want := []float32{10, 20, 300, 400}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Mul[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestMatMul(t *testing.T) {
	b := New()
	x := rawF32(t, tensor.Shape{2, 3}, []float32{1, 2, 3, 4, 5, 6})
	y := rawF32(t, tensor.Shape{3, 2}, []float32{7, 8, 9, 10, 11, 12})

	out := b.MatMul(x, y)
	if !out.Shape().Equal(tensor.Shape{2, 2}) {
		t.Fatalf("MatMul shape = %v, want (2, 2)", out.Shape())
	}
	got := out.AsFloat32()
	want := []float32{58, 64, 139, 154}
	for i := range want {
		if !approxEqual(got[i], want[i], 1e-5) {
			t.Errorf("MatMul[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestMatMulShapeMismatchPanics(t *testing.T) {
	b := New()
	x := rawF32(t, tensor.Shape{2, 3}, make([]float32, 6))
	y := rawF32(t, tensor.Shape{2, 2}, make([]float32, 4))
	defer func() {
		if recover() == nil {
			t.Error("expected panic on inner dimension mismatch")
		}
	}()
	b.MatMul(x, y)
}

func TestBatchMatMul(t *testing.T) {
	b := New()
	// Two batches of identity x A.
	x := rawF32(t, tensor.Shape{2, 2, 2}, []float32{1, 0, 0, 1, 2, 0, 0, 2})
	y := rawF32(t, tensor.Shape{2, 2, 2}, []float32{1, 2, 3, 4, 5, 6, 7, 8})

	got := b.BatchMatMul(x, y).AsFloat32()
	want := []float32{1, 2, 3, 4, 10, 12, 14, 16}
	for i := range want {
		if !approxEqual(got[i], want[i], 1e-5) {
			t.Errorf("BatchMatMul[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestSoftmaxRowsSumToOne(t *testing.T) {
	b := New()
	x := rawF32(t, tensor.Shape{2, 4}, []float32{1, 2, 3, 4, -1, 0, 1, 2})

	got := b.Softmax(x, -1).AsFloat32()
	for row := 0; row < 2; row++ {
		var sum float32
		for j := 0; j < 4; j++ {
			v := got[row*4+j]
			if v <= 0 || v >= 1 {
				t.Errorf("softmax[%d][%d] = %v outside (0, 1)", row, j, v)
			}
			sum += v
		}
		if !approxEqual(sum, 1, 1e-5) {
			t.Errorf("row %d sums to %v, want 1", row, sum)
		}
	}
	// Monotonic inputs keep their ordering.
	if !(got[3] > got[2] && got[2] > got[1] && got[1] > got[0]) {
		t.Error("softmax did not preserve input ordering")
	}
}

func TestSoftmaxLargeLogitsStable(t *testing.T) {
	b := New()
	x := rawF32(t, tensor.Shape{1, 3}, []float32{1000, 1001, 1002})
	got := b.Softmax(x, -1).AsFloat32()
	var sum float32
	for _, v := range got {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			t.Fatalf("softmax produced %v on large logits", v)
		}
		sum += v
	}
	if !approxEqual(sum, 1, 1e-5) {
		t.Errorf("sum = %v, want 1", sum)
	}
}

func TestLogSoftmaxMatchesLogOfSoftmax(t *testing.T) {
	b := New()
	x := rawF32(t, tensor.Shape{1, 5}, []float32{0.5, -1, 2, 0, 1.5})
	sm := b.Softmax(x, -1).AsFloat32()
	lsm := b.LogSoftmax(x, -1).AsFloat32()
	for i := range sm {
		if !approxEqual(lsm[i], float32(math.Log(float64(sm[i]))), 1e-5) {
			t.Errorf("logsoftmax[%d] = %v, want log(%v) = %v", i, lsm[i], sm[i], math.Log(float64(sm[i])))
		}
	}
}

func TestSoftmaxMiddleDim(t *testing.T) {
	b := New()
	x := rawF32(t, tensor.Shape{1, 3, 2}, []float32{1, 10, 2, 20, 3, 30})
	got := b.Softmax(x, 1).AsFloat32()
	// Each column along dim 1 must sum to 1.
	for col := 0; col < 2; col++ {
		var sum float32
		for j := 0; j < 3; j++ {
			sum += got[j*2+col]
		}
		if !approxEqual(sum, 1, 1e-5) {
			t.Errorf("column %d sums to %v, want 1", col, sum)
		}
	}
}

func TestMeanDim(t *testing.T) {
	b := New()
	x := rawF32(t, tensor.Shape{2, 3}, []float32{1, 2, 3, 4, 5, 6})

	kept := b.MeanDim(x, -1, true)
	if !kept.Shape().Equal(tensor.Shape{2, 1}) {
		t.Fatalf("keepDim shape = %v, want (2, 1)", kept.Shape())
	}
	got := kept.AsFloat32()
	if !approxEqual(got[0], 2, 1e-6) || !approxEqual(got[1], 5, 1e-6) {
		t.Errorf("MeanDim = %v, want [2 5]", got)
	}

	dropped := b.MeanDim(x, 0, false)
	if !dropped.Shape().Equal(tensor.Shape{3}) {
		t.Fatalf("dropped shape = %v, want (3)", dropped.Shape())
	}
}

func TestTranspose2D(t *testing.T) {
	b := New()
	x := rawF32(t, tensor.Shape{2, 3}, []float32{1, 2, 3, 4, 5, 6})
	got := b.Transpose(x)
	if !got.Shape().Equal(tensor.Shape{3, 2}) {
		t.Fatalf("shape = %v, want (3, 2)", got.Shape())
	}
	want := []float32{1, 4, 2, 5, 3, 6}
	for i, v := range got.AsFloat32() {
		if v != want[i] {
			t.Errorf("Transpose[%d] = %v, want %v", i, v, want[i])
		}
	}
}

func TestTranspose4DHeadSplit(t *testing.T) {
	b := New()
	// [1, 2, 2, 2] with axes (0, 2, 1, 3): swap seq and head dims.
	x := rawF32(t, tensor.Shape{1, 2, 2, 2}, []float32{0, 1, 2, 3, 4, 5, 6, 7})
	got := b.Transpose(x, 0, 2, 1, 3)
	if !got.Shape().Equal(tensor.Shape{1, 2, 2, 2}) {
		t.Fatalf("shape = %v", got.Shape())
	}
	want := []float32{0, 1, 4, 5, 2, 3, 6, 7}
	for i, v := range got.AsFloat32() {
		if v != want[i] {
			t.Errorf("Transpose[%d] = %v, want %v", i, v, want[i])
		}
	}
}

func TestMaskedFillBroadcast(t *testing.T) {
	b := New()
	x := rawF32(t, tensor.Shape{2, 2, 3}, []float32{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12})
	// Mask [2, 1, 3]: batch 0 blocks last position, batch 1 blocks first.
	mask := rawF32(t, tensor.Shape{2, 1, 3}, []float32{1, 1, 0, 0, 1, 1})

	neg := float32(math.Inf(-1))
	got := b.MaskedFill(x, mask, neg).AsFloat32()
	blocked := []int{2, 5, 6, 9}
	for _, i := range blocked {
		if !math.IsInf(float64(got[i]), -1) {
			t.Errorf("position %d = %v, want -Inf", i, got[i])
		}
	}
	if got[0] != 1 || got[4] != 5 || got[7] != 8 {
		t.Error("MaskedFill modified unmasked positions")
	}
}

func TestEmbedding(t *testing.T) {
	b := New()
	weight := rawF32(t, tensor.Shape{3, 2}, []float32{0, 1, 10, 11, 20, 21})
	indices, err := tensor.NewRawFromInt32(tensor.Shape{2, 2}, []int32{2, 0, 1, 2}, tensor.CPU)
	if err != nil {
		t.Fatal(err)
	}

	out := b.Embedding(weight, indices)
	if !out.Shape().Equal(tensor.Shape{2, 2, 2}) {
		t.Fatalf("shape = %v, want (2, 2, 2)", out.Shape())
	}
	want := []float32{20, 21, 0, 1, 10, 11, 20, 21}
	for i, v := range out.AsFloat32() {
		if v != want[i] {
			t.Errorf("Embedding[%d] = %v, want %v", i, v, want[i])
		}
	}
}

func TestEmbeddingOutOfRangePanics(t *testing.T) {
	b := New()
	weight := rawF32(t, tensor.Shape{3, 2}, make([]float32, 6))
	indices, _ := tensor.NewRawFromInt32(tensor.Shape{1}, []int32{3}, tensor.CPU)
	defer func() {
		if recover() == nil {
			t.Error("expected panic on out-of-range index")
		}
	}()
	b.Embedding(weight, indices)
}

func TestGelu(t *testing.T) {
	b := New()
	x := rawF32(t, tensor.Shape{3}, []float32{-1, 0, 1})
	got := b.Gelu(x).AsFloat32()
	// Reference values of 0.5*x*(1+erf(x/sqrt(2))).
	want := []float32{-0.15865529, 0, 0.8413447}
	for i := range want {
		if !approxEqual(got[i], want[i], 1e-5) {
			t.Errorf("Gelu[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestCastRoundTrip(t *testing.T) {
	b := New()
	ints, _ := tensor.NewRawFromInt32(tensor.Shape{3}, []int32{1, -2, 7}, tensor.CPU)
	floats := b.Cast(ints, tensor.Float32)
	back := b.Cast(floats, tensor.Int32)
	for i, v := range back.AsInt32() {
		if v != ints.AsInt32()[i] {
			t.Errorf("Cast round trip[%d] = %d, want %d", i, v, ints.AsInt32()[i])
		}
	}
}

func TestReshapeAndUnsqueeze(t *testing.T) {
	b := New()
	x := rawF32(t, tensor.Shape{2, 3}, []float32{1, 2, 3, 4, 5, 6})

	r := b.Reshape(x, tensor.Shape{3, 2})
	if !r.Shape().Equal(tensor.Shape{3, 2}) {
		t.Fatalf("Reshape shape = %v", r.Shape())
	}
	if r.AsFloat32()[5] != 6 {
		t.Error("Reshape reordered data")
	}

	u := b.Unsqueeze(x, 1)
	if !u.Shape().Equal(tensor.Shape{2, 1, 3}) {
		t.Fatalf("Unsqueeze shape = %v, want (2, 1, 3)", u.Shape())
	}
}
