package nn

import (
	"math"
	"testing"

	"github.com/loom-ml/loom/internal/backend/cpu"
	"github.com/loom-ml/loom/internal/tensor"
)

func TestLinearKnownValues(t *testing.T) {
	backend := cpu.New()
	l := NewLinear(2, 2, backend)

	// Overwrite initialized values with a known transform.
	copy(l.weight.Tensor().Data(), []float32{1, 0, 0, 1}) // identity
	copy(l.bias.Tensor().Data(), []float32{10, 20})

	x := tensor.MustFromSlice([]float32{1, 2, 3, 4}, tensor.Shape{2, 2}, backend)
	got := l.Forward(x).Data()
	want := []float32{11, 22, 13, 24}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Forward[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestLinear3DInput(t *testing.T) {
	backend := cpu.New()
	l := NewLinear(4, 6, backend)
	x := tensor.Zeros[float32](tensor.Shape{2, 3, 4}, backend)
	out := l.Forward(x)
	if !out.Shape().Equal(tensor.Shape{2, 3, 6}) {
		t.Errorf("shape = %v, want (2, 3, 6)", out.Shape())
	}
}

func TestLayerNormNormalizes(t *testing.T) {
	backend := cpu.New()
	ln := NewLayerNorm(4, backend)

	x := tensor.MustFromSlice([]float32{1, 2, 3, 4, 10, 20, 30, 40}, tensor.Shape{2, 4}, backend)
	out := ln.Forward(x).Data()

	for row := 0; row < 2; row++ {
		var mean, variance float64
		for j := 0; j < 4; j++ {
			mean += float64(out[row*4+j])
		}
		mean /= 4
		for j := 0; j < 4; j++ {
			d := float64(out[row*4+j]) - mean
			variance += d * d
		}
		variance /= 4
		if math.Abs(mean) > 1e-5 {
			t.Errorf("row %d mean = %v, want 0", row, mean)
		}
		if math.Abs(variance-1) > 1e-3 {
			t.Errorf("row %d variance = %v, want 1", row, variance)
		}
	}
}

func TestDropoutInferenceIsIdentity(t *testing.T) {
	backend := cpu.New()
	d := NewDropout[*cpu.Backend](0.5, false)
	x := tensor.MustFromSlice([]float32{1, 2, 3}, tensor.Shape{3}, backend)
	got := d.Forward(x)
	for i, v := range got.Data() {
		if v != x.Data()[i] {
			t.Errorf("inference dropout changed element %d: %v", i, v)
		}
	}
}

func TestDropoutTrainingZeroesAndScales(t *testing.T) {
	backend := cpu.New()
	d := NewDropout[*cpu.Backend](0.5, true)
	x := tensor.Ones[float32](tensor.Shape{1000}, backend)
	got := d.Forward(x).Data()

	zeros := 0
	for _, v := range got {
		switch v {
		case 0:
			zeros++
		case 2: // survivors scaled by 1/(1-0.5)
		default:
			t.Fatalf("unexpected value %v, want 0 or 2", v)
		}
	}
	if zeros < 300 || zeros > 700 {
		t.Errorf("zeroed %d of 1000 at p=0.5, outside plausible range", zeros)
	}
}

func TestDropoutInvalidProbabilityPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for p = 1")
		}
	}()
	NewDropout[*cpu.Backend](1, true)
}

func TestTokenEmbeddingScales(t *testing.T) {
	backend := cpu.New()
	te := NewTokenEmbedding(10, 16, backend)

	ids := tensor.MustFromSlice([]int32{3}, tensor.Shape{1, 1}, backend)
	scaled := te.Forward(ids).Data()
	raw := te.emb.Forward(ids).Data()

	want := float32(math.Sqrt(16))
	for i := range raw {
		if math.Abs(float64(scaled[i]-raw[i]*want)) > 1e-5 {
			t.Errorf("element %d: %v != %v * sqrt(d)", i, scaled[i], raw[i])
		}
	}
}

func TestPositionalEncodingValues(t *testing.T) {
	backend := cpu.New()
	pe := NewSinusoidalPositionalEncoding(16, 4, backend)

	out := pe.Forward(3)
	if !out.Shape().Equal(tensor.Shape{1, 3, 4}) {
		t.Fatalf("shape = %v, want (1, 3, 4)", out.Shape())
	}
	// Position 0: sin(0)=0 on even dims, cos(0)=1 on odd dims.
	if out.At(0, 0, 0) != 0 || out.At(0, 0, 2) != 0 {
		t.Error("position 0 even dims should be 0")
	}
	if out.At(0, 0, 1) != 1 || out.At(0, 0, 3) != 1 {
		t.Error("position 0 odd dims should be 1")
	}
	// Position 1, dim 0: sin(1).
	if math.Abs(float64(out.At(0, 1, 0))-math.Sin(1)) > 1e-6 {
		t.Errorf("PE(1, 0) = %v, want sin(1)", out.At(0, 1, 0))
	}
	// Same table on every call.
	again := pe.Forward(3)
	for i := range out.Data() {
		if out.Data()[i] != again.Data()[i] {
			t.Fatal("positional encoding not deterministic")
		}
	}
}

func TestPositionalEncodingBeyondMaxLenPanics(t *testing.T) {
	pe := NewSinusoidalPositionalEncoding(8, 4, cpu.New())
	defer func() {
		if recover() == nil {
			t.Error("expected panic for seqLen > maxLen")
		}
	}()
	pe.Forward(9)
}

func TestFeedForwardShape(t *testing.T) {
	backend := cpu.New()
	ff := NewFeedForward(8, 32, 0, false, backend)
	x := tensor.Zeros[float32](tensor.Shape{2, 5, 8}, backend)
	out := ff.Forward(x)
	if !out.Shape().Equal(tensor.Shape{2, 5, 8}) {
		t.Errorf("shape = %v, want (2, 5, 8)", out.Shape())
	}
}
