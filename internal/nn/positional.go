package nn

import (
	"fmt"
	"math"

	"github.com/loom-ml/loom/internal/tensor"
)

// SinusoidalPositionalEncoding injects position information through a
// fixed table of interleaved sine and cosine waves:
//
//	PE(pos, 2i)   = sin(pos / 10000^(2i/dim))
//	PE(pos, 2i+1) = cos(pos / 10000^(2i/dim))
//
// The table is precomputed once at construction and never written again,
// so concurrent forward passes may share it freely.
type SinusoidalPositionalEncoding[B tensor.Backend] struct {
	MaxLen int
	Dim    int

	table   []float32 // [maxLen * dim], row-major
	backend B
}

// NewSinusoidalPositionalEncoding precomputes the encoding table.
func NewSinusoidalPositionalEncoding[B tensor.Backend](maxLen, dim int, backend B) *SinusoidalPositionalEncoding[B] {
	if maxLen <= 0 || dim <= 0 {
		panic(fmt.Sprintf("nn: positional encoding dimensions must be positive, got maxLen=%d dim=%d", maxLen, dim))
	}
	table := make([]float32, maxLen*dim)
	for pos := 0; pos < maxLen; pos++ {
		for i := 0; i < dim; i++ {
			angle := float64(pos) / math.Pow(10000.0, float64(2*(i/2))/float64(dim))
			if i%2 == 0 {
				table[pos*dim+i] = float32(math.Sin(angle))
			} else {
				table[pos*dim+i] = float32(math.Cos(angle))
			}
		}
	}
	return &SinusoidalPositionalEncoding[B]{
		MaxLen:  maxLen,
		Dim:     dim,
		table:   table,
		backend: backend,
	}
}

// Forward returns the first seqLen rows as [1, seqLen, dim], ready to
// broadcast-add onto a [batch, seqLen, dim] embedding. Panics when seqLen
// exceeds MaxLen.
func (p *SinusoidalPositionalEncoding[B]) Forward(seqLen int) *tensor.Tensor[float32, B] {
	if seqLen <= 0 || seqLen > p.MaxLen {
		panic(fmt.Sprintf("nn: sequence length %d outside (0, %d]", seqLen, p.MaxLen))
	}
	return tensor.MustFromSlice(p.table[:seqLen*p.Dim], tensor.Shape{1, seqLen, p.Dim}, p.backend)
}
