package nn

import (
	"math"
	"math/rand"

	"github.com/loom-ml/loom/internal/tensor"
)

// xavierUniform fills t with samples from U(-bound, bound) where
// bound = sqrt(6 / (fanIn + fanOut)). Keeps activation variance roughly
// constant across layers at initialization.
func xavierUniform[B tensor.Backend](t *tensor.Tensor[float32, B], fanIn, fanOut int) {
	bound := float32(math.Sqrt(6.0 / float64(fanIn+fanOut)))
	data := t.Data()
	for i := range data {
		data[i] = (rand.Float32()*2 - 1) * bound
	}
}
