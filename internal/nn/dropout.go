package nn

import (
	"fmt"
	"math/rand"

	"github.com/loom-ml/loom/internal/tensor"
)

// Dropout zeroes each element with probability p and scales survivors by
// 1/(1-p) (inverted dropout). Whether it is active is fixed at
// construction: models built for inference get identity dropout, models
// built for training get the stochastic version. There is no global mode
// switch.
type Dropout[B tensor.Backend] struct {
	P        float32
	training bool
}

// NewDropout creates a dropout layer. Panics unless 0 <= p < 1.
func NewDropout[B tensor.Backend](p float32, training bool) *Dropout[B] {
	if p < 0 || p >= 1 {
		panic(fmt.Sprintf("nn: dropout probability must be in [0, 1), got %v", p))
	}
	return &Dropout[B]{P: p, training: training}
}

// Forward applies dropout. In inference mode (or with p = 0) the input is
// returned unchanged.
func (d *Dropout[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	if !d.training || d.P == 0 {
		return x
	}
	scale := 1 / (1 - d.P)
	mask := tensor.Zeros[float32](x.Shape(), x.Backend())
	data := mask.Data()
	for i := range data {
		if rand.Float32() >= d.P {
			data[i] = scale
		}
	}
	return x.Mul(mask)
}
