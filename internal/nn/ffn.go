package nn

import (
	"fmt"

	"github.com/loom-ml/loom/internal/tensor"
)

// FeedForward is the position-wise two-layer MLP applied after attention:
//
//	y = W2 @ dropout(gelu(W1 @ x + b1)) + b2
type FeedForward[B tensor.Backend] struct {
	linear1 *Linear[B]
	linear2 *Linear[B]
	drop    *Dropout[B]
}

// NewFeedForward creates a feed-forward block expanding dModel to
// hiddenDim and back.
func NewFeedForward[B tensor.Backend](dModel, hiddenDim int, dropout float32, training bool, backend B) *FeedForward[B] {
	return &FeedForward[B]{
		linear1: NewLinear(dModel, hiddenDim, backend),
		linear2: NewLinear(hiddenDim, dModel, backend),
		drop:    NewDropout[B](dropout, training),
	}
}

// Forward applies the block position-wise.
func (f *FeedForward[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	return f.linear2.Forward(f.drop.Forward(f.linear1.Forward(x).Gelu()))
}

// Parameters returns both linear layers' parameters.
func (f *FeedForward[B]) Parameters() []*Parameter[B] {
	return append(f.linear1.Parameters(), f.linear2.Parameters()...)
}

// StateDict exports both linear layers.
func (f *FeedForward[B]) StateDict() map[string]*tensor.RawTensor {
	out := make(map[string]*tensor.RawTensor)
	mergeStateDict(out, "linear1", f.linear1.StateDict())
	mergeStateDict(out, "linear2", f.linear2.StateDict())
	return out
}

// LoadStateDict restores both linear layers.
func (f *FeedForward[B]) LoadStateDict(state map[string]*tensor.RawTensor) error {
	if err := f.linear1.LoadStateDict(subStateDict(state, "linear1")); err != nil {
		return fmt.Errorf("nn: loading linear1: %w", err)
	}
	if err := f.linear2.LoadStateDict(subStateDict(state, "linear2")); err != nil {
		return fmt.Errorf("nn: loading linear2: %w", err)
	}
	return nil
}
