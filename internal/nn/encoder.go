package nn

import (
	"fmt"

	"github.com/loom-ml/loom/internal/tensor"
)

// EncoderLayer is one post-norm encoder block: self-attention with a
// residual connection and LayerNorm, then feed-forward with the same.
type EncoderLayer[B tensor.Backend] struct {
	selfAttn *MultiHeadAttention[B]
	ff       *FeedForward[B]
	norm1    *LayerNorm[B]
	norm2    *LayerNorm[B]
	drop     *Dropout[B]
}

// NewEncoderLayer creates one encoder block.
func NewEncoderLayer[B tensor.Backend](dModel, numHeads, ffDim int, dropout float32, training bool, backend B) *EncoderLayer[B] {
	return &EncoderLayer[B]{
		selfAttn: NewMultiHeadAttention(dModel, numHeads, dropout, training, backend),
		ff:       NewFeedForward(dModel, ffDim, dropout, training, backend),
		norm1:    NewLayerNorm(dModel, backend),
		norm2:    NewLayerNorm(dModel, backend),
		drop:     NewDropout[B](dropout, training),
	}
}

// Forward runs the block. Post-norm ordering: sublayer output is dropped
// out, added to the input, then normalized.
func (l *EncoderLayer[B]) Forward(x, mask *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	attnOut, _ := l.selfAttn.Forward(x, x, x, mask)
	x = l.norm1.Forward(x.Add(l.drop.Forward(attnOut)))

	ffOut := l.ff.Forward(x)
	return l.norm2.Forward(x.Add(l.drop.Forward(ffOut)))
}

// StateDict exports the block.
func (l *EncoderLayer[B]) StateDict() map[string]*tensor.RawTensor {
	out := make(map[string]*tensor.RawTensor)
	mergeStateDict(out, "self_attn", l.selfAttn.StateDict())
	mergeStateDict(out, "ff", l.ff.StateDict())
	mergeStateDict(out, "norm1", l.norm1.StateDict())
	mergeStateDict(out, "norm2", l.norm2.StateDict())
	return out
}

// LoadStateDict restores the block.
func (l *EncoderLayer[B]) LoadStateDict(state map[string]*tensor.RawTensor) error {
	if err := l.selfAttn.LoadStateDict(subStateDict(state, "self_attn")); err != nil {
		return err
	}
	if err := l.ff.LoadStateDict(subStateDict(state, "ff")); err != nil {
		return err
	}
	if err := l.norm1.LoadStateDict(subStateDict(state, "norm1")); err != nil {
		return err
	}
	return l.norm2.LoadStateDict(subStateDict(state, "norm2"))
}

// Parameters returns all block parameters.
func (l *EncoderLayer[B]) Parameters() []*Parameter[B] {
	out := l.selfAttn.Parameters()
	out = append(out, l.ff.Parameters()...)
	out = append(out, l.norm1.Parameters()...)
	out = append(out, l.norm2.Parameters()...)
	return out
}

// Encoder is the full encoder stack: scaled token embedding, positional
// encoding, dropout, N encoder layers and a final LayerNorm.
type Encoder[B tensor.Backend] struct {
	embed  *TokenEmbedding[B]
	pos    *SinusoidalPositionalEncoding[B]
	drop   *Dropout[B]
	layers []*EncoderLayer[B]
	norm   *LayerNorm[B]
}

// NewEncoder creates the encoder stack.
func NewEncoder[B tensor.Backend](vocabSize, dModel, numLayers, numHeads, ffDim, maxLen int, dropout float32, training bool, backend B) *Encoder[B] {
	layers := make([]*EncoderLayer[B], numLayers)
	for i := range layers {
		layers[i] = NewEncoderLayer(dModel, numHeads, ffDim, dropout, training, backend)
	}
	return &Encoder[B]{
		embed:  NewTokenEmbedding(vocabSize, dModel, backend),
		pos:    NewSinusoidalPositionalEncoding(maxLen, dModel, backend),
		drop:   NewDropout[B](dropout, training),
		layers: layers,
		norm:   NewLayerNorm(dModel, backend),
	}
}

// Forward encodes src [batch, srcLen] into memory [batch, srcLen, dModel].
// mask is the source padding mask (nil to attend everywhere).
func (e *Encoder[B]) Forward(src *tensor.Tensor[int32, B], mask *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	seqLen := src.Shape()[1]
	x := e.embed.Forward(src).Add(e.pos.Forward(seqLen))
	x = e.drop.Forward(x)
	for _, layer := range e.layers {
		x = layer.Forward(x, mask)
	}
	return e.norm.Forward(x)
}

// StateDict exports the stack.
func (e *Encoder[B]) StateDict() map[string]*tensor.RawTensor {
	out := make(map[string]*tensor.RawTensor)
	mergeStateDict(out, "embedding", e.embed.StateDict())
	for i, layer := range e.layers {
		mergeStateDict(out, fmt.Sprintf("layers.%d", i), layer.StateDict())
	}
	mergeStateDict(out, "norm", e.norm.StateDict())
	return out
}

// LoadStateDict restores the stack.
func (e *Encoder[B]) LoadStateDict(state map[string]*tensor.RawTensor) error {
	if err := e.embed.LoadStateDict(subStateDict(state, "embedding")); err != nil {
		return err
	}
	for i, layer := range e.layers {
		if err := layer.LoadStateDict(subStateDict(state, fmt.Sprintf("layers.%d", i))); err != nil {
			return fmt.Errorf("nn: encoder layer %d: %w", i, err)
		}
	}
	return e.norm.LoadStateDict(subStateDict(state, "norm"))
}

// Parameters returns all stack parameters.
func (e *Encoder[B]) Parameters() []*Parameter[B] {
	out := e.embed.Parameters()
	for _, layer := range e.layers {
		out = append(out, layer.Parameters()...)
	}
	return append(out, e.norm.Parameters()...)
}
