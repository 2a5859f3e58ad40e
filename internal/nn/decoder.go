package nn

import (
	"fmt"

	"github.com/loom-ml/loom/internal/tensor"
)

// DecoderLayer is one post-norm decoder block: masked self-attention,
// cross-attention over the encoder memory, then feed-forward, each with a
// residual connection and LayerNorm.
type DecoderLayer[B tensor.Backend] struct {
	selfAttn  *MultiHeadAttention[B]
	crossAttn *MultiHeadAttention[B]
	ff        *FeedForward[B]
	norm1     *LayerNorm[B]
	norm2     *LayerNorm[B]
	norm3     *LayerNorm[B]
	drop      *Dropout[B]
}

// NewDecoderLayer creates one decoder block.
func NewDecoderLayer[B tensor.Backend](dModel, numHeads, ffDim int, dropout float32, training bool, backend B) *DecoderLayer[B] {
	return &DecoderLayer[B]{
		selfAttn:  NewMultiHeadAttention(dModel, numHeads, dropout, training, backend),
		crossAttn: NewMultiHeadAttention(dModel, numHeads, dropout, training, backend),
		ff:        NewFeedForward(dModel, ffDim, dropout, training, backend),
		norm1:     NewLayerNorm(dModel, backend),
		norm2:     NewLayerNorm(dModel, backend),
		norm3:     NewLayerNorm(dModel, backend),
		drop:      NewDropout[B](dropout, training),
	}
}

// Forward runs the block. tgtMask combines the causal and target padding
// masks; srcMask is the source padding mask for cross-attention.
func (l *DecoderLayer[B]) Forward(x, memory, srcMask, tgtMask *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	selfOut, _ := l.selfAttn.Forward(x, x, x, tgtMask)
	x = l.norm1.Forward(x.Add(l.drop.Forward(selfOut)))

	crossOut, _ := l.crossAttn.Forward(x, memory, memory, srcMask)
	x = l.norm2.Forward(x.Add(l.drop.Forward(crossOut)))

	ffOut := l.ff.Forward(x)
	return l.norm3.Forward(x.Add(l.drop.Forward(ffOut)))
}

// StateDict exports the block.
func (l *DecoderLayer[B]) StateDict() map[string]*tensor.RawTensor {
	out := make(map[string]*tensor.RawTensor)
	mergeStateDict(out, "self_attn", l.selfAttn.StateDict())
	mergeStateDict(out, "cross_attn", l.crossAttn.StateDict())
	mergeStateDict(out, "ff", l.ff.StateDict())
	mergeStateDict(out, "norm1", l.norm1.StateDict())
	mergeStateDict(out, "norm2", l.norm2.StateDict())
	mergeStateDict(out, "norm3", l.norm3.StateDict())
	return out
}

// LoadStateDict restores the block.
func (l *DecoderLayer[B]) LoadStateDict(state map[string]*tensor.RawTensor) error {
	if err := l.selfAttn.LoadStateDict(subStateDict(state, "self_attn")); err != nil {
		return err
	}
	if err := l.crossAttn.LoadStateDict(subStateDict(state, "cross_attn")); err != nil {
		return err
	}
	if err := l.ff.LoadStateDict(subStateDict(state, "ff")); err != nil {
		return err
	}
	if err := l.norm1.LoadStateDict(subStateDict(state, "norm1")); err != nil {
		return err
	}
	if err := l.norm2.LoadStateDict(subStateDict(state, "norm2")); err != nil {
		return err
	}
	return l.norm3.LoadStateDict(subStateDict(state, "norm3"))
}

// Parameters returns all block parameters.
func (l *DecoderLayer[B]) Parameters() []*Parameter[B] {
	out := l.selfAttn.Parameters()
	out = append(out, l.crossAttn.Parameters()...)
	out = append(out, l.ff.Parameters()...)
	out = append(out, l.norm1.Parameters()...)
	out = append(out, l.norm2.Parameters()...)
	out = append(out, l.norm3.Parameters()...)
	return out
}

// Decoder is the full decoder stack: scaled token embedding, positional
// encoding, dropout, N decoder layers and a final LayerNorm.
type Decoder[B tensor.Backend] struct {
	embed  *TokenEmbedding[B]
	pos    *SinusoidalPositionalEncoding[B]
	drop   *Dropout[B]
	layers []*DecoderLayer[B]
	norm   *LayerNorm[B]
}

// NewDecoder creates the decoder stack.
func NewDecoder[B tensor.Backend](vocabSize, dModel, numLayers, numHeads, ffDim, maxLen int, dropout float32, training bool, backend B) *Decoder[B] {
	layers := make([]*DecoderLayer[B], numLayers)
	for i := range layers {
		layers[i] = NewDecoderLayer(dModel, numHeads, ffDim, dropout, training, backend)
	}
	return &Decoder[B]{
		embed:  NewTokenEmbedding(vocabSize, dModel, backend),
		pos:    NewSinusoidalPositionalEncoding(maxLen, dModel, backend),
		drop:   NewDropout[B](dropout, training),
		layers: layers,
		norm:   NewLayerNorm(dModel, backend),
	}
}

// Forward decodes tgt [batch, tgtLen] against encoder memory into
// [batch, tgtLen, dModel].
func (d *Decoder[B]) Forward(tgt *tensor.Tensor[int32, B], memory, srcMask, tgtMask *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	seqLen := tgt.Shape()[1]
	x := d.embed.Forward(tgt).Add(d.pos.Forward(seqLen))
	x = d.drop.Forward(x)
	for _, layer := range d.layers {
		x = layer.Forward(x, memory, srcMask, tgtMask)
	}
	return d.norm.Forward(x)
}

// StateDict exports the stack.
func (d *Decoder[B]) StateDict() map[string]*tensor.RawTensor {
	out := make(map[string]*tensor.RawTensor)
	mergeStateDict(out, "embedding", d.embed.StateDict())
	for i, layer := range d.layers {
		mergeStateDict(out, fmt.Sprintf("layers.%d", i), layer.StateDict())
	}
	mergeStateDict(out, "norm", d.norm.StateDict())
	return out
}

// LoadStateDict restores the stack.
func (d *Decoder[B]) LoadStateDict(state map[string]*tensor.RawTensor) error {
	if err := d.embed.LoadStateDict(subStateDict(state, "embedding")); err != nil {
		return err
	}
	for i, layer := range d.layers {
		if err := layer.LoadStateDict(subStateDict(state, fmt.Sprintf("layers.%d", i))); err != nil {
			return fmt.Errorf("nn: decoder layer %d: %w", i, err)
		}
	}
	return d.norm.LoadStateDict(subStateDict(state, "norm"))
}

// Parameters returns all stack parameters.
func (d *Decoder[B]) Parameters() []*Parameter[B] {
	out := d.embed.Parameters()
	for _, layer := range d.layers {
		out = append(out, layer.Parameters()...)
	}
	return append(out, d.norm.Parameters()...)
}
