// Package nn implements the model stack: embeddings, attention,
// feed-forward blocks, post-norm encoder/decoder layers and the full
// sequence-to-sequence model. Construction errors (bad hyperparameters)
// panic; runtime data errors are the caller's to prevent.
package nn

import (
	"fmt"

	"github.com/loom-ml/loom/internal/tensor"
)

// Seq2SeqConfig holds the model hyperparameters.
type Seq2SeqConfig struct {
	SrcVocabSize     int
	TgtVocabSize     int
	DModel           int
	NumHeads         int
	NumEncoderLayers int
	NumDecoderLayers int
	FFDim            int
	MaxLen           int
	Dropout          float32

	// Training selects the execution mode the model is built for.
	// Inference models have identity dropout.
	Training bool
}

// Validate reports the first invalid hyperparameter, nil when the config
// can construct a model.
func (c Seq2SeqConfig) Validate() error {
	switch {
	case c.SrcVocabSize <= 0:
		return fmt.Errorf("nn: SrcVocabSize must be positive, got %d", c.SrcVocabSize)
	case c.TgtVocabSize <= 0:
		return fmt.Errorf("nn: TgtVocabSize must be positive, got %d", c.TgtVocabSize)
	case c.DModel <= 0:
		return fmt.Errorf("nn: DModel must be positive, got %d", c.DModel)
	case c.NumHeads <= 0:
		return fmt.Errorf("nn: NumHeads must be positive, got %d", c.NumHeads)
	case c.DModel%c.NumHeads != 0:
		return fmt.Errorf("nn: DModel %d not divisible by NumHeads %d", c.DModel, c.NumHeads)
	case c.NumEncoderLayers <= 0 || c.NumDecoderLayers <= 0:
		return fmt.Errorf("nn: layer counts must be positive, got enc=%d dec=%d",
			c.NumEncoderLayers, c.NumDecoderLayers)
	case c.FFDim <= 0:
		return fmt.Errorf("nn: FFDim must be positive, got %d", c.FFDim)
	case c.MaxLen <= 0:
		return fmt.Errorf("nn: MaxLen must be positive, got %d", c.MaxLen)
	case c.Dropout < 0 || c.Dropout >= 1:
		return fmt.Errorf("nn: Dropout must be in [0, 1), got %v", c.Dropout)
	}
	return nil
}

// Seq2Seq is the full encoder-decoder model with a projection from
// decoder states to target-vocabulary logits.
type Seq2Seq[B tensor.Backend] struct {
	cfg     Seq2SeqConfig
	encoder *Encoder[B]
	decoder *Decoder[B]
	proj    *Linear[B]
	backend B
}

// NewSeq2Seq builds the model. Panics on invalid hyperparameters.
func NewSeq2Seq[B tensor.Backend](cfg Seq2SeqConfig, backend B) *Seq2Seq[B] {
	if err := cfg.Validate(); err != nil {
		panic(err)
	}
	return &Seq2Seq[B]{
		cfg: cfg,
		encoder: NewEncoder(cfg.SrcVocabSize, cfg.DModel, cfg.NumEncoderLayers, cfg.NumHeads,
			cfg.FFDim, cfg.MaxLen, cfg.Dropout, cfg.Training, backend),
		decoder: NewDecoder(cfg.TgtVocabSize, cfg.DModel, cfg.NumDecoderLayers, cfg.NumHeads,
			cfg.FFDim, cfg.MaxLen, cfg.Dropout, cfg.Training, backend),
		proj:    NewLinear(cfg.DModel, cfg.TgtVocabSize, backend),
		backend: backend,
	}
}

// Config returns the hyperparameters the model was built with.
func (m *Seq2Seq[B]) Config() Seq2SeqConfig { return m.cfg }

// Backend returns the compute backend.
func (m *Seq2Seq[B]) Backend() B { return m.backend }

// Encode runs the encoder stack.
func (m *Seq2Seq[B]) Encode(src *tensor.Tensor[int32, B], srcMask *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	return m.encoder.Forward(src, srcMask)
}

// Decode runs the decoder stack against encoder memory.
func (m *Seq2Seq[B]) Decode(tgt *tensor.Tensor[int32, B], memory, srcMask, tgtMask *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	return m.decoder.Forward(tgt, memory, srcMask, tgtMask)
}

// Project maps decoder states [batch, seq, dModel] to logits
// [batch, seq, tgtVocab].
func (m *Seq2Seq[B]) Project(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	return m.proj.Forward(x)
}

// Forward is the full pass: encode, decode, project. This is the surface
// a training loop drives; it owns no optimizer or loss state.
func (m *Seq2Seq[B]) Forward(src, tgt *tensor.Tensor[int32, B], srcMask, tgtMask *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	memory := m.Encode(src, srcMask)
	return m.Project(m.Decode(tgt, memory, srcMask, tgtMask))
}

// padIndicator builds a [batch, seq] float mask with 1 where ids differ
// from padID.
func padIndicator[B tensor.Backend](ids *tensor.Tensor[int32, B], padID int32, backend B) *tensor.Tensor[float32, B] {
	data := ids.Data()
	out := make([]float32, len(data))
	for i, id := range data {
		if id != padID {
			out[i] = 1
		}
	}
	return tensor.MustFromSlice(out, ids.Shape().Clone(), backend)
}

// GenerateMasks derives the four standard masks from ID tensors:
//
//	srcMask [batch, 1, 1, srcLen]       source padding, for encoder
//	                                    self-attention and cross-attention
//	tgtMask [batch, 1, tgtLen, tgtLen]  causal AND target padding, for
//	                                    decoder self-attention
//	srcPad  [batch, srcLen]             raw source padding indicator
//	tgtPad  [batch, tgtLen]             raw target padding indicator
func (m *Seq2Seq[B]) GenerateMasks(src, tgt *tensor.Tensor[int32, B], padID int32) (srcMask, tgtMask, srcPad, tgtPad *tensor.Tensor[float32, B]) {
	srcPad = padIndicator(src, padID, m.backend)
	tgtPad = padIndicator(tgt, padID, m.backend)

	srcMask = srcPad.Unsqueeze(1).Unsqueeze(2)

	tgtLen := tgt.Shape()[1]
	causal := CausalMask(tgtLen, m.backend)
	// [batch, 1, 1, tgtLen] * [1, 1, tgtLen, tgtLen] broadcasts to the
	// intersection of padding and causal constraints.
	tgtMask = tgtPad.Unsqueeze(1).Unsqueeze(2).Mul(causal)
	return srcMask, tgtMask, srcPad, tgtPad
}

// StateDict exports every parameter under dotted names
// ("encoder.layers.0.self_attn.wq.weight", ...).
func (m *Seq2Seq[B]) StateDict() map[string]*tensor.RawTensor {
	out := make(map[string]*tensor.RawTensor)
	mergeStateDict(out, "encoder", m.encoder.StateDict())
	mergeStateDict(out, "decoder", m.decoder.StateDict())
	mergeStateDict(out, "projection", m.proj.StateDict())
	return out
}

// LoadStateDict restores every parameter, failing on missing entries,
// unexpected entries, or shape/dtype mismatches.
func (m *Seq2Seq[B]) LoadStateDict(state map[string]*tensor.RawTensor) error {
	own := m.StateDict()
	for k := range state {
		if _, ok := own[k]; !ok {
			return fmt.Errorf("nn: state dict has unexpected entry %q", k)
		}
	}
	if err := m.encoder.LoadStateDict(subStateDict(state, "encoder")); err != nil {
		return fmt.Errorf("nn: encoder: %w", err)
	}
	if err := m.decoder.LoadStateDict(subStateDict(state, "decoder")); err != nil {
		return fmt.Errorf("nn: decoder: %w", err)
	}
	if err := m.proj.LoadStateDict(subStateDict(state, "projection")); err != nil {
		return fmt.Errorf("nn: projection: %w", err)
	}
	return nil
}

// Parameters returns every parameter in the model.
func (m *Seq2Seq[B]) Parameters() []*Parameter[B] {
	out := m.encoder.Parameters()
	out = append(out, m.decoder.Parameters()...)
	return append(out, m.proj.Parameters()...)
}
