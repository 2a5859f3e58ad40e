// Package serialization persists trained models as a single binary
// checkpoint file.
//
// Layout:
//
//	[0:4)    magic "LOOM"
//	[4:8)    format version, uint32 little-endian
//	[8:16)   header JSON length, uint64 little-endian
//	[16:24)  payload length (header + padding + data), uint64
//	[24:56)  SHA-256 of the payload
//	[56:64)  reserved
//	[64:...) payload: header JSON, zero padding to a 64-byte boundary,
//	         then tensor data (each tensor 64-byte aligned)
//
// The header describes the model hyperparameters and every tensor's
// name, dtype, shape and location. Loading validates magic, version,
// checksum and metadata before any tensor is touched; a checkpoint
// either loads completely or not at all.
package serialization

import "time"

// Magic identifies checkpoint files.
var Magic = [4]byte{'L', 'O', 'O', 'M'}

const (
	// FormatVersion is the only revision this build reads and writes.
	FormatVersion uint32 = 1
	// headerSize is the fixed preamble before the payload.
	headerSize = 64
	// alignment pads the header and each tensor to this boundary.
	alignment = 64
)

// ModelMeta mirrors nn.Seq2SeqConfig in the header JSON.
type ModelMeta struct {
	SrcVocabSize     int     `json:"src_vocab_size"`
	TgtVocabSize     int     `json:"tgt_vocab_size"`
	DModel           int     `json:"d_model"`
	NumHeads         int     `json:"num_heads"`
	NumEncoderLayers int     `json:"num_encoder_layers"`
	NumDecoderLayers int     `json:"num_decoder_layers"`
	FFDim            int     `json:"ff_dim"`
	MaxLen           int     `json:"max_len"`
	Dropout          float32 `json:"dropout"`
}

// TensorMeta locates one tensor inside the data section.
type TensorMeta struct {
	Name   string `json:"name"`
	DType  string `json:"dtype"`
	Shape  []int  `json:"shape"`
	Offset uint64 `json:"offset"` // from the start of the data section
	Size   uint64 `json:"size"`   // bytes
}

// Header is the checkpoint's JSON metadata.
type Header struct {
	CreatedAt time.Time    `json:"created_at"`
	Model     ModelMeta    `json:"model"`
	Tensors   []TensorMeta `json:"tensors"`
}

// alignUp rounds n up to the next multiple of alignment.
func alignUp(n uint64) uint64 {
	if rem := n % alignment; rem != 0 {
		return n + alignment - rem
	}
	return n
}
