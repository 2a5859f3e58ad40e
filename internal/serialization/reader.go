package serialization

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"

	"github.com/loom-ml/loom/internal/nn"
	"github.com/loom-ml/loom/internal/tensor"
)

// checkpoint is a fully validated in-memory checkpoint.
type checkpoint struct {
	header Header
	data   []byte // the data section
}

// readCheckpoint reads and validates everything up to (but not including)
// model reconstruction.
func readCheckpoint(path string) (*checkpoint, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("serialization: read %s: %w", path, err)
	}
	if len(raw) < headerSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTruncated, len(raw))
	}
	if !bytes.Equal(raw[0:4], Magic[:]) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMagic, raw[0:4])
	}
	if version := binary.LittleEndian.Uint32(raw[4:8]); version != FormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}

	headerLen := binary.LittleEndian.Uint64(raw[8:16])
	payloadLen := binary.LittleEndian.Uint64(raw[16:24])
	if uint64(len(raw)) != headerSize+payloadLen {
		return nil, fmt.Errorf("%w: have %d bytes, payload claims %d",
			ErrTruncated, len(raw), headerSize+payloadLen)
	}
	if alignUp(headerLen) > payloadLen {
		return nil, fmt.Errorf("%w: header length %d exceeds payload %d",
			ErrInvalidHeader, headerLen, payloadLen)
	}

	payload := raw[headerSize:]
	checksum := sha256.Sum256(payload)
	if !bytes.Equal(checksum[:], raw[24:56]) {
		return nil, ErrChecksumMismatch
	}

	var header Header
	if err := json.Unmarshal(payload[:headerLen], &header); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHeader, err)
	}

	data := payload[alignUp(headerLen):]
	if err := validateTensors(header.Tensors, uint64(len(data))); err != nil {
		return nil, err
	}
	return &checkpoint{header: header, data: data}, nil
}

// validateTensors checks every tensor's metadata against the data
// section: known dtype, consistent shape/size, in bounds, no overlaps.
func validateTensors(tensors []TensorMeta, dataLen uint64) error {
	var prevEnd uint64
	for i, meta := range tensors {
		if meta.Name == "" {
			return fmt.Errorf("%w: tensor %d has no name", ErrInvalidTensorMeta, i)
		}
		dtype, err := tensor.ParseDataType(meta.DType)
		if err != nil {
			return fmt.Errorf("%w: tensor %q: %v", ErrInvalidTensorMeta, meta.Name, err)
		}
		shape := tensor.Shape(meta.Shape)
		if err := shape.Validate(); err != nil {
			return fmt.Errorf("%w: tensor %q: %v", ErrInvalidTensorMeta, meta.Name, err)
		}
		if want := uint64(shape.NumElements() * dtype.Size()); want != meta.Size {
			return fmt.Errorf("%w: tensor %q: shape %v implies %d bytes, metadata says %d",
				ErrInvalidTensorMeta, meta.Name, shape, want, meta.Size)
		}
		if meta.Offset < prevEnd {
			return fmt.Errorf("%w: tensor %q overlaps its predecessor", ErrInvalidTensorMeta, meta.Name)
		}
		end := meta.Offset + meta.Size
		if end > dataLen {
			return fmt.Errorf("%w: tensor %q ends at %d, data section is %d bytes",
				ErrInvalidTensorMeta, meta.Name, end, dataLen)
		}
		prevEnd = end
	}
	return nil
}

// ReadHeader returns a checkpoint's validated header without
// reconstructing the model. Used by checkpoint inspection tooling.
func ReadHeader(path string) (*Header, error) {
	ckpt, err := readCheckpoint(path)
	if err != nil {
		return nil, err
	}
	return &ckpt.header, nil
}

// LoadModel reconstructs an inference-mode model from a checkpoint. The
// loaded model is output-equivalent to the one that was saved. Any
// validation failure aborts before a model exists; there is no partial
// state.
func LoadModel[B tensor.Backend](path string, backend B) (*nn.Seq2Seq[B], error) {
	ckpt, err := readCheckpoint(path)
	if err != nil {
		return nil, err
	}

	m := ckpt.header.Model
	cfg := nn.Seq2SeqConfig{
		SrcVocabSize:     m.SrcVocabSize,
		TgtVocabSize:     m.TgtVocabSize,
		DModel:           m.DModel,
		NumHeads:         m.NumHeads,
		NumEncoderLayers: m.NumEncoderLayers,
		NumDecoderLayers: m.NumDecoderLayers,
		FFDim:            m.FFDim,
		MaxLen:           m.MaxLen,
		Dropout:          m.Dropout,
		Training:         false,
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHeader, err)
	}

	state := make(map[string]*tensor.RawTensor, len(ckpt.header.Tensors))
	for _, meta := range ckpt.header.Tensors {
		dtype, _ := tensor.ParseDataType(meta.DType)
		raw, err := tensor.NewRaw(tensor.Shape(meta.Shape), dtype, backend.Device())
		if err != nil {
			return nil, fmt.Errorf("%w: tensor %q: %v", ErrInvalidTensorMeta, meta.Name, err)
		}
		copy(raw.Data(), ckpt.data[meta.Offset:meta.Offset+meta.Size])
		state[meta.Name] = raw
	}

	model := nn.NewSeq2Seq(cfg, backend)
	if err := model.LoadStateDict(state); err != nil {
		return nil, fmt.Errorf("serialization: restoring parameters: %w", err)
	}
	return model, nil
}
