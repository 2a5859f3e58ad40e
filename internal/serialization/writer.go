package serialization

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/loom-ml/loom/internal/nn"
	"github.com/loom-ml/loom/internal/tensor"
)

// SaveModel writes the model's parameters and hyperparameters to path.
// The write is atomic: data lands in a temp file that is renamed over
// path only after a complete, flushed write.
func SaveModel[B tensor.Backend](path string, model *nn.Seq2Seq[B]) error {
	cfg := model.Config()
	state := model.StateDict()

	names := make([]string, 0, len(state))
	for name := range state {
		names = append(names, name)
	}
	sort.Strings(names)

	header := Header{
		CreatedAt: time.Now().UTC(),
		Model: ModelMeta{
			SrcVocabSize:     cfg.SrcVocabSize,
			TgtVocabSize:     cfg.TgtVocabSize,
			DModel:           cfg.DModel,
			NumHeads:         cfg.NumHeads,
			NumEncoderLayers: cfg.NumEncoderLayers,
			NumDecoderLayers: cfg.NumDecoderLayers,
			FFDim:            cfg.FFDim,
			MaxLen:           cfg.MaxLen,
			Dropout:          cfg.Dropout,
		},
	}

	var offset uint64
	for _, name := range names {
		raw := state[name]
		offset = alignUp(offset)
		header.Tensors = append(header.Tensors, TensorMeta{
			Name:   name,
			DType:  raw.DType().String(),
			Shape:  raw.Shape().Clone(),
			Offset: offset,
			Size:   uint64(raw.ByteSize()),
		})
		offset += uint64(raw.ByteSize())
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("serialization: marshal header: %w", err)
	}

	// Assemble the payload in memory so the checksum can precede it in
	// the file. Checkpoints at this model scale are small.
	var payload bytes.Buffer
	payload.Write(headerJSON)
	payload.Write(make([]byte, alignUp(uint64(len(headerJSON)))-uint64(len(headerJSON))))
	var written uint64
	for i, name := range names {
		meta := header.Tensors[i]
		payload.Write(make([]byte, meta.Offset-written))
		payload.Write(state[name].Data())
		written = meta.Offset + meta.Size
	}

	checksum := sha256.Sum256(payload.Bytes())

	fixed := make([]byte, headerSize)
	copy(fixed[0:4], Magic[:])
	binary.LittleEndian.PutUint32(fixed[4:8], FormatVersion)
	binary.LittleEndian.PutUint64(fixed[8:16], uint64(len(headerJSON)))
	binary.LittleEndian.PutUint64(fixed[16:24], uint64(payload.Len()))
	copy(fixed[24:56], checksum[:])

	return writeAtomic(path, fixed, payload.Bytes())
}

func writeAtomic(path string, chunks ...[]byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("serialization: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	for _, chunk := range chunks {
		if _, err := tmp.Write(chunk); err != nil {
			tmp.Close()
			return fmt.Errorf("serialization: write %s: %w", tmp.Name(), err)
		}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("serialization: sync %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("serialization: close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("serialization: rename to %s: %w", path, err)
	}
	return nil
}
