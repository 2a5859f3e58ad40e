package engine

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loom-ml/loom/internal/backend/cpu"
	"github.com/loom-ml/loom/internal/chat"
	"github.com/loom-ml/loom/internal/generate"
	"github.com/loom-ml/loom/internal/nn"
	"github.com/loom-ml/loom/internal/serialization"
	"github.com/loom-ml/loom/internal/tokenizer"
)

// buildArtifacts trains a tokenizer and saves a matching model
// checkpoint, returning both paths.
func buildArtifacts(t *testing.T) (tokPath, modelPath string) {
	t.Helper()
	dir := t.TempDir()

	tok := tokenizer.NewBPE(40)
	tok.Train([]string{"the cat sat on the mat", "the cat ran away", "hello there friend"})
	tokPath = filepath.Join(dir, "tokenizer.json")
	require.NoError(t, tok.Save(tokPath))

	model := nn.NewSeq2Seq(nn.Seq2SeqConfig{
		SrcVocabSize:     tok.VocabSize(),
		TgtVocabSize:     tok.VocabSize(),
		DModel:           8,
		NumHeads:         2,
		NumEncoderLayers: 1,
		NumDecoderLayers: 1,
		FFDim:            16,
		MaxLen:           64,
	}, cpu.New())
	modelPath = filepath.Join(dir, "model.loom")
	require.NoError(t, serialization.SaveModel(modelPath, model))
	return tokPath, modelPath
}

func testEngine(t *testing.T) *Engine[*cpu.Backend] {
	t.Helper()
	tokPath, modelPath := buildArtifacts(t)
	logger := zerolog.Nop()
	eng, err := New(cpu.New(), tokPath, modelPath, Options{
		MaxLen:           8,
		MaxTurns:         4,
		MaxContextTokens: 64,
		Logger:           &logger,
	})
	require.NoError(t, err)
	return eng
}

func TestEngineGenerateGreedy(t *testing.T) {
	eng := testEngine(t)

	a, err := eng.Generate("the cat", generate.Greedy{}, false)
	require.NoError(t, err)
	b, err := eng.Generate("the cat", generate.Greedy{}, false)
	require.NoError(t, err)
	assert.Equal(t, a, b, "greedy replies must be deterministic")
}

func TestEngineContextRecording(t *testing.T) {
	eng := testEngine(t)

	require.Empty(t, eng.History())
	_, err := eng.Generate("hello there", generate.Greedy{}, true)
	require.NoError(t, err)
	require.Len(t, eng.History(), 1)
	assert.Equal(t, "hello there", eng.History()[0].User)

	// Context-free requests leave history alone.
	_, err = eng.Generate("the cat", generate.Greedy{}, false)
	require.NoError(t, err)
	assert.Len(t, eng.History(), 1)

	eng.ClearContext()
	assert.Empty(t, eng.History())
}

func TestEngineSetHistory(t *testing.T) {
	eng := testEngine(t)
	eng.SetHistory([]chat.Turn{
		{User: "earlier question", Assistant: "earlier answer"},
	})
	require.Len(t, eng.History(), 1)
	assert.Equal(t, "earlier question", eng.History()[0].User)
}

func TestEngineChatSeedsAndRecords(t *testing.T) {
	eng := testEngine(t)

	reply, err := eng.Chat("hello")
	require.NoError(t, err)
	_ = reply // replies from an untrained model are arbitrary text
	assert.Len(t, eng.History(), 1)
}

func TestEngineRejectsInvalidMethod(t *testing.T) {
	eng := testEngine(t)
	_, err := eng.Generate("hello", generate.Sample{Temperature: 0}, false)
	assert.Error(t, err)
}

func TestEngineLoadFailures(t *testing.T) {
	tokPath, modelPath := buildArtifacts(t)

	_, err := New(cpu.New(), filepath.Join(t.TempDir(), "absent.json"), modelPath, Options{})
	assert.Error(t, err)

	_, err = New(cpu.New(), tokPath, filepath.Join(t.TempDir(), "absent.loom"), Options{})
	assert.Error(t, err)
}

func TestEngineVocabularyMismatch(t *testing.T) {
	tokPath, _ := buildArtifacts(t)

	model := nn.NewSeq2Seq(nn.Seq2SeqConfig{
		SrcVocabSize:     5,
		TgtVocabSize:     5,
		DModel:           8,
		NumHeads:         2,
		NumEncoderLayers: 1,
		NumDecoderLayers: 1,
		FFDim:            16,
		MaxLen:           64,
	}, cpu.New())
	modelPath := filepath.Join(t.TempDir(), "tiny.loom")
	require.NoError(t, serialization.SaveModel(modelPath, model))

	_, err := New(cpu.New(), tokPath, modelPath, Options{})
	assert.Error(t, err)
}
