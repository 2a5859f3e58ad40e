// Package engine wires tokenizer, model, generator and conversation
// context into the single facade the CLI talks to.
package engine

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/loom-ml/loom/internal/chat"
	"github.com/loom-ml/loom/internal/generate"
	"github.com/loom-ml/loom/internal/serialization"
	"github.com/loom-ml/loom/internal/tensor"
	"github.com/loom-ml/loom/internal/tokenizer"
)

// Options bound generation and context behavior.
type Options struct {
	// MaxLen caps generated tokens per request.
	MaxLen int
	// MaxTurns caps stored conversation turns.
	MaxTurns int
	// MaxContextTokens is the per-prompt token budget for history.
	MaxContextTokens int
	// Logger receives request metadata; defaults to stderr.
	Logger *zerolog.Logger
}

func (o *Options) fill() {
	if o.MaxLen <= 0 {
		o.MaxLen = 64
	}
	if o.MaxTurns <= 0 {
		o.MaxTurns = 10
	}
	if o.MaxContextTokens <= 0 {
		o.MaxContextTokens = 512
	}
	if o.Logger == nil {
		logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
		o.Logger = &logger
	}
}

// Engine serves generation requests over one loaded model and tokenizer.
type Engine[B tensor.Backend] struct {
	tok     tokenizer.Tokenizer
	gen     *generate.Generator[B]
	ctx     *chat.ContextManager
	log     zerolog.Logger
	budget  int
}

// New loads the tokenizer and model checkpoint and assembles the engine.
// A failure at any stage returns an error and no engine; there is no
// partially initialized state.
func New[B tensor.Backend](backend B, tokenizerPath, modelPath string, opts Options) (*Engine[B], error) {
	opts.fill()

	tok, err := tokenizer.LoadBPE(tokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("engine: loading tokenizer: %w", err)
	}
	model, err := serialization.LoadModel(modelPath, backend)
	if err != nil {
		return nil, fmt.Errorf("engine: loading model: %w", err)
	}
	if tok.VocabSize() != model.Config().TgtVocabSize {
		return nil, fmt.Errorf("engine: tokenizer vocabulary %d does not match model target vocabulary %d",
			tok.VocabSize(), model.Config().TgtVocabSize)
	}

	return newWith[B](tok, generate.NewGenerator(model, opts.MaxLen, tok.BosID(), tok.EosID(), tok.PadID()), opts), nil
}

// newWith assembles an engine from already constructed parts.
func newWith[B tensor.Backend](tok tokenizer.Tokenizer, gen *generate.Generator[B], opts Options) *Engine[B] {
	opts.fill()
	counter := func(text string) int {
		ids, err := tok.Encode(text, false)
		if err != nil {
			return 0
		}
		return len(ids)
	}
	ctx := chat.NewContextManager(opts.MaxTurns, counter)
	logger := opts.Logger.With().Str("conversation", ctx.ID().String()).Logger()

	return &Engine[B]{
		tok:    tok,
		gen:    gen,
		ctx:    ctx,
		log:    logger,
		budget: opts.MaxContextTokens,
	}
}

// Generate produces a reply to input with the given decoding method.
// With useContext set, recent conversation turns are prepended to the
// prompt within the token budget and the exchange is recorded afterward.
func (e *Engine[B]) Generate(input string, method generate.Method, useContext bool) (string, error) {
	start := time.Now()

	prompt := input
	if useContext {
		prompt = e.ctx.Prompt(input, e.budget)
	}

	src, err := e.tok.Encode(prompt, true)
	if err != nil {
		return "", fmt.Errorf("engine: encoding prompt: %w", err)
	}

	out, err := e.gen.Generate(src, method)
	if err != nil {
		return "", fmt.Errorf("engine: generating: %w", err)
	}

	reply, err := e.tok.Decode(out, true)
	if err != nil {
		e.log.Error().Err(err).Msg("decoding generated tokens")
		return "", fmt.Errorf("engine: decoding reply: %w", err)
	}

	if useContext {
		e.ctx.AddTurn(input, reply)
	}
	e.log.Info().
		Str("method", fmt.Sprintf("%T", method)).
		Int("prompt_tokens", len(src)).
		Int("reply_tokens", len(out)).
		Dur("elapsed", time.Since(start)).
		Msg("generated reply")
	return reply, nil
}

// Chat is the conversational entry point: context-aware sampling with
// default parameters and a time-derived seed.
func (e *Engine[B]) Chat(input string) (string, error) {
	return e.Generate(input, generate.NewSample(time.Now().UnixNano()), true)
}

// ClearContext drops the conversation history.
func (e *Engine[B]) ClearContext() { e.ctx.Clear() }

// History returns the stored conversation turns.
func (e *Engine[B]) History() []chat.Turn { return e.ctx.History() }

// SetHistory restores a persisted conversation.
func (e *Engine[B]) SetHistory(turns []chat.Turn) { e.ctx.SetHistory(turns) }

// Tokenizer exposes the engine's tokenizer (token counting, debugging).
func (e *Engine[B]) Tokenizer() tokenizer.Tokenizer { return e.tok }
