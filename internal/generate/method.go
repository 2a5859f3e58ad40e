package generate

import "fmt"

// Method selects a decoding strategy for one generation request. The set
// is closed: exactly Greedy, BeamSearch and Sample exist, and the
// generator dispatches on the concrete type once per request.
type Method interface {
	// Validate rejects invalid parameters before any model computation.
	Validate() error

	method()
}

// Greedy picks the argmax token at every step. Deterministic for a given
// model and input; ties resolve to the lowest token ID.
type Greedy struct{}

// Validate always succeeds; Greedy has no parameters.
func (Greedy) Validate() error { return nil }

func (Greedy) method() {}

// BeamSearch keeps the BeamSize highest-scoring partial sequences,
// ranking them by cumulative log-probability divided by
// length^LengthPenalty. A beam that emits EOS is finished and its
// penalized score frozen; the best sequence over finished and open beams
// wins. BeamSize 1 reproduces Greedy exactly.
type BeamSearch struct {
	BeamSize      int
	LengthPenalty float64
}

// NewBeamSearch returns the default configuration: beam size 3, length
// penalty 0.6.
func NewBeamSearch() BeamSearch {
	return BeamSearch{BeamSize: 3, LengthPenalty: 0.6}
}

// Validate checks BeamSize >= 1 and LengthPenalty >= 0.
func (b BeamSearch) Validate() error {
	if b.BeamSize < 1 {
		return fmt.Errorf("generate: beam size must be >= 1, got %d", b.BeamSize)
	}
	if b.LengthPenalty < 0 {
		return fmt.Errorf("generate: length penalty must be >= 0, got %v", b.LengthPenalty)
	}
	return nil
}

func (BeamSearch) method() {}

// Sample draws each token from the temperature-scaled distribution after
// top-k and nucleus (top-p) filtering. At least one token always survives
// filtering, so TopP = 0 degenerates to greedy. The Seed fixes the random
// stream, making sampled output reproducible.
type Sample struct {
	Temperature float32
	TopK        int     // 0 disables top-k filtering
	TopP        float32 // 1 disables nucleus filtering
	Seed        int64
}

// NewSample returns the default configuration: temperature 1, no top-k,
// nucleus 0.9.
func NewSample(seed int64) Sample {
	return Sample{Temperature: 1, TopP: 0.9, Seed: seed}
}

// Validate checks Temperature > 0, TopK >= 0 and TopP in [0, 1].
// A non-positive temperature is rejected, not clamped.
func (s Sample) Validate() error {
	if s.Temperature <= 0 {
		return fmt.Errorf("generate: temperature must be > 0, got %v", s.Temperature)
	}
	if s.TopK < 0 {
		return fmt.Errorf("generate: top-k must be >= 0, got %d", s.TopK)
	}
	if s.TopP < 0 || s.TopP > 1 {
		return fmt.Errorf("generate: top-p must be in [0, 1], got %v", s.TopP)
	}
	return nil
}

func (Sample) method() {}
