package nn

import (
	"fmt"

	"github.com/loom-ml/loom/internal/tensor"
)

// Parameter is a named learnable tensor.
type Parameter[B tensor.Backend] struct {
	name   string
	tensor *tensor.Tensor[float32, B]
}

// NewParameter wraps a tensor as a named parameter.
func NewParameter[B tensor.Backend](name string, t *tensor.Tensor[float32, B]) *Parameter[B] {
	return &Parameter[B]{name: name, tensor: t}
}

// Name returns the parameter's local name ("weight", "bias", ...).
func (p *Parameter[B]) Name() string { return p.name }

// Tensor returns the underlying tensor.
func (p *Parameter[B]) Tensor() *tensor.Tensor[float32, B] { return p.tensor }

// load copies raw data into the parameter after shape and dtype checks.
func (p *Parameter[B]) load(raw *tensor.RawTensor) error {
	dst := p.tensor.Raw()
	if raw.DType() != dst.DType() {
		return fmt.Errorf("nn: parameter %q dtype mismatch: have %s, want %s",
			p.name, raw.DType(), dst.DType())
	}
	if !raw.Shape().Equal(dst.Shape()) {
		return fmt.Errorf("nn: parameter %q shape mismatch: have %v, want %v",
			p.name, raw.Shape(), dst.Shape())
	}
	copy(dst.Data(), raw.Data())
	return nil
}

// mergeStateDict copies src entries into dst under a dotted prefix.
func mergeStateDict(dst map[string]*tensor.RawTensor, prefix string, src map[string]*tensor.RawTensor) {
	for k, v := range src {
		dst[prefix+"."+k] = v
	}
}

// subStateDict extracts the entries under a dotted prefix, stripping it.
func subStateDict(src map[string]*tensor.RawTensor, prefix string) map[string]*tensor.RawTensor {
	out := make(map[string]*tensor.RawTensor)
	for k, v := range src {
		if len(k) > len(prefix)+1 && k[:len(prefix)] == prefix && k[len(prefix)] == '.' {
			out[k[len(prefix)+1:]] = v
		}
	}
	return out
}

// loadParams resolves each named parameter from a state dict, failing on
// missing or unexpected entries.
func loadParams[B tensor.Backend](state map[string]*tensor.RawTensor, params ...*Parameter[B]) error {
	seen := make(map[string]bool, len(params))
	for _, p := range params {
		raw, ok := state[p.Name()]
		if !ok {
			return fmt.Errorf("nn: state dict missing parameter %q", p.Name())
		}
		if err := p.load(raw); err != nil {
			return err
		}
		seen[p.Name()] = true
	}
	for k := range state {
		if !seen[k] {
			return fmt.Errorf("nn: state dict has unexpected entry %q", k)
		}
	}
	return nil
}
