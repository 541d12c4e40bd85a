// Package nn implements the neural network building blocks used by the
// speech layers:
//   - Module interface and Parameter with gradient slots
//   - Linear: fully connected projection over the last axis
//   - BatchNorm and NormalizeOverAxis: per-channel normalization on any axis
//   - Activations: Identity, ReLU, LeakyReLU
//   - Dropout
//   - CrossEntropyLoss and Accuracy
//
// Forward methods take an *autodiff.GradientTape; pass nil for evaluation.
package nn

import (
	"fmt"

	"github.com/born-ml/sinenet/internal/tensor"
)

// Module is the base interface for every component that owns parameters.
//
// Forward signatures differ between modules (a layer consumes a feature
// dictionary, a Linear a single tensor), so only Parameters is shared.
type Module interface {
	// Parameters returns all parameters of this module, including buffers,
	// in a stable order.
	Parameters() []*Parameter
}

// Trainable filters out buffers, leaving the parameters an optimizer updates.
func Trainable(m Module) []*Parameter {
	all := m.Parameters()
	out := make([]*Parameter, 0, len(all))
	for _, p := range all {
		if !p.IsBuffer() {
			out = append(out, p)
		}
	}
	return out
}

// StateDict returns a copy of every parameter and buffer keyed by name.
func StateDict(m Module) map[string]*tensor.Tensor {
	state := make(map[string]*tensor.Tensor)
	for _, p := range m.Parameters() {
		state[p.Name()] = p.Tensor().Clone()
	}
	return state
}

// LoadStateDict overwrites parameter values in place from state.
//
// Every parameter of m must be present with a matching shape; extra keys
// are an error as well, since they indicate a different architecture.
func LoadStateDict(m Module, state map[string]*tensor.Tensor) error {
	params := m.Parameters()
	if len(state) != len(params) {
		return fmt.Errorf("state dict has %d entries, module has %d parameters", len(state), len(params))
	}
	for _, p := range params {
		src, ok := state[p.Name()]
		if !ok {
			return fmt.Errorf("missing %s in state dict", p.Name())
		}
		if err := p.Tensor().CopyFrom(src); err != nil {
			return fmt.Errorf("load %s: %w", p.Name(), err)
		}
	}
	return nil
}
