package nn

import (
	"github.com/born-ml/sinenet/internal/tensor"
)

// Parameter represents a trainable parameter in a neural network.
//
// Parameters are tensors that require gradient computation during training.
// They typically represent weights and biases of layers. A parameter created
// with NewBuffer holds non-trainable state (batch norm running statistics):
// it is saved with the model but never receives a gradient.
//
// Example:
//
//	weight := nn.NewParameter("fc1.weight", tensor.Xavier(in, out, rng))
//	w := weight.Tensor()
//	grad := weight.Grad() // after a backward pass
type Parameter struct {
	name   string         // Fully qualified name (e.g., "layer2.linear.weight")
	tensor *tensor.Tensor // The parameter tensor
	grad   *tensor.Tensor // Gradient tensor (set after a backward pass)
	buffer bool
}

// NewParameter creates a new trainable parameter.
func NewParameter(name string, t *tensor.Tensor) *Parameter {
	return &Parameter{name: name, tensor: t}
}

// NewBuffer creates non-trainable state that is persisted with the model.
func NewBuffer(name string, t *tensor.Tensor) *Parameter {
	return &Parameter{name: name, tensor: t, buffer: true}
}

// Name returns the parameter name.
func (p *Parameter) Name() string {
	return p.name
}

// Tensor returns the parameter tensor.
func (p *Parameter) Tensor() *tensor.Tensor {
	return p.tensor
}

// Grad returns the gradient tensor.
//
// Returns nil if no gradient has been computed yet (before backward pass).
func (p *Parameter) Grad() *tensor.Tensor {
	return p.grad
}

// SetGrad sets the gradient tensor.
func (p *Parameter) SetGrad(grad *tensor.Tensor) {
	p.grad = grad
}

// ZeroGrad clears the gradient tensor.
func (p *Parameter) ZeroGrad() {
	p.grad = nil
}

// IsBuffer reports whether p is non-trainable state.
func (p *Parameter) IsBuffer() bool {
	return p.buffer
}

// AssignGrads copies gradients computed by a tape backward pass onto params.
// Parameters absent from grads (unused in the forward pass) get a nil grad.
func AssignGrads(params []*Parameter, grads map[*tensor.Tensor]*tensor.Tensor) {
	for _, p := range params {
		if p.buffer {
			continue
		}
		p.grad = grads[p.tensor]
	}
}
