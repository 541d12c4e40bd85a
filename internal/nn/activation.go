package nn

import (
	"fmt"
	"strings"

	"github.com/born-ml/sinenet/internal/autodiff"
	"github.com/born-ml/sinenet/internal/tensor"
)

// DefaultLeakySlope is the negative slope of LeakyReLU when none is given.
const DefaultLeakySlope = 0.01

// Activation is an element-wise nonlinearity without parameters.
type Activation interface {
	TensorModule
	Name() string
}

// Identity passes its input through. It is the activation of a plain
// linear layer.
type Identity struct{}

// Forward returns x unchanged.
func (Identity) Forward(_ *autodiff.GradientTape, x *tensor.Tensor) *tensor.Tensor {
	return x
}

// Name returns "linear".
func (Identity) Name() string { return "linear" }

// Parameters returns nil.
func (Identity) Parameters() []*Parameter { return nil }

// ReLU applies f(x) = max(0, x).
type ReLU struct{}

// Forward applies ReLU.
func (ReLU) Forward(tape *autodiff.GradientTape, x *tensor.Tensor) *tensor.Tensor {
	return autodiff.LeakyReLU(tape, x, 0)
}

// Name returns "relu".
func (ReLU) Name() string { return "relu" }

// Parameters returns nil.
func (ReLU) Parameters() []*Parameter { return nil }

// LeakyReLU applies f(x) = x for x > 0 and Slope·x otherwise.
//
// Example:
//
//	act := nn.LeakyReLU{Slope: nn.DefaultLeakySlope}
//	h = act.Forward(tape, h)
type LeakyReLU struct {
	Slope float64
}

// Forward applies LeakyReLU.
func (a LeakyReLU) Forward(tape *autodiff.GradientTape, x *tensor.Tensor) *tensor.Tensor {
	return autodiff.LeakyReLU(tape, x, a.Slope)
}

// Name returns "lrelu".
func (LeakyReLU) Name() string { return "lrelu" }

// Parameters returns nil.
func (LeakyReLU) Parameters() []*Parameter { return nil }

// ParseActivation maps a configuration name to an Activation.
// Accepted names (case-insensitive): "", "linear", "identity", "relu",
// "lrelu", "leakyrelu".
func ParseActivation(name string) (Activation, error) {
	switch strings.ToLower(name) {
	case "", "linear", "identity":
		return Identity{}, nil
	case "relu":
		return ReLU{}, nil
	case "lrelu", "leakyrelu", "leaky_relu":
		return LeakyReLU{Slope: DefaultLeakySlope}, nil
	default:
		return nil, fmt.Errorf("unknown activation %q", name)
	}
}
